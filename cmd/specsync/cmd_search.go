// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/specsync/pkg/ux"
	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/remote"
)

// errNotFound is returned by show for an unknown id.
var errNotFound = errors.New("no specification with that id")

func runSearch(cmd *cobra.Command, flags *globalFlags, args []string, limit int) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return errors.New("search needs a query")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, flags, appOptions{console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.browser.Search(ctx, query, limit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	writeSearch(newPrinter(cmd.OutOrStdout()), query, res)
	return nil
}

// writeSearch prints ranked results, best first.
func writeSearch(p *ux.Printer, query string, res *datatypes.SearchResponse) {
	if len(res.Results) == 0 {
		p.Muted(fmt.Sprintf("No specifications match %q.", query))
		return
	}
	p.Title(fmt.Sprintf("%d results for %q", len(res.Results), query))
	for _, r := range res.Results {
		p.Printf("%3.0f%%  %s (%s)", r.Score*100, r.Entity.ID, r.Entity.Type)
		if r.Entity.TextPreview != "" {
			p.Muted("      " + r.Entity.TextPreview)
		}
	}
}

func runShow(cmd *cobra.Command, flags *globalFlags, id string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, flags, appOptions{console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.browser.Entity(ctx, id)
	if err != nil {
		var te *remote.TransportError
		if errors.As(err, &te) && te.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", errNotFound, id)
		}
		return fmt.Errorf("loading %s: %w", id, err)
	}
	writeEntity(newPrinter(cmd.OutOrStdout()), e)
	return nil
}

// writeEntity prints one entity with its metadata above the text.
func writeEntity(p *ux.Printer, e *datatypes.EntityDetail) {
	p.Title(e.ID)
	p.KeyValue("type", e.Type)
	p.KeyValue("status", e.Status)
	p.KeyValue("source", e.Source)
	if e.Pinned {
		p.KeyValue("pinned", "yes")
	}
	if len(e.Tags) > 0 {
		p.KeyValue("tags", strings.Join(e.Tags, ", "))
	}
	if len(e.Links) > 0 {
		p.KeyValue("links", strings.Join(e.Links, ", "))
	}
	p.Printf("")
	p.Printf("%s", e.Text)
}
