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
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/graphview"
)

type graphOptions struct {
	output string
	filter string
	hover  string
	seed   uint64
}

func runGraph(cmd *cobra.Command, flags *globalFlags, opts *graphOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, flags, appOptions{console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	g, err := a.browser.ImpactGraph(ctx)
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}

	layout := a.cfg.BrowserConfig("").Graph
	if cmd.Flags().Changed("seed") {
		layout.Seed = opts.seed
	}

	var out io.Writer = cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := renderGraph(out, *g, layout, opts.filter, opts.hover); err != nil {
		return err
	}
	if opts.output != "" {
		newPrinter(cmd.ErrOrStderr()).Success(fmt.Sprintf("wrote %s (%d nodes, %d edges)", opts.output, len(g.Nodes), len(g.Edges)))
	}
	return nil
}

// renderGraph lays out g and writes the filtered, focused scene as SVG.
func renderGraph(w io.Writer, g datatypes.ImpactGraph, layout graphview.Options, filter, focus string) error {
	engine := graphview.NewEngine(layout)
	engine.SetSnapshot(graphview.FromImpactGraph(g))
	if filter != "" {
		if _, err := engine.ToggleFilter(graphview.ParseNodeType(filter)); err != nil {
			return err
		}
	}
	if focus != "" {
		engine.Hover(focus)
	}
	return graphview.RenderSVG(w, engine.Scene())
}
