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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/specsync/services/browser/prefs"
)

func runPrefsList(cmd *cobra.Command, flags *globalFlags) error {
	a, err := newApp(cmd.Context(), flags, appOptions{console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.store.Load(cmd.Context())
	if err != nil {
		return err
	}
	out := newPrinter(cmd.OutOrStdout())
	for _, n := range prefs.Names {
		out.Printf("%s=%t", n, p.Get(n))
	}
	return nil
}

func runPrefsGet(cmd *cobra.Command, flags *globalFlags, name string) error {
	n, err := prefs.ParseName(name)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), flags, appOptions{console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.store.Get(cmd.Context(), n)
	if err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout()).Printf("%t", v)
	return nil
}

func runPrefsSet(cmd *cobra.Command, flags *globalFlags, name, value string) error {
	n, err := prefs.ParseName(name)
	if err != nil {
		return err
	}
	v, err := parseBool(value)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), flags, appOptions{console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Set(cmd.Context(), n, v); err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout()).Printf("%s=%t", n, v)
	return nil
}

// parseBool accepts strconv forms plus on/off and yes/no.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "yes", "y":
		return true, nil
	case "off", "no", "n":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid value %q: want true or false", s)
	}
	return v, nil
}
