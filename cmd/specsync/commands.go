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
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals so commands can be exercised in tests.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "specsync",
		Short: "Browse living specifications from the terminal",
		Long: `SpecSync keeps a local view of your project's specifications,
coverage and impact graph in sync with the documentation service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive() {
				return runTUI(cmd, flags)
			}
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default ~/.specsync/specsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.server, "server", "", "Documentation service URL (overrides config and SPECSYNC_SERVER)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flags.noLive, "no-live", false, "Disable the live update channel")

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, flags)
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print specification changes as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags)
		},
	}

	graphOpts := &graphOptions{}
	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the impact graph as SVG",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, flags, graphOpts)
		},
	}
	graphCmd.Flags().StringVarP(&graphOpts.output, "output", "o", "", "Write the SVG to this file instead of stdout")
	graphCmd.Flags().StringVar(&graphOpts.filter, "type", "", "Show only one node type: specification, code or test")
	graphCmd.Flags().StringVar(&graphOpts.hover, "focus", "", "Highlight this node and its relationships")
	graphCmd.Flags().Uint64Var(&graphOpts.seed, "seed", 0, "Layout jitter seed (default from config)")

	actionCmd := &cobra.Command{
		Use:       "action <scan|build|validate|coverage|export>",
		Short:     "Run an action on the documentation service and wait for it",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"scan", "build", "validate", "coverage", "export"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, flags, args[0])
		},
	}

	var searchLimit int
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search specifications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, flags, args, searchLimit)
		},
	}
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum results (default from config)")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one specification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, flags, args[0])
		},
	}

	prefsCmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change local preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefsList(cmd, flags)
		},
	}
	prefsGetCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print one preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefsGet(cmd, flags, args[0])
		},
	}
	prefsSetCmd := &cobra.Command{
		Use:   "set <name> <true|false>",
		Short: "Change one preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefsSet(cmd, flags, args[0], args[1])
		},
	}
	prefsCmd.AddCommand(prefsGetCmd, prefsSetCmd)

	var forceOnboard bool
	onboardCmd := &cobra.Command{
		Use:   "onboard",
		Short: "Walk through first-run setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard(cmd, flags, forceOnboard)
		},
	}
	onboardCmd.Flags().BoolVar(&forceOnboard, "force", false, "Show the welcome even if specifications exist or it was dismissed")

	rootCmd.AddCommand(tuiCmd, watchCmd, graphCmd, searchCmd, showCmd, actionCmd, prefsCmd, onboardCmd)
	return rootCmd
}
