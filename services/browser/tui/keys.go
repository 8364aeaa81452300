// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the dashboard bindings.
type keyMap struct {
	NextView   key.Binding
	PrevView   key.Binding
	Refresh    key.Binding
	RefreshAll key.Binding
	Scan       key.Binding
	Build      key.Binding
	Validate   key.Binding
	Coverage   key.Binding
	Export     key.Binding
	Filter     key.Binding
	Hover      key.Binding
	TypeFilter key.Binding
	Source     key.Binding
	Search     key.Binding
	Open       key.Binding
	Up         key.Binding
	Down       key.Binding
	Tour       key.Binding
	TourNext   key.Binding
	Dismiss    key.Binding
	Dark       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		NextView:   key.NewBinding(key.WithKeys("tab", "right"), key.WithHelp("tab", "next view")),
		PrevView:   key.NewBinding(key.WithKeys("shift+tab", "left"), key.WithHelp("shift+tab", "prev view")),
		Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		RefreshAll: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh all")),
		Scan:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "scan")),
		Build:      key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "build")),
		Validate:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "validate")),
		Coverage:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "coverage")),
		Export:     key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export")),
		Filter:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "graph filter")),
		Hover:      key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "focus next node")),
		TypeFilter: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "entity type")),
		Source:     key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "entity source")),
		Search:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Open:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Up:         key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:       key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		Tour:       key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "tour")),
		TourNext:   key.NewBinding(key.WithKeys("n", "enter"), key.WithHelp("n", "next step")),
		Dismiss:    key.NewBinding(key.WithKeys("esc", "x"), key.WithHelp("esc", "dismiss")),
		Dark:       key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "dark mode")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextView, k.Search, k.Refresh, k.Scan, k.Build, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextView, k.PrevView, k.Refresh, k.RefreshAll},
		{k.Scan, k.Build, k.Validate, k.Coverage, k.Export},
		{k.Filter, k.Hover, k.TypeFilter, k.Source},
		{k.Search, k.Open, k.Up, k.Down},
		{k.Tour, k.TourNext, k.Dismiss, k.Dark, k.Help, k.Quit},
	}
}
