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

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/specsync/services/browser"
	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/graphview"
	"github.com/AleutianAI/specsync/services/browser/mutation"
	"github.com/AleutianAI/specsync/services/browser/notify"
	"github.com/AleutianAI/specsync/services/browser/querycache"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	if overlay := m.renderOverlay(); overlay != "" {
		b.WriteString(overlay)
	} else {
		b.WriteString(m.viewport.View())
	}

	b.WriteString("\n")
	b.WriteString(m.renderNotice())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// refreshContent re-renders the active view into the viewport.
func (m *Model) refreshContent() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderBody())
}

// =============================================================================
// Chrome
// =============================================================================

func (m *Model) renderHeader() string {
	title := m.styles().title.Render("SpecSync")

	var live string
	switch {
	case !m.b.Channel().Enabled():
		live = mutedStyle.Render("live updates off")
	case m.status.Offline:
		live = errorStyle.Render("● offline")
	default:
		live = successStyle.Render("● " + strings.ToLower(m.status.State.String()))
	}

	var actions []string
	for _, kind := range mutation.Kinds {
		if m.b.Dispatcher().Status(kind) == mutation.StatusPending {
			actions = append(actions, m.spinner.View()+" "+string(kind))
		}
	}

	parts := []string{title, live}
	if m.b.Highlighted(browser.HighlightRefresh) {
		parts = append(parts, highlightStyle.Render("updated"))
	}
	if len(actions) > 0 {
		parts = append(parts, strings.Join(actions, "  "))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderTabs() string {
	tabs := make([]string, 0, len(Views))
	for _, v := range Views {
		style := tabStyle
		if v == m.view {
			style = activeTabStyle
		} else if m.viewHighlighted(v) {
			style = highlightTabStyle
		}
		tabs = append(tabs, style.Render(v.String()))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) viewHighlighted(v View) bool {
	for _, k := range v.Keys() {
		if m.b.Highlighted(string(k)) {
			return true
		}
	}
	return false
}

func (m *Model) renderNotice() string {
	n, ok := m.b.Notifications().Current()
	if !ok {
		return ""
	}
	if n.Severity == notify.SeverityError {
		return errorStyle.Render("✗ " + n.Message)
	}
	return successStyle.Render("✓ " + n.Message)
}

func (m *Model) renderOverlay() string {
	if step, ok := m.b.Tour().Current(); ok {
		st := m.b.Tour().State()
		return boxStyle.Render(fmt.Sprintf("%s  (%d/%d)\n\n%s\n\n[n] %s   [esc] skip",
			m.styles().title.Render(step.Title), st.Index+1, m.b.Tour().Len(),
			step.Description, m.b.Tour().NextLabel()))
	}
	if m.onboarding {
		return boxStyle.Render(m.styles().title.Render("Welcome to SpecSync") +
			"\n\nNo specifications were found yet.\n\n" +
			"[s] scan the project   [t] take the tour   [esc] don't show again")
	}
	if m.result != nil {
		return boxStyle.Render(renderOutcome(*m.result) + "\n\n[esc] close")
	}
	if m.view == ViewEntities && m.detailID != "" {
		return boxStyle.Render(m.renderDetail() + "\n\n[esc] close")
	}
	return ""
}

func (m *Model) renderDetail() string {
	snap, line, ok := m.state(datatypes.EntityKey(m.detailID))
	if !ok {
		return line
	}
	e := snap.Value.(*datatypes.EntityDetail)

	var b strings.Builder
	b.WriteString(m.styles().title.Render(e.ID))
	b.WriteString("\n" + mutedStyle.Render(strings.Join(nonEmpty(e.Type, e.Status, e.Source), " | ")))
	if e.Pinned {
		b.WriteString("\n" + highlightStyle.Render("pinned"))
	}
	if len(e.Tags) > 0 {
		b.WriteString("\ntags: " + strings.Join(e.Tags, ", "))
	}
	if len(e.Links) > 0 {
		b.WriteString("\nlinks: " + strings.Join(e.Links, ", "))
	}
	if line != "" {
		b.WriteString("\n" + line)
	}
	b.WriteString("\n\n" + e.Text)
	return b.String()
}

func nonEmpty(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func renderOutcome(o mutation.Outcome) string {
	var b strings.Builder
	if o.Success {
		b.WriteString(successStyle.Render(fmt.Sprintf("%s succeeded", o.Kind)))
	} else {
		b.WriteString(errorStyle.Render(fmt.Sprintf("%s failed", o.Kind)))
	}
	if o.Message != "" {
		b.WriteString("\n" + o.Message)
	}
	if o.Failure != nil && o.Failure.Message != "" && o.Failure.Message != o.Message {
		b.WriteString("\n" + errorStyle.Render(o.Failure.Message))
	}
	if len(o.Data) > 0 {
		keys := make([]string, 0, len(o.Data))
		for k := range o.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("\n  %s: %v", k, o.Data[k]))
		}
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("\n%s, %d views refreshed", o.Duration.Round(time.Millisecond), o.Invalidated)))
	return b.String()
}

// =============================================================================
// Bodies
// =============================================================================

func (m *Model) renderBody() string {
	switch m.view {
	case ViewEntities:
		return m.renderEntities()
	case ViewGraph:
		return m.renderGraph()
	case ViewHealth:
		return m.renderHealth()
	case ViewSessions:
		return m.renderSessions()
	case ViewPowers:
		return m.renderPowers()
	default:
		return ""
	}
}

// state renders the loading or error line for k. ok is false when there
// is no value to show.
func (m *Model) state(k querycache.Key) (querycache.Snapshot, string, bool) {
	snap, found := m.snaps[k]
	switch {
	case !found || snap.Loading():
		return snap, m.spinner.View() + " loading " + string(k), false
	case !snap.HasValue && snap.Err != nil:
		return snap, errorStyle.Render(fmt.Sprintf("could not load %s: %v", k, snap.Err)), false
	case !snap.HasValue:
		return snap, mutedStyle.Render("no data"), false
	}

	var line string
	switch {
	case snap.Err != nil:
		line = errorStyle.Render(fmt.Sprintf("showing last data: %v", snap.Err))
	case snap.Refreshing():
		line = mutedStyle.Render("refreshing...")
	case snap.Stale:
		line = mutedStyle.Render("outdated")
	}
	return snap, line, true
}

func section(parts ...string) string {
	return strings.Join(nonEmpty(parts...), "\n")
}

func (m *Model) renderEntities() string {
	var out []string

	switch {
	case m.searching || m.searchQuery != "":
		out = append(out, m.search.View())
	case m.tourAnchor() == "search-bar":
		out = append(out, highlightStyle.Render("/ search specifications"))
	default:
		out = append(out, mutedStyle.Render("/ search specifications"))
	}

	if snap, line, ok := m.state(datatypes.KeyStatistics); ok {
		s := snap.Value.(*datatypes.StatisticsResponse)
		out = append(out, section(
			fmt.Sprintf("%d specs  %d active  %d legacy  %d pinned",
				s.TotalEntities, s.ActiveCount, s.LegacyCount, s.PinnedCount),
			line))
	} else {
		out = append(out, line)
	}

	if m.searchQuery != "" {
		out = append(out, m.renderSearchResults())
		return strings.Join(out, "\n\n")
	}

	snap, line, ok := m.state(datatypes.KeyEntities)
	if !ok {
		out = append(out, line)
		return strings.Join(out, "\n\n")
	}
	list := snap.Value.(*datatypes.EntityListResponse)
	rows := list.Narrow(m.entityType, m.entitySource)

	filter := "all types"
	if m.entityType != "" {
		filter = m.entityType
	}
	source := "all sources"
	if m.entitySource != "" {
		source = m.entitySource
	}
	var b strings.Builder
	b.WriteString(m.styles().heading.Render(fmt.Sprintf("Specifications (%d of %d)  [%s, %s]", len(rows), list.Total, filter, source)))
	if line != "" {
		b.WriteString("\n" + line)
	}
	for i, e := range rows {
		pin := " "
		if e.Pinned {
			pin = "*"
		}
		b.WriteString(fmt.Sprintf("\n%s%s %-12s %-8s %s  %s", m.marker(i, len(rows)), pin, e.Type, e.Status,
			truncate(e.TextPreview, 60), mutedStyle.Render(e.Source)))
	}
	if len(rows) == 0 {
		b.WriteString("\n" + mutedStyle.Render("no specifications match"))
	}
	out = append(out, b.String())

	if snap, _, ok := m.state(datatypes.KeyPinned); ok {
		p := snap.Value.(*datatypes.PinnedListResponse)
		var pb strings.Builder
		pb.WriteString(m.styles().heading.Render(fmt.Sprintf("Pinned (%d)", p.Total)))
		for _, pe := range p.Entities {
			pb.WriteString(fmt.Sprintf("\n  %s  %s", truncate(pe.Entity.TextPreview, 50), mutedStyle.Render(pe.Reason)))
		}
		out = append(out, pb.String())
	}
	return strings.Join(out, "\n\n")
}

func (m *Model) renderSearchResults() string {
	snap, line, ok := m.state(m.b.SearchKey(m.searchQuery, 0))
	if !ok {
		return line
	}
	res := snap.Value.(*datatypes.SearchResponse)

	var b strings.Builder
	b.WriteString(m.styles().heading.Render(fmt.Sprintf("Search results for %q (%d)  [esc] clear", m.searchQuery, len(res.Results))))
	if line != "" {
		b.WriteString("\n" + line)
	}
	for i, r := range res.Results {
		b.WriteString(fmt.Sprintf("\n%s%3.0f%% %-12s %s  %s", m.marker(i, len(res.Results)), r.Score*100, r.Entity.Type,
			truncate(r.Entity.TextPreview, 60), mutedStyle.Render(r.Entity.ID)))
	}
	if len(res.Results) == 0 {
		b.WriteString("\n" + mutedStyle.Render("no specifications match"))
	}
	return b.String()
}

// marker is the cursor column for row i of n.
func (m *Model) marker(i, n int) string {
	if i == min(m.cursor, n-1) {
		return ">"
	}
	return " "
}

func (m *Model) renderGraph() string {
	_, line, ok := m.state(datatypes.KeyGraph)
	if !ok {
		return line
	}
	scene := m.b.Graph().Scene()

	var b strings.Builder
	if line != "" {
		b.WriteString(line + "\n")
	}
	legend := make([]string, 0, len(scene.Legend))
	for _, l := range scene.Legend {
		label := fmt.Sprintf("%s (%d)", l.Label, l.Count)
		if scene.Filter == l.Type {
			label = "[" + label + "]"
		}
		legend = append(legend, lipgloss.NewStyle().Foreground(lipgloss.Color(l.Color)).Render(label))
	}
	b.WriteString(strings.Join(legend, "  "))

	if scene.Empty() {
		b.WriteString("\n\nNo graph data available\nRun a scan to build the impact graph")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("\n\n%d nodes, %d edges", len(scene.Nodes), len(scene.Edges)))
	for _, n := range scene.Nodes {
		marker := "○"
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(n.Color))
		if n.Hovered {
			marker = "●"
			style = style.Bold(true)
		}
		b.WriteString(fmt.Sprintf("\n%s %s %s", style.Render(marker), n.Label, mutedStyle.Render(string(n.Type))))
	}

	if scene.Hovered != "" {
		b.WriteString("\n\n" + m.styles().heading.Render("Relationships of "+scene.Hovered))
		for _, e := range scene.Edges {
			if !e.Highlighted {
				continue
			}
			b.WriteString(fmt.Sprintf("\n  %s -%s-> %s", e.Source, relationship(e), e.Target))
		}
	}
	return b.String()
}

func relationship(e graphview.RenderedEdge) string {
	if e.Relationship == "" {
		return "-"
	}
	return e.Relationship
}

func (m *Model) renderHealth() string {
	var out []string
	if snap, line, ok := m.state(datatypes.KeyHealth); ok {
		h := snap.Value.(*datatypes.HealthScore)
		var b strings.Builder
		b.WriteString(m.styles().heading.Render(fmt.Sprintf("Health %s  %.0f/100", h.LetterGrade, h.OverallScore)))
		if line != "" {
			b.WriteString("\n" + line)
		}
		for _, c := range h.Breakdown {
			b.WriteString(fmt.Sprintf("\n  %-24s %5.1f", c.Category, c.Score))
		}
		for _, s := range h.Suggestions {
			b.WriteString("\n  - " + s)
		}
		out = append(out, b.String())
	} else {
		out = append(out, line)
	}

	if snap, line, ok := m.state(datatypes.KeyCoverage); ok {
		c := snap.Value.(*datatypes.CoverageReport)
		var b strings.Builder
		b.WriteString(m.styles().heading.Render(fmt.Sprintf("Coverage %.1f%%  (%d of %d criteria, %d uncovered)",
			c.CoveragePercentage, c.CoveredCriteria, c.TotalCriteria, c.Uncovered())))
		if line != "" {
			b.WriteString("\n" + line)
		}
		for _, f := range c.Features {
			b.WriteString(fmt.Sprintf("\n  %-30s %5.1f%%", f.FeatureName, f.CoveragePercentage))
		}
		out = append(out, b.String())
	} else {
		out = append(out, line)
	}
	return strings.Join(out, "\n\n")
}

func (m *Model) renderSessions() string {
	snap, line, ok := m.state(datatypes.KeySessions)
	if !ok {
		return line
	}
	list := snap.Value.(*datatypes.SessionList)
	var b strings.Builder
	b.WriteString(m.styles().heading.Render(fmt.Sprintf("Sessions (%d)", list.Total)))
	if line != "" {
		b.WriteString("\n" + line)
	}
	for _, s := range list.Sessions {
		b.WriteString(fmt.Sprintf("\n  %s  %-40s %d messages", s.Created().String(), truncate(s.DisplayTitle(), 40), s.MessageCount))
	}
	return b.String()
}

func (m *Model) renderPowers() string {
	snap, line, ok := m.state(datatypes.KeyPowers)
	if !ok {
		return line
	}
	list := snap.Value.(*datatypes.PowerList)
	var b strings.Builder
	b.WriteString(m.styles().heading.Render(fmt.Sprintf("Powers (%d)", list.Total)))
	if line != "" {
		b.WriteString("\n" + line)
	}
	for _, p := range list.Powers {
		b.WriteString(fmt.Sprintf("\n  %s %s  %s", p.Name, mutedStyle.Render(p.Version), p.Description))
		for _, t := range p.Tools {
			b.WriteString(fmt.Sprintf("\n    - %s: %s", t.Name, t.Description))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// =============================================================================
// Styles
// =============================================================================

type palette struct {
	title   lipgloss.Style
	heading lipgloss.Style
}

var (
	lightPalette = palette{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("57")),
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("236")),
	}
	darkPalette = palette{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("141")),
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
	}
)

func (m *Model) styles() palette {
	if m.dark {
		return darkPalette
	}
	return lightPalette
}

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	tabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(lipgloss.Color("245"))

	activeTabStyle = tabStyle.
			Foreground(lipgloss.Color("39")).
			Bold(true).
			Underline(true)

	highlightTabStyle = tabStyle.
				Foreground(lipgloss.Color("214"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 2)
)
