// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui provides the terminal dashboard for the documentation browser.
//
// # Description
//
// The dashboard is a bubbletea program over a browser.Browser. Each view
// subscribes to the query keys it shows when it is mounted and closes them
// when another view replaces it, so only visible views are refetched when
// the live channel invalidates.
//
// # Thread Safety
//
// The model is used from the bubbletea event loop only. Listeners registered
// on the browser forward into the loop through a buffered channel.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/specsync/services/browser"
	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/graphview"
	"github.com/AleutianAI/specsync/services/browser/livechannel"
	"github.com/AleutianAI/specsync/services/browser/mutation"
	"github.com/AleutianAI/specsync/services/browser/notify"
	"github.com/AleutianAI/specsync/services/browser/prefs"
	"github.com/AleutianAI/specsync/services/browser/querycache"
)

// =============================================================================
// Views
// =============================================================================

// View is a dashboard tab.
type View int

const (
	ViewEntities View = iota
	ViewGraph
	ViewHealth
	ViewSessions
	ViewPowers
)

// Views lists the tabs in display order.
var Views = []View{ViewEntities, ViewGraph, ViewHealth, ViewSessions, ViewPowers}

// String returns the tab title.
func (v View) String() string {
	switch v {
	case ViewEntities:
		return "Specs"
	case ViewGraph:
		return "Graph"
	case ViewHealth:
		return "Health"
	case ViewSessions:
		return "Sessions"
	case ViewPowers:
		return "Powers"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(v))
	}
}

// Keys returns the query keys the view observes.
func (v View) Keys() []querycache.Key {
	switch v {
	case ViewEntities:
		return []querycache.Key{datatypes.KeyEntities, datatypes.KeyStatistics, datatypes.KeyPinned}
	case ViewGraph:
		return []querycache.Key{datatypes.KeyGraph}
	case ViewHealth:
		return []querycache.Key{datatypes.KeyHealth, datatypes.KeyCoverage}
	case ViewSessions:
		return []querycache.Key{datatypes.KeySessions}
	case ViewPowers:
		return []querycache.Key{datatypes.KeyPowers}
	default:
		return nil
	}
}

// =============================================================================
// Messages
// =============================================================================

// snapshotMsg carries a cache update for one subscription.
type snapshotMsg struct {
	sub  *querycache.Subscription
	snap querycache.Snapshot
}

// noticeMsg signals that the notification slot changed. The slot itself is
// read from the queue when rendering.
type noticeMsg struct{}

// statusMsg signals that the live channel status changed.
type statusMsg struct{}

// actionDoneMsg is sent when a dispatched action completes.
type actionDoneMsg struct {
	kind    mutation.Kind
	outcome mutation.Outcome
}

// tickMsg re-renders so highlights can expire.
type tickMsg time.Time

const tickInterval = 500 * time.Millisecond

// =============================================================================
// Model
// =============================================================================

// Model is the dashboard bubbletea model.
type Model struct {
	b      *browser.Browser
	ctx    context.Context
	keys   keyMap
	events chan tea.Msg
	stop   []func()

	view  View
	subs  map[querycache.Key]*querycache.Subscription
	snaps map[querycache.Key]querycache.Snapshot

	status  livechannel.Status
	result  *mutation.Outcome
	hoverAt int

	entityType   string
	entitySource string

	// search is the search bar. searchQuery is the submitted query, which
	// stays active until cleared with esc.
	search      textinput.Model
	searching   bool
	searchQuery string
	cursor      int
	detailID    string

	dark              bool
	dismissed         bool
	onboarding        bool
	onboardingHandled bool

	spinner  spinner.Model
	viewport viewport.Model
	help     help.Model
	width    int
	height   int
	ready    bool
	quitting bool
}

// New creates the dashboard over b. ctx bounds dispatched actions.
//
// # Inputs
//
//   - ctx: Lifetime of the program.
//   - b: The composed browser. The caller runs and closes it.
//
// # Outputs
//
//   - *Model: Ready for tea.NewProgram. Call Close after the program exits.
func New(ctx context.Context, b *browser.Browser) *Model {
	p, err := b.Prefs().Load(ctx)
	if err != nil {
		p = prefs.Defaults()
	}

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search specifications"
	search.CharLimit = 200

	m := &Model{
		b:         b,
		ctx:       ctx,
		keys:      defaultKeyMap(),
		events:    make(chan tea.Msg, 64),
		subs:      make(map[querycache.Key]*querycache.Subscription),
		snaps:     make(map[querycache.Key]querycache.Snapshot),
		status:    b.Channel().Status(),
		dark:      p.DarkMode,
		dismissed: p.OnboardingDismissed,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:      help.New(),
		search:    search,
		hoverAt:   -1,
	}

	m.stop = append(m.stop,
		b.Notifications().OnChange(func(notify.Notification, bool) {
			m.forward(noticeMsg{})
		}),
		b.Channel().OnStatus(func(livechannel.Status) {
			m.forward(statusMsg{})
		}),
	)
	return m
}

// forward wakes the event loop, dropping msg if the loop is behind. A
// message still in the buffer re-reads the same state when handled, so
// nothing is lost.
func (m *Model) forward(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

func (m *Model) waitEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func waitSnapshot(sub *querycache.Subscription) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-sub.Updates()
		if !ok {
			return nil
		}
		return snapshotMsg{sub: sub, snap: snap}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Close unregisters listeners and closes every subscription.
func (m *Model) Close() {
	for _, fn := range m.stop {
		fn()
	}
	m.stop = nil
	for k, sub := range m.subs {
		sub.Close()
		delete(m.subs, k)
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.mount(m.view), m.waitEvent(), m.spinner.Tick, tick())
}

// keysFor returns the keys observed while v is shown, including the active
// search and the open entity on the specs view.
func (m *Model) keysFor(v View) []querycache.Key {
	keys := v.Keys()
	if v != ViewEntities {
		return keys
	}
	if m.searchQuery != "" {
		keys = append(keys, m.b.SearchKey(m.searchQuery, 0))
	}
	if m.detailID != "" {
		keys = append(keys, datatypes.EntityKey(m.detailID))
	}
	return keys
}

// mount switches to v: keys v does not observe are unsubscribed, the
// rest are (re)subscribed.
func (m *Model) mount(v View) tea.Cmd {
	m.view = v
	keys := m.keysFor(v)
	want := make(map[querycache.Key]bool)
	for _, k := range keys {
		want[k] = true
	}
	for k, sub := range m.subs {
		if !want[k] {
			sub.Close()
			delete(m.subs, k)
		}
	}

	var cmds []tea.Cmd
	for _, k := range keys {
		if _, ok := m.subs[k]; ok {
			continue
		}
		snap, sub, err := m.b.Subscribe(k)
		if err != nil {
			snap = querycache.Snapshot{Key: k, State: querycache.StateFailed, Err: err}
			m.snaps[k] = snap
			continue
		}
		m.subs[k] = sub
		m.apply(k, snap)
		cmds = append(cmds, waitSnapshot(sub))
	}
	m.hoverAt = -1
	m.refreshContent()
	return tea.Batch(cmds...)
}

// apply stores a snapshot and runs the per-key side effects.
func (m *Model) apply(k querycache.Key, snap querycache.Snapshot) {
	m.snaps[k] = snap
	if !snap.HasValue {
		return
	}
	switch k {
	case datatypes.KeyGraph:
		if g, ok := snap.Value.(*datatypes.ImpactGraph); ok {
			m.b.UpdateGraph(*g)
		}
	case datatypes.KeyEntities:
		if list, ok := snap.Value.(*datatypes.EntityListResponse); ok {
			m.onboarding = browser.OnboardingVisible(list, m.dismissed) && !m.dismissedThisSession()
		}
	}
}

func (m *Model) dismissedThisSession() bool {
	return m.dismissed || m.onboardingHandled
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 4
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(m.width, m.height-headerHeight-footerHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = m.height - headerHeight - footerHeight
		}
		m.help.Width = m.width
		m.refreshContent()

	case snapshotMsg:
		if m.subs[msg.snap.Key] != msg.sub {
			// Unmounted since the update was sent.
			return m, nil
		}
		m.apply(msg.snap.Key, msg.snap)
		m.refreshContent()
		return m, waitSnapshot(msg.sub)

	case noticeMsg:
		return m, m.waitEvent()

	case statusMsg:
		m.status = m.b.Channel().Status()
		return m, m.waitEvent()

	case actionDoneMsg:
		if msg.kind != mutation.KindExport {
			o := msg.outcome
			m.result = &o
			m.refreshContent()
		}
		return m, nil

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// =============================================================================
// Keys
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if m.searching {
		return m.handleSearchKey(msg)
	}
	if m.b.Tour().State().Active {
		return m.handleTourKey(msg)
	}
	if m.onboarding {
		if cmd, ok := m.handleOnboardingKey(msg); ok {
			return cmd, true
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return tea.Quit, true
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil, true
	case key.Matches(msg, m.keys.Dismiss):
		switch {
		case m.result != nil:
			m.result = nil
			m.b.ClearResult()
			m.refreshContent()
		case m.view == ViewEntities && m.detailID != "":
			m.detailID = ""
			return m.mount(m.view), true
		case m.view == ViewEntities && m.searchQuery != "":
			m.searchQuery = ""
			m.search.SetValue("")
			m.cursor = 0
			return m.mount(m.view), true
		default:
			m.b.Notifications().Dismiss()
		}
		return nil, true
	case key.Matches(msg, m.keys.NextView):
		return m.mount(Views[(int(m.view)+1)%len(Views)]), true
	case key.Matches(msg, m.keys.PrevView):
		return m.mount(Views[(int(m.view)+len(Views)-1)%len(Views)]), true
	case key.Matches(msg, m.keys.Refresh):
		m.b.Refresh(m.view.Keys()...)
		return nil, true
	case key.Matches(msg, m.keys.RefreshAll):
		m.b.RefreshAll()
		return nil, true
	case key.Matches(msg, m.keys.Scan):
		return m.dispatch(mutation.KindScan), true
	case key.Matches(msg, m.keys.Build):
		return m.dispatch(mutation.KindBuild), true
	case key.Matches(msg, m.keys.Validate):
		return m.dispatch(mutation.KindValidate), true
	case key.Matches(msg, m.keys.Coverage):
		return m.dispatch(mutation.KindCoverage), true
	case key.Matches(msg, m.keys.Export):
		return m.dispatch(mutation.KindExport), true
	case key.Matches(msg, m.keys.Tour):
		m.b.Tour().Start()
		return m.followTour(), true
	case key.Matches(msg, m.keys.Dark):
		m.dark = !m.dark
		_ = m.b.Prefs().Set(m.ctx, prefs.DarkMode, m.dark)
		m.refreshContent()
		return nil, true
	}

	switch m.view {
	case ViewGraph:
		switch {
		case key.Matches(msg, m.keys.Filter):
			m.cycleGraphFilter()
			return nil, true
		case key.Matches(msg, m.keys.Hover):
			m.hoverNext()
			return nil, true
		}
	case ViewEntities:
		switch {
		case key.Matches(msg, m.keys.TypeFilter):
			m.entityType = m.cycle(m.entityType, m.entityTypes())
			m.refreshContent()
			return nil, true
		case key.Matches(msg, m.keys.Source):
			m.entitySource = m.cycle(m.entitySource, m.entitySources())
			m.refreshContent()
			return nil, true
		case key.Matches(msg, m.keys.Search):
			m.searching = true
			cmd := m.search.Focus()
			m.refreshContent()
			return cmd, true
		case key.Matches(msg, m.keys.Down):
			m.moveCursor(1)
			return nil, true
		case key.Matches(msg, m.keys.Up):
			m.moveCursor(-1)
			return nil, true
		case key.Matches(msg, m.keys.Open):
			rows := m.entityRows()
			if len(rows) == 0 {
				return nil, true
			}
			m.detailID = rows[min(m.cursor, len(rows)-1)].ID
			return m.mount(m.view), true
		}
	}
	return nil, false
}

// handleSearchKey feeds the focused search bar. Enter submits, esc leaves
// the bar and keeps the previous query.
func (m *Model) handleSearchKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return tea.Quit, true
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		m.search.SetValue(m.searchQuery)
		m.refreshContent()
		return nil, true
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		m.searchQuery = strings.TrimSpace(m.search.Value())
		m.search.SetValue(m.searchQuery)
		m.cursor = 0
		return m.mount(m.view), true
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.refreshContent()
	return cmd, true
}

func (m *Model) handleTourKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.TourNext):
		m.b.Tour().Next()
		return m.followTour(), true
	case key.Matches(msg, m.keys.Dismiss):
		m.b.Tour().Skip()
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return tea.Quit, true
	}
	return nil, true
}

// anchorViews maps tour anchors to the view showing them. Anchors missing
// here are visible from every view.
var anchorViews = map[string]View{
	"health-score": ViewHealth,
	"view:graph":   ViewGraph,
	"search-bar":   ViewEntities,
}

// tourAnchor returns the anchor of the active tour step, or "".
func (m *Model) tourAnchor() string {
	step, ok := m.b.Tour().Current()
	if !ok {
		return ""
	}
	return step.Anchor
}

// followTour mounts the view holding the current step's anchor.
func (m *Model) followTour() tea.Cmd {
	v, ok := anchorViews[m.tourAnchor()]
	if !ok || v == m.view {
		m.refreshContent()
		return nil
	}
	return m.mount(v)
}

func (m *Model) handleOnboardingKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	var action browser.OnboardingAction
	switch {
	case key.Matches(msg, m.keys.Scan):
		action = browser.OnboardScan
	case key.Matches(msg, m.keys.Tour):
		action = browser.OnboardTour
	case key.Matches(msg, m.keys.Dismiss):
		action = browser.OnboardDismiss
	default:
		return nil, false
	}

	req, err := m.b.HandleOnboarding(m.ctx, action)
	m.onboarding = false
	m.onboardingHandled = true
	if action == browser.OnboardDismiss && err == nil {
		m.dismissed = true
	}
	m.refreshContent()
	if req != nil {
		return m.await(req), true
	}
	return nil, true
}

func (m *Model) dispatch(kind mutation.Kind) tea.Cmd {
	req, _ := m.b.Dispatch(m.ctx, kind)
	if req == nil {
		return nil
	}
	return m.await(req)
}

func (m *Model) await(req *mutation.Request) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		o, err := req.Wait(ctx)
		if err != nil {
			return nil
		}
		return actionDoneMsg{kind: req.Kind, outcome: o}
	}
}

// =============================================================================
// Graph and entity selection
// =============================================================================

func (m *Model) cycleGraphFilter() {
	engine := m.b.Graph()
	current := engine.Filter()
	next := graphview.FilterTypes[0]
	for i, t := range graphview.FilterTypes {
		if t == current {
			if i+1 == len(graphview.FilterTypes) {
				engine.ClearFilter()
				m.refreshContent()
				return
			}
			next = graphview.FilterTypes[i+1]
		}
	}
	_, _ = engine.ToggleFilter(next)
	m.hoverAt = -1
	engine.Unhover()
	m.refreshContent()
}

func (m *Model) hoverNext() {
	scene := m.b.Graph().Scene()
	if scene.Empty() {
		return
	}
	m.hoverAt = (m.hoverAt + 1) % len(scene.Nodes)
	m.b.Graph().Hover(scene.Nodes[m.hoverAt].ID)
	m.refreshContent()
}

func (m *Model) entityList() (*datatypes.EntityListResponse, bool) {
	snap, ok := m.snaps[datatypes.KeyEntities]
	if !ok || !snap.HasValue {
		return nil, false
	}
	list, ok := snap.Value.(*datatypes.EntityListResponse)
	return list, ok
}

// entityRows returns the rows the cursor moves over: search results while
// a search is active, otherwise the narrowed entity list.
func (m *Model) entityRows() []datatypes.EntitySummary {
	if m.searchQuery != "" {
		snap := m.snaps[m.b.SearchKey(m.searchQuery, 0)]
		res, ok := snap.Value.(*datatypes.SearchResponse)
		if !snap.HasValue || !ok {
			return nil
		}
		rows := make([]datatypes.EntitySummary, len(res.Results))
		for i, r := range res.Results {
			rows[i] = r.Entity
		}
		return rows
	}
	list, ok := m.entityList()
	if !ok {
		return nil
	}
	return list.Narrow(m.entityType, m.entitySource)
}

func (m *Model) moveCursor(delta int) {
	n := len(m.entityRows())
	m.cursor = max(0, min(n-1, m.cursor+delta))
	m.refreshContent()
}

func (m *Model) entityTypes() []string {
	list, ok := m.entityList()
	if !ok {
		return nil
	}
	out := make([]string, 0)
	for t := range list.CountByType() {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (m *Model) entitySources() []string {
	list, ok := m.entityList()
	if !ok {
		return nil
	}
	return list.Sources()
}

// cycle steps through "" then each option in turn.
func (m *Model) cycle(current string, options []string) string {
	if current == "" {
		if len(options) == 0 {
			return ""
		}
		return options[0]
	}
	for i, o := range options {
		if o == current && i+1 < len(options) {
			return options[i+1]
		}
	}
	return ""
}
