// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux styles line-oriented command output.
//
// A Printer writes either plain text, for pipes and files, or text styled
// with the SpecSync palette, for terminals. Plain output never contains
// escape sequences or icons, so it is safe to parse.
package ux

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette.
var (
	ColorAccent  = lipgloss.Color("#8B5CF6")
	ColorSuccess = lipgloss.Color("#10B981")
	ColorWarning = lipgloss.Color("#F59E0B")
	ColorError   = lipgloss.Color("#EF4444")
	ColorMuted   = lipgloss.Color("#64748B")
)

// Styles are the shared text styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
}

// Icon is a status glyph shown in styled mode.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Render returns the icon in its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return Styles.Muted.Render(string(i))
	}
}

// Mode selects how a Printer decorates output.
type Mode int

const (
	// ModePlain writes undecorated text.
	ModePlain Mode = iota

	// ModeStyled adds colors and icons.
	ModeStyled
)

// DetectMode returns ModeStyled when w is a terminal and NO_COLOR is unset.
func DetectMode(w io.Writer) Mode {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	fd := f.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return ModeStyled
	}
	return ModePlain
}

// Printer writes whole lines to w.
//
// # Thread Safety
//
// Safe for concurrent use; each call writes one complete line.
type Printer struct {
	mu     *sync.Mutex
	w      io.Writer
	mode   Mode
	prefix func() string
}

// NewPrinter creates a printer for w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{mu: &sync.Mutex{}, w: w, mode: mode}
}

// WithPrefix returns a printer sharing w whose lines start with prefix().
// Used for timestamps.
func (p *Printer) WithPrefix(prefix func() string) *Printer {
	return &Printer{mu: p.mu, w: p.w, mode: p.mode, prefix: prefix}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

func (p *Printer) line(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prefix != nil {
		pre := p.prefix()
		if p.mode == ModeStyled {
			pre = Styles.Muted.Render(pre)
		}
		text = pre + "  " + text
	}
	fmt.Fprintln(p.w, text)
}

func (p *Printer) decorated(icon Icon, style lipgloss.Style, text string) {
	if p.mode == ModeStyled {
		p.line(icon.Render() + " " + style.Render(text))
		return
	}
	p.line(text)
}

// Printf writes a formatted line as is.
func (p *Printer) Printf(format string, args ...any) {
	p.line(fmt.Sprintf(format, args...))
}

// Title writes a heading.
func (p *Printer) Title(text string) {
	if p.mode == ModeStyled {
		text = Styles.Title.Render(text)
	}
	p.line(text)
}

// Success writes a success line.
func (p *Printer) Success(text string) {
	p.decorated(IconSuccess, Styles.Success, text)
}

// Warning writes a warning line.
func (p *Printer) Warning(text string) {
	p.decorated(IconWarning, Styles.Warning, text)
}

// Error writes an error line.
func (p *Printer) Error(text string) {
	p.decorated(IconError, Styles.Error, text)
}

// Muted writes secondary text.
func (p *Printer) Muted(text string) {
	if p.mode == ModeStyled {
		text = Styles.Muted.Render(text)
	}
	p.line(text)
}

// KeyValue writes an indented "key: value" line.
func (p *Printer) KeyValue(key string, value any) {
	if p.mode == ModeStyled {
		p.line(fmt.Sprintf("  %s %v", Styles.Muted.Render(key+":"), value))
		return
	}
	p.line(fmt.Sprintf("  %s: %v", key, value))
}
