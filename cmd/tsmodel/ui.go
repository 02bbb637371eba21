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
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// ui renders terminal output. Styles are plain unless w is a terminal
// and NO_COLOR is unset.
type ui struct {
	w       io.Writer
	heading lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	error   lipgloss.Style
	dim     lipgloss.Style
	label   lipgloss.Style
}

func newUI(w io.Writer) *ui {
	u := &ui{
		w:       w,
		heading: lipgloss.NewStyle(),
		ok:      lipgloss.NewStyle(),
		warn:    lipgloss.NewStyle(),
		error:   lipgloss.NewStyle(),
		dim:     lipgloss.NewStyle(),
		label:   lipgloss.NewStyle(),
	}
	if !colorEnabled(w) {
		return u
	}
	u.heading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#326CE5"))
	u.ok = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	u.warn = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	u.error = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	u.dim = lipgloss.NewStyle().Faint(true)
	u.label = lipgloss.NewStyle().Width(14)
	return u
}

func colorEnabled(w io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (u *ui) headingf(format string, args ...any) {
	fmt.Fprintln(u.w, u.heading.Render(fmt.Sprintf(format, args...)))
}

func (u *ui) field(name string, value any) {
	fmt.Fprintf(u.w, "  %s %v\n", u.label.Render(name+":"), value)
}

func (u *ui) okf(format string, args ...any) {
	fmt.Fprintln(u.w, u.ok.Render("✓")+" "+fmt.Sprintf(format, args...))
}

func (u *ui) warnf(format string, args ...any) {
	fmt.Fprintln(u.w, u.warn.Render("warning:")+" "+fmt.Sprintf(format, args...))
}

func (u *ui) failf(format string, args ...any) {
	fmt.Fprintln(u.w, u.error.Render("✗")+" "+fmt.Sprintf(format, args...))
}

func (u *ui) list(items []string) {
	for _, item := range items {
		fmt.Fprintln(u.w, "    "+u.dim.Render("-")+" "+item)
	}
}

// table prints rows with columns padded to the widest cell.
func (u *ui) table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}
	line := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = cell + strings.Repeat(" ", widths[i]-len(cell))
		}
		fmt.Fprintln(u.w, style.Render(strings.TrimRight(strings.Join(parts, "  "), " ")))
	}
	line(header, u.heading)
	for _, row := range rows {
		line(row, lipgloss.NewStyle())
	}
}
