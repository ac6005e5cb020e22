// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors use ANSI 256-color codes for broad terminal compatibility.
const (
	colorGood  = lipgloss.Color("2")
	colorBad   = lipgloss.Color("1")
	colorFaint = lipgloss.Color("245")
)

// Table renders aligned text columns. Headers are bold and status
// cells colored when the writer is a color terminal; otherwise the
// output is plain text.
type Table struct {
	writer   io.Writer
	renderer *lipgloss.Renderer
	headers  []string
	rows     [][]string
}

// NewTable creates a table written to w by [Table.Flush].
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{writer: w, renderer: lipgloss.NewRenderer(w), headers: headers}
}

// Row appends a row. Missing cells render empty.
func (t *Table) Row(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Good styles text as a healthy or allowed state.
func (t *Table) Good(text string) string {
	return t.renderer.NewStyle().Foreground(colorGood).Render(text)
}

// Bad styles text as a failed or denied state.
func (t *Table) Bad(text string) string {
	return t.renderer.NewStyle().Foreground(colorBad).Render(text)
}

// Faint styles secondary text.
func (t *Table) Faint(text string) string {
	return t.renderer.NewStyle().Foreground(colorFaint).Render(text)
}

// Flush writes the table.
func (t *Table) Flush() error {
	widths := make([]int, len(t.headers))
	for column, header := range t.headers {
		widths[column] = lipgloss.Width(header)
	}
	for _, row := range t.rows {
		for column, cell := range row {
			if column < len(widths) {
				widths[column] = max(widths[column], lipgloss.Width(cell))
			}
		}
	}

	header := t.renderer.NewStyle().Bold(true)
	styled := make([]string, len(t.headers))
	for column, text := range t.headers {
		styled[column] = header.Render(text)
	}
	if err := t.writeLine(styled, widths); err != nil {
		return err
	}
	for _, row := range t.rows {
		if err := t.writeLine(row, widths); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) writeLine(cells []string, widths []int) error {
	var line strings.Builder
	for column := range widths {
		cell := ""
		if column < len(cells) {
			cell = cells[column]
		}
		line.WriteString(cell)
		if column < len(widths)-1 {
			line.WriteString(strings.Repeat(" ", widths[column]-lipgloss.Width(cell)+3))
		}
	}
	_, err := fmt.Fprintln(t.writer, strings.TrimRight(line.String(), " "))
	return err
}
