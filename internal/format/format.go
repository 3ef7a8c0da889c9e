// Package format renders the tool's tabular output: box-drawing tables for
// the terminal and pipe tables for Markdown report files, both filled through
// one builder.
package format

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// Mode selects the rendering target.
type Mode int

const (
	// ASCII renders fixed-width tables for terminals.
	ASCII Mode = iota
	// Markdown renders GitHub-flavoured pipe tables for report files.
	Markdown
)

// Table accumulates header, rows, and an optional footer, then renders them
// in the Mode it was created with.
type Table struct {
	w    table.Writer
	mode Mode
}

// NewTable returns an empty table rendering in mode.
func NewTable(mode Mode) *Table {
	w := table.NewWriter()
	if mode == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return &Table{w: w, mode: mode}
}

// Header sets the column headers.
func (t *Table) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	t.w.AppendHeader(row)
}

// Row appends one data row. Values render via fmt.Sprint.
func (t *Table) Row(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	t.w.AppendRow(row)
}

// Footer appends a footer row, typically totals.
func (t *Table) Footer(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	t.w.AppendFooter(row)
}

// MaxColumnWidth wraps content in the 1-based column beyond width runes.
func (t *Table) MaxColumnWidth(column, width int) {
	t.w.SetColumnConfigs([]table.ColumnConfig{{Number: column, WidthMax: width}})
}

// String renders the table.
func (t *Table) String() string {
	if t.mode == Markdown {
		return t.w.RenderMarkdown()
	}
	return t.w.Render()
}

// Truncate shortens s to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
