package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hostdeck/internal/document"
)

func (m Model) handleDocumentKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d := m.doc
	switch msg.String() {
	case "ctrl+s":
		m.busy++
		return m, saveCmd(m.ctx, m.c, d.ID, false)
	case "ctrl+o":
		m.busy++
		return m, saveCmd(m.ctx, m.c, d.ID, true)
	case "ctrl+e":
		if d.Kind != document.KindQuery {
			m.status = "only queries can be executed"
			return m, nil
		}
		m.busy++
		return m, executeCmd(m.ctx, m.c, d.ID)
	case "ctrl+g":
		if err := m.c.Revert(d.ID); err != nil {
			m.status = errorText(err)
		}
		cmd := m.sync()
		return m, cmd
	}

	if d.Loading {
		return m, nil
	}
	if d.Kind.Structured() {
		return m.handleFieldKey(msg)
	}

	var cmd tea.Cmd
	m.editor.Focus()
	m.editor, cmd = m.editor.Update(msg)
	if text := m.editor.Value(); text != d.Current.Text {
		if err := m.c.Edit(d.ID, document.Text(text)); err != nil {
			m.status = errorText(err)
		}
		sc := m.sync()
		return m, tea.Batch(cmd, sc)
	}
	return m, cmd
}

func (m Model) handleFieldKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	names := m.doc.Current.FieldNames()
	switch msg.String() {
	case "up", "k":
		if m.fieldCursor > 0 {
			m.fieldCursor--
		}
	case "down", "j":
		if m.fieldCursor < len(names)-1 {
			m.fieldCursor++
		}
	case "enter", "e":
		if m.fieldCursor >= len(names) {
			return m, nil
		}
		v, _ := m.doc.Current.Field(names[m.fieldCursor])
		return m.prompt(inputField, names[m.fieldCursor], fmt.Sprint(v))
	}
	return m, nil
}

// coerce parses s into the type of the field's current value so numeric and
// boolean fields keep their type after an edit.
func coerce(orig any, s string) any {
	s = strings.TrimSpace(s)
	switch orig.(type) {
	case bool:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	case int, int64:
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	case float64, float32:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// resultTable lays out a query result for the table widget. Columns share
// the available width evenly.
func resultTable(res *document.Result, width int) ([]table.Column, []table.Row) {
	if len(res.Columns) == 0 {
		return nil, nil
	}
	colWidth := max(6, (width-2)/len(res.Columns)-2)
	cols := make([]table.Column, len(res.Columns))
	for i, name := range res.Columns {
		cols[i] = table.Column{Title: name, Width: colWidth}
	}
	rows := make([]table.Row, len(res.Rows))
	for i, r := range res.Rows {
		row := make(table.Row, len(res.Columns))
		for j, name := range res.Columns {
			if v, ok := r[name]; ok && v != nil {
				row[j] = fmt.Sprint(v)
			} else {
				row[j] = "NULL"
			}
		}
		rows[i] = row
	}
	return cols, rows
}

func (m Model) renderDocument(width, height int) string {
	d := m.doc
	title := d.Label
	if d.IsDirty() {
		title += m.theme.Dirty.Render(" *")
	}
	head := m.theme.Title.Render(title)

	if d.Loading {
		return lipgloss.JoinVertical(lipgloss.Left, head, m.theme.Dim.Render("  loading..."))
	}

	if d.Kind.Structured() {
		return lipgloss.JoinVertical(lipgloss.Left, head, m.renderFields(width))
	}

	parts := []string{head, m.editor.View()}
	if d.Kind == document.KindQuery {
		parts = append(parts, m.renderResult(d.LastResult))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderFields(width int) string {
	names := m.doc.Current.FieldNames()
	if len(names) == 0 {
		return m.theme.Dim.Render("  (no fields)")
	}
	labelWidth := 0
	for _, n := range names {
		labelWidth = max(labelWidth, len(n))
	}
	changed := map[string]bool{}
	for _, n := range m.doc.Current.ChangedFields(m.doc.Original) {
		changed[n] = true
	}

	lines := make([]string, len(names))
	for i, n := range names {
		v, _ := m.doc.Current.Field(n)
		line := fmt.Sprintf("%-*s  %v", labelWidth, n, v)
		if width > 8 && len(line) > width-6 {
			line = line[:width-6]
		}
		if changed[n] {
			line += m.theme.Dirty.Render(" *")
		}
		if i == m.fieldCursor {
			lines[i] = m.theme.Selected.Render("> " + line)
		} else {
			lines[i] = "  " + line
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderResult(res *document.Result) string {
	switch {
	case res == nil:
		return m.theme.Dim.Render("ctrl+e runs the query")
	case res.Failed():
		return m.theme.Error.Render(res.Error)
	case len(res.Columns) == 0:
		msg := res.Message
		if msg == "" {
			msg = "query ran"
		}
		return m.theme.Info.Render(msg)
	}
	footer := m.theme.Dim.Render(fmt.Sprintf("%d row(s)", len(res.Rows)))
	return lipgloss.JoinVertical(lipgloss.Left, m.results.View(), footer)
}
