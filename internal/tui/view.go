package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/events"
	"github.com/mattjoyce/hostdeck/internal/tabs"
)

const sidebarWidth = 26

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()
	w, h := m.mainSize()

	var main string
	if m.hasDoc {
		main = m.renderDocument(w, h)
	} else {
		main = m.renderBrowse(w, h)
	}
	main = m.theme.Border.Width(w).Height(h).Render(main)

	body := main
	if m.sidebar {
		side := m.theme.Border.Width(sidebarWidth - 2).Height(h).Render(m.renderSidebar())
		body = lipgloss.JoinHorizontal(lipgloss.Top, side, main)
	}

	parts := []string{header, body}
	if notes := m.renderNotes(); notes != "" {
		parts = append(parts, notes)
	}
	parts = append(parts, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// mainSize is the inner size of the active pane.
func (m Model) mainSize() (int, int) {
	w := m.width - 2
	if m.sidebar {
		w -= sidebarWidth + 2
	}
	// header, footer, notes and the pane border
	h := m.height - 2 - 2 - len(m.notes)
	return max(10, w), max(3, h)
}

func (m Model) renderHeader() string {
	name := m.theme.Header.Render(m.c.Name())
	var strip []string
	for _, t := range m.tabs.Tabs {
		label := tabLabel(t.Label, 18)
		if t.Dirty {
			label += "*"
		}
		if t.ID == m.tabs.Active {
			strip = append(strip, m.theme.ActiveTab.Render(label))
		} else {
			strip = append(strip, m.theme.InactiveTab.Render(label))
		}
	}
	line := name + "  " + strings.Join(strip, " ")
	if m.busy > 0 {
		line += "  " + m.theme.Highlight.Render("working...")
	}
	return line
}

func (m Model) renderSidebar() string {
	lines := []string{m.theme.Header.Render("Tabs")}
	for i, t := range m.tabs.Tabs {
		icon := "d"
		if t.Kind == tabs.KindBrowse {
			icon = "b"
		}
		label := fmt.Sprintf("%d %s %s", i+1, icon, tabLabel(t.Label, sidebarWidth-8))
		if t.Dirty {
			label += m.theme.Dirty.Render("*")
		}
		if t.ID == m.tabs.Active {
			label = m.theme.Selected.Render(label)
		}
		lines = append(lines, label)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderNotes() string {
	if len(m.notes) == 0 {
		return ""
	}
	lines := make([]string, len(m.notes))
	for i, n := range m.notes {
		style := m.theme.Info
		if n.Level == events.LevelError {
			style = m.theme.Error
		}
		text := n.Message
		if n.Operation != "" {
			text = n.Operation + ": " + text
		}
		if n.Transport {
			text += " (panel unreachable)"
		}
		lines[i] = style.Render(text)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	switch m.mode {
	case modeConfirm:
		return m.theme.Prompt.Render(m.confirm.prompt + " [y/N]")
	case modeInput:
		return m.theme.Prompt.Render(m.input.Placeholder+": ") + m.input.View()
	}
	if m.status != "" {
		return m.status
	}
	return m.theme.Dim.Render(m.helpLine())
}

func (m Model) helpLine() string {
	common := "tab next  ctrl+w close  ctrl+n new  ctrl+b sidebar  ctrl+t theme  ctrl+c quit"
	if !m.hasDoc {
		return "enter open  o new tab  h up  / filter  n file  N folder  d delete  space toggle  " + common
	}
	if m.doc.Kind.Structured() {
		return "j/k move  enter edit  ctrl+s save  ctrl+o save+close  ctrl+g revert  " + common
	}
	if m.doc.Kind == document.KindQuery {
		return "ctrl+e run  ctrl+s save  ctrl+g revert  " + common
	}
	return "ctrl+s save  ctrl+o save+close  ctrl+g revert  " + common
}

func tabLabel(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
