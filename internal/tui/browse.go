package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hostdeck/internal/browse"
	"github.com/mattjoyce/hostdeck/internal/gateway"
)

func (m Model) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	t, ok := m.activeTab()
	if !ok {
		return m, nil
	}

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "enter", "right", "l", "o":
		e, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.busy++
		return m, navigateCmd(m.ctx, m.c, t.ID, e, msg.String() == "o")
	case "backspace", "left", "h":
		return m, upCmd(m.c, t.ID)
	case "/":
		v, err := m.c.View(t.ID)
		if err != nil {
			m.status = errorText(err)
			return m, nil
		}
		return m.prompt(inputFilter, "filter", v.Filter)
	case "n":
		return m.prompt(inputNewFile, "new file name", "")
	case "N":
		return m.prompt(inputNewFolder, "new folder name", "")
	case "d":
		e, ok := m.selected()
		if !ok {
			return m, nil
		}
		mut := gateway.Mutation{Action: gateway.ActionDelete, Name: e.Name, Target: e.Path}
		return m.ask(fmt.Sprintf("Delete %s?", e.Name), mutateCmd(m.ctx, m.c, t.ID, mut)), nil
	case " ":
		e, ok := m.selected()
		if !ok || e.Enabled == nil {
			return m, nil
		}
		m.busy++
		return m, toggleCmd(m.ctx, m.c, t.ID, e.Name, !*e.Enabled)
	}
	return m, nil
}

func (m Model) selected() (browse.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return browse.Entry{}, false
	}
	return m.entries[m.cursor], true
}

func (m Model) renderBrowse(width, height int) string {
	t, _ := m.activeTab()
	title := m.theme.Title.Render(t.Location)
	if title == "" || t.Location == "" {
		title = m.theme.Title.Render(t.Label)
	}

	if len(m.entries) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, m.theme.Dim.Render("  (empty)"))
	}

	// Keep the cursor on screen.
	rows := max(1, height-1)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := min(len(m.entries), start+rows)

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		line := formatEntry(m.entries[i], width-4)
		if i == m.cursor {
			lines = append(lines, m.theme.Selected.Render("> "+line))
			continue
		}
		if e := m.entries[i]; e.Enabled != nil && !*e.Enabled {
			lines = append(lines, m.theme.Dim.Render("  "+line))
			continue
		}
		lines = append(lines, "  "+line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"))
}

func formatEntry(e browse.Entry, width int) string {
	name := e.Name
	if e.IsContainer() {
		name += "/"
	}
	var info []string
	if e.Size != nil {
		info = append(info, humanSize(*e.Size))
	}
	if e.Modified != nil {
		info = append(info, e.Modified.Format("2006-01-02 15:04"))
	}
	if e.Enabled != nil {
		if *e.Enabled {
			info = append(info, "on")
		} else {
			info = append(info, "off")
		}
	}
	if summary := entrySummary(e); summary != "" {
		info = append(info, summary)
	}
	right := strings.Join(info, "  ")
	pad := width - lipgloss.Width(name) - lipgloss.Width(right)
	if pad < 2 {
		pad = 2
	}
	return name + strings.Repeat(" ", pad) + right
}

// entrySummary picks a short description out of an entry's metadata.
func entrySummary(e browse.Entry) string {
	for _, key := range []string{"schedule", "type", "content"} {
		if s, ok := e.Meta[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
