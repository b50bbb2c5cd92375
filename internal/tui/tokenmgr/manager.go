// Package tokenmgr is the interactive scope picker behind
// "hostdeck config token create" when no --scopes flag is given.
package tokenmgr

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hostdeck/internal/auth"
)

var (
	titleStyle      = lipgloss.NewStyle().MarginLeft(2)
	paginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle       = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	quitTextStyle   = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

type item struct {
	scope    string
	desc     string
	selected bool
}

func (i item) Title() string {
	check := "[ ]"
	if i.selected {
		check = "[x]"
	}
	return fmt.Sprintf("%s %s", check, i.scope)
}
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.scope }

// Model lets the operator tick the scopes of a new token.
type Model struct {
	list      list.Model
	cancelled bool
	done      bool
	scopes    []string
}

// New lists the scopes a token can carry. The workspace names only feed the
// descriptions; scopes are not per workspace.
func New(workspaces []string) Model {
	names := "every workspace"
	if len(workspaces) > 0 {
		names = strings.Join(workspaces, ", ")
	}
	var items []list.Item
	for _, sc := range auth.Catalog() {
		desc := sc.Summary
		if sc.Name == auth.ScopeWorkspaceRO {
			desc += " (" + names + ")"
		}
		items = append(items, item{scope: sc.Name, desc: desc})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select Scopes (Space to toggle, Enter to confirm)"
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle
	return Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancelled = true
			return m, tea.Quit

		case " ":
			if i, ok := m.list.SelectedItem().(item); ok {
				i.selected = !i.selected
				cmd := m.list.SetItem(m.list.Index(), i)
				return m, cmd
			}
			return m, nil

		case "enter":
			var picked []string
			for _, li := range m.list.Items() {
				if it, ok := li.(item); ok && it.selected {
					picked = append(picked, it.scope)
				}
			}
			m.scopes = auth.Reduce(picked)
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.cancelled {
		return quitTextStyle.Render("Cancelled.")
	}
	if m.done {
		return quitTextStyle.Render(fmt.Sprintf("Selected scopes: %s", strings.Join(m.scopes, ", ")))
	}
	return "\n" + m.list.View()
}

// Scopes returns the confirmed selection, or nil if the picker was cancelled.
func (m Model) Scopes() []string {
	if m.cancelled {
		return nil
	}
	return m.scopes
}

// Cancelled reports whether the operator quit without confirming.
func (m Model) Cancelled() bool { return m.cancelled }
