package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/mattjoyce/hostdeck/internal/state"
)

// Theme centralizes all styling for the workspace TUI.
type Theme struct {
	Name state.Theme

	// Notification levels
	Info  lipgloss.Style
	Error lipgloss.Style

	// UI elements
	Border      lipgloss.Style
	Title       lipgloss.Style
	Header      lipgloss.Style
	Dim         lipgloss.Style
	Highlight   lipgloss.Style
	Selected    lipgloss.Style
	ActiveTab   lipgloss.Style
	InactiveTab lipgloss.Style
	Dirty       lipgloss.Style
	Prompt      lipgloss.Style
}

// hasDarkBackground is replaced in tests.
var hasDarkBackground = termenv.HasDarkBackground

// NewTheme resolves the stored preference to a concrete palette. Auto asks
// the terminal for its background colour.
func NewTheme(pref state.Theme) Theme {
	if pref == state.ThemeLight || (pref == state.ThemeAuto && !hasDarkBackground()) {
		return newLightTheme()
	}
	return newDarkTheme()
}

func newDarkTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Name:  state.ThemeDark,
		Info:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Error: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Selected:  lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true),

		ActiveTab: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(purple).
			Padding(0, 1),
		InactiveTab: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Padding(0, 1),
		Dirty:       lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Prompt:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFF00")),
	}
}

func newLightTheme() Theme {
	purple := lipgloss.Color("#5A2FC2")

	return Theme{
		Name:  state.ThemeLight,
		Info:  lipgloss.NewStyle().Foreground(lipgloss.Color("#1A7F37")),
		Error: lipgloss.NewStyle().Foreground(lipgloss.Color("#CF222E")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1F2328")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0969DA")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#6E7781")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#9A6700")),
		Selected:  lipgloss.NewStyle().Foreground(lipgloss.Color("#8250DF")).Bold(true),

		ActiveTab: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(purple).
			Padding(0, 1),
		InactiveTab: lipgloss.NewStyle().Foreground(lipgloss.Color("#6E7781")).Padding(0, 1),
		Dirty:       lipgloss.NewStyle().Foreground(lipgloss.Color("#9A6700")),
		Prompt:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#BC4C00")),
	}
}

// nextTheme cycles dark, light, auto.
func nextTheme(t state.Theme) state.Theme {
	switch t {
	case state.ThemeDark:
		return state.ThemeLight
	case state.ThemeLight:
		return state.ThemeAuto
	}
	return state.ThemeDark
}
