package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hostdeck/internal/config"
	"github.com/mattjoyce/hostdeck/internal/events"
	"github.com/mattjoyce/hostdeck/internal/panelapi"
	"github.com/mattjoyce/hostdeck/internal/paneltest"
	"github.com/mattjoyce/hostdeck/internal/state"
	"github.com/mattjoyce/hostdeck/internal/storage"
	"github.com/mattjoyce/hostdeck/internal/tabs"
	"github.com/mattjoyce/hostdeck/internal/workspace"
)

func newTestModel(t *testing.T, ws config.WorkspaceConfig, opts Options) (Model, *workspace.Controller, *paneltest.Server) {
	t.Helper()
	panel := paneltest.New(t)
	client := panelapi.New(panel.URL, panel.APIKey, 5*time.Second, nil)
	cfg := &config.Config{Workspaces: map[string]config.WorkspaceConfig{"site": ws}}
	set, err := workspace.OpenSet(cfg, client, workspace.SetOptions{})
	require.NoError(t, err)
	c, ok := set.Get("site")
	require.True(t, ok)

	m := New(context.Background(), c, opts)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = drive(t, next, m.Init())
	return m, c, panel
}

// drive runs cmd and every command it leads to, feeding each message back
// into the model until nothing is left.
func drive(t *testing.T, m tea.Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 200 {
			t.Fatalf("commands did not settle")
		}
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil, tea.QuitMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			var next tea.Cmd
			m, next = m.Update(msg)
			queue = append(queue, next)
		}
	}
	return m.(Model)
}

var specialKeys = map[string]tea.KeyType{
	"enter":     tea.KeyEnter,
	"esc":       tea.KeyEsc,
	"tab":       tea.KeyTab,
	"backspace": tea.KeyBackspace,
	"up":        tea.KeyUp,
	"down":      tea.KeyDown,
	"ctrl+b":    tea.KeyCtrlB,
	"ctrl+c":    tea.KeyCtrlC,
	"ctrl+e":    tea.KeyCtrlE,
	"ctrl+g":    tea.KeyCtrlG,
	"ctrl+n":    tea.KeyCtrlN,
	"ctrl+o":    tea.KeyCtrlO,
	"ctrl+s":    tea.KeyCtrlS,
	"ctrl+t":    tea.KeyCtrlT,
	"ctrl+w":    tea.KeyCtrlW,
}

// press sends each key in turn. Anything that is not a named key is typed
// as runes.
func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		if kt, ok := specialKeys[k]; ok {
			msg = tea.KeyMsg{Type: kt}
		}
		next, cmd := m.Update(msg)
		m = drive(t, next, cmd)
	}
	return m
}

func entryNames(m Model) []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Name
	}
	return out
}

func filesWorkspace() config.WorkspaceConfig {
	return config.WorkspaceConfig{Kind: config.KindFiles, Root: "/"}
}

func TestInitListsDefaultView(t *testing.T) {
	m, _, _ := newTestModel(t, filesWorkspace(), Options{})

	assert.Equal(t, []string{"wp-content", "index.php", "wp-config.php"}, entryNames(m))
	assert.False(t, m.hasDoc)
	out := m.View()
	assert.Contains(t, out, "wp-content/")
	assert.Contains(t, out, "index.php")
}

func TestOpenEditAndConfirmClose(t *testing.T) {
	m, c, _ := newTestModel(t, filesWorkspace(), Options{})

	m = press(t, m, "down", "enter")
	require.True(t, m.hasDoc)
	assert.Equal(t, "index.php", m.doc.Label)
	assert.Equal(t, "<?php require 'wp-blog-header.php';", m.editor.Value())

	m = press(t, m, "x")
	doc, err := c.Document(m.doc.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(doc.Current.Text, "x"))
	assert.True(t, doc.IsDirty())

	m = press(t, m, "ctrl+w")
	assert.Equal(t, modeConfirm, m.mode)
	assert.Contains(t, m.View(), "Discard unsaved changes to index.php?")

	m = press(t, m, "n")
	assert.Equal(t, modeNormal, m.mode)
	assert.Len(t, c.Tabs().Tabs, 2)

	m = press(t, m, "ctrl+w", "y")
	assert.Len(t, c.Tabs().Tabs, 1)
	assert.False(t, m.hasDoc)
}

func TestSaveWritesThroughToPanel(t *testing.T) {
	m, c, panel := newTestModel(t, filesWorkspace(), Options{})

	m = press(t, m, "down", "enter", "!", "ctrl+s")
	content, ok := panel.File("/index.php")
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(content, "!"))

	doc, err := c.Document(m.doc.ID)
	require.NoError(t, err)
	assert.False(t, doc.IsDirty())
	assert.Equal(t, 0, m.busy)
}

func TestSaveFailureKeepsEdits(t *testing.T) {
	m, c, panel := newTestModel(t, filesWorkspace(), Options{})
	panel.Fail("PUT /api/files/content", paneltest.Failure{Status: 500, Message: "disk full"})

	m = press(t, m, "down", "enter", "!", "ctrl+s")
	assert.Contains(t, m.status, "disk full")
	doc, err := c.Document(m.doc.ID)
	require.NoError(t, err)
	assert.True(t, doc.IsDirty())
}

func TestNavigateIntoDirectoryAndUp(t *testing.T) {
	m, _, _ := newTestModel(t, filesWorkspace(), Options{})

	m = press(t, m, "enter")
	assert.Equal(t, []string{"plugins"}, entryNames(m))

	m = press(t, m, "backspace")
	assert.Equal(t, []string{"wp-content", "index.php", "wp-config.php"}, entryNames(m))
}

func TestOpenDirectoryInNewTab(t *testing.T) {
	m, c, _ := newTestModel(t, filesWorkspace(), Options{})

	m = press(t, m, "o")
	snap := c.Tabs()
	require.Len(t, snap.Tabs, 2)
	assert.Equal(t, "/wp-content", snap.Tabs[1].Location)
	assert.Equal(t, []string{"plugins"}, entryNames(m))

	m = press(t, m, "tab")
	assert.Equal(t, snap.Tabs[0].ID, m.tabs.Active)
	assert.Len(t, m.entries, 3)
}

func TestFilterPrompt(t *testing.T) {
	m, _, _ := newTestModel(t, filesWorkspace(), Options{})

	m = press(t, m, "/")
	require.Equal(t, modeInput, m.mode)
	m = press(t, m, "w", "p")
	assert.Equal(t, []string{"wp-content", "wp-config.php"}, entryNames(m))

	m = press(t, m, "enter")
	assert.Equal(t, modeNormal, m.mode)
	assert.Len(t, m.entries, 2)

	m = press(t, m, "/", "esc")
	assert.Len(t, m.entries, 3)
}

func TestCreateAndDeleteFile(t *testing.T) {
	m, _, panel := newTestModel(t, filesWorkspace(), Options{})

	m = press(t, m, "n", "a", ".", "t", "x", "t", "enter")
	_, ok := panel.File("/a.txt")
	require.True(t, ok)
	assert.Contains(t, entryNames(m), "a.txt")

	for i, e := range m.entries {
		if e.Name == "a.txt" {
			m.cursor = i
		}
	}
	m = press(t, m, "d")
	assert.Contains(t, m.View(), "Delete a.txt?")
	m = press(t, m, "y")
	_, ok = panel.File("/a.txt")
	assert.False(t, ok)
	assert.NotContains(t, entryNames(m), "a.txt")
	assert.Equal(t, 0, m.busy)
}

func TestQueryExecuteShowsResults(t *testing.T) {
	m, _, _ := newTestModel(t, config.WorkspaceConfig{Kind: config.KindDatabase, Database: "wordpress", RowLimit: 10}, Options{})

	m = press(t, m, "ctrl+n")
	require.True(t, m.hasDoc)
	assert.Equal(t, "New Query 1", m.doc.Label)
	assert.Equal(t, "SELECT 1", m.editor.Value())

	m = press(t, m, "ctrl+e")
	require.NotNil(t, m.doc.LastResult)
	rows := m.results.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0][0])
	assert.Contains(t, m.View(), "1 row(s)")
}

func TestQuerySyntaxErrorIsShown(t *testing.T) {
	m, _, _ := newTestModel(t, config.WorkspaceConfig{Kind: config.KindDatabase, Database: "wordpress"}, Options{})

	m = press(t, m, "ctrl+n", "x", "ctrl+e")
	require.NotNil(t, m.doc.LastResult)
	assert.True(t, m.doc.LastResult.Failed())
	assert.Empty(t, m.results.Rows())
	assert.Contains(t, m.View(), "You have an error in your SQL syntax")
}

func TestExecuteOnFileIsRefused(t *testing.T) {
	m, _, _ := newTestModel(t, filesWorkspace(), Options{})

	m = press(t, m, "down", "enter", "ctrl+e")
	assert.Equal(t, "only queries can be executed", m.status)
	assert.Equal(t, 0, m.busy)
}

func TestCronFieldEditAndSave(t *testing.T) {
	m, _, panel := newTestModel(t, config.WorkspaceConfig{Kind: config.KindCron}, Options{})
	require.Equal(t, []string{"cron-1"}, entryNames(m))

	m = press(t, m, "enter")
	require.True(t, m.hasDoc)
	// command, comment, enabled, schedule
	m = press(t, m, "down", "down", "down", "enter")
	require.Equal(t, modeInput, m.mode)
	assert.Equal(t, "*/5 * * * *", m.input.Value())

	m.input.SetValue("0 3 * * *")
	m = press(t, m, "enter")
	assert.True(t, m.doc.IsDirty())
	assert.Contains(t, m.View(), "0 3 * * *")

	m = press(t, m, "ctrl+s")
	assert.Equal(t, "0 3 * * *", panel.CronJobs()[0].Schedule)
	assert.False(t, m.doc.IsDirty())
}

func TestToggleCronEntry(t *testing.T) {
	m, _, panel := newTestModel(t, config.WorkspaceConfig{Kind: config.KindCron}, Options{})

	m = press(t, m, " ")
	assert.False(t, panel.CronJobs()[0].Enabled)
	require.Len(t, m.entries, 1)
	require.NotNil(t, m.entries[0].Enabled)
	assert.False(t, *m.entries[0].Enabled)
}

func TestQuitAsksWhenTabsAreDirty(t *testing.T) {
	m, _, _ := newTestModel(t, filesWorkspace(), Options{})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	m = press(t, m, "down", "enter", "x", "ctrl+c")
	assert.Equal(t, modeConfirm, m.mode)
	assert.Contains(t, m.View(), "Discard 1 unsaved tab(s) and quit?")
}

func TestEventsUpdateNotesAndListings(t *testing.T) {
	m, c, _ := newTestModel(t, filesWorkspace(), Options{})
	hub := events.NewHub(10)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(events.TypeNotification, events.Notification{Workspace: "other", Level: events.LevelError, Message: "ignored"})
	hub.Publish(events.TypeNotification, events.Notification{Workspace: "site", Level: events.LevelError, Operation: "save index.php", Message: "disk full"})
	hub.Publish(events.TypeViewStale, events.Stale{Workspace: "site", Views: []string{c.DefaultView()}})

	for range 3 {
		next, cmd := m.Update(eventMsg(<-ch))
		m = drive(t, next, cmd)
	}

	require.Len(t, m.notes, 1)
	assert.Contains(t, m.View(), "save index.php: disk full")
	assert.Len(t, m.entries, 3)
}

func TestNotesAreCapped(t *testing.T) {
	m, _, _ := newTestModel(t, filesWorkspace(), Options{})
	hub := events.NewHub(20)
	ch, cancel := hub.Subscribe()
	defer cancel()

	for range maxNotes + 3 {
		hub.Publish(events.TypeNotification, events.Notification{Workspace: "site", Level: events.LevelInfo, Message: "saved"})
		next, _ := m.Update(eventMsg(<-ch))
		m = next.(Model)
	}
	assert.Len(t, m.notes, maxNotes)
}

func TestThemeAndSidebarArePersisted(t *testing.T) {
	prev := hasDarkBackground
	hasDarkBackground = func() bool { return false }
	t.Cleanup(func() { hasDarkBackground = prev })

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "hostdeck.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	prefs, err := state.LoadPreferences(context.Background(), state.NewStore(db))
	require.NoError(t, err)

	m, _, _ := newTestModel(t, filesWorkspace(), Options{Preferences: prefs})
	assert.Equal(t, state.ThemeLight, m.theme.Name)
	assert.True(t, m.sidebar)

	m = press(t, m, "ctrl+t")
	assert.Equal(t, state.ThemeDark, m.theme.Name)
	assert.Equal(t, state.ThemeDark, prefs.Theme())

	m = press(t, m, "ctrl+t")
	assert.Equal(t, state.ThemeLight, prefs.Theme())

	m = press(t, m, "ctrl+b")
	assert.False(t, m.sidebar)
	assert.False(t, prefs.SidebarOpen())

	reloaded, err := state.LoadPreferences(context.Background(), state.NewStore(db))
	require.NoError(t, err)
	assert.Equal(t, state.ThemeLight, reloaded.Theme())
	assert.False(t, reloaded.SidebarOpen())
}

func TestNewDocumentTabKinds(t *testing.T) {
	m, _, _ := newTestModel(t, filesWorkspace(), Options{})

	m = press(t, m, "ctrl+n")
	require.Len(t, m.tabs.Tabs, 2)
	assert.Equal(t, tabs.KindDocument, m.tabs.Tabs[1].Kind)
	assert.Equal(t, m.tabs.Tabs[1].ID, m.tabs.Active)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		orig any
		in   string
		want any
	}{
		{true, "false", false},
		{true, "nope", "nope"},
		{float64(1), "300", float64(300)},
		{3, "7", 7},
		{"a", " b ", "b"},
		{nil, "x", "x"},
	}
	for _, tt := range tests {
		if got := coerce(tt.orig, tt.in); got != tt.want {
			t.Fatalf("coerce(%v, %q) = %#v, want %#v", tt.orig, tt.in, got, tt.want)
		}
	}
}

func TestHumanSize(t *testing.T) {
	for n, want := range map[int64]string{0: "0 B", 1023: "1023 B", 1536: "1.5 KiB", 5 << 20: "5.0 MiB"} {
		if got := humanSize(n); got != want {
			t.Fatalf("humanSize(%d) = %q, want %q", n, got, want)
		}
	}
}
