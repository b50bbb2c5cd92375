// Package tui implements the terminal UI of one hostdeck workspace: a tab
// strip, browse listings, a text editor, a field form and query results.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/hostdeck/internal/browse"
	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/events"
	"github.com/mattjoyce/hostdeck/internal/gateway"
	"github.com/mattjoyce/hostdeck/internal/state"
	"github.com/mattjoyce/hostdeck/internal/tabs"
	"github.com/mattjoyce/hostdeck/internal/workspace"
)

// Preferences is the persisted UI state the model reads and writes.
type Preferences interface {
	Theme() state.Theme
	SetTheme(ctx context.Context, t state.Theme) error
	SidebarOpen() bool
	ToggleSidebar(ctx context.Context) (bool, error)
}

type mode int

const (
	modeNormal mode = iota
	modeInput
	modeConfirm
)

type inputPurpose int

const (
	inputFilter inputPurpose = iota
	inputNewFile
	inputNewFolder
	inputField
)

type confirmation struct {
	prompt string
	yes    tea.Cmd
}

const maxNotes = 5

// Options configures New.
type Options struct {
	// Preferences may be nil; the defaults are then used and nothing is
	// persisted.
	Preferences Preferences
	// Events is a subscription to the hub the controller publishes to.
	Events <-chan events.Event
	// Restore reopens the entity last selected in the workspace.
	Restore *document.Ref
}

// Model is the BubbleTea model of one workspace.
type Model struct {
	ctx    context.Context
	c      *workspace.Controller
	prefs  Preferences
	events <-chan events.Event
	theme  Theme

	width  int
	height int

	tabs    workspace.Snapshot
	sidebar bool

	// Active browse view
	entries    []browse.Entry
	cursor     int
	listedView string
	listedLoc  string

	// Active document
	doc         document.Document
	hasDoc      bool
	editor      textarea.Model
	fieldCursor int
	results     table.Model

	mode    mode
	input   textinput.Model
	purpose inputPurpose
	confirm confirmation
	restore *document.Ref

	notes  []events.Notification
	status string
	busy   int
}

// New creates the model for c.
func New(ctx context.Context, c *workspace.Controller, opts Options) Model {
	themePref, sidebar := state.ThemeAuto, true
	if opts.Preferences != nil {
		themePref, sidebar = opts.Preferences.Theme(), opts.Preferences.SidebarOpen()
	}

	ed := textarea.New()
	ed.ShowLineNumbers = true
	ed.CharLimit = 0
	ed.Cursor.SetMode(cursor.CursorStatic)

	in := textinput.New()
	in.Cursor.SetMode(cursor.CursorStatic)

	m := Model{
		ctx:     ctx,
		c:       c,
		prefs:   opts.Preferences,
		events:  opts.Events,
		theme:   NewTheme(themePref),
		sidebar: sidebar,
		editor:  ed,
		input:   in,
		results: table.New(table.WithFocused(false)),
		restore: opts.Restore,
	}
	m.tabs = c.Tabs()
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		listCmd(m.ctx, m.c, m.c.DefaultView()),
		waitForEvent(m.events),
	}
	if m.restore != nil {
		cmds = append(cmds, openRefCmd(m.ctx, m.c, *m.restore))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case listedMsg:
		if msg.err != nil {
			m.status = errorText(msg.err)
			return m, nil
		}
		if t, ok := m.activeTab(); ok && t.ID == msg.view {
			m.entries = msg.entries
			m.listedView = msg.view
			m.listedLoc = t.Location
			m.cursor = clamp(m.cursor, len(m.entries))
		}
		return m, nil

	case openedMsg:
		m.busy = max(0, m.busy-1)
		if msg.err != nil {
			m.status = errorText(msg.err)
		}
		cmd := m.sync()
		return m, cmd

	case movedMsg:
		if msg.err != nil {
			m.status = errorText(msg.err)
		}
		m.cursor = 0
		cmd := m.sync()
		return m, cmd

	case savedMsg:
		m.busy = max(0, m.busy-1)
		switch {
		case msg.err != nil:
			m.status = errorText(msg.err)
		case msg.rec.Message != "":
			m.status = msg.rec.Message
		default:
			m.status = "saved"
		}
		cmd := m.sync()
		if msg.err == nil && msg.rec.Result != nil && m.hasDoc && m.doc.ID == msg.id {
			m.setResults(msg.rec.Result)
		}
		return m, cmd

	case executedMsg:
		m.busy = max(0, m.busy-1)
		if msg.err != nil {
			m.status = errorText(msg.err)
		}
		cmd := m.sync()
		if m.hasDoc && m.doc.ID == msg.id {
			m.setResults(msg.res)
		}
		return m, cmd

	case mutatedMsg:
		// Deletes are not counted; they run after a confirmation.
		m.busy = max(0, m.busy-1)
		if msg.err != nil {
			m.status = errorText(msg.err)
		} else if msg.message != "" {
			m.status = msg.message
		}
		cmd := m.sync()
		return m, tea.Batch(cmd, m.relist())

	case closedMsg:
		if msg.err != nil {
			m.status = errorText(msg.err)
		}
		cmd := m.sync()
		return m, cmd

	case prefsMsg:
		if msg.err != nil {
			m.status = "preference not saved: " + msg.err.Error()
		}
		return m, nil

	case eventMsg:
		cmd := m.handleEvent(events.Event(msg))
		return m, tea.Batch(cmd, waitForEvent(m.events))
	}

	return m, nil
}

func (m *Model) handleEvent(ev events.Event) tea.Cmd {
	switch ev.Type {
	case events.TypeNotification:
		n, err := events.Decode[events.Notification](ev)
		if err != nil || n.Workspace != m.c.Name() {
			return nil
		}
		m.notes = append(m.notes, n)
		if len(m.notes) > maxNotes {
			m.notes = m.notes[len(m.notes)-maxNotes:]
		}
	case events.TypeViewStale:
		s, err := events.Decode[events.Stale](ev)
		if err != nil || s.Workspace != m.c.Name() {
			return nil
		}
		if t, ok := m.activeTab(); ok {
			for _, id := range s.Views {
				if id == t.ID {
					return listCmd(m.ctx, m.c, id)
				}
			}
		}
	case events.TypeTabs:
		tc, err := events.Decode[events.TabsChanged](ev)
		if err != nil || tc.Workspace != m.c.Name() {
			return nil
		}
		return m.sync()
	}
	return nil
}

// sync pulls the tab strip and the active tab's state from the controller.
// It returns a listing command when the active view moved.
func (m *Model) sync() tea.Cmd {
	m.tabs = m.c.Tabs()
	t, ok := m.activeTab()
	if !ok {
		m.hasDoc = false
		return nil
	}

	if t.Kind == tabs.KindBrowse {
		m.hasDoc = false
		if t.ID != m.listedView || t.Location != m.listedLoc {
			m.entries = nil
			m.cursor = 0
			return listCmd(m.ctx, m.c, t.ID)
		}
		return nil
	}

	d, err := m.c.Document(t.ID)
	if err != nil {
		m.hasDoc = false
		return nil
	}
	switched := !m.hasDoc || m.doc.ID != d.ID
	m.doc, m.hasDoc = d, true
	if m.editor.Value() != d.Current.Text {
		m.editor.SetValue(d.Current.Text)
	}
	if switched {
		m.fieldCursor = 0
		m.setResults(d.LastResult)
	}
	m.fieldCursor = clamp(m.fieldCursor, len(d.Current.FieldNames()))
	return nil
}

func (m *Model) relist() tea.Cmd {
	if t, ok := m.activeTab(); ok && t.Kind == tabs.KindBrowse {
		return listCmd(m.ctx, m.c, t.ID)
	}
	return nil
}

func (m Model) activeTab() (workspace.Tab, bool) {
	for _, t := range m.tabs.Tabs {
		if t.ID == m.tabs.Active {
			return t, true
		}
	}
	return workspace.Tab{}, false
}

func (m Model) dirtyTabs() int {
	n := 0
	for _, t := range m.tabs.Tabs {
		if t.Dirty {
			n++
		}
	}
	return n
}

// handleKey routes a key press: a pending confirmation or prompt first, then
// workspace-wide bindings, then the active pane.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeConfirm:
		return m.handleConfirmKey(msg)
	case modeInput:
		return m.handleInputKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		if n := m.dirtyTabs(); n > 0 {
			return m.ask(fmt.Sprintf("Discard %d unsaved tab(s) and quit?", n), tea.Quit), nil
		}
		return m, tea.Quit
	case "tab":
		return m.cycle(1)
	case "shift+tab":
		return m.cycle(-1)
	case "ctrl+w":
		return m.closeActive()
	case "ctrl+n":
		view := ""
		if t, ok := m.activeTab(); ok && t.Kind == tabs.KindBrowse {
			view = t.ID
		}
		if _, err := m.c.NewDocument(view); err != nil {
			m.status = errorText(err)
		}
		cmd := m.sync()
		return m, cmd
	case "ctrl+b":
		m.sidebar = !m.sidebar
		m.layout()
		if m.prefs == nil {
			return m, nil
		}
		prefs, ctx := m.prefs, m.ctx
		return m, func() tea.Msg {
			_, err := prefs.ToggleSidebar(ctx)
			return prefsMsg{err: err}
		}
	case "ctrl+t":
		next := nextTheme(m.theme.Name)
		if m.prefs != nil {
			next = nextTheme(m.prefs.Theme())
		}
		m.theme = NewTheme(next)
		if m.prefs == nil {
			return m, nil
		}
		prefs, ctx := m.prefs, m.ctx
		return m, func() tea.Msg {
			return prefsMsg{err: prefs.SetTheme(ctx, next)}
		}
	}

	if m.hasDoc {
		return m.handleDocumentKey(msg)
	}
	return m.handleBrowseKey(msg)
}

func (m Model) cycle(step int) (tea.Model, tea.Cmd) {
	n := len(m.tabs.Tabs)
	if n < 2 {
		return m, nil
	}
	cur := 0
	for i, t := range m.tabs.Tabs {
		if t.ID == m.tabs.Active {
			cur = i
		}
	}
	next := m.tabs.Tabs[((cur+step)%n+n)%n]
	m.c.Focus(m.ctx, next.ID)
	cmd := m.sync()
	return m, cmd
}

func (m Model) closeActive() (tea.Model, tea.Cmd) {
	t, ok := m.activeTab()
	if !ok {
		return m, nil
	}
	if t.Dirty {
		return m.ask(fmt.Sprintf("Discard unsaved changes to %s?", t.Label), closeCmd(m.ctx, m.c, t.ID, true)), nil
	}
	return m, closeCmd(m.ctx, m.c, t.ID, false)
}

func (m Model) ask(prompt string, yes tea.Cmd) Model {
	m.mode = modeConfirm
	m.confirm = confirmation{prompt: prompt, yes: yes}
	return m
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		yes := m.confirm.yes
		m.mode = modeNormal
		m.confirm = confirmation{}
		return m, yes
	case "n", "N", "esc", "ctrl+c":
		m.mode = modeNormal
		m.confirm = confirmation{}
		m.status = "cancelled"
	}
	return m, nil
}

func (m Model) prompt(purpose inputPurpose, placeholder, value string) (tea.Model, tea.Cmd) {
	m.mode = modeInput
	m.purpose = purpose
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	cmd := m.input.Focus()
	return m, cmd
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNormal
		m.input.Blur()
		if m.purpose == inputFilter {
			return m.applyFilter("")
		}
		return m, nil
	case "enter":
		m.mode = modeNormal
		m.input.Blur()
		return m.commitInput(m.input.Value())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.purpose == inputFilter {
		next, lc := m.applyFilter(m.input.Value())
		return next, tea.Batch(cmd, lc)
	}
	return m, cmd
}

func (m Model) applyFilter(filter string) (tea.Model, tea.Cmd) {
	t, ok := m.activeTab()
	if !ok || t.Kind != tabs.KindBrowse {
		return m, nil
	}
	if err := m.c.SetFilter(t.ID, filter); err != nil {
		m.status = errorText(err)
		return m, nil
	}
	m.cursor = 0
	return m, listCmd(m.ctx, m.c, t.ID)
}

func (m Model) commitInput(value string) (tea.Model, tea.Cmd) {
	t, ok := m.activeTab()
	if !ok {
		return m, nil
	}
	switch m.purpose {
	case inputFilter:
		return m.applyFilter(value)
	case inputNewFile, inputNewFolder:
		action := gateway.ActionCreateFile
		if m.purpose == inputNewFolder {
			action = gateway.ActionCreateFolder
		}
		m.busy++
		return m, mutateCmd(m.ctx, m.c, t.ID, gateway.Mutation{Action: action, Name: value})
	case inputField:
		if !m.hasDoc {
			return m, nil
		}
		names := m.doc.Current.FieldNames()
		if m.fieldCursor >= len(names) {
			return m, nil
		}
		name := names[m.fieldCursor]
		orig, _ := m.doc.Current.Field(name)
		if err := m.c.SetField(m.doc.ID, name, coerce(orig, value)); err != nil {
			m.status = errorText(err)
		}
		cmd := m.sync()
		return m, cmd
	}
	return m, nil
}

func (m *Model) setResults(res *document.Result) {
	if res == nil || res.Failed() {
		m.results.SetRows(nil)
		m.results.SetColumns(nil)
		return
	}
	cols, rows := resultTable(res, m.width)
	// Rows must be cleared before columns shrink.
	m.results.SetRows(nil)
	m.results.SetColumns(cols)
	m.results.SetRows(rows)
}

func (m *Model) layout() {
	w, h := m.mainSize()
	m.editor.SetWidth(w)
	m.editor.SetHeight(max(3, h/2))
	m.results.SetWidth(w)
	m.results.SetHeight(max(3, h-h/2-2))
	m.input.Width = max(10, w-20)
}

func errorText(err error) string {
	switch {
	case errors.Is(err, workspace.ErrBusy):
		return "still working on this tab"
	case errors.Is(err, workspace.ErrDocumentClosed):
		return "tab was closed"
	case errors.Is(err, gateway.ErrUnsupported):
		return "not available in this workspace"
	}
	return gateway.Message(err, err.Error())
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
