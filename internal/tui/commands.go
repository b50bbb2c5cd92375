package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/hostdeck/internal/browse"
	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/events"
	"github.com/mattjoyce/hostdeck/internal/gateway"
	"github.com/mattjoyce/hostdeck/internal/workspace"
)

// Messages produced by controller calls. Every call runs as a tea.Cmd so
// the UI keeps drawing while the panel answers.
type (
	listedMsg struct {
		view    string
		entries []browse.Entry
		err     error
	}
	openedMsg struct {
		id  string
		err error
	}
	savedMsg struct {
		id     string
		closed bool
		rec    gateway.Receipt
		err    error
	}
	executedMsg struct {
		id  string
		res *document.Result
		err error
	}
	mutatedMsg struct {
		message string
		err     error
	}
	closedMsg struct {
		err error
	}
	movedMsg struct {
		view string
		err  error
	}
	prefsMsg struct {
		err error
	}
	eventMsg events.Event
)

func listCmd(ctx context.Context, c *workspace.Controller, viewID string) tea.Cmd {
	return func() tea.Msg {
		entries, err := c.Listing(ctx, viewID)
		return listedMsg{view: viewID, entries: entries, err: err}
	}
}

func navigateCmd(ctx context.Context, c *workspace.Controller, viewID string, e browse.Entry, newTab bool) tea.Cmd {
	return func() tea.Msg {
		var (
			id  string
			err error
		)
		if newTab {
			id, err = c.OpenInNewTab(ctx, viewID, e)
		} else {
			id, err = c.NavigateInto(ctx, viewID, e)
		}
		return openedMsg{id: id, err: err}
	}
}

func openRefCmd(ctx context.Context, c *workspace.Controller, ref document.Ref) tea.Cmd {
	return func() tea.Msg {
		id, err := c.OpenRef(ctx, ref)
		return openedMsg{id: id, err: err}
	}
}

func upCmd(c *workspace.Controller, viewID string) tea.Cmd {
	return func() tea.Msg {
		_, err := c.NavigateUp(viewID)
		return movedMsg{view: viewID, err: err}
	}
}

func saveCmd(ctx context.Context, c *workspace.Controller, id string, closeAfter bool) tea.Cmd {
	return func() tea.Msg {
		if closeAfter {
			rec, res, err := c.SaveAndClose(ctx, id)
			return savedMsg{id: id, rec: rec, closed: res.Closed, err: err}
		}
		rec, err := c.Save(ctx, id)
		return savedMsg{id: id, rec: rec, err: err}
	}
}

func executeCmd(ctx context.Context, c *workspace.Controller, id string) tea.Cmd {
	return func() tea.Msg {
		res, err := c.Execute(ctx, id)
		return executedMsg{id: id, res: res, err: err}
	}
}

func mutateCmd(ctx context.Context, c *workspace.Controller, viewID string, m gateway.Mutation) tea.Cmd {
	return func() tea.Msg {
		msg, err := c.Mutate(ctx, viewID, m)
		return mutatedMsg{message: msg, err: err}
	}
}

func toggleCmd(ctx context.Context, c *workspace.Controller, viewID, name string, enabled bool) tea.Cmd {
	return func() tea.Msg {
		err := c.SetEnabled(ctx, viewID, name, enabled)
		return mutatedMsg{err: err}
	}
}

func closeCmd(ctx context.Context, c *workspace.Controller, id string, confirmed bool) tea.Cmd {
	return func() tea.Msg {
		_, err := c.Close(ctx, id, workspace.Answer(confirmed))
		return closedMsg{err: err}
	}
}

// waitForEvent blocks until the hub delivers the next event.
func waitForEvent(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}
