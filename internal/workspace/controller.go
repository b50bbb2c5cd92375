// Package workspace orchestrates one panel workspace: the tab registry, its
// browse views, its documents and the gateway they are saved through.
//
// Every state change happens under the controller's mutex. Backend calls run
// outside it, and their outcomes are applied only if the document they were
// started for is still open.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattjoyce/hostdeck/internal/browse"
	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/events"
	"github.com/mattjoyce/hostdeck/internal/gateway"
	hlog "github.com/mattjoyce/hostdeck/internal/log"
	"github.com/mattjoyce/hostdeck/internal/tabs"
)

// SelectionStore remembers the last entity a user selected in a workspace.
type SelectionStore interface {
	SetLastSelected(ctx context.Context, workspace string, ref document.Ref) error
}

// Options configures a Controller.
type Options struct {
	// Label of the default browse view. Defaults to the workspace name.
	Label string
	// Root is the top location of every browse view of the workspace.
	Root      string
	Publisher events.Publisher
	Selection SelectionStore
	Logger    *slog.Logger
}

// Controller owns the state of one workspace.
type Controller struct {
	name   string
	root   string
	gw     *gateway.Gateway
	pub    events.Publisher
	sel    SelectionStore
	logger *slog.Logger

	mu          sync.Mutex
	reg         *tabs.Registry
	defaultView string
	created     int
	// gen counts how often each view was marked stale, so a listing that was
	// in flight across a mutation does not clear the flag.
	gen map[string]uint64
}

// New creates a controller with one browse view at the root.
func New(name string, gw *gateway.Gateway, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = hlog.WithWorkspace(name)
	}
	label := opts.Label
	if label == "" {
		label = name
	}

	c := &Controller{
		name:   name,
		root:   opts.Root,
		gw:     gw,
		pub:    opts.Publisher,
		sel:    opts.Selection,
		logger: logger,
		reg:    tabs.New(),
		gen:    make(map[string]uint64),
	}
	v := browse.New(label, opts.Root, opts.Root)
	c.defaultView = c.reg.OpenNew(tabs.BrowseEntry(v))
	return c
}

// Name is the workspace name.
func (c *Controller) Name() string {
	return c.name
}

// DefaultView is the id of the view created with the workspace. It may have
// been closed since.
func (c *Controller) DefaultView() string {
	return c.defaultView
}

// Tab describes one entry of the tab strip.
type Tab struct {
	ID           string         `json:"id"`
	Kind         tabs.EntryKind `json:"kind"`
	Label        string         `json:"label"`
	State        tabs.State     `json:"state"`
	Dirty        bool           `json:"dirty"`
	DocumentKind document.Kind  `json:"document_kind,omitempty"`
	Location     string         `json:"location,omitempty"`
}

// Snapshot is the tab strip of a workspace.
type Snapshot struct {
	Workspace string `json:"workspace"`
	Active    string `json:"active"`
	Tabs      []Tab  `json:"tabs"`
}

// Tabs returns the tab strip in insertion order.
func (c *Controller) Tabs() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.reg.List()
	out := Snapshot{Workspace: c.name, Active: c.reg.Active(), Tabs: make([]Tab, 0, len(entries))}
	for _, e := range entries {
		t := Tab{ID: e.ID, Kind: e.Kind, Label: e.Label(), State: e.State(), Dirty: e.Dirty()}
		switch {
		case e.Doc != nil:
			t.DocumentKind = e.Doc.Kind
			t.Location = e.Doc.Location
		case e.View != nil:
			t.Location = e.View.Location
		}
		out.Tabs = append(out.Tabs, t)
	}
	return out
}

// Active returns the focused tab id.
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.Active()
}

// Document returns a copy of an open document.
func (c *Controller) Document(id string) (document.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.docLocked(id)
	if err != nil {
		return document.Document{}, err
	}
	return d.Snapshot(), nil
}

// View returns a copy of a browse view. An empty id names the default view.
func (c *Controller) View(id string) (browse.View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, err := c.viewLocked(id)
	if err != nil {
		return browse.View{}, err
	}
	return *v, nil
}

// Focus activates a tab. It reports false, changing nothing, for unknown ids.
func (c *Controller) Focus(ctx context.Context, id string) bool {
	c.mu.Lock()
	e, ok := c.reg.Get(id)
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.reg.Focus(id)
	var ref *document.Ref
	if e.Doc != nil {
		r := e.Doc.Ref
		ref = &r
	}
	c.mu.Unlock()

	if ref != nil {
		c.remember(ctx, *ref)
	}
	c.tabsChanged()
	return true
}

// Listing returns the filtered entries of a view. A stale view is listed
// again; otherwise the cached listing is reused.
func (c *Controller) Listing(ctx context.Context, viewID string) ([]browse.Entry, error) {
	return c.list(ctx, viewID, true)
}

// Lookup finds an entry by name in a view's unfiltered listing.
func (c *Controller) Lookup(ctx context.Context, viewID, name string) (browse.Entry, error) {
	entries, err := c.list(ctx, viewID, false)
	if err != nil {
		return browse.Entry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return browse.Entry{}, fmt.Errorf("%w: %s", ErrNoEntry, name)
}

func (c *Controller) list(ctx context.Context, viewID string, filtered bool) ([]browse.Entry, error) {
	c.mu.Lock()
	v, err := c.viewLocked(viewID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	view := *v
	gen := c.gen[view.ID]
	c.mu.Unlock()

	if !filtered {
		view.Filter = ""
	}

	cache := c.gw.Listings()
	lister := browse.ListerFunc(func(ctx context.Context, location string) ([]browse.Entry, error) {
		if !view.Stale {
			if entries, ok := cache.Get(view.ID); ok {
				return entries, nil
			}
		}
		entries, err := c.gw.List(ctx, location)
		if err != nil {
			return nil, err
		}
		cache.Set(view.ID, entries)

		c.mu.Lock()
		if c.gen[view.ID] == gen && v.Location == location {
			v.Stale = false
		}
		c.mu.Unlock()
		return entries, nil
	})

	entries, err := browse.Collect(view.List(ctx, lister))
	if err != nil {
		c.notifyError("list "+view.Location, err, gateway.MsgLoadFailed)
		return nil, err
	}
	return entries, nil
}

// SetFilter sets the client-side name filter of a view.
func (c *Controller) SetFilter(viewID, filter string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, err := c.viewLocked(viewID)
	if err != nil {
		return err
	}
	v.Filter = filter
	return nil
}

// NavigateInto moves a view into a container entry, or opens a leaf entry as
// a document tab, focusing the existing tab when the entity is already open.
// It returns the id of the view or document tab.
func (c *Controller) NavigateInto(ctx context.Context, viewID string, e browse.Entry) (string, error) {
	c.mu.Lock()
	v, err := c.viewLocked(viewID)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	if v.Enter(e) {
		c.gen[v.ID]++
		id, loc := v.ID, v.Location
		c.mu.Unlock()
		c.logger.Debug("navigated", "view_id", id, "location", loc)
		return id, nil
	}
	ref := c.gw.Backend().Describe(v.Location, e)
	c.mu.Unlock()

	return c.open(ctx, ref, true)
}

// OpenInNewTab opens a container as a new browse view or a leaf as a new
// document, even when the same entity is already open elsewhere.
func (c *Controller) OpenInNewTab(ctx context.Context, viewID string, e browse.Entry) (string, error) {
	c.mu.Lock()
	v, err := c.viewLocked(viewID)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	if e.IsContainer() {
		nv := browse.New(e.Name, v.Root, browse.ChildLocation(v.Location, e))
		id := c.reg.OpenNew(tabs.BrowseEntry(nv))
		c.mu.Unlock()
		c.tabsChanged()
		return id, nil
	}
	ref := c.gw.Backend().Describe(v.Location, e)
	c.mu.Unlock()

	return c.open(ctx, ref, false)
}

// OpenRef opens the entity behind ref, de-duplicating like NavigateInto.
func (c *Controller) OpenRef(ctx context.Context, ref document.Ref) (string, error) {
	return c.open(ctx, ref, true)
}

// NavigateUp moves a view to its parent location.
func (c *Controller) NavigateUp(viewID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, err := c.viewLocked(viewID)
	if err != nil {
		return false, err
	}
	if !v.Up() {
		return false, nil
	}
	c.gen[v.ID]++
	return true, nil
}

func (c *Controller) open(ctx context.Context, ref document.Ref, dedup bool) (string, error) {
	doc := document.OpenPending(ref)

	c.mu.Lock()
	var (
		id      string
		existed bool
	)
	if dedup {
		id, existed = c.reg.Open(tabs.DocumentEntry(doc))
	} else {
		id = c.reg.OpenNew(tabs.DocumentEntry(doc))
	}
	c.mu.Unlock()
	c.tabsChanged()

	if existed {
		c.remember(ctx, ref)
		return id, nil
	}

	logger := hlog.WithDocument(c.logger, id)
	v, err := c.gw.Load(ctx, ref)

	c.mu.Lock()
	if cur, lerr := c.docLocked(id); lerr != nil || cur != doc {
		c.mu.Unlock()
		logger.Debug("load finished after close", "label", ref.Label)
		return "", ErrDocumentClosed
	}
	if err != nil {
		c.reg.MarkFailed(id)
		c.reg.Close(id, true)
		c.mu.Unlock()
		c.notifyError("open "+ref.Label, err, gateway.MsgLoadFailed)
		c.tabsChanged()
		return "", err
	}
	document.Resolve(doc, v)
	c.reg.MarkReady(id)
	c.mu.Unlock()

	logger.Debug("document opened", "kind", ref.Kind, "label", ref.Label)
	c.remember(ctx, ref)
	return id, nil
}

// NewDocument opens a blank entity of the workspace's kind at the location
// of viewID ("New Query 1", "New Record 2", ...). New entities never share a
// tab.
func (c *Controller) NewDocument(viewID string) (string, error) {
	c.mu.Lock()
	location := c.root
	if v, err := c.viewLocked(viewID); err == nil {
		location = v.Location
	} else if viewID != "" {
		c.mu.Unlock()
		return "", err
	}
	c.created++
	ref, initial := c.gw.Backend().Blank(location, c.created)
	id := c.reg.OpenNew(tabs.DocumentEntry(document.OpenRef(ref, initial)))
	c.mu.Unlock()

	c.tabsChanged()
	return id, nil
}

// Edit replaces the current value of a document.
func (c *Controller) Edit(id string, v document.Value) error {
	return c.mutateDoc(id, func(d *document.Document) { document.Edit(d, v) })
}

// SetField changes one field of a structured document.
func (c *Controller) SetField(id, field string, val any) error {
	return c.mutateDoc(id, func(d *document.Document) { document.Edit(d, d.Current.With(field, val)) })
}

// Revert drops unsaved edits.
func (c *Controller) Revert(id string) error {
	return c.mutateDoc(id, func(d *document.Document) { document.Discard(d) })
}

func (c *Controller) mutateDoc(id string, fn func(d *document.Document)) error {
	c.mu.Lock()
	d, err := c.docLocked(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if d.Loading {
		c.mu.Unlock()
		return ErrBusy
	}
	wasDirty := d.IsDirty()
	fn(d)
	flipped := wasDirty != d.IsDirty()
	c.mu.Unlock()

	if flipped {
		c.tabsChanged()
	}
	return nil
}

// Save writes a document through the gateway. The tab stays open. On
// failure the edits are kept and the document stays dirty.
func (c *Controller) Save(ctx context.Context, id string) (gateway.Receipt, error) {
	c.mu.Lock()
	doc, err := c.docLocked(id)
	if err != nil {
		c.mu.Unlock()
		return gateway.Receipt{}, err
	}
	if doc.Loading {
		c.mu.Unlock()
		return gateway.Receipt{}, ErrBusy
	}
	doc.Loading = true
	snap := doc.Snapshot()
	c.mu.Unlock()

	logger := hlog.WithDocument(c.logger, id)
	rec, err := c.gw.Save(ctx, snap)

	c.mu.Lock()
	if cur, lerr := c.docLocked(id); lerr != nil || cur != doc {
		c.mu.Unlock()
		logger.Info("save finished after close", "label", snap.Label, "failed", err != nil)
		return rec, ErrDocumentClosed
	}
	if err != nil {
		doc.Loading = false
		c.mu.Unlock()
		c.notifyError("save "+snap.Label, err, gateway.MsgSaveFailed)
		return gateway.Receipt{}, err
	}
	document.Commit(doc, rec.Result)
	label := doc.Label
	doc.Ref = rec.Ref
	doc.Label = label
	if holder := c.reg.Rekey(id, doc.ResourceKey()); holder != "" {
		logger.Warn("saved entity is already open in another tab", "key", doc.Key, "tab", holder)
	}
	stale := c.markStaleLocked(doc.Location)
	ref := doc.Ref
	c.mu.Unlock()

	logger.Info("document saved", "kind", snap.Kind, "label", snap.Label)
	c.publishStale(ref.Location, stale)
	if rec.Message != "" {
		c.notify(events.LevelInfo, "save "+snap.Label, rec.Message, false)
	}
	c.tabsChanged()
	c.remember(ctx, ref)
	return rec, nil
}

// SaveAndClose saves a document and closes its tab once the save succeeded.
func (c *Controller) SaveAndClose(ctx context.Context, id string) (gateway.Receipt, tabs.CloseResult, error) {
	rec, err := c.Save(ctx, id)
	if err != nil {
		return rec, tabs.CloseResult{}, err
	}
	res, err := c.Close(ctx, id, NeverConfirm)
	return rec, res, err
}

// Execute runs a query document. A query rejected by the database is not an
// error: the result carries its message and the document keeps its edits.
func (c *Controller) Execute(ctx context.Context, id string) (*document.Result, error) {
	c.mu.Lock()
	doc, err := c.docLocked(id)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if doc.Kind != document.KindQuery {
		c.mu.Unlock()
		return nil, gateway.ErrNotExecutable
	}
	if doc.Loading {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	doc.Loading = true
	snap := doc.Snapshot()
	c.mu.Unlock()

	res, err := c.gw.Execute(ctx, snap)

	c.mu.Lock()
	if cur, lerr := c.docLocked(id); lerr != nil || cur != doc {
		c.mu.Unlock()
		return res, ErrDocumentClosed
	}
	if res != nil {
		document.Attach(doc, res)
	} else {
		doc.Loading = false
	}
	c.mu.Unlock()

	if err != nil {
		c.notifyError("execute on "+snap.Location, err, gateway.MsgExecuteFailed)
		return res, err
	}
	return res, nil
}

// Close closes a tab. A dirty document is only closed when confirm agrees;
// otherwise the result is Blocked and the tab is left as it was.
func (c *Controller) Close(ctx context.Context, id string, confirm Confirmer) (tabs.CloseResult, error) {
	c.mu.Lock()
	e, ok := c.reg.Get(id)
	if !ok {
		c.mu.Unlock()
		return tabs.CloseResult{}, ErrNotFound
	}
	dirty, label := e.Dirty(), e.Label()
	c.mu.Unlock()

	// Confirm may block on the user and runs unlocked; Registry.Close
	// checks dirtiness again.
	confirmed := false
	if dirty {
		prompt := fmt.Sprintf("Discard unsaved changes to %s?", label)
		if confirm == nil || !confirm.Confirm(ctx, prompt) {
			return tabs.CloseResult{Blocked: true}, nil
		}
		confirmed = true
	}

	c.mu.Lock()
	res := c.reg.Close(id, confirmed)
	if res.Closed && e.View != nil {
		c.gw.Listings().Invalidate(id)
		delete(c.gen, id)
	}
	c.mu.Unlock()

	if res.Closed {
		c.tabsChanged()
	}
	return res, nil
}

// Mutate creates, deletes or restores an entity at the location of viewID.
// On success every view showing that location is marked stale.
func (c *Controller) Mutate(ctx context.Context, viewID string, m gateway.Mutation) (string, error) {
	c.mu.Lock()
	v, err := c.viewLocked(viewID)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	location := v.Location
	c.mu.Unlock()

	op := string(m.Action) + " " + firstNonEmpty(m.Name, m.Target)
	msg, err := c.gw.Mutate(ctx, location, m)
	if err != nil {
		c.notifyError(op, err, gateway.MsgMutateFailed)
		return "", err
	}

	c.mu.Lock()
	stale := c.markStaleLocked(location)
	c.mu.Unlock()

	c.logger.Info("listing mutated", "action", m.Action, "location", location, "stale_views", len(stale))
	c.publishStale(location, stale)
	if msg != "" {
		c.notify(events.LevelInfo, op, msg, false)
	}
	return msg, nil
}

// SetEnabled switches an entry of a view on or off. The cached listing
// reflects the change at once and is rolled back if the panel refuses.
func (c *Controller) SetEnabled(ctx context.Context, viewID, name string, enabled bool) error {
	entry, err := c.Lookup(ctx, viewID, name)
	if err != nil {
		return err
	}
	if viewID == "" {
		viewID = c.defaultView
	}
	if err := c.gw.SetEnabled(ctx, viewID, entry, enabled); err != nil {
		c.notifyError("toggle "+name, err, gateway.MsgMutateFailed)
		return err
	}
	return nil
}

func (c *Controller) docLocked(id string) (*document.Document, error) {
	e, ok := c.reg.Get(id)
	if !ok || e.Doc == nil {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return e.Doc, nil
}

func (c *Controller) viewLocked(id string) (*browse.View, error) {
	if id == "" {
		id = c.defaultView
	}
	e, ok := c.reg.Get(id)
	if !ok || e.View == nil {
		return nil, fmt.Errorf("%w: view %s", ErrNotFound, id)
	}
	return e.View, nil
}

func (c *Controller) markStaleLocked(location string) []string {
	var ids []string
	for _, e := range c.reg.List() {
		if e.View == nil || !e.View.Shows(location) {
			continue
		}
		e.View.Stale = true
		c.gen[e.View.ID]++
		ids = append(ids, e.View.ID)
	}
	return ids
}

func (c *Controller) remember(ctx context.Context, ref document.Ref) {
	if c.sel == nil || ref.Key == "" {
		return
	}
	if err := c.sel.SetLastSelected(ctx, c.name, ref); err != nil {
		c.logger.Warn("failed to record selection", "key", ref.Key, "error", err)
	}
}

func (c *Controller) notifyError(op string, err error, fallback string) {
	c.notify(events.LevelError, op, gateway.Message(err, fallback), gateway.IsTransport(err))
}

func (c *Controller) notify(level, op, msg string, transport bool) {
	if level == events.LevelError {
		c.logger.Warn("operation failed", "operation", op, "message", msg, "transport", transport)
	}
	if c.pub == nil {
		return
	}
	c.pub.Publish(events.TypeNotification, events.Notification{
		Workspace: c.name,
		Level:     level,
		Operation: op,
		Message:   msg,
		Transport: transport,
	})
}

func (c *Controller) publishStale(location string, ids []string) {
	if c.pub == nil || len(ids) == 0 {
		return
	}
	c.pub.Publish(events.TypeViewStale, events.Stale{Workspace: c.name, Location: location, Views: ids})
}

func (c *Controller) tabsChanged() {
	if c.pub == nil {
		return
	}
	c.pub.Publish(events.TypeTabs, events.TabsChanged{Workspace: c.name, Active: c.Active()})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
