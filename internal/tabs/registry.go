// Package tabs keeps the ordered set of open tabs of one workspace.
//
// Registry is not safe for concurrent use; the workspace controller owns it
// and serialises access.
package tabs

import (
	"slices"

	"github.com/mattjoyce/hostdeck/internal/browse"
	"github.com/mattjoyce/hostdeck/internal/document"
)

// EntryKind tells whether a tab holds a document or a browse view.
type EntryKind string

const (
	KindDocument EntryKind = "document"
	KindBrowse   EntryKind = "browse"
)

// State is the lifecycle position of a tab.
type State string

const (
	StateOpening State = "opening"
	StateReady   State = "ready"
	StateEditing State = "editing"
	StateFailed  State = "failed"
	StateClosed  State = "closed"
)

// Entry is one tab.
type Entry struct {
	ID       string
	Kind     EntryKind
	Resource string
	Doc      *document.Document
	View     *browse.View
	opening  bool
	failed   bool
}

// DocumentEntry wraps a document.
func DocumentEntry(d *document.Document) Entry {
	return Entry{ID: d.ID, Kind: KindDocument, Resource: d.ResourceKey(), Doc: d, opening: d.Loading}
}

// BrowseEntry wraps a browse view. Browse tabs are never de-duplicated.
func BrowseEntry(v *browse.View) Entry {
	return Entry{ID: v.ID, Kind: KindBrowse, View: v}
}

// Label is the tab strip caption.
func (e Entry) Label() string {
	if e.Doc != nil {
		return e.Doc.Label
	}
	if e.View != nil {
		return e.View.Label
	}
	return e.ID
}

// State derives the lifecycle state from the wrapped value.
func (e Entry) State() State {
	switch {
	case e.failed:
		return StateFailed
	case e.opening:
		return StateOpening
	case e.Doc == nil:
		return StateReady
	case e.Doc.IsDirty():
		return StateEditing
	}
	return StateReady
}

// Dirty reports whether closing the tab would lose edits.
func (e Entry) Dirty() bool {
	return e.Doc != nil && e.Doc.IsDirty()
}

// CloseResult reports the outcome of Close.
type CloseResult struct {
	Closed  bool `json:"closed"`
	Blocked bool `json:"blocked"`
}

// Registry is the ordered list of open tabs plus the active tab id.
type Registry struct {
	entries []*Entry
	active  string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Open adds e and focuses it. When another tab already holds the same
// resource, that tab is focused instead and its id returned with existed
// set.
func (r *Registry) Open(e Entry) (id string, existed bool) {
	if e.Resource != "" {
		for _, cur := range r.entries {
			if cur.Resource == e.Resource {
				r.active = cur.ID
				return cur.ID, true
			}
		}
	}
	return r.OpenNew(e), false
}

// OpenNew adds e without de-duplication and focuses it.
func (r *Registry) OpenNew(e Entry) string {
	entry := e
	r.entries = append(r.entries, &entry)
	r.active = entry.ID
	return entry.ID
}

// Rekey changes the resource a tab holds, typically after a new entity got
// its key on first save. When another tab already holds resource, id is left
// without one and the holder's id is returned.
func (r *Registry) Rekey(id, resource string) (holder string) {
	i := r.index(id)
	if i < 0 {
		return ""
	}
	if resource != "" {
		for _, cur := range r.entries {
			if cur.ID != id && cur.Resource == resource {
				r.entries[i].Resource = ""
				return cur.ID
			}
		}
	}
	r.entries[i].Resource = resource
	return ""
}

// Focus makes id active. Unknown ids are ignored.
func (r *Registry) Focus(id string) {
	if r.index(id) >= 0 {
		r.active = id
	}
}

// MarkReady records that the initial load of a document tab completed.
func (r *Registry) MarkReady(id string) {
	if i := r.index(id); i >= 0 {
		r.entries[i].opening = false
	}
}

// MarkFailed flags a tab whose initial load failed.
func (r *Registry) MarkFailed(id string) {
	if i := r.index(id); i >= 0 {
		r.entries[i].opening = false
		r.entries[i].failed = true
	}
}

// Close removes a tab. A dirty document tab is only removed when confirmed
// is set; otherwise the result is Blocked and nothing changes.
func (r *Registry) Close(id string, confirmed bool) CloseResult {
	i := r.index(id)
	if i < 0 {
		return CloseResult{}
	}
	if r.entries[i].Dirty() && !confirmed {
		return CloseResult{Blocked: true}
	}

	r.entries = slices.Delete(r.entries, i, i+1)
	if r.active == id {
		r.active = r.fallback()
	}
	return CloseResult{Closed: true}
}

// fallback picks the tab focused after the active one closes: the last
// document tab in insertion order, else the last browse tab.
func (r *Registry) fallback() string {
	lastBrowse := ""
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.Kind == KindDocument {
			return e.ID
		}
		if lastBrowse == "" {
			lastBrowse = e.ID
		}
	}
	return lastBrowse
}

// Get returns the tab with id.
func (r *Registry) Get(id string) (Entry, bool) {
	if i := r.index(id); i >= 0 {
		return *r.entries[i], true
	}
	return Entry{}, false
}

// Has reports whether id is open.
func (r *Registry) Has(id string) bool {
	return r.index(id) >= 0
}

// List returns the tabs in insertion order.
func (r *Registry) List() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = *e
	}
	return out
}

// Active returns the focused tab id, or "" when nothing is open.
func (r *Registry) Active() string {
	return r.active
}

// Len is the number of open tabs.
func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) index(id string) int {
	return slices.IndexFunc(r.entries, func(e *Entry) bool { return e.ID == id })
}
