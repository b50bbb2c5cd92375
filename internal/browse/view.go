// Package browse implements navigable listings (directories, databases,
// tables, DNS records, cron jobs) that spawn documents or sibling views.
package browse

import (
	"context"
	"iter"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntryType classifies a listing entry.
type EntryType string

const (
	EntryDir      EntryType = "dir"
	EntryFile     EntryType = "file"
	EntryDatabase EntryType = "database"
	EntryTable    EntryType = "table"
	EntryRecord   EntryType = "record"
	EntryJob      EntryType = "job"
)

// Entry is one row of a listing.
type Entry struct {
	Name     string         `json:"name"`
	Path     string         `json:"path,omitempty"`
	Type     EntryType      `json:"type"`
	Size     *int64         `json:"size,omitempty"`
	Modified *time.Time     `json:"modified,omitempty"`
	Enabled  *bool          `json:"enabled,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// IsContainer reports whether navigating into e changes location instead of
// opening a document.
func (e Entry) IsContainer() bool {
	return e.Type == EntryDir || e.Type == EntryDatabase
}

// Lister fetches the entries at a location.
type Lister interface {
	List(ctx context.Context, location string) ([]Entry, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context, location string) ([]Entry, error)

func (f ListerFunc) List(ctx context.Context, location string) ([]Entry, error) {
	return f(ctx, location)
}

// View is a navigable listing bound to one location.
type View struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Root     string `json:"root"`
	Location string `json:"location"`
	Filter   string `json:"filter,omitempty"`
	// Stale marks a view whose listing must be fetched again before it is
	// shown.
	Stale bool `json:"stale"`
}

// New creates a view rooted at root and positioned on location.
func New(label, root, location string) *View {
	if location == "" {
		location = root
	}
	return &View{
		ID:       uuid.NewString(),
		Label:    label,
		Root:     root,
		Location: location,
		Stale:    true,
	}
}

// List returns the filtered entries at the view's location. Nothing is
// fetched until the sequence is ranged over, and every range fetches again.
func (v *View) List(ctx context.Context, l Lister) iter.Seq2[Entry, error] {
	location, filter := v.Location, v.Filter
	return func(yield func(Entry, error) bool) {
		entries, err := l.List(ctx, location)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for _, e := range entries {
			if !Matches(filter, e.Name) {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Enter moves the view into a container entry. It returns false, leaving
// the location untouched, when e is a leaf.
func (v *View) Enter(e Entry) bool {
	if !e.IsContainer() {
		return false
	}
	v.Location = ChildLocation(v.Location, e)
	v.Filter = ""
	v.Stale = true
	return true
}

// Up moves the view to the parent location. It returns false at the root.
func (v *View) Up() bool {
	if v.Location == v.Root {
		return false
	}
	parent := path.Dir(v.Location)
	if parent == "." || !within(v.Root, parent) {
		parent = v.Root
	}
	v.Location = parent
	v.Filter = ""
	v.Stale = true
	return true
}

// within reports whether p is root or below it.
func within(root, p string) bool {
	if p == root || root == "" {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(root, "/")+"/")
}

// Shows reports whether the view's listing covers location.
func (v *View) Shows(location string) bool {
	return v.Location == location
}

// ChildLocation is the location reached by entering e from location.
func ChildLocation(location string, e Entry) string {
	if e.Path != "" {
		return e.Path
	}
	if location == "" {
		return e.Name
	}
	return path.Join(location, e.Name)
}

// Matches is the case-insensitive substring filter applied to entry names.
func Matches(filter, name string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

// Collect drains a listing into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Entry, error]) ([]Entry, error) {
	out := make([]Entry, 0)
	for e, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
