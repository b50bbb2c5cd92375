// Package document models one open editable unit of a workspace: a file, a
// SQL query, a DNS record draft or a cron job draft.
//
// A Document never stores its dirty flag. IsDirty is always recomputed from
// Current and Original so the two cannot drift apart.
package document

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags what a Document edits.
type Kind string

const (
	KindFile      Kind = "file"
	KindQuery     Kind = "query"
	KindDNSRecord Kind = "dns_record"
	KindCronJob   Kind = "cron_job"
)

// Structured reports whether documents of this kind hold a field map rather
// than text.
func (k Kind) Structured() bool {
	return k == KindDNSRecord || k == KindCronJob
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFile, KindQuery, KindDNSRecord, KindCronJob:
		return true
	}
	return false
}

// Ref identifies the entity behind a Document.
type Ref struct {
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`
	// Key is the entity identifier on the panel (file path, table name,
	// record id, cron id). Empty for entities that do not exist yet.
	Key string `json:"key,omitempty"`
	// Location scopes Key: database name for queries, zone for DNS records.
	Location string `json:"location,omitempty"`
	// Unique marks refs that may only be open in one tab at a time.
	Unique bool `json:"unique,omitempty"`
}

// ResourceKey returns the de-duplication key of the ref, or "" when the ref
// must always get a tab of its own.
func (r Ref) ResourceKey() string {
	if !r.Unique || r.Key == "" {
		return ""
	}
	return string(r.Kind) + ":" + r.Location + ":" + r.Key
}

// Result is the outcome of executing a query document.
type Result struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Error   string           `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
}

// Failed reports whether the result carries a query error.
func (r *Result) Failed() bool {
	return r != nil && r.Error != ""
}

// Document is one open editable unit.
type Document struct {
	Ref
	ID         string    `json:"id"`
	Original   Value     `json:"original"`
	Current    Value     `json:"current"`
	Loading    bool      `json:"loading"`
	LastResult *Result   `json:"last_result,omitempty"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Open creates a clean document whose original and current value are initial.
func Open(kind Kind, initial Value, label string) *Document {
	return OpenRef(Ref{Kind: kind, Label: label}, initial)
}

// OpenRef is Open for a fully described ref.
func OpenRef(ref Ref, initial Value) *Document {
	return &Document{
		Ref:      ref,
		ID:       uuid.NewString(),
		Original: initial.Clone(),
		Current:  initial.Clone(),
		OpenedAt: time.Now().UTC(),
	}
}

// OpenPending creates an empty document in the loading state. The caller
// fills it in with Resolve once the initial fetch completes.
func OpenPending(ref Ref) *Document {
	d := OpenRef(ref, Value{})
	d.Loading = true
	return d
}

// Resolve installs the fetched value into a pending document.
func Resolve(d *Document, v Value) *Document {
	d.Original = v.Clone()
	d.Current = v.Clone()
	d.Loading = false
	return d
}

// Edit replaces the current value.
func Edit(d *Document, v Value) *Document {
	d.Current = v.Clone()
	return d
}

// Commit marks the current value as saved. For query documents a non-nil
// result is attached as LastResult.
func Commit(d *Document, result *Result) *Document {
	d.Original = d.Current.Clone()
	d.Loading = false
	if d.Kind == KindQuery && result != nil {
		d.LastResult = result
	}
	return d
}

// Attach ends an execute: the result becomes LastResult and the saved value
// is left alone, so an edited query stays dirty after it runs.
func Attach(d *Document, result *Result) *Document {
	d.Loading = false
	if d.Kind == KindQuery {
		d.LastResult = result
	}
	return d
}

// Discard resets the current value to the last saved one.
func Discard(d *Document) *Document {
	d.Current = d.Original.Clone()
	return d
}

// IsDirty reports whether the current value differs from the saved one.
func (d *Document) IsDirty() bool {
	return !d.Current.Equal(d.Original)
}

// Snapshot returns a deep copy safe to hand to another goroutine.
func (d *Document) Snapshot() Document {
	out := *d
	out.Original = d.Original.Clone()
	out.Current = d.Current.Clone()
	if d.LastResult != nil {
		r := *d.LastResult
		out.LastResult = &r
	}
	return out
}
