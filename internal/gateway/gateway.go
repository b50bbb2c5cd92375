// Package gateway is the boundary between a workspace and the panel: it turns
// load, save, execute, create, delete, restore and toggle intents into
// backend calls and converts every failure into a typed error.
//
// The gateway never retries.
package gateway

import (
	"context"
	"log/slog"
	"slices"

	"github.com/mattjoyce/hostdeck/internal/browse"
	"github.com/mattjoyce/hostdeck/internal/document"
)

//go:generate mockgen -destination=mocks/mock_backend.go -package=mocks github.com/mattjoyce/hostdeck/internal/gateway Backend,Executor,Mutator,Toggler

// Backend is what a workspace adapter supplies for its document kind.
type Backend interface {
	browse.Lister
	// Describe builds the document ref for a leaf entry found at location.
	Describe(location string, entry browse.Entry) document.Ref
	// Blank returns the ref and initial value of the n-th new entity.
	Blank(location string, n int) (document.Ref, document.Value)
	Load(ctx context.Context, ref document.Ref) (document.Value, error)
	Save(ctx context.Context, doc document.Document) (Receipt, error)
}

// Executor is implemented by backends that run queries.
type Executor interface {
	Execute(ctx context.Context, database, query string) (document.Result, error)
}

// Mutator is implemented by backends that create, delete or restore
// entities in a listing.
type Mutator interface {
	Mutate(ctx context.Context, location string, m Mutation) (string, error)
}

// Toggler is implemented by backends with enable/disable switches.
type Toggler interface {
	SetEnabled(ctx context.Context, entry browse.Entry, enabled bool) error
}

// Receipt acknowledges a save.
type Receipt struct {
	Message string
	// Ref is the entity ref after the save; a created entity gains its key.
	Ref document.Ref
	// Result is set when saving a query runs it.
	Result *document.Result
}

// Action names a listing mutation.
type Action string

const (
	ActionCreateFile   Action = "create_file"
	ActionCreateFolder Action = "create_folder"
	ActionDelete       Action = "delete"
	ActionRestore      Action = "restore"
)

// Mutation is a create, delete or restore request.
type Mutation struct {
	Action Action `json:"action"`
	// Name is the new entity's name for creates, or the entry name for
	// deletes.
	Name string `json:"name"`
	// Target is an explicit identifier: entry path, record id, backup id.
	Target string `json:"target,omitempty"`
}

// Gateway wraps a Backend.
type Gateway struct {
	backend  Backend
	logger   *slog.Logger
	listings *Optimistic[[]browse.Entry]
}

// New creates a gateway over backend.
func New(backend Backend, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		backend:  backend,
		logger:   logger,
		listings: NewOptimistic(cloneEntries),
	}
}

// Backend returns the wrapped backend.
func (g *Gateway) Backend() Backend {
	return g.backend
}

// Listings is the optimistic cache of listings keyed by browse view id.
func (g *Gateway) Listings() *Optimistic[[]browse.Entry] {
	return g.listings
}

// List implements browse.Lister, turning failures into *LoadError.
func (g *Gateway) List(ctx context.Context, location string) ([]browse.Entry, error) {
	entries, err := g.backend.List(ctx, location)
	if err != nil {
		g.logger.Warn("listing failed", "location", location, "error", err, "transport", IsTransport(err))
		return nil, &LoadError{Resource: location, Message: Message(err, MsgLoadFailed), Err: err}
	}
	return entries, nil
}

// Load fetches the initial value of a document.
func (g *Gateway) Load(ctx context.Context, ref document.Ref) (document.Value, error) {
	v, err := g.backend.Load(ctx, ref)
	if err != nil {
		g.logger.Warn("load failed", "kind", ref.Kind, "key", ref.Key, "error", err, "transport", IsTransport(err))
		return document.Value{}, &LoadError{Resource: ref.Label, Message: Message(err, MsgLoadFailed), Err: err}
	}
	return v, nil
}

// Save writes a document snapshot.
func (g *Gateway) Save(ctx context.Context, doc document.Document) (Receipt, error) {
	rec, err := g.backend.Save(ctx, doc)
	if err != nil {
		g.logger.Warn("save failed", "kind", doc.Kind, "key", doc.Key, "error", err, "transport", IsTransport(err))
		return Receipt{}, &SaveError{Resource: doc.Label, Message: Message(err, MsgSaveFailed), Err: err}
	}
	if rec.Ref.Kind == "" {
		rec.Ref = doc.Ref
	}
	return rec, nil
}

// Execute runs a query document. Errors reported by the database are
// returned inside the result with a nil error. When the query never reached
// the database the result carries the message and an *ExecuteError is
// returned as well.
func (g *Gateway) Execute(ctx context.Context, doc document.Document) (*document.Result, error) {
	if doc.Kind != document.KindQuery {
		return nil, ErrNotExecutable
	}
	ex, ok := g.backend.(Executor)
	if !ok {
		return nil, ErrUnsupported
	}

	res, err := ex.Execute(ctx, doc.Location, doc.Current.Text)
	if err != nil {
		g.logger.Warn("execute failed", "database", doc.Location, "error", err, "transport", IsTransport(err))
		msg := Message(err, MsgExecuteFailed)
		return &document.Result{Columns: []string{}, Rows: []map[string]any{}, Error: msg},
			&ExecuteError{Database: doc.Location, Message: msg, Err: err}
	}
	return &res, nil
}

// Mutate performs a create, delete or restore at location.
func (g *Gateway) Mutate(ctx context.Context, location string, m Mutation) (string, error) {
	mut, ok := g.backend.(Mutator)
	if !ok {
		return "", ErrUnsupported
	}
	msg, err := mut.Mutate(ctx, location, m)
	if err != nil {
		g.logger.Warn("mutation failed", "action", m.Action, "name", m.Name, "error", err, "transport", IsTransport(err))
		return "", &MutationError{Action: m.Action, Target: firstNonEmpty(m.Target, m.Name), Message: Message(err, MsgMutateFailed), Err: err}
	}
	return msg, nil
}

// SetEnabled flips an entry's enabled flag in the cached listing of
// collection right away, then asks the panel. On failure the listing is
// rolled back unless a newer update superseded this one.
func (g *Gateway) SetEnabled(ctx context.Context, collection string, entry browse.Entry, enabled bool) error {
	tg, ok := g.backend.(Toggler)
	if !ok {
		return ErrUnsupported
	}

	tok := g.listings.Update(collection, func(entries []browse.Entry) []browse.Entry {
		for i := range entries {
			if entries[i].Name == entry.Name {
				v := enabled
				entries[i].Enabled = &v
			}
		}
		return entries
	})

	if err := tg.SetEnabled(ctx, entry, enabled); err != nil {
		rolledBack := g.listings.Rollback(tok)
		g.logger.Warn("toggle failed", "entry", entry.Name, "enabled", enabled, "rolled_back", rolledBack, "error", err)
		return &MutationError{Action: "toggle", Target: entry.Name, Message: Message(err, MsgMutateFailed), Err: err}
	}
	g.listings.Confirm(tok)
	return nil
}

func cloneEntries(in []browse.Entry) []browse.Entry {
	return slices.Clone(in)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
