package workspace

import (
	"fmt"

	"github.com/mattjoyce/hostdeck/internal/adapter"
	"github.com/mattjoyce/hostdeck/internal/config"
	"github.com/mattjoyce/hostdeck/internal/events"
	"github.com/mattjoyce/hostdeck/internal/gateway"
	hlog "github.com/mattjoyce/hostdeck/internal/log"
	"github.com/mattjoyce/hostdeck/internal/panelapi"
)

// Set holds the controllers of every configured workspace.
type Set struct {
	names  []string
	byName map[string]*Controller
	kinds  map[string]string
}

// SetOptions is shared by every controller of a Set.
type SetOptions struct {
	Publisher events.Publisher
	Selection SelectionStore
}

// OpenSet builds one controller per configured workspace, all talking to the
// panel through client.
func OpenSet(cfg *config.Config, client *panelapi.Client, opts SetOptions) (*Set, error) {
	s := &Set{byName: make(map[string]*Controller), kinds: make(map[string]string)}
	for _, name := range cfg.WorkspaceNames() {
		ws := cfg.Workspaces[name]
		backend, root, err := adapter.Build(ws, client)
		if err != nil {
			return nil, fmt.Errorf("workspace %q: %w", name, err)
		}
		logger := hlog.WithWorkspace(name)
		s.Add(name, ws.Kind, New(name, gateway.New(backend, logger), Options{
			Label:     ws.Label,
			Root:      root,
			Publisher: opts.Publisher,
			Selection: opts.Selection,
			Logger:    logger,
		}))
	}
	return s, nil
}

// Add registers a controller. A later Add with the same name replaces it.
func (s *Set) Add(name, kind string, c *Controller) {
	if s.byName == nil {
		s.byName = make(map[string]*Controller)
		s.kinds = make(map[string]string)
	}
	if _, ok := s.byName[name]; !ok {
		s.names = append(s.names, name)
	}
	s.byName[name] = c
	s.kinds[name] = kind
}

// Get returns the controller of a workspace.
func (s *Set) Get(name string) (*Controller, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// Kind returns the configured kind of a workspace.
func (s *Set) Kind(name string) string {
	return s.kinds[name]
}

// Names returns workspace names in the order they were added.
func (s *Set) Names() []string {
	return append([]string(nil), s.names...)
}

// Summary describes a workspace for listings.
type Summary struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Tabs  int    `json:"tabs"`
	Dirty int    `json:"dirty"`
}

// Summaries describes every workspace of the set.
func (s *Set) Summaries() []Summary {
	out := make([]Summary, 0, len(s.names))
	for _, name := range s.names {
		snap := s.byName[name].Tabs()
		sum := Summary{Name: name, Kind: s.kinds[name], Tabs: len(snap.Tabs)}
		for _, t := range snap.Tabs {
			if t.Dirty {
				sum.Dirty++
			}
		}
		out = append(out, sum)
	}
	return out
}
