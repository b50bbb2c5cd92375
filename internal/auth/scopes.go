package auth

import "slices"

// Scopes understood by the workspace API. Scopes are global: a token that
// can write may write to every configured workspace.
const (
	ScopeAll         = "*"
	ScopeWorkspaceRO = "workspace:ro"
	ScopeWorkspaceRW = "workspace:rw"
)

// Scope describes one grantable scope.
type Scope struct {
	Name    string
	Summary string
	// Implies lists the scopes granted along with this one.
	Implies []string
}

var catalog = []Scope{
	{Name: ScopeWorkspaceRO, Summary: "Read tabs, documents, listings and events"},
	{Name: ScopeWorkspaceRW, Summary: "Open, edit, save and close tabs; create and delete entities", Implies: []string{ScopeWorkspaceRO}},
	{Name: ScopeAll, Summary: "Full administrative access (all scopes)", Implies: []string{ScopeWorkspaceRW, ScopeWorkspaceRO}},
}

// Catalog returns the grantable scopes, weakest first.
func Catalog() []Scope {
	return slices.Clone(catalog)
}

// Known reports whether s names a grantable scope.
func Known(s string) bool {
	return slices.ContainsFunc(catalog, func(c Scope) bool { return c.Name == s })
}

// Names lists the grantable scope names, weakest first.
func Names() []string {
	out := make([]string, len(catalog))
	for i, c := range catalog {
		out[i] = c.Name
	}
	return out
}

// ReadScopes are the scopes that may read workspace state.
func ReadScopes() []string { return []string{ScopeWorkspaceRO, ScopeWorkspaceRW, ScopeAll} }

// WriteScopes are the scopes that may change workspace state.
func WriteScopes() []string { return []string{ScopeWorkspaceRW, ScopeAll} }

// Reduce keeps only the strongest of scopes, dropping those it implies and
// any unknown names. It returns nil when nothing known remains.
func Reduce(scopes []string) []string {
	for i := len(catalog) - 1; i >= 0; i-- {
		if slices.Contains(scopes, catalog[i].Name) {
			return []string{catalog[i].Name}
		}
	}
	return nil
}

func implied(s string) []string {
	for _, c := range catalog {
		if c.Name == s {
			return c.Implies
		}
	}
	return nil
}
