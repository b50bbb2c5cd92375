// Package doctor validates a loaded hostdeck configuration beyond what the
// loader enforces, and optionally probes the panel for every workspace.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/hostdeck/internal/auth"
	"github.com/mattjoyce/hostdeck/internal/config"
	"github.com/mattjoyce/hostdeck/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Prober reaches the panel for one workspace, typically by listing its root.
type Prober func(ctx context.Context, workspace string) error

// MaxConcurrentProbes bounds the panel requests of one Probe run.
const MaxConcurrentProbes = 4

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Doctor validates a configuration.
type Doctor struct {
	cfg       *config.Config
	integrity []string
}

// New creates a Doctor. integrity carries the non-fatal findings returned by
// config.Load.
func New(cfg *config.Config, integrity []string) *Doctor {
	return &Doctor{cfg: cfg, integrity: integrity}
}

// Validate runs all static checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateState(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.validateWorkspaces(r)
	d.warnPanel(r)
	d.warnMissingEnvVars(r)
	d.warnDeprecatedSyntax(r)
	d.warnIntegrity(r)

	r.Valid = len(r.Errors) == 0
	return r
}

// Probe calls probe for every workspace, a few at a time, and records each
// failure as an error. It returns early only when ctx is cancelled.
func (d *Doctor) Probe(ctx context.Context, r *Result, probe Prober) error {
	var (
		mu     sync.Mutex
		failed []Issue
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentProbes)

	for _, name := range d.cfg.WorkspaceNames() {
		g.Go(func() error {
			err := probe(gctx, name)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mu.Lock()
			failed = append(failed, Issue{Category: "panel", Field: "workspaces." + name, Message: err.Error()})
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	sort.Slice(failed, func(i, j int) bool { return failed[i].Field < failed[j].Field })
	r.Errors = append(r.Errors, failed...)
	r.Valid = len(r.Errors) == 0
	return err
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateState checks that the state database can live where configured.
func (d *Doctor) validateState(r *Result) {
	m, err := storage.MountOf(d.cfg.State.Path)
	if err != nil {
		d.addWarning(r, "state", "state.path", fmt.Sprintf("cannot inspect filesystem: %v", err))
		return
	}
	if m.Network() {
		d.addError(r, "state", "state.path",
			fmt.Sprintf("%s is on a %s mount; SQLite and the session locks need a local filesystem", m.Probed, m.FSType))
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if !isLoopback(host) {
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("API listens on %q; bearer tokens travel in clear text unless a TLS proxy fronts it", d.cfg.API.Listen))
	}
}

// validateTokenScopes checks that every token carries known scopes and that
// no two tokens share a secret.
func (d *Doctor) validateTokenScopes(r *Result) {
	seen := make(map[string]int)
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			if !auth.Known(scope) {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q (expected one of %s)", scope, strings.Join(auth.Names(), ", ")))
			}
		}
		if token.Token == "" {
			continue
		}
		if prev, dup := seen[token.Token]; dup {
			d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].token", i),
				fmt.Sprintf("token value repeats api.auth.tokens[%d]", prev))
			continue
		}
		seen[token.Token] = i
		if token.Token == d.cfg.API.Auth.APIKey {
			d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].token", i),
				"token value equals api.auth.api_key, which already grants full access")
		}
	}
}

// validateWorkspaces flags workspace settings that load but will not work
// the way an operator expects.
func (d *Doctor) validateWorkspaces(r *Result) {
	labels := make(map[string]string)
	for _, name := range d.cfg.WorkspaceNames() {
		ws := d.cfg.Workspaces[name]
		field := "workspaces." + name

		if prev, dup := labels[ws.Label]; dup {
			d.addWarning(r, "workspaces", field+".label",
				fmt.Sprintf("label %q is also used by workspace %q", ws.Label, prev))
		} else {
			labels[ws.Label] = name
		}

		switch ws.Kind {
		case config.KindDatabase:
			if ws.Database == "" {
				d.addWarning(r, "workspaces", field+".database",
					"no default database; new queries opened at the root cannot run")
			}
			if ws.RowLimit > 10000 {
				d.addWarning(r, "workspaces", field+".row_limit",
					fmt.Sprintf("row_limit %d may pull very large result sets into memory", ws.RowLimit))
			}
		case config.KindDNS:
			if ws.Zone != strings.ToLower(ws.Zone) || strings.HasSuffix(ws.Zone, ".") {
				d.addWarning(r, "workspaces", field+".zone",
					fmt.Sprintf("zone %q should be lower case without a trailing dot", ws.Zone))
			}
		case config.KindFiles:
			if ws.Root != "/" && strings.HasSuffix(ws.Root, "/") {
				d.addWarning(r, "workspaces", field+".root",
					fmt.Sprintf("root %q has a trailing slash", ws.Root))
			}
		}
	}
}

// warnPanel checks the panel connection settings.
func (d *Doctor) warnPanel(r *Result) {
	if d.cfg.Panel.APIKey == "" {
		d.addWarning(r, "panel", "panel.api_key", "no panel API key; the panel will likely refuse every request")
	}
	u, err := url.Parse(d.cfg.Panel.BaseURL)
	if err == nil && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		d.addWarning(r, "panel", "panel.base_url",
			fmt.Sprintf("panel at %s is reached over plain http; the API key is sent in clear text", u.Host))
	}
}

// warnMissingEnvVars warns about ${VAR} references left unexpanded in
// settings the loader does not check, such as tokens of a disabled API.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	if d.cfg.API.Enabled {
		return
	}
	for i, token := range d.cfg.API.Auth.Tokens {
		for _, m := range envVarRe.FindAllStringSubmatch(token.Token, -1) {
			d.addWarning(r, "env_vars", fmt.Sprintf("api.auth.tokens[%d].token", i),
				fmt.Sprintf("environment variable ${%s} not set", m[1]))
		}
	}
}

// warnDeprecatedSyntax warns about legacy config patterns.
func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "deprecated", "api.auth.api_key",
			"legacy api_key grants full access; migrate to tokens array with scopes")
	}
}

func (d *Doctor) warnIntegrity(r *Result) {
	for _, w := range d.integrity {
		d.addWarning(r, "integrity", "", w)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
