package doctor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mattjoyce/hostdeck/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{Name: "test", LogLevel: "info", LogFormat: "json"},
		State:   config.StateConfig{Path: "/tmp/test.db"},
		Panel:   config.PanelConfig{BaseURL: "https://panel.example.com", APIKey: "k"},
		API: config.APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8787",
			Auth: config.APIAuthConfig{Tokens: []config.APIToken{
				{Token: "reader", Scopes: []string{"workspace:ro"}},
				{Token: "writer", Scopes: []string{"workspace:rw"}},
			}},
		},
		Workspaces: map[string]config.WorkspaceConfig{
			"site": {Kind: config.KindFiles, Root: "/", Label: "Site"},
			"db":   {Kind: config.KindDatabase, Database: "wordpress", RowLimit: 100, Label: "DB"},
			"zone": {Kind: config.KindDNS, Zone: "example.com", Label: "Zone"},
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig(), nil).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidate_UnknownScope(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Auth.Tokens[0].Scopes = []string{"jobs:ro"}
	r := New(cfg, nil).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "token_scopes", "api.auth.tokens[0].scopes[0]")
}

func TestValidate_DuplicateTokens(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Auth.Tokens[1].Token = "reader"
	r := New(cfg, nil).Validate()
	assertHasError(t, r, "token_scopes", "api.auth.tokens[1].token")
}

func TestValidate_TokenEqualsAPIKey(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Auth.APIKey = "writer"
	r := New(cfg, nil).Validate()
	assertHasError(t, r, "token_scopes", "api.auth.tokens[1].token")
	assertHasWarning(t, r, "deprecated", "api.auth")
}

func TestValidate_BadListen(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Listen = "8787"
	r := New(cfg, nil).Validate()
	assertHasError(t, r, "api", "api.listen")
}

func TestValidate_PublicListenWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Listen = "0.0.0.0:8787"
	r := New(cfg, nil).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got %v", r.Errors)
	}
	assertHasWarning(t, r, "api", "api.listen")
}

func TestValidate_WorkspaceWarnings(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Workspaces["db"] = config.WorkspaceConfig{Kind: config.KindDatabase, Label: "Site", RowLimit: 50000}
	cfg.Workspaces["zone"] = config.WorkspaceConfig{Kind: config.KindDNS, Zone: "Example.com.", Label: "Zone"}
	r := New(cfg, nil).Validate()

	assertHasWarning(t, r, "workspaces", "workspaces.db.database")
	assertHasWarning(t, r, "workspaces", "workspaces.db.row_limit")
	assertHasWarning(t, r, "workspaces", "workspaces.site.label")
	assertHasWarning(t, r, "workspaces", "workspaces.zone.zone")
}

func TestValidate_PanelWarnings(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Panel = config.PanelConfig{BaseURL: "http://panel.example.com"}
	r := New(cfg, nil).Validate()
	assertHasWarning(t, r, "panel", "panel.api_key")
	assertHasWarning(t, r, "panel", "panel.base_url")

	cfg.Panel = config.PanelConfig{BaseURL: "http://127.0.0.1:9000", APIKey: "k"}
	r = New(cfg, nil).Validate()
	for _, w := range r.Warnings {
		if w.Category == "panel" {
			t.Fatalf("unexpected panel warning for loopback: %v", w)
		}
	}
}

func TestValidate_MissingEnvVarsOnDisabledAPI(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Enabled = false
	cfg.API.Auth.Tokens[0].Token = "${HOSTDECK_READER_TOKEN}"
	r := New(cfg, nil).Validate()
	assertHasWarning(t, r, "env_vars", "api.auth.tokens[0].token")
}

func TestValidate_IntegrityWarnings(t *testing.T) {
	t.Parallel()
	r := New(validConfig(), []string{"workspaces/dns.yaml changed since last lock"}).Validate()
	if !r.Valid {
		t.Fatal("integrity warnings must not invalidate")
	}
	assertHasWarning(t, r, "integrity", "")
}

func TestProbe(t *testing.T) {
	t.Parallel()
	d := New(validConfig(), nil)
	r := d.Validate()

	var calls atomic.Int32
	err := d.Probe(context.Background(), r, func(_ context.Context, ws string) error {
		calls.Add(1)
		if ws == "zone" || ws == "db" {
			return errors.New("panel unreachable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if r.Valid {
		t.Fatal("expected invalid after failed probes")
	}
	if len(r.Errors) != 2 || r.Errors[0].Field != "workspaces.db" || r.Errors[1].Field != "workspaces.zone" {
		t.Fatalf("unexpected errors: %v", r.Errors)
	}
}

func TestProbeCancelled(t *testing.T) {
	t.Parallel()
	d := New(validConfig(), nil)
	r := d.Validate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Probe(ctx, r, func(ctx context.Context, _ string) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()
	out := FormatHuman(&Result{Valid: true})
	if out != "Configuration valid.\n" {
		t.Fatalf("unexpected output %q", out)
	}

	out = FormatHuman(&Result{
		Valid:    false,
		Errors:   []Issue{{Category: "panel", Field: "workspaces.db", Message: "refused"}},
		Warnings: []Issue{{Category: "integrity", Message: "changed"}},
	})
	if !strings.Contains(out, "ERROR [panel] workspaces.db: refused") || !strings.Contains(out, "WARN  [integrity] changed") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Valid: true})
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func assertHasError(t *testing.T, r *Result, category, field string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && e.Field == field {
			return
		}
	}
	t.Fatalf("expected error [%s] %s, got %v", category, field, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, field string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && w.Field == field {
			return
		}
	}
	t.Fatalf("expected warning [%s] %s, got %v", category, field, r.Warnings)
}
