package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/hostdeck/internal/api"
	"github.com/mattjoyce/hostdeck/internal/auth"
	"github.com/mattjoyce/hostdeck/internal/config"
	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/events"
	"github.com/mattjoyce/hostdeck/internal/inspect"
	"github.com/mattjoyce/hostdeck/internal/log"
	"github.com/mattjoyce/hostdeck/internal/panelapi"
	"github.com/mattjoyce/hostdeck/internal/paneltest"
	"github.com/mattjoyce/hostdeck/internal/state"
	"github.com/mattjoyce/hostdeck/internal/storage"
	"github.com/mattjoyce/hostdeck/internal/workspace"
)

const (
	editorToken = "e2e-editor-secret"
	viewerToken = "e2e-viewer-secret"
)

type harness struct {
	t     *testing.T
	url   string
	panel *paneltest.Server
	store *state.Store
	cfg   *config.Config
}

// newHarness wires a locked config directory, the state database and the
// HTTP API against a fake panel, the same way 'hostdeck system start' does.
func newHarness(t *testing.T) *harness {
	t.Helper()

	panel := paneltest.New(t)
	dir := t.TempDir()
	t.Setenv("HOSTDECK_E2E_EDITOR_TOKEN", editorToken)

	configYAML := fmt.Sprintf(`service:
  log_level: error
  log_format: text
state:
  path: %s
panel:
  base_url: %s
  api_key: %s
  timeout: 5s
api:
  enabled: true
  listen: 127.0.0.1:0
workspaces:
  site:
    kind: files
    label: Site
    root: /
  db:
    kind: database
    label: Database
    database: wordpress
    row_limit: 25
`, filepath.Join(dir, "data", "hostdeck.db"), panel.URL, panel.APIKey)
	tokensYAML := fmt.Sprintf(`tokens:
  - name: editor
    token: ${HOSTDECK_E2E_EDITOR_TOKEN}
    scopes: ["workspace:rw"]
  - name: viewer
    token: %s
    scopes: ["workspace:ro"]
`, viewerToken)

	writeFile(t, filepath.Join(dir, "config.yaml"), configYAML)
	writeFile(t, filepath.Join(dir, "tokens.yaml"), tokensYAML)

	files, err := config.DiscoverConfigFiles(dir)
	if err != nil {
		t.Fatalf("DiscoverConfigFiles: %v", err)
	}
	if _, err := config.GenerateChecksums(files, false); err != nil {
		t.Fatalf("GenerateChecksums: %v", err)
	}

	cfg, warnings, err := config.Load(dir)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected integrity warnings: %v", warnings)
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := state.NewStore(db)

	hub := events.NewHub(64)
	client := panelapi.New(cfg.Panel.BaseURL, cfg.Panel.APIKey, cfg.Panel.Timeout, log.WithComponent("panel"))
	set, err := workspace.OpenSet(cfg, client, workspace.SetOptions{Publisher: hub, Selection: store})
	if err != nil {
		t.Fatalf("OpenSet: %v", err)
	}

	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, tok := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: tok.Token, Scopes: tok.Scopes})
	}
	srv := api.New(api.Config{Listen: cfg.API.Listen, Tokens: tokens}, set, hub, log.WithComponent("api"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &harness{t: t, url: ts.URL, panel: panel, store: store, cfg: cfg}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func (h *harness) do(token, method, path string, body any, out any) int {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.url+path, rd)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read body: %v", err)
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			h.t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode
}

func (h *harness) defaultView(ws string) string {
	h.t.Helper()
	var snap workspace.Snapshot
	if status := h.do(viewerToken, http.MethodGet, "/workspaces/"+ws+"/tabs", nil, &snap); status != http.StatusOK {
		h.t.Fatalf("tabs of %s: status %d", ws, status)
	}
	if len(snap.Tabs) == 0 {
		h.t.Fatalf("workspace %s has no tabs", ws)
	}
	return snap.Tabs[0].ID
}

func TestEditFileThroughAPI(t *testing.T) {
	h := newHarness(t)
	view := h.defaultView("site")

	var opened api.TabResponse
	if status := h.do(editorToken, http.MethodPost, "/workspaces/site/views/"+view+"/navigate",
		api.NavigateRequest{Name: "wp-config.php"}, &opened); status != http.StatusOK {
		t.Fatalf("navigate: status %d", status)
	}

	// A second navigation focuses the same tab.
	var again api.TabResponse
	h.do(editorToken, http.MethodPost, "/workspaces/site/views/"+view+"/navigate",
		api.NavigateRequest{Name: "wp-config.php"}, &again)
	if again.ID != opened.ID {
		t.Fatalf("reopen gave tab %s, want %s", again.ID, opened.ID)
	}

	edited := "<?php define('DB_NAME', 'staging');"
	var doc api.DocumentResponse
	if status := h.do(editorToken, http.MethodPut, "/workspaces/site/documents/"+opened.ID,
		api.EditRequest{Value: &document.Value{Text: edited}}, &doc); status != http.StatusOK {
		t.Fatalf("edit: status %d", status)
	}
	if !doc.Dirty {
		t.Fatal("edited document should be dirty")
	}

	if status := h.do(viewerToken, http.MethodPost, "/workspaces/site/documents/"+opened.ID+"/save", nil, nil); status != http.StatusForbidden {
		t.Fatalf("viewer save: status %d, want 403", status)
	}
	if got, _ := h.panel.File("/wp-config.php"); got == edited {
		t.Fatal("viewer token must not reach the panel")
	}

	var saved api.SaveResponse
	if status := h.do(editorToken, http.MethodPost, "/workspaces/site/documents/"+opened.ID+"/save", nil, &saved); status != http.StatusOK {
		t.Fatalf("save: status %d", status)
	}
	if got, _ := h.panel.File("/wp-config.php"); got != edited {
		t.Fatalf("panel file = %q, want %q", got, edited)
	}

	h.do(viewerToken, http.MethodGet, "/workspaces/site/documents/"+opened.ID, nil, &doc)
	if doc.Dirty {
		t.Fatal("saved document should be clean")
	}

	ref, ok, err := h.store.LastSelected(context.Background(), "site")
	if err != nil || !ok {
		t.Fatalf("LastSelected: ok=%v err=%v", ok, err)
	}
	if ref.Key != "/wp-config.php" || ref.Kind != document.KindFile {
		t.Fatalf("last selected = %+v", ref)
	}
}

func TestQueryWorkspaceThroughAPI(t *testing.T) {
	h := newHarness(t)

	var created api.TabResponse
	if status := h.do(editorToken, http.MethodPost, "/workspaces/db/documents", nil, &created); status != http.StatusCreated {
		t.Fatalf("new document: status %d", status)
	}

	var doc api.DocumentResponse
	h.do(editorToken, http.MethodPut, "/workspaces/db/documents/"+created.ID,
		api.EditRequest{Value: &document.Value{Text: "SELECT 3"}}, &doc)

	var res document.Result
	if status := h.do(editorToken, http.MethodPost, "/workspaces/db/documents/"+created.ID+"/execute", nil, &res); status != http.StatusOK {
		t.Fatalf("execute: status %d", status)
	}
	if res.Failed() || len(res.Rows) != 1 || fmt.Sprint(res.Rows[0]["x"]) != "3" {
		t.Fatalf("unexpected result: %+v", res)
	}

	h.do(editorToken, http.MethodPut, "/workspaces/db/documents/"+created.ID,
		api.EditRequest{Value: &document.Value{Text: "SELEC 3"}}, &doc)
	res = document.Result{}
	if status := h.do(editorToken, http.MethodPost, "/workspaces/db/documents/"+created.ID+"/execute", nil, &res); status != http.StatusOK {
		t.Fatalf("execute: status %d", status)
	}
	if !strings.Contains(res.Error, "SQL syntax") {
		t.Fatalf("syntax error should come back in the result, got %+v", res)
	}
	if h.panel.Calls("POST /api/databases/wordpress/query") != 2 {
		t.Fatalf("query calls = %d, want 2", h.panel.Calls("POST /api/databases/wordpress/query"))
	}
}

func TestPanelFailureLeavesNoTabBehind(t *testing.T) {
	h := newHarness(t)
	view := h.defaultView("site")

	h.panel.Fail("GET /api/files/content", paneltest.Failure{Status: http.StatusBadGateway, Message: "upstream down"})
	status := h.do(editorToken, http.MethodPost, "/workspaces/site/views/"+view+"/navigate",
		api.NavigateRequest{Name: "index.php"}, nil)
	if status < 400 {
		t.Fatalf("navigate while failing: status %d", status)
	}

	var snap workspace.Snapshot
	h.do(viewerToken, http.MethodGet, "/workspaces/site/tabs", nil, &snap)
	if len(snap.Tabs) != 1 {
		t.Fatalf("failed load must not leave a tab behind: %+v", snap.Tabs)
	}

	h.panel.Recover("GET /api/files/content")
	var opened api.TabResponse
	if status := h.do(editorToken, http.MethodPost, "/workspaces/site/views/"+view+"/navigate",
		api.NavigateRequest{Name: "index.php"}, &opened); status != http.StatusOK {
		t.Fatalf("navigate after recovery: status %d", status)
	}
}

func TestStateReportAfterSession(t *testing.T) {
	h := newHarness(t)
	view := h.defaultView("site")
	h.do(editorToken, http.MethodPost, "/workspaces/site/views/"+view+"/navigate",
		api.NavigateRequest{Name: "index.php"}, nil)

	sqlDB, err := storage.OpenSQLite(context.Background(), h.cfg.State.Path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := inspect.BuildReport(ctx, sqlDB, h.cfg.State.Path, h.cfg.WorkspaceNames())
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if !strings.Contains(out, "key        : /index.php") {
		t.Fatalf("report should show the last selection:\n%s", out)
	}
	if strings.Contains(out, "no longer configured") {
		t.Fatalf("site is still configured:\n%s", out)
	}
}
