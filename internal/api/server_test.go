package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hostdeck/internal/auth"
	"github.com/mattjoyce/hostdeck/internal/config"
	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/events"
	"github.com/mattjoyce/hostdeck/internal/panelapi"
	"github.com/mattjoyce/hostdeck/internal/paneltest"
	"github.com/mattjoyce/hostdeck/internal/workspace"
)

const (
	adminKey    = "admin-key"
	readerToken = "reader"
)

type testAPI struct {
	url   string
	panel *paneltest.Server
	hub   *events.Hub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	panel := paneltest.New(t)
	client := panelapi.New(panel.URL, panel.APIKey, 5*time.Second, nil)

	cfg := &config.Config{Workspaces: map[string]config.WorkspaceConfig{
		"site": {Kind: config.KindFiles, Root: "/"},
		"db":   {Kind: config.KindDatabase, Database: "wordpress", RowLimit: 10},
		"cron": {Kind: config.KindCron},
	}}
	hub := events.NewHub(100)
	set, err := workspace.OpenSet(cfg, client, workspace.SetOptions{Publisher: hub})
	require.NoError(t, err)

	srv := New(Config{
		APIKey: adminKey,
		Tokens: []auth.TokenConfig{{Token: readerToken, Scopes: []string{auth.ScopeWorkspaceRO}}},
	}, set, hub, nil)
	srv.keepAlive = 50 * time.Millisecond

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testAPI{url: ts.URL, panel: panel, hub: hub}
}

func (a *testAPI) do(t *testing.T, token, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.url+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func (a *testAPI) defaultView(t *testing.T, ws string) string {
	t.Helper()
	status, body := a.do(t, adminKey, http.MethodGet, "/workspaces/"+ws+"/tabs", nil)
	require.Equal(t, http.StatusOK, status)
	snap := decode[workspace.Snapshot](t, body)
	require.NotEmpty(t, snap.Tabs)
	return snap.Tabs[0].ID
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	a := newTestAPI(t)
	status, body := a.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	resp := decode[HealthzResponse](t, body)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Workspaces)
}

func TestAuthAndScopes(t *testing.T) {
	a := newTestAPI(t)

	status, _ := a.do(t, "", http.MethodGet, "/workspaces", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = a.do(t, "wrong", http.MethodGet, "/workspaces", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := a.do(t, readerToken, http.MethodGet, "/workspaces", nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[WorkspacesResponse](t, body)
	require.Len(t, list.Workspaces, 3)
	assert.Equal(t, "cron", list.Workspaces[0].Name)
	assert.Equal(t, config.KindDatabase, list.Workspaces[1].Kind)

	status, _ = a.do(t, readerToken, http.MethodPost, "/workspaces/site/documents", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = a.do(t, adminKey, http.MethodGet, "/workspaces/mail/tabs", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFileEditSaveClose(t *testing.T) {
	a := newTestAPI(t)
	view := a.defaultView(t, "site")

	status, body := a.do(t, adminKey, http.MethodGet, "/workspaces/site/views/"+view+"/entries", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	listing := decode[ViewResponse](t, body)
	require.Len(t, listing.Entries, 3)
	assert.Equal(t, "/", listing.View.Location)

	status, body = a.do(t, adminKey, http.MethodGet, "/workspaces/site/views/"+view+"/entries?filter=wp-", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[ViewResponse](t, body).Entries, 2)

	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/navigate", NavigateRequest{Name: "index.php"})
	require.Equal(t, http.StatusOK, status, string(body))
	docID := decode[TabResponse](t, body).ID

	// Opening the same file again focuses the existing tab.
	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/navigate", NavigateRequest{Name: "index.php"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, docID, decode[TabResponse](t, body).ID)

	status, body = a.do(t, adminKey, http.MethodGet, "/workspaces/site/documents/"+docID, nil)
	require.Equal(t, http.StatusOK, status)
	doc := decode[DocumentResponse](t, body)
	assert.Contains(t, doc.Current.Text, "wp-blog-header")
	assert.False(t, doc.Dirty)

	edited := map[string]any{"value": map[string]any{"text": "<?php echo 'hi';"}}
	status, body = a.do(t, adminKey, http.MethodPut, "/workspaces/site/documents/"+docID, edited)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.True(t, decode[DocumentResponse](t, body).Dirty)

	status, _ = a.do(t, adminKey, http.MethodDelete, "/workspaces/site/tabs/"+docID, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/site/documents/"+docID+"/save", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	content, _ := a.panel.File("/index.php")
	assert.Equal(t, "<?php echo 'hi';", content)

	status, body = a.do(t, adminKey, http.MethodDelete, "/workspaces/site/tabs/"+docID, nil)
	require.Equal(t, http.StatusOK, status)
	closed := decode[CloseResponse](t, body)
	assert.True(t, closed.Closed)
	assert.Equal(t, view, closed.Active)
}

func TestDiscardWithConfirm(t *testing.T) {
	a := newTestAPI(t)

	status, body := a.do(t, adminKey, http.MethodPost, "/workspaces/site/documents", nil)
	require.Equal(t, http.StatusCreated, status)
	id := decode[TabResponse](t, body).ID

	status, _ = a.do(t, adminKey, http.MethodPut, "/workspaces/site/documents/"+id, map[string]any{"value": map[string]any{"text": "draft"}})
	require.Equal(t, http.StatusOK, status)

	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/site/documents/"+id+"/revert", nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[DocumentResponse](t, body).Dirty)

	status, _ = a.do(t, adminKey, http.MethodPut, "/workspaces/site/documents/"+id, map[string]any{"value": map[string]any{"text": "draft"}})
	require.Equal(t, http.StatusOK, status)
	status, _ = a.do(t, adminKey, http.MethodDelete, "/workspaces/site/tabs/"+id+"?confirm=true", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = a.do(t, adminKey, http.MethodGet, "/workspaces/site/documents/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestEditRequestValidation(t *testing.T) {
	a := newTestAPI(t)
	status, body := a.do(t, adminKey, http.MethodPost, "/workspaces/site/documents", nil)
	require.Equal(t, http.StatusCreated, status)
	id := decode[TabResponse](t, body).ID

	status, _ = a.do(t, adminKey, http.MethodPut, "/workspaces/site/documents/"+id, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, adminKey, http.MethodPut, "/workspaces/site/documents/nope", map[string]any{"value": map[string]any{"text": "x"}})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSavePanelFailureKeepsEdits(t *testing.T) {
	a := newTestAPI(t)
	view := a.defaultView(t, "site")

	status, body := a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/navigate", NavigateRequest{Name: "wp-config.php"})
	require.Equal(t, http.StatusOK, status, string(body))
	id := decode[TabResponse](t, body).ID

	status, _ = a.do(t, adminKey, http.MethodPut, "/workspaces/site/documents/"+id, map[string]any{"value": map[string]any{"text": "broken"}})
	require.Equal(t, http.StatusOK, status)

	a.panel.Fail("PUT /api/files/content", paneltest.Failure{Status: http.StatusInternalServerError, Message: "disk full"})
	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/site/documents/"+id+"/save", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	errResp := decode[ErrorResponse](t, body)
	assert.Equal(t, "disk full", errResp.Error)
	assert.False(t, errResp.Transport)

	status, body = a.do(t, adminKey, http.MethodGet, "/workspaces/site/documents/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	doc := decode[DocumentResponse](t, body)
	assert.True(t, doc.Dirty)
	assert.Equal(t, "broken", doc.Current.Text)
}

func TestSavePanelRejectionIsUnprocessable(t *testing.T) {
	a := newTestAPI(t)
	view := a.defaultView(t, "site")

	status, body := a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/navigate", NavigateRequest{Name: "wp-config.php"})
	require.Equal(t, http.StatusOK, status, string(body))
	id := decode[TabResponse](t, body).ID

	status, _ = a.do(t, adminKey, http.MethodPut, "/workspaces/site/documents/"+id, map[string]any{"value": map[string]any{"text": "locked"}})
	require.Equal(t, http.StatusOK, status)

	a.panel.Fail("PUT /api/files/content", paneltest.Failure{Status: http.StatusConflict, Message: "file locked"})
	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/site/documents/"+id+"/save", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status, string(body))
	assert.Equal(t, "file locked", decode[ErrorResponse](t, body).Error)
}

func TestQueryExecuteAndSave(t *testing.T) {
	a := newTestAPI(t)

	status, body := a.do(t, adminKey, http.MethodPost, "/workspaces/db/documents", nil)
	require.Equal(t, http.StatusCreated, status)
	id := decode[TabResponse](t, body).ID

	status, body = a.do(t, adminKey, http.MethodGet, "/workspaces/db/documents/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	doc := decode[DocumentResponse](t, body)
	assert.Equal(t, "New Query 1", doc.Label)
	assert.Equal(t, "wordpress", doc.Location)

	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/db/documents/"+id+"/execute", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	res := decode[document.Result](t, body)
	assert.Empty(t, res.Error)
	require.Len(t, res.Rows, 1)
	assert.EqualValues(t, 1, res.Rows[0]["x"])

	status, _ = a.do(t, adminKey, http.MethodPut, "/workspaces/db/documents/"+id, map[string]any{"value": map[string]any{"text": "SELEKT"}})
	require.Equal(t, http.StatusOK, status)

	// The database rejecting a query is a result, not a failed request.
	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/db/documents/"+id+"/execute", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "SQL syntax")

	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/db/documents/"+id+"/save", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, decode[ErrorResponse](t, body).Error, "SQL syntax")
}

func TestExecuteOnFileIsBadRequest(t *testing.T) {
	a := newTestAPI(t)
	status, body := a.do(t, adminKey, http.MethodPost, "/workspaces/site/documents", nil)
	require.Equal(t, http.StatusCreated, status)
	id := decode[TabResponse](t, body).ID

	status, _ = a.do(t, adminKey, http.MethodPost, "/workspaces/site/documents/"+id+"/execute", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNavigateIntoDirectoryAndUp(t *testing.T) {
	a := newTestAPI(t)
	view := a.defaultView(t, "site")

	status, body := a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/navigate", NavigateRequest{Name: "wp-content"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, view, decode[TabResponse](t, body).ID)

	status, body = a.do(t, adminKey, http.MethodGet, "/workspaces/site/views/"+view+"/entries", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "/wp-content", decode[ViewResponse](t, body).View.Location)

	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/up", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[UpResponse](t, body).Moved)

	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/up", nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[UpResponse](t, body).Moved)

	status, _ = a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/navigate", NavigateRequest{Name: "missing.php"})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/navigate", NavigateRequest{Name: "wp-content", NewTab: true})
	require.Equal(t, http.StatusOK, status)
	assert.NotEqual(t, view, decode[TabResponse](t, body).ID)
}

func TestMutationsAndToggle(t *testing.T) {
	a := newTestAPI(t)
	view := a.defaultView(t, "site")

	status, _ := a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/mutations", map[string]any{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/mutations",
		map[string]any{"action": "create_file", "name": "robots.txt"})
	require.Equal(t, http.StatusOK, status, string(body))
	_, ok := a.panel.File("/robots.txt")
	assert.True(t, ok)

	status, body = a.do(t, adminKey, http.MethodGet, "/workspaces/site/views/"+view+"/entries", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[ViewResponse](t, body).Entries, 4)

	cronView := a.defaultView(t, "cron")
	status, body = a.do(t, adminKey, http.MethodPost, "/workspaces/cron/views/"+cronView+"/toggle", ToggleRequest{Name: "cron-1", Enabled: false})
	require.Equal(t, http.StatusNoContent, status, string(body))
	jobs := a.panel.CronJobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].Enabled)

	status, _ = a.do(t, adminKey, http.MethodPost, "/workspaces/site/views/"+view+"/toggle", ToggleRequest{Name: "index.php", Enabled: false})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEventsStream(t *testing.T) {
	a := newTestAPI(t)
	a.hub.Publish(events.TypeNotification, events.Notification{Workspace: "db", Level: events.LevelInfo, Message: "other"})
	a.hub.Publish(events.TypeNotification, events.Notification{Workspace: "site", Level: events.LevelInfo, Message: "saved"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url+"/events?workspace=site", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+readerToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	var data []string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "data: ") {
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
		if strings.HasPrefix(line, ": keep-alive") {
			break
		}
	}
	require.Len(t, data, 1)
	assert.Contains(t, data[0], `"message":"saved"`)
}

func TestOpenAPIDoc(t *testing.T) {
	a := newTestAPI(t)
	status, body := a.do(t, readerToken, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, status)

	doc := decode[map[string]any](t, body)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	for _, rt := range workspaceRoutes {
		item, ok := paths[rt.path].(map[string]any)
		require.True(t, ok, rt.path)
		assert.Contains(t, item, rt.method, rt.path)
	}
	assert.Contains(t, string(body), `"enum":["cron","db","site"]`)
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("-4"))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(12), parseLastEventID("12"))
}
