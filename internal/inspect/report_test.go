package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/lock"
	"github.com/mattjoyce/hostdeck/internal/state"
	"github.com/mattjoyce/hostdeck/internal/storage"
)

func TestBuildReportRendersStateAndLocks(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "hostdeck.db")
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := state.NewStore(db)
	if err := store.Set(ctx, state.KeyTheme, "dark"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.SetLastSelected(ctx, "site", document.Ref{Kind: document.KindFile, Label: "index.php", Key: "/index.php"}); err != nil {
		t.Fatalf("SetLastSelected(site): %v", err)
	}
	if err := store.SetLastSelected(ctx, "old", document.Ref{Kind: document.KindQuery, Label: "New Query 1", Location: "wp"}); err != nil {
		t.Fatalf("SetLastSelected(old): %v", err)
	}

	l, err := lock.Acquire(lock.PathFor(dbPath, "workspace-site"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	out, err := BuildReport(ctx, db, dbPath, []string{"site"})
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	for _, want := range []string{
		"Database    : " + dbPath,
		"ui.theme",
		"dark",
		"  site\n",
		"entity     : file index.php",
		"key        : /index.php",
		"location   : wp",
		"workspace is no longer configured",
		"workspace-site",
		"hostdeck.workspace-site.pid",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "no longer configured") != 1 {
		t.Fatalf("only the unconfigured workspace should be flagged:\n%s", out)
	}
}

func TestBuildReportEmptyState(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "hostdeck.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	out, err := BuildReport(context.Background(), db, dbPath, nil)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if strings.Count(out, "<none>") != 3 {
		t.Fatalf("expected three empty sections:\n%s", out)
	}
}

func TestBuildJSONReport(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT key, value, updated_at FROM preferences").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "updated_at"}).
			AddRow("ui.sidebar_open", "false", "2026-01-02T03:04:05Z"))
	mock.ExpectQuery("SELECT workspace, ref, updated_at FROM workspace_selection").
		WillReturnRows(sqlmock.NewRows([]string{"workspace", "ref", "updated_at"}).
			AddRow("db", `{"kind":"query","label":"New Query 1","location":"wp"}`, "2026-01-02T03:04:05Z").
			AddRow("broken", "{not json", "2026-01-02T03:04:05Z"))

	statePath := filepath.Join(t.TempDir(), "hostdeck.db")
	out, err := BuildJSONReport(context.Background(), db, statePath, []string{"db"})
	if err != nil {
		t.Fatalf("BuildJSONReport: %v", err)
	}

	var report Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if report.StatePath != statePath {
		t.Fatalf("state_path = %q, want %q", report.StatePath, statePath)
	}
	if len(report.Preferences) != 1 || report.Preferences[0].Value != "false" {
		t.Fatalf("unexpected preferences: %+v", report.Preferences)
	}
	if len(report.Selections) != 2 {
		t.Fatalf("selections = %d, want 2", len(report.Selections))
	}
	if got := report.Selections[0]; !got.Configured || got.Ref.Kind != document.KindQuery || got.Ref.Location != "wp" {
		t.Fatalf("unexpected selection: %+v", got)
	}
	if got := report.Selections[1]; got.Configured || got.Ref.Label != "<invalid JSON>" {
		t.Fatalf("unexpected selection: %+v", got)
	}
	if len(report.Locks) != 0 {
		t.Fatalf("unexpected locks: %+v", report.Locks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBuildReportWrapsQueryErrors(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("FROM preferences").WillReturnError(errors.New("database is locked"))

	_, err = BuildReport(context.Background(), db, "hostdeck.db", nil)
	if err == nil || !strings.Contains(err.Error(), "query preferences: database is locked") {
		t.Fatalf("err = %v", err)
	}
}
