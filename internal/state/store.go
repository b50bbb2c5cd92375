// Package state persists hostdeck's local UI state: preferences and the last
// entity selected in each workspace.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/hostdeck/internal/document"
)

// MaxValueBytes bounds a single stored value.
const MaxValueBytes = 64 << 10

// Store reads and writes the preferences and workspace_selection tables.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Get returns a preference value. ok is false when the key was never set.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	if key == "" {
		return "", false, fmt.Errorf("preference key is empty")
	}
	err = s.db.QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?;", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read preference %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores a preference value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("preference key is empty")
	}
	if len(value) > MaxValueBytes {
		return fmt.Errorf("preference %q exceeds max size (%d bytes)", key, MaxValueBytes)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO preferences(key, value, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value = excluded.value,
  updated_at = excluded.updated_at;
`, key, value, s.timestamp())
	if err != nil {
		return fmt.Errorf("upsert preference %q: %w", key, err)
	}
	return nil
}

// SetLastSelected remembers ref as the last entity selected in workspace.
func (s *Store) SetLastSelected(ctx context.Context, workspace string, ref document.Ref) error {
	if workspace == "" {
		return fmt.Errorf("workspace name is empty")
	}
	raw, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO workspace_selection(workspace, ref, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(workspace) DO UPDATE SET
  ref = excluded.ref,
  updated_at = excluded.updated_at;
`, workspace, string(raw), s.timestamp())
	if err != nil {
		return fmt.Errorf("upsert selection for %q: %w", workspace, err)
	}
	return nil
}

// LastSelected returns the entity last selected in workspace. ok is false
// when nothing was selected yet.
func (s *Store) LastSelected(ctx context.Context, workspace string) (ref document.Ref, ok bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx, "SELECT ref FROM workspace_selection WHERE workspace = ?;", workspace).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Ref{}, false, nil
	}
	if err != nil {
		return document.Ref{}, false, fmt.Errorf("read selection for %q: %w", workspace, err)
	}
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return document.Ref{}, false, fmt.Errorf("stored selection for %q is invalid JSON: %w", workspace, err)
	}
	return ref, true, nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}
