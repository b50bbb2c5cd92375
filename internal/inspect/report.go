// Package inspect renders what hostdeck keeps in its state database: UI
// preferences, the last entity selected per workspace, and which processes
// hold the lock files next to it.
package inspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/lock"
)

// Report is the structured JSON representation of a state report.
type Report struct {
	StatePath   string       `json:"state_path"`
	Preferences []Preference `json:"preferences"`
	Selections  []Selection  `json:"selections"`
	Locks       []LockInfo   `json:"locks"`
}

// Preference is one stored UI preference.
type Preference struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

// Selection is the entity a workspace reopens on launch.
type Selection struct {
	Workspace string       `json:"workspace"`
	Ref       document.Ref `json:"ref"`
	UpdatedAt string       `json:"updated_at"`
	// Configured is false for workspaces no longer in the configuration.
	Configured bool `json:"configured"`
}

// LockInfo describes one lock file that exists next to the state database.
type LockInfo struct {
	Role string `json:"role"`
	Path string `json:"path"`
	PID  int    `json:"pid,omitempty"`
}

// BuildReport renders a terminal-friendly state report.
func BuildReport(ctx context.Context, db *sql.DB, statePath string, workspaces []string) (string, error) {
	report, err := gatherReportData(ctx, db, statePath, workspaces)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "State Report\n")
	fmt.Fprintf(&out, "Database    : %s\n", report.StatePath)
	fmt.Fprintf(&out, "\n")

	fmt.Fprintf(&out, "Preferences\n")
	if len(report.Preferences) == 0 {
		fmt.Fprintf(&out, "  <none>\n")
	}
	for _, p := range report.Preferences {
		fmt.Fprintf(&out, "  %-16s %-8s (%s)\n", p.Key, p.Value, p.UpdatedAt)
	}
	fmt.Fprintf(&out, "\n")

	fmt.Fprintf(&out, "Last selected\n")
	if len(report.Selections) == 0 {
		fmt.Fprintf(&out, "  <none>\n")
	}
	for _, s := range report.Selections {
		fmt.Fprintf(&out, "  %s\n", s.Workspace)
		fmt.Fprintf(&out, "    entity     : %s %s\n", s.Ref.Kind, renderUnset(s.Ref.Label, "<unnamed>"))
		if s.Ref.Key != "" {
			fmt.Fprintf(&out, "    key        : %s\n", s.Ref.Key)
		}
		if s.Ref.Location != "" {
			fmt.Fprintf(&out, "    location   : %s\n", s.Ref.Location)
		}
		fmt.Fprintf(&out, "    updated_at : %s\n", s.UpdatedAt)
		if !s.Configured {
			fmt.Fprintf(&out, "    note       : workspace is no longer configured\n")
		}
	}
	fmt.Fprintf(&out, "\n")

	fmt.Fprintf(&out, "Locks\n")
	if len(report.Locks) == 0 {
		fmt.Fprintf(&out, "  <none>\n")
	}
	for _, l := range report.Locks {
		pid := "<unreadable>"
		if l.PID > 0 {
			pid = fmt.Sprintf("pid %d", l.PID)
		}
		fmt.Fprintf(&out, "  %-20s %s (%s)\n", l.Role, l.Path, pid)
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable state report.
func BuildJSONReport(ctx context.Context, db *sql.DB, statePath string, workspaces []string) (string, error) {
	report, err := gatherReportData(ctx, db, statePath, workspaces)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, db *sql.DB, statePath string, workspaces []string) (*Report, error) {
	report := &Report{
		StatePath:   statePath,
		Preferences: make([]Preference, 0),
		Selections:  make([]Selection, 0),
		Locks:       make([]LockInfo, 0),
	}

	prefs, err := listPreferences(ctx, db)
	if err != nil {
		return nil, err
	}
	report.Preferences = prefs

	configured := make(map[string]bool, len(workspaces))
	for _, ws := range workspaces {
		configured[ws] = true
	}
	sels, err := listSelections(ctx, db)
	if err != nil {
		return nil, err
	}
	for i := range sels {
		sels[i].Configured = configured[sels[i].Workspace]
	}
	report.Selections = sels

	roles := []string{"server"}
	for _, ws := range workspaces {
		roles = append(roles, "workspace-"+ws)
	}
	for _, role := range roles {
		path := lock.PathFor(statePath, role)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		pid, _ := lock.ReadPID(path)
		report.Locks = append(report.Locks, LockInfo{Role: role, Path: path, PID: pid})
	}

	return report, nil
}

func listPreferences(ctx context.Context, db *sql.DB) ([]Preference, error) {
	rows, err := db.QueryContext(ctx, `
SELECT key, value, updated_at
FROM preferences
ORDER BY key ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	out := make([]Preference, 0)
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.Key, &p.Value, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return out, nil
}

func listSelections(ctx context.Context, db *sql.DB) ([]Selection, error) {
	rows, err := db.QueryContext(ctx, `
SELECT workspace, ref, updated_at
FROM workspace_selection
ORDER BY workspace ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("query selections: %w", err)
	}
	defer rows.Close()

	out := make([]Selection, 0)
	for rows.Next() {
		var (
			s   Selection
			raw string
		)
		if err := rows.Scan(&s.Workspace, &raw, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &s.Ref); err != nil {
			s.Ref = document.Ref{Label: "<invalid JSON>"}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate selections: %w", err)
	}
	return out, nil
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
