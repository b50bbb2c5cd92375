// Package paneltest provides an in-memory hosting panel backend for tests.
package paneltest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mattjoyce/hostdeck/internal/panelapi"
)

// QueryFunc answers a query. It returns the HTTP status and raw JSON body.
type QueryFunc func(database, query string) (int, string)

// Failure is an injected error response.
type Failure struct {
	Status  int
	Message string
}

// Server is a fake panel. Zero value is not usable; call New.
type Server struct {
	*httptest.Server

	APIKey string

	mu        sync.Mutex
	files     map[string]string
	dirs      map[string]bool
	databases map[string][]string
	records   map[string][]panelapi.DNSRecord
	cron      []panelapi.CronJob
	restored  []string
	query     QueryFunc
	failures  map[string]Failure
	calls     map[string]int
	hold      map[string]chan struct{}
}

// New starts a fake panel with a small WordPress-like tree and stops it when
// the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		APIKey: "panel-key",
		files: map[string]string{
			"/index.php":                    "<?php require 'wp-blog-header.php';",
			"/wp-config.php":                "<?php define('DB_NAME', 'wordpress');",
			"/wp-content/plugins/hello.php": "<?php // hello",
		},
		dirs: map[string]bool{
			"/":                   true,
			"/wp-content":         true,
			"/wp-content/plugins": true,
		},
		databases: map[string][]string{
			"wordpress": {"wp_options", "wp_posts"},
		},
		records: map[string][]panelapi.DNSRecord{
			"example.com": {
				{ID: "rec-a", Type: "A", Name: "example.com", Content: "203.0.113.10", TTL: 1, Proxied: true},
				{ID: "rec-www", Type: "CNAME", Name: "www", Content: "example.com", TTL: 1, Proxied: true},
			},
		},
		cron: []panelapi.CronJob{
			{ID: "cron-1", Schedule: "*/5 * * * *", Command: "php /var/www/wp-cron.php", Enabled: true},
		},
		failures: make(map[string]Failure),
		calls:    make(map[string]int),
		hold:     make(map[string]chan struct{}),
	}
	s.query = defaultQuery
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.auth)
	r.Use(s.intercept)

	r.Get("/api/files", s.handleListFiles)
	r.Post("/api/files", s.handleCreateFile)
	r.Delete("/api/files", s.handleDeleteFile)
	r.Get("/api/files/content", s.handleReadFile)
	r.Put("/api/files/content", s.handleWriteFile)
	r.Post("/api/backups/{id}/restore", s.handleRestore)

	r.Get("/api/databases", s.handleListDatabases)
	r.Get("/api/databases/{db}/tables", s.handleListTables)
	r.Post("/api/databases/{db}/query", s.handleQuery)

	r.Route("/api/cloudflare/zones/{zone}/dns", func(r chi.Router) {
		r.Get("/", s.handleListDNS)
		r.Post("/", s.handleCreateDNS)
		r.Put("/{id}", s.handleUpdateDNS)
		r.Delete("/{id}", s.handleDeleteDNS)
	})

	r.Route("/api/cron", func(r chi.Router) {
		r.Get("/", s.handleListCron)
		r.Post("/", s.handleCreateCron)
		r.Put("/{id}", s.handleUpdateCron)
		r.Delete("/{id}", s.handleDeleteCron)
		r.Post("/{id}/toggle", s.handleToggleCron)
	})
	return r
}

// Fail makes every request matching "METHOD /path" answer with f until
// Recover is called.
func (s *Server) Fail(route string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = f
}

// Recover removes an injected failure.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// Hold blocks requests matching route until the returned release func is
// called.
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold[route] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.hold, route)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many requests hit "METHOD /path".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// SetQuery replaces the query responder.
func (s *Server) SetQuery(fn QueryFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = fn
}

// File returns the stored content of a file.
func (s *Server) File(p string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.files[p]
	return c, ok
}

// Restored lists the backup ids restored so far.
func (s *Server) Restored() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.restored...)
}

// CronJobs returns the current cron table.
func (s *Server) CronJobs() []panelapi.CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]panelapi.CronJob(nil), s.cron...)
}

// Records returns the DNS records of a zone.
func (s *Server) Records(zone string) []panelapi.DNSRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]panelapi.DNSRecord(nil), s.records[zone]...)
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + strings.TrimSuffix(r.URL.Path, "/")
		s.mu.Lock()
		s.calls[route]++
		f, failing := s.failures[route]
		hold := s.hold[route]
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			body := map[string]string{}
			if f.Message != "" {
				body["error"] = f.Message
			}
			writeJSON(w, f.Status, body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	dir := cleanPath(r.URL.Query().Get("path"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirs[dir] {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "directory not found: " + dir})
		return
	}

	mod := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entries := []panelapi.FileEntry{}
	for d := range s.dirs {
		if d != "/" && path.Dir(d) == dir {
			entries = append(entries, panelapi.FileEntry{Name: path.Base(d), Path: d, Type: "dir", Modified: &mod})
		}
	}
	for f, content := range s.files {
		if path.Dir(f) == dir {
			size := int64(len(content))
			entries = append(entries, panelapi.FileEntry{Name: path.Base(f), Path: f, Type: "file", Size: &size, Modified: &mod})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == "dir"
		}
		return entries[i].Name < entries[j].Name
	})
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	p := cleanPath(r.URL.Query().Get("path"))
	s.mu.Lock()
	content, ok := s.files[p]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found: " + p})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	p := cleanPath(req.Path)
	s.mu.Lock()
	s.files[p] = req.Content
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "saved " + p})
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	p := cleanPath(req.Path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.files[p]; exists || s.dirs[p] {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already exists: " + p})
		return
	}
	if req.Type == "dir" {
		s.dirs[p] = true
	} else {
		s.files[p] = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	p := cleanPath(r.URL.Query().Get("path"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[p]; ok {
		delete(s.files, p)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	if s.dirs[p] && p != "/" {
		for f := range s.files {
			if strings.HasPrefix(f, p+"/") {
				delete(s.files, f)
			}
		}
		for d := range s.dirs {
			if d == p || strings.HasPrefix(d, p+"/") {
				delete(s.dirs, d)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found: " + p})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	s.restored = append(s.restored, id)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "restored " + id})
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []panelapi.Database{}
	for name, tables := range s.databases {
		out = append(out, panelapi.Database{Name: name, Tables: len(tables)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, map[string]any{"databases": out})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	db := chi.URLParam(r, "db")
	s.mu.Lock()
	defer s.mu.Unlock()
	tables, ok := s.databases[db]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown database " + db})
		return
	}
	out := make([]panelapi.Table, 0, len(tables))
	for _, t := range tables {
		out = append(out, panelapi.Table{Name: t})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": out})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	s.mu.Lock()
	fn := s.query
	s.mu.Unlock()

	status, body := fn(chi.URLParam(r, "db"), req.Query)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// defaultQuery answers "SELECT <n>" with one row {"x": n} and rejects
// everything else.
func defaultQuery(_ string, query string) (int, string) {
	q := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if rest, ok := strings.CutPrefix(strings.ToUpper(q), "SELECT "); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
			return http.StatusOK, fmt.Sprintf(`{"results":[{"x":%d}]}`, n)
		}
	}
	return http.StatusOK, `{"error":"You have an error in your SQL syntax"}`
}

func (s *Server) handleListDNS(w http.ResponseWriter, r *http.Request) {
	zone := chi.URLParam(r, "zone")
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := append([]panelapi.DNSRecord{}, s.records[zone]...)
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) handleCreateDNS(w http.ResponseWriter, r *http.Request) {
	zone := chi.URLParam(r, "zone")
	var rec panelapi.DNSRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if rec.Name == "" || rec.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and type are required"})
		return
	}
	rec.ID = "rec-" + uuid.NewString()[:8]
	s.mu.Lock()
	s.records[zone] = append(s.records[zone], rec)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"record": rec})
}

func (s *Server) handleUpdateDNS(w http.ResponseWriter, r *http.Request) {
	zone, id := chi.URLParam(r, "zone"), chi.URLParam(r, "id")
	var rec panelapi.DNSRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.records[zone] {
		if cur.ID == id {
			rec.ID = id
			s.records[zone][i] = rec
			writeJSON(w, http.StatusOK, map[string]any{"record": rec})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
}

func (s *Server) handleDeleteDNS(w http.ResponseWriter, r *http.Request) {
	zone, id := chi.URLParam(r, "zone"), chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.records[zone] {
		if cur.ID == id {
			s.records[zone] = append(s.records[zone][:i], s.records[zone][i+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
}

func (s *Server) handleListCron(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"jobs": append([]panelapi.CronJob{}, s.cron...)})
}

func (s *Server) handleCreateCron(w http.ResponseWriter, r *http.Request) {
	var job panelapi.CronJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(job.Schedule) == "" || strings.TrimSpace(job.Command) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "schedule and command are required"})
		return
	}
	job.ID = "cron-" + uuid.NewString()[:8]
	s.mu.Lock()
	s.cron = append(s.cron, job)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) handleUpdateCron(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var job panelapi.CronJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.cron {
		if cur.ID == id {
			job.ID = id
			s.cron[i] = job
			writeJSON(w, http.StatusOK, map[string]any{"job": job})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "cron job not found"})
}

func (s *Server) handleDeleteCron(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.cron {
		if cur.ID == id {
			s.cron = append(s.cron[:i], s.cron[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "cron job not found"})
}

func (s *Server) handleToggleCron(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.cron {
		if cur.ID == id {
			s.cron[i].Enabled = req.Enabled
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "cron job not found"})
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
