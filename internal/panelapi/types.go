package panelapi

import "time"

// FileEntry is one row of a directory listing.
type FileEntry struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Type     string     `json:"type"`
	Size     *int64     `json:"size,omitempty"`
	Modified *time.Time `json:"modified,omitempty"`
}

// Database is one database on the panel host.
type Database struct {
	Name   string `json:"name"`
	Tables int    `json:"tables,omitempty"`
	Size   *int64 `json:"size,omitempty"`
}

// Table is one table of a database.
type Table struct {
	Name string `json:"name"`
	Rows *int64 `json:"rows,omitempty"`
	Size *int64 `json:"size,omitempty"`
}

// QueryResult is the outcome of POST /api/databases/{db}/query. Error is the
// database's own complaint about the query, not a transport problem.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Error   string           `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
}

// DNSRecord is a Cloudflare DNS record as the panel reports it.
type DNSRecord struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Proxied  bool   `json:"proxied"`
	Priority *int   `json:"priority,omitempty"`
}

// CronJob is one crontab line managed by the panel.
type CronJob struct {
	ID       string `json:"id,omitempty"`
	Schedule string `json:"schedule"`
	Command  string `json:"command"`
	Comment  string `json:"comment,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// WriteResult is the acknowledgement of a write.
type WriteResult struct {
	Message string
}

type fileListResponse struct {
	Entries []FileEntry `json:"entries"`
}

type fileContentResponse struct {
	Content string `json:"content"`
}

type fileWriteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type fileCreateRequest struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

type databaseListResponse struct {
	Databases []Database `json:"databases"`
}

type tableListResponse struct {
	Tables []Table `json:"tables"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type dnsListResponse struct {
	Records []DNSRecord `json:"records"`
}

type dnsRecordResponse struct {
	Record DNSRecord `json:"record"`
}

type cronListResponse struct {
	Jobs []CronJob `json:"jobs"`
}

type cronJobResponse struct {
	Job CronJob `json:"job"`
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}
