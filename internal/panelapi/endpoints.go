package panelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ListFiles returns the entries of a directory.
func (c *Client) ListFiles(ctx context.Context, path string) ([]FileEntry, error) {
	var resp fileListResponse
	if _, err := c.do(ctx, "list files", http.MethodGet, "/api/files", url.Values{"path": {path}}, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// ReadFile returns the content of a file.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	var resp fileContentResponse
	if _, err := c.do(ctx, "read file", http.MethodGet, "/api/files/content", url.Values{"path": {path}}, nil, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// WriteFile replaces the content of a file.
func (c *Client) WriteFile(ctx context.Context, path, content string) (WriteResult, error) {
	env, err := c.do(ctx, "write file", http.MethodPut, "/api/files/content", nil, fileWriteRequest{Path: path, Content: content}, nil)
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Message: env.Message}, nil
}

// CreateFile creates an empty file or, with typ "dir", a folder.
func (c *Client) CreateFile(ctx context.Context, path, typ string) error {
	_, err := c.do(ctx, "create file", http.MethodPost, "/api/files", nil, fileCreateRequest{Path: path, Type: typ}, nil)
	return err
}

// DeleteFile removes a file or folder.
func (c *Client) DeleteFile(ctx context.Context, path string) error {
	_, err := c.do(ctx, "delete file", http.MethodDelete, "/api/files", url.Values{"path": {path}}, nil, nil)
	return err
}

// RestoreBackup restores a site backup in place.
func (c *Client) RestoreBackup(ctx context.Context, backupID string) error {
	_, err := c.do(ctx, "restore backup", http.MethodPost, "/api/backups/"+url.PathEscape(backupID)+"/restore", nil, nil, nil)
	return err
}

// ListDatabases returns the databases on the host.
func (c *Client) ListDatabases(ctx context.Context) ([]Database, error) {
	var resp databaseListResponse
	if _, err := c.do(ctx, "list databases", http.MethodGet, "/api/databases", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Databases, nil
}

// ListTables returns the tables of a database.
func (c *Client) ListTables(ctx context.Context, database string) ([]Table, error) {
	var resp tableListResponse
	path := "/api/databases/" + url.PathEscape(database) + "/tables"
	if _, err := c.do(ctx, "list tables", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

// Query runs SQL against a database. A query the database rejects is
// reported in QueryResult.Error with a nil error; only failures to obtain
// an answer at all return an error.
func (c *Client) Query(ctx context.Context, database, query string) (QueryResult, error) {
	const op = "execute query"
	path := "/api/databases/" + url.PathEscape(database) + "/query"
	raw, status, err := c.roundTrip(ctx, op, http.MethodPost, path, nil, queryRequest{Query: query})
	if err != nil {
		return QueryResult{}, err
	}

	var body struct {
		Results []json.RawMessage `json:"results"`
		Error   string            `json:"error"`
		Message string            `json:"message"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return QueryResult{}, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	if body.Error != "" {
		return QueryResult{Error: body.Error, Columns: []string{}, Rows: []map[string]any{}}, nil
	}
	if status < 200 || status > 299 {
		return QueryResult{}, &APIError{Op: op, Status: status}
	}

	res := QueryResult{Message: body.Message, Columns: []string{}, Rows: make([]map[string]any, 0, len(body.Results))}
	for i, r := range body.Results {
		if i == 0 {
			cols, err := objectKeys(r)
			if err != nil {
				return QueryResult{}, &TransportError{Op: op, Err: fmt.Errorf("decode row: %w", err)}
			}
			res.Columns = cols
		}
		var row map[string]any
		if err := json.Unmarshal(r, &row); err != nil {
			return QueryResult{}, &TransportError{Op: op, Err: fmt.Errorf("decode row %d: %w", i, err)}
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// objectKeys returns the keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("row is not an object")
	}
	keys := []string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// ListDNSRecords returns the DNS records of a Cloudflare zone.
func (c *Client) ListDNSRecords(ctx context.Context, zone string) ([]DNSRecord, error) {
	var resp dnsListResponse
	if _, err := c.do(ctx, "list dns records", http.MethodGet, dnsPath(zone, ""), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// CreateDNSRecord adds a record and returns it with its new id.
func (c *Client) CreateDNSRecord(ctx context.Context, zone string, rec DNSRecord) (DNSRecord, error) {
	var resp dnsRecordResponse
	if _, err := c.do(ctx, "create dns record", http.MethodPost, dnsPath(zone, ""), nil, rec, &resp); err != nil {
		return DNSRecord{}, err
	}
	return resp.Record, nil
}

// UpdateDNSRecord replaces a record.
func (c *Client) UpdateDNSRecord(ctx context.Context, zone string, rec DNSRecord) (DNSRecord, error) {
	if rec.ID == "" {
		return DNSRecord{}, fmt.Errorf("update dns record: id is empty")
	}
	var resp dnsRecordResponse
	if _, err := c.do(ctx, "update dns record", http.MethodPut, dnsPath(zone, rec.ID), nil, rec, &resp); err != nil {
		return DNSRecord{}, err
	}
	return resp.Record, nil
}

// DeleteDNSRecord removes a record.
func (c *Client) DeleteDNSRecord(ctx context.Context, zone, id string) error {
	_, err := c.do(ctx, "delete dns record", http.MethodDelete, dnsPath(zone, id), nil, nil, nil)
	return err
}

func dnsPath(zone, id string) string {
	p := "/api/cloudflare/zones/" + url.PathEscape(zone) + "/dns"
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// ListCronJobs returns the managed cron jobs.
func (c *Client) ListCronJobs(ctx context.Context) ([]CronJob, error) {
	var resp cronListResponse
	if _, err := c.do(ctx, "list cron jobs", http.MethodGet, "/api/cron", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// CreateCronJob adds a cron job.
func (c *Client) CreateCronJob(ctx context.Context, job CronJob) (CronJob, error) {
	var resp cronJobResponse
	if _, err := c.do(ctx, "create cron job", http.MethodPost, "/api/cron", nil, job, &resp); err != nil {
		return CronJob{}, err
	}
	return resp.Job, nil
}

// UpdateCronJob replaces a cron job.
func (c *Client) UpdateCronJob(ctx context.Context, job CronJob) (CronJob, error) {
	if job.ID == "" {
		return CronJob{}, fmt.Errorf("update cron job: id is empty")
	}
	var resp cronJobResponse
	if _, err := c.do(ctx, "update cron job", http.MethodPut, "/api/cron/"+url.PathEscape(job.ID), nil, job, &resp); err != nil {
		return CronJob{}, err
	}
	return resp.Job, nil
}

// DeleteCronJob removes a cron job.
func (c *Client) DeleteCronJob(ctx context.Context, id string) error {
	_, err := c.do(ctx, "delete cron job", http.MethodDelete, "/api/cron/"+url.PathEscape(id), nil, nil, nil)
	return err
}

// ToggleCronJob enables or disables a cron job.
func (c *Client) ToggleCronJob(ctx context.Context, id string, enabled bool) error {
	_, err := c.do(ctx, "toggle cron job", http.MethodPost, "/api/cron/"+url.PathEscape(id)+"/toggle", nil, toggleRequest{Enabled: enabled}, nil)
	return err
}
