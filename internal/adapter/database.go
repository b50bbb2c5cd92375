package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattjoyce/hostdeck/internal/browse"
	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/gateway"
	"github.com/mattjoyce/hostdeck/internal/panelapi"
)

// DefaultRowLimit bounds the starter query of a table tab.
const DefaultRowLimit = 100

// Database browses databases and tables and runs SQL. The root location ""
// lists databases; a database name lists its tables.
type Database struct {
	client    *panelapi.Client
	defaultDB string
	rowLimit  int
}

var (
	_ gateway.Backend  = (*Database)(nil)
	_ gateway.Executor = (*Database)(nil)
)

// NewDatabase creates the adapter. defaultDB is used for new queries opened
// from the database list.
func NewDatabase(client *panelapi.Client, defaultDB string, rowLimit int) *Database {
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	return &Database{client: client, defaultDB: defaultDB, rowLimit: rowLimit}
}

func (d *Database) List(ctx context.Context, location string) ([]browse.Entry, error) {
	if location == "" {
		dbs, err := d.client.ListDatabases(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]browse.Entry, 0, len(dbs))
		for _, db := range dbs {
			out = append(out, browse.Entry{
				Name: db.Name,
				Path: db.Name,
				Type: browse.EntryDatabase,
				Size: db.Size,
				Meta: map[string]any{"tables": db.Tables},
			})
		}
		return out, nil
	}

	tables, err := d.client.ListTables(ctx, location)
	if err != nil {
		return nil, err
	}
	out := make([]browse.Entry, 0, len(tables))
	for _, t := range tables {
		e := browse.Entry{Name: t.Name, Path: location + "." + t.Name, Type: browse.EntryTable, Size: t.Size}
		if t.Rows != nil {
			e.Meta = map[string]any{"rows": *t.Rows}
		}
		out = append(out, e)
	}
	return out, nil
}

// Describe opens a table as a query tab. One tab per table and database.
func (d *Database) Describe(location string, e browse.Entry) document.Ref {
	return document.Ref{
		Kind:     document.KindQuery,
		Label:    e.Name,
		Key:      e.Name,
		Location: location,
		Unique:   true,
	}
}

// Blank is "New Query N" against the database being browsed, or the default
// database at the root.
func (d *Database) Blank(location string, n int) (document.Ref, document.Value) {
	db := location
	if db == "" {
		db = d.defaultDB
	}
	return document.Ref{
		Kind:     document.KindQuery,
		Label:    fmt.Sprintf("New Query %d", n),
		Location: db,
	}, document.Text("SELECT 1")
}

// Load builds the starter query of a table tab. Nothing is fetched; the rows
// arrive when the query is executed.
func (d *Database) Load(_ context.Context, ref document.Ref) (document.Value, error) {
	if ref.Key == "" {
		return document.Text(""), nil
	}
	return document.Text(fmt.Sprintf("SELECT * FROM %s LIMIT %d;", quoteIdent(ref.Key), d.rowLimit)), nil
}

// Save runs the query and, when the database accepts it, commits the text.
func (d *Database) Save(ctx context.Context, doc document.Document) (gateway.Receipt, error) {
	res, err := d.Execute(ctx, doc.Location, doc.Current.Text)
	if err != nil {
		return gateway.Receipt{}, err
	}
	if res.Failed() {
		return gateway.Receipt{}, &gateway.BackendError{Message: res.Error}
	}
	return gateway.Receipt{Message: res.Message, Ref: doc.Ref, Result: &res}, nil
}

// Execute runs query on database. A query the database rejects is reported
// in Result.Error with a nil error.
func (d *Database) Execute(ctx context.Context, database, query string) (document.Result, error) {
	if database == "" {
		return document.Result{}, gateway.Refuse("no database selected")
	}
	if strings.TrimSpace(query) == "" {
		return document.Result{Columns: []string{}, Rows: []map[string]any{}, Error: "query is empty"}, nil
	}
	qr, err := d.client.Query(ctx, database, query)
	if err != nil {
		return document.Result{}, err
	}
	return document.Result{Columns: qr.Columns, Rows: qr.Rows, Error: qr.Error, Message: qr.Message}, nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
