package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenIsClean(t *testing.T) {
	d := Open(KindQuery, Text("SELECT 1"), "New Query 1")

	require.NotEmpty(t, d.ID)
	assert.Equal(t, KindQuery, d.Kind)
	assert.Equal(t, "New Query 1", d.Label)
	assert.Equal(t, "SELECT 1", d.Current.Text)
	assert.Equal(t, "SELECT 1", d.Original.Text)
	assert.False(t, d.IsDirty())
	assert.False(t, d.Loading)
}

func TestOpenGeneratesDistinctIDs(t *testing.T) {
	a := Open(KindFile, Text(""), "index.php")
	b := Open(KindFile, Text(""), "index.php")
	assert.NotEqual(t, a.ID, b.ID)
}

func TestDirtyTracksValueAfterEveryTransition(t *testing.T) {
	d := Open(KindQuery, Text("SELECT 1"), "q")

	steps := []struct {
		name string
		do   func()
		want bool
	}{
		{"edit", func() { Edit(d, Text("SELECT 2")) }, true},
		{"edit back", func() { Edit(d, Text("SELECT 1")) }, false},
		{"edit again", func() { Edit(d, Text("SELECT 3")) }, true},
		{"discard", func() { Discard(d) }, false},
		{"edit then commit", func() { Edit(d, Text("SELECT 4")); Commit(d, nil) }, false},
	}
	for _, st := range steps {
		st.do()
		assert.Equal(t, st.want, d.IsDirty(), st.name)
		assert.Equal(t, !d.Current.Equal(d.Original), d.IsDirty(), st.name)
	}
	assert.Equal(t, "SELECT 4", d.Original.Text)
}

func TestCommitAttachesResultOnlyForQueries(t *testing.T) {
	q := Open(KindQuery, Text("SELECT 1"), "q")
	Commit(q, &Result{Columns: []string{"x"}})
	require.NotNil(t, q.LastResult)
	assert.Equal(t, []string{"x"}, q.LastResult.Columns)

	f := Open(KindFile, Text("a"), "a.txt")
	Commit(f, &Result{Message: "saved"})
	assert.Nil(t, f.LastResult)
}

func TestPendingResolve(t *testing.T) {
	d := OpenPending(Ref{Kind: KindFile, Label: "index.php", Key: "/index.php", Unique: true})
	assert.True(t, d.Loading)
	assert.Equal(t, "", d.Current.Text)
	assert.False(t, d.IsDirty())

	Resolve(d, Text("<?php"))
	assert.False(t, d.Loading)
	assert.Equal(t, "<?php", d.Current.Text)
	assert.False(t, d.IsDirty())
}

func TestStructuredDirtyIsFieldByField(t *testing.T) {
	rec := Fields(map[string]any{"type": "A", "name": "www", "content": "1.2.3.4", "ttl": 1, "proxied": true})
	d := Open(KindDNSRecord, rec, "www")
	assert.False(t, d.IsDirty())

	Edit(d, d.Current.With("proxied", false))
	assert.True(t, d.IsDirty())
	assert.Equal(t, []string{"proxied"}, d.Current.ChangedFields(d.Original))

	Edit(d, d.Current.With("proxied", true))
	assert.False(t, d.IsDirty())

	// 1 decoded from JSON arrives as float64.
	Edit(d, d.Current.With("ttl", float64(1)))
	assert.False(t, d.IsDirty())
}

func TestEditDoesNotAliasCallerMap(t *testing.T) {
	fields := map[string]any{"schedule": "* * * * *"}
	d := Open(KindCronJob, Fields(fields), "job")
	fields["schedule"] = "0 * * * *"
	assert.False(t, d.IsDirty())
}

func TestResourceKey(t *testing.T) {
	tests := []struct {
		name string
		ref  Ref
		want string
	}{
		{"unique file", Ref{Kind: KindFile, Key: "/index.php", Unique: true}, "file::/index.php"},
		{"table", Ref{Kind: KindQuery, Key: "wp_posts", Location: "wordpress", Unique: true}, "query:wordpress:wp_posts"},
		{"new query", Ref{Kind: KindQuery, Unique: true}, ""},
		{"dns edit", Ref{Kind: KindDNSRecord, Key: "rec1", Location: "example.com"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ref.ResourceKey())
		})
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	d := Open(KindCronJob, Fields(map[string]any{"command": "php cron.php"}), "job")
	snap := d.Snapshot()
	Edit(d, d.Current.With("command", "true"))
	assert.Equal(t, "php cron.php", snap.Current.Fields["command"])
}

func TestAttachKeepsQueryDirty(t *testing.T) {
	d := Open(KindQuery, Text("SELECT 1"), "New Query 1")
	Edit(d, Text("SELECT 2"))
	d.Loading = true

	Attach(d, &Result{Columns: []string{"x"}, Rows: []map[string]any{{"x": 2}}})

	assert.True(t, d.IsDirty())
	assert.False(t, d.Loading)
	require.NotNil(t, d.LastResult)
	assert.Equal(t, []string{"x"}, d.LastResult.Columns)
	assert.Equal(t, "SELECT 1", d.Original.Text)
}
