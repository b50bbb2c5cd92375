package browse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLister struct {
	calls   int
	entries map[string][]Entry
	err     error
}

func (l *countingLister) List(_ context.Context, location string) ([]Entry, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.entries[location], nil
}

func rootListing() *countingLister {
	return &countingLister{entries: map[string][]Entry{
		"/": {
			{Name: "wp-content", Type: EntryDir},
			{Name: "index.php", Type: EntryFile},
			{Name: "WP-Config.php", Type: EntryFile},
		},
		"/wp-content": {
			{Name: "plugins", Type: EntryDir},
		},
	}}
}

func TestListIsLazyAndRestartable(t *testing.T) {
	l := rootListing()
	v := New("Files", "/", "")

	seq := v.List(context.Background(), l)
	assert.Equal(t, 0, l.calls, "listing must not fetch before iteration")

	first, err := Collect(seq)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, l.calls)
}

func TestListAppliesCaseInsensitiveFilter(t *testing.T) {
	l := rootListing()
	v := New("Files", "/", "")
	v.Filter = "wp"

	got, err := Collect(v.List(context.Background(), l))
	require.NoError(t, err)

	var names []string
	for _, e := range got {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"wp-content", "WP-Config.php"}, names)
}

func TestListPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	v := New("Files", "/", "")
	_, err := Collect(v.List(context.Background(), &countingLister{err: boom}))
	assert.ErrorIs(t, err, boom)
}

func TestListStopsWhenConsumerStops(t *testing.T) {
	v := New("Files", "/", "")
	n := 0
	for range v.List(context.Background(), rootListing()) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestEnterContainerMutatesLocation(t *testing.T) {
	v := New("Files", "/", "")
	v.Stale = false
	v.Filter = "wp"

	assert.True(t, v.Enter(Entry{Name: "wp-content", Type: EntryDir}))
	assert.Equal(t, "/wp-content", v.Location)
	assert.True(t, v.Stale)
	assert.Empty(t, v.Filter)

	assert.False(t, v.Enter(Entry{Name: "index.php", Type: EntryFile}))
	assert.Equal(t, "/wp-content", v.Location)
}

func TestUpStopsAtRoot(t *testing.T) {
	v := New("Files", "/", "/wp-content/plugins")
	assert.True(t, v.Up())
	assert.Equal(t, "/wp-content", v.Location)
	assert.True(t, v.Up())
	assert.Equal(t, "/", v.Location)
	assert.False(t, v.Up())

	db := New("Databases", "", "wordpress")
	assert.True(t, db.Up())
	assert.Equal(t, "", db.Location)
	assert.False(t, db.Up())
}

func TestUpTreatsSiblingPrefixAsOutsideRoot(t *testing.T) {
	v := New("Site", "/var/www", "/var/www2/html")
	assert.True(t, v.Up())
	assert.Equal(t, "/var/www", v.Location)

	v = New("Site", "/var/www", "/var/www/html/uploads")
	assert.True(t, v.Up())
	assert.Equal(t, "/var/www/html", v.Location)
}

func TestChildLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		entry    Entry
		want     string
	}{
		{"dir under root", "/", Entry{Name: "wp-content"}, "/wp-content"},
		{"explicit path wins", "/", Entry{Name: "x", Path: "/srv/x"}, "/srv/x"},
		{"database from empty", "", Entry{Name: "wordpress"}, "wordpress"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChildLocation(tt.location, tt.entry))
		})
	}
}
