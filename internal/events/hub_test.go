package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(TypeNotification, Notification{Workspace: "files", Level: LevelError, Operation: "save index.php", Message: "disk full"})

	ev := <-ch
	assert.Equal(t, TypeNotification, ev.Type)
	n, err := Decode[Notification](ev)
	require.NoError(t, err)
	assert.Equal(t, "disk full", n.Message)
	assert.Equal(t, "files", n.Workspace)
}

func TestSnapshotSinceWrapsRing(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(TypeTabs, TabsChanged{Workspace: "db"})
	}

	all := h.SnapshotSince(0)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ID)
	assert.Equal(t, int64(5), all[2].ID)

	tail := h.SnapshotSince(4)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(5), tail[0].ID)
}

func TestCancelClosesChannelOnce(t *testing.T) {
	h := NewHub(0)
	ch, cancel := h.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	h.Publish(TypeViewStale, Stale{Workspace: "files", Location: "/"})
}

func TestNilPayloadIsEmptyObject(t *testing.T) {
	h := NewHub(1)
	h.Publish(TypeTabs, nil)
	assert.Equal(t, "{}", string(h.SnapshotSince(0)[0].Data))
}
