package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReportsWrites(t *testing.T) {
	tmpDir := t.TempDir()
	watched := filepath.Join(tmpDir, "config.yaml")
	other := filepath.Join(tmpDir, "notes.txt")
	writeTestFile(t, watched, "a: 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, []string{watched}, func(path string) { changed <- path })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeTestFile(t, other, "ignored\n")
	writeTestFile(t, watched, "a: 2\n")

	select {
	case got := <-changed:
		if filepath.Clean(got) != watched {
			t.Errorf("onChange(%q), want %q", got, watched)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
