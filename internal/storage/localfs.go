package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mount describes the filesystem a path lives on.
type Mount struct {
	// Probed is the nearest existing ancestor that was inspected.
	Probed string
	FSType string
}

// Network reports whether flock and SQLite WAL are unreliable on the mount.
func (m Mount) Network() bool {
	switch strings.ToLower(strings.TrimSpace(m.FSType)) {
	case "afpfs", "cifs", "nfs", "nfs4", "smbfs", "smb2", "webdav", "9p":
		return true
	}
	return false
}

// statfsType is replaced in tests.
var statfsType = fsTypeOf

// MountOf inspects the filesystem of path, or of its nearest existing
// ancestor when path has not been created yet.
func MountOf(path string) (Mount, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Mount{}, fmt.Errorf("absolute path: %w", err)
	}
	probe := abs
	for {
		_, err := os.Stat(probe)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return Mount{}, fmt.Errorf("stat %q: %w", probe, err)
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return Mount{}, fmt.Errorf("no existing parent for %q", abs)
		}
		probe = parent
	}

	fsType, err := statfsType(probe)
	if err != nil {
		return Mount{}, err
	}
	return Mount{Probed: probe, FSType: fsType}, nil
}

// RequireLocal fails when path is on a network filesystem. setting names the
// config key that chose path so the error tells the operator what to change.
func RequireLocal(path, setting string) error {
	if path == "" {
		return fmt.Errorf("%s is empty", setting)
	}
	m, err := MountOf(path)
	if err != nil {
		return fmt.Errorf("inspect filesystem of %s: %w", setting, err)
	}
	if m.Network() {
		return fmt.Errorf("%s %q is on a %s mount; state and lock files need a local filesystem", setting, path, m.FSType)
	}
	return nil
}
