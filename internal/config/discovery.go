package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EnvConfigDir overrides config directory discovery.
const EnvConfigDir = "HOSTDECK_CONFIG_DIR"

// FileTier classifies how strictly a config file is integrity-checked.
type FileTier int

const (
	// TierOperational files only warn on a checksum mismatch.
	TierOperational FileTier = iota
	// TierHighSecurity files hold credentials and fail the load on a mismatch.
	TierHighSecurity
)

// ConfigFiles is the manifest of files found in a config directory.
type ConfigFiles struct {
	Root       string
	Config     string
	Tokens     string
	Env        string
	Workspaces []string
}

// AllFiles returns every checksummed file. .env is not checksummed.
func (cf *ConfigFiles) AllFiles() []string {
	files := []string{cf.Config}
	if cf.Tokens != "" {
		files = append(files, cf.Tokens)
	}
	return append(files, cf.Workspaces...)
}

// HighSecurityFiles returns the files whose tampering must block startup.
func (cf *ConfigFiles) HighSecurityFiles() []string {
	var files []string
	for _, f := range cf.AllFiles() {
		if cf.FileTier(f) == TierHighSecurity {
			files = append(files, f)
		}
	}
	return files
}

// FileTier reports the tier of path.
func (cf *ConfigFiles) FileTier(path string) FileTier {
	if path != "" && (path == cf.Config || path == cf.Tokens) {
		return TierHighSecurity
	}
	return TierOperational
}

// DiscoverConfigDir finds the config directory by checking standard locations.
// Priority order: $HOSTDECK_CONFIG_DIR, ~/.config/hostdeck, /etc/hostdeck, ./config.yaml
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "hostdeck")
		if _, err := os.Stat(userConfigDir); err == nil {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/hostdeck"
	if _, err := os.Stat(systemConfigDir); err == nil {
		return systemConfigDir, nil
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}

	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/hostdeck, /etc/hostdeck, ./config.yaml)", EnvConfigDir)
}

// DiscoverConfigFiles walks a config directory and returns the manifest of discovered files.
// Returns error if config.yaml is missing.
func DiscoverConfigFiles(configDir string) (*ConfigFiles, error) {
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config dir %q: %w", configDir, err)
	}

	cf := &ConfigFiles{Root: absDir}

	configPath := filepath.Join(absDir, "config.yaml")
	if !fileExists(configPath) {
		return nil, fmt.Errorf("config.yaml not found in %s", absDir)
	}
	cf.Config = configPath

	if path := filepath.Join(absDir, "tokens.yaml"); fileExists(path) {
		cf.Tokens = path
	}
	if path := filepath.Join(absDir, ".env"); fileExists(path) {
		cf.Env = path
	}

	cf.Workspaces, err = walkYAMLDir(filepath.Join(absDir, "workspaces"))
	if err != nil {
		return nil, fmt.Errorf("failed to walk workspaces/: %w", err)
	}

	return cf, nil
}

// walkYAMLDir returns sorted absolute paths of *.yaml files in dir.
// Returns nil (not error) if the directory doesn't exist.
func walkYAMLDir(dir string) ([]string, error) {
	if !dirExists(dir) {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".yaml") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
