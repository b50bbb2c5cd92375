package config

import (
	"sort"
	"time"
)

// Workspace kinds.
const (
	KindFiles    = "files"
	KindDatabase = "database"
	KindDNS      = "dns"
	KindCron     = "cron"
)

// Config represents the complete hostdeck configuration.
type Config struct {
	Service    ServiceConfig              `yaml:"service"`
	State      StateConfig                `yaml:"state"`
	Panel      PanelConfig                `yaml:"panel"`
	API        APIConfig                  `yaml:"api,omitempty"`
	Workspaces map[string]WorkspaceConfig `yaml:"workspaces"`

	// ConfigDir is the directory the configuration was loaded from.
	ConfigDir string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines local state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// PanelConfig points at the hosting panel backend.
type PanelConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Name      string   `yaml:"name,omitempty"`
	Token     string   `yaml:"token"`
	Scopes    []string `yaml:"scopes"`
	CreatedAt string   `yaml:"created_at,omitempty"`
}

// WorkspaceConfig binds a named workspace to one panel page.
type WorkspaceConfig struct {
	Kind     string `yaml:"kind"` // files | database | dns | cron
	Label    string `yaml:"label,omitempty"`
	Root     string `yaml:"root,omitempty"`
	Database string `yaml:"database,omitempty"`
	Zone     string `yaml:"zone,omitempty"`
	RowLimit int    `yaml:"row_limit,omitempty"`
}

// TokensFileConfig is the shape of tokens.yaml.
type TokensFileConfig struct {
	Tokens []APIToken `yaml:"tokens"`
}

// WorkspacesFileConfig is the shape of workspaces/*.yaml.
type WorkspacesFileConfig struct {
	Workspaces map[string]WorkspaceConfig `yaml:"workspaces"`
}

// WorkspaceNames returns the configured workspace names in sorted order.
func (c *Config) WorkspaceNames() []string {
	names := make([]string, 0, len(c.Workspaces))
	for name := range c.Workspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "hostdeck",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/hostdeck.db",
		},
		Panel: PanelConfig{
			Timeout: 30 * time.Second,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8787",
		},
		Workspaces: make(map[string]WorkspaceConfig),
	}
}

// DefaultRowLimit bounds the starter query of a database table tab.
const DefaultRowLimit = 100
