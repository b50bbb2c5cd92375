package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	envVarPattern        = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	workspaceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// Load reads configuration from a config directory or a single config file.
// Directory mode discovers tokens.yaml and workspaces/*.yaml next to
// config.yaml and enforces the .checksums manifest. Single-file mode only
// verifies the file when a manifest exists beside it.
// The returned warnings are integrity findings that did not block the load.
func Load(configPath string) (*Config, []string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		return LoadDir(absPath)
	}
	return loadSingleFile(absPath)
}

// LoadDir loads configuration from a config directory.
func LoadDir(configDir string) (*Config, []string, error) {
	files, err := DiscoverConfigFiles(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("config discovery: %w", err)
	}

	intResult, err := VerifyIntegrity(files)
	if err != nil {
		return nil, nil, fmt.Errorf("integrity check: %w", err)
	}
	if !intResult.Passed {
		return nil, nil, fmt.Errorf("integrity verification failed:\n  %s\nRun 'hostdeck config lock' to authorize the current state",
			strings.Join(intResult.Errors, "\n  "))
	}

	cfg, err := compile(files)
	if err != nil {
		return nil, nil, err
	}
	return cfg, intResult.Warnings, nil
}

func loadSingleFile(path string) (*Config, []string, error) {
	dir := filepath.Dir(path)
	files := &ConfigFiles{Root: dir, Config: path}
	if env := filepath.Join(dir, ".env"); fileExists(env) {
		files.Env = env
	}

	var warnings []string
	if _, err := LoadChecksums(dir); err == nil {
		intResult, err := VerifyIntegrity(files)
		if err != nil {
			return nil, nil, fmt.Errorf("integrity check: %w", err)
		}
		if !intResult.Passed {
			return nil, nil, fmt.Errorf("config verification failed for %s:\n  %s\n"+
				"If you edited this file intentionally, run: hostdeck config lock --config %s",
				path, strings.Join(intResult.Errors, "\n  "), dir)
		}
		warnings = intResult.Warnings
	} else if !errors.Is(err, ErrNoChecksums) {
		return nil, nil, err
	}

	cfg, err := compile(files)
	if err != nil {
		return nil, nil, err
	}
	return cfg, warnings, nil
}

// compile loads .env, parses every discovered file, applies defaults and validates.
func compile(files *ConfigFiles) (*Config, error) {
	if files.Env != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(files.Env); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", files.Env, err)
		}
	}

	cfg := &Config{}
	if err := parseFile(files.Config, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config.yaml: %w", err)
	}
	cfg.ConfigDir = files.Root

	if files.Tokens != "" {
		var tf TokensFileConfig
		if err := parseFile(files.Tokens, &tf); err != nil {
			return nil, err
		}
		cfg.API.Auth.Tokens = append(cfg.API.Auth.Tokens, tf.Tokens...)
	}

	for _, path := range files.Workspaces {
		var wf WorkspacesFileConfig
		if err := parseFile(path, &wf); err != nil {
			return nil, err
		}
		if cfg.Workspaces == nil {
			cfg.Workspaces = make(map[string]WorkspaceConfig)
		}
		for name, ws := range wf.Workspaces {
			if _, dup := cfg.Workspaces[name]; dup {
				return nil, fmt.Errorf("workspace %q defined twice (again in %s)", name, filepath.Base(path))
			}
			cfg.Workspaces[name] = ws
		}
	}

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// parseFile reads a YAML file, interpolates env vars, and decodes it into out.
func parseFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	interpolated := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if !filepath.IsAbs(cfg.State.Path) && cfg.ConfigDir != "" {
		cfg.State.Path = filepath.Join(cfg.ConfigDir, cfg.State.Path)
	}

	if cfg.Panel.Timeout == 0 {
		cfg.Panel.Timeout = defaults.Panel.Timeout
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	for name, ws := range cfg.Workspaces {
		if ws.Label == "" {
			ws.Label = name
		}
		if ws.Kind == KindFiles && ws.Root == "" {
			ws.Root = "/"
		}
		if ws.Kind == KindDatabase && ws.RowLimit == 0 {
			ws.RowLimit = DefaultRowLimit
		}
		cfg.Workspaces[name] = ws
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// unresolved reports a ${VAR} placeholder left in value under the given key.
func unresolved(key, value string) error {
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", key, matches[1])
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Panel.BaseURL == "" {
		return fmt.Errorf("panel.base_url is required")
	}
	if err := unresolved("panel.base_url", cfg.Panel.BaseURL); err != nil {
		return err
	}
	u, err := url.Parse(cfg.Panel.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("panel.base_url must be an http(s) URL (got %q)", cfg.Panel.BaseURL)
	}
	if err := unresolved("panel.api_key", cfg.Panel.APIKey); err != nil {
		return err
	}
	if cfg.Panel.Timeout < 0 {
		return fmt.Errorf("panel.timeout must be positive")
	}

	if cfg.API.Enabled {
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth requires api_key or tokens when the API is enabled")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if err := unresolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	if len(cfg.Workspaces) == 0 {
		return fmt.Errorf("at least one workspace is required")
	}
	for _, name := range cfg.WorkspaceNames() {
		ws := cfg.Workspaces[name]
		if !workspaceNamePattern.MatchString(name) {
			return fmt.Errorf("workspace %q: name must be lowercase letters, digits, '-' or '_'", name)
		}
		switch ws.Kind {
		case KindFiles:
			if !strings.HasPrefix(ws.Root, "/") {
				return fmt.Errorf("workspace %q: root must be an absolute path (got %q)", name, ws.Root)
			}
		case KindDatabase:
			if ws.RowLimit < 0 {
				return fmt.Errorf("workspace %q: row_limit must be positive", name)
			}
		case KindDNS:
			if ws.Zone == "" {
				return fmt.Errorf("workspace %q: zone is required for dns workspaces", name)
			}
		case KindCron:
		default:
			return fmt.Errorf("workspace %q: kind must be one of: files, database, dns, cron (got %q)", name, ws.Kind)
		}
	}

	return nil
}
