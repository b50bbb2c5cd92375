package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/hostdeck/internal/adapter"
	"github.com/mattjoyce/hostdeck/internal/auth"
	"github.com/mattjoyce/hostdeck/internal/config"
	"github.com/mattjoyce/hostdeck/internal/doctor"
	"github.com/mattjoyce/hostdeck/internal/tui/tokenmgr"
)

type tokenCreateJSONOutput struct {
	Status     string         `json:"status"`
	Name       string         `json:"name"`
	Scopes     []string       `json:"scopes"`
	TokenKey   string         `json:"token_key"`
	EnvVar     string         `json:"env_var"`
	EnvFile    string         `json:"env_file,omitempty"`
	Validation *doctor.Result `json:"validation,omitempty"`
}

type tokenListEntry struct {
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes"`
	EnvVar    string   `json:"env_var,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
}

// pickScopes is swapped in tests.
var pickScopes = func(workspaces []string) ([]string, error) {
	final, err := tea.NewProgram(tokenmgr.New(workspaces)).Run()
	if err != nil {
		return nil, err
	}
	m := final.(tokenmgr.Model)
	if m.Cancelled() {
		return nil, errors.New("cancelled")
	}
	return m.Scopes(), nil
}

func runConfigCheck(args []string) int {
	var configPath, configDir, format string
	var strict, jsonOut, probe bool
	var probeTimeout time.Duration

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&configDir, "config-dir", "", "Path to configuration directory")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	fs.BoolVar(&probe, "probe", false, "List every workspace root on the panel")
	fs.DurationVar(&probeTimeout, "probe-timeout", 30*time.Second, "Overall deadline of --probe")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	cfg, integrity, err := loadConfigForToolWithDir(configPath, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	d := doctor.New(cfg, integrity)
	result := d.Validate()

	if probe {
		client := newPanelClient(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		err := d.Probe(ctx, result, func(ctx context.Context, name string) error {
			backend, root, err := adapter.Build(cfg.Workspaces[name], client)
			if err != nil {
				return err
			}
			_, err = backend.List(ctx, root)
			return err
		})
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Probe aborted: %v\n", err)
			return 1
		}
	}

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath, configDir string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&configDir, "config-dir", "", "Path to config directory")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	_, dir, err := resolveConfigTarget(configPath, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config: %v\n", err)
		return 1
	}

	files, err := config.DiscoverConfigFiles(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config files in %s: %v\n", dir, err)
		return 1
	}
	if isVerbose {
		fmt.Printf("Processing directory: %s\n", dir)
		for _, f := range files.AllFiles() {
			tier := "operational"
			if files.FileTier(f) == config.TierHighSecurity {
				tier = "high-security"
			}
			fmt.Printf("  DISCOVER [%s] %s\n", tier, f)
		}
	}

	report, err := config.GenerateChecksums(files, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config in %s: %v\n", dir, err)
		return 1
	}

	if isVerbose {
		for _, f := range report.Files {
			fmt.Printf("  HASH %s: %s\n", f.Filename, f.Hash)
		}
		if report.Written {
			fmt.Printf("  WROTE .checksums: %s\n", report.ChecksumPath)
		} else {
			fmt.Printf("  DRY-RUN .checksums: %s (not written)\n", report.ChecksumPath)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed for %s (no files written)\n", dir)
	} else {
		fmt.Printf("Successfully locked configuration in %s\n", dir)
	}
	return 0
}

func runConfigToken(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printConfigTokenHelp()
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "create":
		return runConfigTokenCreate(actionArgs)
	case "list":
		return runConfigTokenList(actionArgs)
	case "help":
		printConfigTokenHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config token action: %s\n", action)
		return 1
	}
}

func runConfigTokenCreate(args []string) int {
	var configPath, configDir, name, scopesArg, format string
	var writeEnv bool

	fs := flag.NewFlagSet("token create", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to config file or directory")
	fs.StringVar(&configDir, "config-dir", "", "Path to config directory")
	fs.StringVar(&name, "name", "", "Token name")
	fs.StringVar(&scopesArg, "scopes", "", "Comma-separated scopes (omit to pick interactively)")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&writeEnv, "write-env", false, "Store the key in the config directory's .env")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if name == "" {
		fmt.Fprintln(os.Stderr, "Error: --name is required")
		return 1
	}

	resolvedPath, resolvedDir, err := resolveConfigTarget(configPath, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Resolve config failed: %v\n", err)
		return 1
	}

	var scopes []string
	if scopesArg != "" {
		scopes = parseCSVScopes(scopesArg)
	} else {
		if !isTerminal() {
			fmt.Fprintln(os.Stderr, "Error: --scopes is required when not running in a terminal")
			return 1
		}
		cfg, _, err := config.Load(resolvedPath)
		var names []string
		if err == nil {
			names = cfg.WorkspaceNames()
		}
		scopes, err = pickScopes(names)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scope selection aborted: %v\n", err)
			return 1
		}
	}
	if len(scopes) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no scopes provided")
		return 1
	}
	for _, s := range scopes {
		if !auth.Known(s) {
			fmt.Fprintf(os.Stderr, "Invalid scope %q (expected one of %s)\n", s, strings.Join(auth.Names(), ", "))
			return 1
		}
	}
	scopes = auth.Reduce(scopes)

	tokensPath := filepath.Join(resolvedDir, "tokens.yaml")
	tokensCfg, err := loadTokensFile(tokensPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load tokens: %v\n", err)
		return 1
	}
	if _, idx := findTokenByName(tokensCfg.Tokens, name); idx >= 0 {
		fmt.Fprintf(os.Stderr, "Token %q already exists\n", name)
		return 1
	}

	tokenKey, err := generateSecureToken(32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate token: %v\n", err)
		return 1
	}
	envVar := tokenEnvVarName(name)

	entry := config.APIToken{
		Name:      name,
		Token:     fmt.Sprintf("${%s}", envVar),
		Scopes:    scopes,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	tokensCfg.Tokens = append(tokensCfg.Tokens, entry)

	var envFile string
	if writeEnv {
		envFile = filepath.Join(resolvedDir, ".env")
		if err := setEnvFileValue(envFile, envVar, tokenKey); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to update %s: %v\n", envFile, err)
			return 1
		}
		// The loader never overrides variables already set in the process.
		_ = os.Setenv(envVar, tokenKey)
	}

	if err := writeTokensFile(tokensPath, tokensCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write tokens file: %v\n", err)
		return 1
	}
	if err := refreshConfigIntegrity(resolvedDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to refresh checksums: %v\n", err)
		return 1
	}

	validation, code, err := validateConfigAtPath(resolvedPath)
	if err != nil {
		// An unset ${VAR} only blocks the load; the token itself was written.
		fmt.Fprintf(os.Stderr, "Validation skipped: %v\n", err)
		code = 0
	}

	if format == "json" {
		out := tokenCreateJSONOutput{
			Status:     "success",
			Name:       name,
			Scopes:     scopes,
			TokenKey:   tokenKey,
			EnvVar:     envVar,
			EnvFile:    envFile,
			Validation: validation,
		}
		encoded, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(encoded))
		return code
	}

	fmt.Printf("Updated: %s\n", tokensPath)
	fmt.Printf("Scopes: %s\n", strings.Join(scopes, ", "))
	fmt.Printf("Token key: %s\n\n", tokenKey)
	if envFile != "" {
		fmt.Printf("Stored %s in %s\n", envVar, envFile)
	} else {
		fmt.Printf("Set environment variable:\n  export %s=\"%s\"\n", envVar, tokenKey)
	}
	printValidationSummary(validation)
	return code
}

func runConfigTokenList(args []string) int {
	var configPath, configDir, format string
	fs := flag.NewFlagSet("token list", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to config file or directory")
	fs.StringVar(&configDir, "config-dir", "", "Path to config directory")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	_, resolvedDir, err := resolveConfigTarget(configPath, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Resolve config failed: %v\n", err)
		return 1
	}

	tokensPath := filepath.Join(resolvedDir, "tokens.yaml")
	tokensCfg, err := loadTokensFile(tokensPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load tokens: %v\n", err)
		return 1
	}

	entries := make([]tokenListEntry, 0, len(tokensCfg.Tokens))
	for i, t := range tokensCfg.Tokens {
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("tokens[%d]", i)
		}
		entry := tokenListEntry{Name: name, Scopes: t.Scopes, CreatedAt: t.CreatedAt}
		if m := envRefPattern(t.Token); m != "" {
			entry.EnvVar = m
		}
		entries = append(entries, entry)
	}

	if format == "json" {
		out, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(out))
		return 0
	}

	fmt.Printf("Tokens in %s:\n", tokensPath)
	if len(entries) == 0 {
		fmt.Println("  (none)")
		return 0
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Scopes", "Env Var", "Created"})
	for _, e := range entries {
		env := e.EnvVar
		if env == "" {
			env = "(inline)"
		}
		t.AppendRow(table.Row{e.Name, strings.Join(e.Scopes, ", "), env, e.CreatedAt})
	}
	t.Render()
	return 0
}

// envRefPattern returns VAR when token is exactly ${VAR}.
func envRefPattern(token string) string {
	if strings.HasPrefix(token, "${") && strings.HasSuffix(token, "}") && len(token) > 3 {
		return token[2 : len(token)-1]
	}
	return ""
}

func resolveConfigTarget(configPath, configDir string) (string, string, error) {
	if configPath != "" && configDir != "" {
		return "", "", errors.New("use only one of --config or --config-dir")
	}

	target := configPath
	if configDir != "" {
		target = configDir
	}
	if target == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			return "", "", err
		}
		target = discovered
	}

	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", "", err
	}

	info, err := os.Stat(absTarget)
	if err != nil {
		return "", "", fmt.Errorf("config target not found: %w", err)
	}

	if info.IsDir() {
		if _, err := os.Stat(filepath.Join(absTarget, "config.yaml")); err != nil {
			return "", "", fmt.Errorf("config.yaml not found in %s", absTarget)
		}
		return absTarget, absTarget, nil
	}

	return absTarget, filepath.Dir(absTarget), nil
}

func validateConfigAtPath(configPath string) (*doctor.Result, int, error) {
	cfg, integrity, err := config.Load(configPath)
	if err != nil {
		return nil, 1, err
	}
	result := doctor.New(cfg, integrity).Validate()
	if !result.Valid {
		return result, 1, nil
	}
	if len(result.Warnings) > 0 {
		return result, 2, nil
	}
	return result, 0, nil
}

func printValidationSummary(result *doctor.Result) {
	if result == nil {
		return
	}
	if !result.Valid {
		fmt.Printf("Validation: failed (%d error(s), %d warning(s))\n", len(result.Errors), len(result.Warnings))
		for _, issue := range result.Errors {
			printIssue("ERROR", issue)
		}
		for _, issue := range result.Warnings {
			printIssue("WARN ", issue)
		}
		return
	}

	if len(result.Warnings) == 0 {
		fmt.Println("Validation: ✓ All checks passed")
		return
	}
	fmt.Printf("Validation: ✓ passed with %d warning(s)\n", len(result.Warnings))
	for _, issue := range result.Warnings {
		printIssue("WARN ", issue)
	}
}

func printIssue(level string, issue doctor.Issue) {
	if issue.Field != "" {
		fmt.Printf("  %s [%s] %s: %s\n", level, issue.Category, issue.Field, issue.Message)
	} else {
		fmt.Printf("  %s [%s] %s\n", level, issue.Category, issue.Message)
	}
}

// refreshConfigIntegrity re-locks configDir when it is already locked.
func refreshConfigIntegrity(configDir string) error {
	if _, err := config.LoadChecksums(configDir); errors.Is(err, config.ErrNoChecksums) {
		return nil
	}
	files, err := config.DiscoverConfigFiles(configDir)
	if err != nil {
		return err
	}
	_, err = config.GenerateChecksums(files, false)
	return err
}

func loadTokensFile(path string) (*config.TokensFileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &config.TokensFileConfig{Tokens: []config.APIToken{}}, nil
		}
		return nil, err
	}
	var out config.TokensFileConfig
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out.Tokens == nil {
		out.Tokens = []config.APIToken{}
	}
	return &out, nil
}

func writeTokensFile(path string, cfg *config.TokensFileConfig) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return writeFileAtomicWithBackup(path, raw, 0o600)
}

// setEnvFileValue sets key in a dotenv file, keeping its other entries.
func setEnvFileValue(path, key, value string) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return err
		}
		env = existing
	}
	env[key] = value
	content, err := godotenv.Marshal(env)
	if err != nil {
		return err
	}
	return writeFileAtomicWithBackup(path, []byte(content+"\n"), 0o600)
}

func writeFileAtomicWithBackup(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if current, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", current, mode); err != nil {
			return err
		}
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func findTokenByName(tokens []config.APIToken, name string) (config.APIToken, int) {
	for i, t := range tokens {
		if t.Name == name {
			return t, i
		}
	}
	return config.APIToken{}, -1
}

func parseCSVScopes(in string) []string {
	parts := strings.Split(in, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return uniqueStrings(out)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func tokenEnvVarName(name string) string {
	var b strings.Builder
	for _, ch := range strings.ToUpper(name) {
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	result := strings.Trim(b.String(), "_")
	if result == "" {
		result = "HOSTDECK_TOKEN"
	}
	if !strings.HasPrefix(result, "HOSTDECK_") {
		result = "HOSTDECK_" + result
	}
	if !strings.HasSuffix(result, "_TOKEN") {
		result += "_TOKEN"
	}
	return result
}

func generateSecureToken(bytesLen int) (string, error) {
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func splitFlagsAndPositionals(args []string, takesValue map[string]bool) ([]string, []string) {
	flags := make([]string, 0, len(args))
	positionals := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positionals = append(positionals, arg)
			continue
		}

		flags = append(flags, arg)
		if strings.Contains(arg, "=") {
			continue
		}
		if takesValue[arg] && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}

	return flags, positionals
}

func printConfigTokenHelp() {
	fmt.Println("Usage: hostdeck config token <action> [flags]")
	fmt.Println("Actions: create, list")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  hostdeck config token create --name ci --scopes \"workspace:ro\"")
	fmt.Println("  hostdeck config token create --name editor --write-env")
	fmt.Println("  hostdeck config token list --format json")
}
