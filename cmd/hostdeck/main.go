package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/mattjoyce/hostdeck/internal/adapter"
	"github.com/mattjoyce/hostdeck/internal/api"
	"github.com/mattjoyce/hostdeck/internal/auth"
	"github.com/mattjoyce/hostdeck/internal/config"
	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/events"
	"github.com/mattjoyce/hostdeck/internal/inspect"
	"github.com/mattjoyce/hostdeck/internal/lock"
	"github.com/mattjoyce/hostdeck/internal/log"
	"github.com/mattjoyce/hostdeck/internal/panelapi"
	"github.com/mattjoyce/hostdeck/internal/state"
	"github.com/mattjoyce/hostdeck/internal/storage"
	"github.com/mattjoyce/hostdeck/internal/tui"
	"github.com/mattjoyce/hostdeck/internal/workspace"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// isTerminal is swapped in tests.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "workspace":
		return runWorkspaceNoun(args)
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "state":
		return runStateNoun(args)
	case "query":
		if hasHelpFlag(args) {
			printQueryHelp()
			return 0
		}
		return runQuery(args)

	// --- ROOT ALIASES ---
	case "open":
		return runWorkspaceOpen(args)
	case "start":
		return runStart(args)
	case "doctor":
		return runConfigCheck(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: hostdeck version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("hostdeck %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`hostdeck - Terminal workspaces for a hosting control panel

Usage:
  hostdeck <noun> <action> [flags]

Core Resources (Nouns):
  workspace Panel pages opened as tabbed terminal workspaces
  system    API server lifecycle
  config    Configuration, integrity and tokens
  state     Local preferences and selections

Workspace Commands:
  workspace open <name>   Open a workspace in the terminal UI
  workspace list          Show configured workspaces

System Commands:
  system start      Serve every workspace over the HTTP API in foreground

Config Commands:
  config check      Validate configuration, optionally probing the panel
  config lock       Authorize current state (update integrity hashes)
  config token      Manage scoped API tokens

State Commands:
  state inspect     Show stored preferences, selections and lock holders

Queries:
  query <workspace> <sql>   Run SQL through a database workspace

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Use 'hostdeck <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runWorkspaceNoun(args []string) int {
	if len(args) < 1 {
		printWorkspaceNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printWorkspaceNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "open":
		if hasHelpFlag(actionArgs) {
			printWorkspaceOpenHelp()
			return 0
		}
		return runWorkspaceOpen(actionArgs)
	case "list":
		if hasHelpFlag(actionArgs) {
			printWorkspaceListHelp()
			return 0
		}
		return runWorkspaceList(actionArgs)
	case "help":
		printWorkspaceNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown workspace action: %s\n", action)
		return 1
	}
}

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "help":
		printSystemNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock", "hash-update":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "token":
		return runConfigToken(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runStateNoun(args []string) int {
	if len(args) < 1 {
		printStateNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printStateNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "inspect":
		if hasHelpFlag(actionArgs) {
			printStateInspectHelp()
			return 0
		}
		return runStateInspect(actionArgs)
	case "help":
		printStateNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown state action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printWorkspaceNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: hostdeck workspace <action>")
	fmt.Fprintln(w, "Actions: open, list")
}

func printSystemNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: hostdeck system <action>")
	fmt.Fprintln(w, "Actions: start")
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: hostdeck config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, token")
}

func printStateNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: hostdeck state <action>")
	fmt.Fprintln(w, "Actions: inspect")
}

func printWorkspaceOpenHelp() {
	fmt.Println("Usage: hostdeck workspace open <name> [--config PATH | --config-dir PATH] [--log-file PATH]")
	fmt.Println("Open a workspace in the terminal UI. Logs go to a file next to the state database.")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  Tab/Shift+Tab    Next/previous tab")
	fmt.Println("  Enter, o         Open entry (o: in a new tab)")
	fmt.Println("  Ctrl+S, Ctrl+O   Save, save and close")
	fmt.Println("  Ctrl+E           Execute query")
	fmt.Println("  Ctrl+W           Close tab")
	fmt.Println("  Ctrl+T, Ctrl+B   Cycle theme, toggle sidebar")
	fmt.Println("  Ctrl+C           Quit")
}

func printWorkspaceListHelp() {
	fmt.Println("Usage: hostdeck workspace list [--config PATH | --config-dir PATH] [--json]")
	fmt.Println("Show configured workspaces, their kind and where their browse views start.")
}

func printSystemStartHelp() {
	fmt.Println("Usage: hostdeck system start [--config PATH | --config-dir PATH]")
	fmt.Println("Serve every workspace over the HTTP API in the foreground.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: hostdeck config lock [--config PATH | --config-dir PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: hostdeck config check [--config PATH | --config-dir PATH] [--format human|json] [--json] [--strict] [--probe] [--probe-timeout D]")
	fmt.Println("Validate configuration syntax, policy, and integrity.")
	fmt.Println("With --probe, also list the root of every workspace on the panel.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Valid")
	fmt.Println("  1  Invalid, or a probe failed")
	fmt.Println("  2  Valid with warnings (--strict only)")
}

func printStateInspectHelp() {
	fmt.Println("Usage: hostdeck state inspect [--config PATH | --config-dir PATH] [--json]")
	fmt.Println("Show stored preferences, the last selection of each workspace and lock holders.")
}

func printQueryHelp() {
	fmt.Println("Usage: hostdeck query <workspace> <sql> [--database NAME] [--format table|json] [--config PATH | --config-dir PATH]")
	fmt.Println("Run SQL through a database workspace. Without --database the workspace default is used.")
	fmt.Println("Pass - as <sql> to read the statement from stdin.")
}

// --- ACTION IMPLEMENTATIONS ---

func loadConfigForToolWithDir(configPath, configDir string) (*config.Config, []string, error) {
	if configPath != "" && configDir != "" {
		return nil, nil, fmt.Errorf("use only one of --config or --config-dir")
	}
	if configDir != "" {
		configPath = configDir
	}
	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			return nil, nil, err
		}
		configPath = discovered
	}
	return config.Load(configPath)
}

func newPanelClient(cfg *config.Config) *panelapi.Client {
	return panelapi.New(cfg.Panel.BaseURL, cfg.Panel.APIKey, cfg.Panel.Timeout, log.WithComponent("panel"))
}

func describeLockError(err error) string {
	var held *lock.HeldError
	if errors.As(err, &held) {
		return held.Error() + " (another hostdeck process is running)"
	}
	return err.Error()
}

func runWorkspaceOpen(args []string) int {
	var configPath, configDir, logFile string
	fs := flag.NewFlagSet("workspace open", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&configDir, "config-dir", "", "Path to configuration directory")
	fs.StringVar(&logFile, "log-file", "", "Log file (default: hostdeck.log next to the state database)")

	flags, positionals := splitFlagsAndPositionals(args, map[string]bool{
		"--config": true, "-config": true, "--config-dir": true, "-config-dir": true, "--log-file": true, "-log-file": true,
	})
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: hostdeck workspace open <name> [--config PATH]")
		return 1
	}
	name := positionals[0]

	if !isTerminal() {
		fmt.Fprintln(os.Stderr, "Error: workspace open needs an interactive terminal; use 'hostdeck system start' for the HTTP API")
		return 1
	}

	cfg, warnings, err := loadConfigForToolWithDir(configPath, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if _, ok := cfg.Workspaces[name]; !ok {
		fmt.Fprintf(os.Stderr, "Unknown workspace: %s (configured: %s)\n", name, strings.Join(cfg.WorkspaceNames(), ", "))
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	if logFile == "" {
		logFile = filepath.Join(filepath.Dir(cfg.State.Path), "hostdeck.log")
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		return 1
	}
	lf, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return 1
	}
	defer lf.Close()
	log.SetupWith(log.Options{Level: cfg.Service.LogLevel, Format: cfg.Service.LogFormat, Output: lf})
	logger := log.WithWorkspace(name)

	pidLock, err := lock.Acquire(lock.PathFor(cfg.State.Path, "workspace-"+name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Workspace %s is already open: %s\n", name, describeLockError(err))
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state database: %v\n", err)
		return 1
	}
	defer db.Close()

	store := state.NewStore(db)
	prefs, err := state.LoadPreferences(ctx, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load preferences: %v\n", err)
		return 1
	}

	hub := events.NewHub(256)
	set, err := workspace.OpenSet(cfg, newPanelClient(cfg), workspace.SetOptions{Publisher: hub, Selection: store})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open workspace: %v\n", err)
		return 1
	}
	c, _ := set.Get(name)

	opts := tui.Options{Preferences: prefs}
	if ref, ok, err := store.LastSelected(ctx, name); err != nil {
		logger.Warn("ignoring stored selection", "error", err)
	} else if ok {
		opts.Restore = &ref
	}

	sub, unsubscribe := hub.Subscribe()
	defer unsubscribe()
	opts.Events = sub

	logger.Info("workspace opened", "version", version, "state", cfg.State.Path)
	p := tea.NewProgram(tui.New(ctx, c, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	logger.Info("workspace closed")
	return 0
}

type workspaceListEntry struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	Location string `json:"location"`
}

func runWorkspaceList(args []string) int {
	var configPath, configDir string
	var jsonOut bool
	fs := flag.NewFlagSet("workspace list", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&configDir, "config-dir", "", "Path to configuration directory")
	fs.BoolVar(&jsonOut, "json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigForToolWithDir(configPath, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	entries := make([]workspaceListEntry, 0, len(cfg.Workspaces))
	for _, name := range cfg.WorkspaceNames() {
		ws := cfg.Workspaces[name]
		_, root, err := adapter.Build(ws, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Workspace %s: %v\n", name, err)
			return 1
		}
		if ws.Kind == config.KindDatabase {
			root = ws.Database
		}
		entries = append(entries, workspaceListEntry{Name: name, Kind: ws.Kind, Label: ws.Label, Location: root})
	}

	if jsonOut {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Kind", "Label", "Location"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Name, e.Kind, e.Label, e.Location})
	}
	t.Render()
	return 0
}

func runStart(args []string) int {
	var configPath, configDir string
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&configDir, "config-dir", "", "Path to configuration directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	target, _, err := resolveConfigTarget(configPath, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	cfg, warnings, err := config.Load(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("hostdeck starting", "version", version, "config", target)
	for _, w := range warnings {
		logger.Warn("config integrity", "detail", w)
	}

	if !cfg.API.Enabled {
		logger.Error("api is disabled; set api.enabled: true to serve workspaces")
		return 1
	}

	pidLockPath := lock.PathFor(cfg.State.Path, "server")
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", pidLockPath, "error", describeLockError(err))
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	hub := events.NewHub(256)
	set, err := workspace.OpenSet(cfg, newPanelClient(cfg), workspace.SetOptions{
		Publisher: hub,
		Selection: state.NewStore(db),
	})
	if err != nil {
		logger.Error("failed to open workspaces", "error", err)
		return 1
	}
	for _, s := range set.Summaries() {
		logger.Info("workspace registered", "name", s.Name, "kind", s.Kind)
	}

	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	apiServer := api.New(api.Config{
		Listen: cfg.API.Listen,
		APIKey: cfg.API.Auth.APIKey,
		Tokens: tokens,
	}, set, hub, log.WithComponent("api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := apiServer.Start(gctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})

	if files, err := config.DiscoverConfigFiles(cfg.ConfigDir); err == nil {
		g.Go(func() error {
			return config.Watch(gctx, files.AllFiles(), func(path string) {
				if _, _, err := config.Load(target); err != nil {
					logger.Error("configuration changed on disk and no longer loads", "path", path, "error", err)
					return
				}
				logger.Warn("configuration changed on disk; restart hostdeck to apply", "path", path)
			})
		})
	} else {
		logger.Debug("config watch disabled", "error", err)
	}

	logger.Info("hostdeck running (press Ctrl+C to stop)", "listen", cfg.API.Listen)

	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
		return 1
	}

	logger.Info("hostdeck stopped")
	return 0
}

func runQuery(args []string) int {
	var configPath, configDir, database, format string
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&configDir, "config-dir", "", "Path to configuration directory")
	fs.StringVar(&database, "database", "", "Database to run against (default: the workspace's)")
	fs.StringVar(&format, "format", "table", "Output format (table, json)")

	flags, positionals := splitFlagsAndPositionals(args, map[string]bool{
		"--config": true, "-config": true, "--config-dir": true, "-config-dir": true,
		"--database": true, "-database": true, "--format": true, "-format": true,
	})
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: hostdeck query <workspace> <sql> [--database NAME] [--format table|json]")
		return 1
	}
	name, sqlText := positionals[0], positionals[1]
	if sqlText == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read stdin: %v\n", err)
			return 1
		}
		sqlText = string(raw)
	}

	cfg, _, err := loadConfigForToolWithDir(configPath, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	ws, ok := cfg.Workspaces[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown workspace: %s\n", name)
		return 1
	}
	if ws.Kind != config.KindDatabase {
		fmt.Fprintf(os.Stderr, "Workspace %s is a %s workspace; queries need a database workspace\n", name, ws.Kind)
		return 1
	}
	if database == "" {
		database = ws.Database
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	db := adapter.NewDatabase(newPanelClient(cfg), ws.Database, ws.RowLimit)
	res, err := db.Execute(context.Background(), database, sqlText)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		return 1
	}

	if format == "json" {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
	} else {
		renderResult(os.Stdout, res)
	}
	if res.Failed() {
		return 1
	}
	return 0
}

func renderResult(w io.Writer, res document.Result) {
	if res.Failed() {
		fmt.Fprintf(w, "Error: %s\n", res.Error)
		return
	}
	if len(res.Columns) == 0 {
		msg := res.Message
		if msg == "" {
			msg = "OK"
		}
		fmt.Fprintln(w, msg)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	header := make(table.Row, len(res.Columns))
	for i, col := range res.Columns {
		header[i] = col
	}
	t.AppendHeader(header)
	for _, r := range res.Rows {
		row := make(table.Row, len(res.Columns))
		for i, col := range res.Columns {
			if v := r[col]; v != nil {
				row[i] = fmt.Sprint(v)
			} else {
				row[i] = "NULL"
			}
		}
		t.AppendRow(row)
	}
	t.Render()
	fmt.Fprintf(w, "(%d row(s))\n", len(res.Rows))
}

func runStateInspect(args []string) int {
	var configPath, configDir string
	var jsonOut bool
	fs := flag.NewFlagSet("state inspect", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&configDir, "config-dir", "", "Path to configuration directory")
	fs.BoolVar(&jsonOut, "json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigForToolWithDir(configPath, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state database: %v\n", err)
		return 1
	}
	defer db.Close()

	var out string
	if jsonOut {
		out, err = inspect.BuildJSONReport(ctx, db, cfg.State.Path, cfg.WorkspaceNames())
	} else {
		out, err = inspect.BuildReport(ctx, db, cfg.State.Path, cfg.WorkspaceNames())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}
	fmt.Println(strings.TrimRight(out, "\n"))
	return 0
}
