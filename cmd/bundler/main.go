package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/jobs"
	"github.com/hpungsan/bundler/internal/llm"
	"github.com/hpungsan/bundler/internal/mcp"
	"github.com/hpungsan/bundler/internal/prompt"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"content": true, "bundle": true, "prompts": true,
	"draft": true, "job": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _                     _ _
  | |__  _   _ _ __   __| | | ___ _ __
  | '_ \| | | | '_ \ / _' | |/ _ \ '__|
  | |_) | |_| | | | | (_| | |  __/ |
  |_.__/ \__,_|_| |_|\__,_|_|\___|_|

  Bundle sources, compose prompts, track every attempt

  Usage: bundler <command> [options]
         bundler serve
         bundler --help

  MCP server mode requires piped input.`)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Help and version need no database.
	if isHelpOrVersion() {
		app := newCLIApp(&appDeps{})
		if err := app.Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fail("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".bundler")

	if err := config.LoadEnv(baseDir); err != nil {
		fail("failed to load .env: %v", err)
	}

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fail("failed to load config: %v", err)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fail("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	logger := newLogger(os.Getenv("BUNDLER_LOG_LEVEL"))

	lib := prompt.NewLibrary()
	promptsFile := cfg.ResolvePromptsFile(baseDir)
	if promptsFile != "" {
		if err := lib.Reload(promptsFile); err != nil {
			fail("failed to load prompts: %v", err)
		}
	}

	deps := &appDeps{
		db:          database,
		cfg:         cfg,
		lib:         lib,
		logger:      logger,
		promptsFile: promptsFile,
	}

	if isCLIMode() {
		app := newCLIApp(deps)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument on a terminal is a typo, not an MCP client.
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'bundler --help' for usage.\n")
		os.Exit(1)
	}

	if err := runMCP(deps); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the stderr text logger. Unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// runMCP serves MCP over stdio with a job runner draining processed bundles.
// Logs go to stderr; stdout carries the protocol.
func runMCP(d *appDeps) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if unknown := mcp.ValidateDisabledTools(d.cfg.DisabledTools); len(unknown) > 0 {
		d.logger.Warn("unknown tools in disabled_tools", "names", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(d.cfg.DisabledTypes); len(unknown) > 0 {
		d.logger.Warn("unknown types in disabled_types", "names", unknown, "known", mcp.KnownTypes)
	}

	runner := d.newRunner()
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("start job runner: %w", err)
	}
	d.watchPrompts(ctx)

	err := mcp.Run(d.db, d.cfg, d.lib, runner, Version)
	stop()
	runner.Wait()
	return err
}

// appDeps holds what commands need once the database and config are loaded.
type appDeps struct {
	db          *sql.DB
	cfg         *config.Config
	lib         *prompt.Library
	logger      *slog.Logger
	promptsFile string
}

func (d *appDeps) newRunner() *jobs.Runner {
	w := d.cfg.Workers
	return jobs.NewRunner(d.db, llm.New(d.cfg.LLM), jobs.Config{
		Workers:       w.Count,
		QueueSize:     w.QueueSize,
		SweepInterval: secondsDuration(w.SweepIntervalSeconds),
		Logger:        d.logger,
	})
}

func (d *appDeps) watchPrompts(ctx context.Context) {
	if d.promptsFile == "" {
		return
	}
	if err := prompt.Watch(ctx, d.lib, d.promptsFile, d.logger); err != nil {
		d.logger.Warn("prompts file will not be reloaded", "error", err)
	}
}
