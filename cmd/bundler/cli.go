package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/bundler/internal/api"
	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/draft"
	"github.com/hpungsan/bundler/internal/errors"
	"github.com/hpungsan/bundler/internal/ops"
	"github.com/hpungsan/bundler/internal/prompt"
)

// maxStdinBytes bounds text and draft state read from stdin.
const maxStdinBytes = 10 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(d *appDeps) *cli.App {
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.cfg == nil {
		d.cfg = config.DefaultConfig()
	}
	if d.lib == nil {
		d.lib = prompt.NewLibrary()
	}

	app := &cli.App{
		Name:    "bundler",
		Usage:   "Bundle content sources and process them into LLM-generated results",
		Version: Version,
		Commands: []*cli.Command{
			contentCmd(d),
			bundleCmd(d),
			promptsCmd(d),
			draftCmd(d),
			jobCmd(d),
			serveCmd(d),
		},
	}
	rejectTrailingFlags(app.Commands)
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// rejectTrailingFlags wraps every command action so that flags given after a
// positional argument fail. The flag parser stops at the first argument and
// would otherwise hand them to the action as plain arguments.
func rejectTrailingFlags(cmds []*cli.Command) {
	for _, cmd := range cmds {
		rejectTrailingFlags(cmd.Subcommands)
		if cmd.Action == nil {
			continue
		}
		action := cmd.Action
		cmd.Action = func(c *cli.Context) error {
			if stray := trailingFlags(c.Args().Slice()); len(stray) > 0 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf(
					"flags must come before arguments (usage: %s [options] %s): %s",
					cmd.Name, cmd.ArgsUsage, strings.Join(stray, " "))))
			}
			return action(c)
		}
	}
}

// trailingFlags returns the arguments that look like flags.
func trailingFlags(args []string) []string {
	var stray []string
	for _, a := range args {
		if len(a) > 1 && strings.HasPrefix(a, "-") {
			stray = append(stray, a)
		}
	}
	return stray
}

// contentCmd groups the content store commands.
func contentCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "content",
		Usage: "List, inspect and ingest content items",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List content items, newest first",
				Flags: append(pageFlags(),
					&cli.StringFlag{Name: "source-type", Aliases: []string{"s"}, Usage: "Filter by source type"},
				),
				Action: func(c *cli.Context) error {
					return output(ops.ListContent(c.Context, d.db, ops.ListContentInput{
						Page:       c.Int("page"),
						PageSize:   c.Int("page-size"),
						SourceType: c.String("source-type"),
					}))
				},
			},
			{
				Name:      "get",
				Usage:     "Get a content item",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "text", Usage: "Include extracted text"},
				},
				Action: func(c *cli.Context) error {
					return output(ops.GetContent(c.Context, d.db, ops.GetContentInput{
						ID:          c.Args().First(),
						IncludeText: c.Bool("text"),
					}))
				},
			},
			{
				Name:  "add",
				Usage: "Store text piped via stdin as a content item",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Item title"},
					&cli.StringFlag{Name: "url", Usage: "Source URL"},
					&cli.StringFlag{Name: "source-type", Aliases: []string{"s"}, Usage: "Source type (default text)"},
					&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Language code"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
				},
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewInvalidRequest("text must be piped via stdin"))
					}
					text, err := readStdin(maxStdinBytes)
					if err != nil {
						return outputError(errors.NewInvalidRequest(err.Error()))
					}
					return output(ops.IngestText(c.Context, d.db, ops.IngestTextInput{
						Title:      optionalString(c, "title"),
						URL:        optionalString(c, "url"),
						Text:       text,
						SourceType: c.String("source-type"),
						Language:   optionalString(c, "language"),
						Tags:       parseTags(c.String("tags")),
					}))
				},
			},
			{
				Name:      "ingest-url",
				Usage:     "Fetch a web page and store its readable text",
				ArgsUsage: "<url>",
				Flags:     []cli.Flag{tagsFlag()},
				Action: func(c *cli.Context) error {
					return output(ops.IngestURL(c.Context, d.db, ops.IngestURLInput{
						URL:  c.Args().First(),
						Tags: parseTags(c.String("tags")),
					}))
				},
			},
			{
				Name:  "ingest-feed",
				Usage: "Store one content item per RSS, Atom or JSON feed entry",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "Feed URL"},
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Local feed file"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum entries (default 20, max 200)"},
					tagsFlag(),
				},
				Action: func(c *cli.Context) error {
					return output(ops.IngestFeed(c.Context, d.db, ops.IngestFeedInput{
						URL:   c.String("url"),
						Path:  c.String("path"),
						Limit: c.Int("limit"),
						Tags:  parseTags(c.String("tags")),
					}))
				},
			},
			{
				Name:      "ingest-pdf",
				Usage:     "Record a PDF document as a content item",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Item title (defaults to the PDF title or file name)"},
					tagsFlag(),
				},
				Action: func(c *cli.Context) error {
					return output(ops.IngestPDF(c.Context, d.db, ops.IngestPDFInput{
						Path:  c.Args().First(),
						Title: optionalString(c, "title"),
						Tags:  parseTags(c.String("tags")),
					}))
				},
			},
			{
				Name:      "import",
				Usage:     "Import content items from a JSONL file",
				ArgsUsage: "<path>",
				Action: func(c *cli.Context) error {
					return output(ops.ImportContent(c.Context, d.db, d.cfg, ops.ImportInput{Path: c.Args().First()}))
				},
			},
		},
	}
}

// bundleCmd groups the bundle and attempt commands.
func bundleCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "bundle",
		Usage: "Create bundles, process them and inspect their attempts",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a bundle over content items, in the order given",
				ArgsUsage: "<content-id>...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Bundle name"},
				},
				Action: func(c *cli.Context) error {
					return output(ops.CreateBundle(c.Context, d.db, d.cfg, ops.CreateBundleInput{
						Name:       optionalString(c, "name"),
						ContentIDs: c.Args().Slice(),
					}))
				},
			},
			{
				Name:      "get",
				Usage:     "Get a bundle with its content items",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					return output(ops.GetBundle(c.Context, d.db, ops.GetBundleInput{ID: c.Args().First()}))
				},
			},
			{
				Name:  "list",
				Usage: "List bundles, most recently updated first",
				Flags: pageFlags(),
				Action: func(c *cli.Context) error {
					return output(ops.ListBundles(c.Context, d.db, ops.ListBundlesInput{
						Page:     c.Int("page"),
						PageSize: c.Int("page-size"),
					}))
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a bundle; omit the name to clear it",
				ArgsUsage: "<id> [name]",
				Action: func(c *cli.Context) error {
					var name *string
					if c.NArg() > 1 {
						n := c.Args().Get(1)
						name = &n
					}
					return output(ops.UpdateBundle(c.Context, d.db, ops.UpdateBundleInput{ID: c.Args().First(), Name: name}))
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a bundle with its attempts and jobs",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					return output(ops.DeleteBundle(c.Context, d.db, ops.DeleteBundleInput{ID: c.Args().First()}))
				},
			},
			{
				Name:      "preview",
				Usage:     "Show the combined content preview and, with --type, the final prompt",
				ArgsUsage: "<id>",
				Flags:     processFlags(),
				Action: func(c *cli.Context) error {
					return output(ops.PreviewBundle(c.Context, d.db, d.lib, ops.PreviewBundleInput{
						BundleID: c.Args().First(),
						Config:   processConfig(c),
					}))
				},
			},
			{
				Name:      "process",
				Usage:     "Record a processing attempt and run or queue its job",
				ArgsUsage: "<id>",
				Flags: append(processFlags(),
					&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "Idempotency key (default: a fresh UUID)"},
					&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "Run the job now and include it in the output"},
				),
				Action: func(c *cli.Context) error {
					return processAction(c, d)
				},
			},
			{
				Name:      "attempts",
				Usage:     "List a bundle's attempts in attempt order",
				ArgsUsage: "<id>",
				Flags:     pageFlags(),
				Action: func(c *cli.Context) error {
					return output(ops.ListAttempts(c.Context, d.db, ops.ListAttemptsInput{
						BundleID: c.Args().First(),
						Page:     c.Int("page"),
						PageSize: c.Int("page-size"),
					}))
				},
			},
			{
				Name:      "diff",
				Usage:     "Compare two attempts of the same bundle",
				ArgsUsage: "<attempt-id-1> <attempt-id-2>",
				Action: func(c *cli.Context) error {
					return output(ops.DiffAttempts(c.Context, d.db, ops.DiffAttemptsInput{
						AttemptID1: c.Args().Get(0),
						AttemptID2: c.Args().Get(1),
					}))
				},
			},
			{
				Name:      "export",
				Usage:     "Export a bundle's attempts to a JSONL file",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output .jsonl path (default: ~/.bundler/exports)"},
				},
				Action: func(c *cli.Context) error {
					return output(ops.ExportAttempts(c.Context, d.db, d.cfg, ops.ExportAttemptsInput{
						BundleID: c.Args().First(),
						Path:     c.String("path"),
					}))
				},
			},
		},
	}
}

// processResult is a process output, plus the job when it was run inline.
type processResult struct {
	*ops.ProcessBundleOutput
	Job *bundle.Job `json:"job,omitempty"`
}

func processAction(c *cli.Context, d *appDeps) error {
	cfg := processConfig(c)
	cfg.IdempotencyKey = c.String("key")
	if cfg.IdempotencyKey == "" {
		cfg.IdempotencyKey = uuid.NewString()
	}

	out, err := ops.ProcessBundle(c.Context, d.db, d.lib, ops.ProcessBundleInput{
		BundleID: c.Args().First(),
		Config:   cfg,
	})
	if err != nil {
		return outputError(err)
	}

	result := processResult{ProcessBundleOutput: out}
	if c.Bool("wait") {
		if err := d.newRunner().RunJob(c.Context, out.Attempt.JobID); err != nil {
			return outputError(err)
		}
		job, err := ops.GetJob(c.Context, d.db, ops.GetJobInput{ID: out.Attempt.JobID})
		if err != nil {
			return outputError(err)
		}
		result.Job = job
	}
	return outputJSON(result)
}

// promptsCmd prints the default system prompts.
func promptsCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "prompts",
		Usage: "Show the default system prompt of every processing type",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Value: "en", Usage: "Output language: en|ru|es"},
		},
		Action: func(c *cli.Context) error {
			return output(ops.SystemPrompts(d.lib, ops.SystemPromptsInput{Language: c.String("language")}))
		},
	}
}

// draftCmd groups the form draft commands.
func draftCmd(d *appDeps) *cli.Command {
	slotFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "slot", Value: draft.DefaultSlot, Usage: "Draft slot"}
	}
	return &cli.Command{
		Name:  "draft",
		Usage: "Save, restore and purge processing form drafts",
		Subcommands: []*cli.Command{
			{
				Name:  "save",
				Usage: "Save a draft (reads the form state JSON from stdin)",
				Flags: []cli.Flag{slotFlag()},
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewInvalidRequest("form state must be piped via stdin"))
					}
					raw, err := readStdin(maxStdinBytes)
					if err != nil {
						return outputError(errors.NewInvalidRequest(err.Error()))
					}
					var state draft.FormState
					if err := json.Unmarshal([]byte(raw), &state); err != nil {
						return outputError(errors.NewInvalidRequest("form state is not valid JSON: " + err.Error()))
					}
					return output(ops.SaveDraft(c.Context, d.db, ops.SaveDraftInput{Slot: c.String("slot"), State: state}))
				},
			},
			{
				Name:  "load",
				Usage: "Load a draft; expired or incompatible drafts load as empty",
				Flags: []cli.Flag{slotFlag()},
				Action: func(c *cli.Context) error {
					return output(ops.LoadDraft(c.Context, d.db, d.cfg, ops.LoadDraftInput{Slot: c.String("slot")}))
				},
			},
			{
				Name:  "purge",
				Usage: "Delete drafts older than the draft TTL",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "older-than", Usage: "Age in days, e.g. 7d (default: draft_ttl_hours)"},
				},
				Action: func(c *cli.Context) error {
					input := ops.PurgeDraftsInput{}
					if olderThan := c.String("older-than"); olderThan != "" {
						days, err := parseDuration(olderThan)
						if err != nil {
							return outputError(errors.NewInvalidRequest(err.Error()))
						}
						input.OlderThan = time.Duration(days) * 24 * time.Hour
					}
					return output(ops.PurgeDrafts(c.Context, d.db, d.cfg, input))
				},
			},
		},
	}
}

// jobCmd groups the job commands.
func jobCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "job",
		Usage: "Inspect processing jobs",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Get a job with its status, result and error",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					return output(ops.GetJob(c.Context, d.db, ops.GetJobInput{ID: c.Args().First()}))
				},
			},
			{
				Name:      "result",
				Usage:     "Print a completed job's result",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: ops.FormatMarkdown, Usage: "markdown|html"},
				},
				Action: func(c *cli.Context) error {
					out, err := ops.JobResult(c.Context, d.db, ops.JobResultInput{
						ID:     c.Args().First(),
						Format: c.String("format"),
					})
					if err != nil {
						return outputError(err)
					}
					_, err = fmt.Fprintln(os.Stdout, out.Body)
					return err
				},
			},
		},
	}
}

// serveCmd runs the REST API together with the job runner.
func serveCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the REST API and process jobs in the background",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (default from config)"},
			&cli.StringFlag{Name: "log-level", EnvVars: []string{"BUNDLER_LOG_LEVEL"}, Usage: "debug|info|warn|error"},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("log-level") {
				d.logger = newLogger(c.String("log-level"))
			}
			bind := d.cfg.Server.Bind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			port := d.cfg.Server.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}
			return serve(c.Context, d, bind, port)
		},
	}
}

func serve(parent context.Context, d *appDeps, bind string, port int) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := d.newRunner()
	if err := runner.Start(ctx); err != nil {
		return outputError(err)
	}
	d.watchPrompts(ctx)

	router := api.NewRouter(api.Deps{
		DB:      d.db,
		Config:  d.cfg,
		Prompts: d.lib,
		Queue:   runner,
		Logger:  d.logger,
		APIKey:  d.cfg.Server.APIKey(),
		Version: Version,
	})
	if d.cfg.Server.APIKey() == "" {
		d.logger.Warn("API authentication disabled", "env", d.cfg.Server.APIKeyEnv)
	}

	err := api.Run(ctx, api.NewHTTPServer(router, bind, port), d.logger)
	stop()
	runner.Wait()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// Helper functions

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "page", Usage: "1-based page number"},
		&cli.IntFlag{Name: "page-size", Usage: "Items per page (default 20, max 100)"},
	}
}

func tagsFlag() cli.Flag {
	return &cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"}
}

func processFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Processing type: summary|mvp_plan|content_ideas|blog_post"},
		&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Value: string(bundle.English), Usage: "Output language: en|ru|es"},
		&cli.StringFlag{Name: "instructions", Aliases: []string{"i"}, Usage: "Custom instructions"},
		&cli.StringFlag{Name: "system-prompt", Usage: "System prompt (default for the type and language)"},
		&cli.StringFlag{Name: "user-prompt", Usage: "Text appended to the final prompt"},
	}
}

// processConfig builds a config from process flags. Unset optional flags stay nil,
// so an explicit empty value is distinct from omission.
func processConfig(c *cli.Context) bundle.ProcessConfig {
	return bundle.ProcessConfig{
		ProcessingType:     bundle.ProcessingType(c.String("type")),
		OutputLanguage:     bundle.Language(c.String("language")),
		CustomInstructions: optionalString(c, "instructions"),
		SystemPrompt:       c.String("system-prompt"),
		UserPrompt:         optionalString(c, "user-prompt"),
	}
}

func optionalString(c *cli.Context, name string) *string {
	if !c.IsSet(name) {
		return nil
	}
	v := c.String(name)
	return &v
}

// output writes v as JSON, or err in CLI form.
func output[T any](v T, err error) error {
	if err != nil {
		return outputError(err)
	}
	return outputJSON(v)
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if bErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", bErr.Code, errors.Message(err)), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin, failing past maxBytes.
func readStdin(maxBytes int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > maxBytes {
		return "", fmt.Errorf("stdin exceeds %d bytes", maxBytes)
	}
	return strings.TrimSpace(string(data)), nil
}

// parseTags splits a comma-separated string into a slice of tags.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}

func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}
