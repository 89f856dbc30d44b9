package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/decksmith/internal"
	"github.com/starford/decksmith/internal/deckservice"
	"github.com/starford/decksmith/internal/diag"
	"github.com/starford/decksmith/internal/mcpserver"
	"github.com/starford/decksmith/internal/media"
	"github.com/starford/decksmith/internal/models"
	pkgconfig "github.com/starford/decksmith/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// cliService builds a service that logs to stderr, keeping stdout for results.
// With --diagnostics, warnings are also printed as diagnostic events.
func cliService(cmd *cli.Command, cfg *internal.Config) (*deckservice.Service, func()) {
	var hub *diag.Hub
	closeFn := func() {}
	if cmd.Bool("diagnostics") {
		hub = diag.NewHub()
		enc := json.NewEncoder(os.Stderr)
		sub := hub.Subscribe(func(e diag.Event) { _ = enc.Encode(e) })
		closeFn = sub.Close
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel, hub)
	slog.SetDefault(logger)
	return deckservice.NewService(logger), closeFn
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func extract(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: extract <archive>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	baseDir := cfg.Output.BaseDir
	if out := cmd.String("out"); out != "" {
		baseDir = out
	}
	mode := cfg.Output.MediaMode
	if m := cmd.String("media-mode"); m != "" {
		mode = media.Mode(m)
	}

	svc, done := cliService(cmd, cfg)
	defer done()
	res, err := svc.Extract(ctx, cmd.Args().First(), baseDir, mode)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func list(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: list <store>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, done := cliService(cmd, cfg)
	defer done()
	listing, err := svc.ListNotes(ctx, cmd.Args().First())
	if err != nil {
		return err
	}
	return printJSON(listing)
}

func resolve(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: resolve <store> <note-id>")
	}
	id, err := strconv.ParseInt(cmd.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid note id %q: %w", cmd.Args().Get(1), err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, done := cliService(cmd, cfg)
	defer done()
	note, err := svc.ResolveNote(ctx, cmd.Args().First(), id, models.Variant(cmd.String("variant")))
	if err != nil {
		return err
	}
	return printJSON(note)
}

func count(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: count <store>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, done := cliService(cmd, cfg)
	defer done()
	fmt.Println(svc.CountNotes(ctx, cmd.Args().First()))
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Output.BaseDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	svc, done := cliService(cmd, cfg)
	defer done()
	return mcpserver.New(svc, cfg.Output.BaseDir, cfg.Output.MediaMode).ServeStdio()
}

func diagFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "diagnostics",
		Usage: "Print diagnostic events (skipped media, degraded reads) to stderr",
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "decksmith",
		Usage:  "Extract flashcard deck archives into inspectable stores and media trees",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (and the inbox watcher when enabled)",
				Action: serve,
			},
			{
				Name:      "extract",
				Usage:     "Extract an archive into <out>/<content-hash>",
				ArgsUsage: "<archive>",
				Action:    extract,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output base directory (overrides output.base_dir)"},
					&cli.StringFlag{Name: "media-mode", Aliases: []string{"m"}, Usage: "referenced or full (overrides output.media_mode)"},
					diagFlag(),
				},
			},
			{
				Name:      "list",
				Usage:     "List the notes of an extracted store",
				ArgsUsage: "<store>",
				Action:    list,
				Flags:     []cli.Flag{diagFlag()},
			},
			{
				Name:      "resolve",
				Usage:     "Resolve a note's first card to its templates and stylesheet",
				ArgsUsage: "<store> <note-id>",
				Action:    resolve,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "variant", Usage: "Container variant label to echo"},
					diagFlag(),
				},
			},
			{
				Name:      "count",
				Usage:     "Count the notes of an extracted store (0 on failure)",
				ArgsUsage: "<store>",
				Action:    count,
				Flags:     []cli.Flag{diagFlag()},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
