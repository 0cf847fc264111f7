package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/phedlund/cloudnotes/internal"
	"github.com/phedlund/cloudnotes/internal/cache"
	"github.com/phedlund/cloudnotes/internal/export"
	"github.com/phedlund/cloudnotes/internal/mcpserver"
	"github.com/phedlund/cloudnotes/internal/notesync"
	"github.com/phedlund/cloudnotes/internal/remote"
	"github.com/phedlund/cloudnotes/internal/storage"
	pkgconfig "github.com/phedlund/cloudnotes/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, string, error) {
	configPath := cmd.String("config")
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, configPath, nil
}

// stderrLogger builds a logger that stays off stdout, which the mcp
// subcommand uses as its protocol channel.
func stderrLogger(cfg *internal.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// openCore wires the cache, remote client and sync manager shared by the
// one-shot subcommands.
func openCore(cfg *internal.Config, logger *slog.Logger) (*cache.DB, *notesync.Manager, error) {
	db, err := cache.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	client, err := remote.NewHTTP(cfg.Server.URL, cfg.Server.Username, cfg.Server.Password)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init remote client: %w", err)
	}
	mgr := notesync.New(db, client,
		notesync.WithLogger(logger),
		notesync.WithOffline(func() bool { return cfg.Server.Offline }),
	)
	return db, mgr, nil
}

func runDaemon(ctx context.Context, cmd *cli.Command) error {
	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx,
		internal.WithConfig(cfg),
		internal.WithConfigPath(configPath),
	); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runSync(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := stderrLogger(cfg)
	db, mgr, err := openCore(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := mgr.Sync(ctx); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

func runExport(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir := cmd.String("dir")
	if dir == "" {
		dir = cfg.Mirror.Path
	}
	if dir == "" {
		return fmt.Errorf("no mirror directory: set --dir or mirror.path")
	}

	logger := stderrLogger(cfg)
	db, err := cache.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer db.Close()

	fs, err := storage.NewFS(dir)
	if err != nil {
		return fmt.Errorf("init mirror: %w", err)
	}
	return export.New(db, fs, logger).Run()
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := stderrLogger(cfg)
	slog.SetDefault(logger)

	db, mgr, err := openCore(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return mcpserver.New(mgr, db).ServeStdio()
}

func main() {
	cmd := &cli.Command{
		Name:   "cloudnotes",
		Usage:  "Offline-first Nextcloud Notes client with a local cache, sync engine, REST API and markdown mirror",
		Action: runDaemon,
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
				Name:   "sync",
				Usage:  "Run one sync pass against the notes server and exit",
				Action: runSync,
			},
			{
				Name:   "export",
				Usage:  "Write the markdown mirror and exit",
				Action: runExport,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Mirror directory (overrides mirror.path)",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve note tools over the Model Context Protocol on stdio",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
