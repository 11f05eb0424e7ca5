package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/loopgrid/internal"
	pkgconfig "github.com/starford/loopgrid/pkg/config"
)

func loadConfig(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func board(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return internal.RunBoard(ctx, cmd.Bool("follow"), opts...)
}

func seed(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("seed: file argument is required")
	}
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Seed(ctx, path, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "loopgrid",
		Usage:  "Habit tracker server with retention grid, import inbox and MCP tools",
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
				Usage:  "Run the HTTP API, event stream and inbox watcher (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: mcp,
			},
			{
				Name:   "board",
				Usage:  "Print the habit grid",
				Action: board,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "follow",
						Aliases: []string{"f"},
						Usage:   "Redraw on every server event (needs dashboard.api_url)",
					},
				},
			},
			{
				Name:      "seed",
				Usage:     "Load habits and repetitions from a JSON or YAML file",
				ArgsUsage: "FILE",
				Action:    seed,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
