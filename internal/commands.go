package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/loopgrid/internal/dashboard"
	"github.com/starford/loopgrid/internal/mcpserver"
	"github.com/starford/loopgrid/internal/parser"
	"github.com/starford/loopgrid/internal/store"
)

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	newLogger(cfg, os.Stderr)

	db, err := store.Open(ctx, cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	svc, err := newService(cfg, db)
	if err != nil {
		return err
	}
	return mcpserver.New(svc, cfg.Dashboard.RangeDays).ServeStdio()
}

// RunBoard prints the habit grid. It reads the API at dashboard.api_url when set and
// the local database otherwise. With follow, it redraws on every server event until
// ctx is done; follow needs api_url.
func RunBoard(ctx context.Context, follow bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg, os.Stderr)

	var remote dashboard.Remote
	var httpRemote *dashboard.HTTPRemote
	if cfg.Dashboard.APIURL != "" {
		httpRemote = dashboard.NewHTTPRemote(cfg.Dashboard.APIURL, cfg.Auth.Token, nil)
		remote = httpRemote
	} else {
		if follow {
			return errors.New("board: follow requires dashboard.api_url")
		}
		db, err := store.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		defer db.Close()
		svc, err := newService(cfg, db)
		if err != nil {
			return err
		}
		remote = dashboard.ServiceRemote{Svc: svc}
	}

	board := dashboard.NewBoard(remote,
		dashboard.WithRangeDays(cfg.Dashboard.RangeDays),
		dashboard.WithLogger(logger))

	draw := func() error {
		if err := board.Refresh(ctx); err != nil && !errors.Is(err, dashboard.ErrSuperseded) {
			logger.Warn("board refresh failed", slog.String("error", err.Error()))
		}
		return dashboard.Render(app.out, board.Snapshot())
	}
	if err := draw(); err != nil {
		return err
	}
	if !follow {
		return nil
	}

	err = httpRemote.Subscribe(ctx, func(kind string) {
		logger.Debug("board event", slog.String("kind", kind))
		if _, err := fmt.Fprintln(app.out); err != nil {
			return
		}
		if err := draw(); err != nil {
			logger.Warn("board render failed", slog.String("error", err.Error()))
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Seed loads habits and repetitions from a JSON or YAML file into the database.
func Seed(ctx context.Context, path string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	newLogger(cfg, os.Stderr)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	habits, err := parser.ParseHabits(data)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	reps, err := parser.ParseRepetitions(data)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	db, err := store.Open(ctx, cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	svc, err := newService(cfg, db)
	if err != nil {
		return err
	}

	res, err := svc.Seed(ctx, habits, reps)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.out, "Seeded %d habits, %d days\n", res.Habits, res.Days)
	return err
}
