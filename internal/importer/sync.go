// Package importer watches an inbox directory and imports SQLite databases
// dropped into it.
package importer

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/starford/loopgrid/internal/checksum"
	"github.com/starford/loopgrid/internal/storage"
	"github.com/starford/loopgrid/internal/store"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Outcomes passed to EventCallback.
const (
	OutcomeImported = "imported"
	OutcomeFailed   = "failed"
)

// Importer replaces the habit data with the content of a database file.
// *habitservice.Service implements it.
type Importer interface {
	Import(ctx context.Context, path string) (store.ImportResult, error)
}

// EventCallback is called after an inbox file has been handled.
type EventCallback func(outcome string, path string)

// Sync imports every database already sitting in the inbox, oldest first.
// Files that fail to import are moved aside and do not stop the pass.
func Sync(ctx context.Context, svc Importer, inbox storage.Provider, logger *slog.Logger, cb EventCallback) error {
	files, err := inbox.List("")
	if err != nil {
		return err
	}
	for _, f := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = importFile(ctx, svc, inbox, f.Path, logger, cb)
	}
	return nil
}

// importFile imports one inbox file and moves it to processed/<checksum><ext> or,
// on failure, to failed/<name>.
func importFile(ctx context.Context, svc Importer, inbox storage.Provider, rel string, logger *slog.Logger, cb EventCallback) error {
	abs, err := inbox.Abs(rel)
	if err != nil {
		return err
	}
	data, err := inbox.Read(rel)
	if err != nil {
		logger.Warn("inbox: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return err
	}
	sum := checksum.Sum(data)

	res, err := svc.Import(ctx, abs)
	if err != nil {
		logger.Warn("inbox: import failed", slog.String("path", rel), slog.String("error", err.Error()))
		if mvErr := inbox.Move(rel, filepath.Join(failedDir, filepath.Base(rel))); mvErr != nil {
			logger.Error("inbox: move to failed", slog.String("path", rel), slog.String("error", mvErr.Error()))
		}
		if cb != nil {
			cb(OutcomeFailed, rel)
		}
		return err
	}

	target := filepath.Join(processedDir, sum+filepath.Ext(rel))
	if err := inbox.Move(rel, target); err != nil {
		logger.Error("inbox: move to processed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	logger.Info("inbox: imported",
		slog.String("path", rel),
		slog.String("checksum", sum),
		slog.Int("habits", res.Habits),
		slog.Int("repetitions", res.Repetitions))
	if cb != nil {
		cb(OutcomeImported, rel)
	}
	return nil
}
