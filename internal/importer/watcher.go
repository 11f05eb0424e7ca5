package importer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/loopgrid/internal/storage"
)

// settleDelay is how long a file must stay quiet before it is imported, so that a
// copy still in progress is not picked up half written.
const settleDelay = 300 * time.Millisecond

// Watch starts an fsnotify watcher on the inbox root and imports database files
// created or written there until ctx is cancelled. Subdirectories (processed/,
// failed/) are not watched.
func Watch(ctx context.Context, svc Importer, inbox storage.Provider, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := inbox.Root()
	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("inbox: watching", slog.String("root", root))

	pending := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			for rel := range pending {
				delete(pending, rel)
				abs, absErr := inbox.Abs(rel)
				if absErr != nil {
					continue
				}
				if _, statErr := os.Stat(abs); statErr != nil {
					continue
				}
				_ = importFile(ctx, svc, inbox, rel, logger, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Dir(ev.Name) != root || !storage.IsDBFile(ev.Name) {
				continue
			}
			if info, statErr := os.Stat(ev.Name); statErr != nil || info.IsDir() {
				continue
			}
			pending[filepath.Base(ev.Name)] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
