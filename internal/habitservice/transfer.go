package habitservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/loopgrid/internal/checksum"
	"github.com/starford/loopgrid/internal/sse"
	"github.com/starford/loopgrid/internal/storage"
	"github.com/starford/loopgrid/internal/store"
)

// uploadsDir holds spooled uploads inside the backup area, out of reach of pruning.
const uploadsDir = "uploads"

// ExportFile is a consistent snapshot of the database on disk.
// Close removes it.
type ExportFile struct {
	Path     string
	Name     string
	Checksum string
	Size     int64
	ModTime  time.Time
	dir      string
}

// Close removes the snapshot.
func (f *ExportFile) Close() error {
	return os.RemoveAll(f.dir)
}

// ExportName returns the download file name for a snapshot taken at t.
func ExportName(t time.Time) string {
	return "Loop_Export_" + t.UTC().Format("2006-01-02_15-04") + ".db"
}

// ExportFile snapshots the database into a temporary file.
func (s *Service) ExportFile(ctx context.Context) (*ExportFile, error) {
	dir, err := os.MkdirTemp("", "loopgrid-export-*")
	if err != nil {
		return nil, fmt.Errorf("habitservice: export dir: %w", err)
	}
	now := s.now()
	f := &ExportFile{Name: ExportName(now), dir: dir}
	f.Path = filepath.Join(dir, f.Name)

	if err := s.store.ExportTo(ctx, f.Path); err != nil {
		_ = f.Close()
		return nil, err
	}
	info, err := os.Stat(f.Path)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("habitservice: stat export: %w", err)
	}
	sum, err := checksum.File(f.Path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	f.Checksum, f.Size, f.ModTime = sum, info.Size(), now
	return f, nil
}

// Export writes a database snapshot to w.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	f, err := s.ExportFile(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("habitservice: open export: %w", err)
	}
	defer src.Close()
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("habitservice: copy export: %w", err)
	}
	return nil
}

// Import replaces all data with the content of the SQLite file at path. The current
// database is backed up first when a backup area is configured.
func (s *Service) Import(ctx context.Context, path string) (store.ImportResult, error) {
	if err := s.backup(ctx); err != nil {
		return store.ImportResult{}, err
	}
	res, err := s.store.ImportFrom(ctx, path)
	if err != nil {
		return res, err
	}
	slog.Info("database imported",
		slog.String("source", filepath.Base(path)),
		slog.Int("habits", res.Habits),
		slog.Int("repetitions", res.Repetitions),
		slog.Int("dropped", res.Dropped),
	)
	s.notify(sse.KindDataImported, 0, "")
	return res, nil
}

// ImportReader spools r into the backup area (a temporary area when none is
// configured) and imports it. The spooled upload is removed afterwards.
func (s *Service) ImportReader(ctx context.Context, r io.Reader) (store.ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return store.ImportResult{}, fmt.Errorf("habitservice: spool import: %w", err)
	}

	spool := s.backups
	if spool == nil {
		dir, err := os.MkdirTemp("", "loopgrid-import-*")
		if err != nil {
			return store.ImportResult{}, fmt.Errorf("habitservice: spool import: %w", err)
		}
		defer os.RemoveAll(dir)
		if spool, err = storage.NewFS(dir); err != nil {
			return store.ImportResult{}, err
		}
	}

	name := filepath.Join(uploadsDir, "upload-"+s.now().UTC().Format("20060102-150405.000000000")+".db")
	if err := spool.Write(name, data); err != nil {
		return store.ImportResult{}, fmt.Errorf("habitservice: spool import: %w", err)
	}
	defer func() {
		if err := spool.Delete(name); err != nil {
			slog.Warn("remove spooled import failed", slog.String("path", name), slog.String("error", err.Error()))
		}
	}()

	abs, err := spool.Abs(name)
	if err != nil {
		return store.ImportResult{}, err
	}
	return s.Import(ctx, abs)
}

// backup snapshots the current database into the backup area and prunes old ones.
func (s *Service) backup(ctx context.Context) error {
	if s.backups == nil {
		return nil
	}
	name := "backup-" + s.now().UTC().Format("20060102-150405.000000000") + ".db"
	abs, err := s.backups.Abs(name)
	if err != nil {
		return err
	}
	if err := s.store.ExportTo(ctx, abs); err != nil {
		return fmt.Errorf("habitservice: backup: %w", err)
	}

	if s.keep <= 0 {
		return nil
	}
	files, err := s.backups.List("")
	if err != nil {
		return err
	}
	for i := 0; i < len(files)-s.keep; i++ {
		if err := s.backups.Delete(files[i].Path); err != nil {
			slog.Warn("prune backup failed", slog.String("path", files[i].Path), slog.String("error", err.Error()))
		}
	}
	return nil
}
