package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/starford/loopgrid/internal/apperr"
	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/parser"
	"github.com/starford/loopgrid/internal/retention"
)

// ExportTo writes a consistent copy of the database to path, which must not exist.
func (db *DB) ExportTo(ctx context.Context, path string) error {
	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := db.conn.ExecContext(ctx, `VACUUM INTO `+quoted); err != nil {
		return fmt.Errorf("store: export: %w", err)
	}
	return nil
}

// ImportFrom replaces all habits and repetitions with the content of the SQLite file
// at path. Column names are matched loosely, so both exports of this service and Loop
// Habit Tracker backups are accepted. Repetitions of unknown habits are dropped.
func (db *DB) ImportFrom(ctx context.Context, path string) (ImportResult, error) {
	var res ImportResult

	if _, err := os.Stat(path); err != nil {
		return res, fmt.Errorf("store: import: %w", err)
	}
	src, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return res, fmt.Errorf("store: open import: %w", err)
	}
	defer src.Close()

	habitRecs, err := readRecords(ctx, src, `SELECT * FROM Habits`)
	if err != nil {
		return res, fmt.Errorf("store: read import habits: %w: %w", apperr.ErrInvalidInput, err)
	}
	repRecs, err := readRecords(ctx, src, `SELECT * FROM Repetitions`)
	if err != nil {
		return res, fmt.Errorf("store: read import repetitions: %w: %w", apperr.ErrInvalidInput, err)
	}

	habits := make([]models.Habit, 0, len(habitRecs))
	known := make(map[int64]models.Habit, len(habitRecs))
	for i, rec := range habitRecs {
		h := parser.HabitFromRecord(rec, i)
		if _, dup := known[h.ID]; dup {
			continue
		}
		known[h.ID] = h
		habits = append(habits, h)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `DELETE FROM Repetitions`); err != nil {
		return res, fmt.Errorf("store: wipe repetitions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM Habits`); err != nil {
		return res, fmt.Errorf("store: wipe habits: %w", err)
	}

	habitStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO Habits (id, archived, color, description, freq_den, freq_num, name, position,
			type, target_type, target_value, unit, question, uuid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return res, fmt.Errorf("store: prepare habit insert: %w", err)
	}
	defer habitStmt.Close()
	for _, h := range habits {
		if _, err := habitStmt.ExecContext(ctx, h.ID, boolInt(h.Archived), h.Color, h.Description,
			max(h.FreqDen, 1), max(h.FreqNum, 1), h.Name, h.Position, int(h.Type), h.TargetType,
			h.TargetValue, h.Unit, h.Question, h.UUID); err != nil {
			return res, fmt.Errorf("store: insert habit %d: %w", h.ID, err)
		}
		res.Habits++
	}

	type repKey struct{ habit, ts int64 }
	folded := make(map[repKey]models.Repetition, len(repRecs))
	var order []repKey
	for _, rec := range repRecs {
		r, ok := parser.RepetitionFromRecord(rec)
		if !ok {
			res.Dropped++
			continue
		}
		h, ok := known[r.HabitID]
		if !ok {
			res.Dropped++
			continue
		}
		r.Timestamp = retention.NormalizeTimestamp(r.Timestamp)
		k := repKey{r.HabitID, r.Timestamp}
		prev, seen := folded[k]
		if !seen {
			folded[k] = r
			order = append(order, k)
			continue
		}
		prev.Value = retention.Fold(h.Type, prev.Value, r.Value)
		if r.Notes != "" {
			prev.Notes = r.Notes
		}
		folded[k] = prev
	}

	repStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO Repetitions (habit, timestamp, value, notes) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return res, fmt.Errorf("store: prepare repetition insert: %w", err)
	}
	defer repStmt.Close()
	for _, k := range order {
		r := folded[k]
		if _, err := repStmt.ExecContext(ctx, r.HabitID, r.Timestamp, r.Value, r.Notes); err != nil {
			return res, fmt.Errorf("store: insert repetition: %w", err)
		}
		res.Repetitions++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("store: commit import: %w", err)
	}
	return res, nil
}

// readRecords runs query and returns each row keyed by column name.
func readRecords(ctx context.Context, conn *sql.DB, query string) ([]parser.Record, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []parser.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(parser.Record, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
