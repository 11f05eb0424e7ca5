package store

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/loopgrid/internal/models"
)

const dayMs = int64(24 * time.Hour / time.Millisecond)

// ListRepetitions returns repetitions with from <= timestamp < to, ordered by time.
// A non-positive to leaves the range open-ended.
func (db *DB) ListRepetitions(ctx context.Context, from, to int64) ([]models.Repetition, error) {
	q := `SELECT habit, timestamp, value, notes FROM Repetitions WHERE timestamp >= ?`
	args := []any{from}
	if to > 0 {
		q += ` AND timestamp < ?`
		args = append(args, to)
	}
	q += ` ORDER BY timestamp, habit`

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list repetitions: %w", err)
	}
	defer rows.Close()

	out := []models.Repetition{}
	for rows.Next() {
		var r models.Repetition
		if err := rows.Scan(&r.HabitID, &r.Timestamp, &r.Value, &r.Notes); err != nil {
			return nil, fmt.Errorf("store: scan repetition: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceDay makes value the only repetition of the habit on the UTC day starting at
// dayStart.
func (db *DB) ReplaceDay(ctx context.Context, habitID, dayStart, value int64, notes string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM Repetitions WHERE habit = ? AND timestamp >= ? AND timestamp < ?`,
		habitID, dayStart, dayStart+dayMs); err != nil {
		return fmt.Errorf("store: clear day: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO Repetitions (habit, timestamp, value, notes) VALUES (?, ?, ?, ?)`,
		habitID, dayStart, value, notes); err != nil {
		return fmt.Errorf("store: insert repetition: %w", err)
	}
	return tx.Commit()
}

// ClearDay deletes every repetition of the habit on the UTC day starting at dayStart
// and returns how many were removed.
func (db *DB) ClearDay(ctx context.Context, habitID, dayStart int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM Repetitions WHERE habit = ? AND timestamp >= ? AND timestamp < ?`,
		habitID, dayStart, dayStart+dayMs)
	if err != nil {
		return 0, fmt.Errorf("store: clear day: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: rows affected: %w", err)
	}
	return n, nil
}
