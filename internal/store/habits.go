package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/starford/loopgrid/internal/apperr"
	"github.com/starford/loopgrid/internal/models"
)

const habitColumns = `id, archived, color, description, freq_den, freq_num, name, position,
	type, target_type, target_value, unit, question, uuid`

type scanner interface {
	Scan(dest ...any) error
}

func scanHabit(s scanner) (models.Habit, error) {
	var h models.Habit
	var archived int
	err := s.Scan(&h.ID, &archived, &h.Color, &h.Description, &h.FreqDen, &h.FreqNum, &h.Name,
		&h.Position, &h.Type, &h.TargetType, &h.TargetValue, &h.Unit, &h.Question, &h.UUID)
	h.Archived = archived != 0
	h.Type = h.Type.Normalize()
	return h, err
}

// ListHabits returns every habit ordered by position.
func (db *DB) ListHabits(ctx context.Context) ([]models.Habit, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+habitColumns+` FROM Habits ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list habits: %w", err)
	}
	defer rows.Close()

	out := []models.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan habit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetHabit returns one habit or apperr.ErrNotFound.
func (db *DB) GetHabit(ctx context.Context, id int64) (*models.Habit, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM Habits WHERE id = ?`, id)
	h, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: habit %d: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get habit: %w", err)
	}
	return &h, nil
}

// CreateHabit inserts h at the end of the ordering. The id and position of h are
// ignored; a UUID is generated when h has none.
func (db *DB) CreateHabit(ctx context.Context, h models.Habit) (*models.Habit, error) {
	if h.UUID == "" {
		h.UUID = uuid.NewString()
	}
	if h.FreqNum <= 0 {
		h.FreqNum = 1
	}
	if h.FreqDen <= 0 {
		h.FreqDen = 1
	}

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO Habits (archived, color, description, freq_den, freq_num, name, position,
			type, target_type, target_value, unit, question, uuid)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM Habits),
			?, ?, ?, ?, ?, ?)
	`, boolInt(h.Archived), h.Color, h.Description, h.FreqDen, h.FreqNum, h.Name,
		int(h.Type.Normalize()), h.TargetType, h.TargetValue, h.Unit, h.Question, h.UUID)
	if err != nil {
		return nil, fmt.Errorf("store: create habit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create habit id: %w", err)
	}
	return db.GetHabit(ctx, id)
}

// UpdateHabit overwrites the editable columns of h (everything but position).
func (db *DB) UpdateHabit(ctx context.Context, h models.Habit) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE Habits SET
			archived     = ?,
			color        = ?,
			description  = ?,
			freq_den     = ?,
			freq_num     = ?,
			name         = ?,
			type         = ?,
			target_type  = ?,
			target_value = ?,
			unit         = ?,
			question     = ?
		WHERE id = ?
	`, boolInt(h.Archived), h.Color, h.Description, h.FreqDen, h.FreqNum, h.Name,
		int(h.Type.Normalize()), h.TargetType, h.TargetValue, h.Unit, h.Question, h.ID)
	if err != nil {
		return fmt.Errorf("store: update habit: %w", err)
	}
	return mustAffect(res, h.ID)
}

// DeleteHabit removes a habit and, by cascade, its repetitions.
func (db *DB) DeleteHabit(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM Habits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete habit: %w", err)
	}
	return mustAffect(res, id)
}

// ReorderHabits assigns positions 0..n-1 following ids. Every habit must be listed
// exactly once.
func (db *DB) ReorderHabits(ctx context.Context, ids []int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM Habits`).Scan(&count); err != nil {
		return fmt.Errorf("store: count habits: %w", err)
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	if len(ids) != count || len(seen) != count {
		return fmt.Errorf("store: reorder needs all %d habits once, got %d: %w", count, len(ids), apperr.ErrInvalidInput)
	}

	stmt, err := tx.PrepareContext(ctx, `UPDATE Habits SET position = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("store: prepare reorder: %w", err)
	}
	defer stmt.Close()
	for pos, id := range ids {
		res, err := stmt.ExecContext(ctx, pos, id)
		if err != nil {
			return fmt.Errorf("store: reorder: %w", err)
		}
		if err := mustAffect(res, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func mustAffect(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: habit %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
