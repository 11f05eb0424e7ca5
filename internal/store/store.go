package store

import (
	"context"

	"github.com/starford/loopgrid/internal/models"
)

// HabitStore defines the repository operations used by the service layer.
// Consumers should depend on this interface rather than the concrete *DB type.
type HabitStore interface {
	ListHabits(ctx context.Context) ([]models.Habit, error)
	GetHabit(ctx context.Context, id int64) (*models.Habit, error)
	CreateHabit(ctx context.Context, h models.Habit) (*models.Habit, error)
	UpdateHabit(ctx context.Context, h models.Habit) error
	DeleteHabit(ctx context.Context, id int64) error
	ReorderHabits(ctx context.Context, ids []int64) error

	ListRepetitions(ctx context.Context, from, to int64) ([]models.Repetition, error)
	ReplaceDay(ctx context.Context, habitID, dayStart, value int64, notes string) error
	ClearDay(ctx context.Context, habitID, dayStart int64) (int64, error)

	ExportTo(ctx context.Context, path string) error
	ImportFrom(ctx context.Context, path string) (ImportResult, error)
	Close() error
}

// ImportResult reports what an import replaced the data with.
type ImportResult struct {
	Habits      int `json:"habits"`
	Repetitions int `json:"repetitions"`
	Dropped     int `json:"dropped"`
}

// Verify *DB satisfies HabitStore at compile time.
var _ HabitStore = (*DB)(nil)
