package api

import (
	"github.com/starford/loopgrid/internal/habitservice"
	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/retention"
)

// Habit is the habit response type (aliased from the domain layer).
type Habit = models.Habit

// Repetition is the repetition response type (aliased from the domain layer).
type Repetition = models.Repetition

// CreateHabitRequest is the request body for creating a habit.
type CreateHabitRequest = habitservice.HabitInput

// UpdateHabitRequest is the request body for a partial habit update.
type UpdateHabitRequest = habitservice.HabitPatch

// HabitStats is the per-habit statistics response.
type HabitStats = habitservice.Stats

// RetentionMap is habit id -> day key -> {status, rawValue}.
type RetentionMap = retention.Map

// ReorderRequest is the request body for PUT /api/habits/order.
type ReorderRequest struct {
	IDs []int64 `json:"ids" example:"3,1,2" validate:"required"`
}

// SetDayRequest is the request body for POST /api/repetitions. Pointers tell a
// missing field apart from a zero one.
type SetDayRequest struct {
	HabitID   *int64   `json:"habitId" example:"1" validate:"required"`
	Timestamp *float64 `json:"timestamp" example:"1717200000000" validate:"required"`
	Value     *float64 `json:"value" example:"2" validate:"required"`
	Notes     string   `json:"notes,omitempty"`
}
