// Package models defines the domain types for Loopgrid.
package models

import "time"

// HabitType selects how a habit's repetitions are aggregated and classified.
type HabitType int

const (
	// HabitBoolean is a done/not-done habit.
	HabitBoolean HabitType = 0
	// HabitNumeric is a habit that tracks a cumulative amount.
	HabitNumeric HabitType = 1
)

// Normalize maps unknown values to HabitBoolean.
func (t HabitType) Normalize() HabitType {
	if t == HabitNumeric {
		return HabitNumeric
	}
	return HabitBoolean
}

func (t HabitType) String() string {
	if t.Normalize() == HabitNumeric {
		return "numeric"
	}
	return "boolean"
}

// Habit is a tracked recurring activity.
type Habit struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Question    string    `json:"question"`
	Color       int64     `json:"color"`
	Archived    bool      `json:"archived"`
	Position    int       `json:"position"`
	Type        HabitType `json:"type"`
	TargetType  int       `json:"targetType"`
	TargetValue float64   `json:"targetValue"`
	Unit        string    `json:"unit"`
	FreqNum     int       `json:"freqNum"`
	FreqDen     int       `json:"freqDen"`
	UUID        string    `json:"uuid"`
}

// Repetition is one logged completion of a habit.
// Value is fixed-point: amounts are stored as round(amount*1000), boolean done as 2.
type Repetition struct {
	HabitID   int64  `json:"habitId"`
	Timestamp int64  `json:"timestamp"`
	Value     int64  `json:"value"`
	Notes     string `json:"notes,omitempty"`
}

// DBFile describes a SQLite file sitting in an import inbox or backup area.
type DBFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
