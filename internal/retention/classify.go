package retention

import (
	"errors"
	"math"

	"github.com/starford/loopgrid/internal/models"
)

// Status is the classification of one habit on one day.
type Status string

const (
	StatusDone    Status = "done"
	StatusPartial Status = "partial"
	StatusMissed  Status = "missed"
)

// DoneRaw is the raw value that marks a boolean habit as done.
const DoneRaw int64 = 2

// MaxAmount bounds habit targets so their raw threshold fits in an int64.
const MaxAmount = float64(math.MaxInt64 / 1000)

var (
	// ErrNonFiniteAmount is returned when an amount is NaN or infinite.
	ErrNonFiniteAmount = errors.New("retention: amount is not a finite number")
	// ErrAmountOutOfRange is returned when an amount's raw value does not fit in an int64.
	ErrAmountOutOfRange = errors.New("retention: amount out of range")
)

// Classify decides the status of a day from the habit's type, its target and the
// aggregated raw value.
func Classify(t models.HabitType, target float64, raw int64) Status {
	if t.Normalize() == models.HabitBoolean {
		if raw >= DoneRaw {
			return StatusDone
		}
		return StatusMissed
	}

	if raw <= 0 {
		return StatusMissed
	}
	if target > 0 && raw < SanitizeRaw(target*1000) {
		return StatusPartial
	}
	return StatusDone
}

// EncodeAmount converts a user amount to its fixed-point raw value.
func EncodeAmount(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrNonFiniteAmount
	}
	raw := math.Round(amount * 1000)
	if raw >= math.MaxInt64 || raw < math.MinInt64 {
		return 0, ErrAmountOutOfRange
	}
	return int64(raw), nil
}

// DecodeAmount converts a fixed-point raw value back to an amount.
func DecodeAmount(raw int64) float64 {
	return float64(raw) / 1000
}

// Fold combines two raw values logged for the same habit and day: boolean habits
// keep the larger, numeric habits add them.
func Fold(t models.HabitType, prev, v int64) int64 {
	if t.Normalize() == models.HabitBoolean {
		return max(prev, v)
	}
	return addRaw(prev, v)
}

// addRaw adds two raw values, saturating at the int64 limits.
func addRaw(a, b int64) int64 {
	sum := a + b
	switch {
	case a > 0 && b > 0 && sum < 0:
		return math.MaxInt64
	case a < 0 && b < 0 && sum >= 0:
		return math.MinInt64
	}
	return sum
}

// SanitizeRaw coerces a decoded event value to a raw value; non-finite input becomes 0.
func SanitizeRaw(v float64) int64 {
	switch {
	case math.IsNaN(v), math.IsInf(v, 0):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(math.Round(v))
}
