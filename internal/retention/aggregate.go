package retention

import "github.com/starford/loopgrid/internal/models"

// DayRecord is the aggregated state of one habit on one day.
type DayRecord struct {
	Status   Status `json:"status"`
	RawValue int64  `json:"rawValue"`
}

// Map is habit id -> day key -> record. It is sparse: a day without events has no
// entry and reads as missed.
type Map map[int64]map[string]DayRecord

// Lookup returns the record for a habit and day, or a missed record when absent.
func (m Map) Lookup(habitID int64, day string) DayRecord {
	if rec, ok := m[habitID][day]; ok {
		return rec
	}
	return DayRecord{Status: StatusMissed}
}

// Aggregate folds events into one raw value per (habit, day) and classifies each.
// Events for habits not in the list are dropped. Boolean habits keep the largest
// value seen on a day; numeric habits sum them.
func Aggregate(habits []models.Habit, events []models.Repetition) Map {
	byID := make(map[int64]models.Habit, len(habits))
	for _, h := range habits {
		byID[h.ID] = h
	}

	acc := make(map[int64]map[string]int64)
	for _, ev := range events {
		h, ok := byID[ev.HabitID]
		if !ok {
			continue
		}
		key := DayKey(NormalizeTimestamp(ev.Timestamp))

		days := acc[h.ID]
		if days == nil {
			days = make(map[string]int64)
			acc[h.ID] = days
		}
		days[key] = Fold(h.Type, days[key], ev.Value)
	}

	out := make(Map, len(acc))
	for id, days := range acc {
		h := byID[id]
		inner := make(map[string]DayRecord, len(days))
		for key, raw := range days {
			inner[key] = DayRecord{
				Status:   Classify(h.Type, h.TargetValue, raw),
				RawValue: raw,
			}
		}
		out[id] = inner
	}
	return out
}

// ApplyLocalEdit returns a copy of m with the habit's day at dayTs replaced by raw,
// or removed when raw is nil. raw is the new absolute value for the day, not a delta.
// m itself is not modified.
func ApplyLocalEdit(m Map, h models.Habit, dayTs int64, raw *int64) Map {
	key := DayKey(NormalizeTimestamp(dayTs))

	next := make(Map, len(m)+1)
	for id, days := range m {
		next[id] = days
	}

	inner := make(map[string]DayRecord, len(m[h.ID])+1)
	for k, rec := range m[h.ID] {
		inner[k] = rec
	}
	if raw == nil {
		delete(inner, key)
	} else {
		inner[key] = DayRecord{
			Status:   Classify(h.Type, h.TargetValue, *raw),
			RawValue: *raw,
		}
	}
	next[h.ID] = inner
	return next
}
