package habitservice

import (
	"context"

	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/retention"
)

const (
	dayMs            = int64(24 * 60 * 60 * 1000)
	defaultStatsDays = 30
)

// Stats summarizes one habit over a range of days.
type Stats struct {
	HabitID       int64   `json:"habitId"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	Days          int     `json:"days"`
	Done          int     `json:"done"`
	Partial       int     `json:"partial"`
	Missed        int     `json:"missed"`
	Total         float64 `json:"total"`
	CurrentStreak int     `json:"currentStreak"`
	BestStreak    int     `json:"bestStreak"`
}

// Stats computes per-habit statistics for [from, to). A zero to means the end of
// today; a zero from means the 30 days before to.
func (s *Service) Stats(ctx context.Context, habitID, from, to int64) (*Stats, error) {
	h, err := s.store.GetHabit(ctx, habitID)
	if err != nil {
		return nil, err
	}

	nowMs := s.now().UnixMilli()
	if to <= 0 {
		to = retention.DayStart(nowMs) + dayMs
	} else {
		to = retention.NormalizeTimestamp(to)
	}
	if from <= 0 {
		from = to - defaultStatsDays*dayMs
	} else {
		from = retention.DayStart(retention.NormalizeTimestamp(from))
	}

	m, err := s.Retention(ctx, from, to)
	if err != nil {
		return nil, err
	}
	days := retention.Days(from, to)
	st := &Stats{HabitID: habitID, Days: len(days)}
	if len(days) > 0 {
		st.From, st.To = days[0], days[len(days)-1]
	}

	var raw int64
	for _, d := range days {
		rec := m.Lookup(habitID, d)
		switch rec.Status {
		case retention.StatusDone:
			st.Done++
		case retention.StatusPartial:
			st.Partial++
		default:
			st.Missed++
		}
		raw += rec.RawValue
	}
	if h.Type.Normalize() == models.HabitNumeric {
		st.Total = retention.DecodeAmount(raw)
	} else {
		st.Total = float64(st.Done)
	}

	streak := retention.Streaks(m[habitID], retention.DayKey(nowMs))
	st.CurrentStreak, st.BestStreak = streak.Current, streak.Best
	return st, nil
}
