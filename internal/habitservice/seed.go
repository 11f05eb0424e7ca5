package habitservice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/retention"
)

// SeedResult counts what Seed added.
type SeedResult struct {
	Habits int `json:"habits"`
	Days   int `json:"days"`
}

// Seed adds habits and their repetitions, typically decoded by the parser from a
// fixture file. Repetition habit ids refer to the ids in habits and are remapped to
// the created habits. Several repetitions on one day fold into one value the same
// way retention does.
func (s *Service) Seed(ctx context.Context, habits []models.Habit, reps []models.Repetition) (SeedResult, error) {
	var res SeedResult
	ids := make(map[int64]int64, len(habits))

	for _, h := range habits {
		in := HabitInput{
			Name:        h.Name,
			Description: h.Description,
			Question:    h.Question,
			Color:       h.Color,
			Type:        h.Type.Normalize(),
			TargetValue: h.TargetValue,
			Unit:        h.Unit,
			FreqNum:     h.FreqNum,
			FreqDen:     h.FreqDen,
		}
		created, err := s.CreateHabit(ctx, in)
		if err != nil {
			return res, fmt.Errorf("habitservice: seed habit %q: %w", h.Name, err)
		}
		if h.Archived {
			archived := true
			if _, err := s.UpdateHabit(ctx, created.ID, HabitPatch{Archived: &archived}); err != nil {
				return res, fmt.Errorf("habitservice: seed habit %q: %w", h.Name, err)
			}
		}
		ids[h.ID] = created.ID
		res.Habits++
	}

	m := retention.Aggregate(habits, reps)
	for _, h := range habits {
		days := make([]string, 0, len(m[h.ID]))
		for day := range m[h.ID] {
			days = append(days, day)
		}
		sort.Strings(days)

		for _, day := range days {
			rec := m[h.ID][day]
			if rec.RawValue <= 0 {
				continue
			}
			ts, err := retention.ParseDayKey(day)
			if err != nil {
				return res, err
			}
			if _, err := s.SetDay(ctx, ids[h.ID], ts, rec.RawValue, ""); err != nil {
				return res, fmt.Errorf("habitservice: seed %s for %q: %w", day, h.Name, err)
			}
			res.Days++
		}
	}

	slog.Info("seeded habits", slog.Int("habits", res.Habits), slog.Int("days", res.Days))
	return res, nil
}
