// Package habitservice coordinates the habit store, retention aggregation and
// change notifications.
package habitservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/loopgrid/internal/apperr"
	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/retention"
	"github.com/starford/loopgrid/internal/sse"
	"github.com/starford/loopgrid/internal/storage"
	"github.com/starford/loopgrid/internal/store"
)

// Notifier receives a message for every mutation. *sse.Broker implements it.
type Notifier interface {
	PublishChange(kind string, habitID int64, day string)
}

// Service coordinates store and retention operations.
type Service struct {
	store    store.HabitStore
	notifier Notifier
	backups  storage.Provider
	keep     int
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier publishes every mutation to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithBackups snapshots the database into p before every import and keeps only
// the newest keep snapshots (keep <= 0 keeps all).
func WithBackups(p storage.Provider, keep int) Option {
	return func(s *Service) {
		s.backups = p
		s.keep = keep
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new habit service.
func NewService(st store.HabitStore, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListHabits returns all habits ordered by position.
func (s *Service) ListHabits(ctx context.Context) ([]models.Habit, error) {
	habits, err := s.store.ListHabits(ctx)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(habits), nil
}

// GetHabit returns a single habit.
func (s *Service) GetHabit(ctx context.Context, id int64) (*models.Habit, error) {
	return s.store.GetHabit(ctx, id)
}

// CreateHabit validates and stores a new habit.
func (s *Service) CreateHabit(ctx context.Context, in HabitInput) (*models.Habit, error) {
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	h, err := s.store.CreateHabit(ctx, in.habit())
	if err != nil {
		return nil, err
	}
	s.notify(sse.KindHabitCreated, h.ID, "")
	return h, nil
}

// UpdateHabit applies a partial update.
func (s *Service) UpdateHabit(ctx context.Context, id int64, p HabitPatch) (*models.Habit, error) {
	if err := p.Validate(); err != nil {
		return nil, invalid(err)
	}
	h, err := s.store.GetHabit(ctx, id)
	if err != nil {
		return nil, err
	}
	p.apply(h)
	if err := s.store.UpdateHabit(ctx, *h); err != nil {
		return nil, err
	}
	s.notify(sse.KindHabitUpdated, id, "")
	return h, nil
}

// DeleteHabit removes a habit and its repetitions.
func (s *Service) DeleteHabit(ctx context.Context, id int64) error {
	if err := s.store.DeleteHabit(ctx, id); err != nil {
		return err
	}
	s.notify(sse.KindHabitDeleted, id, "")
	return nil
}

// ReorderHabits assigns positions following ids, which must name every habit once.
func (s *Service) ReorderHabits(ctx context.Context, ids []int64) error {
	if err := s.store.ReorderHabits(ctx, ids); err != nil {
		return err
	}
	s.notify(sse.KindHabitsReordered, 0, "")
	return nil
}

// ListRepetitions returns repetitions in [from, to). Either bound may be given in
// seconds or milliseconds; to <= 0 means unbounded.
func (s *Service) ListRepetitions(ctx context.Context, from, to int64) ([]models.Repetition, error) {
	reps, err := s.store.ListRepetitions(ctx, retention.NormalizeTimestamp(from), normalizeUpper(to))
	if err != nil {
		return nil, err
	}
	return nonNilSlice(reps), nil
}

// SetDay replaces the value recorded for a habit on the UTC day containing ts.
func (s *Service) SetDay(ctx context.Context, habitID, ts, raw int64, notes string) (models.Repetition, error) {
	if raw < 0 {
		return models.Repetition{}, fmt.Errorf("%w: value must not be negative", apperr.ErrInvalidInput)
	}
	if _, err := s.store.GetHabit(ctx, habitID); err != nil {
		return models.Repetition{}, err
	}
	day := retention.DayStart(retention.NormalizeTimestamp(ts))
	if err := s.store.ReplaceDay(ctx, habitID, day, raw, notes); err != nil {
		return models.Repetition{}, err
	}
	s.notify(sse.KindRepetitionSet, habitID, retention.DayKey(day))
	return models.Repetition{HabitID: habitID, Timestamp: day, Value: raw, Notes: notes}, nil
}

// ClearDay removes whatever a habit has recorded on the UTC day containing ts.
// It returns the number of repetitions removed.
func (s *Service) ClearDay(ctx context.Context, habitID, ts int64) (int64, error) {
	if _, err := s.store.GetHabit(ctx, habitID); err != nil {
		return 0, err
	}
	day := retention.DayStart(retention.NormalizeTimestamp(ts))
	n, err := s.store.ClearDay(ctx, habitID, day)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notify(sse.KindRepetitionCleared, habitID, retention.DayKey(day))
	}
	return n, nil
}

// Retention aggregates the repetitions in [from, to) into a retention map.
func (s *Service) Retention(ctx context.Context, from, to int64) (retention.Map, error) {
	habits, err := s.store.ListHabits(ctx)
	if err != nil {
		return nil, err
	}
	reps, err := s.ListRepetitions(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return retention.Aggregate(habits, reps), nil
}

func (s *Service) notify(kind string, habitID int64, day string) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishChange(kind, habitID, day)
	slog.Debug("habit data changed", slog.String("kind", kind), slog.Int64("habit", habitID))
}

func normalizeUpper(to int64) int64 {
	if to <= 0 {
		return 0
	}
	return retention.NormalizeTimestamp(to)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
