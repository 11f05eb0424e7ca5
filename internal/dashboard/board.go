// Package dashboard is a client for the habit grid: it keeps a snapshot of habits
// and their retention map, applies edits optimistically and reconciles them
// against the remote store.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/starford/loopgrid/internal/apperr"
	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/retention"
)

// ErrSuperseded is returned by Refresh when a newer refresh or a local edit
// started while it was in flight; its result was discarded.
var ErrSuperseded = errors.New("dashboard: refresh superseded")

// Snapshot is what a grid renders.
type Snapshot struct {
	Habits    []models.Habit
	Retention retention.Map
	From, To  int64
	Err       error
}

// Days returns the day keys of the snapshot window.
func (s Snapshot) Days() []string {
	return retention.Days(s.From, s.To)
}

// Board owns a grid snapshot.
//
// Every refresh takes a sequence number when it starts. A finished refresh is
// applied only if no refresh started after it and no local edit happened since;
// otherwise its response is dropped. Local edits bump the sequence too, because a
// refresh that was already in flight read the store before the edit's write.
type Board struct {
	remote    Remote
	rangeDays int
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	snap    Snapshot
	started uint64
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithRangeDays sets how many days before today the window reaches.
func WithRangeDays(n int) BoardOption {
	return func(b *Board) { b.rangeDays = n }
}

// WithBoardClock overrides the time source.
func WithBoardClock(now func() time.Time) BoardOption {
	return func(b *Board) { b.now = now }
}

// WithLogger sets the logger used for refresh failures after a failed write.
func WithLogger(l *slog.Logger) BoardOption {
	return func(b *Board) { b.logger = l }
}

// NewBoard creates an empty board. Call Refresh to load it.
func NewBoard(remote Remote, opts ...BoardOption) *Board {
	b := &Board{
		remote:    remote,
		rangeDays: DefaultRangeDays,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.snap.From, b.snap.To = Window(b.now(), b.rangeDays)
	b.snap.Retention = retention.Map{}
	return b
}

// Snapshot returns the current snapshot. The retention map must not be modified.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.snap
	s.Habits = append([]models.Habit(nil), b.snap.Habits...)
	return s
}

// Refresh reloads habits and repetitions and rebuilds the retention map. On
// failure the snapshot is emptied and keeps the error.
func (b *Board) Refresh(ctx context.Context) error {
	b.mu.Lock()
	b.started++
	seq := b.started
	from, to := Window(b.now(), b.rangeDays)
	b.mu.Unlock()

	habits, m, err := b.fetch(ctx, from, to)

	b.mu.Lock()
	defer b.mu.Unlock()
	if seq != b.started {
		return ErrSuperseded
	}
	b.snap = Snapshot{From: from, To: to, Habits: habits, Retention: m, Err: err}
	if err != nil {
		b.snap.Habits, b.snap.Retention = nil, retention.Map{}
	}
	return err
}

func (b *Board) fetch(ctx context.Context, from, to int64) ([]models.Habit, retention.Map, error) {
	habits, err := b.remote.Habits(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("habits: %w", err)
	}
	sort.SliceStable(habits, func(i, j int) bool { return habits[i].Position < habits[j].Position })

	reps, err := b.remote.Repetitions(ctx, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("repetitions: %w", err)
	}
	return habits, retention.Aggregate(habits, reps), nil
}

// Edit sets the habit's day to raw, or clears it when raw is nil. The snapshot is
// patched before the remote write; afterwards a refresh reconciles it. On write
// failure the refresh still runs and the write error is returned.
func (b *Board) Edit(ctx context.Context, habitID, dayTs int64, raw *int64) error {
	day := retention.DayStart(retention.NormalizeTimestamp(dayTs))

	b.mu.Lock()
	h, ok := b.habit(habitID)
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("dashboard: habit %d: %w", habitID, apperr.ErrNotFound)
	}
	b.snap.Retention = retention.ApplyLocalEdit(b.snap.Retention, h, day, raw)
	b.started++
	b.mu.Unlock()

	var err error
	if raw == nil {
		err = b.remote.ClearDay(ctx, habitID, day)
	} else {
		err = b.remote.SetDay(ctx, habitID, day, *raw)
	}

	refreshErr := b.Refresh(ctx)
	if errors.Is(refreshErr, ErrSuperseded) {
		refreshErr = nil
	}
	if err != nil {
		if refreshErr != nil {
			b.logger.Warn("refresh after failed write", slog.String("error", refreshErr.Error()))
		}
		return fmt.Errorf("dashboard: write: %w", err)
	}
	return refreshErr
}

// Toggle flips a boolean habit's day between done and cleared.
func (b *Board) Toggle(ctx context.Context, habitID, dayTs int64) error {
	b.mu.Lock()
	h, ok := b.habit(habitID)
	rec := b.snap.Retention.Lookup(habitID, retention.DayKey(retention.NormalizeTimestamp(dayTs)))
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("dashboard: habit %d: %w", habitID, apperr.ErrNotFound)
	}
	if h.Type.Normalize() != models.HabitBoolean {
		return fmt.Errorf("dashboard: habit %d is numeric: %w", habitID, apperr.ErrInvalidInput)
	}

	if rec.Status == retention.StatusDone {
		return b.Edit(ctx, habitID, dayTs, nil)
	}
	raw := retention.DoneRaw
	return b.Edit(ctx, habitID, dayTs, &raw)
}

// SetAmount records a typed amount for a numeric habit. Empty input or zero clears
// the day. Input that is not a finite non-negative number is rejected without
// touching the snapshot or the remote.
func (b *Board) SetAmount(ctx context.Context, habitID, dayTs int64, input string) error {
	b.mu.Lock()
	h, ok := b.habit(habitID)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("dashboard: habit %d: %w", habitID, apperr.ErrNotFound)
	}
	if h.Type.Normalize() != models.HabitNumeric {
		return fmt.Errorf("dashboard: habit %d is boolean: %w", habitID, apperr.ErrInvalidInput)
	}

	trimmed := strings.ReplaceAll(strings.TrimSpace(input), ",", ".")
	if trimmed == "" {
		return b.Edit(ctx, habitID, dayTs, nil)
	}
	amount, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return fmt.Errorf("dashboard: amount %q: %w", input, apperr.ErrInvalidInput)
	}
	if amount == 0 {
		return b.Edit(ctx, habitID, dayTs, nil)
	}
	raw, err := retention.EncodeAmount(amount)
	if err != nil {
		return fmt.Errorf("dashboard: amount %q: %w", input, apperr.ErrInvalidInput)
	}
	return b.Edit(ctx, habitID, dayTs, &raw)
}

// habit looks up a habit in the snapshot. Callers hold b.mu.
func (b *Board) habit(id int64) (models.Habit, bool) {
	for _, h := range b.snap.Habits {
		if h.ID == id {
			return h, true
		}
	}
	return models.Habit{}, false
}
