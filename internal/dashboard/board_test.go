package dashboard

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/starford/loopgrid/internal/apperr"
	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/retention"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

// Wednesday.
var wed = time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC)

func dayOf(d int) int64 {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC).UnixMilli()
}

type fakeRemote struct {
	mu        sync.Mutex
	habits    []models.Habit
	reps      []models.Repetition
	habitsErr error
	writeErr  error
	writes    int

	gate    chan struct{} // next Habits call blocks on it
	entered chan struct{}
	onWrite func()
}

func (f *fakeRemote) Habits(context.Context) ([]models.Habit, error) {
	f.mu.Lock()
	habits := append([]models.Habit(nil), f.habits...)
	err := f.habitsErr
	gate, entered := f.gate, f.entered
	f.gate = nil
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	return habits, err
}

func (f *fakeRemote) Repetitions(_ context.Context, from, to int64) ([]models.Repetition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Repetition
	for _, r := range f.reps {
		if r.Timestamp >= from && r.Timestamp < to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRemote) SetDay(_ context.Context, habitID, dayTs, raw int64) error {
	return f.write(habitID, dayTs, &raw)
}

func (f *fakeRemote) ClearDay(_ context.Context, habitID, dayTs int64) error {
	return f.write(habitID, dayTs, nil)
}

func (f *fakeRemote) write(habitID, dayTs int64, raw *int64) error {
	f.mu.Lock()
	hook := f.onWrite
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	kept := f.reps[:0]
	for _, r := range f.reps {
		if r.HabitID != habitID || r.Timestamp != dayTs {
			kept = append(kept, r)
		}
	}
	f.reps = kept
	if raw != nil {
		f.reps = append(f.reps, models.Repetition{HabitID: habitID, Timestamp: dayTs, Value: *raw})
	}
	return nil
}

func (f *fakeRemote) block() (gate, entered chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	return f.gate, f.entered
}

func (f *fakeRemote) set(fn func(*fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

var (
	run   = models.Habit{ID: 1, Name: "Run", Position: 1}
	water = models.Habit{ID: 2, Name: "Water", Position: 0, Type: models.HabitNumeric, TargetValue: 2}
)

func newBoard(t *testing.T, r *fakeRemote) *Board {
	t.Helper()
	b := NewBoard(r, WithBoardClock(func() time.Time { return wed }))
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return b
}

func TestWindow(t *testing.T) {
	cases := []struct {
		name     string
		now      time.Time
		days     int
		from, to int64
	}{
		{"wednesday", wed, 10, dayOf(3), dayOf(17)},
		{"sunday", time.Date(2024, 6, 16, 23, 59, 0, 0, time.UTC), 10, dayOf(7), dayOf(17)},
		{"monday", time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC), 1, dayOf(17), dayOf(24)},
		{"default range", wed, 0, dayOf(3), dayOf(17)},
		{"offset zone", time.Date(2024, 6, 13, 1, 0, 0, 0, time.FixedZone("CEST", 2*3600)), 10, dayOf(3), dayOf(17)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			from, to := Window(tc.now, tc.days)
			if from != tc.from || to != tc.to {
				t.Errorf("Window = [%s, %s), want [%s, %s)",
					retention.DayKey(from), retention.DayKey(to), retention.DayKey(tc.from), retention.DayKey(tc.to))
			}
		})
	}
}

func TestRefreshBuildsSortedSnapshot(t *testing.T) {
	r := &fakeRemote{
		habits: []models.Habit{run, water},
		reps: []models.Repetition{
			{HabitID: 1, Timestamp: dayOf(12), Value: 2},
			{HabitID: 2, Timestamp: dayOf(11), Value: 1500},
			{HabitID: 2, Timestamp: dayOf(1), Value: 9000}, // outside the window
		},
	}
	b := newBoard(t, r)

	s := b.Snapshot()
	if len(s.Habits) != 2 || s.Habits[0].ID != water.ID {
		t.Fatalf("habits = %+v", s.Habits)
	}
	want := retention.Map{
		1: {"2024-06-12": {Status: retention.StatusDone, RawValue: 2}},
		2: {"2024-06-11": {Status: retention.StatusPartial, RawValue: 1500}},
	}
	if diff := cmp.Diff(want, s.Retention); diff != "" {
		t.Errorf("retention (-want +got):\n%s", diff)
	}
	if days := s.Days(); len(days) != 14 || days[0] != "2024-06-03" || days[13] != "2024-06-16" {
		t.Errorf("days = %v", days)
	}
}

func TestRefreshFailureClearsSnapshot(t *testing.T) {
	r := &fakeRemote{habits: []models.Habit{run}, reps: []models.Repetition{{HabitID: 1, Timestamp: dayOf(12), Value: 2}}}
	b := newBoard(t, r)

	boom := errors.New("connection refused")
	r.set(func(f *fakeRemote) { f.habitsErr = boom })
	if err := b.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Refresh err = %v", err)
	}
	s := b.Snapshot()
	if len(s.Habits) != 0 || len(s.Retention) != 0 || !errors.Is(s.Err, boom) {
		t.Errorf("snapshot after failure = %+v", s)
	}
}

func TestStaleRefreshDiscarded(t *testing.T) {
	r := &fakeRemote{habits: []models.Habit{run}}
	b := newBoard(t, r)
	ctx := context.Background()

	gate, entered := r.block()
	errCh := make(chan error, 1)
	go func() { errCh <- b.Refresh(ctx) }()
	<-entered

	r.set(func(f *fakeRemote) { f.habits = []models.Habit{run, water} })
	if err := b.Refresh(ctx); err != nil {
		t.Fatalf("newer Refresh: %v", err)
	}
	close(gate)

	if err := <-errCh; !errors.Is(err, ErrSuperseded) {
		t.Errorf("stale refresh err = %v, want ErrSuperseded", err)
	}
	if s := b.Snapshot(); len(s.Habits) != 2 {
		t.Errorf("stale response overwrote newer snapshot: %+v", s.Habits)
	}
}

func TestEditSupersedesInFlightRefresh(t *testing.T) {
	r := &fakeRemote{habits: []models.Habit{run}}
	b := newBoard(t, r)
	ctx := context.Background()

	gate, entered := r.block()
	errCh := make(chan error, 1)
	go func() { errCh <- b.Refresh(ctx) }()
	<-entered

	raw := retention.DoneRaw
	if err := b.Edit(ctx, run.ID, dayOf(12), &raw); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	close(gate)
	if err := <-errCh; !errors.Is(err, ErrSuperseded) {
		t.Errorf("in-flight refresh err = %v, want ErrSuperseded", err)
	}
	if rec := b.Snapshot().Retention.Lookup(run.ID, "2024-06-12"); rec.Status != retention.StatusDone {
		t.Errorf("edit lost: %+v", rec)
	}
}

func TestEditPatchesBeforeWrite(t *testing.T) {
	r := &fakeRemote{habits: []models.Habit{run}}
	b := newBoard(t, r)

	var during retention.DayRecord
	r.set(func(f *fakeRemote) {
		f.onWrite = func() { during = b.Snapshot().Retention.Lookup(run.ID, "2024-06-10") }
	})

	raw := retention.DoneRaw
	// Any instant of the day addresses the whole day.
	if err := b.Edit(context.Background(), run.ID, dayOf(10)+5*3600*1000, &raw); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if during.Status != retention.StatusDone {
		t.Errorf("snapshot during write = %+v, want done", during)
	}
	if r.reps[0].Timestamp != dayOf(10) {
		t.Errorf("written timestamp = %d, want day start", r.reps[0].Timestamp)
	}
	if rec := b.Snapshot().Retention.Lookup(run.ID, "2024-06-10"); rec.Status != retention.StatusDone {
		t.Errorf("snapshot after refresh = %+v", rec)
	}
}

func TestEditWriteFailureReconciles(t *testing.T) {
	r := &fakeRemote{habits: []models.Habit{run}}
	b := newBoard(t, r)

	boom := errors.New("server said no")
	r.set(func(f *fakeRemote) { f.writeErr = boom })

	raw := retention.DoneRaw
	err := b.Edit(context.Background(), run.ID, dayOf(12), &raw)
	if !errors.Is(err, boom) {
		t.Fatalf("Edit err = %v, want write error", err)
	}
	if rec := b.Snapshot().Retention.Lookup(run.ID, "2024-06-12"); rec.Status != retention.StatusMissed {
		t.Errorf("optimistic patch survived failed write: %+v", rec)
	}
}

func TestEditUnknownHabit(t *testing.T) {
	b := newBoard(t, &fakeRemote{habits: []models.Habit{run}})
	raw := retention.DoneRaw
	if err := b.Edit(context.Background(), 99, dayOf(12), &raw); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestToggle(t *testing.T) {
	r := &fakeRemote{habits: []models.Habit{run, water}}
	b := newBoard(t, r)
	ctx := context.Background()

	if err := b.Toggle(ctx, run.ID, dayOf(12)); err != nil {
		t.Fatalf("Toggle on: %v", err)
	}
	if len(r.reps) != 1 || r.reps[0].Value != retention.DoneRaw {
		t.Fatalf("reps after toggle on = %+v", r.reps)
	}
	if err := b.Toggle(ctx, run.ID, dayOf(12)); err != nil {
		t.Fatalf("Toggle off: %v", err)
	}
	if len(r.reps) != 0 {
		t.Errorf("reps after toggle off = %+v", r.reps)
	}
	if _, ok := b.Snapshot().Retention[run.ID]["2024-06-12"]; ok {
		t.Error("cleared day still present in the map")
	}

	if err := b.Toggle(ctx, water.ID, dayOf(12)); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("toggle numeric err = %v", err)
	}
}

func TestSetAmount(t *testing.T) {
	cases := []struct {
		input   string
		want    *int64 // nil means the day is cleared
		invalid bool
	}{
		{input: "2.5", want: ptr(2500)},
		{input: " 1,5 ", want: ptr(1500)},
		{input: "20", want: ptr(20000)},
		{input: "", want: nil},
		{input: "0", want: nil},
		{input: "abc", invalid: true},
		{input: "NaN", invalid: true},
		{input: "Inf", invalid: true},
		{input: "-3", invalid: true},
		{input: "1e19", invalid: true},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			r := &fakeRemote{
				habits: []models.Habit{water},
				reps:   []models.Repetition{{HabitID: water.ID, Timestamp: dayOf(12), Value: 700}},
			}
			b := newBoard(t, r)
			before := b.Snapshot()

			err := b.SetAmount(context.Background(), water.ID, dayOf(12), tc.input)
			if tc.invalid {
				if !errors.Is(err, apperr.ErrInvalidInput) {
					t.Fatalf("err = %v, want ErrInvalidInput", err)
				}
				if r.writes != 0 {
					t.Errorf("invalid input reached the remote")
				}
				if diff := cmp.Diff(before.Retention, b.Snapshot().Retention); diff != "" {
					t.Errorf("invalid input changed state (-before +after):\n%s", diff)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetAmount: %v", err)
			}
			if tc.want == nil {
				if len(r.reps) != 0 {
					t.Errorf("reps = %+v, want cleared", r.reps)
				}
				return
			}
			if len(r.reps) != 1 || r.reps[0].Value != *tc.want {
				t.Errorf("reps = %+v, want value %d", r.reps, *tc.want)
			}
		})
	}
}

func TestSetAmountBooleanHabit(t *testing.T) {
	b := newBoard(t, &fakeRemote{habits: []models.Habit{run}})
	if err := b.SetAmount(context.Background(), run.ID, dayOf(12), "3"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func TestRender(t *testing.T) {
	r := &fakeRemote{
		habits: []models.Habit{run, water, {ID: 3, Name: "Old", Position: 2, Archived: true}},
		reps: []models.Repetition{
			{HabitID: 1, Timestamp: dayOf(12), Value: 2},
			{HabitID: 2, Timestamp: dayOf(11), Value: 1540},
		},
	}
	b := newBoard(t, r)

	var buf bytes.Buffer
	if err := Render(&buf, b.Snapshot()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d:\n%s", len(lines), out)
	}
	for _, want := range []string{"06-03", "06-16"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("header missing %s: %q", want, lines[0])
		}
	}
	if !strings.Contains(lines[1], "Water") || !strings.Contains(lines[1], "1.5") {
		t.Errorf("water row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "Run") || !strings.Contains(lines[2], markDone) {
		t.Errorf("run row = %q", lines[2])
	}
	if !strings.Contains(lines[3], "Old (archived)") {
		t.Errorf("archived row = %q", lines[3])
	}

	buf.Reset()
	_ = Render(&buf, Snapshot{Err: errors.New("offline")})
	if buf.String() != "error: offline\n" {
		t.Errorf("error render = %q", buf.String())
	}
}

func ptr(v int64) *int64 { return &v }
