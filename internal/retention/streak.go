package retention

import "sort"

// Streak summarises runs of consecutive done days.
type Streak struct {
	Current int `json:"current"`
	Best    int `json:"best"`
}

// Streaks computes the best run of consecutive done days and the run that is still
// alive at today (ending today or yesterday). today is a day key.
func Streaks(days map[string]DayRecord, today string) Streak {
	var done []int64
	for key, rec := range days {
		if rec.Status != StatusDone {
			continue
		}
		ms, err := ParseDayKey(key)
		if err != nil {
			continue
		}
		done = append(done, ms)
	}
	if len(done) == 0 {
		return Streak{}
	}
	sort.Slice(done, func(i, j int) bool { return done[i] < done[j] })

	var s Streak
	run := 0
	for i, d := range done {
		if i > 0 && d-done[i-1] == dayMs {
			run++
		} else {
			run = 1
		}
		s.Best = max(s.Best, run)
	}

	todayMs, err := ParseDayKey(today)
	if err != nil {
		return s
	}
	last := done[len(done)-1]
	if last == todayMs || last == todayMs-dayMs {
		s.Current = run
	}
	return s
}
