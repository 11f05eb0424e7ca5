package dashboard

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/retention"
)

// Cell marks used by Render.
const (
	markDone    = "#"
	markPartial = "+"
	markMissed  = "."
)

// Render writes the snapshot as a text grid: one row per habit, one column per
// day of the window. Numeric habits show the amount (one decimal) instead of a
// mark when something was recorded.
func Render(w io.Writer, s Snapshot) error {
	if s.Err != nil {
		_, err := fmt.Fprintf(w, "error: %v\n", s.Err)
		return err
	}
	days := s.Days()

	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	header := make([]string, 0, len(days)+1)
	header = append(header, "")
	for _, d := range days {
		header = append(header, d[5:]) // MM-DD
	}
	if _, err := fmt.Fprintln(tw, strings.Join(header, "\t")+"\t"); err != nil {
		return err
	}

	for _, h := range s.Habits {
		row := make([]string, 0, len(days)+1)
		row = append(row, label(h))
		for _, d := range days {
			row = append(row, cell(h, s.Retention.Lookup(h.ID, d)))
		}
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")+"\t"); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func label(h models.Habit) string {
	name := h.Name
	if h.Archived {
		name += " (archived)"
	}
	return name
}

func cell(h models.Habit, rec retention.DayRecord) string {
	if h.Type.Normalize() == models.HabitNumeric && rec.RawValue > 0 {
		// Round to tenths like the amount editor does.
		tenths := float64((rec.RawValue+50)/100) / 10
		return strconv.FormatFloat(tenths, 'f', 1, 64)
	}
	switch rec.Status {
	case retention.StatusDone:
		return markDone
	case retention.StatusPartial:
		return markPartial
	default:
		return markMissed
	}
}
