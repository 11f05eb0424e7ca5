package dashboard

import (
	"time"

	"github.com/starford/loopgrid/internal/retention"
)

// DefaultRangeDays is today plus the nine days before it.
const DefaultRangeDays = 10

const dayMs = int64(24 * time.Hour / time.Millisecond)

// Window returns the half-open millisecond range a grid shows at now: from UTC
// midnight rangeDays-1 days ago to the end of the current week (Sunday, UTC).
func Window(now time.Time, rangeDays int) (from, to int64) {
	if rangeDays <= 0 {
		rangeDays = DefaultRangeDays
	}
	now = now.UTC()
	today := retention.DayStart(now.UnixMilli())
	from = today - int64(rangeDays-1)*dayMs

	untilSunday := (7 - int(now.Weekday())) % 7
	to = today + int64(untilSunday+1)*dayMs
	return from, to
}
