package transfer

import (
	"fmt"
	"time"
)

// Elapsed renders the time between startedAt and completedAt (or now when the
// transfer is still running) as "42s", "3m", "3m 5s" or "1h 2m".
func Elapsed(startedAt, completedAt int64, now time.Time) string {
	end := completedAt
	if end == 0 {
		end = now.UnixMilli()
	}
	elapsed := (end - startedAt) / 1000
	if elapsed < 0 {
		elapsed = 0
	}

	if elapsed < 60 {
		return fmt.Sprintf("%ds", elapsed)
	}

	minutes := elapsed / 60
	seconds := elapsed % 60
	if minutes < 60 {
		if seconds > 0 {
			return fmt.Sprintf("%dm %ds", minutes, seconds)
		}
		return fmt.Sprintf("%dm", minutes)
	}

	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
