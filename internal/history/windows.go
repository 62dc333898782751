package history

import "time"

// Window is a named reporting range
type Window string

const (
	WindowDaily   Window = "daily"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
)

// Range returns the inclusive day range of w ending on now
func (w Window) Range(now time.Time) (start, end time.Time) {
	end = truncateDay(now)
	switch w {
	case WindowWeekly:
		return end.AddDate(0, 0, -6), end
	case WindowMonthly:
		return end.AddDate(0, 0, -29), end
	default:
		return end, end
	}
}
