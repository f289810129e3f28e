package domain

import "time"

// WorkingWindow is a span of working time on one weekday, expressed as offsets
// from local midnight.
type WorkingWindow struct {
	Weekday time.Weekday
	Start   time.Duration
	End     time.Duration
}

// Holiday is a non-working calendar day. Recurring holidays match every year.
type Holiday struct {
	Name      string
	Year      int
	Month     time.Month
	Day       int
	Recurring bool
}

// Matches reports whether the holiday falls on the given local date.
func (h Holiday) Matches(year int, month time.Month, day int) bool {
	if h.Month != month || h.Day != day {
		return false
	}
	return h.Recurring || h.Year == year
}

// BusinessCalendar defines working hours and holidays in a time zone.
type BusinessCalendar struct {
	Name     string
	Location *time.Location
	Windows  []WorkingWindow
	Holidays []Holiday
}

// IsHoliday reports whether the local date of t is a holiday.
func (c *BusinessCalendar) IsHoliday(t time.Time) bool {
	y, m, d := t.Date()
	for _, h := range c.Holidays {
		if h.Matches(y, m, d) {
			return true
		}
	}
	return false
}
