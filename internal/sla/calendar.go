package sla

import (
	"time"

	"github.com/helpdesk-sla/sla-service/internal/domain"
)

// DefaultCalendarName is used for business-hours rules that name no calendar.
const DefaultCalendarName = "default"

const day = 24 * time.Hour

// Calendars is the set of configured business calendars keyed by name.
type Calendars map[string]*domain.BusinessCalendar

// Lookup returns the named calendar, falling back to the default for an empty name.
func (c Calendars) Lookup(name string) (*domain.BusinessCalendar, error) {
	if name == "" {
		name = DefaultCalendarName
	}
	cal, ok := c[name]
	if !ok || cal == nil {
		return nil, configErrorf("calendar "+name, "calendar is not configured")
	}
	return cal, nil
}

// ValidateCalendar rejects calendars that would count no business time at all.
func ValidateCalendar(cal *domain.BusinessCalendar) error {
	if cal == nil {
		return nil
	}
	if len(cal.Windows) == 0 {
		return configErrorf("calendar "+cal.Name, "no working windows configured")
	}
	for _, w := range cal.Windows {
		if w.Start < 0 || w.End > day || w.End <= w.Start {
			return configErrorf("calendar "+cal.Name, "invalid working window on %s", w.Weekday)
		}
	}
	return nil
}

// ElapsedBusinessMinutes counts whole minutes between start and end that fall inside
// the calendar's working windows. A nil calendar means plain wall-clock time.
// It never returns a negative value.
func ElapsedBusinessMinutes(start, end time.Time, cal *domain.BusinessCalendar) (int, error) {
	d, err := BusinessDuration(start, end, cal)
	if err != nil {
		return 0, err
	}
	return floorMinutes(d), nil
}

// BusinessDuration is ElapsedBusinessMinutes without the rounding.
func BusinessDuration(start, end time.Time, cal *domain.BusinessCalendar) (time.Duration, error) {
	if cal == nil {
		if !end.After(start) {
			return 0, nil
		}
		return end.Sub(start), nil
	}
	if err := ValidateCalendar(cal); err != nil {
		return 0, err
	}
	if !end.After(start) {
		return 0, nil
	}

	loc := cal.Location
	if loc == nil {
		loc = time.UTC
	}
	s, e := start.In(loc), end.In(loc)

	var total time.Duration
	y, m, d := s.Date()
	for cur := time.Date(y, m, d, 0, 0, 0, 0, loc); cur.Before(e); {
		if !cal.IsHoliday(cur) {
			for _, w := range cal.Windows {
				if w.Weekday != cur.Weekday() {
					continue
				}
				total += overlap(s, e, atOffset(cur, w.Start), atOffset(cur, w.End))
			}
		}
		y, m, d = cur.Date()
		cur = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return total, nil
}

// atOffset resolves a wall-clock offset on the given local day, so DST shifts move
// the window with the clock rather than with elapsed time.
func atOffset(date time.Time, offset time.Duration) time.Time {
	y, m, d := date.Date()
	h := int(offset / time.Hour)
	mins := int((offset % time.Hour) / time.Minute)
	return time.Date(y, m, d, h, mins, 0, 0, date.Location())
}

func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

func floorMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}
