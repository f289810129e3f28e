package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/helpdesk-sla/sla-service/internal/domain"
	"github.com/helpdesk-sla/sla-service/internal/sla"
)

// calendarFile is the on-disk layout of SLA_CALENDAR_FILE.
//
//	calendars:
//	  - name: default
//	    timezone: Europe/Berlin
//	    windows:
//	      - days: [mon, tue, wed, thu, fri]
//	        start: "09:00"
//	        end: "17:30"
//	    holidays:
//	      - name: New Year
//	        date: "01-01"
//	        recurring: true
//	      - name: Company offsite
//	        date: "2025-06-13"
type calendarFile struct {
	Calendars []calendarSpec `yaml:"calendars"`
}

type calendarSpec struct {
	Name     string        `yaml:"name"`
	Timezone string        `yaml:"timezone"`
	Windows  []windowSpec  `yaml:"windows"`
	Holidays []holidaySpec `yaml:"holidays"`
}

type windowSpec struct {
	Days  []string `yaml:"days"`
	Start string   `yaml:"start"`
	End   string   `yaml:"end"`
}

type holidaySpec struct {
	Name      string `yaml:"name"`
	Date      string `yaml:"date"`
	Recurring bool   `yaml:"recurring"`
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// LoadCalendars builds the business calendars from the YAML file when configured,
// otherwise a single Monday to Friday default calendar from the env settings.
// Every calendar is validated; a broken one fails startup.
func LoadCalendars(cfg SLAConfig) (sla.Calendars, error) {
	if cfg.CalendarFile == "" {
		cal, err := defaultCalendar(cfg)
		if err != nil {
			return nil, err
		}
		return sla.Calendars{cal.Name: cal}, nil
	}

	data, err := os.ReadFile(cfg.CalendarFile)
	if err != nil {
		return nil, fmt.Errorf("read calendar file: %w", err)
	}
	return ParseCalendars(data)
}

// ParseCalendars decodes and validates a calendar document.
func ParseCalendars(data []byte) (sla.Calendars, error) {
	var file calendarFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse calendar file: %w", err)
	}
	if len(file.Calendars) == 0 {
		return nil, fmt.Errorf("calendar file defines no calendars")
	}

	result := make(sla.Calendars, len(file.Calendars))
	for _, entry := range file.Calendars {
		cal, err := entry.build()
		if err != nil {
			return nil, err
		}
		if _, dup := result[cal.Name]; dup {
			return nil, fmt.Errorf("calendar %q defined twice", cal.Name)
		}
		result[cal.Name] = cal
	}
	return result, nil
}

func (s calendarSpec) build() (*domain.BusinessCalendar, error) {
	name := s.Name
	if name == "" {
		name = sla.DefaultCalendarName
	}
	loc, err := loadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar %q: %w", name, err)
	}

	cal := &domain.BusinessCalendar{Name: name, Location: loc}
	for _, w := range s.Windows {
		start, err := parseClock(w.Start)
		if err != nil {
			return nil, fmt.Errorf("calendar %q: window start: %w", name, err)
		}
		end, err := parseClock(w.End)
		if err != nil {
			return nil, fmt.Errorf("calendar %q: window end: %w", name, err)
		}
		for _, d := range w.Days {
			wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
			if !ok {
				return nil, fmt.Errorf("calendar %q: unknown weekday %q", name, d)
			}
			cal.Windows = append(cal.Windows, domain.WorkingWindow{Weekday: wd, Start: start, End: end})
		}
	}
	for _, h := range s.Holidays {
		holiday, err := parseHoliday(h)
		if err != nil {
			return nil, fmt.Errorf("calendar %q: %w", name, err)
		}
		cal.Holidays = append(cal.Holidays, holiday)
	}

	if err := sla.ValidateCalendar(cal); err != nil {
		return nil, err
	}
	return cal, nil
}

func defaultCalendar(cfg SLAConfig) (*domain.BusinessCalendar, error) {
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_TIMEZONE: %w", err)
	}
	start, err := parseClock(cfg.WorkdayStart)
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_WORKDAY_START: %w", err)
	}
	end, err := parseClock(cfg.WorkdayEnd)
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_WORKDAY_END: %w", err)
	}

	cal := &domain.BusinessCalendar{Name: sla.DefaultCalendarName, Location: loc}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		cal.Windows = append(cal.Windows, domain.WorkingWindow{Weekday: wd, Start: start, End: end})
	}
	if err := sla.ValidateCalendar(cal); err != nil {
		return nil, err
	}
	return cal, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// parseClock turns "HH:MM" into an offset from midnight. "24:00" is allowed as an end.
func parseClock(value string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock %q out of range", value)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

func parseHoliday(h holidaySpec) (domain.Holiday, error) {
	if h.Recurring {
		t, err := time.Parse("01-02", h.Date)
		if err != nil {
			return domain.Holiday{}, fmt.Errorf("holiday %q: expected MM-DD, got %q", h.Name, h.Date)
		}
		return domain.Holiday{Name: h.Name, Month: t.Month(), Day: t.Day(), Recurring: true}, nil
	}
	t, err := time.Parse("2006-01-02", h.Date)
	if err != nil {
		return domain.Holiday{}, fmt.Errorf("holiday %q: expected YYYY-MM-DD, got %q", h.Name, h.Date)
	}
	return domain.Holiday{Name: h.Name, Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}
