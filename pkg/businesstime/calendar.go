package businesstime

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
)

// BusinessHours is the working week of an organization
type BusinessHours struct {
	WorkingDays []time.Weekday
	StartHour   int // inclusive
	EndHour     int // exclusive
}

// PrayerWindow is a daily quiet interval anchored at a local time of day
type PrayerWindow struct {
	Name     string
	Hour     int
	Minute   int
	Duration time.Duration
}

// FixedHoliday recurs on the same Gregorian date every year
type FixedHoliday struct {
	Name  string
	Month time.Month
	Day   int
}

// Date is a calendar date without a time of day
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) key() int {
	return d.Year*10000 + int(d.Month)*100 + d.Day
}

// String formats the date as YYYY-MM-DD
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// ParseDate parses YYYY-MM-DD
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateRange is an inclusive range of dates, used for lunar holidays that
// cannot be derived from the Gregorian calendar
type DateRange struct {
	Name  string
	Start Date
	End   Date
}

// Contains reports whether the date falls in the range
func (r DateRange) Contains(d Date) bool {
	k := d.key()
	return k >= r.Start.key() && k <= r.End.key()
}

// Calendar is the static configuration consulted by the scheduler
type Calendar struct {
	Location      *time.Location
	Hours         BusinessHours
	PrayerWindows []PrayerWindow
	FixedHolidays []FixedHoliday
	LunarHolidays []DateRange
}

// Validate reports missing or contradictory configuration as a scheduling error
func (c Calendar) Validate() error {
	if c.Location == nil {
		return domain.NewSchedulingError("calendar has no time zone")
	}
	if err := c.Hours.Validate(); err != nil {
		return err
	}
	for _, w := range c.PrayerWindows {
		if w.Hour < 0 || w.Hour > 23 || w.Minute < 0 || w.Minute > 59 || w.Duration <= 0 {
			return domain.NewSchedulingError(fmt.Sprintf("invalid prayer window %q", w.Name))
		}
	}
	for _, r := range c.LunarHolidays {
		if r.End.key() < r.Start.key() {
			return domain.NewSchedulingError(fmt.Sprintf("holiday %q ends before it starts", r.Name))
		}
	}
	return nil
}

// Validate checks the working week
func (h BusinessHours) Validate() error {
	if len(h.WorkingDays) == 0 {
		return domain.NewSchedulingError("no working days configured")
	}
	if h.StartHour < 0 || h.EndHour > 24 || h.StartHour >= h.EndHour {
		return domain.NewSchedulingError(fmt.Sprintf("invalid business hours %d-%d", h.StartHour, h.EndHour))
	}
	return nil
}

// calendarFile is the on-disk JSON form of a Calendar
type calendarFile struct {
	Timezone      string   `json:"timezone"`
	WorkingDays   []string `json:"working_days"`
	StartHour     int      `json:"start_hour"`
	EndHour       int      `json:"end_hour"`
	PrayerWindows []struct {
		Name            string `json:"name"`
		Start           string `json:"start"`
		DurationMinutes int    `json:"duration_minutes"`
	} `json:"prayer_windows"`
	FixedHolidays []struct {
		Name  string `json:"name"`
		Month int    `json:"month"`
		Day   int    `json:"day"`
	} `json:"fixed_holidays"`
	LunarHolidays []struct {
		Name  string `json:"name"`
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"lunar_holidays"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// LoadCalendarFile reads a JSON calendar. Holiday tables are refreshed by
// replacing this file, never computed.
func LoadCalendarFile(path string) (Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calendar{}, fmt.Errorf("failed to read calendar file: %w", err)
	}
	return ParseCalendar(data)
}

// ParseCalendar decodes a JSON calendar document
func ParseCalendar(data []byte) (Calendar, error) {
	var f calendarFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Calendar{}, fmt.Errorf("failed to parse calendar: %w", err)
	}

	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return Calendar{}, domain.NewSchedulingError(fmt.Sprintf("unknown time zone %q", f.Timezone))
	}

	cal := Calendar{
		Location: loc,
		Hours: BusinessHours{
			StartHour: f.StartHour,
			EndHour:   f.EndHour,
		},
	}

	for _, name := range f.WorkingDays {
		day, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return Calendar{}, domain.NewSchedulingError(fmt.Sprintf("unknown working day %q", name))
		}
		cal.Hours.WorkingDays = append(cal.Hours.WorkingDays, day)
	}

	for _, w := range f.PrayerWindows {
		start, err := time.Parse("15:04", w.Start)
		if err != nil {
			return Calendar{}, domain.NewSchedulingError(fmt.Sprintf("invalid prayer window start %q", w.Start))
		}
		cal.PrayerWindows = append(cal.PrayerWindows, PrayerWindow{
			Name:     w.Name,
			Hour:     start.Hour(),
			Minute:   start.Minute(),
			Duration: time.Duration(w.DurationMinutes) * time.Minute,
		})
	}

	for _, h := range f.FixedHolidays {
		cal.FixedHolidays = append(cal.FixedHolidays, FixedHoliday{Name: h.Name, Month: time.Month(h.Month), Day: h.Day})
	}

	for _, h := range f.LunarHolidays {
		start, err := ParseDate(h.Start)
		if err != nil {
			return Calendar{}, err
		}
		end, err := ParseDate(h.End)
		if err != nil {
			return Calendar{}, err
		}
		cal.LunarHolidays = append(cal.LunarHolidays, DateRange{Name: h.Name, Start: start, End: end})
	}

	if err := cal.Validate(); err != nil {
		return Calendar{}, err
	}
	return cal, nil
}
