package businesstime

import (
	"fmt"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
)

// searchHorizon bounds GetNextAvailableSendTime so a calendar that blocks
// every day fails loudly instead of looping
const searchHorizon = 400 * 24 * time.Hour

// Advisory mid-morning slot used by GetOptimalSendTime
const (
	optimalStartHour = 10
	optimalEndHour   = 11
	optimalLookahead = 14
)

// SendOptions tunes the next-send-time search. The zero value avoids prayer times.
type SendOptions struct {
	// AllowDuringPrayer disables the prayer-window exclusion
	AllowDuringPrayer bool
	// Deadline disables the optimal-slot preference in GetOptimalSendTime
	Deadline *time.Time
	// PreferredDays for GetOptimalSendTime; defaults to Monday-Wednesday
	PreferredDays []time.Weekday
}

// Scheduler answers business-window questions over a fixed Calendar.
// All methods are pure; callers pass the instant from their Clock.
type Scheduler struct {
	cal         Calendar
	workingDays [7]bool
}

// NewScheduler validates the calendar and builds a scheduler
func NewScheduler(cal Calendar) (*Scheduler, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{cal: cal}
	for _, d := range cal.Hours.WorkingDays {
		s.workingDays[d] = true
	}
	return s, nil
}

// WithHours returns a scheduler that applies an organization's working week.
// A nil override returns the receiver unchanged.
func (s *Scheduler) WithHours(hours *BusinessHours) (*Scheduler, error) {
	if hours == nil {
		return s, nil
	}
	cal := s.cal
	cal.Hours = *hours
	return NewScheduler(cal)
}

// Calendar returns the calendar in use
func (s *Scheduler) Calendar() Calendar {
	return s.cal
}

// Location returns the calendar time zone
func (s *Scheduler) Location() *time.Location {
	return s.cal.Location
}

// IsBusinessHours reports whether t is on a working day within working hours
func (s *Scheduler) IsBusinessHours(t time.Time) bool {
	return s.inHours(t.In(s.cal.Location))
}

// IsPrayerTime reports whether t falls inside any daily prayer window
func (s *Scheduler) IsPrayerTime(t time.Time) bool {
	return s.inPrayer(t.In(s.cal.Location))
}

// IsHoliday reports whether the local date of t is a fixed or lunar holiday
func (s *Scheduler) IsHoliday(t time.Time) bool {
	return s.isHoliday(t.In(s.cal.Location))
}

// HolidayName returns the holiday covering t, if any
func (s *Scheduler) HolidayName(t time.Time) (string, bool) {
	local := t.In(s.cal.Location)
	y, m, d := local.Date()
	for _, h := range s.cal.FixedHolidays {
		if h.Month == m && h.Day == d {
			return h.Name, true
		}
	}
	date := Date{Year: y, Month: m, Day: d}
	for _, r := range s.cal.LunarHolidays {
		if r.Contains(date) {
			return r.Name, true
		}
	}
	return "", false
}

// IsSendable reports whether t satisfies every constraint in opts
func (s *Scheduler) IsSendable(t time.Time, opts SendOptions) bool {
	local := t.In(s.cal.Location)
	if s.isHoliday(local) || !s.inHours(local) {
		return false
	}
	return opts.AllowDuringPrayer || !s.inPrayer(local)
}

// GetNextAvailableSendTime returns the earliest instant >= t that is inside
// business hours, not on a holiday and, unless allowed, outside prayer windows.
// Outside business hours the search jumps to the next opening instead of
// scanning the gap; inside a day it advances minute by minute.
func (s *Scheduler) GetNextAvailableSendTime(t time.Time, opts SendOptions) (time.Time, error) {
	limit := t.Add(searchHorizon)
	cur := t
	for !cur.After(limit) {
		local := cur.In(s.cal.Location)
		if s.isHoliday(local) || !s.inHours(local) {
			cur = s.nextOpening(local)
			continue
		}
		if !opts.AllowDuringPrayer && s.inPrayer(local) {
			cur = cur.Truncate(time.Minute).Add(time.Minute)
			continue
		}
		return cur, nil
	}
	return time.Time{}, domain.NewSchedulingError(
		fmt.Sprintf("no available send time within %d days of %s", int(searchHorizon.Hours()/24), t.Format(time.RFC3339)))
}

// GetOptimalSendTime is advisory. Without a deadline it prefers the
// mid-morning slot on a preferred day, falling back to the earliest instant.
func (s *Scheduler) GetOptimalSendTime(t time.Time, opts SendOptions) (time.Time, error) {
	earliest, err := s.GetNextAvailableSendTime(t, opts)
	if err != nil {
		return time.Time{}, err
	}
	if opts.Deadline != nil {
		return earliest, nil
	}

	preferred := opts.PreferredDays
	if len(preferred) == 0 {
		preferred = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday}
	}

	local := earliest.In(s.cal.Location)
	y, m, d := local.Date()
	for i := 0; i < optimalLookahead; i++ {
		slotStart := time.Date(y, m, d+i, optimalStartHour, 0, 0, 0, s.cal.Location)
		slotEnd := time.Date(y, m, d+i, optimalEndHour, 0, 0, 0, s.cal.Location)
		if !containsDay(preferred, slotStart.Weekday()) || !slotEnd.After(earliest) {
			continue
		}

		candidate := slotStart
		if earliest.After(candidate) {
			candidate = earliest
		}
		next, err := s.GetNextAvailableSendTime(candidate, opts)
		if err != nil {
			return time.Time{}, err
		}
		if next.Before(slotEnd) {
			return next, nil
		}
	}

	return earliest, nil
}

func (s *Scheduler) inHours(local time.Time) bool {
	if !s.workingDays[local.Weekday()] {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= s.cal.Hours.StartHour*60 && minutes < s.cal.Hours.EndHour*60
}

func (s *Scheduler) inPrayer(local time.Time) bool {
	y, m, d := local.Date()
	for _, w := range s.cal.PrayerWindows {
		start := time.Date(y, m, d, w.Hour, w.Minute, 0, 0, local.Location())
		if !local.Before(start) && local.Before(start.Add(w.Duration)) {
			return true
		}
	}
	return false
}

func (s *Scheduler) isHoliday(local time.Time) bool {
	_, ok := s.HolidayName(local)
	return ok
}

// nextOpening returns the opening instant of the next working day after
// local, or today's opening if local is before it. Holidays are left to the caller.
func (s *Scheduler) nextOpening(local time.Time) time.Time {
	y, m, d := local.Date()
	open := time.Date(y, m, d, s.cal.Hours.StartHour, 0, 0, 0, s.cal.Location)
	if local.Before(open) && s.workingDays[local.Weekday()] && !s.isHoliday(local) {
		return open
	}
	for i := 1; i <= 7; i++ {
		next := time.Date(y, m, d+i, s.cal.Hours.StartHour, 0, 0, 0, s.cal.Location)
		if s.workingDays[next.Weekday()] {
			return next
		}
	}
	// unreachable with a validated calendar
	return open.AddDate(0, 0, 7)
}

func containsDay(days []time.Weekday, d time.Weekday) bool {
	for _, day := range days {
		if day == d {
			return true
		}
	}
	return false
}
