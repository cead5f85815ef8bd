package schedule

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseServiceDay parses a service weekday attribute. Full names and
// three-letter abbreviations are accepted, case-insensitively.
func ParseServiceDay(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if wd, ok := weekdays[key]; ok {
		return wd, nil
	}
	if len(key) >= 3 {
		for name, wd := range weekdays {
			if strings.HasPrefix(name, key[:3]) {
				return wd, nil
			}
		}
	}
	return 0, eris.Errorf("schedule: invalid service day %q", s)
}

// NextCollection computes the next garbage date and the next recycle date
// for a zone, given "now". Garbage runs weekly on the service day; recycling
// runs every other week, with the A/B cadence anchored at the configured
// reference Monday (that week and every second week after are "A" weeks).
// A pickup later today still counts as today.
func (s *Service) NextCollection(serviceDay, recycleWeek string, now time.Time) (garbage, recycle time.Time, err error) {
	wd, err := ParseServiceDay(serviceDay)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	week := strings.ToUpper(strings.TrimSpace(recycleWeek))
	if week != "A" && week != "B" {
		return time.Time{}, time.Time{}, eris.Errorf("schedule: invalid recycle week %q", recycleWeek)
	}

	today := truncateToDay(now)
	garbage = nextWeekday(today, wd)

	recycle = garbage
	if recycleParity(recycle, s.referenceMonday) != week {
		recycle = recycle.AddDate(0, 0, 7)
	}
	return garbage, recycle, nil
}

// recycleParity returns "A" or "B" for the week containing d, relative to
// the reference Monday.
func recycleParity(d, referenceMonday time.Time) string {
	monday := utcDate(mondayOf(d))
	ref := utcDate(mondayOf(referenceMonday))
	weeks := int(monday.Sub(ref).Hours()) / (24 * 7)
	if weeks%2 == 0 {
		return "A"
	}
	return "B"
}

// utcDate rebuilds the calendar date in UTC so week arithmetic is immune to
// DST transitions.
func utcDate(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// nextWeekday returns the first date on or after d falling on wd.
func nextWeekday(d time.Time, wd time.Weekday) time.Time {
	offset := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset)
}

// mondayOf returns the Monday of the week containing d.
func mondayOf(d time.Time) time.Time {
	d = truncateToDay(d)
	offset := (int(d.Weekday()) - int(time.Monday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

func truncateToDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}
