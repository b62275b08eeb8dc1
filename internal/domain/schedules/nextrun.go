package schedules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCadence wraps every cadence validation failure.
var ErrInvalidCadence = errors.New("invalid schedule")

// Validate checks a cadence. Quarterly is only accepted for report schedules.
func Validate(c Cadence, allowQuarterly bool) error {
	if _, _, err := parseTimeOfDay(c.TimeOfDay); err != nil {
		return err
	}
	if _, err := location(c.Timezone); err != nil {
		return err
	}
	switch c.Frequency {
	case Daily:
	case Weekly:
		if c.DayOfWeek == nil || *c.DayOfWeek < 0 || *c.DayOfWeek > 6 {
			return fmt.Errorf("%w: day_of_week 0-6 is required for weekly schedules", ErrInvalidCadence)
		}
	case Monthly:
		if c.DayOfMonth == nil || *c.DayOfMonth < 1 || *c.DayOfMonth > 31 {
			return fmt.Errorf("%w: day_of_month 1-31 is required for monthly schedules", ErrInvalidCadence)
		}
	case Quarterly:
		if !allowQuarterly {
			return fmt.Errorf("%w: quarterly is only available for report schedules", ErrInvalidCadence)
		}
		if c.MonthOfQuarter == nil || *c.MonthOfQuarter < 1 || *c.MonthOfQuarter > 3 {
			return fmt.Errorf("%w: month_of_quarter 1-3 is required for quarterly schedules", ErrInvalidCadence)
		}
		if c.DayOfMonth != nil && (*c.DayOfMonth < 1 || *c.DayOfMonth > 31) {
			return fmt.Errorf("%w: day_of_month must be 1-31", ErrInvalidCadence)
		}
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidCadence, c.Frequency)
	}
	return nil
}

// NextScanRun computes when a scan schedule fires next.
func NextScanRun(c Cadence, now time.Time) (time.Time, error) {
	if err := Validate(c, false); err != nil {
		return time.Time{}, err
	}
	return nextRun(c, now)
}

// NextReportRun computes when a report schedule fires next.
func NextReportRun(c Cadence, now time.Time) (time.Time, error) {
	if err := Validate(c, true); err != nil {
		return time.Time{}, err
	}
	return nextRun(c, now)
}

// nextRun returns the first occurrence strictly after now. Days past the end
// of a month clamp to that month's last day.
func nextRun(c Cadence, now time.Time) (time.Time, error) {
	loc, err := location(c.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	h, m, err := parseTimeOfDay(c.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	y, mo, d := local.Date()
	at := func(year int, month time.Month, day int) time.Time {
		return time.Date(year, month, day, h, m, 0, 0, loc)
	}
	onMonthDay := func(year int, month time.Month, day int) time.Time {
		first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		last := first.AddDate(0, 1, -1).Day()
		if day > last {
			day = last
		}
		return at(first.Year(), first.Month(), day)
	}

	var next time.Time
	switch c.Frequency {
	case Daily:
		next = at(y, mo, d)
		if !next.After(now) {
			next = at(y, mo, d+1)
		}
	case Weekly:
		diff := (*c.DayOfWeek - int(local.Weekday()) + 7) % 7
		next = at(y, mo, d+diff)
		if !next.After(now) {
			next = at(y, mo, d+diff+7)
		}
	case Monthly:
		next = onMonthDay(y, mo, *c.DayOfMonth)
		if !next.After(now) {
			next = onMonthDay(y, mo+1, *c.DayOfMonth)
		}
	case Quarterly:
		day := 1
		if c.DayOfMonth != nil {
			day = *c.DayOfMonth
		}
		quarterStart := time.Month((int(mo)-1)/3*3 + 1)
		target := quarterStart + time.Month(*c.MonthOfQuarter-1)
		next = onMonthDay(y, target, day)
		if !next.After(now) {
			next = onMonthDay(y, target+3, day)
		}
	default:
		return time.Time{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidCadence, c.Frequency)
	}
	return next.UTC(), nil
}

func parseTimeOfDay(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("%w: time_of_day must be HH:MM, got %q", ErrInvalidCadence, s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: time_of_day must be HH:MM, got %q", ErrInvalidCadence, s)
	}
	return h, m, nil
}

func location(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidCadence, name)
	}
	return loc, nil
}
