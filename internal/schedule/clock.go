package schedule

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"

	minutesPerDay = 24 * 60
)

// Weekday is the lowercase English name of a day of the week.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Weekdays lists the canonical day names in calendar order starting on Monday.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

func ParseWeekday(s string) (Weekday, error) {
	for _, d := range Weekdays {
		if string(d) == s {
			return d, nil
		}
	}
	names := make([]string, len(Weekdays))
	for i, d := range Weekdays {
		names[i] = string(d)
	}
	return "", fmt.Errorf("%w: invalid day %q, must be one of: %s", ErrMalformedSchedule, s, strings.Join(names, ", "))
}

func weekdayOf(d time.Weekday) Weekday {
	if d == time.Sunday {
		return Sunday
	}
	return Weekdays[int(d)-1]
}

// Title returns the capitalised day name used in user-facing messages.
func (w Weekday) Title() string {
	if w == "" {
		return ""
	}
	return strings.ToUpper(string(w[:1])) + string(w[1:])
}

// Date is a calendar date without time of day. The zero value is not a valid date.
type Date struct {
	t time.Time
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q, use YYYY-MM-DD", ErrMalformedInput, s)
	}
	return Date{t: t}, nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Weekday() Weekday { return weekdayOf(d.t.Weekday()) }
func (d Date) Time() time.Time  { return d.t }
func (d Date) IsZero() bool     { return d.t.IsZero() }
func (d Date) String() string   { return d.t.Format(DateLayout) }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// ClockTime is a minute of the day in [0, 1440).
type ClockTime int

func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time %q, use HH:MM (24-hour format)", ErrMalformedInput, s)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// ClockTimeFromMinutes validates a stored minute-of-day value.
func ClockTimeFromMinutes(m int) (ClockTime, error) {
	if m < 0 || m >= minutesPerDay {
		return 0, fmt.Errorf("%w: minute of day %d out of range", ErrMalformedInput, m)
	}
	return ClockTime(m), nil
}

func (c ClockTime) Minutes() int { return int(c) }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns c shifted by the given number of minutes. The result may run past midnight
// and is only meaningful for comparisons.
func (c ClockTime) Add(minutes int) ClockTime { return c + ClockTime(minutes) }

// FormatClockTimes renders times in wire form.
func FormatClockTimes(times []ClockTime) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.String()
	}
	return out
}
