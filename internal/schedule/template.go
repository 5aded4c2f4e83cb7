package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Interval is a half-open availability window [Start, End).
type Interval struct {
	Start ClockTime
	End   ClockTime
}

// ParseInterval parses "HH:MM-HH:MM". Inverted or empty windows are rejected.
func ParseInterval(s string) (Interval, error) {
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return Interval{}, fmt.Errorf("%w: invalid time slot format %q, must be HH:MM-HH:MM", ErrMalformedSchedule, s)
	}
	start, err := ParseClockTime(startStr)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: invalid time format in slot %q, use HH:MM-HH:MM (24-hour format)", ErrMalformedSchedule, s)
	}
	end, err := ParseClockTime(endStr)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: invalid time format in slot %q, use HH:MM-HH:MM (24-hour format)", ErrMalformedSchedule, s)
	}
	if start >= end {
		return Interval{}, fmt.Errorf("%w: slot %q must start before it ends", ErrMalformedSchedule, s)
	}
	return Interval{Start: start, End: end}, nil
}

func (iv Interval) Contains(t ClockTime) bool {
	return iv.Start <= t && t < iv.End
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// DayTemplate is the ordered list of availability windows for one weekday.
type DayTemplate struct {
	intervals []Interval
}

func NewDayTemplate(intervals ...Interval) DayTemplate {
	return DayTemplate{intervals: append([]Interval(nil), intervals...)}
}

func (d DayTemplate) Intervals() []Interval {
	return append([]Interval(nil), d.intervals...)
}

func (d DayTemplate) IsEmpty() bool { return len(d.intervals) == 0 }

// Contains reports whether any window covers t.
func (d DayTemplate) Contains(t ClockTime) bool {
	for _, iv := range d.intervals {
		if iv.Contains(t) {
			return true
		}
	}
	return false
}

// WeeklyTemplate maps each weekday to its availability windows. It is only
// built through NewWeeklyTemplate or UnmarshalJSON, so a value in hand is valid.
type WeeklyTemplate struct {
	days map[Weekday]DayTemplate
}

// NewWeeklyTemplate validates the wire form of a template. Days missing from raw
// are closed; overlapping windows are accepted.
func NewWeeklyTemplate(raw map[string][]string) (WeeklyTemplate, error) {
	days := make(map[Weekday]DayTemplate, len(Weekdays))
	for key, slots := range raw {
		day, err := ParseWeekday(key)
		if err != nil {
			return WeeklyTemplate{}, err
		}
		intervals := make([]Interval, 0, len(slots))
		for _, s := range slots {
			iv, err := ParseInterval(s)
			if err != nil {
				return WeeklyTemplate{}, err
			}
			intervals = append(intervals, iv)
		}
		days[day] = DayTemplate{intervals: intervals}
	}
	return WeeklyTemplate{days: days}, nil
}

// MustWeeklyTemplate is NewWeeklyTemplate for literals known to be valid.
func MustWeeklyTemplate(raw map[string][]string) WeeklyTemplate {
	t, err := NewWeeklyTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func (w WeeklyTemplate) Day(d Weekday) DayTemplate {
	return w.days[d]
}

// Raw returns the wire form with all seven days present.
func (w WeeklyTemplate) Raw() map[string][]string {
	out := make(map[string][]string, len(Weekdays))
	for _, d := range Weekdays {
		ivs := w.days[d].intervals
		slots := make([]string, len(ivs))
		for i, iv := range ivs {
			slots[i] = iv.String()
		}
		out[string(d)] = slots
	}
	return out
}

func (w WeeklyTemplate) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Raw())
}

func (w *WeeklyTemplate) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSchedule, err)
	}
	t, err := NewWeeklyTemplate(raw)
	if err != nil {
		return err
	}
	*w = t
	return nil
}

const (
	DefaultSlotDurationMinutes = 15
	MinSlotDurationMinutes     = 5
	MaxSlotDurationMinutes     = 60

	DefaultMaxPatientsPerDay = 20
	MinMaxPatientsPerDay     = 1
	MaxMaxPatientsPerDay     = 100
)

// Settings are the per-doctor knobs that shape slot expansion and the daily cap.
type Settings struct {
	SlotDurationMinutes int
	MaxPatientsPerDay   int
}

func DefaultSettings() Settings {
	return Settings{
		SlotDurationMinutes: DefaultSlotDurationMinutes,
		MaxPatientsPerDay:   DefaultMaxPatientsPerDay,
	}
}

func ValidateSlotDuration(minutes int) error {
	if minutes < MinSlotDurationMinutes || minutes > MaxSlotDurationMinutes {
		return fmt.Errorf("%w: slot duration must be between %d and %d minutes, got %d",
			ErrMalformedInput, MinSlotDurationMinutes, MaxSlotDurationMinutes, minutes)
	}
	return nil
}

func ValidateMaxPatients(n int) error {
	if n < MinMaxPatientsPerDay || n > MaxMaxPatientsPerDay {
		return fmt.Errorf("%w: max patients per day must be between %d and %d, got %d",
			ErrMalformedInput, MinMaxPatientsPerDay, MaxMaxPatientsPerDay, n)
	}
	return nil
}
