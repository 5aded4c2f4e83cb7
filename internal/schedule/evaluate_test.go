package schedule

import (
	"errors"
	"slices"
	"testing"
)

// 2024-06-03 is a Monday.
const monday = "2024-06-03"

func mondayView(t *testing.T, booked ...string) DayView {
	t.Helper()
	date, err := ParseDate(monday)
	if err != nil {
		t.Fatal(err)
	}
	set := NewBookedSet()
	for _, b := range booked {
		ct, err := ParseClockTime(b)
		if err != nil {
			t.Fatal(err)
		}
		set.Add(ct)
	}
	return DayView{
		Date:     date,
		Template: MustWeeklyTemplate(map[string][]string{"monday": {"09:00-10:00"}}),
		Settings: DefaultSettings(),
		Booked:   set,
	}
}

func clock(t *testing.T, s string) ClockTime {
	t.Helper()
	ct, err := ParseClockTime(s)
	if err != nil {
		t.Fatal(err)
	}
	return ct
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		view   func(t *testing.T) DayView
		at     string
		reason Reason
		err    error
	}{
		{
			name: "bookable",
			view: func(t *testing.T) DayView { return mondayView(t) },
			at:   "09:15",
		},
		{
			name: "off grid but inside window",
			view: func(t *testing.T) DayView { return mondayView(t) },
			at:   "09:07",
		},
		{
			name: "closed day",
			view: func(t *testing.T) DayView {
				v := mondayView(t)
				v.Date = v.Date.AddDays(1)
				return v
			},
			at:     "09:00",
			reason: ReasonClosedThatDay,
			err:    ErrClosedThatDay,
		},
		{
			name:   "before opening",
			view:   func(t *testing.T) DayView { return mondayView(t) },
			at:     "08:45",
			reason: ReasonOutsideHours,
			err:    ErrOutsideHours,
		},
		{
			name:   "exactly at interval end",
			view:   func(t *testing.T) DayView { return mondayView(t) },
			at:     "10:00",
			reason: ReasonOutsideHours,
			err:    ErrOutsideHours,
		},
		{
			name:   "already booked",
			view:   func(t *testing.T) DayView { return mondayView(t, "09:30") },
			at:     "09:30",
			reason: ReasonAlreadyBooked,
			err:    ErrAlreadyBooked,
		},
		{
			name: "capacity reached on a free time",
			view: func(t *testing.T) DayView {
				v := mondayView(t, "09:00")
				v.Settings.MaxPatientsPerDay = 1
				return v
			},
			at:     "09:45",
			reason: ReasonCapacityReached,
			err:    ErrCapacityReached,
		},
		{
			name: "booked wins over capacity",
			view: func(t *testing.T) DayView {
				v := mondayView(t, "09:00")
				v.Settings.MaxPatientsPerDay = 1
				return v
			},
			at:     "09:00",
			reason: ReasonAlreadyBooked,
			err:    ErrAlreadyBooked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.view(t), clock(t, tt.at))
			if v.Reason != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, v.Reason)
			}
			if v.Bookable() != (tt.err == nil) {
				t.Fatalf("bookable mismatch for reason %q", v.Reason)
			}
			err := v.Err()
			if tt.err == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestAvailableSlots_SubtractsBooked(t *testing.T) {
	got := FormatClockTimes(AvailableSlots(mondayView(t, "09:00")))
	want := []string{"09:15", "09:30", "09:45"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAvailableSlots_CapacityGateIsAllOrNothing(t *testing.T) {
	v := mondayView(t, "09:00")
	v.Settings.MaxPatientsPerDay = 1

	got := AvailableSlots(v)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", got)
	}
}

func TestAvailableSlots_ClosedDay(t *testing.T) {
	v := mondayView(t)
	v.Date = v.Date.AddDays(2)
	if got := AvailableSlots(v); len(got) != 0 {
		t.Fatalf("expected no slots on a closed day, got %v", got)
	}
}

func TestAvailableSlots_Idempotent(t *testing.T) {
	v := mondayView(t, "09:15")
	first := AvailableSlots(v)
	second := AvailableSlots(v)
	if !slices.Equal(first, second) {
		t.Fatalf("expected identical listings, got %v and %v", first, second)
	}
}
