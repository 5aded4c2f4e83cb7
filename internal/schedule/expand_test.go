package schedule

import (
	"math/rand"
	"slices"
	"testing"
)

func mustInterval(t *testing.T, s string) Interval {
	t.Helper()
	iv, err := ParseInterval(s)
	if err != nil {
		t.Fatalf("parse interval %q: %v", s, err)
	}
	return iv
}

func TestExpandSlots_MondayMorning(t *testing.T) {
	day := NewDayTemplate(mustInterval(t, "09:00-10:00"))

	got := FormatClockTimes(ExpandSlots(day, 15))
	want := []string{"09:00", "09:15", "09:30", "09:45"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExpandSlots_DropsTrailingPartialSlot(t *testing.T) {
	day := NewDayTemplate(mustInterval(t, "09:00-09:50"))

	got := FormatClockTimes(ExpandSlots(day, 15))
	want := []string{"09:00", "09:15", "09:30"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExpandSlots_SortsAndDeduplicates(t *testing.T) {
	day := NewDayTemplate(
		mustInterval(t, "15:00-15:30"),
		mustInterval(t, "09:00-09:30"),
		mustInterval(t, "09:15-09:45"),
	)

	got := FormatClockTimes(ExpandSlots(day, 15))
	want := []string{"09:00", "09:15", "09:30", "15:00", "15:15"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSlots_IsRestartableAndStopsEarly(t *testing.T) {
	day := NewDayTemplate(mustInterval(t, "08:00-12:00"))
	seq := day.Slots(30)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.Equal(first, second) {
		t.Fatalf("expected identical passes, got %v and %v", first, second)
	}
	if len(first) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(first))
	}

	n := 0
	for range seq {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Fatalf("expected to stop after 3, got %d", n)
	}
}

func TestSlots_NonPositiveDuration(t *testing.T) {
	day := NewDayTemplate(mustInterval(t, "08:00-12:00"))
	for _, d := range []int{0, -15} {
		if got := slices.Collect(day.Slots(d)); len(got) != 0 {
			t.Errorf("duration %d: expected no slots, got %v", d, got)
		}
	}
}

func TestSlots_NeverRunPastIntervalEnd(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		var intervals []Interval
		cursor := rng.Intn(120)
		for cursor < minutesPerDay-1 && len(intervals) < 5 {
			start := cursor
			end := start + 1 + rng.Intn(180)
			if end > minutesPerDay-1 {
				end = minutesPerDay - 1
			}
			intervals = append(intervals, Interval{Start: ClockTime(start), End: ClockTime(end)})
			cursor = end + rng.Intn(60)
		}
		d := 1 + rng.Intn(60)
		day := NewDayTemplate(intervals...)

		for slot := range day.Slots(d) {
			owner := -1
			for j, iv := range intervals {
				if iv.Contains(slot) {
					owner = j
					break
				}
			}
			if owner < 0 {
				t.Fatalf("slot %s outside every interval %v", slot, intervals)
			}
			if slot.Add(d) > intervals[owner].End {
				t.Fatalf("slot %s with duration %d runs past %s", slot, d, intervals[owner].End)
			}
		}
	}
}

func TestBookedSet(t *testing.T) {
	s := NewBookedSet()
	if !s.Add(540) {
		t.Fatal("expected first add to insert")
	}
	if s.Add(540) {
		t.Fatal("expected duplicate add to be a no-op")
	}
	s.Add(480)
	if got := FormatClockTimes(s.Sorted()); !slices.Equal(got, []string{"08:00", "09:00"}) {
		t.Fatalf("unexpected sorted set %v", got)
	}
	if !s.Remove(540) || s.Remove(540) {
		t.Fatal("expected remove to report presence once")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}
}
