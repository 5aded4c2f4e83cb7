package schedule

import (
	"iter"
	"slices"
)

// Slots yields the start of every whole slot of the given length inside each
// window, in window order. A trailing slot that would run past the window's end
// is not emitted. The sequence can be ranged over any number of times.
func (d DayTemplate) Slots(durationMinutes int) iter.Seq[ClockTime] {
	return func(yield func(ClockTime) bool) {
		if durationMinutes <= 0 {
			return
		}
		for _, iv := range d.intervals {
			for t := iv.Start; t.Add(durationMinutes) <= iv.End; t = t.Add(durationMinutes) {
				if !yield(t) {
					return
				}
			}
		}
	}
}

// ExpandSlots returns the sorted, de-duplicated slot starts of a day.
func ExpandSlots(day DayTemplate, durationMinutes int) []ClockTime {
	slots := slices.Collect(day.Slots(durationMinutes))
	slices.Sort(slots)
	return slices.Compact(slots)
}

// BookedSet holds the reserved start times of one doctor on one date.
type BookedSet map[ClockTime]struct{}

func NewBookedSet(times ...ClockTime) BookedSet {
	s := make(BookedSet, len(times))
	for _, t := range times {
		s[t] = struct{}{}
	}
	return s
}

func (s BookedSet) Has(t ClockTime) bool {
	_, ok := s[t]
	return ok
}

func (s BookedSet) Len() int { return len(s) }

// Add reports whether t was newly inserted.
func (s BookedSet) Add(t ClockTime) bool {
	if s.Has(t) {
		return false
	}
	s[t] = struct{}{}
	return true
}

// Remove reports whether t was present.
func (s BookedSet) Remove(t ClockTime) bool {
	if !s.Has(t) {
		return false
	}
	delete(s, t)
	return true
}

func (s BookedSet) Sorted() []ClockTime {
	out := make([]ClockTime, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
