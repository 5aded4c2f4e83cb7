package schedule

import "fmt"

// Reason explains why a time cannot be booked. The empty Reason means bookable.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonClosedThatDay   Reason = "closed_that_day"
	ReasonOutsideHours    Reason = "outside_hours"
	ReasonAlreadyBooked   Reason = "already_booked"
	ReasonCapacityReached Reason = "capacity_reached"
)

// DayView is everything the evaluator needs about one doctor on one date.
type DayView struct {
	Date     Date
	Template WeeklyTemplate
	Settings Settings
	Booked   BookedSet
}

func (v DayView) Weekday() Weekday { return v.Date.Weekday() }

func (v DayView) day() DayTemplate { return v.Template.Day(v.Weekday()) }

// Closed reports whether the doctor has no windows on the view's weekday.
func (v DayView) Closed() bool { return v.day().IsEmpty() }

// Full reports whether the daily cap has been reached, regardless of which
// times are taken.
func (v DayView) Full() bool { return v.Booked.Len() >= v.Settings.MaxPatientsPerDay }

// Verdict is the outcome of evaluating one requested time.
type Verdict struct {
	Date        Date
	Weekday     Weekday
	Time        ClockTime
	Reason      Reason
	MaxPatients int
}

func (v Verdict) Bookable() bool { return v.Reason == ReasonNone }

// Err converts a negative verdict into the matching sentinel, wrapped with a
// message fit for the caller.
func (v Verdict) Err() error {
	switch v.Reason {
	case ReasonNone:
		return nil
	case ReasonClosedThatDay:
		return fmt.Errorf("%w: doctor is not available on %s", ErrClosedThatDay, v.Weekday.Title())
	case ReasonOutsideHours:
		return fmt.Errorf("%w: %s on %s", ErrOutsideHours, v.Time, v.Weekday.Title())
	case ReasonAlreadyBooked:
		return fmt.Errorf("%w: %s on %s", ErrAlreadyBooked, v.Time, v.Date)
	case ReasonCapacityReached:
		return fmt.Errorf("%w: limit of %d reached on %s", ErrCapacityReached, v.MaxPatients, v.Date)
	default:
		return fmt.Errorf("unknown availability reason %q", v.Reason)
	}
}

// Evaluate decides whether t can be booked. Checks run in order and stop at the
// first failure: day closed, no window contains t, t taken, daily cap reached.
func Evaluate(view DayView, t ClockTime) Verdict {
	v := Verdict{
		Date:        view.Date,
		Weekday:     view.Weekday(),
		Time:        t,
		MaxPatients: view.Settings.MaxPatientsPerDay,
	}
	day := view.day()
	switch {
	case day.IsEmpty():
		v.Reason = ReasonClosedThatDay
	case !day.Contains(t):
		v.Reason = ReasonOutsideHours
	case view.Booked.Has(t):
		v.Reason = ReasonAlreadyBooked
	case view.Full():
		v.Reason = ReasonCapacityReached
	}
	return v
}

// AvailableSlots lists the free slot starts of the day. Once the daily cap is
// reached the list is empty even if some template slots are still untaken.
func AvailableSlots(view DayView) []ClockTime {
	out := []ClockTime{}
	if view.Closed() || view.Full() {
		return out
	}
	for _, t := range ExpandSlots(view.day(), view.Settings.SlotDurationMinutes) {
		if !view.Booked.Has(t) {
			out = append(out, t)
		}
	}
	return out
}
