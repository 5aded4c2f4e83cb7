package schedule

import "errors"

var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrMalformedSchedule = errors.New("malformed schedule")
	ErrClosedThatDay     = errors.New("doctor is not available that day")
	ErrOutsideHours      = errors.New("requested time is outside the doctor's available hours")
	ErrAlreadyBooked     = errors.New("time slot is already booked")
	ErrCapacityReached   = errors.New("doctor has reached the maximum number of appointments for the day")
)
