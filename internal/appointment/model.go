package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicslot/clinicslot/internal/schedule"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func ParseStatus(s string) (AppointmentStatus, error) {
	switch AppointmentStatus(s) {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return AppointmentStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q, must be one of: scheduled, completed, cancelled", ErrInvalidStatus, s)
}

// Terminal statuses never change again.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID              uuid.UUID
	Name            string
	Specialization  *string
	VerifiedByAdmin bool
	Template        schedule.WeeklyTemplate
	Settings        schedule.Settings
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// fillDefaultSettings replaces unset settings with the defaults new doctors start with.
func (d *Doctor) fillDefaultSettings() {
	def := schedule.DefaultSettings()
	if d.Settings.SlotDurationMinutes == 0 {
		d.Settings.SlotDurationMinutes = def.SlotDurationMinutes
	}
	if d.Settings.MaxPatientsPerDay == 0 {
		d.Settings.MaxPatientsPerDay = def.MaxPatientsPerDay
	}
}

// DayView pairs the doctor's schedule with the booked set of one date.
func (d *Doctor) DayView(date schedule.Date, booked schedule.BookedSet) schedule.DayView {
	return schedule.DayView{
		Date:     date,
		Template: d.Template,
		Settings: d.Settings,
		Booked:   booked,
	}
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      schedule.Date
	Time      schedule.ClockTime
	Reason    string
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookedSlot is one entry of a doctor's booked-slot set.
type BookedSlot struct {
	DoctorID      uuid.UUID
	Date          schedule.Date
	Time          schedule.ClockTime
	AppointmentID *uuid.UUID
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter narrows appointment listings. Nil fields are not filtered on.
type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Date      *schedule.Date
	Status    *AppointmentStatus
	Limit     int
	Offset    int
}
