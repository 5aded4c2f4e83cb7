package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clinicslot/clinicslot/internal/schedule"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotConflict is returned when the reservation lost a race for the slot.
	ErrSlotConflict = errors.New("slot was reserved by another booking")
	// ErrStaleStatus is returned by TransitionAppointment when the stored status
	// no longer matches the expected one.
	ErrStaleStatus = errors.New("appointment status changed concurrently")
)

// Repository is the schedule store. It is the only shared mutable state; every
// cross-request guarantee comes from its conditional writes.
type Repository interface {
	CreateDoctor(ctx context.Context, d *Doctor) error
	CreatePatient(ctx context.Context, p *Patient) error

	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetBookedSlots(ctx context.Context, doctorID uuid.UUID, date schedule.Date) (schedule.BookedSet, error)

	// ConditionalReserve stores a and adds its time to the doctor's booked set as
	// one unit. It fails with ErrSlotConflict when the time is already in the set
	// and with schedule.ErrCapacityReached when the day is full; neither leaves a
	// trace. On success the patient's appointment list and the doctor's
	// active-patient set are updated too.
	ConditionalReserve(ctx context.Context, a *Appointment) (*Appointment, error)
	// ReleaseSlot removes a time from the booked set and reports whether it was there.
	ReleaseSlot(ctx context.Context, doctorID uuid.UUID, date schedule.Date, t schedule.ClockTime) (bool, error)

	SetWeeklyTemplate(ctx context.Context, doctorID uuid.UUID, tmpl schedule.WeeklyTemplate) (*Doctor, error)
	SetSlotDuration(ctx context.Context, doctorID uuid.UUID, minutes int) (*Doctor, error)
	SetMaxPatients(ctx context.Context, doctorID uuid.UUID, n int) (*Doctor, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// TransitionAppointment moves an appointment from one status to another only
	// if it is still in from. Leaving scheduled for cancelled releases the booked
	// time in the same unit.
	TransitionAppointment(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	ListActivePatients(ctx context.Context, doctorID uuid.UUID) ([]Patient, error)
	IsActivePatient(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)

	// FindOrphanedSlots lists booked-set entries in [from, to] that have no
	// scheduled appointment behind them.
	FindOrphanedSlots(ctx context.Context, from, to schedule.Date) ([]BookedSlot, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
