package emr

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicslot/clinicslot/internal/appointment"
)

// Record points at a medical file held by an external media host.
type Record struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	AppointmentID *uuid.UUID
	FileURL       string
	FileType      string
	Notes         string
	CreatedAt     time.Time
}

type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	// ListByPatient returns a patient's records, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Record, error)
}

// Relations answers care-relationship questions. Both appointment
// repositories satisfy it.
type Relations interface {
	IsActivePatient(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}
