package emr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicslot/clinicslot/internal/appointment"
	"github.com/clinicslot/clinicslot/internal/auth"
	"github.com/clinicslot/clinicslot/internal/schedule"
)

type Service struct {
	records   Repository
	relations Relations
	log       zerolog.Logger
}

func NewService(records Repository, relations Relations, logger zerolog.Logger) *Service {
	return &Service{
		records:   records,
		relations: relations,
		log:       logger.With().Str("component", "emr").Logger(),
	}
}

type AttachRequest struct {
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID
	FileURL       string
	FileType      string
	Notes         string
}

// Attach records a file the calling doctor uploaded for one of their active
// patients.
func (s *Service) Attach(ctx context.Context, actor auth.Principal, req AttachRequest) (*Record, error) {
	if !actor.IsDoctor() {
		return nil, fmt.Errorf("%w: only doctors can attach records", appointment.ErrForbidden)
	}

	u, err := url.Parse(strings.TrimSpace(req.FileURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: file_url must be an absolute http(s) URL", schedule.ErrMalformedInput)
	}

	if err := s.requireActive(ctx, actor.ID, req.PatientID); err != nil {
		return nil, err
	}
	if req.AppointmentID != nil {
		if err := s.requireOwnAppointment(ctx, actor.ID, req.PatientID, *req.AppointmentID); err != nil {
			return nil, err
		}
	}

	fileType := strings.ToLower(strings.TrimSpace(req.FileType))
	if fileType == "" {
		fileType = strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	}
	if fileType == "" {
		return nil, fmt.Errorf("%w: file_type is required when the URL has no extension", schedule.ErrMalformedInput)
	}

	rec := &Record{
		PatientID:     req.PatientID,
		DoctorID:      actor.ID,
		AppointmentID: req.AppointmentID,
		FileURL:       u.String(),
		FileType:      fileType,
		Notes:         req.Notes,
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("record_id", rec.ID.String()).
		Str("patient_id", rec.PatientID.String()).
		Str("doctor_id", rec.DoctorID.String()).
		Msg("emr record attached")
	return rec, nil
}

// ListForPatient returns a patient's records to the patient themselves or to a
// doctor currently treating them.
func (s *Service) ListForPatient(ctx context.Context, actor auth.Principal, patientID uuid.UUID) ([]Record, error) {
	switch {
	case actor.IsPatient():
		if actor.ID != patientID {
			return nil, fmt.Errorf("%w: access denied to another patient's records", appointment.ErrForbidden)
		}
	case actor.IsDoctor():
		if err := s.requireActive(ctx, actor.ID, patientID); err != nil {
			return nil, err
		}
	default:
		return nil, appointment.ErrForbidden
	}

	records, err := s.records.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list emr records: %w", err)
	}
	return records, nil
}

func (s *Service) requireActive(ctx context.Context, doctorID, patientID uuid.UUID) error {
	ok, err := s.relations.IsActivePatient(ctx, doctorID, patientID)
	if err != nil {
		return fmt.Errorf("check active patient: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: patient is not in your active list", appointment.ErrForbidden)
	}
	return nil
}

// requireOwnAppointment checks that a linked appointment is between this
// doctor and this patient.
func (s *Service) requireOwnAppointment(ctx context.Context, doctorID, patientID, appointmentID uuid.UUID) error {
	appt, err := s.relations.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("load linked appointment: %w", err)
	}
	if appt.DoctorID != doctorID || appt.PatientID != patientID {
		return fmt.Errorf("%w: appointment is not between you and this patient", appointment.ErrForbidden)
	}
	return nil
}
