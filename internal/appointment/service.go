package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicslot/clinicslot/internal/auth"
	redisclient "github.com/clinicslot/clinicslot/internal/redis"
	"github.com/clinicslot/clinicslot/internal/schedule"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventScheduleUpdated      = "SCHEDULE_UPDATED"
	EventSlotReleased         = "SLOT_RELEASED"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var (
	ErrDoctorUnverified  = errors.New("doctor is not verified")
	ErrForbidden         = errors.New("not allowed for this principal")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSlotBusy means another request holds the slot lock. It is a SlotConflict.
	ErrSlotBusy = fmt.Errorf("%w: slot is currently being booked, please retry", ErrSlotConflict)
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = redisclient.NopLocker{}
	}
	return &Service{
		repo:   repo,
		locker: locker,
		log:    logger.With().Str("component", "appointment").Logger(),
	}
}

// BookRequest carries the caller's wire values; Book parses them.
type BookRequest struct {
	DoctorID uuid.UUID
	Date     string
	Time     string
	Reason   string
}

// Book reserves a slot for the calling patient. The availability check runs
// against a fresh booked set, and the store's conditional reserve decides any
// race that slips past it.
func (s *Service) Book(ctx context.Context, actor auth.Principal, req BookRequest) (*Appointment, error) {
	if !actor.IsPatient() {
		return nil, fmt.Errorf("%w: only patients can book appointments", ErrForbidden)
	}

	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	at, err := schedule.ParseClockTime(req.Time)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", schedule.ErrMalformedInput)
	}

	if _, err := s.repo.GetPatient(ctx, actor.ID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.repo.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.VerifiedByAdmin {
		return nil, ErrDoctorUnverified
	}

	var created *Appointment
	lockKey := fmt.Sprintf("%s:%s:%s", doctor.ID, date, at)

	err = s.locker.WithSlotLock(ctx, lockKey, func(lockCtx context.Context) error {
		booked, err := s.repo.GetBookedSlots(lockCtx, doctor.ID, date)
		if err != nil {
			return fmt.Errorf("load booked slots: %w", err)
		}

		if verdict := schedule.Evaluate(doctor.DayView(date, booked), at); !verdict.Bookable() {
			return verdict.Err()
		}

		appt, err := s.repo.ConditionalReserve(lockCtx, &Appointment{
			ID:        uuid.New(),
			PatientID: actor.ID,
			DoctorID:  doctor.ID,
			Date:      date,
			Time:      at,
			Reason:    reason,
			Status:    StatusScheduled,
		})
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"date":       created.Date.String(),
		"time":       created.Time.String(),
	})

	return created, nil
}

// UpdateStatus moves an appointment along scheduled -> completed|cancelled.
// Either the owning patient or the assigned doctor may do so.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Principal, id uuid.UUID, status string) (*Appointment, error) {
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	appt, err := s.GetAppointment(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if appt.Status == to {
		return appt, nil
	}
	if appt.Status.Terminal() {
		return nil, fmt.Errorf("%w: appointment is already %s", ErrInvalidTransition, appt.Status)
	}

	updated, err := s.repo.TransitionAppointment(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	event := EventAppointmentCompleted
	if to == StatusCancelled {
		event = EventAppointmentCancelled
	}
	s.logEvent(ctx, updated.ID, event, map[string]any{
		"from":  string(appt.Status),
		"to":    string(to),
		"actor": actor.ID.String(),
	})

	return updated, nil
}

// GetAppointment loads an appointment visible to actor.
func (s *Service) GetAppointment(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	switch {
	case actor.IsPatient() && appt.PatientID == actor.ID:
	case actor.IsDoctor() && appt.DoctorID == actor.ID:
	default:
		return nil, fmt.Errorf("%w: appointment belongs to someone else", ErrForbidden)
	}
	return appt, nil
}

// UpdateSchedule replaces the calling doctor's weekly template wholesale and
// returns what was stored.
func (s *Service) UpdateSchedule(ctx context.Context, actor auth.Principal, raw map[string][]string) (schedule.WeeklyTemplate, error) {
	if err := s.requireDoctor(ctx, actor); err != nil {
		return schedule.WeeklyTemplate{}, err
	}

	tmpl, err := schedule.NewWeeklyTemplate(raw)
	if err != nil {
		return schedule.WeeklyTemplate{}, err
	}

	doctor, err := s.repo.SetWeeklyTemplate(ctx, actor.ID, tmpl)
	if err != nil {
		return schedule.WeeklyTemplate{}, fmt.Errorf("store weekly template: %w", err)
	}

	s.logEvent(ctx, uuid.Nil, EventScheduleUpdated, map[string]any{
		"doctor_id": actor.ID.String(),
		"template":  doctor.Template.Raw(),
	})
	return doctor.Template, nil
}

func (s *Service) UpdateSlotDuration(ctx context.Context, actor auth.Principal, minutes int) (*Doctor, error) {
	if err := s.requireDoctor(ctx, actor); err != nil {
		return nil, err
	}
	if err := schedule.ValidateSlotDuration(minutes); err != nil {
		return nil, err
	}

	doctor, err := s.repo.SetSlotDuration(ctx, actor.ID, minutes)
	if err != nil {
		return nil, fmt.Errorf("store slot duration: %w", err)
	}
	s.logEvent(ctx, uuid.Nil, EventScheduleUpdated, map[string]any{
		"doctor_id":             actor.ID.String(),
		"slot_duration_minutes": minutes,
	})
	return doctor, nil
}

func (s *Service) UpdateMaxPatients(ctx context.Context, actor auth.Principal, n int) (*Doctor, error) {
	if err := s.requireDoctor(ctx, actor); err != nil {
		return nil, err
	}
	if err := schedule.ValidateMaxPatients(n); err != nil {
		return nil, err
	}

	doctor, err := s.repo.SetMaxPatients(ctx, actor.ID, n)
	if err != nil {
		return nil, fmt.Errorf("store max patients: %w", err)
	}
	s.logEvent(ctx, uuid.Nil, EventScheduleUpdated, map[string]any{
		"doctor_id":            actor.ID.String(),
		"max_patients_per_day": n,
	})
	return doctor, nil
}

// SlotListing is the bookable view of one doctor's day.
type SlotListing struct {
	DoctorID       uuid.UUID
	DoctorName     string
	Specialization *string
	Date           schedule.Date
	Day            schedule.Weekday
	Slots          []schedule.ClockTime
	Message        string
}

// ListSlots returns the free slot starts of a doctor on a date. Empty listings
// carry a message saying why.
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, date string) (*SlotListing, error) {
	d, err := schedule.ParseDate(date)
	if err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	booked, err := s.repo.GetBookedSlots(ctx, doctor.ID, d)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}

	view := doctor.DayView(d, booked)
	listing := &SlotListing{
		DoctorID:       doctor.ID,
		DoctorName:     doctor.Name,
		Specialization: doctor.Specialization,
		Date:           d,
		Day:            view.Weekday(),
		Slots:          schedule.AvailableSlots(view),
	}

	switch {
	case view.Closed():
		listing.Message = fmt.Sprintf("Doctor is not available on %s", view.Weekday().Title())
	case view.Full():
		listing.Message = fmt.Sprintf("Maximum patients limit (%d) reached for this day", doctor.Settings.MaxPatientsPerDay)
	case len(listing.Slots) == 0:
		listing.Message = "All slots are booked for this day"
	}
	return listing, nil
}

func (s *Service) ListPatientAppointments(ctx context.Context, actor auth.Principal, status string, limit, offset int) ([]Appointment, error) {
	if !actor.IsPatient() {
		return nil, fmt.Errorf("%w: only patients have appointment lists", ErrForbidden)
	}

	f := ListFilter{PatientID: &actor.ID}
	if err := applyStatusFilter(&f, status); err != nil {
		return nil, err
	}
	f.Limit, f.Offset = clampPage(limit, offset)

	appointments, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

func (s *Service) ListDoctorAppointments(ctx context.Context, actor auth.Principal, date, status string, limit, offset int) ([]Appointment, error) {
	if err := s.requireDoctor(ctx, actor); err != nil {
		return nil, err
	}

	f := ListFilter{DoctorID: &actor.ID}
	if date != "" {
		d, err := schedule.ParseDate(date)
		if err != nil {
			return nil, err
		}
		f.Date = &d
	}
	if err := applyStatusFilter(&f, status); err != nil {
		return nil, err
	}
	f.Limit, f.Offset = clampPage(limit, offset)

	appointments, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}

func (s *Service) ActivePatients(ctx context.Context, actor auth.Principal) ([]Patient, error) {
	if err := s.requireDoctor(ctx, actor); err != nil {
		return nil, err
	}
	patients, err := s.repo.ListActivePatients(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list active patients: %w", err)
	}
	return patients, nil
}

// ReconcileBookedSlots releases booked-set entries in [from, to] that no
// scheduled appointment backs. It returns how many were released.
func (s *Service) ReconcileBookedSlots(ctx context.Context, from, to schedule.Date) (int, error) {
	orphans, err := s.repo.FindOrphanedSlots(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("find orphaned slots: %w", err)
	}

	released := 0
	for _, slot := range orphans {
		ok, err := s.repo.ReleaseSlot(ctx, slot.DoctorID, slot.Date, slot.Time)
		if err != nil {
			s.log.Error().Err(err).
				Str("doctor_id", slot.DoctorID.String()).
				Str("date", slot.Date.String()).
				Str("time", slot.Time.String()).
				Msg("failed to release orphaned slot")
			continue
		}
		if !ok {
			continue
		}
		released++

		var apptID uuid.UUID
		if slot.AppointmentID != nil {
			apptID = *slot.AppointmentID
		}
		s.logEvent(ctx, apptID, EventSlotReleased, map[string]any{
			"doctor_id": slot.DoctorID.String(),
			"date":      slot.Date.String(),
			"time":      slot.Time.String(),
			"reason":    "reconcile",
		})
	}

	return released, nil
}

func (s *Service) requireDoctor(ctx context.Context, actor auth.Principal) error {
	if !actor.IsDoctor() {
		return fmt.Errorf("%w: doctor role required", ErrForbidden)
	}
	if _, err := s.repo.GetDoctor(ctx, actor.ID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return err
		}
		return fmt.Errorf("load doctor: %w", err)
	}
	return nil
}

func applyStatusFilter(f *ListFilter, status string) error {
	if status == "" {
		return nil
	}
	st, err := ParseStatus(status)
	if err != nil {
		return err
	}
	f.Status = &st
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if appointmentID != uuid.Nil {
		apptID := appointmentID
		ev.AppointmentID = &apptID
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
