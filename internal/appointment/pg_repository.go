package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicslot/clinicslot/internal/schedule"
)

const pgUniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const (
	doctorColumns      = `id, name, specialization, verified_by_admin, weekly_template, slot_duration_minutes, max_patients_per_day, created_at, updated_at`
	patientColumns     = `id, name, email, created_at, updated_at`
	appointmentColumns = `id, patient_id, doctor_id, appointment_date, appointment_time, reason, status, created_at, updated_at`
)

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialization *string
	var template []byte

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialization,
		&d.VerifiedByAdmin,
		&template,
		&d.Settings.SlotDurationMinutes,
		&d.Settings.MaxPatientsPerDay,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if err := d.Template.UnmarshalJSON(template); err != nil {
		return nil, fmt.Errorf("doctor %s weekly template: %w", d.ID, err)
	}
	d.Specialization = specialization
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	var minute int

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&date,
		&minute,
		&a.Reason,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = schedule.DateOf(date)
	a.Time, err = schedule.ClockTimeFromMinutes(minute)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Interface methods

func (r *PgRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	template, err := d.Template.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode weekly template: %w", err)
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.fillDefaultSettings()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialization, verified_by_admin, weekly_template,
		                     slot_duration_minutes, max_patients_per_day, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`, d.ID, d.Name, d.Specialization, d.VerifiedByAdmin, string(template),
		d.Settings.SlotDurationMinutes, d.Settings.MaxPatientsPerDay)

	return row.Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Email)

	return row.Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetBookedSlots(ctx context.Context, doctorID uuid.UUID, date schedule.Date) (schedule.BookedSet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT slot_time
		FROM booked_slots
		WHERE doctor_id = $1 AND slot_date = $2
	`, doctorID, date.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := schedule.NewBookedSet()
	for rows.Next() {
		var minute int
		if err := rows.Scan(&minute); err != nil {
			return nil, err
		}
		t, err := schedule.ClockTimeFromMinutes(minute)
		if err != nil {
			return nil, err
		}
		set.Add(t)
	}

	return set, rows.Err()
}

func (r *PgRepository) ConditionalReserve(ctx context.Context, a *Appointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Serialises reservations per doctor so the day count below stays accurate.
	var maxPatients int
	err = tx.QueryRow(ctx, `
		SELECT max_patients_per_day FROM doctors WHERE id = $1 FOR UPDATE
	`, a.DoctorID).Scan(&maxPatients)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("lock doctor: %w", err)
	}

	var booked int
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM booked_slots WHERE doctor_id = $1 AND slot_date = $2
	`, a.DoctorID, a.Date.Time()).Scan(&booked); err != nil {
		return nil, fmt.Errorf("count booked slots: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO booked_slots (doctor_id, slot_date, slot_time, appointment_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (doctor_id, slot_date, slot_time) DO NOTHING
	`, a.DoctorID, a.Date.Time(), a.Time.Minutes(), a.ID)
	if err != nil {
		return nil, fmt.Errorf("add booked slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrSlotConflict
	}
	if booked >= maxPatients {
		return nil, fmt.Errorf("%w: limit of %d reached on %s", schedule.ErrCapacityReached, maxPatients, a.Date)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.DoctorID, a.Date.Time(), a.Time.Minutes(), a.Reason, StatusScheduled)
	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO patient_appointments (patient_id, appointment_id, added_at)
		VALUES ($1, $2, now())
	`, a.PatientID, a.ID); err != nil {
		return nil, fmt.Errorf("append patient appointment: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO doctor_active_patients (doctor_id, patient_id, since)
		VALUES ($1, $2, now())
		ON CONFLICT (doctor_id, patient_id) DO NOTHING
	`, a.DoctorID, a.PatientID); err != nil {
		return nil, fmt.Errorf("add active patient: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	return created, nil
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, doctorID uuid.UUID, date schedule.Date, t schedule.ClockTime) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM booked_slots
		WHERE doctor_id = $1 AND slot_date = $2 AND slot_time = $3
	`, doctorID, date.Time(), t.Minutes())
	if err != nil {
		return false, fmt.Errorf("release slot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) SetWeeklyTemplate(ctx context.Context, doctorID uuid.UUID, tmpl schedule.WeeklyTemplate) (*Doctor, error) {
	data, err := tmpl.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode weekly template: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET weekly_template = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+doctorColumns, doctorID, string(data))
	return scanDoctor(row)
}

func (r *PgRepository) SetSlotDuration(ctx context.Context, doctorID uuid.UUID, minutes int) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET slot_duration_minutes = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+doctorColumns, doctorID, minutes)
	return scanDoctor(row)
}

func (r *PgRepository) SetMaxPatients(ctx context.Context, doctorID uuid.UUID, n int) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET max_patients_per_day = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+doctorColumns, doctorID, n)
	return scanDoctor(row)
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) TransitionAppointment(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, to, from)
	updated, err := scanAppointment(row)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("update appointment status: %w", err)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrStaleStatus
		}
		return nil, ErrAppointmentNotFound
	}

	if from == StatusScheduled && to == StatusCancelled {
		if _, err := tx.Exec(ctx, `
			DELETE FROM booked_slots
			WHERE doctor_id = $1 AND slot_date = $2 AND slot_time = $3
		`, updated.DoctorID, updated.Date.Time(), updated.Time.Minutes()); err != nil {
			return nil, fmt.Errorf("release slot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status change: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.PatientID != nil {
		add("id IN (SELECT appointment_id FROM patient_appointments WHERE patient_id = $%d)", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.Date != nil {
		add("appointment_date = $%d", f.Date.Time())
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}

	q := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY appointment_date, appointment_time, created_at LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListActivePatients(ctx context.Context, doctorID uuid.UUID) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.email, p.created_at, p.updated_at
		FROM doctor_active_patients dap
		JOIN patients p ON p.id = dap.patient_id
		WHERE dap.doctor_id = $1
		ORDER BY dap.since
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	return result, rows.Err()
}

func (r *PgRepository) IsActivePatient(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM doctor_active_patients WHERE doctor_id = $1 AND patient_id = $2)
	`, doctorID, patientID).Scan(&ok)
	return ok, err
}

func (r *PgRepository) FindOrphanedSlots(ctx context.Context, from, to schedule.Date) ([]BookedSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.doctor_id, b.slot_date, b.slot_time, b.appointment_id
		FROM booked_slots b
		WHERE b.slot_date BETWEEN $1 AND $2
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.doctor_id = b.doctor_id
			  AND a.appointment_date = b.slot_date
			  AND a.appointment_time = b.slot_time
			  AND a.status = 'scheduled'
		  )
		ORDER BY b.slot_date, b.doctor_id, b.slot_time
	`, from.Time(), to.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BookedSlot
	for rows.Next() {
		var s BookedSlot
		var date time.Time
		var minute int
		if err := rows.Scan(&s.DoctorID, &date, &minute, &s.AppointmentID); err != nil {
			return nil, err
		}
		s.Date = schedule.DateOf(date)
		if s.Time, err = schedule.ClockTimeFromMinutes(minute); err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, nullableJSON(ev.Payload), nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableJSON(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	return &s
}
