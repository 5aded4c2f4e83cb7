package emr

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO emr_records (id, patient_id, doctor_id, appointment_id, file_url, file_type, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at
	`, rec.ID, rec.PatientID, rec.DoctorID, rec.AppointmentID, rec.FileURL, rec.FileType, rec.Notes).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert emr record: %w", err)
	}
	return nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, doctor_id, appointment_id, file_url, file_type, notes, created_at
		FROM emr_records
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.PatientID, &rec.DoctorID, &rec.AppointmentID,
			&rec.FileURL, &rec.FileType, &rec.Notes, &rec.CreatedAt)
		return rec, err
	})
}
