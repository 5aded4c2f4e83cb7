package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicslot/clinicslot/internal/appointment"
	"github.com/clinicslot/clinicslot/internal/emr"
	"github.com/clinicslot/clinicslot/internal/schedule"
)

type BookAppointmentRequest struct {
	DoctorID        string `json:"doctor_id"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	Reason          string `json:"reason"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type SlotDurationRequest struct {
	Duration int `json:"duration"`
}

type MaxPatientsRequest struct {
	MaxPatients int `json:"max_patients"`
}

type AttachRecordRequest struct {
	UserID        string  `json:"user_id"`
	AppointmentID *string `json:"appointment_id,omitempty"`
	FileURL       string  `json:"file_url"`
	FileType      string  `json:"file_type,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentTime string    `json:"appointment_time"`
	Reason          string    `json:"reason"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		AppointmentDate: a.Date.String(),
		AppointmentTime: a.Time.String(),
		Reason:          a.Reason,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}

func toAppointmentList(appts []appointment.Appointment) AppointmentListResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return AppointmentListResponse{Appointments: out, Count: len(out)}
}

type AvailableSlotsResponse struct {
	DoctorID       uuid.UUID `json:"doctor_id"`
	DoctorName     string    `json:"doctor_name"`
	Specialization *string   `json:"specialization,omitempty"`
	Date           string    `json:"date"`
	Day            string    `json:"day"`
	AvailableSlots []string  `json:"available_slots"`
	Message        string    `json:"message,omitempty"`
}

func toAvailableSlots(l *appointment.SlotListing) AvailableSlotsResponse {
	return AvailableSlotsResponse{
		DoctorID:       l.DoctorID,
		DoctorName:     l.DoctorName,
		Specialization: l.Specialization,
		Date:           l.Date.String(),
		Day:            l.Day.Title(),
		AvailableSlots: schedule.FormatClockTimes(l.Slots),
		Message:        l.Message,
	}
}

type ScheduleResponse struct {
	Message              string              `json:"message"`
	AvailabilitySchedule map[string][]string `json:"availability_schedule"`
}

type DoctorSettingsResponse struct {
	Message             string `json:"message"`
	SlotDurationMinutes int    `json:"slot_duration_minutes"`
	MaxPatientsPerDay   int    `json:"max_patients_per_day"`
}

type PatientResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email,omitempty"`
}

type ActivePatientsResponse struct {
	Patients []PatientResponse `json:"patients"`
	Count    int               `json:"count"`
}

type RecordResponse struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"user_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	FileURL       string     `json:"file_url"`
	FileType      string     `json:"file_type"`
	Notes         string     `json:"notes"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toRecordResponse(rec *emr.Record) RecordResponse {
	return RecordResponse{
		ID:            rec.ID,
		PatientID:     rec.PatientID,
		DoctorID:      rec.DoctorID,
		AppointmentID: rec.AppointmentID,
		FileURL:       rec.FileURL,
		FileType:      rec.FileType,
		Notes:         rec.Notes,
		CreatedAt:     rec.CreatedAt,
	}
}

type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
