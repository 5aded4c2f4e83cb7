package api

import (
	"fmt"
	"net/http"

	"github.com/clinicslot/clinicslot/internal/appointment"
)

func doctorAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := principal(w, r)
		if !ok {
			return
		}
		limit, offset, ok := pageParams(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		appts, err := svc.ListDoctorAppointments(r.Context(), actor, q.Get("date"), q.Get("status"), limit, offset)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentList(appts))
	}
}

func activePatientsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := principal(w, r)
		if !ok {
			return
		}

		patients, err := svc.ActivePatients(r.Context(), actor)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := ActivePatientsResponse{Patients: make([]PatientResponse, 0, len(patients))}
		for _, p := range patients {
			resp.Patients = append(resp.Patients, PatientResponse{ID: p.ID, Name: p.Name, Email: p.Email})
		}
		resp.Count = len(resp.Patients)

		writeJSON(w, http.StatusOK, resp)
	}
}

func updateScheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := principal(w, r)
		if !ok {
			return
		}

		var raw map[string][]string
		if err := decodeJSON(r, &raw); err != nil {
			writeError(w, http.StatusBadRequest, "malformed_schedule", "body must map weekday names to lists of \"HH:MM-HH:MM\" strings")
			return
		}

		tmpl, err := svc.UpdateSchedule(r.Context(), actor, raw)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, ScheduleResponse{
			Message:              "Availability schedule updated successfully",
			AvailabilitySchedule: tmpl.Raw(),
		})
	}
}

func slotDurationHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := principal(w, r)
		if !ok {
			return
		}

		var req SlotDurationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctor, err := svc.UpdateSlotDuration(r.Context(), actor, req.Duration)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, DoctorSettingsResponse{
			Message:             fmt.Sprintf("Appointment slot duration updated to %d minutes", doctor.Settings.SlotDurationMinutes),
			SlotDurationMinutes: doctor.Settings.SlotDurationMinutes,
			MaxPatientsPerDay:   doctor.Settings.MaxPatientsPerDay,
		})
	}
}

func maxPatientsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := principal(w, r)
		if !ok {
			return
		}

		var req MaxPatientsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctor, err := svc.UpdateMaxPatients(r.Context(), actor, req.MaxPatients)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, DoctorSettingsResponse{
			Message:             fmt.Sprintf("Maximum patients per day updated to %d", doctor.Settings.MaxPatientsPerDay),
			SlotDurationMinutes: doctor.Settings.SlotDurationMinutes,
			MaxPatientsPerDay:   doctor.Settings.MaxPatientsPerDay,
		})
	}
}
