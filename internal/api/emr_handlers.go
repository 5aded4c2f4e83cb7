package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/clinicslot/clinicslot/internal/emr"
)

func attachRecordHandler(svc *emr.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := principal(w, r)
		if !ok {
			return
		}

		var req AttachRecordRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
			return
		}

		attach := emr.AttachRequest{
			PatientID: patientID,
			FileURL:   req.FileURL,
			FileType:  req.FileType,
			Notes:     req.Notes,
		}
		if req.AppointmentID != nil && *req.AppointmentID != "" {
			apptID, err := uuid.Parse(*req.AppointmentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
				return
			}
			attach.AppointmentID = &apptID
		}

		rec, err := svc.Attach(r.Context(), actor, attach)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toRecordResponse(rec))
	}
}

func listRecordsHandler(svc *emr.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := principal(w, r)
		if !ok {
			return
		}

		patientID := actor.ID
		if raw := r.URL.Query().Get("user_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
				return
			}
			patientID = id
		}

		records, err := svc.ListForPatient(r.Context(), actor, patientID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := RecordListResponse{Records: make([]RecordResponse, 0, len(records))}
		for i := range records {
			resp.Records = append(resp.Records, toRecordResponse(&records[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
