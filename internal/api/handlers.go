package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/provider-slot-booking/internal/appointment"
	"github.com/hackgods/provider-slot-booking/internal/schedule"
)

func toAppointmentResponse(a *appointment.Appointment, loc *time.Location, msg string) AppointmentResponse {
	createdAt := a.CreatedAt
	updatedAt := a.UpdatedAt
	return AppointmentResponse{
		ID:                  a.ID,
		PatientID:           a.PatientID,
		ProviderID:          a.ProviderID,
		Status:              string(a.Status),
		AppointmentDateTime: a.AppointmentDateTime.In(loc).Format(LocalDateTimeLayout),
		CreatedAt:           &createdAt,
		UpdatedAt:           &updatedAt,
		Message:             msg,
	}
}

func toAppointmentList(list []appointment.Appointment, loc *time.Location) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i], loc, ""))
	}
	return out
}

// writeAppointmentFailure answers a failed create or transition with the
// echoed request fields and an errorMessage.
func writeAppointmentFailure(w http.ResponseWriter, err error, echo AppointmentResponse) {
	status, code := errorStatus(err)
	echo.Error = code
	echo.ErrorMessage = publicMessage(err, status)
	echo.Message = ""
	writeJSON(w, status, echo)
}

func createScheduleHandler(svc *schedule.Service, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScheduleRequest
		if err := decodeAndValidate(r, v, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		date, err := time.ParseInLocation(schedule.DateLayout, req.ScheduleDate, svc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_date", "scheduleDate must be YYYY-MM-DD")
			return
		}

		cal, err := svc.CreateSchedule(r.Context(), req.ProviderID, date, req.Slots)
		if err != nil {
			status, code := errorStatus(err)
			writeJSON(w, status, ScheduleResponse{
				ProviderID:   req.ProviderID,
				ScheduleDate: req.ScheduleDate,
				Error:        code,
				ErrorMessage: publicMessage(err, status),
			})
			return
		}

		writeJSON(w, http.StatusCreated, ScheduleResponse{
			ID:           cal.ID,
			ProviderID:   cal.ProviderID,
			ScheduleDate: cal.ScheduleDate.Format(schedule.DateLayout),
			Slots:        cal.Slots,
			Message:      "Schedule created successfully",
		})
	}
}

func availableSlotsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := pathID(r, "providerId")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", err.Error())
			return
		}

		slots, err := svc.GetAvailableSlots(r.Context(), providerID)
		if err != nil {
			status, code := errorStatus(err)
			writeError(w, status, code, publicMessage(err, status))
			return
		}

		resp := make([]AvailableSlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, AvailableSlotResponse{
				SlotTime:  s.SlotTime.In(svc.Location()).Format(LocalDateTimeLayout),
				Available: s.Available,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createAppointmentHandler(svc *appointment.Service, v *validator.Validate, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeAndValidate(r, v, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		at, err := parseDateTime(req.AppointmentDateTime, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_date_time", err.Error())
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), req.PatientID, req.ProviderID, at)
		if err != nil {
			writeAppointmentFailure(w, err, AppointmentResponse{
				PatientID:           req.PatientID,
				ProviderID:          req.ProviderID,
				AppointmentDateTime: at.Format(LocalDateTimeLayout),
			})
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, loc, "Appointment requested successfully"))
	}
}

func updateStatusHandler(svc *appointment.Service, v *validator.Validate, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "appointmentId")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", err.Error())
			return
		}
		providerID, err := pathID(r, "providerId")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", err.Error())
			return
		}

		var req UpdateStatusRequest
		if err := decodeAndValidate(r, v, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		action := appointment.Action(req.Action)
		appt, err := svc.Apply(r.Context(), id, providerID, action)
		if err != nil {
			writeAppointmentFailure(w, err, AppointmentResponse{ID: id, ProviderID: providerID})
			return
		}

		msg := "Appointment confirmed successfully"
		if action == appointment.ActionReject {
			msg = "Appointment rejected successfully"
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, loc, msg))
	}
}

func cancelAppointmentHandler(svc *appointment.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "appointmentId")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", err.Error())
			return
		}
		patientID, err := pathID(r, "patientId")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", err.Error())
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), id, patientID)
		if err != nil {
			writeAppointmentFailure(w, err, AppointmentResponse{ID: id, PatientID: patientID})
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, loc, "Appointment cancelled successfully"))
	}
}

func getAppointmentHandler(svc *appointment.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "appointmentId")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", err.Error())
			return
		}

		appt, err := svc.GetAppointmentByID(r.Context(), id)
		if err != nil {
			status, code := errorStatus(err)
			writeError(w, status, code, publicMessage(err, status))
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, loc, ""))
	}
}

type listFunc func(svc *appointment.Service, r *http.Request, id int64) ([]appointment.Appointment, error)

func listAppointmentsHandler(svc *appointment.Service, loc *time.Location, param string, list listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, param)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+param, err.Error())
			return
		}

		appts, err := list(svc, r, id)
		if err != nil {
			status, code := errorStatus(err)
			writeError(w, status, code, publicMessage(err, status))
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentList(appts, loc))
	}
}

func byPatient(svc *appointment.Service, r *http.Request, id int64) ([]appointment.Appointment, error) {
	return svc.GetPatientAppointments(r.Context(), id)
}

func byProvider(svc *appointment.Service, r *http.Request, id int64) ([]appointment.Appointment, error) {
	return svc.GetProviderAppointments(r.Context(), id)
}

func requestedByProvider(svc *appointment.Service, r *http.Request, id int64) ([]appointment.Appointment, error) {
	return svc.GetProviderRequestedAppointments(r.Context(), id)
}
