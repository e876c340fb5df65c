package api

import (
	"time"
)

// LocalDateTimeLayout is how date-times are rendered in responses, in the
// service time zone.
const LocalDateTimeLayout = "2006-01-02T15:04:05"

type CreateScheduleRequest struct {
	ProviderID   int64           `json:"providerId" validate:"required,gt=0"`
	ScheduleDate string          `json:"scheduleDate" validate:"required,datetime=2006-01-02"`
	Slots        map[string]bool `json:"slots" validate:"required"`
}

type ScheduleResponse struct {
	ID           int64           `json:"id,omitempty"`
	ProviderID   int64           `json:"providerId"`
	ScheduleDate string          `json:"scheduleDate"`
	Slots        map[string]bool `json:"slots,omitempty"`
	Message      string          `json:"message,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

type AvailableSlotResponse struct {
	SlotTime  string `json:"slotTime"`
	Available bool   `json:"available"`
}

type CreateAppointmentRequest struct {
	PatientID           int64  `json:"patientId" validate:"required,gt=0"`
	ProviderID          int64  `json:"providerId" validate:"required,gt=0"`
	AppointmentDateTime string `json:"appointmentDateTime" validate:"required"`
}

type UpdateStatusRequest struct {
	Action string `json:"action" validate:"required,oneof=CONFIRM REJECT"`
}

type AppointmentResponse struct {
	ID                  int64      `json:"id,omitempty"`
	PatientID           int64      `json:"patientId,omitempty"`
	ProviderID          int64      `json:"providerId,omitempty"`
	Status              string     `json:"status,omitempty"`
	AppointmentDateTime string     `json:"appointmentDateTime,omitempty"`
	CreatedAt           *time.Time `json:"createdAt,omitempty"`
	UpdatedAt           *time.Time `json:"updatedAt,omitempty"`
	Message             string     `json:"message,omitempty"`
	Error               string     `json:"error,omitempty"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
}

type ErrorResponse struct {
	Error        string    `json:"error"`
	ErrorMessage string    `json:"errorMessage"`
	Status       int       `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}
