package appointment

import (
	"context"

	"github.com/hackgods/provider-slot-booking/internal/apperr"
)

var (
	ErrAppointmentNotFound = apperr.New(apperr.ErrNotFound, "appointment not found")
	ErrInvalidState        = apperr.New(apperr.ErrInvalidState, "invalid appointment status transition")
)

// Repository contains all storage interactions needed by the service.
type Repository interface {
	CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)

	// GetAppointmentForUpdate reads id and holds its row lock until the
	// surrounding transaction ends. Writers that committed in the meantime
	// are visible.
	GetAppointmentForUpdate(ctx context.Context, id int64) (*Appointment, error)

	// UpdateAppointmentStatus moves id from one status to another. It fails
	// with ErrInvalidState when the stored status is no longer from.
	UpdateAppointmentStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error)

	// ListAppointments returns matches ordered by appointment time, then id.
	ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// TxManager runs fn in a single storage transaction carried by ctx.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
