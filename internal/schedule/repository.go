package schedule

import (
	"context"
	"time"

	"github.com/hackgods/provider-slot-booking/internal/apperr"
)

var (
	ErrDuplicateSchedule = apperr.New(apperr.ErrConflict, "schedule already exists for this provider and date")
	ErrScheduleNotFound  = apperr.New(apperr.ErrNotFound, "schedule not found")
	ErrSlotNotFound      = apperr.New(apperr.ErrNotFound, "slot not found in schedule")
)

// Repository persists provider calendars. Dates are civil days; only the
// year, month and day of the passed time are significant.
type Repository interface {
	CreateCalendar(ctx context.Context, cal Calendar) (*Calendar, error)
	GetCalendar(ctx context.Context, providerID int64, date time.Time) (*Calendar, error)
	ListCalendarsFrom(ctx context.Context, providerID int64, from time.Time) ([]Calendar, error)

	// CompareAndSetSlot writes available to key in a single atomic step.
	// When expected is non-nil the write only happens if the stored flag
	// equals *expected. It reports whether the write was applied.
	CompareAndSetSlot(ctx context.Context, providerID int64, date time.Time, key string, expected *bool, available bool) (bool, error)
}
