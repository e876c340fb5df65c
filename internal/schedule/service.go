package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/provider-slot-booking/internal/apperr"
)

var (
	ErrSlotUnavailable = apperr.New(apperr.ErrConflict, "slot is not available")
	ErrInvalidSchedule = apperr.New(apperr.ErrValidation, "invalid schedule")
)

// Service owns every change to slot availability. Nothing else writes
// calendar flags.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	loc    *time.Location
	now    func() time.Time
}

type Option func(*Service)

// WithLocation sets the zone civil dates and time-of-day keys are read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo Repository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logger.With().Str("component", "schedule").Logger(),
		loc:    time.Local,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// CreateSchedule stores a provider's calendar for one day. The slot map is
// kept exactly as given.
func (s *Service) CreateSchedule(ctx context.Context, providerID int64, date time.Time, slots map[string]bool) (*Calendar, error) {
	switch {
	case providerID <= 0:
		return nil, fmt.Errorf("%w: provider id must be positive", ErrInvalidSchedule)
	case date.IsZero():
		return nil, fmt.Errorf("%w: schedule date is required", ErrInvalidSchedule)
	case slots == nil:
		return nil, fmt.Errorf("%w: slots are required", ErrInvalidSchedule)
	}

	cal := Calendar{
		ProviderID:   providerID,
		ScheduleDate: CivilDate(date, s.loc),
		Slots:        slots,
	}
	cal = cal.Clone()

	created, err := s.repo.CreateCalendar(ctx, cal)
	if err != nil {
		if errors.Is(err, ErrDuplicateSchedule) {
			return nil, err
		}
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	s.localize(created)

	s.logger.Info().
		Int64("provider_id", providerID).
		Str("date", created.ScheduleDate.Format(DateLayout)).
		Int("slots", len(created.Slots)).
		Msg("schedule created")

	return created, nil
}

func (s *Service) GetSchedule(ctx context.Context, providerID int64, date time.Time) (*Calendar, error) {
	cal, err := s.repo.GetCalendar(ctx, providerID, CivilDate(date, s.loc))
	if err != nil {
		return nil, err
	}
	s.localize(cal)
	return cal, nil
}

// GetAvailableSlots lists the provider's open future slots in ascending
// order. Keys that cannot be resolved are skipped.
func (s *Service) GetAvailableSlots(ctx context.Context, providerID int64) ([]AvailableSlot, error) {
	now := s.now().In(s.loc)

	cals, err := s.repo.ListCalendarsFrom(ctx, providerID, CivilDate(now, s.loc))
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}

	result := []AvailableSlot{}
	for i := range cals {
		cal := &cals[i]
		s.localize(cal)

		for key, available := range cal.Slots {
			slotTime, err := ResolveSlotKey(cal.ScheduleDate, key)
			if err != nil {
				s.logger.Warn().
					Err(err).
					Int64("provider_id", providerID).
					Str("date", cal.ScheduleDate.Format(DateLayout)).
					Msg("skipping unparseable slot key")
				continue
			}
			if !available || !slotTime.After(now) {
				continue
			}
			result = append(result, AvailableSlot{SlotTime: slotTime, Available: true})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SlotTime.Before(result[j].SlotTime)
	})

	return result, nil
}

// IsSlotAvailable reports false, without error, when the calendar or the
// slot does not exist.
func (s *Service) IsSlotAvailable(ctx context.Context, providerID int64, at time.Time) (bool, error) {
	cal, err := s.GetSchedule(ctx, providerID, at)
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load schedule: %w", err)
	}

	key, ok := cal.FindSlotKey(at)
	if !ok {
		return false, nil
	}
	return cal.Slots[key], nil
}

// SetSlotAvailability unconditionally writes the flag of the slot at the
// given instant. Used to release a slot.
func (s *Service) SetSlotAvailability(ctx context.Context, providerID int64, at time.Time, available bool) error {
	return s.setSlot(ctx, providerID, at, nil, available)
}

// ReserveSlot flips an available slot to unavailable in one conditional
// write. It fails with ErrSlotUnavailable if the slot was already taken.
func (s *Service) ReserveSlot(ctx context.Context, providerID int64, at time.Time) error {
	expected := true
	return s.setSlot(ctx, providerID, at, &expected, false)
}

func (s *Service) setSlot(ctx context.Context, providerID int64, at time.Time, expected *bool, available bool) error {
	cal, err := s.GetSchedule(ctx, providerID, at)
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return err
		}
		return fmt.Errorf("load schedule: %w", err)
	}

	key, ok := cal.FindSlotKey(at)
	if !ok {
		return ErrSlotNotFound
	}

	applied, err := s.repo.CompareAndSetSlot(ctx, providerID, cal.ScheduleDate, key, expected, available)
	if err != nil {
		return fmt.Errorf("set slot availability: %w", err)
	}
	if !applied {
		if expected != nil {
			return ErrSlotUnavailable
		}
		return ErrSlotNotFound
	}

	s.logger.Debug().
		Int64("provider_id", providerID).
		Str("date", cal.ScheduleDate.Format(DateLayout)).
		Str("slot", key).
		Bool("available", available).
		Msg("slot availability updated")

	return nil
}

// localize re-anchors the stored civil date in the service zone. Drivers
// hand dates back at UTC midnight.
func (s *Service) localize(cal *Calendar) {
	y, m, d := cal.ScheduleDate.Date()
	cal.ScheduleDate = time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}
