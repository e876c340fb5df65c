package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/provider-slot-booking/internal/apperr"
	"github.com/hackgods/provider-slot-booking/internal/events"
	"github.com/hackgods/provider-slot-booking/internal/lock"
	"github.com/hackgods/provider-slot-booking/internal/metrics"
	"github.com/hackgods/provider-slot-booking/internal/schedule"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentRejected  = "APPOINTMENT_REJECTED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventSlotRepaired         = "SLOT_REPAIRED"
)

var (
	ErrPastDateTime   = apperr.New(apperr.ErrValidation, "appointment date time must be in the future")
	ErrNotOwner       = apperr.New(apperr.ErrOwnership, "caller does not own this appointment")
	ErrInvalidRequest = apperr.New(apperr.ErrValidation, "invalid appointment request")
)

// SlotManager is the calendar API bookings rely on.
type SlotManager interface {
	IsSlotAvailable(ctx context.Context, providerID int64, at time.Time) (bool, error)
	ReserveSlot(ctx context.Context, providerID int64, at time.Time) error
	SetSlotAvailability(ctx context.Context, providerID int64, at time.Time, available bool) error
	Location() *time.Location
}

type Deps struct {
	Repo      Repository
	Slots     SlotManager
	Tx        TxManager
	Locker    lock.Locker
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
	Clock     func() time.Time
}

type Service struct {
	repo      Repository
	slots     SlotManager
	tx        TxManager
	locker    lock.Locker
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:      d.Repo,
		slots:     d.Slots,
		tx:        d.Tx,
		locker:    d.Locker,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		logger:    d.Logger.With().Str("component", "appointment").Logger(),
		now:       d.Clock,
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.publisher == nil {
		s.publisher = events.Noop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateAppointment books the slot at the given instant for a patient. The
// availability check, the REQUESTED row and the slot reservation commit
// together or not at all.
func (s *Service) CreateAppointment(ctx context.Context, patientID, providerID int64, at time.Time) (*Appointment, error) {
	if patientID <= 0 || providerID <= 0 {
		s.metrics.ObserveBooking("invalid")
		return nil, fmt.Errorf("%w: patient and provider ids must be positive", ErrInvalidRequest)
	}
	if at.Nanosecond() != 0 {
		s.metrics.ObserveBooking("invalid")
		return nil, fmt.Errorf("%w: appointment time must fall on a whole second", ErrInvalidRequest)
	}
	if !at.After(s.now()) {
		s.metrics.ObserveBooking("past_date")
		return nil, ErrPastDateTime
	}

	loc := s.slots.Location()
	at = at.In(loc)
	lockKey := lock.SlotKey(providerID, schedule.CivilDate(at, loc))

	var created *Appointment

	err := s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		return s.tx.WithinTx(lockCtx, func(txCtx context.Context) error {
			available, err := s.slots.IsSlotAvailable(txCtx, providerID, at)
			if err != nil {
				return fmt.Errorf("check slot: %w", err)
			}
			if !available {
				return schedule.ErrSlotUnavailable
			}

			appt, err := s.repo.CreateAppointment(txCtx, Appointment{
				PatientID:           patientID,
				ProviderID:          providerID,
				AppointmentDateTime: at,
				Status:              StatusRequested,
			})
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			if err := s.slots.ReserveSlot(txCtx, providerID, at); err != nil {
				if errors.Is(err, schedule.ErrSlotUnavailable) {
					return err
				}
				return fmt.Errorf("reserve slot: %w", err)
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		s.metrics.ObserveBooking(outcome(err))
		return nil, err
	}

	s.metrics.ObserveBooking("created")
	s.logger.Info().
		Int64("appointment_id", created.ID).
		Int64("patient_id", patientID).
		Int64("provider_id", providerID).
		Time("at", at).
		Msg("appointment requested")

	s.recordEvent(ctx, created, EventAppointmentCreated, nil)

	return created, nil
}

func (s *Service) ConfirmAppointment(ctx context.Context, id, providerID int64) (*Appointment, error) {
	return s.transition(ctx, id, providerID, ActionConfirm)
}

func (s *Service) RejectAppointment(ctx context.Context, id, providerID int64) (*Appointment, error) {
	return s.transition(ctx, id, providerID, ActionReject)
}

func (s *Service) CancelAppointment(ctx context.Context, id, patientID int64) (*Appointment, error) {
	return s.transition(ctx, id, patientID, ActionCancel)
}

// Apply runs action on behalf of actorID. Provider actions expect a
// provider id, cancel expects a patient id.
func (s *Service) Apply(ctx context.Context, id, actorID int64, action Action) (*Appointment, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, action)
	}
	return s.transition(ctx, id, actorID, action)
}

func (s *Service) transition(ctx context.Context, id, actorID int64, action Action) (*Appointment, error) {
	var updated *Appointment

	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		appt, err := s.repo.GetAppointmentForUpdate(txCtx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("load appointment: %w", err)
		}

		if owner(appt, action.Actor()) != actorID {
			return ErrNotOwner
		}

		next, err := appt.Status.Next(action)
		if err != nil {
			return err
		}

		updated, err = s.repo.UpdateAppointmentStatus(txCtx, appt.ID, appt.Status, next)
		if err != nil {
			if errors.Is(err, ErrInvalidState) {
				return err
			}
			return fmt.Errorf("update appointment status: %w", err)
		}

		if action.ReleasesSlot() {
			if err := s.slots.SetSlotAvailability(txCtx, appt.ProviderID, appt.AppointmentDateTime, true); err != nil {
				return fmt.Errorf("release slot: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.ObserveTransition(string(action), outcome(err))
		return nil, err
	}

	s.metrics.ObserveTransition(string(action), "ok")
	s.logger.Info().
		Int64("appointment_id", updated.ID).
		Str("action", string(action)).
		Str("status", string(updated.Status)).
		Msg("appointment updated")

	s.recordEvent(ctx, updated, action.event(), map[string]any{
		"actor_id": actorID,
	})

	return updated, nil
}

func owner(appt *Appointment, actor Actor) int64 {
	if actor == ActorPatient {
		return appt.PatientID
	}
	return appt.ProviderID
}

func (s *Service) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) GetPatientAppointments(ctx context.Context, patientID int64) ([]Appointment, error) {
	return s.list(ctx, ListFilter{PatientID: patientID})
}

func (s *Service) GetProviderAppointments(ctx context.Context, providerID int64) ([]Appointment, error) {
	return s.list(ctx, ListFilter{ProviderID: providerID})
}

func (s *Service) GetProviderRequestedAppointments(ctx context.Context, providerID int64) ([]Appointment, error) {
	return s.list(ctx, ListFilter{ProviderID: providerID, Statuses: []Status{StatusRequested}})
}

func (s *Service) list(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	appts, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if appts == nil {
		appts = []Appointment{}
	}
	return appts, nil
}

// ReconcileReport summarizes one ReconcileSlots run.
type ReconcileReport struct {
	Checked      int
	Repaired     int
	Failed       int
	DoubleBooked int
}

// ReconcileSlots re-reserves the slot of every future active appointment
// whose calendar flag still reads available. It also counts slots claimed
// by more than one active appointment; those need manual attention and are
// only logged.
func (s *Service) ReconcileSlots(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	appts, err := s.repo.ListAppointments(ctx, ListFilter{Statuses: ActiveStatuses, From: s.now()})
	if err != nil {
		return report, fmt.Errorf("list active appointments: %w", err)
	}

	type slotRef struct {
		providerID int64
		at         int64
	}
	claimed := make(map[slotRef]int64, len(appts))

	for i := range appts {
		appt := appts[i]
		report.Checked++

		ref := slotRef{appt.ProviderID, appt.AppointmentDateTime.Unix()}
		if other, dup := claimed[ref]; dup {
			report.DoubleBooked++
			s.logger.Error().
				Int64("appointment_id", appt.ID).
				Int64("other_appointment_id", other).
				Int64("provider_id", appt.ProviderID).
				Time("at", appt.AppointmentDateTime).
				Msg("slot held by more than one active appointment")
			continue
		}
		claimed[ref] = appt.ID

		repaired, err := s.repairSlot(ctx, appt)
		if err != nil {
			report.Failed++
			s.logger.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("slot repair failed")
			continue
		}
		if repaired {
			report.Repaired++
			s.recordEvent(ctx, &appt, EventSlotRepaired, nil)
		}
	}

	s.metrics.ObserveReconcile("checked", report.Checked)
	s.metrics.ObserveReconcile("repaired", report.Repaired)
	s.metrics.ObserveReconcile("failed", report.Failed)
	s.metrics.ObserveReconcile("double_booked", report.DoubleBooked)

	return report, nil
}

func (s *Service) repairSlot(ctx context.Context, appt Appointment) (bool, error) {
	loc := s.slots.Location()
	lockKey := lock.SlotKey(appt.ProviderID, schedule.CivilDate(appt.AppointmentDateTime, loc))
	repaired := false

	err := s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		return s.tx.WithinTx(lockCtx, func(txCtx context.Context) error {
			// the row lock orders this repair against a concurrent
			// cancel or reject of the same appointment
			current, err := s.repo.GetAppointmentForUpdate(txCtx, appt.ID)
			if err != nil {
				return err
			}
			if current.Status.Terminal() {
				return nil
			}

			available, err := s.slots.IsSlotAvailable(txCtx, appt.ProviderID, appt.AppointmentDateTime)
			if err != nil || !available {
				return err
			}

			if err := s.slots.ReserveSlot(txCtx, appt.ProviderID, appt.AppointmentDateTime); err != nil {
				return err
			}
			repaired = true
			return nil
		})
	})
	return repaired, err
}

// recordEvent writes the audit row and publishes the event. Both are best
// effort: the state change is already committed.
func (s *Service) recordEvent(ctx context.Context, appt *Appointment, eventType string, extra map[string]any) {
	payload := map[string]any{
		"patient_id":            appt.PatientID,
		"provider_id":           appt.ProviderID,
		"status":                appt.Status,
		"appointment_date_time": appt.AppointmentDateTime,
	}
	for k, v := range extra {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appt.ID
	occurred := s.now()

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     occurred,
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Int64("appointment_id", apptID).Msg("failed to insert event log")
	}

	err = s.publisher.Publish(ctx, events.Event{
		Type:                eventType,
		AppointmentID:       appt.ID,
		PatientID:           appt.PatientID,
		ProviderID:          appt.ProviderID,
		Status:              string(appt.Status),
		AppointmentDateTime: appt.AppointmentDateTime,
		OccurredAt:          occurred,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Int64("appointment_id", apptID).Msg("failed to publish event")
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, lock.ErrLockBusy):
		return "busy"
	case errors.Is(err, schedule.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrPastDateTime):
		return "past_date"
	}

	switch apperr.KindOf(err) {
	case apperr.ErrNotFound:
		return "not_found"
	case apperr.ErrOwnership:
		return "not_owner"
	case apperr.ErrInvalidState:
		return "invalid_state"
	case apperr.ErrValidation:
		return "invalid"
	case apperr.ErrConflict:
		return "conflict"
	}
	return "error"
}
