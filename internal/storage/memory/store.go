// Package memory is a process-local implementation of the calendar and
// appointment repositories. It backs tests and single instance runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hackgods/provider-slot-booking/internal/appointment"
	"github.com/hackgods/provider-slot-booking/internal/schedule"
)

type calendarKey struct {
	providerID int64
	date       string
}

type state struct {
	calendars   map[calendarKey]schedule.Calendar
	calendarSeq int64

	appointments   map[int64]appointment.Appointment
	appointmentSeq int64

	events   []appointment.EventLog
	eventSeq int64
}

func newState() *state {
	return &state{
		calendars:    make(map[calendarKey]schedule.Calendar),
		appointments: make(map[int64]appointment.Appointment),
	}
}

func (s *state) clone() *state {
	c := &state{
		calendars:      make(map[calendarKey]schedule.Calendar, len(s.calendars)),
		calendarSeq:    s.calendarSeq,
		appointments:   make(map[int64]appointment.Appointment, len(s.appointments)),
		appointmentSeq: s.appointmentSeq,
		events:         append([]appointment.EventLog(nil), s.events...),
		eventSeq:       s.eventSeq,
	}
	for k, v := range s.calendars {
		c.calendars[k] = v.Clone()
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	return c
}

// Store serializes all access behind one mutex. A transaction holds the
// mutex for its whole lifetime and works on a private copy that replaces the
// live state on commit.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

type txKey struct{}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, working)); err != nil {
		return err
	}
	s.state = working
	return nil
}

// do runs fn against the transaction's copy, or against the live state
// under the mutex.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(st)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func dateKey(providerID int64, date time.Time) calendarKey {
	return calendarKey{providerID: providerID, date: date.Format(schedule.DateLayout)}
}

// Calendars

func (s *Store) CreateCalendar(ctx context.Context, cal schedule.Calendar) (*schedule.Calendar, error) {
	var created schedule.Calendar

	err := s.do(ctx, func(st *state) error {
		key := dateKey(cal.ProviderID, cal.ScheduleDate)
		if _, exists := st.calendars[key]; exists {
			return schedule.ErrDuplicateSchedule
		}

		st.calendarSeq++
		now := s.now()
		created = cal.Clone()
		created.ID = st.calendarSeq
		created.CreatedAt = now
		created.UpdatedAt = now
		st.calendars[key] = created.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetCalendar(ctx context.Context, providerID int64, date time.Time) (*schedule.Calendar, error) {
	var found schedule.Calendar

	err := s.do(ctx, func(st *state) error {
		cal, ok := st.calendars[dateKey(providerID, date)]
		if !ok {
			return schedule.ErrScheduleNotFound
		}
		found = cal.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (s *Store) ListCalendarsFrom(ctx context.Context, providerID int64, from time.Time) ([]schedule.Calendar, error) {
	fromKey := from.Format(schedule.DateLayout)
	result := []schedule.Calendar{}

	err := s.do(ctx, func(st *state) error {
		for k, cal := range st.calendars {
			if k.providerID == providerID && k.date >= fromKey {
				result = append(result, cal.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduleDate.Before(result[j].ScheduleDate)
	})
	return result, nil
}

func (s *Store) CompareAndSetSlot(ctx context.Context, providerID int64, date time.Time, key string, expected *bool, available bool) (bool, error) {
	applied := false

	err := s.do(ctx, func(st *state) error {
		ck := dateKey(providerID, date)
		cal, ok := st.calendars[ck]
		if !ok {
			return nil
		}
		current, ok := cal.Slots[key]
		if !ok {
			return nil
		}
		if expected != nil && current != *expected {
			return nil
		}

		cal = cal.Clone()
		cal.Slots[key] = available
		cal.UpdatedAt = s.now()
		st.calendars[ck] = cal
		applied = true
		return nil
	})
	return applied, err
}

// Appointments

func (s *Store) CreateAppointment(ctx context.Context, appt appointment.Appointment) (*appointment.Appointment, error) {
	var created appointment.Appointment

	err := s.do(ctx, func(st *state) error {
		st.appointmentSeq++
		now := s.now()
		created = appt
		created.ID = st.appointmentSeq
		created.CreatedAt = now
		created.UpdatedAt = now
		st.appointments[created.ID] = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetAppointmentByID(ctx context.Context, id int64) (*appointment.Appointment, error) {
	var found appointment.Appointment

	err := s.do(ctx, func(st *state) error {
		a, ok := st.appointments[id]
		if !ok {
			return appointment.ErrAppointmentNotFound
		}
		found = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

// GetAppointmentForUpdate is GetAppointmentByID: transactions are already
// serialized by the store mutex.
func (s *Store) GetAppointmentForUpdate(ctx context.Context, id int64) (*appointment.Appointment, error) {
	return s.GetAppointmentByID(ctx, id)
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id int64, from, to appointment.Status) (*appointment.Appointment, error) {
	var updated appointment.Appointment

	err := s.do(ctx, func(st *state) error {
		a, ok := st.appointments[id]
		if !ok || a.Status != from {
			return fmt.Errorf("%w: appointment %d is no longer %s", appointment.ErrInvalidState, id, from)
		}
		a.Status = to
		a.UpdatedAt = s.now()
		st.appointments[id] = a
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) ListAppointments(ctx context.Context, filter appointment.ListFilter) ([]appointment.Appointment, error) {
	result := []appointment.Appointment{}

	err := s.do(ctx, func(st *state) error {
		for _, a := range st.appointments {
			if filter.Matches(a) {
				result = append(result, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].AppointmentDateTime.Equal(result[j].AppointmentDateTime) {
			return result[i].AppointmentDateTime.Before(result[j].AppointmentDateTime)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	return s.do(ctx, func(st *state) error {
		st.eventSeq++
		ev.ID = st.eventSeq
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = s.now()
		}
		st.events = append(st.events, ev)
		return nil
	})
}

// Events returns a copy of the recorded event log.
func (s *Store) Events() []appointment.EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]appointment.EventLog(nil), s.state.events...)
}
