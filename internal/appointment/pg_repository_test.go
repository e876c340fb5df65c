package appointment_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/provider-slot-booking/internal/appointment"
	"github.com/hackgods/provider-slot-booking/internal/db"
	"github.com/hackgods/provider-slot-booking/internal/db/dbtest"
	"github.com/hackgods/provider-slot-booking/internal/schedule"
)

var (
	pgDay  = time.Date(2031, 7, 1, 0, 0, 0, 0, time.UTC)
	pgNine = time.Date(2031, 7, 1, 9, 0, 0, 0, time.UTC)
)

type pgFixture struct {
	pool       *pgxpool.Pool
	repo       *appointment.PgRepository
	tx         *db.TxManager
	schedules  *schedule.Service
	svc        *appointment.Service
	providerID int64
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()

	pool := dbtest.Pool(t)
	providerID := dbtest.ProviderID()

	schedules := schedule.NewService(schedule.NewPgRepository(pool), zerolog.Nop(), schedule.WithLocation(time.UTC))
	_, err := schedules.CreateSchedule(context.Background(), providerID, pgDay, map[string]bool{"09:00:00": true})
	require.NoError(t, err)

	repo := appointment.NewPgRepository(pool)
	txm := db.NewTxManager(pool)

	return &pgFixture{
		pool:      pool,
		repo:      repo,
		tx:        txm,
		schedules: schedules,
		svc: appointment.NewService(appointment.Deps{
			Repo:   repo,
			Slots:  schedules,
			Tx:     txm,
			Locker: passthroughLocker{},
			Logger: zerolog.Nop(),
		}),
		providerID: providerID,
	}
}

func (f *pgFixture) slotOpen(t *testing.T) bool {
	t.Helper()
	ok, err := f.schedules.IsSlotAvailable(context.Background(), f.providerID, pgNine)
	require.NoError(t, err)
	return ok
}

func TestPgConditionalStatusUpdate(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	created, err := f.repo.CreateAppointment(ctx, appointment.Appointment{
		PatientID:           5,
		ProviderID:          f.providerID,
		AppointmentDateTime: pgNine,
		Status:              appointment.StatusRequested,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.True(t, created.AppointmentDateTime.Equal(pgNine))

	confirmed, err := f.repo.UpdateAppointmentStatus(ctx, created.ID, appointment.StatusRequested, appointment.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, confirmed.Status)

	_, err = f.repo.UpdateAppointmentStatus(ctx, created.ID, appointment.StatusRequested, appointment.StatusRejected)
	assert.True(t, errors.Is(err, appointment.ErrInvalidState))

	got, err := f.repo.GetAppointmentForUpdate(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)

	_, err = f.repo.GetAppointmentByID(ctx, -1)
	assert.True(t, errors.Is(err, appointment.ErrAppointmentNotFound))
}

func TestPgListAppointmentsFilters(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	for i, st := range []appointment.Status{appointment.StatusRequested, appointment.StatusCancelled, appointment.StatusConfirmed} {
		_, err := f.repo.CreateAppointment(ctx, appointment.Appointment{
			PatientID:           int64(100 + i%2),
			ProviderID:          f.providerID,
			AppointmentDateTime: pgNine.Add(time.Duration(2-i) * time.Hour),
			Status:              st,
		})
		require.NoError(t, err)
	}

	all, err := f.repo.ListAppointments(ctx, appointment.ListFilter{ProviderID: f.providerID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].AppointmentDateTime.Before(all[1].AppointmentDateTime))

	active, err := f.repo.ListAppointments(ctx, appointment.ListFilter{
		ProviderID: f.providerID,
		Statuses:   appointment.ActiveStatuses,
		From:       pgNine.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, appointment.StatusRequested, active[0].Status)

	ev := appointment.EventLog{EventType: appointment.EventAppointmentCreated, AppointmentID: &all[0].ID, Payload: []byte(`{"k":1}`)}
	require.NoError(t, f.repo.InsertEvent(ctx, ev))
}

func TestPgConcurrentBookingsOnlyOneWins(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	const attempts = 10
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(patient int64) {
			defer wg.Done()
			_, err := f.svc.CreateAppointment(ctx, patient, f.providerID, pgNine)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.True(t, errors.Is(err, schedule.ErrSlotUnavailable), "unexpected error: %v", err)
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	active, err := f.repo.ListAppointments(ctx, appointment.ListFilter{ProviderID: f.providerID, Statuses: appointment.ActiveStatuses})
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.False(t, f.slotOpen(t))
}

// A repair that read the appointment before a cancel committed must wait for
// the cancel and then leave the released slot alone.
func TestPgRepairWaitsForInFlightCancel(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	appt, err := f.svc.CreateAppointment(ctx, 5, f.providerID, pgNine)
	require.NoError(t, err)
	snapshot := *appt

	written := make(chan struct{})
	commit := make(chan struct{})
	cancelErr := make(chan error, 1)

	go func() {
		cancelErr <- f.tx.WithinTx(ctx, func(txCtx context.Context) error {
			if _, err := f.repo.GetAppointmentForUpdate(txCtx, appt.ID); err != nil {
				return err
			}
			if _, err := f.repo.UpdateAppointmentStatus(txCtx, appt.ID, appointment.StatusRequested, appointment.StatusCancelled); err != nil {
				return err
			}
			if err := f.schedules.SetSlotAvailability(txCtx, f.providerID, pgNine, true); err != nil {
				return err
			}
			close(written)
			<-commit
			return nil
		})
	}()

	<-written

	type result struct {
		repaired bool
		err      error
	}
	repairDone := make(chan result, 1)
	go func() {
		repaired, err := appointment.RepairSlot(f.svc, ctx, snapshot)
		repairDone <- result{repaired, err}
	}()

	select {
	case <-repairDone:
		t.Fatal("repair finished while the cancel still held the appointment row")
	case <-time.After(200 * time.Millisecond):
	}

	close(commit)
	require.NoError(t, <-cancelErr)

	res := <-repairDone
	require.NoError(t, res.err)
	assert.False(t, res.repaired)
	assert.True(t, f.slotOpen(t))
}
