package schedule_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/provider-slot-booking/internal/apperr"
	"github.com/hackgods/provider-slot-booking/internal/schedule"
	"github.com/hackgods/provider-slot-booking/internal/storage/memory"
)

var (
	now   = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	today = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
)

func newService(t *testing.T, logger zerolog.Logger) *schedule.Service {
	t.Helper()
	return schedule.NewService(memory.New(), logger,
		schedule.WithClock(func() time.Time { return now }),
		schedule.WithLocation(time.UTC),
	)
}

func TestCreateScheduleThenSlotIsAvailable(t *testing.T) {
	svc := newService(t, zerolog.Nop())
	ctx := context.Background()

	cal, err := svc.CreateSchedule(ctx, 10, today.Add(15*time.Hour), map[string]bool{"11:00:00": true, "12:00:00": false})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", cal.ScheduleDate.Format(schedule.DateLayout))
	assert.Equal(t, map[string]bool{"11:00:00": true, "12:00:00": false}, cal.Slots)
	assert.NotZero(t, cal.ID)

	ok, err := svc.IsSlotAvailable(ctx, 10, today.Add(11*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsSlotAvailable(ctx, 10, today.Add(12*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateScheduleDuplicate(t *testing.T) {
	svc := newService(t, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.CreateSchedule(ctx, 10, today, map[string]bool{"11:00:00": true})
	require.NoError(t, err)

	_, err = svc.CreateSchedule(ctx, 10, today, map[string]bool{"13:00:00": true})
	assert.True(t, errors.Is(err, schedule.ErrDuplicateSchedule))
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = svc.CreateSchedule(ctx, 11, today, map[string]bool{"13:00:00": true})
	assert.NoError(t, err)
}

func TestCreateScheduleValidation(t *testing.T) {
	svc := newService(t, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.CreateSchedule(ctx, 0, today, map[string]bool{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = svc.CreateSchedule(ctx, 10, time.Time{}, map[string]bool{})
	assert.True(t, errors.Is(err, schedule.ErrInvalidSchedule))
	_, err = svc.CreateSchedule(ctx, 10, today, nil)
	assert.True(t, errors.Is(err, schedule.ErrInvalidSchedule))

	cal, err := svc.CreateSchedule(ctx, 10, today, map[string]bool{})
	require.NoError(t, err)
	assert.Empty(t, cal.Slots)
}

func TestCreateScheduleCopiesInput(t *testing.T) {
	svc := newService(t, zerolog.Nop())
	ctx := context.Background()
	slots := map[string]bool{"11:00:00": true}

	_, err := svc.CreateSchedule(ctx, 10, today, slots)
	require.NoError(t, err)
	slots["11:00:00"] = false

	ok, err := svc.IsSlotAvailable(ctx, 10, today.Add(11*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsSlotAvailableMissing(t *testing.T) {
	svc := newService(t, zerolog.Nop())
	ctx := context.Background()

	ok, err := svc.IsSlotAvailable(ctx, 10, today.Add(11*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "no calendar")

	_, err = svc.CreateSchedule(ctx, 10, today, map[string]bool{"11:00:00": true})
	require.NoError(t, err)

	ok, err = svc.IsSlotAvailable(ctx, 10, today.Add(11*time.Hour+15*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "no such key")
}

func TestGetAvailableSlots(t *testing.T) {
	var buf bytes.Buffer
	svc := newService(t, zerolog.New(&buf))
	ctx := context.Background()

	_, err := svc.CreateSchedule(ctx, 10, today.AddDate(0, 0, -1), map[string]bool{"10:00:00": true})
	require.NoError(t, err)
	_, err = svc.CreateSchedule(ctx, 10, today, map[string]bool{
		"09:00:00":            true,  // already passed
		"09:30:00":            true,  // exactly now
		"14:00:00":            true,
		"10:00":               true,
		"11:00:00":            false,
		"lunch":               true,
		"2025-03-01T16:45:00": true,
	})
	require.NoError(t, err)
	_, err = svc.CreateSchedule(ctx, 10, today.AddDate(0, 0, 1), map[string]bool{"08:00:00": true})
	require.NoError(t, err)
	_, err = svc.CreateSchedule(ctx, 11, today, map[string]bool{"15:00:00": true})
	require.NoError(t, err)

	slots, err := svc.GetAvailableSlots(ctx, 10)
	require.NoError(t, err)

	got := make([]string, 0, len(slots))
	for _, s := range slots {
		assert.True(t, s.Available)
		got = append(got, s.SlotTime.Format("2006-01-02T15:04"))
	}
	assert.Equal(t, []string{
		"2025-03-01T10:00",
		"2025-03-01T14:00",
		"2025-03-01T16:45",
		"2025-03-02T08:00",
	}, got)
	assert.Contains(t, buf.String(), "skipping unparseable slot key")
}

func TestGetAvailableSlotsEmpty(t *testing.T) {
	svc := newService(t, zerolog.Nop())

	slots, err := svc.GetAvailableSlots(context.Background(), 42)
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestSetSlotAvailabilityErrors(t *testing.T) {
	svc := newService(t, zerolog.Nop())
	ctx := context.Background()

	err := svc.SetSlotAvailability(ctx, 10, today.Add(11*time.Hour), false)
	assert.True(t, errors.Is(err, schedule.ErrScheduleNotFound))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = svc.CreateSchedule(ctx, 10, today, map[string]bool{"11:00:00": true})
	require.NoError(t, err)

	err = svc.SetSlotAvailability(ctx, 10, today.Add(13*time.Hour), false)
	assert.True(t, errors.Is(err, schedule.ErrSlotNotFound))

	require.NoError(t, svc.SetSlotAvailability(ctx, 10, today.Add(11*time.Hour), false))
	require.NoError(t, svc.SetSlotAvailability(ctx, 10, today.Add(11*time.Hour), false), "unconditional write is idempotent")

	ok, err := svc.IsSlotAvailable(ctx, 10, today.Add(11*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReserveSlotOnlyOnce(t *testing.T) {
	svc := newService(t, zerolog.Nop())
	ctx := context.Background()
	at := today.Add(11 * time.Hour)

	_, err := svc.CreateSchedule(ctx, 10, today, map[string]bool{"11:00:00": true})
	require.NoError(t, err)

	const workers = 30
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.ReserveSlot(ctx, 10, at)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, schedule.ErrSlotUnavailable))
	}
	assert.Equal(t, 1, wins)

	require.NoError(t, svc.SetSlotAvailability(ctx, 10, at, true))
	assert.NoError(t, svc.ReserveSlot(ctx, 10, at))
}

func TestReserveSlotByShortKey(t *testing.T) {
	svc := newService(t, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.CreateSchedule(ctx, 10, today, map[string]bool{"11:00": true})
	require.NoError(t, err)

	require.NoError(t, svc.ReserveSlot(ctx, 10, today.Add(11*time.Hour)))

	cal, err := svc.GetSchedule(ctx, 10, today)
	require.NoError(t, err)
	assert.False(t, cal.Slots["11:00"])
	assert.Len(t, cal.Slots, 1)
}
