package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/provider-slot-booking/internal/api"
	"github.com/hackgods/provider-slot-booking/internal/appointment"
	"github.com/hackgods/provider-slot-booking/internal/lock"
	"github.com/hackgods/provider-slot-booking/internal/metrics"
	"github.com/hackgods/provider-slot-booking/internal/schedule"
	"github.com/hackgods/provider-slot-booking/internal/storage/memory"
)

var now = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

func newRouter(t *testing.T, checks ...api.Check) http.Handler {
	t.Helper()

	store := memory.New()
	clock := func() time.Time { return now }
	schedules := schedule.NewService(store, zerolog.Nop(), schedule.WithClock(clock), schedule.WithLocation(time.UTC))

	reg := prometheus.NewRegistry()
	m := metrics.New("api-test", reg)

	svc := appointment.NewService(appointment.Deps{
		Repo:    store,
		Slots:   schedules,
		Tx:      store,
		Locker:  lock.NewLocal(),
		Metrics: m,
		Logger:  zerolog.Nop(),
		Clock:   clock,
	})

	return api.NewRouter(api.RouterConfig{
		Appointments:   svc,
		Schedules:      schedules,
		Checks:         checks,
		Logger:         zerolog.Nop(),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSOrigins:    []string{"*"},
		Env:            "test",
		Version:        "test",
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSchedule(t *testing.T, h http.Handler) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/schedules", map[string]any{
		"providerId":   10,
		"scheduleDate": "2025-03-01",
		"slots":        map[string]bool{"09:00:00": true, "10:00:00": true},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func book(t *testing.T, h http.Handler, patientID int64, at string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodPost, "/api/appointments", map[string]any{
		"patientId":           patientID,
		"providerId":          10,
		"appointmentDateTime": at,
	})
}

func TestScheduleEndpoints(t *testing.T) {
	h := newRouter(t)
	createSchedule(t, h)

	rec := do(t, h, http.MethodPost, "/api/schedules", map[string]any{
		"providerId":   10,
		"scheduleDate": "2025-03-01",
		"slots":        map[string]bool{"11:00:00": true},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	dup := decode[api.ScheduleResponse](t, rec)
	assert.Equal(t, "duplicate_schedule", dup.Error)
	assert.NotEmpty(t, dup.ErrorMessage)
	assert.Empty(t, dup.Message)

	rec = do(t, h, http.MethodGet, "/api/schedules/provider/10/available-slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[[]api.AvailableSlotResponse](t, rec)
	require.Len(t, slots, 2)
	assert.Equal(t, "2025-03-01T09:00:00", slots[0].SlotTime)
	assert.True(t, slots[0].Available)

	rec = do(t, h, http.MethodGet, "/api/schedules/provider/77/available-slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCreateScheduleValidation(t *testing.T) {
	h := newRouter(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing provider", map[string]any{"scheduleDate": "2025-03-01", "slots": map[string]bool{}}},
		{"bad date", map[string]any{"providerId": 1, "scheduleDate": "01/03/2025", "slots": map[string]bool{}}},
		{"missing slots", map[string]any{"providerId": 1, "scheduleDate": "2025-03-01"}},
		{"unknown field", map[string]any{"providerId": 1, "scheduleDate": "2025-03-01", "slots": map[string]bool{}, "extra": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/schedules", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[api.ErrorResponse](t, rec)
			assert.Equal(t, "invalid_request_body", resp.Error)
			assert.Equal(t, http.StatusBadRequest, resp.Status)
		})
	}
}

func TestAppointmentLifecycleOverHTTP(t *testing.T) {
	h := newRouter(t)
	createSchedule(t, h)

	rec := book(t, h, 5, "2025-03-01T09:00")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, "REQUESTED", created.Status)
	assert.Equal(t, "2025-03-01T09:00:00", created.AppointmentDateTime)
	assert.NotEmpty(t, created.Message)
	assert.Empty(t, created.ErrorMessage)

	rec = book(t, h, 6, "2025-03-01T09:00:00")
	assert.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, "slot_unavailable", conflict.Error)
	assert.Equal(t, int64(6), conflict.PatientID)
	assert.Empty(t, conflict.Message)

	path := "/api/appointments/" + itoa(created.ID)

	rec = do(t, h, http.MethodPost, path+"/provider/11/update-status", map[string]string{"action": "CONFIRM"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, path+"/provider/10/update-status", map[string]string{"action": "APPROVE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, path+"/provider/10/update-status", map[string]string{"action": "REJECT"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "REJECTED", decode[api.AppointmentResponse](t, rec).Status)

	rec = do(t, h, http.MethodPost, path+"/provider/10/update-status", map[string]string{"action": "CONFIRM"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[api.AppointmentResponse](t, rec).Error)

	rec = book(t, h, 6, "2025-03-01T09:00")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decode[api.AppointmentResponse](t, rec)

	rec = do(t, h, http.MethodPost, "/api/appointments/"+itoa(second.ID)+"/provider/10/update-status", map[string]string{"action": "CONFIRM"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/appointments/"+itoa(second.ID)+"/patient/5/cancel", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/appointments/"+itoa(second.ID)+"/patient/6/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decode[api.AppointmentResponse](t, rec).Status)

	rec = do(t, h, http.MethodGet, "/api/appointments/patient/6", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.AppointmentResponse](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/appointments/provider/10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.AppointmentResponse](t, rec), 2)

	rec = do(t, h, http.MethodGet, "/api/appointments/provider/10/requested", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = do(t, h, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[api.AppointmentResponse](t, rec).ID)
}

func TestCreateAppointmentBadInput(t *testing.T) {
	h := newRouter(t)
	createSchedule(t, h)

	rec := book(t, h, 5, "tomorrow at nine")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_appointment_date_time", decode[api.ErrorResponse](t, rec).Error)

	rec = book(t, h, 5, "2024-03-01T09:00")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "past_date_time", decode[api.AppointmentResponse](t, rec).Error)

	rec = book(t, h, 0, "2025-03-01T09:00")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFoundAndBadIDs(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodGet, "/api/appointments/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "appointment_not_found", decode[api.ErrorResponse](t, rec).Error)

	rec = do(t, h, http.MethodGet, "/api/appointments/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/appointments/42/patient/5/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newRouter(t,
		api.Check{Name: "postgres", Critical: true, Ping: func(context.Context) error { return nil }},
		api.Check{Name: "redis", Ping: func(context.Context) error { return errors.New("down") }},
	)

	rec := do(t, h, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ready := decode[api.ReadinessResponse](t, rec)
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "down"}, ready.Dependencies)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestReadinessFailsOnCriticalCheck(t *testing.T) {
	h := newRouter(t, api.Check{Name: "postgres", Critical: true, Ping: func(context.Context) error { return errors.New("down") }})

	rec := do(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", decode[api.ReadinessResponse](t, rec).Status)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
