package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSlotKey(t *testing.T) {
	loc := time.FixedZone("IST", 5*60*60+30*60)
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, loc)

	tests := []struct {
		key     string
		want    time.Time
		wantErr bool
	}{
		{key: "09:00:00", want: time.Date(2025, 3, 1, 9, 0, 0, 0, loc)},
		{key: "09:30", want: time.Date(2025, 3, 1, 9, 30, 0, 0, loc)},
		{key: "2025-03-01T14:15:00", want: time.Date(2025, 3, 1, 14, 15, 0, 0, loc)},
		{key: "2025-03-02T08:00", want: time.Date(2025, 3, 2, 8, 0, 0, 0, loc)},
		{key: "nine o'clock", wantErr: true},
		{key: "2025-03-01Tnoon", wantErr: true},
		{key: "25:00:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ResolveSlotKey(date, tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
			assert.Equal(t, loc, got.Location())
		})
	}
}

func TestFindSlotKey(t *testing.T) {
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cal := Calendar{
		ScheduleDate: date,
		Slots: map[string]bool{
			"09:00:00":            true,
			"10:30":               true,
			"2025-03-01T11:00:00": false,
		},
	}

	key, ok := cal.FindSlotKey(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, "09:00:00", key)

	key, ok = cal.FindSlotKey(time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, "10:30", key)

	key, ok = cal.FindSlotKey(time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, "2025-03-01T11:00:00", key)

	_, ok = cal.FindSlotKey(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	_, ok = cal.FindSlotKey(time.Date(2025, 3, 1, 9, 0, 0, int(500*time.Millisecond), time.UTC))
	assert.False(t, ok)
}

func TestFindSlotKeyConvertsZone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	cal := Calendar{
		ScheduleDate: time.Date(2025, 3, 1, 0, 0, 0, 0, loc),
		Slots:        map[string]bool{"09:00:00": true},
	}

	key, ok := cal.FindSlotKey(time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, "09:00:00", key)
}

func TestCivilDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	got := CivilDate(time.Date(2025, 3, 2, 3, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, "2025-03-01", got.Format(DateLayout))
	assert.Equal(t, 0, got.Hour())
}

func TestCloneIsDeep(t *testing.T) {
	cal := Calendar{Slots: map[string]bool{"09:00:00": true}}
	c := cal.Clone()
	c.Slots["09:00:00"] = false
	assert.True(t, cal.Slots["09:00:00"])
}
