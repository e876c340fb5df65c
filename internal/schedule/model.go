package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// SlotKeyLayout is the canonical time-of-day form used for generated slot keys.
	SlotKeyLayout = "15:04:05"
	DateLayout    = "2006-01-02"
)

var (
	timestampLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}
	timeOfDayLayouts = []string{"15:04:05", "15:04"}
)

// Calendar is one provider's slot set for one day. Keys never change after
// creation, only their availability flag does.
type Calendar struct {
	ID           int64
	ProviderID   int64
	ScheduleDate time.Time
	Slots        map[string]bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AvailableSlot struct {
	SlotTime  time.Time
	Available bool
}

// CivilDate returns midnight of t's calendar day in loc.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SlotKey renders t in canonical slot key form.
func SlotKey(t time.Time) string {
	return t.Format(SlotKeyLayout)
}

// ResolveSlotKey turns a slot key into an absolute instant. Keys containing a
// "T" are full timestamps; anything else is a time of day on date.
func ResolveSlotKey(date time.Time, key string) (time.Time, error) {
	loc := date.Location()

	if strings.Contains(key, "T") {
		for _, layout := range timestampLayouts {
			if ts, err := time.ParseInLocation(layout, key, loc); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("slot key %q is not a valid timestamp", key)
	}

	for _, layout := range timeOfDayLayouts {
		if tod, err := time.Parse(layout, key); err == nil {
			y, m, d := date.Date()
			return time.Date(y, m, d, tod.Hour(), tod.Minute(), tod.Second(), 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("slot key %q is not a valid time of day", key)
}

// FindSlotKey locates the key addressing at. The canonical key is tried
// first, then every key that resolves to the same instant. Keys have
// second precision, so an instant with a fractional second matches none.
func (c *Calendar) FindSlotKey(at time.Time) (string, bool) {
	if at.Nanosecond() != 0 {
		return "", false
	}
	at = at.In(c.ScheduleDate.Location())

	key := SlotKey(at)
	if _, ok := c.Slots[key]; ok {
		return key, true
	}

	keys := make([]string, 0, len(c.Slots))
	for k := range c.Slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		resolved, err := ResolveSlotKey(c.ScheduleDate, k)
		if err == nil && resolved.Equal(at) {
			return k, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the calendar.
func (c Calendar) Clone() Calendar {
	slots := make(map[string]bool, len(c.Slots))
	for k, v := range c.Slots {
		slots[k] = v
	}
	c.Slots = slots
	return c
}
