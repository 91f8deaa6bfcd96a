package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mondayPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := NewPolicy(map[string][]string{"monday": {"09:00", "17:00"}}, 30)
	require.NoError(t, err)
	return p
}

func TestNewPolicy_Validation(t *testing.T) {
	tests := []struct {
		name  string
		hours map[string][]string
	}{
		{"unknown day", map[string][]string{"funday": {"09:00", "17:00"}}},
		{"single value", map[string][]string{"monday": {"09:00"}}},
		{"bad clock", map[string][]string{"monday": {"9am", "17:00"}}},
		{"start after end", map[string][]string{"monday": {"17:00", "09:00"}}},
		{"start equals end", map[string][]string{"monday": {"09:00", "09:00"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.hours, 30)
			assert.Error(t, err)
		})
	}
}

func TestNewPolicy_DefaultDuration(t *testing.T) {
	p, err := NewPolicy(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMeetingMinutes, p.DurationMinutes())
	assert.False(t, p.HasHours())
}

func TestCheckHours_InclusiveBoundaries(t *testing.T) {
	p := mondayPolicy(t)
	// 2025-03-03 is a Monday.
	for _, minute := range []int{9 * 60, 9*60 + 1, 12 * 60, 16*60 + 59, 17 * 60} {
		at := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC).Add(time.Duration(minute) * time.Minute)
		assert.NoError(t, p.CheckHours(at), "minute %d should be accepted", minute)
	}
}

func TestCheckHours_RejectsOutsideWindow(t *testing.T) {
	p := mondayPolicy(t)
	for _, minute := range []int{0, 8*60 + 59, 17*60 + 1, 18 * 60, 23*60 + 59} {
		at := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC).Add(time.Duration(minute) * time.Minute)
		err := p.CheckHours(at)
		require.Error(t, err, "minute %d should be rejected", minute)
		assert.True(t, errors.Is(err, ErrOutsideHours))

		var violation *PolicyViolation
		require.True(t, errors.As(err, &violation))
		assert.Equal(t, time.Monday, violation.Day)
		assert.Contains(t, err.Error(), "monday")
	}
}

func TestCheckHours_UnlistedDayPasses(t *testing.T) {
	p := mondayPolicy(t)
	sunday := time.Date(2025, 3, 2, 23, 0, 0, 0, time.UTC)
	assert.NoError(t, p.CheckHours(sunday))
}

func TestCheckHours_UsesInstantLocation(t *testing.T) {
	p := mondayPolicy(t)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 14:00 UTC is 09:00 in New York on 2025-03-03 (EST).
	at := time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC).In(ny)
	assert.NoError(t, p.CheckHours(at))
	assert.Error(t, p.CheckHours(at.Add(-time.Minute)))
}

func TestWindowsOrderedMondayFirst(t *testing.T) {
	p, err := NewPolicy(map[string][]string{
		"sunday":  {"10:00", "12:00"},
		"friday":  {"11:00", "18:00"},
		"monday":  {"09:00", "17:00"},
		"tuesday": {"10:00", "16:00"},
	}, 30)
	require.NoError(t, err)

	days := p.Windows()
	require.Len(t, days, 4)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Friday, time.Sunday},
		[]time.Weekday{days[0].Day, days[1].Day, days[2].Day, days[3].Day})
	assert.Equal(t, "Monday: 09:00 - 17:00\nTuesday: 10:00 - 16:00\nFriday: 11:00 - 18:00\nSunday: 10:00 - 12:00", p.FormatWindows())
}

func TestParseWeekday(t *testing.T) {
	d, ok := ParseWeekday(" Wed ")
	assert.True(t, ok)
	assert.Equal(t, time.Wednesday, d)
	_, ok = ParseWeekday("someday")
	assert.False(t, ok)
}
