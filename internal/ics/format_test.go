package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateFormatter_NamedZone(t *testing.T) {
	f, err := NewDateFormatter("America/New_York")
	require.NoError(t, err)
	assert.True(t, f.Named())
	assert.Equal(t, "America/New_York", f.Zone())

	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"winter offset", time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC), "20250115T070000"},
		{"summer offset", time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC), "20250701T080000"},
		{"crosses midnight", time.Date(2025, 12, 1, 3, 4, 5, 0, time.UTC), "20251130T220405"},
		{"just before spring forward", time.Date(2025, 3, 9, 6, 59, 59, 0, time.UTC), "20250309T015959"},
		{"just after spring forward", time.Date(2025, 3, 9, 7, 0, 0, 0, time.UTC), "20250309T030000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Format(tt.in))
		})
	}
}

func TestDateFormatter_UTC(t *testing.T) {
	for _, tz := range []string{"", "UTC", "utc", "Etc/UTC"} {
		f, err := NewDateFormatter(tz)
		require.NoError(t, err, tz)
		assert.False(t, f.Named())
		assert.Equal(t, "UTC", f.Zone())

		in := time.Date(2025, 12, 1, 9, 0, 0, 0, time.FixedZone("X", 3*3600))
		assert.Equal(t, "20251201T060000Z", f.Format(in))
	}
}

func TestDateFormatter_InvalidZone(t *testing.T) {
	_, err := NewDateFormatter("Mars/Olympus_Mons")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTimezone)
	assert.Contains(t, err.Error(), "Mars/Olympus_Mons")

	assert.Panics(t, func() { MustDateFormatter("Not/AZone") })
}
