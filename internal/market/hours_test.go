package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}

func TestIsRegularHours(t *testing.T) {
	cal := NewCalendar("")
	loc := chicago(t)

	tests := []struct {
		name string
		when time.Time
		want bool
	}{
		{
			name: "weekday session",
			when: time.Date(2024, 11, 19, 10, 30, 0, 0, loc), // Tuesday
			want: true,
		},
		{
			name: "weekday overnight",
			when: time.Date(2024, 11, 19, 2, 0, 0, 0, loc),
			want: true,
		},
		{
			name: "daily maintenance break",
			when: time.Date(2024, 11, 19, 16, 30, 0, 0, loc),
			want: false,
		},
		{
			name: "session reopen after break",
			when: time.Date(2024, 11, 19, 17, 0, 0, 0, loc),
			want: true,
		},
		{
			name: "saturday morning still open",
			when: time.Date(2024, 11, 23, 10, 0, 0, 0, loc),
			want: true,
		},
		{
			name: "saturday afternoon closed",
			when: time.Date(2024, 11, 23, 16, 0, 0, 0, loc),
			want: false,
		},
		{
			name: "sunday before reopen closed",
			when: time.Date(2024, 11, 24, 12, 0, 0, 0, loc),
			want: false,
		},
		{
			name: "sunday evening reopen",
			when: time.Date(2024, 11, 24, 17, 30, 0, 0, loc),
			want: true,
		},
		{
			name: "christmas closed",
			when: time.Date(2024, 12, 25, 10, 0, 0, 0, loc),
			want: false,
		},
		{
			name: "thanksgiving closed",
			when: time.Date(2024, 11, 28, 10, 0, 0, 0, loc), // fourth Thursday
			want: false,
		},
		{
			name: "utc input converted to exchange local",
			when: time.Date(2024, 11, 19, 22, 30, 0, 0, time.UTC), // 16:30 Chicago
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.IsRegularHours(tt.when))
		})
	}
}

func TestNewCalendarFallsBackToDefault(t *testing.T) {
	cal := NewCalendar("Not/AZone")
	assert.Equal(t, DefaultTimezone, cal.Location().String())
}
