package calendar

import (
	"testing"
	"time"

	"hittracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedAt(t *testing.T, value string, opts ...Option) *Calendar {
	t.Helper()
	instant, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)

	policy := DefaultPolicy()
	policy.Host = time.UTC
	base := []Option{WithPolicy(policy), WithClock(ClockFunc(func() time.Time { return instant }))}
	return New(append(base, opts...)...)
}

func TestBusinessDate_MidnightBoundary(t *testing.T) {
	tests := []struct {
		name    string
		instant string
		want    string
	}{
		{"standard time before midnight", "2024-01-15T07:59:59Z", "20240114"},
		{"standard time at midnight", "2024-01-15T08:00:00Z", "20240115"},
		{"daylight time before midnight", "2024-07-01T06:59:59Z", "20240630"},
		{"daylight time after midnight", "2024-07-01T07:00:01Z", "20240701"},
		{"new year in UTC is still old year", "2024-01-01T03:00:00Z", "20231231"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fixedAt(t, tt.instant).BusinessDate())
		})
	}
}

func TestFixedDSTPolicy_Boundaries(t *testing.T) {
	p := FixedDSTPolicy{Standard: -8 * time.Hour, Daylight: -7 * time.Hour, Host: time.UTC}

	tests := []struct {
		instant string
		want    bool
	}{
		{"2024-03-10T01:59:59Z", false},
		{"2024-03-10T02:00:00Z", true},
		{"2024-11-03T01:59:59Z", true},
		{"2024-11-03T02:00:00Z", false},
		// March 14 2021 was itself the second Sunday.
		{"2021-03-13T12:00:00Z", false},
		{"2021-03-14T02:00:00Z", true},
		{"2021-11-07T01:00:00Z", true},
		{"2021-11-07T02:00:00Z", false},
	}

	for _, tt := range tests {
		t.Run(tt.instant, func(t *testing.T) {
			instant, err := time.Parse(time.RFC3339, tt.instant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.InDaylight(instant))
		})
	}
}

func TestFixedOffsetPolicy(t *testing.T) {
	instant := time.Date(2024, 7, 1, 7, 30, 0, 0, time.UTC)
	c := New(WithPolicy(FixedOffset(-8*time.Hour)), WithClock(ClockFunc(func() time.Time { return instant })))
	assert.Equal(t, "20240630", c.BusinessDate())
	assert.Equal(t, "20240701", c.DateAt(instant.Add(time.Hour)))
}

func TestWeekWindow(t *testing.T) {
	tests := []struct {
		name    string
		instant string
		opts    []Option
		want    models.Window
	}{
		{
			name:    "midweek",
			instant: "2024-01-17T20:00:00Z",
			want:    models.Window{Start: "20240114", End: "20240120", Label: LabelThisWeek},
		},
		{
			name:    "saturday closes the week",
			instant: "2024-01-20T20:00:00Z",
			want:    models.Window{Start: "20240114", End: "20240120", Label: LabelThisWeek},
		},
		{
			name:    "sunday reports last week",
			instant: "2024-01-21T20:00:00Z",
			want:    models.Window{Start: "20240114", End: "20240120", Label: LabelLastWeek},
		},
		{
			name:    "monday week start",
			instant: "2024-01-17T20:00:00Z",
			opts:    []Option{WithWeekStart(time.Monday)},
			want:    models.Window{Start: "20240115", End: "20240121", Label: LabelThisWeek},
		},
		{
			name:    "window crosses month",
			instant: "2024-03-01T20:00:00Z",
			want:    models.Window{Start: "20240225", End: "20240302", Label: LabelThisWeek},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fixedAt(t, tt.instant, tt.opts...).WeekWindow())
		})
	}
}

func TestMonthWindow(t *testing.T) {
	tests := []struct {
		name    string
		instant string
		want    models.Window
	}{
		{"mid month", "2024-03-15T20:00:00Z", models.Window{Start: "20240301", End: "20240331", Label: LabelThisMonth}},
		{"first of month", "2024-03-01T20:00:00Z", models.Window{Start: "20240201", End: "20240231", Label: LabelLastMonth}},
		{"first of january", "2024-01-01T20:00:00Z", models.Window{Start: "20231201", End: "20231231", Label: LabelLastMonth}},
		{"second of month", "2024-03-02T20:00:00Z", models.Window{Start: "20240301", End: "20240331", Label: LabelThisMonth}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fixedAt(t, tt.instant).MonthWindow())
		})
	}
}

func TestDates(t *testing.T) {
	assert.Equal(t, "2024-01-05", Dashed("20240105"))
	assert.Equal(t, "bad", Dashed("bad"))
	assert.Equal(t, "20240105", Compact("2024-01-05T00:00:00-08:00"))
	assert.Equal(t, "20240105", Compact("2024-01-05"))
	assert.True(t, Valid("20240229"))
	assert.False(t, Valid("20230229"))
	assert.False(t, Valid("2024-01-05"))

	d, err := AddDays("20240301", -31)
	require.NoError(t, err)
	assert.Equal(t, "20240130", d)

	_, err = AddDays("nope", 1)
	assert.Error(t, err)
}
