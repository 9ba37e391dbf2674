package calendar

import (
	"fmt"
	"strings"
	"time"

	"hittracker/internal/models"
)

// Parse reads a YYYYMMDD business date.
func Parse(date string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid business date %q: %w", date, err)
	}
	return t, nil
}

// Valid reports whether date is a well-formed YYYYMMDD value.
func Valid(date string) bool {
	_, err := Parse(date)
	return err == nil
}

// Dashed converts YYYYMMDD to the YYYY-MM-DD form used on the wire.
func Dashed(date string) string {
	if len(date) != 8 {
		return date
	}
	return date[0:4] + "-" + date[4:6] + "-" + date[6:8]
}

// Compact converts a wire date or timestamp ("2024-01-15", "2024-01-15T00:00:00-08:00")
// to YYYYMMDD.
func Compact(s string) string {
	if len(s) > 10 {
		s = s[:10]
	}
	return strings.ReplaceAll(s, "-", "")
}

// AddDays shifts a business date by n calendar days.
func AddDays(date string, n int) (string, error) {
	t, err := Parse(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(models.DateLayout), nil
}
