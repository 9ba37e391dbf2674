package calendar

import "time"

// Policy decides the marketplace's UTC offset at a given instant.
type Policy interface {
	Offset(t time.Time) time.Duration
}

// FixedOffset is a Policy that never changes offset.
type FixedOffset time.Duration

func (f FixedOffset) Offset(time.Time) time.Duration { return time.Duration(f) }

// FixedDSTPolicy approximates US Pacific time without a zone database:
// daylight time runs from the second Sunday of March 02:00 until the first
// Sunday of November 02:00, both read on the host's wall clock.
type FixedDSTPolicy struct {
	Standard time.Duration
	Daylight time.Duration
	Host     *time.Location
}

// DefaultPolicy returns the marketplace's historical bucketing rule.
func DefaultPolicy() FixedDSTPolicy {
	return FixedDSTPolicy{
		Standard: -8 * time.Hour,
		Daylight: -7 * time.Hour,
		Host:     time.Local,
	}
}

func (p FixedDSTPolicy) Offset(t time.Time) time.Duration {
	if p.InDaylight(t) {
		return p.Daylight
	}
	return p.Standard
}

// InDaylight reports whether t falls inside the daylight window of its year.
func (p FixedDSTPolicy) InDaylight(t time.Time) bool {
	loc := p.Host
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	year := local.Year()

	// March 14 minus its weekday is always the second Sunday; same for November 7 and the first.
	start := time.Date(year, time.March, 14, 2, 0, 0, 0, loc)
	start = start.AddDate(0, 0, -int(start.Weekday()))
	end := time.Date(year, time.November, 7, 2, 0, 0, 0, loc)
	end = end.AddDate(0, 0, -int(end.Weekday()))

	return !local.Before(start) && local.Before(end)
}
