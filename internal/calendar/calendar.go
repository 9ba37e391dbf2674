// Package calendar computes the marketplace's business day and the date
// windows derived from it. Every date bucket in the store is keyed by the
// values produced here.
package calendar

import (
	"fmt"
	"time"

	"hittracker/internal/models"
)

const (
	LabelThisWeek  = "This Week"
	LabelLastWeek  = "Last Week"
	LabelThisMonth = "This Month"
	LabelLastMonth = "Last Month"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Calendar resolves business dates under a Policy.
type Calendar struct {
	policy    Policy
	clock     Clock
	weekStart time.Weekday
}

type Option func(*Calendar)

func WithPolicy(p Policy) Option {
	return func(c *Calendar) { c.policy = p }
}

func WithClock(clock Clock) Option {
	return func(c *Calendar) { c.clock = clock }
}

// WithWeekStart sets the first day of a week window. Defaults to Sunday.
func WithWeekStart(d time.Weekday) Option {
	return func(c *Calendar) { c.weekStart = d }
}

func New(opts ...Option) *Calendar {
	c := &Calendar{
		policy:    DefaultPolicy(),
		clock:     SystemClock,
		weekStart: time.Sunday,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// At converts t to the marketplace's fixed-offset wall clock.
func (c *Calendar) At(t time.Time) time.Time {
	offset := c.policy.Offset(t)
	seconds := int(offset / time.Second)
	return t.In(time.FixedZone(fmt.Sprintf("UTC%+d", seconds/3600), seconds))
}

// Now is the current marketplace wall clock.
func (c *Calendar) Now() time.Time {
	return c.At(c.clock.Now())
}

// BusinessDate returns today's bucket in YYYYMMDD form.
func (c *Calendar) BusinessDate() string {
	return c.Now().Format(models.DateLayout)
}

// DateAt returns the bucket t belongs to.
func (c *Calendar) DateAt(t time.Time) string {
	return c.At(t).Format(models.DateLayout)
}

// WeekWindow returns the current week, or the previous full week when today
// is the first day of the week.
func (c *Calendar) WeekWindow() models.Window {
	today := midnight(c.Now())

	since := (int(today.Weekday()) - int(c.weekStart) + 7) % 7
	label := LabelThisWeek
	if since == 0 {
		since = 7
		label = LabelLastWeek
	}

	start := today.AddDate(0, 0, -since)
	end := start.AddDate(0, 0, 6)
	return models.Window{
		Start: start.Format(models.DateLayout),
		End:   end.Format(models.DateLayout),
		Label: label,
	}
}

// MonthWindow returns the current month, or the previous one on the 1st.
// End is always day 31; it is only used as an inclusive upper bound.
func (c *Calendar) MonthWindow() models.Window {
	year, month, day := c.Now().Date()

	label := LabelThisMonth
	if day == 1 {
		label = LabelLastMonth
		month--
		if month < time.January {
			month = time.December
			year--
		}
	}

	return models.Window{
		Start: fmt.Sprintf("%04d%02d01", year, int(month)),
		End:   fmt.Sprintf("%04d%02d31", year, int(month)),
		Label: label,
	}
}

// TodayWindow is the single-day window for the business date.
func (c *Calendar) TodayWindow() models.Window {
	today := c.BusinessDate()
	return models.Window{Start: today, End: today, Label: "Today"}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
