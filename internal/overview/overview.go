package overview

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"hittracker/internal/calendar"
	"hittracker/internal/domain"
	"hittracker/internal/models"
)

var ErrUnknownPeriod = errors.New("unknown overview period")

// Periods accepted by Period.
const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// Reward bucket labels, in cents.
var bucketLabels = []string{"0-4", "5-9", "10-19", "20-49", "50-99", "100+"}

// Upper bounds in dollars; an amount above bound i falls in bucket i+1.
var bucketBounds = []decimal.Decimal{
	decimal.RequireFromString("0.05"),
	decimal.RequireFromString("0.10"),
	decimal.RequireFromString("0.20"),
	decimal.RequireFromString("0.50"),
	decimal.RequireFromString("1.00"),
}

type Tally struct {
	Count int             `json:"count"`
	Value decimal.Decimal `json:"value"`
}

func (t *Tally) add(v decimal.Decimal) {
	t.Count++
	t.Value = t.Value.Add(v)
}

type Counts struct {
	Assigned  Tally `json:"assigned"`
	Submitted Tally `json:"submitted"`
	Approved  Tally `json:"approved"`
	Pending   Tally `json:"pending"`
	Returned  Tally `json:"returned"`
	Rejected  Tally `json:"rejected"`
}

type Requester struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Count int             `json:"count"`
	Value decimal.Decimal `json:"value"`
}

// Group is submitted work sharing requester, title and reward.
type Group struct {
	RequesterName string          `json:"requester_name"`
	Title         string          `json:"title"`
	Reward        decimal.Decimal `json:"reward"`
	Count         int             `json:"count"`
	Value         decimal.Decimal `json:"value"`
}

type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Overview rolls up the work items of a date window.
type Overview struct {
	Window     models.Window              `json:"window"`
	Days       map[string]decimal.Decimal `json:"days"`
	Counts     Counts                     `json:"counts"`
	Requesters []Requester                `json:"requesters"`
	Groups     []Group                    `json:"groups"`
	Rewards    []Bucket                   `json:"rewards"`
}

// Totals are the standing balances across all dates.
type Totals struct {
	Pending      Tally               `json:"pending"`
	Awaiting     Tally               `json:"awaiting"`
	Transferable decimal.NullDecimal `json:"transferable"`
}

// Dashboards supplies the transferable balance.
type Dashboards interface {
	FetchDashboard(ctx context.Context) (*models.Dashboard, error)
}

type Service struct {
	store    domain.Store
	calendar *calendar.Calendar
	remote   Dashboards
	logger   *zerolog.Logger
}

// NewService builds the overview service. remote may be nil, in which case
// Totals leaves the transferable balance unset.
func NewService(store domain.Store, cal *calendar.Calendar, remote Dashboards, logger *zerolog.Logger) *Service {
	return &Service{store: store, calendar: cal, remote: remote, logger: logger}
}

// Window resolves a named period against the business calendar.
func (s *Service) Window(period string) (models.Window, error) {
	switch strings.ToLower(period) {
	case PeriodToday:
		return s.calendar.TodayWindow(), nil
	case PeriodWeek:
		return s.calendar.WeekWindow(), nil
	case PeriodMonth:
		return s.calendar.MonthWindow(), nil
	default:
		return models.Window{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}
}

// Period returns the overview of a named period.
func (s *Service) Period(ctx context.Context, period string) (*Overview, error) {
	w, err := s.Window(period)
	if err != nil {
		return nil, err
	}
	return s.Range(ctx, w)
}

// Range returns the overview of every item dated within w.
func (s *Service) Range(ctx context.Context, w models.Window) (*Overview, error) {
	var items []*models.WorkItem
	err := s.store.View(ctx, func(tx domain.Tx) error {
		var err error
		items, err = tx.WorkItemsByDate(ctx, w.Start, w.End)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load items %s-%s: %w", w.Start, w.End, err)
	}

	o := Summarize(items)
	o.Window = w
	return o, nil
}

// Summarize rolls items up. Submitted covers Submitted, Pending, Approved
// and Paid work; only submitted work feeds requesters, groups and buckets.
func Summarize(items []*models.WorkItem) *Overview {
	o := &Overview{Days: make(map[string]decimal.Decimal)}
	requesters := make(map[string]*Requester)
	groups := make(map[string]*Group)
	buckets := make([]int, len(bucketLabels))

	for _, item := range items {
		amount := item.RewardAmount()
		state := string(item.State)

		o.Days[item.Date] = o.Days[item.Date].Add(amount)
		o.Counts.Assigned.add(amount)

		switch {
		case containsAny(state, "Submitted", "Pending", "Approved", "Paid"):
			o.Counts.Submitted.add(amount)
			if containsAny(state, "Approved", "Paid") {
				o.Counts.Approved.add(amount)
			} else {
				o.Counts.Pending.add(amount)
			}

			r, ok := requesters[item.RequesterID]
			if !ok {
				r = &Requester{ID: item.RequesterID, Name: item.RequesterName}
				requesters[item.RequesterID] = r
			}
			r.Count++
			r.Value = r.Value.Add(amount)

			key := item.RequesterName + "\x00" + item.Title + "\x00" + amount.String()
			g, ok := groups[key]
			if !ok {
				g = &Group{RequesterName: item.RequesterName, Title: item.Title, Reward: amount}
				groups[key] = g
			}
			g.Count++
			g.Value = g.Value.Add(amount)

			buckets[bucketOf(amount)]++
		case strings.Contains(state, "Returned"):
			o.Counts.Returned.add(amount)
		case strings.Contains(state, "Rejected"):
			o.Counts.Rejected.add(amount)
		}
	}

	for _, r := range requesters {
		o.Requesters = append(o.Requesters, *r)
	}
	slices.SortFunc(o.Requesters, func(a, b Requester) int {
		if c := b.Value.Cmp(a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	for _, g := range groups {
		o.Groups = append(o.Groups, *g)
	}
	slices.SortFunc(o.Groups, func(a, b Group) int {
		if c := b.Value.Cmp(a.Value); c != 0 {
			return c
		}
		return cmp.Or(cmp.Compare(a.RequesterName, b.RequesterName), cmp.Compare(a.Title, b.Title))
	})

	for i, label := range bucketLabels {
		o.Rewards = append(o.Rewards, Bucket{Label: label, Count: buckets[i]})
	}
	return o
}

// Totals returns pending (Submitted) and awaiting payment (Approved) totals
// and the transferable balance reported by the dashboard.
func (s *Service) Totals(ctx context.Context) (*Totals, error) {
	var t Totals
	err := s.store.View(ctx, func(tx domain.Tx) error {
		submitted, err := tx.WorkItemsByState(ctx, models.StateSubmitted)
		if err != nil {
			return err
		}
		approved, err := tx.WorkItemsByState(ctx, models.StateApproved)
		if err != nil {
			return err
		}
		for _, item := range submitted {
			t.Pending.add(item.RewardAmount())
		}
		for _, item := range approved {
			t.Awaiting.add(item.RewardAmount())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load totals: %w", err)
	}

	if s.remote == nil {
		return &t, nil
	}
	dash, err := s.remote.FetchDashboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch dashboard: %w", err)
	}
	t.Transferable = decimal.NewNullDecimal(dash.AvailableEarnings)
	return &t, nil
}

func bucketOf(amount decimal.Decimal) int {
	i := 0
	for i < len(bucketBounds) && amount.GreaterThan(bucketBounds[i]) {
		i++
	}
	return i
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
