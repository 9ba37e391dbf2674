package models

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Dashboard is the marketplace's account overview.
type Dashboard struct {
	// Days keyed by business date (YYYYMMDD).
	Days              map[string]Baseline
	AvailableEarnings decimal.Decimal
}

// Dates returns the dashboard's business dates in ascending order.
func (d *Dashboard) Dates() []string {
	dates := make([]string, 0, len(d.Days))
	for date := range d.Days {
		dates = append(dates, date)
	}
	slices.Sort(dates)
	return dates
}

// StatusPage is one page of the per-day status feed.
type StatusPage struct {
	NumResults      int
	TotalNumResults int
	Items           []WorkItem
}

// PageCount returns how many pages the feed spans.
func (p *StatusPage) PageCount() int {
	if p.TotalNumResults <= 0 {
		return 0
	}
	return (p.TotalNumResults + StatusPageSize - 1) / StatusPageSize
}
