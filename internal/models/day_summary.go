package models

import "github.com/shopspring/decimal"

// Baseline is the marketplace dashboard's own summary for one business day.
type Baseline struct {
	Date      string          `json:"date"`
	Submitted int             `json:"submitted"`
	Approved  int             `json:"approved"`
	Rejected  int             `json:"rejected"`
	Pending   int             `json:"pending"`
	Earnings  decimal.Decimal `json:"earnings"`
}

// DaySummary is the local per-business-day rollup of work items.
type DaySummary struct {
	Date      string          `json:"date"`
	Assigned  int             `json:"assigned"`
	Returned  int             `json:"returned"`
	Abandoned int             `json:"abandoned"`
	Submitted int             `json:"submitted"`
	Approved  int             `json:"approved"`
	Rejected  int             `json:"rejected"`
	Pending   int             `json:"pending"`
	Paid      int             `json:"paid"`
	Earnings  decimal.Decimal `json:"earnings"`
	Day       *Baseline       `json:"day,omitempty"`
}

// NewDaySummary returns a zero-initialized summary for date.
func NewDaySummary(date string) *DaySummary {
	return &DaySummary{Date: date, Earnings: decimal.Zero}
}

// Add counts one item in the bucket for state. Unknown states are ignored
// and reported as false.
func (d *DaySummary) Add(state State) bool {
	switch state.Key() {
	case "assigned":
		d.Assigned++
	case "returned":
		d.Returned++
	case "abandoned":
		d.Abandoned++
	case "submitted":
		d.Submitted++
	case "approved":
		d.Approved++
	case "rejected":
		d.Rejected++
	case "pending":
		d.Pending++
	case "paid":
		d.Paid++
	default:
		return false
	}
	return true
}

// Counts returns the same summary without its baseline.
func (d DaySummary) Counts() DaySummary {
	d.Day = nil
	return d
}

// Window is an inclusive range of business dates with a display label.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label"`
}
