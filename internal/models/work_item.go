package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// State is the marketplace lifecycle state of a work item.
type State string

const (
	StateAssigned  State = "Assigned"
	StateAccepted  State = "Accepted"
	StateSubmitted State = "Submitted"
	StateApproved  State = "Approved"
	StateRejected  State = "Rejected"
	StateReturned  State = "Returned"
	StateAbandoned State = "Abandoned"
	StatePaid      State = "Paid"
	StatePending   State = "Pending"
)

// Key returns the lower-cased form used for aggregation buckets.
func (s State) Key() string {
	return strings.ToLower(string(s))
}

// Reward is the payout attached to a work item.
type Reward struct {
	Amount   decimal.Decimal `json:"amount_in_dollars"`
	Currency string          `json:"currency_code,omitempty"`
}

// WorkItem is one unit of remotely tracked task work.
type WorkItem struct {
	ID            string         `json:"hit_id"`
	Date          string         `json:"date"`
	AssignmentID  string         `json:"assignment_id,omitempty"`
	RequesterID   string         `json:"requester_id"`
	RequesterName string         `json:"requester_name"`
	Title         string         `json:"title"`
	Source        string         `json:"source,omitempty"`
	Reward        *Reward        `json:"reward,omitempty"`
	State         State          `json:"state"`
	Answer        map[string]any `json:"answer,omitempty"`
	Feedback      string         `json:"requester_feedback,omitempty"`
}

// RewardAmount returns the reward in dollars, zero when no reward is known.
func (w *WorkItem) RewardAmount() decimal.Decimal {
	if w.Reward == nil {
		return decimal.Zero
	}
	return w.Reward.Amount
}

// IsZeroReward reports whether the item carries a reward of exactly zero.
// The marketplace zeroes the reward once payment has completed.
func (w *WorkItem) IsZeroReward() bool {
	return w.Reward != nil && w.Reward.Amount.IsZero()
}
