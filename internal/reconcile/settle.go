package reconcile

import (
	"strings"

	"hittracker/internal/models"
)

// IsSettled reports whether the local counts of day agree with the
// dashboard baseline, so the day no longer needs syncing. The dashboard
// reports still-pending work as pending and paid work as approved.
func IsSettled(day *models.DaySummary) bool {
	if day == nil || day.Day == nil {
		return false
	}
	base := day.Day

	return base.Pending == day.Submitted &&
		base.Approved == day.Paid &&
		base.Rejected == day.Rejected &&
		base.Submitted == day.Submitted+day.Approved+day.Rejected+day.Paid
}

// Count rolls items up into a summary for date. Earnings sum the rewards
// of every state containing "paid", rounded to cents.
func Count(date string, items []*models.WorkItem) *models.DaySummary {
	day := models.NewDaySummary(date)
	for _, item := range items {
		day.Add(item.State)
		if containsPaid(item.State) {
			day.Earnings = day.Earnings.Add(item.RewardAmount())
		}
	}
	day.Earnings = day.Earnings.Round(2)
	return day
}

func containsPaid(s models.State) bool {
	return strings.Contains(s.Key(), "paid")
}
