package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"hittracker/internal/models"
)

func TestIsSettled(t *testing.T) {
	local := func(base *models.Baseline) *models.DaySummary {
		return &models.DaySummary{Date: "20240115", Submitted: 5, Approved: 3, Rejected: 1, Paid: 2, Day: base}
	}

	settled := &models.Baseline{Pending: 5, Approved: 2, Rejected: 1, Submitted: 11}
	assert.True(t, IsSettled(local(settled)))

	off := *settled
	off.Submitted = 10
	assert.False(t, IsSettled(local(&off)))

	pending := *settled
	pending.Pending = 4
	assert.False(t, IsSettled(local(&pending)))

	assert.False(t, IsSettled(local(nil)))
	assert.False(t, IsSettled(nil))
}

func TestIsSettled_EmptyDay(t *testing.T) {
	day := models.NewDaySummary("20240115")
	day.Day = &models.Baseline{}
	assert.True(t, IsSettled(day))
}

func TestCount(t *testing.T) {
	items := []*models.WorkItem{
		work("1", "20240115", models.StatePaid, "0.105"),
		work("2", "20240115", models.StatePaid, "0.20"),
		work("3", "20240115", models.StateApproved, "5.00"),
		work("4", "20240115", models.StateSubmitted, "1.00"),
		work("5", "20240115", "Assigned", ""),
		work("6", "20240115", "Prepaid", "0.01"),
		work("7", "20240115", models.StateAbandoned, "1"),
		work("8", "20240115", models.StatePaid, ""),
	}

	day := Count("20240115", items)

	assert.Equal(t, "20240115", day.Date)
	assert.Equal(t, 3, day.Paid)
	assert.Equal(t, 1, day.Approved)
	assert.Equal(t, 1, day.Submitted)
	assert.Equal(t, 1, day.Assigned)
	assert.Equal(t, 1, day.Abandoned)
	assert.Nil(t, day.Day)
	// 0.105 + 0.20 + 0.01 (Prepaid contains "paid")
	assert.True(t, decimal.RequireFromString("0.32").Equal(day.Earnings), day.Earnings.String())
}
