package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Key(t *testing.T) {
	assert.Equal(t, "paid", StatePaid.Key())
	assert.Equal(t, "abandoned", State("ABANDONED").Key())
}

func TestDaySummary_Add(t *testing.T) {
	d := NewDaySummary("20240115")

	for _, s := range []State{StateAssigned, StateSubmitted, StateSubmitted, StatePaid, "approved", StatePending} {
		assert.True(t, d.Add(s))
	}
	assert.False(t, d.Add("Expired"))

	assert.Equal(t, 1, d.Assigned)
	assert.Equal(t, 2, d.Submitted)
	assert.Equal(t, 1, d.Paid)
	assert.Equal(t, 1, d.Approved)
	assert.Equal(t, 1, d.Pending)
	assert.True(t, d.Earnings.IsZero())
}

func TestDaySummary_Counts(t *testing.T) {
	d := DaySummary{Date: "20240115", Paid: 3, Day: &Baseline{Approved: 3}}
	c := d.Counts()
	assert.Nil(t, c.Day)
	assert.Equal(t, 3, c.Paid)
	assert.NotNil(t, d.Day)
}

func TestWorkItem_JSON(t *testing.T) {
	raw := `{"hit_id":"H1","requester_id":"R1","requester_name":"Req","title":"Tag images",
		"state":"Approved","reward":{"amount_in_dollars":0.05,"currency_code":"USD"},
		"answer":{"q1":"yes"}}`

	var item WorkItem
	require.NoError(t, json.Unmarshal([]byte(raw), &item))
	assert.Equal(t, "H1", item.ID)
	assert.Equal(t, StateApproved, item.State)
	assert.True(t, item.RewardAmount().Equal(decimal.RequireFromString("0.05")))
	assert.False(t, item.IsZeroReward())
	assert.Equal(t, "yes", item.Answer["q1"])

	out, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"amount_in_dollars":0.05`)
}

func TestWorkItem_ZeroReward(t *testing.T) {
	item := WorkItem{ID: "H1"}
	assert.False(t, item.IsZeroReward())
	assert.True(t, item.RewardAmount().IsZero())

	item.Reward = &Reward{Amount: decimal.Zero}
	assert.True(t, item.IsZeroReward())
}
