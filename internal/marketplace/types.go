package marketplace

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"hittracker/internal/calendar"
	"hittracker/internal/models"
)

type queueResponse struct {
	Tasks []struct {
		TaskID string `json:"task_id"`
	} `json:"tasks"`
}

type money struct {
	AmountInDollars decimal.Decimal `json:"amount_in_dollars"`
	CurrencyCode    *string         `json:"currency_code"`
}

type dailyStat struct {
	Date      string          `json:"date"`
	Submitted int             `json:"submitted"`
	Approved  int             `json:"approved"`
	Rejected  int             `json:"rejected"`
	Pending   int             `json:"pending"`
	Earnings  decimal.Decimal `json:"earnings"`
}

type dashboardResponse struct {
	DailyStats        []dailyStat `json:"daily_hit_statistics_overview"`
	AvailableEarnings money       `json:"available_earnings"`
}

func (r *dashboardResponse) toModel() *models.Dashboard {
	dash := &models.Dashboard{
		Days:              make(map[string]models.Baseline, len(r.DailyStats)),
		AvailableEarnings: r.AvailableEarnings.AmountInDollars,
	}
	for _, s := range r.DailyStats {
		if len(s.Date) < 10 {
			continue
		}
		date := calendar.Compact(s.Date[:10])
		dash.Days[date] = models.Baseline{
			Date:      date,
			Submitted: s.Submitted,
			Approved:  s.Approved,
			Rejected:  s.Rejected,
			Pending:   s.Pending,
			Earnings:  s.Earnings,
		}
	}
	return dash
}

// text decodes any JSON value into a string: strings as-is, null as empty,
// anything else as its raw JSON.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	}
	*t = text(data)
	return nil
}

type statusRecord struct {
	HitID             text           `json:"hit_id"`
	AssignmentID      text           `json:"assignment_id"`
	RequesterID       text           `json:"requester_id"`
	RequesterName     text           `json:"requester_name"`
	Title             text           `json:"title"`
	Source            text           `json:"source"`
	State             text           `json:"state"`
	Reward            *money         `json:"reward"`
	Answer            map[string]any `json:"answer"`
	RequesterFeedback text           `json:"requester_feedback"`
	Feedback          text           `json:"feedback"`
}

func (r *statusRecord) toModel() models.WorkItem {
	item := models.WorkItem{
		ID:            strings.TrimSpace(string(r.HitID)),
		AssignmentID:  string(r.AssignmentID),
		RequesterID:   string(r.RequesterID),
		RequesterName: string(r.RequesterName),
		Title:         string(r.Title),
		Source:        string(r.Source),
		State:         models.State(r.State),
		Answer:        r.Answer,
		Feedback:      string(r.RequesterFeedback),
	}
	if item.Feedback == "" {
		item.Feedback = string(r.Feedback)
	}
	if r.Reward != nil {
		item.Reward = &models.Reward{Amount: r.Reward.AmountInDollars}
		if r.Reward.CurrencyCode != nil {
			item.Reward.Currency = *r.Reward.CurrencyCode
		}
	}
	return item
}

type statusResponse struct {
	NumResults      int            `json:"num_results"`
	TotalNumResults int            `json:"total_num_results"`
	Results         []statusRecord `json:"results"`
}

func (r *statusResponse) toModel() *models.StatusPage {
	page := &models.StatusPage{
		NumResults:      r.NumResults,
		TotalNumResults: r.TotalNumResults,
		Items:           make([]models.WorkItem, 0, len(r.Results)),
	}
	for i := range r.Results {
		item := r.Results[i].toModel()
		if item.ID == "" {
			continue
		}
		page.Items = append(page.Items, item)
	}
	return page
}
