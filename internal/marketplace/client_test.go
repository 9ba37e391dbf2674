package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"hittracker/internal/models"
)

func fastRetry(max int) RetryPolicy {
	return RetryPolicy{MaxRetries: max, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

func newTestClient(t *testing.T, baseURL string, retry RetryPolicy) *Client {
	t.Helper()
	logger := zerolog.Nop()
	c, err := NewClient(Options{BaseURL: baseURL, Cookie: "session=abc", UserAgent: "hittracker-test", Retry: retry}, &logger)
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "worker.example"}, nil)
	assert.Error(t, err)
}

func TestFetchQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "session=abc", r.Header.Get("Cookie"))
		assert.Equal(t, "hittracker-test", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"tasks":[{"task_id":"A"},{"task_id":"B"}]}`)
	}))
	defer srv.Close()

	ids, err := newTestClient(t, srv.URL, fastRetry(0)).FetchQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids)
}

func TestFetchDashboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dashboard", r.URL.Path)
		fmt.Fprint(w, `{
			"available_earnings": {"amount_in_dollars": 12.34, "currency_code": "USD"},
			"daily_hit_statistics_overview": [
				{"date": "2024-01-15T00:00:00-08:00", "submitted": 11, "approved": 2, "rejected": 1, "pending": 5, "earnings": 1.5},
				{"date": "2024-01-14", "submitted": 3, "approved": 3, "rejected": 0, "pending": 0, "earnings": 0.3},
				{"date": "bad"}
			]
		}`)
	}))
	defer srv.Close()

	dash, err := newTestClient(t, srv.URL, fastRetry(0)).FetchDashboard(context.Background())
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("12.34").Equal(dash.AvailableEarnings))
	assert.Equal(t, []string{"20240114", "20240115"}, dash.Dates())

	day := dash.Days["20240115"]
	assert.Equal(t, "20240115", day.Date)
	assert.Equal(t, 11, day.Submitted)
	assert.Equal(t, 5, day.Pending)
	assert.True(t, decimal.RequireFromString("1.5").Equal(day.Earnings))
}

func TestFetchStatusPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status_details/2024-01-15", r.URL.Path)
		assert.Equal(t, "page_number=2&format=json", r.URL.RawQuery)
		fmt.Fprint(w, `{
			"num_results": 2,
			"total_num_results": 22,
			"results": [
				{"hit_id": "H1", "requester_id": "R1", "requester_name": "Req", "title": "Tag", "state": "Approved",
				 "reward": {"amount_in_dollars": 0.05, "currency_code": "USD"}, "answer": {"q": "a"}, "requester_feedback": "thanks",
				 "source": null, "assignment_id": "AS1"},
				{"hit_id": "H2", "requester_id": "R2", "state": "Submitted", "feedback": "nice", "source": {"url": "x"}},
				{"requester_id": "R3", "state": "Submitted"}
			]
		}`)
	}))
	defer srv.Close()

	page, err := newTestClient(t, srv.URL, fastRetry(0)).FetchStatusPage(context.Background(), "20240115", 2)
	require.NoError(t, err)

	assert.Equal(t, 2, page.NumResults)
	assert.Equal(t, 22, page.TotalNumResults)
	assert.Equal(t, 2, page.PageCount())
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, "H1", first.ID)
	assert.Equal(t, "AS1", first.AssignmentID)
	assert.Equal(t, models.StateApproved, first.State)
	require.NotNil(t, first.Reward)
	assert.Equal(t, "USD", first.Reward.Currency)
	assert.True(t, decimal.RequireFromString("0.05").Equal(first.Reward.Amount))
	assert.Equal(t, "thanks", first.Feedback)
	assert.Equal(t, "", first.Source)
	assert.Equal(t, map[string]any{"q": "a"}, first.Answer)

	second := page.Items[1]
	assert.Equal(t, "nice", second.Feedback)
	assert.Equal(t, `{"url": "x"}`, second.Source)
	assert.Nil(t, second.Reward)
}

func TestFetchStatusPage_InvalidArgs(t *testing.T) {
	c := newTestClient(t, "http://worker.example", fastRetry(0))

	_, err := c.FetchStatusPage(context.Background(), "2024-01-15", 1)
	assert.Error(t, err)
	_, err = c.FetchStatusPage(context.Background(), "20240115", 0)
	assert.Error(t, err)
}

func TestTransientFailuresAreRetried(t *testing.T) {
	tests := []struct {
		name    string
		failing http.HandlerFunc
	}{
		{
			name: "server error",
			failing: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
		},
		{
			name: "malformed body",
			failing: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<html>busy</html>`)
			},
		},
		{
			name: "same host redirect",
			failing: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/maintenance", http.StatusFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/maintenance" {
					fmt.Fprint(w, `{}`)
					return
				}
				if calls.Add(1) <= 2 {
					tt.failing(w, r)
					return
				}
				fmt.Fprint(w, `{"tasks":[{"task_id":"A"}]}`)
			}))
			defer srv.Close()

			ids, err := newTestClient(t, srv.URL, fastRetry(5)).FetchQueue(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"A"}, ids)
			assert.Equal(t, int32(3), calls.Load())
		})
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, fastRetry(2)).FetchDashboard(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.True(t, IsTransient(err))

	var te *TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, ReasonStatus, te.Reason)
	assert.Equal(t, http.StatusInternalServerError, te.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAuthenticationLost(t *testing.T) {
	login := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>sign in</html>`)
	}))
	defer login.Close()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Redirect(w, r, login.URL+"/signin", http.StatusFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, fastRetry(5)).FetchStatusPage(context.Background(), "20240115", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationLost)
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCancellationStopsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	retry := RetryPolicy{MaxRetries: -1, InitialDelay: time.Hour, BackoffFactor: 2}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestClient(t, srv.URL, retry).FetchQueue(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRateLimiterDisabledByDefault(t *testing.T) {
	c := newTestClient(t, "http://worker.example", fastRetry(0))
	assert.Equal(t, rate.Inf, c.limiter.Limit())
}
