package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"hittracker/internal/calendar"
	"hittracker/internal/metrics"
	"hittracker/internal/models"
)

const (
	endpointQueue     = "queue"
	endpointDashboard = "dashboard"
	endpointStatus    = "status_details"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Cookie     string
	UserAgent  string
	Timeout    time.Duration
	Retry      RetryPolicy
	RPS        float64
	Burst      int
	HTTPClient *http.Client
}

// Client talks to the marketplace's JSON endpoints on behalf of one
// authenticated session.
type Client struct {
	base       *url.URL
	cookie     string
	userAgent  string
	httpClient *http.Client
	retry      RetryPolicy
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient validates opts and builds a client.
func NewClient(opts Options, logger *zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := opts.Burst
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
		if burst <= 0 {
			burst = 1
		}
	}

	c := &Client{
		base:       base,
		cookie:     opts.Cookie,
		userAgent:  opts.UserAgent,
		httpClient: httpClient,
		retry:      opts.Retry,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     zerolog.Nop(),
	}
	if logger != nil {
		c.logger = logger.With().Str("component", "marketplace").Logger()
	}
	return c, nil
}

// FetchQueue returns the ids of tasks currently in the worker's queue.
func (c *Client) FetchQueue(ctx context.Context) ([]string, error) {
	var resp queueResponse
	if err := c.getJSON(ctx, endpointQueue, "/tasks", "format=json", &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Tasks))
	for _, t := range resp.Tasks {
		ids = append(ids, t.TaskID)
	}
	return ids, nil
}

// FetchDashboard returns per-day baselines and the transferable balance.
func (c *Client) FetchDashboard(ctx context.Context) (*models.Dashboard, error) {
	var resp dashboardResponse
	if err := c.getJSON(ctx, endpointDashboard, "/dashboard", "format=json", &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// FetchStatusPage returns one page of the status feed for date (YYYYMMDD).
func (c *Client) FetchStatusPage(ctx context.Context, date string, page int) (*models.StatusPage, error) {
	if !calendar.Valid(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}
	if page < 1 {
		return nil, fmt.Errorf("invalid page %d", page)
	}

	var resp statusResponse
	path := "/status_details/" + calendar.Dashed(date)
	query := fmt.Sprintf("page_number=%d&format=json", page)
	if err := c.getJSON(ctx, endpointStatus, path, query, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path, rawQuery string, out any) error {
	target := *c.base
	target.Path = strings.TrimRight(c.base.Path, "/") + path
	target.RawQuery = rawQuery
	requested := target.String()

	for attempt := 1; ; attempt++ {
		err := c.attempt(ctx, endpoint, requested, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAuthenticationLost) {
			c.logger.Error().Str("endpoint", endpoint).Err(err).Msg("Session lost")
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if c.retry.Exhausted(attempt) {
			return fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, endpoint, attempt, err)
		}

		delay := c.retry.NextDelay(attempt)
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Err(err).
			Msg("Marketplace request failed, retrying")

		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) attempt(ctx context.Context, endpoint, requested string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requested, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRemote(endpoint, ReasonNetwork, time.Since(start))
		return &TransientError{Endpoint: endpoint, Reason: ReasonNetwork, Err: err}
	}
	defer resp.Body.Close()

	final := resp.Request.URL
	if !c.onBaseHost(final) {
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.ObserveRemote(endpoint, "auth_lost", time.Since(start))
		return fmt.Errorf("%w: %s landed on %s", ErrAuthenticationLost, endpoint, final.Redacted())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.ObserveRemote(endpoint, ReasonStatus, time.Since(start))
		return &TransientError{Endpoint: endpoint, Reason: ReasonStatus, Status: resp.StatusCode}
	}
	if final.String() != req.URL.String() {
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.ObserveRemote(endpoint, ReasonRedirect, time.Since(start))
		return &TransientError{Endpoint: endpoint, Reason: ReasonRedirect, URL: final.Redacted()}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.ObserveRemote(endpoint, ReasonMalformed, time.Since(start))
		return &TransientError{Endpoint: endpoint, Reason: ReasonMalformed, Err: err}
	}

	metrics.ObserveRemote(endpoint, "ok", time.Since(start))
	return nil
}

func (c *Client) onBaseHost(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.base.Scheme) && strings.EqualFold(u.Host, c.base.Host)
}
