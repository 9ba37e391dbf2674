package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hittracker/internal/calendar"
	"hittracker/internal/domain"
	"hittracker/internal/marketplace"
	"hittracker/internal/metrics"
	"hittracker/internal/models"
)

// ErrDaysFailed is returned by SyncLast45 when some days could not be synced.
var ErrDaysFailed = errors.New("some days failed to sync")

// Engine reconciles the local store with the marketplace.
type Engine struct {
	store       domain.Store
	remote      domain.Marketplace
	calendar    *calendar.Calendar
	reporter    domain.Reporter
	precedence  PrecedenceTable
	concurrency int
	windowDays  int
	logger      zerolog.Logger
}

type Option func(*Engine)

func WithReporter(r domain.Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporter = r
		}
	}
}

func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithWindow limits batch syncs to the newest days dashboard dates; 0 disables the limit.
func WithWindow(days int) Option {
	return func(e *Engine) { e.windowDays = days }
}

func WithPrecedence(table PrecedenceTable) Option {
	return func(e *Engine) {
		if table != nil {
			e.precedence = table
		}
	}
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.With().Str("component", "reconcile").Logger()
		}
	}
}

func NewEngine(store domain.Store, remote domain.Marketplace, cal *calendar.Calendar, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		remote:      remote,
		calendar:    cal,
		reporter:    domain.NopReporter{},
		precedence:  DefaultPrecedence,
		concurrency: models.DefaultSyncConcurrency,
		windowDays:  models.SyncWindowDays,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calendar returns the business calendar the engine resolves "today" with.
func (e *Engine) Calendar() *calendar.Calendar { return e.calendar }

// RefreshBaseline fetches the dashboard and stores every reported day's
// baseline on its summary, creating empty summaries as needed.
func (e *Engine) RefreshBaseline(ctx context.Context) (*models.Dashboard, error) {
	e.reporter.ReportProgress("", "fetching dashboard")

	dash, err := e.remote.FetchDashboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch dashboard: %w", err)
	}

	err = e.store.Update(ctx, func(tx domain.Tx) error {
		for _, date := range dash.Dates() {
			baseline := dash.Days[date]

			day, err := tx.GetDaySummary(ctx, date)
			if err != nil {
				return err
			}
			if day == nil {
				day = models.NewDaySummary(date)
			}
			day.Day = &baseline
			if err := tx.PutDaySummary(ctx, day); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store baselines: %w", err)
	}

	e.logger.Debug().Int("days", len(dash.Days)).Msg("Baselines refreshed")
	return dash, nil
}

// PrepareDay marks items of date that silently left the queue as
// Abandoned. Accepted and Submitted items are always abandoned here, the
// status feed restores those that still exist. It returns the number of
// items changed.
func (e *Engine) PrepareDay(ctx context.Context, date string) (int, error) {
	e.reporter.ReportProgress(date, "preparing sync")
	e.reporter.ReportProgress(date, "fetching queue")

	queue, err := e.remote.FetchQueue(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch queue: %w", err)
	}
	inQueue := make(map[string]struct{}, len(queue))
	for _, id := range queue {
		inQueue[id] = struct{}{}
	}

	abandoned := 0
	err = e.store.Update(ctx, func(tx domain.Tx) error {
		items, err := tx.WorkItemsByDate(ctx, date, date)
		if err != nil {
			return err
		}
		for _, item := range items {
			if !shouldAbandon(item, inQueue) {
				continue
			}
			item.State = models.StateAbandoned
			if err := tx.PutWorkItem(ctx, item); err != nil {
				return err
			}
			abandoned++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("abandon sweep %s: %w", date, err)
	}

	metrics.AddAbandoned(abandoned)
	return abandoned, nil
}

func shouldAbandon(item *models.WorkItem, inQueue map[string]struct{}) bool {
	switch item.State {
	case models.StateAccepted, models.StateSubmitted:
		return true
	case models.StateAssigned:
		_, ok := inQueue[item.ID]
		return !ok
	default:
		return false
	}
}

// SyncPages walks the status feed of date page by page, committing each
// page before the next is fetched. It returns the number of merged items.
func (e *Engine) SyncPages(ctx context.Context, date string) (int, error) {
	merged := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return merged, err
		}

		result, err := e.remote.FetchStatusPage(ctx, date, page)
		if err != nil {
			return merged, fmt.Errorf("fetch status page %d of %s: %w", page, date, err)
		}
		if result.NumResults <= 0 {
			break
		}

		e.reporter.ReportProgress(date, fmt.Sprintf("Updating page %d of %d for %d HITs",
			page, result.PageCount(), result.TotalNumResults))

		err = e.store.Update(ctx, func(tx domain.Tx) error {
			for i := range result.Items {
				remote := result.Items[i]

				local, err := tx.GetWorkItem(ctx, remote.ID)
				if err != nil {
					return err
				}
				item := Merge(local, remote, date, e.precedence)
				if err := tx.PutWorkItem(ctx, &item); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return merged, fmt.Errorf("merge page %d of %s: %w", page, date, err)
		}
		merged += len(result.Items)
	}

	metrics.AddMerged(merged)
	return merged, nil
}

// CountDay tallies the stored items of date without saving.
func (e *Engine) CountDay(ctx context.Context, date string) (*models.DaySummary, error) {
	var day *models.DaySummary
	err := e.store.View(ctx, func(tx domain.Tx) error {
		var err error
		day, err = countDay(ctx, tx, date)
		return err
	})
	return day, err
}

// SaveDay recounts date and stores the summary, keeping its baseline.
func (e *Engine) SaveDay(ctx context.Context, date string) (*models.DaySummary, error) {
	var day *models.DaySummary
	err := e.store.Update(ctx, func(tx domain.Tx) error {
		var err error
		day, err = saveDay(ctx, tx, date)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("save day %s: %w", date, err)
	}
	return day, nil
}

func countDay(ctx context.Context, tx domain.Tx, date string) (*models.DaySummary, error) {
	items, err := tx.WorkItemsByDate(ctx, date, date)
	if err != nil {
		return nil, err
	}
	return Count(date, items), nil
}

func saveDay(ctx context.Context, tx domain.Tx, date string) (*models.DaySummary, error) {
	day, err := countDay(ctx, tx, date)
	if err != nil {
		return nil, err
	}
	existing, err := tx.GetDaySummary(ctx, date)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		day.Day = existing.Day
	}
	if err := tx.PutDaySummary(ctx, day); err != nil {
		return nil, err
	}
	return day, nil
}

// CheckDays splits the dashboard's days into settled ones, which are
// recounted and saved, and the worklist that still needs a sync.
func (e *Engine) CheckDays(ctx context.Context, dash *models.Dashboard) (worklist, settled []string, err error) {
	dates := e.withinWindow(dash.Dates())
	if len(dates) == 0 {
		return nil, nil, nil
	}
	e.reporter.ReportProgress("", fmt.Sprintf("checking last %d days", e.windowDays))

	pending := make(map[string]bool, len(dates))
	for _, date := range dates {
		pending[date] = true
	}

	err = e.store.Update(ctx, func(tx domain.Tx) error {
		days, err := tx.DaySummaries(ctx, dates[0], dates[len(dates)-1])
		if err != nil {
			return err
		}
		for _, day := range days {
			if !pending[day.Date] || !IsSettled(day) {
				continue
			}
			if _, err := saveDay(ctx, tx, day.Date); err != nil {
				return err
			}
			delete(pending, day.Date)
			settled = append(settled, day.Date)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("check days: %w", err)
	}

	for _, date := range dates {
		if pending[date] {
			worklist = append(worklist, date)
		}
	}
	return worklist, settled, nil
}

// withinWindow keeps the newest windowDays of the dashboard's sorted dates.
func (e *Engine) withinWindow(dates []string) []string {
	if e.windowDays <= 0 || len(dates) <= e.windowDays {
		return dates
	}
	return dates[len(dates)-e.windowDays:]
}

// SyncToday syncs the current business date.
func (e *Engine) SyncToday(ctx context.Context) (*models.DaySummary, error) {
	return e.SyncDay(ctx, e.calendar.BusinessDate())
}

// SyncDay refreshes baselines and fully resyncs one business date.
func (e *Engine) SyncDay(ctx context.Context, date string) (*models.DaySummary, error) {
	if date == "" {
		date = e.calendar.BusinessDate()
	}
	if !calendar.Valid(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}

	if _, err := e.RefreshBaseline(ctx); err != nil {
		e.handleError(date, err)
		return nil, err
	}

	day, err := e.syncDate(ctx, date)
	if err != nil {
		e.handleError(date, err)
		return nil, err
	}
	return day, nil
}

func (e *Engine) syncDate(ctx context.Context, date string) (*models.DaySummary, error) {
	start := time.Now()

	day, err := e.resync(ctx, date)
	if err != nil {
		metrics.IncDay("failed")
		return nil, err
	}

	metrics.IncDay("synced")
	e.logger.Info().
		Str("date", date).
		Int("paid", day.Paid).
		Str("earnings", day.Earnings.StringFixed(2)).
		Dur("took", time.Since(start)).
		Msg("Day synced")
	return day, nil
}

func (e *Engine) resync(ctx context.Context, date string) (*models.DaySummary, error) {
	if _, err := e.PrepareDay(ctx, date); err != nil {
		return nil, err
	}
	if _, err := e.SyncPages(ctx, date); err != nil {
		return nil, err
	}
	return e.SaveDay(ctx, date)
}

func (e *Engine) handleError(date string, err error) {
	if errors.Is(err, marketplace.ErrAuthenticationLost) {
		e.reporter.ReportAuthLost()
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	e.logger.Error().Err(err).Str("date", date).Msg("Sync failed")
}

// BatchResult describes one SyncLast45 pass.
type BatchResult struct {
	Dashboard *models.Dashboard
	Settled   []string
	Worklist  []string
	Synced    []string
	Failed    map[string]error
}

// BatchHooks observes a batch; both hooks are optional. Day may run
// concurrently for different dates.
type BatchHooks struct {
	// Worklist runs once with the unsettled days, before any of them is synced.
	Worklist func(dates []string)
	Day      func(date string, err error)
}

// SyncLast45 refreshes baselines and resyncs every dashboard day that has
// not settled, several days at a time. Authentication loss stops the
// remaining days; days already committed stay saved.
func (e *Engine) SyncLast45(ctx context.Context) (*BatchResult, error) {
	return e.SyncDays(ctx, BatchHooks{})
}

// SyncDays is SyncLast45 with hooks.
func (e *Engine) SyncDays(ctx context.Context, hooks BatchHooks) (*BatchResult, error) {
	dash, err := e.RefreshBaseline(ctx)
	if err != nil {
		e.handleError("", err)
		return nil, err
	}

	worklist, settled, err := e.CheckDays(ctx, dash)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		Dashboard: dash,
		Settled:   settled,
		Worklist:  worklist,
		Failed:    make(map[string]error),
	}
	e.logger.Info().Int("settled", len(settled)).Int("worklist", len(worklist)).Msg("Days checked")
	if hooks.Worklist != nil && len(worklist) > 0 {
		hooks.Worklist(worklist)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, date := range worklist {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := e.syncDate(gctx, date)

			mu.Lock()
			if err != nil {
				result.Failed[date] = err
				if !errors.Is(err, marketplace.ErrAuthenticationLost) {
					e.handleError(date, err)
				}
			} else {
				result.Synced = append(result.Synced, date)
			}
			mu.Unlock()

			if hooks.Day != nil {
				hooks.Day(date, err)
			}
			if errors.Is(err, marketplace.ErrAuthenticationLost) {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	slices.Sort(result.Synced)
	if err != nil {
		e.handleError("", err)
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if len(result.Failed) > 0 {
		return result, fmt.Errorf("%w: %d of %d", ErrDaysFailed, len(result.Failed), len(worklist))
	}
	return result, nil
}
