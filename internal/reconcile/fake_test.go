package reconcile

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"hittracker/internal/calendar"
	"hittracker/internal/database"
	"hittracker/internal/domain"
	"hittracker/internal/models"
)

type fakeMarketplace struct {
	mu         sync.Mutex
	queue      []string
	dashboard  *models.Dashboard
	feed       map[string][]models.WorkItem
	statusErr  map[string]error
	dashErr    error
	pageCalls  map[string][]int
	queueCalls int
}

func newFakeMarketplace() *fakeMarketplace {
	return &fakeMarketplace{
		dashboard: &models.Dashboard{Days: map[string]models.Baseline{}},
		feed:      map[string][]models.WorkItem{},
		statusErr: map[string]error{},
		pageCalls: map[string][]int{},
	}
}

func (f *fakeMarketplace) FetchQueue(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queueCalls++
	return append([]string(nil), f.queue...), nil
}

func (f *fakeMarketplace) FetchDashboard(context.Context) (*models.Dashboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dashErr != nil {
		return nil, f.dashErr
	}
	days := make(map[string]models.Baseline, len(f.dashboard.Days))
	for k, v := range f.dashboard.Days {
		days[k] = v
	}
	return &models.Dashboard{Days: days, AvailableEarnings: f.dashboard.AvailableEarnings}, nil
}

func (f *fakeMarketplace) FetchStatusPage(ctx context.Context, date string, page int) (*models.StatusPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls[date] = append(f.pageCalls[date], page)
	if err := f.statusErr[date]; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all := f.feed[date]
	from := (page - 1) * models.StatusPageSize
	if from > len(all) {
		from = len(all)
	}
	to := from + models.StatusPageSize
	if to > len(all) {
		to = len(all)
	}
	items := append([]models.WorkItem(nil), all[from:to]...)
	return &models.StatusPage{NumResults: len(items), TotalNumResults: len(all), Items: items}, nil
}

func (f *fakeMarketplace) setBaseline(b models.Baseline) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dashboard.Days[b.Date] = b
}

type recordingReporter struct {
	mu       sync.Mutex
	messages map[string][]string
	authLost int
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{messages: map[string][]string{}}
}

func (r *recordingReporter) ReportProgress(date, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[date] = append(r.messages[date], message)
}

func (r *recordingReporter) ReportAuthLost() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authLost++
}

type fixture struct {
	db       *database.DB
	remote   *fakeMarketplace
	reporter *recordingReporter
	engine   *Engine
}

// today is 20240120 at the marketplace.
func fixedCalendar() *calendar.Calendar {
	now := time.Date(2024, 1, 20, 20, 0, 0, 0, time.UTC)
	return calendar.New(
		calendar.WithPolicy(calendar.FixedOffset(-8*time.Hour)),
		calendar.WithClock(calendar.ClockFunc(func() time.Time { return now })),
	)
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "hits.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, remote: newFakeMarketplace(), reporter: newRecordingReporter()}
	opts = append([]Option{WithReporter(f.reporter), WithLogger(&logger)}, opts...)
	f.engine = NewEngine(db, f.remote, fixedCalendar(), opts...)
	return f
}

func (f *fixture) put(t *testing.T, items ...*models.WorkItem) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.db.Update(ctx, func(tx domain.Tx) error {
		for _, item := range items {
			if err := tx.PutWorkItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (f *fixture) get(t *testing.T, id string) *models.WorkItem {
	t.Helper()
	ctx := context.Background()
	var item *models.WorkItem
	require.NoError(t, f.db.View(ctx, func(tx domain.Tx) error {
		var err error
		item, err = tx.GetWorkItem(ctx, id)
		return err
	}))
	return item
}

func (f *fixture) day(t *testing.T, date string) *models.DaySummary {
	t.Helper()
	ctx := context.Background()
	var day *models.DaySummary
	require.NoError(t, f.db.View(ctx, func(tx domain.Tx) error {
		var err error
		day, err = tx.GetDaySummary(ctx, date)
		return err
	}))
	return day
}

func reward(amount string) *models.Reward {
	return &models.Reward{Amount: decimal.RequireFromString(amount), Currency: "USD"}
}

func work(id, date string, state models.State, amount string) *models.WorkItem {
	w := &models.WorkItem{ID: id, Date: date, State: state, RequesterID: "R1", RequesterName: "Req", Title: "Task " + id}
	if amount != "" {
		w.Reward = reward(amount)
	}
	return w
}
