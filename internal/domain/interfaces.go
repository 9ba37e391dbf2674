package domain

import (
	"context"
	"time"

	"hittracker/internal/models"
)

// Store is the local keyed store. Update runs fn in a read-write
// transaction committed when fn returns nil; View runs fn read-only.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the store inside one transaction.
type Tx interface {
	// GetWorkItem returns nil, nil when the item is unknown.
	GetWorkItem(ctx context.Context, id string) (*models.WorkItem, error)
	PutWorkItem(ctx context.Context, item *models.WorkItem) error
	// WorkItemsByDate returns items with from <= date <= to ordered by date, id.
	WorkItemsByDate(ctx context.Context, from, to string) ([]*models.WorkItem, error)
	WorkItemsByState(ctx context.Context, state models.State) ([]*models.WorkItem, error)
	AllWorkItems(ctx context.Context) ([]*models.WorkItem, error)

	// GetDaySummary returns nil, nil when the day is unknown.
	GetDaySummary(ctx context.Context, date string) (*models.DaySummary, error)
	PutDaySummary(ctx context.Context, day *models.DaySummary) error
	// DaySummaries returns summaries with from <= date <= to ordered by date.
	DaySummaries(ctx context.Context, from, to string) ([]*models.DaySummary, error)
	AllDaySummaries(ctx context.Context) ([]*models.DaySummary, error)
}

// Marketplace is the remote status API.
type Marketplace interface {
	FetchQueue(ctx context.Context) ([]string, error)
	FetchDashboard(ctx context.Context) (*models.Dashboard, error)
	FetchStatusPage(ctx context.Context, date string, page int) (*models.StatusPage, error)
}

// Reporter receives progress of a running sync. Date is empty for
// run-wide messages.
type Reporter interface {
	ReportProgress(date, message string)
	ReportAuthLost()
}

// SyncRunner starts background sync runs. Start returns the run id or an
// error when a run is already active.
type SyncRunner interface {
	Start(kind, date string) (string, error)
	Running() bool
	Progress(ctx context.Context) (*models.SyncProgress, error)
}

// ProgressRepository keeps the latest sync progress and short-lived
// trigger counters.
type ProgressRepository interface {
	GetProgress(ctx context.Context) (*models.SyncProgress, error)
	SaveProgress(ctx context.Context, p *models.SyncProgress) error
	ClearProgress(ctx context.Context) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// NopReporter discards progress.
type NopReporter struct{}

func (NopReporter) ReportProgress(string, string) {}
func (NopReporter) ReportAuthLost()               {}
