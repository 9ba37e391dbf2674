package models

import "time"

const (
	SyncTaskDay = "sync_day"

	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// SyncTask is a ledger entry for one day scheduled by a sync run.
type SyncTask struct {
	ID          int64      `json:"id"`
	RunID       string     `json:"run_id"`
	TaskType    string     `json:"task_type"`
	Date        string     `json:"date"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
