package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"hittracker/internal/domain"
	"hittracker/internal/models"
	"hittracker/internal/service"
)

// SyncJob starts a batch sync of the dashboard window unless one is running.
type SyncJob struct {
	runner domain.SyncRunner
	log    zerolog.Logger
}

func NewSyncJob(runner domain.SyncRunner, log *zerolog.Logger) *SyncJob {
	return &SyncJob{runner: runner, log: log.With().Str("job", "sync_last45").Logger()}
}

func (j *SyncJob) Name() string { return "sync_last45" }

func (j *SyncJob) Run() error {
	if j.runner.Running() {
		j.log.Info().Msg("Sync already running, skipping")
		return nil
	}

	runID, err := j.runner.Start(models.SyncKindLast45, "")
	if errors.Is(err, service.ErrSyncInProgress) {
		j.log.Info().Msg("Sync already running, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	j.log.Info().Str("run_id", runID).Msg("Scheduled sync started")
	return nil
}

// Backuper takes a database backup and prunes old ones.
type Backuper interface {
	Run(ctx context.Context) error
}

type BackupJob struct {
	backups Backuper
	timeout time.Duration
}

func NewBackupJob(backups Backuper) *BackupJob {
	return &BackupJob{backups: backups, timeout: 10 * time.Minute}
}

func (j *BackupJob) Name() string { return "backup" }

func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	return j.backups.Run(ctx)
}
