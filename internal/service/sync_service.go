package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hittracker/internal/domain"
	"hittracker/internal/events"
	"hittracker/internal/logging"
	"hittracker/internal/marketplace"
	"hittracker/internal/metrics"
	"hittracker/internal/models"
	"hittracker/internal/reconcile"
)

// ErrSyncInProgress is returned when a run is requested while another runs.
var ErrSyncInProgress = errors.New("sync already in progress")

var _ domain.SyncRunner = (*SyncService)(nil)

// Run outcomes.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunAuthLost  = "auth_lost"
	RunCanceled  = "canceled"
)

// Engine is the reconciliation engine as the service uses it.
type Engine interface {
	SyncDay(ctx context.Context, date string) (*models.DaySummary, error)
	SyncDays(ctx context.Context, hooks reconcile.BatchHooks) (*reconcile.BatchResult, error)
}

// TaskLedger records days scheduled by runs.
type TaskLedger interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
}

// Today resolves the current business date.
type Today interface {
	BusinessDate() string
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID  string
	Kind   string
	Status string
	Day    *models.DaySummary
	Batch  *reconcile.BatchResult
	Dates  []string
}

// SyncService serializes sync runs and reports their lifecycle.
type SyncService struct {
	engine   Engine
	ledger   TaskLedger
	progress domain.ProgressRepository
	bus      *events.EventBus
	reporter *events.Reporter
	today    Today
	retry    marketplace.RetryPolicy
	logger   *zerolog.Logger

	running atomic.Bool

	mu      sync.Mutex
	current *models.SyncProgress

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSyncService wires the service to the bus. The engine must report
// through the returned service's Reporter.
func NewSyncService(
	engine Engine,
	ledger TaskLedger,
	progress domain.ProgressRepository,
	bus *events.EventBus,
	reporter *events.Reporter,
	today Today,
	retry marketplace.RetryPolicy,
	logger *zerolog.Logger,
) *SyncService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &SyncService{
		engine:   engine,
		ledger:   ledger,
		progress: progress,
		bus:      bus,
		reporter: reporter,
		today:    today,
		retry:    retry,
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
	}

	bus.Subscribe(events.EventProgress, s.onProgress)
	bus.Subscribe(events.EventAuthLost, s.onAuthLost)
	return s
}

// Running reports whether a run is in progress.
func (s *SyncService) Running() bool {
	return s.running.Load()
}

// Progress returns the latest stored progress, nil when none.
func (s *SyncService) Progress(ctx context.Context) (*models.SyncProgress, error) {
	return s.progress.GetProgress(ctx)
}

// SyncToday syncs the current business date.
func (s *SyncService) SyncToday(ctx context.Context) (*RunResult, error) {
	return s.SyncDay(ctx, s.today.BusinessDate())
}

// SyncDay runs a full resync of date and waits for it.
func (s *SyncService) SyncDay(ctx context.Context, date string) (*RunResult, error) {
	runID, err := s.acquire(models.SyncKindDay)
	if err != nil {
		return nil, err
	}
	return s.runDay(ctx, runID, date)
}

// SyncLast45 runs a batch sync of every unsettled dashboard day and waits for it.
func (s *SyncService) SyncLast45(ctx context.Context) (*RunResult, error) {
	runID, err := s.acquire(models.SyncKindLast45)
	if err != nil {
		return nil, err
	}
	return s.runBatch(ctx, runID)
}

// Resume retries ledger days left pending or due for retry by earlier runs.
func (s *SyncService) Resume(ctx context.Context) (*RunResult, error) {
	runID, err := s.acquire(models.SyncKindResume)
	if err != nil {
		return nil, err
	}
	return s.runResume(ctx, runID)
}

// Start launches a run in the background and returns its id. Kind is one
// of the models.SyncKind* values; date is used by day runs.
func (s *SyncService) Start(kind, date string) (string, error) {
	if kind == models.SyncKindDay && date == "" {
		date = s.today.BusinessDate()
	}

	runID, err := s.acquire(kind)
	if err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		switch kind {
		case models.SyncKindDay:
			_, err = s.runDay(s.baseCtx, runID, date)
		case models.SyncKindResume:
			_, err = s.runResume(s.baseCtx, runID)
		default:
			_, err = s.runBatch(s.baseCtx, runID)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("run_id", runID).Msg("Background sync finished with error")
		}
	}()
	return runID, nil
}

// Shutdown cancels background runs and waits for them.
func (s *SyncService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SyncService) acquire(kind string) (string, error) {
	if !s.running.CompareAndSwap(false, true) {
		return "", ErrSyncInProgress
	}

	runID := uuid.NewString()
	now := time.Now()

	s.mu.Lock()
	s.current = &models.SyncProgress{
		RunID:     runID,
		Kind:      kind,
		Running:   true,
		StartedAt: now,
		UpdatedAt: now,
	}
	snapshot := cloneProgress(s.current)
	s.mu.Unlock()

	s.reporter.StartRun(runID)
	s.saveProgress(snapshot)
	_ = s.bus.PublishJSON(events.EventRunStarted, events.RunPayload{
		RunID:     runID,
		Kind:      kind,
		Status:    "started",
		StartedAt: now,
	})
	logging.Run(s.logger, runID, kind).Info().Msg("Sync started")
	return runID, nil
}

func (s *SyncService) release(result *RunResult, runErr error, synced, failed, settled int) {
	now := time.Now()

	s.mu.Lock()
	p := s.current
	p.Running = false
	p.FinishedAt = &now
	p.UpdatedAt = now
	if runErr != nil {
		p.Error = runErr.Error()
	}
	snapshot := cloneProgress(p)
	s.mu.Unlock()

	s.saveProgress(snapshot)
	metrics.IncRun(result.Kind, result.Status)

	payload := events.RunPayload{
		RunID:      result.RunID,
		Kind:       result.Kind,
		Status:     result.Status,
		Synced:     synced,
		Failed:     failed,
		Settled:    settled,
		StartedAt:  snapshot.StartedAt,
		FinishedAt: &now,
	}
	if len(result.Dates) == 1 {
		payload.Date = result.Dates[0]
	}
	if runErr != nil {
		payload.Error = runErr.Error()
	}
	_ = s.bus.PublishJSON(events.EventRunFinished, payload)

	l := logging.Run(s.logger, result.RunID, result.Kind)
	event := l.Info()
	if runErr != nil {
		event = l.Warn().Err(runErr)
	}
	event.Str("status", result.Status).
		Int("synced", synced).
		Int("failed", failed).
		Dur("took", now.Sub(snapshot.StartedAt)).
		Msg("Sync finished")

	s.running.Store(false)
}

func (s *SyncService) runDay(ctx context.Context, runID, date string) (*RunResult, error) {
	if date == "" {
		date = s.today.BusinessDate()
	}
	result := &RunResult{RunID: runID, Kind: models.SyncKindDay, Dates: []string{date}}

	task := &models.SyncTask{RunID: runID, TaskType: models.SyncTaskDay, Date: date}
	if err := s.ledger.CreateSyncTask(ctx, task); err != nil {
		s.logger.Error().Err(err).Msg("Failed to record sync task")
		task = nil
	}

	day, err := s.engine.SyncDay(ctx, date)
	result.Day = day
	result.Status = statusOf(err)
	s.settleTask(ctx, task, err)
	s.publishDay(runID, date, err)

	synced, failed := 1, 0
	if err != nil {
		synced, failed = 0, 1
	}
	s.release(result, err, synced, failed, 0)
	return result, err
}

func (s *SyncService) runBatch(ctx context.Context, runID string) (*RunResult, error) {
	result := &RunResult{RunID: runID, Kind: models.SyncKindLast45}

	// заполняется до запуска воркеров, дальше только читается
	var tasks map[string]*models.SyncTask
	batch, err := s.engine.SyncDays(ctx, reconcile.BatchHooks{
		Worklist: func(dates []string) {
			tasks = s.createTasks(ctx, runID, dates)
		},
		Day: func(date string, dayErr error) {
			s.settleTask(ctx, tasks[date], dayErr)
			s.publishDay(runID, date, dayErr)
		},
	})
	result.Batch = batch
	result.Status = statusOf(err)

	var synced, failed, settled int
	if batch != nil {
		result.Dates = batch.Worklist
		synced, failed, settled = len(batch.Synced), len(batch.Failed), len(batch.Settled)
	}

	s.release(result, err, synced, failed, settled)
	return result, err
}

// createTasks writes a pending ledger row per worklist day before any day
// is synced, so days a crash or auth loss never reaches stay for Resume.
func (s *SyncService) createTasks(ctx context.Context, runID string, dates []string) map[string]*models.SyncTask {
	ctx = context.WithoutCancel(ctx)
	tasks := make(map[string]*models.SyncTask, len(dates))
	for _, date := range dates {
		task := &models.SyncTask{RunID: runID, TaskType: models.SyncTaskDay, Date: date}
		if err := s.ledger.CreateSyncTask(ctx, task); err != nil {
			s.logger.Error().Err(err).Str("date", date).Msg("Failed to record sync task")
			continue
		}
		tasks[date] = task
	}
	return tasks
}

func (s *SyncService) runResume(ctx context.Context, runID string) (*RunResult, error) {
	result := &RunResult{RunID: runID, Kind: models.SyncKindResume}

	tasks, err := s.ledger.GetPendingSyncTasks(ctx, 100)
	if err != nil {
		result.Status = RunFailed
		s.release(result, err, 0, 0, 0)
		return result, err
	}

	byDate := make(map[string][]models.SyncTask)
	for _, task := range tasks {
		if _, seen := byDate[task.Date]; !seen {
			result.Dates = append(result.Dates, task.Date)
		}
		byDate[task.Date] = append(byDate[task.Date], task)
	}

	var (
		synced, failed int
		runErr         error
		failures       []error
	)
	for _, date := range result.Dates {
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		_, err := s.engine.SyncDay(ctx, date)
		for i := range byDate[date] {
			s.settleTask(ctx, &byDate[date][i], err)
		}
		s.publishDay(runID, date, err)

		if err == nil {
			synced++
			continue
		}
		failed++
		if errors.Is(err, marketplace.ErrAuthenticationLost) || errors.Is(err, context.Canceled) {
			runErr = err
			break
		}
		failures = append(failures, fmt.Errorf("%s: %w", date, err))
	}
	if runErr == nil && len(failures) > 0 {
		runErr = fmt.Errorf("%w: %w", reconcile.ErrDaysFailed, errors.Join(failures...))
	}

	result.Status = statusOf(runErr)
	s.release(result, runErr, synced, failed, 0)
	return result, runErr
}

// settleTask marks a ledger row. Transient failures are scheduled for
// retry; authentication loss and cancellation leave the row pending.
func (s *SyncService) settleTask(ctx context.Context, task *models.SyncTask, err error) {
	if task == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	var updateErr error
	switch {
	case err == nil:
		updateErr = s.ledger.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil)
	case errors.Is(err, marketplace.ErrAuthenticationLost), errors.Is(err, context.Canceled):
		updateErr = s.ledger.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusPending, err.Error(), nil)
	case marketplace.IsTransient(err):
		next := time.Now().Add(s.retry.NextDelay(task.RetryCount + 1))
		updateErr = s.ledger.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, err.Error(), &next)
	default:
		updateErr = s.ledger.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, err.Error(), nil)
	}
	if updateErr != nil {
		s.logger.Error().Err(updateErr).Int64("task_id", task.ID).Msg("Failed to update sync task")
	}
}

func (s *SyncService) publishDay(runID, date string, err error) {
	payload := events.DayPayload{RunID: runID, Date: date}
	if err != nil {
		payload.Error = err.Error()
	}
	_ = s.bus.PublishJSON(events.EventDaySynced, payload)
}

func (s *SyncService) onProgress(e *events.Event) error {
	var p events.ProgressPayload
	if err := e.Decode(&p); err != nil {
		return err
	}

	s.mu.Lock()
	if s.current == nil || s.current.RunID != p.RunID {
		s.mu.Unlock()
		return nil
	}
	s.current.Apply(p.Date, p.Message, p.At)
	snapshot := cloneProgress(s.current)
	s.mu.Unlock()

	s.saveProgress(snapshot)
	return nil
}

func (s *SyncService) onAuthLost(e *events.Event) error {
	var p events.AuthLostPayload
	if err := e.Decode(&p); err != nil {
		return err
	}

	s.mu.Lock()
	if s.current == nil || s.current.RunID != p.RunID {
		s.mu.Unlock()
		return nil
	}
	s.current.AuthLost = true
	s.current.Message = "marketplace session expired"
	s.current.UpdatedAt = p.At
	snapshot := cloneProgress(s.current)
	s.mu.Unlock()

	s.saveProgress(snapshot)
	return nil
}

func (s *SyncService) saveProgress(p *models.SyncProgress) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.progress.SaveProgress(ctx, p); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save sync progress")
	}
}

func cloneProgress(p *models.SyncProgress) *models.SyncProgress {
	out := *p
	if p.Days != nil {
		out.Days = make(map[string]string, len(p.Days))
		for k, v := range p.Days {
			out.Days[k] = v
		}
	}
	return &out
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return RunCompleted
	case errors.Is(err, marketplace.ErrAuthenticationLost):
		return RunAuthLost
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return RunCanceled
	default:
		return RunFailed
	}
}
