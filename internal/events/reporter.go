package events

import (
	"sync"
	"time"

	"hittracker/internal/domain"
)

// Reporter publishes engine progress on a bus, tagged with the current run.
type Reporter struct {
	bus domain.EventPublisher

	mu       sync.Mutex
	runID    string
	authLost bool
}

var _ domain.Reporter = (*Reporter)(nil)

func NewReporter(bus domain.EventPublisher) *Reporter {
	return &Reporter{bus: bus}
}

// StartRun tags subsequent events with runID.
func (r *Reporter) StartRun(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runID = runID
	r.authLost = false
}

func (r *Reporter) currentRun() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

func (r *Reporter) ReportProgress(date, message string) {
	_ = r.bus.PublishJSON(EventProgress, ProgressPayload{
		RunID:   r.currentRun(),
		Date:    date,
		Message: message,
		At:      time.Now(),
	})
}

// ReportAuthLost publishes at most once per run.
func (r *Reporter) ReportAuthLost() {
	r.mu.Lock()
	if r.authLost {
		r.mu.Unlock()
		return
	}
	r.authLost = true
	runID := r.runID
	r.mu.Unlock()

	_ = r.bus.PublishJSON(EventAuthLost, AuthLostPayload{RunID: runID, At: time.Now()})
}
