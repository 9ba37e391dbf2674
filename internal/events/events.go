package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventRunStarted  = "run_started"
	EventRunFinished = "run_finished"
	EventProgress    = "progress"
	EventAuthLost    = "auth_lost"
	EventDaySynced   = "day_synced"
)

// RunPayload describes a sync run boundary.
type RunPayload struct {
	RunID      string     `json:"run_id"`
	Kind       string     `json:"kind"`
	Date       string     `json:"date,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Synced     int        `json:"synced,omitempty"`
	Failed     int        `json:"failed,omitempty"`
	Settled    int        `json:"settled,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ProgressPayload is one progress line of a run. Date is empty for
// run-wide messages.
type ProgressPayload struct {
	RunID   string    `json:"run_id"`
	Date    string    `json:"date,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// AuthLostPayload signals the marketplace session expired.
type AuthLostPayload struct {
	RunID string    `json:"run_id"`
	At    time.Time `json:"at"`
}

// DayPayload reports the outcome of one day inside a run.
type DayPayload struct {
	RunID string `json:"run_id"`
	Date  string `json:"date"`
	Error string `json:"error,omitempty"`
}

// Event is one published message. Seq grows by one per bus.
type Event struct {
	Seq     uint64
	Type    string
	Payload json.RawMessage
	At      time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

type EventHandler func(event *Event) error

// EventBus is a synchronous in-process pub/sub. Handlers run in
// subscription order on the publishing goroutine.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]EventHandler
	seq         atomic.Uint64
	logger      *zerolog.Logger
}

type Option func(*EventBus)

// WithLogger logs failed and panicking handlers.
func WithLogger(logger *zerolog.Logger) Option {
	return func(b *EventBus) { b.logger = logger }
}

func NewEventBus(opts ...Option) *EventBus {
	nop := zerolog.Nop()
	b := &EventBus{subscribers: make(map[string][]EventHandler), logger: &nop}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish delivers event to every handler of its type and returns how many
// of them failed.
func (b *EventBus) Publish(event *Event) int {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	event.Seq = b.seq.Add(1)
	if event.At.IsZero() {
		event.At = time.Now()
	}

	failed := 0
	for _, handler := range handlers {
		if err := b.call(handler, event); err != nil {
			failed++
			b.logger.Warn().Err(err).Str("event", event.Type).Uint64("seq", event.Seq).Msg("Event handler failed")
		}
	}
	return failed
}

func (b *EventBus) call(handler EventHandler, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(event)
}

// PublishJSON encodes payload and publishes it. A nil bus drops events.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	b.Publish(&Event{Type: eventType, Payload: raw})
	return nil
}
