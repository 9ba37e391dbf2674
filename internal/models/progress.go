package models

import "time"

// Sync run kinds.
const (
	SyncKindDay    = "day"
	SyncKindLast45 = "last45"
	SyncKindResume = "resume"
)

// SyncProgress is the latest known state of a sync run.
type SyncProgress struct {
	RunID      string            `json:"run_id" msgpack:"run_id"`
	Kind       string            `json:"kind" msgpack:"kind"`
	Running    bool              `json:"running" msgpack:"running"`
	Message    string            `json:"message" msgpack:"message"`
	Days       map[string]string `json:"days,omitempty" msgpack:"days,omitempty"`
	AuthLost   bool              `json:"auth_lost" msgpack:"auth_lost"`
	Error      string            `json:"error,omitempty" msgpack:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at" msgpack:"started_at"`
	UpdatedAt  time.Time         `json:"updated_at" msgpack:"updated_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty" msgpack:"finished_at,omitempty"`
}

// Apply records message for date, or run-wide when date is empty.
func (p *SyncProgress) Apply(date, message string, at time.Time) {
	if date == "" {
		p.Message = message
	} else {
		if p.Days == nil {
			p.Days = make(map[string]string)
		}
		p.Days[date] = message
	}
	p.UpdatedAt = at
}
