package types

import "time"

// RunStatus tracks the collection run state machine:
// pending -> running -> {completed, partial, failed}
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// ErrorKind classifies unit-level collection errors
type ErrorKind string

const (
	ErrKindAuth        ErrorKind = "auth"
	ErrKindProvider    ErrorKind = "provider"
	ErrKindRateLimit   ErrorKind = "rate_limit"
	ErrKindValidation  ErrorKind = "validation"
	ErrKindPersistence ErrorKind = "persistence"
	ErrKindTimeout     ErrorKind = "timeout"
)

// RunError is one recorded failure inside a collection run. Errors are
// captured here rather than raised; only auth failures abort a run.
type RunError struct {
	ResourceID string    `json:"resource_id,omitempty"`
	MetricName string    `json:"metric_name,omitempty"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
}

// CollectionRun records one end-to-end discovery+collection execution
type CollectionRun struct {
	ID                 string     `json:"id"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	Status             RunStatus  `json:"status"`
	ResourcesProcessed int        `json:"resources_processed"`
	MetricsCollected   int        `json:"metrics_collected"`
	Errors             []RunError `json:"errors,omitempty"`
}

// RecordError appends an error to the run ledger
func (r *CollectionRun) RecordError(e RunError) {
	r.Errors = append(r.Errors, e)
}

// Terminal reports whether the run reached a terminal status
func (r *CollectionRun) Terminal() bool {
	switch r.Status {
	case RunCompleted, RunPartial, RunFailed:
		return true
	}
	return false
}

// Duration returns elapsed run time, zero while still running
func (r *CollectionRun) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
