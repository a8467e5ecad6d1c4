package ingest

import (
	"time"
)

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusPartial = "partial"
	JobStatusFailed  = "failed"
)

// Params describes one ingestion request. Start and End are calendar days;
// warm-up history before Start is fetched but not stored.
type Params struct {
	Symbols []string  `json:"symbols"`
	Source  string    `json:"source"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// SymbolProgress is the per-symbol outcome of a job.
type SymbolProgress struct {
	Symbol  string    `json:"symbol"`
	Fetched int       `json:"fetched"`
	Stored  int       `json:"stored"`
	First   time.Time `json:"first,omitempty"`
	Last    time.Time `json:"last,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Job is the externally visible state of an ingestion task.
type Job struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	Params     Params           `json:"params"`
	Total      int              `json:"total"`
	Completed  int              `json:"completed"`
	Rows       int              `json:"rows"`
	Progress   []SymbolProgress `json:"progress"`
	Message    string           `json:"message,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
}

func (j *Job) copy() Job {
	if j == nil {
		return Job{}
	}
	clone := *j
	clone.Params.Symbols = append([]string(nil), j.Params.Symbols...)
	clone.Progress = append([]SymbolProgress(nil), j.Progress...)
	if len(j.Warnings) > 0 {
		clone.Warnings = append([]string(nil), j.Warnings...)
	}
	return clone
}

// Finished reports whether the job reached a terminal status.
func (j Job) Finished() bool {
	switch j.Status {
	case JobStatusDone, JobStatusPartial, JobStatusFailed:
		return true
	default:
		return false
	}
}
