// Package journal records every scheduling run so operators can review
// what was attempted, when, and why a run failed.
package journal

import (
	"context"
	"time"

	"github.com/sita/sidang/core/sidang"
)

// Source identifies what started a run.
type Source string

const (
	SourceManual  Source = "manual"
	SourceTrigger Source = "trigger"
	SourceCLI     Source = "cli"
)

// Outcome is the result class of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
)

// RunRecord captures one generation run.
type RunRecord struct {
	RunID      string                    `json:"run_id"`
	Timestamp  time.Time                 `json:"timestamp"`
	Source     Source                    `json:"source"`
	Outcome    Outcome                   `json:"outcome"`
	Candidates int                       `json:"candidates"`
	Scheduled  int                       `json:"scheduled"`
	DurationMs int64                     `json:"duration_ms"`
	Failure    *sidang.SchedulingFailure `json:"failure,omitempty"`
	Error      string                    `json:"error,omitempty"`
	Load       *sidang.LoadStats         `json:"load,omitempty"`
}

// RunQuery filters records. Zero fields match everything.
type RunQuery struct {
	Start   time.Time
	End     time.Time
	Outcome Outcome
	Limit   int
}

func (q RunQuery) match(r RunRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	return q.Outcome == "" || r.Outcome == q.Outcome
}

// limit keeps the newest q.Limit records of an oldest-first slice.
func (q RunQuery) limit(recs []RunRecord) []RunRecord {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// Store persists RunRecords and supports querying.
type Store interface {
	Append(ctx context.Context, rec RunRecord) error
	Query(ctx context.Context, q RunQuery) ([]RunRecord, error)
	Close() error
}

// NopStore drops every record.
type NopStore struct{}

func (NopStore) Append(context.Context, RunRecord) error { return nil }
func (NopStore) Query(context.Context, RunQuery) ([]RunRecord, error) {
	return nil, nil
}
func (NopStore) Close() error { return nil }
