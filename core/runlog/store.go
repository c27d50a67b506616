// Package runlog persists window and run reports so past scheduling runs
// can be inspected and compared.
package runlog

import (
	"context"
	"time"

	"github.com/kilianp07/crowdsense/core/model"
)

// Kind distinguishes window reports from run results.
type Kind string

const (
	KindWindow Kind = "window"
	KindRun    Kind = "run"
)

// Record is one persisted entry. Exactly one of Window and Run is set.
type Record struct {
	Timestamp time.Time           `json:"timestamp"`
	Kind      Kind                `json:"kind"`
	RunID     string              `json:"run_id"`
	Algorithm string              `json:"algorithm"`
	Window    *model.WindowReport `json:"window,omitempty"`
	Run       *model.RunResult    `json:"run,omitempty"`
}

// WindowRecord wraps a window report.
func WindowRecord(rep model.WindowReport) Record {
	ts := rep.RecordedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Record{Timestamp: ts, Kind: KindWindow, RunID: rep.RunID, Algorithm: rep.Algorithm, Window: &rep}
}

// RunRecord wraps a run result.
func RunRecord(res *model.RunResult) Record {
	ts := res.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Record{Timestamp: ts, Kind: KindRun, RunID: res.RunID, Algorithm: res.Algorithm, Run: res}
}

// Query defines filters for retrieving records. Zero fields match
// everything; a positive Limit keeps the most recent matches.
type Query struct {
	Start     time.Time
	End       time.Time
	Kind      Kind
	RunID     string
	Algorithm string
	Limit     int
}

// Match reports whether r passes every filter of q except Limit.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	if q.Algorithm != "" && r.Algorithm != q.Algorithm {
		return false
	}
	return true
}

func (q Query) limit(recs []Record) []Record {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
