package model

import (
	"fmt"
	"time"
)

// ActionKind identifies an executed scheduling decision.
type ActionKind int

const (
	ActionSense ActionKind = iota
	ActionTransfer
	ActionUpload
)

// String returns a human-readable representation of the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionSense:
		return "sense"
	case ActionTransfer:
		return "transfer"
	case ActionUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k ActionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind from its name.
func (k *ActionKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "sense":
		*k = ActionSense
	case "transfer":
		*k = ActionTransfer
	case "upload":
		*k = ActionUpload
	default:
		return fmt.Errorf("unknown action kind %q", string(b))
	}
	return nil
}

// Action is one executed sense, transfer or upload. Peer and Target are -1
// when they do not apply.
type Action struct {
	Time   int        `json:"time"`
	Kind   ActionKind `json:"kind"`
	Phone  int        `json:"phone"`
	Peer   int        `json:"peer"`
	Target int        `json:"target"`
	Volume float64    `json:"volume"`
	Cost   float64    `json:"cost"`
}

// Outcome is the terminal result of a scheduling run.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeInfeasible
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInfeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText decodes an outcome from its name.
func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "success":
		*o = OutcomeSuccess
	case "infeasible":
		*o = OutcomeInfeasible
	default:
		return fmt.Errorf("unknown outcome %q", string(b))
	}
	return nil
}

// Cost is a per-category cost breakdown.
type Cost struct {
	Sensing       float64 `json:"sensing"`
	Communication float64 `json:"communication"`
	Upload        float64 `json:"upload"`
}

// Total returns the sum over categories.
func (c Cost) Total() float64 { return c.Sensing + c.Communication + c.Upload }

// RunResult is the report of one scheduling run.
type RunResult struct {
	RunID      string    `json:"run_id"`
	Algorithm  string    `json:"algorithm"`
	Outcome    Outcome   `json:"outcome"`
	Optimal    bool      `json:"optimal"`
	Windows    int       `json:"windows"`
	FinalTime  int       `json:"final_time"`
	PhoneCosts []Cost    `json:"phone_costs"`
	TotalCost  float64   `json:"total_cost"`
	MaxPhone   int       `json:"max_phone"`
	MaxCost    float64   `json:"max_cost"`
	Uploaded   []float64 `json:"uploaded"`
	Delivered  []bool    `json:"delivered"`
	Actions    []Action  `json:"actions,omitempty"`
	Mismatches int       `json:"mismatches"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// DeliveredCount returns the number of fully delivered targets.
func (r *RunResult) DeliveredCount() int {
	n := 0
	for _, d := range r.Delivered {
		if d {
			n++
		}
	}
	return n
}

// CategoryTotals sums the per-phone breakdowns.
func (r *RunResult) CategoryTotals() Cost {
	var c Cost
	for _, p := range r.PhoneCosts {
		c.Sensing += p.Sensing
		c.Communication += p.Communication
		c.Upload += p.Upload
	}
	return c
}

// WindowReport summarizes one planning window of a rolling-horizon run.
type WindowReport struct {
	RunID     string `json:"run_id"`
	Algorithm string `json:"algorithm"`
	Window    int    `json:"window"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	// Status is the solver status of the chosen solution.
	Status     string        `json:"status"`
	Relaxed    bool          `json:"relaxed"`
	Objective  float64       `json:"objective"`
	SolveTime  time.Duration `json:"solve_time"`
	Committed  int           `json:"committed"`
	Mismatches int           `json:"mismatches"`
	Backstops  int           `json:"backstops"`
	WindowCost float64       `json:"window_cost"`
	TotalCost  float64       `json:"total_cost"`
	Delivered  int           `json:"delivered"`
	Targets    int           `json:"targets"`
	RecordedAt time.Time     `json:"recorded_at"`
}
