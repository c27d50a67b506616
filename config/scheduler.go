package config

import (
	"fmt"

	"github.com/kilianp07/crowdsense/core/greedy"
	"github.com/kilianp07/crowdsense/core/scheduler"
)

// Algorithm names accepted in the scheduler section.
const (
	AlgorithmRolling = "rolling"
	AlgorithmGreedy  = greedy.Algorithm
	// AlgorithmOracle runs the rolling scheduler with a single window over
	// the true contacts, which gives the offline baseline.
	AlgorithmOracle = "oracle"
)

// SchedulerConfig selects the scheduling algorithm and its policy.
type SchedulerConfig struct {
	Algorithm string           `json:"algorithm"`
	Policy    scheduler.Policy `json:"policy"`
}

// SetDefaults applies sane defaults.
func (c *SchedulerConfig) SetDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmRolling
	}
	if c.Policy.WindowLength == 0 {
		c.Policy.WindowLength = 10
	}
	c.Policy.SetDefaults()
}

// Validate checks the algorithm name and the horizon independent policy
// fields. The window length is checked against the scenario when the
// scheduler is built.
func (c SchedulerConfig) Validate() error {
	switch c.Algorithm {
	case AlgorithmRolling, AlgorithmGreedy, AlgorithmOracle:
	default:
		return fmt.Errorf("%w: unknown algorithm %q", scheduler.ErrConfiguration, c.Algorithm)
	}
	return c.Policy.Validate(max(c.Policy.WindowLength, 1))
}
