package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrConfiguration marks invalid policy or scenario parameters. It is
	// returned before any window is solved.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrSolverFailure marks a solver error. The run is aborted.
	ErrSolverFailure = errors.New("solver failure")
)

// Fairness selects the window objective.
type Fairness string

const (
	// FairnessCost minimizes the total cost.
	FairnessCost Fairness = "cost"
	// FairnessBalanced minimizes the highest per-phone cost.
	FairnessBalanced Fairness = "balanced"
)

// Policy parameterizes a rolling-horizon run.
type Policy struct {
	WindowLength int      `json:"window_length" yaml:"window_length"`
	Fairness     Fairness `json:"fairness" yaml:"fairness"`
	// UseMILP re-solves optimal windows with integral sensing decisions.
	UseMILP       bool `json:"use_milp" yaml:"use_milp"`
	MILPNodeLimit int  `json:"milp_node_limit" yaml:"milp_node_limit"`
	// DisableDeferral removes the penalized source to sink arc, so windows
	// that cannot deliver everything become infeasible.
	DisableDeferral bool    `json:"disable_deferral" yaml:"disable_deferral"`
	DeferralPenalty float64 `json:"deferral_penalty" yaml:"deferral_penalty"`
}

// SetDefaults applies sane defaults.
func (p *Policy) SetDefaults() {
	if p.Fairness == "" {
		p.Fairness = FairnessCost
	}
}

// Validate checks the policy against the scenario horizon.
func (p Policy) Validate(horizon int) error {
	if p.WindowLength <= 0 {
		return fmt.Errorf("%w: window length %d must be positive", ErrConfiguration, p.WindowLength)
	}
	if horizon <= 0 {
		return fmt.Errorf("%w: horizon %d must be positive", ErrConfiguration, horizon)
	}
	switch p.Fairness {
	case FairnessCost, FairnessBalanced, "":
	default:
		return fmt.Errorf("%w: unknown fairness %q", ErrConfiguration, p.Fairness)
	}
	if p.MILPNodeLimit < 0 {
		return fmt.Errorf("%w: negative MILP node limit", ErrConfiguration)
	}
	if p.DeferralPenalty < 0 {
		return fmt.Errorf("%w: negative deferral penalty", ErrConfiguration)
	}
	return nil
}

// LoadPolicy loads a Policy from a JSON or YAML file.
func LoadPolicy(path string) (Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return Policy{}, err
	}
	defer func() { _ = f.Close() }()
	return DecodePolicy(f, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// DecodePolicy reads from r to decode a Policy.
func DecodePolicy(r io.Reader, format string) (Policy, error) {
	var p Policy
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&p); err != nil {
			return p, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&p); err != nil {
			return p, err
		}
	default:
		return p, fmt.Errorf("unsupported format: %s", format)
	}
	p.SetDefaults()
	return p, nil
}
