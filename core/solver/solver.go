// Package solver computes arc flows for flow.Network instances.
//
// Every implementation returns one flow value per input arc, in input order,
// so callers can map values back to arc metadata. A non-nil error always
// comes with StatusError.
package solver

import (
	"errors"
	"fmt"

	"github.com/kilianp07/crowdsense/core/flow"
)

// Status reports the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusError
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Solution holds the solver output.
type Solution struct {
	Status    Status
	Objective float64
	Flow      []float64
}

// Solver solves a flow network.
type Solver interface {
	Solve(net *flow.Network) (Solution, error)
}

// ErrInvalidNetwork indicates a network that violates the input contract.
var ErrInvalidNetwork = errors.New("invalid network")

// flowEpsilon is the tolerance used when comparing flow quantities.
const flowEpsilon = 1e-9

func failed(err error) (Solution, error) {
	return Solution{Status: StatusError}, err
}

func validate(net *flow.Network) error {
	if net == nil {
		return fmt.Errorf("%w: nil network", ErrInvalidNetwork)
	}
	if len(net.Supply) != net.NodeCount {
		return fmt.Errorf("%w: %d supplies for %d nodes", ErrInvalidNetwork, len(net.Supply), net.NodeCount)
	}
	var balance float64
	for _, s := range net.Supply {
		balance += s
	}
	if balance > flowEpsilon || balance < -flowEpsilon {
		return fmt.Errorf("%w: supplies sum to %v", ErrInvalidNetwork, balance)
	}
	for i, a := range net.Arcs {
		if a.Tail < 0 || a.Tail >= net.NodeCount || a.Head < 0 || a.Head >= net.NodeCount {
			return fmt.Errorf("%w: arc %d endpoints out of range", ErrInvalidNetwork, i)
		}
		if a.Lower < 0 || a.Lower > a.Upper {
			return fmt.Errorf("%w: arc %d bounds [%v,%v]", ErrInvalidNetwork, i, a.Lower, a.Upper)
		}
	}
	return nil
}

// clamp snaps solver noise back into the arc bounds.
func clamp(x float64, a flow.Arc) float64 {
	if x < a.Lower+flowEpsilon {
		x = a.Lower
	}
	if x > a.Upper {
		x = a.Upper
	}
	return x
}
