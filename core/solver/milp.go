package solver

import (
	"math"

	"github.com/kilianp07/crowdsense/core/flow"
	"github.com/kilianp07/crowdsense/core/logger"
)

// DefaultNodeLimit bounds the branch and bound tree.
const DefaultNodeLimit = 200

// MILPSolver treats every unpinned TargetToPhone arc as binary and searches
// for an integral solution by depth-first branch and bound. Relaxations are
// solved by the wrapped solver, whose objective is used for pruning.
type MILPSolver struct {
	Relaxation Solver
	NodeLimit  int
	log        logger.Logger
}

// NewMILPSolver wraps relax. A non-positive limit selects DefaultNodeLimit.
func NewMILPSolver(relax Solver, nodeLimit int, log logger.Logger) *MILPSolver {
	if nodeLimit <= 0 {
		nodeLimit = DefaultNodeLimit
	}
	return &MILPSolver{Relaxation: relax, NodeLimit: nodeLimit, log: logger.OrNop(log)}
}

// Solve implements Solver. It reports StatusInfeasible when no integral
// solution was found within the node limit.
func (s *MILPSolver) Solve(net *flow.Network) (Solution, error) {
	if err := validate(net); err != nil {
		return failed(err)
	}
	log := logger.OrNop(s.log)
	stack := []*flow.Network{net}
	var best *Solution
	explored := 0
	for len(stack) > 0 && explored < s.NodeLimit {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		explored++

		sol, err := s.Relaxation.Solve(cur)
		if err != nil {
			return failed(err)
		}
		if sol.Status != StatusOptimal {
			continue
		}
		if best != nil && sol.Objective >= best.Objective-flowEpsilon {
			continue
		}
		idx := mostFractional(cur, sol.Flow)
		if idx < 0 {
			best = &sol
			continue
		}
		down := cur.Clone()
		down.Arcs[idx].Upper = 0
		stack = append(stack, down)
		if cur.Arcs[idx].Upper >= 1 {
			up := cur.Clone()
			up.Arcs[idx].Lower = 1
			up.Arcs[idx].Upper = 1
			stack = append(stack, up)
		}
	}
	log.Debugw("branch and bound finished", map[string]any{
		"explored": explored,
		"open":     len(stack),
		"found":    best != nil,
	})
	if best == nil {
		return Solution{Status: StatusInfeasible}, nil
	}
	return *best, nil
}

// mostFractional returns the binary arc farthest from an integral value, or
// -1 when all of them are integral.
func mostFractional(net *flow.Network, flows []float64) int {
	idx, worst := -1, 1e-6
	for i, a := range net.Arcs {
		if a.Type != flow.TargetToPhone || a.Pinned {
			continue
		}
		x := flows[i]
		d := math.Min(math.Abs(x), math.Abs(1-x))
		if d > worst {
			idx, worst = i, d
		}
	}
	return idx
}
