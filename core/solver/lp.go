package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/crowdsense/core/flow"
	"github.com/kilianp07/crowdsense/core/logger"
)

// DefaultTieBreak weighs total cost against the balanced objective.
const DefaultTieBreak = 1e-3

// LPSolver solves the network as a linear program with the gonum simplex
// implementation. In balanced mode it minimises the largest per-phone cost C
// with the total cost as a tie breaker; deferral stays priced at full cost.
//
// The dense tableau grows with nodes times arcs, so this solver targets small
// windows; MinCostFlow handles large ones.
type LPSolver struct {
	Balanced bool
	TieBreak float64
	log      logger.Logger
}

// NewLPSolver returns a cost minimising LP solver.
func NewLPSolver(log logger.Logger) *LPSolver {
	return &LPSolver{TieBreak: DefaultTieBreak, log: logger.OrNop(log)}
}

// NewBalancedLPSolver returns an LP solver minimising the maximum phone cost.
func NewBalancedLPSolver(tieBreak float64, log logger.Logger) *LPSolver {
	if tieBreak <= 0 {
		tieBreak = DefaultTieBreak
	}
	return &LPSolver{Balanced: true, TieBreak: tieBreak, log: logger.OrNop(log)}
}

// simplex points to the function used to run the simplex. It can be
// overridden in tests to simulate solver failures.
var simplex = func(c []float64, A mat.Matrix, b []float64) (float64, []float64, error) {
	return lp.Simplex(c, A, b, 1e-7, nil)
}

// standardForm is min cᵀx s.t. Ax = b, x >= 0 over columns
// [arc excess over lower bound..., C (balanced only)..., slacks...].
type standardForm struct {
	c    []float64
	rows [][]float64
	b    []float64
}

func (f *standardForm) addRow(coef []float64, rhs float64) {
	if rhs < 0 {
		for i := range coef {
			coef[i] = -coef[i]
		}
		rhs = -rhs
	}
	f.rows = append(f.rows, coef)
	f.b = append(f.b, rhs)
}

// Solve implements Solver.
//
//gocyclo:ignore
func (s *LPSolver) Solve(net *flow.Network) (Solution, error) {
	if err := validate(net); err != nil {
		return failed(err)
	}
	log := logger.OrNop(s.log)
	nArcs := len(net.Arcs)
	cCol := -1
	nVars := nArcs
	balanced := s.Balanced && net.PhoneCount > 0
	if balanced {
		cCol = nArcs
		nVars++
	}

	// Inequalities become equalities with one slack column each.
	type ineq struct {
		coef map[int]float64
		rhs  float64
	}
	var ineqs []ineq
	for i, a := range net.Arcs {
		if !math.IsInf(a.Upper, 1) {
			ineqs = append(ineqs, ineq{coef: map[int]float64{i: 1}, rhs: a.Upper - a.Lower})
		}
	}
	if balanced {
		for p := 0; p < net.PhoneCount; p++ {
			row := map[int]float64{cCol: -1}
			var fixed float64
			for i, a := range net.Arcs {
				share := phoneShare(a, p)
				if share == 0 {
					continue
				}
				row[i] += share
				fixed += share * a.Lower
			}
			ineqs = append(ineqs, ineq{coef: row, rhs: -fixed})
		}
	}
	width := nVars + len(ineqs)

	form := &standardForm{c: make([]float64, width)}
	for i, a := range net.Arcs {
		switch {
		case !balanced:
			form.c[i] = a.Cost
		case a.Type == flow.Deferral:
			form.c[i] = a.Cost
		default:
			form.c[i] = s.TieBreak * a.Cost
		}
	}
	if balanced {
		form.c[cCol] = 1
	}

	// Conservation rows, dropping one per connected component so the
	// equality block keeps full row rank.
	excess := append([]float64(nil), net.Supply...)
	for _, a := range net.Arcs {
		excess[a.Tail] -= a.Lower
		excess[a.Head] += a.Lower
	}
	comp, touched := components(net)
	skip := make(map[int]bool)
	for v := 0; v < net.NodeCount; v++ {
		if !touched[v] {
			if math.Abs(excess[v]) > flowEpsilon {
				return Solution{Status: StatusInfeasible}, nil
			}
			continue
		}
		if !skip[comp[v]] {
			skip[comp[v]] = true
			continue
		}
		row := make([]float64, width)
		for i, a := range net.Arcs {
			if a.Tail == v {
				row[i] += 1
			}
			if a.Head == v {
				row[i] -= 1
			}
		}
		form.addRow(row, excess[v])
	}
	if err := checkComponentBalance(comp, touched, excess); err != nil {
		log.Debugf("lp: %v", err)
		return Solution{Status: StatusInfeasible}, nil
	}
	for k, in := range ineqs {
		row := make([]float64, width)
		for col, v := range in.coef {
			row[col] = v
		}
		row[nVars+k] = 1
		form.addRow(row, in.rhs)
	}
	if len(form.rows) == 0 {
		sol := Solution{Status: StatusOptimal, Flow: make([]float64, nArcs)}
		for i, a := range net.Arcs {
			sol.Flow[i] = a.Lower
		}
		sol.Objective = net.Cost(sol.Flow)
		return sol, nil
	}

	A := mat.NewDense(len(form.rows), width, nil)
	for r, row := range form.rows {
		A.SetRow(r, row)
	}
	_, x, err := simplex(form.c, A, form.b)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return Solution{Status: StatusInfeasible}, nil
		}
		return failed(fmt.Errorf("simplex: %w", err))
	}

	sol := Solution{Status: StatusOptimal, Flow: make([]float64, nArcs)}
	for i, a := range net.Arcs {
		sol.Flow[i] = clamp(a.Lower+x[i], a)
	}
	if balanced {
		sol.Objective = maxPhoneCost(net, sol.Flow)
	} else {
		sol.Objective = net.Cost(sol.Flow)
	}
	log.Debugw("lp solved", map[string]any{
		"rows":      len(form.rows),
		"columns":   width,
		"balanced":  balanced,
		"objective": sol.Objective,
	})
	return sol, nil
}

// phoneShare is the unit cost of arc a billed to phone p.
func phoneShare(a flow.Arc, p int) float64 {
	var share float64
	if a.Phone == p {
		share += a.PhoneShare
	}
	if a.Peer == p && a.Type == flow.PhoneToPhone {
		share += a.PeerShare
	}
	return share
}

// maxPhoneCost returns the largest cost billed to a single phone.
func maxPhoneCost(net *flow.Network, flows []float64) float64 {
	costs := make([]float64, net.PhoneCount)
	for i, a := range net.Arcs {
		for p := range costs {
			costs[p] += phoneShare(a, p) * flows[i]
		}
	}
	var best float64
	for _, c := range costs {
		best = math.Max(best, c)
	}
	return best
}

// components labels nodes by connected component, ignoring arc direction.
// Nodes without arcs are reported as untouched.
func components(net *flow.Network) ([]int, []bool) {
	parent := make([]int, net.NodeCount)
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	touched := make([]bool, net.NodeCount)
	for _, a := range net.Arcs {
		touched[a.Tail], touched[a.Head] = true, true
		if ra, rb := find(a.Tail), find(a.Head); ra != rb {
			parent[ra] = rb
		}
	}
	comp := make([]int, net.NodeCount)
	for i := range comp {
		comp[i] = find(i)
	}
	return comp, touched
}

// checkComponentBalance rejects components whose supplies do not cancel.
func checkComponentBalance(comp []int, touched []bool, excess []float64) error {
	sums := make(map[int]float64)
	for v, c := range comp {
		if touched[v] {
			sums[c] += excess[v]
		}
	}
	for c, s := range sums {
		if math.Abs(s) > 1e-7 {
			return fmt.Errorf("component %d unbalanced by %v", c, s)
		}
	}
	return nil
}
