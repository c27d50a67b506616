package solver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/crowdsense/core/factory"
	"github.com/kilianp07/crowdsense/core/flow"
	"github.com/kilianp07/crowdsense/core/logger"
	"github.com/kilianp07/crowdsense/core/model"
)

// relayNetwork: phone 0 meets the target at t=0 and phone 1 at t=1; phone 0
// uploads at a high rate so relaying through phone 1 is cheaper.
func relayNetwork(t *testing.T, deferral bool) *flow.Network {
	t.Helper()
	profiles := []model.CostProfile{
		{SensingRate: 1, TransferRate: 1, UploadRate: 5, UploadLimit: 1},
		{SensingRate: 1, TransferRate: 1, UploadRate: 1, UploadLimit: 1},
	}
	s := model.NewScenarioSlice(0, 3, 2, 1, profiles)
	s.Set(0, 0, 2, 1)
	s.Set(1, 0, 1, 1)
	s.Set(1, 1, 0, 1)
	net, err := flow.NewBuilder(flow.Options{Deferral: deferral}, nil).Build(s, flow.NewCommittedState(2, 1), flow.PinExact)
	require.NoError(t, err)
	return net
}

func unreachableNetwork(t *testing.T, deferral bool) *flow.Network {
	t.Helper()
	profiles := []model.CostProfile{{SensingRate: 1, UploadRate: 1, UploadLimit: 1}}
	s := model.NewScenarioSlice(0, 2, 1, 1, profiles)
	net, err := flow.NewBuilder(flow.Options{Deferral: deferral}, nil).Build(s, flow.NewCommittedState(1, 1), flow.PinExact)
	require.NoError(t, err)
	return net
}

// sharedTargets: both phones can sense both targets at t=0; phone 1 is the
// more expensive sensor.
func sharedTargets(t *testing.T) *flow.Network {
	t.Helper()
	profiles := []model.CostProfile{
		{SensingRate: 1, UploadLimit: 2},
		{SensingRate: 1.5, UploadLimit: 2},
	}
	s := model.NewScenarioSlice(0, 1, 2, 2, profiles)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			s.Set(0, i, s.TargetColumn(j), 1)
		}
	}
	net, err := flow.NewBuilder(flow.Options{}, nil).Build(s, flow.NewCommittedState(2, 2), flow.PinExact)
	require.NoError(t, err)
	return net
}

func flowOf(net *flow.Network, sol Solution, match func(flow.Arc) bool) float64 {
	var total float64
	for i, a := range net.Arcs {
		if match(a) {
			total += sol.Flow[i]
		}
	}
	return total
}

func TestSolvers_Relay(t *testing.T) {
	for name, s := range map[string]Solver{
		"mcf":  NewMinCostFlow(nil),
		"lp":   NewLPSolver(nil),
		"milp": NewMILPSolver(NewMinCostFlow(nil), 0, nil),
	} {
		t.Run(name, func(t *testing.T) {
			net := relayNetwork(t, false)
			sol, err := s.Solve(net)
			require.NoError(t, err)
			require.Equal(t, StatusOptimal, sol.Status)
			require.Len(t, sol.Flow, len(net.Arcs))
			assert.InDelta(t, 4.0, sol.Objective, 1e-6)

			assert.InDelta(t, 1.0, flowOf(net, sol, func(a flow.Arc) bool { return a.Type == flow.TargetToPhone }), 1e-6)
			assert.InDelta(t, 1.0, flowOf(net, sol, func(a flow.Arc) bool {
				return a.Type == flow.PhoneToPhone && a.Phone == 0 && a.Peer == 1
			}), 1e-6)
			assert.InDelta(t, 1.0, flowOf(net, sol, func(a flow.Arc) bool { return a.Type == flow.PhoneToSink && a.Phone == 1 }), 1e-6)
			assert.InDelta(t, 0.0, flowOf(net, sol, func(a flow.Arc) bool { return a.Type == flow.PhoneToSink && a.Phone == 0 }), 1e-6)
		})
	}
}

func TestSolvers_Infeasible(t *testing.T) {
	for name, s := range map[string]Solver{
		"mcf":  NewMinCostFlow(nil),
		"lp":   NewLPSolver(nil),
		"milp": NewMILPSolver(NewMinCostFlow(nil), 0, nil),
	} {
		t.Run(name, func(t *testing.T) {
			sol, err := s.Solve(unreachableNetwork(t, false))
			require.NoError(t, err)
			assert.Equal(t, StatusInfeasible, sol.Status)
		})
	}
}

func TestSolvers_DeferralKeepsFeasible(t *testing.T) {
	for name, s := range map[string]Solver{
		"mcf": NewMinCostFlow(nil),
		"lp":  NewLPSolver(nil),
	} {
		t.Run(name, func(t *testing.T) {
			net := unreachableNetwork(t, true)
			sol, err := s.Solve(net)
			require.NoError(t, err)
			require.Equal(t, StatusOptimal, sol.Status)
			assert.InDelta(t, 1.0, flowOf(net, sol, func(a flow.Arc) bool { return a.Type == flow.Deferral }), 1e-6)
			assert.InDelta(t, 0.0, flowOf(net, sol, func(a flow.Arc) bool { return a.Type == flow.SourceToTarget }), 1e-6)
			assert.InDelta(t, flow.DefaultDeferralPenalty, sol.Objective, 1e-3)
		})
	}
}

func TestMinCostFlow_LowerBounds(t *testing.T) {
	net := relayNetwork(t, false)
	// Force the expensive direct upload.
	for i, a := range net.Arcs {
		if a.Type == flow.PhoneToSink && a.Phone == 0 {
			net.Arcs[i].Lower = 1
		}
	}
	sol, err := NewMinCostFlow(nil).Solve(net)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 6.0, sol.Objective, 1e-6)
}

func TestBalancedLP(t *testing.T) {
	net := sharedTargets(t)

	costSol, err := NewLPSolver(nil).Solve(net)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, costSol.Status)
	assert.InDelta(t, 2.0, costSol.Objective, 1e-6)

	balSol, err := NewBalancedLPSolver(0, nil).Solve(net)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, balSol.Status)
	assert.InDelta(t, 1.2, balSol.Objective, 1e-6)
	assert.InDelta(t, 1.2, flowOf(net, balSol, func(a flow.Arc) bool { return a.Type == flow.TargetToPhone && a.Phone == 0 }), 1e-6)
}

func TestMILP_BalancedIntegral(t *testing.T) {
	net := sharedTargets(t)
	sol, err := NewMILPSolver(NewBalancedLPSolver(0, nil), 50, nil).Solve(net)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 1.5, sol.Objective, 1e-6)
	for i, a := range net.Arcs {
		if a.Type == flow.TargetToPhone {
			x := sol.Flow[i]
			assert.True(t, x < 1e-6 || x > 1-1e-6, "arc %d not integral: %v", i, x)
		}
	}
}

type failingSolver struct{}

func (failingSolver) Solve(*flow.Network) (Solution, error) {
	return Solution{Status: StatusError}, errors.New("boom")
}

func TestMILP_PropagatesErrors(t *testing.T) {
	sol, err := NewMILPSolver(failingSolver{}, 0, nil).Solve(relayNetwork(t, false))
	assert.Error(t, err)
	assert.Equal(t, StatusError, sol.Status)
}

func TestLPSolver_SimplexFailure(t *testing.T) {
	orig := simplex
	simplex = func([]float64, mat.Matrix, []float64) (float64, []float64, error) {
		return 0, nil, errors.New("singular")
	}
	defer func() { simplex = orig }()

	sol, err := NewLPSolver(nil).Solve(relayNetwork(t, false))
	assert.Error(t, err)
	assert.Equal(t, StatusError, sol.Status)
}

func TestValidate(t *testing.T) {
	net := relayNetwork(t, false)
	net.Supply[net.Source] = 2
	_, err := NewMinCostFlow(nil).Solve(net)
	assert.ErrorIs(t, err, ErrInvalidNetwork)

	net = relayNetwork(t, false)
	net.Arcs[0].Lower = 2
	sol, err := NewLPSolver(nil).Solve(net)
	assert.ErrorIs(t, err, ErrInvalidNetwork)
	assert.Equal(t, StatusError, sol.Status)
}

func TestRegistry(t *testing.T) {
	s, err := New(factory.ModuleConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MinCostFlow{}, s)

	s, err = New(factory.ModuleConfig{Type: "lp-balanced", Conf: map[string]any{"tie_break": 0.01}}, nil)
	require.NoError(t, err)
	lps, ok := s.(*LPSolver)
	require.True(t, ok)
	assert.True(t, lps.Balanced)
	assert.Equal(t, 0.01, lps.TieBreak)

	_, err = New(factory.ModuleConfig{Type: "cplex"}, nil)
	assert.Error(t, err)
	assert.Contains(t, Types(), "lp")
}

type namedLogger struct {
	logger.Nop
	name string
}

func TestRegistry_InjectsLogger(t *testing.T) {
	log := namedLogger{name: "solver"}
	s, err := New(factory.ModuleConfig{Type: "lp"}, log)
	require.NoError(t, err)
	assert.Equal(t, log, s.(*LPSolver).log)

	s, err = New(factory.ModuleConfig{Type: "mcf"}, log)
	require.NoError(t, err)
	assert.Equal(t, log, s.(*MinCostFlow).log)
}
