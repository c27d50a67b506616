package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/crowdsense/core/flow"
	"github.com/kilianp07/crowdsense/core/logger"
	"github.com/kilianp07/crowdsense/core/metrics"
	"github.com/kilianp07/crowdsense/core/model"
	"github.com/kilianp07/crowdsense/core/runlog"
	"github.com/kilianp07/crowdsense/core/scenario"
	"github.com/kilianp07/crowdsense/core/solver"
)

// Scheduler plans a campaign window by window. It is not safe for
// concurrent runs; State may be read from any goroutine.
type Scheduler struct {
	provider  scenario.Provider
	solver    solver.Solver
	balanced  solver.Solver
	policy    Policy
	builder   *flow.Builder
	log       logger.Logger
	sink      metrics.RunSink
	store     runlog.Store
	algorithm string
	state     atomic.Int32
	now       func() time.Time
}

// New validates the policy against the provider and returns a scheduler
// solving windows with s. Balanced fairness re-solves optimal windows with
// the balanced LP solver unless SetBalancedSolver overrides it.
func New(p scenario.Provider, s solver.Solver, policy Policy, log logger.Logger) (*Scheduler, error) {
	if p == nil || s == nil {
		return nil, fmt.Errorf("%w: nil provider or solver", ErrConfiguration)
	}
	policy.SetDefaults()
	if err := policy.Validate(p.Horizon()); err != nil {
		return nil, err
	}
	log = logger.OrNop(log)
	sch := &Scheduler{
		provider:  p,
		solver:    s,
		policy:    policy,
		log:       log,
		sink:      metrics.NopSink{},
		algorithm: "rolling",
		now:       time.Now,
	}
	sch.builder = flow.NewBuilder(flow.Options{
		Horizon:         p.Horizon(),
		Deferral:        !policy.DisableDeferral,
		DeferralPenalty: policy.DeferralPenalty,
	}, log)
	if policy.Fairness == FairnessBalanced {
		sch.balanced = solver.NewBalancedLPSolver(solver.DefaultTieBreak, log)
		sch.algorithm = "rolling-balanced"
	}
	return sch, nil
}

// SetBalancedSolver replaces the solver used for balanced re-solves.
func (s *Scheduler) SetBalancedSolver(b solver.Solver) {
	if s.policy.Fairness == FairnessBalanced && b != nil {
		s.balanced = b
	}
}

// SetSink configures the sink receiving window and run reports.
func (s *Scheduler) SetSink(sink metrics.RunSink) {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	s.sink = sink
}

// SetStore configures the store used to persist window and run reports.
func (s *Scheduler) SetStore(store runlog.Store) { s.store = store }

// SetAlgorithm overrides the algorithm name reported in results.
func (s *Scheduler) SetAlgorithm(name string) {
	if name != "" {
		s.algorithm = name
	}
}

// Policy returns the validated policy.
func (s *Scheduler) Policy() Policy { return s.policy }

// State returns the current phase.
func (s *Scheduler) State() State { return State(s.state.Load()) }

func (s *Scheduler) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		s.log.Debugw("state transition", map[string]any{"from": prev.String(), "to": next.String()})
	}
}

// Run schedules the campaign until every target is delivered or the
// horizon is exhausted. An exhausted horizon is reported through the
// result outcome, not as an error. Cancellation is honored between windows.
func (s *Scheduler) Run(ctx context.Context) (*model.RunResult, error) {
	s.setState(StateInitializing)
	phones := s.provider.Phones()
	r := newRun(uuid.NewString(), phones, s.provider.TargetCount(), s.log)
	res := &model.RunResult{RunID: r.id, Algorithm: s.algorithm, StartedAt: s.now()}
	s.log.Infof("run %s: %s over %d phones, %d targets, horizon %d, window %d",
		r.id, s.algorithm, len(phones), s.provider.TargetCount(), s.provider.Horizon(), s.policy.WindowLength)

	horizon := s.provider.Horizon()
	for start := 0; start < horizon && !r.state.AllComplete(); {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s canceled at t=%d: %w", r.id, start, err)
		}
		length := min(s.policy.WindowLength, horizon-start)
		r.activate(s.provider, start)
		rep, err := s.window(r, res.Windows, start, length)
		if err != nil {
			s.setState(StateFatal)
			s.log.Errorf("run %s aborted in window %d: %v", r.id, res.Windows, err)
			return nil, err
		}
		s.report(ctx, rep)
		res.Windows++
		res.FinalTime = start + length
		start += length
		if r.state.AllComplete() {
			break
		}
		s.setState(StateAdvancing)
		r.advance(s.provider, start)
	}
	s.setState(StateTerminated)

	r.fill(res)
	res.FinishedAt = s.now()
	s.log.Infof("run %s finished: %s, %d/%d targets, total cost %.3f, max phone cost %.3f",
		r.id, res.Outcome, res.DeliveredCount(), len(res.Delivered), res.TotalCost, res.MaxCost)
	if err := s.sink.RecordRun(res); err != nil {
		s.log.Errorf("metrics error: %v", err)
	}
	if s.store != nil {
		if err := s.store.Append(ctx, runlog.RunRecord(res)); err != nil {
			s.log.Errorf("run log error: %v", err)
		}
	}
	return res, nil
}

// window plans and executes [start, start+length).
func (s *Scheduler) window(r *run, index, start, length int) (model.WindowReport, error) {
	rep := model.WindowReport{
		RunID:     r.id,
		Algorithm: s.algorithm,
		Window:    index,
		Start:     start,
		End:       start + length,
		Targets:   r.state.Targets(),
	}
	s.setState(StateWindowSolving)
	forecast, err := s.provider.Window(r.phones, start, length)
	if err != nil {
		return rep, fmt.Errorf("forecast window %d: %w", index, err)
	}
	truth, err := s.provider.Truth(start, length)
	if err != nil {
		return rep, fmt.Errorf("truth window %d: %w", index, err)
	}

	began := s.now()
	net, sol, relaxed, err := s.solve(r, forecast)
	rep.SolveTime = s.now().Sub(began)
	if err != nil {
		return rep, fmt.Errorf("window %d: %w", index, err)
	}
	rep.Status = sol.Status.String()
	rep.Relaxed = relaxed
	rep.Objective = sol.Objective

	s.setState(StateExecuting)
	before := r.ledger.Total()
	var ex execution
	if sol.Status == solver.StatusOptimal {
		if ex, err = r.execute(net, sol.Flow, truth); err != nil {
			return rep, fmt.Errorf("execute window %d: %w", index, err)
		}
	} else {
		r.optimal = false
		s.log.Warnf("window [%d,%d) stays %s after relaxing pins, only backstop sensing applies",
			start, start+length, sol.Status)
	}
	backstops, err := r.backstop(truth)
	if err != nil {
		return rep, fmt.Errorf("backstop window %d: %w", index, err)
	}

	rep.Committed = ex.committed + backstops
	rep.Mismatches = ex.mismatches
	rep.Backstops = backstops
	rep.WindowCost = r.ledger.Total() - before
	rep.TotalCost = r.ledger.Total()
	rep.Delivered = r.delivered()
	rep.RecordedAt = s.now()
	s.log.Debugw("window executed", map[string]any{
		"window":     index,
		"start":      start,
		"end":        start + length,
		"status":     rep.Status,
		"relaxed":    relaxed,
		"committed":  rep.Committed,
		"mismatches": rep.Mismatches,
		"backstops":  backstops,
		"cost":       rep.WindowCost,
	})
	return rep, nil
}

// solve builds the exact network and solves it, falling back to relaxed
// pins when exact pins are infeasible. Optimal solutions are escalated to
// the balanced and MILP solvers when the policy asks for them; escalation
// failures keep the previous solution.
func (s *Scheduler) solve(r *run, forecast *model.ScenarioSlice) (*flow.Network, solver.Solution, bool, error) {
	net, err := s.builder.Build(forecast, r.state, flow.PinExact)
	if err != nil {
		return nil, solver.Solution{}, false, err
	}
	sol, err := solveWith(s.solver, net)
	if err != nil {
		return nil, sol, false, err
	}
	relaxed := false
	if sol.Status == solver.StatusInfeasible {
		s.log.Warnf("window [%d,%d) infeasible with exact pins, relaxing", net.Start, net.End)
		if net, err = s.builder.Build(forecast, r.state, flow.PinRelaxed); err != nil {
			return nil, solver.Solution{}, false, err
		}
		relaxed = true
		if sol, err = solveWith(s.solver, net); err != nil {
			return nil, sol, relaxed, err
		}
	}
	if sol.Status != solver.StatusOptimal {
		r.optimal = false
		return net, sol, relaxed, nil
	}

	active := s.solver
	if s.balanced != nil {
		bal, err := s.balanced.Solve(net)
		switch {
		case err != nil:
			s.log.Warnf("balanced re-solve failed, keeping cost solution: %v", err)
		case bal.Status == solver.StatusOptimal && len(bal.Flow) == len(net.Arcs):
			sol, active = bal, s.balanced
		default:
			s.log.Warnf("balanced re-solve %s, keeping cost solution", bal.Status)
		}
	}
	if s.policy.UseMILP {
		ms, err := solver.NewMILPSolver(active, s.policy.MILPNodeLimit, s.log).Solve(net)
		switch {
		case err != nil:
			s.log.Warnf("MILP re-solve failed, keeping relaxation: %v", err)
		case ms.Status == solver.StatusOptimal && len(ms.Flow) == len(net.Arcs):
			sol = ms
		default:
			s.log.Debugf("MILP found no integral solution, keeping relaxation")
		}
	}
	return net, sol, relaxed, nil
}

func solveWith(sv solver.Solver, net *flow.Network) (solver.Solution, error) {
	sol, err := sv.Solve(net)
	if err == nil && sol.Status == solver.StatusError {
		err = errors.New("error status without cause")
	}
	if err == nil && sol.Status == solver.StatusOptimal && len(sol.Flow) != len(net.Arcs) {
		err = fmt.Errorf("returned %d flows for %d arcs", len(sol.Flow), len(net.Arcs))
	}
	if err != nil {
		return solver.Solution{Status: solver.StatusError}, fmt.Errorf("%w: %w", ErrSolverFailure, err)
	}
	return sol, nil
}

func (s *Scheduler) report(ctx context.Context, rep model.WindowReport) {
	if err := s.sink.RecordWindow(rep); err != nil {
		s.log.Errorf("metrics error: %v", err)
	}
	if s.store != nil {
		if err := s.store.Append(ctx, runlog.WindowRecord(rep)); err != nil {
			s.log.Errorf("run log error: %v", err)
		}
	}
}
