// Package greedy implements a solver-free baseline in which every phone acts
// on the contacts it observes at each step.
package greedy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/crowdsense/core/ledger"
	"github.com/kilianp07/crowdsense/core/logger"
	"github.com/kilianp07/crowdsense/core/metrics"
	"github.com/kilianp07/crowdsense/core/model"
	"github.com/kilianp07/crowdsense/core/runlog"
	"github.com/kilianp07/crowdsense/core/scenario"
)

const epsilon = 1e-9

// Algorithm is the name reported in results.
const Algorithm = "greedy"

var timeNow = time.Now

// key identifies data about target Target first sensed by phone Origin.
type key struct {
	Origin, Target int
}

// inventory is the data a phone carries, by key.
type inventory map[key]float64

// keys returns the held keys by origin, then target.
func (inv inventory) keys() []key {
	out := make([]key, 0, len(inv))
	for k := range inv {
		out = append(out, k)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Origin != out[b].Origin {
			return out[a].Origin < out[b].Origin
		}
		return out[a].Target < out[b].Target
	})
	return out
}

// Scheduler runs the greedy baseline over the observed contacts.
type Scheduler struct {
	provider scenario.Provider
	log      logger.Logger
	sink     metrics.RunSink
	store    runlog.Store
}

// New returns a greedy scheduler reading contacts from p.
func New(p scenario.Provider, log logger.Logger) (*Scheduler, error) {
	if p == nil {
		return nil, fmt.Errorf("nil provider")
	}
	if p.Horizon() <= 0 {
		return nil, fmt.Errorf("horizon %d must be positive", p.Horizon())
	}
	return &Scheduler{provider: p, log: logger.OrNop(log), sink: metrics.NopSink{}}, nil
}

// SetSink configures the sink receiving the run report.
func (s *Scheduler) SetSink(sink metrics.RunSink) {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	s.sink = sink
}

// SetStore configures the store persisting the run report.
func (s *Scheduler) SetStore(store runlog.Store) { s.store = store }

type state struct {
	phones    []model.Phone
	targets   int
	held      []inventory
	remaining map[key]float64
	delivered []bool
	ledger    *ledger.Ledger
	actions   []model.Action
}

// Run simulates the campaign step by step until every target is delivered
// or the horizon is exhausted.
func (s *Scheduler) Run(ctx context.Context) (*model.RunResult, error) {
	phones := s.provider.Phones()
	n, m := len(phones), s.provider.TargetCount()
	truth, err := s.provider.Truth(0, s.provider.Horizon())
	if err != nil {
		return nil, fmt.Errorf("observed contacts: %w", err)
	}
	st := &state{
		phones:    phones,
		targets:   m,
		held:      make([]inventory, n),
		remaining: make(map[key]float64, n*m),
		delivered: make([]bool, m),
		ledger:    ledger.New(n),
	}
	for i := range st.held {
		st.held[i] = inventory{}
		for j := 0; j < m; j++ {
			st.remaining[key{i, j}] = 1
		}
	}

	res := &model.RunResult{RunID: uuid.NewString(), Algorithm: Algorithm, StartedAt: timeNow()}
	s.log.Infof("run %s: greedy over %d phones, %d targets, horizon %d", res.RunID, n, m, truth.Length)
	for t := 0; t < truth.Length && !st.done(); t++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s canceled at t=%d: %w", res.RunID, t, err)
		}
		for i := 0; i < n; i++ {
			if err := st.step(truth, t, i); err != nil {
				return nil, fmt.Errorf("t=%d phone %d: %w", t, i, err)
			}
		}
		res.Windows++
		res.FinalTime = t + 1
	}

	st.fill(res)
	res.FinishedAt = timeNow()
	s.log.Infof("run %s finished: %s, %d/%d targets, total cost %.3f",
		res.RunID, res.Outcome, res.DeliveredCount(), m, res.TotalCost)
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

func (st *state) done() bool {
	for _, d := range st.delivered {
		if !d {
			return false
		}
	}
	return true
}

// step performs the actions of phone i at time t.
func (st *state) step(truth *model.ScenarioSlice, t, i int) error {
	inv := st.held[i]
	costs := st.phones[i].Costs
	for _, k := range inv.keys() {
		if st.delivered[k.Target] {
			delete(inv, k)
			continue
		}
		inv[k] = min(inv[k], st.remaining[k])
	}

	for j := 0; j < st.targets; j++ {
		k := key{i, j}
		if st.delivered[j] || !truth.Adjacent(t, i, truth.TargetColumn(j)) {
			continue
		}
		if _, ok := inv[k]; ok {
			continue
		}
		amount := st.remaining[k]
		cost := costs.SensingRate * amount
		if err := st.ledger.Record(i, ledger.Sensing, cost); err != nil {
			return err
		}
		inv[k] = amount
		st.actions = append(st.actions, model.Action{
			Time: t, Kind: model.ActionSense, Phone: i, Peer: -1, Target: j, Volume: amount, Cost: cost,
		})
	}

	budget := costs.UploadLimit
	for _, k := range inv.keys() {
		if budget <= epsilon {
			break
		}
		if st.delivered[k.Target] {
			delete(inv, k)
			continue
		}
		amount := inv[k]
		if amount > budget {
			amount = budget
			inv[k] -= budget
			st.remaining[k] = min(st.remaining[k], inv[k])
		} else {
			delete(inv, k)
			st.remaining[k] -= amount
			if st.remaining[k] <= epsilon {
				st.remaining[k] = 0
				st.delivered[k.Target] = true
			}
		}
		budget -= amount
		cost := costs.UploadRate * amount
		if err := st.ledger.Record(i, ledger.Upload, cost); err != nil {
			return err
		}
		st.actions = append(st.actions, model.Action{
			Time: t, Kind: model.ActionUpload, Phone: i, Peer: -1, Target: k.Target, Volume: amount, Cost: cost,
		})
	}
	if len(inv) == 0 {
		return nil
	}

	for peer := 0; peer < len(st.phones); peer++ {
		if peer == i || !truth.Adjacent(t, i, peer) {
			continue
		}
		if err := st.copyTo(truth, t, i, peer); err != nil {
			return err
		}
	}
	return nil
}

// copyTo hands phone peer every entry it lacks or holds less of, until the
// contact capacity at t is used. The last entry sent is cut to the capacity
// left. Each endpoint pays its own transfer rate.
func (st *state) copyTo(truth *model.ScenarioSlice, t, i, peer int) error {
	capacity := truth.Capacity(t, i, peer)
	dst := st.held[peer]
	var sent float64
	for _, k := range st.held[i].keys() {
		left := capacity - sent
		if left <= epsilon {
			break
		}
		amount := min(st.held[i][k], left)
		if have, ok := dst[k]; ok && have >= amount {
			continue
		}
		own := st.phones[i].Costs.TransferRate * amount
		theirs := st.phones[peer].Costs.TransferRate * amount
		if err := st.ledger.Record(i, ledger.Communication, own); err != nil {
			return err
		}
		if err := st.ledger.Record(peer, ledger.Communication, theirs); err != nil {
			return err
		}
		dst[k] = amount
		sent += amount
		st.actions = append(st.actions, model.Action{
			Time: t, Kind: model.ActionTransfer, Phone: i, Peer: peer, Target: k.Target, Volume: amount, Cost: own + theirs,
		})
	}
	return nil
}

func (st *state) fill(res *model.RunResult) {
	res.Outcome = model.OutcomeSuccess
	if !st.done() {
		res.Outcome = model.OutcomeInfeasible
	}
	res.PhoneCosts = st.ledger.Breakdown()
	res.TotalCost = st.ledger.Total()
	res.MaxPhone, res.MaxCost = st.ledger.Max()
	res.Uploaded = make([]float64, st.targets)
	res.Delivered = make([]bool, st.targets)
	for j := 0; j < st.targets; j++ {
		res.Delivered[j] = st.delivered[j]
		if st.delivered[j] {
			res.Uploaded[j] = 1
			continue
		}
		for i := range st.phones {
			res.Uploaded[j] = max(res.Uploaded[j], 1-st.remaining[key{i, j}])
		}
	}
	res.Actions = st.actions
}
