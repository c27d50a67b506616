package scheduler

import (
	"fmt"

	"github.com/kilianp07/crowdsense/core/flow"
	"github.com/kilianp07/crowdsense/core/ledger"
	"github.com/kilianp07/crowdsense/core/logger"
	"github.com/kilianp07/crowdsense/core/model"
	"github.com/kilianp07/crowdsense/core/scenario"
)

const (
	flowEpsilon = 1e-9
	// pinSlack tolerates rounding when a target's pinned sensing reaches 1.
	pinSlack = 1e-6
)

// run is the mutable state of one scheduling run.
type run struct {
	id         string
	phones     []model.PhoneState
	specs      []model.Phone
	started    []bool
	state      *flow.CommittedState
	ledger     *ledger.Ledger
	actions    []model.Action
	mismatches int
	optimal    bool
	log        logger.Logger
}

type execution struct {
	committed  int
	mismatches int
}

func newRun(id string, phones []model.Phone, targets int, log logger.Logger) *run {
	n := len(phones)
	return &run{
		id:      id,
		phones:  make([]model.PhoneState, n),
		specs:   phones,
		started: make([]bool, n),
		state:   flow.NewCommittedState(n, targets),
		ledger:  ledger.New(n),
		optimal: true,
		log:     log,
	}
}

// activate starts the phones whose start time has elapsed by t.
func (r *run) activate(p scenario.Provider, t int) {
	for i, ph := range r.specs {
		if !r.started[i] && ph.StartTime <= t {
			r.started[i] = true
			r.phones[i] = p.StateAt(t, i)
			r.log.Debugf("phone %d joins at t=%d", i, t)
		}
	}
}

// advance moves started phones to their observed state at t.
func (r *run) advance(p scenario.Provider, t int) {
	for i := range r.specs {
		if r.started[i] {
			r.phones[i] = p.StateAt(t, i)
		}
	}
}

func (r *run) charge(agent int, cat ledger.Category, amount float64) error {
	if err := r.ledger.Record(agent, cat, amount); err != nil {
		return fmt.Errorf("phone %d %s: %w", agent, cat, err)
	}
	return nil
}

// execute applies the solved flows of the window covered by truth. Contact
// arcs are executed only when the observed contacts confirm them; uploads
// are credited only for flow that reaches the sink over executed arcs.
//
//gocyclo:ignore
func (r *run) execute(net *flow.Network, flows []float64, truth *model.ScenarioSlice) (execution, error) {
	var ex execution
	n := net.PhoneCount
	usable := make([]bool, len(net.Arcs))
	for idx, a := range net.Arcs {
		switch a.Type {
		case flow.TargetToPhone, flow.PhoneToPhone:
			usable[idx] = a.Pinned
		default:
			usable[idx] = true
		}
	}

	for idx, a := range net.Arcs {
		x := flows[idx]
		if a.Pinned || x <= flowEpsilon || !truth.Contains(a.Time) {
			continue
		}
		switch a.Type {
		case flow.TargetToPhone:
			i, j := a.Phone, a.Target
			col := n + j
			switch {
			case !truth.Adjacent(a.Time, i, col):
				ex.mismatches++
				r.log.Debugf("drop sensing of target %d by phone %d at t=%d: no contact", j, i, a.Time)
				continue
			case r.state.Complete(j) || r.state.Received(i, j):
				r.log.Debugf("drop sensing of target %d by phone %d at t=%d: already held", j, i, a.Time)
				continue
			}
			cost := a.PhoneShare * x
			if err := r.charge(i, ledger.Sensing, cost); err != nil {
				return ex, err
			}
			r.state.MarkReceived(i, j)
			if err := r.keep(flow.Key{Time: a.Time, Phone: i, Column: col}, x); err != nil {
				return ex, err
			}
			usable[idx] = true
			ex.committed++
			r.actions = append(r.actions, model.Action{
				Time: a.Time, Kind: model.ActionSense, Phone: i, Peer: -1, Target: j, Volume: x, Cost: cost,
			})
		case flow.PhoneToPhone:
			i, k := a.Phone, a.Peer
			if !truth.Adjacent(a.Time, i, k) {
				ex.mismatches++
				r.log.Debugf("drop transfer %d->%d at t=%d: no contact", i, k, a.Time)
				continue
			}
			if err := r.charge(i, ledger.Communication, a.PhoneShare*x); err != nil {
				return ex, err
			}
			if err := r.charge(k, ledger.Communication, a.PeerShare*x); err != nil {
				return ex, err
			}
			if err := r.state.Commit(flow.Key{Time: a.Time, Phone: i, Column: k}, x); err != nil {
				return ex, err
			}
			usable[idx] = true
			ex.committed++
			r.actions = append(r.actions, model.Action{
				Time: a.Time, Kind: model.ActionTransfer, Phone: i, Peer: k, Target: -1,
				Volume: x, Cost: (a.PhoneShare + a.PeerShare) * x,
			})
		}
	}

	if err := r.credit(net, flows, usable); err != nil {
		return ex, err
	}
	r.mismatches += ex.mismatches
	return ex, nil
}

// keep pins a sensing copy while the target's pinned sensing stays within
// one unit and holds it as an optional copy otherwise.
func (r *run) keep(k flow.Key, v float64) error {
	j := k.Column - r.state.Phones()
	if r.state.PinnedSensing(j)+v <= 1+pinSlack {
		return r.state.Commit(k, v)
	}
	return r.state.Hold(k, v)
}

// credit raises the uploaded fractions from the delivered flow and charges
// each phone for the volume of a target it uploads beyond what it was
// already charged for that target. A target's charges never exceed the
// rise of its uploaded fraction.
func (r *run) credit(net *flow.Network, flows []float64, usable []bool) error {
	perTarget, perSink := deliveries(net, flows, usable)
	sinks := net.ArcsOf(flow.PhoneToSink)
	for _, idx := range sinks {
		var carried float64
		for _, v := range perSink[idx] {
			carried += v
		}
		r.state.SetCarried(net.Arcs[idx].Phone, carried)
	}
	for j, v := range perTarget {
		raised := r.state.RaiseUploaded(j, v)
		for _, idx := range sinks {
			a := net.Arcs[idx]
			through := perSink[idx]
			if through == nil {
				continue
			}
			incr := r.state.Credit(a.Phone, j, through[j])
			if incr <= flowEpsilon || raised <= flowEpsilon {
				continue
			}
			amt := min(incr, raised)
			raised -= amt
			cost := a.PhoneShare * amt
			if err := r.charge(a.Phone, ledger.Upload, cost); err != nil {
				return err
			}
			r.actions = append(r.actions, model.Action{
				Time: a.Time, Kind: model.ActionUpload, Phone: a.Phone, Peer: -1, Target: j, Volume: amt, Cost: cost,
			})
		}
	}
	return nil
}

// deliveries decomposes the flow leaving each target node into paths to
// the sink. It returns the volume per target and, per PhoneToSink arc, the
// volume of each target, counting only paths made of usable arcs.
func deliveries(net *flow.Network, flows []float64, usable []bool) ([]float64, map[int][]float64) {
	residual := append([]float64(nil), flows...)
	out := make([][]int, net.NodeCount)
	for idx, a := range net.Arcs {
		if a.Type == flow.SourceToTarget || a.Type == flow.Deferral || flows[idx] <= flowEpsilon {
			continue
		}
		out[a.Tail] = append(out[a.Tail], idx)
	}
	perTarget := make([]float64, net.TargetCount)
	perSink := make(map[int][]float64)
	for j := 0; j < net.TargetCount; j++ {
		for {
			path := findPath(net, out, residual, net.TargetNode(j))
			if path == nil {
				break
			}
			amount := residual[path[0]]
			ok := true
			for _, idx := range path {
				amount = min(amount, residual[idx])
				ok = ok && usable[idx]
			}
			for _, idx := range path {
				residual[idx] -= amount
			}
			if ok {
				perTarget[j] += amount
				last := path[len(path)-1]
				if perSink[last] == nil {
					perSink[last] = make([]float64, net.TargetCount)
				}
				perSink[last][j] += amount
			}
		}
	}
	return perTarget, perSink
}

// findPath returns the arcs of a path from node to the sink over arcs with
// residual flow, or nil when none exists.
func findPath(net *flow.Network, out [][]int, residual []float64, from int) []int {
	visited := make([]bool, net.NodeCount)
	var path []int
	var walk func(v int) bool
	walk = func(v int) bool {
		if v == net.Sink {
			return true
		}
		visited[v] = true
		for _, idx := range out[v] {
			a := net.Arcs[idx]
			if residual[idx] <= flowEpsilon || visited[a.Head] {
				continue
			}
			path = append(path, idx)
			if walk(a.Head) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	if !walk(from) {
		return nil
	}
	return path
}

// backstop forces sensing for every started phone that meets an incomplete
// target it does not hold yet. Only the first copy of a target is pinned,
// since the network carries at most one unit per target; later copies are
// held.
func (r *run) backstop(truth *model.ScenarioSlice) (int, error) {
	n := truth.PhoneCount
	forced := 0
	for i := 0; i < n; i++ {
		if !r.started[i] {
			continue
		}
		for j := 0; j < truth.TargetCount; j++ {
			if r.state.Complete(j) || r.state.Received(i, j) {
				continue
			}
			col := truth.TargetColumn(j)
			for k := truth.Start; k < truth.End(); k++ {
				if !truth.Adjacent(k, i, col) {
					continue
				}
				v := truth.Capacity(k, i, col)
				cost := truth.Phones[i].SensingRate * v
				if err := r.charge(i, ledger.Sensing, cost); err != nil {
					return forced, err
				}
				r.state.MarkReceived(i, j)
				key := flow.Key{Time: k, Phone: i, Column: col}
				var err error
				if r.state.PinnedSensing(j) == 0 {
					err = r.state.Commit(key, v)
				} else {
					err = r.state.Hold(key, v)
				}
				if err != nil {
					return forced, err
				}
				r.actions = append(r.actions, model.Action{
					Time: k, Kind: model.ActionSense, Phone: i, Peer: -1, Target: j, Volume: v, Cost: cost,
				})
				r.log.Debugf("backstop sensing of target %d by phone %d at t=%d", j, i, k)
				forced++
				break
			}
		}
	}
	return forced, nil
}

func (r *run) delivered() int {
	d := 0
	for j := 0; j < r.state.Targets(); j++ {
		if r.state.Complete(j) {
			d++
		}
	}
	return d
}

// fill writes the final accounting into res.
func (r *run) fill(res *model.RunResult) {
	m := r.state.Targets()
	res.Outcome = model.OutcomeSuccess
	if !r.state.AllComplete() {
		res.Outcome = model.OutcomeInfeasible
	}
	res.Optimal = r.optimal
	res.PhoneCosts = r.ledger.Breakdown()
	res.TotalCost = r.ledger.Total()
	res.MaxPhone, res.MaxCost = r.ledger.Max()
	res.Uploaded = make([]float64, m)
	res.Delivered = make([]bool, m)
	for j := 0; j < m; j++ {
		res.Uploaded[j] = r.state.Uploaded(j)
		res.Delivered[j] = r.state.Complete(j)
	}
	res.Actions = r.actions
	res.Mismatches = r.mismatches
}
