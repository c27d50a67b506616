package flow

import (
	"errors"
	"fmt"

	"github.com/kilianp07/crowdsense/core/logger"
	"github.com/kilianp07/crowdsense/core/model"
)

// ErrMalformedWindow is returned for window bounds or tensors that cannot be
// turned into a network.
var ErrMalformedWindow = errors.New("malformed window")

// PinMode selects how committed volumes constrain their arcs.
type PinMode int

const (
	// PinExact bounds a committed arc to [v, v].
	PinExact PinMode = iota
	// PinRelaxed bounds a committed arc to [0, v].
	PinRelaxed
)

// DefaultDeferralPenalty is the unit cost of deferred demand.
const DefaultDeferralPenalty = 1e6

// Options tune network construction.
type Options struct {
	// Horizon, when positive, is the last valid window end.
	Horizon int
	// Deferral adds a source to sink arc priced at DeferralPenalty.
	Deferral        bool
	DeferralPenalty float64
}

// Builder turns a scenario window and the committed history into a Network.
type Builder struct {
	opts Options
	log  logger.Logger
}

// NewBuilder returns a Builder. A nil logger discards output.
func NewBuilder(opts Options, log logger.Logger) *Builder {
	if opts.Deferral && opts.DeferralPenalty <= 0 {
		opts.DeferralPenalty = DefaultDeferralPenalty
	}
	return &Builder{opts: opts, log: logger.OrNop(log)}
}

// Build constructs the network spanning [0, slice.End()). Steps before
// slice.Start carry only committed history; the window itself carries the
// forecast contacts of slice.
//
//gocyclo:ignore
func (b *Builder) Build(slice *model.ScenarioSlice, state *CommittedState, mode PinMode) (*Network, error) {
	if err := b.check(slice, state); err != nil {
		return nil, err
	}
	n, m := slice.PhoneCount, slice.TargetCount
	steps := slice.End()
	net := &Network{
		NodeCount:   steps*n + m + 2,
		Start:       slice.Start,
		End:         steps,
		PhoneCount:  n,
		TargetCount: m,
	}
	net.Source = steps*n + m
	net.Sink = net.Source + 1
	net.Supply = make([]float64, net.NodeCount)
	net.Supply[net.Source] = float64(m)
	net.Supply[net.Sink] = -float64(m)

	for j := 0; j < m; j++ {
		net.Arcs = append(net.Arcs, Arc{
			Tail: net.Source, Head: net.TargetNode(j),
			Lower: 0, Upper: 1,
			Type: SourceToTarget, Time: -1, Phone: -1, Peer: -1, Target: j,
		})
	}
	for i := 0; i < n; i++ {
		c := slice.Phones[i]
		// UploadLimit bounds one window; pinned history re-enters the sink on
		// top of it.
		net.Arcs = append(net.Arcs, Arc{
			Tail: net.PhoneNode(steps-1, i), Head: net.Sink,
			Cost: c.UploadRate, Lower: 0, Upper: c.UploadLimit + state.Carried(i),
			Type: PhoneToSink, Time: steps - 1, Phone: i, Peer: -1, Target: -1,
			PhoneShare: c.UploadRate,
		})
	}
	if b.opts.Deferral {
		net.Arcs = append(net.Arcs, Arc{
			Tail: net.Source, Head: net.Sink,
			Cost: b.opts.DeferralPenalty, Lower: 0, Upper: Unbounded,
			Type: Deferral, Time: -1, Phone: -1, Peer: -1, Target: -1,
		})
	}

	pinned := 0
	for t := 0; t < steps; t++ {
		for i := 0; i < n; i++ {
			for col := 0; col < n+m; col++ {
				if col == i {
					continue
				}
				k := Key{Time: t, Phone: i, Column: col}
				if v := state.Volume(k); v > 0 {
					net.Arcs = append(net.Arcs, b.pinnedArc(net, slice, t, i, col, v, mode))
					pinned++
					continue
				}
				if v := state.Held(k); v > 0 {
					net.Arcs = append(net.Arcs, heldArc(net, slice, t, i, col, v))
					pinned++
					continue
				}
				if t < slice.Start || !slice.Adjacent(t, i, col) {
					continue
				}
				if col >= n && slice.Adjacent(t-1, i, col) {
					// Continuing contact: sensing was offered when it began.
					continue
				}
				net.Arcs = append(net.Arcs, contactArc(net, slice, t, i, col, 0, slice.Capacity(t, i, col)))
			}
		}
	}
	for i := 0; i < n; i++ {
		for t := 0; t+1 < steps; t++ {
			net.Arcs = append(net.Arcs, Arc{
				Tail: net.PhoneNode(t, i), Head: net.PhoneNode(t+1, i),
				Lower: 0, Upper: Unbounded,
				Type: PhoneToSelf, Time: t, Phone: i, Peer: i, Target: -1,
			})
		}
	}
	b.log.Debugw("network built", map[string]any{
		"start":  slice.Start,
		"end":    steps,
		"nodes":  net.NodeCount,
		"arcs":   len(net.Arcs),
		"pinned": pinned,
	})
	return net, nil
}

func (b *Builder) check(slice *model.ScenarioSlice, state *CommittedState) error {
	if slice == nil || state == nil {
		return fmt.Errorf("%w: nil slice or state", ErrMalformedWindow)
	}
	if slice.Length <= 0 {
		return fmt.Errorf("%w: length %d", ErrMalformedWindow, slice.Length)
	}
	if slice.Start < 0 {
		return fmt.Errorf("%w: start %d", ErrMalformedWindow, slice.Start)
	}
	if b.opts.Horizon > 0 && slice.End() > b.opts.Horizon {
		return fmt.Errorf("%w: window [%d,%d) beyond horizon %d", ErrMalformedWindow, slice.Start, slice.End(), b.opts.Horizon)
	}
	if err := slice.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedWindow, err)
	}
	if state.Phones() != slice.PhoneCount || state.Targets() != slice.TargetCount {
		return fmt.Errorf("%w: state tracks %d phones and %d targets, slice has %d and %d",
			ErrMalformedWindow, state.Phones(), state.Targets(), slice.PhoneCount, slice.TargetCount)
	}
	return nil
}

func (b *Builder) pinnedArc(net *Network, slice *model.ScenarioSlice, t, i, col int, v float64, mode PinMode) Arc {
	lower := v
	if mode == PinRelaxed {
		lower = 0
	}
	a := contactArc(net, slice, t, i, col, lower, v)
	a.Pinned = true
	return a
}

// heldArc offers a paid sensing copy as free optional flow.
func heldArc(net *Network, slice *model.ScenarioSlice, t, i, col int, v float64) Arc {
	a := contactArc(net, slice, t, i, col, 0, v)
	a.Cost, a.PhoneShare = 0, 0
	a.Pinned = true
	return a
}

func contactArc(net *Network, slice *model.ScenarioSlice, t, i, col int, lower, upper float64) Arc {
	n := slice.PhoneCount
	c := slice.Phones[i]
	if col < n {
		peer := slice.Phones[col].TransferRate
		return Arc{
			Tail: net.PhoneNode(t, i), Head: net.PhoneNode(t, col),
			Cost: c.TransferRate + peer, Lower: lower, Upper: upper,
			Type: PhoneToPhone, Time: t, Phone: i, Peer: col, Target: -1,
			PhoneShare: c.TransferRate, PeerShare: peer,
		}
	}
	j := col - n
	return Arc{
		Tail: net.TargetNode(j), Head: net.PhoneNode(t, i),
		Cost: c.SensingRate, Lower: lower, Upper: upper,
		Type: TargetToPhone, Time: t, Phone: i, Peer: -1, Target: j,
		PhoneShare: c.SensingRate,
	}
}
