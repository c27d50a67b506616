// Package flow models the scheduling problem as a time-expanded min-cost
// flow network.
//
// Phone i at step t is node t*n+i for n phones. Targets follow the phone
// layers, then the source and the sink. The source supplies one unit per
// target and the sink absorbs the same amount.
package flow

import "math"

// ArcType tags the meaning of an arc so solved flows can be mapped back to
// actions.
type ArcType int

const (
	SourceToTarget ArcType = iota
	PhoneToSink
	PhoneToPhone
	TargetToPhone
	PhoneToSelf
	// Deferral carries demand that cannot be served inside the current
	// window directly from source to sink.
	Deferral
)

// String returns a human-readable representation of the arc type.
func (t ArcType) String() string {
	switch t {
	case SourceToTarget:
		return "source_to_target"
	case PhoneToSink:
		return "phone_to_sink"
	case PhoneToPhone:
		return "phone_to_phone"
	case TargetToPhone:
		return "target_to_phone"
	case PhoneToSelf:
		return "phone_to_self"
	case Deferral:
		return "deferral"
	default:
		return "unknown"
	}
}

// Unbounded is the upper bound of arcs without a capacity limit.
var Unbounded = math.Inf(1)

// Arc is a directed edge of the network. Time, Phone, Peer and Target are -1
// when they do not apply. PhoneShare and PeerShare split Cost between the
// phones billed for one unit of flow.
type Arc struct {
	Tail, Head int
	Cost       float64
	Lower      float64
	Upper      float64
	Type       ArcType
	Time       int
	Phone      int
	Peer       int
	Target     int
	PhoneShare float64
	PeerShare  float64
	// Pinned marks arcs reproducing a volume committed in an earlier window,
	// or a held sensing copy offered at zero cost.
	Pinned bool
}

// Column returns the agent column of the contact behind the arc, or -1 for
// arcs that are not contacts.
func (a Arc) Column(phones int) int {
	switch a.Type {
	case PhoneToPhone:
		return a.Peer
	case TargetToPhone:
		return phones + a.Target
	default:
		return -1
	}
}

// Network is a solver-ready flow instance plus the metadata needed to
// interpret its solution. Arcs keep their construction order.
type Network struct {
	NodeCount   int
	Supply      []float64
	Arcs        []Arc
	Source      int
	Sink        int
	Start       int
	End         int
	PhoneCount  int
	TargetCount int
}

// PhoneNode returns the node of phone i at step t.
func (n *Network) PhoneNode(t, i int) int { return t*n.PhoneCount + i }

// TargetNode returns the node of target j.
func (n *Network) TargetNode(j int) int { return n.End*n.PhoneCount + j }

// ArcsOf returns the indices of arcs with the given type.
func (n *Network) ArcsOf(typ ArcType) []int {
	var out []int
	for i, a := range n.Arcs {
		if a.Type == typ {
			out = append(out, i)
		}
	}
	return out
}

// Cost returns the objective value of the given arc flows.
func (n *Network) Cost(flows []float64) float64 {
	var total float64
	for i, a := range n.Arcs {
		if i < len(flows) {
			total += a.Cost * flows[i]
		}
	}
	return total
}

// Clone returns a deep copy that can be modified independently.
func (n *Network) Clone() *Network {
	c := *n
	c.Supply = append([]float64(nil), n.Supply...)
	c.Arcs = append([]Arc(nil), n.Arcs...)
	return &c
}
