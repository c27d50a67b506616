// Package ledger accumulates executed action costs per phone and category.
package ledger

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/crowdsense/core/model"
)

// Category is a kind of cost.
type Category int

const (
	Sensing Category = iota
	Communication
	Upload
	numCategories
)

// String returns a human-readable representation of the category.
func (c Category) String() string {
	switch c {
	case Sensing:
		return "sensing"
	case Communication:
		return "communication"
	case Upload:
		return "upload"
	default:
		return "unknown"
	}
}

// Ledger is the single path through which costs are recorded. The aggregate
// is updated together with the per-agent entry so both always agree.
type Ledger struct {
	entries  [][numCategories]float64
	category [numCategories]float64
	total    float64
}

// New returns a ledger for the given number of phones.
func New(phones int) *Ledger {
	return &Ledger{entries: make([][numCategories]float64, phones)}
}

// Record adds amount to the agent's category total and to the aggregate.
func (l *Ledger) Record(agent int, cat Category, amount float64) error {
	if agent < 0 || agent >= len(l.entries) {
		return fmt.Errorf("unknown agent %d", agent)
	}
	if cat < 0 || cat >= numCategories {
		return fmt.Errorf("unknown cost category %d", cat)
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("invalid cost amount %v", amount)
	}
	l.entries[agent][cat] += amount
	l.category[cat] += amount
	l.total += amount
	return nil
}

// Agents returns the number of agents tracked.
func (l *Ledger) Agents() int { return len(l.entries) }

// AgentCost returns the per-category breakdown for one agent.
func (l *Ledger) AgentCost(agent int) model.Cost {
	e := l.entries[agent]
	return model.Cost{Sensing: e[Sensing], Communication: e[Communication], Upload: e[Upload]}
}

// AgentTotal returns the total cost of one agent.
func (l *Ledger) AgentTotal(agent int) float64 {
	e := l.entries[agent]
	return floats.Sum(e[:])
}

// CategoryTotal returns the aggregate cost of one category.
func (l *Ledger) CategoryTotal(cat Category) float64 { return l.category[cat] }

// Total returns the aggregate cost.
func (l *Ledger) Total() float64 { return l.total }

// Max returns the agent with the highest total cost and that cost. It
// returns -1 when no agents are tracked.
func (l *Ledger) Max() (int, float64) {
	if len(l.entries) == 0 {
		return -1, 0
	}
	totals := make([]float64, len(l.entries))
	for i := range l.entries {
		totals[i] = l.AgentTotal(i)
	}
	idx := floats.MaxIdx(totals)
	return idx, totals[idx]
}

// Breakdown returns every agent's cost in index order.
func (l *Ledger) Breakdown() []model.Cost {
	out := make([]model.Cost, len(l.entries))
	for i := range l.entries {
		out[i] = l.AgentCost(i)
	}
	return out
}
