// Package scenario supplies contact forecasts and ground truth to the
// schedulers.
package scenario

import (
	"errors"
	"fmt"

	"github.com/kilianp07/crowdsense/core/model"
)

// ErrOutOfRange is returned when a requested range leaves the horizon.
var ErrOutOfRange = errors.New("range outside scenario horizon")

// Provider exposes the mobility of a sensing campaign. Repeated calls for
// the same elapsed range return identical data.
type Provider interface {
	// Horizon is the number of time steps in the campaign.
	Horizon() int
	Phones() []model.Phone
	TargetCount() int
	// Window forecasts contacts in [start, start+length) from the states
	// observed at start.
	Window(states []model.PhoneState, start, length int) (*model.ScenarioSlice, error)
	// Truth returns the contacts that actually happen in [start, start+length).
	Truth(start, length int) (*model.ScenarioSlice, error)
	StateAt(t, i int) model.PhoneState
}

func checkRange(horizon, start, length int) error {
	if start < 0 || length <= 0 || start+length > horizon {
		return fmt.Errorf("%w: [%d, %d) with horizon %d", ErrOutOfRange, start, start+length, horizon)
	}
	return nil
}

// sub copies the steps [start, start+length) out of a slice starting at 0.
func sub(full *model.ScenarioSlice, start, length int) *model.ScenarioSlice {
	s := model.NewScenarioSlice(start, length, full.PhoneCount, full.TargetCount, append([]model.CostProfile(nil), full.Phones...))
	for k := 0; k < length; k++ {
		for i := 0; i < full.PhoneCount; i++ {
			copy(s.Adj[k][i], full.Adj[start+k][i])
			copy(s.Cap[k][i], full.Cap[start+k][i])
		}
	}
	return s
}

// Oracle makes a provider's forecasts exact. Scheduling over an Oracle with
// a single window spanning the horizon yields the offline optimum.
type Oracle struct {
	Provider
}

// NewOracle wraps p.
func NewOracle(p Provider) Oracle { return Oracle{Provider: p} }

// Window returns the truth for the range and ignores the states.
func (o Oracle) Window(_ []model.PhoneState, start, length int) (*model.ScenarioSlice, error) {
	return o.Truth(start, length)
}
