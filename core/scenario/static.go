package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/crowdsense/core/model"
)

// Contact is one adjacency entry of a fixture. Exactly one of Peer and
// Target is set; phone contacts are recorded in both directions.
type Contact struct {
	Time     int     `yaml:"time" json:"time"`
	Phone    int     `yaml:"phone" json:"phone"`
	Peer     *int    `yaml:"peer,omitempty" json:"peer,omitempty"`
	Target   *int    `yaml:"target,omitempty" json:"target,omitempty"`
	Capacity float64 `yaml:"capacity" json:"capacity"`
}

// File is the on-disk form of a static scenario. An empty Forecast means
// forecasts equal the truth.
type File struct {
	Horizon  int           `yaml:"horizon" json:"horizon"`
	Targets  int           `yaml:"targets" json:"targets"`
	Phones   []model.Phone `yaml:"phones" json:"phones"`
	Contacts []Contact     `yaml:"contacts" json:"contacts"`
	Forecast []Contact     `yaml:"forecast,omitempty" json:"forecast,omitempty"`
}

// Static serves fixed truth and forecast tensors.
type Static struct {
	phones   []model.Phone
	truth    *model.ScenarioSlice
	forecast *model.ScenarioSlice
}

// NewStatic builds a provider from full-horizon slices starting at 0. A nil
// forecast selects the truth.
func NewStatic(phones []model.Phone, truth, forecast *model.ScenarioSlice) (*Static, error) {
	if truth == nil {
		return nil, fmt.Errorf("truth slice is required")
	}
	if forecast == nil {
		forecast = truth
	}
	for _, s := range []*model.ScenarioSlice{truth, forecast} {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if s.Start != 0 {
			return nil, fmt.Errorf("slice must start at 0, got %d", s.Start)
		}
		if s.PhoneCount != len(phones) {
			return nil, fmt.Errorf("slice has %d phones, expected %d", s.PhoneCount, len(phones))
		}
	}
	if forecast.Length != truth.Length || forecast.TargetCount != truth.TargetCount {
		return nil, fmt.Errorf("forecast dimensions differ from truth")
	}
	for i, p := range phones {
		if err := p.Costs.Validate(); err != nil {
			return nil, fmt.Errorf("phone %d: %w", i, err)
		}
	}
	return &Static{phones: phones, truth: truth, forecast: forecast}, nil
}

// LoadStatic reads a YAML fixture from path.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseStatic(data)
}

// ParseStatic decodes a YAML fixture.
func ParseStatic(data []byte) (*Static, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return f.Provider()
}

// Provider converts the file into a Static provider.
func (f File) Provider() (*Static, error) {
	if f.Horizon <= 0 {
		return nil, fmt.Errorf("horizon must be positive")
	}
	truth, err := f.slice(f.Contacts)
	if err != nil {
		return nil, fmt.Errorf("contacts: %w", err)
	}
	var forecast *model.ScenarioSlice
	if len(f.Forecast) > 0 {
		if forecast, err = f.slice(f.Forecast); err != nil {
			return nil, fmt.Errorf("forecast: %w", err)
		}
	}
	return NewStatic(f.Phones, truth, forecast)
}

func (f File) slice(contacts []Contact) (*model.ScenarioSlice, error) {
	n := len(f.Phones)
	s := model.NewScenarioSlice(0, f.Horizon, n, f.Targets, model.Profiles(f.Phones))
	for _, c := range contacts {
		if c.Time < 0 || c.Time >= f.Horizon || c.Phone < 0 || c.Phone >= n {
			return nil, fmt.Errorf("contact %+v out of range", c)
		}
		if c.Capacity < 0 {
			return nil, fmt.Errorf("contact %+v has negative capacity", c)
		}
		switch {
		case c.Peer != nil && c.Target == nil:
			if *c.Peer < 0 || *c.Peer >= n || *c.Peer == c.Phone {
				return nil, fmt.Errorf("invalid peer %d", *c.Peer)
			}
			s.Set(c.Time, c.Phone, *c.Peer, c.Capacity)
			s.Set(c.Time, *c.Peer, c.Phone, c.Capacity)
		case c.Target != nil && c.Peer == nil:
			if *c.Target < 0 || *c.Target >= f.Targets {
				return nil, fmt.Errorf("invalid target %d", *c.Target)
			}
			s.Set(c.Time, c.Phone, s.TargetColumn(*c.Target), c.Capacity)
		default:
			return nil, fmt.Errorf("contact at t=%d for phone %d needs exactly one of peer and target", c.Time, c.Phone)
		}
	}
	return s, nil
}

// Export converts a provider's truth into a file. Phone contacts are
// emitted once per unordered pair, so asymmetric contacts are widened.
func Export(p Provider) (File, error) {
	truth, err := p.Truth(0, p.Horizon())
	if err != nil {
		return File{}, err
	}
	f := File{Horizon: p.Horizon(), Targets: p.TargetCount(), Phones: p.Phones()}
	for t := 0; t < truth.Length; t++ {
		for i := 0; i < truth.PhoneCount; i++ {
			for b := 0; b < truth.Columns(); b++ {
				if !truth.Adjacent(t, i, b) {
					continue
				}
				c := Contact{Time: t, Phone: i, Capacity: truth.Capacity(t, i, b)}
				if b < truth.PhoneCount {
					if b < i {
						continue
					}
					peer := b
					c.Peer = &peer
				} else {
					target := b - truth.PhoneCount
					c.Target = &target
				}
				f.Contacts = append(f.Contacts, c)
			}
		}
	}
	return f, nil
}

func (s *Static) Horizon() int          { return s.truth.Length }
func (s *Static) Phones() []model.Phone { return s.phones }
func (s *Static) TargetCount() int      { return s.truth.TargetCount }

// Window returns the forecast for the range with inactive phones removed.
func (s *Static) Window(states []model.PhoneState, start, length int) (*model.ScenarioSlice, error) {
	if err := checkRange(s.Horizon(), start, length); err != nil {
		return nil, err
	}
	if len(states) != len(s.phones) {
		return nil, fmt.Errorf("expected %d phone states, got %d", len(s.phones), len(states))
	}
	w := sub(s.forecast, start, length)
	for i, st := range states {
		if !st.Active {
			w.MaskPhone(i)
		}
	}
	return w, nil
}

// Truth returns the observed contacts of the range. Phones have none before
// their start time.
func (s *Static) Truth(start, length int) (*model.ScenarioSlice, error) {
	if err := checkRange(s.Horizon(), start, length); err != nil {
		return nil, err
	}
	w := sub(s.truth, start, length)
	for i, p := range s.phones {
		if p.StartTime > start {
			w.MaskPhoneBefore(i, p.StartTime)
		}
	}
	return w, nil
}

// StateAt reports a phone as active from its start time on. Static
// scenarios carry no locations.
func (s *Static) StateAt(t, i int) model.PhoneState {
	return model.PhoneState{Active: t >= s.phones[i].StartTime}
}
