package scenario

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/crowdsense/core/logger"
	"github.com/kilianp07/crowdsense/core/model"
)

// Range draws Step times a uniform integer in [Min, Max].
type Range struct {
	Min  int     `json:"min" yaml:"min"`
	Max  int     `json:"max" yaml:"max"`
	Step float64 `json:"step" yaml:"step"`
}

// Validate checks the bounds.
func (r Range) Validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("range min %d greater than max %d", r.Min, r.Max)
	}
	if r.Step < 0 {
		return fmt.Errorf("negative range step %v", r.Step)
	}
	return nil
}

func (r Range) sample(rng *rand.Rand) float64 {
	step := r.Step
	if step == 0 {
		step = 1
	}
	return float64(r.Min+rng.IntN(r.Max-r.Min+1)) * step
}

// TurnProbability is the chance of each decision at an intersection.
type TurnProbability struct {
	Left     float64 `json:"left" yaml:"left"`
	Right    float64 `json:"right" yaml:"right"`
	Straight float64 `json:"straight" yaml:"straight"`
}

// Validate requires a probability distribution.
func (p TurnProbability) Validate() error {
	if p.Left < 0 || p.Right < 0 || p.Straight < 0 {
		return fmt.Errorf("negative turn probability")
	}
	if math.Abs(p.Left+p.Right+p.Straight-1) > 1e-9 {
		return fmt.Errorf("turn probabilities sum to %v", p.Left+p.Right+p.Straight)
	}
	return nil
}

// MapConfig describes the road grid and the monitored points.
type MapConfig struct {
	Length        float64       `json:"length" yaml:"length"`
	Width         float64       `json:"width" yaml:"width"`
	Entries       []model.Point `json:"entries" yaml:"entries"`
	Intersections []model.Point `json:"intersections" yaml:"intersections"`
	Targets       []model.Point `json:"targets" yaml:"targets"`
}

func (m MapConfig) outOfBounds(p model.Point) bool {
	return p.X < 0 || p.X > m.Length || p.Y < 0 || p.Y > m.Width
}

// entryHeading points a phone from its entry into the map.
func (m MapConfig) entryHeading(p model.Point) model.Heading {
	switch {
	case p.X == 0:
		return model.HeadingRight
	case p.X == m.Length:
		return model.HeadingLeft
	case p.Y == 0:
		return model.HeadingUp
	default:
		return model.HeadingDown
	}
}

// GeneratorConfig parameterizes the synthetic campaign.
type GeneratorConfig struct {
	Seed          uint64          `json:"seed" yaml:"seed"`
	Phones        int             `json:"phones" yaml:"phones"`
	Horizon       int             `json:"horizon" yaml:"horizon"`
	CommRange     float64         `json:"comm_range" yaml:"comm_range"`
	SensingRange  float64         `json:"sensing_range" yaml:"sensing_range"`
	DataPerSecond float64         `json:"data_per_second" yaml:"data_per_second"`
	Speed         Range           `json:"speed" yaml:"speed"`
	StartTime     Range           `json:"start_time" yaml:"start_time"`
	SensingCost   Range           `json:"sensing_cost" yaml:"sensing_cost"`
	TransferCost  Range           `json:"transfer_cost" yaml:"transfer_cost"`
	UploadCost    Range           `json:"upload_cost" yaml:"upload_cost"`
	UploadLimit   Range           `json:"upload_limit" yaml:"upload_limit"`
	Turns         TurnProbability `json:"turns" yaml:"turns"`
	Map           MapConfig       `json:"map" yaml:"map"`
}

// DefaultGeneratorConfig returns a 500x500 crossroad with eight targets.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:          1,
		Phones:        50,
		Horizon:       1000,
		CommRange:     40,
		SensingRange:  40,
		DataPerSecond: 0.5,
		Speed:         Range{Min: 5, Max: 15, Step: 0.1},
		StartTime:     Range{Min: 0, Max: 100, Step: 1},
		SensingCost:   Range{Min: 2, Max: 6, Step: 0.5},
		TransferCost:  Range{Min: 2, Max: 6, Step: 0.5},
		UploadCost:    Range{Min: 2, Max: 6, Step: 0.5},
		UploadLimit:   Range{Min: 1, Max: 5, Step: 0.1},
		Turns:         TurnProbability{Left: 0.25, Right: 0.25, Straight: 0.5},
		Map: MapConfig{
			Length:        500,
			Width:         500,
			Entries:       []model.Point{{X: 0, Y: 250}, {X: 250, Y: 0}, {X: 250, Y: 500}, {X: 500, Y: 250}},
			Intersections: []model.Point{{X: 250, Y: 250}},
			Targets: []model.Point{
				{X: 125, Y: 250}, {X: 275, Y: 250}, {X: 250, Y: 375}, {X: 250, Y: 125},
				{X: 180, Y: 250}, {X: 220, Y: 250}, {X: 250, Y: 320}, {X: 250, Y: 180},
			},
		},
	}
}

// Validate checks the configuration.
func (c GeneratorConfig) Validate() error {
	if c.Phones <= 0 {
		return fmt.Errorf("phone count must be positive")
	}
	if c.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive")
	}
	if c.CommRange < 0 || c.SensingRange < 0 || c.DataPerSecond < 0 {
		return fmt.Errorf("ranges and data rate must be non-negative")
	}
	for name, r := range map[string]Range{
		"speed": c.Speed, "start_time": c.StartTime, "sensing_cost": c.SensingCost,
		"transfer_cost": c.TransferCost, "upload_cost": c.UploadCost, "upload_limit": c.UploadLimit,
	} {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Speed.Min < 0 || c.SensingCost.Min < 0 || c.TransferCost.Min < 0 || c.UploadCost.Min < 0 || c.UploadLimit.Min < 0 {
		return fmt.Errorf("speed and cost ranges must be non-negative")
	}
	if c.StartTime.Min < 0 || c.StartTime.Max >= c.Horizon {
		return fmt.Errorf("start time range [%d, %d] must lie within the horizon", c.StartTime.Min, c.StartTime.Max)
	}
	if err := c.Turns.Validate(); err != nil {
		return err
	}
	if len(c.Map.Entries) == 0 {
		return fmt.Errorf("map needs at least one entry point")
	}
	for _, p := range c.Map.Entries {
		if c.Map.outOfBounds(p) {
			return fmt.Errorf("entry point %+v outside the map", p)
		}
	}
	return nil
}

type turn int

const (
	turnLeft turn = iota
	turnRight
	turnStraight
)

// Generator simulates phones driving a road grid. The truth is simulated
// once for the whole horizon; forecasts re-simulate from observed states
// assuming every phone keeps straight.
type Generator struct {
	cfg     GeneratorConfig
	phones  []model.Phone
	truth   *model.ScenarioSlice
	history [][]model.PhoneState
	log     logger.Logger
}

// NewGenerator samples phones and simulates the campaign.
func NewGenerator(cfg GeneratorConfig, log logger.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{cfg: cfg, log: logger.OrNop(log)}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	initial := g.samplePhones(rng)

	turns := distuv.NewCategorical([]float64{cfg.Turns.Left, cfg.Turns.Right, cfg.Turns.Straight}, rng)
	decide := func() turn { return turn(turns.Rand()) }

	n := len(g.phones)
	g.truth = model.NewScenarioSlice(0, cfg.Horizon, n, len(cfg.Map.Targets), model.Profiles(g.phones))
	g.history = make([][]model.PhoneState, cfg.Horizon)
	states := initial
	for t := 0; t < cfg.Horizon; t++ {
		for i, p := range g.phones {
			if p.StartTime == t {
				states[i].Active = true
			}
		}
		g.history[t] = append([]model.PhoneState(nil), states...)
		g.contacts(g.truth, t, states)
		for i := range states {
			states[i] = g.move(states[i], g.phones[i].Speed, decide)
		}
	}
	g.log.Infof("scenario generated: %d phones, %d targets, horizon %d", n, len(cfg.Map.Targets), cfg.Horizon)
	return g, nil
}

func (g *Generator) samplePhones(rng *rand.Rand) []model.PhoneState {
	c := g.cfg
	g.phones = make([]model.Phone, c.Phones)
	states := make([]model.PhoneState, c.Phones)
	for i := range g.phones {
		speed := c.Speed.sample(rng)
		entry := c.Map.Entries[rng.IntN(len(c.Map.Entries))]
		costs := model.CostProfile{
			SensingRate:  c.SensingCost.sample(rng),
			TransferRate: c.TransferCost.sample(rng),
			UploadRate:   c.UploadCost.sample(rng),
			UploadLimit:  c.UploadLimit.sample(rng),
		}
		start := int(c.StartTime.sample(rng))
		g.phones[i] = model.Phone{ID: i, StartTime: start, Speed: speed, Costs: costs}
		states[i] = model.PhoneState{Location: entry, Heading: c.Map.entryHeading(entry)}
	}
	return states
}

// contacts records the adjacency of step t. Inactive phones meet nobody.
func (g *Generator) contacts(s *model.ScenarioSlice, t int, states []model.PhoneState) {
	comm := g.cfg.CommRange * g.cfg.CommRange
	sensing := g.cfg.SensingRange * g.cfg.SensingRange
	for i, si := range states {
		if !si.Active {
			continue
		}
		for j, sj := range states {
			if i != j && sj.Active && si.Location.DistanceSquare(sj.Location) <= comm {
				s.Set(t, i, j, g.cfg.DataPerSecond)
			}
		}
		for j, p := range g.cfg.Map.Targets {
			if si.Location.DistanceSquare(p) <= sensing {
				s.Set(t, i, s.TargetColumn(j), 1)
			}
		}
	}
}

func forward(p model.Point, h model.Heading, d float64) model.Point {
	switch h {
	case model.HeadingLeft:
		p.X -= d
	case model.HeadingRight:
		p.X += d
	case model.HeadingUp:
		p.Y += d
	default:
		p.Y -= d
	}
	return p
}

func crosses(from, to, at float64) bool {
	return (from < at && to >= at) || (from > at && to <= at)
}

// move advances an active phone by speed, consulting decide when it passes
// an intersection. Phones leaving the map become inactive.
func (g *Generator) move(st model.PhoneState, speed float64, decide func() turn) model.PhoneState {
	if !st.Active {
		return st
	}
	dest := forward(st.Location, st.Heading, speed)
	passed := false
	for _, pt := range g.cfg.Map.Intersections {
		var gap float64
		switch {
		case st.Location.X == pt.X:
			if !crosses(st.Location.Y, dest.Y, pt.Y) {
				continue
			}
			gap = math.Abs(pt.Y - st.Location.Y)
		case st.Location.Y == pt.Y:
			if !crosses(st.Location.X, dest.X, pt.X) {
				continue
			}
			gap = math.Abs(pt.X - st.Location.X)
		default:
			continue
		}
		passed = true
		switch decide() {
		case turnStraight:
			st.Location = dest
		case turnLeft:
			st.Location = forward(st.Location, st.Heading, gap)
			st.Heading = st.Heading.TurnLeft()
			st.Location = forward(st.Location, st.Heading, speed-gap)
		case turnRight:
			st.Location = forward(st.Location, st.Heading, gap)
			st.Heading = st.Heading.TurnRight()
			st.Location = forward(st.Location, st.Heading, speed-gap)
		}
		break
	}
	if !passed {
		st.Location = dest
	}
	if g.cfg.Map.outOfBounds(st.Location) {
		st.Active = false
	}
	return st
}

func (g *Generator) Horizon() int          { return g.cfg.Horizon }
func (g *Generator) Phones() []model.Phone { return g.phones }
func (g *Generator) TargetCount() int      { return len(g.cfg.Map.Targets) }

// Window predicts contacts from the given states. Phones inactive in
// states stay inactive and every phone goes straight at intersections.
func (g *Generator) Window(states []model.PhoneState, start, length int) (*model.ScenarioSlice, error) {
	if err := checkRange(g.cfg.Horizon, start, length); err != nil {
		return nil, err
	}
	if len(states) != len(g.phones) {
		return nil, fmt.Errorf("expected %d phone states, got %d", len(g.phones), len(states))
	}
	w := model.NewScenarioSlice(start, length, len(g.phones), g.TargetCount(), model.Profiles(g.phones))
	cur := append([]model.PhoneState(nil), states...)
	straight := func() turn { return turnStraight }
	for t := start; t < start+length; t++ {
		g.contacts(w, t, cur)
		for i := range cur {
			cur[i] = g.move(cur[i], g.phones[i].Speed, straight)
		}
	}
	return w, nil
}

func (g *Generator) Truth(start, length int) (*model.ScenarioSlice, error) {
	if err := checkRange(g.cfg.Horizon, start, length); err != nil {
		return nil, err
	}
	return sub(g.truth, start, length), nil
}

// StateAt returns the simulated state of phone i at step t. Steps past the
// horizon report the last step.
func (g *Generator) StateAt(t, i int) model.PhoneState {
	if t >= len(g.history) {
		t = len(g.history) - 1
	}
	if t < 0 {
		t = 0
	}
	return g.history[t][i]
}
