package solver

import (
	"github.com/kilianp07/crowdsense/core/factory"
	"github.com/kilianp07/crowdsense/core/logger"
)

var registry = factory.NewRegistry[Solver]()

// Register adds a solver factory identified by name.
func Register(name string, f factory.Factory[Solver]) error {
	return registry.Register(name, f)
}

// New creates a Solver from the provided configuration. An empty type selects
// the min cost flow solver. log is handed to the solver.
func New(cfg factory.ModuleConfig, log logger.Logger) (Solver, error) {
	if cfg.Type == "" {
		cfg.Type = "mcf"
	}
	return registry.Create(cfg, log)
}

// Types lists the registered solver names.
func Types() []string { return registry.Types() }

func init() {
	_ = Register("mcf", func(_ map[string]any, log logger.Logger) (Solver, error) {
		return NewMinCostFlow(log), nil
	})
	_ = Register("lp", func(_ map[string]any, log logger.Logger) (Solver, error) {
		return NewLPSolver(log), nil
	})
	_ = Register("lp-balanced", func(conf map[string]any, log logger.Logger) (Solver, error) {
		var c struct {
			TieBreak float64 `json:"tie_break"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewBalancedLPSolver(c.TieBreak, log), nil
	})
}
