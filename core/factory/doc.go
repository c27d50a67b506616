// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[solver.Solver]()
//	reg.Register("lp-balanced", func(conf map[string]any, log logger.Logger) (solver.Solver, error) {
//	    var c struct{ TieBreak float64 `json:"tie_break"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return solver.NewBalancedLPSolver(c.TieBreak, log), nil
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "lp-balanced", Conf: map[string]any{"tie_break": 0.01}}, log)
package factory
