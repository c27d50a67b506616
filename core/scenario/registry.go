package scenario

import (
	"fmt"

	"github.com/kilianp07/crowdsense/core/factory"
	"github.com/kilianp07/crowdsense/core/logger"
)

var registry = factory.NewRegistry[Provider]()

// Register adds a provider factory identified by name.
func Register(name string, f factory.Factory[Provider]) error {
	return registry.Register(name, f)
}

// New creates a Provider from configuration. An empty type selects the
// generator with its defaults.
func New(cfg factory.ModuleConfig, log logger.Logger) (Provider, error) {
	if cfg.Type == "" {
		cfg.Type = "generator"
	}
	return registry.Create(cfg, log)
}

func init() {
	_ = Register("generator", func(conf map[string]any, log logger.Logger) (Provider, error) {
		c := DefaultGeneratorConfig()
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		g, err := NewGenerator(c, log)
		if err != nil {
			return nil, err
		}
		return g, nil
	})
	_ = Register("static", func(conf map[string]any, _ logger.Logger) (Provider, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("static scenario requires a path")
		}
		st, err := LoadStatic(c.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	})
}
