package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/crowdsense/core/factory"
	"github.com/kilianp07/crowdsense/core/metrics"
	"github.com/kilianp07/crowdsense/infra/mqtt"
)

// EnvPrefix marks environment variables overriding file values. Nested keys
// are separated by a double underscore: CS_SCHEDULER__POLICY__WINDOW_LENGTH.
const EnvPrefix = "CS_"

type Config struct {
	Scenario  factory.ModuleConfig `json:"scenario"`
	Scheduler SchedulerConfig      `json:"scheduler"`
	Solver    factory.ModuleConfig `json:"solver"`
	Metrics   metrics.Config       `json:"metrics"`
	RunLog    RunLogConfig         `json:"runlog"`
	Sentry    SentryConfig         `json:"sentry"`
	// MQTT publishing and remote cancel are enabled when a broker is set.
	MQTT mqtt.Config `json:"mqtt"`
}

// Load reads a YAML or JSON file, applies environment overrides, defaults
// and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every section defaulted. It runs the
// generator scenario with the rolling scheduler and no external sinks.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies sane defaults to every section.
func (c *Config) SetDefaults() {
	if c.Scenario.Type == "" {
		c.Scenario.Type = "generator"
	}
	if c.Solver.Type == "" {
		c.Solver.Type = "mcf"
	}
	c.Scheduler.SetDefaults()
	c.RunLog.SetDefaults()
	if c.MQTT.Broker != "" {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.RunLog.Validate(); err != nil {
		return fmt.Errorf("runlog: %w", err)
	}
	if err := c.Sentry.Validate(); err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	for i, s := range c.Metrics.Sinks {
		if s.Type == "" {
			return fmt.Errorf("metrics: sink %d has no type", i)
		}
	}
	return nil
}
