package metrics

import (
	"github.com/kilianp07/crowdsense/core/factory"
	"github.com/kilianp07/crowdsense/core/logger"
)

var sinkRegistry = factory.NewRegistry[RunSink]()

// RegisterRunSink adds a sink factory identified by name.
func RegisterRunSink(name string, f factory.Factory[RunSink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkTypes lists the registered sink names.
func SinkTypes() []string { return sinkRegistry.Types() }

// NewRunSink creates a RunSink from the provided configuration. Every sink
// is handed log.
func NewRunSink(cfgs []factory.ModuleConfig, log logger.Logger) (RunSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return sinkRegistry.Create(cfgs[0], log)
	}
	sinks := make([]RunSink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c, log)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}
