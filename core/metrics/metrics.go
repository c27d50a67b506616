package metrics

import "github.com/kilianp07/crowdsense/core/model"

// RunSink records scheduling progress for observability purposes.
type RunSink interface {
	RecordWindow(rep model.WindowReport) error
	RecordRun(res *model.RunResult) error
}

// Closer is implemented by sinks holding connections.
type Closer interface {
	Close() error
}

// NopSink implements RunSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordWindow(model.WindowReport) error { return nil }
func (NopSink) RecordRun(*model.RunResult) error      { return nil }

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []RunSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...RunSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordWindow forwards the report to every sink and returns the first error.
// Later sinks still receive the report.
func (m *MultiSink) RecordWindow(rep model.WindowReport) error {
	var first error
	for _, s := range m.Sinks {
		if err := s.RecordWindow(rep); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RecordRun forwards the result to every sink and returns the first error.
func (m *MultiSink) RecordRun(res *model.RunResult) error {
	var first error
	for _, s := range m.Sinks {
		if err := s.RecordRun(res); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink implementing Closer.
func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.Sinks {
		if c, ok := s.(Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
