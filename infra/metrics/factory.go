package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/crowdsense/core/factory"
	"github.com/kilianp07/crowdsense/core/logger"
	coremetrics "github.com/kilianp07/crowdsense/core/metrics"
)

// init registers built-in run sinks.
func init() {
	_ = coremetrics.RegisterRunSink("nop", func(map[string]any, logger.Logger) (coremetrics.RunSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterRunSink("prometheus", func(map[string]any, logger.Logger) (coremetrics.RunSink, error) {
		// The listen address belongs to the HTTP server, see StartPromServer.
		sink, err := NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		return sink, nil
	})

	_ = coremetrics.RegisterRunSink("influx", func(conf map[string]any, _ logger.Logger) (coremetrics.RunSink, error) {
		var c struct {
			URL    string `json:"url"`
			Token  string `json:"token"`
			Org    string `json:"org"`
			Bucket string `json:"bucket"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})
}
