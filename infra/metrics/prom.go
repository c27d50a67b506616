package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/crowdsense/core/metrics"
	"github.com/kilianp07/crowdsense/core/model"
)

// PromSink records scheduling progress in Prometheus metrics.
type PromSink struct {
	windows    *prometheus.CounterVec
	solveTime  *prometheus.HistogramVec
	mismatches *prometheus.CounterVec
	backstops  *prometheus.CounterVec
	runs       *prometheus.CounterVec
	cost       *prometheus.GaugeVec
	maxCost    *prometheus.GaugeVec
	delivered  *prometheus.GaugeVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.windows, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdsense_windows_total",
		Help: "Total number of scheduling windows by solve status",
	}, []string{"algorithm", "status"})); err != nil {
		return nil, err
	}
	if s.solveTime, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crowdsense_window_solve_seconds",
		Help:    "Time spent building and solving a window",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"algorithm"})); err != nil {
		return nil, err
	}
	if s.mismatches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdsense_validation_mismatches_total",
		Help: "Planned contact actions dropped because the contact did not happen",
	}, []string{"algorithm"})); err != nil {
		return nil, err
	}
	if s.backstops, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdsense_backstop_sensing_total",
		Help: "Sensing actions forced outside the window plan",
	}, []string{"algorithm"})); err != nil {
		return nil, err
	}
	if s.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdsense_runs_total",
		Help: "Completed runs by outcome",
	}, []string{"algorithm", "outcome"})); err != nil {
		return nil, err
	}
	if s.cost, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crowdsense_run_cost",
		Help: "Cost of the last run by category",
	}, []string{"algorithm", "category"})); err != nil {
		return nil, err
	}
	if s.maxCost, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crowdsense_run_max_phone_cost",
		Help: "Highest per-phone cost of the last run",
	}, []string{"algorithm"})); err != nil {
		return nil, err
	}
	if s.delivered, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crowdsense_run_delivered_targets",
		Help: "Targets delivered by the last run",
	}, []string{"algorithm"})); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordWindow counts the window and observes its solve time.
func (s *PromSink) RecordWindow(rep model.WindowReport) error {
	s.windows.WithLabelValues(rep.Algorithm, rep.Status).Inc()
	s.solveTime.WithLabelValues(rep.Algorithm).Observe(rep.SolveTime.Seconds())
	s.mismatches.WithLabelValues(rep.Algorithm).Add(float64(rep.Mismatches))
	s.backstops.WithLabelValues(rep.Algorithm).Add(float64(rep.Backstops))
	return nil
}

// RecordRun counts the run and sets the cost gauges.
func (s *PromSink) RecordRun(res *model.RunResult) error {
	if res == nil {
		return nil
	}
	s.runs.WithLabelValues(res.Algorithm, res.Outcome.String()).Inc()
	totals := res.CategoryTotals()
	s.cost.WithLabelValues(res.Algorithm, "sensing").Set(totals.Sensing)
	s.cost.WithLabelValues(res.Algorithm, "communication").Set(totals.Communication)
	s.cost.WithLabelValues(res.Algorithm, "upload").Set(totals.Upload)
	s.cost.WithLabelValues(res.Algorithm, "total").Set(res.TotalCost)
	s.maxCost.WithLabelValues(res.Algorithm).Set(res.MaxCost)
	s.delivered.WithLabelValues(res.Algorithm).Set(float64(res.DeliveredCount()))
	return nil
}

var _ coremetrics.RunSink = (*PromSink)(nil)
