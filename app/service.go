package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/crowdsense/config"
	"github.com/kilianp07/crowdsense/core/greedy"
	coremetrics "github.com/kilianp07/crowdsense/core/metrics"
	coremon "github.com/kilianp07/crowdsense/core/monitoring"
	"github.com/kilianp07/crowdsense/core/model"
	coremqtt "github.com/kilianp07/crowdsense/core/mqtt"
	"github.com/kilianp07/crowdsense/core/runlog"
	"github.com/kilianp07/crowdsense/core/scenario"
	"github.com/kilianp07/crowdsense/core/scheduler"
	"github.com/kilianp07/crowdsense/core/solver"
	"github.com/kilianp07/crowdsense/infra/logger"
	"github.com/kilianp07/crowdsense/infra/metrics"
	"github.com/kilianp07/crowdsense/infra/monitoring"
	"github.com/kilianp07/crowdsense/infra/mqtt"
)

// Service wires a scenario, the schedulers and their report sinks from the
// configuration.
type Service struct {
	cfg      *config.Config
	provider scenario.Provider
	sink     coremetrics.RunSink
	store    runlog.Store
	control  coremqtt.Client
	log      logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	provider, err := scenario.New(cfg.Scenario, logger.New("scenario"))
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	var sinks []coremetrics.RunSink
	if len(cfg.Metrics.Sinks) > 0 {
		sink, err := coremetrics.NewRunSink(cfg.Metrics.Sinks, logger.New("metrics"))
		if err != nil {
			return nil, fmt.Errorf("metrics sinks: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.PrometheusAddr != "" && !hasSink(cfg, "prometheus") {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	svc := &Service{cfg: cfg, provider: provider, log: logg}
	if cfg.MQTT.Broker != "" {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.control = client
		sinks = append(sinks, client)
	}
	switch len(sinks) {
	case 0:
		svc.sink = coremetrics.NopSink{}
	case 1:
		svc.sink = sinks[0]
	default:
		svc.sink = coremetrics.NewMultiSink(sinks...)
	}

	if cfg.RunLog.Enabled() {
		store, err := runlog.Open(cfg.RunLog.Options())
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("run log: %w", err)
		}
		svc.store = store
	}
	return svc, nil
}

func hasSink(cfg *config.Config, kind string) bool {
	for _, s := range cfg.Metrics.Sinks {
		if s.Type == kind {
			return true
		}
	}
	return false
}

// SetControl replaces the client whose cancel requests abort runs.
func (s *Service) SetControl(c coremqtt.Client) { s.control = c }

// Provider returns the configured scenario.
func (s *Service) Provider() scenario.Provider { return s.provider }

// Store returns the run log, or nil when persistence is disabled.
func (s *Service) Store() runlog.Store { return s.store }

// Start serves Prometheus metrics in the background when an address is
// configured. The server stops with ctx.
func (s *Service) Start(ctx context.Context) {
	if s.cfg.Metrics.PrometheusAddr == "" {
		return
	}
	go func() {
		defer coremon.Recover()
		if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr); err != nil {
			s.log.Errorf("prom server: %v", err)
		}
	}()
}

// Run executes the configured algorithm once.
func (s *Service) Run(ctx context.Context) (*model.RunResult, error) {
	return s.RunAlgorithm(ctx, s.cfg.Scheduler.Algorithm)
}

// Compare runs every named algorithm on the same scenario, in order.
func (s *Service) Compare(ctx context.Context, algorithms []string) ([]*model.RunResult, error) {
	results := make([]*model.RunResult, 0, len(algorithms))
	for _, name := range algorithms {
		res, err := s.RunAlgorithm(ctx, name)
		if err != nil {
			return results, fmt.Errorf("%s: %w", name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

type runner interface {
	Run(ctx context.Context) (*model.RunResult, error)
}

// RunAlgorithm executes one run of the named algorithm. A cancel request on
// the control client aborts it like a canceled context.
func (s *Service) RunAlgorithm(ctx context.Context, name string) (*model.RunResult, error) {
	r, err := s.build(name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.control != nil {
		ch, release := s.control.Watch()
		defer release()
		go func() {
			select {
			case <-ch:
				s.log.Warnf("cancel requested over mqtt, stopping %s run", name)
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	began := time.Now()
	res, err := r.Run(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			coremon.CaptureFatal(err, "scheduler", name)
		}
		return nil, err
	}
	s.log.Infof("%s run %s done in %s", name, res.RunID, time.Since(began).Round(time.Millisecond))
	return res, nil
}

func (s *Service) build(name string) (runner, error) {
	switch name {
	case config.AlgorithmGreedy:
		g, err := greedy.New(s.provider, logger.New("greedy"))
		if err != nil {
			return nil, err
		}
		g.SetSink(s.sink)
		g.SetStore(s.store)
		return g, nil
	case config.AlgorithmRolling, config.AlgorithmOracle:
		sv, err := solver.New(s.cfg.Solver, logger.New("solver"))
		if err != nil {
			return nil, fmt.Errorf("%w: solver: %v", scheduler.ErrConfiguration, err)
		}
		provider, policy := s.provider, s.cfg.Scheduler.Policy
		if name == config.AlgorithmOracle {
			provider = scenario.NewOracle(s.provider)
			policy.WindowLength = s.provider.Horizon()
		}
		sch, err := scheduler.New(provider, sv, policy, logger.New("scheduler"))
		if err != nil {
			return nil, err
		}
		if name == config.AlgorithmOracle {
			sch.SetAlgorithm(config.AlgorithmOracle)
		}
		sch.SetSink(s.sink)
		sch.SetStore(s.store)
		return sch, nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", scheduler.ErrConfiguration, name)
	}
}

// Close releases sinks and the run log and flushes pending error reports.
func (s *Service) Close() error {
	var errs []error
	if c, ok := s.sink.(coremetrics.Closer); ok {
		errs = append(errs, c.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
