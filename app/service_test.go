package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/crowdsense/config"
	"github.com/kilianp07/crowdsense/core/factory"
	coremon "github.com/kilianp07/crowdsense/core/monitoring"
	"github.com/kilianp07/crowdsense/core/model"
	"github.com/kilianp07/crowdsense/core/runlog"
	"github.com/kilianp07/crowdsense/core/scheduler"
	"github.com/kilianp07/crowdsense/infra/mqtt"
)

const relay = `
horizon: 3
targets: 1
phones:
  - id: 0
    costs: {sensing_rate: 1, transfer_rate: 1, upload_rate: 1, upload_limit: 0}
  - id: 1
    costs: {sensing_rate: 1, transfer_rate: 1, upload_rate: 1, upload_limit: 1}
contacts:
  - {time: 0, phone: 0, target: 0, capacity: 1}
  - {time: 1, phone: 0, peer: 1, capacity: 1}
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(relay), 0o644))
	cfg := &config.Config{
		Scenario: factory.ModuleConfig{Type: "static", Conf: map[string]any{"path": path}},
		RunLog:   config.RunLogConfig{Backend: "memory"},
	}
	cfg.Scheduler.Policy.WindowLength = 1
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestCompare(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()
	pub := mqtt.NewMockPublisher()
	svc.SetControl(pub)

	results, err := svc.Compare(context.Background(), []string{"rolling", "greedy", "oracle"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, model.OutcomeSuccess, res.Outcome, res.Algorithm)
		assert.InDelta(t, 4.0, res.TotalCost, 1e-9, res.Algorithm)
	}
	assert.Equal(t, "oracle", results[2].Algorithm)
	assert.Equal(t, 1, results[2].Windows)

	runs, err := svc.Store().Query(context.Background(), runlog.Query{Kind: runlog.KindRun})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRunUnknownAlgorithm(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()
	_, err = svc.RunAlgorithm(context.Background(), "annealing")
	assert.True(t, errors.Is(err, scheduler.ErrConfiguration))
}

type recordMonitor struct{ errs []error }

func (r *recordMonitor) CaptureException(err error, _ map[string]string) { r.errs = append(r.errs, err) }
func (r *recordMonitor) Recover()                                        {}
func (r *recordMonitor) Flush(time.Duration)                             {}

func TestCanceledRunNotReported(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, mon.errs)
}

func TestNewErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scenario.Conf = map[string]any{"path": filepath.Join(t.TempDir(), "missing.yaml")}
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "carrier-pigeon"}}
	_, err = New(cfg)
	assert.Error(t, err)
}
