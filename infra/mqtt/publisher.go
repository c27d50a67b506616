package mqtt

import (
	"fmt"
	"sync"

	"github.com/kilianp07/crowdsense/core/factory"
	"github.com/kilianp07/crowdsense/core/logger"
	coremetrics "github.com/kilianp07/crowdsense/core/metrics"
	"github.com/kilianp07/crowdsense/core/model"
	coremqtt "github.com/kilianp07/crowdsense/core/mqtt"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

var (
	_ Client              = (*PahoClient)(nil)
	_ Client              = (*MockPublisher)(nil)
	_ coremetrics.RunSink = (*PahoClient)(nil)
)

// MockPublisher records published reports in memory. It is used in tests
// and dry runs.
type MockPublisher struct {
	Windows []model.WindowReport
	Results []*model.RunResult
	// Fail makes every publish return ErrPublish.
	Fail bool

	mu       sync.Mutex
	watchers []chan struct{}
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishWindow records rep.
func (m *MockPublisher) PublishWindow(rep model.WindowReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("%w: window %d", coremqtt.ErrPublish, rep.Window)
	}
	m.Windows = append(m.Windows, rep)
	return nil
}

// PublishRun records a copy of res.
func (m *MockPublisher) PublishRun(res *model.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("%w: run result", coremqtt.ErrPublish)
	}
	if res != nil {
		cp := *res
		m.Results = append(m.Results, &cp)
	}
	return nil
}

// Watch registers for cancel requests sent with Cancel.
func (m *MockPublisher) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()
	return ch, func() {}
}

// Cancel simulates a cancel request on the control topic.
func (m *MockPublisher) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (m *MockPublisher) RecordWindow(rep model.WindowReport) error { return m.PublishWindow(rep) }
func (m *MockPublisher) RecordRun(res *model.RunResult) error      { return m.PublishRun(res) }

// init registers the MQTT report publisher as a run sink.
func init() {
	_ = coremetrics.RegisterRunSink("mqtt", func(conf map[string]any, _ logger.Logger) (coremetrics.RunSink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		cli, err := NewPahoClient(c)
		if err != nil {
			return nil, err
		}
		return cli, nil
	})
}
