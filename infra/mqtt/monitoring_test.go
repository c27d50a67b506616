package mqtt

import (
	"errors"
	"fmt"
	"testing"
	"time"

	coremon "github.com/kilianp07/crowdsense/core/monitoring"
	"github.com/kilianp07/crowdsense/core/model"
	coremqtt "github.com/kilianp07/crowdsense/core/mqtt"
)

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) Recover()            {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestPublishErrorCaptured(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail, fail}}
	withMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})

	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	err = cli.PublishRun(&model.RunResult{RunID: "r9"})
	if !errors.Is(err, coremqtt.ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
	if mon.err == nil {
		t.Fatalf("error not captured")
	}
	if mon.tags["run_id"] != "r9" || mon.tags["module"] != "mqtt" {
		t.Fatalf("tags not set: %v", mon.tags)
	}
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	ch, release := m.Watch()
	defer release()
	if err := m.RecordWindow(model.WindowReport{Window: 1}); err != nil {
		t.Fatalf("window: %v", err)
	}
	if err := m.RecordRun(&model.RunResult{RunID: "x"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(m.Windows) != 1 || len(m.Results) != 1 {
		t.Fatalf("reports not recorded")
	}
	m.Cancel()
	select {
	case <-ch:
	default:
		t.Fatal("cancel not delivered")
	}
	m.Fail = true
	if err := m.PublishWindow(model.WindowReport{}); !errors.Is(err, coremqtt.ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
}
