package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/crowdsense/core/model"
)

func TestPromSink_RecordWindow(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	rep := model.WindowReport{Algorithm: "rolling", Status: "optimal", SolveTime: 20 * time.Millisecond, Mismatches: 2, Backstops: 1}
	for i := 0; i < 2; i++ {
		if err := sink.RecordWindow(rep); err != nil {
			t.Fatalf("record error: %v", err)
		}
	}

	expected := `
# HELP crowdsense_windows_total Total number of scheduling windows by solve status
# TYPE crowdsense_windows_total counter
crowdsense_windows_total{algorithm="rolling",status="optimal"} 2
`
	if err := testutil.CollectAndCompare(sink.windows, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if v := testutil.ToFloat64(sink.mismatches.WithLabelValues("rolling")); v != 4 {
		t.Errorf("expected 4 mismatches, got %v", v)
	}
	if v := testutil.ToFloat64(sink.backstops.WithLabelValues("rolling")); v != 2 {
		t.Errorf("expected 2 backstops, got %v", v)
	}
	if c := testutil.CollectAndCount(sink.solveTime); c == 0 {
		t.Errorf("solve time not recorded")
	}
}

func TestPromSink_RecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	res := &model.RunResult{
		Algorithm:  "greedy",
		Outcome:    model.OutcomeSuccess,
		PhoneCosts: []model.Cost{{Sensing: 1, Communication: 1}, {Communication: 1, Upload: 1}},
		TotalCost:  4,
		MaxCost:    2,
		Delivered:  []bool{true, false},
	}
	if err := sink.RecordRun(res); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if v := testutil.ToFloat64(sink.cost.WithLabelValues("greedy", "communication")); v != 2 {
		t.Errorf("expected communication cost 2, got %v", v)
	}
	if v := testutil.ToFloat64(sink.cost.WithLabelValues("greedy", "total")); v != 4 {
		t.Errorf("expected total 4, got %v", v)
	}
	if v := testutil.ToFloat64(sink.delivered.WithLabelValues("greedy")); v != 1 {
		t.Errorf("expected 1 delivered target, got %v", v)
	}
	if v := testutil.ToFloat64(sink.runs.WithLabelValues("greedy", "success")); v != 1 {
		t.Errorf("expected one run, got %v", v)
	}
}

// TestPromSink_Reregister ensures a second sink on the same registry reuses
// the collectors instead of failing.
func TestPromSink_Reregister(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("first sink: %v", err)
	}
	b, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("second sink: %v", err)
	}
	_ = a.RecordWindow(model.WindowReport{Algorithm: "rolling", Status: "infeasible"})
	_ = b.RecordWindow(model.WindowReport{Algorithm: "rolling", Status: "infeasible"})
	if v := testutil.ToFloat64(a.windows.WithLabelValues("rolling", "infeasible")); v != 2 {
		t.Errorf("expected shared counter at 2, got %v", v)
	}
}
