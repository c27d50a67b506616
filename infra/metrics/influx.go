package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/crowdsense/core/metrics"
	"github.com/kilianp07/crowdsense/core/model"
	"github.com/kilianp07/crowdsense/infra/logger"
)

// InfluxSink writes window and run reports to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.RunSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordWindow writes one window_report point.
func (s *InfluxSink) RecordWindow(rep model.WindowReport) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("window_report").
		AddTag("run_id", rep.RunID).
		AddTag("algorithm", rep.Algorithm).
		AddTag("status", rep.Status).
		AddTag("relaxed", strconv.FormatBool(rep.Relaxed)).
		AddField("window", rep.Window).
		AddField("start", rep.Start).
		AddField("end", rep.End).
		AddField("solve_ms", round3(rep.SolveTime.Seconds()*1000)).
		AddField("committed", rep.Committed).
		AddField("mismatches", rep.Mismatches).
		AddField("backstops", rep.Backstops).
		AddField("window_cost", round3(rep.WindowCost)).
		AddField("total_cost", round3(rep.TotalCost)).
		AddField("delivered", rep.Delivered).
		SetTime(rep.RecordedAt)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRun writes a run_result point followed by one phone_cost point per
// phone.
func (s *InfluxSink) RecordRun(res *model.RunResult) error {
	if res == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	totals := res.CategoryTotals()
	points := []*write.Point{
		write.NewPointWithMeasurement("run_result").
			AddTag("run_id", res.RunID).
			AddTag("algorithm", res.Algorithm).
			AddTag("outcome", res.Outcome.String()).
			AddTag("optimal", strconv.FormatBool(res.Optimal)).
			AddField("windows", res.Windows).
			AddField("final_time", res.FinalTime).
			AddField("sensing_cost", round3(totals.Sensing)).
			AddField("communication_cost", round3(totals.Communication)).
			AddField("upload_cost", round3(totals.Upload)).
			AddField("total_cost", round3(res.TotalCost)).
			AddField("max_phone_cost", round3(res.MaxCost)).
			AddField("delivered", res.DeliveredCount()).
			AddField("mismatches", res.Mismatches).
			SetTime(res.FinishedAt),
	}
	for i, c := range res.PhoneCosts {
		points = append(points, write.NewPointWithMeasurement("phone_cost").
			AddTag("run_id", res.RunID).
			AddTag("algorithm", res.Algorithm).
			AddTag("phone", strconv.Itoa(i)).
			AddField("sensing", round3(c.Sensing)).
			AddField("communication", round3(c.Communication)).
			AddField("upload", round3(c.Upload)).
			SetTime(res.FinishedAt))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
