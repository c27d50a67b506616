// Package export writes run results for reporting: JSON, CSV tables and
// HTML charts.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/kilianp07/crowdsense/core/model"
)

// WriteJSON writes the results to w as an indented JSON array.
func WriteJSON(w io.Writer, results []*model.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func ff(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// WriteCSV writes one row per phone and run with the cost breakdown.
func WriteCSV(w io.Writer, results []*model.RunResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_id", "algorithm", "phone", "sensing", "communication", "upload", "total"}); err != nil {
		return err
	}
	for _, res := range results {
		for i, c := range res.PhoneCosts {
			rec := []string{res.RunID, res.Algorithm, strconv.Itoa(i), ff(c.Sensing), ff(c.Communication), ff(c.Upload), ff(c.Total())}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteActionsCSV writes the executed actions of res in time order.
func WriteActionsCSV(w io.Writer, res *model.RunResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "kind", "phone", "peer", "target", "volume", "cost"}); err != nil {
		return err
	}
	for _, a := range res.Actions {
		rec := []string{strconv.Itoa(a.Time), a.Kind.String(), strconv.Itoa(a.Phone), strconv.Itoa(a.Peer), strconv.Itoa(a.Target), ff(a.Volume), ff(a.Cost)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSV writes one row per run.
func WriteSummaryCSV(w io.Writer, results []*model.RunResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_id", "algorithm", "outcome", "optimal", "windows", "final_time", "delivered", "targets", "total_cost", "max_phone", "max_cost", "mismatches"}); err != nil {
		return err
	}
	for _, r := range results {
		rec := []string{
			r.RunID, r.Algorithm, r.Outcome.String(), strconv.FormatBool(r.Optimal),
			strconv.Itoa(r.Windows), strconv.Itoa(r.FinalTime),
			strconv.Itoa(r.DeliveredCount()), strconv.Itoa(len(r.Delivered)),
			ff(r.TotalCost), strconv.Itoa(r.MaxPhone), ff(r.MaxCost), strconv.Itoa(r.Mismatches),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
