package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/crowdsense/core/model"
)

// CostChart builds a stacked bar chart of the per-phone cost breakdown.
func CostChart(res *model.RunResult) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s per-phone cost", res.Algorithm),
			Subtitle: fmt.Sprintf("run %s, total %.2f, max %.2f (phone %d)", res.RunID, res.TotalCost, res.MaxCost, res.MaxPhone),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "phone"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "cost"}),
	)
	phones := make([]string, len(res.PhoneCosts))
	sensing := make([]opts.BarData, len(res.PhoneCosts))
	comm := make([]opts.BarData, len(res.PhoneCosts))
	upload := make([]opts.BarData, len(res.PhoneCosts))
	for i, c := range res.PhoneCosts {
		phones[i] = strconv.Itoa(i)
		sensing[i] = opts.BarData{Value: c.Sensing}
		comm[i] = opts.BarData{Value: c.Communication}
		upload[i] = opts.BarData{Value: c.Upload}
	}
	bar.SetXAxis(phones).
		AddSeries("sensing", sensing).
		AddSeries("communication", comm).
		AddSeries("upload", upload).
		SetSeriesOptions(charts.WithBarChartOpts(opts.BarChart{Stack: "cost"}))
	return bar
}

// ComparisonChart builds a grouped bar chart of total and highest phone
// cost per run.
func ComparisonChart(results []*model.RunResult) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Algorithm comparison"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "cost"}),
	)
	names := make([]string, len(results))
	total := make([]opts.BarData, len(results))
	peak := make([]opts.BarData, len(results))
	for i, r := range results {
		names[i] = r.Algorithm
		total[i] = opts.BarData{Value: r.TotalCost}
		peak[i] = opts.BarData{Value: r.MaxCost}
	}
	bar.SetXAxis(names).AddSeries("total", total).AddSeries("max phone", peak)
	return bar
}

// WriteHTML renders a page with the comparison chart, when more than one
// result is given, followed by one cost chart per result.
func WriteHTML(w io.Writer, results []*model.RunResult) error {
	page := components.NewPage()
	page.PageTitle = "crowdsense runs"
	if len(results) > 1 {
		page.AddCharts(ComparisonChart(results))
	}
	for _, r := range results {
		page.AddCharts(CostChart(r))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
