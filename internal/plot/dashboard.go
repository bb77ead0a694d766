package plot

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/particle-data/mobility.report/internal/analysis"
	"github.com/particle-data/mobility.report/internal/track"
)

// WriteDashboard renders the run's sweep overview as a standalone HTML
// page: mean straight-line speed over applied frequency with one
// standard deviation either side, the kept/lost track scatter, and the
// initial versus filtered track counts.
func WriteDashboard(results []analysis.ConditionResult, path string) error {
	page := components.NewPage()
	page.AddCharts(
		speedLineChart(results),
		trackScatterChart(results),
		trackCountChart(results),
	)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return nil
}

// speedLineChart plots the filtered mean straight-line speed by applied
// frequency, bracketed by plus and minus one standard deviation.
func speedLineChart(results []analysis.ConditionResult) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Mean Straight Line Speed by Applied Frequency",
			Subtitle: "post-filter mean, plus or minus one standard deviation",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Applied Frequency (Hz)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Speed (pixels/frame)"}),
	)

	var labels []string
	var mean, upper, lower []opts.LineData
	for _, res := range results {
		if !res.Summary.Valid {
			continue
		}
		m := res.Summary.Means[track.ColStraightLineSpeed]
		s := res.Summary.Stds[track.ColStraightLineSpeed]
		labels = append(labels, res.Label)
		mean = append(mean, opts.LineData{Value: m})
		upper = append(upper, opts.LineData{Value: m + s})
		lower = append(lower, opts.LineData{Value: m - s})
	}

	line.SetXAxis(labels).
		AddSeries("Mean", mean).
		AddSeries("Mean + STD", upper).
		AddSeries("Mean - STD", lower)
	return line
}

// trackScatterChart shows every track across the sweep, kept in one
// series and lost in another, on the straight-line speed axis.
func trackScatterChart(results []analysis.ConditionResult) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Straight Line Speed by Applied Frequency"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "Applied Frequency (Hz)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Speed (pixels/frame)"}),
	)

	var labels []string
	var kept, lost []opts.ScatterData
	for _, res := range results {
		labels = append(labels, res.Label)
		for _, k := range res.Kept {
			kept = append(kept, opts.ScatterData{Value: []interface{}{res.Label, k.Speed}})
		}
		for _, d := range res.Drops {
			lost = append(lost, opts.ScatterData{Value: []interface{}{res.Label, d.Speed}})
		}
	}

	scatter.SetXAxis(labels).
		AddSeries("Kept", kept).
		AddSeries("Lost", lost)
	return scatter
}

// trackCountChart compares initial and filtered track counts.
func trackCountChart(results []analysis.ConditionResult) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Initial vs. Filtered Track Counts"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Applied Frequency (Hz)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Tracks"}),
	)

	var labels []string
	var initial, filtered []opts.BarData
	for _, res := range results {
		if !res.Summary.Valid {
			continue
		}
		labels = append(labels, res.Label)
		initial = append(initial, opts.BarData{Value: res.Summary.InitialCount})
		filtered = append(filtered, opts.BarData{Value: res.Summary.FinalCount})
	}

	bar.SetXAxis(labels).
		AddSeries("Initial", initial).
		AddSeries("Filtered", filtered)
	return bar
}
