// Package plot renders the run's visual outputs: a per-condition PNG
// scatter of kept versus dropped tracks, and an HTML dashboard of the
// frequency sweep.
package plot

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/particle-data/mobility.report/internal/analysis"
)

// ConditionScatter renders one condition's tracks on the straight-line
// speed axis, kept in blue and dropped in red, with the applied speed
// threshold drawn as a horizontal line. threshold 0 (control) draws no
// line.
func ConditionScatter(res analysis.ConditionResult, threshold float64, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Condition %s Hz: kept %d, lost %d", res.Label, len(res.Kept), len(res.Drops))
	p.X.Label.Text = "Track Original Index"
	p.Y.Label.Text = "Mean Straight Line Speed"

	kept := make(plotter.XYs, 0, len(res.Kept))
	maxID := 0
	for _, k := range res.Kept {
		kept = append(kept, plotter.XY{X: float64(k.RowID), Y: k.Speed})
		if k.RowID > maxID {
			maxID = k.RowID
		}
	}
	dropped := make(plotter.XYs, 0, len(res.Drops))
	for _, d := range res.Drops {
		dropped = append(dropped, plotter.XY{X: float64(d.RowID), Y: d.Speed})
		if d.RowID > maxID {
			maxID = d.RowID
		}
	}

	if len(kept) > 0 {
		sc, err := plotter.NewScatter(kept)
		if err != nil {
			return fmt.Errorf("kept scatter: %w", err)
		}
		sc.GlyphStyle.Color = color.RGBA{B: 255, A: 255}
		p.Add(sc)
		p.Legend.Add("Kept", sc)
	}
	if len(dropped) > 0 {
		sc, err := plotter.NewScatter(dropped)
		if err != nil {
			return fmt.Errorf("dropped scatter: %w", err)
		}
		sc.GlyphStyle.Color = color.RGBA{R: 255, A: 255}
		p.Add(sc)
		p.Legend.Add("Lost", sc)
	}

	if threshold != 0 {
		line, err := plotter.NewLine(plotter.XYs{
			{X: 0, Y: threshold},
			{X: float64(maxID + 1), Y: threshold},
		})
		if err != nil {
			return fmt.Errorf("threshold line: %w", err)
		}
		line.Color = color.Black
		p.Add(line)
		p.Legend.Add("Speed threshold", line)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
