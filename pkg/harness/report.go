// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package harness

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/hhsurvey/gainimpute/pkg/evaluate"
	"github.com/hhsurvey/gainimpute/pkg/support/xslices"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Curves are the per-epoch scores of the sample-test runs of one (mechanism, ratio), one series
// per run.
type Curves struct {
	Continuous  [][]float64
	Categorical [][]float64
}

// RenderSummary renders the selected epochs and the failures of the runner as a terminal table.
func (r *Runner) RenderSummary(table EpochTable) string {
	t := evaluate.NewReportTable(true)
	t.Row("mechanism", "ratio", "epochs", "")
	for _, k := range table.Keys() {
		epochs, _ := table.Epochs(k.Mechanism, k.Ratio)
		t.Row(k.Mechanism.String(), fmt.Sprintf("%d%%", k.Ratio), humanize.Comma(int64(epochs)), "")
	}
	t.Row("scenarios imputed", "", "", humanize.Comma(int64(r.Completed)))
	t.Row("scenarios failed", "", "", humanize.Comma(int64(len(r.Failures))))
	byKind := make(map[string]int)
	for _, f := range r.Failures {
		byKind[f.Kind.String()]++
	}
	for _, kind := range xslices.SortedKeys(byKind) {
		t.Row("  "+kind, "", "", humanize.Comma(int64(byKind[kind])))
	}
	for _, f := range r.Failures {
		phase := "experiment"
		if f.Sample {
			phase = "sample test"
		}
		t.Row(f.Key.String(), phase, f.Kind.String(), humanize.Ordinal(f.Key.Index+1)+" mask")
	}
	return t.Render()
}

// finitePoints converts a series to plot points, dropping NaNs. Epochs are 1-based.
func finitePoints(series []float64) plotter.XYs {
	epochs := xslices.Iota(1.0, len(series))
	points := make(plotter.XYs, 0, len(series))
	for ii, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		points = append(points, plotter.XY{X: epochs[ii], Y: v})
	}
	return points
}

var curveColors = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
}

// PlotCurves saves the mean sample-test curves of a (mechanism, ratio) as a PNG under dir, with
// the selected epoch marked on each curve.
func PlotCurves(dir, cohort string, key EpochKey, continuous, categorical []float64, selected int) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s miss%d: selected epoch %d", cohort, key.Mechanism, key.Ratio, selected)
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "score"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	names := []string{"continuous RMSE (z-scored)", "categorical accuracy"}
	for ii, series := range [][]float64{continuous, categorical} {
		points := finitePoints(series)
		if len(points) == 0 {
			continue
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return errors.Wrapf(err, "plotting %s", names[ii])
		}
		line.Color = curveColors[ii]
		p.Add(line)
		p.Legend.Add(names[ii], line)

		if selected >= 1 && selected <= len(series) && !math.IsNaN(series[selected-1]) {
			marker, err := plotter.NewScatter(plotter.XYs{{X: float64(selected), Y: series[selected-1]}})
			if err != nil {
				return errors.Wrapf(err, "marking selected epoch of %s", names[ii])
			}
			marker.Color = curveColors[ii]
			marker.Radius = vg.Points(4)
			p.Add(marker)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating plot directory %q", dir)
	}
	name := fmt.Sprintf("%s_%s_miss%d.png", cohort, key.Mechanism, key.Ratio)
	if err := p.Save(8*vg.Inch, 4*vg.Inch, filepath.Join(dir, name)); err != nil {
		return errors.Wrapf(err, "saving plot %q", name)
	}
	return nil
}
