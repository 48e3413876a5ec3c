// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package evaluate

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/hhsurvey/gainimpute/pkg/scenario"
	"github.com/hhsurvey/gainimpute/pkg/schema"
	"github.com/hhsurvey/gainimpute/pkg/support/fsutil"
	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

// MetricsColumns of the metrics CSV.
var MetricsColumns = []string{
	"impute_method", "cohort", "missing_mechanism", "missing_ratio",
	"mean_continuous_rmse", "var_continuous_rmse", "mean_categorical_accuracy", "var_categorical_accuracy",
}

// MetricsRow aggregates the scores of the samples of one (method, cohort, mechanism, ratio).
type MetricsRow struct {
	Method    string
	Cohort    string
	Mechanism scenario.Mechanism
	Ratio     int

	MeanRMSE, VarRMSE         float64
	MeanAccuracy, VarAccuracy float64

	// Samples is the number of samples successfully scored.
	Samples int
}

// meanVariance returns the mean and population variance of the non-NaN values, or NaNs if there are none.
func meanVariance(values []float64) (mean, variance float64) {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN(), math.NaN()
	}
	return stat.PopMeanVariance(finite, nil)
}

// Aggregate the scores of several samples into a MetricsRow (without its key fields).
func Aggregate(scores []Score) MetricsRow {
	rmse := make([]float64, len(scores))
	acc := make([]float64, len(scores))
	for ii, s := range scores {
		rmse[ii], acc[ii] = s.ContinuousRMSE, s.CategoricalAccuracy
	}
	row := MetricsRow{Samples: len(scores)}
	row.MeanRMSE, row.VarRMSE = meanVariance(rmse)
	row.MeanAccuracy, row.VarAccuracy = meanVariance(acc)
	return row
}

// Grid lists the scenarios to evaluate.
type Grid struct {
	Cohorts    []string
	Mechanisms []scenario.Mechanism
	Ratios     []int
	NumSamples int
}

// ComputeMetrics scores the imputations under methodDir for every scenario of the grid. Scenarios
// that fail to load or score are logged and left out of their row's aggregate.
func ComputeMetrics(loader *scenario.Loader, method, methodDir string, grid Grid) []MetricsRow {
	var rows []MetricsRow
	for _, cohort := range grid.Cohorts {
		for _, mech := range grid.Mechanisms {
			for _, ratio := range grid.Ratios {
				var scores []Score
				for index := range grid.NumSamples {
					key := scenario.Key{Cohort: cohort, Mechanism: mech, Ratio: ratio, Index: index}
					s, err := scoreFile(loader, methodDir, key)
					if err != nil {
						klog.Warningf("%s: scenario %s skipped (%s): %+v", method, key, imputeerr.KindOf(err), err)
						continue
					}
					scores = append(scores, s)
				}
				row := Aggregate(scores)
				row.Method, row.Cohort, row.Mechanism, row.Ratio = method, cohort, mech, ratio
				rows = append(rows, row)
			}
		}
	}
	return rows
}

func scoreFile(loader *scenario.Loader, methodDir string, key scenario.Key) (Score, error) {
	inputs, err := loader.Load(key, false)
	if err != nil {
		return Score{}, err
	}
	imputed, err := schema.ReadTable(loader.Paths.MethodOutput(methodDir, key))
	if err != nil {
		return Score{}, err
	}
	return ScoreTables(inputs.Full, inputs.Mask, imputed)
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// MetricsDataFrame returns the rows as a gota DataFrame with MetricsColumns.
func MetricsDataFrame(rows []MetricsRow) dataframe.DataFrame {
	cols := make([][]string, len(MetricsColumns))
	for _, r := range rows {
		values := []string{r.Method, r.Cohort, r.Mechanism.String(), strconv.Itoa(r.Ratio),
			formatMetric(r.MeanRMSE), formatMetric(r.VarRMSE), formatMetric(r.MeanAccuracy), formatMetric(r.VarAccuracy)}
		for ii, v := range values {
			cols[ii] = append(cols[ii], v)
		}
	}
	allSeries := make([]series.Series, len(MetricsColumns))
	for ii, name := range MetricsColumns {
		t := series.Float
		if ii < 3 {
			t = series.String
		} else if ii == 3 {
			t = series.Int
		}
		allSeries[ii] = series.New(cols[ii], t, name)
	}
	return dataframe.New(allSeries...)
}

// WriteMetrics writes the rows as CSV to path.
func WriteMetrics(path string, rows []MetricsRow) error {
	df := MetricsDataFrame(rows)
	if df.Err != nil {
		return imputeerr.Wrap(imputeerr.IOError, df.Err, "building metrics table")
	}
	var buf bytes.Buffer
	if err := df.WriteCSV(&buf); err != nil {
		return imputeerr.Wrap(imputeerr.IOError, err, "serializing metrics")
	}
	return imputeerr.Wrap(imputeerr.IOError, fsutil.WriteFileAtomic(path, buf.Bytes()), "writing metrics")
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)
)

// NewReportTable returns a bordered table with alternating row colors. If withHeader is set the
// first row is rendered as a header.
func NewReportTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col < 4 {
				return s.Align(lipgloss.Left)
			}
			return s.Align(lipgloss.Right)
		})
}

// RenderMetrics renders the rows as a terminal table.
func RenderMetrics(rows []MetricsRow) string {
	table := NewReportTable(true)
	table.Row("method", "cohort", "mechanism", "ratio", "rmse (mean)", "rmse (var)", "accuracy (mean)", "accuracy (var)", "samples")
	for _, r := range rows {
		table.Row(r.Method, r.Cohort, r.Mechanism.String(), fmt.Sprintf("%d%%", r.Ratio),
			fmt.Sprintf("%.4f", r.MeanRMSE), fmt.Sprintf("%.2g", r.VarRMSE),
			fmt.Sprintf("%.4f", r.MeanAccuracy), fmt.Sprintf("%.2g", r.VarAccuracy),
			strconv.Itoa(r.Samples))
	}
	return table.Render()
}
