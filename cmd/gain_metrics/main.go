// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

// gain_metrics scores the imputations of one or more methods against the ground truth, and writes
// the mean and variance over the samples of each scenario as CSV.
//
// Each method's imputations are read from the directory "data_{method}" under the base
// directory, e.g. data_gain for GAIN.
package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/hhsurvey/gainimpute/pkg/evaluate"
	"github.com/hhsurvey/gainimpute/pkg/scenario"
	"github.com/hhsurvey/gainimpute/pkg/support/fsutil"
	"github.com/hhsurvey/gainimpute/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

func parseString(s string) (string, error) { return s, nil }

var (
	flagDataDir = flag.String("data", "~/CMIE_Project/data_stored",
		"Base directory holding Completed_data/, data_miss_mask/ and the imputation directories.")
	flagOutput = flag.String("output", "",
		"Metrics CSV. If empty it is written next to the base directory as imputation_metrics_results.csv.")
	flagNumSamples = flag.Int("num_samples", 5, "Number of masks per (mechanism, ratio).")
	flagQuiet      = flag.Bool("quiet", false, "Don't print the metrics table.")

	flagMethods    = xslices.Flag("methods", []string{"gain"}, "Comma-separated imputation methods to score.", parseString)
	flagCohorts    = xslices.Flag("cohorts", []string{"C19"}, "Comma-separated cohorts to score.", parseString)
	flagMechanisms = xslices.Flag("mechanisms", scenario.Mechanisms,
		"Comma-separated missing mechanisms: MCAR, MAR or MNAR.", scenario.ParseMechanism)
	flagRatios = xslices.Flag("ratios", []int{10, 20, 30, 40, 50}, "Comma-separated missing ratios (in percent).", strconv.Atoi)
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	base := must.M1(fsutil.ReplaceTildeInDir(*flagDataDir))
	output := must.M1(fsutil.ReplaceTildeInDir(*flagOutput))
	if output == "" {
		output = filepath.Join(filepath.Dir(filepath.Clean(base)), "imputation_metrics_results.csv")
	}
	loader := scenario.NewLoader(must.M1(scenario.NewPaths(base)))
	grid := evaluate.Grid{
		Cohorts:    *flagCohorts,
		Mechanisms: *flagMechanisms,
		Ratios:     *flagRatios,
		NumSamples: *flagNumSamples,
	}

	var rows []evaluate.MetricsRow
	for _, method := range *flagMethods {
		klog.V(1).Infof("Scoring %s...", method)
		rows = append(rows, evaluate.ComputeMetrics(loader, method, "data_"+method, grid)...)
	}
	must.M(evaluate.WriteMetrics(output, rows))
	klog.Infof("Metrics written to %s", output)
	if !*flagQuiet {
		fmt.Println(evaluate.RenderMetrics(rows))
	}
	klog.Flush()
}
