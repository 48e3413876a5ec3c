// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

// gain_impute selects the number of training epochs on the sample masks of each (mechanism, ratio),
// and then imputes every scenario of the grid with GAIN.
//
// Hyperparameters are set with -set, e.g.:
//
//	gain_impute -data=~/survey -ratios=10,30 -set="batch_size=128;gain_alpha=20;epochs=200"
package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/hhsurvey/gainimpute/pkg/gain"
	"github.com/hhsurvey/gainimpute/pkg/harness"
	"github.com/hhsurvey/gainimpute/pkg/scenario"
	"github.com/hhsurvey/gainimpute/pkg/support/fsutil"
	"github.com/hhsurvey/gainimpute/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	defaults = harness.DefaultOptions()

	flagDataDir = flag.String("data", "~/CMIE_Project/data_stored",
		"Base directory holding Completed_data/, data_miss_mask/ and data_miss_mask_sample/. Imputations are written under data_gain/.")
	flagCohort         = flag.String("cohort", defaults.Cohort, "Cohort to impute.")
	flagNumSampleTest  = flag.Int("num_sampletest", defaults.NumSampleTest, "Number of sample masks trained on per (mechanism, ratio) to select the number of epochs.")
	flagNumExperiments = flag.Int("num_experiments", defaults.NumExperiments, "Number of masks imputed per (mechanism, ratio).")
	flagEpochsSample   = flag.Int("epochs_sampletest", 0, "Number of epochs of each sample-test training. If 0, the \""+gain.ParamEpochs+"\" hyperparameter is used.")
	flagPolicy         = flag.String("policy", defaults.Policy.String(),
		"Sample-test series used to select the number of epochs: \"continuous_first\" (lowest continuous RMSE) or \"categorical_first\" (highest categorical accuracy).")
	flagTimingFile = flag.String("timing", "", "Timing log CSV. If empty it is written next to the base directory as "+scenario.DefaultTimingFile+".")
	flagPlotDir    = flag.String("plots", "", "If set, directory where to save the mean sample-test curves as PNG.")
	flagSkipEpochs = flag.Int("epochs", 0, "If > 0, skip the sample test and train every scenario for this number of epochs.")
	flagProgress   = flag.Bool("progress", true, "Display a progress bar for each training.")

	flagMechanisms = xslices.Flag("mechanisms", defaults.Mechanisms,
		"Comma-separated missing mechanisms to run: MCAR, MAR or MNAR.", scenario.ParseMechanism)
	flagRatios = xslices.Flag("ratios", defaults.Ratios, "Comma-separated missing ratios (in percent) to run.", strconv.Atoi)
)

func main() {
	ctx := gain.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	klog.V(1).Infof("Hyperparameters set:\n%s", commandline.SprintModifiedContextSettings(ctx, paramsSet))

	base := must.M1(fsutil.ReplaceTildeInDir(*flagDataDir))
	timingFile := must.M1(fsutil.ReplaceTildeInDir(*flagTimingFile))
	if timingFile == "" {
		timingFile = filepath.Join(filepath.Dir(filepath.Clean(base)), scenario.DefaultTimingFile)
	}
	plotDir := must.M1(fsutil.ReplaceTildeInDir(*flagPlotDir))

	cfg := must.M1(gain.ConfigFromContext(ctx))
	backend := must.M1(gain.NewBackend(context.GetParamOr(ctx, gain.ParamBackend, "go")))
	defer backend.Finalize()

	opts := defaults
	opts.Cohort = *flagCohort
	opts.Mechanisms = *flagMechanisms
	opts.Ratios = *flagRatios
	opts.NumSampleTest = *flagNumSampleTest
	opts.NumExperiments = *flagNumExperiments
	opts.EpochsSampleTest = cfg.Epochs
	if *flagEpochsSample > 0 {
		opts.EpochsSampleTest = *flagEpochsSample
	}
	opts.Policy = must.M1(harness.ParsePolicy(*flagPolicy))
	opts.SkipUnknown = context.GetParamOr(ctx, gain.ParamSkipUnknown, false)
	opts.PlotDir = plotDir
	opts.ShowProgress = *flagProgress

	paths := must.M1(scenario.NewPaths(base))
	runner := must.M1(harness.NewRunner(backend, cfg, scenario.NewLoader(paths), scenario.NewTimingLog(timingFile), opts))

	var table harness.EpochTable
	if *flagSkipEpochs > 0 {
		selected := make(map[harness.EpochKey]int)
		for _, mech := range opts.Mechanisms {
			for _, ratio := range opts.Ratios {
				selected[harness.EpochKey{Mechanism: mech, Ratio: ratio}] = *flagSkipEpochs
			}
		}
		table = harness.NewEpochTable(selected)
	} else {
		klog.Infof("Running sample tests on %s...", opts.Cohort)
		table, _ = runner.SampleTest()
	}
	klog.Infof("Running experiments on %s...", opts.Cohort)
	must.M(runner.RunExperiments(table))

	fmt.Println(runner.RenderSummary(table))
	if len(runner.Failures) > 0 {
		klog.Warningf("%d scenarios failed, see the log above for details", len(runner.Failures))
	}
	klog.Flush()
}
