// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

// Package harness runs GAIN over a grid of missingness scenarios.
//
// It runs in two phases: SampleTest trains on the sample masks, scoring the imputation after
// every epoch to select how many epochs to train each (mechanism, ratio) for; RunExperiments
// then trains one session per scenario for the selected number of epochs and writes the
// imputed cells. A failing scenario is logged and recorded, and the grid moves on.
package harness

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/hhsurvey/gainimpute/pkg/evaluate"
	"github.com/hhsurvey/gainimpute/pkg/gain"
	"github.com/hhsurvey/gainimpute/pkg/scenario"
	"github.com/hhsurvey/gainimpute/pkg/schema"
	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"github.com/hhsurvey/gainimpute/pkg/support/xslices"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Options of a Runner.
type Options struct {
	Cohort     string
	Mechanisms []scenario.Mechanism
	Ratios     []int

	// NumSampleTest is the number of sample masks trained on for each (mechanism, ratio).
	NumSampleTest int

	// NumExperiments is the number of masks imputed for each (mechanism, ratio).
	NumExperiments int

	// EpochsSampleTest is the number of epochs of each sample-test training.
	EpochsSampleTest int

	Policy Policy

	// SkipUnknown drops columns without a known prefix instead of failing the scenario.
	SkipUnknown bool

	// PlotDir, if set, is where the mean sample-test curves are plotted, one PNG per (mechanism, ratio).
	PlotDir string

	// ShowProgress displays a progress bar over the epochs of each training.
	ShowProgress bool
}

// DefaultOptions returns the options used for the survey cohorts.
func DefaultOptions() Options {
	return Options{
		Cohort:           "C19",
		Mechanisms:       scenario.Mechanisms,
		Ratios:           []int{10},
		NumSampleTest:    1,
		NumExperiments:   5,
		EpochsSampleTest: 100,
		Policy:           ContinuousFirst,
	}
}

// Failure records a scenario that could not be completed.
type Failure struct {
	Key    scenario.Key
	Sample bool
	Kind   imputeerr.Kind
	Err    error
}

// Runner runs scenarios sequentially, each one in its own gain.TrainingSession.
type Runner struct {
	Backend backends.Backend
	Config  gain.Config
	Loader  *scenario.Loader
	Timing  *scenario.TimingLog
	Options Options

	// Failures accumulates the failed scenarios of all the phases run.
	Failures []Failure

	// Completed counts the scenarios whose imputation was written.
	Completed int

	rng *rand.Rand
}

// NewRunner creates a Runner. All random draws of all sessions come from one generator seeded
// with cfg.Seed, so a whole run is reproducible.
func NewRunner(backend backends.Backend, cfg gain.Config, loader *scenario.Loader, timing *scenario.TimingLog, opts Options) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.NumSampleTest <= 0 || opts.EpochsSampleTest <= 0 {
		return nil, errors.Errorf("sample test needs at least one run of one epoch, got %d runs of %d epochs",
			opts.NumSampleTest, opts.EpochsSampleTest)
	}
	klog.V(1).Infof("grid of %s: mechanisms [%s], ratios %v, %d sample runs of %d epochs, %d experiments",
		opts.Cohort, strings.Join(xslices.Map(opts.Mechanisms, scenario.Mechanism.String), ","),
		opts.Ratios, opts.NumSampleTest, opts.EpochsSampleTest, opts.NumExperiments)
	seed := uint64(cfg.Seed)
	return &Runner{
		Backend: backend,
		Config:  cfg,
		Loader:  loader,
		Timing:  timing,
		Options: opts,
		rng:     rand.New(rand.NewPCG(seed, seed)),
	}, nil
}

func (r *Runner) fail(key scenario.Key, sample bool, err error) {
	kind := imputeerr.KindOf(err)
	klog.Errorf("scenario %s (sample=%v) failed with %s: %+v", key, sample, kind, err)
	r.Failures = append(r.Failures, Failure{Key: key, Sample: sample, Kind: kind, Err: err})
}

func (r *Runner) newProgressBar(key scenario.Key, epochs int) *progressbar.ProgressBar {
	if !r.Options.ShowProgress {
		return progressbar.DefaultSilent(int64(epochs))
	}
	return progressbar.Default(int64(epochs), key.String())
}

// prepare loads and encodes the scenario's inputs, and creates a new session for them. The caller
// owns the returned session and must close it.
func (r *Runner) prepare(key scenario.Key, sample bool) (*gain.TrainingSession, *schema.Encoding, error) {
	inputs, err := r.Loader.Load(key, sample)
	if err != nil {
		return nil, nil, err
	}
	enc, err := schema.Encode(inputs.Full, inputs.Mask, schema.Options{SkipUnknown: r.Options.SkipUnknown})
	if err != nil {
		return nil, nil, err
	}
	session, err := gain.NewTrainingSession(r.Backend, r.Config, enc.Schema, r.rng)
	if err != nil {
		return nil, nil, err
	}
	return session, enc, nil
}

// fit trains the session on the encoded scenario, displaying the progress if configured.
func (r *Runner) fit(key scenario.Key, session *gain.TrainingSession, enc *schema.Encoding, epochs int, onEpoch gain.EpochFn) error {
	pbar := r.newProgressBar(key, epochs)
	err := session.Train(enc.Data, epochs, func(epoch int, losses gain.StepLosses) error {
		_ = pbar.Add(1)
		if onEpoch != nil {
			return onEpoch(epoch, losses)
		}
		return nil
	})
	_ = pbar.Finish()
	if err != nil {
		return errors.WithMessagef(err, "training %s", key)
	}
	return nil
}

// RunScenario trains on the scenario for the given number of epochs, imputes its masked cells
// and writes them to the scenario's output file.
func (r *Runner) RunScenario(key scenario.Key, epochs int) error {
	if epochs <= 0 {
		return errors.Errorf("scenario %s: number of epochs must be positive, got %d", key, epochs)
	}
	session, enc, err := r.prepare(key, false)
	if err != nil {
		return err
	}
	defer session.Close()
	if err = r.fit(key, session, enc, epochs, nil); err != nil {
		return err
	}

	imputed, err := session.Impute(enc.Data)
	if err != nil {
		return errors.WithMessagef(err, "imputing %s", key)
	}
	decoded, err := schema.Decode(enc.Schema, imputed, enc.Data.Rows)
	if err != nil {
		return errors.WithMessagef(err, "decoding %s", key)
	}
	diff, err := schema.DiffTable(decoded, enc.Mask)
	if err != nil {
		return err
	}
	if err = session.Advance(gain.StateDecoded); err != nil {
		return err
	}
	if err = r.Loader.Paths.WriteResult(key, diff); err != nil {
		return err
	}
	return session.Advance(gain.StatePersisted)
}

// SampleRun trains on the scenario's sample mask for Options.EpochsSampleTest epochs, scoring
// the imputation after every epoch. It returns the per-epoch continuous error and categorical
// accuracy.
func (r *Runner) SampleRun(key scenario.Key) (con, cat []float64, err error) {
	session, enc, err := r.prepare(key, true)
	if err != nil {
		return nil, nil, err
	}
	defer session.Close()
	err = r.fit(key, session, enc, r.Options.EpochsSampleTest, func(epoch int, _ gain.StepLosses) error {
		imputed, err := session.Impute(enc.Data)
		if err != nil {
			return err
		}
		score, err := evaluate.ScoreEncoded(enc, imputed)
		if err != nil {
			return errors.WithMessagef(err, "scoring epoch %d", epoch)
		}
		con = append(con, score.ContinuousRMSE)
		cat = append(cat, score.CategoricalAccuracy)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return con, cat, nil
}

// SampleTest selects the number of epochs of every (mechanism, ratio) of the options: it averages
// the per-epoch scores of NumSampleTest sample runs and picks the best epoch according to the
// policy. Pairs whose runs all fail are left out of the table.
//
// The curves of every pair are returned too, indexed like the table.
func (r *Runner) SampleTest() (EpochTable, map[EpochKey]Curves) {
	selected := make(map[EpochKey]int)
	allCurves := make(map[EpochKey]Curves)
	for _, mech := range r.Options.Mechanisms {
		for _, ratio := range r.Options.Ratios {
			epochKey := EpochKey{Mechanism: mech, Ratio: ratio}
			var curves Curves
			for index := range r.Options.NumSampleTest {
				key := scenario.Key{Cohort: r.Options.Cohort, Mechanism: mech, Ratio: ratio, Index: index}
				con, cat, err := r.SampleRun(key)
				if err != nil {
					r.fail(key, true, err)
					continue
				}
				curves.Continuous = append(curves.Continuous, con)
				curves.Categorical = append(curves.Categorical, cat)
			}
			if len(curves.Continuous) == 0 {
				continue
			}
			allCurves[epochKey] = curves
			meanCon, meanCat := MeanSeries(curves.Continuous), MeanSeries(curves.Categorical)
			epochs, err := SelectBestIndex(r.Options.Policy, meanCon, meanCat)
			if err != nil {
				key := scenario.Key{Cohort: r.Options.Cohort, Mechanism: mech, Ratio: ratio}
				r.fail(key, true, err)
				continue
			}
			selected[epochKey] = epochs
			klog.Infof("%s/%s/miss%d: %d epochs selected (%s)", r.Options.Cohort, mech, ratio, epochs, r.Options.Policy)
			if r.Options.PlotDir != "" {
				if err := PlotCurves(r.Options.PlotDir, r.Options.Cohort, epochKey, meanCon, meanCat, epochs); err != nil {
					klog.Warningf("failed to plot sample-test curves of %s/miss%d: %+v", mech, ratio, err)
				}
			}
		}
	}
	return NewEpochTable(selected), allCurves
}

// RunExperiments imputes NumExperiments scenarios of every (mechanism, ratio) of the options,
// each trained for the number of epochs in the table. After every (mechanism, ratio) the average
// duration of its successful runs is added to the timing log.
func (r *Runner) RunExperiments(table EpochTable) error {
	for _, mech := range r.Options.Mechanisms {
		for _, ratio := range r.Options.Ratios {
			epochs, found := table.Epochs(mech, ratio)
			if !found {
				klog.Warningf("%s/%s/miss%d: no number of epochs selected, skipping its experiments",
					r.Options.Cohort, mech, ratio)
				continue
			}
			var durations []time.Duration
			for index := range r.Options.NumExperiments {
				key := scenario.Key{Cohort: r.Options.Cohort, Mechanism: mech, Ratio: ratio, Index: index}
				start := time.Now()
				if err := r.RunScenario(key, epochs); err != nil {
					r.fail(key, false, err)
					continue
				}
				durations = append(durations, time.Since(start))
				r.Completed++
			}
			if r.Timing == nil {
				continue
			}
			if _, err := r.Timing.Add(r.Options.Cohort, mech, ratio, durations); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run runs the sample test followed by the experiments.
func (r *Runner) Run() (EpochTable, error) {
	table, _ := r.SampleTest()
	return table, r.RunExperiments(table)
}
