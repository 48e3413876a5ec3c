// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package gain

import (
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/hhsurvey/gainimpute/pkg/dataset"
	"github.com/pkg/errors"
)

// Hyperparameter keys.
const (
	ParamAlpha        = "gain_alpha"
	ParamHintRate     = "gain_p_hint"
	ParamLossBalance  = "gain_loss_balance"
	ParamNoiseZero    = "gain_noise_zero"
	ParamNoiseLow     = "gain_noise_low"
	ParamNoiseHigh    = "gain_noise_high"
	ParamDropoutRate  = "gain_dropout"
	ParamLossMode     = "gain_loss_mode"
	ParamDLossMode    = "gain_d_loss_mode"
	ParamGLossMode    = "gain_g_loss_mode"
	ParamBatchSize    = "batch_size"
	ParamEpochs       = "epochs"
	ParamSeed         = "seed"
	ParamBackend      = "backend"
	ParamSkipUnknown  = "skip_unknown_columns"
	ParamLearningRate = optimizers.ParamLearningRate
)

// Reconstruction loss modes.
const (
	// LossBlockMasked uses masked squared error for continuous blocks and masked cross-entropy,
	// scaled by gain_loss_balance, for categorical blocks.
	LossBlockMasked = "log_mse_masked"

	// LossMSEMasked uses masked squared error for every position.
	LossMSEMasked = "mse_masked"
)

// Discriminator and generator adversarial loss modes.
const (
	// DLossLogMasked is the binary cross-entropy against the true mask.
	DLossLogMasked = "log_masked"
	// DLossMSE is the squared error against the true mask.
	DLossMSE = "mse"

	// GLossLogMasked rewards fooling the discriminator on missing entries only.
	GLossLogMasked = "log_masked"
	// GLossLogCompleteMasked also adds the log-probability of observed entries.
	GLossLogCompleteMasked = "log_complete_masked"
)

// CreateDefaultContext returns a context with the default hyperparameters.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		// Generator loss is adversarial + gain_alpha * reconstruction.
		ParamAlpha: 10.0,

		// Fraction of the observed entries revealed to the discriminator.
		ParamHintRate: 0.8,

		// Weight of the categorical cross-entropy relative to the continuous squared error.
		ParamLossBalance: 1.0,

		// Missing entries are filled with U(low, high) noise, or zeros if gain_noise_zero is set.
		ParamNoiseZero: false,
		ParamNoiseLow:  0.0,
		ParamNoiseHigh: 0.1,

		// Dropout applied to the last layer of both networks, during training only.
		ParamDropoutRate: 0.5,

		ParamLossMode:  LossBlockMasked, // "log_mse_masked" or "mse_masked"
		ParamDLossMode: DLossLogMasked,  // "log_masked" or "mse"
		ParamGLossMode: GLossLogMasked,  // "log_masked" or "log_complete_masked"

		ParamBatchSize: 64,

		// Number of epochs of each sample-test training.
		ParamEpochs:       100,
		ParamLearningRate: 0.001,

		// Seed for every random draw: weights initialization, shuffling, noise, hints and dropout.
		ParamSeed: 42,

		// GoMLX backend configuration. "go" is the pure Go backend.
		ParamBackend: "go",

		// Drop columns without a "con" or "cat" prefix, instead of failing the scenario.
		ParamSkipUnknown: false,
	})
	return ctx
}

// Config holds the hyperparameters of one training session.
type Config struct {
	Alpha        float64
	HintRate     float64
	LossBalance  float64
	Noise        dataset.NoisePolicy
	DropoutRate  float64
	LossMode     string
	DLossMode    string
	GLossMode    string
	BatchSize    int
	Epochs       int
	LearningRate float64
	Seed         int64
}

// ConfigFromContext reads the hyperparameters from the context, using the defaults of
// CreateDefaultContext for the ones not set.
func ConfigFromContext(ctx *context.Context) (Config, error) {
	c := Config{
		Alpha:       context.GetParamOr(ctx, ParamAlpha, 10.0),
		HintRate:    context.GetParamOr(ctx, ParamHintRate, 0.8),
		LossBalance: context.GetParamOr(ctx, ParamLossBalance, 1.0),
		Noise: dataset.NoisePolicy{
			Zero: context.GetParamOr(ctx, ParamNoiseZero, false),
			Low:  float32(context.GetParamOr(ctx, ParamNoiseLow, 0.0)),
			High: float32(context.GetParamOr(ctx, ParamNoiseHigh, 0.1)),
		},
		DropoutRate:  context.GetParamOr(ctx, ParamDropoutRate, 0.5),
		LossMode:     context.GetParamOr(ctx, ParamLossMode, LossBlockMasked),
		DLossMode:    context.GetParamOr(ctx, ParamDLossMode, DLossLogMasked),
		GLossMode:    context.GetParamOr(ctx, ParamGLossMode, GLossLogMasked),
		BatchSize:    context.GetParamOr(ctx, ParamBatchSize, 64),
		Epochs:       context.GetParamOr(ctx, ParamEpochs, 100),
		LearningRate: context.GetParamOr(ctx, ParamLearningRate, 0.001),
		Seed:         int64(context.GetParamOr(ctx, ParamSeed, 42)),
	}
	return c, c.Validate()
}

// Validate checks the ranges and modes of the configuration.
func (c Config) Validate() error {
	switch {
	case c.HintRate < 0 || c.HintRate > 1:
		return errors.Errorf("%s must be in [0, 1], got %g", ParamHintRate, c.HintRate)
	case c.DropoutRate < 0 || c.DropoutRate >= 1:
		return errors.Errorf("%s must be in [0, 1), got %g", ParamDropoutRate, c.DropoutRate)
	case c.BatchSize <= 0:
		return errors.Errorf("%s must be positive, got %d", ParamBatchSize, c.BatchSize)
	case c.Epochs <= 0:
		return errors.Errorf("%s must be positive, got %d", ParamEpochs, c.Epochs)
	case c.LearningRate <= 0:
		return errors.Errorf("%s must be positive, got %g", ParamLearningRate, c.LearningRate)
	case !c.Noise.Zero && c.Noise.High < c.Noise.Low:
		return errors.Errorf("%s (%g) must not be smaller than %s (%g)", ParamNoiseHigh, c.Noise.High, ParamNoiseLow, c.Noise.Low)
	}
	if c.LossMode != LossBlockMasked && c.LossMode != LossMSEMasked {
		return errors.Errorf("unknown %s %q, valid values are %q or %q", ParamLossMode, c.LossMode, LossBlockMasked, LossMSEMasked)
	}
	if c.DLossMode != DLossLogMasked && c.DLossMode != DLossMSE {
		return errors.Errorf("unknown %s %q, valid values are %q or %q", ParamDLossMode, c.DLossMode, DLossLogMasked, DLossMSE)
	}
	if c.GLossMode != GLossLogMasked && c.GLossMode != GLossLogCompleteMasked {
		return errors.Errorf("unknown %s %q, valid values are %q or %q", ParamGLossMode, c.GLossMode, GLossLogMasked, GLossLogCompleteMasked)
	}
	return nil
}
