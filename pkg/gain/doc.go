// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

// Package gain implements a Generative Adversarial Imputation Network (GAIN) on GoMLX.
//
// A generator sees the noise-filled data concatenated with its observed mask and reconstructs every
// entry. A discriminator sees the generator's output blended with the observed data, concatenated
// with a hint (a random subset of the observed mask), and predicts which entries were observed.
// Both are trained in alternation, one step each per mini-batch, with the generator loss adding
// a masked reconstruction term scaled by gain_alpha.
//
// Hyperparameters are kept in a context.Context (see CreateDefaultContext) and read with
// ConfigFromContext.
package gain
