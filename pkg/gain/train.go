// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package gain

import (
	"github.com/hhsurvey/gainimpute/pkg/dataset"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EpochFn is called at the end of every epoch with the 1-based epoch number and the mean losses
// of its steps. Returning an error stops the training.
type EpochFn func(epoch int, losses StepLosses) error

// Train runs the fixed number of epochs on data. Every epoch reshuffles the rows, refills the
// missing entries with fresh noise and steps through the batches in order.
func (s *TrainingSession) Train(data dataset.Dataset, epochs int, onEpoch EpochFn) error {
	if err := s.checkUsable(data); err != nil {
		return err
	}
	if err := s.Advance(StateTraining); err != nil {
		return err
	}
	for epoch := 1; epoch <= epochs; epoch++ {
		noisy := data.ShuffleWithNoise(s.rng, s.cfg.Noise)
		batches := noisy.Batches(s.cfg.BatchSize)
		var mean StepLosses
		for ii, batch := range batches {
			losses, err := s.Step(batch)
			if err != nil {
				return errors.WithMessagef(err, "epoch %d, batch %d", epoch, ii)
			}
			mean.add(losses)
		}
		mean.scale(1 / float32(len(batches)))
		if klog.V(2).Enabled() {
			klog.Infof("epoch %d: d_loss=%.4f g_loss=%.4f (adversarial=%.4f, reconstruction=%.4f)",
				epoch, mean.Discriminator, mean.Generator, mean.Adversarial, mean.Reconstruction)
		}
		if onEpoch != nil {
			if err := onEpoch(epoch, mean); err != nil {
				return err
			}
		}
	}
	return s.Advance(StateConverged)
}

// Impute fills the missing entries of data with the generator's output, keeping the observed
// entries as they are. It returns the flat row-major result, shaped like data.Values.
//
// It can be called during training (e.g. from an EpochFn) as well as after it.
func (s *TrainingSession) Impute(data dataset.Dataset) ([]float32, error) {
	noisy := data.WithNoise(s.rng, s.cfg.Noise)
	generated, err := s.Generate(noisy)
	if err != nil {
		return nil, err
	}
	imputed := make([]float32, len(generated))
	for ii, g := range generated {
		m := noisy.Mask[ii]
		imputed[ii] = g*(1-m) + noisy.Values[ii]*m
	}
	return imputed, nil
}
