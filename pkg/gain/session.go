// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package gain

import (
	"fmt"
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/pkg/core/graph" //nolint
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/hhsurvey/gainimpute/pkg/dataset"
	"github.com/hhsurvey/gainimpute/pkg/schema"
	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// NewBackend creates the GoMLX backend for the given configuration, e.g. "go" for the pure Go backend.
func NewBackend(config string) (backends.Backend, error) {
	backend, err := backends.NewWithConfig(config)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create backend %q", config)
	}
	return backend, nil
}

// State of a TrainingSession.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateTraining
	StateConverged
	StateDecoded
	StatePersisted
	StateClosed
)

var stateNames = []string{"uninitialized", "initialized", "training", "converged", "decoded", "persisted", "closed"}

// String implements fmt.Stringer.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TrainingSession owns the generator and discriminator of one scenario: their variables, their
// optimizer state and the compiled steps. Create it with NewTrainingSession and release it with Close.
//
// Each network lives in its own context, so each optimizer only ever updates its own network.
// The generator step receives the current discriminator parameters as inputs.
type TrainingSession struct {
	cfg     Config
	width   int
	blocks  []schema.Block
	backend backends.Backend
	rng     *rand.Rand
	state   State

	genCtx, discCtx          *context.Context
	generator, discriminator *network
	genOptimizer             optimizers.Interface
	discOptimizer            optimizers.Interface

	// generateExec runs the generator in training mode, imputeExec in inference mode.
	generateExec, imputeExec *context.Exec
	discStepExec             *context.Exec
	genStepExec              *context.Exec
}

// NewTrainingSession creates the networks for the encoded layout in fs. The weights are
// initialized from rng, which is also used for the shuffling, noise and hints during training.
func NewTrainingSession(backend backends.Backend, cfg Config, fs schema.FeatureSchema, rng *rand.Rand) (*TrainingSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	width := fs.Width()
	if width == 0 {
		return nil, imputeerr.New(imputeerr.ShapeError, "cannot train on an encoded width of 0")
	}
	s := &TrainingSession{
		cfg:           cfg,
		width:         width,
		blocks:        fs.Blocks(),
		backend:       backend,
		rng:           rng,
		genOptimizer:  optimizers.Adam().Done(),
		discOptimizer: optimizers.Adam().Done(),
	}
	err := exceptions.TryCatch[error](func() {
		widths := LayerWidths(width)
		s.genCtx = newNetworkContext(cfg, rng)
		s.discCtx = newNetworkContext(cfg, rng)
		s.generator = newNetwork(s.genCtx, GeneratorScope, widths)
		s.discriminator = newNetwork(s.discCtx, DiscriminatorScope, widths)
	})
	if err != nil {
		s.Close()
		return nil, errors.WithMessage(err, "failed to create GAIN networks")
	}
	for _, ctx := range []*context.Context{s.genCtx, s.discCtx} {
		if err = ctx.InitializeVariables(backend, nil); err != nil {
			s.Close()
			return nil, errors.WithMessage(err, "failed to initialize GAIN networks")
		}
	}
	if err = s.compile(); err != nil {
		s.Close()
		return nil, err
	}
	s.state = StateInitialized
	klog.V(1).Infof("GAIN session created: encoded width %d, layers %v", width, LayerWidths(width))
	return s, nil
}

func newNetworkContext(cfg Config, rng *rand.Rand) *context.Context {
	ctx := context.New().Checked(false)
	ctx.SetParam(optimizers.ParamLearningRate, cfg.LearningRate)
	ctx.RngStateFromSeed(rng.Int64())
	return ctx
}

// generate runs the generator on x ⊕ m.
func (s *TrainingSession) generate(ctx *context.Context, x, m *Node) *Node {
	return forward(ctx, s.generator.params(x.Graph()), Concatenate([]*Node{x, m}, 1), s.cfg.DropoutRate)
}

// discriminate runs the discriminator with the given parameters on blended ⊕ h.
func (s *TrainingSession) discriminate(ctx *context.Context, params []*Node, blended, h *Node) *Node {
	return forward(ctx, params, Concatenate([]*Node{blended, h}, 1), s.cfg.DropoutRate)
}

func (s *TrainingSession) compile() error {
	var err error
	s.generateExec, err = context.NewExec(s.backend, s.genCtx, func(ctx *context.Context, x, m *Node) *Node {
		ctx.SetTraining(x.Graph(), true)
		return s.generate(ctx, x, m)
	})
	if err != nil {
		return errors.WithMessage(err, "generator")
	}
	s.imputeExec, err = context.NewExec(s.backend, s.genCtx, func(ctx *context.Context, x, m *Node) *Node {
		ctx.SetTraining(x.Graph(), false)
		return s.generate(ctx, x, m)
	})
	if err != nil {
		return errors.WithMessage(err, "imputation")
	}

	// Discriminator step: inputs are x, m, h and the generator output.
	s.discStepExec, err = context.NewExec(s.backend, s.discCtx, func(ctx *context.Context, inputs []*Node) *Node {
		x, m, h, generated := inputs[0], inputs[1], inputs[2], inputs[3]
		g := x.Graph()
		ctx.SetTraining(g, true)
		probs := s.discriminate(ctx, s.discriminator.params(g), blend(generated, x, m), h)
		loss := DiscriminatorLoss(m, probs, s.cfg.DLossMode)
		s.discOptimizer.UpdateGraph(ctx, g, loss)
		return loss
	})
	if err != nil {
		return errors.WithMessage(err, "discriminator step")
	}

	// Generator step: inputs are x, m, h followed by the discriminator parameters.
	s.genStepExec, err = context.NewExec(s.backend, s.genCtx, func(ctx *context.Context, inputs []*Node) (total, adversarial, reconstruction *Node) {
		x, m, h := inputs[0], inputs[1], inputs[2]
		g := x.Graph()
		ctx.SetTraining(g, true)
		generated := s.generate(ctx, x, m)
		probs := s.discriminate(ctx, inputs[3:], blend(generated, x, m), h)
		adversarial = GeneratorAdversarialLoss(m, probs, s.cfg.GLossMode)
		reconstruction = ReconstructionLoss(generated, x, m, s.blocks, s.cfg.LossMode, s.cfg.LossBalance)
		total = Add(adversarial, MulScalar(reconstruction, s.cfg.Alpha))
		s.genOptimizer.UpdateGraph(ctx, g, total)
		return
	})
	if err != nil {
		return errors.WithMessage(err, "generator step")
	}
	return nil
}

// State of the session.
func (s *TrainingSession) State() State { return s.state }

// Advance moves the session to a later state. Going backwards is an error.
func (s *TrainingSession) Advance(state State) error {
	if state < s.state {
		return errors.Errorf("GAIN session can't go from state %s back to %s", s.state, state)
	}
	s.state = state
	return nil
}

// Width of the encoded data the session was built for.
func (s *TrainingSession) Width() int { return s.width }

// Config used by the session.
func (s *TrainingSession) Config() Config { return s.cfg }

// StepLosses reports the losses of one step, or their mean over an epoch.
type StepLosses struct {
	Discriminator  float32
	Generator      float32
	Adversarial    float32
	Reconstruction float32
}

func (l *StepLosses) add(o StepLosses) {
	l.Discriminator += o.Discriminator
	l.Generator += o.Generator
	l.Adversarial += o.Adversarial
	l.Reconstruction += o.Reconstruction
}

func (l *StepLosses) scale(f float32) {
	l.Discriminator *= f
	l.Generator *= f
	l.Adversarial *= f
	l.Reconstruction *= f
}

func (s *TrainingSession) checkUsable(ds dataset.Dataset) error {
	if s.state == StateClosed || s.state == StateUninitialized {
		return errors.Errorf("GAIN session is %s", s.state)
	}
	if ds.Width != s.width {
		return imputeerr.New(imputeerr.ShapeError, "batch width %d doesn't match the networks' width %d", ds.Width, s.width)
	}
	if ds.Rows == 0 {
		return imputeerr.New(imputeerr.ShapeError, "empty batch")
	}
	return nil
}

// Step trains on one batch, whose values must already be noise-filled: first one discriminator
// update against the current generator output, then one generator update against the
// just-updated discriminator.
func (s *TrainingSession) Step(batch dataset.Dataset) (losses StepLosses, err error) {
	if err = s.checkUsable(batch); err != nil {
		return
	}
	hint := dataset.Hint(s.rng, batch.Mask, s.cfg.HintRate)
	err = exceptions.TryCatch[error](func() {
		x := tensors.FromFlatDataAndDimensions(batch.Values, batch.Rows, batch.Width)
		m := tensors.FromFlatDataAndDimensions(batch.Mask, batch.Rows, batch.Width)
		h := tensors.FromFlatDataAndDimensions(hint, batch.Rows, batch.Width)

		generated, err := s.generateExec.Exec1(x, m)
		if err != nil {
			panic(errors.WithMessage(err, "generator forward"))
		}
		dLoss, err := s.discStepExec.Exec1(x, m, h, generated)
		if err != nil {
			panic(errors.WithMessage(err, "discriminator step"))
		}
		discParams, err := s.discriminator.values()
		if err != nil {
			panic(errors.WithMessage(err, "reading discriminator parameters"))
		}
		args := []any{x, m, h}
		for _, p := range discParams {
			args = append(args, p)
		}
		total, adversarial, reconstruction, err := s.genStepExec.Exec3(args...)
		if err != nil {
			panic(errors.WithMessage(err, "generator step"))
		}
		losses = StepLosses{
			Discriminator:  tensors.ToScalar[float32](dLoss),
			Generator:      tensors.ToScalar[float32](total),
			Adversarial:    tensors.ToScalar[float32](adversarial),
			Reconstruction: tensors.ToScalar[float32](reconstruction),
		}
	})
	return
}

// Generate runs the generator in inference mode on noise-filled data, returning its raw output.
func (s *TrainingSession) Generate(data dataset.Dataset) (output []float32, err error) {
	if err = s.checkUsable(data); err != nil {
		return
	}
	err = exceptions.TryCatch[error](func() {
		x := tensors.FromFlatDataAndDimensions(data.Values, data.Rows, data.Width)
		m := tensors.FromFlatDataAndDimensions(data.Mask, data.Rows, data.Width)
		generated, err := s.imputeExec.Exec1(x, m)
		if err != nil {
			panic(errors.WithMessage(err, "generator inference"))
		}
		output = tensors.MustCopyFlatData[float32](generated)
	})
	return
}

// Close releases the compiled steps and the networks' variables. It is safe to call more than once.
func (s *TrainingSession) Close() {
	if s.state == StateClosed {
		return
	}
	for _, e := range []*context.Exec{s.generateExec, s.imputeExec, s.discStepExec, s.genStepExec} {
		if e != nil {
			e.Finalize()
		}
	}
	for _, ctx := range []*context.Context{s.genCtx, s.discCtx} {
		if ctx != nil {
			ctx.Finalize()
		}
	}
	s.generateExec, s.imputeExec, s.discStepExec, s.genStepExec = nil, nil, nil, nil
	s.genCtx, s.discCtx = nil, nil
	s.state = StateClosed
}
