// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package gain

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph" //nolint
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/hhsurvey/gainimpute/pkg/dataset"
	"github.com/hhsurvey/gainimpute/pkg/schema"
	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) backends.Backend {
	backend, err := NewBackend("go")
	require.NoError(t, err)
	return backend
}

// testSchema has a continuous column, a 3-category column and another continuous column.
func testSchema() schema.FeatureSchema {
	return schema.NewFeatureSchema([]schema.Column{
		{Name: "con_a", Kind: schema.Continuous{Min: 0, Max: 10}},
		{Name: "cat_b", Kind: schema.NewCategorical([]string{"x", "y", "z"})},
		{Name: "con_c", Kind: schema.Continuous{Min: -1, Max: 1}},
	})
}

// randomTriple returns genX in (0, 1), x with one-hot categorical blocks and a random mask
// broadcast over each block, for numRows rows of the test schema.
func randomTriple(rng *rand.Rand, numRows int) (genX, x, m []float32) {
	const width = 5
	genX = make([]float32, numRows*width)
	x = make([]float32, numRows*width)
	m = make([]float32, numRows*width)
	for row := range numRows {
		base := row * width
		for ii := range width {
			genX[base+ii] = 0.01 + 0.98*rng.Float32()
		}
		x[base] = rng.Float32()
		x[base+1+rng.IntN(3)] = 1
		x[base+4] = rng.Float32()
		blockObserved := []bool{rng.Float64() < 0.7, rng.Float64() < 0.7, rng.Float64() < 0.7}
		for ii, pos := range []int{0, 1, 1, 1, 2} {
			if blockObserved[pos] {
				m[base+ii] = 1
			}
		}
	}
	return
}

// reconstructionReference is the block-aware loss computed on the host.
func reconstructionReference(genX, x, m []float32, balance float64) float64 {
	var sum, count float64
	for ii := range genX {
		col := ii % 5
		g, xv, mv := float64(genX[ii]), float64(x[ii]), float64(m[ii])
		count += mv
		if col >= 1 && col <= 3 {
			sum += -balance * xv * mv * math.Log(g+Epsilon)
		} else {
			d := g*mv - xv*mv
			sum += d * d
		}
	}
	return sum / (count + Epsilon)
}

func execLoss(t *testing.T, backend backends.Backend, fn func(genX, x, m *Node) *Node, genX, x, m []float32) float64 {
	numRows := len(genX) / 5
	out, err := ExecOnce(backend, fn,
		tensors.FromFlatDataAndDimensions(genX, numRows, 5),
		tensors.FromFlatDataAndDimensions(x, numRows, 5),
		tensors.FromFlatDataAndDimensions(m, numRows, 5))
	require.NoError(t, err)
	return float64(tensors.ToScalar[float32](out))
}

func TestReconstructionLoss(t *testing.T) {
	backend := newTestBackend(t)
	blocks := testSchema().Blocks()
	rng := rand.New(rand.NewPCG(11, 12))
	for range 10 {
		genX, x, m := randomTriple(rng, 8)
		for _, balance := range []float64{1, 2.5} {
			got := execLoss(t, backend, func(genX, x, m *Node) *Node {
				return ReconstructionLoss(genX, x, m, blocks, LossBlockMasked, balance)
			}, genX, x, m)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.InDelta(t, reconstructionReference(genX, x, m, balance), got, 1e-4)
		}
		got := execLoss(t, backend, func(genX, x, m *Node) *Node {
			return ReconstructionLoss(genX, x, m, blocks, LossMSEMasked, 1)
		}, genX, x, m)
		assert.GreaterOrEqual(t, got, 0.0)
	}
}

func TestReconstructionLossZeroOnPerfectReconstruction(t *testing.T) {
	backend := newTestBackend(t)
	blocks := testSchema().Blocks()
	rng := rand.New(rand.NewPCG(13, 14))
	_, x, m := randomTriple(rng, 16)

	// Equal to x wherever observed, arbitrary elsewhere.
	genX := make([]float32, len(x))
	for ii := range genX {
		if m[ii] == 1 {
			genX[ii] = x[ii]
		} else {
			genX[ii] = rng.Float32()
		}
	}
	for _, mode := range []string{LossBlockMasked, LossMSEMasked} {
		got := execLoss(t, backend, func(genX, x, m *Node) *Node {
			return ReconstructionLoss(genX, x, m, blocks, mode, 1)
		}, genX, x, m)
		assert.InDelta(t, 0.0, got, 1e-7, "mode %s", mode)
	}
}

func TestAdversarialLosses(t *testing.T) {
	backend := newTestBackend(t)
	m := []float32{1, 0, 1, 0}
	p := []float32{0.9, 0.2, 0.6, 0.7}
	run := func(fn func(m, p *Node) *Node) float64 {
		out, err := ExecOnce(backend, fn,
			tensors.FromFlatDataAndDimensions(m, 2, 2),
			tensors.FromFlatDataAndDimensions(p, 2, 2))
		require.NoError(t, err)
		return float64(tensors.ToScalar[float32](out))
	}

	var wantD, wantG, wantComplete, wantMSE float64
	for ii := range m {
		mv, pv := float64(m[ii]), float64(p[ii])
		wantD += mv*math.Log(pv+Epsilon) + (1-mv)*math.Log(1-pv+Epsilon)
		wantG += (1 - mv) * math.Log(pv+Epsilon)
		wantComplete += math.Log(pv + Epsilon)
		wantMSE += (mv - pv) * (mv - pv)
	}
	assert.InDelta(t, -wantD/4, run(func(m, p *Node) *Node { return DiscriminatorLoss(m, p, DLossLogMasked) }), 1e-5)
	assert.InDelta(t, wantMSE/4, run(func(m, p *Node) *Node { return DiscriminatorLoss(m, p, DLossMSE) }), 1e-5)
	assert.InDelta(t, -wantG/4, run(func(m, p *Node) *Node { return GeneratorAdversarialLoss(m, p, GLossLogMasked) }), 1e-5)
	assert.InDelta(t, -wantComplete/4, run(func(m, p *Node) *Node { return GeneratorAdversarialLoss(m, p, GLossLogCompleteMasked) }), 1e-5)
}

func TestConfigFromContext(t *testing.T) {
	ctx := CreateDefaultContext()
	cfg, err := ConfigFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.Alpha)
	assert.Equal(t, 0.8, cfg.HintRate)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, 100, cfg.Epochs)
	assert.Equal(t, LossBlockMasked, cfg.LossMode)
	assert.Equal(t, float32(0.1), cfg.Noise.High)

	_, err = commandline.ParseContextSettings(ctx, "gain_alpha=5;batch_size=8;epochs=30;gain_g_loss_mode=log_complete_masked")
	require.NoError(t, err)
	cfg, err = ConfigFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Epochs)
	assert.Equal(t, 5.0, cfg.Alpha)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, GLossLogCompleteMasked, cfg.GLossMode)

	ctx.SetParam(ParamEpochs, 0)
	_, err = ConfigFromContext(ctx)
	require.Error(t, err)
	ctx.SetParam(ParamEpochs, 30)

	ctx.SetParam(ParamLossMode, "huber")
	_, err = ConfigFromContext(ctx)
	require.Error(t, err)
}

// testData creates a dataset for the test schema with a third of the blocks missing.
func testData(t *testing.T, rng *rand.Rand, numRows int) dataset.Dataset {
	_, x, m := randomTriple(rng, numRows)
	for ii := range x {
		if m[ii] == 0 {
			x[ii] = float32(math.NaN())
		}
	}
	ds, err := dataset.New(numRows, 5, x, m)
	require.NoError(t, err)
	return ds
}

func TestTrainingSession(t *testing.T) {
	backend := newTestBackend(t)
	cfg, err := ConfigFromContext(CreateDefaultContext())
	require.NoError(t, err)
	cfg.BatchSize = 8
	rng := rand.New(rand.NewPCG(15, 16))
	session, err := NewTrainingSession(backend, cfg, testSchema(), rng)
	require.NoError(t, err)
	defer session.Close()
	assert.Equal(t, StateInitialized, session.State())

	data := testData(t, rng, 20)
	var epochs []int
	err = session.Train(data, 3, func(epoch int, losses StepLosses) error {
		epochs = append(epochs, epoch)
		assert.False(t, math.IsNaN(float64(losses.Generator)))
		assert.GreaterOrEqual(t, losses.Reconstruction, float32(0))
		assert.GreaterOrEqual(t, losses.Discriminator, float32(0))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, epochs)
	assert.Equal(t, StateConverged, session.State())

	imputed, err := session.Impute(data)
	require.NoError(t, err)
	require.Len(t, imputed, len(data.Values))
	for ii, v := range imputed {
		if data.Mask[ii] == 1 {
			assert.Equal(t, data.Values[ii], v, "observed entries are kept")
		} else {
			assert.GreaterOrEqual(t, v, float32(0))
			assert.LessOrEqual(t, v, float32(1))
		}
	}

	// Wrong width.
	wrong, err := dataset.New(2, 3, make([]float32, 6), make([]float32, 6))
	require.NoError(t, err)
	_, err = session.Step(wrong)
	require.Error(t, err)
	assert.True(t, imputeerr.Is(err, imputeerr.ShapeError))

	session.Close()
	session.Close()
	assert.Equal(t, StateClosed, session.State())
	_, err = session.Impute(data)
	require.Error(t, err)
}

// snapshot copies the current parameters of net to the host.
func snapshot(t *testing.T, net *network) [][]float32 {
	values, err := net.values()
	require.NoError(t, err)
	flat := make([][]float32, len(values))
	for ii, v := range values {
		flat[ii] = tensors.MustCopyFlatData[float32](v)
	}
	return flat
}

func TestStepUpdatesNetworks(t *testing.T) {
	backend := newTestBackend(t)
	cfg, err := ConfigFromContext(CreateDefaultContext())
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(17, 18))
	s, err := NewTrainingSession(backend, cfg, testSchema(), rng)
	require.NoError(t, err)
	defer s.Close()

	batch := testData(t, rng, 16).WithNoise(rng, cfg.Noise)
	gen0, disc0 := snapshot(t, s.generator), snapshot(t, s.discriminator)
	_, err = s.Step(batch)
	require.NoError(t, err)
	gen1, disc1 := snapshot(t, s.generator), snapshot(t, s.discriminator)
	assert.NotEqual(t, gen0, gen1, "generator weights updated")
	assert.NotEqual(t, disc0, disc1, "discriminator weights updated")

	x := tensors.FromFlatDataAndDimensions(batch.Values, batch.Rows, batch.Width)
	m := tensors.FromFlatDataAndDimensions(batch.Mask, batch.Rows, batch.Width)
	h := tensors.FromFlatDataAndDimensions(dataset.Hint(rng, batch.Mask, cfg.HintRate), batch.Rows, batch.Width)

	// The discriminator step only updates the discriminator.
	generated, err := s.generateExec.Exec1(x, m)
	require.NoError(t, err)
	_, err = s.discStepExec.Exec1(x, m, h, generated)
	require.NoError(t, err)
	gen2, disc2 := snapshot(t, s.generator), snapshot(t, s.discriminator)
	assert.Equal(t, gen1, gen2)
	assert.NotEqual(t, disc1, disc2)

	// The generator step takes the discriminator parameters as inputs and leaves them untouched.
	discParams, err := s.discriminator.values()
	require.NoError(t, err)
	args := []any{x, m, h}
	for _, p := range discParams {
		args = append(args, p)
	}
	_, _, _, err = s.genStepExec.Exec3(args...)
	require.NoError(t, err)
	gen3, disc3 := snapshot(t, s.generator), snapshot(t, s.discriminator)
	assert.NotEqual(t, gen2, gen3)
	assert.Equal(t, disc2, disc3)
}

func TestReconstructionLossDecreases(t *testing.T) {
	backend := newTestBackend(t)
	cfg, err := ConfigFromContext(CreateDefaultContext())
	require.NoError(t, err)
	cfg.BatchSize = 8
	rng := rand.New(rand.NewPCG(19, 20))
	s, err := NewTrainingSession(backend, cfg, testSchema(), rng)
	require.NoError(t, err)
	defer s.Close()

	const epochs, window = 60, 5
	var reconstruction []float64
	require.NoError(t, s.Train(testData(t, rng, 40), epochs, func(_ int, losses StepLosses) error {
		reconstruction = append(reconstruction, float64(losses.Reconstruction))
		return nil
	}))
	require.Len(t, reconstruction, epochs)
	var early, late float64
	for ii := range window {
		early += reconstruction[ii]
		late += reconstruction[epochs-window+ii]
	}
	assert.Less(t, late, early, "mean reconstruction loss of the last %d epochs vs the first %d", window, window)
}
