// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package gain

import (
	. "github.com/gomlx/gomlx/pkg/core/graph" //nolint
	"github.com/hhsurvey/gainimpute/pkg/schema"
)

// Epsilon added inside logarithms and to the observed count.
const Epsilon = 1e-8

// categoricalIndicator returns a [1, width] constant with 1 at the positions of categorical blocks.
func categoricalIndicator(base *Node, blocks []schema.Block, width int) *Node {
	indicator := make([]float32, width)
	for _, block := range blocks {
		if !block.Categorical {
			continue
		}
		for pos := block.Start; pos < block.End; pos++ {
			indicator[pos] = 1
		}
	}
	return Reshape(ConstAs(base, indicator), 1, width)
}

// ReconstructionLoss of the generator output genX against the data x, on the observed entries (m == 1).
//
// With LossBlockMasked, continuous blocks contribute their squared error and categorical blocks
// their cross-entropy `-x*log(genX+eps)` scaled by balance. With LossMSEMasked every entry
// contributes its squared error. Either way the sum is divided by the number of observed
// entries (plus Epsilon).
func ReconstructionLoss(genX, x, m *Node, blocks []schema.Block, mode string, balance float64) *Node {
	observedCount := AddScalar(ReduceAllSum(m), Epsilon)
	sqErr := Square(Sub(Mul(genX, m), Mul(x, m)))
	if mode == LossMSEMasked {
		return Div(ReduceAllSum(sqErr), observedCount)
	}
	width := x.Shape().Dim(-1)
	isCat := categoricalIndicator(x, blocks, width)
	continuous := ReduceAllSum(Mul(sqErr, OneMinus(isCat)))
	crossEntropy := Neg(Mul(Mul(x, m), Log(AddScalar(genX, Epsilon))))
	categorical := MulScalar(ReduceAllSum(Mul(crossEntropy, isCat)), balance)
	return Div(Add(continuous, categorical), observedCount)
}

// DiscriminatorLoss of the predicted probabilities of being observed, against the true mask m.
func DiscriminatorLoss(m, probs *Node, mode string) *Node {
	if mode == DLossMSE {
		return ReduceAllMean(Square(Sub(m, probs)))
	}
	logObserved := Mul(m, Log(AddScalar(probs, Epsilon)))
	logMissing := Mul(OneMinus(m), Log(AddScalar(OneMinus(probs), Epsilon)))
	return Neg(ReduceAllMean(Add(logObserved, logMissing)))
}

// GeneratorAdversarialLoss rewards the generator when the discriminator takes its imputed
// (m == 0) entries for observed ones.
func GeneratorAdversarialLoss(m, probs *Node, mode string) *Node {
	logProbs := Log(AddScalar(probs, Epsilon))
	loss := Mul(OneMinus(m), logProbs)
	if mode == GLossLogCompleteMasked {
		loss = Add(loss, Mul(m, logProbs))
	}
	return Neg(ReduceAllMean(loss))
}
