// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package gain

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph" //nolint
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// Scopes of the two networks.
const (
	GeneratorScope     = "generator"
	DiscriminatorScope = "discriminator"
)

// LayerWidths returns the widths of the networks for an encoded width d: input 2d, hidden d, output d.
func LayerWidths(d int) []int {
	return []int{2 * d, d, d}
}

// network holds the variables of one feed-forward stack: weights[i] is shaped [in, out] and
// biases[i] is shaped [out].
type network struct {
	weights, biases []*context.Variable
}

// newNetwork creates the variables for a network with the given layer widths under ctx.In(scope).
// Weights are Glorot-uniform initialized from the context's random state, biases are zero. Values
// are only materialized by Context.InitializeVariables or the first execution.
func newNetwork(ctx *context.Context, scope string, widths []int) *network {
	net := &network{}
	scopeCtx := ctx.In(scope)
	for layer := range len(widths) - 1 {
		in, out := widths[layer], widths[layer+1]
		layerCtx := scopeCtx.In(fmt.Sprintf("dense_%d", layer))
		w := layerCtx.WithInitializer(initializers.GlorotUniformFn(ctx)).
			VariableWithShape("weights", shapes.Make(dtypes.Float32, in, out))
		b := layerCtx.WithInitializer(initializers.Zero).
			VariableWithShape("biases", shapes.Make(dtypes.Float32, out))
		net.weights = append(net.weights, w)
		net.biases = append(net.biases, b)
	}
	return net
}

// params returns the network's parameters as nodes of g, interleaved as weights_0, biases_0, weights_1, ...
func (net *network) params(g *Graph) []*Node {
	nodes := make([]*Node, 0, 2*len(net.weights))
	for ii := range net.weights {
		nodes = append(nodes, net.weights[ii].ValueGraph(g), net.biases[ii].ValueGraph(g))
	}
	return nodes
}

// values returns the current parameter values, in the same order as params.
func (net *network) values() ([]*tensors.Tensor, error) {
	values := make([]*tensors.Tensor, 0, 2*len(net.weights))
	for ii := range net.weights {
		w, err := net.weights[ii].Value()
		if err != nil {
			return nil, err
		}
		b, err := net.biases[ii].Value()
		if err != nil {
			return nil, err
		}
		values = append(values, w, b)
	}
	return values, nil
}

// forward runs the stack given its parameters (as returned by params): ReLU on hidden layers,
// dropout (training only) and sigmoid on the last layer.
//
// Parameters are passed as nodes, so the same function serves for a network whose variables
// live in ctx, or one whose parameters are fed in as plain inputs.
func forward(ctx *context.Context, params []*Node, input *Node, dropoutRate float64) *Node {
	x := input
	numLayers := len(params) / 2
	for layer := range numLayers {
		w, b := params[2*layer], params[2*layer+1]
		x = Add(MatMul(x, w), Reshape(b, 1, b.Shape().Dim(0)))
		if layer < numLayers-1 {
			x = activations.Relu(x)
		}
	}
	x = layers.DropoutStatic(ctx, x, dropoutRate)
	return Sigmoid(x)
}

// blend keeps the observed entries of x and takes the generated ones where the mask is 0.
func blend(generated, x, mask *Node) *Node {
	return Add(Mul(generated, OneMinus(mask)), Mul(x, mask))
}
