// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lstm

import (
	"math"
	"slices"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/pkg/errors"
)

// QuantizedCell is the 16-bit quantized LSTM cell: 8-bit asymmetric input and output state sharing one
// quantization (usually scale 1/128 and zero point 128), 16-bit symmetric cell state (usually at 2^-11), and
// 8-bit asymmetric gate weights sharing one quantization.
//
// It has no optional features: no CIFG, peephole, projection nor layer normalization.
type QuantizedCell struct {
	dims        Dims
	parallelism int

	input, outputState, cellState shapes.Shape
	zeroPoint                     int32
	weightsZeroPoint              int32

	inputWeights, recurrentWeights, bias [numGates][]int32

	// toQ312 converts the gate accumulations (at inputScale*weightsScale) to Q3.12.
	toQ312 quantization.Multiplier

	cellProduct, cellToQ312, hiddenMultiplier quantization.Multiplier

	plan plan[qWorkspace]
}

var _ Cell = &QuantizedCell{}

// NewQuantizedCell creates the 16-bit quantized LSTM cell for the params and the shapes (with quantization) of
// the input, the cell state and the output state.
func NewQuantizedCell(params *backends.QuantizedLstmParams, input, cellState, outputState shapes.Shape, opts Options) (*QuantizedCell, error) {
	w := &params.Weights
	inputWeights := [numGates]*backends.Buffer{w.InputToInputWeights, w.InputToForgetWeights, w.InputToCellWeights, w.InputToOutputWeights}
	recurrentWeights := [numGates]*backends.Buffer{w.RecurrentToInputWeights, w.RecurrentToForgetWeights, w.RecurrentToCellWeights, w.RecurrentToOutputWeights}
	biases := [numGates]*backends.Buffer{w.InputGateBias, w.ForgetGateBias, w.CellBias, w.OutputGateBias}
	for gate := range numGates {
		for _, b := range []*backends.Buffer{inputWeights[gate], recurrentWeights[gate], biases[gate]} {
			if b == nil {
				return nil, Errorf(InvalidParameter, "QuantizedLSTM requires all weights and biases, %s gate is incomplete", gateNames[gate])
			}
		}
	}
	if inputWeights[0].Shape().Rank() != 2 {
		return nil, Errorf(InvalidParameter, "QuantizedLSTM input weights must be [outputSize, inputSize], got %s", inputWeights[0].Shape())
	}
	outputSize, inputSize := inputWeights[0].Shape().Dimensions[0], inputWeights[0].Shape().Dimensions[1]
	d := Dims{InputSize: inputSize, NumUnits: outputSize, OutputSize: outputSize}
	weightsQuantization := inputWeights[0].Shape().Quantization
	for gate := range numGates {
		for _, check := range []struct {
			kind  string
			buf   *backends.Buffer
			dtype dtypes.DType
			dims  []int
		}{
			{"input weights", inputWeights[gate], dtypes.QAsymmU8, []int{outputSize, inputSize}},
			{"recurrent weights", recurrentWeights[gate], dtypes.QAsymmU8, []int{outputSize, outputSize}},
			{"bias", biases[gate], dtypes.Int32, []int{outputSize}},
		} {
			shape := check.buf.Shape()
			if shape.DType != check.dtype || !slices.Equal(shape.Dimensions, check.dims) {
				return nil, Errorf(InvalidParameter, "QuantizedLSTM %s gate %s must be %s%v, got %s",
					gateNames[gate], check.kind, check.dtype, check.dims, shape)
			}
			if check.dtype == dtypes.QAsymmU8 && !shape.Quantization.Equal(weightsQuantization) {
				return nil, Errorf(InvalidParameter, "QuantizedLSTM weights must share one quantization, %s gate %s has %s, expected %s",
					gateNames[gate], check.kind, shape.Quantization, weightsQuantization)
			}
		}
	}
	if err := checkQuantized("QuantizedLSTM", "weights", inputWeights[0].Shape(), dtypes.QAsymmU8); err != nil {
		return nil, err
	}
	for _, check := range []struct {
		name  string
		shape shapes.Shape
		dtype dtypes.DType
	}{{"input", input, dtypes.QAsymmU8}, {"output state", outputState, dtypes.QAsymmU8}, {"cell state", cellState, dtypes.QSymmS16}} {
		if err := checkQuantized("QuantizedLSTM", check.name, check.shape, check.dtype); err != nil {
			return nil, err
		}
	}
	if !input.Quantization.Equal(outputState.Quantization) {
		return nil, Errorf(InvalidParameter, "QuantizedLSTM input (%s) and output state (%s) must share one quantization",
			input.Quantization, outputState.Quantization)
	}

	q := input.Quantization.Tensor()
	weightsQ := weightsQuantization.Tensor()
	cellScale := float64(cellState.Quantization.Tensor().Scale)
	c := &QuantizedCell{
		dims:             d,
		parallelism:      opts.Parallelism,
		input:            input,
		outputState:      outputState,
		cellState:        cellState,
		zeroPoint:        q.ZeroPoint,
		weightsZeroPoint: weightsQ.ZeroPoint,
	}
	for gate := range numGates {
		c.inputWeights[gate] = inputWeights[gate].Ints()
		c.recurrentWeights[gate] = recurrentWeights[gate].Ints()
		c.bias[gate] = biases[gate].Ints()
	}
	var err error
	if c.toQ312, err = multiplierFor(float64(q.Scale) * float64(weightsQ.Scale) * (1 << q312Bits)); err != nil {
		return nil, errors.WithMessage(err, "QuantizedLSTM gate accumulation scale")
	}
	if c.cellProduct, err = multiplierFor(math.Ldexp(1, -2*q015Bits) / cellScale); err != nil {
		return nil, errors.WithMessage(err, "QuantizedLSTM cell state scale")
	}
	if c.cellToQ312, err = multiplierFor(cellScale * (1 << q312Bits)); err != nil {
		return nil, errors.WithMessage(err, "QuantizedLSTM cell state scale")
	}
	if c.hiddenMultiplier, err = multiplierFor(math.Ldexp(1, -2*q015Bits) / float64(q.Scale)); err != nil {
		return nil, errors.WithMessage(err, "QuantizedLSTM output state scale")
	}
	c.compile()
	return c, nil
}

func (c *QuantizedCell) compile() {
	p := &c.plan
	p.add("gate matmuls", func(ws *qWorkspace) {
		for gate := range numGates {
			values := ws.gates[gate]
			gemvInt(c.inputWeights[gate], c.weightsZeroPoint, ws.x, c.zeroPoint, ws.acc)
			for n, acc := range ws.acc {
				values[n] = saturate32(acc + int64(c.bias[gate][n]))
			}
			gemvInt(c.recurrentWeights[gate], c.weightsZeroPoint, ws.hPrev, c.zeroPoint, ws.acc)
			for n, acc := range ws.acc {
				values[n] = saturate16(quantization.MultiplyByQuantizedMultiplier64(int64(values[n])+acc, c.toQ312))
			}
		}
	})
	p.add("gate activations", func(ws *qWorkspace) {
		sigmoid, tanh := sigmoidQ015(), tanhQ015()
		for gate := range numGates {
			table := sigmoid
			if gate == gateCell {
				table = tanh
			}
			values := ws.gates[gate]
			for n, v := range values {
				values[n] = table.lookup(v)
			}
		}
	})
	p.add("cell update", func(ws *qWorkspace) { updateCell(ws, c.cellProduct) })
	p.add("hidden state", func(ws *qWorkspace) {
		hiddenState(ws, tanhQ015(), c.cellToQ312, c.hiddenMultiplier, c.zeroPoint, dtypes.QAsymmU8)
		copy(ws.out, ws.h)
	})
}

// Dims implements Cell.
func (c *QuantizedCell) Dims() Dims { return c.dims }

// Features implements Cell. The quantized cell has none.
func (c *QuantizedCell) Features() Features { return 0 }

// Plan implements Cell.
func (c *QuantizedCell) Plan() []string { return c.plan.names() }

// Step implements Cell.
func (c *QuantizedCell) Step(state *State, x, output *backends.Buffer) error {
	batch, err := checkStateShapes("QuantizedLSTM", c.dims, state, x, output)
	if err != nil {
		return err
	}
	if err = checkRepresentation("QuantizedLSTM", map[string][2]shapes.Shape{
		"input":        {c.input, x.Shape()},
		"output state": {c.outputState, state.Hidden.Shape()},
		"cell state":   {c.cellState, state.Cell.Shape()},
	}); err != nil {
		return err
	}
	inputSize, outputSize := c.dims.InputSize, c.dims.OutputSize
	xs, hs, cs := x.Ints(), state.Hidden.Ints(), state.Cell.Ints()
	err = forEachEntry(c.parallelism, batch, func(b int) error {
		ws := newQWorkspace(c.dims)
		ws.x = xs[b*inputSize : (b+1)*inputSize]
		ws.hPrev = hs[b*outputSize : (b+1)*outputSize]
		ws.cPrev = cs[b*outputSize : (b+1)*outputSize]
		c.plan.run(ws)
		copy(ws.hPrev, ws.out)
		copy(ws.cPrev, ws.c)
		return nil
	})
	if err != nil {
		return err
	}
	state.Hidden.SetInts(hs)
	state.Cell.SetInts(cs)
	copyState(state.Hidden, output, hs)
	return nil
}
