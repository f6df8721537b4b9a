// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/gomlx/clbackend/pkg/ml/layers/lstm"
	"github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomLstmParams returns a float LSTM without optional features.
func randomLstmParams(rng *rand.Rand, numUnits, inputSize int) *backends.LstmParams {
	matrix := func(cols int) *backends.Buffer {
		return backends.FromFlat(MS(F32, numUnits, cols), uniform(rng, numUnits*cols, -0.5, 0.5))
	}
	vector := func() *backends.Buffer {
		return backends.FromFlat(MS(F32, numUnits), uniform(rng, numUnits, -0.1, 0.1))
	}
	return &backends.LstmParams{Weights: backends.LstmWeights{
		InputToInputWeights: matrix(inputSize), InputToForgetWeights: matrix(inputSize),
		InputToCellWeights: matrix(inputSize), InputToOutputWeights: matrix(inputSize),
		RecurrentToInputWeights: matrix(numUnits), RecurrentToForgetWeights: matrix(numUnits),
		RecurrentToCellWeights: matrix(numUnits), RecurrentToOutputWeights: matrix(numUnits),
		InputGateBias: vector(), ForgetGateBias: vector(), CellBias: vector(), OutputGateBias: vector(),
	}}
}

func TestLstmWorkload(t *testing.T) {
	const batch, numUnits, inputSize = 2, 4, 3
	rng := rand.New(rand.NewPCG(3, 0))
	params := randomLstmParams(rng, numUnits, inputSize)
	cell := must.M1(lstm.NewFloatCell(params, lstm.Options{}))

	x := backends.FromFlat(MS(F32, batch, inputSize), uniform(rng, batch*inputSize, -1, 1))
	hIn := backends.FromFlat(MS(F32, batch, numUnits), uniform(rng, batch*numUnits, -1, 1))
	cIn := backends.FromFlat(MS(F32, batch, numUnits), uniform(rng, batch*numUnits, -1, 1))
	hInValues, cInValues := slices.Clone(hIn.Float32s()), slices.Clone(cIn.Float32s())

	// Reference: the cell stepped directly on a copy of the states.
	state := &lstm.State{Hidden: hIn.Clone(), Cell: cIn.Clone()}
	want := backends.NewBuffer(MS(F32, batch, numUnits))
	require.NoError(t, cell.Step(state, x, want))

	for _, config := range []string{"parallelism=0", "parallelism=4"} {
		t.Run(config, func(t *testing.T) {
			backend := newBackend(t, config)
			desc := describe(backends.OpTypeLstm, params, []*backends.Buffer{x, hIn, cIn},
				MS(F32, batch, cell.ScratchSize()), MS(F32, batch, numUnits), MS(F32, batch, numUnits), MS(F32, batch, numUnits))
			require.True(t, backend.IsSupported(desc).Ok, backend.IsSupported(desc).Reason)
			outputs := execute(t, backend, desc, x, hIn, cIn)
			assert.InDeltaSlice(t, want.Float32s(), outputs[3].Float32s(), 1e-5)
			assert.InDeltaSlice(t, state.Hidden.Float32s(), outputs[1].Float32s(), 1e-5)
			assert.InDeltaSlice(t, state.Cell.Float32s(), outputs[2].Float32s(), 1e-5)

			// Input states are left untouched.
			assert.Equal(t, hInValues, hIn.Float32s())
			assert.Equal(t, cInValues, cIn.Float32s())
		})
	}

	// Wrong scratch size.
	backend := newBackend(t, "")
	desc := describe(backends.OpTypeLstm, params, []*backends.Buffer{x, hIn, cIn},
		MS(F32, batch, 1), MS(F32, batch, numUnits), MS(F32, batch, numUnits), MS(F32, batch, numUnits))
	assert.False(t, backend.IsSupported(desc).Ok)
}

func TestSequenceLstmWorkload(t *testing.T) {
	const batch, timeSteps, numUnits, inputSize = 2, 3, 4, 3
	rng := rand.New(rand.NewPCG(5, 0))
	params := randomLstmParams(rng, numUnits, inputSize)
	cell := must.M1(lstm.NewFloatCell(params, lstm.Options{}))
	hIn := backends.FromFlat(MS(F32, batch, numUnits), uniform(rng, batch*numUnits, -1, 1))
	cIn := backends.FromFlat(MS(F32, batch, numUnits), uniform(rng, batch*numUnits, -1, 1))

	for _, timeMajor := range []bool{false, true} {
		params.TimeMajor = timeMajor
		xDims, yDims := []int{batch, timeSteps, inputSize}, []int{batch, timeSteps, numUnits}
		if timeMajor {
			xDims, yDims = []int{timeSteps, batch, inputSize}, []int{timeSteps, batch, numUnits}
		}
		x := backends.FromFlat(MS(F32, xDims...), uniform(rng, batch*timeSteps*inputSize, -1, 1))

		state := &lstm.State{Hidden: hIn.Clone(), Cell: cIn.Clone()}
		want := backends.NewBuffer(MS(F32, yDims...))
		require.NoError(t, lstm.RunUnidirectional(context.Background(), cell, state, x, want, timeMajor))

		backend := newBackend(t, "")
		desc := describe(backends.OpTypeUnidirectionalSequenceLstm, params, []*backends.Buffer{x, hIn, cIn}, MS(F32, yDims...))
		outputs := execute(t, backend, desc, x, hIn, cIn)
		assert.InDeltaSlice(t, want.Float32s(), outputs[0].Float32s(), 1e-5, "timeMajor=%v", timeMajor)

		// With the final states.
		desc = describe(backends.OpTypeUnidirectionalSequenceLstm, params, []*backends.Buffer{x, hIn, cIn},
			MS(F32, batch, numUnits), MS(F32, batch, numUnits), MS(F32, yDims...))
		outputs = execute(t, backend, desc, x, hIn, cIn)
		assert.InDeltaSlice(t, state.Hidden.Float32s(), outputs[0].Float32s(), 1e-5)
		assert.InDeltaSlice(t, state.Cell.Float32s(), outputs[1].Float32s(), 1e-5)
		assert.InDeltaSlice(t, want.Float32s(), outputs[2].Float32s(), 1e-5)

		// The output must follow the time layout of the input.
		wrongDims := []int{yDims[1], yDims[0], yDims[2]}
		desc = describe(backends.OpTypeUnidirectionalSequenceLstm, params, []*backends.Buffer{x, hIn, cIn}, MS(F32, wrongDims...))
		assert.False(t, backend.IsSupported(desc).Ok)
	}
}

const (
	stateScale = 1.0 / 128
	cellScale  = 1.0 / 2048
)

// quantizedLstmWeights returns a weights builder for quantized matrices of the given dtype and quantization,
// filling the float weights with the dequantized values.
func quantizedLstmWeights(rng *rand.Rand, dtype dtypes.DType, q quantization.Info) func(qDst, fDst **backends.Buffer, rows, cols int) {
	return func(qDst, fDst **backends.Buffer, rows, cols int) {
		*qDst = backends.FromFloat32s(MQ(dtype, q, rows, cols), uniform(rng, rows*cols, -0.5, 0.5))
		*fDst = backends.FromFloat32s(MS(F32, rows, cols), (*qDst).Float32s())
	}
}

// quantizedLstmBias returns Int32 biases at the scale stateScale^2, filling the float biases with the same values.
func quantizedLstmBias(rng *rand.Rand, size int) func(qDst, fDst **backends.Buffer) {
	return func(qDst, fDst **backends.Buffer) {
		ints := make([]int32, size)
		reals := make([]float32, size)
		for ii := range ints {
			ints[ii] = int32(math.Round(float64(uniform(rng, 1, -0.1, 0.1)[0]) / (stateScale * stateScale)))
			reals[ii] = float32(float64(ints[ii]) * stateScale * stateScale)
		}
		*qDst = backends.FromFlat(MS(dtypes.Int32, size), ints)
		*fDst = backends.FromFloat32s(MS(F32, size), reals)
	}
}

// randomQLstmParams returns QLSTM params without optional features, and the float params with the same
// dequantized values.
func randomQLstmParams(rng *rand.Rand, numUnits, inputSize int) (qParams, fParams *backends.LstmParams) {
	qParams, fParams = &backends.LstmParams{}, &backends.LstmParams{}
	qw, fw := &qParams.Weights, &fParams.Weights
	matrix := quantizedLstmWeights(rng, dtypes.QSymmS8, quantization.PerTensor(stateScale, 0))
	bias := quantizedLstmBias(rng, numUnits)
	matrix(&qw.InputToInputWeights, &fw.InputToInputWeights, numUnits, inputSize)
	matrix(&qw.InputToForgetWeights, &fw.InputToForgetWeights, numUnits, inputSize)
	matrix(&qw.InputToCellWeights, &fw.InputToCellWeights, numUnits, inputSize)
	matrix(&qw.InputToOutputWeights, &fw.InputToOutputWeights, numUnits, inputSize)
	matrix(&qw.RecurrentToInputWeights, &fw.RecurrentToInputWeights, numUnits, numUnits)
	matrix(&qw.RecurrentToForgetWeights, &fw.RecurrentToForgetWeights, numUnits, numUnits)
	matrix(&qw.RecurrentToCellWeights, &fw.RecurrentToCellWeights, numUnits, numUnits)
	matrix(&qw.RecurrentToOutputWeights, &fw.RecurrentToOutputWeights, numUnits, numUnits)
	bias(&qw.InputGateBias, &fw.InputGateBias)
	bias(&qw.ForgetGateBias, &fw.ForgetGateBias)
	bias(&qw.CellBias, &fw.CellBias)
	bias(&qw.OutputGateBias, &fw.OutputGateBias)
	return
}

// randomQuantizedLstmParams returns QuantizedLstm params, and the float params with the same dequantized values.
func randomQuantizedLstmParams(rng *rand.Rand, outputSize, inputSize int) (*backends.QuantizedLstmParams, *backends.LstmParams) {
	qParams, fParams := &backends.QuantizedLstmParams{}, &backends.LstmParams{}
	qw, fw := &qParams.Weights, &fParams.Weights
	matrix := quantizedLstmWeights(rng, dtypes.QAsymmU8, quantization.PerTensor(stateScale, 128))
	bias := quantizedLstmBias(rng, outputSize)
	matrix(&qw.InputToInputWeights, &fw.InputToInputWeights, outputSize, inputSize)
	matrix(&qw.InputToForgetWeights, &fw.InputToForgetWeights, outputSize, inputSize)
	matrix(&qw.InputToCellWeights, &fw.InputToCellWeights, outputSize, inputSize)
	matrix(&qw.InputToOutputWeights, &fw.InputToOutputWeights, outputSize, inputSize)
	matrix(&qw.RecurrentToInputWeights, &fw.RecurrentToInputWeights, outputSize, outputSize)
	matrix(&qw.RecurrentToForgetWeights, &fw.RecurrentToForgetWeights, outputSize, outputSize)
	matrix(&qw.RecurrentToCellWeights, &fw.RecurrentToCellWeights, outputSize, outputSize)
	matrix(&qw.RecurrentToOutputWeights, &fw.RecurrentToOutputWeights, outputSize, outputSize)
	bias(&qw.InputGateBias, &fw.InputGateBias)
	bias(&qw.ForgetGateBias, &fw.ForgetGateBias)
	bias(&qw.CellBias, &fw.CellBias)
	bias(&qw.OutputGateBias, &fw.OutputGateBias)
	return qParams, fParams
}

// floatStep runs the float cell one step on the dequantized values of x and of the states, and returns the
// new state and the output.
func floatStep(t *testing.T, params *backends.LstmParams, x, hIn, cIn *backends.Buffer) (*lstm.State, *backends.Buffer) {
	cell := must.M1(lstm.NewFloatCell(params, lstm.Options{}))
	state := &lstm.State{
		Hidden: backends.FromFloat32s(MS(F32, hIn.Shape().Dimensions...), hIn.Float32s()),
		Cell:   backends.FromFloat32s(MS(F32, cIn.Shape().Dimensions...), cIn.Float32s()),
	}
	output := backends.NewBuffer(state.Hidden.Shape())
	require.NoError(t, cell.Step(state, backends.FromFloat32s(MS(F32, x.Shape().Dimensions...), x.Float32s()), output))
	return state, output
}

func TestQLstmWorkload(t *testing.T) {
	const batch, numUnits, inputSize = 2, 4, 3
	rng := rand.New(rand.NewPCG(7, 0))
	qParams, fParams := randomQLstmParams(rng, numUnits, inputSize)
	stateQ := quantization.PerTensor(stateScale, 0)
	x := backends.FromFloat32s(MQ(dtypes.QAsymmS8, stateQ, batch, inputSize), uniform(rng, batch*inputSize, -0.9, 0.9))
	hIn := backends.FromFloat32s(MQ(dtypes.QAsymmS8, stateQ, batch, numUnits), uniform(rng, batch*numUnits, -0.5, 0.5))
	cIn := backends.FromFloat32s(MQ(S16, quantization.PerTensor(cellScale, 0), batch, numUnits), uniform(rng, batch*numUnits, -1, 1))
	hInValues, cInValues := slices.Clone(hIn.Ints()), slices.Clone(cIn.Ints())

	// Reference: the cell stepped directly on a copy of the states.
	cell := must.M1(lstm.NewQLstmCell(qParams, x.Shape(), hIn.Shape(), cIn.Shape(), lstm.Options{}))
	state := &lstm.State{Hidden: hIn.Clone(), Cell: cIn.Clone()}
	want := backends.NewBuffer(hIn.Shape())
	require.NoError(t, cell.Step(state, x, want))
	fState, fWant := floatStep(t, fParams, x, hIn, cIn)

	for _, config := range []string{"parallelism=0", "parallelism=4"} {
		t.Run(config, func(t *testing.T) {
			backend := newBackend(t, config)
			desc := describe(backends.OpTypeQLstm, qParams, []*backends.Buffer{x, hIn, cIn}, hIn.Shape(), cIn.Shape(), hIn.Shape())
			decision := backend.IsSupported(desc)
			require.True(t, decision.Ok, decision.Reason)
			outputs := execute(t, backend, desc, x, hIn, cIn)
			assert.Equal(t, want.Ints(), outputs[2].Ints())
			assert.Equal(t, state.Hidden.Ints(), outputs[0].Ints())
			assert.Equal(t, state.Cell.Ints(), outputs[1].Ints())
			assert.InDeltaSlice(t, fWant.Float32s(), outputs[2].Float32s(), 0.03)
			assert.InDeltaSlice(t, fState.Cell.Float32s(), outputs[1].Float32s(), 0.02)

			// Input states are left untouched.
			assert.Equal(t, hInValues, hIn.Ints())
			assert.Equal(t, cInValues, cIn.Ints())
		})
	}

	backend := newBackend(t, "")
	// The cell state must be QSymmS16.
	wrongCell := MQ(dtypes.QAsymmS8, stateQ, batch, numUnits)
	desc := &backends.Descriptor{Op: backends.OpTypeQLstm, Params: qParams,
		Inputs:  []shapes.Shape{x.Shape(), hIn.Shape(), wrongCell},
		Outputs: []shapes.Shape{hIn.Shape(), wrongCell, hIn.Shape()}}
	decision := backend.IsSupported(desc)
	assert.False(t, decision.Ok)
	assert.Equal(t, errorkind.InvalidParameter, decision.Kind)

	// Layer normalization enabled without the gains.
	noGains := *qParams
	noGains.LayerNormEnabled = true
	desc = describe(backends.OpTypeQLstm, &noGains, []*backends.Buffer{x, hIn, cIn}, hIn.Shape(), cIn.Shape(), hIn.Shape())
	decision = backend.IsSupported(desc)
	assert.False(t, decision.Ok)
	assert.Equal(t, errorkind.InvalidParameter, decision.Kind)

	// Float weights are rejected.
	desc = describe(backends.OpTypeQLstm, fParams, []*backends.Buffer{x, hIn, cIn}, hIn.Shape(), cIn.Shape(), hIn.Shape())
	assert.False(t, backend.IsSupported(desc).Ok)
}

func TestQuantizedLstmWorkload(t *testing.T) {
	const batch, outputSize, inputSize = 3, 4, 3
	rng := rand.New(rand.NewPCG(11, 0))
	qParams, fParams := randomQuantizedLstmParams(rng, outputSize, inputSize)
	ioQ := quantization.PerTensor(stateScale, 128)
	x := backends.FromFloat32s(MQ(U8, ioQ, batch, inputSize), uniform(rng, batch*inputSize, -0.9, 0.9))
	hIn := backends.FromFloat32s(MQ(U8, ioQ, batch, outputSize), uniform(rng, batch*outputSize, -0.5, 0.5))
	cIn := backends.FromFloat32s(MQ(S16, quantization.PerTensor(cellScale, 0), batch, outputSize), uniform(rng, batch*outputSize, -1, 1))
	hInValues, cInValues := slices.Clone(hIn.Ints()), slices.Clone(cIn.Ints())

	cell := must.M1(lstm.NewQuantizedCell(qParams, x.Shape(), cIn.Shape(), hIn.Shape(), lstm.Options{}))
	state := &lstm.State{Hidden: hIn.Clone(), Cell: cIn.Clone()}
	want := backends.NewBuffer(hIn.Shape())
	require.NoError(t, cell.Step(state, x, want))
	fState, fWant := floatStep(t, fParams, x, hIn, cIn)

	for _, config := range []string{"parallelism=0", "parallelism=4"} {
		t.Run(config, func(t *testing.T) {
			backend := newBackend(t, config)
			desc := describe(backends.OpTypeQuantizedLstm, qParams, []*backends.Buffer{x, cIn, hIn}, cIn.Shape(), hIn.Shape())
			decision := backend.IsSupported(desc)
			require.True(t, decision.Ok, decision.Reason)
			outputs := execute(t, backend, desc, x, cIn, hIn)
			assert.Equal(t, state.Cell.Ints(), outputs[0].Ints())
			assert.Equal(t, want.Ints(), outputs[1].Ints())
			assert.InDeltaSlice(t, fWant.Float32s(), outputs[1].Float32s(), 0.03)
			assert.InDeltaSlice(t, fState.Cell.Float32s(), outputs[0].Float32s(), 0.02)

			assert.Equal(t, hInValues, hIn.Ints())
			assert.Equal(t, cInValues, cIn.Ints())
		})
	}

	backend := newBackend(t, "")
	// A missing weight.
	missing := *qParams
	missing.Weights.InputToCellWeights = nil
	desc := describe(backends.OpTypeQuantizedLstm, &missing, []*backends.Buffer{x, cIn, hIn}, cIn.Shape(), hIn.Shape())
	decision := backend.IsSupported(desc)
	assert.False(t, decision.Ok)
	assert.Equal(t, errorkind.InvalidParameter, decision.Kind)

	// The cell state must be QSymmS16.
	wrongCell := MQ(U8, ioQ, batch, outputSize)
	desc = &backends.Descriptor{Op: backends.OpTypeQuantizedLstm, Params: qParams,
		Inputs:  []shapes.Shape{x.Shape(), wrongCell, hIn.Shape()},
		Outputs: []shapes.Shape{wrongCell, hIn.Shape()}}
	decision = backend.IsSupported(desc)
	assert.False(t, decision.Ok)
	assert.Equal(t, errorkind.InvalidParameter, decision.Kind)

	// Outputs are the cell state and then the output state.
	desc = describe(backends.OpTypeQuantizedLstm, qParams, []*backends.Buffer{x, cIn, hIn}, hIn.Shape(), cIn.Shape())
	assert.False(t, backend.IsSupported(desc).Ok)
}
