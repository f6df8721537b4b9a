// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/backends/shapeinference"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/gomlx/clbackend/pkg/ml/layers/activations"
	"github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// Aliases:
	F32 = dtypes.Float32
	U8  = dtypes.QAsymmU8
	S8  = dtypes.QAsymmS8

	// MS for MakeShape.
	MS = shapes.Make

	// MQ for a per-tensor quantized shape.
	MQ = func(dtype dtypes.DType, scale float32, zeroPoint int32, dims ...int) shapes.Shape {
		return shapes.MakeQuantized(dtype, quantization.PerTensor(scale, zeroPoint), dims...)
	}
)

func floats(shape shapes.Shape, values ...float32) *backends.Buffer {
	return backends.FromFloat32s(shape, values)
}

func binaryArgs(op backends.OpType, lhs, rhs, output shapes.Shape) *backends.BinaryArgs {
	return &backends.BinaryArgs{
		Op:         op,
		LhsStrides: shapeinference.BroadcastStrides(lhs.Dimensions, output.Dimensions),
		RhsStrides: shapeinference.BroadcastStrides(rhs.Dimensions, output.Dimensions),
	}
}

func TestElementwiseBinary(t *testing.T) {
	p := New(2)

	// Broadcast addition of a 1-element tensor.
	lhs, rhs := floats(MS(F32, 2, 2), 1, 2, 3, 4), floats(MS(F32, 1), 10)
	output := backends.NewBuffer(MS(F32, 2, 2))
	require.NoError(t, p.ElementwiseBinary(binaryArgs(backends.OpTypeAddition, lhs.Shape(), rhs.Shape(), output.Shape()), lhs, rhs, output))
	assert.Equal(t, []float32{11, 12, 13, 14}, backends.Flat[float32](output))

	// Broadcast on both sides: [3, 1] - [1, 2].
	lhs, rhs = floats(MS(F32, 3, 1), 1, 2, 3), floats(MS(F32, 1, 2), 10, 20)
	output = backends.NewBuffer(MS(F32, 3, 2))
	require.NoError(t, p.ElementwiseBinary(binaryArgs(backends.OpTypeSubtraction, lhs.Shape(), rhs.Shape(), output.Shape()), lhs, rhs, output))
	assert.Equal(t, []float32{-9, -19, -8, -18, -7, -17}, backends.Flat[float32](output))

	// Int32 division by zero.
	lhs, rhs = backends.FromFlat(MS(dtypes.Int32, 2), []int32{4, 5}), backends.FromFlat(MS(dtypes.Int32, 2), []int32{2, 0})
	output = backends.NewBuffer(MS(dtypes.Int32, 2))
	err := p.ElementwiseBinary(binaryArgs(backends.OpTypeDivision, lhs.Shape(), rhs.Shape(), output.Shape()), lhs, rhs, output)
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))
}

func TestElementwiseBinaryQuantized(t *testing.T) {
	p := New(1)
	inShape := MQ(U8, 0.5, 128, 2)
	lhs, rhs := floats(inShape, 1, 2), floats(inShape, 0.5, -1)
	output := backends.NewBuffer(MQ(U8, 0.5, 128, 2))
	args := binaryArgs(backends.OpTypeAddition, lhs.Shape(), rhs.Shape(), output.Shape())
	args.Rescale = must.M1(quantization.Combine(output.Shape().Quantization.Tensor(), inShape.Quantization.Tensor(), inShape.Quantization.Tensor()))
	require.NoError(t, p.ElementwiseBinary(args, lhs, rhs, output))
	assert.Equal(t, []int32{131, 130}, output.Ints())

	args.Op = backends.OpTypeMaximum
	output = backends.NewBuffer(output.Shape())
	require.NoError(t, p.ElementwiseBinary(args, lhs, rhs, output))
	assert.InDeltaSlice(t, []float32{1, 2}, output.Float32s(), 0.5)

	sShape := MQ(S8, 0.1, 0, 2)
	lhs, rhs = floats(sShape, 1, -2), floats(sShape, 2, 1.5)
	output = backends.NewBuffer(sShape)
	args = binaryArgs(backends.OpTypeMultiplication, lhs.Shape(), rhs.Shape(), output.Shape())
	product := must.M1(quantization.ProductMultiplier(sShape.Quantization.Tensor(), sShape.Quantization.Tensor(), sShape.Quantization.Tensor()))
	args.Product = &product
	require.NoError(t, p.ElementwiseBinary(args, lhs, rhs, output))
	assert.InDeltaSlice(t, []float32{2, -3}, output.Float32s(), 0.1)

	// Division of quantized values falls back to float32 arithmetic.
	args.Op, args.Product = backends.OpTypeDivision, nil
	output = backends.NewBuffer(sShape)
	require.NoError(t, p.ElementwiseBinary(args, lhs, rhs, output))
	assert.InDeltaSlice(t, []float32{0.5, -1.3}, output.Float32s(), 0.1)
}

func TestComparison(t *testing.T) {
	p := New(1)
	lhs, rhs := floats(MS(F32, 3), 1, 2, 3), floats(MS(F32, 1), 2)
	output := backends.NewBuffer(MS(dtypes.Bool, 3))
	args := binaryArgs(backends.OpTypeComparison, lhs.Shape(), rhs.Shape(), output.Shape())
	args.Comparison = backends.CompareGreater
	require.NoError(t, p.Comparison(args, lhs, rhs, output))
	assert.Equal(t, []bool{false, false, true}, backends.Flat[bool](output))

	// Quantized operands with different scales are compared in a common scale.
	lhs, rhs = floats(MQ(U8, 0.5, 128, 3), 1, 2, 3), floats(MQ(U8, 0.25, 100, 1), 2)
	output = backends.NewBuffer(MS(dtypes.Bool, 3))
	args = binaryArgs(backends.OpTypeComparison, lhs.Shape(), rhs.Shape(), output.Shape())
	args.Comparison = backends.CompareEqual
	lhsParams, rhsParams := lhs.Shape().Quantization.Tensor(), rhs.Shape().Quantization.Tensor()
	args.Rescale = must.M1(quantization.Combine(lhsParams, lhsParams, rhsParams))
	require.NoError(t, p.Comparison(args, lhs, rhs, output))
	assert.Equal(t, []bool{false, true, false}, backends.Flat[bool](output))
}

func TestActivation(t *testing.T) {
	p := New(1)
	input := floats(MS(F32, 3), -1, 0, 2)
	output := backends.NewBuffer(input.Shape())
	require.NoError(t, p.Activation(&backends.ActivationArgs{ActivationParams: backends.ActivationParams{Function: backends.ActivationSigmoid}}, input, output))
	assert.InDeltaSlice(t, []float32{0.26894142, 0.5, 0.880797}, output.Float32s(), 1e-6)

	// 8-bit quantized through a lookup table.
	qShape := MQ(S8, 1, 0, 2)
	input = floats(qShape, -2, 3)
	output = backends.NewBuffer(qShape)
	relu := must.M1(activations.Func(backends.ActivationParams{Function: backends.ActivationReLu}))
	table := activations.QuantizedTable(relu, S8, qShape.Quantization.Tensor(), S8, qShape.Quantization.Tensor())
	require.NoError(t, p.Activation(&backends.ActivationArgs{Table: table}, input, output))
	assert.Equal(t, []int32{0, 3}, output.Ints())
	assert.Error(t, p.Activation(&backends.ActivationArgs{Table: table[:10]}, input, output))

	ints := backends.FromFlat(MS(dtypes.Int32, 2), []int32{-3, 2})
	intsOut := backends.NewBuffer(ints.Shape())
	require.NoError(t, p.ElementwiseUnary(&backends.ElementwiseUnaryArgs{Function: backends.UnaryAbs}, ints, intsOut))
	assert.Equal(t, []int32{3, 2}, intsOut.Ints())
	require.NoError(t, p.ElementwiseUnary(&backends.ElementwiseUnaryArgs{Function: backends.UnaryNeg}, ints, intsOut))
	assert.Equal(t, []int32{3, -2}, intsOut.Ints())

	input = floats(MS(F32, 2), 4, 0.25)
	output = backends.NewBuffer(input.Shape())
	require.NoError(t, p.ElementwiseUnary(&backends.ElementwiseUnaryArgs{Function: backends.UnaryRsqrt}, input, output))
	assert.InDeltaSlice(t, []float32{0.5, 2}, output.Float32s(), 1e-6)
}

func TestFullyConnected(t *testing.T) {
	p := New(1)
	input := floats(MS(F32, 2, 3), 1, 2, 3, 4, 5, 6)
	bias := floats(MS(F32, 2), 0.5, -0.5)
	output := backends.NewBuffer(MS(F32, 2, 2))
	args := &backends.FullyConnectedArgs{Batch: 2, InputSize: 3, Units: 2}
	require.NoError(t, p.FullyConnected(args, input, floats(MS(F32, 3, 2), 1, 0, 0, 1, 1, 1), bias, output))
	assert.Equal(t, []float32{4.5, 4.5, 10.5, 10.5}, backends.Flat[float32](output))

	args.TransposeWeights = true
	output = backends.NewBuffer(MS(F32, 2, 2))
	require.NoError(t, p.FullyConnected(args, input, floats(MS(F32, 2, 3), 1, 0, 1, 0, 1, 1), bias, output))
	assert.Equal(t, []float32{4.5, 4.5, 10.5, 10.5}, backends.Flat[float32](output))

	// Quantized: multiplier = inputScale * weightsScale / outputScale = 1.
	input = floats(MQ(S8, 0.5, 0, 2, 3), 1, 2, 3, 4, 5, 6)
	weights := floats(MQ(dtypes.QSymmS8, 1, 0, 3, 2), 1, 0, 0, 1, 1, 1)
	qBias := backends.FromFlat(MS(dtypes.Int32, 2), []int32{1, -1})
	output = backends.NewBuffer(MQ(S8, 0.5, 0, 2, 2))
	args = &backends.FullyConnectedArgs{Batch: 2, InputSize: 3, Units: 2,
		Multipliers: []quantization.Multiplier{must.M1(quantization.QuantizeMultiplier(1))}}
	require.NoError(t, p.FullyConnected(args, input, weights, qBias, output))
	assert.Equal(t, []int32{9, 9, 21, 21}, output.Ints())

	// Mismatched sizes.
	assert.Error(t, p.FullyConnected(&backends.FullyConnectedArgs{Batch: 3, InputSize: 3, Units: 2}, input, weights, nil, output))
}

func randomFloats(rng *rand.Rand, shape shapes.Shape) *backends.Buffer {
	values := make([]float32, shape.Size())
	for ii := range values {
		values[ii] = rng.Float32()*2 - 1
	}
	return backends.FromFloat32s(shape, values)
}

func permuted(t *testing.T, p *Provider, input *backends.Buffer, permutation []int) *backends.Buffer {
	outShape := must.M1(shapeinference.TransposeOp(input.Shape(), permutation))
	output := backends.NewBuffer(outShape)
	require.NoError(t, p.Permute(&backends.PermuteArgs{Permutation: permutation}, input, output))
	return output
}

func TestConvolutionLayouts(t *testing.T) {
	p := New(4)
	rng := rand.New(rand.NewPCG(1, 2))
	nchwParams := backends.Convolution2dParams{StrideX: 2, StrideY: 1, DilationX: 1, DilationY: 2,
		Pad: backends.Padding2d{Left: 1, Right: 1, Top: 2, Bottom: 0}, BiasEnabled: true, Layout: backends.NCHW}
	input := randomFloats(rng, MS(F32, 2, 3, 6, 5))
	weights := randomFloats(rng, MS(F32, 4, 3, 3, 2))
	bias := randomFloats(rng, MS(F32, 4))
	nchwOutShape := must.M1(shapeinference.Convolution2dOp(input.Shape(), weights.Shape(), &nchwParams))
	nchwOut := backends.NewBuffer(nchwOutShape)
	require.NoError(t, p.Convolution2d(&backends.ConvolutionArgs{Convolution2dParams: nchwParams}, input, weights, bias, nchwOut))

	toNHWC := backends.NCHW.TransposeTo(backends.NHWC)
	nhwcParams := nchwParams
	nhwcParams.Layout = backends.NHWC
	nhwcInput, nhwcWeights := permuted(t, p, input, toNHWC), permuted(t, p, weights, toNHWC)
	nhwcOut := backends.NewBuffer(must.M1(shapeinference.Convolution2dOp(nhwcInput.Shape(), nhwcWeights.Shape(), &nhwcParams)))
	require.NoError(t, p.Convolution2d(&backends.ConvolutionArgs{Convolution2dParams: nhwcParams}, nhwcInput, nhwcWeights, bias, nhwcOut))

	backToNCHW := permuted(t, p, nhwcOut, backends.NHWC.TransposeTo(backends.NCHW))
	assert.Equal(t, nchwOutShape.Dimensions, backToNCHW.Shape().Dimensions)
	assert.InDeltaSlice(t, nchwOut.Float32s(), backToNCHW.Float32s(), 1e-5)
}

func TestConvolution(t *testing.T) {
	p := New(1)
	params := backends.Convolution2dParams{StrideX: 1, StrideY: 1, DilationX: 1, DilationY: 1, Layout: backends.NCHW}
	ones := make([]float32, 9)
	for ii := range ones {
		ones[ii] = 1
	}
	input := backends.FromFloat32s(MS(F32, 1, 1, 3, 3), ones)
	output := backends.NewBuffer(MS(F32, 1, 1, 2, 2))
	require.NoError(t, p.Convolution2d(&backends.ConvolutionArgs{Convolution2dParams: params},
		input, floats(MS(F32, 1, 1, 2, 2), 1, 1, 1, 1), floats(MS(F32, 1), 1), output))
	assert.Equal(t, []float32{5, 5, 5, 5}, backends.Flat[float32](output))

	// Quantized, with per-channel weights: 4 products of 1*1 with multiplier 1*0.5/1.
	qInput := backends.FromFloat32s(MQ(U8, 1, 128, 1, 1, 3, 3), ones)
	qWeights := floats(shapes.MakeQuantized(dtypes.QSymmS8, quantization.PerChannel(0, 0.5), 1, 1, 2, 2), 1, 1, 1, 1)
	qOutput := backends.NewBuffer(MQ(U8, 1, 128, 1, 1, 2, 2))
	multipliers := must.M1(quantization.PerChannelMultipliers(1, []float32{0.5}, 1))
	require.NoError(t, p.Convolution2d(&backends.ConvolutionArgs{Convolution2dParams: params, Multipliers: multipliers},
		qInput, qWeights, nil, qOutput))
	assert.Equal(t, []int32{132, 132, 132, 132}, qOutput.Ints())

	// Depthwise, NHWC, depth multiplier 2.
	input = floats(MS(F32, 1, 2, 2, 2), 1, 2, 1, 2, 1, 2, 1, 2)
	weights := floats(MS(F32, 1, 2, 2, 4), 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	output = backends.NewBuffer(MS(F32, 1, 1, 1, 4))
	params.Layout = backends.NHWC
	require.NoError(t, p.DepthwiseConvolution2d(&backends.ConvolutionArgs{Convolution2dParams: params, DepthMultiplier: 2},
		input, weights, nil, output))
	assert.Equal(t, []float32{4, 4, 8, 8}, backends.Flat[float32](output))
}

func TestPooling2d(t *testing.T) {
	p := New(1)
	values := make([]float32, 16)
	for ii := range values {
		values[ii] = float32(ii)
	}
	input := backends.FromFloat32s(MS(F32, 1, 1, 4, 4), values)
	args := &backends.Pooling2dArgs{Pooling2dParams: backends.Pooling2dParams{
		Algorithm: backends.PoolingMax, PoolWidth: 2, PoolHeight: 2, StrideX: 2, StrideY: 2, Layout: backends.NCHW}}
	output := backends.NewBuffer(MS(F32, 1, 1, 2, 2))
	require.NoError(t, p.Pooling2d(args, input, output))
	assert.Equal(t, []float32{5, 7, 13, 15}, backends.Flat[float32](output))

	args.Algorithm = backends.PoolingAverage
	require.NoError(t, p.Pooling2d(args, input, output))
	assert.Equal(t, []float32{2.5, 4.5, 10.5, 12.5}, backends.Flat[float32](output))

	// Padding counted as zeros or excluded.
	input = floats(MS(F32, 1, 2, 2, 1), 1, 2, 3, 4)
	args = &backends.Pooling2dArgs{Pooling2dParams: backends.Pooling2dParams{
		Algorithm: backends.PoolingAverage, PoolWidth: 2, PoolHeight: 2, StrideX: 1, StrideY: 1,
		Pad: backends.Padding2d{Left: 1, Top: 1}, Layout: backends.NHWC}}
	output = backends.NewBuffer(MS(F32, 1, 2, 2, 1))
	require.NoError(t, p.Pooling2d(args, input, output))
	assert.Equal(t, float32(0.25), backends.Flat[float32](output)[0])
	assert.Equal(t, float32(2.5), backends.Flat[float32](output)[3])
	args.PaddingMethod = backends.PaddingExclude
	require.NoError(t, p.Pooling2d(args, input, output))
	assert.Equal(t, float32(1), backends.Flat[float32](output)[0])

	args.Algorithm = backends.PoolingL2
	args.PaddingMethod = backends.PaddingExclude
	require.NoError(t, p.Pooling2d(args, input, output))
	assert.InDelta(t, 1.0, backends.Flat[float32](output)[0], 1e-6)
}

func TestNormalization(t *testing.T) {
	p := New(1)
	input := floats(MS(F32, 1, 1, 1, 2), 1, 2)
	output := backends.NewBuffer(input.Shape())
	require.NoError(t, p.BatchNormalization(&backends.BatchNormalizationParams{
		Mean: []float32{1, 1}, Variance: []float32{1, 4}, Gamma: []float32{1, 2}, Beta: []float32{0, 1}, Layout: backends.NHWC},
		input, output))
	assert.InDeltaSlice(t, []float32{0, 2}, output.Float32s(), 1e-6)
	assert.Error(t, p.BatchNormalization(&backends.BatchNormalizationParams{Layout: backends.NHWC}, input, output))

	input = floats(MS(F32, 1, 1, 1, 2), 1, 3)
	require.NoError(t, p.InstanceNormalization(&backends.InstanceNormalizationParams{Gamma: 1, Layout: backends.NCHW}, input, output))
	assert.InDeltaSlice(t, []float32{-1, 1}, output.Float32s(), 1e-6)

	input = floats(MS(F32, 1, 1, 1, 2), 3, 4)
	require.NoError(t, p.L2Normalization(&backends.L2NormalizationParams{Eps: 1e-12, Layout: backends.NHWC}, input, output))
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, output.Float32s(), 1e-6)

	input = floats(MS(F32, 2, 2), 1, 1, 0, 2)
	output = backends.NewBuffer(input.Shape())
	require.NoError(t, p.Softmax(&backends.SoftmaxArgs{Beta: 1, Axis: 1}, input, output))
	assert.InDeltaSlice(t, []float32{0.5, 0.5, 0.11920292, 0.880797}, output.Float32s(), 1e-6)
	require.NoError(t, p.Softmax(&backends.SoftmaxArgs{Beta: 1, Axis: 1, Log: true}, input, output))
	assert.InDelta(t, -0.6931472, output.Float32s()[0], 1e-6)
	require.NoError(t, p.Softmax(&backends.SoftmaxArgs{Beta: 1, Axis: 0}, input, output))
	assert.InDeltaSlice(t, []float32{0.7310586, 0.26894142, 0.26894142, 0.7310586}, output.Float32s(), 1e-6)
}

func TestDataMovement(t *testing.T) {
	p := New(1)
	input := floats(MS(F32, 2, 3), 0, 1, 2, 3, 4, 5)
	assert.Equal(t, []float32{0, 3, 1, 4, 2, 5}, backends.Flat[float32](permuted(t, p, input, []int{1, 0})))

	output := backends.NewBuffer(MS(F32, 1, 3))
	require.NoError(t, p.Concat(&backends.ConcatArgs{Axis: 1},
		[]*backends.Buffer{floats(MS(F32, 1, 2), 1, 2), floats(MS(F32, 1, 1), 3)}, output))
	assert.Equal(t, []float32{1, 2, 3}, backends.Flat[float32](output))

	// Inputs with different quantizations are requantized to the output.
	qOutput := backends.NewBuffer(MQ(U8, 1, 0, 4))
	require.NoError(t, p.Concat(&backends.ConcatArgs{Axis: 0},
		[]*backends.Buffer{floats(MQ(U8, 0.5, 10, 2), 1, 2), floats(MQ(U8, 2, 0, 2), 4, 8)}, qOutput))
	assert.Equal(t, []int32{1, 2, 4, 8}, qOutput.Ints())
	assert.Error(t, p.Concat(&backends.ConcatArgs{Axis: 0}, []*backends.Buffer{floats(MQ(U8, 1, 0, 2), 1, 2)}, qOutput))

	output = backends.NewBuffer(MS(F32, 5))
	require.NoError(t, p.Pad(&backends.PadParams{Padding: [][2]int{{1, 2}}, Value: 9}, floats(MS(F32, 2), 1, 2), output))
	assert.Equal(t, []float32{9, 1, 2, 9, 9}, backends.Flat[float32](output))
	qOutput = backends.NewBuffer(MQ(U8, 0.5, 10, 3))
	require.NoError(t, p.Pad(&backends.PadParams{Padding: [][2]int{{0, 1}}}, floats(MQ(U8, 0.5, 10, 2), 1, 2), qOutput))
	assert.Equal(t, []int32{12, 14, 10}, qOutput.Ints())

	for _, layout := range []backends.DataLayout{backends.NCHW, backends.NHWC} {
		args := &backends.SpaceDepthParams{BlockSize: 2, Layout: layout}
		input = floats(MS(F32, layout.MakeDims(1, 1, 2, 2)...), 1, 2, 3, 4)
		depth := backends.NewBuffer(MS(F32, layout.MakeDims(1, 4, 1, 1)...))
		require.NoError(t, p.SpaceToDepth(args, input, depth))
		assert.Equal(t, []float32{1, 2, 3, 4}, backends.Flat[float32](depth))
		space := backends.NewBuffer(input.Shape())
		require.NoError(t, p.DepthToSpace(args, depth, space))
		assert.Equal(t, []float32{1, 2, 3, 4}, backends.Flat[float32](space))
	}

	// Channels are the fastest moving in the depth of SpaceToDepth.
	input = floats(MS(F32, 1, 2, 2, 2), 1, 10, 2, 20, 3, 30, 4, 40)
	depth := backends.NewBuffer(MS(F32, 1, 1, 1, 8))
	require.NoError(t, p.SpaceToDepth(&backends.SpaceDepthParams{BlockSize: 2, Layout: backends.NHWC}, input, depth))
	assert.Equal(t, []float32{1, 10, 2, 20, 3, 30, 4, 40}, backends.Flat[float32](depth))

	output = backends.NewBuffer(MS(F32, 3, 2))
	require.NoError(t, p.Copy(input.Reshaped(MS(F32, 8)).Clone(), backends.NewBuffer(MS(F32, 8))))
	assert.Error(t, p.Copy(input, output))
}

func TestResize(t *testing.T) {
	p := New(1)
	input := floats(MS(F32, 1, 1, 1, 2), 1, 2)
	output := backends.NewBuffer(MS(F32, 1, 1, 1, 4))
	args := &backends.ResizeParams{Method: backends.ResizeNearestNeighbor, TargetHeight: 1, TargetWidth: 4, Layout: backends.NCHW}
	require.NoError(t, p.Resize(args, input, output))
	assert.Equal(t, []float32{1, 1, 2, 2}, backends.Flat[float32](output))

	input = floats(MS(F32, 1, 1, 1, 2), 0, 3)
	args.Method, args.AlignCorners = backends.ResizeBilinear, true
	require.NoError(t, p.Resize(args, input, output))
	assert.InDeltaSlice(t, []float32{0, 1, 2, 3}, output.Float32s(), 1e-6)

	args.AlignCorners = false
	require.NoError(t, p.Resize(args, input, output))
	assert.InDeltaSlice(t, []float32{0, 1.5, 3, 3}, output.Float32s(), 1e-6)
}

func TestMeanAndConversions(t *testing.T) {
	p := New(1)
	input := floats(MS(F32, 2, 3), 1, 2, 3, 4, 5, 6)
	output := backends.NewBuffer(MS(F32, 2))
	require.NoError(t, p.Mean(&backends.MeanArgs{Axes: []int{1}}, input, output))
	assert.Equal(t, []float32{2, 5}, backends.Flat[float32](output))
	output = backends.NewBuffer(MS(F32, 1, 3))
	require.NoError(t, p.Mean(&backends.MeanArgs{Axes: []int{0}}, input, output))
	assert.Equal(t, []float32{2.5, 3.5, 4.5}, backends.Flat[float32](output))
	output = backends.NewBuffer(MS(F32, 1))
	require.NoError(t, p.Mean(&backends.MeanArgs{Axes: []int{0, 1}}, input, output))
	assert.Equal(t, []float32{3.5}, backends.Flat[float32](output))

	input = floats(MS(F32, 2), 2, -1)
	quantized := backends.NewBuffer(MQ(U8, 0.5, 128, 2))
	require.NoError(t, p.Quantize(input, quantized))
	assert.Equal(t, []int32{132, 126}, quantized.Ints())
	dequantized := backends.NewBuffer(MS(F32, 2))
	require.NoError(t, p.Dequantize(quantized, dequantized))
	assert.Equal(t, []float32{2, -1}, backends.Flat[float32](dequantized))
	assert.Error(t, p.Dequantize(input, dequantized))

	half := backends.NewBuffer(MS(dtypes.Float16, 2))
	require.NoError(t, p.ConvertDType(input, half))
	assert.Equal(t, []float32{2, -1}, half.Float32s())
}
