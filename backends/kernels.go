// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/clbackend/pkg/core/quantization"
)

// KernelProvider is the contract of the (external) kernel library that performs the math of a Workload.
//
// Each entry point receives the bound buffers, already in the provider's native layout, and an args
// struct with the shape, stride and multiplier/shift metadata resolved by the workload factory. Buffers carry
// their own shapes, including the quantization of each operand.
//
// Entry points are synchronous, and return an error if the kernel fails.
// Embed notimplemented.Provider to implement only a subset of the entry points.
type KernelProvider interface {
	// Name of the kernel provider.
	Name() string

	Activation(args *ActivationArgs, input, output *Buffer) error
	ElementwiseUnary(args *ElementwiseUnaryArgs, input, output *Buffer) error

	// ElementwiseBinary implements the arithmetic and min/max families, with broadcasting.
	ElementwiseBinary(args *BinaryArgs, lhs, rhs, output *Buffer) error

	// Comparison outputs Bool, with broadcasting.
	Comparison(args *BinaryArgs, lhs, rhs, output *Buffer) error

	// FullyConnected: bias may be nil.
	FullyConnected(args *FullyConnectedArgs, input, weights, bias, output *Buffer) error

	// Convolution2d: bias may be nil.
	Convolution2d(args *ConvolutionArgs, input, weights, bias, output *Buffer) error

	// DepthwiseConvolution2d: bias may be nil.
	DepthwiseConvolution2d(args *ConvolutionArgs, input, weights, bias, output *Buffer) error

	Pooling2d(args *Pooling2dArgs, input, output *Buffer) error
	BatchNormalization(args *BatchNormalizationParams, input, output *Buffer) error
	InstanceNormalization(args *InstanceNormalizationParams, input, output *Buffer) error
	L2Normalization(args *L2NormalizationParams, input, output *Buffer) error
	Softmax(args *SoftmaxArgs, input, output *Buffer) error

	// Copy copies (and requantizes, if needed) input to an output of the same size, used for reshapes.
	Copy(input, output *Buffer) error

	// Permute transposes input to output.
	Permute(args *PermuteArgs, input, output *Buffer) error

	Concat(args *ConcatArgs, inputs []*Buffer, output *Buffer) error
	Pad(args *PadParams, input, output *Buffer) error
	Resize(args *ResizeParams, input, output *Buffer) error
	SpaceToDepth(args *SpaceDepthParams, input, output *Buffer) error
	DepthToSpace(args *SpaceDepthParams, input, output *Buffer) error
	Mean(args *MeanArgs, input, output *Buffer) error

	// Quantize converts a float input to the quantized output.
	Quantize(input, output *Buffer) error

	// Dequantize converts a quantized input to the float output.
	Dequantize(input, output *Buffer) error

	// ConvertDType converts between float types.
	ConvertDType(input, output *Buffer) error
}

// ActivationArgs for KernelProvider.Activation.
type ActivationArgs struct {
	ActivationParams

	// Table is a lookup table for 8-bit quantized inputs: output = Table[q - MinInt(inputDType)].
	// It is nil for float and 16-bit inputs.
	Table []int32
}

// ElementwiseUnaryArgs for KernelProvider.ElementwiseUnary.
type ElementwiseUnaryArgs struct {
	Function UnaryFunction
}

// BinaryArgs for KernelProvider.ElementwiseBinary and KernelProvider.Comparison.
type BinaryArgs struct {
	// Op is the binary family. For OpTypeComparison the Comparison field tells which comparison.
	Op         OpType
	Comparison ComparisonOperation

	// LhsStrides and RhsStrides are the strides of each operand in the output index space (rank of the output),
	// with 0 on broadcast axes: operands are replicated by indexing, never copied.
	LhsStrides, RhsStrides []int

	// Rescale combines quantized operands of additive families (add, subtract, maximum, minimum, comparisons).
	Rescale *quantization.Rescale

	// Product requantizes the product of quantized operands of the multiplication.
	Product *quantization.Multiplier
}

// FullyConnectedArgs for KernelProvider.FullyConnected.
type FullyConnectedArgs struct {
	Batch, InputSize, Units int
	TransposeWeights        bool

	// Multipliers requantize the int32 accumulation to the output: one per unit for per-channel quantized
	// weights, or a single one. Empty for float.
	Multipliers []quantization.Multiplier
}

// ConvolutionArgs for KernelProvider.Convolution2d and KernelProvider.DepthwiseConvolution2d.
type ConvolutionArgs struct {
	// Convolution2dParams in the layout of the buffers given to the kernel.
	Convolution2dParams

	// DepthMultiplier of a depthwise convolution: output channels per input channel.
	DepthMultiplier int

	// Multipliers requantize the int32 accumulation to the output: one per output channel for per-channel
	// quantized weights, or a single one. Empty for float.
	Multipliers []quantization.Multiplier
}

// Pooling2dArgs for KernelProvider.Pooling2d.
type Pooling2dArgs struct {
	Pooling2dParams
}

// SoftmaxArgs for KernelProvider.Softmax.
type SoftmaxArgs struct {
	Beta float32

	// Axis is non-negative.
	Axis int
	Log  bool
}

// PermuteArgs for KernelProvider.Permute: output axis i reads source axis Permutation[i].
type PermuteArgs struct {
	Permutation []int
}

// ConcatArgs for KernelProvider.Concat.
type ConcatArgs struct {
	// Axis is non-negative.
	Axis int
}

// MeanArgs for KernelProvider.Mean.
type MeanArgs struct {
	// Axes to reduce, non-negative and sorted.
	Axes []int
}
