// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

// This file holds the family specific payloads of a Descriptor (Descriptor.Params).

// ActivationFunction enumerates the functions of the Activation family.
type ActivationFunction int

const (
	// ActivationNone is the zero value: for Activation it is invalid, for the LSTM cells it means TanH.
	ActivationNone ActivationFunction = iota
	ActivationSigmoid
	ActivationReLu

	// ActivationBoundedReLu: min(A, max(B, x)).
	ActivationBoundedReLu

	// ActivationSoftReLu: log(1 + exp(x)).
	ActivationSoftReLu

	// ActivationLeakyReLu: x > 0 ? x : A*x.
	ActivationLeakyReLu
	ActivationAbs
	ActivationSqrt
	ActivationSquare

	// ActivationTanH: A * tanh(B * x).
	ActivationTanH

	// ActivationElu: x >= 0 ? x : A*(exp(x)-1).
	ActivationElu

	// ActivationLinear: A*x + B.
	ActivationLinear

	// ActivationHardSwish: x * relu6(x+3) / 6.
	ActivationHardSwish
)

var activationNames = [...]string{
	"None", "Sigmoid", "ReLu", "BoundedReLu", "SoftReLu", "LeakyReLu", "Abs", "Sqrt", "Square", "TanH", "Elu",
	"Linear", "HardSwish",
}

// String implements fmt.Stringer.
func (f ActivationFunction) String() string {
	if f < 0 || int(f) >= len(activationNames) {
		return "ActivationFunction(?)"
	}
	return activationNames[f]
}

// ActivationParams for OpTypeActivation. The meaning of A and B depends on the function.
type ActivationParams struct {
	Function ActivationFunction
	A, B     float32
}

// UnaryFunction enumerates the functions of the ElementwiseUnary family.
type UnaryFunction int

const (
	UnaryInvalid UnaryFunction = iota
	UnaryAbs
	UnaryExp
	UnaryNeg
	UnaryRsqrt
	UnarySqrt
	UnaryLog
	UnaryFloor
)

var unaryNames = [...]string{"Invalid", "Abs", "Exp", "Neg", "Rsqrt", "Sqrt", "Log", "Floor"}

// String implements fmt.Stringer.
func (f UnaryFunction) String() string {
	if f < 0 || int(f) >= len(unaryNames) {
		return "UnaryFunction(?)"
	}
	return unaryNames[f]
}

// ElementwiseUnaryParams for OpTypeElementwiseUnary.
type ElementwiseUnaryParams struct {
	Function UnaryFunction
}

// ComparisonOperation enumerates the operations of the Comparison family.
type ComparisonOperation int

const (
	CompareEqual ComparisonOperation = iota
	CompareNotEqual
	CompareGreater
	CompareGreaterOrEqual
	CompareLess
	CompareLessOrEqual
)

var comparisonNames = [...]string{"Equal", "NotEqual", "Greater", "GreaterOrEqual", "Less", "LessOrEqual"}

// String implements fmt.Stringer.
func (c ComparisonOperation) String() string {
	if c < 0 || int(c) >= len(comparisonNames) {
		return "ComparisonOperation(?)"
	}
	return comparisonNames[c]
}

// ComparisonParams for OpTypeComparison.
type ComparisonParams struct {
	Operation ComparisonOperation
}

// FullyConnectedParams for OpTypeFullyConnected.
//
// Inputs are x (rank >= 2, flattened to [batch, inputSize]), the weights [inputSize, units] (or [units, inputSize]
// if TransposeWeights) and, if BiasEnabled, the bias [units].
type FullyConnectedParams struct {
	BiasEnabled      bool
	TransposeWeights bool
}

// Padding2d is the explicit padding of the spatial axes.
type Padding2d struct {
	Left, Right, Top, Bottom int
}

// Convolution2dParams for OpTypeConvolution2d.
//
// Inputs are x, the weights and, if BiasEnabled, the bias [outputChannels]. The weights follow the data layout:
// [outputChannels, inputChannels, kernelHeight, kernelWidth] for NCHW, [outputChannels, kernelHeight, kernelWidth,
// inputChannels] for NHWC. Per-channel quantized weights are quantized along axis 0.
type Convolution2dParams struct {
	StrideX, StrideY     int
	DilationX, DilationY int
	Pad                  Padding2d
	BiasEnabled          bool
	Layout               DataLayout
}

// DepthwiseConvolution2dParams for OpTypeDepthwiseConvolution2d.
//
// The weights are [1, kernelHeight, kernelWidth, inputChannels*depthMultiplier] for any data layout, and per-channel
// quantized weights are quantized along axis 3.
type DepthwiseConvolution2dParams Convolution2dParams

// PoolingAlgorithm of Pooling2d.
type PoolingAlgorithm int

const (
	PoolingMax PoolingAlgorithm = iota
	PoolingAverage
	PoolingL2
)

// String implements fmt.Stringer.
func (a PoolingAlgorithm) String() string {
	switch a {
	case PoolingMax:
		return "Max"
	case PoolingAverage:
		return "Average"
	case PoolingL2:
		return "L2"
	}
	return "PoolingAlgorithm(?)"
}

// OutputShapeRounding of the pooled dimensions.
type OutputShapeRounding int

const (
	RoundingFloor OutputShapeRounding = iota
	RoundingCeiling
)

// PaddingMethod tells whether padded values count as elements for the Average and L2 pooling.
type PaddingMethod int

const (
	// PaddingIgnoreValue counts the padding as zero-valued elements.
	PaddingIgnoreValue PaddingMethod = iota

	// PaddingExclude excludes the padding from the element count.
	PaddingExclude
)

// Pooling2dParams for OpTypePooling2d.
type Pooling2dParams struct {
	Algorithm             PoolingAlgorithm
	PoolWidth, PoolHeight int
	StrideX, StrideY      int
	Pad                   Padding2d
	Rounding              OutputShapeRounding
	PaddingMethod         PaddingMethod
	Layout                DataLayout
}

// BatchNormalizationParams for OpTypeBatchNormalization (inference). All slices have one value per channel.
type BatchNormalizationParams struct {
	Mean, Variance, Beta, Gamma []float32
	Eps                         float32
	Layout                      DataLayout
}

// InstanceNormalizationParams for OpTypeInstanceNormalization.
type InstanceNormalizationParams struct {
	Gamma, Beta, Eps float32
	Layout           DataLayout
}

// L2NormalizationParams for OpTypeL2Normalization: normalizes across the channels.
type L2NormalizationParams struct {
	Eps    float32
	Layout DataLayout
}

// SoftmaxParams for OpTypeSoftmax: exp(Beta*x) normalized along Axis (negative axes count from the end).
// If Log is set, it is a LogSoftmax.
type SoftmaxParams struct {
	Beta float32
	Axis int
	Log  bool
}

// ReshapeParams for OpTypeReshape.
type ReshapeParams struct {
	TargetShape []int
}

// PermuteParams for OpTypePermute: source axis i is moved to output axis Mappings[i].
type PermuteParams struct {
	Mappings []int
}

// TransposeParams for OpTypeTranspose: output axis i reads source axis Permutation[i].
type TransposeParams struct {
	Permutation []int
}

// ConcatParams for OpTypeConcat.
type ConcatParams struct {
	Axis int
}

// PadParams for OpTypePad: one (before, after) pair per axis. Value is the real padding value, quantized to the
// output quantization for quantized tensors.
type PadParams struct {
	Padding [][2]int
	Value   float32
}

// ResizeMethod of Resize.
type ResizeMethod int

const (
	ResizeBilinear ResizeMethod = iota
	ResizeNearestNeighbor
)

// ResizeParams for OpTypeResize.
type ResizeParams struct {
	Method                    ResizeMethod
	TargetHeight, TargetWidth int
	AlignCorners              bool
	HalfPixelCenters          bool
	Layout                    DataLayout
}

// SpaceDepthParams for OpTypeSpaceToDepth and OpTypeDepthToSpace.
type SpaceDepthParams struct {
	BlockSize int
	Layout    DataLayout
}

// MeanParams for OpTypeMean. Empty Axes reduce over all axes.
type MeanParams struct {
	Axes     []int
	KeepDims bool
}

// LstmWeights holds the constant tensors of an LSTM cell, with numUnits the cell width, inputSize the input
// width and outputSize the hidden state width (numUnits, unless projection is enabled).
//
// Absent weights are nil: the input gate weights with CIFG, the peephole weights without peephole and so on.
type LstmWeights struct {
	// [numUnits, inputSize]
	InputToInputWeights, InputToForgetWeights, InputToCellWeights, InputToOutputWeights *Buffer

	// [numUnits, outputSize]
	RecurrentToInputWeights, RecurrentToForgetWeights, RecurrentToCellWeights, RecurrentToOutputWeights *Buffer

	// Peephole, [numUnits]. CellToInputWeights is absent with CIFG.
	CellToInputWeights, CellToForgetWeights, CellToOutputWeights *Buffer

	// [numUnits]
	InputGateBias, ForgetGateBias, CellBias, OutputGateBias *Buffer

	// ProjectionWeights [outputSize, numUnits], ProjectionBias (optional) [outputSize].
	ProjectionWeights, ProjectionBias *Buffer

	// Layer normalization gains, [numUnits].
	InputLayerNormWeights, ForgetLayerNormWeights, CellLayerNormWeights, OutputLayerNormWeights *Buffer
}

// LstmParams for OpTypeLstm, OpTypeUnidirectionalSequenceLstm and OpTypeQLstm.
type LstmParams struct {
	// CellActivation is the activation of the cell gate and of the cell output. ActivationNone means TanH.
	CellActivation ActivationFunction

	// ClipCell and ClipProjection bound the cell state and the projection output when > 0.
	ClipCell, ClipProjection float32

	CifgEnabled, PeepholeEnabled, ProjectionEnabled, LayerNormEnabled bool

	// TimeMajor for UnidirectionalSequenceLstm: input is [time, batch, inputSize] instead of [batch, time, inputSize].
	TimeMajor bool

	// QLstm only: scales of the gates' pre-activations (int16), and the quantization of the hidden state
	// (h = o * tanh(c)) before the projection.
	InputIntermediateScale, ForgetIntermediateScale, CellIntermediateScale, OutputIntermediateScale float32
	HiddenStateZeroPoint                                                                           int32
	HiddenStateScale                                                                               float32

	Weights LstmWeights
}

// QuantizedLstmWeights holds the constant tensors of a QuantizedLstm cell. All are required.
type QuantizedLstmWeights struct {
	// QAsymmU8 [outputSize, inputSize].
	InputToInputWeights, InputToForgetWeights, InputToCellWeights, InputToOutputWeights *Buffer

	// QAsymmU8 [outputSize, outputSize], same quantization as the input weights.
	RecurrentToInputWeights, RecurrentToForgetWeights, RecurrentToCellWeights, RecurrentToOutputWeights *Buffer

	// Int32 [outputSize], scale inputScale*weightsScale.
	InputGateBias, ForgetGateBias, CellBias, OutputGateBias *Buffer
}

// QuantizedLstmParams for OpTypeQuantizedLstm.
type QuantizedLstmParams struct {
	Weights QuantizedLstmWeights
}
