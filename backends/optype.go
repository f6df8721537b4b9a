// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

// OpType is an enum of the operator families that can be supported by a Backend.
//
// It is the tag of the Descriptor tagged union: each OpType has a family specific Params payload.
type OpType int

const (
	OpTypeInvalid OpType = iota
	OpTypeActivation
	OpTypeElementwiseUnary

	// Binary elementwise (broadcasting) families.

	OpTypeAddition
	OpTypeSubtraction
	OpTypeMultiplication
	OpTypeDivision
	OpTypeMaximum
	OpTypeMinimum
	OpTypeComparison

	OpTypeFullyConnected
	OpTypeConvolution2d
	OpTypeDepthwiseConvolution2d
	OpTypePooling2d
	OpTypeBatchNormalization
	OpTypeInstanceNormalization
	OpTypeL2Normalization
	OpTypeSoftmax

	OpTypeReshape
	OpTypePermute
	OpTypeTranspose
	OpTypeConcat
	OpTypePad
	OpTypeResize
	OpTypeSpaceToDepth
	OpTypeDepthToSpace
	OpTypeMean

	OpTypeQuantize
	OpTypeDequantize
	OpTypeConvertFp16ToFp32
	OpTypeConvertFp32ToFp16

	// Recurrent cells.

	OpTypeLstm
	OpTypeUnidirectionalSequenceLstm
	OpTypeQLstm
	OpTypeQuantizedLstm

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

// IsBinary returns whether op is one of the broadcasting binary elementwise families.
func (op OpType) IsBinary() bool {
	return op >= OpTypeAddition && op <= OpTypeComparison
}

// IsAdditive returns whether op combines its operands after rescaling them to a common scale
// (when quantized): addition, subtraction, maximum, minimum and comparison.
func (op OpType) IsAdditive() bool {
	switch op {
	case OpTypeAddition, OpTypeSubtraction, OpTypeMaximum, OpTypeMinimum, OpTypeComparison:
		return true
	}
	return false
}

// IsLayoutSensitive returns whether the semantics of op depend on which axis is the channel axis.
func (op OpType) IsLayoutSensitive() bool {
	switch op {
	case OpTypeConvolution2d, OpTypeDepthwiseConvolution2d, OpTypePooling2d, OpTypeBatchNormalization,
		OpTypeInstanceNormalization, OpTypeL2Normalization, OpTypeResize, OpTypeSpaceToDepth, OpTypeDepthToSpace:
		return true
	}
	return false
}

// IsRecurrent returns whether op is one of the LSTM family cells.
func (op OpType) IsRecurrent() bool {
	return op >= OpTypeLstm && op <= OpTypeQuantizedLstm
}
