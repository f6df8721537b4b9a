// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

//go:generate go tool enumer -type=DType -output=gen_dtype_enumer.go dtype_enum.go

// DType is an enum of the element types of tensors handled by the dispatch layer.
//
// Quantized types store integers whose real value is given by the tensor quantization parameters
// (see package quantization): real = scale * (q - zeroPoint).
type DType int32

const (
	// InvalidDType serves as default (zero) value.
	InvalidDType DType = 0

	// Bool is used for the outputs of comparisons.
	Bool DType = 1

	// Float32 is the IEEE 754 32 bits float.
	Float32 DType = 2

	// Float16 is the IEEE 754 16 bits float, stored as github.com/x448/float16.Float16.
	Float16 DType = 3

	// Int32 is a signed 32 bits integer, also used for quantized biases.
	Int32 DType = 4

	// QAsymmU8 is an asymmetric quantized unsigned 8 bits integer: any zero point in [0, 255].
	QAsymmU8 DType = 5

	// QAsymmS8 is an asymmetric quantized signed 8 bits integer: any zero point in [-128, 127].
	QAsymmS8 DType = 6

	// QSymmS8 is a symmetric quantized signed 8 bits integer: zero point is always 0.
	// Typically used for (per-channel) weights.
	QSymmS8 DType = 7

	// QSymmS16 is a symmetric quantized signed 16 bits integer: zero point is always 0.
	QSymmS16 DType = 8
)

// NumDTypes is the number of DType values, including InvalidDType.
const NumDTypes = 9

// Aliases used by other frameworks.
const (
	F32      = Float32
	F16      = Float16
	S32      = Int32
	Signed32 = Int32
	QASYMM8  = QAsymmU8
	QASYMMS8 = QAsymmS8
	QSYMM8   = QSymmS8
	QSYMM16  = QSymmS16
	Boolean  = Bool
)

// MapOfNames maps the DType names (and their lower-case versions, added in init) to their values.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Bool":         Bool,
	"Float32":      Float32,
	"Float16":      Float16,
	"Int32":        Int32,
	"QAsymmU8":     QAsymmU8,
	"QAsymmS8":     QAsymmS8,
	"QSymmS8":      QSymmS8,
	"QSymmS16":     QSymmS16,
	"F32":          Float32,
	"F16":          Float16,
	"S32":          Int32,
	"Signed32":     Int32,
}
