// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the descriptor of a tensor operand: its element type (DType), its dimensions
// and, for quantized types, its quantization.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a tensor. Operands have rank 1 to 5.
//   - Axis: is the index of a dimension on a multidimensional tensor.
//   - Dimension: the size of a tensor in one of its axes.
//   - DType: the data type of the unit element in a tensor, see package dtypes.
//   - Quantization: the (scale, zero point) of a quantized tensor, per tensor or per slice of one axis,
//     see package quantization.
//
// Example: a [2, 3] tensor of QAsymmU8 with scale 0.5 and zero point 128 can be described by
// `shapes.MakeQuantized(dtypes.QAsymmU8, quantization.PerTensor(0.5, 128), 2, 3)`.
package shapes

import (
	"fmt"
	"slices"

	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// MaxRank is the largest rank of an operand.
const MaxRank = 5

// Shape describes a tensor operand.
//
// Use Make or MakeQuantized to create a new shape.
type Shape struct {
	DType        dtypes.DType
	Dimensions   []int
	Quantization quantization.Info
}

// Make returns a Shape structure filled with the values given.
// It panics if any dimension is not positive.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{Dimensions: slices.Clone(dimensions), DType: dtype}
	for _, dim := range dimensions {
		if dim <= 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with dimension <= 0", s)
		}
	}
	return s
}

// MakeQuantized returns a Shape of a quantized dtype with the given quantization.
// It panics if any dimension is not positive.
func MakeQuantized(dtype dtypes.DType, q quantization.Info, dimensions ...int) Shape {
	s := Make(dtype, dimensions...)
	s.Quantization = q.Clone()
	return s
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{} will be invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of dimensions.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar, that is there are no dimensions (rank==0).
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// IsQuantized returns whether the DType is quantized.
func (s Shape) IsQuantized() bool { return s.DType.IsQuantized() }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// String implements stringer, pretty-prints the shape.
func (s Shape) String() string {
	var str string
	if s.Rank() == 0 {
		str = fmt.Sprintf("(%s)", s.DType)
	} else {
		str = fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
	}
	if s.Quantization.IsSet() {
		str += " " + s.Quantization.String()
	}
	return str
}

// Size returns the number of elements of DType are needed for this shape. It's the product of all dimensions.
func (s Shape) Size() (size int) {
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// Memory returns the number of bytes used to store a tensor of the given shape.
func (s Shape) Memory() uintptr {
	return uintptr(s.DType.Size()) * uintptr(s.Size())
}

// Equal compares two shapes for equality: dtype, dimensions and quantization are compared.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && s.EqualDimensions(s2) && s.Quantization.Equal(s2.Quantization)
}

// EqualDimensions compares two shapes for equality of dimensions. Dtypes can be different.
func (s Shape) EqualDimensions(s2 Shape) bool {
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() (s2 Shape) {
	s2.DType = s.DType
	s2.Dimensions = slices.Clone(s.Dimensions)
	s2.Quantization = s.Quantization.Clone()
	return
}

// WithDType returns a copy of the shape with the given dtype and quantization.
func (s Shape) WithDType(dtype dtypes.DType, q quantization.Info) Shape {
	s2 := s.Clone()
	s2.DType = dtype
	s2.Quantization = q.Clone()
	return s2
}

// WithDimensions returns a copy of the shape (dtype and quantization) with new dimensions.
//
// Per-channel quantization is kept only if the channel axis still exists with the same dimension.
func (s Shape) WithDimensions(dimensions ...int) Shape {
	s2 := Make(s.DType, dimensions...)
	s2.Quantization = s.Quantization.Clone()
	if q := s.Quantization; q.IsPerChannel() && (q.Axis >= len(dimensions) || dimensions[q.Axis] != len(q.Params)) {
		s2.Quantization = quantization.Info{}
	}
	return s2
}

// Check validates the shape as an operand descriptor: valid dtype, rank in [1, MaxRank] (or 0 if allowScalar),
// positive dimensions and valid quantization.
//
// The returned error carries the kind of the failure, see package errorkind.
func (s Shape) Check(name string, allowScalar bool) error {
	if !s.DType.IsValid() {
		return errorkind.Errorf(errorkind.InvalidParameter, "%s: invalid dtype %s", name, s.DType)
	}
	if s.Rank() > MaxRank || (s.Rank() == 0 && !allowScalar) {
		return errorkind.Errorf(errorkind.UnsupportedConfiguration, "%s: rank %d out of the supported range [1, %d]",
			name, s.Rank(), MaxRank)
	}
	for _, dim := range s.Dimensions {
		if dim <= 0 {
			return errorkind.Errorf(errorkind.InvalidParameter, "%s: dimensions must be positive, got %v", name, s.Dimensions)
		}
	}
	if err := quantization.ValidateInfo(s.Quantization, s.Dimensions, s.DType); err != nil {
		return errors.WithMessagef(err, "%s", name)
	}
	return nil
}
