// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the element types handled by the operator dispatch layer:
// floats (Float32, Float16), Int32, Bool and the quantized integer representations
// (QAsymmU8, QAsymmS8, QSymmS8, QSymmS16).
//
// It includes converters to/from Go native types (and reflect.Type), the storage ranges of the quantized
// types and some constraint interfaces to be used with generics.
//
// Go float16 support uses the github.com/x448/float16 implementation.
package dtypes

import (
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters don't follow the specifications.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

func init() {
	// Add a mapping to the lower-case version of dtypes.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if lowerKey == key {
			continue
		}
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// Pre-generate constant reflect.TypeOf for convenience.
var (
	float32Type = reflect.TypeOf(float32(0))
	float16Type = reflect.TypeOf(float16.Float16(0))
	int32Type   = reflect.TypeOf(int32(0))
	int16Type   = reflect.TypeOf(int16(0))
	int8Type    = reflect.TypeOf(int8(0))
	uint8Type   = reflect.TypeOf(uint8(0))
	boolType    = reflect.TypeOf(true)
)

// GoType returns the Go `reflect.Type` used to store elements of the DType.
//
// Notice QAsymmS8 and QSymmS8 share int8 storage: the DType, not the Go type, carries the quantization scheme.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Float32:
		return float32Type
	case Float16:
		return float16Type
	case Int32:
		return int32Type
	case QSymmS16:
		return int16Type
	case QAsymmS8, QSymmS8:
		return int8Type
	case QAsymmU8:
		return uint8Type
	case Bool:
		return boolType
	default:
		panicf("unknown dtype %q (%d) in DType.GoType", dtype, dtype)
		panic(nil)
	}
}

// GoStr converts dtype to the corresponding Go type and convert that to string.
func (dtype DType) GoStr() string {
	return dtype.GoType().Name()
}

// Size returns the number of bytes for one element of the given DType.
func (dtype DType) Size() int {
	return int(dtype.GoType().Size())
}

// Bits returns the number of bits for the given DType.
func (dtype DType) Bits() int {
	return dtype.Size() * 8
}

// SizeForDimensions returns the size in bytes used for the given dimensions.
func (dtype DType) SizeForDimensions(dimensions ...int) int {
	numElements := 1
	for _, dim := range dimensions {
		if dim < 0 {
			panicf("dim cannot be negative for SizeForDimensions, got %v", dimensions)
		}
		numElements *= dim
	}
	return numElements * dtype.Size()
}

// IsFloat returns whether dtype is Float32 or Float16.
func (dtype DType) IsFloat() bool {
	return dtype == Float32 || dtype == Float16
}

// IsQuantized returns whether the values of dtype must be interpreted with quantization parameters.
func (dtype DType) IsQuantized() bool {
	return dtype == QAsymmU8 || dtype == QAsymmS8 || dtype == QSymmS8 || dtype == QSymmS16
}

// IsSymmetric returns whether dtype is a symmetric quantized type, whose zero point must always be 0.
func (dtype DType) IsSymmetric() bool {
	return dtype == QSymmS8 || dtype == QSymmS16
}

// IsQuantized8 returns whether dtype is one of the 8 bits quantized types.
func (dtype DType) IsQuantized8() bool {
	return dtype == QAsymmU8 || dtype == QAsymmS8 || dtype == QSymmS8
}

// IsInteger returns whether the storage of dtype is an integer: Int32 and all the quantized types.
func (dtype DType) IsInteger() bool {
	return dtype == Int32 || dtype.IsQuantized()
}

// IsUnsigned returns whether the storage of dtype is an unsigned integer.
func (dtype DType) IsUnsigned() bool {
	return dtype == QAsymmU8
}

// IsValid returns whether dtype is one of the defined DTypes (other than InvalidDType).
func (dtype DType) IsValid() bool {
	return dtype > InvalidDType && int(dtype) < NumDTypes
}

// MinInt returns the lowest value representable by an integer dtype.
// It panics for non-integer dtypes.
func (dtype DType) MinInt() int64 {
	switch dtype {
	case Int32:
		return math.MinInt32
	case QSymmS16:
		return math.MinInt16
	case QAsymmS8, QSymmS8:
		return math.MinInt8
	case QAsymmU8:
		return 0
	default:
		panicf("DType.MinInt() not defined for %s", dtype)
		panic(nil)
	}
}

// MaxInt returns the highest value representable by an integer dtype.
// It panics for non-integer dtypes.
func (dtype DType) MaxInt() int64 {
	switch dtype {
	case Int32:
		return math.MaxInt32
	case QSymmS16:
		return math.MaxInt16
	case QAsymmS8, QSymmS8:
		return math.MaxInt8
	case QAsymmU8:
		return math.MaxUint8
	default:
		panicf("DType.MaxInt() not defined for %s", dtype)
		panic(nil)
	}
}

// FromGoType returns the "natural" DType for the given "reflect.Type".
//
// Notice int8 maps to QAsymmS8, int16 to QSymmS16 and uint8 to QAsymmU8, since those are the
// only DTypes with those storages. It returns InvalidDType for unknown types.
func FromGoType(t reflect.Type) DType {
	switch t {
	case float32Type:
		return Float32
	case float16Type:
		return Float16
	case int32Type:
		return Int32
	case int16Type:
		return QSymmS16
	case int8Type:
		return QAsymmS8
	case uint8Type:
		return QAsymmU8
	case boolType:
		return Bool
	}
	return InvalidDType
}

// FromAny introspects the underlying type of any and returns the corresponding DType.
func FromAny(value any) DType {
	return FromGoType(reflect.TypeOf(value))
}

// StorageMatches returns whether the Go slice type of flat can hold elements of dtype.
func (dtype DType) StorageMatches(flat any) bool {
	t := reflect.TypeOf(flat)
	return t != nil && t.Kind() == reflect.Slice && t.Elem() == dtype.GoType()
}

// Supported lists the Go storage types of the DTypes. Used as traits for generics.
type Supported interface {
	bool | float16.Float16 | float32 | int8 | int16 | int32 | uint8
}

// QuantizedStorage lists the Go storage types of the quantized DTypes.
type QuantizedStorage interface {
	int8 | int16 | uint8
}

// IntegerStorage lists the Go storage types of the integer DTypes (quantized and Int32).
type IntegerStorage interface {
	int8 | int16 | int32 | uint8
}

// Number represents the Go numeric types, including the wider accumulators int64 and float64.
type Number interface {
	constraints.Integer | constraints.Float
}
