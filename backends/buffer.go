// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"reflect"

	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/x448/float16"
)

// Buffer holds a shape and a reference to the flat data of a tensor.
//
// Buffers are owned by the caller: workloads borrow them for the duration of an execution.
type Buffer struct {
	shape shapes.Shape

	// flat is always a slice of the Go storage type of shape.DType.
	flat any
}

// NewBuffer allocates a zero-initialized buffer for the given shape.
func NewBuffer(shape shapes.Shape) *Buffer {
	if !shape.Ok() {
		exceptions.Panicf("NewBuffer: invalid shape %s", shape)
	}
	size := shape.Size()
	return &Buffer{
		shape: shape.Clone(),
		flat:  reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), size, size).Interface(),
	}
}

// FromFlat creates a Buffer that uses the given flat slice as storage (it is not copied).
//
// It panics if flat is not a slice of the shape's DType storage type or if its length doesn't match the shape size.
func FromFlat(shape shapes.Shape, flat any) *Buffer {
	if !shape.DType.StorageMatches(flat) {
		exceptions.Panicf("FromFlat: flat data of type %T can't be used for shape %s (storage %s)",
			flat, shape, shape.DType.GoStr())
	}
	if length := reflect.ValueOf(flat).Len(); length != shape.Size() {
		exceptions.Panicf("FromFlat: flat data has %d elements, but shape %s has %d", length, shape, shape.Size())
	}
	return &Buffer{shape: shape.Clone(), flat: flat}
}

// FromFloat32s creates a Buffer for the shape with the given real values converted (and quantized, if the
// shape is quantized) to the shape's DType.
func FromFloat32s(shape shapes.Shape, values []float32) *Buffer {
	b := NewBuffer(shape)
	b.SetFloat32s(values)
	return b
}

// Shape of the buffer.
func (b *Buffer) Shape() shapes.Shape { return b.shape }

// Flat returns the flat storage, a slice of the shape's DType Go storage type.
func (b *Buffer) Flat() any { return b.flat }

// Reshaped returns a Buffer sharing the same storage with a different shape of the same size.
func (b *Buffer) Reshaped(shape shapes.Shape) *Buffer {
	if shape.DType != b.shape.DType || shape.Size() != b.shape.Size() {
		exceptions.Panicf("Buffer.Reshaped: can't reshape %s to %s", b.shape, shape)
	}
	return &Buffer{shape: shape.Clone(), flat: b.flat}
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	b2 := NewBuffer(b.shape)
	reflect.Copy(reflect.ValueOf(b2.flat), reflect.ValueOf(b.flat))
	return b2
}

// Flat returns the flat storage of the buffer as a []T. It panics if T is not the storage type of the buffer.
func Flat[T dtypes.Supported](b *Buffer) []T {
	flat, ok := b.flat.([]T)
	if !ok {
		exceptions.Panicf("buffer of shape %s has storage %T, not %T", b.shape, b.flat, flat)
	}
	return flat
}

// channelOf returns a function that maps a flat index to the per-channel quantization Params.
func channelOf(shape shapes.Shape) func(flatIdx int) quantization.Params {
	q := shape.Quantization
	if !q.IsPerChannel() {
		p := q.Tensor()
		return func(int) quantization.Params { return p }
	}
	stride := shape.Strides()[q.Axis]
	dim := shape.Dimensions[q.Axis]
	return func(flatIdx int) quantization.Params { return q.Params[(flatIdx/stride)%dim] }
}

func dequantizeInto[T dtypes.IntegerStorage](flat []T, shape shapes.Shape, out []float32) {
	if !shape.Quantization.IsSet() {
		for ii, v := range flat {
			out[ii] = float32(v)
		}
		return
	}
	if !shape.Quantization.IsPerChannel() {
		quantization.DequantizeSlice(flat, shape.Quantization.Tensor(), out)
		return
	}
	paramsOf := channelOf(shape)
	for ii, v := range flat {
		out[ii] = quantization.Dequantize(v, paramsOf(ii))
	}
}

func quantizeFrom[T dtypes.IntegerStorage](values []float32, shape shapes.Shape, flat []T) {
	if !shape.Quantization.IsSet() {
		lo, hi := float32(shape.DType.MinInt()), float32(shape.DType.MaxInt())
		for ii, v := range values {
			flat[ii] = T(min(max(v, lo), hi))
		}
		return
	}
	paramsOf := channelOf(shape)
	for ii, v := range values {
		flat[ii] = T(quantization.QuantizeTo(v, paramsOf(ii), shape.DType))
	}
}

// Float32s returns the real values of the buffer: floats converted to float32, quantized values dequantized
// and booleans as 0 or 1.
func (b *Buffer) Float32s() []float32 {
	out := make([]float32, b.shape.Size())
	switch flat := b.flat.(type) {
	case []float32:
		copy(out, flat)
	case []float16.Float16:
		for ii, v := range flat {
			out[ii] = v.Float32()
		}
	case []int32:
		dequantizeInto(flat, b.shape, out)
	case []int16:
		dequantizeInto(flat, b.shape, out)
	case []int8:
		dequantizeInto(flat, b.shape, out)
	case []uint8:
		dequantizeInto(flat, b.shape, out)
	case []bool:
		for ii, v := range flat {
			if v {
				out[ii] = 1
			}
		}
	default:
		exceptions.Panicf("Buffer.Float32s: unsupported storage %T", b.flat)
	}
	return out
}

// SetFloat32s sets the buffer contents from real values: converted for floats, quantized (round half away from
// zero, saturating) for quantized types, truncated for Int32 and compared to 0 for Bool.
func (b *Buffer) SetFloat32s(values []float32) {
	if len(values) != b.shape.Size() {
		exceptions.Panicf("Buffer.SetFloat32s: got %d values for shape %s", len(values), b.shape)
	}
	switch flat := b.flat.(type) {
	case []float32:
		copy(flat, values)
	case []float16.Float16:
		for ii, v := range values {
			flat[ii] = float16.Fromfloat32(v)
		}
	case []int32:
		quantizeFrom(values, b.shape, flat)
	case []int16:
		quantizeFrom(values, b.shape, flat)
	case []int8:
		quantizeFrom(values, b.shape, flat)
	case []uint8:
		quantizeFrom(values, b.shape, flat)
	case []bool:
		for ii, v := range values {
			flat[ii] = v != 0
		}
	default:
		exceptions.Panicf("Buffer.SetFloat32s: unsupported storage %T", b.flat)
	}
}

// Ints returns the stored integer values (not dequantized) of an integer buffer, as int32.
func (b *Buffer) Ints() []int32 {
	out := make([]int32, b.shape.Size())
	switch flat := b.flat.(type) {
	case []int32:
		copy(out, flat)
	case []int16:
		for ii, v := range flat {
			out[ii] = int32(v)
		}
	case []int8:
		for ii, v := range flat {
			out[ii] = int32(v)
		}
	case []uint8:
		for ii, v := range flat {
			out[ii] = int32(v)
		}
	default:
		exceptions.Panicf("Buffer.Ints: storage %T is not an integer", b.flat)
	}
	return out
}

// SetInts sets the stored integer values (not quantized) of an integer buffer, saturating to the dtype range.
func (b *Buffer) SetInts(values []int32) {
	if len(values) != b.shape.Size() {
		exceptions.Panicf("Buffer.SetInts: got %d values for shape %s", len(values), b.shape)
	}
	dtype := b.shape.DType
	switch flat := b.flat.(type) {
	case []int32:
		copy(flat, values)
	case []int16:
		for ii, v := range values {
			flat[ii] = int16(quantization.Clamp(int64(v), dtype))
		}
	case []int8:
		for ii, v := range values {
			flat[ii] = int8(quantization.Clamp(int64(v), dtype))
		}
	case []uint8:
		for ii, v := range values {
			flat[ii] = uint8(quantization.Clamp(int64(v), dtype))
		}
	default:
		exceptions.Panicf("Buffer.SetInts: storage %T is not an integer", b.flat)
	}
}
