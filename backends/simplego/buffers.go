// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"reflect"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// checkSize returns an error if the buffers don't have the same number of elements.
func checkSize(kernel string, input, output *backends.Buffer) error {
	if input.Shape().Size() != output.Shape().Size() {
		return errors.Errorf("%s: input %s and output %s have different sizes", kernel, input.Shape(), output.Shape())
	}
	return nil
}

// sameRepresentation returns whether values of a can be moved to b without conversion.
func sameRepresentation(a, b shapes.Shape) bool {
	return a.DType == b.DType && a.Quantization.Equal(b.Quantization)
}

// asOutput returns input if it is stored like output, or a copy of input converted to the dtype and quantization
// of output otherwise.
func asOutput(input, output *backends.Buffer) *backends.Buffer {
	if sameRepresentation(input.Shape(), output.Shape()) {
		return input
	}
	outShape := output.Shape()
	q := outShape.Quantization
	if q.IsPerChannel() && (q.Axis >= input.Shape().Rank() || input.Shape().Dimensions[q.Axis] != len(q.Params)) {
		q = quantization.PerTensor(q.Tensor().Scale, q.Tensor().ZeroPoint)
	}
	converted := backends.NewBuffer(input.Shape().WithDType(outShape.DType, q))
	converted.SetFloat32s(input.Float32s())
	return converted
}

// convertValues converts (dequantizing and quantizing as needed) input to output.
func convertValues(kernel string, input, output *backends.Buffer) error {
	if err := checkSize(kernel, input, output); err != nil {
		return err
	}
	if sameRepresentation(input.Shape(), output.Shape()) {
		reflect.Copy(reflect.ValueOf(output.Flat()), reflect.ValueOf(input.Flat()))
		return nil
	}
	output.SetFloat32s(input.Float32s())
	return nil
}

// storedValue converts a real value to the storage of the output, for padding.
func storedValue(value float32, shape shapes.Shape) any {
	switch shape.DType {
	case dtypes.Float32:
		return value
	case dtypes.Float16:
		return float16.Fromfloat32(value)
	case dtypes.Bool:
		return value != 0
	}
	var q int32
	if shape.Quantization.IsSet() {
		q = quantization.QuantizeTo(value, shape.Quantization.Tensor(), shape.DType)
	} else {
		q = quantization.Clamp(int64(value), shape.DType)
	}
	switch shape.DType.GoType().Kind() {
	case reflect.Int8:
		return int8(q)
	case reflect.Int16:
		return int16(q)
	case reflect.Uint8:
		return uint8(q)
	}
	return q
}

func gatherFlat[T dtypes.Supported](src, dst []T, srcIndices []int, pad T) {
	for ii, srcIdx := range srcIndices {
		if srcIdx < 0 {
			dst[ii] = pad
		} else {
			dst[ii] = src[srcIdx]
		}
	}
}

// gather sets output[ii] = input[srcIndices[ii]], or padValue where srcIndices[ii] < 0, converting the values to
// the representation of output if needed.
func gather(input, output *backends.Buffer, srcIndices []int, padValue float32) error {
	if len(srcIndices) != output.Shape().Size() {
		return errors.Errorf("gather: %d indices for output %s", len(srcIndices), output.Shape())
	}
	input = asOutput(input, output)
	pad := storedValue(padValue, output.Shape())
	switch dst := output.Flat().(type) {
	case []float32:
		gatherFlat(input.Flat().([]float32), dst, srcIndices, pad.(float32))
	case []float16.Float16:
		gatherFlat(input.Flat().([]float16.Float16), dst, srcIndices, pad.(float16.Float16))
	case []int32:
		gatherFlat(input.Flat().([]int32), dst, srcIndices, pad.(int32))
	case []int16:
		gatherFlat(input.Flat().([]int16), dst, srcIndices, pad.(int16))
	case []int8:
		gatherFlat(input.Flat().([]int8), dst, srcIndices, pad.(int8))
	case []uint8:
		gatherFlat(input.Flat().([]uint8), dst, srcIndices, pad.(uint8))
	case []bool:
		gatherFlat(input.Flat().([]bool), dst, srcIndices, pad.(bool))
	default:
		return errors.Errorf("gather: unsupported storage %T", dst)
	}
	return nil
}

// centered returns the quantized values of b minus their (per-tensor or per-channel) zero point, as int64.
// For non-quantized integer buffers it returns the values.
func centered(b *backends.Buffer) []int64 {
	values := b.Ints()
	out := make([]int64, len(values))
	shape := b.Shape()
	q := shape.Quantization
	if !q.IsSet() {
		for ii, v := range values {
			out[ii] = int64(v)
		}
		return out
	}
	if !q.IsPerChannel() {
		zp := int64(q.Tensor().ZeroPoint)
		for ii, v := range values {
			out[ii] = int64(v) - zp
		}
		return out
	}
	stride := shape.Strides()[q.Axis]
	dim := shape.Dimensions[q.Axis]
	for ii, v := range values {
		out[ii] = int64(v) - int64(q.Params[(ii/stride)%dim].ZeroPoint)
	}
	return out
}

// zeroPoint returns the per-tensor zero point of a shape, 0 if not quantized.
func zeroPoint(shape shapes.Shape) int32 {
	if !shape.Quantization.IsSet() {
		return 0
	}
	return shape.Quantization.Tensor().ZeroPoint
}

// requantizeTo writes the int64 accumulators to the quantized output: multiplied by the multiplier of their channel,
// plus the output zero point, saturated to the output dtype.
//
// channelOf maps a flat output index to its channel; it is only used with more than one multiplier.
func requantizeTo(output *backends.Buffer, acc []int64, multipliers []quantization.Multiplier, channelOf func(int) int) error {
	if len(multipliers) == 0 {
		return errors.Errorf("missing multipliers to requantize output %s", output.Shape())
	}
	outShape := output.Shape()
	zp := int64(zeroPoint(outShape))
	values := make([]int32, len(acc))
	for ii, v := range acc {
		m := multipliers[0]
		if len(multipliers) > 1 {
			m = multipliers[channelOf(ii)]
		}
		values[ii] = quantization.Clamp(int64(quantization.MultiplyByQuantizedMultiplier64(v, m))+zp, outShape.DType)
	}
	output.SetInts(values)
	return nil
}
