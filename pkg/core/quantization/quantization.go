// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package quantization implements the affine quantization model: the (scale, zero point) parameters,
// per-tensor or per-channel, the conversion of real values to and from quantized storage, and the
// fixed-point multipliers used to requantize wide integer accumulations into the output type.
//
// A quantized value q represents the real value:
//
//	real = scale * (q - zeroPoint)
//
// Arithmetic on quantized values is always done on (q - zeroPoint) accumulated in a wider integer type
// (int32 for 8-bit inputs, int64 for 16-bit inputs), and converted back to the output with a Multiplier.
package quantization

import (
	"fmt"
	"math"
	"strings"

	"github.com/gomlx/clbackend/pkg/core/dtypes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
)

// Params holds the affine quantization parameters of a tensor (or of one channel of a tensor).
type Params struct {
	Scale     float32
	ZeroPoint int32
}

// String implements fmt.Stringer.
func (p Params) String() string {
	return fmt.Sprintf("{scale=%g, zp=%d}", p.Scale, p.ZeroPoint)
}

// NoAxis is the value of Info.Axis for per-tensor quantization.
const NoAxis = -1

// Info is the quantization of a tensor: either one Params for the whole tensor (Axis == NoAxis) or one
// Params per slice along Axis (per-channel quantization).
//
// The zero value (no Params) means the tensor is not quantized. Use PerTensor or PerChannel to create it.
type Info struct {
	Params []Params
	Axis   int
}

// PerTensor returns a per-tensor quantization Info.
func PerTensor(scale float32, zeroPoint int32) Info {
	return Info{Params: []Params{{Scale: scale, ZeroPoint: zeroPoint}}, Axis: NoAxis}
}

// PerChannel returns a symmetric per-channel quantization Info along axis, one scale per slice.
func PerChannel(axis int, scales ...float32) Info {
	info := Info{Params: make([]Params, len(scales)), Axis: axis}
	for ii, scale := range scales {
		info.Params[ii].Scale = scale
	}
	return info
}

// IsSet returns whether there is any quantization information.
func (info Info) IsSet() bool { return len(info.Params) > 0 }

// IsPerChannel returns whether the quantization has one Params per slice of an axis.
func (info Info) IsPerChannel() bool { return len(info.Params) > 0 && info.Axis != NoAxis }

// Tensor returns the per-tensor Params. For per-channel quantization it returns the first channel's.
// It returns the zero Params if the quantization is not set.
func (info Info) Tensor() Params {
	if len(info.Params) == 0 {
		return Params{}
	}
	return info.Params[0]
}

// Channel returns the Params of the given channel. For per-tensor quantization the channel is ignored.
func (info Info) Channel(channel int) Params {
	if !info.IsPerChannel() {
		return info.Tensor()
	}
	return info.Params[channel]
}

// Scales returns the scales of all channels (or the one scale of a per-tensor quantization).
func (info Info) Scales() []float32 {
	scales := make([]float32, len(info.Params))
	for ii, p := range info.Params {
		scales[ii] = p.Scale
	}
	return scales
}

// Equal returns whether both quantizations are the same.
func (info Info) Equal(other Info) bool {
	if len(info.Params) != len(other.Params) {
		return false
	}
	if len(info.Params) == 0 {
		return true
	}
	if info.Axis != other.Axis {
		return false
	}
	for ii, p := range info.Params {
		if p != other.Params[ii] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (info Info) Clone() Info {
	if len(info.Params) == 0 {
		return Info{}
	}
	return Info{Params: append([]Params(nil), info.Params...), Axis: info.Axis}
}

// String implements fmt.Stringer.
func (info Info) String() string {
	if !info.IsSet() {
		return "unquantized"
	}
	if !info.IsPerChannel() {
		return info.Params[0].String()
	}
	parts := make([]string, 0, len(info.Params))
	for _, p := range info.Params {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("axis %d: [%s]", info.Axis, strings.Join(parts, ", "))
}

// Validate checks that p is a valid quantization for dtype: scale must be finite and positive,
// symmetric types require a zero point of 0 and the zero point must be representable in dtype.
func Validate(p Params, dtype dtypes.DType) error {
	scale := float64(p.Scale)
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return Errorf(InvalidParameter, "quantization scale must be finite and positive, got %g", p.Scale)
	}
	if !dtype.IsQuantized() {
		return nil
	}
	if dtype.IsSymmetric() && p.ZeroPoint != 0 {
		return Errorf(InvalidParameter, "symmetric type %s requires zero point 0, got %d", dtype, p.ZeroPoint)
	}
	if int64(p.ZeroPoint) < dtype.MinInt() || int64(p.ZeroPoint) > dtype.MaxInt() {
		return Errorf(InvalidParameter, "zero point %d out of the range [%d, %d] of %s",
			p.ZeroPoint, dtype.MinInt(), dtype.MaxInt(), dtype)
	}
	return nil
}

// ValidateInfo checks the quantization of a tensor with the given dimensions and dtype.
//
// Quantized dtypes require the quantization to be set. Per-channel quantization requires a valid axis and
// exactly one Params per slice of that axis.
func ValidateInfo(info Info, dimensions []int, dtype dtypes.DType) error {
	if !info.IsSet() {
		if dtype.IsQuantized() {
			return Errorf(InvalidParameter, "tensor of type %s requires quantization parameters", dtype)
		}
		return nil
	}
	if info.IsPerChannel() {
		if info.Axis < 0 || info.Axis >= len(dimensions) {
			return Errorf(InvalidParameter, "per-channel quantization axis %d out of range for rank %d",
				info.Axis, len(dimensions))
		}
		if len(info.Params) != dimensions[info.Axis] {
			return Errorf(InvalidParameter,
				"per-channel quantization has %d (scale, zero point) pairs, but axis %d has dimension %d",
				len(info.Params), info.Axis, dimensions[info.Axis])
		}
	} else if len(info.Params) != 1 {
		return Errorf(InvalidParameter, "per-tensor quantization must have exactly one (scale, zero point), got %d",
			len(info.Params))
	}
	for ii, p := range info.Params {
		if err := Validate(p, dtype); err != nil {
			if info.IsPerChannel() {
				return Errorf(InvalidParameter, "channel %d: %v", ii, err)
			}
			return err
		}
	}
	return nil
}

// roundHalfAwayFromZero returns the rounded real/scale.
func roundHalfAwayFromZero(real float32, scale float32) float64 {
	return math.Round(float64(real) / float64(scale))
}

// Clamp saturates v to the storage range of the integer dtype.
func Clamp(v int64, dtype dtypes.DType) int32 {
	lo, hi := dtype.MinInt(), dtype.MaxInt()
	if v < lo {
		return int32(lo)
	}
	if v > hi {
		return int32(hi)
	}
	return int32(v)
}

// QuantizeTo converts real to the quantized value of dtype, saturated to its storage range.
// The result is returned as int32 and can be converted to the dtype storage type without loss.
func QuantizeTo(real float32, p Params, dtype dtypes.DType) int32 {
	q := roundHalfAwayFromZero(real, p.Scale) + float64(p.ZeroPoint)
	lo, hi := float64(dtype.MinInt()), float64(dtype.MaxInt())
	if math.IsNaN(q) {
		return Clamp(int64(p.ZeroPoint), dtype)
	}
	q = min(max(q, lo), hi)
	return int32(q)
}

// storageRange returns the range of the Go storage type T.
func storageRange[T dtypes.IntegerStorage]() (lo, hi int64) {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return 0, math.MaxUint8
	case int8:
		return math.MinInt8, math.MaxInt8
	case int16:
		return math.MinInt16, math.MaxInt16
	default:
		return math.MinInt32, math.MaxInt32
	}
}

// Quantize converts real to its quantized value stored in T, rounding half away from zero and
// saturating to the range of T.
func Quantize[T dtypes.IntegerStorage](real float32, p Params) T {
	lo, hi := storageRange[T]()
	q := roundHalfAwayFromZero(real, p.Scale) + float64(p.ZeroPoint)
	if math.IsNaN(q) {
		q = float64(p.ZeroPoint)
	}
	q = min(max(q, float64(lo)), float64(hi))
	return T(q)
}

// Dequantize returns the real value represented by q.
func Dequantize[T dtypes.IntegerStorage](q T, p Params) float32 {
	return p.Scale * float32(int32(q)-p.ZeroPoint)
}

// QuantizeSlice quantizes reals into dst, which must have the same length.
func QuantizeSlice[T dtypes.IntegerStorage](reals []float32, p Params, dst []T) {
	for ii, real := range reals {
		dst[ii] = Quantize[T](real, p)
	}
}

// DequantizeSlice dequantizes values into dst, which must have the same length.
func DequantizeSlice[T dtypes.IntegerStorage](values []T, p Params, dst []float32) {
	for ii, q := range values {
		dst[ii] = Dequantize(q, p)
	}
}
