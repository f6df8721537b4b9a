// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package quantization

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/gomlx/clbackend/pkg/core/dtypes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
)

// Multiplier is a positive real multiplier represented in fixed-point: a Q31 mantissa Value in [2^30, 2^31)
// and a power-of-two Shift, such that real ≈ Value * 2^(Shift-31).
//
// A positive Shift is a left shift, a negative one a right shift.
type Multiplier struct {
	Value int32
	Shift int
}

// Float returns the real value represented by the multiplier.
func (m Multiplier) Float() float64 {
	return math.Ldexp(float64(m.Value), m.Shift-31)
}

// String implements fmt.Stringer.
func (m Multiplier) String() string {
	return fmt.Sprintf("%d*2^(%d-31)", m.Value, m.Shift)
}

// QuantizeMultiplier decomposes a positive real multiplier into a Multiplier.
//
// Multipliers so small they underflow the representation become 0. Multipliers >= 2^30 can't be represented and
// are an InvalidParameter.
func QuantizeMultiplier(real float64) (Multiplier, error) {
	if math.IsNaN(real) || math.IsInf(real, 0) || real <= 0 {
		return Multiplier{}, Errorf(InvalidParameter, "quantized multiplier must be finite and positive, got %g", real)
	}
	frac, shift := math.Frexp(real)
	value := int64(math.Round(frac * (1 << 31)))
	if value == 1<<31 {
		value /= 2
		shift++
	}
	if shift < -31 {
		return Multiplier{}, nil
	}
	if shift > 30 {
		return Multiplier{}, Errorf(InvalidParameter, "quantized multiplier %g too large to be represented", real)
	}
	return Multiplier{Value: int32(value), Shift: shift}, nil
}

// SaturatingRoundingDoublingHighMul returns the high 32 bits of 2*a*b, rounded to nearest, saturating the only
// overflow case (a == b == math.MinInt32).
func SaturatingRoundingDoublingHighMul(a, b int32) int32 {
	if a == b && a == math.MinInt32 {
		return math.MaxInt32
	}
	ab := int64(a) * int64(b)
	nudge := int64(1 << 30)
	if ab < 0 {
		nudge = 1 - (1 << 30)
	}
	return int32((ab + nudge) / (1 << 31))
}

// RoundingDivideByPOT returns x / 2^exponent rounded to nearest, ties away from zero.
func RoundingDivideByPOT(x int32, exponent int) int32 {
	if exponent <= 0 {
		return x
	}
	mask := int32((int64(1) << exponent) - 1)
	remainder := x & mask
	threshold := mask >> 1
	if x < 0 {
		threshold++
	}
	result := x >> exponent
	if remainder > threshold {
		result++
	}
	return result
}

// MultiplyByQuantizedMultiplier returns x * m, rounded to nearest, saturating on overflow.
func MultiplyByQuantizedMultiplier(x int32, m Multiplier) int32 {
	if m.Shift > 0 {
		// Multipliers > 1 can overflow int32 before the high-mul.
		return MultiplyByQuantizedMultiplier64(int64(x), m)
	}
	return RoundingDivideByPOT(SaturatingRoundingDoublingHighMul(x, m.Value), -m.Shift)
}

// MultiplyByQuantizedMultiplier64 returns x * m for a 64-bit accumulation (used with 16-bit inputs), rounded to
// nearest with ties away from zero, and saturated to the int32 range.
func MultiplyByQuantizedMultiplier64(x int64, m Multiplier) int32 {
	if m.Value == 0 || x == 0 {
		return 0
	}
	totalShift := uint(31 - m.Shift)
	negative := x < 0
	ux := uint64(x)
	if negative {
		ux = uint64(-x)
	}
	hi, lo := bits.Mul64(ux, uint64(m.Value))
	var carry uint64
	lo, carry = bits.Add64(lo, uint64(1)<<(totalShift-1), 0)
	hi += carry
	if hi>>totalShift != 0 {
		if negative {
			return math.MinInt32
		}
		return math.MaxInt32
	}
	magnitude := (hi << (64 - totalShift)) | (lo >> totalShift)
	if negative {
		if magnitude > -math.MinInt32 {
			return math.MinInt32
		}
		return int32(-int64(magnitude))
	}
	if magnitude > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(magnitude)
}

// Requantize returns the multiplier that converts (q - input.ZeroPoint) to the output scale:
// input.Scale / output.Scale. The output zero point must be added by the caller.
func Requantize(input, output Params) (Multiplier, error) {
	if err := Validate(input, dtypes.InvalidDType); err != nil {
		return Multiplier{}, err
	}
	if err := Validate(output, dtypes.InvalidDType); err != nil {
		return Multiplier{}, err
	}
	return QuantizeMultiplier(float64(input.Scale) / float64(output.Scale))
}

// ProductMultiplier returns the multiplier converting the product (qa - za) * (qb - zb) to the output scale:
// a.Scale * b.Scale / output.Scale.
func ProductMultiplier(output, a, b Params) (Multiplier, error) {
	for _, p := range []Params{output, a, b} {
		if err := Validate(p, dtypes.InvalidDType); err != nil {
			return Multiplier{}, err
		}
	}
	return QuantizeMultiplier(float64(a.Scale) * float64(b.Scale) / float64(output.Scale))
}

// PerChannelMultipliers returns for each output channel c the multiplier inputScale * weightScales[c] / outputScale,
// used to requantize per-channel quantized convolution accumulations.
func PerChannelMultipliers(inputScale float32, weightScales []float32, outputScale float32) ([]Multiplier, error) {
	if err := Validate(Params{Scale: inputScale}, dtypes.InvalidDType); err != nil {
		return nil, err
	}
	if err := Validate(Params{Scale: outputScale}, dtypes.InvalidDType); err != nil {
		return nil, err
	}
	multipliers := make([]Multiplier, len(weightScales))
	for c, weightScale := range weightScales {
		if err := Validate(Params{Scale: weightScale}, dtypes.InvalidDType); err != nil {
			return nil, Errorf(InvalidParameter, "weight channel %d: %v", c, err)
		}
		var err error
		multipliers[c], err = QuantizeMultiplier(float64(inputScale) * float64(weightScale) / float64(outputScale))
		if err != nil {
			return nil, Errorf(InvalidParameter, "weight channel %d: %v", c, err)
		}
	}
	return multipliers, nil
}
