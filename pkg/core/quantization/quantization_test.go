// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package quantization

import (
	"math"
	"testing"

	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantizeDequantize(t *testing.T) {
	p := Params{Scale: 0.5, ZeroPoint: 128}
	q := Quantize[uint8](2.0, p)
	assert.Equal(t, uint8(132), q)
	assert.Equal(t, float32(2.0), Dequantize(q, p))
	assert.Equal(t, int32(132), QuantizeTo(2.0, p, dtypes.QAsymmU8))

	// Saturation and rounding half away from zero.
	assert.Equal(t, uint8(255), Quantize[uint8](1000, p))
	assert.Equal(t, uint8(0), Quantize[uint8](-1000, p))
	assert.Equal(t, int8(-2), Quantize[int8](-0.75, p.withZeroPoint(0)))
	assert.Equal(t, int8(2), Quantize[int8](0.75, p.withZeroPoint(0)))
	assert.Equal(t, int32(127), QuantizeTo(1e6, Params{Scale: 1}, dtypes.QSymmS8))
}

func (p Params) withZeroPoint(zp int32) Params {
	p.ZeroPoint = zp
	return p
}

func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		dtype dtypes.DType
		p     Params
	}{
		{dtypes.QAsymmU8, Params{Scale: 0.1, ZeroPoint: 10}},
		{dtypes.QAsymmU8, Params{Scale: 1.0 / 128, ZeroPoint: 128}},
		{dtypes.QAsymmS8, Params{Scale: 0.037, ZeroPoint: -7}},
		{dtypes.QSymmS8, Params{Scale: 0.25}},
		{dtypes.QSymmS16, Params{Scale: 1.0 / 2048}},
	}
	for _, tc := range testCases {
		lo := tc.p.Scale * float32(tc.dtype.MinInt()-int64(tc.p.ZeroPoint))
		hi := tc.p.Scale * float32(tc.dtype.MaxInt()-int64(tc.p.ZeroPoint))
		const numSteps = 997
		for step := range numSteps + 1 {
			real := lo + (hi-lo)*float32(step)/numSteps
			real = min(max(real, lo), hi)
			q := QuantizeTo(real, tc.p, tc.dtype)
			got := tc.p.Scale * float32(q-tc.p.ZeroPoint)
			require.InDeltaf(t, real, got, float64(tc.p.Scale)*0.5+1e-5,
				"%s %s: round trip of %g", tc.dtype, tc.p, real)
		}
	}
}

func TestValidate(t *testing.T) {
	for _, scale := range []float32{0, -1, float32(math.NaN()), float32(math.Inf(1))} {
		err := Validate(Params{Scale: scale}, dtypes.QAsymmU8)
		require.Error(t, err)
		assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))
	}
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(Validate(Params{Scale: 1, ZeroPoint: 1}, dtypes.QSymmS16)))
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(Validate(Params{Scale: 1, ZeroPoint: 300}, dtypes.QAsymmU8)))
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(Validate(Params{Scale: 1, ZeroPoint: -1}, dtypes.QAsymmU8)))
	assert.NoError(t, Validate(Params{Scale: 1, ZeroPoint: -1}, dtypes.QAsymmS8))
	assert.NoError(t, Validate(Params{Scale: 0.5}, dtypes.QSymmS16))
}

func TestValidateInfo(t *testing.T) {
	dims := []int{4, 3, 3, 2}
	assert.NoError(t, ValidateInfo(PerChannel(0, 0.1, 0.2, 0.3, 0.4), dims, dtypes.QSymmS8))
	err := ValidateInfo(PerChannel(0, 0.1, 0.2, 0.3), dims, dtypes.QSymmS8)
	require.Error(t, err)
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))
	assert.Contains(t, err.Error(), "3 (scale, zero point) pairs")

	assert.Error(t, ValidateInfo(PerChannel(7, 0.1), dims, dtypes.QSymmS8))
	assert.Error(t, ValidateInfo(Info{}, dims, dtypes.QAsymmU8))
	assert.NoError(t, ValidateInfo(Info{}, dims, dtypes.Float32))
	assert.Error(t, ValidateInfo(PerChannel(0, 0.1, 0, 0.3, 0.4), dims, dtypes.QSymmS8))

	info := PerTensor(0.5, 3)
	assert.False(t, info.IsPerChannel())
	assert.Equal(t, Params{Scale: 0.5, ZeroPoint: 3}, info.Channel(2))
	assert.True(t, info.Equal(info.Clone()))
	assert.False(t, info.Equal(PerTensor(0.5, 4)))
}

func TestQuantizeMultiplier(t *testing.T) {
	for _, real := range []float64{0.0003, 0.25, 0.5, 0.75, 1.0, 3.7, 1234.5} {
		m := must.M1(QuantizeMultiplier(real))
		assert.InDeltaf(t, 0, math.Abs(m.Float()-real)/real, 1e-9, "multiplier %g -> %s", real, m)
		assert.GreaterOrEqual(t, m.Value, int32(1<<30))
	}
	_, err := QuantizeMultiplier(0)
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))
	_, err = QuantizeMultiplier(math.Inf(1))
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))

	assert.Equal(t, int32(50), MultiplyByQuantizedMultiplier(100, must.M1(QuantizeMultiplier(0.5))))
	assert.Equal(t, int32(2), MultiplyByQuantizedMultiplier(7, must.M1(QuantizeMultiplier(0.25))))
	assert.Equal(t, int32(30), MultiplyByQuantizedMultiplier(10, must.M1(QuantizeMultiplier(3.0))))
	assert.Equal(t, int32(math.MaxInt32), MultiplyByQuantizedMultiplier(math.MaxInt32, must.M1(QuantizeMultiplier(3.0))))
	assert.Equal(t, int32(math.MinInt32), MultiplyByQuantizedMultiplier(math.MinInt32+1, must.M1(QuantizeMultiplier(3.0))))

	m := must.M1(QuantizeMultiplier(math.Ldexp(1, -10)))
	assert.Equal(t, int32(1<<30), MultiplyByQuantizedMultiplier64(1<<40, m))
	assert.Equal(t, int32(-(1 << 30)), MultiplyByQuantizedMultiplier64(-(1 << 40), m))
	assert.Equal(t, int32(math.MaxInt32), MultiplyByQuantizedMultiplier64(1<<62, m))
}

func TestRoundingDivideByPOT(t *testing.T) {
	assert.Equal(t, int32(3), RoundingDivideByPOT(5, 1))   // 2.5 -> 3
	assert.Equal(t, int32(-3), RoundingDivideByPOT(-5, 1)) // -2.5 -> -3
	assert.Equal(t, int32(1), RoundingDivideByPOT(5, 2))   // 1.25 -> 1
	assert.Equal(t, int32(7), RoundingDivideByPOT(7, 0))
	assert.Equal(t, int32(math.MaxInt32), SaturatingRoundingDoublingHighMul(math.MinInt32, math.MinInt32))
}

func TestCombine(t *testing.T) {
	a := Params{Scale: 0.5, ZeroPoint: 10}
	b := Params{Scale: 0.25, ZeroPoint: -5}
	out := Params{Scale: 1.0}
	r := must.M1(Combine(out, a, b))
	// a: 14 -> 2.0, b: 3 -> 2.0; 2.0+2.0 = 4.0 -> 4.
	sum := r.ScaleInput(0, 14) + r.ScaleInput(1, 3)
	assert.Equal(t, int32(4), r.ToOutput(sum, dtypes.QAsymmS8))
	diff := r.ScaleInput(0, 14) - r.ScaleInput(1, 3)
	assert.Equal(t, int32(0), r.ToOutput(diff, dtypes.QAsymmS8))

	_, err := Combine(out)
	assert.Error(t, err)
	_, err = Combine(out, Params{Scale: 0})
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))

	product := must.M1(ProductMultiplier(Params{Scale: 0.125}, Params{Scale: 0.5}, Params{Scale: 0.25}))
	assert.Equal(t, int32(6), MultiplyByQuantizedMultiplier(6, product))
}

func TestPerChannelMultipliers(t *testing.T) {
	ms := must.M1(PerChannelMultipliers(0.5, []float32{0.1, 0.2}, 0.25))
	require.Len(t, ms, 2)
	assert.InDelta(t, 0.2, ms[0].Float(), 1e-7)
	assert.InDelta(t, 0.4, ms[1].Float(), 1e-7)
	_, err := PerChannelMultipliers(0.5, []float32{0.1, 0}, 0.25)
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))
}

func TestCheckAccumulation(t *testing.T) {
	assert.NoError(t, CheckAccumulation(dtypes.QAsymmU8, dtypes.QSymmS8, 100))
	assert.NoError(t, CheckAccumulation(dtypes.Float32, dtypes.Float32, 1<<30))
	assert.NoError(t, CheckAccumulation(dtypes.QSymmS16, dtypes.QSymmS8, 40000))
	err := CheckAccumulation(dtypes.QAsymmU8, dtypes.QAsymmU8, 40000)
	require.Error(t, err)
	assert.Equal(t, errorkind.NumericOverflowRisk, errorkind.Of(err))
	assert.Equal(t, 32, AccumulatorBits(dtypes.QAsymmS8))
	assert.Equal(t, 64, AccumulatorBits(dtypes.QSymmS16))
}
