// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package quantization

import (
	"math"

	"github.com/gomlx/clbackend/pkg/core/dtypes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
)

// DefaultLeftShift is the headroom given to 8-bit inputs before they are rescaled to a common scale.
const DefaultLeftShift = 20

// Rescale holds the multipliers used to combine several quantized operands additively (add, subtract,
// min/max, comparisons): each input's (q - zeroPoint) is left-shifted by LeftShift and rescaled to a common
// scale (twice the largest input scale), and the combined value is then rescaled to the output.
//
// It is only meant for 8-bit inputs: 16-bit inputs shifted by LeftShift would overflow the int32 accumulator.
type Rescale struct {
	LeftShift       int
	Inputs          []Multiplier
	InputZeroPoints []int32
	Output          Multiplier
	OutputZeroPoint int32
}

// Combine computes the Rescale that requantizes an additive combination of the inputs into output.
func Combine(output Params, inputs ...Params) (*Rescale, error) {
	if len(inputs) == 0 {
		return nil, Errorf(InvalidParameter, "quantization.Combine requires at least one input")
	}
	if err := Validate(output, dtypes.InvalidDType); err != nil {
		return nil, err
	}
	var maxScale float64
	for ii, input := range inputs {
		if err := Validate(input, dtypes.InvalidDType); err != nil {
			return nil, Errorf(InvalidParameter, "input #%d: %v", ii, err)
		}
		maxScale = max(maxScale, float64(input.Scale))
	}
	commonScale := 2 * maxScale
	r := &Rescale{
		LeftShift:       DefaultLeftShift,
		Inputs:          make([]Multiplier, len(inputs)),
		InputZeroPoints: make([]int32, len(inputs)),
		OutputZeroPoint: output.ZeroPoint,
	}
	var err error
	for ii, input := range inputs {
		r.InputZeroPoints[ii] = input.ZeroPoint
		r.Inputs[ii], err = QuantizeMultiplier(float64(input.Scale) / commonScale)
		if err != nil {
			return nil, err
		}
	}
	r.Output, err = QuantizeMultiplier(commonScale / (float64(int64(1)<<r.LeftShift) * float64(output.Scale)))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ScaleInput converts the quantized value q of input #idx to the common scale.
func (r *Rescale) ScaleInput(idx int, q int32) int32 {
	shifted := (q - r.InputZeroPoints[idx]) << r.LeftShift
	return MultiplyByQuantizedMultiplier(shifted, r.Inputs[idx])
}

// ToOutput converts a value in the common scale to the output quantization, saturated to dtype.
func (r *Rescale) ToOutput(v int32, dtype dtypes.DType) int32 {
	return Clamp(int64(MultiplyByQuantizedMultiplier(v, r.Output))+int64(r.OutputZeroPoint), dtype)
}

// AccumulatorBits returns the width of the integer accumulator used for products of the given dtype:
// 32 bits for 8-bit quantized inputs, 64 bits for 16-bit (and Int32) inputs. It returns 0 for non-integer dtypes.
func AccumulatorBits(dtype dtypes.DType) int {
	switch {
	case dtype.IsQuantized8():
		return 32
	case dtype == dtypes.QSymmS16 || dtype == dtypes.Int32:
		return 64
	}
	return 0
}

// maxMagnitude returns the largest |q - zeroPoint| possible for dtype, assuming any valid zero point.
func maxMagnitude(dtype dtypes.DType) float64 {
	if dtype.IsSymmetric() {
		return float64(max(-dtype.MinInt(), dtype.MaxInt()))
	}
	return float64(dtype.MaxInt() - dtype.MinInt())
}

// CheckAccumulation verifies that a dot-product of depth terms of input by weight values can be accumulated
// without overflow. It returns a NumericOverflowRisk error otherwise.
//
// Non-quantized inputs are always accepted.
func CheckAccumulation(inputDType, weightDType dtypes.DType, depth int) error {
	if !inputDType.IsQuantized() || !weightDType.IsQuantized() {
		return nil
	}
	accBits := max(AccumulatorBits(inputDType), AccumulatorBits(weightDType))
	worst := float64(depth) * maxMagnitude(inputDType) * maxMagnitude(weightDType)
	limit := math.Ldexp(1, accBits-1) - 1
	if worst > limit {
		return Errorf(NumericOverflowRisk,
			"accumulating %d products of %s by %s can reach %g, beyond the %d-bit accumulator",
			depth, inputDType, weightDType, worst, accBits)
	}
	return nil
}
