// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package activations implements the activation functions of the Activation family and of the LSTM cells,
// evaluated in float32, and the lookup tables used to apply them to 8-bit quantized tensors.
package activations

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/support/errorkind"
)

// Sigmoid returns 1/(1+exp(-x)).
func Sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// Tanh returns the hyperbolic tangent of x.
func Tanh(x float32) float32 {
	return math32.Tanh(x)
}

// Func returns the float32 function for the activation params, or an InvalidParameter error for
// unknown functions.
func Func(params backends.ActivationParams) (func(float32) float32, error) {
	a, b := params.A, params.B
	switch params.Function {
	case backends.ActivationSigmoid:
		return Sigmoid, nil
	case backends.ActivationReLu:
		return func(x float32) float32 { return max(x, 0) }, nil
	case backends.ActivationBoundedReLu:
		return func(x float32) float32 { return min(a, max(b, x)) }, nil
	case backends.ActivationSoftReLu:
		return func(x float32) float32 { return math32.Log1p(math32.Exp(x)) }, nil
	case backends.ActivationLeakyReLu:
		return func(x float32) float32 {
			if x > 0 {
				return x
			}
			return a * x
		}, nil
	case backends.ActivationAbs:
		return math32.Abs, nil
	case backends.ActivationSqrt:
		return math32.Sqrt, nil
	case backends.ActivationSquare:
		return func(x float32) float32 { return x * x }, nil
	case backends.ActivationTanH:
		return func(x float32) float32 { return a * math32.Tanh(b*x) }, nil
	case backends.ActivationElu:
		return func(x float32) float32 {
			if x >= 0 {
				return x
			}
			return a * (math32.Exp(x) - 1)
		}, nil
	case backends.ActivationLinear:
		return func(x float32) float32 { return a*x + b }, nil
	case backends.ActivationHardSwish:
		return func(x float32) float32 { return x * min(max(x+3, 0), 6) / 6 }, nil
	}
	return nil, errorkind.Errorf(errorkind.InvalidParameter, "unknown activation function %s", params.Function)
}

// CellFunc returns the activation used for the LSTM cell gate and output: ActivationNone means TanH(1, 1).
func CellFunc(function backends.ActivationFunction) (func(float32) float32, error) {
	switch function {
	case backends.ActivationNone, backends.ActivationTanH:
		return Tanh, nil
	case backends.ActivationSigmoid:
		return Sigmoid, nil
	case backends.ActivationReLu:
		return func(x float32) float32 { return max(x, 0) }, nil
	case backends.ActivationBoundedReLu:
		// ReLu6, the only bounded version used by LSTM cells.
		return func(x float32) float32 { return min(6, max(0, x)) }, nil
	}
	return nil, errorkind.Errorf(errorkind.UnsupportedConfiguration, "activation %s not supported for LSTM cells", function)
}

// QuantizedTable returns the lookup table applying fn to every value of the 8-bit quantized input dtype:
// table[q - MinInt(inputDType)] is the output quantized value of fn(dequantize(q)).
func QuantizedTable(fn func(float32) float32, inputDType dtypes.DType, input quantization.Params,
	outputDType dtypes.DType, output quantization.Params) []int32 {
	lo, hi := inputDType.MinInt(), inputDType.MaxInt()
	table := make([]int32, hi-lo+1)
	for q := lo; q <= hi; q++ {
		x := input.Scale * float32(int32(q)-input.ZeroPoint)
		table[q-lo] = quantization.QuantizeTo(fn(x), output, outputDType)
	}
	return table
}
