// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"slices"

	"github.com/chewxy/math32"
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/pkg/errors"
)

// This file implements the binary elementwise operations and comparisons.
// Operands are broadcast by indexing with the strides given in the BinaryArgs, with fast paths for the
// cases where an operand has the output shape or is a scalar.

// broadcastIndices returns the flat index of the operand for each flat index of the output.
func broadcastIndices(outShape shapes.Shape, strides []int) ([]int, error) {
	size := outShape.Size()
	if len(strides) != outShape.Rank() {
		return nil, errors.Errorf("broadcast strides %v don't match output %s", strides, outShape)
	}
	indices := make([]int, size)
	if slices.Equal(strides, outShape.Strides()) {
		for ii := range indices {
			indices[ii] = ii
		}
		return indices, nil
	}
	if !slices.ContainsFunc(strides, func(s int) bool { return s != 0 }) {
		// Scalar (or size 1) operand: all zeros.
		return indices, nil
	}
	for flatIdx, axesIndices := range outShape.Iter() {
		indices[flatIdx] = shapes.FlatIndex(axesIndices, strides)
	}
	return indices, nil
}

func binaryIndices(args *backends.BinaryArgs, outShape shapes.Shape) (lhsIndices, rhsIndices []int, err error) {
	lhsIndices, err = broadcastIndices(outShape, args.LhsStrides)
	if err != nil {
		return
	}
	rhsIndices, err = broadcastIndices(outShape, args.RhsStrides)
	return
}

// ElementwiseBinary implements backends.KernelProvider.
func (p *Provider) ElementwiseBinary(args *backends.BinaryArgs, lhs, rhs, output *backends.Buffer) error {
	outShape := output.Shape()
	lhsIndices, rhsIndices, err := binaryIndices(args, outShape)
	if err != nil {
		return err
	}
	dtype := outShape.DType
	switch {
	case dtype.IsQuantized() && args.Op.IsAdditive() && args.Rescale != nil:
		return additiveQuantized(args, lhs, rhs, output, lhsIndices, rhsIndices)
	case dtype.IsQuantized() && args.Op == backends.OpTypeMultiplication && args.Product != nil:
		return multiplyQuantized(*args.Product, lhs, rhs, output, lhsIndices, rhsIndices)
	case dtype == dtypes.Int32:
		return binaryInt32(args.Op, lhs, rhs, output, lhsIndices, rhsIndices)
	}
	return binaryFloat(args.Op, lhs, rhs, output, lhsIndices, rhsIndices)
}

func binaryFloat(op backends.OpType, lhs, rhs, output *backends.Buffer, lhsIndices, rhsIndices []int) error {
	var fn func(a, b float32) float32
	switch op {
	case backends.OpTypeAddition:
		fn = func(a, b float32) float32 { return a + b }
	case backends.OpTypeSubtraction:
		fn = func(a, b float32) float32 { return a - b }
	case backends.OpTypeMultiplication:
		fn = func(a, b float32) float32 { return a * b }
	case backends.OpTypeDivision:
		fn = func(a, b float32) float32 { return a / b }
	case backends.OpTypeMaximum:
		fn = math32.Max
	case backends.OpTypeMinimum:
		fn = math32.Min
	default:
		return Errorf(InvalidParameter, "ElementwiseBinary: unknown operation %s", op)
	}
	lhsValues, rhsValues := lhs.Float32s(), rhs.Float32s()
	out := make([]float32, len(lhsIndices))
	for ii := range out {
		out[ii] = fn(lhsValues[lhsIndices[ii]], rhsValues[rhsIndices[ii]])
	}
	output.SetFloat32s(out)
	return nil
}

func binaryInt32(op backends.OpType, lhs, rhs, output *backends.Buffer, lhsIndices, rhsIndices []int) error {
	lhsValues, rhsValues := lhs.Ints(), rhs.Ints()
	out := make([]int32, len(lhsIndices))
	for ii := range out {
		a, b := lhsValues[lhsIndices[ii]], rhsValues[rhsIndices[ii]]
		switch op {
		case backends.OpTypeAddition:
			out[ii] = a + b
		case backends.OpTypeSubtraction:
			out[ii] = a - b
		case backends.OpTypeMultiplication:
			out[ii] = a * b
		case backends.OpTypeDivision:
			if b == 0 {
				return Errorf(InvalidParameter, "ElementwiseBinary: integer division by zero at output #%d", ii)
			}
			out[ii] = a / b
		case backends.OpTypeMaximum:
			out[ii] = max(a, b)
		case backends.OpTypeMinimum:
			out[ii] = min(a, b)
		default:
			return Errorf(InvalidParameter, "ElementwiseBinary: unknown operation %s", op)
		}
	}
	output.SetInts(out)
	return nil
}

// additiveQuantized combines both operands in the common scale of the Rescale and requantizes to the output.
func additiveQuantized(args *backends.BinaryArgs, lhs, rhs, output *backends.Buffer, lhsIndices, rhsIndices []int) error {
	r := args.Rescale
	lhsValues, rhsValues := lhs.Ints(), rhs.Ints()
	dtype := output.Shape().DType
	out := make([]int32, len(lhsIndices))
	for ii := range out {
		a := r.ScaleInput(0, lhsValues[lhsIndices[ii]])
		b := r.ScaleInput(1, rhsValues[rhsIndices[ii]])
		var v int32
		switch args.Op {
		case backends.OpTypeAddition:
			v = a + b
		case backends.OpTypeSubtraction:
			v = a - b
		case backends.OpTypeMaximum:
			v = max(a, b)
		case backends.OpTypeMinimum:
			v = min(a, b)
		default:
			return Errorf(InvalidParameter, "ElementwiseBinary: operation %s can't be computed additively", args.Op)
		}
		out[ii] = r.ToOutput(v, dtype)
	}
	output.SetInts(out)
	return nil
}

// multiplyQuantized multiplies the centered operands and requantizes the product to the output.
func multiplyQuantized(m quantization.Multiplier, lhs, rhs, output *backends.Buffer, lhsIndices, rhsIndices []int) error {
	lhsValues, rhsValues := centered(lhs), centered(rhs)
	acc := make([]int64, len(lhsIndices))
	for ii := range acc {
		acc[ii] = lhsValues[lhsIndices[ii]] * rhsValues[rhsIndices[ii]]
	}
	return requantizeTo(output, acc, []quantization.Multiplier{m}, nil)
}

func compare[T int32 | float32](op backends.ComparisonOperation, a, b T) (bool, error) {
	switch op {
	case backends.CompareEqual:
		return a == b, nil
	case backends.CompareNotEqual:
		return a != b, nil
	case backends.CompareGreater:
		return a > b, nil
	case backends.CompareGreaterOrEqual:
		return a >= b, nil
	case backends.CompareLess:
		return a < b, nil
	case backends.CompareLessOrEqual:
		return a <= b, nil
	}
	return false, Errorf(InvalidParameter, "Comparison: unknown operation %s", op)
}

// Comparison implements backends.KernelProvider.
//
// Quantized operands with a Rescale are compared in the common scale, without requantizing.
func (p *Provider) Comparison(args *backends.BinaryArgs, lhs, rhs, output *backends.Buffer) error {
	outShape := output.Shape()
	if outShape.DType != dtypes.Bool {
		return errors.Errorf("Comparison: output must be Bool, got %s", outShape)
	}
	lhsIndices, rhsIndices, err := binaryIndices(args, outShape)
	if err != nil {
		return err
	}
	out := backends.Flat[bool](output)
	inDType := lhs.Shape().DType
	switch {
	case inDType.IsQuantized() && args.Rescale != nil:
		r := args.Rescale
		lhsValues, rhsValues := lhs.Ints(), rhs.Ints()
		for ii := range out {
			if out[ii], err = compare(args.Comparison, r.ScaleInput(0, lhsValues[lhsIndices[ii]]),
				r.ScaleInput(1, rhsValues[rhsIndices[ii]])); err != nil {
				return err
			}
		}
	case inDType == dtypes.Int32:
		lhsValues, rhsValues := lhs.Ints(), rhs.Ints()
		for ii := range out {
			if out[ii], err = compare(args.Comparison, lhsValues[lhsIndices[ii]], rhsValues[rhsIndices[ii]]); err != nil {
				return err
			}
		}
	default:
		lhsValues, rhsValues := lhs.Float32s(), rhs.Float32s()
		for ii := range out {
			if out[ii], err = compare(args.Comparison, lhsValues[lhsIndices[ii]], rhsValues[rhsIndices[ii]]); err != nil {
				return err
			}
		}
	}
	return nil
}
