// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/backends/shapeinference"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/gomlx/clbackend/pkg/ml/layers/activations"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/pkg/errors"
)

// This file implements the elementwise families: Activation, ElementwiseUnary and the broadcasting binary families.

// floatOnlyActivations can't be computed on quantized values.
var floatOnlyActivations = map[backends.ActivationFunction]bool{
	backends.ActivationAbs:      true,
	backends.ActivationSqrt:     true,
	backends.ActivationSquare:   true,
	backends.ActivationSoftReLu: true,
	backends.ActivationElu:      true,
}

func validateActivation(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	p, err := paramsOf[backends.ActivationParams](desc)
	if err != nil {
		return err
	}
	if _, err = activations.Func(*p); err != nil {
		return errors.WithMessagef(err, "%s", desc.Op)
	}
	input := desc.Inputs[0]
	if err = checkDType(desc, "input", input, dtypes.Float32, dtypes.Float16, dtypes.QAsymmU8, dtypes.QAsymmS8, dtypes.QSymmS16); err != nil {
		return err
	}
	if input.IsQuantized() && floatOnlyActivations[p.Function] {
		return Errorf(UnsupportedConfiguration, "%s: %s is only supported for float inputs, got %s", desc.Op, p.Function, input.DType)
	}
	return checkOutput(desc, 0, input)
}

func buildActivation(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := desc.Params.(*backends.ActivationParams)
	args := &backends.ActivationArgs{ActivationParams: *p}
	input, output := inputs[0], outputs[0]
	inShape, outShape := input.Shape(), output.Shape()
	if inShape.DType.IsQuantized8() {
		fn, err := activations.Func(*p)
		if err != nil {
			return err
		}
		args.Table = activations.QuantizedTable(fn, inShape.DType, inShape.Quantization.Tensor(),
			outShape.DType, outShape.Quantization.Tensor())
	}
	w.AddStep("activation "+p.Function.String(), func() error { return b.provider.Activation(args, input, output) })
	return nil
}

func validateElementwiseUnary(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	p, err := paramsOf[backends.ElementwiseUnaryParams](desc)
	if err != nil {
		return err
	}
	input := desc.Inputs[0]
	switch p.Function {
	case backends.UnaryAbs, backends.UnaryNeg:
		err = checkDType(desc, "input", input, dtypes.Float32, dtypes.Float16, dtypes.Int32)
	case backends.UnaryExp, backends.UnaryRsqrt, backends.UnarySqrt, backends.UnaryLog, backends.UnaryFloor:
		err = checkDType(desc, "input", input, floatDTypes...)
	default:
		err = Errorf(InvalidParameter, "%s: invalid function %s", desc.Op, p.Function)
	}
	if err != nil {
		return err
	}
	return checkOutput(desc, 0, input)
}

func buildElementwiseUnary(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := desc.Params.(*backends.ElementwiseUnaryParams)
	args := &backends.ElementwiseUnaryArgs{Function: p.Function}
	w.AddStep("unary "+p.Function.String(), func() error { return b.provider.ElementwiseUnary(args, inputs[0], outputs[0]) })
	return nil
}

// validateBinary validates the arithmetic, minimum/maximum and comparison families.
func validateBinary(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 2, 2, 1); err != nil {
		return err
	}
	lhs, rhs := desc.Inputs[0], desc.Inputs[1]
	if desc.Op == backends.OpTypeComparison {
		p, err := paramsOf[backends.ComparisonParams](desc)
		if err != nil {
			return err
		}
		if p.Operation < backends.CompareEqual || p.Operation > backends.CompareLessOrEqual {
			return Errorf(InvalidParameter, "%s: invalid operation %s", desc.Op, p.Operation)
		}
	}
	switch {
	case desc.Op == backends.OpTypeDivision && lhs.IsQuantized():
		return Errorf(UnsupportedConfiguration, "%s: quantized division (%s) is not supported", desc.Op, lhs.DType)
	case lhs.DType == dtypes.QSymmS16:
		return Errorf(UnsupportedConfiguration, "%s: %s not supported, only float, Int32 and 8-bit quantized operands",
			desc.Op, lhs.DType)
	}
	allowed := arithmeticDTypes
	if desc.Op == backends.OpTypeDivision {
		allowed = floatDTypes
	}
	if err := checkDType(desc, "lhs", lhs, allowed...); err != nil {
		return err
	}
	var expected shapes.Shape
	var err error
	if desc.Op == backends.OpTypeComparison {
		expected, err = shapeinference.ComparisonOp(lhs, rhs)
	} else {
		expected, err = shapeinference.BinaryOp(desc.Op, lhs, rhs)
	}
	if err != nil {
		return err
	}
	if err = checkOutput(desc, 0, expected); err != nil {
		return err
	}
	if lhs.IsQuantized() {
		_, _, err = binaryRequantization(desc.Op, lhs.Quantization.Tensor(), rhs.Quantization.Tensor(),
			desc.Outputs[0].Quantization.Tensor())
	}
	return err
}

// binaryRequantization returns the requantization of quantized operands: a Rescale for the additive families
// (the comparison rescales both operands to the scale of lhs) or the product multiplier for the multiplication.
func binaryRequantization(op backends.OpType, lhs, rhs, output quantization.Params) (*quantization.Rescale, *quantization.Multiplier, error) {
	switch {
	case op == backends.OpTypeComparison:
		rescale, err := quantization.Combine(lhs, lhs, rhs)
		return rescale, nil, err
	case op.IsAdditive():
		rescale, err := quantization.Combine(output, lhs, rhs)
		return rescale, nil, err
	case op == backends.OpTypeMultiplication:
		product, err := quantization.ProductMultiplier(output, lhs, rhs)
		if err != nil {
			return nil, nil, err
		}
		return nil, &product, nil
	}
	return nil, nil, Errorf(UnsupportedConfiguration, "no quantized %s", op)
}

func buildBinary(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	lhs, rhs, output := inputs[0], inputs[1], outputs[0]
	outDims := output.Shape().Dimensions
	args := &backends.BinaryArgs{
		Op:         desc.Op,
		LhsStrides: shapeinference.BroadcastStrides(lhs.Shape().Dimensions, outDims),
		RhsStrides: shapeinference.BroadcastStrides(rhs.Shape().Dimensions, outDims),
	}
	if lhs.Shape().IsQuantized() {
		var err error
		args.Rescale, args.Product, err = binaryRequantization(desc.Op, lhs.Shape().Quantization.Tensor(),
			rhs.Shape().Quantization.Tensor(), output.Shape().Quantization.Tensor())
		if err != nil {
			return err
		}
	}
	if desc.Op == backends.OpTypeComparison {
		args.Comparison = desc.Params.(*backends.ComparisonParams).Operation
		w.AddStep("comparison "+args.Comparison.String(), func() error { return b.provider.Comparison(args, lhs, rhs, output) })
		return nil
	}
	w.AddStep(desc.Op.String(), func() error { return b.provider.ElementwiseBinary(args, lhs, rhs, output) })
	return nil
}
