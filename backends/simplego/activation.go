// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/ml/layers/activations"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/pkg/errors"
)

// Activation implements backends.KernelProvider.
//
// 8-bit quantized inputs are mapped through the lookup table of the args. Other inputs are computed in float32.
func (p *Provider) Activation(args *backends.ActivationArgs, input, output *backends.Buffer) error {
	if err := checkSize("Activation", input, output); err != nil {
		return err
	}
	inDType := input.Shape().DType
	if args.Table != nil {
		if !inDType.IsQuantized8() {
			return errors.Errorf("Activation: lookup table given for non 8-bit input %s", input.Shape())
		}
		lo := inDType.MinInt()
		if int64(len(args.Table)) != inDType.MaxInt()-lo+1 {
			return errors.Errorf("Activation: lookup table has %d entries, %s requires %d",
				len(args.Table), inDType, inDType.MaxInt()-lo+1)
		}
		values := input.Ints()
		for ii, q := range values {
			values[ii] = args.Table[int64(q)-lo]
		}
		output.SetInts(values)
		return nil
	}
	fn, err := activations.Func(args.ActivationParams)
	if err != nil {
		return err
	}
	values := input.Float32s()
	for ii, v := range values {
		values[ii] = fn(v)
	}
	output.SetFloat32s(values)
	return nil
}

func unaryFunc(function backends.UnaryFunction) (func(float32) float32, error) {
	switch function {
	case backends.UnaryAbs:
		return math32.Abs, nil
	case backends.UnaryExp:
		return math32.Exp, nil
	case backends.UnaryNeg:
		return func(x float32) float32 { return -x }, nil
	case backends.UnaryRsqrt:
		return func(x float32) float32 { return 1 / math32.Sqrt(x) }, nil
	case backends.UnarySqrt:
		return math32.Sqrt, nil
	case backends.UnaryLog:
		return math32.Log, nil
	case backends.UnaryFloor:
		return math32.Floor, nil
	}
	return nil, Errorf(InvalidParameter, "ElementwiseUnary: unknown function %s", function)
}

// ElementwiseUnary implements backends.KernelProvider.
func (p *Provider) ElementwiseUnary(args *backends.ElementwiseUnaryArgs, input, output *backends.Buffer) error {
	if err := checkSize("ElementwiseUnary", input, output); err != nil {
		return err
	}
	if input.Shape().DType == dtypes.Int32 {
		switch args.Function {
		case backends.UnaryAbs, backends.UnaryNeg, backends.UnaryFloor:
			values := input.Ints()
			for ii, v := range values {
				switch {
				case args.Function == backends.UnaryAbs && v < 0, args.Function == backends.UnaryNeg:
					values[ii] = -v
				}
			}
			output.SetInts(values)
			return nil
		}
	}
	fn, err := unaryFunc(args.Function)
	if err != nil {
		return err
	}
	values := input.Float32s()
	for ii, v := range values {
		values[ii] = fn(v)
	}
	output.SetFloat32s(values)
	return nil
}
