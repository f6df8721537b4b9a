// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"math"
	"slices"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/backends/shapeinference"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
)

// This file implements the data movement families, Mean and the conversions.

func validateReshape(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	p, err := paramsOf[backends.ReshapeParams](desc)
	if err != nil {
		return err
	}
	if err = checkDType(desc, "input", desc.Inputs[0], allDTypes...); err != nil {
		return err
	}
	expected, err := shapeinference.ReshapeOp(desc.Inputs[0], p.TargetShape)
	if err != nil {
		return err
	}
	return checkOutput(desc, 0, expected)
}

func buildReshape(b *Backend, w *backends.Workload, _ *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	w.AddStep("reshape", func() error { return b.provider.Copy(inputs[0], outputs[0]) })
	return nil
}

// transposePermutation returns the permutation (output axis i reads source axis permutation[i]) of Permute and
// Transpose.
func transposePermutation(desc *backends.Descriptor, input shapes.Shape) ([]int, error) {
	if desc.Op == backends.OpTypePermute {
		p, err := paramsOf[backends.PermuteParams](desc)
		if err != nil {
			return nil, err
		}
		// Mappings must be a permutation of the axes as well.
		if _, err = shapeinference.TransposeOp(input, p.Mappings); err != nil {
			return nil, err
		}
		return shapeinference.PermutationFromMappings(p.Mappings), nil
	}
	p, err := paramsOf[backends.TransposeParams](desc)
	if err != nil {
		return nil, err
	}
	return slices.Clone(p.Permutation), nil
}

// validateTranspose validates Permute and Transpose.
func validateTranspose(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	input := desc.Inputs[0]
	if err := checkDType(desc, "input", input, allDTypes...); err != nil {
		return err
	}
	permutation, err := transposePermutation(desc, input)
	if err != nil {
		return err
	}
	expected, err := shapeinference.TransposeOp(input, permutation)
	if err != nil {
		return err
	}
	return checkOutput(desc, 0, expected)
}

func buildTranspose(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	permutation, err := transposePermutation(desc, inputs[0].Shape())
	if err != nil {
		return err
	}
	args := &backends.PermuteArgs{Permutation: permutation}
	w.AddStep("permute", func() error { return b.provider.Permute(args, inputs[0], outputs[0]) })
	return nil
}

// validateConcat: the inputs may have different quantizations, they are requantized to the output's.
func validateConcat(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, math.MaxInt, 1); err != nil {
		return err
	}
	p, err := paramsOf[backends.ConcatParams](desc)
	if err != nil {
		return err
	}
	if err = checkDType(desc, "input #0", desc.Inputs[0], movementDTypes...); err != nil {
		return err
	}
	axis, err := shapeinference.AdjustAxisToRank(p.Axis, desc.Inputs[0].Rank())
	if err != nil {
		return err
	}
	expected, err := shapeinference.ConcatenateOp(desc.Inputs, axis)
	if err != nil {
		return err
	}
	return checkOutput(desc, 0, expected)
}

func buildConcat(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := desc.Params.(*backends.ConcatParams)
	axis, err := shapeinference.AdjustAxisToRank(p.Axis, inputs[0].Shape().Rank())
	if err != nil {
		return err
	}
	args := &backends.ConcatArgs{Axis: axis}
	w.AddStep("concat", func() error { return b.provider.Concat(args, inputs, outputs[0]) })
	return nil
}

func validatePad(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	p, err := paramsOf[backends.PadParams](desc)
	if err != nil {
		return err
	}
	if err = checkDType(desc, "input", desc.Inputs[0], movementDTypes...); err != nil {
		return err
	}
	if math.IsNaN(float64(p.Value)) || math.IsInf(float64(p.Value), 0) {
		return Errorf(InvalidParameter, "%s: padding value must be finite, got %g", desc.Op, p.Value)
	}
	expected, err := shapeinference.PadOp(desc.Inputs[0], p.Padding)
	if err != nil {
		return err
	}
	return checkOutput(desc, 0, expected)
}

func buildPad(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := desc.Params.(*backends.PadParams)
	w.AddStep("pad", func() error { return b.provider.Pad(p, inputs[0], outputs[0]) })
	return nil
}

func validateMean(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	p, err := paramsOf[backends.MeanParams](desc)
	if err != nil {
		return err
	}
	input := desc.Inputs[0]
	if input.DType == dtypes.QSymmS16 {
		return Errorf(UnsupportedConfiguration, "%s: %s not supported, only float and 8-bit quantized inputs", desc.Op, input.DType)
	}
	if err = checkDType(desc, "input", input, quantized8DTypes...); err != nil {
		return err
	}
	expected, _, err := shapeinference.MeanOp(input, p.Axes, p.KeepDims)
	if err != nil {
		return err
	}
	return checkOutput(desc, 0, expected)
}

func buildMean(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := desc.Params.(*backends.MeanParams)
	_, axes, err := shapeinference.MeanOp(inputs[0].Shape(), p.Axes, p.KeepDims)
	if err != nil {
		return err
	}
	args := &backends.MeanArgs{Axes: axes}
	w.AddStep("mean", func() error { return b.provider.Mean(args, inputs[0], outputs[0]) })
	return nil
}

// conversionDTypes lists the input and output dtypes of each conversion family.
var conversionDTypes = map[backends.OpType][2][]dtypes.DType{
	backends.OpTypeQuantize:          {floatDTypes, {dtypes.QAsymmU8, dtypes.QAsymmS8, dtypes.QSymmS16}},
	backends.OpTypeDequantize:        {{dtypes.QAsymmU8, dtypes.QAsymmS8, dtypes.QSymmS8, dtypes.QSymmS16}, floatDTypes},
	backends.OpTypeConvertFp16ToFp32: {{dtypes.Float16}, {dtypes.Float32}},
	backends.OpTypeConvertFp32ToFp16: {{dtypes.Float32}, {dtypes.Float16}},
}

// validateConversion validates Quantize, Dequantize and the float conversions.
func validateConversion(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	allowed := conversionDTypes[desc.Op]
	input, output := desc.Inputs[0], desc.Outputs[0]
	if err := checkDType(desc, "input", input, allowed[0]...); err != nil {
		return err
	}
	if err := checkDType(desc, "output", output, allowed[1]...); err != nil {
		return err
	}
	return checkOutput(desc, 0, input.WithDType(output.DType, output.Quantization))
}

func buildConversion(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	var kernel func(input, output *backends.Buffer) error
	switch desc.Op {
	case backends.OpTypeQuantize:
		kernel = b.provider.Quantize
	case backends.OpTypeDequantize:
		kernel = b.provider.Dequantize
	default:
		kernel = b.provider.ConvertDType
	}
	w.AddStep(desc.Op.String(), func() error { return kernel(inputs[0], outputs[0]) })
	return nil
}
