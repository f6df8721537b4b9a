// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"math"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/backends/shapeinference"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
)

// This file implements the layout sensitive families (except the convolutions) and Softmax.

func checkLayout(desc *backends.Descriptor, layout backends.DataLayout) error {
	if layout != backends.NCHW && layout != backends.NHWC {
		return Errorf(InvalidParameter, "%s: invalid data layout %s", desc.Op, layout)
	}
	return nil
}

func validatePooling(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	p, err := paramsOf[backends.Pooling2dParams](desc)
	if err != nil {
		return err
	}
	if err = checkLayout(desc, p.Layout); err != nil {
		return err
	}
	input := desc.Inputs[0]
	switch p.Algorithm {
	case backends.PoolingMax, backends.PoolingAverage:
		err = checkDType(desc, "input", input, quantized8DTypes...)
	case backends.PoolingL2:
		if input.IsQuantized() {
			return Errorf(UnsupportedConfiguration, "%s: L2 pooling is only supported for float inputs, got %s", desc.Op, input.DType)
		}
		err = checkDType(desc, "input", input, floatDTypes...)
	default:
		err = Errorf(InvalidParameter, "%s: invalid algorithm %s", desc.Op, p.Algorithm)
	}
	if err != nil {
		return err
	}
	if p.Rounding != backends.RoundingFloor && p.Rounding != backends.RoundingCeiling {
		return Errorf(InvalidParameter, "%s: invalid output shape rounding %d", desc.Op, p.Rounding)
	}
	if p.PaddingMethod != backends.PaddingIgnoreValue && p.PaddingMethod != backends.PaddingExclude {
		return Errorf(InvalidParameter, "%s: invalid padding method %d", desc.Op, p.PaddingMethod)
	}
	expected, err := shapeinference.Pooling2dOp(input, p)
	if err != nil {
		return err
	}
	return checkOutput(desc, 0, expected)
}

func buildPooling(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := *desc.Params.(*backends.Pooling2dParams)
	b.addLayoutStep(w, "pooling "+p.Algorithm.String(), p.Layout, inputs[:1], outputs[0],
		func(layout backends.DataLayout, in []*backends.Buffer, out *backends.Buffer) error {
			args := &backends.Pooling2dArgs{Pooling2dParams: p}
			args.Layout = layout
			return b.provider.Pooling2d(args, in[0], out)
		})
	return nil
}

// checkEps verifies the epsilon of the normalization families.
func checkEps(desc *backends.Descriptor, eps float32) error {
	if eps < 0 || math.IsNaN(float64(eps)) || math.IsInf(float64(eps), 0) {
		return Errorf(InvalidParameter, "%s: epsilon must be finite and non-negative, got %g", desc.Op, eps)
	}
	return nil
}

// validateNormalization validates BatchNormalization, InstanceNormalization and L2Normalization: float only,
// rank 4 operands in the layout of the parameters.
func validateNormalization(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	input := desc.Inputs[0]
	if input.IsQuantized() {
		return Errorf(UnsupportedConfiguration, "%s is only supported for float inputs, got %s", desc.Op, input.DType)
	}
	if err := checkDType(desc, "input", input, floatDTypes...); err != nil {
		return err
	}
	if input.Rank() != 4 {
		return Errorf(UnsupportedConfiguration, "%s: input must have rank 4, got %s", desc.Op, input)
	}
	var layout backends.DataLayout
	switch desc.Op {
	case backends.OpTypeBatchNormalization:
		p, err := paramsOf[backends.BatchNormalizationParams](desc)
		if err != nil {
			return err
		}
		layout = p.Layout
		if err = checkLayout(desc, layout); err != nil {
			return err
		}
		channels := input.Dimensions[layout.ChannelAxis()]
		for _, values := range [][]float32{p.Mean, p.Variance, p.Beta, p.Gamma} {
			if len(values) != channels {
				return Errorf(InvalidParameter, "%s: mean, variance, beta and gamma must have %d values (channels), got %d",
					desc.Op, channels, len(values))
			}
		}
		if err = checkEps(desc, p.Eps); err != nil {
			return err
		}
	case backends.OpTypeInstanceNormalization:
		p, err := paramsOf[backends.InstanceNormalizationParams](desc)
		if err != nil {
			return err
		}
		layout = p.Layout
		if err = checkEps(desc, p.Eps); err != nil {
			return err
		}
	case backends.OpTypeL2Normalization:
		p, err := paramsOf[backends.L2NormalizationParams](desc)
		if err != nil {
			return err
		}
		layout = p.Layout
		if err = checkEps(desc, p.Eps); err != nil {
			return err
		}
	}
	if err := checkLayout(desc, layout); err != nil {
		return err
	}
	return checkOutput(desc, 0, input)
}

func buildNormalization(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	var layout backends.DataLayout
	var kernel kernelStep
	switch desc.Op {
	case backends.OpTypeBatchNormalization:
		p := *desc.Params.(*backends.BatchNormalizationParams)
		layout = p.Layout
		kernel = func(native backends.DataLayout, in []*backends.Buffer, out *backends.Buffer) error {
			args := p
			args.Layout = native
			return b.provider.BatchNormalization(&args, in[0], out)
		}
	case backends.OpTypeInstanceNormalization:
		p := *desc.Params.(*backends.InstanceNormalizationParams)
		layout = p.Layout
		kernel = func(native backends.DataLayout, in []*backends.Buffer, out *backends.Buffer) error {
			args := p
			args.Layout = native
			return b.provider.InstanceNormalization(&args, in[0], out)
		}
	default:
		p := *desc.Params.(*backends.L2NormalizationParams)
		layout = p.Layout
		kernel = func(native backends.DataLayout, in []*backends.Buffer, out *backends.Buffer) error {
			args := p
			args.Layout = native
			return b.provider.L2Normalization(&args, in[0], out)
		}
	}
	b.addLayoutStep(w, desc.Op.String(), layout, inputs[:1], outputs[0], kernel)
	return nil
}

func validateSoftmax(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	p, err := paramsOf[backends.SoftmaxParams](desc)
	if err != nil {
		return err
	}
	input := desc.Inputs[0]
	if err = checkDType(desc, "input", input, quantized8DTypes...); err != nil {
		return err
	}
	if p.Log && input.IsQuantized() {
		return Errorf(UnsupportedConfiguration, "%s: LogSoftmax is only supported for float inputs, got %s", desc.Op, input.DType)
	}
	if !(p.Beta > 0) || math.IsInf(float64(p.Beta), 0) {
		return Errorf(InvalidParameter, "%s: beta must be finite and positive, got %g", desc.Op, p.Beta)
	}
	if _, err = shapeinference.AdjustAxisToRank(p.Axis, input.Rank()); err != nil {
		return err
	}
	return checkOutput(desc, 0, input)
}

func buildSoftmax(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := desc.Params.(*backends.SoftmaxParams)
	axis, err := shapeinference.AdjustAxisToRank(p.Axis, inputs[0].Shape().Rank())
	if err != nil {
		return err
	}
	args := &backends.SoftmaxArgs{Beta: p.Beta, Axis: axis, Log: p.Log}
	w.AddStep("softmax", func() error { return b.provider.Softmax(args, inputs[0], outputs[0]) })
	return nil
}

func validateResize(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	p, err := paramsOf[backends.ResizeParams](desc)
	if err != nil {
		return err
	}
	if err = checkLayout(desc, p.Layout); err != nil {
		return err
	}
	if err = checkDType(desc, "input", desc.Inputs[0], quantized8DTypes...); err != nil {
		return err
	}
	expected, err := shapeinference.ResizeOp(desc.Inputs[0], p)
	if err != nil {
		return err
	}
	return checkOutput(desc, 0, expected)
}

func buildResize(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := *desc.Params.(*backends.ResizeParams)
	b.addLayoutStep(w, "resize", p.Layout, inputs[:1], outputs[0],
		func(native backends.DataLayout, in []*backends.Buffer, out *backends.Buffer) error {
			args := p
			args.Layout = native
			return b.provider.Resize(&args, in[0], out)
		})
	return nil
}

// validateSpaceDepth validates SpaceToDepth and DepthToSpace.
func validateSpaceDepth(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 1, 1, 1); err != nil {
		return err
	}
	p, err := paramsOf[backends.SpaceDepthParams](desc)
	if err != nil {
		return err
	}
	if err = checkLayout(desc, p.Layout); err != nil {
		return err
	}
	input := desc.Inputs[0]
	if err = checkDType(desc, "input", input, movementDTypes...); err != nil {
		return err
	}
	inferred := shapeinference.SpaceToDepthOp
	if desc.Op == backends.OpTypeDepthToSpace {
		inferred = shapeinference.DepthToSpaceOp
	}
	expected, err := inferred(input, p)
	if err != nil {
		return err
	}
	return checkOutput(desc, 0, expected)
}

func buildSpaceDepth(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := *desc.Params.(*backends.SpaceDepthParams)
	kernel := b.provider.SpaceToDepth
	if desc.Op == backends.OpTypeDepthToSpace {
		kernel = b.provider.DepthToSpace
	}
	b.addLayoutStep(w, desc.Op.String(), p.Layout, inputs[:1], outputs[0],
		func(native backends.DataLayout, in []*backends.Buffer, out *backends.Buffer) error {
			args := p
			args.Layout = native
			return kernel(&args, in[0], out)
		})
	return nil
}
