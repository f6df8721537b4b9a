// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/backends/shapeinference"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/pkg/errors"
)

// This file implements the families accumulating dot products: FullyConnected, Convolution2d and
// DepthwiseConvolution2d.

// checkWeightsAndBias verifies the dtypes of the weights and bias of a linear family given its input dtype:
// float inputs take weights and bias of the same dtype, quantized inputs take weights of the input dtype or
// QSymmS8, and an Int32 bias.
func checkWeightsAndBias(desc *backends.Descriptor, input, weights shapes.Shape, bias *shapes.Shape, units int) error {
	if err := checkDType(desc, "input", input, quantized8DTypes...); err != nil {
		return err
	}
	if input.DType.IsFloat() {
		if err := checkSameDType(desc, input, weights, "input", "weights"); err != nil {
			return err
		}
	} else if err := checkDType(desc, "weights", weights, input.DType, dtypes.QSymmS8); err != nil {
		return err
	}
	if bias == nil {
		return nil
	}
	biasDType := input.DType
	if input.IsQuantized() {
		biasDType = dtypes.Int32
	}
	if bias.DType != biasDType || bias.Rank() != 1 || bias.Dimensions[0] != units {
		return Errorf(InvalidParameter, "%s: bias must be %s [%d] for input %s, got %s",
			desc.Op, biasDType, units, input.DType, *bias)
	}
	return nil
}

// optionalBias returns the shape of the bias input #2 if enabled, and verifies the number of inputs.
func optionalBias(desc *backends.Descriptor, biasEnabled bool) (*shapes.Shape, error) {
	if !biasEnabled {
		return nil, checkArity(desc, 2, 2, 1)
	}
	if err := checkArity(desc, 3, 3, 1); err != nil {
		return nil, err
	}
	return &desc.Inputs[2], nil
}

// linearMultipliers returns the multipliers requantizing the accumulation of input by weights to the output:
// one per output channel for per-channel weights, or a single one. It returns nil for float inputs.
func linearMultipliers(input, weights, output shapes.Shape) ([]quantization.Multiplier, error) {
	if !input.IsQuantized() {
		return nil, nil
	}
	inQ, outQ := input.Quantization.Tensor(), output.Quantization.Tensor()
	if weights.Quantization.IsPerChannel() {
		return quantization.PerChannelMultipliers(inQ.Scale, weights.Quantization.Scales(), outQ.Scale)
	}
	m, err := quantization.ProductMultiplier(outQ, inQ, weights.Quantization.Tensor())
	if err != nil {
		return nil, err
	}
	return []quantization.Multiplier{m}, nil
}

func validateFullyConnected(_ *Backend, desc *backends.Descriptor) error {
	p, err := paramsOf[backends.FullyConnectedParams](desc)
	if err != nil {
		return err
	}
	bias, err := optionalBias(desc, p.BiasEnabled)
	if err != nil {
		return err
	}
	input, weights := desc.Inputs[0], desc.Inputs[1]
	expected, inputSize, err := shapeinference.FullyConnectedOp(input, weights, p.TransposeWeights)
	if err != nil {
		return err
	}
	if err = checkWeightsAndBias(desc, input, weights, bias, expected.Dimensions[1]); err != nil {
		return err
	}
	if err = checkOutput(desc, 0, expected); err != nil {
		return err
	}
	if err = quantization.CheckAccumulation(input.DType, weights.DType, inputSize); err != nil {
		return errors.WithMessagef(err, "%s", desc.Op)
	}
	_, err = linearMultipliers(input, weights, desc.Outputs[0])
	return err
}

func buildFullyConnected(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := desc.Params.(*backends.FullyConnectedParams)
	input, weights, output := inputs[0], inputs[1], outputs[0]
	var bias *backends.Buffer
	if p.BiasEnabled {
		bias = inputs[2]
	}
	_, inputSize, err := shapeinference.FullyConnectedOp(input.Shape(), weights.Shape(), p.TransposeWeights)
	if err != nil {
		return err
	}
	args := &backends.FullyConnectedArgs{
		Batch:            output.Shape().Dimensions[0],
		InputSize:        inputSize,
		Units:            output.Shape().Dimensions[1],
		TransposeWeights: p.TransposeWeights,
	}
	args.Multipliers, err = linearMultipliers(input.Shape(), weights.Shape(), output.Shape())
	if err != nil {
		return err
	}
	w.AddStep("fully connected", func() error { return b.provider.FullyConnected(args, input, weights, bias, output) })
	return nil
}

// convolutionParams returns the parameters of both convolution families as Convolution2dParams.
func convolutionParams(desc *backends.Descriptor) (*backends.Convolution2dParams, error) {
	if desc.Op == backends.OpTypeDepthwiseConvolution2d {
		p, err := paramsOf[backends.DepthwiseConvolution2dParams](desc)
		if err != nil {
			return nil, err
		}
		return (*backends.Convolution2dParams)(p), nil
	}
	return paramsOf[backends.Convolution2dParams](desc)
}

// inferConvolution returns the output shape, the depth multiplier (1 for Convolution2d) and the depth of the
// accumulation of one output value.
func inferConvolution(op backends.OpType, input, weights shapes.Shape, p *backends.Convolution2dParams) (
	output shapes.Shape, depthMultiplier, depth int, err error) {
	if op == backends.OpTypeDepthwiseConvolution2d {
		output, depthMultiplier, err = shapeinference.DepthwiseConvolution2dOp(input, weights, (*backends.DepthwiseConvolution2dParams)(p))
		if err != nil {
			return
		}
		depth = weights.Dimensions[1] * weights.Dimensions[2]
		return
	}
	output, err = shapeinference.Convolution2dOp(input, weights, p)
	if err != nil {
		return
	}
	_, inChannels, kernelHeight, kernelWidth := p.Layout.Dims(weights.Dimensions)
	return output, 1, inChannels * kernelHeight * kernelWidth, nil
}

func validateConvolution(_ *Backend, desc *backends.Descriptor) error {
	p, err := convolutionParams(desc)
	if err != nil {
		return err
	}
	bias, err := optionalBias(desc, p.BiasEnabled)
	if err != nil {
		return err
	}
	if p.Layout != backends.NCHW && p.Layout != backends.NHWC {
		return Errorf(InvalidParameter, "%s: invalid data layout %s", desc.Op, p.Layout)
	}
	input, weights := desc.Inputs[0], desc.Inputs[1]
	expected, _, depth, err := inferConvolution(desc.Op, input, weights, p)
	if err != nil {
		return err
	}
	outChannels := expected.Dimensions[p.Layout.ChannelAxis()]
	if err = checkWeightsAndBias(desc, input, weights, bias, outChannels); err != nil {
		return err
	}
	if q := weights.Quantization; q.IsPerChannel() {
		channelAxis := 0
		if desc.Op == backends.OpTypeDepthwiseConvolution2d {
			channelAxis = 3
		}
		if weights.DType != dtypes.QSymmS8 {
			return Errorf(InvalidParameter, "%s: per-channel quantized weights must be %s, got %s",
				desc.Op, dtypes.QSymmS8, weights.DType)
		}
		if q.Axis != channelAxis || len(q.Params) != outChannels {
			return Errorf(InvalidParameter,
				"%s: per-channel weights must be quantized along axis %d with %d output channels, got %s",
				desc.Op, channelAxis, outChannels, q)
		}
	}
	if err = checkOutput(desc, 0, expected); err != nil {
		return err
	}
	if err = quantization.CheckAccumulation(input.DType, weights.DType, depth); err != nil {
		return errors.WithMessagef(err, "%s", desc.Op)
	}
	_, err = linearMultipliers(input, weights, desc.Outputs[0])
	return err
}

// buildConvolution builds both convolution families. The weights of Convolution2d follow the data layout and are
// permuted with the input, the weights of DepthwiseConvolution2d don't.
func buildConvolution(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p, err := convolutionParams(desc)
	if err != nil {
		return err
	}
	input, weights, output := inputs[0], inputs[1], outputs[0]
	var bias *backends.Buffer
	if p.BiasEnabled {
		bias = inputs[2]
	}
	_, depthMultiplier, _, err := inferConvolution(desc.Op, input.Shape(), weights.Shape(), p)
	if err != nil {
		return err
	}
	multipliers, err := linearMultipliers(input.Shape(), weights.Shape(), output.Shape())
	if err != nil {
		return err
	}
	newArgs := func(layout backends.DataLayout) *backends.ConvolutionArgs {
		args := &backends.ConvolutionArgs{Convolution2dParams: *p, DepthMultiplier: depthMultiplier, Multipliers: multipliers}
		args.Layout = layout
		return args
	}
	if desc.Op == backends.OpTypeDepthwiseConvolution2d {
		b.addLayoutStep(w, "depthwise convolution", p.Layout, []*backends.Buffer{input}, output,
			func(layout backends.DataLayout, in []*backends.Buffer, out *backends.Buffer) error {
				return b.provider.DepthwiseConvolution2d(newArgs(layout), in[0], weights, bias, out)
			})
		return nil
	}
	b.addLayoutStep(w, "convolution", p.Layout, []*backends.Buffer{input, weights}, output,
		func(layout backends.DataLayout, in []*backends.Buffer, out *backends.Buffer) error {
			return b.provider.Convolution2d(newArgs(layout), in[0], in[1], bias, out)
		})
	return nil
}
