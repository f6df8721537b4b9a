// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/pkg/errors"
)

// convGeometry holds the sizes and strides of a 2D convolution, in (batch, channel, height, width) order
// regardless of the data layout.
type convGeometry struct {
	batch, inChannels, inHeight, inWidth   int
	outChannels, outHeight, outWidth       int
	kernelHeight, kernelWidth              int
	strideX, strideY, dilationX, dilationY int
	padTop, padLeft                        int
	inStrides, outStrides, weightStrides   [4]int
	depthwise                              bool
	depthMultiplier                        int
}

// layoutStrides returns the strides of the 4D dimensions in (batch, channel, height, width) order.
func layoutStrides(layout backends.DataLayout, dims []int) (strides [4]int) {
	flatStrides := shapes.StridesFor(dims)
	n, c, h, w := layout.Axes()
	return [4]int{flatStrides[n], flatStrides[c], flatStrides[h], flatStrides[w]}
}

func newConvGeometry(args *backends.ConvolutionArgs, depthwise bool, input, weights, output *backends.Buffer) (*convGeometry, error) {
	layout := args.Layout
	inDims, wDims, outDims := input.Shape().Dimensions, weights.Shape().Dimensions, output.Shape().Dimensions
	if len(inDims) != 4 || len(wDims) != 4 || len(outDims) != 4 {
		return nil, errors.Errorf("convolution requires rank 4 buffers, got input %s, weights %s, output %s",
			input.Shape(), weights.Shape(), output.Shape())
	}
	g := &convGeometry{
		strideX: args.StrideX, strideY: args.StrideY, dilationX: args.DilationX, dilationY: args.DilationY,
		padTop: args.Pad.Top, padLeft: args.Pad.Left,
		depthwise: depthwise, depthMultiplier: args.DepthMultiplier,
	}
	g.batch, g.inChannels, g.inHeight, g.inWidth = layout.Dims(inDims)
	_, g.outChannels, g.outHeight, g.outWidth = layout.Dims(outDims)
	g.inStrides = layoutStrides(layout, inDims)
	g.outStrides = layoutStrides(layout, outDims)
	if depthwise {
		// [1, H, W, I*M] for any layout.
		g.kernelHeight, g.kernelWidth = wDims[1], wDims[2]
		flatStrides := shapes.StridesFor(wDims)
		g.weightStrides = [4]int{0, flatStrides[3], flatStrides[1], flatStrides[2]}
		if g.depthMultiplier <= 0 || g.outChannels != g.inChannels*g.depthMultiplier {
			return nil, errors.Errorf("depthwise convolution: output %s doesn't match input %s with depth multiplier %d",
				output.Shape(), input.Shape(), g.depthMultiplier)
		}
	} else {
		// Weights are laid out as a "batch" of output channels: [O, I, H, W] or [O, H, W, I].
		var weightsInChannels int
		_, weightsInChannels, g.kernelHeight, g.kernelWidth = layout.Dims(wDims)
		if weightsInChannels != g.inChannels {
			return nil, errors.Errorf("convolution: weights %s don't match input %s", weights.Shape(), input.Shape())
		}
		g.weightStrides = layoutStrides(layout, wDims)
	}
	if g.strideX <= 0 || g.strideY <= 0 || g.dilationX <= 0 || g.dilationY <= 0 {
		return nil, errors.Errorf("convolution: invalid strides or dilations in %+v", args.Convolution2dParams)
	}
	return g, nil
}

// convolve accumulates the convolution of the input and weights values (already centered for quantized values,
// so that padding is 0) into the output, one goroutine per batch example.
func convolve[T float32 | int64](p *Provider, g *convGeometry, input, weights, output []T) error {
	return p.parallelFor(g.batch, func(n int) error {
		for oc := range g.outChannels {
			for oh := range g.outHeight {
				for ow := range g.outWidth {
					var sum T
					icStart, icEnd := 0, g.inChannels
					if g.depthwise {
						icStart = oc / g.depthMultiplier
						icEnd = icStart + 1
					}
					for ic := icStart; ic < icEnd; ic++ {
						for kh := range g.kernelHeight {
							ih := oh*g.strideY - g.padTop + kh*g.dilationY
							if ih < 0 || ih >= g.inHeight {
								continue
							}
							for kw := range g.kernelWidth {
								iw := ow*g.strideX - g.padLeft + kw*g.dilationX
								if iw < 0 || iw >= g.inWidth {
									continue
								}
								inIdx := n*g.inStrides[0] + ic*g.inStrides[1] + ih*g.inStrides[2] + iw*g.inStrides[3]
								var wIdx int
								if g.depthwise {
									wIdx = oc*g.weightStrides[1] + kh*g.weightStrides[2] + kw*g.weightStrides[3]
								} else {
									wIdx = oc*g.weightStrides[0] + ic*g.weightStrides[1] + kh*g.weightStrides[2] + kw*g.weightStrides[3]
								}
								sum += input[inIdx] * weights[wIdx]
							}
						}
					}
					output[n*g.outStrides[0]+oc*g.outStrides[1]+oh*g.outStrides[2]+ow*g.outStrides[3]] = sum
				}
			}
		}
		return nil
	})
}

// channelOfOutput returns the function mapping a flat output index to its output channel.
func (g *convGeometry) channelOfOutput() func(int) int {
	stride, dim := g.outStrides[1], g.outChannels
	return func(flatIdx int) int { return (flatIdx / stride) % dim }
}

func (p *Provider) convolution(name string, args *backends.ConvolutionArgs, depthwise bool, input, weights, bias, output *backends.Buffer) error {
	g, err := newConvGeometry(args, depthwise, input, weights, output)
	if err != nil {
		return errors.WithMessage(err, name)
	}
	if bias != nil && bias.Shape().Size() != g.outChannels {
		return errors.Errorf("%s: bias %s doesn't match %d output channels", name, bias.Shape(), g.outChannels)
	}
	channelOf := g.channelOfOutput()
	if input.Shape().DType.IsQuantized() {
		acc := make([]int64, output.Shape().Size())
		if err := convolve(p, g, centered(input), centered(weights), acc); err != nil {
			return err
		}
		if bias != nil {
			biasValues := bias.Ints()
			for ii := range acc {
				acc[ii] += int64(biasValues[channelOf(ii)])
			}
		}
		return requantizeTo(output, acc, args.Multipliers, channelOf)
	}
	out := make([]float32, output.Shape().Size())
	if err := convolve(p, g, input.Float32s(), weights.Float32s(), out); err != nil {
		return err
	}
	if bias != nil {
		biasValues := bias.Float32s()
		for ii := range out {
			out[ii] += biasValues[channelOf(ii)]
		}
	}
	output.SetFloat32s(out)
	return nil
}

// Convolution2d implements backends.KernelProvider.
func (p *Provider) Convolution2d(args *backends.ConvolutionArgs, input, weights, bias, output *backends.Buffer) error {
	return p.convolution("Convolution2d", args, false, input, weights, bias, output)
}

// DepthwiseConvolution2d implements backends.KernelProvider.
func (p *Provider) DepthwiseConvolution2d(args *backends.ConvolutionArgs, input, weights, bias, output *backends.Buffer) error {
	return p.convolution("DepthwiseConvolution2d", args, true, input, weights, bias, output)
}
