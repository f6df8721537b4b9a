// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/clbackend/backends"
	"github.com/pkg/errors"
)

// This file implements the normalization families and softmax, computed in float32.

func check4D(kernel string, input, output *backends.Buffer) error {
	if input.Shape().Rank() != 4 {
		return errors.Errorf("%s: requires a rank 4 input, got %s", kernel, input.Shape())
	}
	return checkSize(kernel, input, output)
}

// BatchNormalization implements backends.KernelProvider (inference, with the given statistics).
func (p *Provider) BatchNormalization(args *backends.BatchNormalizationParams, input, output *backends.Buffer) error {
	if err := check4D("BatchNormalization", input, output); err != nil {
		return err
	}
	dims := input.Shape().Dimensions
	_, channels, _, _ := args.Layout.Dims(dims)
	for name, values := range map[string][]float32{"mean": args.Mean, "variance": args.Variance, "beta": args.Beta, "gamma": args.Gamma} {
		if len(values) != channels {
			return errors.Errorf("BatchNormalization: %s has %d values, input %s has %d channels", name, len(values), input.Shape(), channels)
		}
	}
	stride := layoutStrides(args.Layout, dims)[1]
	values := input.Float32s()
	for ii, v := range values {
		c := (ii / stride) % channels
		values[ii] = args.Gamma[c]*(v-args.Mean[c])/math32.Sqrt(args.Variance[c]+args.Eps) + args.Beta[c]
	}
	output.SetFloat32s(values)
	return nil
}

// InstanceNormalization implements backends.KernelProvider: each (batch, channel) plane is normalized by its own
// mean and variance.
func (p *Provider) InstanceNormalization(args *backends.InstanceNormalizationParams, input, output *backends.Buffer) error {
	if err := check4D("InstanceNormalization", input, output); err != nil {
		return err
	}
	dims := input.Shape().Dimensions
	batch, channels, height, width := args.Layout.Dims(dims)
	strides := layoutStrides(args.Layout, dims)
	values := input.Float32s()
	count := float32(height * width)
	for n := range batch {
		for c := range channels {
			base := n*strides[0] + c*strides[1]
			var sum, sumSquares float32
			for h := range height {
				for w := range width {
					v := values[base+h*strides[2]+w*strides[3]]
					sum += v
					sumSquares += v * v
				}
			}
			mean := sum / count
			variance := max(sumSquares/count-mean*mean, 0)
			scale := args.Gamma / math32.Sqrt(variance+args.Eps)
			for h := range height {
				for w := range width {
					idx := base + h*strides[2] + w*strides[3]
					values[idx] = (values[idx]-mean)*scale + args.Beta
				}
			}
		}
	}
	output.SetFloat32s(values)
	return nil
}

// L2Normalization implements backends.KernelProvider: each position is divided by the L2 norm across the channels.
func (p *Provider) L2Normalization(args *backends.L2NormalizationParams, input, output *backends.Buffer) error {
	if err := check4D("L2Normalization", input, output); err != nil {
		return err
	}
	dims := input.Shape().Dimensions
	batch, channels, height, width := args.Layout.Dims(dims)
	strides := layoutStrides(args.Layout, dims)
	values := input.Float32s()
	for n := range batch {
		for h := range height {
			for w := range width {
				base := n*strides[0] + h*strides[2] + w*strides[3]
				var sumSquares float32
				for c := range channels {
					v := values[base+c*strides[1]]
					sumSquares += v * v
				}
				inverseNorm := 1 / math32.Sqrt(max(sumSquares, args.Eps))
				for c := range channels {
					values[base+c*strides[1]] *= inverseNorm
				}
			}
		}
	}
	output.SetFloat32s(values)
	return nil
}

// Softmax implements backends.KernelProvider: exp(beta*(x-max)) normalized along the axis, or its log.
func (p *Provider) Softmax(args *backends.SoftmaxArgs, input, output *backends.Buffer) error {
	if err := checkSize("Softmax", input, output); err != nil {
		return err
	}
	dims := input.Shape().Dimensions
	if args.Axis < 0 || args.Axis >= len(dims) {
		return errors.Errorf("Softmax: axis %d out of range for %s", args.Axis, input.Shape())
	}
	outer, inner := 1, 1
	for axis, dim := range dims {
		if axis < args.Axis {
			outer *= dim
		} else if axis > args.Axis {
			inner *= dim
		}
	}
	axisDim := dims[args.Axis]
	values := input.Float32s()
	for o := range outer {
		for i := range inner {
			base := o*axisDim*inner + i
			maxValue := math32.Inf(-1)
			for k := range axisDim {
				maxValue = max(maxValue, values[base+k*inner])
			}
			var sum float32
			for k := range axisDim {
				sum += math32.Exp(args.Beta * (values[base+k*inner] - maxValue))
			}
			logSum := math32.Log(sum)
			for k := range axisDim {
				idx := base + k*inner
				shifted := args.Beta * (values[idx] - maxValue)
				if args.Log {
					values[idx] = shifted - logSum
				} else {
					values[idx] = math32.Exp(shifted) / sum
				}
			}
		}
	}
	output.SetFloat32s(values)
	return nil
}
