// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/clbackend/backends"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/pkg/errors"
)

// Pooling2d implements backends.KernelProvider. Values are pooled in float32.
//
// With PaddingIgnoreValue the padded positions count as zeros in the Average and L2 pooling; with
// PaddingExclude only the input positions are counted. Max pooling never considers the padding.
func (p *Provider) Pooling2d(args *backends.Pooling2dArgs, input, output *backends.Buffer) error {
	inDims, outDims := input.Shape().Dimensions, output.Shape().Dimensions
	if len(inDims) != 4 || len(outDims) != 4 {
		return errors.Errorf("Pooling2d: requires rank 4 buffers, got input %s, output %s", input.Shape(), output.Shape())
	}
	if args.StrideX <= 0 || args.StrideY <= 0 {
		return errors.Errorf("Pooling2d: invalid strides x=%d, y=%d", args.StrideX, args.StrideY)
	}
	switch args.Algorithm {
	case backends.PoolingMax, backends.PoolingAverage, backends.PoolingL2:
	default:
		return Errorf(InvalidParameter, "Pooling2d: unknown algorithm %s", args.Algorithm)
	}
	layout := args.Layout
	batch, channels, inHeight, inWidth := layout.Dims(inDims)
	_, _, outHeight, outWidth := layout.Dims(outDims)
	inStrides, outStrides := layoutStrides(layout, inDims), layoutStrides(layout, outDims)
	in := input.Float32s()
	out := make([]float32, output.Shape().Size())
	pad := args.Pad

	err := p.parallelFor(batch, func(n int) error {
		for c := range channels {
			for oh := range outHeight {
				hStart := oh*args.StrideY - pad.Top
				hEnd := min(hStart+args.PoolHeight, inHeight+pad.Bottom)
				for ow := range outWidth {
					wStart := ow*args.StrideX - pad.Left
					wEnd := min(wStart+args.PoolWidth, inWidth+pad.Right)
					count := (hEnd - hStart) * (wEnd - wStart)
					h0, h1 := max(hStart, 0), min(hEnd, inHeight)
					w0, w1 := max(wStart, 0), min(wEnd, inWidth)
					if args.PaddingMethod == backends.PaddingExclude {
						count = (h1 - h0) * (w1 - w0)
					}
					var result float32
					if h1 > h0 && w1 > w0 && count > 0 {
						result = poolWindow(args.Algorithm, in, n*inStrides[0]+c*inStrides[1], inStrides, h0, h1, w0, w1, count)
					}
					out[n*outStrides[0]+c*outStrides[1]+oh*outStrides[2]+ow*outStrides[3]] = result
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	output.SetFloat32s(out)
	return nil
}

// poolWindow reduces the window [h0, h1) x [w0, w1) of one (batch, channel) plane starting at base.
func poolWindow(algorithm backends.PoolingAlgorithm, in []float32, base int, strides [4]int, h0, h1, w0, w1, count int) float32 {
	var acc float32
	if algorithm == backends.PoolingMax {
		acc = math32.Inf(-1)
	}
	for h := h0; h < h1; h++ {
		for w := w0; w < w1; w++ {
			v := in[base+h*strides[2]+w*strides[3]]
			switch algorithm {
			case backends.PoolingMax:
				acc = max(acc, v)
			case backends.PoolingAverage:
				acc += v
			case backends.PoolingL2:
				acc += v * v
			}
		}
	}
	switch algorithm {
	case backends.PoolingAverage:
		acc /= float32(count)
	case backends.PoolingL2:
		acc = math32.Sqrt(acc / float32(count))
	}
	return acc
}
