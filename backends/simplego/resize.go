// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/clbackend/backends"
	"github.com/pkg/errors"
)

// resizeScale returns the ratio between input and output coordinates.
func resizeScale(inSize, outSize int, alignCorners bool) float32 {
	if alignCorners && outSize > 1 {
		return float32(inSize-1) / float32(outSize-1)
	}
	return float32(inSize) / float32(outSize)
}

// sourceCoordinate returns the (fractional) input coordinate for the output coordinate.
func sourceCoordinate(out int, scale float32, halfPixelCenters bool) float32 {
	if halfPixelCenters {
		return (float32(out)+0.5)*scale - 0.5
	}
	return float32(out) * scale
}

// nearestIndex returns the input index of the nearest neighbor of the output coordinate.
func nearestIndex(out, inSize int, scale float32, args *backends.ResizeParams) int {
	var idx int
	switch {
	case args.AlignCorners:
		idx = int(math32.Round(float32(out) * scale))
	case args.HalfPixelCenters:
		idx = int(math32.Floor((float32(out) + 0.5) * scale))
	default:
		idx = int(math32.Floor(float32(out) * scale))
	}
	return min(max(idx, 0), inSize-1)
}

// bilinearIndices returns the two input indices around the output coordinate and the weight of the second one.
func bilinearIndices(out, inSize int, scale float32, halfPixelCenters bool) (i0, i1 int, frac float32) {
	src := max(sourceCoordinate(out, scale, halfPixelCenters), 0)
	i0 = min(int(math32.Floor(src)), inSize-1)
	i1 = min(i0+1, inSize-1)
	frac = src - float32(i0)
	if i0 == i1 {
		frac = 0
	}
	return
}

// Resize implements backends.KernelProvider, computed in float32.
func (p *Provider) Resize(args *backends.ResizeParams, input, output *backends.Buffer) error {
	if input.Shape().Rank() != 4 || output.Shape().Rank() != 4 {
		return errors.Errorf("Resize: requires rank 4 buffers, got input %s, output %s", input.Shape(), output.Shape())
	}
	layout := args.Layout
	inDims, outDims := input.Shape().Dimensions, output.Shape().Dimensions
	batch, channels, inHeight, inWidth := layout.Dims(inDims)
	_, _, outHeight, outWidth := layout.Dims(outDims)
	inStrides, outStrides := layoutStrides(layout, inDims), layoutStrides(layout, outDims)
	scaleY := resizeScale(inHeight, outHeight, args.AlignCorners)
	scaleX := resizeScale(inWidth, outWidth, args.AlignCorners)
	in := input.Float32s()
	out := make([]float32, output.Shape().Size())
	at := func(n, c, h, w int) float32 {
		return in[n*inStrides[0]+c*inStrides[1]+h*inStrides[2]+w*inStrides[3]]
	}
	for n := range batch {
		for c := range channels {
			for oh := range outHeight {
				for ow := range outWidth {
					var v float32
					if args.Method == backends.ResizeNearestNeighbor {
						v = at(n, c, nearestIndex(oh, inHeight, scaleY, args), nearestIndex(ow, inWidth, scaleX, args))
					} else {
						h0, h1, fy := bilinearIndices(oh, inHeight, scaleY, args.HalfPixelCenters)
						w0, w1, fx := bilinearIndices(ow, inWidth, scaleX, args.HalfPixelCenters)
						top := at(n, c, h0, w0)*(1-fx) + at(n, c, h0, w1)*fx
						bottom := at(n, c, h1, w0)*(1-fx) + at(n, c, h1, w1)*fx
						v = top*(1-fy) + bottom*fy
					}
					out[n*outStrides[0]+c*outStrides[1]+oh*outStrides[2]+ow*outStrides[3]] = v
				}
			}
		}
	}
	output.SetFloat32s(out)
	return nil
}
