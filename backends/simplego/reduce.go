// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"slices"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Mean implements backends.KernelProvider, computed in float32. The output has the size of the input with the
// reduced axes removed (or kept with dimension 1).
func (p *Provider) Mean(args *backends.MeanArgs, input, output *backends.Buffer) error {
	inShape := input.Shape()
	var keptDims []int
	count := 1
	for axis, dim := range inShape.Dimensions {
		if slices.Contains(args.Axes, axis) {
			count *= dim
		} else {
			keptDims = append(keptDims, dim)
		}
	}
	for _, axis := range args.Axes {
		if axis < 0 || axis >= inShape.Rank() {
			return errors.Errorf("Mean: axis %d out of range for input %s", axis, inShape)
		}
	}
	outSize := 1
	for _, dim := range keptDims {
		outSize *= dim
	}
	if output.Shape().Size() != outSize {
		return errors.Errorf("Mean: output %s doesn't match input %s reduced on axes %v", output.Shape(), inShape, args.Axes)
	}

	// reducedStrides: strides of the output for the kept axes, 0 for the reduced ones.
	keptStrides := shapes.StridesFor(keptDims)
	reducedStrides := make([]int, inShape.Rank())
	keptIdx := 0
	for axis := range inShape.Dimensions {
		if !slices.Contains(args.Axes, axis) {
			reducedStrides[axis] = keptStrides[keptIdx]
			keptIdx++
		}
	}
	in := input.Float32s()
	out := make([]float32, outSize)
	for flatIdx, indices := range inShape.Iter() {
		out[shapes.FlatIndex(indices, reducedStrides)] += in[flatIdx]
	}
	for ii := range out {
		out[ii] /= float32(count)
	}
	output.SetFloat32s(out)
	return nil
}
