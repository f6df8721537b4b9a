// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"reflect"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/pkg/errors"
)

// This file implements the data movement kernels. Values are moved without conversion when the input and output
// are stored the same way (same dtype and quantization) and requantized otherwise.

// Copy implements backends.KernelProvider.
func (p *Provider) Copy(input, output *backends.Buffer) error {
	return convertValues("Copy", input, output)
}

// Permute implements backends.KernelProvider: output axis i reads source axis Permutation[i].
func (p *Provider) Permute(args *backends.PermuteArgs, input, output *backends.Buffer) error {
	inShape, outShape := input.Shape(), output.Shape()
	rank := inShape.Rank()
	if len(args.Permutation) != rank || outShape.Rank() != rank {
		return errors.Errorf("Permute: permutation %v doesn't match input %s and output %s", args.Permutation, inShape, outShape)
	}
	inStrides := inShape.Strides()
	permutedStrides := make([]int, rank)
	for axis, srcAxis := range args.Permutation {
		if srcAxis < 0 || srcAxis >= rank || outShape.Dimensions[axis] != inShape.Dimensions[srcAxis] {
			return errors.Errorf("Permute: permutation %v doesn't match input %s and output %s", args.Permutation, inShape, outShape)
		}
		permutedStrides[axis] = inStrides[srcAxis]
	}
	srcIndices := make([]int, outShape.Size())
	for flatIdx, indices := range outShape.Iter() {
		srcIndices[flatIdx] = shapes.FlatIndex(indices, permutedStrides)
	}
	return gather(input, output, srcIndices, 0)
}

// Concat implements backends.KernelProvider.
func (p *Provider) Concat(args *backends.ConcatArgs, inputs []*backends.Buffer, output *backends.Buffer) error {
	outShape := output.Shape()
	axis := args.Axis
	if axis < 0 || axis >= outShape.Rank() {
		return errors.Errorf("Concat: axis %d out of range for output %s", axis, outShape)
	}
	outer, inner := 1, 1
	for ii, dim := range outShape.Dimensions {
		if ii < axis {
			outer *= dim
		} else if ii > axis {
			inner *= dim
		}
	}
	outAxisDim := outShape.Dimensions[axis]
	outValue := reflect.ValueOf(output.Flat())
	offset := 0
	for ii, input := range inputs {
		inShape := input.Shape()
		if inShape.Rank() != outShape.Rank() {
			return errors.Errorf("Concat: input #%d %s doesn't match output %s", ii, inShape, outShape)
		}
		axisDim := inShape.Dimensions[axis]
		if offset+axisDim > outAxisDim || inShape.Size() != outer*axisDim*inner {
			return errors.Errorf("Concat: input #%d %s doesn't fit output %s", ii, inShape, outShape)
		}
		inValue := reflect.ValueOf(asOutput(input, output).Flat())
		chunk := axisDim * inner
		for o := range outer {
			dst := (o*outAxisDim + offset) * inner
			reflect.Copy(outValue.Slice(dst, dst+chunk), inValue.Slice(o*chunk, (o+1)*chunk))
		}
		offset += axisDim
	}
	if offset != outAxisDim {
		return errors.Errorf("Concat: inputs fill %d of the %d positions of axis %d of output %s", offset, outAxisDim, axis, outShape)
	}
	return nil
}

// Pad implements backends.KernelProvider.
func (p *Provider) Pad(args *backends.PadParams, input, output *backends.Buffer) error {
	inShape, outShape := input.Shape(), output.Shape()
	rank := inShape.Rank()
	if len(args.Padding) != rank || outShape.Rank() != rank {
		return errors.Errorf("Pad: padding %v doesn't match input %s and output %s", args.Padding, inShape, outShape)
	}
	inStrides := inShape.Strides()
	srcIndices := make([]int, outShape.Size())
	for flatIdx, indices := range outShape.Iter() {
		srcIdx := 0
		for axis, idx := range indices {
			idx -= args.Padding[axis][0]
			if idx < 0 || idx >= inShape.Dimensions[axis] {
				srcIdx = -1
				break
			}
			srcIdx += idx * inStrides[axis]
		}
		srcIndices[flatIdx] = srcIdx
	}
	return gather(input, output, srcIndices, args.Value)
}

// SpaceToDepth implements backends.KernelProvider: each blockSize x blockSize block of positions moves to the
// channels, with depth index (blockRow*blockSize + blockColumn)*channels + channel.
func (p *Provider) SpaceToDepth(args *backends.SpaceDepthParams, input, output *backends.Buffer) error {
	return spaceDepth("SpaceToDepth", args, input, output, true)
}

// DepthToSpace implements backends.KernelProvider, the inverse of SpaceToDepth.
func (p *Provider) DepthToSpace(args *backends.SpaceDepthParams, input, output *backends.Buffer) error {
	return spaceDepth("DepthToSpace", args, input, output, false)
}

func spaceDepth(kernel string, args *backends.SpaceDepthParams, input, output *backends.Buffer, toDepth bool) error {
	if err := check4D(kernel, input, output); err != nil {
		return err
	}
	bs := args.BlockSize
	if bs <= 0 {
		return errors.Errorf("%s: invalid block size %d", kernel, bs)
	}
	layout := args.Layout
	inDims, outDims := input.Shape().Dimensions, output.Shape().Dimensions
	inStrides := layoutStrides(layout, inDims)
	batch, outChannels, outHeight, outWidth := layout.Dims(outDims)
	_, inChannels, _, _ := layout.Dims(inDims)
	outStrides := layoutStrides(layout, outDims)
	srcIndices := make([]int, output.Shape().Size())
	for n := range batch {
		for c := range outChannels {
			for h := range outHeight {
				for w := range outWidth {
					var srcC, srcH, srcW int
					if toDepth {
						block := c / inChannels
						srcC, srcH, srcW = c%inChannels, h*bs+block/bs, w*bs+block%bs
					} else {
						srcC, srcH, srcW = ((h%bs)*bs+w%bs)*outChannels+c, h/bs, w/bs
					}
					srcIndices[n*outStrides[0]+c*outStrides[1]+h*outStrides[2]+w*outStrides[3]] =
						n*inStrides[0] + srcC*inStrides[1] + srcH*inStrides[2] + srcW*inStrides[3]
				}
			}
		}
	}
	return gather(input, output, srcIndices, 0)
}
