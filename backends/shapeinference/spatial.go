// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
)

// check4D verifies that shape has rank 4, the rank of all layout sensitive families.
func check4D(opType backends.OpType, name string, shape shapes.Shape) error {
	if shape.Rank() != 4 {
		return Errorf(UnsupportedConfiguration, "%s: %s must have rank 4, got %s", opType, name, shape)
	}
	return nil
}

// windowOutputDim returns the number of windows of a dimension.
func windowOutputDim(inputDim, padBefore, padAfter, window, stride int, ceil bool) int {
	span := inputDim + padBefore + padAfter - window
	if span < 0 {
		return 0
	}
	if ceil {
		return (span+stride-1)/stride + 1
	}
	return span/stride + 1
}

func checkConvParams(opType backends.OpType, p *backends.Convolution2dParams, kernelHeight, kernelWidth int) error {
	if p.StrideX <= 0 || p.StrideY <= 0 {
		return Errorf(InvalidParameter, "%s: strides must be positive, got x=%d, y=%d", opType, p.StrideX, p.StrideY)
	}
	if p.DilationX <= 0 || p.DilationY <= 0 {
		return Errorf(InvalidParameter, "%s: dilations must be positive, got x=%d, y=%d", opType, p.DilationX, p.DilationY)
	}
	pad := p.Pad
	if pad.Left < 0 || pad.Right < 0 || pad.Top < 0 || pad.Bottom < 0 {
		return Errorf(InvalidParameter, "%s: paddings must be non-negative, got %+v", opType, pad)
	}
	dilatedHeight := (kernelHeight-1)*p.DilationY + 1
	dilatedWidth := (kernelWidth-1)*p.DilationX + 1
	if pad.Top >= dilatedHeight || pad.Bottom >= dilatedHeight || pad.Left >= dilatedWidth || pad.Right >= dilatedWidth {
		return Errorf(InvalidParameter, "%s: paddings %+v must be smaller than the dilated kernel %dx%d",
			opType, pad, dilatedHeight, dilatedWidth)
	}
	return nil
}

// Convolution2dOp returns the output shape of a 2D convolution. The weights follow the data layout, see
// backends.Convolution2dParams.
func Convolution2dOp(input, weights shapes.Shape, p *backends.Convolution2dParams) (output shapes.Shape, err error) {
	opType := backends.OpTypeConvolution2d
	if err = check4D(opType, "input", input); err != nil {
		return
	}
	if err = check4D(opType, "weights", weights); err != nil {
		return
	}
	batch, inChannels, height, width := p.Layout.Dims(input.Dimensions)
	// Weights are [O, I, H, W] for NCHW and [O, H, W, I] for NHWC: as a "batch" of output channels.
	outChannels, weightsInChannels, kernelHeight, kernelWidth := p.Layout.Dims(weights.Dimensions)
	if weightsInChannels != inChannels {
		err = Errorf(InvalidParameter, "%s: weights %s have %d input channels, but input %s has %d",
			opType, weights, weightsInChannels, input, inChannels)
		return
	}
	if err = checkConvParams(opType, p, kernelHeight, kernelWidth); err != nil {
		return
	}
	outHeight := windowOutputDim(height, p.Pad.Top, p.Pad.Bottom, (kernelHeight-1)*p.DilationY+1, p.StrideY, false)
	outWidth := windowOutputDim(width, p.Pad.Left, p.Pad.Right, (kernelWidth-1)*p.DilationX+1, p.StrideX, false)
	if outHeight <= 0 || outWidth <= 0 {
		err = Errorf(InvalidParameter, "%s: kernel %dx%d (dilated) larger than padded input %s", opType, kernelHeight, kernelWidth, input)
		return
	}
	output = shapes.Make(input.DType, p.Layout.MakeDims(batch, outChannels, outHeight, outWidth)...)
	return
}

// DepthwiseConvolution2dOp returns the output shape of a depthwise 2D convolution, and its depth multiplier.
// The weights are [1, kernelHeight, kernelWidth, inputChannels*depthMultiplier] for any layout.
func DepthwiseConvolution2dOp(input, weights shapes.Shape, p *backends.DepthwiseConvolution2dParams) (output shapes.Shape, depthMultiplier int, err error) {
	opType := backends.OpTypeDepthwiseConvolution2d
	if err = check4D(opType, "input", input); err != nil {
		return
	}
	if err = check4D(opType, "weights", weights); err != nil {
		return
	}
	batch, inChannels, height, width := p.Layout.Dims(input.Dimensions)
	if weights.Dimensions[0] != 1 || weights.Dimensions[3]%inChannels != 0 {
		err = Errorf(InvalidParameter, "%s: weights must be [1, H, W, %d*depthMultiplier], got %s",
			opType, inChannels, weights)
		return
	}
	depthMultiplier = weights.Dimensions[3] / inChannels
	kernelHeight, kernelWidth := weights.Dimensions[1], weights.Dimensions[2]
	convParams := backends.Convolution2dParams(*p)
	if err = checkConvParams(opType, &convParams, kernelHeight, kernelWidth); err != nil {
		return
	}
	outHeight := windowOutputDim(height, p.Pad.Top, p.Pad.Bottom, (kernelHeight-1)*p.DilationY+1, p.StrideY, false)
	outWidth := windowOutputDim(width, p.Pad.Left, p.Pad.Right, (kernelWidth-1)*p.DilationX+1, p.StrideX, false)
	if outHeight <= 0 || outWidth <= 0 {
		err = Errorf(InvalidParameter, "%s: kernel %dx%d (dilated) larger than padded input %s", opType, kernelHeight, kernelWidth, input)
		return
	}
	output = shapes.Make(input.DType, p.Layout.MakeDims(batch, inChannels*depthMultiplier, outHeight, outWidth)...)
	return
}

// Pooling2dOp returns the output shape of a 2D pooling.
func Pooling2dOp(input shapes.Shape, p *backends.Pooling2dParams) (output shapes.Shape, err error) {
	opType := backends.OpTypePooling2d
	if err = check4D(opType, "input", input); err != nil {
		return
	}
	if p.PoolWidth <= 0 || p.PoolHeight <= 0 || p.StrideX <= 0 || p.StrideY <= 0 {
		err = Errorf(InvalidParameter, "%s: pool sizes and strides must be positive, got pool %dx%d, strides x=%d, y=%d",
			opType, p.PoolHeight, p.PoolWidth, p.StrideX, p.StrideY)
		return
	}
	pad := p.Pad
	if pad.Left < 0 || pad.Right < 0 || pad.Top < 0 || pad.Bottom < 0 {
		err = Errorf(InvalidParameter, "%s: paddings must be non-negative, got %+v", opType, pad)
		return
	}
	if pad.Top >= p.PoolHeight || pad.Bottom >= p.PoolHeight || pad.Left >= p.PoolWidth || pad.Right >= p.PoolWidth {
		err = Errorf(InvalidParameter, "%s: paddings %+v must be smaller than the pool %dx%d", opType, pad, p.PoolHeight, p.PoolWidth)
		return
	}
	batch, channels, height, width := p.Layout.Dims(input.Dimensions)
	ceil := p.Rounding == backends.RoundingCeiling
	outHeight := windowOutputDim(height, pad.Top, pad.Bottom, p.PoolHeight, p.StrideY, ceil)
	outWidth := windowOutputDim(width, pad.Left, pad.Right, p.PoolWidth, p.StrideX, ceil)
	if outHeight <= 0 || outWidth <= 0 {
		err = Errorf(InvalidParameter, "%s: pool %dx%d larger than padded input %s", opType, p.PoolHeight, p.PoolWidth, input)
		return
	}
	output = shapes.Make(input.DType, p.Layout.MakeDims(batch, channels, outHeight, outWidth)...)
	return
}

// ResizeOp returns the output shape of a spatial resize.
func ResizeOp(input shapes.Shape, p *backends.ResizeParams) (output shapes.Shape, err error) {
	opType := backends.OpTypeResize
	if err = check4D(opType, "input", input); err != nil {
		return
	}
	if p.TargetHeight <= 0 || p.TargetWidth <= 0 {
		err = Errorf(InvalidParameter, "%s: target size must be positive, got %dx%d", opType, p.TargetHeight, p.TargetWidth)
		return
	}
	if p.AlignCorners && p.HalfPixelCenters {
		err = Errorf(InvalidParameter, "%s: AlignCorners and HalfPixelCenters can't both be set", opType)
		return
	}
	if p.Method != backends.ResizeBilinear && p.Method != backends.ResizeNearestNeighbor {
		err = Errorf(InvalidParameter, "%s: unknown method %d", opType, p.Method)
		return
	}
	batch, channels, _, _ := p.Layout.Dims(input.Dimensions)
	output = shapes.Make(input.DType, p.Layout.MakeDims(batch, channels, p.TargetHeight, p.TargetWidth)...)
	return
}

// SpaceToDepthOp returns the output shape of moving blockSize x blockSize spatial blocks into the channels.
func SpaceToDepthOp(input shapes.Shape, p *backends.SpaceDepthParams) (output shapes.Shape, err error) {
	opType := backends.OpTypeSpaceToDepth
	if err = check4D(opType, "input", input); err != nil {
		return
	}
	if p.BlockSize <= 0 {
		err = Errorf(InvalidParameter, "%s: block size must be positive, got %d", opType, p.BlockSize)
		return
	}
	batch, channels, height, width := p.Layout.Dims(input.Dimensions)
	if height%p.BlockSize != 0 || width%p.BlockSize != 0 {
		err = Errorf(InvalidParameter, "%s: spatial dimensions %dx%d must be divisible by the block size %d",
			opType, height, width, p.BlockSize)
		return
	}
	bs := p.BlockSize
	output = shapes.Make(input.DType, p.Layout.MakeDims(batch, channels*bs*bs, height/bs, width/bs)...)
	return
}

// DepthToSpaceOp returns the output shape of moving channels into blockSize x blockSize spatial blocks.
func DepthToSpaceOp(input shapes.Shape, p *backends.SpaceDepthParams) (output shapes.Shape, err error) {
	opType := backends.OpTypeDepthToSpace
	if err = check4D(opType, "input", input); err != nil {
		return
	}
	if p.BlockSize <= 0 {
		err = Errorf(InvalidParameter, "%s: block size must be positive, got %d", opType, p.BlockSize)
		return
	}
	batch, channels, height, width := p.Layout.Dims(input.Dimensions)
	bs := p.BlockSize
	if channels%(bs*bs) != 0 {
		err = Errorf(InvalidParameter, "%s: channels %d must be divisible by the squared block size %d",
			opType, channels, bs*bs)
		return
	}
	output = shapes.Make(input.DType, p.Layout.MakeDims(batch, channels/(bs*bs), height*bs, width*bs)...)
	return
}
