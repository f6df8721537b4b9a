// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package notimplemented

import (
	"github.com/gomlx/clbackend/backends"
	"github.com/pkg/errors"
)

// Provider implements backends.KernelProvider returning NotImplementedError for every entry point.
type Provider struct{}

var _ backends.KernelProvider = Provider{}

// Name returns "notimplemented".
func (Provider) Name() string { return "notimplemented" }

// Activation returns NotImplementedError.
func (Provider) Activation(*backends.ActivationArgs, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Activation()")
}

// ElementwiseUnary returns NotImplementedError.
func (Provider) ElementwiseUnary(*backends.ElementwiseUnaryArgs, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in ElementwiseUnary()")
}

// ElementwiseBinary returns NotImplementedError.
func (Provider) ElementwiseBinary(*backends.BinaryArgs, *backends.Buffer, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in ElementwiseBinary()")
}

// Comparison returns NotImplementedError.
func (Provider) Comparison(*backends.BinaryArgs, *backends.Buffer, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Comparison()")
}

// FullyConnected returns NotImplementedError.
func (Provider) FullyConnected(*backends.FullyConnectedArgs, *backends.Buffer, *backends.Buffer, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in FullyConnected()")
}

// Convolution2d returns NotImplementedError.
func (Provider) Convolution2d(*backends.ConvolutionArgs, *backends.Buffer, *backends.Buffer, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Convolution2d()")
}

// DepthwiseConvolution2d returns NotImplementedError.
func (Provider) DepthwiseConvolution2d(*backends.ConvolutionArgs, *backends.Buffer, *backends.Buffer, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in DepthwiseConvolution2d()")
}

// Pooling2d returns NotImplementedError.
func (Provider) Pooling2d(*backends.Pooling2dArgs, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Pooling2d()")
}

// BatchNormalization returns NotImplementedError.
func (Provider) BatchNormalization(*backends.BatchNormalizationParams, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in BatchNormalization()")
}

// InstanceNormalization returns NotImplementedError.
func (Provider) InstanceNormalization(*backends.InstanceNormalizationParams, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in InstanceNormalization()")
}

// L2Normalization returns NotImplementedError.
func (Provider) L2Normalization(*backends.L2NormalizationParams, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in L2Normalization()")
}

// Softmax returns NotImplementedError.
func (Provider) Softmax(*backends.SoftmaxArgs, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Softmax()")
}

// Copy returns NotImplementedError.
func (Provider) Copy(*backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Copy()")
}

// Permute returns NotImplementedError.
func (Provider) Permute(*backends.PermuteArgs, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Permute()")
}

// Concat returns NotImplementedError.
func (Provider) Concat(*backends.ConcatArgs, []*backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Concat()")
}

// Pad returns NotImplementedError.
func (Provider) Pad(*backends.PadParams, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Pad()")
}

// Resize returns NotImplementedError.
func (Provider) Resize(*backends.ResizeParams, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Resize()")
}

// SpaceToDepth returns NotImplementedError.
func (Provider) SpaceToDepth(*backends.SpaceDepthParams, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in SpaceToDepth()")
}

// DepthToSpace returns NotImplementedError.
func (Provider) DepthToSpace(*backends.SpaceDepthParams, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in DepthToSpace()")
}

// Mean returns NotImplementedError.
func (Provider) Mean(*backends.MeanArgs, *backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Mean()")
}

// Quantize returns NotImplementedError.
func (Provider) Quantize(*backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Quantize()")
}

// Dequantize returns NotImplementedError.
func (Provider) Dequantize(*backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in Dequantize()")
}

// ConvertDType returns NotImplementedError.
func (Provider) ConvertDType(*backends.Buffer, *backends.Buffer) error {
	return errors.Wrapf(NotImplementedError, "in ConvertDType()")
}
