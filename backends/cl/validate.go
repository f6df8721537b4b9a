// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"slices"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// family of operators: how an instance is validated and how its workload is built.
//
// The validate function only sees the descriptor. The build function is only called after validate succeeded,
// with buffers whose shapes equal the descriptor's.
type family struct {
	validate func(b *Backend, desc *backends.Descriptor) error
	build    func(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error
}

// families maps each supported operator family to its implementation.
var families = map[backends.OpType]family{
	backends.OpTypeActivation:       {validateActivation, buildActivation},
	backends.OpTypeElementwiseUnary: {validateElementwiseUnary, buildElementwiseUnary},
	backends.OpTypeAddition:         {validateBinary, buildBinary},
	backends.OpTypeSubtraction:      {validateBinary, buildBinary},
	backends.OpTypeMultiplication:   {validateBinary, buildBinary},
	backends.OpTypeDivision:         {validateBinary, buildBinary},
	backends.OpTypeMaximum:          {validateBinary, buildBinary},
	backends.OpTypeMinimum:          {validateBinary, buildBinary},
	backends.OpTypeComparison:       {validateBinary, buildBinary},

	backends.OpTypeFullyConnected:         {validateFullyConnected, buildFullyConnected},
	backends.OpTypeConvolution2d:          {validateConvolution, buildConvolution},
	backends.OpTypeDepthwiseConvolution2d: {validateConvolution, buildConvolution},
	backends.OpTypePooling2d:              {validatePooling, buildPooling},
	backends.OpTypeBatchNormalization:     {validateNormalization, buildNormalization},
	backends.OpTypeInstanceNormalization:  {validateNormalization, buildNormalization},
	backends.OpTypeL2Normalization:        {validateNormalization, buildNormalization},
	backends.OpTypeSoftmax:                {validateSoftmax, buildSoftmax},
	backends.OpTypeResize:                 {validateResize, buildResize},
	backends.OpTypeSpaceToDepth:           {validateSpaceDepth, buildSpaceDepth},
	backends.OpTypeDepthToSpace:           {validateSpaceDepth, buildSpaceDepth},

	backends.OpTypeReshape:   {validateReshape, buildReshape},
	backends.OpTypePermute:   {validateTranspose, buildTranspose},
	backends.OpTypeTranspose: {validateTranspose, buildTranspose},
	backends.OpTypeConcat:    {validateConcat, buildConcat},
	backends.OpTypePad:       {validatePad, buildPad},
	backends.OpTypeMean:      {validateMean, buildMean},

	backends.OpTypeQuantize:          {validateConversion, buildConversion},
	backends.OpTypeDequantize:        {validateConversion, buildConversion},
	backends.OpTypeConvertFp16ToFp32: {validateConversion, buildConversion},
	backends.OpTypeConvertFp32ToFp16: {validateConversion, buildConversion},

	backends.OpTypeLstm:                       {validateLstm, buildLstm},
	backends.OpTypeUnidirectionalSequenceLstm: {validateLstm, buildLstm},
	backends.OpTypeQLstm:                      {validateQLstm, buildQLstm},
	backends.OpTypeQuantizedLstm:              {validateQuantizedLstm, buildQuantizedLstm},
}

// DType groups used by the validators.
var (
	floatDTypes      = []dtypes.DType{dtypes.Float32, dtypes.Float16}
	arithmeticDTypes = []dtypes.DType{dtypes.Float32, dtypes.Float16, dtypes.Int32, dtypes.QAsymmU8, dtypes.QAsymmS8}
	quantized8DTypes = []dtypes.DType{dtypes.Float32, dtypes.Float16, dtypes.QAsymmU8, dtypes.QAsymmS8}
	movementDTypes   = []dtypes.DType{dtypes.Float32, dtypes.Float16, dtypes.QAsymmU8, dtypes.QAsymmS8, dtypes.QSymmS16}
	allDTypes        = []dtypes.DType{dtypes.Float32, dtypes.Float16, dtypes.Int32, dtypes.Bool,
		dtypes.QAsymmU8, dtypes.QAsymmS8, dtypes.QSymmS8, dtypes.QSymmS16}
)

// IsSupported implements backends.Backend. It never panics: panics of the validation are converted to a rejection.
func (b *Backend) IsSupported(desc *backends.Descriptor) backends.Decision {
	err := b.validateSafe(desc)
	if err != nil {
		if klog.V(2).Enabled() {
			klog.Infof("backend %q rejected %s: %v", BackendName, desc, err)
		}
		return backends.Reject(err)
	}
	return backends.Accept()
}

// validateSafe runs validate, converting panics to errors.
func (b *Backend) validateSafe(desc *backends.Descriptor) (err error) {
	exception := exceptions.TryCatch[error](func() { err = b.validate(desc) })
	if exception != nil {
		return errors.WithMessagef(exception, "validating %s", desc)
	}
	return err
}

// validate the rules shared by all families, and then the family specific ones.
func (b *Backend) validate(desc *backends.Descriptor) error {
	if desc == nil {
		return Errorf(InvalidParameter, "nil operator descriptor")
	}
	f, found := families[desc.Op]
	if !found || !Capabilities.Operations[desc.Op] {
		return Errorf(UnsupportedConfiguration, "operator family %s not supported by backend %q", desc.Op, BackendName)
	}
	check := func(kind string, operands []shapes.Shape) error {
		for ii, shape := range operands {
			name := fmt.Sprintf("%s %s #%d", desc.Op, kind, ii)
			if err := shape.Check(name, false); err != nil {
				return err
			}
			if shape.DType == dtypes.Float16 && !b.config.Fp16 {
				return Errorf(UnsupportedConfiguration, "%s: Float16 disabled in the configuration of backend %q", name, BackendName)
			}
			if shape.Quantization.IsPerChannel() && !(kind == "input" && perChannelAllowed(desc.Op, ii)) {
				return Errorf(InvalidParameter, "%s: per-channel quantization %s only allowed for convolution weights",
					name, shape.Quantization)
			}
		}
		return nil
	}
	if err := check("input", desc.Inputs); err != nil {
		return err
	}
	if err := check("output", desc.Outputs); err != nil {
		return err
	}
	return f.validate(b, desc)
}

// perChannelAllowed returns whether input #idx of the family may be per-channel quantized.
func perChannelAllowed(op backends.OpType, idx int) bool {
	switch op {
	case backends.OpTypeConvolution2d, backends.OpTypeDepthwiseConvolution2d:
		return idx == 1
	case backends.OpTypeDequantize:
		return idx == 0
	}
	return false
}

// checkArity verifies the number of inputs (in [minInputs, maxInputs]) and outputs.
func checkArity(desc *backends.Descriptor, minInputs, maxInputs, numOutputs int) error {
	if len(desc.Inputs) < minInputs || len(desc.Inputs) > maxInputs {
		if minInputs == maxInputs {
			return Errorf(InvalidParameter, "%s takes %d inputs, got %d", desc.Op, minInputs, len(desc.Inputs))
		}
		return Errorf(InvalidParameter, "%s takes %d to %d inputs, got %d", desc.Op, minInputs, maxInputs, len(desc.Inputs))
	}
	if len(desc.Outputs) != numOutputs {
		return Errorf(InvalidParameter, "%s takes %d outputs, got %d", desc.Op, numOutputs, len(desc.Outputs))
	}
	return nil
}

// paramsOf returns the family parameters of the descriptor, which must be a non-nil *P.
func paramsOf[P any](desc *backends.Descriptor) (*P, error) {
	p, ok := desc.Params.(*P)
	if !ok || p == nil {
		return nil, Errorf(InvalidParameter, "%s requires Params of type %T, got %T", desc.Op, (*P)(nil), desc.Params)
	}
	return p, nil
}

// checkDType verifies that the shape of the named operand has one of the allowed dtypes.
func checkDType(desc *backends.Descriptor, name string, shape shapes.Shape, allowed ...dtypes.DType) error {
	if !slices.Contains(allowed, shape.DType) {
		return Errorf(UnsupportedConfiguration, "%s: %s dtype %s not supported, supported dtypes are %v",
			desc.Op, name, shape.DType, allowed)
	}
	return nil
}

// checkOutput verifies that output #idx has the dtype and dimensions of the expected (inferred) shape. The output
// quantization is chosen by the descriptor and not compared.
func checkOutput(desc *backends.Descriptor, idx int, expected shapes.Shape) error {
	got := desc.Outputs[idx]
	if got.DType != expected.DType || !slices.Equal(got.Dimensions, expected.Dimensions) {
		return Errorf(InvalidParameter, "%s: output #%d %s doesn't match the expected %s", desc.Op, idx, got, expected)
	}
	return nil
}

// checkSameDType verifies that two operands have the same dtype.
func checkSameDType(desc *backends.Descriptor, a, b shapes.Shape, aName, bName string) error {
	if a.DType != b.DType {
		return Errorf(InvalidParameter, "%s: %s %s and %s %s must have the same dtype", desc.Op, aName, a, bName, b)
	}
	return nil
}
