// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
)

// Capabilities of the cl backend: the set of supported operator families and data types.
//
// The NativeLayout and the Float16 entry are overwritten by the configuration, see Backend.Capabilities.
var Capabilities = backends.Capabilities{
	Operations: map[backends.OpType]bool{
		backends.OpTypeActivation:       true,
		backends.OpTypeElementwiseUnary: true,

		// Binary elementwise:
		backends.OpTypeAddition:       true,
		backends.OpTypeSubtraction:    true,
		backends.OpTypeMultiplication: true,
		backends.OpTypeDivision:       true,
		backends.OpTypeMaximum:        true,
		backends.OpTypeMinimum:        true,
		backends.OpTypeComparison:     true,

		// Linear and spatial:
		backends.OpTypeFullyConnected:         true,
		backends.OpTypeConvolution2d:          true,
		backends.OpTypeDepthwiseConvolution2d: true,
		backends.OpTypePooling2d:              true,
		backends.OpTypeBatchNormalization:     true,
		backends.OpTypeInstanceNormalization:  true,
		backends.OpTypeL2Normalization:        true,
		backends.OpTypeSoftmax:                true,
		backends.OpTypeResize:                 true,
		backends.OpTypeSpaceToDepth:           true,
		backends.OpTypeDepthToSpace:           true,

		// Data movement and reductions:
		backends.OpTypeReshape:   true,
		backends.OpTypePermute:   true,
		backends.OpTypeTranspose: true,
		backends.OpTypeConcat:    true,
		backends.OpTypePad:       true,
		backends.OpTypeMean:      true,

		// Conversions:
		backends.OpTypeQuantize:          true,
		backends.OpTypeDequantize:        true,
		backends.OpTypeConvertFp16ToFp32: true,
		backends.OpTypeConvertFp32ToFp16: true,

		// Recurrent cells:
		backends.OpTypeLstm:                       true,
		backends.OpTypeUnidirectionalSequenceLstm: true,
		backends.OpTypeQLstm:                      true,
		backends.OpTypeQuantizedLstm:              true,
	},

	DTypes: map[dtypes.DType]bool{
		dtypes.Bool:     true,
		dtypes.Float32:  true,
		dtypes.Float16:  true,
		dtypes.Int32:    true,
		dtypes.QAsymmU8: true,
		dtypes.QAsymmS8: true,
		dtypes.QSymmS8:  true,
		dtypes.QSymmS16: true,
	},

	NativeLayout: backends.NHWC,
}

// Capabilities returns information about what is supported by this backend.
func (b *Backend) Capabilities() backends.Capabilities {
	c := Capabilities.Clone()
	c.NativeLayout = b.config.Layout
	if !b.config.Fp16 {
		delete(c.DTypes, dtypes.Float16)
	}
	return c
}
