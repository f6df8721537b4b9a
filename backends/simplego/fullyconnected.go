// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/clbackend/backends"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// FullyConnected implements backends.KernelProvider.
//
// Float inputs use a blas32 matrix multiplication. Quantized inputs accumulate the centered products in integers
// and requantize with one multiplier per unit (per-channel weights) or a single one.
func (p *Provider) FullyConnected(args *backends.FullyConnectedArgs, input, weights, bias, output *backends.Buffer) error {
	batch, inputSize, units := args.Batch, args.InputSize, args.Units
	if input.Shape().Size() != batch*inputSize || weights.Shape().Size() != inputSize*units ||
		output.Shape().Size() != batch*units {
		return errors.Errorf("FullyConnected: buffers input %s, weights %s and output %s don't match batch=%d, inputSize=%d, units=%d",
			input.Shape(), weights.Shape(), output.Shape(), batch, inputSize, units)
	}
	if bias != nil && bias.Shape().Size() != units {
		return errors.Errorf("FullyConnected: bias %s doesn't match %d units", bias.Shape(), units)
	}
	if input.Shape().DType.IsQuantized() {
		return fullyConnectedQuantized(args, input, weights, bias, output)
	}

	x := blas32.General{Rows: batch, Cols: inputSize, Stride: inputSize, Data: input.Float32s()}
	transposeWeights := blas.NoTrans
	w := blas32.General{Rows: inputSize, Cols: units, Stride: units, Data: weights.Float32s()}
	if args.TransposeWeights {
		transposeWeights = blas.Trans
		w = blas32.General{Rows: units, Cols: inputSize, Stride: inputSize, Data: w.Data}
	}
	out := blas32.General{Rows: batch, Cols: units, Stride: units, Data: make([]float32, batch*units)}
	if bias != nil {
		biasValues := bias.Float32s()
		for row := range batch {
			copy(out.Data[row*units:(row+1)*units], biasValues)
		}
	}
	blas32.Gemm(blas.NoTrans, transposeWeights, 1, x, w, 1, out)
	output.SetFloat32s(out.Data)
	return nil
}

func fullyConnectedQuantized(args *backends.FullyConnectedArgs, input, weights, bias, output *backends.Buffer) error {
	batch, inputSize, units := args.Batch, args.InputSize, args.Units
	x, w := centered(input), centered(weights)
	var biasValues []int32
	if bias != nil {
		biasValues = bias.Ints()
	}
	acc := make([]int64, batch*units)
	for row := range batch {
		xRow := x[row*inputSize : (row+1)*inputSize]
		for unit := range units {
			var sum int64
			if args.TransposeWeights {
				wRow := w[unit*inputSize : (unit+1)*inputSize]
				for ii, v := range xRow {
					sum += v * wRow[ii]
				}
			} else {
				for ii, v := range xRow {
					sum += v * w[ii*units+unit]
				}
			}
			if biasValues != nil {
				sum += int64(biasValues[unit])
			}
			acc[row*units+unit] = sum
		}
	}
	return requantizeTo(output, acc, args.Multipliers, func(flatIdx int) int { return flatIdx % units })
}
