// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lstm

import (
	"math"
	"sync"

	"github.com/gomlx/clbackend/pkg/core/quantization"
)

// Fixed-point formats used by the quantized cells:
//
//   - Q3.12: int16 with 12 fractional bits, range [-8, 8). Gate pre-activations are moved to it before the
//     nonlinearities.
//   - Q0.15: int16 with 15 fractional bits, range [-1, 1). Gate outputs and tanh of the cell state.
const (
	q312Bits = 12
	q015Bits = 15

	q015One = 1<<q015Bits - 1
)

// q015Table maps every int16 in Q3.12 (indexed by value-math.MinInt16) to fn(value) in Q0.15.
type q015Table []int16

// newQ015Table tabulates fn, saturating its results to the Q0.15 range.
func newQ015Table(fn func(float32) float32) q015Table {
	table := make(q015Table, 1<<16)
	for ii := range table {
		x := float32(ii+math.MinInt16) / (1 << q312Bits)
		y := math.Round(float64(fn(x)) * (1 << q015Bits))
		table[ii] = int16(min(max(y, -q015One), q015One))
	}
	return table
}

// lookup returns the table value for a Q3.12 input, saturated to int16 first.
func (t q015Table) lookup(q312 int32) int32 {
	return int32(t[saturate16(q312)-math.MinInt16])
}

var (
	sigmoidTableOnce sync.Once
	sigmoidTable     q015Table

	tanhTableOnce sync.Once
	tanhTable     q015Table
)

func sigmoidQ015() q015Table {
	sigmoidTableOnce.Do(func() {
		sigmoidTable = newQ015Table(func(x float32) float32 { return float32(1 / (1 + math.Exp(-float64(x)))) })
	})
	return sigmoidTable
}

func tanhQ015() q015Table {
	tanhTableOnce.Do(func() {
		tanhTable = newQ015Table(func(x float32) float32 { return float32(math.Tanh(float64(x))) })
	})
	return tanhTable
}

func saturate16(v int32) int32 {
	return min(max(v, math.MinInt16), math.MaxInt16)
}

func saturate32(v int64) int32 {
	return int32(min(max(v, math.MinInt32), math.MaxInt32))
}

// multiplierFor quantizes a real multiplier, with 0 mapped to the zero Multiplier.
func multiplierFor(real float64) (quantization.Multiplier, error) {
	if real == 0 {
		return quantization.Multiplier{}, nil
	}
	return quantization.QuantizeMultiplier(real)
}

// gemvInt computes out[r] = Σ_k (weights[r*cols+k]-weightsZeroPoint)*(values[k]-zeroPoint) for each row r.
func gemvInt(weights []int32, weightsZeroPoint int32, values []int32, zeroPoint int32, out []int64) {
	cols := len(values)
	for r := range out {
		row := weights[r*cols : (r+1)*cols]
		var acc int64
		for k, w := range row {
			acc += int64(w-weightsZeroPoint) * int64(values[k]-zeroPoint)
		}
		out[r] = acc
	}
}
