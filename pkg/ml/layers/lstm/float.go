// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lstm

import (
	"strings"

	"github.com/chewxy/math32"
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/ml/layers/activations"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// layerNormEpsilon is added to the variance of the gate pre-activations.
const layerNormEpsilon = 1e-8

// floatGate holds the weights of one gate, converted to float32.
type floatGate struct {
	inputWeights, recurrentWeights blas32.General
	bias, peephole, layerNorm      []float32
}

// FloatCell is the float32 LSTM cell. Float16 buffers are converted at the boundary of each Step.
type FloatCell struct {
	dims        Dims
	features    Features
	parallelism int

	gates                 [numGates]*floatGate
	projection            blas32.General
	projectionBias        []float32
	clipCell, clipProject float32

	cellActivation func(float32) float32
	plan           plan[floatWorkspace]
}

var _ Cell = &FloatCell{}

// floatWorkspace holds the vectors of one batch entry during a timestep.
type floatWorkspace struct {
	x, hPrev, cPrev []float32

	// gates hold the pre-activations and then the activations, [numUnits] each.
	gates [numGates][]float32

	// c is the new cell state [numUnits], h the gated hidden state [numUnits] and out the output [outputSize].
	c, h, out []float32
}

func toGeneral(b *backends.Buffer) blas32.General {
	dims := b.Shape().Dimensions
	return blas32.General{Rows: dims[0], Cols: dims[1], Stride: dims[1], Data: b.Float32s()}
}

func toFloats(b *backends.Buffer) []float32 {
	if b == nil {
		return nil
	}
	return b.Float32s()
}

// NewFloatCell creates a float LSTM cell, validating the configuration of the params.
//
// Weights must be Float32 or Float16, and are converted to float32 once.
func NewFloatCell(params *backends.LstmParams, opts Options) (*FloatCell, error) {
	d, f, err := validateStructure(params)
	if err != nil {
		return nil, err
	}
	table := weightsTable(params, d)
	floatTypes := []dtypes.DType{dtypes.Float32, dtypes.Float16}
	err = checkDTypes("LSTM", table, map[weightKind][]dtypes.DType{
		kindMatrix: floatTypes, kindBias: floatTypes, kindPeephole: floatTypes, kindLayerNorm: floatTypes,
		kindProjection: floatTypes, kindProjectionBias: floatTypes,
	})
	if err != nil {
		return nil, err
	}
	cellActivation, err := activations.CellFunc(params.CellActivation)
	if err != nil {
		return nil, err
	}
	c := &FloatCell{
		dims:           d,
		features:       f,
		parallelism:    opts.Parallelism,
		clipCell:       params.ClipCell,
		clipProject:    params.ClipProjection,
		cellActivation: cellActivation,
	}
	for _, nw := range table {
		if nw.buf == nil {
			continue
		}
		if nw.gate >= 0 && c.gates[nw.gate] == nil {
			c.gates[nw.gate] = &floatGate{}
		}
		switch nw.kind {
		case kindMatrix:
			if strings.HasPrefix(nw.name, "Input") {
				c.gates[nw.gate].inputWeights = toGeneral(nw.buf)
			} else {
				c.gates[nw.gate].recurrentWeights = toGeneral(nw.buf)
			}
		case kindBias:
			c.gates[nw.gate].bias = toFloats(nw.buf)
		case kindPeephole:
			c.gates[nw.gate].peephole = toFloats(nw.buf)
		case kindLayerNorm:
			c.gates[nw.gate].layerNorm = toFloats(nw.buf)
		case kindProjection:
			c.projection = toGeneral(nw.buf)
		case kindProjectionBias:
			c.projectionBias = toFloats(nw.buf)
		}
	}
	c.compile()
	return c, nil
}

// activeGates returns the gates computed from weights: all but the input gate with CIFG.
func (c *FloatCell) activeGates() []int {
	if c.features.Has(CIFG) {
		return []int{gateForget, gateCell, gateOutput}
	}
	return []int{gateInput, gateForget, gateCell, gateOutput}
}

// compile builds the plan for the features of the cell.
func (c *FloatCell) compile() {
	p := &c.plan
	p.add("gate matmuls", func(ws *floatWorkspace) {
		for _, gate := range c.activeGates() {
			g := c.gates[gate]
			out := blas32.Vector{N: c.dims.NumUnits, Inc: 1, Data: ws.gates[gate]}
			clear(out.Data)
			blas32.Gemv(blas.NoTrans, 1, g.inputWeights, blas32.Vector{N: c.dims.InputSize, Inc: 1, Data: ws.x}, 0, out)
			blas32.Gemv(blas.NoTrans, 1, g.recurrentWeights, blas32.Vector{N: c.dims.OutputSize, Inc: 1, Data: ws.hPrev}, 1, out)
		}
	})
	if c.features.Has(Peephole) {
		p.add("input/forget peephole", func(ws *floatWorkspace) {
			for _, gate := range []int{gateInput, gateForget} {
				if gate == gateInput && c.features.Has(CIFG) {
					continue
				}
				addProduct(ws.gates[gate], c.gates[gate].peephole, ws.cPrev)
			}
		})
	}
	preGates := []int{gateInput, gateForget, gateCell}
	if c.features.Has(CIFG) {
		preGates = preGates[1:]
	}
	if c.features.Has(LayerNorm) {
		p.add("input/forget/cell layer norm", func(ws *floatWorkspace) {
			for _, gate := range preGates {
				layerNormalize(ws.gates[gate], c.gates[gate].layerNorm)
			}
		})
	}
	p.add("input/forget/cell bias and activations", func(ws *floatWorkspace) {
		for _, gate := range preGates {
			values, bias := ws.gates[gate], c.gates[gate].bias
			for ii := range values {
				v := values[ii] + bias[ii]
				if gate == gateCell {
					values[ii] = c.cellActivation(v)
				} else {
					values[ii] = activations.Sigmoid(v)
				}
			}
		}
	})
	if c.features.Has(CIFG) {
		p.add("coupled input gate", func(ws *floatWorkspace) {
			for ii, f := range ws.gates[gateForget] {
				ws.gates[gateInput][ii] = 1 - f
			}
		})
	}
	p.add("cell update", func(ws *floatWorkspace) {
		i, f, g := ws.gates[gateInput], ws.gates[gateForget], ws.gates[gateCell]
		for ii := range ws.c {
			ws.c[ii] = f[ii]*ws.cPrev[ii] + i[ii]*g[ii]
		}
	})
	if c.clipCell > 0 {
		p.add("cell clip", func(ws *floatWorkspace) { clip(ws.c, c.clipCell) })
	}
	if c.features.Has(Peephole) {
		p.add("output peephole", func(ws *floatWorkspace) {
			addProduct(ws.gates[gateOutput], c.gates[gateOutput].peephole, ws.c)
		})
	}
	if c.features.Has(LayerNorm) {
		p.add("output layer norm", func(ws *floatWorkspace) {
			layerNormalize(ws.gates[gateOutput], c.gates[gateOutput].layerNorm)
		})
	}
	p.add("output gate", func(ws *floatWorkspace) {
		values, bias := ws.gates[gateOutput], c.gates[gateOutput].bias
		for ii := range values {
			values[ii] = activations.Sigmoid(values[ii] + bias[ii])
		}
	})
	p.add("hidden state", func(ws *floatWorkspace) {
		for ii, o := range ws.gates[gateOutput] {
			ws.h[ii] = o * c.cellActivation(ws.c[ii])
		}
	})
	if c.features.Has(Projection) {
		p.add("projection", func(ws *floatWorkspace) {
			if c.projectionBias != nil {
				copy(ws.out, c.projectionBias)
			} else {
				clear(ws.out)
			}
			blas32.Gemv(blas.NoTrans, 1, c.projection, blas32.Vector{N: c.dims.NumUnits, Inc: 1, Data: ws.h}, 1,
				blas32.Vector{N: c.dims.OutputSize, Inc: 1, Data: ws.out})
		})
		if c.clipProject > 0 {
			p.add("projection clip", func(ws *floatWorkspace) { clip(ws.out, c.clipProject) })
		}
	} else {
		p.add("output", func(ws *floatWorkspace) { copy(ws.out, ws.h) })
	}
}

func addProduct(dst, a, b []float32) {
	for ii := range dst {
		dst[ii] += a[ii] * b[ii]
	}
}

func clip(values []float32, bound float32) {
	for ii, v := range values {
		values[ii] = min(max(v, -bound), bound)
	}
}

// layerNormalize normalizes values to zero mean and unit variance and multiplies them by gain.
func layerNormalize(values, gain []float32) {
	n := float32(len(values))
	var sum, sumSquares float32
	for _, v := range values {
		sum += v
		sumSquares += v * v
	}
	mean := sum / n
	variance := max(sumSquares/n-mean*mean, 0)
	inverseStd := 1 / math32.Sqrt(variance+layerNormEpsilon)
	for ii, v := range values {
		values[ii] = (v - mean) * inverseStd * gain[ii]
	}
}

func (c *FloatCell) newWorkspace() *floatWorkspace {
	n := c.dims.NumUnits
	ws := &floatWorkspace{c: make([]float32, n), h: make([]float32, n), out: make([]float32, c.dims.OutputSize)}
	for gate := range ws.gates {
		ws.gates[gate] = make([]float32, n)
	}
	return ws
}

// Dims implements Cell.
func (c *FloatCell) Dims() Dims { return c.dims }

// Features implements Cell.
func (c *FloatCell) Features() Features { return c.features }

// Plan implements Cell.
func (c *FloatCell) Plan() []string { return c.plan.names() }

// ScratchSize returns the width of the scratch buffer of the Lstm operator: the activations of the computed gates,
// numUnits*3 with CIFG, numUnits*4 otherwise.
func (c *FloatCell) ScratchSize() int {
	if c.features.Has(CIFG) {
		return 3 * c.dims.NumUnits
	}
	return 4 * c.dims.NumUnits
}

// Step implements Cell.
func (c *FloatCell) Step(state *State, x, output *backends.Buffer) error {
	return c.StepWithScratch(state, x, output, nil)
}

// StepWithScratch is like Step, and also writes the gate activations of each batch entry to scratch
// [batch, ScratchSize()], in the order input (absent with CIFG), forget, cell, output. Scratch can be nil.
func (c *FloatCell) StepWithScratch(state *State, x, output, scratch *backends.Buffer) error {
	batch, err := checkStateShapes("LSTM", c.dims, state, x, output)
	if err != nil {
		return err
	}
	if scratch != nil && scratch.Shape().Size() != batch*c.ScratchSize() {
		return Errorf(InvalidParameter, "LSTM.Step: scratch must have %d elements, got %s", batch*c.ScratchSize(), scratch.Shape())
	}
	inputSize, numUnits, outputSize := c.dims.InputSize, c.dims.NumUnits, c.dims.OutputSize
	xs, hs, cs := x.Float32s(), state.Hidden.Float32s(), state.Cell.Float32s()
	out := make([]float32, batch*outputSize)
	var gateValues []float32
	if scratch != nil {
		gateValues = make([]float32, batch*c.ScratchSize())
	}
	err = forEachEntry(c.parallelism, batch, func(b int) error {
		ws := c.newWorkspace()
		ws.x = xs[b*inputSize : (b+1)*inputSize]
		ws.hPrev = hs[b*outputSize : (b+1)*outputSize]
		ws.cPrev = cs[b*numUnits : (b+1)*numUnits]
		c.plan.run(ws)
		copy(ws.hPrev, ws.out)
		copy(ws.cPrev, ws.c)
		copy(out[b*outputSize:], ws.out)
		if gateValues != nil {
			row := gateValues[b*c.ScratchSize() : (b+1)*c.ScratchSize()]
			for _, gate := range c.activeGates() {
				row = row[copy(row, ws.gates[gate]):]
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	state.Hidden.SetFloat32s(hs)
	state.Cell.SetFloat32s(cs)
	output.SetFloat32s(out)
	if scratch != nil {
		scratch.SetFloat32s(gateValues)
	}
	return nil
}
