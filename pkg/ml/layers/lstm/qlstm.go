// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lstm

import (
	"math"
	"strings"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/gomlx/clbackend/pkg/ml/layers/activations"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// DefaultIntermediateScale is used for a gate whose intermediate scale is not given (0): the gate
// pre-activations are then taken as Q3.12 values directly.
const DefaultIntermediateScale = 1.0 / (1 << q312Bits)

// qGate holds the integer weights of one gate and the multipliers of its pre-activation.
type qGate struct {
	inputWeights, recurrentWeights []int32
	bias, peephole, layerNorm      []int32

	// Multipliers from the input, recurrent and peephole accumulations to the intermediate scale.
	inputMultiplier, recurrentMultiplier, peepholeMultiplier quantization.Multiplier

	// toQ312 moves the intermediate scale to Q3.12 (without layer normalization).
	toQ312 quantization.Multiplier

	// layerNormScale is the scale of the layer normalization weights, and layerNormBias the multiplier of the
	// bias (at layerNormScale*2^-10) to Q3.12.
	layerNormScale float64
	layerNormBias  quantization.Multiplier

	table q015Table
}

// QLstmCell is the integer LSTM cell: 8-bit input and hidden state, 16-bit cell state, and only integer
// arithmetic in the timestep.
//
// Gate pre-activations are accumulated in int32/int64, requantized to the gate's intermediate scale as int16,
// moved to Q3.12 (directly or through the layer normalization) and mapped through lookup tables to Q0.15.
type QLstmCell struct {
	dims        Dims
	features    Features
	parallelism int

	input, outputState, cellState shapes.Shape
	inputZeroPoint                int32
	outputZeroPoint               int32
	hidden                        quantization.Params

	gates [numGates]*qGate

	// Cell update: i*g (at 2^-30) to the cell scale, and the cell state to Q3.12.
	cellProduct, cellToQ312 quantization.Multiplier
	cellClip                int32
	cellTable               q015Table

	// hiddenMultiplier converts o*act(c) (at 2^-30) to the hidden scale.
	hiddenMultiplier quantization.Multiplier

	projection           []int32
	projectionBias       []int32
	projectionMultiplier quantization.Multiplier
	projectionMin        int32
	projectionMax        int32

	// hiddenToOutput requantizes the hidden state to the output state, without projection.
	hiddenToOutput quantization.Multiplier

	plan plan[qWorkspace]
}

var _ Cell = &QLstmCell{}

// qWorkspace holds the vectors of one batch entry during a timestep of the integer cells.
type qWorkspace struct {
	x, hPrev, cPrev []int32
	acc             []int64
	gates           [numGates][]int32
	c, h, out       []int32
	projectionAcc   []int64
}

func newQWorkspace(d Dims) *qWorkspace {
	n := d.NumUnits
	ws := &qWorkspace{
		acc: make([]int64, n), c: make([]int32, n), h: make([]int32, n),
		out: make([]int32, d.OutputSize), projectionAcc: make([]int64, d.OutputSize),
	}
	for gate := range ws.gates {
		ws.gates[gate] = make([]int32, n)
	}
	return ws
}

func scaleOf(b *backends.Buffer) float64 {
	return float64(b.Shape().Quantization.Tensor().Scale)
}

// checkQuantized verifies the dtype and the quantization of one of the cell's tensors.
func checkQuantized(cellName, name string, shape shapes.Shape, dtype dtypes.DType) error {
	if shape.DType != dtype {
		return Errorf(InvalidParameter, "%s %s must be %s, got %s", cellName, name, dtype, shape)
	}
	if !shape.Quantization.IsSet() || shape.Quantization.IsPerChannel() {
		return Errorf(InvalidParameter, "%s %s requires per-tensor quantization, got %s", cellName, name, shape)
	}
	return quantization.Validate(shape.Quantization.Tensor(), dtype)
}

// NewQLstmCell creates the integer LSTM cell for the params and the shapes (with quantization) of the input,
// the output state and the cell state.
//
// The intermediate scales of the params are the scales of the gate pre-activations (0 means
// DefaultIntermediateScale). HiddenStateScale and HiddenStateZeroPoint quantize o*act(c) before the projection;
// a HiddenStateScale of 0 uses the quantization of the output state.
func NewQLstmCell(params *backends.LstmParams, input, outputState, cellState shapes.Shape, opts Options) (*QLstmCell, error) {
	d, f, err := validateStructure(params)
	if err != nil {
		return nil, err
	}
	table := weightsTable(params, d)
	err = checkDTypes("QLSTM", table, map[weightKind][]dtypes.DType{
		kindMatrix:         {dtypes.QSymmS8},
		kindBias:           {dtypes.Int32},
		kindPeephole:       {dtypes.QSymmS16},
		kindLayerNorm:      {dtypes.QSymmS16},
		kindProjection:     {dtypes.QSymmS8},
		kindProjectionBias: {dtypes.Int32},
	})
	if err != nil {
		return nil, err
	}
	for _, check := range []struct {
		name  string
		shape shapes.Shape
		dtype dtypes.DType
	}{{"input", input, dtypes.QAsymmS8}, {"output state", outputState, dtypes.QAsymmS8}, {"cell state", cellState, dtypes.QSymmS16}} {
		if err = checkQuantized("QLSTM", check.name, check.shape, check.dtype); err != nil {
			return nil, err
		}
	}

	c := &QLstmCell{
		dims:            d,
		features:        f,
		parallelism:     opts.Parallelism,
		input:           input,
		outputState:     outputState,
		cellState:       cellState,
		inputZeroPoint:  input.Quantization.Tensor().ZeroPoint,
		outputZeroPoint: outputState.Quantization.Tensor().ZeroPoint,
		hidden:          outputState.Quantization.Tensor(),
	}
	if params.HiddenStateScale != 0 {
		c.hidden = quantization.Params{Scale: params.HiddenStateScale, ZeroPoint: params.HiddenStateZeroPoint}
		if err = quantization.Validate(c.hidden, dtypes.QAsymmS8); err != nil {
			return nil, errors.WithMessage(err, "QLSTM hidden state quantization")
		}
	}
	inputScale := float64(input.Quantization.Tensor().Scale)
	outputScale := float64(outputState.Quantization.Tensor().Scale)
	cellScale := float64(cellState.Quantization.Tensor().Scale)

	cellFn, err := activations.CellFunc(params.CellActivation)
	if err != nil {
		return nil, err
	}
	if params.CellActivation == backends.ActivationNone || params.CellActivation == backends.ActivationTanH {
		c.cellTable = tanhQ015()
	} else {
		c.cellTable = newQ015Table(cellFn)
	}

	intermediateScales := [numGates]float32{
		params.InputIntermediateScale, params.ForgetIntermediateScale, params.CellIntermediateScale, params.OutputIntermediateScale}
	for gate := range numGates {
		if gate == gateInput && f.Has(CIFG) {
			continue
		}
		c.gates[gate] = &qGate{table: sigmoidQ015()}
		if gate == gateCell {
			c.gates[gate].table = c.cellTable
		}
	}
	var gateScales [numGates]float64
	for gate, scale := range intermediateScales {
		if scale < 0 || math.IsNaN(float64(scale)) || math.IsInf(float64(scale), 0) {
			return nil, Errorf(InvalidParameter, "QLSTM %s gate intermediate scale must be finite and >= 0, got %g",
				gateNames[gate], scale)
		}
		gateScales[gate] = float64(scale)
		if scale == 0 {
			gateScales[gate] = DefaultIntermediateScale
		}
	}

	for _, nw := range table {
		if nw.buf == nil {
			continue
		}
		switch nw.kind {
		case kindMatrix:
			g := c.gates[nw.gate]
			if strings.HasPrefix(nw.name, "Input") {
				g.inputWeights = nw.buf.Ints()
				g.inputMultiplier, err = multiplierFor(inputScale * scaleOf(nw.buf) / gateScales[nw.gate])
			} else {
				g.recurrentWeights = nw.buf.Ints()
				g.recurrentMultiplier, err = multiplierFor(outputScale * scaleOf(nw.buf) / gateScales[nw.gate])
			}
		case kindBias:
			c.gates[nw.gate].bias = nw.buf.Ints()
		case kindPeephole:
			g := c.gates[nw.gate]
			g.peephole = nw.buf.Ints()
			g.peepholeMultiplier, err = multiplierFor(scaleOf(nw.buf) * cellScale / gateScales[nw.gate])
		case kindLayerNorm:
			g := c.gates[nw.gate]
			g.layerNorm = nw.buf.Ints()
			g.layerNormScale = scaleOf(nw.buf)
			g.layerNormBias, err = multiplierFor(g.layerNormScale * (1 << (q312Bits - 10)))
			if err == nil {
				// Largest normalization factor, reached at unit variance.
				_, err = quantization.QuantizeMultiplier(g.layerNormScale * (1 << q312Bits) / float64(d.NumUnits))
			}
		case kindProjection:
			c.projection = nw.buf.Ints()
			c.projectionMultiplier, err = multiplierFor(float64(c.hidden.Scale) * scaleOf(nw.buf) / outputScale)
		case kindProjectionBias:
			c.projectionBias = nw.buf.Ints()
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "QLSTM %s", nw.name)
		}
	}
	for gate, g := range c.gates {
		if g == nil {
			continue
		}
		if g.toQ312, err = multiplierFor(gateScales[gate] * (1 << q312Bits)); err != nil {
			return nil, errors.WithMessagef(err, "QLSTM %s gate intermediate scale", gateNames[gate])
		}
	}

	if c.cellProduct, err = multiplierFor(math.Ldexp(1, -2*q015Bits) / cellScale); err != nil {
		return nil, errors.WithMessage(err, "QLSTM cell state scale")
	}
	if c.cellToQ312, err = multiplierFor(cellScale * (1 << q312Bits)); err != nil {
		return nil, errors.WithMessage(err, "QLSTM cell state scale")
	}
	if c.hiddenMultiplier, err = multiplierFor(math.Ldexp(1, -2*q015Bits) / float64(c.hidden.Scale)); err != nil {
		return nil, errors.WithMessage(err, "QLSTM hidden state scale")
	}
	if params.ClipCell > 0 {
		// A clip below one cell quantum still clips.
		c.cellClip = max(1, int32(min(math.Round(float64(params.ClipCell)/cellScale), math.MaxInt16)))
	}
	c.projectionMin, c.projectionMax = math.MinInt8, math.MaxInt8
	if f.Has(Projection) {
		if params.ClipProjection > 0 {
			bound := int64(math.Round(float64(params.ClipProjection) / outputScale))
			c.projectionMin = quantization.Clamp(int64(c.outputZeroPoint)-bound, dtypes.QAsymmS8)
			c.projectionMax = quantization.Clamp(int64(c.outputZeroPoint)+bound, dtypes.QAsymmS8)
		}
	} else if c.hiddenToOutput, err = multiplierFor(float64(c.hidden.Scale) / outputScale); err != nil {
		return nil, errors.WithMessage(err, "QLSTM hidden to output state")
	}
	c.compile()
	return c, nil
}

func (c *QLstmCell) activeGates() []int {
	if c.features.Has(CIFG) {
		return []int{gateForget, gateCell, gateOutput}
	}
	return []int{gateInput, gateForget, gateCell, gateOutput}
}

// compile builds the plan for the features of the cell.
func (c *QLstmCell) compile() {
	p := &c.plan
	layerNorm := c.features.Has(LayerNorm)
	p.add("gate matmuls", func(ws *qWorkspace) {
		for _, gate := range c.activeGates() {
			g, values := c.gates[gate], ws.gates[gate]
			gemvInt(g.inputWeights, 0, ws.x, c.inputZeroPoint, ws.acc)
			for n, acc := range ws.acc {
				if !layerNorm {
					acc += int64(g.bias[n])
				}
				values[n] = quantization.MultiplyByQuantizedMultiplier64(acc, g.inputMultiplier)
			}
			gemvInt(g.recurrentWeights, 0, ws.hPrev, c.outputZeroPoint, ws.acc)
			for n, acc := range ws.acc {
				values[n] = saturate32(int64(values[n]) + int64(quantization.MultiplyByQuantizedMultiplier64(acc, g.recurrentMultiplier)))
			}
		}
	})
	if c.features.Has(Peephole) {
		p.add("input/forget peephole", func(ws *qWorkspace) {
			for _, gate := range []int{gateInput, gateForget} {
				if gate == gateInput && c.features.Has(CIFG) {
					continue
				}
				c.gates[gate].addPeephole(ws.gates[gate], ws.cPrev)
			}
		})
	}
	preGates := []int{gateInput, gateForget, gateCell}
	if c.features.Has(CIFG) {
		preGates = preGates[1:]
	}
	toQ312Name := "input/forget/cell to Q3.12"
	if layerNorm {
		toQ312Name = "input/forget/cell layer norm"
	}
	p.add(toQ312Name, func(ws *qWorkspace) {
		for _, gate := range preGates {
			c.gates[gate].toQ312Values(ws.gates[gate], layerNorm)
		}
	})
	p.add("input/forget/cell activations", func(ws *qWorkspace) {
		for _, gate := range preGates {
			values, table := ws.gates[gate], c.gates[gate].table
			for n, v := range values {
				values[n] = table.lookup(v)
			}
		}
	})
	if c.features.Has(CIFG) {
		p.add("coupled input gate", func(ws *qWorkspace) { coupleInputGate(ws) })
	}
	p.add("cell update", func(ws *qWorkspace) { updateCell(ws, c.cellProduct) })
	if c.cellClip > 0 {
		p.add("cell clip", func(ws *qWorkspace) {
			for n, v := range ws.c {
				ws.c[n] = min(max(v, -c.cellClip), c.cellClip)
			}
		})
	}
	if c.features.Has(Peephole) {
		p.add("output peephole", func(ws *qWorkspace) { c.gates[gateOutput].addPeephole(ws.gates[gateOutput], ws.c) })
	}
	if layerNorm {
		p.add("output layer norm", func(ws *qWorkspace) { c.gates[gateOutput].toQ312Values(ws.gates[gateOutput], true) })
	} else {
		p.add("output to Q3.12", func(ws *qWorkspace) { c.gates[gateOutput].toQ312Values(ws.gates[gateOutput], false) })
	}
	p.add("output gate", func(ws *qWorkspace) {
		values := ws.gates[gateOutput]
		for n, v := range values {
			values[n] = c.gates[gateOutput].table.lookup(v)
		}
	})
	p.add("hidden state", func(ws *qWorkspace) {
		hiddenState(ws, c.cellTable, c.cellToQ312, c.hiddenMultiplier, c.hidden.ZeroPoint, dtypes.QAsymmS8)
	})
	if c.features.Has(Projection) {
		p.add("projection", func(ws *qWorkspace) {
			gemvInt(c.projection, 0, ws.h, c.hidden.ZeroPoint, ws.projectionAcc)
			for o, acc := range ws.projectionAcc {
				if c.projectionBias != nil {
					acc += int64(c.projectionBias[o])
				}
				v := int64(quantization.MultiplyByQuantizedMultiplier64(acc, c.projectionMultiplier)) + int64(c.outputZeroPoint)
				ws.out[o] = min(max(quantization.Clamp(v, dtypes.QAsymmS8), c.projectionMin), c.projectionMax)
			}
		})
	} else {
		p.add("output requantize", func(ws *qWorkspace) {
			for n, h := range ws.h {
				v := int64(quantization.MultiplyByQuantizedMultiplier64(int64(h-c.hidden.ZeroPoint), c.hiddenToOutput))
				ws.out[n] = quantization.Clamp(v+int64(c.outputZeroPoint), dtypes.QAsymmS8)
			}
		})
	}
}

// addPeephole adds P⊙c, requantized to the intermediate scale, to the gate values.
func (g *qGate) addPeephole(values, cell []int32) {
	for n, v := range values {
		term := quantization.MultiplyByQuantizedMultiplier64(int64(g.peephole[n])*int64(cell[n]), g.peepholeMultiplier)
		values[n] = saturate32(int64(v) + int64(term))
	}
}

// toQ312Values saturates the gate values to int16 at the intermediate scale and moves them to Q3.12, through
// the layer normalization if enabled.
func (g *qGate) toQ312Values(values []int32, layerNorm bool) {
	if !layerNorm {
		for n, v := range values {
			values[n] = saturate16(quantization.MultiplyByQuantizedMultiplier(saturate16(v), g.toQ312))
		}
		return
	}
	// Mean and variance are exact in int64; the normalization factor is a multiplier computed per call.
	count := int64(len(values))
	var sum, sumSquares int64
	for n, v := range values {
		v = saturate16(v)
		values[n] = v
		sum += int64(v)
		sumSquares += int64(v) * int64(v)
	}
	variance := float64(sumSquares*count-sum*sum) / float64(count*count)
	variance = max(variance, 1)
	// (v*count - sum) is the centered value times count.
	factor := g.layerNormScale * (1 << q312Bits) / (math.Sqrt(variance) * float64(count))
	m, err := quantization.QuantizeMultiplier(factor)
	if err != nil {
		// NewQLstmCell checked the largest factor.
		exceptions.Panicf("QLSTM layer normalization factor %g: %+v", factor, err)
	}
	for n, v := range values {
		normalized := quantization.MultiplyByQuantizedMultiplier64((int64(v)*count-sum)*int64(g.layerNorm[n]), m)
		bias := quantization.MultiplyByQuantizedMultiplier(g.bias[n], g.layerNormBias)
		values[n] = saturate16(saturate32(int64(normalized) + int64(bias)))
	}
}

// coupleInputGate sets i = 1 - f, in Q0.15.
func coupleInputGate(ws *qWorkspace) {
	for n, f := range ws.gates[gateForget] {
		ws.gates[gateInput][n] = min(q015One+1-f, q015One)
	}
}

// updateCell computes c = f*cPrev + i*g at the cell scale, saturated to int16.
func updateCell(ws *qWorkspace, cellProduct quantization.Multiplier) {
	i, f, g := ws.gates[gateInput], ws.gates[gateForget], ws.gates[gateCell]
	for n := range ws.c {
		forget := quantization.RoundingDivideByPOT(f[n]*ws.cPrev[n], q015Bits)
		update := quantization.MultiplyByQuantizedMultiplier64(int64(i[n])*int64(g[n]), cellProduct)
		ws.c[n] = saturate16(saturate32(int64(forget) + int64(update)))
	}
}

// hiddenState computes h = o*act(c), quantized to the hidden state with the given zero point and dtype.
func hiddenState(ws *qWorkspace, cellTable q015Table, cellToQ312, hiddenMultiplier quantization.Multiplier,
	zeroPoint int32, dtype dtypes.DType) {
	for n, o := range ws.gates[gateOutput] {
		t := cellTable.lookup(quantization.MultiplyByQuantizedMultiplier(ws.c[n], cellToQ312))
		v := int64(quantization.MultiplyByQuantizedMultiplier64(int64(o)*int64(t), hiddenMultiplier))
		ws.h[n] = quantization.Clamp(v+int64(zeroPoint), dtype)
	}
}

// Dims implements Cell.
func (c *QLstmCell) Dims() Dims { return c.dims }

// Features implements Cell.
func (c *QLstmCell) Features() Features { return c.features }

// Plan implements Cell.
func (c *QLstmCell) Plan() []string { return c.plan.names() }

// Step implements Cell. The buffers must have the dtypes and quantizations the cell was created with; the output
// may have any representation, it is converted from the new output state if needed.
func (c *QLstmCell) Step(state *State, x, output *backends.Buffer) error {
	batch, err := checkStateShapes("QLSTM", c.dims, state, x, output)
	if err != nil {
		return err
	}
	if err = checkRepresentation("QLSTM", map[string][2]shapes.Shape{
		"input":        {c.input, x.Shape()},
		"output state": {c.outputState, state.Hidden.Shape()},
		"cell state":   {c.cellState, state.Cell.Shape()},
	}); err != nil {
		return err
	}
	inputSize, numUnits, outputSize := c.dims.InputSize, c.dims.NumUnits, c.dims.OutputSize
	xs, hs, cs := x.Ints(), state.Hidden.Ints(), state.Cell.Ints()
	err = forEachEntry(c.parallelism, batch, func(b int) error {
		ws := newQWorkspace(c.dims)
		ws.x = xs[b*inputSize : (b+1)*inputSize]
		ws.hPrev = hs[b*outputSize : (b+1)*outputSize]
		ws.cPrev = cs[b*numUnits : (b+1)*numUnits]
		c.plan.run(ws)
		copy(ws.hPrev, ws.out)
		copy(ws.cPrev, ws.c)
		return nil
	})
	if err != nil {
		return err
	}
	state.Hidden.SetInts(hs)
	state.Cell.SetInts(cs)
	copyState(state.Hidden, output, hs)
	return nil
}

// checkRepresentation verifies that each buffer shape has the dtype and quantization of the expected shape.
func checkRepresentation(cellName string, pairs map[string][2]shapes.Shape) error {
	for name, pair := range pairs {
		expected, got := pair[0], pair[1]
		if expected.DType != got.DType || !expected.Quantization.Equal(got.Quantization) {
			return Errorf(InvalidParameter, "%s.Step: %s must be %s %s, got %s",
				cellName, name, expected.DType, expected.Quantization, got)
		}
	}
	return nil
}

// copyState writes the stored values of the state to output, converting them if output has another representation.
func copyState(state, output *backends.Buffer, values []int32) {
	if output.Shape().DType == state.Shape().DType && output.Shape().Quantization.Equal(state.Shape().Quantization) {
		output.SetInts(values)
		return
	}
	output.SetFloat32s(state.Float32s())
}
