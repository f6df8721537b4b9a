// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lstm

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// Aliases:
	F32 = dtypes.Float32

	// MS for MakeShape, MQ for MakeQuantized.
	MS = shapes.Make
	MQ = shapes.MakeQuantized
)

func uniform(rng *rand.Rand, n int, lo, hi float32) []float32 {
	values := make([]float32, n)
	for ii := range values {
		values[ii] = lo + (hi-lo)*rng.Float32()
	}
	return values
}

// randomParams returns float32 LSTM params with the given features, weights uniform in [-0.5, 0.5] and
// layer norm gains in [0.5, 1.5].
func randomParams(rng *rand.Rand, d Dims, f Features) *backends.LstmParams {
	p := &backends.LstmParams{
		CifgEnabled:       f.Has(CIFG),
		PeepholeEnabled:   f.Has(Peephole),
		ProjectionEnabled: f.Has(Projection),
		LayerNormEnabled:  f.Has(LayerNorm),
	}
	rnd := func(dims ...int) *backends.Buffer {
		shape := MS(F32, dims...)
		return backends.FromFloat32s(shape, uniform(rng, shape.Size(), -0.5, 0.5))
	}
	gain := func() *backends.Buffer {
		return backends.FromFloat32s(MS(F32, d.NumUnits), uniform(rng, d.NumUnits, 0.5, 1.5))
	}
	n, i, o := d.NumUnits, d.InputSize, d.OutputSize
	w := &p.Weights
	w.InputToForgetWeights, w.InputToCellWeights, w.InputToOutputWeights = rnd(n, i), rnd(n, i), rnd(n, i)
	w.RecurrentToForgetWeights, w.RecurrentToCellWeights, w.RecurrentToOutputWeights = rnd(n, o), rnd(n, o), rnd(n, o)
	w.ForgetGateBias, w.CellBias, w.OutputGateBias = rnd(n), rnd(n), rnd(n)
	if !f.Has(CIFG) {
		w.InputToInputWeights, w.RecurrentToInputWeights, w.InputGateBias = rnd(n, i), rnd(n, o), rnd(n)
	}
	if f.Has(Peephole) {
		w.CellToForgetWeights, w.CellToOutputWeights = rnd(n), rnd(n)
		if !f.Has(CIFG) {
			w.CellToInputWeights = rnd(n)
		}
	}
	if f.Has(Projection) {
		w.ProjectionWeights, w.ProjectionBias = rnd(o, n), rnd(o)
	}
	if f.Has(LayerNorm) {
		w.ForgetLayerNormWeights, w.CellLayerNormWeights, w.OutputLayerNormWeights = gain(), gain(), gain()
		if !f.Has(CIFG) {
			w.InputLayerNormWeights = gain()
		}
	}
	return p
}

func floatsOf(b *backends.Buffer) []float32 {
	if b == nil {
		return nil
	}
	return b.Float32s()
}

func sigmoid(x float32) float32 { return 1 / (1 + math32.Exp(-x)) }

// referenceStep computes one timestep of one batch entry, following the gate equations literally.
func referenceStep(p *backends.LstmParams, x, h, c []float32) (hOut, cOut []float32) {
	w := &p.Weights
	matVec := func(b *backends.Buffer, v []float32) []float32 {
		m, rows := b.Float32s(), b.Shape().Dimensions[0]
		out := make([]float32, rows)
		for r := range rows {
			for k, vk := range v {
				out[r] += m[r*len(v)+k] * vk
			}
		}
		return out
	}
	preActivation := func(inputW, recurrentW, peephole, layerNorm, bias *backends.Buffer, cell []float32) []float32 {
		z := matVec(inputW, x)
		for ii, v := range matVec(recurrentW, h) {
			z[ii] += v
		}
		if peephole != nil {
			for ii, p := range floatsOf(peephole) {
				z[ii] += p * cell[ii]
			}
		}
		if layerNorm != nil {
			var mean, variance float32
			for _, v := range z {
				mean += v
			}
			mean /= float32(len(z))
			for _, v := range z {
				variance += (v - mean) * (v - mean)
			}
			variance /= float32(len(z))
			for ii, g := range floatsOf(layerNorm) {
				z[ii] = (z[ii] - mean) / math32.Sqrt(variance+1e-8) * g
			}
		}
		for ii, b := range floatsOf(bias) {
			z[ii] += b
		}
		return z
	}
	n := len(c)
	forget := preActivation(w.InputToForgetWeights, w.RecurrentToForgetWeights, w.CellToForgetWeights, w.ForgetLayerNormWeights, w.ForgetGateBias, c)
	cellGate := preActivation(w.InputToCellWeights, w.RecurrentToCellWeights, nil, w.CellLayerNormWeights, w.CellBias, c)
	input := make([]float32, n)
	if p.CifgEnabled {
		for ii := range input {
			input[ii] = 1 - sigmoid(forget[ii])
		}
	} else {
		input = preActivation(w.InputToInputWeights, w.RecurrentToInputWeights, w.CellToInputWeights, w.InputLayerNormWeights, w.InputGateBias, c)
		for ii, v := range input {
			input[ii] = sigmoid(v)
		}
	}
	cOut = make([]float32, n)
	for ii := range cOut {
		cOut[ii] = sigmoid(forget[ii])*c[ii] + input[ii]*math32.Tanh(cellGate[ii])
		if p.ClipCell > 0 {
			cOut[ii] = min(max(cOut[ii], -p.ClipCell), p.ClipCell)
		}
	}
	output := preActivation(w.InputToOutputWeights, w.RecurrentToOutputWeights, w.CellToOutputWeights, w.OutputLayerNormWeights, w.OutputGateBias, cOut)
	hidden := make([]float32, n)
	for ii := range hidden {
		hidden[ii] = sigmoid(output[ii]) * math32.Tanh(cOut[ii])
	}
	if !p.ProjectionEnabled {
		return hidden, cOut
	}
	hOut = matVec(w.ProjectionWeights, hidden)
	for ii, b := range floatsOf(w.ProjectionBias) {
		hOut[ii] += b
	}
	if p.ClipProjection > 0 {
		for ii, v := range hOut {
			hOut[ii] = min(max(v, -p.ClipProjection), p.ClipProjection)
		}
	}
	return hOut, cOut
}

// newFloatState returns a random float state for batch entries.
func newFloatState(rng *rand.Rand, d Dims, batch int) *State {
	return &State{
		Hidden: backends.FromFloat32s(MS(F32, batch, d.OutputSize), uniform(rng, batch*d.OutputSize, -1, 1)),
		Cell:   backends.FromFloat32s(MS(F32, batch, d.NumUnits), uniform(rng, batch*d.NumUnits, -1, 1)),
	}
}

func TestFeatures(t *testing.T) {
	assert.Equal(t, "Basic", Features(0).String())
	assert.Equal(t, "CIFG+Projection", (CIFG | Projection).String())
	f := FeaturesOf(&backends.LstmParams{PeepholeEnabled: true, LayerNormEnabled: true})
	assert.True(t, f.Has(Peephole|LayerNorm))
	assert.False(t, f.Has(CIFG))
}

func TestFloatCell(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	d := Dims{InputSize: 3, NumUnits: 4, OutputSize: 4}
	const batch = 3
	for _, f := range []Features{0, CIFG, Peephole, LayerNorm, CIFG | Peephole | LayerNorm} {
		t.Run(f.String(), func(t *testing.T) {
			params := randomParams(rng, d, f)
			params.ClipCell = 0.8
			cell, err := NewFloatCell(params, Options{Parallelism: 2})
			require.NoError(t, err)
			assert.Equal(t, d, cell.Dims())
			assert.Equal(t, f, cell.Features())

			state := newFloatState(rng, d, batch)
			hs, cs := state.Hidden.Float32s(), state.Cell.Float32s()
			for range 3 {
				xs := uniform(rng, batch*d.InputSize, -1, 1)
				output := backends.NewBuffer(MS(F32, batch, d.OutputSize))
				require.NoError(t, cell.Step(state, backends.FromFloat32s(MS(F32, batch, d.InputSize), xs), output))
				for b := range batch {
					wantH, wantC := referenceStep(params, xs[b*3:(b+1)*3], hs[b*4:(b+1)*4], cs[b*4:(b+1)*4])
					copy(hs[b*4:], wantH)
					copy(cs[b*4:], wantC)
				}
				assert.InDeltaSlice(t, hs, state.Hidden.Float32s(), 1e-4)
				assert.InDeltaSlice(t, cs, state.Cell.Float32s(), 1e-4)
				assert.InDeltaSlice(t, hs, output.Float32s(), 1e-4)
				for _, v := range cs {
					assert.LessOrEqual(t, math32.Abs(v), float32(0.8))
				}
			}
		})
	}
}

func TestCIFGEquivalence(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 0))
	d := Dims{InputSize: 5, NumUnits: 6, OutputSize: 6}
	coupled := randomParams(rng, d, CIFG|Peephole)

	// sigmoid(-z) == 1 - sigmoid(z): an input gate with the negated forget gate weights is the coupled gate.
	negated := func(b *backends.Buffer) *backends.Buffer {
		values := b.Float32s()
		for ii := range values {
			values[ii] = -values[ii]
		}
		return backends.FromFloat32s(b.Shape(), values)
	}
	uncoupled := *coupled
	uncoupled.CifgEnabled = false
	w := &uncoupled.Weights
	w.InputToInputWeights = negated(w.InputToForgetWeights)
	w.RecurrentToInputWeights = negated(w.RecurrentToForgetWeights)
	w.CellToInputWeights = negated(w.CellToForgetWeights)
	w.InputGateBias = negated(w.ForgetGateBias)

	coupledCell := must.M1(NewFloatCell(coupled, Options{}))
	uncoupledCell := must.M1(NewFloatCell(&uncoupled, Options{}))
	assert.Contains(t, coupledCell.Plan(), "coupled input gate")
	assert.NotContains(t, uncoupledCell.Plan(), "coupled input gate")

	const batch = 2
	state1 := newFloatState(rng, d, batch)
	state2 := &State{Hidden: state1.Hidden.Clone(), Cell: state1.Cell.Clone()}
	for range 4 {
		x := backends.FromFloat32s(MS(F32, batch, d.InputSize), uniform(rng, batch*d.InputSize, -1, 1))
		out1, out2 := backends.NewBuffer(MS(F32, batch, 6)), backends.NewBuffer(MS(F32, batch, 6))
		require.NoError(t, coupledCell.Step(state1, x, out1))
		require.NoError(t, uncoupledCell.Step(state2, x, out2))
		assert.InDeltaSlice(t, out1.Float32s(), out2.Float32s(), 1e-5)
		assert.InDeltaSlice(t, state1.Cell.Float32s(), state2.Cell.Float32s(), 1e-5)
	}
}

func TestProjection(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 0))
	d := Dims{InputSize: 8, NumUnits: 20, OutputSize: 10}
	params := randomParams(rng, d, Projection)
	params.ClipProjection = 0.5
	cell := must.M1(NewFloatCell(params, Options{Parallelism: 4}))
	assert.Equal(t, d, cell.Dims())
	assert.Equal(t, "projection clip", cell.Plan()[len(cell.Plan())-1])

	const batch = 4
	state := newFloatState(rng, d, batch)
	hs, cs := state.Hidden.Float32s(), state.Cell.Float32s()
	xs := uniform(rng, batch*d.InputSize, -1, 1)
	output := backends.NewBuffer(MS(F32, batch, 10))
	require.NoError(t, cell.Step(state, backends.FromFloat32s(MS(F32, batch, 8), xs), output))
	assert.Equal(t, []int{batch, 10}, output.Shape().Dimensions)
	for b := range batch {
		wantH, wantC := referenceStep(params, xs[b*8:(b+1)*8], hs[b*10:(b+1)*10], cs[b*20:(b+1)*20])
		assert.InDeltaSlice(t, wantH, output.Float32s()[b*10:(b+1)*10], 1e-4)
		assert.InDeltaSlice(t, wantC, state.Cell.Float32s()[b*20:(b+1)*20], 1e-4)
	}
	for _, v := range output.Float32s() {
		assert.LessOrEqual(t, math32.Abs(v), float32(0.5))
	}
}

func TestValidation(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 0))
	d := Dims{InputSize: 2, NumUnits: 3, OutputSize: 3}
	extra := backends.FromFloat32s(MS(F32, 3), []float32{1, 2, 3})

	testCases := []struct {
		name   string
		modify func(p *backends.LstmParams)
		msg    string
	}{
		{"peephole weights without peephole", func(p *backends.LstmParams) { p.Weights.CellToForgetWeights = extra },
			"CellToForgetWeights given, but it is not used"},
		{"CIFG with input gate weights", func(p *backends.LstmParams) {
			p.CifgEnabled = true
			p.Weights.InputGateBias, p.Weights.RecurrentToInputWeights = nil, nil
		}, "InputToInputWeights given"},
		{"missing weights", func(p *backends.LstmParams) { p.Weights.CellBias = nil }, "CellBias is required"},
		{"layer norm weights without layer norm", func(p *backends.LstmParams) { p.Weights.CellLayerNormWeights = extra },
			"CellLayerNormWeights given"},
		{"wrong shape", func(p *backends.LstmParams) {
			p.Weights.InputToCellWeights = backends.NewBuffer(MS(F32, 3, 5))
		}, "InputToCellWeights has shape"},
		{"projection width", func(p *backends.LstmParams) {
			p.ProjectionEnabled = true
			p.Weights.ProjectionWeights = backends.NewBuffer(MS(F32, 2, 3))
		}, "ProjectionWeights has shape"},
		{"projection missing", func(p *backends.LstmParams) { p.ProjectionEnabled = true }, "ProjectionWeights is required"},
		{"negative clip", func(p *backends.LstmParams) { p.ClipCell = -1 }, "ClipCell"},
		{"quantized weights", func(p *backends.LstmParams) {
			p.Weights.CellBias = backends.NewBuffer(MQ(dtypes.QAsymmU8, quantization.PerTensor(0.1, 0), 3))
		}, "CellBias has dtype"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			params := randomParams(rng, d, 0)
			tc.modify(params)
			_, err := NewFloatCell(params, Options{})
			require.Error(t, err)
			assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))
			assert.Contains(t, err.Error(), tc.msg)
		})
	}

	// Output size different from the number of units requires projection.
	params := randomParams(rng, Dims{InputSize: 2, NumUnits: 3, OutputSize: 2}, 0)
	_, err := NewFloatCell(params, Options{})
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))

	// Step shapes.
	cell := must.M1(NewFloatCell(randomParams(rng, d, 0), Options{}))
	state := newFloatState(rng, d, 2)
	err = cell.Step(state, backends.NewBuffer(MS(F32, 2, 5)), backends.NewBuffer(MS(F32, 2, 3)))
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))
	err = cell.Step(state, backends.NewBuffer(MS(F32, 2, 2)), backends.NewBuffer(MS(F32, 3, 3)))
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))
}

func TestScratch(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 0))
	d := Dims{InputSize: 2, NumUnits: 3, OutputSize: 3}
	cell := must.M1(NewFloatCell(randomParams(rng, d, CIFG), Options{}))
	assert.Equal(t, 9, cell.ScratchSize())

	state := newFloatState(rng, d, 2)
	x := backends.FromFloat32s(MS(F32, 2, 2), uniform(rng, 4, -1, 1))
	output := backends.NewBuffer(MS(F32, 2, 3))
	err := cell.StepWithScratch(state, x, output, backends.NewBuffer(MS(F32, 2, 12)))
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))

	scratch := backends.NewBuffer(MS(F32, 2, 9))
	require.NoError(t, cell.StepWithScratch(state, x, output, scratch))
	values := scratch.Float32s()
	for b := range 2 {
		row := values[b*9 : (b+1)*9]
		// forget and output are sigmoids, in (0, 1); cell gate is a tanh.
		for _, v := range append(row[0:3:3], row[6:9]...) {
			assert.Greater(t, v, float32(0))
			assert.Less(t, v, float32(1))
		}
		for _, v := range row[3:6] {
			assert.Less(t, math32.Abs(v), float32(1))
		}
	}
}

func TestSequence(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 0))
	d := Dims{InputSize: 2, NumUnits: 3, OutputSize: 3}
	const timeSteps, batch = 4, 2

	// Split/Join round trip, batch major.
	seq := backends.FromFloat32s(MS(F32, batch, timeSteps, 2), uniform(rng, batch*timeSteps*2, -1, 1))
	steps := must.M1(SplitTimesteps(seq, false))
	require.Len(t, steps, timeSteps)
	assert.Equal(t, seq.Float32s()[2:4], steps[1].Float32s()[0:2])
	assert.Equal(t, seq.Float32s()[timeSteps*2+2:timeSteps*2+4], steps[1].Float32s()[2:4])
	joined := backends.NewBuffer(seq.Shape())
	require.NoError(t, JoinTimesteps(steps, joined, false))
	assert.Equal(t, seq.Float32s(), joined.Float32s())
	_, err := SplitTimesteps(backends.NewBuffer(MS(F32, 2, 2)), true)
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))

	// Running the whole time major sequence is the same as stepping.
	cell := must.M1(NewFloatCell(randomParams(rng, d, Peephole), Options{Parallelism: 2}))
	x := backends.FromFloat32s(MS(F32, timeSteps, batch, 2), uniform(rng, timeSteps*batch*2, -1, 1))
	y := backends.NewBuffer(MS(F32, timeSteps, batch, 3))
	state := newFloatState(rng, d, batch)
	stepped := &State{Hidden: state.Hidden.Clone(), Cell: state.Cell.Clone()}
	require.NoError(t, RunUnidirectional(context.Background(), cell, state, x, y, true))

	inputs := must.M1(SplitTimesteps(x, true))
	var want []float32
	for t2 := range timeSteps {
		output := backends.NewBuffer(MS(F32, batch, 3))
		require.NoError(t, cell.Step(stepped, inputs[t2], output))
		want = append(want, output.Float32s()...)
	}
	assert.InDeltaSlice(t, want, y.Float32s(), 1e-6)
	assert.InDeltaSlice(t, stepped.Hidden.Float32s(), state.Hidden.Float32s(), 1e-6)

	// Cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = RunUnidirectional(ctx, cell, state, x, y, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
