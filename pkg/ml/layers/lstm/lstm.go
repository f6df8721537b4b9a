// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package lstm implements the "Long Short-Term Memory RNN" (LSTM) [1] cells used by the LSTM family of
// operators: the float LSTM, the integer QLSTM and the 16-bit QuantizedLSTM.
//
// Each timestep computes, for a batch entry with input x, previous hidden state h and previous cell state c:
//
//	i = sigmoid(x·Wi + h·Ri [+ c⊙Pi] + bi)    (input gate, or 1-f with CIFG)
//	f = sigmoid(x·Wf + h·Rf [+ c⊙Pf] + bf)    (forget gate)
//	g = act(x·Wc + h·Rc + bc)                 (cell gate, act defaults to tanh)
//	c' = clip(f⊙c + i⊙g)
//	o = sigmoid(x·Wo + h·Ro [+ c'⊙Po] + bo)   (output gate)
//	h' = o⊙act(c'), optionally projected: clip(h'·Wproj + bproj)
//
// With layer normalization each gate pre-activation is normalized across the units and multiplied by a learned
// gain before the bias is added.
//
// The optional features (CIFG, peephole, projection, layer normalization) are checked once, when the cell is
// created, and compiled into a Plan: an ordered list of sub-steps that is run as is for every timestep and batch
// entry.
//
// See discussions in [2], and the integer-only LSTM formulation used by the quantized cells in [3].
//
// [1] https://www.bioinf.jku.at/publications/older/2604.pdf, Hochreiter & Schmidhuber, 1997
// [2] https://colah.github.io/posts/2015-08-Understanding-LSTMs/
// [3] https://arxiv.org/abs/1712.05877, Jacob et al., 2017
package lstm

import (
	"strings"

	"github.com/gomlx/clbackend/backends"
	"golang.org/x/sync/errgroup"
)

// Features is the capability set of a cell.
type Features uint8

const (
	// CIFG couples the input and forget gates: i = 1 - f.
	CIFG Features = 1 << iota

	// Peephole connects the cell state to the gates through diagonal weights.
	Peephole

	// Projection maps the hidden state to a different output width.
	Projection

	// LayerNorm normalizes the gate pre-activations.
	LayerNorm
)

// FeaturesOf returns the capability set requested by the params.
func FeaturesOf(params *backends.LstmParams) Features {
	var f Features
	if params.CifgEnabled {
		f |= CIFG
	}
	if params.PeepholeEnabled {
		f |= Peephole
	}
	if params.ProjectionEnabled {
		f |= Projection
	}
	if params.LayerNormEnabled {
		f |= LayerNorm
	}
	return f
}

// Has returns whether all features in other are set.
func (f Features) Has(other Features) bool { return f&other == other }

// String implements fmt.Stringer.
func (f Features) String() string {
	var parts []string
	for _, feature := range []struct {
		flag Features
		name string
	}{{CIFG, "CIFG"}, {Peephole, "Peephole"}, {Projection, "Projection"}, {LayerNorm, "LayerNorm"}} {
		if f.Has(feature.flag) {
			parts = append(parts, feature.name)
		}
	}
	if len(parts) == 0 {
		return "Basic"
	}
	return strings.Join(parts, "+")
}

// Dims of a cell.
type Dims struct {
	// InputSize is the width of x, NumUnits the width of the cell state and OutputSize the width of the
	// hidden state (NumUnits, unless projection is enabled).
	InputSize, NumUnits, OutputSize int
}

// State of a batch of sequences, updated in place by Cell.Step.
type State struct {
	// Hidden is shaped [batch, outputSize] and Cell [batch, numUnits].
	Hidden, Cell *backends.Buffer
}

// Cell is an LSTM cell compiled for one configuration.
type Cell interface {
	Dims() Dims
	Features() Features

	// Plan returns the names of the sub-steps run for every timestep, in order.
	Plan() []string

	// Step advances the state by one timestep, for all batch entries: x is shaped [batch, inputSize] and
	// the output (the new hidden state) [batch, outputSize].
	Step(state *State, x, output *backends.Buffer) error
}

// Options for the creation of cells.
type Options struct {
	// Parallelism is the maximum number of batch entries computed concurrently. Values <= 1 run serially.
	Parallelism int
}

// gate indices.
const (
	gateInput = iota
	gateForget
	gateCell
	gateOutput
	numGates
)

var gateNames = [numGates]string{"input", "forget", "cell", "output"}

// planStep is one sub-step of a Plan, run on the workspace W of one batch entry.
type planStep[W any] struct {
	name string
	run  func(ws *W)
}

// plan is the ordered list of sub-steps of a cell.
type plan[W any] []planStep[W]

func (p *plan[W]) add(name string, run func(ws *W)) {
	*p = append(*p, planStep[W]{name: name, run: run})
}

func (p plan[W]) names() []string {
	names := make([]string, len(p))
	for ii, step := range p {
		names[ii] = step.name
	}
	return names
}

func (p plan[W]) run(ws *W) {
	for _, step := range p {
		step.run(ws)
	}
}

// forEachEntry runs fn for each batch entry, with up to parallelism entries concurrently.
func forEachEntry(parallelism, batch int, fn func(b int) error) error {
	if parallelism <= 1 || batch <= 1 {
		for b := range batch {
			if err := fn(b); err != nil {
				return err
			}
		}
		return nil
	}
	var g errgroup.Group
	g.SetLimit(parallelism)
	for b := range batch {
		g.Go(func() error { return fn(b) })
	}
	return g.Wait()
}
