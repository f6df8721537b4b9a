// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lstm

import (
	"fmt"
	"math"
	"slices"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/pkg/errors"
)

// weightKind classifies the tensors of LstmWeights, to check their dtypes.
type weightKind int

const (
	kindMatrix weightKind = iota
	kindBias
	kindPeephole
	kindLayerNorm
	kindProjection
	kindProjectionBias
)

// namedWeight is one tensor of LstmWeights with its name, kind and gate (or -1 for projection tensors).
type namedWeight struct {
	name string
	kind weightKind
	gate int
	buf  *backends.Buffer

	// required tells whether the configuration requires the tensor; forbidden that it must be absent.
	required, forbidden bool

	// why is the configuration that decides its presence, used in error messages.
	why string

	// dims expected.
	dims []int
}

// weightsTable lists the tensors of the params, with the presence rules of the configuration.
func weightsTable(params *backends.LstmParams, d Dims) []namedWeight {
	w := &params.Weights
	n, i, o := d.NumUnits, d.InputSize, d.OutputSize
	cifg := fmt.Sprintf("CifgEnabled=%v", params.CifgEnabled)
	peephole := fmt.Sprintf("PeepholeEnabled=%v", params.PeepholeEnabled)
	projection := fmt.Sprintf("ProjectionEnabled=%v", params.ProjectionEnabled)
	layerNorm := fmt.Sprintf("LayerNormEnabled=%v", params.LayerNormEnabled)
	always := "always"
	noCifg, withPeephole, withLayerNorm := !params.CifgEnabled, params.PeepholeEnabled, params.LayerNormEnabled
	return []namedWeight{
		{"InputToInputWeights", kindMatrix, gateInput, w.InputToInputWeights, noCifg, !noCifg, cifg, []int{n, i}},
		{"InputToForgetWeights", kindMatrix, gateForget, w.InputToForgetWeights, true, false, always, []int{n, i}},
		{"InputToCellWeights", kindMatrix, gateCell, w.InputToCellWeights, true, false, always, []int{n, i}},
		{"InputToOutputWeights", kindMatrix, gateOutput, w.InputToOutputWeights, true, false, always, []int{n, i}},
		{"RecurrentToInputWeights", kindMatrix, gateInput, w.RecurrentToInputWeights, noCifg, !noCifg, cifg, []int{n, o}},
		{"RecurrentToForgetWeights", kindMatrix, gateForget, w.RecurrentToForgetWeights, true, false, always, []int{n, o}},
		{"RecurrentToCellWeights", kindMatrix, gateCell, w.RecurrentToCellWeights, true, false, always, []int{n, o}},
		{"RecurrentToOutputWeights", kindMatrix, gateOutput, w.RecurrentToOutputWeights, true, false, always, []int{n, o}},
		{"CellToInputWeights", kindPeephole, gateInput, w.CellToInputWeights, withPeephole && noCifg, !withPeephole || !noCifg, peephole + ", " + cifg, []int{n}},
		{"CellToForgetWeights", kindPeephole, gateForget, w.CellToForgetWeights, withPeephole, !withPeephole, peephole, []int{n}},
		{"CellToOutputWeights", kindPeephole, gateOutput, w.CellToOutputWeights, withPeephole, !withPeephole, peephole, []int{n}},
		{"InputGateBias", kindBias, gateInput, w.InputGateBias, noCifg, !noCifg, cifg, []int{n}},
		{"ForgetGateBias", kindBias, gateForget, w.ForgetGateBias, true, false, always, []int{n}},
		{"CellBias", kindBias, gateCell, w.CellBias, true, false, always, []int{n}},
		{"OutputGateBias", kindBias, gateOutput, w.OutputGateBias, true, false, always, []int{n}},
		{"ProjectionWeights", kindProjection, -1, w.ProjectionWeights, params.ProjectionEnabled, !params.ProjectionEnabled, projection, []int{o, n}},
		{"ProjectionBias", kindProjectionBias, -1, w.ProjectionBias, false, !params.ProjectionEnabled, projection, []int{o}},
		{"InputLayerNormWeights", kindLayerNorm, gateInput, w.InputLayerNormWeights, withLayerNorm && noCifg, !withLayerNorm || !noCifg, layerNorm + ", " + cifg, []int{n}},
		{"ForgetLayerNormWeights", kindLayerNorm, gateForget, w.ForgetLayerNormWeights, withLayerNorm, !withLayerNorm, layerNorm, []int{n}},
		{"CellLayerNormWeights", kindLayerNorm, gateCell, w.CellLayerNormWeights, withLayerNorm, !withLayerNorm, layerNorm, []int{n}},
		{"OutputLayerNormWeights", kindLayerNorm, gateOutput, w.OutputLayerNormWeights, withLayerNorm, !withLayerNorm, layerNorm, []int{n}},
	}
}

// validateStructure checks the presence and shapes of the weights for the configuration of the params, and
// returns the cell dimensions and features.
//
// The dimensions are taken from InputToForgetWeights [numUnits, inputSize] and RecurrentToForgetWeights
// [numUnits, outputSize].
func validateStructure(params *backends.LstmParams) (d Dims, f Features, err error) {
	w := &params.Weights
	if w.InputToForgetWeights == nil || w.InputToForgetWeights.Shape().Rank() != 2 {
		err = Errorf(InvalidParameter, "LSTM InputToForgetWeights [numUnits, inputSize] are required")
		return
	}
	if w.RecurrentToForgetWeights == nil || w.RecurrentToForgetWeights.Shape().Rank() != 2 {
		err = Errorf(InvalidParameter, "LSTM RecurrentToForgetWeights [numUnits, outputSize] are required")
		return
	}
	d.NumUnits, d.InputSize = w.InputToForgetWeights.Shape().Dimensions[0], w.InputToForgetWeights.Shape().Dimensions[1]
	d.OutputSize = w.RecurrentToForgetWeights.Shape().Dimensions[1]
	f = FeaturesOf(params)

	for _, nw := range weightsTable(params, d) {
		switch {
		case nw.buf == nil && nw.required:
			err = Errorf(InvalidParameter, "LSTM %s is required (%s)", nw.name, nw.why)
			return
		case nw.buf != nil && nw.forbidden:
			err = Errorf(InvalidParameter, "LSTM %s given, but it is not used (%s)", nw.name, nw.why)
			return
		case nw.buf != nil && !slices.Equal(nw.buf.Shape().Dimensions, nw.dims):
			err = Errorf(InvalidParameter, "LSTM %s has shape %s, expected dimensions %v (numUnits=%d, inputSize=%d, outputSize=%d)",
				nw.name, nw.buf.Shape(), nw.dims, d.NumUnits, d.InputSize, d.OutputSize)
			return
		}
	}
	if !f.Has(Projection) && d.OutputSize != d.NumUnits {
		err = Errorf(InvalidParameter, "LSTM without projection requires the output size (%d) to be equal to the number of units (%d)",
			d.OutputSize, d.NumUnits)
		return
	}
	for name, clip := range map[string]float32{"ClipCell": params.ClipCell, "ClipProjection": params.ClipProjection} {
		if clip < 0 || math.IsNaN(float64(clip)) || math.IsInf(float64(clip), 0) {
			err = Errorf(InvalidParameter, "LSTM %s must be finite and >= 0 (0 disables clipping), got %g", name, clip)
			return
		}
	}
	return
}

// checkDTypes verifies the dtype of each tensor given, by kind.
func checkDTypes(cellName string, table []namedWeight, allowed map[weightKind][]dtypes.DType) error {
	for _, nw := range table {
		if nw.buf == nil {
			continue
		}
		shape := nw.buf.Shape()
		if !slices.Contains(allowed[nw.kind], shape.DType) {
			return Errorf(InvalidParameter, "%s %s has dtype %s, expected one of %v", cellName, nw.name, shape.DType, allowed[nw.kind])
		}
		if shape.DType.IsQuantized() && !shape.Quantization.IsSet() {
			return Errorf(InvalidParameter, "%s %s is quantized (%s) but has no quantization parameters", cellName, nw.name, shape.DType)
		}
		if shape.Quantization.IsPerChannel() {
			return Errorf(InvalidParameter, "%s %s: per-channel quantization is not supported for LSTM weights", cellName, nw.name)
		}
		if shape.DType.IsQuantized() {
			if err := quantization.Validate(shape.Quantization.Tensor(), shape.DType); err != nil {
				return errors.WithMessagef(err, "%s %s", cellName, nw.name)
			}
		}
	}
	return nil
}

// checkStateShapes verifies the shapes of the batch buffers given to Step.
func checkStateShapes(cellName string, d Dims, state *State, x, output *backends.Buffer) (batch int, err error) {
	if state == nil || state.Hidden == nil || state.Cell == nil || x == nil || output == nil {
		return 0, Errorf(InvalidParameter, "%s.Step: state, x and output must be given", cellName)
	}
	xDims := x.Shape().Dimensions
	if len(xDims) != 2 || xDims[1] != d.InputSize {
		return 0, Errorf(InvalidParameter, "%s.Step: x must be shaped [batch, %d], got %s", cellName, d.InputSize, x.Shape())
	}
	batch = xDims[0]
	for _, check := range []struct {
		name  string
		buf   *backends.Buffer
		width int
	}{{"hidden state", state.Hidden, d.OutputSize}, {"cell state", state.Cell, d.NumUnits}, {"output", output, d.OutputSize}} {
		if !slices.Equal(check.buf.Shape().Dimensions, []int{batch, check.width}) {
			return 0, Errorf(InvalidParameter, "%s.Step: %s must be shaped [%d, %d], got %s",
				cellName, check.name, batch, check.width, check.buf.Shape())
		}
	}
	return batch, nil
}
