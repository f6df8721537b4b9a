// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"context"
	"slices"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/gomlx/clbackend/pkg/ml/layers/lstm"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/pkg/errors"
)

// This file implements the recurrent families, whose cells are compiled by package lstm.
//
// The cells update their state in place, so the workloads run them on scratch copies of the input states, and copy
// the result to the output states.

// checkDims verifies the dimensions of the named operand.
func checkDims(desc *backends.Descriptor, name string, shape shapes.Shape, dims ...int) error {
	if !slices.Equal(shape.Dimensions, dims) {
		return Errorf(InvalidParameter, "%s: %s must be shaped %v, got %s", desc.Op, name, dims, shape)
	}
	return nil
}

// checkStates verifies that the input states (x, hIn, cIn) of a cell with the given dims are [batch, *] matrices,
// and returns the batch size.
func checkStates(desc *backends.Descriptor, x, hIn, cIn shapes.Shape, d lstm.Dims) (batch int, err error) {
	if x.Rank() != 2 {
		return 0, Errorf(InvalidParameter, "%s: input must be shaped [batch, %d], got %s", desc.Op, d.InputSize, x)
	}
	batch = x.Dimensions[0]
	if err = checkDims(desc, "input", x, batch, d.InputSize); err != nil {
		return
	}
	if err = checkDims(desc, "output state", hIn, batch, d.OutputSize); err != nil {
		return
	}
	err = checkDims(desc, "cell state", cIn, batch, d.NumUnits)
	return
}

// sameDimsAndDType verifies that an output state has the dimensions and dtype of the input state.
func sameDimsAndDType(desc *backends.Descriptor, name string, output, input shapes.Shape) error {
	if output.DType != input.DType || !slices.Equal(output.Dimensions, input.Dimensions) {
		return Errorf(InvalidParameter, "%s: %s %s must match the input state %s", desc.Op, name, output, input)
	}
	return nil
}

// validateLstm validates Lstm and UnidirectionalSequenceLstm.
//
// Lstm: inputs x, hIn, cIn and outputs scratch, hOut, cOut, y.
// UnidirectionalSequenceLstm: inputs x (rank 3), hIn, cIn and outputs y or hOut, cOut, y.
func validateLstm(b *Backend, desc *backends.Descriptor) error {
	p, err := paramsOf[backends.LstmParams](desc)
	if err != nil {
		return err
	}
	cell, err := lstm.NewFloatCell(p, lstm.Options{})
	if err != nil {
		return errors.WithMessagef(err, "%s", desc.Op)
	}
	d := cell.Dims()
	sequence := desc.Op == backends.OpTypeUnidirectionalSequenceLstm
	if sequence && len(desc.Outputs) == 1 {
		err = checkArity(desc, 3, 3, 1)
	} else if sequence {
		err = checkArity(desc, 3, 3, 3)
	} else {
		err = checkArity(desc, 3, 3, 4)
	}
	if err != nil {
		return err
	}
	for ii, operand := range slices.Concat(desc.Inputs, desc.Outputs) {
		if err = checkDType(desc, "operand", operand, floatDTypes...); err != nil {
			return errors.WithMessagef(err, "operand #%d", ii)
		}
	}
	x, hIn, cIn := desc.Inputs[0], desc.Inputs[1], desc.Inputs[2]
	y := desc.Outputs[len(desc.Outputs)-1]
	if sequence {
		if x.Rank() != 3 {
			return Errorf(InvalidParameter, "%s: input must have rank 3, got %s", desc.Op, x)
		}
		timeSteps, batch := x.Dimensions[1], x.Dimensions[0]
		if p.TimeMajor {
			timeSteps, batch = batch, timeSteps
		}
		if _, err = checkStates(desc, x.WithDimensions(batch, x.Dimensions[2]), hIn, cIn, d); err != nil {
			return err
		}
		yDims := []int{batch, timeSteps, d.OutputSize}
		if p.TimeMajor {
			yDims = []int{timeSteps, batch, d.OutputSize}
		}
		if err = checkDims(desc, "output", y, yDims...); err != nil {
			return err
		}
	} else {
		batch, err := checkStates(desc, x, hIn, cIn, d)
		if err != nil {
			return err
		}
		if err = checkDims(desc, "scratch", desc.Outputs[0], batch, cell.ScratchSize()); err != nil {
			return err
		}
		if err = checkDims(desc, "output", y, batch, d.OutputSize); err != nil {
			return err
		}
	}
	if len(desc.Outputs) > 1 {
		n := len(desc.Outputs)
		if err = sameDimsAndDType(desc, "output state", desc.Outputs[n-3], hIn); err != nil {
			return err
		}
		return sameDimsAndDType(desc, "cell state", desc.Outputs[n-2], cIn)
	}
	return nil
}

// loadState adds the step copying the input states to scratch buffers, and returns the scratch state.
func (b *Backend) loadState(w *backends.Workload, hIn, cIn *backends.Buffer) *lstm.State {
	state := &lstm.State{Hidden: w.NewScratch(hIn.Shape().Clone()), Cell: w.NewScratch(cIn.Shape().Clone())}
	w.AddStep("load state", func() error {
		if err := b.provider.Copy(hIn, state.Hidden); err != nil {
			return err
		}
		return b.provider.Copy(cIn, state.Cell)
	})
	return state
}

// storeState adds the step copying (and requantizing, if needed) the state to the output states.
func (b *Backend) storeState(w *backends.Workload, state *lstm.State, hOut, cOut *backends.Buffer) {
	w.AddStep("store state", func() error {
		if err := b.provider.Copy(state.Hidden, hOut); err != nil {
			return err
		}
		return b.provider.Copy(state.Cell, cOut)
	})
}

func buildLstm(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := desc.Params.(*backends.LstmParams)
	cell, err := lstm.NewFloatCell(p, lstm.Options{Parallelism: b.config.Parallelism})
	if err != nil {
		return err
	}
	x := inputs[0]
	state := b.loadState(w, inputs[1], inputs[2])
	y := outputs[len(outputs)-1]
	if desc.Op == backends.OpTypeLstm {
		scratch := outputs[0]
		w.AddStep("lstm step", func() error { return cell.StepWithScratch(state, x, y, scratch) })
		b.storeState(w, state, outputs[1], outputs[2])
		return nil
	}
	w.AddStep("lstm sequence", func() error {
		return lstm.RunUnidirectional(context.Background(), cell, state, x, y, p.TimeMajor)
	})
	if len(outputs) == 3 {
		b.storeState(w, state, outputs[0], outputs[1])
	}
	return nil
}

// validateQLstm: inputs x, hIn, cIn and outputs hOut, cOut, y.
func validateQLstm(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 3, 3, 3); err != nil {
		return err
	}
	p, err := paramsOf[backends.LstmParams](desc)
	if err != nil {
		return err
	}
	x, hIn, cIn := desc.Inputs[0], desc.Inputs[1], desc.Inputs[2]
	cell, err := lstm.NewQLstmCell(p, x, hIn, cIn, lstm.Options{})
	if err != nil {
		return errors.WithMessagef(err, "%s", desc.Op)
	}
	batch, err := checkStates(desc, x, hIn, cIn, cell.Dims())
	if err != nil {
		return err
	}
	hOut, cOut, y := desc.Outputs[0], desc.Outputs[1], desc.Outputs[2]
	if err = sameDimsAndDType(desc, "output state", hOut, hIn); err != nil {
		return err
	}
	if err = sameDimsAndDType(desc, "cell state", cOut, cIn); err != nil {
		return err
	}
	if err = checkDType(desc, "output", y, hIn.DType); err != nil {
		return err
	}
	return checkDims(desc, "output", y, batch, cell.Dims().OutputSize)
}

func buildQLstm(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := desc.Params.(*backends.LstmParams)
	x, hIn, cIn := inputs[0], inputs[1], inputs[2]
	cell, err := lstm.NewQLstmCell(p, x.Shape(), hIn.Shape(), cIn.Shape(), lstm.Options{Parallelism: b.config.Parallelism})
	if err != nil {
		return err
	}
	state := b.loadState(w, hIn, cIn)
	y := outputs[2]
	w.AddStep("qlstm step", func() error { return cell.Step(state, x, y) })
	b.storeState(w, state, outputs[0], outputs[1])
	return nil
}

// validateQuantizedLstm: inputs x, cIn, hIn and outputs cOut, hOut.
func validateQuantizedLstm(_ *Backend, desc *backends.Descriptor) error {
	if err := checkArity(desc, 3, 3, 2); err != nil {
		return err
	}
	p, err := paramsOf[backends.QuantizedLstmParams](desc)
	if err != nil {
		return err
	}
	x, cIn, hIn := desc.Inputs[0], desc.Inputs[1], desc.Inputs[2]
	cell, err := lstm.NewQuantizedCell(p, x, cIn, hIn, lstm.Options{})
	if err != nil {
		return errors.WithMessagef(err, "%s", desc.Op)
	}
	if _, err = checkStates(desc, x, hIn, cIn, cell.Dims()); err != nil {
		return err
	}
	if err = sameDimsAndDType(desc, "cell state", desc.Outputs[0], cIn); err != nil {
		return err
	}
	return sameDimsAndDType(desc, "output state", desc.Outputs[1], hIn)
}

func buildQuantizedLstm(b *Backend, w *backends.Workload, desc *backends.Descriptor, inputs, outputs []*backends.Buffer) error {
	p := desc.Params.(*backends.QuantizedLstmParams)
	x, cIn, hIn := inputs[0], inputs[1], inputs[2]
	cOut, hOut := outputs[0], outputs[1]
	cell, err := lstm.NewQuantizedCell(p, x.Shape(), cIn.Shape(), hIn.Shape(), lstm.Options{Parallelism: b.config.Parallelism})
	if err != nil {
		return err
	}
	state := b.loadState(w, hIn, cIn)
	w.AddStep("quantized lstm step", func() error { return cell.Step(state, x, hOut) })
	w.AddStep("store cell state", func() error { return b.provider.Copy(state.Cell, cOut) })
	return nil
}
