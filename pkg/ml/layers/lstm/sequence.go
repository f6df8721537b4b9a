// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lstm

import (
	"context"
	"reflect"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// RunSequence runs the cell over the timesteps in order: inputs[t] is x at timestep t, shaped [batch, inputSize],
// and outputs[t] receives the hidden state after it, [batch, outputSize]. The state is updated in place.
//
// It checks for cancellation of ctx before each timestep.
func RunSequence(ctx context.Context, cell Cell, state *State, inputs, outputs []*backends.Buffer) error {
	if len(inputs) != len(outputs) {
		return Errorf(InvalidParameter, "RunSequence: got %d inputs and %d outputs", len(inputs), len(outputs))
	}
	for t, x := range inputs {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "RunSequence interrupted at timestep %d of %d", t, len(inputs))
		}
		if err := cell.Step(state, x, outputs[t]); err != nil {
			return errors.WithMessagef(err, "RunSequence timestep %d", t)
		}
		if klog.V(3).Enabled() {
			klog.Infof("lstm(%s): timestep %d of %d done", cell.Features(), t+1, len(inputs))
		}
	}
	return nil
}

// sequenceDims returns the time and batch dimensions of a rank 3 sequence.
func sequenceDims(shape shapes.Shape, timeMajor bool) (timeSteps, batch, width int, err error) {
	if shape.Rank() != 3 {
		err = Errorf(InvalidParameter, "sequence must have rank 3 ([time, batch, width] or [batch, time, width]), got %s", shape)
		return
	}
	timeSteps, batch, width = shape.Dimensions[0], shape.Dimensions[1], shape.Dimensions[2]
	if !timeMajor {
		timeSteps, batch = batch, timeSteps
	}
	return
}

// rowOffset returns the flat offset of the row of (timestep t, batch entry b) of a sequence.
func rowOffset(t, b, timeSteps, batch, width int, timeMajor bool) int {
	if timeMajor {
		return (t*batch + b) * width
	}
	return (b*timeSteps + t) * width
}

// SplitTimesteps copies a sequence, [time, batch, width] if timeMajor or [batch, time, width] otherwise, into one
// [batch, width] buffer per timestep, with the same dtype and quantization.
func SplitTimesteps(sequence *backends.Buffer, timeMajor bool) ([]*backends.Buffer, error) {
	shape := sequence.Shape()
	timeSteps, batch, width, err := sequenceDims(shape, timeMajor)
	if err != nil {
		return nil, err
	}
	src := reflect.ValueOf(sequence.Flat())
	steps := make([]*backends.Buffer, timeSteps)
	for t := range timeSteps {
		steps[t] = backends.NewBuffer(shape.WithDimensions(batch, width))
		dst := reflect.ValueOf(steps[t].Flat())
		for b := range batch {
			from := rowOffset(t, b, timeSteps, batch, width, timeMajor)
			reflect.Copy(dst.Slice(b*width, (b+1)*width), src.Slice(from, from+width))
		}
	}
	return steps, nil
}

// JoinTimesteps copies the [batch, width] buffers of each timestep into sequence, the reverse of SplitTimesteps.
// The timesteps must have the dtype and quantization of sequence.
func JoinTimesteps(steps []*backends.Buffer, sequence *backends.Buffer, timeMajor bool) error {
	shape := sequence.Shape()
	timeSteps, batch, width, err := sequenceDims(shape, timeMajor)
	if err != nil {
		return err
	}
	if len(steps) != timeSteps {
		return Errorf(InvalidParameter, "JoinTimesteps: got %d timesteps for sequence %s", len(steps), shape)
	}
	dst := reflect.ValueOf(sequence.Flat())
	for t, step := range steps {
		if !step.Shape().Equal(shape.WithDimensions(batch, width)) {
			return Errorf(InvalidParameter, "JoinTimesteps: timestep %d is %s, expected %s", t, step.Shape(),
				shape.WithDimensions(batch, width))
		}
		src := reflect.ValueOf(step.Flat())
		for b := range batch {
			to := rowOffset(t, b, timeSteps, batch, width, timeMajor)
			reflect.Copy(dst.Slice(to, to+width), src.Slice(b*width, (b+1)*width))
		}
	}
	return nil
}

// RunUnidirectional runs the cell over a whole sequence x, writing the hidden state of every timestep to y.
// Both are rank 3, time major or batch major.
func RunUnidirectional(ctx context.Context, cell Cell, state *State, x, y *backends.Buffer, timeMajor bool) error {
	inputs, err := SplitTimesteps(x, timeMajor)
	if err != nil {
		return errors.WithMessage(err, "UnidirectionalSequenceLstm input")
	}
	outputs, err := SplitTimesteps(y, timeMajor)
	if err != nil {
		return errors.WithMessage(err, "UnidirectionalSequenceLstm output")
	}
	if len(inputs) != len(outputs) {
		return Errorf(InvalidParameter, "UnidirectionalSequenceLstm: input %s and output %s have different lengths",
			x.Shape(), y.Shape())
	}
	if err = RunSequence(ctx, cell, state, inputs, outputs); err != nil {
		return err
	}
	return JoinTimesteps(outputs, y, timeMajor)
}
