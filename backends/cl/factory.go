// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Build implements backends.Backend.
//
// The operator instance is validated again, the buffers must have the shapes of the descriptor, and any panic during
// the construction is returned as an error. It never returns a partially built workload.
func (b *Backend) Build(desc *backends.Descriptor, inputs, outputs []*backends.Buffer) (*backends.Workload, error) {
	if err := b.validateSafe(desc); err != nil {
		return nil, err
	}
	if err := checkBuffers(desc, "input", desc.Inputs, inputs); err != nil {
		return nil, err
	}
	if err := checkBuffers(desc, "output", desc.Outputs, outputs); err != nil {
		return nil, err
	}
	var w *backends.Workload
	var err error
	exception := exceptions.TryCatch[error](func() {
		w = backends.NewWorkload(desc.Op, desc.Name)
		err = families[desc.Op].build(b, w, desc, inputs, outputs)
	})
	if exception != nil {
		err = exception
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "building workload for %s", desc)
	}
	if klog.V(1).Enabled() {
		klog.Infof("backend %q built workload %s (%s): steps %q, %s of scratch memory",
			BackendName, w, w.GUID, w.StepNames(), humanize.Bytes(uint64(w.ScratchMemory())))
	}
	return w, nil
}

// checkBuffers verifies that the buffers are given and shaped as the descriptor.
func checkBuffers(desc *backends.Descriptor, kind string, expected []shapes.Shape, buffers []*backends.Buffer) error {
	if len(buffers) != len(expected) {
		return Errorf(InvalidParameter, "%s: %d %s shapes in the descriptor, but %d buffers given",
			desc.Op, len(expected), kind, len(buffers))
	}
	for ii, buffer := range buffers {
		if buffer == nil {
			return Errorf(InvalidParameter, "%s: %s buffer #%d is nil", desc.Op, kind, ii)
		}
		if !buffer.Shape().Equal(expected[ii]) {
			return Errorf(InvalidParameter, "%s: %s buffer #%d is shaped %s, but the descriptor has %s",
				desc.Op, kind, ii, buffer.Shape(), expected[ii])
		}
	}
	return nil
}

// permutedShape returns the shape transposed by permutation (output axis i reads source axis permutation[i]),
// with the per-channel quantization axis moved accordingly.
func permutedShape(shape shapes.Shape, permutation []int) shapes.Shape {
	dims := make([]int, len(permutation))
	for axis, srcAxis := range permutation {
		dims[axis] = shape.Dimensions[srcAxis]
	}
	permuted := shapes.Make(shape.DType, dims...)
	permuted.Quantization = shape.Quantization.Clone()
	if permuted.Quantization.IsPerChannel() {
		permuted.Quantization.Axis = slices.Index(permutation, shape.Quantization.Axis)
	}
	return permuted
}

// kernelStep is a kernel call given the buffers in the native layout, and the native layout itself.
type kernelStep func(layout backends.DataLayout, inputs []*backends.Buffer, output *backends.Buffer) error

// addLayoutStep adds the kernel step of a layout sensitive family.
//
// The inputs and output follow layout: if it is not the native layout of the backend, each of them is permuted
// through a scratch buffer before the kernel runs, and the kernel output is permuted back to output.
// Nil inputs (an absent bias) are passed along.
func (b *Backend) addLayoutStep(w *backends.Workload, name string, layout backends.DataLayout,
	inputs []*backends.Buffer, output *backends.Buffer, kernel kernelStep) {
	native := b.config.Layout
	toNative := layout.TransposeTo(native)
	if toNative == nil {
		w.AddStep(name, func() error { return kernel(native, inputs, output) })
		return
	}
	nativeInputs := make([]*backends.Buffer, len(inputs))
	for ii, input := range inputs {
		if input == nil {
			continue
		}
		scratch := w.NewScratch(permutedShape(input.Shape(), toNative))
		nativeInputs[ii] = scratch
		w.AddStep(fmt.Sprintf("permute input #%d %s to %s", ii, layout, native), func() error {
			return b.provider.Permute(&backends.PermuteArgs{Permutation: toNative}, input, scratch)
		})
	}
	nativeOutput := w.NewScratch(permutedShape(output.Shape(), toNative))
	w.AddStep(name, func() error { return kernel(native, nativeInputs, nativeOutput) })
	fromNative := native.TransposeTo(layout)
	w.AddStep(fmt.Sprintf("permute output %s to %s", native, layout), func() error {
		return b.provider.Permute(&backends.PermuteArgs{Permutation: fromNative}, nativeOutput, output)
	})
}
