// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"sync/atomic"

	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Step of a Workload: a named function run in order with the other steps.
type Step struct {
	Name string
	Run  func() error
}

// Workload is the execution unit built by a Backend for one operator instance.
//
// It borrows the caller's input and output buffers, owns the scratch buffers needed by intermediate steps
// (layout permutations, conversions) and runs an ordered sequence of steps, most of them calls to the
// KernelProvider.
//
// A Workload is single use: Execute can only be called once, and must not be called concurrently.
type Workload struct {
	// GUID identifies the workload, e.g. for profiling.
	GUID uuid.UUID

	Op   OpType
	Name string

	steps   []Step
	scratch []*Buffer
	used    atomic.Bool
}

// NewWorkload creates an empty workload for the given operator.
func NewWorkload(op OpType, name string) *Workload {
	return &Workload{GUID: uuid.New(), Op: op, Name: name}
}

// AddStep appends a step to the workload.
func (w *Workload) AddStep(name string, run func() error) {
	w.steps = append(w.steps, Step{Name: name, Run: run})
}

// NewScratch allocates a scratch buffer owned by the workload.
func (w *Workload) NewScratch(shape shapes.Shape) *Buffer {
	b := NewBuffer(shape)
	w.scratch = append(w.scratch, b)
	return b
}

// StepNames returns the names of the steps, in order.
func (w *Workload) StepNames() []string {
	names := make([]string, len(w.steps))
	for ii, step := range w.steps {
		names[ii] = step.Name
	}
	return names
}

// ScratchMemory returns the number of bytes of the scratch buffers.
func (w *Workload) ScratchMemory() uintptr {
	var total uintptr
	for _, b := range w.scratch {
		total += b.Shape().Memory()
	}
	return total
}

// String implements fmt.Stringer.
func (w *Workload) String() string {
	if w.Name != "" {
		return w.Op.String() + "(" + w.Name + ")"
	}
	return w.Op.String()
}

// Execute runs the steps in order. It fails if the workload was already executed.
func (w *Workload) Execute() error {
	if !w.used.CompareAndSwap(false, true) {
		return errors.Errorf("workload %s (%s) was already executed, workloads are single use", w, w.GUID)
	}
	for ii, step := range w.steps {
		if klog.V(3).Enabled() {
			klog.Infof("%s: step #%d %s", w, ii, step.Name)
		}
		if err := step.Run(); err != nil {
			return errors.WithMessagef(err, "workload %s failed on step #%d %q", w, ii, step.Name)
		}
	}
	return nil
}
