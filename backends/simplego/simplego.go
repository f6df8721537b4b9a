// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simplego implements a simple, and not very fast, but very portable reference backends.KernelProvider.
//
// It implements every kernel entry point for float32, float16, int32 and the quantized dtypes, following
// the usual integer-only inference recipe for the arithmetic families: binary operations, fully connected
// and convolutions accumulate in integers and requantize with the multipliers given by the workload factory.
// The remaining families (pooling, normalization, resize, softmax, mean) dequantize, compute in float32 and
// quantize the result.
//
// All kernels handle both data layouts (NCHW and NHWC) given in their arguments.
package simplego

import (
	"runtime"

	"github.com/gomlx/clbackend/backends"
	"golang.org/x/sync/errgroup"
)

// Name of the provider.
const Name = "simplego"

// Provider implements backends.KernelProvider.
type Provider struct {
	// maxParallelism is the maximum number of goroutines used by a kernel. 0 or negative means runtime.NumCPU.
	maxParallelism int
}

// Compile-time check that Provider implements backends.KernelProvider.
var _ backends.KernelProvider = &Provider{}

// New creates a Provider that runs up to maxParallelism goroutines per kernel. If maxParallelism <= 0,
// it uses runtime.NumCPU.
func New(maxParallelism int) *Provider {
	if maxParallelism <= 0 {
		maxParallelism = runtime.NumCPU()
	}
	return &Provider{maxParallelism: maxParallelism}
}

// Name implements backends.KernelProvider.
func (p *Provider) Name() string { return Name }

// Parallelism returns the maximum number of goroutines used by a kernel.
func (p *Provider) Parallelism() int { return p.maxParallelism }

// parallelFor runs fn(ii) for ii in [0, n), with up to maxParallelism goroutines, and returns the first error.
func (p *Provider) parallelFor(n int, fn func(ii int) error) error {
	if n <= 1 || p.maxParallelism <= 1 {
		for ii := range n {
			if err := fn(ii); err != nil {
				return err
			}
		}
		return nil
	}
	var g errgroup.Group
	g.SetLimit(p.maxParallelism)
	for ii := range n {
		g.Go(func() error { return fn(ii) })
	}
	return g.Wait()
}
