// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package notimplemented implements a backends.KernelProvider that returns an UnsupportedConfiguration error for
// every entry point, and a backends.Backend that rejects every operator.
//
// Embed Provider to bootstrap a kernel provider implementing only some of the families.
package notimplemented

import (
	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/pkg/errors"
)

// NotImplementedError is returned by every method.
//
// It doesn't contain a stack, attach a stack to with with errors.Wrapf(NotImplementedError, "...") when using it.
var NotImplementedError = errorkind.ErrUnsupportedConfiguration

// Backend is a dummy backend that can be used as a fallback or to create mock backends.
type Backend struct{}

var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return "notimplemented"
}

// String returns the same as Name.
func (b *Backend) String() string {
	return b.Name()
}

// Description is a longer description of the Backend.
func (b *Backend) Description() string {
	return "Not Implemented Backend (mock backend for testing)"
}

// Capabilities returns empty capabilities.
func (b *Backend) Capabilities() backends.Capabilities {
	return backends.Capabilities{
		Operations: make(map[backends.OpType]bool),
		DTypes:     make(map[dtypes.DType]bool),
	}
}

// IsSupported rejects every operator.
func (b *Backend) IsSupported(desc *backends.Descriptor) backends.Decision {
	return backends.Reject(errors.Wrapf(NotImplementedError, "%s not implemented by backend %q", desc.Op, b.Name()))
}

// Build returns NotImplementedError.
func (b *Backend) Build(desc *backends.Descriptor, _, _ []*backends.Buffer) (*backends.Workload, error) {
	return nil, errors.Wrapf(NotImplementedError, "in Build(%s)", desc.Op)
}
