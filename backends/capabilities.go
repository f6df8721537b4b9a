// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"maps"

	"github.com/gomlx/clbackend/pkg/core/dtypes"
)

// Capabilities holds mappings of what is supported by a backend.
//
// It's the coarse view: an operator family and dtype listed here may still be rejected for a particular
// combination of shapes, layouts and parameters by Backend.IsSupported.
type Capabilities struct {
	// Operations supported by a backend.
	// If not listed, it's assumed to be false, hence not supported.
	Operations map[OpType]bool

	// DTypes list the data types supported by a backend.
	// If not listed, it's assumed to be false, hence not supported.
	DTypes map[dtypes.DType]bool

	// NativeLayout is the data layout of the backend kernels. Layout sensitive operators described in the other
	// layout are executed with permutations around the kernel.
	NativeLayout DataLayout
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.Operations = make(map[OpType]bool, len(c.Operations))
	maps.Copy(c2.Operations, c.Operations)
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	c2.NativeLayout = c.NativeLayout
	return c2
}
