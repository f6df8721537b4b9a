// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default includes the default backends, namely the CL dispatch backend over the SimpleGo kernels.
//
// To use it simply include:
//
//	import _ "github.com/gomlx/clbackend/backends/default"
package _default

import (
	_ "github.com/gomlx/clbackend/backends/cl"
)
