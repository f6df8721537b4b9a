// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"
	"strings"

	"github.com/gomlx/clbackend/pkg/core/shapes"
)

// Descriptor describes one operator instance: a tagged union where Op is the tag and Params the family
// specific payload (e.g. *Convolution2dParams for OpTypeConvolution2d, nil for the arithmetic families).
type Descriptor struct {
	Op OpType

	// Name is optional, used in logs and error messages.
	Name string

	Inputs, Outputs []shapes.Shape
	Params          any
}

// String implements fmt.Stringer.
func (d *Descriptor) String() string {
	var sb strings.Builder
	sb.WriteString(d.Op.String())
	if d.Name != "" {
		fmt.Fprintf(&sb, "(%q)", d.Name)
	}
	parts := make([]string, 0, len(d.Inputs))
	for _, s := range d.Inputs {
		parts = append(parts, s.String())
	}
	fmt.Fprintf(&sb, " [%s]", strings.Join(parts, ", "))
	parts = parts[:0]
	for _, s := range d.Outputs {
		parts = append(parts, s.String())
	}
	fmt.Fprintf(&sb, " -> [%s]", strings.Join(parts, ", "))
	return sb.String()
}
