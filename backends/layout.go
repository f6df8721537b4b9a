// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"strings"

	"github.com/gomlx/clbackend/pkg/support/errorkind"
)

// DataLayout labels which axis of a 4D tensor is the channel axis. It implies no storage order other than
// row-major.
type DataLayout int

const (
	// NCHW is batch, channels, height, width.
	NCHW DataLayout = iota

	// NHWC is batch, height, width, channels.
	NHWC
)

// String implements fmt.Stringer.
func (l DataLayout) String() string {
	switch l {
	case NCHW:
		return "NCHW"
	case NHWC:
		return "NHWC"
	}
	return "DataLayout(?)"
}

// ParseDataLayout converts "nchw" or "nhwc" (case-insensitive) to a DataLayout.
func ParseDataLayout(s string) (DataLayout, error) {
	switch strings.ToLower(s) {
	case "nchw":
		return NCHW, nil
	case "nhwc":
		return NHWC, nil
	}
	return NCHW, errorkind.Errorf(errorkind.InvalidParameter, "unknown data layout %q, valid values are nchw or nhwc", s)
}

// Axes of a 4D tensor in the layout.
func (l DataLayout) Axes() (batchAxis, channelAxis, heightAxis, widthAxis int) {
	if l == NHWC {
		return 0, 3, 1, 2
	}
	return 0, 1, 2, 3
}

// ChannelAxis returns the channel axis of a 4D tensor.
func (l DataLayout) ChannelAxis() int {
	_, c, _, _ := l.Axes()
	return c
}

// Dims returns batch, channels, height and width of the 4D dimensions in the layout.
func (l DataLayout) Dims(dimensions []int) (batch, channels, height, width int) {
	n, c, h, w := l.Axes()
	return dimensions[n], dimensions[c], dimensions[h], dimensions[w]
}

// MakeDims returns the 4D dimensions in the layout.
func (l DataLayout) MakeDims(batch, channels, height, width int) []int {
	dims := make([]int, 4)
	n, c, h, w := l.Axes()
	dims[n], dims[c], dims[h], dims[w] = batch, channels, height, width
	return dims
}

// TransposeTo returns the permutation that converts a 4D tensor from layout l to layout to: output axis i
// reads from source axis permutation[i]. It returns nil if both layouts are the same.
func (l DataLayout) TransposeTo(to DataLayout) (permutation []int) {
	if l == to {
		return nil
	}
	if l == NCHW {
		return []int{0, 2, 3, 1}
	}
	return []int{0, 3, 1, 2}
}
