// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"iter"

	"github.com/gomlx/exceptions"
)

// Strides returns the strides for each axis of the shape, assuming a "row-major" layout in memory.
//
// Notice the strides are **not in bytes**, but in indices.
func (s Shape) Strides() (strides []int) {
	return StridesFor(s.Dimensions)
}

// StridesFor returns the row-major strides for the given dimensions.
func StridesFor(dimensions []int) (strides []int) {
	rank := len(dimensions)
	if rank == 0 {
		return
	}
	strides = make([]int, rank)
	currentStride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		strides[axis] = currentStride
		currentStride *= dimensions[axis]
	}
	return
}

// FlatIndex returns the position in a flat buffer of the given indices, using the given strides.
func FlatIndex(indices, strides []int) (flatIdx int) {
	for axis, idx := range indices {
		flatIdx += idx * strides[axis]
	}
	return
}

// Iter iterates sequentially over all possible indices of the given shape.
//
// It yields the flat index (counter) and a slice of indices for each axis.
//
// To avoid allocating the slice of indices, the yielded indices is owned by the Iter() method:
// don't change it inside the loop.
func (s Shape) Iter() iter.Seq2[int, []int] {
	return s.IterOnAxes(nil, nil, nil)
}

// IterOnAxes iterates over all possible indices of the given shape's axesToIterate (or all axes if it is nil).
//
// It yields the flat index and the update indices for all axes of the shape (not only the ones iterated).
// The indices not pointed by axesToIterate are not touched, but are used to calculate the flat index.
//
//   - strides: for the shape, as returned by Shape.Strides(). If nil, it will use the value returned by Shape.Strides.
//   - indices: slice that will be yielded during the iteration, it must have length equal to the shape's rank.
//     If it is nil, one will be allocated for the iteration.
//
// During the iteration the caller shouldn't modify the slice of indices, otherwise it will lead to undefined behavior.
func (s Shape) IterOnAxes(axesToIterate, strides, indices []int) iter.Seq2[int, []int] {
	rank := s.Rank()
	if strides == nil {
		strides = s.Strides()
	} else if len(strides) != rank {
		exceptions.Panicf("Shape.IterOnAxes given len(strides) == %d, want it to be equal to the rank %d", len(strides), rank)
	}
	if indices == nil {
		indices = make([]int, rank)
	} else if len(indices) != rank {
		exceptions.Panicf("Shape.IterOnAxes given len(indices) == %d, want it to be equal to the rank %d", len(indices), rank)
	}
	if axesToIterate == nil {
		axesToIterate = make([]int, rank)
		for axis := range axesToIterate {
			axesToIterate[axis] = axis
		}
	}
	for _, axis := range axesToIterate {
		if axis < 0 || axis >= rank {
			exceptions.Panicf("Shape.IterOnAxes: invalid axis %d, must be 0 <= axis < rank (%d)", axis, rank)
		}
	}

	return func(yield func(int, []int) bool) {
		if !s.Ok() {
			return
		}
		for _, axis := range axesToIterate {
			if s.Dimensions[axis] <= 0 {
				return
			}
			indices[axis] = 0
		}
		flatIdx := FlatIndex(indices, strides)

	yielder:
		for {
			if !yield(flatIdx, indices) {
				return
			}
			// Increment indices: row-major order, the last axis changes fastest.
			for axisIdx := len(axesToIterate) - 1; axisIdx >= 0; axisIdx-- {
				axis := axesToIterate[axisIdx]
				indices[axis]++
				flatIdx += strides[axis]
				if indices[axis] < s.Dimensions[axis] {
					continue yielder
				}
				// Carry-over to the next axis.
				flatIdx -= indices[axis] * strides[axis]
				indices[axis] = 0
			}
			break
		}
	}
}
