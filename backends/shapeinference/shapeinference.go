// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference calculates the shape resulting from operations and validates its inputs.
//
// It implements the broadcasting rule of the binary elementwise families (BroadcastShapes, BinaryOp,
// ComparisonOp) and the strides used to replicate a broadcast operand by indexing (BroadcastStrides), plus one
// function per remaining operator family computing its output dimensions.
//
// The output shapes returned carry the dtype, but no quantization: the output quantization is chosen by the
// caller (the output descriptor), not inferred.
//
// Errors returned carry a kind (see package errorkind): BroadcastIncompatible for shapes that cannot be
// broadcast, InvalidParameter for malformed parameters and UnsupportedConfiguration for out of range ranks.
package shapeinference

import (
	"slices"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	. "github.com/gomlx/clbackend/pkg/support/errorkind"
)

// BroadcastShapes returns the dimensions of the broadcast of lhs and rhs: the shorter one is right-aligned by
// padding it with leading 1s, and each output dimension is max(d1, d2) if d1 == d2 or either is 1.
//
// A rank 0 operand is a scalar, broadcast to anything.
func BroadcastShapes(lhs, rhs []int) ([]int, error) {
	rank := max(len(lhs), len(rhs))
	output := make([]int, rank)
	for axis := range rank {
		lhsDim, rhsDim := alignedDim(lhs, rank, axis), alignedDim(rhs, rank, axis)
		if lhsDim != 1 && rhsDim != 1 && lhsDim != rhsDim {
			return nil, Errorf(BroadcastIncompatible,
				"dimensions %v and %v cannot be broadcast: axis #%d (right-aligned) has %d and %d",
				lhs, rhs, axis, lhsDim, rhsDim)
		}
		output[axis] = max(lhsDim, rhsDim)
	}
	return output, nil
}

// alignedDim returns the dimension of dims at axis, after right-aligning dims to the given rank.
func alignedDim(dims []int, rank, axis int) int {
	offset := rank - len(dims)
	if axis < offset {
		return 1
	}
	return dims[axis-offset]
}

// BroadcastStrides returns the strides of an operand with dimensions from, in the index space of the broadcast
// dimensions to: the operand's row-major strides right-aligned to rank len(to), and 0 on any axis where the
// operand has dimension 1 (or is missing). Indexing with these strides replicates the operand without copying.
func BroadcastStrides(from, to []int) []int {
	rank := len(to)
	fromStrides := shapes.StridesFor(from)
	strides := make([]int, rank)
	offset := rank - len(from)
	for axis := offset; axis < rank; axis++ {
		if from[axis-offset] != 1 {
			strides[axis] = fromStrides[axis-offset]
		}
	}
	return strides
}

// BinaryOp returns the expected output shape for the binary elementwise families (arithmetic and minimum/maximum).
//
// Both operands must have the same dtype.
func BinaryOp(opType backends.OpType, lhsShape, rhsShape shapes.Shape) (output shapes.Shape, err error) {
	if !opType.IsBinary() || opType == backends.OpTypeComparison {
		err = Errorf(InvalidParameter, "operation %s is not a binary elementwise operation, cannot process it with BinaryOp", opType)
		return
	}
	return binaryOpImpl(opType, lhsShape, rhsShape)
}

// ComparisonOp returns the broadcast shape with dtype set to Bool.
func ComparisonOp(lhsShape, rhsShape shapes.Shape) (output shapes.Shape, err error) {
	output, err = binaryOpImpl(backends.OpTypeComparison, lhsShape, rhsShape)
	if err != nil {
		return
	}
	output.DType = dtypes.Bool
	return
}

func binaryOpImpl(opType backends.OpType, lhsShape, rhsShape shapes.Shape) (output shapes.Shape, err error) {
	if !lhsShape.Ok() || !rhsShape.Ok() {
		err = Errorf(InvalidParameter, "invalid shape for %s or %s for %s", lhsShape, rhsShape, opType)
		return
	}
	if lhsShape.DType != rhsShape.DType {
		err = Errorf(InvalidParameter, "data types (DType) for %s must match, got %s and %s", opType, lhsShape, rhsShape)
		return
	}
	dims, err := BroadcastShapes(lhsShape.Dimensions, rhsShape.Dimensions)
	if err != nil {
		err = Errorf(BroadcastIncompatible, "%s: shapes %s and %s cannot be broadcast", opType, lhsShape, rhsShape)
		return
	}
	output = shapes.Make(lhsShape.DType, dims...)
	return
}

// AdjustAxisToRank returns the non-negative version of axis (negative axes count from the end).
func AdjustAxisToRank(axis, rank int) (int, error) {
	adjusted := axis
	if adjusted < 0 {
		adjusted += rank
	}
	if adjusted < 0 || adjusted >= rank {
		return 0, Errorf(InvalidParameter, "axis %d out of range for rank %d", axis, rank)
	}
	return adjusted, nil
}

// ReshapeOp to the given dimensions: trivial output shape, but this function also checks
// that the sizes are the same.
func ReshapeOp(operand shapes.Shape, dims []int) (output shapes.Shape, err error) {
	for _, dim := range dims {
		if dim <= 0 {
			err = Errorf(InvalidParameter, "Reshape target dimensions must be positive, got %v", dims)
			return
		}
	}
	output = shapes.Make(operand.DType, dims...)
	if operand.Size() != output.Size() {
		err = Errorf(InvalidParameter, "Reshape() cannot reshape %s to dimensions %v, their size don't match",
			operand, dims)
		return shapes.Invalid(), err
	}
	return
}

// TransposeOp all axes of the operand.
// There must be one value in permutations for each axis in the operand.
// The output will have: output.Shape.Dimension[ii] = operand.Shape.Dimension[permutations[i]].
func TransposeOp(operand shapes.Shape, permutations []int) (output shapes.Shape, err error) {
	rank := operand.Rank()
	if len(permutations) != rank {
		err = Errorf(InvalidParameter, "Transpose() requires all axes permutations to be defined, operand has shape %s, but %d permutations were given",
			operand, len(permutations))
		return
	}

	// Check permutation axes are within range and unique.
	axesSet := slices.Clone(permutations)
	slices.Sort(axesSet)
	for ii, srcAxis := range axesSet {
		if srcAxis < 0 || srcAxis >= rank {
			err = Errorf(InvalidParameter, "invalid permutation axis %d given to Transpose(%s), it must be within the range of its rank",
				srcAxis, operand)
			return
		}
		if ii > 0 && srcAxis == axesSet[ii-1] {
			err = Errorf(InvalidParameter, "invalid permutations given to Transpose(%s, %v), there cannot be any repeated axis, each must appear exactly once",
				operand, permutations)
			return
		}
	}

	output = shapes.Make(operand.DType, operand.Dimensions...)
	for axis := range output.Dimensions {
		output.Dimensions[axis] = operand.Dimensions[permutations[axis]]
	}
	return
}

// PermutationFromMappings converts permute mappings (source axis i moves to output axis mappings[i]) to
// a transpose permutation (output axis i reads source axis permutation[i]).
// It assumes the mappings are a valid permutation, see TransposeOp.
func PermutationFromMappings(mappings []int) []int {
	permutation := make([]int, len(mappings))
	for srcAxis, dstAxis := range mappings {
		if dstAxis >= 0 && dstAxis < len(mappings) {
			permutation[dstAxis] = srcAxis
		}
	}
	return permutation
}

// ConcatenateOp calculates the output shape of a Concatenate operation.
// It takes a slice of input shapes and the (non-negative) axis along which to concatenate.
func ConcatenateOp(inputs []shapes.Shape, axis int) (output shapes.Shape, err error) {
	if len(inputs) == 0 {
		return shapes.Invalid(), Errorf(InvalidParameter, "Concat requires at least one input shape")
	}
	firstShape := inputs[0]
	dtype := firstShape.DType
	rank := firstShape.Rank()
	if axis < 0 || axis >= rank {
		return shapes.Invalid(), Errorf(InvalidParameter, "invalid concatenation axis %d for shapes with rank %d", axis, rank)
	}
	output = shapes.Make(dtype, firstShape.Dimensions...)
	for i := 1; i < len(inputs); i++ {
		currentShape := inputs[i]
		if currentShape.DType != dtype {
			return shapes.Invalid(), Errorf(InvalidParameter, "mismatched DTypes for Concat: input #0 has %s, input #%d has %s",
				dtype, i, currentShape.DType)
		}
		if currentShape.Rank() != rank {
			return shapes.Invalid(), Errorf(InvalidParameter, "mismatched ranks for Concat: input #0 has rank %d, input #%d has rank %d",
				rank, i, currentShape.Rank())
		}
		for d := range rank {
			if d == axis {
				output.Dimensions[d] += currentShape.Dimensions[d]
			} else if currentShape.Dimensions[d] != output.Dimensions[d] {
				return shapes.Invalid(), Errorf(InvalidParameter, "mismatched dimensions for Concat at axis %d (non-concatenation axis): input #0 has %d, input #%d has %d",
					d, output.Dimensions[d], i, currentShape.Dimensions[d])
			}
		}
	}
	return output, nil
}

// PadOp returns the padded shape. There must be one (before, after) pair per axis, all non-negative.
func PadOp(operand shapes.Shape, padding [][2]int) (output shapes.Shape, err error) {
	if len(padding) != operand.Rank() {
		err = Errorf(InvalidParameter, "Pad requires one (before, after) padding per axis, got %d for %s", len(padding), operand)
		return
	}
	output = shapes.Make(operand.DType, operand.Dimensions...)
	for axis, pad := range padding {
		if pad[0] < 0 || pad[1] < 0 {
			err = Errorf(InvalidParameter, "Pad paddings must be non-negative, got %v for axis %d", pad, axis)
			return shapes.Invalid(), err
		}
		output.Dimensions[axis] += pad[0] + pad[1]
	}
	return
}

// MeanOp returns the shape of the mean over axes, and the normalized (non-negative, sorted, unique) axes.
// Empty axes reduce all axes.
func MeanOp(operand shapes.Shape, axes []int, keepDims bool) (output shapes.Shape, normalized []int, err error) {
	rank := operand.Rank()
	if len(axes) == 0 {
		for axis := range rank {
			normalized = append(normalized, axis)
		}
	} else {
		for _, axis := range axes {
			var adjusted int
			adjusted, err = AdjustAxisToRank(axis, rank)
			if err != nil {
				return
			}
			normalized = append(normalized, adjusted)
		}
		slices.Sort(normalized)
		normalized = slices.Compact(normalized)
	}
	dims := make([]int, 0, rank)
	for axis, dim := range operand.Dimensions {
		if slices.Contains(normalized, axis) {
			if keepDims {
				dims = append(dims, 1)
			}
			continue
		}
		dims = append(dims, dim)
	}
	if len(dims) == 0 {
		// Full reduction without keepDims results in a single value.
		dims = append(dims, 1)
	}
	output = shapes.Make(operand.DType, dims...)
	return
}

// FullyConnectedOp returns the output shape [batch, units] and the input size of a fully connected layer.
// The input is flattened to [batch, inputSize], where inputSize is given by the weights.
func FullyConnectedOp(input, weights shapes.Shape, transposeWeights bool) (output shapes.Shape, inputSize int, err error) {
	if weights.Rank() != 2 {
		err = Errorf(InvalidParameter, "FullyConnected weights must have rank 2, got %s", weights)
		return
	}
	if input.Rank() < 2 {
		err = Errorf(InvalidParameter, "FullyConnected input must have rank >= 2, got %s", input)
		return
	}
	inputSize, units := weights.Dimensions[0], weights.Dimensions[1]
	if transposeWeights {
		inputSize, units = units, inputSize
	}
	if input.Size()%inputSize != 0 {
		err = Errorf(InvalidParameter, "FullyConnected input %s can't be flattened to [batch, %d] given by weights %s",
			input, inputSize, weights)
		return
	}
	output = shapes.Make(input.DType, input.Size()/inputSize, units)
	return
}
