// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(dtypes.Float32)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 4, int(shape0.Memory()))

	shape1 := Make(dtypes.Float16, 4, 3, 2)
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 4*3*2, shape1.Size())
	require.Equal(t, 2*4*3*2, int(shape1.Memory()))
	require.Equal(t, "(Float16)[4 3 2]", shape1.String())

	require.Panics(t, func() { _ = Make(dtypes.Float32, 2, 0) })
}

func TestDim(t *testing.T) {
	shape := Make(dtypes.Float32, 4, 3, 2)
	require.Equal(t, 4, shape.Dim(0))
	require.Equal(t, 2, shape.Dim(2))
	require.Equal(t, 4, shape.Dim(-3))
	require.Equal(t, 2, shape.Dim(-1))
	require.Panics(t, func() { _ = shape.Dim(3) })
	require.Panics(t, func() { _ = shape.Dim(-4) })
}

func TestQuantizedShape(t *testing.T) {
	q := quantization.PerTensor(0.5, 128)
	s := MakeQuantized(dtypes.QAsymmU8, q, 2, 3)
	require.True(t, s.IsQuantized())
	require.NoError(t, s.Check("input", false))
	require.True(t, s.Equal(s.Clone()))
	require.False(t, s.Equal(MakeQuantized(dtypes.QAsymmU8, quantization.PerTensor(0.5, 127), 2, 3)))
	require.True(t, s.EqualDimensions(Make(dtypes.Float32, 2, 3)))

	// Missing quantization.
	err := Make(dtypes.QAsymmU8, 2).Check("input", false)
	require.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))

	// Rank bounds.
	require.Equal(t, errorkind.UnsupportedConfiguration, errorkind.Of(Make(dtypes.Float32).Check("x", false)))
	require.NoError(t, Make(dtypes.Float32).Check("x", true))
	require.Equal(t, errorkind.UnsupportedConfiguration,
		errorkind.Of(Make(dtypes.Float32, 1, 1, 1, 1, 1, 1).Check("x", false)))

	// Per-channel weights keep their quantization while the channel axis is unchanged.
	w := MakeQuantized(dtypes.QSymmS8, quantization.PerChannel(0, 0.1, 0.2), 2, 3, 3, 4)
	require.True(t, w.WithDimensions(2, 9, 4).Quantization.IsPerChannel())
	require.False(t, w.WithDimensions(3, 2, 3, 4).Quantization.IsSet())
}
