// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/gomlx/clbackend/pkg/core/dtypes"
	"github.com/gomlx/clbackend/pkg/core/quantization"
	"github.com/gomlx/clbackend/pkg/core/shapes"
	"github.com/gomlx/clbackend/pkg/support/errorkind"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	config string
}

func (b *fakeBackend) Name() string                     { return "fake" }
func (b *fakeBackend) Description() string              { return "fake backend: " + b.config }
func (b *fakeBackend) Capabilities() Capabilities       { return Capabilities{} }
func (b *fakeBackend) IsSupported(*Descriptor) Decision { return Accept() }
func (b *fakeBackend) Build(desc *Descriptor, _, _ []*Buffer) (*Workload, error) {
	return NewWorkload(desc.Op, desc.Name), nil
}

func TestRegistry(t *testing.T) {
	Register("fake", func(config string) (Backend, error) {
		if config == "fail" {
			return nil, errors.New("bad config")
		}
		return &fakeBackend{config: config}, nil
	})
	backend, err := NewWithConfig("fake:a=1")
	require.NoError(t, err)
	assert.Equal(t, "fake backend: a=1", backend.Description())

	backend, err = NewWithConfig("fake")
	require.NoError(t, err)
	assert.Equal(t, "fake backend: ", backend.Description())

	_, err = NewWithConfig("fake:fail")
	assert.ErrorContains(t, err, "bad config")
	_, err = NewWithConfig("unknown:x")
	assert.Error(t, err)
	assert.Contains(t, List(), "fake")

	t.Setenv(CLBACKEND, "fake:from-env")
	backend, err = New()
	require.NoError(t, err)
	assert.Equal(t, "fake backend: from-env", backend.Description())
}

func TestWorkloadSingleUse(t *testing.T) {
	w := NewWorkload(OpTypeAddition, "add")
	var calls []string
	w.AddStep("first", func() error { calls = append(calls, "first"); return nil })
	w.AddStep("second", func() error { calls = append(calls, "second"); return nil })
	scratch := w.NewScratch(shapes.Make(dtypes.Float32, 2, 3))
	require.NotNil(t, scratch)
	assert.Equal(t, uintptr(24), w.ScratchMemory())
	assert.Equal(t, []string{"first", "second"}, w.StepNames())

	require.NoError(t, w.Execute())
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Error(t, w.Execute())
	assert.Len(t, calls, 2)

	w = NewWorkload(OpTypeAddition, "")
	w.AddStep("failing", func() error { return errorkind.Errorf(errorkind.InvalidParameter, "boom") })
	err := w.Execute()
	require.Error(t, err)
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))
	assert.Contains(t, err.Error(), `step #0 "failing"`)
}

func TestBufferConversions(t *testing.T) {
	// Per-channel along axis 0.
	shape := shapes.MakeQuantized(dtypes.QSymmS8, quantization.PerChannel(0, 0.5, 0.25), 2, 2)
	b := FromFloat32s(shape, []float32{1, -1, 1, -1})
	assert.Equal(t, []int8{2, -2, 4, -4}, Flat[int8](b))
	assert.Equal(t, []float32{1, -1, 1, -1}, b.Float32s())

	// Asymmetric per-tensor.
	shape = shapes.MakeQuantized(dtypes.QAsymmU8, quantization.PerTensor(0.5, 128), 3)
	b = FromFloat32s(shape, []float32{2, -100, 1000})
	assert.Equal(t, []int32{132, 0, 255}, b.Ints())

	b = FromFloat32s(shapes.Make(dtypes.Float16, 2), []float32{1.5, -2})
	assert.Equal(t, []float32{1.5, -2}, b.Float32s())

	assert.Panics(t, func() { _ = FromFlat(shapes.Make(dtypes.Float32, 3), []float32{1, 2}) })
	assert.Panics(t, func() { _ = FromFlat(shapes.Make(dtypes.Float32, 2), []int32{1, 2}) })
	reshaped := FromFlat(shapes.Make(dtypes.Float32, 2, 2), []float32{1, 2, 3, 4}).Reshaped(shapes.Make(dtypes.Float32, 4))
	assert.Equal(t, []int{4}, reshaped.Shape().Dimensions)
}

func TestDataLayout(t *testing.T) {
	l, err := ParseDataLayout("NHWC")
	require.NoError(t, err)
	assert.Equal(t, NHWC, l)
	_, err = ParseDataLayout("hwcn")
	assert.Equal(t, errorkind.InvalidParameter, errorkind.Of(err))

	assert.Equal(t, []int{1, 5, 6, 3}, NHWC.MakeDims(1, 3, 5, 6))
	n, c, h, w := NCHW.Dims([]int{1, 3, 5, 6})
	assert.Equal(t, []int{1, 3, 5, 6}, []int{n, c, h, w})
	assert.Equal(t, []int{0, 2, 3, 1}, NCHW.TransposeTo(NHWC))
	assert.Equal(t, []int{0, 3, 1, 2}, NHWC.TransposeTo(NCHW))
	assert.Nil(t, NHWC.TransposeTo(NHWC))
}

func TestDecision(t *testing.T) {
	assert.True(t, Accept().Ok)
	assert.NoError(t, Accept().Err())
	d := Rejectf(errorkind.UnsupportedConfiguration, "Division doesn't support %s", dtypes.QAsymmU8)
	assert.False(t, d.Ok)
	assert.Equal(t, errorkind.UnsupportedConfiguration, d.Kind)
	assert.True(t, errorkind.IsRecoverable(d.Err()))
	assert.Contains(t, d.String(), "Division doesn't support QAsymmU8")
}

func TestOpType(t *testing.T) {
	assert.Equal(t, "DepthwiseConvolution2d", OpTypeDepthwiseConvolution2d.String())
	assert.True(t, OpTypeComparison.IsBinary())
	assert.False(t, OpTypeMultiplication.IsAdditive())
	assert.True(t, OpTypeResize.IsLayoutSensitive())
	assert.False(t, OpTypePad.IsLayoutSensitive())
	assert.Len(t, OpTypeStrings(), int(OpTypeLast)+1)
	assert.Equal(t, "OpType(100)", OpType(100).String())

	// The returned names are a copy.
	names := OpTypeStrings()
	names[OpTypeQLstm] = "Changed"
	assert.Equal(t, "QLstm", OpTypeQLstm.String())
	assert.Equal(t, "QLstm", OpTypeStrings()[OpTypeQLstm])

	op, err := OpTypeString("quantizedlstm")
	require.NoError(t, err)
	assert.Equal(t, OpTypeQuantizedLstm, op)
	_, err = OpTypeString("Gather")
	assert.Error(t, err)
}
