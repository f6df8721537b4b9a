// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package errorkind

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorf(t *testing.T) {
	err := Errorf(UnsupportedConfiguration, "Division doesn't support %s", "QAsymmU8")
	require.Error(t, err)
	assert.Equal(t, UnsupportedConfiguration, Of(err))
	assert.True(t, errors.Is(err, ErrUnsupportedConfiguration))
	assert.Contains(t, err.Error(), "Division doesn't support QAsymmU8")
	assert.Contains(t, fmt.Sprintf("%+v", err), "errorkind_test.go") // Stack trace attached.

	// Wrapping keeps the kind.
	wrapped := errors.WithMessage(err, "while building workload")
	assert.Equal(t, UnsupportedConfiguration, Of(wrapped))
	assert.True(t, IsRecoverable(wrapped))

	assert.Equal(t, None, Of(nil))
	assert.Equal(t, None, Of(errors.New("other")))
	assert.Equal(t, None, Of(Errorf(None, "no kind")))
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(Errorf(BroadcastIncompatible, "[2,3] vs [3,2]")))
	assert.False(t, IsRecoverable(Errorf(InvalidParameter, "scale=0")))
	assert.False(t, IsRecoverable(Errorf(NumericOverflowRisk, "depth too large")))
	assert.Equal(t, "NumericOverflowRisk", NumericOverflowRisk.String())
}
