// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package errorkind defines the kinds of failures reported by the dispatch layer.
//
// Each kind is a sentinel error. Errors are created with Errorf (or by wrapping the sentinel with
// github.com/pkg/errors), so they carry a stack trace and the kind can be recovered with Of or errors.Is.
//
// UnsupportedConfiguration and BroadcastIncompatible are expected outcomes of a capability query: the
// caller can fall back to another backend. InvalidParameter and NumericOverflowRisk are hard failures.
package errorkind

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Kind of failure.
type Kind int

const (
	// None is the kind of a nil error, or an error not created by this package.
	None Kind = iota

	// UnsupportedConfiguration: the type/layout/shape/parameter combination is not implemented by the backend.
	UnsupportedConfiguration

	// InvalidParameter: a caller bug, e.g.: non-positive scale, malformed mask, inconsistent LSTM configuration.
	InvalidParameter

	// BroadcastIncompatible: operand shapes cannot be unified by broadcasting.
	BroadcastIncompatible

	// NumericOverflowRisk: the accumulator is too narrow for the declared input ranges.
	NumericOverflowRisk
)

var (
	ErrUnsupportedConfiguration = stderrors.New("unsupported configuration")
	ErrInvalidParameter         = stderrors.New("invalid parameter")
	ErrBroadcastIncompatible    = stderrors.New("broadcast incompatible")
	ErrNumericOverflowRisk      = stderrors.New("numeric overflow risk")
)

var kindNames = [...]string{
	None:                     "None",
	UnsupportedConfiguration: "UnsupportedConfiguration",
	InvalidParameter:         "InvalidParameter",
	BroadcastIncompatible:    "BroadcastIncompatible",
	NumericOverflowRisk:      "NumericOverflowRisk",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Kind(?)"
	}
	return kindNames[k]
}

// Sentinel returns the sentinel error for the kind, or nil for None.
func (k Kind) Sentinel() error {
	switch k {
	case UnsupportedConfiguration:
		return ErrUnsupportedConfiguration
	case InvalidParameter:
		return ErrInvalidParameter
	case BroadcastIncompatible:
		return ErrBroadcastIncompatible
	case NumericOverflowRisk:
		return ErrNumericOverflowRisk
	}
	return nil
}

// Errorf creates an error of the given kind with a formatted message and a stack trace.
//
// The kind's sentinel message is appended when printed, e.g.:
// "Division doesn't support QAsymmU8: unsupported configuration".
func Errorf(kind Kind, format string, args ...any) error {
	sentinel := kind.Sentinel()
	if sentinel == nil {
		return errors.Errorf(format, args...)
	}
	return errors.Wrapf(sentinel, format, args...)
}

// Of returns the kind of err, or None if err is nil or not of a known kind.
func Of(err error) Kind {
	if err == nil {
		return None
	}
	for _, kind := range []Kind{UnsupportedConfiguration, InvalidParameter, BroadcastIncompatible, NumericOverflowRisk} {
		if errors.Is(err, kind.Sentinel()) {
			return kind
		}
	}
	return None
}

// IsRecoverable returns whether err is an expected capability outcome (UnsupportedConfiguration or
// BroadcastIncompatible), for which the caller may try another backend.
func IsRecoverable(err error) bool {
	kind := Of(err)
	return kind == UnsupportedConfiguration || kind == BroadcastIncompatible
}
