// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/clbackend/pkg/support/errorkind"
)

// Decision is the result of a capability query (Backend.IsSupported): either supported, or unsupported with a
// stable reason and the kind of failure.
//
// It is a plain value: querying never panics nor mutates any state.
type Decision struct {
	// Ok is true if the operator is supported.
	Ok bool

	// Reason for the rejection, empty if Ok.
	Reason string

	// Kind of the rejection, errorkind.None if Ok.
	Kind errorkind.Kind

	err error
}

// Accept returns a supported Decision.
func Accept() Decision {
	return Decision{Ok: true}
}

// Reject returns an unsupported Decision for the given (non-nil) error.
func Reject(err error) Decision {
	if err == nil {
		return Accept()
	}
	return Decision{Reason: err.Error(), Kind: errorkind.Of(err), err: err}
}

// Rejectf returns an unsupported Decision of the given kind.
func Rejectf(kind errorkind.Kind, format string, args ...any) Decision {
	return Reject(errorkind.Errorf(kind, format, args...))
}

// Err returns the rejection as an error, or nil if supported.
func (d Decision) Err() error {
	if d.Ok {
		return nil
	}
	if d.err == nil {
		return errorkind.Errorf(d.Kind, "%s", d.Reason)
	}
	return d.err
}

// String implements fmt.Stringer.
func (d Decision) String() string {
	if d.Ok {
		return "supported"
	}
	return "unsupported (" + d.Kind.String() + "): " + d.Reason
}
