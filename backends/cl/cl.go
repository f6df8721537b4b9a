// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cl implements the operator dispatch backend "cl".
//
// It validates operator instances (Backend.IsSupported) against the families, dtypes, layouts and quantization
// schemes it supports, and builds their Workloads (Backend.Build): layout permutations around the layout
// sensitive kernels, requantization multipliers, broadcast strides and the LSTM cells compiled by package lstm.
// The math is delegated to a backends.KernelProvider, by default the simplego reference provider.
//
// To use it, import it for its side effect of registering the backend:
//
//	import _ "github.com/gomlx/clbackend/backends/cl"
//
// And select it with backends.NewWithConfig("cl:layout=nchw,parallelism=4"), or with the CLBACKEND environment
// variable.
package cl

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/gomlx/clbackend/backends"
	"github.com/gomlx/clbackend/backends/simplego"
	"github.com/pkg/errors"
)

// BackendName to be used in CLBACKEND to specify this backend.
const BackendName = "cl"

// Registers New() as the constructor for the "cl" backend.
func init() {
	backends.Register(BackendName, New)
}

// Config of a Backend.
type Config struct {
	// Layout is the native data layout of the kernels.
	Layout backends.DataLayout

	// Fp16 tells whether Float16 operands are supported.
	Fp16 bool

	// Parallelism is the maximum number of goroutines used by a kernel or by the batch entries of a recurrent
	// cell. Values <= 1 run serially.
	Parallelism int
}

// DefaultConfig returns the configuration used for the keys not given to New.
func DefaultConfig() Config {
	return Config{Layout: backends.NHWC, Fp16: true, Parallelism: runtime.NumCPU()}
}

// ParseConfig parses a comma separated list of "key=value" options over DefaultConfig.
//
// Keys:
//   - "layout": "nhwc" (default) or "nchw", the native layout of the kernels.
//   - "fp16": boolean, whether Float16 operands are supported. Default true.
//   - "parallelism": int, maximum number of goroutines per kernel or cell. 0 runs serially. Default runtime.NumCPU().
func ParseConfig(config string) (Config, error) {
	c := DefaultConfig()
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return c, errors.Errorf("invalid configuration option %q for backend %q, expected \"key=value\"", part, BackendName)
		}
		key, value = strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(value)
		var err error
		switch key {
		case "layout":
			c.Layout, err = backends.ParseDataLayout(value)
		case "fp16":
			c.Fp16, err = strconv.ParseBool(value)
		case "parallelism":
			c.Parallelism, err = strconv.Atoi(value)
			if err == nil && c.Parallelism < 0 {
				err = errors.Errorf("must be non-negative, got %d", c.Parallelism)
			}
		default:
			return c, errors.Errorf("unknown configuration option %q for backend %q", key, BackendName)
		}
		if err != nil {
			return c, errors.WithMessagef(err, "configuration option %q for backend %q", part, BackendName)
		}
	}
	return c, nil
}

// Backend implements backends.Backend. It holds only its immutable configuration and kernel provider, and is
// safe for concurrent use.
type Backend struct {
	config   Config
	provider backends.KernelProvider
}

// Compile-time check that cl.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// New constructs a new Backend using the simplego kernel provider, see ParseConfig for the configuration.
//
// Example: backends.NewWithConfig("cl:layout=nchw,fp16=false")
func New(config string) (backends.Backend, error) {
	c, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	return NewWithProvider(c, simplego.New(max(c.Parallelism, 1))), nil
}

// NewWithProvider returns a Backend with the given configuration and kernel provider.
func NewWithProvider(config Config, provider backends.KernelProvider) *Backend {
	return &Backend{config: config, provider: provider}
}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return BackendName
}

// String implements fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return fmt.Sprintf("CL operator dispatch backend (kernels %q, native layout %s, fp16=%v, parallelism=%d)",
		b.provider.Name(), b.config.Layout, b.config.Fp16, b.config.Parallelism)
}

// Config returns the configuration of the backend.
func (b *Backend) Config() Config {
	return b.config
}

// Provider returns the kernel provider of the backend.
func (b *Backend) Provider() backends.KernelProvider {
	return b.provider
}
