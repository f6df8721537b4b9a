// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the contract of an operator dispatch backend and the types it works with.
//
// Given a Descriptor of an operator instance (operator family, operand shapes, family parameters) a Backend
// answers whether it can execute it (IsSupported, a pure query returning a Decision) and builds the executable
// Workload (Build), whose math is delegated to a KernelProvider.
//
// Backends are registered by name and selected with a configuration string "<backend>:<config>", either given
// to NewWithConfig or taken from the CLBACKEND environment variable.
package backends

import (
	"os"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Backend validates operator instances and builds their workloads.
//
// Implementations must be safe for concurrent use: IsSupported and Build hold no mutable state.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "cl".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Capabilities returns the coarse capabilities of the backend.
	Capabilities() Capabilities

	// IsSupported returns whether the operator instance can be executed. It never panics.
	IsSupported(desc *Descriptor) Decision

	// Build validates the operator instance and returns a Workload bound to the given buffers, whose shapes
	// must match the descriptor. It never returns a partially built workload.
	Build(desc *Descriptor, inputs, outputs []*Buffer) (*Workload, error)
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List the registered backends.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the configuration used by New if CLBACKEND is not set.
var DefaultConfig string

// CLBACKEND is the environment variable with the default backend configuration to use.
//
// The format of the configuration is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "cl") and
// "<backend_configuration>" is backend specific (e.g.: "layout=nchw,parallelism=4").
const CLBACKEND = "CLBACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment CLBACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
func New() (Backend, error) {
	config, found := os.LookupEnv(CLBACKEND)
	if found {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig takes a configurations string formatted as "<backend_name>:<backend_configuration>",
// where "<backend_name>" can be omitted for the first registered backend.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.New(`no registered backends -- maybe import the default one with import _ "github.com/gomlx/clbackend/backends/cl"?`)
	}
	backendName := firstRegistered
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	} else if _, found := registeredConstructors[config]; found {
		backendName = config
		backendConfig = ""
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given, registered backends: %v",
			backendName, config, List())
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating backend %q", backendName)
	}
	return backend, nil
}

// MustNew returns a new default Backend, and panics if it fails.
func MustNew() Backend {
	backend, err := New()
	if err != nil {
		exceptions.Panicf("backends.MustNew(): %+v", err)
	}
	return backend
}
