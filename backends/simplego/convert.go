// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/clbackend/backends"
	"github.com/pkg/errors"
)

// Quantize implements backends.KernelProvider. A quantized input is requantized to the output quantization.
func (p *Provider) Quantize(input, output *backends.Buffer) error {
	if !output.Shape().DType.IsQuantized() {
		return errors.Errorf("Quantize: output %s is not quantized", output.Shape())
	}
	return convertValues("Quantize", input, output)
}

// Dequantize implements backends.KernelProvider.
func (p *Provider) Dequantize(input, output *backends.Buffer) error {
	if !input.Shape().DType.IsQuantized() || !output.Shape().DType.IsFloat() {
		return errors.Errorf("Dequantize: requires a quantized input and a float output, got %s and %s",
			input.Shape(), output.Shape())
	}
	return convertValues("Dequantize", input, output)
}

// ConvertDType implements backends.KernelProvider, between Float32 and Float16.
func (p *Provider) ConvertDType(input, output *backends.Buffer) error {
	if !input.Shape().DType.IsFloat() || !output.Shape().DType.IsFloat() {
		return errors.Errorf("ConvertDType: requires float buffers, got %s and %s", input.Shape(), output.Shape())
	}
	return convertValues("ConvertDType", input, output)
}
