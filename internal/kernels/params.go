// Package kernels holds the integer convolution kernels shared by the
// functional and module entry points, together with the validation and
// requantization rules both of them must apply identically.
package kernels

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParams    = errors.New("invalid convolution parameters")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrUnsupportedDType = errors.New("unsupported dtype")
	ErrEmptyOutput      = errors.New("empty output")
)

// PaddingZeros is the only supported padding mode.
const PaddingZeros = "zeros"

// Conv2dParams describes a 2-D convolution. Pairs are (height, width).
type Conv2dParams struct {
	Stride        [2]int
	Padding       [2]int
	OutputPadding [2]int
	Dilation      [2]int
	Groups        int
	PaddingMode   string
}

// DefaultConv2dParams returns stride 1, no padding, dilation 1, one group.
func DefaultConv2dParams() Conv2dParams {
	return Conv2dParams{
		Stride:      [2]int{1, 1},
		Dilation:    [2]int{1, 1},
		Groups:      1,
		PaddingMode: PaddingZeros,
	}
}

// Validate checks the descriptor on its own, without any tensor shapes.
func (p Conv2dParams) Validate() error {
	for i, axis := range [2]string{"height", "width"} {
		if p.Stride[i] < 1 {
			return convErr(ErrInvalidParams, "stride %s must be positive, got %d", axis, p.Stride[i])
		}
		if p.Dilation[i] < 1 {
			return convErr(ErrInvalidParams, "dilation %s must be positive, got %d", axis, p.Dilation[i])
		}
		if p.Padding[i] < 0 {
			return convErr(ErrInvalidParams, "padding %s must be non-negative, got %d", axis, p.Padding[i])
		}
		if p.OutputPadding[i] != 0 {
			return convErr(ErrInvalidParams, "output padding is only supported for transposed convolution, got %v", p.OutputPadding)
		}
	}
	if p.Groups < 1 {
		return convErr(ErrInvalidParams, "groups must be positive, got %d", p.Groups)
	}
	if p.PaddingMode != PaddingZeros {
		return convErr(ErrInvalidParams, "padding mode %q is not supported", p.PaddingMode)
	}
	return nil
}

func (p Conv2dParams) String() string {
	return fmt.Sprintf("stride=%v padding=%v dilation=%v groups=%d", p.Stride, p.Padding, p.Dilation, p.Groups)
}

// OutputSize applies the standard convolution output formula along one axis.
// The result is not clamped; a value <= 0 means the kernel does not fit.
func OutputSize(in, kernel, pad, dilation, stride int) int {
	num := in + 2*pad - dilation*(kernel-1) - 1
	// floor division for a possibly negative numerator
	q := num / stride
	if num%stride != 0 && num < 0 {
		q--
	}
	return q + 1
}

// convErr builds the error text both entry points report.
func convErr(kind error, format string, args ...any) error {
	return fmt.Errorf("qconv2d: %w: %s", kind, fmt.Sprintf(format, args...))
}
