// Package conformance checks that the functional and module convolution
// paths agree on randomly generated problems.
package conformance

import (
	"fmt"

	"github.com/samcharles93/qconv/internal/kernels"
	"github.com/samcharles93/qconv/pkg/quant"
)

// Scenario is one convolution problem in float form.
//
// X is NCHW and W is OIHW, as a caller would naturally hold them; Check
// converts both to the channels-last layouts the kernels consume. X, W and B
// are all quantized with (Scale, ZeroPoint): X in DType, W as qint8 and B as
// qint32. A zero point outside the qint8 range therefore cannot be checked.
//
// A nil Dilation means 1 on both axes. An explicit value is passed through
// unchanged, so a zero dilation reaches the kernels and is rejected there.
type Scenario struct {
	X      []float32 `json:"x"`
	XShape [4]int    `json:"x_shape"`
	W      []float32 `json:"w"`
	WShape [4]int    `json:"w_shape"`
	B      []float32 `json:"b,omitempty"`

	Scale     float64     `json:"scale"`
	ZeroPoint int32       `json:"zero_point"`
	QMin      int32       `json:"qmin"`
	QMax      int32       `json:"qmax"`
	DType     quant.DType `json:"dtype"`
	Padding   [2]int      `json:"padding"`
	Stride    [2]int      `json:"stride"`
	Dilation  *[2]int     `json:"dilation,omitempty"`
}

// Params returns the convolution descriptor for s with groups=1 and zero
// output padding.
func (s Scenario) Params() kernels.Conv2dParams {
	p := kernels.DefaultConv2dParams()
	p.Padding = s.Padding
	p.Stride = s.Stride
	if s.Dilation != nil {
		p.Dilation = *s.Dilation
	}
	return p
}

// OutputHW returns the output spatial size the descriptor implies.
func (s Scenario) OutputHW() (int, int) {
	p := s.Params()
	oh := kernels.OutputSize(s.XShape[2], s.WShape[2], p.Padding[0], p.Dilation[0], p.Stride[0])
	ow := kernels.OutputSize(s.XShape[3], s.WShape[3], p.Padding[1], p.Dilation[1], p.Stride[1])
	return oh, ow
}

// Validate checks that the shapes are positive and the data lengths match
// them. It says nothing about whether the problem is a useful trial.
func (s Scenario) Validate() error {
	for _, d := range s.XShape {
		if d < 1 {
			return fmt.Errorf("conformance: x_shape %v must be positive", s.XShape)
		}
	}
	for _, d := range s.WShape {
		if d < 1 {
			return fmt.Errorf("conformance: w_shape %v must be positive", s.WShape)
		}
	}
	if n := s.XShape[0] * s.XShape[1] * s.XShape[2] * s.XShape[3]; len(s.X) != n {
		return fmt.Errorf("conformance: x has %d values, x_shape %v needs %d", len(s.X), s.XShape, n)
	}
	if n := s.WShape[0] * s.WShape[1] * s.WShape[2] * s.WShape[3]; len(s.W) != n {
		return fmt.Errorf("conformance: w has %d values, w_shape %v needs %d", len(s.W), s.WShape, n)
	}
	if len(s.B) != 0 && len(s.B) != s.WShape[0] {
		return fmt.Errorf("conformance: b has %d values, want %d", len(s.B), s.WShape[0])
	}
	return nil
}

// assume reports why s must be discarded, or nil if it is usable.
func (s Scenario) assume() error {
	for i, axis := range [2]string{"height", "width"} {
		k := s.WShape[2+i]
		if k/2 < s.Padding[i] {
			return fmt.Errorf("%w: kernel %s %d too small for padding %d", ErrAssumption, axis, k, s.Padding[i])
		}
	}
	if s.Stride[0] < 1 || s.Stride[1] < 1 {
		return fmt.Errorf("%w: stride %v", ErrAssumption, s.Stride)
	}
	oh, ow := s.OutputHW()
	if oh <= 0 || ow <= 0 {
		return fmt.Errorf("%w: empty output %dx%d", ErrAssumption, oh, ow)
	}
	return nil
}

func (s Scenario) String() string {
	return fmt.Sprintf("x=%v w=%v pad=%v stride=%v dil=%v scale=%g zp=%d dtype=%s",
		s.XShape, s.WShape, s.Padding, s.Stride, s.Params().Dilation, s.Scale, s.ZeroPoint, s.DType)
}
