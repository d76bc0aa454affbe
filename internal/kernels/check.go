package kernels

import (
	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/pkg/quant"
)

// Shape is a fully resolved convolution problem.
//
// Input is NHWC [N, H, W, C]; output is NHWC [N, OH, OW, O]. Each group g
// reads input channels [g*CPerG, (g+1)*CPerG) and writes output channels
// [g*OPerG, (g+1)*OPerG).
type Shape struct {
	N, H, W, C int
	KH, KW     int
	O          int
	G          int
	CPerG      int
	OPerG      int
	OH, OW     int
	Params     Conv2dParams
}

// K is the reduction length of one output value.
func (s Shape) K() int { return s.KH * s.KW * s.CPerG }

// OutputShape returns the NHWC output dimensions.
func (s Shape) OutputShape() []int { return []int{s.N, s.OH, s.OW, s.O} }

// WeightLayout is the axis order of a quantized filter.
type WeightLayout int

const (
	// WeightHWIO is [KH, KW, C/groups, O].
	WeightHWIO WeightLayout = iota
	// WeightOHWI is [O, KH, KW, C/groups], the prepacked order.
	WeightOHWI
)

func (l WeightLayout) String() string {
	if l == WeightOHWI {
		return "OHWI"
	}
	return "HWIO"
}

// Static holds the parts of a convolution known before any input is seen.
type Static struct {
	KH, KW int
	CPerG  int
	O      int
	Params Conv2dParams
	Out    quant.Params
}

// CheckStatic validates everything that does not depend on the input tensor:
// the descriptor, the filter, the bias and the requested output params.
// Callers must run it before CheckInput so that both entry points report the
// first failure in the same order.
func CheckStatic(weight *tensor.QTensor, layout WeightLayout, bias *tensor.QTensor, p Conv2dParams, out quant.Params) (Static, error) {
	if err := p.Validate(); err != nil {
		return Static{}, err
	}
	if weight == nil {
		return Static{}, convErr(ErrShapeMismatch, "weight is required")
	}
	if weight.Rank() != 4 {
		return Static{}, convErr(ErrShapeMismatch, "expected 4-D %s weight, got shape %v", layout, weight.Shape())
	}
	if weight.DType() != quant.QInt8 {
		return Static{}, convErr(ErrUnsupportedDType, "expected weight dtype qint8, got %s", weight.DType())
	}

	var st Static
	switch layout {
	case WeightHWIO:
		st.KH, st.KW, st.CPerG, st.O = weight.Dim(0), weight.Dim(1), weight.Dim(2), weight.Dim(3)
	case WeightOHWI:
		st.O, st.KH, st.KW, st.CPerG = weight.Dim(0), weight.Dim(1), weight.Dim(2), weight.Dim(3)
	default:
		return Static{}, convErr(ErrInvalidParams, "unknown weight layout %d", int(layout))
	}
	if st.KH < 1 || st.KW < 1 || st.CPerG < 1 || st.O < 1 {
		return Static{}, convErr(ErrShapeMismatch, "weight dimensions must be positive, got %v", weight.Shape())
	}
	if st.O%p.Groups != 0 {
		return Static{}, convErr(ErrShapeMismatch, "output channels %d not divisible by groups %d", st.O, p.Groups)
	}

	if bias != nil {
		if bias.Rank() != 1 || bias.Dim(0) != st.O {
			return Static{}, convErr(ErrShapeMismatch, "expected bias of shape [%d], got %v", st.O, bias.Shape())
		}
		if bias.DType() != quant.QInt32 {
			return Static{}, convErr(ErrUnsupportedDType, "expected bias dtype qint32, got %s", bias.DType())
		}
	}

	if out.DType != quant.QUInt8 && out.DType != quant.QInt8 {
		return Static{}, convErr(ErrUnsupportedDType, "output dtype %s is not supported, expected quint8 or qint8", out.DType)
	}
	if err := out.Validate(); err != nil {
		return Static{}, convErr(ErrInvalidParams, "output params: %v", err)
	}

	st.Params = p
	st.Out = out
	return st, nil
}

// CheckInput validates input against a checked static description and
// resolves the output shape.
func CheckInput(input *tensor.QTensor, st Static) (Shape, error) {
	if input == nil {
		return Shape{}, convErr(ErrShapeMismatch, "input is required")
	}
	if input.Rank() != 4 {
		return Shape{}, convErr(ErrShapeMismatch, "expected 4-D NHWC input, got shape %v", input.Shape())
	}
	if input.DType() != quant.QUInt8 {
		return Shape{}, convErr(ErrUnsupportedDType, "expected input dtype quint8, got %s", input.DType())
	}

	s := Shape{
		N: input.Dim(0), H: input.Dim(1), W: input.Dim(2), C: input.Dim(3),
		KH: st.KH, KW: st.KW,
		O:      st.O,
		G:      st.Params.Groups,
		Params: st.Params,
	}
	if s.C%s.G != 0 {
		return Shape{}, convErr(ErrShapeMismatch, "input channels %d not divisible by groups %d", s.C, s.G)
	}
	s.CPerG = s.C / s.G
	s.OPerG = s.O / s.G
	if s.CPerG != st.CPerG {
		return Shape{}, convErr(ErrShapeMismatch, "input has %d channels per group, weight expects %d", s.CPerG, st.CPerG)
	}

	p := st.Params
	s.OH = OutputSize(s.H, s.KH, p.Padding[0], p.Dilation[0], p.Stride[0])
	s.OW = OutputSize(s.W, s.KW, p.Padding[1], p.Dilation[1], p.Stride[1])
	if s.OH <= 0 || s.OW <= 0 {
		return Shape{}, convErr(ErrEmptyOutput, "input %dx%d with kernel %dx%d and %s gives output %dx%d",
			s.H, s.W, s.KH, s.KW, p, s.OH, s.OW)
	}
	if s.N == 0 {
		return Shape{}, convErr(ErrEmptyOutput, "batch size is zero")
	}
	return s, nil
}
