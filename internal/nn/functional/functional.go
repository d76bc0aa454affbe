// Package functional provides stateless quantized operators. Every call
// validates and computes from scratch; nothing is cached between calls.
package functional

import (
	"time"

	"github.com/samcharles93/qconv/internal/kernels"
	"github.com/samcharles93/qconv/internal/metrics"
	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/pkg/quant"
)

// Conv2dOptions configures a functional convolution.
type Conv2dOptions struct {
	kernels.Conv2dParams

	// Output quantization.
	Scale     float64
	ZeroPoint int32
	DType     quant.DType

	// Prepacked reports that weight is OHWI as returned by PackWeight rather
	// than HWIO.
	Prepacked bool
}

// OutputParams returns the requested output quantization.
func (o Conv2dOptions) OutputParams() quant.Params {
	return quant.Params{Scale: o.Scale, ZeroPoint: o.ZeroPoint, DType: o.DType}
}

// Conv2d convolves an NHWC quint8 input with a qint8 filter and an optional
// qint32 bias, producing NHWC output quantized with opts' output params.
func Conv2d(input, weight, bias *tensor.QTensor, opts Conv2dOptions) (*tensor.QTensor, error) {
	layout := kernels.WeightHWIO
	if opts.Prepacked {
		layout = kernels.WeightOHWI
	}
	st, err := kernels.CheckStatic(weight, layout, bias, opts.Conv2dParams, opts.OutputParams())
	if err != nil {
		return nil, err
	}
	s, err := kernels.CheckInput(input, st)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.RecordConv(metrics.PathFunctional, time.Since(start)) }()

	rq := kernels.NewRequantizer(input.Params.Scale, weight.Params.Scale, st.Out)
	biasAcc := kernels.BiasAccumulator(bias, s.O, input.Params.Scale, weight.Params.Scale)
	out := kernels.ConvDirect(s, input.Data, input.Params.ZeroPoint, weight.Data, weight.Params.ZeroPoint, layout, biasAcc, rq)
	return tensor.NewQTensor(out, st.Out, s.OutputShape()...)
}

// PackWeight converts an HWIO filter to the OHWI order accepted with
// Prepacked set.
func PackWeight(weight *tensor.QTensor) (*tensor.QTensor, error) {
	return tensor.QToOHWI(weight)
}

// ReLU clamps stored values from below at the zero point, which is the exact
// image of real zero. Params are unchanged.
func ReLU(q *tensor.QTensor) *tensor.QTensor {
	out := q.Clone()
	zp := q.Params.ZeroPoint
	for i, v := range out.Data {
		if v < zp {
			out.Data[i] = zp
		}
	}
	return out
}
