// Package nn provides stateful quantized operator modules. A module is
// configured once with its weights and quantization, then applied to many
// inputs.
package nn

import (
	"fmt"
	"sync"
	"time"

	"github.com/samcharles93/qconv/internal/kernels"
	"github.com/samcharles93/qconv/internal/metrics"
	"github.com/samcharles93/qconv/internal/nn/functional"
	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/pkg/quant"
)

// Conv2dConfig configures a quantized convolution module.
type Conv2dConfig struct {
	// Weight is HWIO qint8. Bias, when set, is qint32 of length out-channels.
	Weight *tensor.QTensor
	Bias   *tensor.QTensor

	Params kernels.Conv2dParams

	// Output quantization.
	Scale     float64
	ZeroPoint int32
	DType     quant.DType

	// Workers bounds GEMM parallelism; <= 0 uses GOMAXPROCS.
	Workers int
}

// Conv2d is a quantized 2-D convolution with prepacked weights.
//
// It is safe for concurrent use; SetWeightBias swaps the packed weights
// atomically with respect to Forward.
type Conv2d struct {
	mu      sync.RWMutex
	weight  *tensor.QTensor
	bias    *tensor.QTensor
	static  kernels.Static
	packed  *kernels.PackedWeights
	workers int
}

// NewConv2d validates cfg and prepacks its weights.
func NewConv2d(cfg Conv2dConfig) (*Conv2d, error) {
	out := quant.Params{Scale: cfg.Scale, ZeroPoint: cfg.ZeroPoint, DType: cfg.DType}
	st, pw, err := packConv(cfg.Weight, cfg.Bias, cfg.Params, out)
	if err != nil {
		return nil, err
	}
	m := &Conv2d{workers: cfg.Workers}
	m.install(cfg.Weight, cfg.Bias, st, pw)
	return m, nil
}

func packConv(weight, bias *tensor.QTensor, p kernels.Conv2dParams, out quant.Params) (kernels.Static, *kernels.PackedWeights, error) {
	st, err := kernels.CheckStatic(weight, kernels.WeightHWIO, bias, p, out)
	if err != nil {
		return kernels.Static{}, nil, err
	}
	pw, err := kernels.PackWeights(st, weight, kernels.WeightHWIO, bias)
	if err != nil {
		return kernels.Static{}, nil, err
	}
	return st, pw, nil
}

func (m *Conv2d) install(weight, bias *tensor.QTensor, st kernels.Static, pw *kernels.PackedWeights) {
	m.weight = weight.Clone()
	m.bias = nil
	if bias != nil {
		m.bias = bias.Clone()
	}
	m.static = st
	m.packed = pw
}

// Forward applies the convolution to an NHWC quint8 input.
func (m *Conv2d) Forward(input *tensor.QTensor) (*tensor.QTensor, error) {
	m.mu.RLock()
	st, pw, workers := m.static, m.packed, m.workers
	m.mu.RUnlock()

	s, err := kernels.CheckInput(input, st)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rq := kernels.NewRequantizer(input.Params.Scale, pw.WeightScale, st.Out)
	out := kernels.ConvPacked(s, input.Data, input.Params.ZeroPoint, pw, pw.BiasFor(input.Params.Scale), rq, workers)
	metrics.RecordConv(metrics.PathModule, time.Since(start))
	return tensor.NewQTensor(out, st.Out, s.OutputShape()...)
}

// SetWeightBias replaces the filter and bias, re-packing them. On error the
// module keeps its previous weights.
func (m *Conv2d) SetWeightBias(weight, bias *tensor.QTensor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, pw, err := packConv(weight, bias, m.static.Params, m.static.Out)
	if err != nil {
		return err
	}
	m.install(weight, bias, st, pw)
	return nil
}

// Weight returns a copy of the HWIO filter.
func (m *Conv2d) Weight() *tensor.QTensor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.weight.Clone()
}

// Bias returns a copy of the bias, or nil.
func (m *Conv2d) Bias() *tensor.QTensor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bias == nil {
		return nil
	}
	return m.bias.Clone()
}

// Params returns the convolution descriptor.
func (m *Conv2d) Params() kernels.Conv2dParams {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.static.Params
}

// OutputParams returns the output quantization.
func (m *Conv2d) OutputParams() quant.Params {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.static.Out
}

// InChannels returns the number of input channels the module accepts.
func (m *Conv2d) InChannels() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.static.CPerG * m.static.Params.Groups
}

// OutChannels returns the number of output channels.
func (m *Conv2d) OutChannels() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.static.O
}

// KernelSize returns (height, width) of the filter.
func (m *Conv2d) KernelSize() [2]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return [2]int{m.static.KH, m.static.KW}
}

func (m *Conv2d) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.static
	return fmt.Sprintf("QuantizedConv2d(%d, %d, kernel_size=(%d, %d), %s, scale=%g, zero_point=%d, bias=%t)",
		st.CPerG*st.Params.Groups, st.O, st.KH, st.KW, st.Params, st.Out.Scale, st.Out.ZeroPoint, m.bias != nil)
}

// ReLU is the module form of functional.ReLU.
type ReLU struct{}

// Forward clamps stored values at the zero point.
func (ReLU) Forward(q *tensor.QTensor) *tensor.QTensor {
	return functional.ReLU(q)
}
