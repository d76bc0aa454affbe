package kernels

import (
	"math"

	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/pkg/quant"
)

// Requantizer maps int64 accumulators in the (input scale * weight scale)
// domain to output storage.
type Requantizer struct {
	multiplier float64
	zeroPoint  float64
	lo, hi     int32
}

// NewRequantizer builds the output map for a given input and weight scale.
func NewRequantizer(inScale, weightScale float64, out quant.Params) Requantizer {
	lo, hi := out.DType.Range()
	return Requantizer{
		multiplier: inScale * weightScale / out.Scale,
		zeroPoint:  float64(out.ZeroPoint),
		lo:         lo,
		hi:         hi,
	}
}

// Apply converts one accumulator to a stored output value.
func (r Requantizer) Apply(acc int64) int32 {
	return quant.Clamp(quant.Round(float64(acc)*r.multiplier)+r.zeroPoint, r.lo, r.hi)
}

// BiasAccumulator converts a quantized bias into the accumulator domain of
// the given input and weight scales. A nil bias yields zeros.
func BiasAccumulator(bias *tensor.QTensor, o int, inScale, weightScale float64) []int64 {
	acc := make([]int64, o)
	if bias == nil {
		return acc
	}
	accScale := inScale * weightScale
	p := bias.Params
	for i, q := range bias.Data {
		v := float64(int64(q)-int64(p.ZeroPoint)) * p.Scale
		acc[i] = saturateBias(quant.Round(v / accScale))
	}
	return acc
}

// Bias accumulators are held to ±2^62 so that adding a dot product of
// 8-bit values cannot overflow int64.
const biasLimit = 1 << 62

func saturateBias(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= biasLimit:
		return biasLimit
	case v <= -biasLimit:
		return -biasLimit
	}
	return int64(v)
}
