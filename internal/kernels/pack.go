package kernels

import (
	"fmt"
	"sync"

	"github.com/samcharles93/qconv/internal/tensor"
)

// PackedWeights is a filter laid out for im2col GEMM.
//
// Data is row-major [O][KH*KW*CPerG] with the weight zero point already
// subtracted, so each output channel's reduction is a single dot product
// against an im2col row. The bias is kept in quantized form and converted to
// the accumulator domain lazily, once per distinct input scale.
type PackedWeights struct {
	O, KH, KW, CPerG int
	Data             []int16
	WeightScale      float64

	bias *tensor.QTensor

	mu        sync.RWMutex
	biasCache map[float64][]int64
}

// K is the length of one packed row.
func (pw *PackedWeights) K() int { return pw.KH * pw.KW * pw.CPerG }

// Row returns the packed reduction row for output channel o.
func (pw *PackedWeights) Row(o int) []int16 {
	k := pw.K()
	return pw.Data[o*k : (o+1)*k]
}

// PackWeights packs a filter checked by CheckStatic.
func PackWeights(st Static, weight *tensor.QTensor, layout WeightLayout, bias *tensor.QTensor) (*PackedWeights, error) {
	if weight == nil {
		return nil, fmt.Errorf("pack weights: nil weight")
	}
	pw := &PackedWeights{
		O: st.O, KH: st.KH, KW: st.KW, CPerG: st.CPerG,
		WeightScale: weight.Params.Scale,
		biasCache:   make(map[float64][]int64),
	}
	if bias != nil {
		pw.bias = bias.Clone()
	}

	k := pw.K()
	if len(weight.Data) != pw.O*k {
		return nil, fmt.Errorf("pack weights: %d values for %d rows of %d", len(weight.Data), pw.O, k)
	}
	pw.Data = make([]int16, pw.O*k)
	zp := weight.Params.ZeroPoint
	for o := 0; o < pw.O; o++ {
		row := pw.Data[o*k : (o+1)*k]
		j := 0
		for kh := 0; kh < pw.KH; kh++ {
			for kw := 0; kw < pw.KW; kw++ {
				for ci := 0; ci < pw.CPerG; ci++ {
					var idx int
					if layout == WeightOHWI {
						idx = ((o*pw.KH+kh)*pw.KW+kw)*pw.CPerG + ci
					} else {
						idx = ((kh*pw.KW+kw)*pw.CPerG+ci)*pw.O + o
					}
					row[j] = int16(weight.Data[idx] - zp)
					j++
				}
			}
		}
	}
	return pw, nil
}

// BiasFor returns the accumulator-domain bias for inputs quantized with
// inScale. Results are cached per scale.
func (pw *PackedWeights) BiasFor(inScale float64) []int64 {
	pw.mu.RLock()
	if acc, ok := pw.biasCache[inScale]; ok {
		pw.mu.RUnlock()
		return acc
	}
	pw.mu.RUnlock()

	acc := BiasAccumulator(pw.bias, pw.O, inScale, pw.WeightScale)

	pw.mu.Lock()
	if len(pw.biasCache) >= maxBiasCache {
		clear(pw.biasCache)
	}
	pw.biasCache[inScale] = acc
	pw.mu.Unlock()
	return acc
}

const maxBiasCache = 16
