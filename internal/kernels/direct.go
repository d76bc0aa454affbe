package kernels

// ConvDirect computes a quantized convolution with a plain loop nest.
//
// in is NHWC storage with zero point inZP. w is the filter in the given layout
// with zero point wZP. biasAcc holds one accumulator-domain bias per output
// channel. Out-of-bounds taps read real zero, so they contribute nothing.
// The result is NHWC storage.
func ConvDirect(s Shape, in []int32, inZP int32, w []int32, wZP int32, layout WeightLayout, biasAcc []int64, rq Requantizer) []int32 {
	out := make([]int32, s.N*s.OH*s.OW*s.O)
	p := s.Params

	weightAt := func(o, kh, kw, ci int) int64 {
		var idx int
		if layout == WeightOHWI {
			idx = ((o*s.KH+kh)*s.KW+kw)*s.CPerG + ci
		} else {
			idx = ((kh*s.KW+kw)*s.CPerG+ci)*s.O + o
		}
		return int64(w[idx]) - int64(wZP)
	}

	for n := 0; n < s.N; n++ {
		for oh := 0; oh < s.OH; oh++ {
			for ow := 0; ow < s.OW; ow++ {
				outBase := ((n*s.OH+oh)*s.OW + ow) * s.O
				for o := 0; o < s.O; o++ {
					g := o / s.OPerG
					acc := biasAcc[o]
					for kh := 0; kh < s.KH; kh++ {
						ih := oh*p.Stride[0] - p.Padding[0] + kh*p.Dilation[0]
						if ih < 0 || ih >= s.H {
							continue
						}
						for kw := 0; kw < s.KW; kw++ {
							iw := ow*p.Stride[1] - p.Padding[1] + kw*p.Dilation[1]
							if iw < 0 || iw >= s.W {
								continue
							}
							inBase := ((n*s.H+ih)*s.W+iw)*s.C + g*s.CPerG
							for ci := 0; ci < s.CPerG; ci++ {
								x := int64(in[inBase+ci]) - int64(inZP)
								acc += x * weightAt(o, kh, kw, ci)
							}
						}
					}
					out[outBase+o] = rq.Apply(acc)
				}
			}
		}
	}
	return out
}
