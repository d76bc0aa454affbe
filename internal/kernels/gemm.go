package kernels

import "runtime"

// gemmTask asks a worker to fill output pixels [rs, re) of one (batch, group)
// slice.
type gemmTask struct {
	s       *Shape
	cols    []int16
	pw      *PackedWeights
	biasAcc []int64
	rq      Requantizer
	out     []int32
	n, g    int
	rs, re  int
	done    chan struct{}
}

type gemmPool struct {
	size      int
	tasks     chan gemmTask
	doneSlots chan chan struct{}
}

func newGemmPool() *gemmPool {
	size := runtime.GOMAXPROCS(0)
	if size < 1 {
		size = 1
	}
	p := &gemmPool{
		size:      size,
		tasks:     make(chan gemmTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.doneSlots <- make(chan struct{}, size)
	}
	for w := 0; w < size; w++ {
		go func() {
			for task := range p.tasks {
				gemmRangePixels(task.s, task.cols, task.pw, task.biasAcc, task.rq, task.out, task.n, task.g, task.rs, task.re)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

var gemmWorkPool = newGemmPool()

// ConvPacked computes a quantized convolution as im2col followed by an integer
// GEMM against prepacked weights, splitting output pixels across workers.
// workers <= 0 uses GOMAXPROCS.
func ConvPacked(s Shape, in []int32, inZP int32, pw *PackedWeights, biasAcc []int64, rq Requantizer, workers int) []int32 {
	out := make([]int32, s.N*s.OH*s.OW*s.O)
	pixels := s.OH * s.OW
	cols := make([]int16, pixels*s.K())

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, pixels, gemmWorkPool.size)

	for n := 0; n < s.N; n++ {
		for g := 0; g < s.G; g++ {
			im2col(&s, in, inZP, n, g, cols)
			if workers <= 1 {
				gemmRangePixels(&s, cols, pw, biasAcc, rq, out, n, g, 0, pixels)
				continue
			}
			chunk := (pixels + workers - 1) / workers
			done := <-gemmWorkPool.doneSlots
			sent := 0
			for rs := 0; rs < pixels; rs += chunk {
				gemmWorkPool.tasks <- gemmTask{
					s: &s, cols: cols, pw: pw, biasAcc: biasAcc, rq: rq, out: out,
					n: n, g: g, rs: rs, re: min(rs+chunk, pixels),
					done: done,
				}
				sent++
			}
			for range sent {
				<-done
			}
			gemmWorkPool.doneSlots <- done
		}
	}
	return out
}

// im2col writes one row per output pixel of batch n, group g. Each row holds
// (x - inZP) for every (kh, kw, ci) tap, with zero for padded positions.
func im2col(s *Shape, in []int32, inZP int32, n, g int, cols []int16) {
	p := s.Params
	k := s.K()
	for oh := 0; oh < s.OH; oh++ {
		for ow := 0; ow < s.OW; ow++ {
			row := cols[(oh*s.OW+ow)*k : (oh*s.OW+ow+1)*k]
			j := 0
			for kh := 0; kh < s.KH; kh++ {
				ih := oh*p.Stride[0] - p.Padding[0] + kh*p.Dilation[0]
				for kw := 0; kw < s.KW; kw++ {
					iw := ow*p.Stride[1] - p.Padding[1] + kw*p.Dilation[1]
					if ih < 0 || ih >= s.H || iw < 0 || iw >= s.W {
						clear(row[j : j+s.CPerG])
						j += s.CPerG
						continue
					}
					base := ((n*s.H+ih)*s.W+iw)*s.C + g*s.CPerG
					for ci := 0; ci < s.CPerG; ci++ {
						row[j] = int16(in[base+ci] - inZP)
						j++
					}
				}
			}
		}
	}
}

func gemmRangePixels(s *Shape, cols []int16, pw *PackedWeights, biasAcc []int64, rq Requantizer, out []int32, n, g, rs, re int) {
	k := s.K()
	pixels := s.OH * s.OW
	for px := rs; px < re; px++ {
		a := cols[px*k : (px+1)*k]
		outBase := (n*pixels + px) * s.O
		for oo := 0; oo < s.OPerG; oo++ {
			o := g*s.OPerG + oo
			out[outBase+o] = rq.Apply(biasAcc[o] + dotInt16(a, pw.Row(o)))
		}
	}
}

func dotInt16(a, b []int16) int64 {
	var sum int64
	i := 0
	for ; i+4 <= len(a); i += 4 {
		sum += int64(int32(a[i])*int32(b[i]) +
			int32(a[i+1])*int32(b[i+1]) +
			int32(a[i+2])*int32(b[i+2]) +
			int32(a[i+3])*int32(b[i+3]))
	}
	for ; i < len(a); i++ {
		sum += int64(int32(a[i]) * int32(b[i]))
	}
	return sum
}
