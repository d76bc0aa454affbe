package conformance

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/samcharles93/qconv/pkg/quant"
)

// Range is an inclusive integer interval.
type Range struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

func (r Range) validate(name string, floor int) error {
	if r.Min < floor || r.Max < r.Min {
		return fmt.Errorf("conformance: %s range [%d, %d] invalid", name, r.Min, r.Max)
	}
	return nil
}

func (r Range) draw(rng *rand.Rand) int {
	return r.Min + rng.IntN(r.Max-r.Min+1)
}

// GeneratorConfig bounds the scenarios a Generator produces.
type GeneratorConfig struct {
	Batch       Range         `yaml:"batch" json:"batch"`
	InChannels  Range         `yaml:"in_channels" json:"in_channels"`
	OutChannels Range         `yaml:"out_channels" json:"out_channels"`
	Height      Range         `yaml:"height" json:"height"`
	Width       Range         `yaml:"width" json:"width"`
	KernelH     Range         `yaml:"kernel_h" json:"kernel_h"`
	KernelW     Range         `yaml:"kernel_w" json:"kernel_w"`
	Padding     Range         `yaml:"padding" json:"padding"`
	Stride      Range         `yaml:"stride" json:"stride"`
	DTypes      []quant.DType `yaml:"dtypes" json:"dtypes"`
}

// DefaultGeneratorConfig mirrors the bounds of the reference property test:
// batches of 1-3, 1-5 channels each way, 6-12 pixel inputs, 3-5 tap
// kernels, padding and stride in 1-3, quint8 only.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Batch:       Range{1, 3},
		InChannels:  Range{1, 5},
		OutChannels: Range{1, 5},
		Height:      Range{6, 12},
		Width:       Range{6, 12},
		KernelH:     Range{3, 5},
		KernelW:     Range{3, 5},
		Padding:     Range{1, 3},
		Stride:      Range{1, 3},
		DTypes:      []quant.DType{quant.QUInt8},
	}
}

// Validate checks every bound.
func (c GeneratorConfig) Validate() error {
	errs := []error{
		c.Batch.validate("batch", 1),
		c.InChannels.validate("in_channels", 1),
		c.OutChannels.validate("out_channels", 1),
		c.Height.validate("height", 1),
		c.Width.validate("width", 1),
		c.KernelH.validate("kernel_h", 1),
		c.KernelW.validate("kernel_w", 1),
		c.Padding.validate("padding", 0),
		c.Stride.validate("stride", 1),
	}
	if len(c.DTypes) == 0 {
		errs = append(errs, errors.New("conformance: no dtypes configured"))
	}
	return errors.Join(errs...)
}

// Generator draws scenarios from a seeded PCG stream. The same seed and
// config always yield the same sequence.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(cfg GeneratorConfig, seed uint64) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Next returns the next scenario.
//
// Values are drawn on the quantization grid, so quantizing them recovers the
// drawn integers exactly and every trial exercises the integer kernels rather
// than the rounding of the float inputs.
func (g *Generator) Next() Scenario {
	c, rng := g.cfg, g.rng

	n := c.Batch.draw(rng)
	ci := c.InChannels.draw(rng)
	co := c.OutChannels.draw(rng)
	h, w := c.Height.draw(rng), c.Width.draw(rng)
	kh, kw := c.KernelH.draw(rng), c.KernelW.draw(rng)

	dt := c.DTypes[rng.IntN(len(c.DTypes))]
	qmin, qmax := sampleBounds(dt)
	scale := float64(1+rng.IntN(64)) / 256
	// The filter shares the zero point, so it must also fit qint8.
	zlo, zhi := max(qmin, math.MinInt8), min(qmax, math.MaxInt8)
	zp := zlo + rng.Int32N(zhi-zlo+1)

	s := Scenario{
		XShape:    [4]int{n, ci, h, w},
		WShape:    [4]int{co, ci, kh, kw},
		Scale:     scale,
		ZeroPoint: zp,
		QMin:      qmin,
		QMax:      qmax,
		DType:     dt,
		Padding:   [2]int{c.Padding.draw(rng), c.Padding.draw(rng)},
		Stride:    [2]int{c.Stride.draw(rng), c.Stride.draw(rng)},
	}
	s.X = gridValues(rng, n*ci*h*w, qmin, qmax, zp, scale)
	s.W = gridValues(rng, co*ci*kh*kw, math.MinInt8, math.MaxInt8, zp, scale)
	s.B = gridValues(rng, co, -1024, 1024, zp, scale)
	return s
}

// sampleBounds keeps qint32 inputs in a range where products stay readable
// in failure reports.
func sampleBounds(d quant.DType) (int32, int32) {
	if d == quant.QInt32 {
		return -1024, 1024
	}
	return d.Range()
}

func gridValues(rng *rand.Rand, n int, qmin, qmax, zp int32, scale float64) []float32 {
	out := make([]float32, n)
	span := qmax - qmin + 1
	for i := range out {
		q := qmin + rng.Int32N(span)
		out[i] = float32(float64(q-zp) * scale)
	}
	return out
}
