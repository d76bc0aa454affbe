// Package quant implements per-tensor affine quantization.
//
// A stored integer q represents the real value (q - ZeroPoint) * Scale.
package quant

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DType is the integer element type of a quantized tensor.
type DType uint8

const (
	QUInt8 DType = iota
	QInt8
	QInt32
)

// Default clamp bounds used by QuantizeArray.
const (
	DefaultQMin int32 = 0
	DefaultQMax int32 = 255
)

var (
	ErrInvalidScale     = errors.New("quant: invalid scale")
	ErrInvalidZeroPoint = errors.New("quant: zero point out of range")
	ErrUnknownDType     = errors.New("quant: unknown dtype")
)

func (d DType) String() string {
	switch d {
	case QUInt8:
		return "quint8"
	case QInt8:
		return "qint8"
	case QInt32:
		return "qint32"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// Range returns the inclusive storage bounds of d.
func (d DType) Range() (qmin, qmax int32) {
	switch d {
	case QUInt8:
		return 0, math.MaxUint8
	case QInt8:
		return math.MinInt8, math.MaxInt8
	case QInt32:
		return math.MinInt32, math.MaxInt32
	default:
		return 0, 0
	}
}

// Bits returns the storage width of d.
func (d DType) Bits() int {
	switch d {
	case QUInt8, QInt8:
		return 8
	case QInt32:
		return 32
	default:
		return 0
	}
}

func (d DType) valid() bool {
	return d <= QInt32
}

// ParseDType accepts the names produced by DType.String.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quint8", "uint8", "u8":
		return QUInt8, nil
	case "qint8", "int8", "i8":
		return QInt8, nil
	case "qint32", "int32", "i32":
		return QInt32, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDType, s)
	}
}

// MarshalText encodes d by name.
func (d DType) MarshalText() ([]byte, error) {
	if !d.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDType, uint8(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText accepts any name ParseDType does.
func (d *DType) UnmarshalText(b []byte) error {
	v, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Params is the (scale, zero point, dtype) triple attached to a quantized tensor.
type Params struct {
	Scale     float64
	ZeroPoint int32
	DType     DType
}

// Validate reports whether p describes a usable affine map.
func (p Params) Validate() error {
	if !p.DType.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownDType, uint8(p.DType))
	}
	if !(p.Scale > 0) || math.IsInf(p.Scale, 0) {
		return fmt.Errorf("%w: %g (must be positive and finite)", ErrInvalidScale, p.Scale)
	}
	lo, hi := p.DType.Range()
	if p.ZeroPoint < lo || p.ZeroPoint > hi {
		return fmt.Errorf("%w: %d not in [%d, %d] for %s", ErrInvalidZeroPoint, p.ZeroPoint, lo, hi, p.DType)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("%s(scale=%g, zero_point=%d)", p.DType, p.Scale, p.ZeroPoint)
}

// Round is the rounding rule shared by every quantizer in this module:
// round half to even.
func Round(x float64) float64 {
	return math.RoundToEven(x)
}

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v float64, lo, hi int32) int32 {
	if !(v >= float64(lo)) {
		return lo
	}
	if v > float64(hi) {
		return hi
	}
	return int32(v)
}

// QuantizeValue maps one real value into p's storage domain.
func QuantizeValue(x float32, p Params) int32 {
	lo, hi := p.DType.Range()
	return Clamp(Round(float64(x)/p.Scale+float64(p.ZeroPoint)), lo, hi)
}

// DequantizeValue maps a stored integer back to its real value.
func DequantizeValue(q int32, p Params) float32 {
	return float32(float64(int64(q)-int64(p.ZeroPoint)) * p.Scale)
}

// Quantize writes the quantized form of src into dst.
func Quantize(dst []int32, src []float32, p Params) {
	if len(dst) < len(src) {
		panic("quant: dst too small")
	}
	lo, hi := p.DType.Range()
	zp := float64(p.ZeroPoint)
	for i, x := range src {
		dst[i] = Clamp(Round(float64(x)/p.Scale+zp), lo, hi)
	}
}

// Dequantize writes the real values of src into dst.
func Dequantize(dst []float32, src []int32, p Params) {
	if len(dst) < len(src) {
		panic("quant: dst too small")
	}
	for i, q := range src {
		dst[i] = float32(float64(int64(q)-int64(p.ZeroPoint)) * p.Scale)
	}
}

// QuantizeArray quantizes x into 8-bit storage, clamping to [qmin, qmax].
// It is computed independently of the tensor quantizer and serves as the
// reference when checking quantized operators.
func QuantizeArray(x []float32, scale float64, zeroPoint, qmin, qmax int32) []uint8 {
	out := make([]uint8, len(x))
	for i, v := range x {
		q := Round(float64(v)/scale + float64(zeroPoint))
		out[i] = uint8(Clamp(q, max(qmin, 0), min(qmax, math.MaxUint8)))
	}
	return out
}

// ChooseParams picks an affine map covering [lo, hi] in d's storage range.
// The range is widened to include zero so that real 0 is exactly representable.
func ChooseParams(lo, hi float32, d DType) (Params, error) {
	if !d.valid() {
		return Params{}, fmt.Errorf("%w: %d", ErrUnknownDType, uint8(d))
	}
	if math.IsNaN(float64(lo)) || math.IsNaN(float64(hi)) || lo > hi {
		return Params{}, fmt.Errorf("quant: invalid range [%g, %g]", lo, hi)
	}
	rmin := math.Min(float64(lo), 0)
	rmax := math.Max(float64(hi), 0)
	qmin, qmax := d.Range()
	scale := (rmax - rmin) / (float64(qmax) - float64(qmin))
	if scale == 0 || math.IsInf(scale, 0) {
		scale = 1
	}
	zp := Clamp(Round(float64(qmin)-rmin/scale), qmin, qmax)
	return Params{Scale: scale, ZeroPoint: zp, DType: d}, nil
}
