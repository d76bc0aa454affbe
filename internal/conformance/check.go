package conformance

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samcharles93/qconv/internal/nn"
	"github.com/samcharles93/qconv/internal/nn/functional"
	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/pkg/quant"
)

// ErrAssumption marks a scenario that was discarded rather than checked.
var ErrAssumption = errors.New("assumption not met")

// Outcome classifies a trial that did not diverge.
type Outcome string

const (
	// Match: both paths succeeded with identical integer output.
	Match Outcome = "match"
	// ErrorMatch: both paths failed with identical error text.
	ErrorMatch Outcome = "error_match"
	// Skipped: the scenario violated an assumption.
	Skipped Outcome = "skipped"
)

// MismatchError describes a divergence between the two paths.
type MismatchError struct {
	Reason string `json:"reason"`

	// Index is the first differing element of the flattened output, or -1.
	Index int   `json:"index"`
	Want  int32 `json:"want,omitempty"`
	Got   int32 `json:"got,omitempty"`

	WantShape []int `json:"want_shape,omitempty"`
	GotShape  []int `json:"got_shape,omitempty"`

	// Error texts; empty when that path succeeded.
	WantErr string `json:"want_err,omitempty"`
	GotErr  string `json:"got_err,omitempty"`
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	b.WriteString("mismatch: ")
	b.WriteString(e.Reason)
	if e.Index >= 0 {
		fmt.Fprintf(&b, " at %d: want %d, got %d", e.Index, e.Want, e.Got)
	}
	if e.WantShape != nil || e.GotShape != nil {
		fmt.Fprintf(&b, " (shape want %v, got %v)", e.WantShape, e.GotShape)
	}
	if e.WantErr != "" || e.GotErr != "" {
		fmt.Fprintf(&b, " (error want %q, got %q)", e.WantErr, e.GotErr)
	}
	return b.String()
}

// Quantized holds a scenario's tensors in the layouts and types both paths
// consume: X NHWC in the scenario dtype, W HWIO qint8, B qint32 or nil. All
// three carry the scenario's scale and zero point.
type Quantized struct {
	X, W, B *tensor.QTensor
}

// Quantize permutes and quantizes s.
func (s Scenario) Quantize() (Quantized, error) {
	x, err := tensor.FromData(s.X, s.XShape[:]...)
	if err != nil {
		return Quantized{}, err
	}
	w, err := tensor.FromData(s.W, s.WShape[:]...)
	if err != nil {
		return Quantized{}, err
	}
	nhwc, err := tensor.ToNHWC(x)
	if err != nil {
		return Quantized{}, err
	}
	hwio, err := tensor.ToHWIO(w)
	if err != nil {
		return Quantized{}, err
	}

	var q Quantized
	if q.X, err = tensor.QuantizePerTensor(nhwc, quant.Params{Scale: s.Scale, ZeroPoint: s.ZeroPoint, DType: s.DType}); err != nil {
		return Quantized{}, err
	}
	if q.W, err = tensor.QuantizePerTensor(hwio, quant.Params{Scale: s.Scale, ZeroPoint: s.ZeroPoint, DType: quant.QInt8}); err != nil {
		return Quantized{}, err
	}
	if len(s.B) > 0 {
		b, err := tensor.FromData(s.B, len(s.B))
		if err != nil {
			return Quantized{}, err
		}
		if q.B, err = tensor.QuantizePerTensor(b, quant.Params{Scale: s.Scale, ZeroPoint: s.ZeroPoint, DType: quant.QInt32}); err != nil {
			return Quantized{}, err
		}
	}
	return q, nil
}

// Check runs s through both convolution paths. A malformed scenario is
// returned as a plain error.
//
// A scenario whose kernel is narrower than twice its padding, whose output
// would be empty, or whose quantization parameters do not fit its dtype is
// discarded with an error wrapping ErrAssumption. Otherwise the functional
// result is the reference: if it fails, the module must fail (at
// construction or forward) with the same text; if it succeeds, the module
// must produce identical integers. Divergence is a *MismatchError.
func Check(s Scenario) (Outcome, error) {
	return check(s, 0)
}

func check(s Scenario, workers int) (Outcome, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	if err := s.assume(); err != nil {
		return Skipped, err
	}
	q, err := s.Quantize()
	if err != nil {
		return Skipped, fmt.Errorf("%w: %v", ErrAssumption, err)
	}

	p := s.Params()
	module, modErr := nn.NewConv2d(nn.Conv2dConfig{
		Weight:    q.W,
		Bias:      q.B,
		Params:    p,
		Scale:     s.Scale,
		ZeroPoint: s.ZeroPoint,
		DType:     s.DType,
		Workers:   workers,
	})
	want, refErr := functional.Conv2d(q.X, q.W, q.B, functional.Conv2dOptions{
		Conv2dParams: p,
		Scale:        s.Scale,
		ZeroPoint:    s.ZeroPoint,
		DType:        s.DType,
	})

	if refErr != nil {
		if modErr == nil {
			_, modErr = module.Forward(q.X)
		}
		if modErr == nil {
			return "", &MismatchError{Reason: "module succeeded where functional failed", Index: -1, WantErr: refErr.Error()}
		}
		if modErr.Error() != refErr.Error() {
			return "", &MismatchError{Reason: "error text differs", Index: -1, WantErr: refErr.Error(), GotErr: modErr.Error()}
		}
		return ErrorMatch, nil
	}

	if modErr != nil {
		return "", &MismatchError{Reason: "module construction failed", Index: -1, GotErr: modErr.Error()}
	}
	got, err := module.Forward(q.X)
	if err != nil {
		return "", &MismatchError{Reason: "module forward failed", Index: -1, GotErr: err.Error()}
	}
	if err := compare(want, got); err != nil {
		return "", err
	}
	return Match, nil
}

// compare returns a *MismatchError at the first difference between a and b.
func compare(want, got *tensor.QTensor) error {
	if !slices.Equal(want.Shape(), got.Shape()) {
		return &MismatchError{Reason: "output shape differs", Index: -1, WantShape: want.Shape(), GotShape: got.Shape()}
	}
	if want.Params != got.Params {
		return &MismatchError{Reason: fmt.Sprintf("output params differ: want %s, got %s", want.Params, got.Params), Index: -1}
	}
	for i := range want.Data {
		if want.Data[i] != got.Data[i] {
			return &MismatchError{Reason: "output differs", Index: i, Want: want.Data[i], Got: got.Data[i]}
		}
	}
	return nil
}

// CheckReLU quantizes x as quint8 and checks that both ReLU forms equal the
// quantization of the real-valued ReLU of x.
func CheckReLU(x []float32, scale float64, zeroPoint int32) error {
	p := quant.Params{Scale: scale, ZeroPoint: zeroPoint, DType: quant.QUInt8}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrAssumption, err)
	}
	t, err := tensor.FromData(x, len(x))
	if err != nil {
		return err
	}
	qx, err := tensor.QuantizePerTensor(t, p)
	if err != nil {
		return err
	}

	y := make([]float32, len(x))
	for i, v := range x {
		y[i] = max(v, 0)
	}
	ref := quant.QuantizeArray(y, scale, zeroPoint, quant.DefaultQMin, quant.DefaultQMax)
	want := make([]int32, len(ref))
	for i, v := range ref {
		want[i] = int32(v)
	}
	expect, err := tensor.NewQTensor(want, p, len(want))
	if err != nil {
		return err
	}

	if err := compare(expect, functional.ReLU(qx)); err != nil {
		return err
	}
	return compare(expect, nn.ReLU{}.Forward(qx))
}
