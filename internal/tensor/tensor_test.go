package tensor

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/qconv/pkg/quant"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
		size  int
	}{
		{"scalar", nil, 1},
		{"1D", []int{10}, 10},
		{"2D", []int{3, 4}, 12},
		{"4D", []int{2, 3, 4, 5}, 120},
		{"empty", []int{2, 0, 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := New(tt.shape...)
			if x.Size() != tt.size {
				t.Fatalf("expected size %d, got %d", tt.size, x.Size())
			}
			if x.Rank() != len(tt.shape) {
				t.Fatalf("expected rank %d, got %d", len(tt.shape), x.Rank())
			}
		})
	}
}

func TestFromDataSizeMismatch(t *testing.T) {
	if _, err := FromData(make([]float32, 5), 2, 3); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, err := FromData(nil, -1); err == nil {
		t.Fatal("expected negative dimension error")
	}
}

func TestStrides(t *testing.T) {
	tests := []struct {
		shape []int
		want  []int
	}{
		{[]int{10}, []int{1}},
		{[]int{3, 4}, []int{4, 1}},
		{[]int{2, 3, 4, 5}, []int{60, 20, 5, 1}},
	}
	for _, tt := range tests {
		got := strides(tt.shape)
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Fatalf("strides(%v): got %v want %v", tt.shape, got, tt.want)
			}
		}
	}
}

func TestPermuteNCHWToNHWC(t *testing.T) {
	const n, c, h, w = 2, 3, 4, 5
	x := New(n, c, h, w)
	for i := range x.Data {
		x.Data[i] = float32(i)
	}

	y, err := ToNHWC(x)
	if err != nil {
		t.Fatalf("ToNHWC: %v", err)
	}
	want := []int{n, h, w, c}
	for i, d := range y.Shape() {
		if d != want[i] {
			t.Fatalf("shape: got %v want %v", y.Shape(), want)
		}
	}
	for ni := range n {
		for ci := range c {
			for hi := range h {
				for wi := range w {
					if got, exp := y.At(ni, hi, wi, ci), x.At(ni, ci, hi, wi); got != exp {
						t.Fatalf("(%d,%d,%d,%d): got %g want %g", ni, ci, hi, wi, got, exp)
					}
				}
			}
		}
	}
}

func TestPermuteOIHWToHWIO(t *testing.T) {
	const o, i, kh, kw = 4, 2, 3, 3
	x := New(o, i, kh, kw)
	for j := range x.Data {
		x.Data[j] = float32(j) * 0.5
	}
	y, err := ToHWIO(x)
	if err != nil {
		t.Fatalf("ToHWIO: %v", err)
	}
	for oi := range o {
		for ii := range i {
			for hi := range kh {
				for wi := range kw {
					if y.At(hi, wi, ii, oi) != x.At(oi, ii, hi, wi) {
						t.Fatalf("mismatch at o=%d i=%d h=%d w=%d", oi, ii, hi, wi)
					}
				}
			}
		}
	}
}

func TestPermuteRejectsBadPermutation(t *testing.T) {
	x := New(2, 3)
	for _, perm := range [][]int{{0}, {0, 0}, {0, 2}, {-1, 1}} {
		if _, err := x.Permute(perm...); err == nil {
			t.Fatalf("expected error for permutation %v", perm)
		}
	}
	if _, err := ToNHWC(x); err == nil {
		t.Fatal("expected rank error from ToNHWC")
	}
}

func TestQuantizePerTensor(t *testing.T) {
	x, err := FromData([]float32{-5, -4, -3, -2, -1, 0, 1, 2, 3, 4}, 10)
	if err != nil {
		t.Fatalf("FromData: %v", err)
	}
	p := quant.Params{Scale: 2, ZeroPoint: 1, DType: quant.QUInt8}
	q, err := QuantizePerTensor(x, p)
	if err != nil {
		t.Fatalf("QuantizePerTensor: %v", err)
	}
	want := []int32{0, 0, 0, 0, 0, 1, 2, 2, 2, 3}
	got := q.IntRepr()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %d want %d (all %v)", i, got[i], want[i], got)
		}
	}

	// IntRepr is a copy.
	got[0] = 99
	if q.Data[0] == 99 {
		t.Fatal("IntRepr aliases storage")
	}

	deq := q.Dequantize()
	if deq.Data[5] != 0 || deq.Data[9] != 4 {
		t.Fatalf("unexpected dequantized values %v", deq.Data)
	}

	if _, err := QuantizePerTensor(x, quant.Params{Scale: 0, DType: quant.QUInt8}); err == nil {
		t.Fatal("expected invalid params error")
	}
}

func TestNewQTensorRejectsOutOfRange(t *testing.T) {
	p := quant.Params{Scale: 1, DType: quant.QInt8}
	if _, err := NewQTensor([]int32{0, 200}, p, 2); err == nil {
		t.Fatal("expected range error")
	}
	q, err := NewQTensor([]int32{-128, 127}, p, 2)
	if err != nil {
		t.Fatalf("NewQTensor: %v", err)
	}
	if !Equal(q, q.Clone()) {
		t.Fatal("clone should be equal")
	}
}

func TestQToOHWI(t *testing.T) {
	p := quant.Params{Scale: 1, DType: quant.QInt8}
	data := make([]int32, 2*2*3*4)
	for i := range data {
		data[i] = int32(i % 100)
	}
	q, err := NewQTensor(data, p, 2, 2, 3, 4)
	if err != nil {
		t.Fatalf("NewQTensor: %v", err)
	}
	r, err := QToOHWI(q)
	if err != nil {
		t.Fatalf("QToOHWI: %v", err)
	}
	if r.At(3, 1, 0, 2) != q.At(1, 0, 2, 3) {
		t.Fatal("OHWI element mismatch")
	}
}

func TestLoadRawRoundTrip(t *testing.T) {
	x := New(2, 3)
	for i := range x.Data {
		x.Data[i] = float32(i) - 2.5
	}
	var buf bytes.Buffer
	if err := WriteRaw(&buf, x); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	path := filepath.Join(t.TempDir(), "x.f32")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	y, err := LoadRaw(path, 2, 3)
	if err != nil {
		t.Fatalf("LoadRaw: %v", err)
	}
	for i := range x.Data {
		if x.Data[i] != y.Data[i] {
			t.Fatalf("index %d: got %g want %g", i, y.Data[i], x.Data[i])
		}
	}

	if _, err := LoadRaw(path, 4, 4); err == nil {
		t.Fatal("expected size mismatch")
	}
}
