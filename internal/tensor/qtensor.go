package tensor

import (
	"fmt"
	"slices"

	"github.com/samcharles93/qconv/pkg/quant"
)

// QTensor is a per-tensor affine quantized array.
//
// Stored values are kept as int32 for every dtype; each value is within the
// range of Params.DType. The real value of element i is
// (Data[i] - ZeroPoint) * Scale.
type QTensor struct {
	shape  []int
	Params quant.Params
	Data   []int32
}

// QuantizePerTensor quantizes t with params p.
func QuantizePerTensor(t *Tensor, p quant.Params) (*QTensor, error) {
	if t == nil {
		return nil, fmt.Errorf("quantize: nil tensor")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("quantize: %w", err)
	}
	q := &QTensor{shape: slices.Clone(t.shape), Params: p, Data: make([]int32, len(t.Data))}
	quant.Quantize(q.Data, t.Data, p)
	return q, nil
}

// NewQTensor wraps stored integers with the given shape and params. Every
// value must fit p.DType.
func NewQTensor(data []int32, p quant.Params, shape ...int) (*QTensor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n, err := shapeSize(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d elements, got %d", errSizeMismatch, shape, n, len(data))
	}
	lo, hi := p.DType.Range()
	for i, v := range data {
		if v < lo || v > hi {
			return nil, fmt.Errorf("tensor: stored value %d at %d outside %s range", v, i, p.DType)
		}
	}
	return &QTensor{shape: slices.Clone(shape), Params: p, Data: data}, nil
}

// Shape returns a copy of the tensor's dimensions.
func (q *QTensor) Shape() []int { return slices.Clone(q.shape) }

// Rank returns the number of dimensions.
func (q *QTensor) Rank() int { return len(q.shape) }

// Dim returns the size of dimension i.
func (q *QTensor) Dim(i int) int { return q.shape[i] }

// Size returns the total number of elements.
func (q *QTensor) Size() int { return len(q.Data) }

// DType returns the storage element type.
func (q *QTensor) DType() quant.DType { return q.Params.DType }

// IntRepr returns a copy of the stored integers.
func (q *QTensor) IntRepr() []int32 { return slices.Clone(q.Data) }

// At returns the stored integer at the given index.
func (q *QTensor) At(idx ...int) int32 {
	return q.Data[offset(q.shape, idx)]
}

// Dequantize returns the real-valued tensor q represents.
func (q *QTensor) Dequantize() *Tensor {
	out := &Tensor{shape: slices.Clone(q.shape), Data: make([]float32, len(q.Data))}
	quant.Dequantize(out.Data, q.Data, q.Params)
	return out
}

// Permute returns a contiguous copy with reordered dimensions, keeping params.
func (q *QTensor) Permute(perm ...int) (*QTensor, error) {
	outShape, src, err := permutePlan(q.shape, perm)
	if err != nil {
		return nil, err
	}
	out := &QTensor{shape: outShape, Params: q.Params, Data: make([]int32, len(q.Data))}
	for i, j := range src {
		out.Data[i] = q.Data[j]
	}
	return out, nil
}

// Clone returns a deep copy.
func (q *QTensor) Clone() *QTensor {
	return &QTensor{shape: slices.Clone(q.shape), Params: q.Params, Data: slices.Clone(q.Data)}
}

// Equal reports whether a and b have the same shape, params and stored values.
func Equal(a, b *QTensor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Params == b.Params && slices.Equal(a.shape, b.shape) && slices.Equal(a.Data, b.Data)
}

func (q *QTensor) String() string {
	return fmt.Sprintf("QTensor(shape=%v, %s)", q.shape, q.Params)
}
