package tensor

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// Tensor is a dense row-major float32 array.
//
// Shape lists dimension sizes from outermost to innermost. Data always holds
// exactly Size() elements; views and non-contiguous strides are not
// represented, so every Tensor is contiguous.
type Tensor struct {
	shape []int
	Data  []float32
}

// New allocates a zeroed tensor of the given shape.
func New(shape ...int) *Tensor {
	n := mustSize(shape)
	return &Tensor{shape: slices.Clone(shape), Data: make([]float32, n)}
}

// FromData wraps data with the given shape. The slice is not copied.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	n, err := shapeSize(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d elements, got %d", errSizeMismatch, shape, n, len(data))
	}
	return &Tensor{shape: slices.Clone(shape), Data: data}, nil
}

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// Size returns the total number of elements.
func (t *Tensor) Size() int { return len(t.Data) }

// At returns the element at the given index.
func (t *Tensor) At(idx ...int) float32 {
	return t.Data[offset(t.shape, idx)]
}

// Set stores v at the given index.
func (t *Tensor) Set(v float32, idx ...int) {
	t.Data[offset(t.shape, idx)] = v
}

// Permute returns a contiguous copy with dimensions reordered so that output
// dimension i is input dimension perm[i].
func (t *Tensor) Permute(perm ...int) (*Tensor, error) {
	outShape, src, err := permutePlan(t.shape, perm)
	if err != nil {
		return nil, err
	}
	out := &Tensor{shape: outShape, Data: make([]float32, len(t.Data))}
	for i, j := range src {
		out.Data[i] = t.Data[j]
	}
	return out, nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: slices.Clone(t.shape), Data: slices.Clone(t.Data)}
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v)", t.shape)
}

// FillUniform fills t with reproducible values drawn uniformly from [lo, hi).
func FillUniform(t *Tensor, lo, hi float32, rng *rand.Rand) {
	span := hi - lo
	for i := range t.Data {
		t.Data[i] = lo + rng.Float32()*span
	}
}

// strides returns the row-major element strides of shape.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

func offset(shape, idx []int) int {
	if len(idx) != len(shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match shape %v", len(idx), shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, shape))
		}
		off = off*shape[i] + v
	}
	return off
}

// permutePlan returns the permuted shape and, for each output element in
// row-major order, the flat index of the input element it reads.
func permutePlan(shape, perm []int) ([]int, []int, error) {
	if len(perm) != len(shape) {
		return nil, nil, fmt.Errorf("%w: permutation %v for rank %d", errBadPermutation, perm, len(shape))
	}
	seen := make([]bool, len(perm))
	outShape := make([]int, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return nil, nil, fmt.Errorf("%w: %v", errBadPermutation, perm)
		}
		seen[p] = true
		outShape[i] = shape[p]
	}

	inStrides := strides(shape)
	n := 1
	for _, d := range shape {
		n *= d
	}
	src := make([]int, n)
	if n == 0 {
		return outShape, src, nil
	}
	idx := make([]int, len(perm))
	for i := range n {
		off := 0
		for d, p := range perm {
			off += idx[d] * inStrides[p]
		}
		src[i] = off
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < outShape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return outShape, src, nil
}

func shapeSize(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: %v", errNegativeDim, shape)
		}
		if d != 0 && n > maxElements/d {
			return 0, fmt.Errorf("%w: %v", errTooLarge, shape)
		}
		n *= d
	}
	return n, nil
}

func mustSize(shape []int) int {
	n, err := shapeSize(shape)
	if err != nil {
		panic(err)
	}
	return n
}

const maxElements = 1 << 40

var (
	errNegativeDim    = fmtError("tensor: negative dimension")
	errTooLarge       = fmtError("tensor: too many elements")
	errSizeMismatch   = fmtError("tensor: data length mismatch")
	errBadPermutation = fmtError("tensor: invalid permutation")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
