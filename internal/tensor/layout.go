package tensor

import "fmt"

// Layout names the axis order of a rank-4 image or filter tensor.
type Layout string

const (
	NCHW Layout = "NCHW"
	NHWC Layout = "NHWC"
	OIHW Layout = "OIHW"
	HWIO Layout = "HWIO"
	OHWI Layout = "OHWI"
)

// Permutations between the layouts used by the convolution operators.
var (
	permNCHWToNHWC = []int{0, 2, 3, 1}
	permOIHWToHWIO = []int{2, 3, 1, 0}
	permHWIOToOHWI = []int{3, 0, 1, 2}
)

// ToNHWC converts a channel-first image batch to channel-last.
func ToNHWC(t *Tensor) (*Tensor, error) {
	if t.Rank() != 4 {
		return nil, fmt.Errorf("tensor: ToNHWC expects rank 4, got shape %v", t.shape)
	}
	return t.Permute(permNCHWToNHWC...)
}

// ToHWIO converts an OIHW filter to (kernel-h, kernel-w, in, out).
func ToHWIO(t *Tensor) (*Tensor, error) {
	if t.Rank() != 4 {
		return nil, fmt.Errorf("tensor: ToHWIO expects rank 4, got shape %v", t.shape)
	}
	return t.Permute(permOIHWToHWIO...)
}

// QToOHWI converts a quantized HWIO filter to OHWI, the row-per-output-channel
// order used by packed weights.
func QToOHWI(q *QTensor) (*QTensor, error) {
	if q.Rank() != 4 {
		return nil, fmt.Errorf("tensor: QToOHWI expects rank 4, got shape %v", q.shape)
	}
	return q.Permute(permHWIOToOHWI...)
}
