package tensor

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// LoadRaw reads a headerless little-endian float32 file into a tensor of the
// given shape. The file is memory-mapped when possible; the values are decoded
// into an owned slice before the mapping is released.
func LoadRaw(path string, shape ...int) (*Tensor, error) {
	n, err := shapeSize(shape)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	want := int64(n) * 4
	if stat.Size() != want {
		return nil, fmt.Errorf("%s: %w: shape %v needs %d bytes, file has %d", path, errSizeMismatch, shape, want, stat.Size())
	}
	if n == 0 {
		return New(shape...), nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(want), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// Fallback path that does not require mmap support.
		data = make([]byte, want)
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return decodeF32(data, shape), nil
	}
	defer func() { _ = unix.Munmap(data) }()
	return decodeF32(data, shape), nil
}

// WriteRaw writes t as headerless little-endian float32.
func WriteRaw(w io.Writer, t *Tensor) error {
	buf := make([]byte, 4*len(t.Data))
	for i, v := range t.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}

func decodeF32(raw []byte, shape []int) *Tensor {
	t := New(shape...)
	for i := range t.Data {
		t.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return t
}
