// Package tensor holds the dense parameter tensors exchanged between the
// coordinator and its workers, and the safetensors codec used on the wire.
package tensor

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	ErrShapeMismatch = errors.New("tensor shapes do not match")
	ErrInvalidShape  = errors.New("tensor data does not match its shape")
)

// Map is a set of named model parameters.
type Map map[string]*Tensor

// Tensor is a dense, row-major tensor. Values are kept as float64 in memory
// regardless of DType, which only decides the element encoding on the wire.
type Tensor struct {
	DType DType
	Shape []int
	Data  []float64
}

// New returns a tensor of the given dtype and shape backed by data.
func New(dtype DType, shape []int, data []float64) (*Tensor, error) {
	t := &Tensor{DType: dtype, Shape: slices.Clone(shape), Data: data}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Zeros returns a zero-filled tensor.
func Zeros(dtype DType, shape ...int) *Tensor {
	n, _ := numel(shape)

	return &Tensor{DType: dtype, Shape: slices.Clone(shape), Data: make([]float64, n)}
}

func (t *Tensor) Validate() error {
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension %d", ErrInvalidShape, d)
		}
	}
	n, ok := numel(t.Shape)
	if !ok {
		return fmt.Errorf("%w: shape %v overflows", ErrInvalidShape, t.Shape)
	}
	if n != len(t.Data) {
		return fmt.Errorf("%w: shape %v holds %d elements, got %d", ErrInvalidShape, t.Shape, n, len(t.Data))
	}

	return nil
}

// Len is the number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{DType: t.DType, Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// Add returns the elementwise sum of t and o. The result keeps t's dtype.
func (t *Tensor) Add(o *Tensor) (*Tensor, error) {
	if !slices.Equal(t.Shape, o.Shape) || len(t.Data) != len(o.Data) {
		return nil, fmt.Errorf("%w: %v and %v", ErrShapeMismatch, t.Shape, o.Shape)
	}

	out := t.Clone()
	for i, v := range o.Data {
		out.Data[i] += v
	}

	return out, nil
}

// Scale returns t multiplied elementwise by f.
func (t *Tensor) Scale(f float64) *Tensor {
	out := t.Clone()
	for i := range out.Data {
		out.Data[i] *= f
	}

	return out
}

// Clone deep-copies every tensor in the map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for name, t := range m {
		out[name] = t.Clone()
	}

	return out
}

// Names returns the parameter names in sorted order.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// numel is the element count of shape. It reports false when the product
// does not fit in an int.
func numel(shape []int) (int, bool) {
	n := 1
	for _, d := range shape {
		if d != 0 && n > math.MaxInt/d {
			return 0, false
		}
		n *= d
	}

	return n, true
}
