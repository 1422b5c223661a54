// Package tensor is a minimal dense row-major n-dimensional array with an explicit shape.
package tensor

import (
	"fmt"
	"slices"
)

type Tensor struct {
	Data  []float64
	Shape []int
}

func New(shape ...int) Tensor {
	return Tensor{
		Data:  make([]float64, Size(shape)),
		Shape: slices.Clone(shape),
	}
}

// FromData wraps data without copying. len(data) must equal the size of shape.
func FromData(data []float64, shape ...int) (Tensor, error) {
	if len(data) != Size(shape) {
		return Tensor{}, fmt.Errorf("tensor: %v values do not fill shape %v", len(data), shape)
	}
	return Tensor{Data: data, Shape: slices.Clone(shape)}, nil
}

// Size returns the number of elements of shape. The empty shape is a scalar of size 1.
func Size(shape []int) int {
	var n = 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (t Tensor) Rank() int { return len(t.Shape) }

func (t Tensor) Len() int { return len(t.Data) }

func (t Tensor) offset(index []int) int {
	if len(index) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: index %v for shape %v", index, t.Shape))
	}
	var off int
	for i, x := range index {
		if x < 0 || x >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", index, t.Shape))
		}
		off = off*t.Shape[i] + x
	}
	return off
}

func (t Tensor) At(index ...int) float64 {
	return t.Data[t.offset(index)]
}

func (t Tensor) Set(v float64, index ...int) {
	t.Data[t.offset(index)] = v
}

func (t Tensor) Add(delta float64, index ...int) {
	t.Data[t.offset(index)] += delta
}

func (t Tensor) Reset() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// Reshape returns a view of the same data with another shape of equal size.
func (t Tensor) Reshape(shape ...int) (Tensor, error) {
	return FromData(t.Data, shape...)
}

// HasSuffix reports whether the trailing axes of shape equal suffix.
func HasSuffix(shape, suffix []int) bool {
	if len(suffix) > len(shape) {
		return false
	}
	return slices.Equal(shape[len(shape)-len(suffix):], suffix)
}
