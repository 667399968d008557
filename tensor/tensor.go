package tensor

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch reports tensors whose shapes disagree where they must match.
var ErrShapeMismatch = errors.New("shape mismatch")

// Tensor is a simple n-D array backed by a flat []float64.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a zero Tensor of given shape (product of dims = len(Data)).
func New(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float64, Volume(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// NewWithData creates a 1-D tensor from existing data slice.
func NewWithData(data []float64) *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: []int{len(data)},
	}
}

// FromData copies data into a tensor of the given shape.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	if Volume(shape) != len(data) {
		return nil, fmt.Errorf("%w: %d values do not fill shape %v", ErrShapeMismatch, len(data), shape)
	}
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: append([]int(nil), shape...),
	}, nil
}

// Volume is the number of elements a tensor of the given shape holds.
func Volume(shape []int) int {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return total
}

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Zero sets every element to 0 in place.
func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// Reshape returns a tensor sharing t's data under a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if Volume(shape) != len(t.Data) {
		return nil, fmt.Errorf("%w: cannot view %v as %v", ErrShapeMismatch, t.Shape, shape)
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}, nil
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// CheckShape returns ErrShapeMismatch unless a and b have identical shapes.
func CheckShape(a, b *Tensor) error {
	if !SameShape(a, b) {
		return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	return nil
}

// Add returns a+b (same shape), or error if shapes differ.
func Add(a, b *Tensor) (*Tensor, error) {
	if err := CheckShape(a, b); err != nil {
		return nil, err
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}

// Index returns a copy of the i-th slice along the leading axis.
func (t *Tensor) Index(i int) (*Tensor, error) {
	if len(t.Shape) == 0 {
		return nil, fmt.Errorf("%w: cannot index a scalar", ErrShapeMismatch)
	}
	if i < 0 || i >= t.Shape[0] {
		return nil, fmt.Errorf("index %d out of range for leading dimension %d", i, t.Shape[0])
	}
	inner := t.Shape[1:]
	size := Volume(inner)
	out := New(inner...)
	copy(out.Data, t.Data[i*size:(i+1)*size])
	return out, nil
}

// Stack joins equally shaped tensors along a new leading axis.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, errors.New("stack of zero tensors")
	}
	inner := ts[0].Shape
	size := len(ts[0].Data)
	out := New(append([]int{len(ts)}, inner...)...)
	for i, x := range ts {
		if err := CheckShape(ts[0], x); err != nil {
			return nil, fmt.Errorf("stack element %d: %w", i, err)
		}
		copy(out.Data[i*size:], x.Data)
	}
	return out, nil
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	s := 0.0
	for _, v := range t.Data {
		s += v
	}
	return s
}

func (t *Tensor) offset(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}

// At returns the element at the given indices.
// For a 4D tensor [a, b, c, d], At(i, j, k, l) returns the element at position [i][j][k][l].
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.offset("At", indices)]
}

// Set sets the element at the given indices to the given value.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.offset("Set", indices)] = value
}
