package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShape(t *testing.T) {
	t1 := New(2, 3)
	if len(t1.Data) != 6 {
		t.Fatalf("expected 6 elements, got %d", len(t1.Data))
	}
	if len(t1.Shape) != 2 || t1.Shape[0] != 2 || t1.Shape[1] != 3 {
		t.Fatalf("unexpected shape: %v", t1.Shape)
	}
}

func TestAdd(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2, 3}, Shape: []int{3}}
	b := &Tensor{Data: []float64{4, 5, 6}, Shape: []int{3}}
	c, err := Add(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{5, 7, 9}
	for i := range want {
		if c.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, c.Data[i], want[i])
		}
	}
}

func TestAddShapeMismatch(t *testing.T) {
	a := New(2, 3)
	b := New(3, 2)
	_, err := Add(a, b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestReshapeSharesData(t *testing.T) {
	a := New(2, 3)
	v, err := a.Reshape(3, 2)
	require.NoError(t, err)
	v.Data[5] = 7
	assert.Equal(t, 7.0, a.At(1, 2))

	_, err = a.Reshape(4, 2)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestStackAndIndex(t *testing.T) {
	a, _ := FromData([]float64{1, 2}, 2)
	b, _ := FromData([]float64{3, 4}, 2)
	s, err := Stack([]*Tensor{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, s.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4}, s.Data)

	row, err := s.Index(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, row.Data)

	_, err = Stack([]*Tensor{a, New(3)})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestAtSetPanicsOutOfBounds(t *testing.T) {
	a := New(2, 2)
	a.Set(3, 1, 0)
	assert.Equal(t, 3.0, a.At(1, 0))
	assert.Panics(t, func() { a.At(2, 0) })
	assert.Panics(t, func() { a.Set(1, 0) })
}
