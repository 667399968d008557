package layers

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/Wyndegarde/Maters-Project/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearForwardPlaintext(t *testing.T) {
	W := [][]float64{
		{1, 2, 3, 4},
		{2, 0, 1, 1},
		{0, 1, 0, 1},
	}
	b := []float64{10, 20, 30}
	lin := NewLinear(4, 3)
	for j := range W {
		for i := range W[j] {
			lin.W.Set(W[j][i], j, i)
		}
		lin.B.Data[j] = b[j]
	}

	x, err := tensor.FromData([]float64{1, 2, 3, 4, 0, 0, 0, 1}, 2, 4)
	require.NoError(t, err)
	out, err := lin.ForwardPlaintext(x)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, out.Shape)
	assert.Equal(t, []float64{40, 29, 36, 14, 21, 31}, out.Data)
}

func TestLinearRejectsVectorInput(t *testing.T) {
	lin := NewLinear(2, 1)
	_, err := lin.ForwardPlaintext(tensor.NewWithData([]float64{2, 5}))
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))

	x, _ := tensor.FromData([]float64{2, 5}, 1, 2)
	_, err = lin.BackwardFrom(x, tensor.NewWithData([]float64{1}))
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch), "gradOut must be [batch, out]")
}

func TestLinearShapeMismatch(t *testing.T) {
	lin := NewLinear(4, 2)
	_, err := lin.ForwardPlaintext(tensor.New(2, 3))
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
	_, err = lin.BackwardFrom(tensor.New(2, 4), tensor.New(3, 2))
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
}

func TestLinearGradientsMatchNumeric(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	lin := NewLinear(6, 4)
	lin.Init(NewSource(11))
	x := randTensor(rng, 3, 6)
	r := randTensor(rng, 3, 4)

	loss := func() float64 {
		o, err := lin.ForwardPlaintext(x)
		require.NoError(t, err)
		return dot(o, r)
	}

	gradIn, err := lin.BackwardFrom(x, r)
	require.NoError(t, err)
	for i := range lin.W.Data {
		assert.InDelta(t, numericGrad(loss, &lin.W.Data[i]), lin.gradW.Data[i], 1e-6, "weight %d", i)
	}
	for i := range lin.B.Data {
		assert.InDelta(t, numericGrad(loss, &lin.B.Data[i]), lin.gradB.Data[i], 1e-6, "bias %d", i)
	}
	for i := range x.Data {
		assert.InDelta(t, numericGrad(loss, &x.Data[i]), gradIn.Data[i], 1e-6, "input %d", i)
	}
}

func TestLinearUpdate(t *testing.T) {
	lin := NewLinear(1, 1)
	x, _ := tensor.FromData([]float64{2}, 1, 1)
	_, err := lin.Forward(x)
	require.NoError(t, err)
	g, _ := tensor.FromData([]float64{1}, 1, 1)
	_, err = lin.Backward(g)
	require.NoError(t, err)
	require.NoError(t, lin.Update(0.5))
	assert.Equal(t, -1.0, lin.W.Data[0])
	assert.Equal(t, -0.5, lin.B.Data[0])
}

func TestLinearInitBounded(t *testing.T) {
	lin := NewLinear(16, 8)
	lin.Init(NewSource(1))
	for _, v := range lin.W.Data {
		assert.True(t, v >= -0.25 && v <= 0.25, "weight %v outside ±1/sqrt(16)", v)
	}

	again := NewLinear(16, 8)
	again.Init(NewSource(1))
	assert.Equal(t, lin.W.Data, again.W.Data, "same seed must give the same weights")
}
