package layers

import (
	"math"
	"math/rand"
	"testing"

	"github.com/Wyndegarde/Maters-Project/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationReLU(t *testing.T) {
	act, err := NewActivation("ReLU")
	require.NoError(t, err)
	x := tensor.NewWithData([]float64{-2, 0, 3})
	out, err := act.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 3}, out.Data)

	g, err := act.Backward(tensor.NewWithData([]float64{5, 5, 5}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 5}, g.Data)
}

func TestActivationUnknown(t *testing.T) {
	_, err := NewActivation("ReLU3")
	assert.Error(t, err)
}

func TestLogSoftmaxRowsNormalise(t *testing.T) {
	x, _ := tensor.FromData([]float64{1, 2, 3, 1000, 1000, 1000}, 2, 3)
	out, err := LogSoftmaxPlain(x)
	require.NoError(t, err)
	for r := 0; r < 2; r++ {
		sum := 0.0
		for c := 0; c < 3; c++ {
			v := out.At(r, c)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			sum += math.Exp(v)
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	}
	assert.InDelta(t, -math.Log(3), out.At(1, 0), 1e-12)
}

func TestLogSoftmaxBackwardMatchesNumeric(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	x := randTensor(rng, 2, 4)
	r := randTensor(rng, 2, 4)
	ls := NewLogSoftmax()
	_, err := ls.Forward(x)
	require.NoError(t, err)
	g, err := ls.Backward(r)
	require.NoError(t, err)

	loss := func() float64 {
		o, err := LogSoftmaxPlain(x)
		require.NoError(t, err)
		return dot(o, r)
	}
	for i := range x.Data {
		assert.InDelta(t, numericGrad(loss, &x.Data[i]), g.Data[i], 1e-6)
	}
}

func TestFlatten_Plain(t *testing.T) {
	f := NewFlatten()
	input := tensor.New(2, 3, 2, 2)
	for i := range input.Data {
		input.Data[i] = float64(i)
	}
	out, err := f.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 12}, out.Shape)
	assert.Equal(t, input.Data, out.Data)

	back, err := f.Backward(out)
	require.NoError(t, err)
	assert.Equal(t, input.Shape, back.Shape)
}
