package nn

import (
	"errors"
	"math"
	"testing"

	"github.com/Wyndegarde/Maters-Project/nn/layers"
	"github.com/Wyndegarde/Maters-Project/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmaxRows(t *testing.T) {
	x, _ := tensor.FromData([]float64{0, 0, 0, 1, 2, 3}, 2, 3)
	p, err := Softmax(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, p.Data[:3], 1e-12)
	assert.InDelta(t, 1.0, p.Data[3]+p.Data[4]+p.Data[5], 1e-12)
	assert.Greater(t, p.Data[5], p.Data[4])

	vec, err := Softmax(tensor.NewWithData([]float64{1000, 1000}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, vec.Shape)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, vec.Data, 1e-12)
}

func TestCrossEntropyForward(t *testing.T) {
	logits, _ := tensor.FromData([]float64{2, 0, 0, 0, 0, 0}, 2, 3)
	var ce CrossEntropyLoss
	loss, grad, err := ce.Forward(logits, []int{0, 2})
	require.NoError(t, err)

	p0 := math.Exp(2) / (math.Exp(2) + 2)
	assert.InDelta(t, -math.Log(p0)+math.Log(3), loss, 1e-12)
	assert.InDelta(t, p0-1, grad.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0/3-1, grad.At(1, 2), 1e-12)
	assert.InDelta(t, 0.0, grad.Sum(), 1e-12)

	_, _, err = ce.Forward(logits, []int{0})
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
	_, _, err = ce.Forward(logits, []int{0, 3})
	assert.Error(t, err)
}

// NLL on log-softmax output must agree with cross-entropy on the logits.
func TestNLLMatchesCrossEntropy(t *testing.T) {
	logits, _ := tensor.FromData([]float64{0.3, -1.2, 2.0, 0.5, 0.1, -0.4}, 2, 3)
	labels := []int{2, 1}

	ls := layers.NewLogSoftmax()
	logProbs, err := ls.Forward(logits)
	require.NoError(t, err)
	var nll NLLLoss
	lossN, gradN, err := nll.Forward(logProbs, labels)
	require.NoError(t, err)
	gradLogits, err := ls.Backward(gradN)
	require.NoError(t, err)

	var ce CrossEntropyLoss
	lossC, gradC, err := ce.Forward(logits, labels)
	require.NoError(t, err)

	assert.InDelta(t, lossC, lossN, 1e-12)
	assert.InDeltaSlice(t, gradC.Data, gradLogits.Data, 1e-12)
}

func TestArgmax(t *testing.T) {
	x, _ := tensor.FromData([]float64{1, 5, 2, 7, 7, 0}, 2, 3)
	assert.Equal(t, []int{1, 0}, Argmax(x))
}
