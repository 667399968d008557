package nn

import (
	"fmt"
	"math"

	"github.com/Wyndegarde/Maters-Project/tensor"
)

// CrossEntropyLoss is softmax followed by negative log-likelihood, summed over the batch.
type CrossEntropyLoss struct{}

// Forward returns the summed loss of logits [batch, classes] against integer labels
// and the gradient with respect to the logits: softmax - one_hot.
func (c *CrossEntropyLoss) Forward(logits *tensor.Tensor, labels []int) (float64, *tensor.Tensor, error) {
	probs, err := Softmax(logits)
	if err != nil {
		return 0, nil, err
	}
	rows, cols := probs.Shape[0], probs.Shape[1]
	if len(labels) != rows {
		return 0, nil, fmt.Errorf("%w: %d labels for batch %d", tensor.ErrShapeMismatch, len(labels), rows)
	}
	loss := 0.0
	grad := probs.Clone()
	for r, y := range labels {
		if y < 0 || y >= cols {
			return 0, nil, fmt.Errorf("label %d out of range [0, %d)", y, cols)
		}
		loss -= math.Log(math.Max(probs.Data[r*cols+y], 1e-300))
		grad.Data[r*cols+y] -= 1
	}
	return loss, grad, nil
}

// NLLLoss is the negative log-likelihood of log-probabilities, summed over the batch.
type NLLLoss struct{}

// Forward returns the loss and its gradient with respect to logProbs.
func (n *NLLLoss) Forward(logProbs *tensor.Tensor, labels []int) (float64, *tensor.Tensor, error) {
	if len(logProbs.Shape) != 2 || logProbs.Shape[0] != len(labels) {
		return 0, nil, fmt.Errorf("%w: log-probs %v for %d labels", tensor.ErrShapeMismatch, logProbs.Shape, len(labels))
	}
	cols := logProbs.Shape[1]
	loss := 0.0
	grad := tensor.New(logProbs.Shape...)
	for r, y := range labels {
		if y < 0 || y >= cols {
			return 0, nil, fmt.Errorf("label %d out of range [0, %d)", y, cols)
		}
		loss -= logProbs.Data[r*cols+y]
		grad.Data[r*cols+y] = -1
	}
	return loss, grad, nil
}

// Softmax applies the softmax function to each row of a [batch, classes] tensor.
// A 1-D tensor is treated as a single row.
func Softmax(logits *tensor.Tensor) (*tensor.Tensor, error) {
	rows, cols := 1, len(logits.Data)
	switch len(logits.Shape) {
	case 1:
	case 2:
		rows, cols = logits.Shape[0], logits.Shape[1]
	default:
		return nil, fmt.Errorf("%w: softmax expects [batch, classes], got %v", tensor.ErrShapeMismatch, logits.Shape)
	}
	if cols == 0 {
		return nil, fmt.Errorf("%w: softmax over zero classes", tensor.ErrShapeMismatch)
	}
	softmax := tensor.New(rows, cols)
	for r := 0; r < rows; r++ {
		row := logits.Data[r*cols : (r+1)*cols]
		maxLogit := row[0]
		for _, v := range row {
			if v > maxLogit {
				maxLogit = v
			}
		}
		expSum := 0.0
		for c, v := range row {
			e := math.Exp(v - maxLogit)
			softmax.Data[r*cols+c] = e
			expSum += e
		}
		for c := range row {
			softmax.Data[r*cols+c] /= expSum
		}
	}
	return softmax, nil
}

// Argmax returns the index of the largest entry of each row.
func Argmax(x *tensor.Tensor) []int {
	rows, cols := 1, len(x.Data)
	if len(x.Shape) == 2 {
		rows, cols = x.Shape[0], x.Shape[1]
	}
	out := make([]int, rows)
	for r := range out {
		best := 0
		for c := 1; c < cols; c++ {
			if x.Data[r*cols+c] > x.Data[r*cols+best] {
				best = c
			}
		}
		out[r] = best
	}
	return out
}
