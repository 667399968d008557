package layers

import (
	"fmt"
	"math"

	"github.com/Wyndegarde/Maters-Project/tensor"
)

// Func is an element-wise nonlinearity with its derivative.
type Func struct {
	Name  string
	Apply func(x float64) float64
	Deriv func(x float64) float64
}

// SupportedActivations lists the element-wise activations by name.
var SupportedActivations = map[string]Func{
	"ReLU": {
		Name: "ReLU",
		Apply: func(x float64) float64 {
			if x > 0 {
				return x
			}
			return 0
		},
		Deriv: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
	},
}

// Activation is a layer that applies an element-wise function.
type Activation struct {
	fn        Func
	lastInput *tensor.Tensor
}

// NewActivation creates a new activation layer.
func NewActivation(name string) (*Activation, error) {
	fn, ok := SupportedActivations[name]
	if !ok {
		return nil, fmt.Errorf("unsupported activation: %s", name)
	}
	return &Activation{fn: fn}, nil
}

func (a *Activation) forwardPlain(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		out.Data[i] = a.fn.Apply(v)
	}
	return out
}

func (a *Activation) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	a.lastInput = x
	return a.forwardPlain(x), nil
}

func (a *Activation) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if a.lastInput == nil {
		return nil, fmt.Errorf("no cached input for backward pass")
	}
	if len(gradOut.Data) != len(a.lastInput.Data) {
		return nil, fmt.Errorf("%w: activation gradOut %v, input %v", tensor.ErrShapeMismatch, gradOut.Shape, a.lastInput.Shape)
	}
	out := tensor.New(a.lastInput.Shape...)
	for i, v := range a.lastInput.Data {
		out.Data[i] = gradOut.Data[i] * a.fn.Deriv(v)
	}
	return out, nil
}

func (a *Activation) Update(float64) error { return nil }

func (a *Activation) Tag() string { return a.fn.Name }

// LogSoftmax normalises the last axis of a [batch, classes] tensor into log-probabilities.
type LogSoftmax struct {
	lastOutput *tensor.Tensor
}

func NewLogSoftmax() *LogSoftmax { return &LogSoftmax{} }

// LogSoftmaxPlain computes log-softmax row by row with the max-shift for stability.
func LogSoftmaxPlain(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 {
		return nil, fmt.Errorf("%w: LogSoftmax expects [batch, classes], got %v", tensor.ErrShapeMismatch, x.Shape)
	}
	rows, cols := x.Shape[0], x.Shape[1]
	out := tensor.New(rows, cols)
	for r := 0; r < rows; r++ {
		row := x.Data[r*cols : (r+1)*cols]
		maxV := math.Inf(-1)
		for _, v := range row {
			if v > maxV {
				maxV = v
			}
		}
		sum := 0.0
		for _, v := range row {
			sum += math.Exp(v - maxV)
		}
		lse := maxV + math.Log(sum)
		for c, v := range row {
			out.Data[r*cols+c] = v - lse
		}
	}
	return out, nil
}

func (s *LogSoftmax) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := LogSoftmaxPlain(x)
	if err != nil {
		return nil, err
	}
	s.lastOutput = out
	return out, nil
}

// Backward: dL/dx = g - softmax(x) * sum(g) per row.
func (s *LogSoftmax) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if s.lastOutput == nil {
		return nil, fmt.Errorf("no cached output for backward pass")
	}
	if err := tensor.CheckShape(s.lastOutput, gradOut); err != nil {
		return nil, err
	}
	rows, cols := gradOut.Shape[0], gradOut.Shape[1]
	out := tensor.New(rows, cols)
	for r := 0; r < rows; r++ {
		sum := 0.0
		for c := 0; c < cols; c++ {
			sum += gradOut.Data[r*cols+c]
		}
		for c := 0; c < cols; c++ {
			i := r*cols + c
			out.Data[i] = gradOut.Data[i] - math.Exp(s.lastOutput.Data[i])*sum
		}
	}
	return out, nil
}

func (s *LogSoftmax) Update(float64) error { return nil }

func (s *LogSoftmax) Tag() string { return "LogSoftmax" }
