package nn

import (
	"fmt"

	"github.com/Wyndegarde/Maters-Project/tensor"
)

// Module defines a single layer/unit in the network.
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	// Backward computes gradients and propagates them.
	// It takes the gradient of the loss with respect to the module's output,
	// and returns the gradient of the loss with respect to the module's input.
	Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error)
	Update(learningRate float64) error
	Tag() string
}

// Trainable is implemented by modules owning parameters.
type Trainable interface {
	Params() []*tensor.Tensor
	Grads() []*tensor.Tensor
	ZeroGrad()
}

// modeSetter is implemented by modules that behave differently in training (dropout).
type modeSetter interface {
	SetTraining(training bool)
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	var err error
	for i, layer := range s.Layers {
		out, err = layer.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s) forward: %w", i, layer.Tag(), err)
		}
	}
	return out, nil
}

// Backward applies Backward in reverse order.
func (s *Sequential) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	out := grad
	var err error
	for i := len(s.Layers) - 1; i >= 0; i-- {
		out, err = s.Layers[i].Backward(out)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s) backward: %w", i, s.Layers[i].Tag(), err)
		}
	}
	return out, nil
}

// Update applies every layer's accumulated gradients.
func (s *Sequential) Update(learningRate float64) error {
	for i, layer := range s.Layers {
		if err := layer.Update(learningRate); err != nil {
			return fmt.Errorf("layer %d (%s) update: %w", i, layer.Tag(), err)
		}
	}
	return nil
}

// ZeroGrad clears gradients of every trainable layer.
func (s *Sequential) ZeroGrad() {
	for _, layer := range s.Layers {
		if tr, ok := layer.(Trainable); ok {
			tr.ZeroGrad()
		}
	}
}

// SetTraining toggles training-only behaviour such as dropout.
func (s *Sequential) SetTraining(training bool) {
	for _, layer := range s.Layers {
		if m, ok := layer.(modeSetter); ok {
			m.SetTraining(training)
		}
	}
}

// Trainables returns the parameterised layers keyed "<index>_<tag>".
func (s *Sequential) Trainables() (names []string, layers []Trainable) {
	for i, layer := range s.Layers {
		if tr, ok := layer.(Trainable); ok {
			names = append(names, fmt.Sprintf("%d_%s", i, layer.Tag()))
			layers = append(layers, tr)
		}
	}
	return names, layers
}
