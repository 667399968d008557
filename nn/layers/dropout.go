package layers

import (
	"fmt"

	"github.com/Wyndegarde/Maters-Project/tensor"

	"golang.org/x/exp/rand"
)

// Dropout zeroes each element with probability p during training and scales
// survivors by 1/(1-p). In evaluation mode it is the identity.
type Dropout struct {
	p        float64
	training bool
	rng      *rand.Rand

	lastMask *tensor.Tensor
}

// NewDropout creates a dropout layer in training mode drawing masks from src.
func NewDropout(p float64, src rand.Source) (*Dropout, error) {
	if p < 0 || p > 1 {
		return nil, fmt.Errorf("dropout probability %v outside [0, 1]", p)
	}
	return &Dropout{p: p, training: true, rng: rand.New(src)}, nil
}

// SetTraining switches between training and evaluation mode.
func (d *Dropout) SetTraining(training bool) { d.training = training }

// Training reports whether masks are being applied.
func (d *Dropout) Training() bool { return d.training }

// P returns the drop probability.
func (d *Dropout) P() float64 { return d.p }

// ForwardPlain applies a fresh mask. The returned mask is nil when the layer
// is the identity (evaluation mode or p == 0).
func (d *Dropout) ForwardPlain(x *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	if !d.training || d.p == 0 {
		return x.Clone(), nil
	}
	mask := tensor.New(x.Shape...)
	out := tensor.New(x.Shape...)
	if d.p >= 1 {
		return out, mask
	}
	scale := 1 / (1 - d.p)
	for i, v := range x.Data {
		if d.rng.Float64() >= d.p {
			mask.Data[i] = scale
			out.Data[i] = v * scale
		}
	}
	return out, mask
}

// BackwardFrom multiplies grad by the mask produced in ForwardPlain.
func (d *Dropout) BackwardFrom(mask, grad *tensor.Tensor) (*tensor.Tensor, error) {
	if mask == nil {
		return grad.Clone(), nil
	}
	if err := tensor.CheckShape(mask, grad); err != nil {
		return nil, fmt.Errorf("dropout backward: %w", err)
	}
	out := tensor.New(grad.Shape...)
	for i, g := range grad.Data {
		out.Data[i] = g * mask.Data[i]
	}
	return out, nil
}

func (d *Dropout) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, mask := d.ForwardPlain(x)
	d.lastMask = mask
	return out, nil
}

func (d *Dropout) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	return d.BackwardFrom(d.lastMask, grad)
}

func (d *Dropout) Update(float64) error { return nil }

func (d *Dropout) Tag() string {
	return fmt.Sprintf("Dropout_%.2f", d.p)
}
