package snn

import (
	"fmt"

	"github.com/Wyndegarde/Maters-Project/tensor"
)

// Leaky is a leaky integrate-and-fire unit with subtract-on-spike reset.
//
//	candidate = beta*prior + input
//	spike     = H(candidate - threshold)
//	potential = candidate - spike*threshold
//
// The unit holds no membrane state; potentials are passed in and returned.
type Leaky struct {
	Beta      float64
	Threshold float64
	Surrogate Surrogate

	// ResetGrad propagates gradient through the reset term. Off by default:
	// the reset is a constant in the backward pass.
	ResetGrad bool
}

// NewLeaky validates beta in [0, 1] and a positive threshold. A nil surrogate
// selects FastSigmoid with slope 25.
func NewLeaky(beta, threshold float64, sg Surrogate) (*Leaky, error) {
	if beta < 0 || beta > 1 {
		return nil, fmt.Errorf("%w: beta %v outside [0, 1]", ErrInvalidConfig, beta)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: threshold %v must be positive", ErrInvalidConfig, threshold)
	}
	if sg == nil {
		sg = FastSigmoid{Slope: 25}
	}
	return &Leaky{Beta: beta, Threshold: threshold, Surrogate: sg}, nil
}

// InitPotential returns a fresh all-zero potential. Every call allocates, so
// no run can observe another run's state.
func (l *Leaky) InitPotential(shape ...int) *tensor.Tensor {
	return tensor.New(shape...)
}

// Step advances the potential by one time step.
func (l *Leaky) Step(input, prior *tensor.Tensor) (spike, potential *tensor.Tensor, err error) {
	spike, potential, _, err = l.step(input, prior, false)
	return spike, potential, err
}

// StepRecorded is Step that also returns the pre-reset candidate potential,
// which StepGrad needs.
func (l *Leaky) StepRecorded(input, prior *tensor.Tensor) (spike, potential, candidate *tensor.Tensor, err error) {
	return l.step(input, prior, true)
}

func (l *Leaky) step(input, prior *tensor.Tensor, keep bool) (spike, potential, candidate *tensor.Tensor, err error) {
	if err := tensor.CheckShape(input, prior); err != nil {
		return nil, nil, nil, fmt.Errorf("leaky step: input current vs potential: %w", err)
	}
	spike = tensor.New(input.Shape...)
	potential = tensor.New(input.Shape...)
	if keep {
		candidate = tensor.New(input.Shape...)
	}
	thr := l.Threshold
	for i, cur := range input.Data {
		c := l.Beta*prior.Data[i] + cur
		s := l.Surrogate.Fire(c - thr)
		spike.Data[i] = s
		potential.Data[i] = c - s*thr
		if keep {
			candidate.Data[i] = c
		}
	}
	return spike, potential, candidate, nil
}

// StepGrad backpropagates one step. gradSpike and gradPotential are the loss
// gradients of this step's spike and new potential; either may be nil. With
// the reset treated as a constant,
//
//	dL/dcandidate = gradSpike*surrogate'(candidate - threshold) + gradPotential
//	dL/dinput     = dL/dcandidate
//	dL/dprior     = beta * dL/dcandidate
//
// With ResetGrad set, gradPotential is scaled by 1 - threshold*surrogate'.
func (l *Leaky) StepGrad(candidate, gradSpike, gradPotential *tensor.Tensor) (gradInput, gradPrior *tensor.Tensor, err error) {
	for _, g := range []*tensor.Tensor{gradSpike, gradPotential} {
		if g != nil && len(g.Data) != len(candidate.Data) {
			return nil, nil, fmt.Errorf("%w: leaky grad %v for candidate %v", ErrShapeMismatch, g.Shape, candidate.Shape)
		}
	}
	gradInput = tensor.New(candidate.Shape...)
	gradPrior = tensor.New(candidate.Shape...)
	for i, c := range candidate.Data {
		d := l.Surrogate.Derivative(c - l.Threshold)
		g := 0.0
		if gradSpike != nil {
			g = gradSpike.Data[i] * d
		}
		if gradPotential != nil {
			if l.ResetGrad {
				g += gradPotential.Data[i] * (1 - l.Threshold*d)
			} else {
				g += gradPotential.Data[i]
			}
		}
		gradInput.Data[i] = g
		gradPrior.Data[i] = l.Beta * g
	}
	return gradInput, gradPrior, nil
}
