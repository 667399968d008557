package snn

import (
	"fmt"

	"github.com/Wyndegarde/Maters-Project/tensor"
)

// FrameSource supplies the input frame presented at each time step.
type FrameSource interface {
	Steps() int
	Batch() int
	// Frame returns the [batch, C, H, W] input for step t.
	Frame(t int) (*tensor.Tensor, error)
}

type constantFrames struct {
	frame *tensor.Tensor
	steps int
}

// ConstantFrames presents the same [batch, C, H, W] frame at every one of the
// given steps.
func ConstantFrames(x *tensor.Tensor, steps int) (FrameSource, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("%w: frame must be [batch, C, H, W], got %v", ErrShapeMismatch, x.Shape)
	}
	if steps <= 0 {
		return nil, fmt.Errorf("steps must be positive, got %d", steps)
	}
	return &constantFrames{frame: x, steps: steps}, nil
}

func (c *constantFrames) Steps() int { return c.steps }
func (c *constantFrames) Batch() int { return c.frame.Shape[0] }

func (c *constantFrames) Frame(t int) (*tensor.Tensor, error) {
	if t < 0 || t >= c.steps {
		return nil, fmt.Errorf("step %d out of range [0, %d)", t, c.steps)
	}
	return c.frame, nil
}

type sequenceFrames struct {
	seq *tensor.Tensor // [T, batch, C, H, W]
}

// SequenceFrames slices a pre-replicated or time-varying input into steps.
// x is either [T*batch, C, H, W], viewed as T consecutive groups of batch
// frames, or [T, batch, C, H, W].
func SequenceFrames(x *tensor.Tensor, steps, batch int) (FrameSource, error) {
	if steps <= 0 || batch <= 0 {
		return nil, fmt.Errorf("steps and batch must be positive, got %d and %d", steps, batch)
	}
	switch len(x.Shape) {
	case 4:
		if x.Shape[0] != steps*batch {
			return nil, fmt.Errorf("%w: leading dimension %d is not %d steps x %d batch", ErrShapeMismatch, x.Shape[0], steps, batch)
		}
		seq, err := x.Reshape(steps, batch, x.Shape[1], x.Shape[2], x.Shape[3])
		if err != nil {
			return nil, err
		}
		return &sequenceFrames{seq: seq}, nil
	case 5:
		if x.Shape[0] != steps || x.Shape[1] != batch {
			return nil, fmt.Errorf("%w: sequence %v, want [%d, %d, ...]", ErrShapeMismatch, x.Shape, steps, batch)
		}
		return &sequenceFrames{seq: x}, nil
	default:
		return nil, fmt.Errorf("%w: sequence must be 4-D or 5-D, got %v", ErrShapeMismatch, x.Shape)
	}
}

func (s *sequenceFrames) Steps() int { return s.seq.Shape[0] }
func (s *sequenceFrames) Batch() int { return s.seq.Shape[1] }

func (s *sequenceFrames) Frame(t int) (*tensor.Tensor, error) {
	return s.seq.Index(t)
}
