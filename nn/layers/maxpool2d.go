package layers

import (
	"fmt"
	"math"

	"github.com/Wyndegarde/Maters-Project/tensor"
)

// MaxPool2D takes the maximum over kernel x kernel windows of [batch, C, H, W]
// tensors. Padded cells never win a window.
type MaxPool2D struct {
	kernel, stride, padding int

	lastShape  []int
	lastArgmax []int
}

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(kernel, stride, padding int) *MaxPool2D {
	return &MaxPool2D{kernel: kernel, stride: stride, padding: padding}
}

// GetOutputShape returns the spatial output size for an inH x inW input.
func (m *MaxPool2D) GetOutputShape(inH, inW int) (outH, outW int) {
	return OutputSize(inH, m.kernel, m.stride, m.padding), OutputSize(inW, m.kernel, m.stride, m.padding)
}

// ForwardPlain pools x and returns, for every output cell, the flat input
// index that produced it.
func (m *MaxPool2D) ForwardPlain(x *tensor.Tensor) (*tensor.Tensor, []int, error) {
	if len(x.Shape) != 4 {
		return nil, nil, fmt.Errorf("%w: MaxPool2D expects [batch, chan, H, W], got %v", tensor.ErrShapeMismatch, x.Shape)
	}
	if 2*m.padding > m.kernel {
		return nil, nil, fmt.Errorf("MaxPool2D: padding %d exceeds half of kernel %d", m.padding, m.kernel)
	}
	batch, channels, height, width := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	outH, outW := m.GetOutputShape(height, width)
	if outH <= 0 || outW <= 0 {
		return nil, nil, fmt.Errorf("%w: MaxPool2D output %dx%d from input %dx%d", tensor.ErrShapeMismatch, outH, outW, height, width)
	}

	out := tensor.New(batch, channels, outH, outW)
	argmax := make([]int, len(out.Data))
	for bc := 0; bc < batch*channels; bc++ {
		inBase := bc * height * width
		outBase := bc * outH * outW
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				best := math.Inf(-1)
				bestIdx := -1
				for dy := 0; dy < m.kernel; dy++ {
					iy := oy*m.stride + dy - m.padding
					if iy < 0 || iy >= height {
						continue
					}
					for dx := 0; dx < m.kernel; dx++ {
						ix := ox*m.stride + dx - m.padding
						if ix < 0 || ix >= width {
							continue
						}
						idx := inBase + iy*width + ix
						if x.Data[idx] > best {
							best = x.Data[idx]
							bestIdx = idx
						}
					}
				}
				pos := outBase + oy*outW + ox
				out.Data[pos] = best
				argmax[pos] = bestIdx
			}
		}
	}
	return out, argmax, nil
}

// BackwardFrom routes gradOut back to the argmax positions of an input of the given shape.
func (m *MaxPool2D) BackwardFrom(inShape []int, argmax []int, gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if len(argmax) != len(gradOut.Data) {
		return nil, fmt.Errorf("%w: MaxPool2D gradOut has %d values for %d pooled cells", tensor.ErrShapeMismatch, len(gradOut.Data), len(argmax))
	}
	gradIn := tensor.New(inShape...)
	for pos, idx := range argmax {
		if idx >= 0 {
			gradIn.Data[idx] += gradOut.Data[pos]
		}
	}
	return gradIn, nil
}

func (m *MaxPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, argmax, err := m.ForwardPlain(x)
	if err != nil {
		return nil, err
	}
	m.lastShape = append([]int(nil), x.Shape...)
	m.lastArgmax = argmax
	return out, nil
}

func (m *MaxPool2D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if m.lastArgmax == nil {
		return nil, fmt.Errorf("no cached argmax for backward pass")
	}
	return m.BackwardFrom(m.lastShape, m.lastArgmax, gradOut)
}

func (m *MaxPool2D) Update(float64) error { return nil }

func (m *MaxPool2D) Tag() string {
	return fmt.Sprintf("MaxPool2D_%d_%d_%d", m.kernel, m.stride, m.padding)
}
