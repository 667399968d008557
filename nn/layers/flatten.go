package layers

import (
	"fmt"

	"github.com/Wyndegarde/Maters-Project/tensor"
)

// Flatten layer: reshapes [batch, ...] to [batch, rest], keeping the batch axis.
type Flatten struct {
	lastShape []int
}

func NewFlatten() *Flatten { return &Flatten{} }

// FlattenPlain copies x into a [batch, rest] tensor.
func FlattenPlain(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) < 1 {
		return nil, fmt.Errorf("%w: cannot flatten a scalar", tensor.ErrShapeMismatch)
	}
	batch := x.Shape[0]
	y := tensor.New(batch, tensor.Volume(x.Shape[1:]))
	copy(y.Data, x.Data)
	return y, nil
}

func (f *Flatten) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	f.lastShape = append([]int(nil), x.Shape...)
	return FlattenPlain(x)
}

func (f *Flatten) Backward(g *tensor.Tensor) (*tensor.Tensor, error) {
	if f.lastShape == nil {
		return nil, fmt.Errorf("no cached shape for backward pass")
	}
	out := g.Clone()
	return out.Reshape(f.lastShape...)
}

func (f *Flatten) Update(float64) error { return nil }

func (f *Flatten) Tag() string {
	return "Flatten"
}
