package layers

import (
	"fmt"

	"github.com/Wyndegarde/Maters-Project/tensor"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Linear is a fully-connected layer computing y = x·Wᵀ + B for x of shape [batch, inDim].
type Linear struct {
	W, B *tensor.Tensor // W: [outDim, inDim], B: [outDim]

	gradW, gradB *tensor.Tensor

	lastInput *tensor.Tensor
}

// NewLinear(inDim→outDim) allocates zero weights.
func NewLinear(inDim, outDim int) *Linear {
	return &Linear{
		W:     tensor.New(outDim, inDim),
		B:     tensor.New(outDim),
		gradW: tensor.New(outDim, inDim),
		gradB: tensor.New(outDim),
	}
}

// Init draws weights and bias from Uniform(±1/sqrt(inDim)).
func (l *Linear) Init(src rand.Source) {
	initUniform(l.W, l.InDim(), src)
	initUniform(l.B, l.InDim(), src)
}

func (l *Linear) InDim() int  { return l.W.Shape[1] }
func (l *Linear) OutDim() int { return l.W.Shape[0] }

func (l *Linear) batchOf(x *tensor.Tensor) (int, error) {
	if len(x.Shape) != 2 || x.Shape[1] != l.InDim() {
		return 0, fmt.Errorf("%w: Linear expects [batch, %d], got %v", tensor.ErrShapeMismatch, l.InDim(), x.Shape)
	}
	if x.Shape[0] == 0 {
		return 0, fmt.Errorf("%w: Linear got an empty batch", tensor.ErrShapeMismatch)
	}
	return x.Shape[0], nil
}

// ForwardPlaintext computes y = x·Wᵀ + B without caching.
func (l *Linear) ForwardPlaintext(x *tensor.Tensor) (*tensor.Tensor, error) {
	batch, err := l.batchOf(x)
	if err != nil {
		return nil, err
	}
	inDim, outDim := l.InDim(), l.OutDim()
	out := tensor.New(batch, outDim)

	xm := mat.NewDense(batch, inDim, x.Data)
	wm := mat.NewDense(outDim, inDim, l.W.Data)
	ym := mat.NewDense(batch, outDim, out.Data)
	ym.Mul(xm, wm.T())

	// Broadcast bias across batch
	for b := 0; b < batch; b++ {
		row := out.Data[b*outDim : (b+1)*outDim]
		for j := range row {
			row[j] += l.B.Data[j]
		}
	}
	return out, nil
}

// BackwardFrom accumulates dL/dW = gradOutᵀ·x and dL/dB, and returns dL/dx = gradOut·W.
func (l *Linear) BackwardFrom(x, gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	batch, err := l.batchOf(x)
	if err != nil {
		return nil, err
	}
	inDim, outDim := l.InDim(), l.OutDim()
	if len(gradOut.Shape) != 2 || gradOut.Shape[0] != batch || gradOut.Shape[1] != outDim {
		return nil, fmt.Errorf("%w: Linear gradOut %v, want [%d, %d]", tensor.ErrShapeMismatch, gradOut.Shape, batch, outDim)
	}

	xm := mat.NewDense(batch, inDim, x.Data)
	gm := mat.NewDense(batch, outDim, gradOut.Data)
	wm := mat.NewDense(outDim, inDim, l.W.Data)

	var dW mat.Dense
	dW.Mul(gm.T(), xm)
	gw := mat.NewDense(outDim, inDim, l.gradW.Data)
	gw.Add(gw, &dW)

	for b := 0; b < batch; b++ {
		for j := 0; j < outDim; j++ {
			l.gradB.Data[j] += gradOut.Data[b*outDim+j]
		}
	}

	gradIn := tensor.New(x.Shape...)
	gi := mat.NewDense(batch, inDim, gradIn.Data)
	gi.Mul(gm, wm)
	return gradIn, nil
}

// Forward processes the input through the layer and caches it for Backward.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	l.lastInput = x
	return l.ForwardPlaintext(x)
}

// Backward computes gradients for the input cached by the last Forward.
func (l *Linear) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.lastInput == nil {
		return nil, fmt.Errorf("no cached input for backward pass")
	}
	return l.BackwardFrom(l.lastInput, gradOut)
}

// Update applies the accumulated gradients to the weights.
func (l *Linear) Update(learningRate float64) error {
	for i := range l.W.Data {
		l.W.Data[i] -= learningRate * l.gradW.Data[i]
	}
	for j := range l.B.Data {
		l.B.Data[j] -= learningRate * l.gradB.Data[j]
	}
	return nil
}

// ZeroGrad clears the accumulated gradients.
func (l *Linear) ZeroGrad() {
	l.gradW.Zero()
	l.gradB.Zero()
}

func (l *Linear) Params() []*tensor.Tensor { return []*tensor.Tensor{l.W, l.B} }
func (l *Linear) Grads() []*tensor.Tensor  { return []*tensor.Tensor{l.gradW, l.gradB} }

func (l *Linear) Tag() string {
	return fmt.Sprintf("Linear_%d_%d", l.InDim(), l.OutDim())
}
