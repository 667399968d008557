package layers

import (
	"fmt"
	"sync"

	"github.com/Wyndegarde/Maters-Project/tensor"

	"golang.org/x/exp/rand"
)

// Conv2D is a 2D convolutional layer over [batch, inChan, H, W] tensors.
type Conv2D struct {
	// Layer parameters
	inChan, outChan int // number of input/output channels
	kernel          int // square kernel size
	stride, padding int

	W *tensor.Tensor // weights: [outChan, inChan, kernel, kernel]
	B *tensor.Tensor // bias: [outChan]

	// Accumulated gradients, cleared by ZeroGrad
	gradW *tensor.Tensor
	gradB *tensor.Tensor

	// Cached input for Module-style Backward
	lastInput *tensor.Tensor
}

// NewConv2D creates a Conv2D layer with zero weights.
func NewConv2D(inChan, outChan, kernel, stride, padding int) *Conv2D {
	return &Conv2D{
		inChan:  inChan,
		outChan: outChan,
		kernel:  kernel,
		stride:  stride,
		padding: padding,
		W:       tensor.New(outChan, inChan, kernel, kernel),
		B:       tensor.New(outChan),
		gradW:   tensor.New(outChan, inChan, kernel, kernel),
		gradB:   tensor.New(outChan),
	}
}

// Init draws weights and bias from Uniform(±1/sqrt(inChan*kernel*kernel)).
func (c *Conv2D) Init(src rand.Source) {
	fanIn := c.inChan * c.kernel * c.kernel
	initUniform(c.W, fanIn, src)
	initUniform(c.B, fanIn, src)
}

// GetOutputShape returns the spatial output size for an inH x inW input.
func (c *Conv2D) GetOutputShape(inH, inW int) (outH, outW int) {
	return OutputSize(inH, c.kernel, c.stride, c.padding), OutputSize(inW, c.kernel, c.stride, c.padding)
}

// InChannels returns the number of input channels.
func (c *Conv2D) InChannels() int { return c.inChan }

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int { return c.outChan }

func (c *Conv2D) dims(input *tensor.Tensor) (batch, height, width int, err error) {
	if len(input.Shape) != 4 {
		return 0, 0, 0, fmt.Errorf("%w: Conv2D expects [batch, chan, H, W], got %v", tensor.ErrShapeMismatch, input.Shape)
	}
	if input.Shape[1] != c.inChan {
		return 0, 0, 0, fmt.Errorf("%w: Conv2D expects %d input channels, got %d", tensor.ErrShapeMismatch, c.inChan, input.Shape[1])
	}
	return input.Shape[0], input.Shape[2], input.Shape[3], nil
}

// ForwardPlain computes the convolution without caching anything on the layer.
// Batch elements are convolved concurrently; each writes a disjoint output slice.
func (c *Conv2D) ForwardPlain(input *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, height, width, err := c.dims(input)
	if err != nil {
		return nil, err
	}
	outH, outW := c.GetOutputShape(height, width)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("%w: Conv2D output %dx%d from input %dx%d", tensor.ErrShapeMismatch, outH, outW, height, width)
	}
	output := tensor.New(batchSize, c.outChan, outH, outW)

	k := c.kernel
	inPlane := height * width
	outPlane := outH * outW

	var wg sync.WaitGroup
	wg.Add(batchSize)
	for b := 0; b < batchSize; b++ {
		go func(b int) {
			defer wg.Done()
			in := input.Data[b*c.inChan*inPlane : (b+1)*c.inChan*inPlane]
			out := output.Data[b*c.outChan*outPlane : (b+1)*c.outChan*outPlane]
			for oc := 0; oc < c.outChan; oc++ {
				bias := c.B.Data[oc]
				for y := 0; y < outH; y++ {
					for x := 0; x < outW; x++ {
						sum := bias
						for ic := 0; ic < c.inChan; ic++ {
							wBase := (oc*c.inChan + ic) * k * k
							inBase := ic * inPlane
							for dy := 0; dy < k; dy++ {
								iy := y*c.stride + dy - c.padding
								if iy < 0 || iy >= height {
									continue
								}
								for dx := 0; dx < k; dx++ {
									ix := x*c.stride + dx - c.padding
									if ix < 0 || ix >= width {
										continue
									}
									sum += in[inBase+iy*width+ix] * c.W.Data[wBase+dy*k+dx]
								}
							}
						}
						out[oc*outPlane+y*outW+x] = sum
					}
				}
			}
		}(b)
	}
	wg.Wait()

	return output, nil
}

// BackwardFrom accumulates parameter gradients for the given input and
// returns the gradient with respect to that input.
func (c *Conv2D) BackwardFrom(input, gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, height, width, err := c.dims(input)
	if err != nil {
		return nil, err
	}
	outH, outW := c.GetOutputShape(height, width)
	want := []int{batchSize, c.outChan, outH, outW}
	if tensor.Volume(gradOut.Shape) != tensor.Volume(want) || len(gradOut.Shape) != 4 {
		return nil, fmt.Errorf("%w: Conv2D gradOut %v, want %v", tensor.ErrShapeMismatch, gradOut.Shape, want)
	}

	k := c.kernel
	inPlane := height * width
	outPlane := outH * outW
	inputGrad := tensor.New(input.Shape...)

	for b := 0; b < batchSize; b++ {
		in := input.Data[b*c.inChan*inPlane : (b+1)*c.inChan*inPlane]
		gin := inputGrad.Data[b*c.inChan*inPlane : (b+1)*c.inChan*inPlane]
		g := gradOut.Data[b*c.outChan*outPlane : (b+1)*c.outChan*outPlane]
		for oc := 0; oc < c.outChan; oc++ {
			for y := 0; y < outH; y++ {
				for x := 0; x < outW; x++ {
					gv := g[oc*outPlane+y*outW+x]
					if gv == 0 {
						continue
					}
					c.gradB.Data[oc] += gv
					for ic := 0; ic < c.inChan; ic++ {
						wBase := (oc*c.inChan + ic) * k * k
						inBase := ic * inPlane
						for dy := 0; dy < k; dy++ {
							iy := y*c.stride + dy - c.padding
							if iy < 0 || iy >= height {
								continue
							}
							for dx := 0; dx < k; dx++ {
								ix := x*c.stride + dx - c.padding
								if ix < 0 || ix >= width {
									continue
								}
								inIdx := inBase + iy*width + ix
								c.gradW.Data[wBase+dy*k+dx] += gv * in[inIdx]
								gin[inIdx] += gv * c.W.Data[wBase+dy*k+dx]
							}
						}
					}
				}
			}
		}
	}

	return inputGrad, nil
}

// Forward caches the input and runs ForwardPlain.
func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	c.lastInput = input
	return c.ForwardPlain(input)
}

// Backward uses the input cached by the last Forward.
func (c *Conv2D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if c.lastInput == nil {
		return nil, fmt.Errorf("no cached input for backward pass")
	}
	return c.BackwardFrom(c.lastInput, gradOut)
}

// Update applies one SGD step with the accumulated gradients.
func (c *Conv2D) Update(lr float64) error {
	for i := range c.W.Data {
		c.W.Data[i] -= lr * c.gradW.Data[i]
	}
	for i := range c.B.Data {
		c.B.Data[i] -= lr * c.gradB.Data[i]
	}
	return nil
}

// ZeroGrad clears the accumulated gradients.
func (c *Conv2D) ZeroGrad() {
	c.gradW.Zero()
	c.gradB.Zero()
}

// Params returns the weight and bias tensors.
func (c *Conv2D) Params() []*tensor.Tensor { return []*tensor.Tensor{c.W, c.B} }

// Grads returns the gradient tensors, aligned with Params.
func (c *Conv2D) Grads() []*tensor.Tensor { return []*tensor.Tensor{c.gradW, c.gradB} }

func (c *Conv2D) Tag() string {
	return fmt.Sprintf("Conv2D_%d_%d_%d_%d_%d", c.inChan, c.outChan, c.kernel, c.stride, c.padding)
}
