package layers

import (
	"math/rand"

	"github.com/Wyndegarde/Maters-Project/tensor"
)

func randTensor(rng *rand.Rand, shape ...int) *tensor.Tensor {
	t := tensor.New(shape...)
	for i := range t.Data {
		t.Data[i] = rng.Float64()*2 - 1
	}
	return t
}

// dot is the scalar loss sum(out * r) whose gradient w.r.t. out is r.
func dot(out, r *tensor.Tensor) float64 {
	s := 0.0
	for i := range out.Data {
		s += out.Data[i] * r.Data[i]
	}
	return s
}

func numericGrad(loss func() float64, p *float64) float64 {
	const h = 1e-6
	orig := *p
	*p = orig + h
	up := loss()
	*p = orig - h
	down := loss()
	*p = orig
	return (up - down) / (2 * h)
}
