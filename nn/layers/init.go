package layers

import (
	"math"

	"github.com/Wyndegarde/Maters-Project/tensor"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewSource returns a seeded random source for parameter init and dropout masks.
func NewSource(seed uint64) rand.Source {
	return rand.NewSource(seed)
}

// initUniform fills w with Uniform(-1/sqrt(fanIn), 1/sqrt(fanIn)) draws.
func initUniform(w *tensor.Tensor, fanIn int, src rand.Source) {
	bound := 1 / math.Sqrt(float64(fanIn))
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	for i := range w.Data {
		w.Data[i] = dist.Rand()
	}
}

// OutputSize is floor((size + 2*padding - kernel)/stride) + 1, flooring toward
// negative infinity so collapsed windows come out non-positive.
func OutputSize(size, kernel, stride, padding int) int {
	num := size + 2*padding - kernel
	q := num / stride
	if num%stride != 0 && (num < 0) != (stride < 0) {
		q--
	}
	return q + 1
}
