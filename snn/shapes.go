package snn

import (
	"fmt"

	"github.com/Wyndegarde/Maters-Project/nn/layers"
	"github.com/Wyndegarde/Maters-Project/utils"
)

// Geometry is the kernel/padding/stride of the convolutions and the pooling operator.
type Geometry struct {
	ConvKernel, ConvPadding, ConvStride int
	PoolKernel, PoolPadding, PoolStride int
}

// GeometryOf extracts the geometric parameters of cfg.
func GeometryOf(cfg utils.NetworkConfig) Geometry {
	return Geometry{
		ConvKernel:  cfg.ConvKernel,
		ConvPadding: cfg.ConvPadding,
		ConvStride:  cfg.ConvStride,
		PoolKernel:  cfg.PoolKernel,
		PoolPadding: cfg.PoolPadding,
		PoolStride:  cfg.PoolStride,
	}
}

// PoolStages is the number of conv+pool stages ComputeShapes walks.
const PoolStages = 3

// FeatureTopology marks which of the five feature-extractor convolutions are
// followed by pooling.
var FeatureTopology = []bool{true, false, true, false, true}

func (g Geometry) validate() error {
	if g.ConvKernel <= 0 || g.PoolKernel <= 0 {
		return fmt.Errorf("%w: kernel sizes must be positive (conv %d, pool %d)", ErrInvalidArchitecture, g.ConvKernel, g.PoolKernel)
	}
	if g.ConvStride <= 0 || g.PoolStride <= 0 {
		return fmt.Errorf("%w: strides must be positive (conv %d, pool %d)", ErrInvalidArchitecture, g.ConvStride, g.PoolStride)
	}
	if g.ConvPadding < 0 || g.PoolPadding < 0 {
		return fmt.Errorf("%w: negative padding (conv %d, pool %d)", ErrInvalidArchitecture, g.ConvPadding, g.PoolPadding)
	}
	if 2*g.PoolPadding > g.PoolKernel {
		return fmt.Errorf("%w: pool padding %d exceeds half of pool kernel %d", ErrInvalidArchitecture, g.PoolPadding, g.PoolKernel)
	}
	return nil
}

// ComputeShapes returns the spatial resolution after each of the PoolStages
// convolution+pooling stages applied to a res x res input.
func ComputeShapes(res int, g Geometry) ([]int, error) {
	pooled := make([]bool, PoolStages)
	for i := range pooled {
		pooled[i] = true
	}
	return WalkShapes(res, g, pooled)
}

// WalkShapes returns one resolution per convolution, applying pooling after
// convolution i when pooled[i] is set. The sequence must stay positive and
// non-increasing from the first stage on. The first stage is not compared
// with res.
func WalkShapes(res int, g Geometry, pooled []bool) ([]int, error) {
	if res <= 0 {
		return nil, fmt.Errorf("%w: input resolution %d", ErrInvalidArchitecture, res)
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	sizes := make([]int, 0, len(pooled))
	size := res
	for i, pool := range pooled {
		next := layers.OutputSize(size, g.ConvKernel, g.ConvStride, g.ConvPadding)
		if next > 0 && pool {
			next = layers.OutputSize(next, g.PoolKernel, g.PoolStride, g.PoolPadding)
		}
		if next <= 0 {
			return nil, fmt.Errorf("%w: stage %d collapses %d to %d", ErrInvalidArchitecture, i+1, size, next)
		}
		if i > 0 && next > size {
			return nil, fmt.Errorf("%w: stage %d grows %d to %d", ErrInvalidArchitecture, i+1, size, next)
		}
		sizes = append(sizes, next)
		size = next
	}
	return sizes, nil
}

// FlatFeatures is the fc1 input width for the last stage: channels * s * s.
func FlatFeatures(channels int, sizes []int) int {
	if len(sizes) == 0 {
		return 0
	}
	s := sizes[len(sizes)-1]
	return channels * s * s
}
