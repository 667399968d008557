package nn

import (
	"fmt"

	"github.com/Wyndegarde/Maters-Project/nn/layers"
	"github.com/Wyndegarde/Maters-Project/snn"
	"github.com/Wyndegarde/Maters-Project/tensor"
	"github.com/Wyndegarde/Maters-Project/utils"
)

// CnnNet is the non-spiking baseline: five ReLU convolutions with pooling after
// the first, third and fifth, then a dropout-regularised three-layer head and
// log-softmax. Input [batch, 1, R, R], output [batch, outputs] log-probabilities.
type CnnNet struct {
	Sequential

	cfg utils.NetworkConfig
}

// NewCnnNet builds the baseline for cfg. The first fully-connected layer is
// sized from the walked feature shapes, so a collapsing geometry fails with
// snn.ErrInvalidArchitecture here rather than on the first forward pass.
// Out-of-range hyperparameters fail with utils.ErrInvalidConfig.
func NewCnnNet(cfg utils.NetworkConfig) (*CnnNet, error) {
	sizes, err := snn.WalkShapes(cfg.Resolution, snn.GeometryOf(cfg), snn.FeatureTopology)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateNetworkConfig(&cfg); err != nil {
		return nil, err
	}

	src := layers.NewSource(cfg.Seed)
	var mods []Module
	addReLU := func() error {
		act, err := layers.NewActivation("ReLU")
		if err != nil {
			return err
		}
		mods = append(mods, act)
		return nil
	}

	inChan := 1
	for i, outChan := range cfg.ChannelWidths {
		conv := layers.NewConv2D(inChan, outChan, cfg.ConvKernel, cfg.ConvStride, cfg.ConvPadding)
		conv.Init(src)
		mods = append(mods, conv)
		if snn.FeatureTopology[i] {
			mods = append(mods, layers.NewMaxPool2D(cfg.PoolKernel, cfg.PoolStride, cfg.PoolPadding))
		}
		if err := addReLU(); err != nil {
			return nil, err
		}
		inChan = outChan
	}
	mods = append(mods, layers.NewFlatten())

	dims := []int{snn.FlatFeatures(inChan, sizes), cfg.Hidden, cfg.Hidden, cfg.Outputs}
	for i := 0; i < 3; i++ {
		if i < 2 {
			drop, err := layers.NewDropout(cfg.Dropout, layers.NewSource(cfg.Seed+uint64(i)+1))
			if err != nil {
				return nil, err
			}
			mods = append(mods, drop)
		}
		lin := layers.NewLinear(dims[i], dims[i+1])
		lin.Init(src)
		mods = append(mods, lin)
		if i < 2 {
			if err := addReLU(); err != nil {
				return nil, err
			}
		}
	}
	mods = append(mods, layers.NewLogSoftmax())

	return &CnnNet{Sequential: Sequential{Layers: mods}, cfg: cfg}, nil
}

// Config returns the configuration the network was built from.
func (c *CnnNet) Config() utils.NetworkConfig { return c.cfg }

// Forward checks the input is [batch, 1, R, R] and returns log-probabilities.
func (c *CnnNet) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	r := c.cfg.Resolution
	if len(x.Shape) != 4 || x.Shape[1] != 1 || x.Shape[2] != r || x.Shape[3] != r {
		return nil, fmt.Errorf("%w: CnnNet input %v, want [batch, 1, %d, %d]", tensor.ErrShapeMismatch, x.Shape, r, r)
	}
	return c.Sequential.Forward(x)
}

// Weights exports the convolution and linear parameters.
func (c *CnnNet) Weights() *utils.ModelWeights {
	mw := utils.NewModelWeights("cnn")
	names, trainables := c.Trainables()
	for i, name := range names {
		mw.Layers[name] = utils.ExportLayer(name, trainables[i].Params())
	}
	return mw
}

// LoadWeights copies a checkpoint produced by Weights into the network.
func (c *CnnNet) LoadWeights(mw *utils.ModelWeights) error {
	names, trainables := c.Trainables()
	for i, name := range names {
		lw, ok := mw.Layers[name]
		if !ok {
			return fmt.Errorf("checkpoint has no layer %q", name)
		}
		if err := utils.ImportLayer(lw, trainables[i].Params()); err != nil {
			return fmt.Errorf("layer %s: %w", name, err)
		}
	}
	return nil
}
