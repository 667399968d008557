package snn

import (
	"fmt"

	"github.com/Wyndegarde/Maters-Project/nn/layers"
	"github.com/Wyndegarde/Maters-Project/tensor"
	"github.com/Wyndegarde/Maters-Project/utils"
)

// NumSites is the number of LIF sites in the stack.
const NumSites = 8

// Stage is the deterministic sub-network feeding one LIF site. It is either a
// ConvStage or a LinearStage.
type Stage interface {
	isStage()
	Tag() string
}

// ConvStage is a convolution with optional max pooling.
type ConvStage struct {
	Conv *layers.Conv2D
	Pool *layers.MaxPool2D // nil when the stage does not pool
}

// LinearStage is optional dropout followed by a fully-connected projection.
// Inputs with more than two axes are flattened to [batch, rest] after dropout.
type LinearStage struct {
	Dropout *layers.Dropout // nil when the stage has no dropout
	Linear  *layers.Linear
}

func (ConvStage) isStage()   {}
func (LinearStage) isStage() {}

func (s ConvStage) Tag() string {
	if s.Pool != nil {
		return s.Conv.Tag() + "+" + s.Pool.Tag()
	}
	return s.Conv.Tag()
}

func (s LinearStage) Tag() string {
	if s.Dropout != nil {
		return s.Dropout.Tag() + "+" + s.Linear.Tag()
	}
	return s.Linear.Tag()
}

// Site binds a stage to the neuron consuming its output current.
type Site struct {
	Name   string
	Stage  Stage
	Neuron *Leaky
	// Shape is the per-sample shape of the site's potential (batch axis excluded).
	Shape []int
}

// Stack is the fixed eight-site spiking pipeline. Step is a pure per-step
// transform: all membrane state is passed in and returned.
type Stack struct {
	Sites []Site
}

// siteRecord is what one site's backward pass needs from its forward pass.
type siteRecord struct {
	input     *tensor.Tensor // stage input
	convShape []int          // conv output shape, input of the pool
	argmax    []int
	mask      *tensor.Tensor // dropout mask, nil for identity
	linInput  *tensor.Tensor // flattened Linear input
	candidate *tensor.Tensor
}

// StepRecord is the per-site tape of one time step.
type StepRecord struct {
	sites []siteRecord
}

// StepResult holds every site's spike output and updated potential.
type StepResult struct {
	Spikes     []*tensor.Tensor
	Potentials []*tensor.Tensor
	Record     *StepRecord // nil unless recorded
}

// Output returns the final site's spike and potential.
func (r StepResult) Output() (spike, potential *tensor.Tensor) {
	last := len(r.Spikes) - 1
	return r.Spikes[last], r.Potentials[last]
}

// NewStack builds the eight sites for cfg, initialising parameters from the
// seeded source. Geometry that collapses a spatial size fails with
// ErrInvalidArchitecture; other out-of-range fields fail with ErrInvalidConfig.
func NewStack(cfg utils.NetworkConfig) (*Stack, error) {
	sizes, err := WalkShapes(cfg.Resolution, GeometryOf(cfg), FeatureTopology)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateNetworkConfig(&cfg); err != nil {
		return nil, err
	}
	sg, err := NewSurrogate(cfg.Surrogate, cfg.Slope)
	if err != nil {
		return nil, err
	}

	src := layers.NewSource(cfg.Seed)

	s := &Stack{}
	inChan := 1
	for i, outChan := range cfg.ChannelWidths {
		neuron, err := NewLeaky(cfg.Beta, cfg.Threshold, sg)
		if err != nil {
			return nil, err
		}
		conv := layers.NewConv2D(inChan, outChan, cfg.ConvKernel, cfg.ConvStride, cfg.ConvPadding)
		conv.Init(src)
		stage := ConvStage{Conv: conv}
		if FeatureTopology[i] {
			stage.Pool = layers.NewMaxPool2D(cfg.PoolKernel, cfg.PoolStride, cfg.PoolPadding)
		}
		s.Sites = append(s.Sites, Site{
			Name:   fmt.Sprintf("conv%d", i+1),
			Stage:  stage,
			Neuron: neuron,
			Shape:  []int{outChan, sizes[i], sizes[i]},
		})
		inChan = outChan
	}

	dims := []int{FlatFeatures(inChan, sizes), cfg.Hidden, cfg.Hidden, cfg.Outputs}
	for i := 0; i < 3; i++ {
		neuron, err := NewLeaky(cfg.Beta, cfg.Threshold, sg)
		if err != nil {
			return nil, err
		}
		lin := layers.NewLinear(dims[i], dims[i+1])
		lin.Init(src)
		stage := LinearStage{Linear: lin}
		if i < 2 {
			drop, err := layers.NewDropout(cfg.Dropout, layers.NewSource(cfg.Seed+uint64(i)+1))
			if err != nil {
				return nil, err
			}
			stage.Dropout = drop
		}
		s.Sites = append(s.Sites, Site{
			Name:   fmt.Sprintf("fc%d", i+1),
			Stage:  stage,
			Neuron: neuron,
			Shape:  []int{dims[i+1]},
		})
	}
	return s, nil
}

// InitPotentials returns a fresh zero potential for every site.
func (s *Stack) InitPotentials(batch int) []*tensor.Tensor {
	pots := make([]*tensor.Tensor, len(s.Sites))
	for i, site := range s.Sites {
		pots[i] = site.Neuron.InitPotential(append([]int{batch}, site.Shape...)...)
	}
	return pots
}

// Step runs one time step: the frame drives site 1 and each site's spikes
// drive the next.
func (s *Stack) Step(frame *tensor.Tensor, potentials []*tensor.Tensor) (StepResult, error) {
	return s.step(frame, potentials, false)
}

// StepRecorded is Step with a tape for backpropagation.
func (s *Stack) StepRecorded(frame *tensor.Tensor, potentials []*tensor.Tensor) (StepResult, error) {
	return s.step(frame, potentials, true)
}

func (s *Stack) step(frame *tensor.Tensor, potentials []*tensor.Tensor, record bool) (StepResult, error) {
	if len(potentials) != len(s.Sites) {
		return StepResult{}, fmt.Errorf("%w: %d potentials for %d sites", ErrShapeMismatch, len(potentials), len(s.Sites))
	}
	res := StepResult{
		Spikes:     make([]*tensor.Tensor, len(s.Sites)),
		Potentials: make([]*tensor.Tensor, len(s.Sites)),
	}
	if record {
		res.Record = &StepRecord{sites: make([]siteRecord, len(s.Sites))}
	}

	x := frame
	for i, site := range s.Sites {
		var rec siteRecord
		current, err := stageForward(site.Stage, x, &rec)
		if err != nil {
			return StepResult{}, fmt.Errorf("site %s: %w", site.Name, err)
		}
		var spike, pot *tensor.Tensor
		if record {
			spike, pot, rec.candidate, err = site.Neuron.StepRecorded(current, potentials[i])
			res.Record.sites[i] = rec
		} else {
			spike, pot, err = site.Neuron.Step(current, potentials[i])
		}
		if err != nil {
			return StepResult{}, fmt.Errorf("site %s: %w", site.Name, err)
		}
		res.Spikes[i], res.Potentials[i] = spike, pot
		x = spike
	}
	return res, nil
}

func stageForward(stage Stage, x *tensor.Tensor, rec *siteRecord) (*tensor.Tensor, error) {
	rec.input = x
	switch st := stage.(type) {
	case ConvStage:
		out, err := st.Conv.ForwardPlain(x)
		if err != nil {
			return nil, err
		}
		if st.Pool == nil {
			return out, nil
		}
		rec.convShape = out.Shape
		pooled, argmax, err := st.Pool.ForwardPlain(out)
		if err != nil {
			return nil, err
		}
		rec.argmax = argmax
		return pooled, nil
	case LinearStage:
		in := x
		if st.Dropout != nil {
			in, rec.mask = st.Dropout.ForwardPlain(x)
		}
		if len(in.Shape) > 2 {
			flat, err := layers.FlattenPlain(in)
			if err != nil {
				return nil, err
			}
			in = flat
		}
		rec.linInput = in
		return st.Linear.ForwardPlaintext(in)
	default:
		return nil, fmt.Errorf("unknown stage %T", stage)
	}
}

// stageBackward accumulates the stage's parameter gradients and returns the
// gradient with respect to the stage input.
func stageBackward(stage Stage, rec *siteRecord, gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	switch st := stage.(type) {
	case ConvStage:
		g := gradOut
		if st.Pool != nil {
			var err error
			if g, err = st.Pool.BackwardFrom(rec.convShape, rec.argmax, g); err != nil {
				return nil, err
			}
		}
		return st.Conv.BackwardFrom(rec.input, g)
	case LinearStage:
		g, err := st.Linear.BackwardFrom(rec.linInput, gradOut)
		if err != nil {
			return nil, err
		}
		if g, err = g.Reshape(rec.input.Shape...); err != nil {
			return nil, err
		}
		if st.Dropout != nil {
			return st.Dropout.BackwardFrom(rec.mask, g)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown stage %T", stage)
	}
}

// backwardStep backpropagates one recorded step. gradOutSpike and
// gradOutPotential are the final site's loss gradients at this step;
// future[i] is dL/dpotential_i flowing back from the next step, and is
// replaced with dL/dprior_i for the previous step.
func (s *Stack) backwardStep(rec *StepRecord, gradOutSpike, gradOutPotential *tensor.Tensor, future []*tensor.Tensor) error {
	gradSpike := gradOutSpike
	for i := len(s.Sites) - 1; i >= 0; i-- {
		site := s.Sites[i]
		r := &rec.sites[i]
		gradPot := future[i]
		if i == len(s.Sites)-1 && gradOutPotential != nil {
			if gradPot == nil {
				gradPot = gradOutPotential
			} else {
				var err error
				if gradPot, err = tensor.Add(gradPot, gradOutPotential); err != nil {
					return fmt.Errorf("site %s: %w", site.Name, err)
				}
			}
		}
		gradIn, gradPrior, err := site.Neuron.StepGrad(r.candidate, gradSpike, gradPot)
		if err != nil {
			return fmt.Errorf("site %s: %w", site.Name, err)
		}
		future[i] = gradPrior
		if gradSpike, err = stageBackward(site.Stage, r, gradIn); err != nil {
			return fmt.Errorf("site %s backward: %w", site.Name, err)
		}
	}
	return nil
}

type paramLayer interface {
	Params() []*tensor.Tensor
	Grads() []*tensor.Tensor
	Update(learningRate float64) error
	ZeroGrad()
}

func (site Site) layer() paramLayer {
	switch st := site.Stage.(type) {
	case ConvStage:
		return st.Conv
	case LinearStage:
		return st.Linear
	}
	return nil
}

// Params returns each site's [weight, bias] keyed by site name.
func (s *Stack) Params() map[string][]*tensor.Tensor {
	out := make(map[string][]*tensor.Tensor, len(s.Sites))
	for _, site := range s.Sites {
		out[site.Name] = site.layer().Params()
	}
	return out
}

// Grads returns each site's accumulated [weight, bias] gradients.
func (s *Stack) Grads() map[string][]*tensor.Tensor {
	out := make(map[string][]*tensor.Tensor, len(s.Sites))
	for _, site := range s.Sites {
		out[site.Name] = site.layer().Grads()
	}
	return out
}

// Update applies one SGD step to every site.
func (s *Stack) Update(learningRate float64) error {
	for _, site := range s.Sites {
		if err := site.layer().Update(learningRate); err != nil {
			return fmt.Errorf("site %s update: %w", site.Name, err)
		}
	}
	return nil
}

// ZeroGrad clears the accumulated gradients of every site.
func (s *Stack) ZeroGrad() {
	for _, site := range s.Sites {
		site.layer().ZeroGrad()
	}
}

// SetTraining toggles every dropout layer.
func (s *Stack) SetTraining(training bool) {
	for _, site := range s.Sites {
		if st, ok := site.Stage.(LinearStage); ok && st.Dropout != nil {
			st.Dropout.SetTraining(training)
		}
	}
}
