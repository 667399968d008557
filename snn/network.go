package snn

import (
	"context"
	"fmt"
	"time"

	"github.com/Wyndegarde/Maters-Project/tensor"
	"github.com/Wyndegarde/Maters-Project/utils"
)

// Trace is the final site's output over a run, both [T, batch, classes].
type Trace struct {
	Spikes   *tensor.Tensor
	Membrane *tensor.Tensor
}

// Steps returns the length of the time axis.
func (tr *Trace) Steps() int { return tr.Spikes.Shape[0] }

// SpikeCounts sums spikes over time into [batch, classes].
func (tr *Trace) SpikeCounts() *tensor.Tensor {
	steps, batch, classes := tr.Spikes.Shape[0], tr.Spikes.Shape[1], tr.Spikes.Shape[2]
	counts := tensor.New(batch, classes)
	size := batch * classes
	for t := 0; t < steps; t++ {
		for i, v := range tr.Spikes.Data[t*size : (t+1)*size] {
			counts.Data[i] += v
		}
	}
	return counts
}

// Predict returns, per batch element, the class that spiked most often.
// Ties go to the lowest class index.
func (tr *Trace) Predict() []int {
	counts := tr.SpikeCounts()
	batch, classes := counts.Shape[0], counts.Shape[1]
	out := make([]int, batch)
	for b := range out {
		best := 0
		for c := 1; c < classes; c++ {
			if counts.Data[b*classes+c] > counts.Data[b*classes+best] {
				best = c
			}
		}
		out[b] = best
	}
	return out
}

// Tape is the per-step record of a run, consumed by Backward.
type Tape struct {
	steps []*StepRecord
	batch int
}

// Steps returns the number of recorded steps.
func (tp *Tape) Steps() int { return len(tp.steps) }

// Network is the spiking classifier: the eight-site stack driven over a fixed
// number of time steps. Runs share parameters but not membrane state. Runs in
// training mode draw dropout masks from shared generators, and Backward and
// Update mutate parameters; callers serialise those.
type Network struct {
	Stack *Stack

	cfg    utils.NetworkConfig
	shapes []int

	// Stats, when set, receives the duration of every simulated step.
	Stats *utils.TimingStats
}

// NewNetwork validates cfg and builds the stack.
func NewNetwork(cfg utils.NetworkConfig) (*Network, error) {
	stack, err := NewStack(cfg)
	if err != nil {
		return nil, err
	}
	shapes, err := WalkShapes(cfg.Resolution, GeometryOf(cfg), FeatureTopology)
	if err != nil {
		return nil, err
	}
	return &Network{Stack: stack, cfg: cfg, shapes: shapes}, nil
}

// Config returns the configuration the network was built from.
func (n *Network) Config() utils.NetworkConfig { return n.cfg }

// Shapes returns the spatial resolution after each convolution.
func (n *Network) Shapes() []int { return append([]int(nil), n.shapes...) }

// Forward presents x, a [batch, 1, R, R] frame, at each of the configured steps.
func (n *Network) Forward(ctx context.Context, x *tensor.Tensor) (*Trace, error) {
	src, err := ConstantFrames(x, n.cfg.Steps)
	if err != nil {
		return nil, err
	}
	return n.Run(ctx, src)
}

// ForwardSequence views x as [Steps, BatchSize, 1, R, R] frames, accepting a
// flat [Steps*BatchSize, 1, R, R] batch.
func (n *Network) ForwardSequence(ctx context.Context, x *tensor.Tensor) (*Trace, error) {
	src, err := SequenceFrames(x, n.cfg.Steps, n.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	return n.Run(ctx, src)
}

// Run drives the stack once per step of src.
func (n *Network) Run(ctx context.Context, src FrameSource) (*Trace, error) {
	trace, _, err := n.run(ctx, src, false)
	return trace, err
}

// RunRecorded is Run that also returns the tape needed by Backward.
func (n *Network) RunRecorded(ctx context.Context, src FrameSource) (*Trace, *Tape, error) {
	return n.run(ctx, src, true)
}

func (n *Network) checkFrame(t int, frame *tensor.Tensor, batch int) error {
	r := n.cfg.Resolution
	s := frame.Shape
	if len(s) != 4 || s[0] != batch || s[1] != 1 || s[2] != r || s[3] != r {
		return fmt.Errorf("%w: step %d frame %v, want [%d, 1, %d, %d]", ErrShapeMismatch, t, s, batch, r, r)
	}
	return nil
}

func (n *Network) run(ctx context.Context, src FrameSource, record bool) (*Trace, *Tape, error) {
	steps, batch := src.Steps(), src.Batch()
	if steps <= 0 || batch <= 0 {
		return nil, nil, fmt.Errorf("%w: %d steps of batch %d", ErrShapeMismatch, steps, batch)
	}

	potentials := n.Stack.InitPotentials(batch)
	spikes := make([]*tensor.Tensor, 0, steps)
	membrane := make([]*tensor.Tensor, 0, steps)
	var tape *Tape
	if record {
		tape = &Tape{batch: batch, steps: make([]*StepRecord, 0, steps)}
	}

	for t := 0; t < steps; t++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("simulation stopped before step %d: %w", t, err)
		}
		frame, err := src.Frame(t)
		if err != nil {
			return nil, nil, err
		}
		if err := n.checkFrame(t, frame, batch); err != nil {
			return nil, nil, err
		}

		start := time.Now()
		var res StepResult
		if record {
			res, err = n.Stack.StepRecorded(frame, potentials)
		} else {
			res, err = n.Stack.Step(frame, potentials)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("step %d: %w", t, err)
		}
		if n.Stats != nil {
			n.Stats.AddStep(time.Since(start))
		}

		potentials = res.Potentials
		spk, mem := res.Output()
		spikes = append(spikes, spk)
		membrane = append(membrane, mem)
		if record {
			tape.steps = append(tape.steps, res.Record)
		}
	}

	spkTrace, err := tensor.Stack(spikes)
	if err != nil {
		return nil, nil, err
	}
	memTrace, err := tensor.Stack(membrane)
	if err != nil {
		return nil, nil, err
	}
	return &Trace{Spikes: spkTrace, Membrane: memTrace}, tape, nil
}

// Backward backpropagates through time. gradSpikes and gradMembrane are loss
// gradients with respect to the trace tensors, [T, batch, classes]; either
// may be nil but not both. Parameter gradients accumulate until ZeroGrad.
func (n *Network) Backward(tape *Tape, gradSpikes, gradMembrane *tensor.Tensor) error {
	if tape == nil || len(tape.steps) == 0 {
		return fmt.Errorf("backward needs a recorded run")
	}
	if gradSpikes == nil && gradMembrane == nil {
		return fmt.Errorf("backward needs a spike or membrane gradient")
	}
	want := []int{len(tape.steps), tape.batch, n.cfg.Outputs}
	for _, g := range []*tensor.Tensor{gradSpikes, gradMembrane} {
		if g != nil && !tensor.SameShape(g, &tensor.Tensor{Shape: want}) {
			return fmt.Errorf("%w: trace gradient %v, want %v", ErrShapeMismatch, g.Shape, want)
		}
	}

	future := make([]*tensor.Tensor, len(n.Stack.Sites))
	for t := len(tape.steps) - 1; t >= 0; t-- {
		var gs, gm *tensor.Tensor
		var err error
		if gradSpikes != nil {
			if gs, err = gradSpikes.Index(t); err != nil {
				return err
			}
		}
		if gradMembrane != nil {
			if gm, err = gradMembrane.Index(t); err != nil {
				return err
			}
		}
		if err := n.Stack.backwardStep(tape.steps[t], gs, gm, future); err != nil {
			return fmt.Errorf("step %d: %w", t, err)
		}
	}
	return nil
}

// Update applies one SGD step with the accumulated gradients.
func (n *Network) Update(learningRate float64) error { return n.Stack.Update(learningRate) }

// ZeroGrad clears accumulated gradients.
func (n *Network) ZeroGrad() { n.Stack.ZeroGrad() }

// SetTraining toggles dropout. Evaluation mode is deterministic.
func (n *Network) SetTraining(training bool) { n.Stack.SetTraining(training) }

// Weights exports every site's parameters.
func (n *Network) Weights() *utils.ModelWeights {
	mw := utils.NewModelWeights("scnn")
	for name, params := range n.Stack.Params() {
		mw.Layers[name] = utils.ExportLayer(name, params)
	}
	return mw
}

// LoadWeights copies a checkpoint into the network. Every site must be present.
func (n *Network) LoadWeights(mw *utils.ModelWeights) error {
	for name, params := range n.Stack.Params() {
		lw, ok := mw.Layers[name]
		if !ok {
			return fmt.Errorf("checkpoint has no layer %q", name)
		}
		if err := utils.ImportLayer(lw, params); err != nil {
			return fmt.Errorf("layer %s: %w", name, err)
		}
	}
	return nil
}
