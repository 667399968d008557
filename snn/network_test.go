package snn

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/Wyndegarde/Maters-Project/tensor"
	"github.com/Wyndegarde/Maters-Project/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tinyConfig keeps the eight-site topology but shrinks every width:
// 8 -> 4 -> 4 -> 2 -> 2 -> 1.
func tinyConfig() utils.NetworkConfig {
	cfg := utils.DefaultNetworkConfig()
	cfg.Resolution = 8
	cfg.ChannelWidths = []int{3, 4, 4, 5, 5}
	cfg.Hidden = 6
	cfg.Outputs = 5
	cfg.Steps = 10
	cfg.BatchSize = 2
	cfg.Dropout = 0
	cfg.Seed = 3
	return cfg
}

func randFrame(seed int64, shape ...int) *tensor.Tensor {
	rng := rand.New(rand.NewSource(seed))
	x := tensor.New(shape...)
	for i := range x.Data {
		x.Data[i] = rng.Float64() * 4
	}
	return x
}

func mustNetwork(t *testing.T, cfg utils.NetworkConfig) *Network {
	t.Helper()
	n, err := NewNetwork(cfg)
	require.NoError(t, err)
	return n
}

func TestStackLayout(t *testing.T) {
	n := mustNetwork(t, tinyConfig())
	require.Len(t, n.Stack.Sites, NumSites)
	assert.Equal(t, []int{4, 4, 2, 2, 1}, n.Shapes())

	names := make([]string, 0, NumSites)
	for i, site := range n.Stack.Sites {
		names = append(names, site.Name)
		_, isConv := site.Stage.(ConvStage)
		assert.Equal(t, i < 5, isConv, site.Name)
	}
	assert.Equal(t, []string{"conv1", "conv2", "conv3", "conv4", "conv5", "fc1", "fc2", "fc3"}, names)

	pots := n.Stack.InitPotentials(2)
	assert.Equal(t, []int{2, 3, 4, 4}, pots[0].Shape)
	assert.Equal(t, []int{2, 4, 4, 4}, pots[1].Shape)
	assert.Equal(t, []int{2, 5, 1, 1}, pots[4].Shape)
	assert.Equal(t, []int{2, 6}, pots[5].Shape)
	assert.Equal(t, []int{2, 5}, pots[7].Shape)

	fc1 := n.Stack.Sites[5].Stage.(LinearStage)
	assert.Equal(t, 5, fc1.Linear.InDim())
	assert.NotNil(t, fc1.Dropout)
	assert.Nil(t, n.Stack.Sites[7].Stage.(LinearStage).Dropout)
}

func TestStackStepRejectsWrongState(t *testing.T) {
	n := mustNetwork(t, tinyConfig())
	frame := randFrame(1, 2, 1, 8, 8)

	_, err := n.Stack.Step(frame, n.Stack.InitPotentials(2)[:7])
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	pots := n.Stack.InitPotentials(3)
	_, err = n.Stack.Step(frame, pots)
	assert.True(t, errors.Is(err, ErrShapeMismatch), "potentials sized for batch 3")

	res, err := n.Stack.Step(frame, n.Stack.InitPotentials(2))
	require.NoError(t, err)
	assert.Len(t, res.Spikes, NumSites)
	assert.Nil(t, res.Record)
}

func TestTraceShapeAndValues(t *testing.T) {
	n := mustNetwork(t, tinyConfig())
	trace, err := n.Forward(context.Background(), randFrame(2, 2, 1, 8, 8))
	require.NoError(t, err)

	assert.Equal(t, []int{10, 2, 5}, trace.Spikes.Shape)
	assert.Equal(t, []int{10, 2, 5}, trace.Membrane.Shape)
	assert.Equal(t, 10, trace.Steps())
	for _, v := range trace.Spikes.Data {
		assert.True(t, v == 0 || v == 1, "spike %v", v)
	}
	for _, v := range trace.Membrane.Data {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}

	counts := trace.SpikeCounts()
	assert.Equal(t, []int{2, 5}, counts.Shape)
	assert.Equal(t, trace.Spikes.Sum(), counts.Sum())
	assert.Len(t, trace.Predict(), 2)
}

func TestRunsAreDeterministic(t *testing.T) {
	cfg := tinyConfig()
	cfg.Dropout = 0.5
	n := mustNetwork(t, cfg)
	n.SetTraining(false)
	x := randFrame(4, 2, 1, 8, 8)

	first, err := n.Forward(context.Background(), x)
	require.NoError(t, err)
	// A run on a different input must not leak state into the next one.
	_, err = n.Forward(context.Background(), randFrame(5, 2, 1, 8, 8))
	require.NoError(t, err)
	second, err := n.Forward(context.Background(), x)
	require.NoError(t, err)

	assert.Equal(t, first.Spikes.Data, second.Spikes.Data)
	assert.Equal(t, first.Membrane.Data, second.Membrane.Data)

	again := mustNetwork(t, cfg)
	again.SetTraining(false)
	third, err := again.Forward(context.Background(), x)
	require.NoError(t, err)
	assert.Equal(t, first.Membrane.Data, third.Membrane.Data, "same seed, same parameters")
}

func TestForwardSequenceMatchesConstantFrames(t *testing.T) {
	cfg := tinyConfig()
	cfg.Steps = 4
	n := mustNetwork(t, cfg)
	frame := randFrame(6, 2, 1, 8, 8)

	flat := tensor.New(8, 1, 8, 8)
	for step := 0; step < 4; step++ {
		copy(flat.Data[step*len(frame.Data):], frame.Data)
	}
	seq, err := n.ForwardSequence(context.Background(), flat)
	require.NoError(t, err)
	constant, err := n.Forward(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, constant.Membrane.Data, seq.Membrane.Data)

	_, err = n.ForwardSequence(context.Background(), tensor.New(7, 1, 8, 8))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestForwardRejectsBadInput(t *testing.T) {
	n := mustNetwork(t, tinyConfig())
	ctx := context.Background()

	_, err := n.Forward(ctx, tensor.New(2, 8, 8))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	_, err = n.Forward(ctx, tensor.New(2, 1, 9, 9))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	_, err = n.Forward(ctx, tensor.New(2, 3, 8, 8))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestNewNetworkFailsFast(t *testing.T) {
	cfg := tinyConfig()
	cfg.Resolution = 4
	_, err := NewNetwork(cfg)
	assert.True(t, errors.Is(err, ErrInvalidArchitecture))

	cfg = tinyConfig()
	cfg.Surrogate = "boxcar"
	_, err = NewNetwork(cfg)
	assert.True(t, errors.Is(err, ErrSurrogateNotFound))

	cfg = tinyConfig()
	cfg.ChannelWidths = []int{3, 4}
	_, err = NewNetwork(cfg)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

// Range errors are configuration errors, not collapsing geometry.
func TestNewNetworkReportsConfigErrors(t *testing.T) {
	mutations := map[string]func(*utils.NetworkConfig){
		"beta":    func(c *utils.NetworkConfig) { c.Beta = 1.5 },
		"dropout": func(c *utils.NetworkConfig) { c.Dropout = 1 },
		"slope":   func(c *utils.NetworkConfig) { c.Slope = 0 },
		"batch":   func(c *utils.NetworkConfig) { c.BatchSize = 0 },
	}
	for name, mutate := range mutations {
		cfg := tinyConfig()
		mutate(&cfg)
		_, err := NewNetwork(cfg)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "%s: %v", name, err)
		assert.False(t, errors.Is(err, ErrInvalidArchitecture), "%s: %v", name, err)
	}

	cfg := tinyConfig()
	cfg.ConvStride = 0
	_, err := NewNetwork(cfg)
	assert.True(t, errors.Is(err, ErrInvalidArchitecture), "bad geometry stays an architecture error")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	n := mustNetwork(t, tinyConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := n.Forward(ctx, randFrame(7, 2, 1, 8, 8))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStatsCountSteps(t *testing.T) {
	n := mustNetwork(t, tinyConfig())
	n.Stats = &utils.TimingStats{}
	_, err := n.Forward(context.Background(), randFrame(8, 2, 1, 8, 8))
	require.NoError(t, err)
	assert.Equal(t, 10, n.Stats.SimulatedSteps)
}

func TestWeightsRoundTrip(t *testing.T) {
	cfg := tinyConfig()
	src := mustNetwork(t, cfg)
	cfg.Seed = 99
	dst := mustNetwork(t, cfg)

	x := randFrame(9, 2, 1, 8, 8)
	want, err := src.Forward(context.Background(), x)
	require.NoError(t, err)

	mw := src.Weights()
	assert.Len(t, mw.Layers, NumSites)
	require.NoError(t, dst.LoadWeights(mw))
	got, err := dst.Forward(context.Background(), x)
	require.NoError(t, err)
	assert.Equal(t, want.Membrane.Data, got.Membrane.Data)

	delete(mw.Layers, "fc2")
	assert.Error(t, dst.LoadWeights(mw))
}

// smoothStep makes the forward pass differentiable so backpropagation
// through time can be checked against finite differences.
type smoothStep struct{ k float64 }

func (s smoothStep) Fire(x float64) float64 { return 1 / (1 + math.Exp(-s.k*x)) }
func (s smoothStep) Derivative(x float64) float64 {
	f := s.Fire(x)
	return s.k * f * (1 - f)
}
func (smoothStep) Name() string { return "smooth" }

func TestBackwardMatchesNumericGradients(t *testing.T) {
	cfg := tinyConfig()
	cfg.Steps = 3
	n := mustNetwork(t, cfg)
	for _, site := range n.Stack.Sites {
		site.Neuron.Surrogate = smoothStep{k: 2}
		site.Neuron.ResetGrad = true
	}

	src, err := ConstantFrames(randFrame(10, 2, 1, 8, 8), cfg.Steps)
	require.NoError(t, err)
	rSpk := randFrame(11, 3, 2, 5)
	rMem := randFrame(12, 3, 2, 5)
	loss := func() float64 {
		tr, err := n.Run(context.Background(), src)
		require.NoError(t, err)
		s := 0.0
		for i := range tr.Spikes.Data {
			s += tr.Spikes.Data[i]*rSpk.Data[i] + tr.Membrane.Data[i]*rMem.Data[i]
		}
		return s
	}

	_, tape, err := n.RunRecorded(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, tape.Steps())
	require.NoError(t, n.Backward(tape, rSpk, rMem))

	params, grads := n.Stack.Params(), n.Stack.Grads()
	const h = 1e-6
	for _, name := range []string{"conv1", "conv3", "conv5", "fc1", "fc3"} {
		for _, p := range []int{0, 1} {
			param, grad := params[name][p], grads[name][p]
			for _, i := range []int{0, len(param.Data) / 2, len(param.Data) - 1} {
				orig := param.Data[i]
				param.Data[i] = orig + h
				up := loss()
				param.Data[i] = orig - h
				down := loss()
				param.Data[i] = orig
				want := (up - down) / (2 * h)
				assert.InDelta(t, want, grad.Data[i], 1e-5+1e-4*math.Abs(want), "%s param %d index %d", name, p, i)
			}
		}
	}
}

func TestBackwardValidatesInputs(t *testing.T) {
	n := mustNetwork(t, tinyConfig())
	src, err := ConstantFrames(randFrame(13, 2, 1, 8, 8), 10)
	require.NoError(t, err)
	_, tape, err := n.RunRecorded(context.Background(), src)
	require.NoError(t, err)

	assert.Error(t, n.Backward(nil, tensor.New(10, 2, 5), nil))
	assert.Error(t, n.Backward(tape, nil, nil))
	err = n.Backward(tape, tensor.New(9, 2, 5), nil)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.NoError(t, n.Backward(tape, nil, tensor.New(10, 2, 5)))
}

func TestUpdateAndZeroGrad(t *testing.T) {
	n := mustNetwork(t, tinyConfig())
	src, err := ConstantFrames(randFrame(14, 2, 1, 8, 8), 10)
	require.NoError(t, err)
	_, tape, err := n.RunRecorded(context.Background(), src)
	require.NoError(t, err)
	require.NoError(t, n.Backward(tape, nil, randFrame(15, 10, 2, 5)))

	fc3W := n.Stack.Params()["fc3"][0]
	before := fc3W.Clone()
	grad := n.Stack.Grads()["fc3"][0].Clone()
	require.NoError(t, n.Update(0.1))
	for i := range before.Data {
		assert.InDelta(t, before.Data[i]-0.1*grad.Data[i], fc3W.Data[i], 1e-12)
	}

	n.ZeroGrad()
	for name, gs := range n.Stack.Grads() {
		for _, g := range gs {
			assert.Equal(t, 0.0, g.Sum(), name)
		}
	}
}
