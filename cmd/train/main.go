// snn-train: synthetic-data trainer for the convolutional baseline and the
// spiking network.
//
// Usage:
//
//	snn-train --model=scnn --epochs=5 --lr=0.01 --config=net.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/Wyndegarde/Maters-Project/nn"
	"github.com/Wyndegarde/Maters-Project/snn"
	"github.com/Wyndegarde/Maters-Project/store"
	"github.com/Wyndegarde/Maters-Project/tensor"
	"github.com/Wyndegarde/Maters-Project/utils"
)

var (
	modelType    = flag.String("model", "scnn", "Model type: cnn, scnn")
	configFile   = flag.String("config", "", "Network config file (YAML or JSON)")
	epochs       = flag.Int("epochs", 3, "Number of training epochs")
	learningRate = flag.Float64("lr", 0.01, "Learning rate")
	batches      = flag.Int("batches", 4, "Synthetic batches per epoch")
	resolution   = flag.Int("resolution", 0, "Override input resolution")
	steps        = flag.Int("steps", 0, "Override simulation time steps")
	batchSize    = flag.Int("batch", 0, "Override batch size")
	channels     = flag.String("channels", "", "Override conv channel widths, e.g. 8,16,16,32,32")
	verbose      = flag.Bool("verbose", true, "Verbose output")
	seed         = flag.Int64("seed", 42, "Data random seed")
	outputFile   = flag.String("output", "", "Output weights file (JSON)")
	storeKind    = flag.String("store", "", "Persist weights to a store: memory, sqlite")
	storePath    = flag.String("store-path", "snn.db", "SQLite database path")
	runID        = flag.String("run-id", "", "Run ID for persisted records (default: timestamp)")
)

// trainer is one network under training.
type trainer interface {
	step(ctx context.Context, x *tensor.Tensor, labels []int, lr float64, stats *utils.TimingStats) (loss float64, correct int, err error)
	weights() *utils.ModelWeights
}

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration:\n")
	fmt.Printf("  Model:         %s\n", *modelType)
	fmt.Printf("  Resolution:    %d\n", cfg.Resolution)
	fmt.Printf("  Channels:      %v\n", cfg.ChannelWidths)
	fmt.Printf("  Steps:         %d\n", cfg.Steps)
	fmt.Printf("  Batch:         %d\n", cfg.BatchSize)
	fmt.Printf("  Epochs:        %d\n", *epochs)
	fmt.Printf("  Learning Rate: %.4f\n", *learningRate)
	fmt.Println()

	stats := &utils.TimingStats{}
	totalStart := time.Now()

	start := time.Now()
	tr, err := buildTrainer(*modelType, cfg, stats)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Model error: %v\n", err)
		os.Exit(1)
	}
	stats.ModelInitTime = time.Since(start)

	start = time.Now()
	rng := rand.New(rand.NewSource(*seed))
	inputs, labels := generateData(rng, *batches, cfg)
	stats.DataLoadingTime = time.Since(start)

	ctx := context.Background()
	utils.Logf("Starting training...")
	for epoch := 0; epoch < *epochs; epoch++ {
		epochStart := time.Now()
		epochLoss, correct := 0.0, 0
		for i := range inputs {
			loss, c, err := tr.step(ctx, inputs[i], labels[i], *learningRate, stats)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error at batch %d: %v\n", i, err)
				os.Exit(1)
			}
			epochLoss += loss
			correct += c
		}
		n := len(inputs) * cfg.BatchSize
		utils.Logf("Epoch %d/%d | Loss: %.6f | Acc: %.3f | Time: %.2fs",
			epoch+1, *epochs, epochLoss/float64(n), float64(correct)/float64(n), time.Since(epochStart).Seconds())
	}

	mw := tr.weights()
	if *outputFile != "" {
		start = time.Now()
		if err := utils.SaveWeights(*outputFile, mw); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving: %v\n", err)
			os.Exit(1)
		}
		stats.PersistTime += time.Since(start)
		utils.Logf("Saved weights to %s", *outputFile)
	}
	if *storeKind != "" {
		start = time.Now()
		id, err := persist(ctx, mw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
			os.Exit(1)
		}
		stats.PersistTime += time.Since(start)
		utils.Logf("Stored weights under run %s", id)
	}

	stats.TotalTime = time.Since(totalStart)
	utils.PrintTimingStats(stats, *epochs*len(inputs))
}

func loadConfig() (utils.NetworkConfig, error) {
	cfg := utils.DefaultNetworkConfig()
	if *configFile != "" {
		var err error
		if cfg, err = utils.LoadNetworkConfig(*configFile); err != nil {
			return cfg, err
		}
	}
	if *resolution > 0 {
		cfg.Resolution = *resolution
	}
	if *steps > 0 {
		cfg.Steps = *steps
	}
	if *batchSize > 0 {
		cfg.BatchSize = *batchSize
	}
	if *channels != "" {
		widths, err := utils.ParseChannelWidths(*channels)
		if err != nil {
			return cfg, err
		}
		cfg.ChannelWidths = widths
	}
	return cfg, utils.ValidateNetworkConfig(&cfg)
}

func buildTrainer(kind string, cfg utils.NetworkConfig, stats *utils.TimingStats) (trainer, error) {
	switch kind {
	case "cnn":
		net, err := nn.NewCnnNet(cfg)
		if err != nil {
			return nil, err
		}
		return &cnnTrainer{net: net}, nil
	case "scnn":
		net, err := snn.NewNetwork(cfg)
		if err != nil {
			return nil, err
		}
		net.Stats = stats
		return &scnnTrainer{net: net}, nil
	default:
		return nil, fmt.Errorf("unknown model: %s", kind)
	}
}

// generateData draws uniform images with random labels.
func generateData(rng *rand.Rand, n int, cfg utils.NetworkConfig) ([]*tensor.Tensor, [][]int) {
	inputs := make([]*tensor.Tensor, n)
	labels := make([][]int, n)
	for i := 0; i < n; i++ {
		inputs[i] = tensor.New(cfg.BatchSize, 1, cfg.Resolution, cfg.Resolution)
		for j := range inputs[i].Data {
			inputs[i].Data[j] = rng.Float64()
		}
		labels[i] = make([]int, cfg.BatchSize)
		for j := range labels[i] {
			labels[i][j] = rng.Intn(cfg.Outputs)
		}
	}
	return inputs, labels
}

func countCorrect(pred, labels []int) int {
	n := 0
	for i := range pred {
		if pred[i] == labels[i] {
			n++
		}
	}
	return n
}

type cnnTrainer struct {
	net *nn.CnnNet
	nll nn.NLLLoss
}

func (c *cnnTrainer) step(_ context.Context, x *tensor.Tensor, labels []int, lr float64, stats *utils.TimingStats) (float64, int, error) {
	start := time.Now()
	out, err := c.net.Forward(x)
	if err != nil {
		return 0, 0, err
	}
	stats.ForwardPassTime += time.Since(start)

	start = time.Now()
	loss, grad, err := c.nll.Forward(out, labels)
	if err != nil {
		return 0, 0, err
	}
	stats.LossComputationTime += time.Since(start)

	start = time.Now()
	c.net.ZeroGrad()
	if _, err := c.net.Backward(grad); err != nil {
		return 0, 0, err
	}
	stats.BackwardPassTime += time.Since(start)

	start = time.Now()
	if err := c.net.Update(lr); err != nil {
		return 0, 0, err
	}
	stats.UpdateTime += time.Since(start)

	return loss, countCorrect(nn.Argmax(out), labels), nil
}

func (c *cnnTrainer) weights() *utils.ModelWeights { return c.net.Weights() }

// scnnTrainer sums cross-entropy of the output membrane over every step.
type scnnTrainer struct {
	net *snn.Network
	ce  nn.CrossEntropyLoss
}

func (s *scnnTrainer) step(ctx context.Context, x *tensor.Tensor, labels []int, lr float64, stats *utils.TimingStats) (float64, int, error) {
	src, err := snn.ConstantFrames(x, s.net.Config().Steps)
	if err != nil {
		return 0, 0, err
	}

	start := time.Now()
	trace, tape, err := s.net.RunRecorded(ctx, src)
	if err != nil {
		return 0, 0, err
	}
	stats.ForwardPassTime += time.Since(start)

	start = time.Now()
	gradMem := tensor.New(trace.Membrane.Shape...)
	total := 0.0
	for t := 0; t < trace.Steps(); t++ {
		mem, err := trace.Membrane.Index(t)
		if err != nil {
			return 0, 0, err
		}
		loss, grad, err := s.ce.Forward(mem, labels)
		if err != nil {
			return 0, 0, fmt.Errorf("step %d loss: %w", t, err)
		}
		total += loss
		copy(gradMem.Data[t*grad.Len():], grad.Data)
	}
	stats.LossComputationTime += time.Since(start)

	start = time.Now()
	s.net.ZeroGrad()
	if err := s.net.Backward(tape, nil, gradMem); err != nil {
		return 0, 0, err
	}
	stats.BackwardPassTime += time.Since(start)

	start = time.Now()
	if err := s.net.Update(lr); err != nil {
		return 0, 0, err
	}
	stats.UpdateTime += time.Since(start)

	return total, countCorrect(trace.Predict(), labels), nil
}

func (s *scnnTrainer) weights() *utils.ModelWeights { return s.net.Weights() }

func persist(ctx context.Context, mw *utils.ModelWeights) (string, error) {
	st, err := store.NewStore(*storeKind, *storePath)
	if err != nil {
		return "", err
	}
	defer store.CloseIfSupported(st)
	if err := st.Init(ctx); err != nil {
		return "", err
	}
	id := *runID
	if id == "" {
		id = fmt.Sprintf("%s-%d", mw.Model, time.Now().Unix())
	}
	return id, st.SaveWeights(ctx, id, mw)
}
