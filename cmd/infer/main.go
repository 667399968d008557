// snn-infer: single-image inference from a saved checkpoint
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/Wyndegarde/Maters-Project/nn"
	"github.com/Wyndegarde/Maters-Project/snn"
	"github.com/Wyndegarde/Maters-Project/tensor"
	"github.com/Wyndegarde/Maters-Project/utils"
)

var (
	weightsFile = flag.String("weights", "", "Weights JSON file")
	configFile  = flag.String("config", "", "Network config the weights were trained with")
	inputFile   = flag.String("input", "", "Input JSON file: flat array of R*R pixels")
	model       = flag.String("model", "", "Model when no weights are given: cnn, scnn")
	verbose     = flag.Bool("verbose", true, "Verbose output")
	topK        = flag.Int("topk", 3, "Top predictions to show")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := utils.DefaultNetworkConfig()
	if *configFile != "" {
		var err error
		if cfg, err = utils.LoadNetworkConfig(*configFile); err != nil {
			return err
		}
	}

	var weights *utils.ModelWeights
	kind := *model
	if *weightsFile != "" {
		var err error
		if weights, err = utils.LoadWeights(*weightsFile); err != nil {
			return fmt.Errorf("loading weights: %w", err)
		}
		utils.Logf("Loaded %d layers of %s", len(weights.Layers), weights.Model)
		if kind == "" {
			kind = weights.Model
		}
	} else {
		fmt.Println("No weights file, running with freshly initialised parameters.")
	}

	x, err := loadInput(cfg.Resolution)
	if err != nil {
		return err
	}

	start := time.Now()
	var scores []float64
	switch kind {
	case "cnn":
		scores, err = inferCnn(cfg, weights, x)
	case "scnn", "":
		scores, err = inferScnn(cfg, weights, x)
	default:
		err = fmt.Errorf("unknown model: %s", kind)
	}
	if err != nil {
		return err
	}
	utils.Logf("Inference time: %v", time.Since(start))

	showResults(scores, *topK)
	return nil
}

func loadInput(res int) (*tensor.Tensor, error) {
	var pixels []float64
	if *inputFile != "" {
		data, err := os.ReadFile(*inputFile)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &pixels); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", *inputFile, err)
		}
	} else {
		pixels = make([]float64, res*res)
		for i := range pixels {
			pixels[i] = rand.Float64()
		}
	}
	return tensor.FromData(pixels, 1, 1, res, res)
}

// inferCnn returns class probabilities.
func inferCnn(cfg utils.NetworkConfig, weights *utils.ModelWeights, x *tensor.Tensor) ([]float64, error) {
	net, err := nn.NewCnnNet(cfg)
	if err != nil {
		return nil, err
	}
	if weights != nil {
		if err := net.LoadWeights(weights); err != nil {
			return nil, err
		}
	}
	net.SetTraining(false)
	out, err := net.Forward(x)
	if err != nil {
		return nil, err
	}
	probs := make([]float64, len(out.Data))
	for i, v := range out.Data {
		probs[i] = math.Exp(v)
	}
	return probs, nil
}

// inferScnn returns per-class firing rates of the output layer.
func inferScnn(cfg utils.NetworkConfig, weights *utils.ModelWeights, x *tensor.Tensor) ([]float64, error) {
	cfg.BatchSize = 1
	net, err := snn.NewNetwork(cfg)
	if err != nil {
		return nil, err
	}
	if weights != nil {
		if err := net.LoadWeights(weights); err != nil {
			return nil, err
		}
	}
	net.SetTraining(false)
	trace, err := net.Forward(context.Background(), x)
	if err != nil {
		return nil, err
	}
	counts := trace.SpikeCounts()
	rates := make([]float64, len(counts.Data))
	for i, c := range counts.Data {
		rates[i] = c / float64(trace.Steps())
	}
	return rates, nil
}

func showResults(scores []float64, k int) {
	indices := topKIndices(scores, k)

	fmt.Printf("\nTop %d predictions:\n", len(indices))
	for i, idx := range indices {
		fmt.Printf("  %d. Class %d: %.4f\n", i+1, idx, scores[idx])
	}
}

func topKIndices(vals []float64, k int) []int {
	if k > len(vals) {
		k = len(vals)
	}
	indices := make([]int, k)
	used := make(map[int]bool)
	for i := 0; i < k; i++ {
		maxIdx, maxVal := -1, math.Inf(-1)
		for j, v := range vals {
			if used[j] {
				continue
			}
			// NaN ranks below every number
			if math.IsNaN(v) {
				v = math.Inf(-1)
			}
			if maxIdx < 0 || v > maxVal {
				maxVal, maxIdx = v, j
			}
		}
		indices[i] = maxIdx
		used[maxIdx] = true
	}
	return indices
}
