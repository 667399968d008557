// snn-simulate: run the spiking network for T steps on a synthetic frame and
// summarise the output trace.
//
// Usage:
//
//	snn-simulate --config=net.yaml --weights=scnn.json --store=sqlite --run-id=r1
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Wyndegarde/Maters-Project/nn"
	"github.com/Wyndegarde/Maters-Project/nn/bench"
	"github.com/Wyndegarde/Maters-Project/snn"
	"github.com/Wyndegarde/Maters-Project/store"
	"github.com/Wyndegarde/Maters-Project/tensor"
	"github.com/Wyndegarde/Maters-Project/utils"

	"golang.org/x/exp/rand"
)

var (
	configFile  = flag.String("config", "", "Network config file (YAML or JSON)")
	weightsFile = flag.String("weights", "", "Load weights from a JSON checkpoint")
	sequence    = flag.Bool("sequence", false, "Present a different random frame at every step")
	seed        = flag.Uint64("seed", 7, "Input random seed")
	verbose     = flag.Bool("verbose", true, "Verbose output")
	storeKind   = flag.String("store", "", "Persist the trace to a store: memory, sqlite")
	storePath   = flag.String("store-path", "snn.db", "SQLite database path")
	runID       = flag.String("run-id", "", "Run ID; with -store, weights stored under it are loaded first")
	benchRuns   = flag.Int("bench", 0, "Also time this many layer and simulation benchmark runs")
	benchOut    = flag.String("bench-out", "", "CSV file for benchmark rows (default stdout)")
	surrogates  = flag.Bool("list-surrogates", false, "List registered surrogate gradients and exit")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	if *surrogates {
		fmt.Println(strings.Join(snn.ListSurrogates(), "\n"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := utils.DefaultNetworkConfig()
	if *configFile != "" {
		var err error
		if cfg, err = utils.LoadNetworkConfig(*configFile); err != nil {
			return err
		}
	}

	stats := &utils.TimingStats{}
	totalStart := time.Now()

	start := time.Now()
	net, err := snn.NewNetwork(cfg)
	if err != nil {
		return err
	}
	net.SetTraining(false)
	net.Stats = stats
	stats.ModelInitTime = time.Since(start)
	utils.Logf("Spiking network: resolution %d, pooled sizes %v, %d steps", cfg.Resolution, net.Shapes(), cfg.Steps)

	var st store.Store
	if *storeKind != "" {
		if st, err = store.NewStore(*storeKind, *storePath); err != nil {
			return err
		}
		defer store.CloseIfSupported(st)
		if err := st.Init(ctx); err != nil {
			return err
		}
	}

	start = time.Now()
	if err := loadWeights(ctx, net, st); err != nil {
		return err
	}
	x := randomInput(cfg, *sequence)
	stats.DataLoadingTime = time.Since(start)

	start = time.Now()
	var trace *snn.Trace
	if *sequence {
		trace, err = net.ForwardSequence(ctx, x)
	} else {
		trace, err = net.Forward(ctx, x)
	}
	if err != nil {
		return err
	}
	stats.ForwardPassTime = time.Since(start)

	if err := summarise(trace); err != nil {
		return err
	}

	if st != nil {
		start = time.Now()
		id := *runID
		if id == "" {
			id = fmt.Sprintf("trace-%d", time.Now().Unix())
		}
		if err := st.SaveTrace(ctx, id, store.NewTraceRecord(trace)); err != nil {
			return err
		}
		stats.PersistTime = time.Since(start)
		utils.Logf("Stored trace under run %s", id)
	}

	if *benchRuns > 0 {
		if err := runBenchmarks(ctx, cfg, net); err != nil {
			return err
		}
	}

	stats.TotalTime = time.Since(totalStart)
	utils.PrintTimingStats(stats, 1)
	return nil
}

func loadWeights(ctx context.Context, net *snn.Network, st store.Store) error {
	if *weightsFile != "" {
		mw, err := utils.LoadWeights(*weightsFile)
		if err != nil {
			return err
		}
		utils.Logf("Loaded weights from %s", *weightsFile)
		return net.LoadWeights(mw)
	}
	if st == nil || *runID == "" {
		return nil
	}
	mw, ok, err := st.GetWeights(ctx, *runID)
	if err != nil || !ok {
		return err
	}
	utils.Logf("Loaded weights stored under run %s", *runID)
	return net.LoadWeights(mw)
}

// randomInput returns [batch, 1, R, R], or [T, batch, 1, R, R] when perStep is set.
func randomInput(cfg utils.NetworkConfig, perStep bool) *tensor.Tensor {
	rng := rand.New(rand.NewSource(*seed))
	var x *tensor.Tensor
	if perStep {
		x = tensor.New(cfg.Steps, cfg.BatchSize, 1, cfg.Resolution, cfg.Resolution)
	} else {
		x = tensor.New(cfg.BatchSize, 1, cfg.Resolution, cfg.Resolution)
	}
	for i := range x.Data {
		x.Data[i] = rng.Float64()
	}
	return x
}

func summarise(trace *snn.Trace) error {
	counts := trace.SpikeCounts()
	pred := trace.Predict()
	classes := counts.Shape[1]
	for b, p := range pred {
		utils.Logf("  sample %d: predicted %d, spike counts %v", b, p, counts.Data[b*classes:(b+1)*classes])
	}

	active := make([]string, trace.Steps())
	for t := range active {
		spk, err := trace.Spikes.Index(t)
		if err != nil {
			return err
		}
		active[t] = fmt.Sprintf("%.0f", spk.Sum())
	}
	utils.Logf("Output spikes per step: %s", strings.Join(active, " "))
	return nil
}

func runBenchmarks(ctx context.Context, cfg utils.NetworkConfig, net *snn.Network) error {
	out := os.Stdout
	if *benchOut != "" {
		f, err := os.Create(*benchOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	baseline, err := nn.NewCnnNet(cfg)
	if err != nil {
		return err
	}
	x := randomInput(cfg, false)

	fmt.Fprintln(out, bench.CSVHeader)
	if _, err := bench.RunLayerBenchmarks("cnn", &baseline.Sequential, x, *benchRuns, out); err != nil {
		return err
	}
	p, err := bench.TimeSimulation(ctx, net, x, *benchRuns)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "net,runs,steps,total_us,per_step_us")
	bench.WriteSimulationRow(out, "scnn", p)
	return nil
}
