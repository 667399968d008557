package bench

import (
	"fmt"
	"io"
	"time"

	"github.com/Wyndegarde/Maters-Project/nn"
	"github.com/Wyndegarde/Maters-Project/tensor"
)

// Point is one timed pass over a single layer.
type Point struct {
	Net           string
	Index         int
	Layer         string
	Run           int
	Fwd, Bwd, Upd time.Duration
}

// TimeLayers runs one forward, backward and zero-rate update pass over seq,
// timing every layer separately. The backward pass is seeded with ones.
func TimeLayers(seq *nn.Sequential, x *tensor.Tensor) ([]Point, error) {
	points := make([]Point, len(seq.Layers))
	out := x
	for i, layer := range seq.Layers {
		start := time.Now()
		next, err := layer.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s) forward: %w", i, layer.Tag(), err)
		}
		points[i] = Point{Index: i, Layer: layer.Tag(), Fwd: time.Since(start)}
		out = next
	}

	grad := tensor.New(out.Shape...)
	for i := range grad.Data {
		grad.Data[i] = 1
	}
	for i := len(seq.Layers) - 1; i >= 0; i-- {
		start := time.Now()
		g, err := seq.Layers[i].Backward(grad)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s) backward: %w", i, seq.Layers[i].Tag(), err)
		}
		points[i].Bwd = time.Since(start)
		grad = g
	}

	for i, layer := range seq.Layers {
		start := time.Now()
		if err := layer.Update(0); err != nil {
			return nil, fmt.Errorf("layer %d (%s) update: %w", i, layer.Tag(), err)
		}
		points[i].Upd = time.Since(start)
	}
	return points, nil
}

// RunLayerBenchmarks repeats TimeLayers runs times and writes one CSV row per
// layer and run: net,index,layer,run,fwd_us,bwd_us,upd_us.
func RunLayerBenchmarks(name string, seq *nn.Sequential, x *tensor.Tensor, runs int, w io.Writer) ([]Point, error) {
	var all []Point
	for run := 1; run <= runs; run++ {
		points, err := TimeLayers(seq, x)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", run, err)
		}
		for _, p := range points {
			p.Net, p.Run = name, run
			if w != nil {
				fmt.Fprintf(w, "%s,%d,%s,%d,%s,%s,%s\n",
					p.Net, p.Index, p.Layer, p.Run, toMicro(p.Fwd), toMicro(p.Bwd), toMicro(p.Upd))
			}
			all = append(all, p)
		}
	}
	return all, nil
}

// CSVHeader is the header row matching RunLayerBenchmarks output.
const CSVHeader = "net,index,layer,run,fwd_us,bwd_us,upd_us"

// Helper to convert time.Duration to microseconds string
func toMicro(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d.Nanoseconds())/1000.0)
}
