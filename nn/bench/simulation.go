package bench

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Wyndegarde/Maters-Project/snn"
	"github.com/Wyndegarde/Maters-Project/tensor"
	"github.com/Wyndegarde/Maters-Project/utils"
)

// SimPoint summarises repeated spiking forward passes.
type SimPoint struct {
	Runs    int
	Steps   int
	Total   time.Duration
	PerStep time.Duration
}

// TimeSimulation runs net.Forward on x runs times and reports the mean step
// latency. The network's own Stats are left untouched.
func TimeSimulation(ctx context.Context, net *snn.Network, x *tensor.Tensor, runs int) (SimPoint, error) {
	if runs <= 0 {
		return SimPoint{}, fmt.Errorf("runs must be positive, got %d", runs)
	}
	prev := net.Stats
	stats := &utils.TimingStats{}
	net.Stats = stats
	defer func() { net.Stats = prev }()

	start := time.Now()
	for i := 0; i < runs; i++ {
		if _, err := net.Forward(ctx, x); err != nil {
			return SimPoint{}, fmt.Errorf("run %d: %w", i+1, err)
		}
	}
	p := SimPoint{Runs: runs, Steps: stats.SimulatedSteps, Total: time.Since(start)}
	if stats.SimulatedSteps > 0 {
		p.PerStep = stats.StepTime / time.Duration(stats.SimulatedSteps)
	}
	return p, nil
}

// WriteSimulationRow writes name,runs,steps,total_us,per_step_us.
func WriteSimulationRow(w io.Writer, name string, p SimPoint) {
	fmt.Fprintf(w, "%s,%d,%d,%s,%s\n", name, p.Runs, p.Steps, toMicro(p.Total), toMicro(p.PerStep))
}
