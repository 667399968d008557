package utils

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"
)

func TestDurationUS(t *testing.T) {
	d := 1234*time.Microsecond + 567*time.Nanosecond
	got := DurationUS(d)
	if math.Abs(got-1234.567) > 0.001 {
		t.Fatalf("want 1234.567µs, got %.3f", got)
	}
}

func captureOutput(t *testing.T, verbose bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	oldOut, oldVerbose := Output, Verbose
	Output, Verbose = &buf, verbose
	t.Cleanup(func() { Output, Verbose = oldOut, oldVerbose })
	return &buf
}

func TestLogfRespectsVerbose(t *testing.T) {
	buf := captureOutput(t, false)
	Logf("step %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output when Verbose is false, got %q", buf.String())
	}

	Verbose = true
	Logf("step %d", 2)
	if buf.String() != "step 2\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestPrintTimingStatsSimulationSection(t *testing.T) {
	buf := captureOutput(t, true)
	stats := &TimingStats{TotalTime: 10 * time.Millisecond, ForwardPassTime: 4 * time.Millisecond}
	stats.AddStep(2 * time.Millisecond)
	stats.AddStep(4 * time.Millisecond)
	PrintTimingStats(stats, 2)

	out := buf.String()
	if !strings.Contains(out, "Time steps simulated: 2") {
		t.Errorf("missing step count in:\n%s", out)
	}
	if !strings.Contains(out, "Average time per step: 3ms") {
		t.Errorf("missing per-step average in:\n%s", out)
	}
	if !strings.Contains(out, "Forward pass: 4ms (40.0%)") {
		t.Errorf("missing forward share in:\n%s", out)
	}
}

func TestPrintTimingStatsZeroTotal(t *testing.T) {
	buf := captureOutput(t, true)
	PrintTimingStats(&TimingStats{}, 0)
	if strings.Contains(buf.String(), "NaN") {
		t.Errorf("zero stats printed NaN:\n%s", buf.String())
	}
}
