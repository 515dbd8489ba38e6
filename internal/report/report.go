// Package report aggregates a run's raw timings into percentile summaries
// and renders them for the terminal.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/ethercrab-rs/latency-data/internal/meta"
)

// Distribution summarises one timing series.
type Distribution struct {
	Count int64
	Min   time.Duration
	Mean  time.Duration
	Max   time.Duration
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
}

// Summary is everything the terminal report and the manifest need from one
// run.
type Summary struct {
	Run      string
	Scenario string
	Hostname string

	Cycles      int
	Frames      int
	Unresolved  int
	Propagation time.Duration
	CyclePeriod time.Duration

	Processing   Distribution
	TickWait     Distribution
	CycleDelta   Distribution
	FrameLatency Distribution
}

// distBuilder accumulates nanosecond samples. Histogram range covers 1ns to
// 60s at 3 significant figures.
type distBuilder struct {
	hist *hdrhistogram.Histogram
	min  time.Duration
	max  time.Duration
	sum  time.Duration
	n    int64
}

func newDistBuilder() *distBuilder {
	return &distBuilder{hist: hdrhistogram.New(1, 60_000_000_000, 3)}
}

func (b *distBuilder) record(d time.Duration) {
	ns := d.Nanoseconds()
	if ns < b.hist.LowestTrackableValue() {
		ns = b.hist.LowestTrackableValue()
	}
	if ns > b.hist.HighestTrackableValue() {
		ns = b.hist.HighestTrackableValue()
	}
	_ = b.hist.RecordValue(ns)

	if b.n == 0 || d < b.min {
		b.min = d
	}
	if d > b.max {
		b.max = d
	}

	b.sum += d
	b.n++
}

func (b *distBuilder) build() Distribution {
	dist := Distribution{
		Count: b.n,
		Min:   b.min,
		Max:   b.max,
	}

	if b.n > 0 {
		dist.Mean = b.sum / time.Duration(b.n)
		dist.P50 = time.Duration(b.hist.ValueAtQuantile(50))
		dist.P90 = time.Duration(b.hist.ValueAtQuantile(90))
		dist.P99 = time.Duration(b.hist.ValueAtQuantile(99))
	}

	return dist
}

// SummarizeFrames builds the latency distribution for a standalone trace,
// e.g. a dump analyzed without its run record.
func SummarizeFrames(frames []meta.Frame) Distribution {
	latency := newDistBuilder()
	for _, f := range frames {
		latency.record(f.Delta)
	}

	return latency.build()
}

// Summarize builds the report for one run and its correlated frames.
func Summarize(run meta.RunMetadata, frames []meta.Frame, unresolved int) Summary {
	processing := newDistBuilder()
	tickWait := newDistBuilder()
	cycleDelta := newDistBuilder()
	latency := newDistBuilder()

	for _, c := range run.Cycles {
		processing.record(c.ProcessingTime)
		tickWait.record(c.TickWait)
		cycleDelta.record(c.CycleDelta)
	}

	for _, f := range frames {
		latency.record(f.Delta)
	}

	return Summary{
		Run:          run.Name,
		Scenario:     run.Scenario,
		Hostname:     run.Hostname,
		Cycles:       len(run.Cycles),
		Frames:       len(frames),
		Unresolved:   unresolved,
		Propagation:  run.NetworkPropagationTime,
		CyclePeriod:  time.Duration(run.Settings.CycleTimeUs) * time.Microsecond,
		Processing:   processing.build(),
		TickWait:     tickWait.build(),
		CycleDelta:   cycleDelta.build(),
		FrameLatency: latency.build(),
	}
}

// Print writes a human readable summary report.
func Print(w io.Writer, s Summary) {
	fmt.Fprintf(w, "\n--- %s ---\n", s.Scenario)
	fmt.Fprintf(w, "Run:               %s\n", s.Run)
	fmt.Fprintf(w, "Host:              %s\n", s.Hostname)
	fmt.Fprintf(w, "Cycle period:      %s\n", s.CyclePeriod)
	fmt.Fprintf(w, "Cycles:            %d\n", s.Cycles)
	fmt.Fprintf(w, "Propagation:       %s\n", s.Propagation)

	PrintDistribution(w, "Processing time", s.Processing)
	PrintDistribution(w, "Tick wait", s.TickWait)
	PrintDistribution(w, "Cycle delta", s.CycleDelta)

	if s.Frames > 0 {
		fmt.Fprintf(w, "\nCorrelated frames: %d\n", s.Frames)
		if s.Unresolved > 0 {
			fmt.Fprintf(w, "Unresolved:        %d\n", s.Unresolved)
		}
		PrintDistribution(w, "Frame latency", s.FrameLatency)
	}
}

// PrintDistribution writes one named timing distribution.
func PrintDistribution(w io.Writer, name string, d Distribution) {
	fmt.Fprintf(w, "\n%s:\n", name)
	fmt.Fprintf(w, "  Min:             %s\n", d.Min)
	fmt.Fprintf(w, "  Mean:            %s\n", d.Mean)
	fmt.Fprintf(w, "  Max:             %s\n", d.Max)
	fmt.Fprintf(w, "  P50:             %s\n", d.P50)
	fmt.Fprintf(w, "  P90:             %s\n", d.P90)
	fmt.Fprintf(w, "  P99:             %s\n", d.P99)
}
