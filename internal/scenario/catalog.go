package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethercrab-rs/latency-data/internal/correlate"
	"github.com/ethercrab-rs/latency-data/internal/meta"
	"github.com/ethercrab-rs/latency-data/internal/transport"
)

// Session is one in-flight capture bracket.
type Session interface {
	// Stop ends the capture after the cool-down delay.
	Stop() error

	// Path of the written dump file, empty when capturing is disabled.
	Path() string
}

// Capturer brackets scenario runs with an external traffic capture.
type Capturer interface {
	// Start begins capturing into a file named after the run, returning
	// once the capture has settled enough not to clip leading frames.
	Start(runName string) (Session, error)
}

// PriorityPairs returns the (net, task) priority pairs the catalog sweeps.
// On realtime hosts: the default pair, two pairs straddling the kernel
// default realtime priority from below, and two aggressive pairs well above
// it. Without a realtime kernel priorities have no effect, so the sweep
// collapses to the default pair.
func PriorityPairs(isRT bool) [][2]uint8 {
	if !isRT {
		return [][2]uint8{{0, 0}}
	}

	return [][2]uint8{
		{0, 0},
		{48, 47},
		{49, 48},
		{90, 89},
		{99, 98},
	}
}

// Result is everything one scenario run produced.
type Result struct {
	Run meta.RunMetadata

	// Correlated frames from the run's trace, nil when no trace was
	// available.
	Frames []meta.Frame

	// Entries left open at the end of correlation.
	Unresolved int

	DumpPath string
}

// Batch executes the cross product of topologies, priority pairs, cycle
// periods and repeats. The network is constructed once per process and
// borrowed by every run; the batch never owns or reconstructs it.
type Batch struct {
	Net     transport.Network
	Capture Capturer

	// Base settings from the host probes. Priorities and cycle period are
	// filled in per combination.
	Base meta.TestSettings

	// Cycle periods to sweep, in microseconds.
	PeriodsUs []uint32

	// Repeats per combination.
	Repeats int

	// Filter selects scenarios by substring match on the name. Empty
	// matches everything.
	Filter string

	// Priorities pins the (net, task) pairs to sweep. Nil uses
	// PriorityPairs for the host's kernel flavour.
	Priorities [][2]uint8

	// Iterations overrides the per-topology cycle count when non-zero.
	Iterations int
}

// Run executes every selected combination in catalog order. Any failure
// aborts the whole batch; nothing partial is returned.
func (b *Batch) Run(ctx context.Context) ([]Result, error) {
	if len(b.PeriodsUs) == 0 {
		b.PeriodsUs = []uint32{1000}
	}
	if b.Repeats <= 0 {
		b.Repeats = 1
	}

	pairs := b.Priorities
	if pairs == nil {
		pairs = PriorityPairs(b.Base.IsRT)
	}

	var results []Result

	for _, topo := range Catalog() {
		if b.Filter != "" && !strings.Contains(topo.Name, b.Filter) {
			continue
		}

		if b.Iterations > 0 {
			topo.Iterations = b.Iterations
		}

		for _, prios := range pairs {
			for _, period := range b.PeriodsUs {
				for rep := 0; rep < b.Repeats; rep++ {
					res, err := b.runOne(ctx, topo, prios, period)
					if err != nil {
						return nil, fmt.Errorf("scenario %s: %w", topo.Name, err)
					}

					results = append(results, res)
				}
			}
		}
	}

	return results, nil
}

// runOne executes a single scenario run bracketed by a capture and
// correlates its trace.
func (b *Batch) runOne(ctx context.Context, topo Topology, prios [2]uint8, periodUs uint32) (Result, error) {
	settings := b.Base
	settings.NetPrio = prios[0]
	settings.TaskPrio = prios[1]
	settings.CycleTimeUs = periodUs

	if settings.IsRT {
		logPriorityWarnings(settings)
	}

	id := meta.NewRunID(topo.Name, settings)

	log := logrus.WithFields(logrus.Fields{
		"scenario": topo.Name,
		"run":      id.Name,
	})

	if rec, ok := b.Net.(transport.TraceRecorder); ok {
		rec.ResetTrace()
	}

	session, err := b.Capture.Start(id.Name)
	if err != nil {
		return Result{}, fmt.Errorf("starting capture: %w", err)
	}

	log.Info("running scenario")

	start := time.Now()

	cycles, propagation, err := topo.Run(ctx, b.Net, settings)
	if err != nil {
		// Best effort: don't leave the capture process behind.
		_ = session.Stop()

		return Result{}, err
	}

	if err := session.Stop(); err != nil {
		return Result{}, fmt.Errorf("stopping capture: %w", err)
	}

	log.WithFields(logrus.Fields{
		"cycles":         len(cycles),
		"elapsed":        time.Since(start).Round(time.Millisecond).String(),
		"propagation_ns": propagation.Nanoseconds(),
	}).Info("scenario complete")

	run := meta.Aggregate(id, topo.Name, settings, cycles, propagation)

	trace, err := b.loadTrace(session)
	if err != nil {
		return Result{}, err
	}

	res := Result{Run: run, DumpPath: session.Path()}

	if trace != nil {
		correlated, err := correlate.Correlate(trace)
		if err != nil {
			return Result{}, fmt.Errorf("correlating trace for %s: %w", id.Name, err)
		}

		res.Frames = correlated.Frames
		res.Unresolved = len(correlated.Unresolved)

		if res.Unresolved > 0 {
			log.WithField("unresolved", res.Unresolved).
				Warn("trace left exchanges unresolved")
		}
	}

	return res, nil
}

// loadTrace prefers the on-disk dump; transports that record their own
// trace cover runs where capturing is disabled.
func (b *Batch) loadTrace(session Session) ([]correlate.TraceFrame, error) {
	if path := session.Path(); path != "" {
		return correlate.ReadDump(path)
	}

	if rec, ok := b.Net.(transport.TraceRecorder); ok {
		return rec.Trace(), nil
	}

	return nil, nil
}
