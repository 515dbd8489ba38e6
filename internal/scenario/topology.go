package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethercrab-rs/latency-data/internal/coop"
	"github.com/ethercrab-rs/latency-data/internal/meta"
	"github.com/ethercrab-rs/latency-data/internal/transport"
)

// Kind selects how a topology distributes I/O duty and cyclic task duty
// across execution contexts.
type Kind int

const (
	// KindCooperative multiplexes all lanes and the I/O duty on a single
	// execution context with explicit yield points.
	KindCooperative Kind = iota

	// KindThreadPerLane runs one dedicated I/O duty thread plus one
	// dedicated thread per lane.
	KindThreadPerLane

	// KindSharedTaskThread runs one dedicated I/O duty thread plus a
	// single task thread interleaving all lanes cooperatively.
	KindSharedTaskThread
)

// Topology is one workload variant. The set is closed: variants are values
// of this type, not open-ended implementations.
type Topology struct {
	// Name, e.g. "1thr-1task" for one thread running one task.
	Name string

	Kind Kind

	// Number of lanes, each bound to its own endpoint.
	Lanes int

	// Cycles per lane. Reduced for higher lane counts to keep run
	// duration bounded.
	Iterations int
}

// Catalog is the fixed set of topology variants, in execution order.
func Catalog() []Topology {
	return []Topology{
		{Name: "1thr-1task", Kind: KindCooperative, Lanes: 1, Iterations: 5000},
		{Name: "1thr-2task", Kind: KindCooperative, Lanes: 2, Iterations: 5000},
		{Name: "1thr-10task", Kind: KindCooperative, Lanes: 10, Iterations: 2000},
		{Name: "2thr-1task", Kind: KindThreadPerLane, Lanes: 1, Iterations: 5000},
		{Name: "3thr-2task", Kind: KindThreadPerLane, Lanes: 2, Iterations: 5000},
		{Name: "11thr-10task", Kind: KindThreadPerLane, Lanes: 10, Iterations: 2000},
		{Name: "2thr-10task", Kind: KindSharedTaskThread, Lanes: 10, Iterations: 2000},
	}
}

// errPumpExitedEarly is the liveness failure: the I/O duty context finished
// while lanes were still mid-run.
var errPumpExitedEarly = errors.New("io duty context exited before all lanes joined")

// Run executes the topology against the borrowed network and returns the
// concatenated cycle metadata of all lanes plus the propagation reference.
func (t Topology) Run(ctx context.Context, net transport.Network, settings meta.TestSettings) ([]meta.CycleMetadata, time.Duration, error) {
	endpoints, err := net.Discover(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("discovering endpoints: %w", err)
	}

	propagation, err := transport.MaxPropagationTime(endpoints)
	if err != nil {
		return nil, 0, err
	}

	lanes, err := net.OpenLanes(t.Lanes)
	if err != nil {
		return nil, 0, err
	}

	period := time.Duration(settings.CycleTimeUs) * time.Microsecond

	var cycles []meta.CycleMetadata

	switch t.Kind {
	case KindCooperative:
		cycles, err = runCooperative(net, settings, lanes, t.Iterations, period)
	case KindThreadPerLane:
		cycles, err = runThreadPerLane(net, settings, lanes, t.Iterations, period)
	case KindSharedTaskThread:
		cycles, err = runSharedTaskThread(net, settings, lanes, t.Iterations, period)
	default:
		err = fmt.Errorf("unknown topology kind %d", t.Kind)
	}

	if err != nil {
		return nil, 0, err
	}

	return cycles, propagation, nil
}

// coopWaits suspends by yielding the run token. Response waits also watch
// the pump lifetime so a dead I/O duty task fails the lane instead of
// stranding it on a channel nobody will ever serve.
func coopWaits(t *coop.Task, pumpDead <-chan struct{}) waits {
	return waits{
		response: func(ch <-chan transport.Response) transport.Response {
			resp, ok := coop.AwaitEither(t, ch, pumpDead)
			if !ok {
				return transport.Response{Err: errPumpExitedEarly}
			}

			return resp
		},
		tick: func(ch <-chan time.Time) {
			coop.Await(t, ch)
		},
	}
}

// coopTask pins the hosting goroutine to a locked OS thread carrying the
// task priority before any cycle work runs. The run token still admits one
// task at a time; pinning changes which thread executes the work, not the
// interleaving.
func coopTask(settings meta.TestSettings, fn func(*coop.Task) error) func(*coop.Task) error {
	return func(t *coop.Task) error {
		if err := lockThreadPriority("task", settings, settings.TaskPrio); err != nil {
			return err
		}

		return fn(t)
	}
}

// runCooperative interleaves the I/O pump and every lane on one cooperative
// scheduler. Each task pins and prioritises its own hosting thread, so the
// configured priorities apply to the threads actually doing the measured
// work. The last lane to finish fires the single-use stop signal, so the
// pump is only told to stop once every lane has completed its iteration
// count; a pump that dies any earlier fails every waiting lane instead of
// stranding it.
func runCooperative(net transport.Network, settings meta.TestSettings, lanes []transport.Lane, iterations int, period time.Duration) ([]meta.CycleMetadata, error) {
	sched := coop.New()

	stop := make(chan struct{}, 1)
	pumpDead := make(chan struct{})
	results := make([][]meta.CycleMetadata, len(lanes))
	remaining := len(lanes)

	sched.Go("io-pump", func(t *coop.Task) error {
		defer close(pumpDead)

		if err := lockThreadPriority("net", settings, settings.NetPrio); err != nil {
			return err
		}

		for {
			req, ok := coop.AwaitEither(t, net.Requests(), stop)
			if !ok {
				return nil
			}

			net.Serve(req)
		}
	})

	for i, lane := range lanes {
		i, lane := i, lane

		sched.Go(fmt.Sprintf("lane-%d", i), func(t *coop.Task) error {
			// Runs under the run token, so the counter needs no lock.
			// Outermost so even a scheduling setup failure still lets
			// the pump stop.
			defer func() {
				remaining--
				if remaining == 0 {
					stop <- struct{}{}
				}
			}()

			return coopTask(settings, func(t *coop.Task) error {
				cycles, err := runCycles(lane, iterations, period, coopWaits(t, pumpDead))
				if err != nil {
					return err
				}

				results[i] = cycles

				return nil
			})(t)
		})
	}

	if err := sched.Wait(); err != nil {
		return nil, err
	}

	return concat(results), nil
}

// startPump launches the dedicated I/O duty thread. The ready channel
// reports whether scheduling setup succeeded before any lane is allowed to
// submit; dead closes when the pump thread exits for any reason, so lanes
// can watch it instead of blocking on a channel nobody will ever serve.
func startPump(net transport.Network, settings meta.TestSettings, stop <-chan struct{}) (done <-chan error, dead <-chan struct{}, err error) {
	ready := make(chan error, 1)
	doneCh := make(chan error, 1)
	deadCh := make(chan struct{})

	go func() {
		defer close(deadCh)

		if err := lockThreadPriority("net", settings, settings.NetPrio); err != nil {
			ready <- err
			return
		}

		ready <- nil
		doneCh <- transport.RunPump(net, stop)
	}()

	if err := <-ready; err != nil {
		return nil, nil, err
	}

	return doneCh, deadCh, nil
}

// stopPump performs the join-then-signal handoff: verify the pump is still
// alive after every lane joined, then fire the stop signal exactly once.
func stopPump(stop chan<- struct{}, done <-chan error) error {
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("io duty failed mid-run: %w", err)
		}

		return errPumpExitedEarly

	default:
	}

	stop <- struct{}{}

	return <-done
}

// runThreadPerLane starts one I/O duty thread plus one thread per lane,
// each with its own scheduling configuration.
func runThreadPerLane(net transport.Network, settings meta.TestSettings, lanes []transport.Lane, iterations int, period time.Duration) ([]meta.CycleMetadata, error) {
	stop := make(chan struct{}, 1)

	pumpDone, pumpDead, err := startPump(net, settings, stop)
	if err != nil {
		return nil, err
	}

	results := make([][]meta.CycleMetadata, len(lanes))
	errs := make([]error, len(lanes))

	var wg sync.WaitGroup

	for i, lane := range lanes {
		wg.Add(1)

		go func(i int, lane transport.Lane) {
			defer wg.Done()

			if err := lockThreadPriority("task", settings, settings.TaskPrio); err != nil {
				errs[i] = err
				return
			}

			results[i], errs[i] = runCycles(lane, iterations, period, blockingWaits(pumpDead))
		}(i, lane)
	}

	wg.Wait()

	if err := stopPump(stop, pumpDone); err != nil {
		return nil, err
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return concat(results), nil
}

// runSharedTaskThread starts one I/O duty thread plus a cooperative
// scheduler interleaving all lanes at the task priority. The run token
// admits one lane at a time, so at most one task-priority thread is ever
// runnable alongside the pump.
func runSharedTaskThread(net transport.Network, settings meta.TestSettings, lanes []transport.Lane, iterations int, period time.Duration) ([]meta.CycleMetadata, error) {
	stop := make(chan struct{}, 1)

	pumpDone, pumpDead, err := startPump(net, settings, stop)
	if err != nil {
		return nil, err
	}

	results := make([][]meta.CycleMetadata, len(lanes))
	taskDone := make(chan error, 1)

	go func() {
		sched := coop.New()

		for i, lane := range lanes {
			i, lane := i, lane

			sched.Go(fmt.Sprintf("lane-%d", i), coopTask(settings, func(t *coop.Task) error {
				cycles, err := runCycles(lane, iterations, period, coopWaits(t, pumpDead))
				if err != nil {
					return err
				}

				results[i] = cycles

				return nil
			}))
		}

		taskDone <- sched.Wait()
	}()

	taskErr := <-taskDone

	if err := stopPump(stop, pumpDone); err != nil {
		return nil, err
	}

	if taskErr != nil {
		return nil, taskErr
	}

	return concat(results), nil
}

func concat(results [][]meta.CycleMetadata) []meta.CycleMetadata {
	var out []meta.CycleMetadata
	for _, r := range results {
		out = append(out, r...)
	}

	return out
}
