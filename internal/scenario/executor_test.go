package scenario

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ethercrab-rs/latency-data/internal/coop"
	"github.com/ethercrab-rs/latency-data/internal/meta"
	"github.com/ethercrab-rs/latency-data/internal/transport"
)

// echoLane resolves every exchange immediately, no pump needed.
type echoLane struct {
	out     []byte
	submits int
}

func (l *echoLane) Index() int { return 0 }

func (l *echoLane) Submit() (<-chan transport.Response, error) {
	l.submits++

	ch := make(chan transport.Response, 1)
	ch <- transport.Response{Data: l.out}

	return ch, nil
}

func (l *echoLane) Output() []byte { return l.out }

func (l *echoLane) Process() {
	for i := range l.out {
		l.out[i]++
	}
}

func TestRunCyclesProducesKEntries(t *testing.T) {
	const iterations = 40

	lane := &echoLane{out: make([]byte, 8)}

	cycles, err := runCycles(lane, iterations, 200*time.Microsecond, blockingWaits(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cycles) != iterations {
		t.Fatalf("expected exactly %d entries, got %d", iterations, len(cycles))
	}
	if lane.submits != iterations {
		t.Fatalf("expected %d exchanges, got %d", iterations, lane.submits)
	}

	for i, c := range cycles {
		if c.Cycle != i {
			t.Fatalf("entry %d: cycle index %d, indices must be contiguous from zero", i, c.Cycle)
		}
		if c.ProcessingTime < 0 || c.TickWait < 0 || c.CycleDelta < 0 {
			t.Fatalf("entry %d: negative timing %+v", i, c)
		}
	}

	// Processing plus tick wait approximates the next cycle's delta within
	// scheduling noise. Allow a generous bound; this is a sanity check,
	// not a jitter assertion.
	for i := 1; i < len(cycles); i++ {
		sum := cycles[i-1].ProcessingTime + cycles[i-1].TickWait
		delta := cycles[i].CycleDelta

		if delta < sum/4 || delta > sum*100 {
			t.Fatalf("entry %d: delta %s wildly off processing+tick-wait %s", i, delta, sum)
		}
	}
}

func TestRunCyclesSurfacesExchangeError(t *testing.T) {
	lane := &failingLane{}

	if _, err := runCycles(lane, 10, 200*time.Microsecond, blockingWaits(nil)); err == nil {
		t.Fatal("expected exchange failure to abort the run")
	}
}

// Each cooperative task must do its cycle work on its own pinned thread:
// that thread is what carries the configured priority, so work migrating to
// other threads would escape the scheduling policy under test.
func TestCoopTaskStaysOnOneThread(t *testing.T) {
	sched := coop.New()

	const tasks = 3
	tids := make([][]int, tasks)

	for i := 0; i < tasks; i++ {
		i := i

		sched.Go(fmt.Sprintf("lane-%d", i), coopTask(meta.TestSettings{}, func(tk *coop.Task) error {
			for c := 0; c < 20; c++ {
				tids[i] = append(tids[i], unix.Gettid())
				coop.Await(tk, time.After(50*time.Microsecond))
			}

			return nil
		}))
	}

	if err := sched.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, seq := range tids {
		if len(seq) != 20 {
			t.Fatalf("task %d recorded %d samples", i, len(seq))
		}
		for _, tid := range seq {
			if tid != seq[0] {
				t.Fatalf("task %d migrated threads mid-run: %v", i, seq)
			}
		}
	}
}

// A pump task that dies mid-run must fail waiting lanes, not strand them on
// response channels nobody will ever serve.
func TestCoopLaneFailsFastWhenPumpDies(t *testing.T) {
	sched := coop.New()

	pumpDead := make(chan struct{})
	responses := make(chan transport.Response)

	sched.Go("io-pump", func(tk *coop.Task) error {
		defer close(pumpDead)

		return errors.New("io duty crashed")
	})

	var laneErr error

	sched.Go("lane-0", func(tk *coop.Task) error {
		resp := coopWaits(tk, pumpDead).response(responses)
		laneErr = resp.Err

		return resp.Err
	})

	if err := sched.Wait(); err == nil {
		t.Fatal("expected a fatal error, not a clean join")
	}

	if !errors.Is(laneErr, errPumpExitedEarly) {
		t.Fatalf("lane saw %v, want the pump early exit error", laneErr)
	}
}

// The same property for threaded lanes blocking on their responses.
func TestBlockingLaneFailsFastWhenPumpDies(t *testing.T) {
	dead := make(chan struct{})
	close(dead)

	resp := blockingWaits(dead).response(make(chan transport.Response))
	if !errors.Is(resp.Err, errPumpExitedEarly) {
		t.Fatalf("got %v, want the pump early exit error", resp.Err)
	}
}

type failingLane struct{}

func (l *failingLane) Index() int { return 3 }

func (l *failingLane) Submit() (<-chan transport.Response, error) {
	ch := make(chan transport.Response, 1)
	ch <- transport.Response{Err: errPumpExitedEarly}

	return ch, nil
}

func (l *failingLane) Output() []byte { return nil }
func (l *failingLane) Process()       {}
