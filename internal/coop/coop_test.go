package coop_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethercrab-rs/latency-data/internal/coop"
)

// TestMutualExclusion verifies that two tasks never run their sections
// between yield points concurrently.
func TestMutualExclusion(t *testing.T) {
	s := coop.New()

	var running int32
	var overlaps int32

	tick := func() <-chan time.Time {
		return time.After(100 * time.Microsecond)
	}

	task := func(tk *coop.Task) error {
		for i := 0; i < 50; i++ {
			if atomic.AddInt32(&running, 1) > 1 {
				atomic.AddInt32(&overlaps, 1)
			}
			// Critical section between yield points.
			time.Sleep(10 * time.Microsecond)
			atomic.AddInt32(&running, -1)

			coop.Await(tk, tick())
		}

		return nil
	}

	s.Go("lane-0", task)
	s.Go("lane-1", task)

	if err := s.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := atomic.LoadInt32(&overlaps); n != 0 {
		t.Fatalf("critical sections overlapped %d times", n)
	}
}

func TestWaitReturnsFirstError(t *testing.T) {
	s := coop.New()

	boom := errors.New("boom")

	s.Go("ok", func(tk *coop.Task) error {
		coop.Await(tk, time.After(time.Millisecond))
		return nil
	})
	s.Go("fails", func(tk *coop.Task) error {
		return boom
	})

	if err := s.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestAwaitEitherStop(t *testing.T) {
	s := coop.New()

	requests := make(chan int, 1)
	stop := make(chan struct{}, 1)

	var served []int

	s.Go("pump", func(tk *coop.Task) error {
		for {
			v, ok := coop.AwaitEither(tk, requests, stop)
			if !ok {
				return nil
			}
			served = append(served, v)
		}
	})

	s.Go("lane", func(tk *coop.Task) error {
		requests <- 42
		coop.Await(tk, time.After(time.Millisecond))
		stop <- struct{}{}
		return nil
	})

	if err := s.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(served) != 1 || served[0] != 42 {
		t.Fatalf("pump should have served the submitted request, got %v", served)
	}
}

func TestTaskName(t *testing.T) {
	s := coop.New()

	s.Go("io-pump", func(tk *coop.Task) error {
		if tk.Name() != "io-pump" {
			t.Errorf("got %q", tk.Name())
		}
		return nil
	})

	if err := s.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
