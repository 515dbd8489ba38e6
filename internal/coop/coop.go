// Package coop implements single-threaded cooperative multitasking for the
// topologies that interleave every lane and the I/O duty on one execution
// context. A run token guarantees at most one task executes between yield
// points; tasks yield only while waiting on a channel.
package coop

import (
	"sync"
)

// Scheduler runs a fixed set of tasks, interleaved cooperatively.
type Scheduler struct {
	token chan struct{}

	wg sync.WaitGroup

	mu      sync.Mutex
	firstEr error
}

// New returns a scheduler with the run token available.
func New() *Scheduler {
	s := &Scheduler{token: make(chan struct{}, 1)}
	s.token <- struct{}{}

	return s
}

// Task is the handle a running task yields through.
type Task struct {
	s    *Scheduler
	name string
}

// Name of the task, for diagnostics.
func (t *Task) Name() string {
	return t.name
}

// Go registers a task. The function starts once the run token is free and
// holds it except while awaiting.
func (s *Scheduler) Go(name string, fn func(t *Task) error) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		<-s.token
		err := fn(&Task{s: s, name: name})
		s.token <- struct{}{}

		if err != nil {
			s.mu.Lock()
			if s.firstEr == nil {
				s.firstEr = err
			}
			s.mu.Unlock()
		}
	}()
}

// Wait joins all tasks and returns the first task error, if any.
func (s *Scheduler) Wait() error {
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.firstEr
}

// Await releases the run token, waits for a value on ch and re-acquires the
// token before returning. It is the only legal suspension point.
func Await[T any](t *Task, ch <-chan T) T {
	t.s.token <- struct{}{}
	v := <-ch
	<-t.s.token

	return v
}

// AwaitEither waits for a value on ch or a signal on done, whichever comes
// first. ok is false when done fired.
func AwaitEither[T any](t *Task, ch <-chan T, done <-chan struct{}) (v T, ok bool) {
	t.s.token <- struct{}{}

	select {
	case v = <-ch:
		ok = true
	case <-done:
	}

	<-t.s.token

	return v, ok
}
