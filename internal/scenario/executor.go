package scenario

import (
	"fmt"
	"time"

	"github.com/ethercrab-rs/latency-data/internal/meta"
	"github.com/ethercrab-rs/latency-data/internal/transport"
)

// waits abstracts how a lane suspends: cooperative lanes yield the run token
// while waiting, threaded lanes just block.
type waits struct {
	response func(<-chan transport.Response) transport.Response
	tick     func(<-chan time.Time)
}

// blockingWaits suspends by blocking the thread. Response waits also watch
// dead, closed when the I/O duty thread exits, so a dead pump fails the
// lane instead of stranding it. A nil dead channel never fires.
func blockingWaits(dead <-chan struct{}) waits {
	return waits{
		response: func(ch <-chan transport.Response) transport.Response {
			select {
			case resp := <-ch:
				return resp
			case <-dead:
				return transport.Response{Err: errPumpExitedEarly}
			}
		},
		tick: func(ch <-chan time.Time) {
			<-ch
		},
	}
}

// runCycles executes exactly iterations cycles for one lane: exchange,
// process, then wait for the periodic tick. The tick timer is re-armed every
// iteration, so a slow cycle is never compensated; the jitter it causes
// lands in the recorded deltas.
func runCycles(lane transport.Lane, iterations int, period time.Duration, w waits) ([]meta.CycleMetadata, error) {
	timer := time.NewTimer(period)
	defer timer.Stop()

	cycles := make([]meta.CycleMetadata, 0, iterations)

	prev := time.Now()

	for cycle := 0; cycle < iterations; cycle++ {
		loopStart := time.Now()

		ch, err := lane.Submit()
		if err != nil {
			return nil, fmt.Errorf("lane %d cycle %d: %w", lane.Index(), cycle, err)
		}

		resp := w.response(ch)
		if resp.Err != nil {
			return nil, fmt.Errorf("lane %d cycle %d exchange: %w", lane.Index(), cycle, resp.Err)
		}

		lane.Process()

		processingTime := time.Since(loopStart)

		w.tick(timer.C)

		tickWait := time.Since(loopStart) - processingTime
		cycleDelta := time.Since(prev)

		cycles = append(cycles, meta.CycleMetadata{
			Cycle:          cycle,
			ProcessingTime: processingTime,
			TickWait:       tickWait,
			CycleDelta:     cycleDelta,
		})

		prev = time.Now()
		timer.Reset(period)
	}

	return cycles, nil
}
