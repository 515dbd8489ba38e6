// Package transport defines the collaborator that carries cyclic exchanges:
// endpoint discovery, per-endpoint propagation delay and the per-cycle
// exchange primitive. The transmit/receive channel is owned by exactly one
// I/O duty context per scenario; lanes submit through it, never directly.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Endpoint is one discovered device on the network.
type Endpoint struct {
	// Position on the network, starting from zero.
	Index int

	Name string

	// Round trip time from the controller to this endpoint and back.
	PropagationTime time.Duration
}

// Response completes one exchange.
type Response struct {
	// Input image returned by the endpoint.
	Data []byte

	Err error
}

// Request is an exchange submitted by a lane, shuttled opaquely from
// Requests to Serve by the I/O duty context.
type Request struct {
	lane  int
	data  []byte
	reply chan Response
}

// Lane is one concurrent execution stream's handle onto the network.
// A lane has at most one exchange in flight.
type Lane interface {
	// Index identifies the lane; it doubles as the exchange index on the
	// wire and so is reused every cycle.
	Index() int

	// Submit flushes the lane's output image and returns the channel the
	// matching response will arrive on. Cooperative callers yield on it,
	// threaded callers block on it.
	Submit() (<-chan Response, error)

	// Output is the lane's output image, valid to mutate only between a
	// response arriving and the next Submit.
	Output() []byte

	// Process applies the fixed local transform to the output image:
	// a wrapping increment of every byte.
	Process()
}

// Network is the transport collaborator.
type Network interface {
	// Discover enumerates the endpoints. Called once per scenario.
	Discover(ctx context.Context) ([]Endpoint, error)

	// OpenLanes allocates n lanes. Fails when fewer endpoints were
	// discovered than lanes requested.
	OpenLanes(n int) ([]Lane, error)

	// Requests is the single submission channel all lanes share. It must
	// be drained by exactly one I/O duty context.
	Requests() <-chan Request

	// Serve completes one exchange request.
	Serve(req Request)
}

// ErrPumpClosed is returned when the request channel closes underneath the
// I/O duty context.
var ErrPumpClosed = errors.New("transport: request channel closed")

// RunPump drains and serves exchange requests until the fire-once stop
// signal arrives. It is the I/O duty loop for topologies with a dedicated
// network thread. Stopping before all lanes have finished strands them on
// their response channels.
func RunPump(n Network, stop <-chan struct{}) error {
	for {
		select {
		case req, ok := <-n.Requests():
			if !ok {
				return ErrPumpClosed
			}

			n.Serve(req)

		case <-stop:
			return nil
		}
	}
}

// MaxPropagationTime returns the propagation reference for a run: the
// maximum round trip across all discovered endpoints.
func MaxPropagationTime(endpoints []Endpoint) (time.Duration, error) {
	if len(endpoints) == 0 {
		return 0, errors.New("transport: no endpoints to compute propagation time from")
	}

	var max time.Duration
	for _, ep := range endpoints {
		if ep.PropagationTime > max {
			max = ep.PropagationTime
		}
	}

	return max, nil
}

// Exchange submits the lane's outputs and blocks until the response arrives
// or ctx is done.
func Exchange(ctx context.Context, lane Lane) error {
	ch, err := lane.Submit()
	if err != nil {
		return err
	}

	select {
	case resp := <-ch:
		if resp.Err != nil {
			return fmt.Errorf("lane %d exchange: %w", lane.Index(), resp.Err)
		}

		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}
