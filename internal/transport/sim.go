package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethercrab-rs/latency-data/internal/correlate"
)

// SimConfig configures an in-memory network.
type SimConfig struct {
	// Number of endpoints discovery will report.
	Endpoints int

	// Round trip added per network hop; endpoint i reports a propagation
	// time of (i+1) * PropagationPerHop.
	PropagationPerHop time.Duration

	// Output image size per lane in bytes.
	PayloadSize int
}

// SimNetwork is an in-memory stand-in for a real fieldbus. Exchanges echo
// the submitted output image back, so measured processing time is dominated
// by channel handoff and scheduler noise, which is exactly what the harness
// compares across topologies. It also records every exchange as a capture
// trace so runs without an external capture process can still be correlated.
type SimNetwork struct {
	cfg       SimConfig
	endpoints []Endpoint
	requests  chan Request

	mu    sync.Mutex
	epoch time.Time
	trace []correlate.TraceFrame
}

// TraceRecorder is implemented by transports that can hand back their own
// exchange trace in the capture trace format.
type TraceRecorder interface {
	// ResetTrace clears the recorded trace at the start of a run.
	ResetTrace()

	// Trace returns the frames recorded since the last reset.
	Trace() []correlate.TraceFrame
}

// NewSim builds a simulated network.
func NewSim(cfg SimConfig) *SimNetwork {
	if cfg.Endpoints <= 0 {
		cfg.Endpoints = 1
	}
	if cfg.PayloadSize <= 0 {
		cfg.PayloadSize = 16
	}

	return &SimNetwork{
		cfg: cfg,
		// Buffered so a cooperative lane can submit without blocking
		// while it still holds the run token.
		requests: make(chan Request, 64),
		epoch:    time.Now(),
	}
}

// Discover enumerates the simulated endpoints and records the init traffic a
// real controller would put on the wire while enumerating.
func (s *SimNetwork) Discover(ctx context.Context) ([]Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.endpoints = make([]Endpoint, s.cfg.Endpoints)
	for i := range s.endpoints {
		s.endpoints[i] = Endpoint{
			Index:           i,
			Name:            fmt.Sprintf("subdevice-%d", i),
			PropagationTime: time.Duration(i+1) * s.cfg.PropagationPerHop,
		}
	}

	// Broadcast enumeration plus one configured-address read per device.
	s.record(correlate.CmdBRD, 0, correlate.DirOutbound)
	s.record(correlate.CmdBRD, 0, correlate.DirInbound)
	for range s.endpoints {
		s.record(correlate.CmdFPRD, 0, correlate.DirOutbound)
		s.record(correlate.CmdFPRD, 0, correlate.DirInbound)
	}

	return s.endpoints, nil
}

// OpenLanes allocates one lane per endpoint, failing fast when the network
// is too small for the requested fan-out.
func (s *SimNetwork) OpenLanes(n int) ([]Lane, error) {
	if n > len(s.endpoints) {
		return nil, fmt.Errorf("transport: %d lanes requested but only %d endpoints discovered", n, len(s.endpoints))
	}

	lanes := make([]Lane, n)
	for i := range lanes {
		lanes[i] = &simLane{
			index: i,
			net:   s,
			out:   make([]byte, s.cfg.PayloadSize),
		}
	}

	return lanes, nil
}

func (s *SimNetwork) Requests() <-chan Request {
	return s.requests
}

// Serve echoes the output image back to the submitting lane and records both
// wire directions of the exchange.
func (s *SimNetwork) Serve(req Request) {
	s.record(correlate.CyclicCanary, uint8(req.lane), correlate.DirOutbound)

	data := make([]byte, len(req.data))
	copy(data, req.data)

	s.record(correlate.CyclicCanary, uint8(req.lane), correlate.DirInbound)

	req.reply <- Response{Data: data}
}

func (s *SimNetwork) ResetTrace() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trace = nil
	s.epoch = time.Now()
}

func (s *SimNetwork) Trace() []correlate.TraceFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]correlate.TraceFrame, len(s.trace))
	copy(out, s.trace)

	return out
}

func (s *SimNetwork) record(cmd correlate.Command, index uint8, dir correlate.Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trace = append(s.trace, correlate.TraceFrame{
		Timestamp: time.Since(s.epoch),
		Direction: dir,
		Index:     index,
		Command:   cmd,
	})
}

type simLane struct {
	index int
	net   *SimNetwork
	out   []byte
}

func (l *simLane) Index() int {
	return l.index
}

func (l *simLane) Submit() (<-chan Response, error) {
	reply := make(chan Response, 1)

	l.net.requests <- Request{lane: l.index, data: l.out, reply: reply}

	return reply, nil
}

func (l *simLane) Output() []byte {
	return l.out
}

func (l *simLane) Process() {
	for i := range l.out {
		l.out[i]++
	}
}
