// Package meta holds the data model shared by the scenario harness, the
// capture correlator and the persistence layer: per-run settings, per-cycle
// timing records and correlated exchange frames.
package meta

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// TestSettings is the immutable per-run configuration. It is assembled once
// per scenario invocation from host probes and catalog parameters and never
// mutated afterwards.
type TestSettings struct {
	// Network interface the cyclic traffic runs on, e.g. "enp2s0".
	Nic string

	// Machine hostname, used as a run identifier.
	Hostname string

	// Whether the host runs a realtime-patched kernel.
	IsRT bool

	// Active tuned-adm profile at probe time.
	TunedAdmProfile string

	// Interrupt coalescing settings (tx-usecs, rx-usecs) for Nic.
	TxUsecs uint32
	RxUsecs uint32

	// SCHED_FIFO priority for the thread handling network I/O duty.
	// Zero is a sentinel meaning "leave default scheduling unchanged".
	NetPrio uint8

	// SCHED_FIFO priority for the thread(s) running cyclic tasks.
	// Zero is the same sentinel as NetPrio.
	TaskPrio uint8

	// Target cycle period in microseconds.
	CycleTimeUs uint32
}

// Slug returns a hyphenated identifier suitable for filenames and run names.
func (s TestSettings) Slug() string {
	rt := "nort"
	if s.IsRT {
		rt = "rt"
	}

	return fmt.Sprintf(
		"%s-%s-tadm-%s-etht-%d-%d-n%d-t%d-%dus",
		s.Nic,
		rt,
		s.TunedAdmProfile,
		s.TxUsecs,
		s.RxUsecs,
		s.NetPrio,
		s.TaskPrio,
		s.CycleTimeUs,
	)
}

// CycleMetadata is produced once per loop iteration by a cycle executor.
// The sequence for a lane is append-only and position-significant: entry i
// must carry Cycle == i.
type CycleMetadata struct {
	// Cycle number, starting from zero.
	Cycle int

	// Time spent on the exchange and process data transform.
	ProcessingTime time.Duration

	// Time spent waiting for the periodic tick after processing finished.
	TickWait time.Duration

	// Time elapsed since the same point in the previous cycle. Should sit
	// close to the configured cycle period; the spread is the jitter being
	// measured.
	CycleDelta time.Duration
}

// Frame is one correlated request/response exchange reconstructed from a
// capture trace. Frames reference a run by name; they are produced
// independently of the RunMetadata that owns the cycle timings.
type Frame struct {
	// Exchange index from the frame header. Reused across cycles.
	Index uint8

	// Command mnemonic, e.g. "LRW".
	Command string

	// Transmit and receive instants relative to the first cyclic frame in
	// the trace.
	TxTime time.Duration
	RxTime time.Duration

	// RxTime - TxTime. Non-negative for a well formed trace.
	Delta time.Duration
}

// RunID names one scenario execution before any results exist, so the capture
// file can be created under the final run name.
type RunID struct {
	Date time.Time

	// Run category: scenario, host and settings, without the timestamp.
	Slug string

	// Unique run name: slug plus timestamp plus a ULID to disambiguate
	// repeated runs of identical configuration.
	Name string
}

// NewRunID generates the identifier for a single run of the named scenario.
func NewRunID(scenario string, settings TestSettings) RunID {
	now := time.Now().UTC()

	slug := fmt.Sprintf("%s-%s-%s", scenario, settings.Hostname, settings.Slug())

	name := fmt.Sprintf("%s-%d-%s", slug, now.Unix(), strings.ToLower(ulid.Make().String()))

	return RunID{Date: now, Slug: slug, Name: name}
}

// RunMetadata is the record for one completed scenario execution. Created
// once by Aggregate and immutable thereafter. It owns its cycle sequence;
// correlated frames are associated by run name only.
type RunMetadata struct {
	Date time.Time

	// Scenario name, e.g. "1thr-1task".
	Scenario string

	Name string
	Slug string

	Hostname string

	// One entry per process cycle, in cycle order, all lanes concatenated.
	// Does not include anything before the cyclic phase starts.
	Cycles []CycleMetadata

	// Time for a frame to reach the end of the network and come back,
	// measured once per scenario as the maximum across all endpoints.
	NetworkPropagationTime time.Duration

	Settings TestSettings
}

// Aggregate merges the settings, cycle timings and propagation reference for
// a run into one immutable record.
func Aggregate(id RunID, scenario string, settings TestSettings, cycles []CycleMetadata, propagation time.Duration) RunMetadata {
	return RunMetadata{
		Date:                   id.Date,
		Scenario:               scenario,
		Name:                   id.Name,
		Slug:                   id.Slug,
		Hostname:               settings.Hostname,
		Cycles:                 cycles,
		NetworkPropagationTime: propagation,
		Settings:               settings,
	}
}
