// Package correlate reconstructs per-exchange request/response latency from a
// captured frame trace. Setup traffic ahead of the first cyclic frame is
// discarded, then outbound and inbound frames of the cyclic command are paired
// by exchange index.
package correlate

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethercrab-rs/latency-data/internal/meta"
)

// Command is the operation kind carried in a frame header.
type Command uint8

const (
	CmdNOP  Command = 0
	CmdAPRD Command = 1
	CmdAPWR Command = 2
	CmdAPRW Command = 3
	CmdFPRD Command = 4
	CmdFPWR Command = 5
	CmdFPRW Command = 6
	CmdBRD  Command = 7
	CmdBWR  Command = 8
	CmdBRW  Command = 9
	CmdLRD  Command = 10
	CmdLWR  Command = 11
	CmdLRW  Command = 12
	CmdARMW Command = 13
	CmdFRMW Command = 14
)

// CyclicCanary is the command used for cyclic process data. The first frame
// carrying it marks the start of steady state traffic; everything before it
// is initialisation and is skipped.
const CyclicCanary = CmdLRW

var commandNames = map[Command]string{
	CmdNOP:  "NOP",
	CmdAPRD: "APRD",
	CmdAPWR: "APWR",
	CmdAPRW: "APRW",
	CmdFPRD: "FPRD",
	CmdFPWR: "FPWR",
	CmdFPRW: "FPRW",
	CmdBRD:  "BRD",
	CmdBWR:  "BWR",
	CmdBRW:  "BRW",
	CmdLRD:  "LRD",
	CmdLWR:  "LWR",
	CmdLRW:  "LRW",
	CmdARMW: "ARMW",
	CmdFRMW: "FRMW",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}

	return fmt.Sprintf("CMD(%d)", uint8(c))
}

// Direction of a captured frame relative to the controller.
type Direction uint8

const (
	// DirOutbound frames were transmitted by the controller.
	DirOutbound Direction = iota

	// DirInbound frames are responses returning to the controller.
	DirInbound
)

// TraceFrame is one entry in a chronological capture trace.
type TraceFrame struct {
	// Capture timestamp relative to the start of the trace. Monotonic
	// within one trace.
	Timestamp time.Duration

	Direction Direction

	// Exchange index from the frame header. Reused every cycle.
	Index uint8

	Command Command
}

// Result is the output of a correlation pass.
type Result struct {
	// Resolved frames in transmit order.
	Frames []meta.Frame

	// Entries that were transmitted but never matched with a response.
	// With index reuse the LIFO match can strand an older entry forever;
	// these are reported here rather than silently dropped.
	Unresolved []meta.Frame
}

// ErrNoCyclicTraffic is returned when a trace contains no frame of the cyclic
// canary command at all.
var ErrNoCyclicTraffic = errors.New("no cyclic traffic found in trace")

// UnmatchedError is returned when an inbound frame matches no open entry.
// The trace is corrupt or clipped; results from it cannot be trusted.
type UnmatchedError struct {
	Index     uint8
	Timestamp time.Duration
}

func (e *UnmatchedError) Error() string {
	return fmt.Sprintf("inbound frame with index %d at %s matches no open exchange", e.Index, e.Timestamp)
}

type entry struct {
	frame    meta.Frame
	resolved bool
}

// Correlate pairs outbound and inbound cyclic frames into per-exchange
// latencies. All reported times are relative to the first cyclic frame so
// runs are comparable independent of wall clock start.
//
// Pairing is most-recent-first: exchange indices are reused every cycle, so an
// inbound frame resolves the newest open entry with its index. An older entry
// of the same index stays open and is reported in Result.Unresolved.
func Correlate(trace []TraceFrame) (Result, error) {
	var (
		entries []*entry
		offset  time.Duration
		started bool
	)

	for _, f := range trace {
		if f.Command != CyclicCanary {
			// Initialisation traffic before the first canary frame,
			// or an interleaved acyclic command. Either way, not ours.
			continue
		}

		if !started {
			started = true
			offset = f.Timestamp
		}

		switch f.Direction {
		case DirOutbound:
			entries = append(entries, &entry{
				frame: meta.Frame{
					Index:   f.Index,
					Command: f.Command.String(),
					TxTime:  f.Timestamp - offset,
				},
			})

		case DirInbound:
			if !resolve(entries, f, offset) {
				return Result{}, &UnmatchedError{Index: f.Index, Timestamp: f.Timestamp}
			}
		}
	}

	if !started {
		return Result{}, ErrNoCyclicTraffic
	}

	var res Result

	for _, e := range entries {
		if e.resolved {
			res.Frames = append(res.Frames, e.frame)
		} else {
			res.Unresolved = append(res.Unresolved, e.frame)
		}
	}

	return res, nil
}

// resolve scans open entries from most recently pushed backward and resolves
// the first one whose index matches.
func resolve(entries []*entry, f TraceFrame, offset time.Duration) bool {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]

		if e.resolved || e.frame.Index != f.Index {
			continue
		}

		e.frame.RxTime = f.Timestamp - offset
		e.frame.Delta = e.frame.RxTime - e.frame.TxTime
		e.resolved = true

		return true
	}

	return false
}
