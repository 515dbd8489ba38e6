package correlate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gopacket/gopacket/pcapgo"
)

// etherTypeECAT is the EtherType of raw EtherCAT frames.
const etherTypeECAT = 0x88a4

// Minimum frame: 14 byte Ethernet header, 2 byte EtherCAT header, 10 byte PDU
// header.
const minFrameLen = 14 + 2 + 10

// ReadDump decodes a pcapng capture into a chronological trace. Non-EtherCAT
// packets are skipped. Direction is inferred from the source MAC: the
// controller transmits first, so the first EtherCAT frame fixes the outbound
// address. Timestamps are rebased onto the first frame so the trace is
// monotonic and independent of capture wall clock.
func ReadDump(path string) ([]TraceFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dump: %w", err)
	}
	defer f.Close()

	r, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, fmt.Errorf("reading pcapng header from %s: %w", path, err)
	}

	var (
		trace          []TraceFrame
		controller     [6]byte
		haveController bool
		start          int64
		haveStart      bool
	)

	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading packet from %s: %w", path, err)
		}

		src, cmd, index, ok := parseFrame(data)
		if !ok {
			continue
		}

		ts := ci.Timestamp.UnixNano()

		if !haveStart {
			start = ts
			haveStart = true
		}

		if !haveController {
			controller = src
			haveController = true
		}

		dir := DirInbound
		if src == controller {
			dir = DirOutbound
		}

		trace = append(trace, TraceFrame{
			Timestamp: time.Duration(ts - start),
			Direction: dir,
			Index:     index,
			Command:   Command(cmd),
		})
	}

	return trace, nil
}

// parseFrame extracts the source MAC plus the command and index of the first
// PDU from a raw Ethernet frame. ok is false for anything that is not an
// EtherCAT PDU frame.
func parseFrame(data []byte) (src [6]byte, cmd, index uint8, ok bool) {
	if len(data) < minFrameLen {
		return src, 0, 0, false
	}

	if binary.BigEndian.Uint16(data[12:14]) != etherTypeECAT {
		return src, 0, 0, false
	}

	// EtherCAT header: 11 bit length, 1 reserved bit, 4 bit type. Type 1
	// carries PDUs.
	header := binary.LittleEndian.Uint16(data[14:16])
	if header>>12&0xf != 1 {
		return src, 0, 0, false
	}

	copy(src[:], data[6:12])

	// PDU header starts with command and index bytes.
	return src, data[16], data[17], true
}
