package report_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ethercrab-rs/latency-data/internal/meta"
	"github.com/ethercrab-rs/latency-data/internal/report"
)

func testRun() meta.RunMetadata {
	settings := meta.TestSettings{
		Nic:             "enp2s0",
		Hostname:        "bench1",
		IsRT:            true,
		TunedAdmProfile: "latency-performance",
		NetPrio:         48,
		TaskPrio:        47,
		CycleTimeUs:     1000,
	}

	cycles := make([]meta.CycleMetadata, 100)
	for i := range cycles {
		cycles[i] = meta.CycleMetadata{
			Cycle:          i,
			ProcessingTime: time.Duration(10+i%5) * time.Microsecond,
			TickWait:       time.Duration(985+i%10) * time.Microsecond,
			CycleDelta:     time.Duration(995+i%15) * time.Microsecond,
		}
	}

	id := meta.NewRunID("1thr-1task", settings)

	return meta.Aggregate(id, "1thr-1task", settings, cycles, 1500*time.Nanosecond)
}

func testFrames() []meta.Frame {
	frames := make([]meta.Frame, 50)
	for i := range frames {
		tx := time.Duration(i) * time.Millisecond
		rx := tx + time.Duration(20+i%7)*time.Microsecond
		frames[i] = meta.Frame{Index: 0, Command: "LRW", TxTime: tx, RxTime: rx, Delta: rx - tx}
	}

	return frames
}

func TestSummarize(t *testing.T) {
	run := testRun()
	frames := testFrames()

	s := report.Summarize(run, frames, 2)

	if s.Cycles != 100 || s.Frames != 50 || s.Unresolved != 2 {
		t.Fatalf("counts wrong: %+v", s)
	}
	if s.CyclePeriod != time.Millisecond {
		t.Fatalf("cycle period %s", s.CyclePeriod)
	}

	if s.Processing.Min != 10*time.Microsecond {
		t.Fatalf("processing min %s", s.Processing.Min)
	}
	if s.Processing.Max != 14*time.Microsecond {
		t.Fatalf("processing max %s", s.Processing.Max)
	}
	if s.Processing.Mean < s.Processing.Min || s.Processing.Mean > s.Processing.Max {
		t.Fatalf("processing mean %s outside [min, max]", s.Processing.Mean)
	}

	// Percentiles are monotone within histogram precision.
	if s.CycleDelta.P50 > s.CycleDelta.P90 || s.CycleDelta.P90 > s.CycleDelta.P99 {
		t.Fatalf("percentiles not monotone: %+v", s.CycleDelta)
	}

	if s.FrameLatency.Min != 20*time.Microsecond {
		t.Fatalf("frame latency min %s", s.FrameLatency.Min)
	}
}

func TestPrint(t *testing.T) {
	run := testRun()

	var buf bytes.Buffer
	report.Print(&buf, report.Summarize(run, testFrames(), 0))

	out := buf.String()

	for _, want := range []string{"1thr-1task", "Cycles:", "Processing time", "Tick wait", "Cycle delta", "Frame latency", "P99:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report output missing %q:\n%s", want, out)
		}
	}
}

func TestManifestRoundTrip(t *testing.T) {
	run := testRun()
	s := report.Summarize(run, testFrames(), 1)

	path := filepath.Join(t.TempDir(), run.Name+".yaml")

	if err := report.WriteManifest(path, run, s); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var m report.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if m.Name != run.Name || m.Scenario != "1thr-1task" || m.Cycles != 100 {
		t.Fatalf("manifest mismatch: %+v", m)
	}
	if m.Settings.NetPrio != 48 || m.Settings.CycleTimeUs != 1000 {
		t.Fatalf("settings mismatch: %+v", m.Settings)
	}
	if m.Unresolved != 1 {
		t.Fatalf("unresolved %d", m.Unresolved)
	}
}
