package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethercrab-rs/latency-data/internal/config"
)

func TestRunBatchNoCapture(t *testing.T) {
	cfg := &config.Config{
		DumpsDir:       t.TempDir(),
		CyclePeriodsUs: []uint{200},
		Repeats:        1,
		Cycles:         25,
		Filter:         "1thr-1task",
		// Pin the default pair so no scheduling policy changes are
		// attempted under the test runner.
		NetPrio:           0,
		TaskPrio:          0,
		Endpoints:         2,
		PropagationPerHop: 100 * time.Nanosecond,
		PayloadSize:       16,
		NoCapture:         true,
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}

	var out bytes.Buffer

	if err := runBatch(context.Background(), cfg, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()

	for _, want := range []string{"1thr-1task", "Cycles:", "Correlated frames:", "Frame latency"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}

	// Only the filtered scenario ran.
	if strings.Contains(got, "2thr") || strings.Contains(got, "11thr") {
		t.Fatalf("filter leaked other scenarios:\n%s", got)
	}
}

func TestNewCapturerDisabled(t *testing.T) {
	capturer, cleanup, err := newCapturer(&config.Config{NoCapture: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	session, err := capturer.Start("some-run")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Path() != "" {
		t.Fatalf("disabled capture produced a path %q", session.Path())
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPeriodsUs(t *testing.T) {
	got := periodsUs(&config.Config{CyclePeriodsUs: []uint{500, 1000}})

	if len(got) != 2 || got[0] != 500 || got[1] != 1000 {
		t.Fatalf("periods = %v", got)
	}
}
