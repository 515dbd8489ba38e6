package meta_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ethercrab-rs/latency-data/internal/meta"
)

func testSettings() meta.TestSettings {
	return meta.TestSettings{
		Nic:             "enp2s0",
		Hostname:        "bench1",
		IsRT:            true,
		TunedAdmProfile: "latency-performance",
		TxUsecs:         3,
		RxUsecs:         3,
		NetPrio:         48,
		TaskPrio:        47,
		CycleTimeUs:     1000,
	}
}

func TestSettingsSlug(t *testing.T) {
	got := testSettings().Slug()
	want := "enp2s0-rt-tadm-latency-performance-etht-3-3-n48-t47-1000us"
	if got != want {
		t.Fatalf("slug mismatch: got %q, want %q", got, want)
	}

	s := testSettings()
	s.IsRT = false
	if !strings.Contains(s.Slug(), "-nort-") {
		t.Fatalf("non-RT slug should contain -nort-, got %q", s.Slug())
	}
}

func TestNewRunIDUnique(t *testing.T) {
	s := testSettings()

	a := meta.NewRunID("1thr-1task", s)
	b := meta.NewRunID("1thr-1task", s)

	if a.Slug != b.Slug {
		t.Fatalf("identical configurations should share a slug: %q vs %q", a.Slug, b.Slug)
	}
	if a.Name == b.Name {
		t.Fatalf("repeated runs must get distinct names, both were %q", a.Name)
	}
	if !strings.HasPrefix(a.Name, a.Slug) {
		t.Fatalf("run name %q should start with slug %q", a.Name, a.Slug)
	}
	if !strings.HasPrefix(a.Slug, "1thr-1task-bench1-") {
		t.Fatalf("slug should lead with scenario and host, got %q", a.Slug)
	}
}

func TestAggregate(t *testing.T) {
	s := testSettings()
	id := meta.NewRunID("2thr-1task", s)

	cycles := []meta.CycleMetadata{
		{Cycle: 0, ProcessingTime: 10 * time.Microsecond, TickWait: 990 * time.Microsecond, CycleDelta: time.Millisecond},
		{Cycle: 1, ProcessingTime: 12 * time.Microsecond, TickWait: 988 * time.Microsecond, CycleDelta: time.Millisecond},
	}

	run := meta.Aggregate(id, "2thr-1task", s, cycles, 1500*time.Nanosecond)

	if run.Name != id.Name || run.Slug != id.Slug || !run.Date.Equal(id.Date) {
		t.Fatalf("aggregate must carry the run id unchanged")
	}
	if run.Scenario != "2thr-1task" {
		t.Fatalf("unexpected scenario %q", run.Scenario)
	}
	if run.Hostname != "bench1" {
		t.Fatalf("unexpected hostname %q", run.Hostname)
	}
	if len(run.Cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(run.Cycles))
	}
	if run.NetworkPropagationTime != 1500*time.Nanosecond {
		t.Fatalf("unexpected propagation time %s", run.NetworkPropagationTime)
	}
}
