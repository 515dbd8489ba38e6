package scenario_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethercrab-rs/latency-data/internal/meta"
	"github.com/ethercrab-rs/latency-data/internal/scenario"
	"github.com/ethercrab-rs/latency-data/internal/transport"
)

func testNet(endpoints int) *transport.SimNetwork {
	return transport.NewSim(transport.SimConfig{
		Endpoints:         endpoints,
		PropagationPerHop: 100 * time.Nanosecond,
		PayloadSize:       8,
	})
}

func testSettings() meta.TestSettings {
	return meta.TestSettings{
		Nic:             "sim0",
		Hostname:        "testhost",
		TunedAdmProfile: "balanced",
		CycleTimeUs:     200,
	}
}

// checkLaneCycles verifies the concatenated output: per lane, exactly
// iterations entries with contiguous indices from zero.
func checkLaneCycles(t *testing.T, cycles []meta.CycleMetadata, lanes, iterations int) {
	t.Helper()

	if len(cycles) != lanes*iterations {
		t.Fatalf("expected %d cycles (%d lanes x %d), got %d", lanes*iterations, lanes, iterations, len(cycles))
	}

	for lane := 0; lane < lanes; lane++ {
		for i := 0; i < iterations; i++ {
			c := cycles[lane*iterations+i]
			if c.Cycle != i {
				t.Fatalf("lane %d entry %d: cycle index %d", lane, i, c.Cycle)
			}
		}
	}
}

func TestTopologyKinds(t *testing.T) {
	cases := []scenario.Topology{
		{Name: "1thr-2task", Kind: scenario.KindCooperative, Lanes: 2, Iterations: 25},
		{Name: "2thr-1task", Kind: scenario.KindThreadPerLane, Lanes: 1, Iterations: 25},
		{Name: "3thr-2task", Kind: scenario.KindThreadPerLane, Lanes: 2, Iterations: 25},
		{Name: "2thr-2task", Kind: scenario.KindSharedTaskThread, Lanes: 2, Iterations: 25},
	}

	for _, topo := range cases {
		t.Run(topo.Name, func(t *testing.T) {
			net := testNet(2)

			cycles, propagation, err := topo.Run(context.Background(), net, testSettings())
			if err != nil {
				t.Fatalf("run: %v", err)
			}

			checkLaneCycles(t, cycles, topo.Lanes, topo.Iterations)

			if propagation != 200*time.Nanosecond {
				t.Fatalf("expected propagation 200ns (2 endpoints), got %s", propagation)
			}
		})
	}
}

func TestTopologyFanOutFailsBeforeCycles(t *testing.T) {
	net := testNet(3)

	topo := scenario.Topology{Name: "11thr-10task", Kind: scenario.KindThreadPerLane, Lanes: 10, Iterations: 25}

	_, _, err := topo.Run(context.Background(), net, testSettings())
	if err == nil {
		t.Fatal("expected fatal error for 10 lanes over 3 endpoints")
	}

	// Nothing cyclic may have run: the recorded trace must hold only
	// discovery traffic.
	for _, f := range net.Trace() {
		if f.Command.String() == "LRW" {
			t.Fatal("a cycle executed despite the fan-out failure")
		}
	}
}

func TestCatalogShape(t *testing.T) {
	catalog := scenario.Catalog()

	if len(catalog) != 7 {
		t.Fatalf("expected 7 topology variants, got %d", len(catalog))
	}

	seen := map[string]bool{}
	for _, topo := range catalog {
		if seen[topo.Name] {
			t.Fatalf("duplicate scenario name %q", topo.Name)
		}
		seen[topo.Name] = true

		if topo.Lanes != 1 && topo.Lanes != 2 && topo.Lanes != 10 {
			t.Fatalf("%s: unexpected lane count %d", topo.Name, topo.Lanes)
		}
		if topo.Iterations <= 0 {
			t.Fatalf("%s: no iterations", topo.Name)
		}
		if topo.Lanes == 10 && topo.Iterations >= 5000 {
			t.Fatalf("%s: 10-lane topologies run a reduced cycle count", topo.Name)
		}
	}
}

func TestPriorityPairs(t *testing.T) {
	if got := scenario.PriorityPairs(false); len(got) != 1 || got[0] != [2]uint8{0, 0} {
		t.Fatalf("non-RT hosts must collapse to the default pair, got %v", got)
	}

	rt := scenario.PriorityPairs(true)
	if len(rt) < 5 {
		t.Fatalf("RT hosts sweep at least 5 pairs, got %d", len(rt))
	}
	if rt[0] != [2]uint8{0, 0} {
		t.Fatalf("first pair must be the default, got %v", rt[0])
	}

	var below, above int
	for _, p := range rt[1:] {
		if p[0] < scenario.KernelRTPriority {
			below++
		} else {
			above++
		}
	}
	if below < 2 || above < 2 {
		t.Fatalf("expected two pairs below the kernel boundary and two above, got %d/%d", below, above)
	}
}
