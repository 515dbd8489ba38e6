package sysinfo

import "testing"

func TestIsRTKernel(t *testing.T) {
	cases := []struct {
		uname string
		want  bool
	}{
		{"Linux bench1 6.8.0-rt8 #1 SMP PREEMPT_RT x86_64 GNU/Linux", true},
		{"Linux mint 6.5.0-realtime #1 SMP x86_64 GNU/Linux", true},
		{"Linux dev 6.8.0-45-generic #45-Ubuntu SMP x86_64 GNU/Linux", false},
	}

	for _, c := range cases {
		if got := isRTKernel(c.uname); got != c.want {
			t.Errorf("isRTKernel(%q) = %v, want %v", c.uname, got, c.want)
		}
	}
}

func TestTunedProfile(t *testing.T) {
	got, err := tunedProfile("Current active profile: latency-performance\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "latency-performance" {
		t.Fatalf("got %q", got)
	}

	if _, err := tunedProfile("  \n"); err == nil {
		t.Fatal("expected error for empty output")
	}
}

func TestInterfaceDescription(t *testing.T) {
	lshw := []byte(`[
		{"id": "network:0", "product": "Ethernet Connection I219-LM", "logicalname": "eno1"},
		{"id": "network:1", "product": "RTL8125 2.5GbE Controller", "logicalname": "enp2s0"}
	]`)

	got, err := interfaceDescription(lshw, "enp2s0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "RTL8125 2.5GbE Controller" {
		t.Fatalf("got %q", got)
	}

	if _, err := interfaceDescription(lshw, "wlan0"); err == nil {
		t.Fatal("expected error for unknown interface")
	}
}

func TestCoalesceUsecs(t *testing.T) {
	out := `Coalesce parameters for enp2s0:
Adaptive RX: off  TX: off
stats-block-usecs: 0
rx-usecs: 3
rx-frames: 0
tx-usecs: 5
tx-frames: 0
`

	tx, rx, err := coalesceUsecs(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx != 5 || rx != 3 {
		t.Fatalf("got tx=%d rx=%d, want tx=5 rx=3", tx, rx)
	}

	if _, _, err := coalesceUsecs("no such fields\n"); err == nil {
		t.Fatal("expected error when fields are missing")
	}
}
