// Package sysinfo queries host facts that end up in the per-run settings:
// kernel flavour, tuned-adm profile, interface description and interrupt
// coalescing values. Every probe runs exactly once at startup; a probe
// failure is a fatal startup error and is never retried.
package sysinfo

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ethercrab-rs/latency-data/internal/meta"
)

// IsRTKernel reports whether the running kernel carries the realtime patches.
func IsRTKernel() (bool, error) {
	out, err := exec.Command("uname", "-a").Output()
	if err != nil {
		return false, fmt.Errorf("running uname: %w", err)
	}

	return isRTKernel(string(out)), nil
}

// Look for "-realtime" (Mint) or "-rt" (Debian).
func isRTKernel(uname string) bool {
	return strings.Contains(uname, "-realtime") || strings.Contains(uname, "-rt")
}

// TunedProfile returns the active tuned-adm profile name.
func TunedProfile() (string, error) {
	out, err := exec.Command("tuned-adm", "active").Output()
	if err != nil {
		return "", fmt.Errorf("running tuned-adm: %w", err)
	}

	return tunedProfile(string(out))
}

func tunedProfile(out string) (string, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("no active tuned-adm profile in %q", out)
	}

	return fields[len(fields)-1], nil
}

// InterfaceDescription returns the hardware product string for the given
// interface, e.g. "RTL8125 2.5GbE Controller".
func InterfaceDescription(iface string) (string, error) {
	out, err := exec.Command("lshw", "-class", "network", "-json").Output()
	if err != nil {
		return "", fmt.Errorf("running lshw: %w", err)
	}

	return interfaceDescription(out, iface)
}

func interfaceDescription(lshwJSON []byte, iface string) (string, error) {
	product := gjson.GetBytes(lshwJSON, fmt.Sprintf(`#(logicalname=="%s").product`, iface))
	if !product.Exists() {
		return "", fmt.Errorf("interface %q not found in lshw output", iface)
	}

	return product.String(), nil
}

// CoalesceUsecs returns the tx-usecs and rx-usecs interrupt coalescing values
// reported by ethtool for the given interface.
func CoalesceUsecs(iface string) (tx, rx uint32, err error) {
	out, err := exec.Command("ethtool", "-c", iface).Output()
	if err != nil {
		return 0, 0, fmt.Errorf("running ethtool: %w", err)
	}

	return coalesceUsecs(string(out))
}

func coalesceUsecs(out string) (tx, rx uint32, err error) {
	tx, err = coalesceField(out, "tx-usecs")
	if err != nil {
		return 0, 0, err
	}

	rx, err = coalesceField(out, "rx-usecs")
	if err != nil {
		return 0, 0, err
	}

	return tx, rx, nil
}

func coalesceField(out, field string) (uint32, error) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, field+":") && !strings.HasPrefix(line, field+" ") {
			continue
		}

		fields := strings.Fields(line)

		v, err := strconv.ParseUint(fields[len(fields)-1], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("parsing %s from %q: %w", field, line, err)
		}

		return uint32(v), nil
	}

	return 0, fmt.Errorf("did not find %s in ethtool output", field)
}

// Probe gathers all host facts into a TestSettings snapshot. The priority and
// cycle period fields are filled in later by the scenario catalog.
func Probe(iface string) (meta.TestSettings, error) {
	isRT, err := IsRTKernel()
	if err != nil {
		return meta.TestSettings{}, err
	}

	profile, err := TunedProfile()
	if err != nil {
		return meta.TestSettings{}, err
	}

	tx, rx, err := CoalesceUsecs(iface)
	if err != nil {
		return meta.TestSettings{}, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		return meta.TestSettings{}, fmt.Errorf("reading hostname: %w", err)
	}

	return meta.TestSettings{
		Nic:             iface,
		Hostname:        hostname,
		IsRT:            isRT,
		TunedAdmProfile: profile,
		TxUsecs:         tx,
		RxUsecs:         rx,
	}, nil
}
