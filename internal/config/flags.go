package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all run flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// configureFlags sets up all run flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Capture and persistence
	flags.StringP("interface", "i", "", "NIC carrying the cyclic traffic (required unless --no-capture)")
	flags.String("dumps-dir", "dumps", "Directory receiving pcapng dumps and manifests")
	flags.String("db-url", "", "Postgres URL to persist runs to (empty disables persistence)")
	flags.Bool("no-capture", false, "Skip tshark and correlate from the transport's own trace")

	// Sweep shape
	flags.StringP("filter", "f", "", "Run only scenarios whose name contains this substring")
	flags.UintSlice("cycle-period-us", []uint{1000}, "Cycle periods to sweep, in microseconds (repeatable)")
	flags.Int("repeats", 1, "Runs per scenario/priority/period combination")
	flags.Int("cycles", 0, "Override the per-scenario cycle count (0 keeps catalog defaults)")
	flags.Int("net-prio", -1, "Pin the io duty thread priority instead of sweeping (requires --task-prio)")
	flags.Int("task-prio", -1, "Pin the cyclic task thread priority instead of sweeping (requires --net-prio)")

	// Simulated network shape
	flags.Int("endpoints", 12, "Number of simulated devices on the ring")
	flags.Duration("propagation-per-hop", 500*time.Nanosecond, "Simulated per-hop propagation delay")
	flags.Int("payload-size", 32, "Bytes of process data exchanged per device")
}
