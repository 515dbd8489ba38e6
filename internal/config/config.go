package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full harness configuration, assembled from an optional
// config file and command-line flags.
type Config struct {
	// Interface is the NIC cyclic traffic leaves through. Required unless
	// capturing is disabled.
	Interface string `mapstructure:"interface"`

	// DumpsDir receives the pcapng dumps and their manifest sidecars.
	DumpsDir string `mapstructure:"dumps_dir"`

	// DBURL enables persisting runs to Postgres when non-empty.
	DBURL string `mapstructure:"db_url"`

	// Filter selects scenarios by substring match on the name.
	Filter string `mapstructure:"filter"`

	// CyclePeriodsUs is the set of cycle periods to sweep, in microseconds.
	CyclePeriodsUs []uint `mapstructure:"cycle_periods_us"`

	// Repeats runs each combination this many times.
	Repeats int `mapstructure:"repeats"`

	// Cycles overrides the per-scenario cycle count when non-zero.
	Cycles int `mapstructure:"cycles"`

	// NetPrio and TaskPrio pin a single priority pair instead of sweeping
	// the catalog's pairs. Negative means unset.
	NetPrio  int `mapstructure:"net_prio"`
	TaskPrio int `mapstructure:"task_prio"`

	// Simulated network shape.
	Endpoints         int           `mapstructure:"endpoints"`
	PropagationPerHop time.Duration `mapstructure:"propagation_per_hop"`
	PayloadSize       int           `mapstructure:"payload_size"`

	// NoCapture skips tshark; correlation falls back to the transport's
	// own trace.
	NoCapture bool `mapstructure:"no_capture"`

	Verbose bool `mapstructure:"verbose"`

	ConfigFile string `mapstructure:"-"`
}

// PriorityPin reports the pinned (net, task) pair, if both were set.
func (c Config) PriorityPin() ([2]uint8, bool) {
	if c.NetPrio < 0 || c.TaskPrio < 0 {
		return [2]uint8{}, false
	}
	return [2]uint8{uint8(c.NetPrio), uint8(c.TaskPrio)}, true
}

// ValidationError collects every problem found in a Config.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

// Issues returns the individual validation problems.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the configuration for contradictions and out-of-range
// values. It returns a ValidationError listing every issue found.
func (c Config) Validate() error {
	var issues []string

	if !c.NoCapture && strings.TrimSpace(c.Interface) == "" {
		issues = append(issues, "interface is required unless --no-capture is set")
	}
	if strings.TrimSpace(c.DumpsDir) == "" {
		issues = append(issues, "dumps-dir must not be empty")
	}

	if len(c.CyclePeriodsUs) == 0 {
		issues = append(issues, "at least one cycle period is required")
	}
	for _, p := range c.CyclePeriodsUs {
		if p == 0 {
			issues = append(issues, "cycle periods must be > 0")
			break
		}
	}

	if c.Repeats < 1 {
		issues = append(issues, "repeats must be >= 1")
	}
	if c.Cycles < 0 {
		issues = append(issues, "cycles must be >= 0")
	}

	if (c.NetPrio >= 0) != (c.TaskPrio >= 0) {
		issues = append(issues, "net-prio and task-prio must be set together")
	}
	if c.NetPrio > 99 || c.TaskPrio > 99 {
		issues = append(issues, "priorities must be <= 99")
	}

	if c.Endpoints < 1 {
		issues = append(issues, "endpoints must be >= 1")
	}
	if c.PropagationPerHop < 0 {
		issues = append(issues, "propagation-per-hop must be >= 0")
	}
	if c.PayloadSize < 1 {
		issues = append(issues, "payload-size must be >= 1")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
