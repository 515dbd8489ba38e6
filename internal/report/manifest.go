package report

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ethercrab-rs/latency-data/internal/meta"
)

// Manifest is the YAML sidecar written next to each dump so a run's headline
// numbers can be read without the database.
type Manifest struct {
	Name     string    `yaml:"name"`
	Slug     string    `yaml:"slug"`
	Scenario string    `yaml:"scenario"`
	Hostname string    `yaml:"hostname"`
	Date     time.Time `yaml:"date"`

	Settings ManifestSettings `yaml:"settings"`

	Cycles        int   `yaml:"cycles"`
	Frames        int   `yaml:"frames"`
	Unresolved    int   `yaml:"unresolved,omitempty"`
	PropagationNs int64 `yaml:"propagation_ns"`

	ProcessingP99Ns   int64 `yaml:"processing_p99_ns"`
	TickWaitP99Ns     int64 `yaml:"tick_wait_p99_ns"`
	CycleDeltaMaxNs   int64 `yaml:"cycle_delta_max_ns"`
	FrameLatencyP99Ns int64 `yaml:"frame_latency_p99_ns,omitempty"`
}

// ManifestSettings mirrors the per-run settings in YAML form.
type ManifestSettings struct {
	Nic             string `yaml:"nic"`
	IsRT            bool   `yaml:"is_rt"`
	TunedAdmProfile string `yaml:"tuned_adm_profile"`
	TxUsecs         uint32 `yaml:"tx_usecs"`
	RxUsecs         uint32 `yaml:"rx_usecs"`
	NetPrio         uint8  `yaml:"net_prio"`
	TaskPrio        uint8  `yaml:"task_prio"`
	CycleTimeUs     uint32 `yaml:"cycle_time_us"`
}

// NewManifest assembles the sidecar record for a run.
func NewManifest(run meta.RunMetadata, s Summary) Manifest {
	return Manifest{
		Name:     run.Name,
		Slug:     run.Slug,
		Scenario: run.Scenario,
		Hostname: run.Hostname,
		Date:     run.Date,
		Settings: ManifestSettings{
			Nic:             run.Settings.Nic,
			IsRT:            run.Settings.IsRT,
			TunedAdmProfile: run.Settings.TunedAdmProfile,
			TxUsecs:         run.Settings.TxUsecs,
			RxUsecs:         run.Settings.RxUsecs,
			NetPrio:         run.Settings.NetPrio,
			TaskPrio:        run.Settings.TaskPrio,
			CycleTimeUs:     run.Settings.CycleTimeUs,
		},
		Cycles:            s.Cycles,
		Frames:            s.Frames,
		Unresolved:        s.Unresolved,
		PropagationNs:     s.Propagation.Nanoseconds(),
		ProcessingP99Ns:   s.Processing.P99.Nanoseconds(),
		TickWaitP99Ns:     s.TickWait.P99.Nanoseconds(),
		CycleDeltaMaxNs:   s.CycleDelta.Max.Nanoseconds(),
		FrameLatencyP99Ns: s.FrameLatency.P99.Nanoseconds(),
	}
}

// WriteManifest writes the sidecar to path.
func WriteManifest(path string, run meta.RunMetadata, s Summary) error {
	data, err := yaml.Marshal(NewManifest(run, s))
	if err != nil {
		return fmt.Errorf("marshalling manifest for %s: %w", run.Name, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}

	return nil
}
