package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethercrab-rs/latency-data/internal/capture"
	"github.com/ethercrab-rs/latency-data/internal/config"
	"github.com/ethercrab-rs/latency-data/internal/meta"
	"github.com/ethercrab-rs/latency-data/internal/report"
	"github.com/ethercrab-rs/latency-data/internal/scenario"
	"github.com/ethercrab-rs/latency-data/internal/store"
	"github.com/ethercrab-rs/latency-data/internal/sysinfo"
	"github.com/ethercrab-rs/latency-data/internal/transport"
)

func newRunCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the scenario catalog, capture and correlate its traffic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().Load(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}

			return runBatch(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	config.RegisterFlags(cmd)

	return cmd
}

func runBatch(ctx context.Context, cfg *config.Config, out io.Writer) error {
	settings, err := probeSettings(cfg)
	if err != nil {
		return err
	}

	logHostInfo(settings, cfg)

	capturer, cleanup, err := newCapturer(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	batch := &scenario.Batch{
		Net: transport.NewSim(transport.SimConfig{
			Endpoints:         cfg.Endpoints,
			PropagationPerHop: cfg.PropagationPerHop,
			PayloadSize:       cfg.PayloadSize,
		}),
		Capture:    capturer,
		Base:       settings,
		PeriodsUs:  periodsUs(cfg),
		Repeats:    cfg.Repeats,
		Filter:     cfg.Filter,
		Iterations: cfg.Cycles,
	}

	if pin, ok := cfg.PriorityPin(); ok {
		batch.Priorities = [][2]uint8{pin}
	}

	results, err := batch.Run(ctx)
	if err != nil {
		return err
	}

	for _, res := range results {
		s := report.Summarize(res.Run, res.Frames, res.Unresolved)
		report.Print(out, s)

		if res.DumpPath != "" {
			manifest := strings.TrimSuffix(res.DumpPath, filepath.Ext(res.DumpPath)) + ".yaml"
			if err := report.WriteManifest(manifest, res.Run, s); err != nil {
				return err
			}
		}
	}

	if cfg.DBURL != "" {
		if err := persistResults(ctx, cfg.DBURL, results); err != nil {
			return err
		}
	}

	return nil
}

// probeSettings gathers host facts. With a NIC named every probe must
// succeed; a capture-less simulated run degrades to best effort so the
// harness stays usable on unprovisioned dev machines.
func probeSettings(cfg *config.Config) (meta.TestSettings, error) {
	if cfg.Interface != "" {
		return sysinfo.Probe(cfg.Interface)
	}

	hostname, err := os.Hostname()
	if err != nil {
		return meta.TestSettings{}, fmt.Errorf("reading hostname: %w", err)
	}

	settings := meta.TestSettings{
		Nic:             "sim",
		Hostname:        hostname,
		TunedAdmProfile: "unknown",
	}

	if isRT, err := sysinfo.IsRTKernel(); err == nil {
		settings.IsRT = isRT
	} else {
		logrus.WithError(err).Warn("could not probe kernel flavour, assuming non-realtime")
	}

	if profile, err := sysinfo.TunedProfile(); err == nil {
		settings.TunedAdmProfile = profile
	}

	return settings, nil
}

func logHostInfo(settings meta.TestSettings, cfg *config.Config) {
	log := logrus.WithFields(logrus.Fields{
		"hostname":  settings.Hostname,
		"nic":       settings.Nic,
		"realtime":  settings.IsRT,
		"tuned_adm": settings.TunedAdmProfile,
		"tx_usecs":  settings.TxUsecs,
		"rx_usecs":  settings.RxUsecs,
	})

	if cfg.Interface != "" {
		if desc, err := sysinfo.InterfaceDescription(cfg.Interface); err == nil {
			log = log.WithField("nic_product", desc)
		} else {
			logrus.WithError(err).Debug("no interface description")
		}
	}

	log.Info("host probed")
}

// tsharkCapturer adapts *capture.Tshark to the catalog's Capturer interface.
type tsharkCapturer struct {
	tshark *capture.Tshark
}

func (c tsharkCapturer) Start(runName string) (scenario.Session, error) {
	return c.tshark.Start(runName)
}

type disabledCapturer struct{}

func (disabledCapturer) Start(string) (scenario.Session, error) {
	return capture.NoSession{}, nil
}

func newCapturer(cfg *config.Config) (scenario.Capturer, func(), error) {
	if cfg.NoCapture {
		return disabledCapturer{}, func() {}, nil
	}

	tshark, err := capture.NewTshark(cfg.Interface, cfg.DumpsDir)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := tshark.Close(); err != nil {
			logrus.WithError(err).Warn("releasing dumps dir lock")
		}
	}

	return tsharkCapturer{tshark: tshark}, cleanup, nil
}

func periodsUs(cfg *config.Config) []uint32 {
	out := make([]uint32, len(cfg.CyclePeriodsUs))
	for i, p := range cfg.CyclePeriodsUs {
		out[i] = uint32(p)
	}

	return out
}

func persistResults(ctx context.Context, dbURL string, results []scenario.Result) error {
	st, err := store.Connect(ctx, dbURL)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, res := range results {
		if err := st.SaveRun(ctx, res.Run, res.Frames); err != nil {
			return err
		}
	}

	logrus.WithField("runs", len(results)).Info("runs persisted")

	return nil
}
