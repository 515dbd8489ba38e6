package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader assembles a Config from an optional config file and a parsed flag
// set. Flags override file settings; file settings override defaults.
type Loader struct{}

// NewLoader creates a configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the config file named by configPath (empty skips the file) and
// applies flag overrides from fs.
func (Loader) Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		DumpsDir:          "dumps",
		CyclePeriodsUs:    []uint{1000},
		Repeats:           1,
		NetPrio:           -1,
		TaskPrio:          -1,
		Endpoints:         12,
		PropagationPerHop: 500 * time.Nanosecond,
		PayloadSize:       32,
		ConfigFile:        configPath,
	}

	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
			return nil, err
		}
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "interface"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("interface: %w", err)
		}
		cfg.Interface = val
	}

	if raw, ok := lookupSetting(settings, "dumps_dir", "dumps-dir", "dumpsdir"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("dumps_dir: %w", err)
		}
		if val != "" {
			cfg.DumpsDir = val
		}
	}

	if raw, ok := lookupSetting(settings, "db_url", "db-url", "dburl"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("db_url: %w", err)
		}
		cfg.DBURL = val
	}

	if raw, ok := lookupSetting(settings, "filter"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("filter: %w", err)
		}
		cfg.Filter = val
	}

	if raw, ok := lookupSetting(settings, "cycle_periods_us", "cycle-periods-us"); ok {
		val, err := asUintSlice(raw)
		if err != nil {
			return fmt.Errorf("cycle_periods_us: %w", err)
		}
		if len(val) > 0 {
			cfg.CyclePeriodsUs = val
		}
	}

	if raw, ok := lookupSetting(settings, "repeats"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("repeats: %w", err)
		}
		cfg.Repeats = val
	}

	if raw, ok := lookupSetting(settings, "cycles"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("cycles: %w", err)
		}
		cfg.Cycles = val
	}

	if raw, ok := lookupSetting(settings, "net_prio", "net-prio"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("net_prio: %w", err)
		}
		cfg.NetPrio = val
	}

	if raw, ok := lookupSetting(settings, "task_prio", "task-prio"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("task_prio: %w", err)
		}
		cfg.TaskPrio = val
	}

	if raw, ok := lookupSetting(settings, "endpoints"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("endpoints: %w", err)
		}
		cfg.Endpoints = val
	}

	if raw, ok := lookupSetting(settings, "propagation_per_hop", "propagation-per-hop"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("propagation_per_hop: %w", err)
		}
		cfg.PropagationPerHop = val
	}

	if raw, ok := lookupSetting(settings, "payload_size", "payload-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("payload_size: %w", err)
		}
		cfg.PayloadSize = val
	}

	if raw, ok := lookupSetting(settings, "no_capture", "no-capture"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("no_capture: %w", err)
		}
		cfg.NoCapture = val
	}

	if raw, ok := lookupSetting(settings, "verbose"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("verbose: %w", err)
		}
		cfg.Verbose = val
	}

	return nil
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}

	if fs.Changed("interface") {
		val, err := fs.GetString("interface")
		if err != nil {
			return err
		}
		cfg.Interface = val
	}
	if fs.Changed("dumps-dir") {
		val, err := fs.GetString("dumps-dir")
		if err != nil {
			return err
		}
		cfg.DumpsDir = val
	}
	if fs.Changed("db-url") {
		val, err := fs.GetString("db-url")
		if err != nil {
			return err
		}
		cfg.DBURL = val
	}
	if fs.Changed("filter") {
		val, err := fs.GetString("filter")
		if err != nil {
			return err
		}
		cfg.Filter = val
	}
	if fs.Changed("cycle-period-us") {
		val, err := fs.GetUintSlice("cycle-period-us")
		if err != nil {
			return err
		}
		cfg.CyclePeriodsUs = val
	}
	if fs.Changed("repeats") {
		val, err := fs.GetInt("repeats")
		if err != nil {
			return err
		}
		cfg.Repeats = val
	}
	if fs.Changed("cycles") {
		val, err := fs.GetInt("cycles")
		if err != nil {
			return err
		}
		cfg.Cycles = val
	}
	if fs.Changed("net-prio") {
		val, err := fs.GetInt("net-prio")
		if err != nil {
			return err
		}
		cfg.NetPrio = val
	}
	if fs.Changed("task-prio") {
		val, err := fs.GetInt("task-prio")
		if err != nil {
			return err
		}
		cfg.TaskPrio = val
	}
	if fs.Changed("endpoints") {
		val, err := fs.GetInt("endpoints")
		if err != nil {
			return err
		}
		cfg.Endpoints = val
	}
	if fs.Changed("propagation-per-hop") {
		val, err := fs.GetDuration("propagation-per-hop")
		if err != nil {
			return err
		}
		cfg.PropagationPerHop = val
	}
	if fs.Changed("payload-size") {
		val, err := fs.GetInt("payload-size")
		if err != nil {
			return err
		}
		cfg.PayloadSize = val
	}
	if fs.Changed("no-capture") {
		val, err := fs.GetBool("no-capture")
		if err != nil {
			return err
		}
		cfg.NoCapture = val
	}

	return nil
}
