// Package config handles run configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/flowstat/internal/core"
	"firestige.xyz/flowstat/internal/flow"
)

// Config is the complete configuration of an analysis run.
// Maps to the `flowstat:` root key in YAML.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Engine EngineConfig `mapstructure:"engine"`
	Filter FilterConfig `mapstructure:"filter"`
	Output OutputConfig `mapstructure:"output"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text / prefixed
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Engine ───

// EngineConfig controls flow reconstruction.
type EngineConfig struct {
	Workers        int           `mapstructure:"workers"`          // 1 = serial engine
	BatchSize      int           `mapstructure:"batch_size"`       // frames per batch in sharded mode
	UDPIdleTimeout time.Duration `mapstructure:"udp_idle_timeout"` // idle time before a UDP direction closes
	Local          string        `mapstructure:"local"`            // "" | any | private | CIDR
	Dispatch       string        `mapstructure:"dispatch"`         // flow-hash | host-pair
}

// ─── Filter ───

// FilterConfig restricts which frames reach the engine.
type FilterConfig struct {
	Ports []int `mapstructure:"ports"`
}

// ─── Output ───

// OutputConfig controls where results are written.
type OutputConfig struct {
	Dir         string           `mapstructure:"dir"` // empty = <input>.out
	Reporters   []ReporterConfig `mapstructure:"reporters"`
	MetricsFile string           `mapstructure:"metrics_file"`
}

// ReporterConfig selects a reporter by name with its options.
type ReporterConfig struct {
	Name   string         `mapstructure:"name"`
	Config map[string]any `mapstructure:"config"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `flowstat: ...`.
type configRoot struct {
	Flowstat Config `mapstructure:"flowstat"`
}

// Load loads configuration from path. An empty path yields the defaults,
// still subject to environment overrides.
// Env vars use the FLOWSTAT_ prefix (e.g., FLOWSTAT_ENGINE_WORKERS).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `flowstat.` key prefix maps to `FLOWSTAT_` through the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", core.ErrConfigInvalid, err)
	}
	cfg := root.Flowstat

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// setDefaults sets default values for configuration.
// All keys use the "flowstat." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("flowstat.log.level", "info")
	v.SetDefault("flowstat.log.format", "prefixed")
	v.SetDefault("flowstat.log.outputs.file.enabled", false)
	v.SetDefault("flowstat.log.outputs.file.path", "flowstat.log")
	v.SetDefault("flowstat.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("flowstat.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("flowstat.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("flowstat.log.outputs.file.rotation.compress", true)

	// Engine defaults
	v.SetDefault("flowstat.engine.workers", 1)
	v.SetDefault("flowstat.engine.batch_size", 1024)
	v.SetDefault("flowstat.engine.udp_idle_timeout", flow.DefaultUDPIdleTimeout)
	v.SetDefault("flowstat.engine.local", "")
	v.SetDefault("flowstat.engine.dispatch", "flow-hash")

	// Filter defaults
	v.SetDefault("flowstat.filter.ports", []int{})

	// Output defaults
	v.SetDefault("flowstat.output.dir", "")
	v.SetDefault("flowstat.output.metrics_file", "")
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults. Every failure wraps core.ErrConfigInvalid.
func (cfg *Config) ValidateAndApplyDefaults() error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}

	if len(cfg.Output.Reporters) == 0 {
		cfg.Output.Reporters = []ReporterConfig{{Name: "csv"}}
	}
	return nil
}

func (cfg *Config) validate() error {
	// ── Log ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true, "prefixed": true}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if !validFormats[cfg.Log.Format] {
		return fmt.Errorf("invalid log format: %s (must be json/text/prefixed)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("log.outputs.file.path is required when file output is enabled")
	}

	// ── Engine ──
	if cfg.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be >= 1, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.BatchSize < 1 {
		return fmt.Errorf("engine.batch_size must be >= 1, got %d", cfg.Engine.BatchSize)
	}
	if cfg.Engine.UDPIdleTimeout < time.Microsecond {
		return fmt.Errorf("engine.udp_idle_timeout must be at least 1µs, got %s", cfg.Engine.UDPIdleTimeout)
	}
	validDispatch := map[string]bool{"flow-hash": true, "host-pair": true}
	if !validDispatch[cfg.Engine.Dispatch] {
		return fmt.Errorf("invalid engine.dispatch: %s (must be flow-hash/host-pair)", cfg.Engine.Dispatch)
	}
	if _, err := flow.ParseClassifier(cfg.Engine.Local); err != nil {
		return fmt.Errorf("engine.local: %v", err)
	}

	// ── Filter ──
	for _, p := range cfg.Filter.Ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("filter.ports: %d out of range 1..65535", p)
		}
	}

	// ── Output ──
	for i, r := range cfg.Output.Reporters {
		if r.Name == "" {
			return fmt.Errorf("output.reporters[%d].name is required", i)
		}
	}
	return nil
}

// FilterPorts converts the configured ports for the decoder.
func (cfg *Config) FilterPorts() []uint16 {
	if len(cfg.Filter.Ports) == 0 {
		return nil
	}
	ports := make([]uint16, len(cfg.Filter.Ports))
	for i, p := range cfg.Filter.Ports {
		ports[i] = uint16(p)
	}
	return ports
}
