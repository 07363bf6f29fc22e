// Package config loads the settings of SPEC_FULL.md §6.3 through a layered
// viper configuration: explicit CLI flags win, then TASKSCOPE_-prefixed
// environment variables, then a YAML config file, then the built-in
// defaults — following the teacher's cmd/bd/config.go layering of
// per-project settings over built-in fallbacks.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/taskscope/taskscope/internal/taskscopeerr"
)

// DefaultTarget is §6.2's default target URI.
const DefaultTarget = "http://127.0.0.1:6669"

// Config is the fully resolved, validated configuration the core runs
// with.
type Config struct {
	Target string

	RetainFor         time.Duration
	WarnSelfWakePct   uint64
	WarnNeverYieldMS  uint64
	AllowWarnings     []string
	HistogramMaxValue uint64
	PausedBufferCap   int

	ReconnectInitialBackoff time.Duration
	ReconnectMaxBackoff     time.Duration
	ReconnectMultiplier     float64
	ReconnectMaxFailures    int
}

// defaults mirrors the §6.3 table exactly.
func defaults() Config {
	return Config{
		Target:                  DefaultTarget,
		RetainFor:               6 * time.Second,
		WarnSelfWakePct:         50,
		WarnNeverYieldMS:        1000,
		HistogramMaxValue:       uint64((1 * time.Hour).Nanoseconds()),
		PausedBufferCap:         256,
		ReconnectInitialBackoff: 250 * time.Millisecond,
		ReconnectMaxBackoff:     5 * time.Second,
		ReconnectMultiplier:     2,
		ReconnectMaxFailures:    10,
	}
}

// BindFlags registers every recognized setting as a pflag so a cobra
// command can expose them as CLI flags that take precedence over
// everything else.
func BindFlags(flags *pflag.FlagSet) {
	d := defaults()
	flags.String("target", d.Target, "address of the instrumented process")
	flags.Duration("retain-for", d.RetainFor, "how long terminated entities remain queryable")
	flags.Uint64("warn-self-wake-pct", d.WarnSelfWakePct, "self-wake lint threshold percentage")
	flags.Uint64("warn-never-yield-ms", d.WarnNeverYieldMS, "never-yielded lint threshold in milliseconds")
	flags.StringSlice("allow-warnings", nil, "lint kinds to suppress")
	flags.Int("paused-buffer-cap", d.PausedBufferCap, "batches buffered while paused")
}

// Load resolves the layered configuration: flags (if bound and changed)
// override TASKSCOPE_-prefixed environment variables, which override a
// YAML config file, which overrides the built-in defaults.
func Load(flags *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("taskscope")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	d := defaults()
	v.SetDefault("target", d.Target)
	v.SetDefault("retain-for", d.RetainFor)
	v.SetDefault("warn-self-wake-pct", d.WarnSelfWakePct)
	v.SetDefault("warn-never-yield-ms", d.WarnNeverYieldMS)
	v.SetDefault("allow-warnings", []string{})
	v.SetDefault("paused-buffer-cap", d.PausedBufferCap)
	v.SetDefault("histogram-max-value", d.HistogramMaxValue)
	v.SetDefault("reconnect-initial-backoff", d.ReconnectInitialBackoff)
	v.SetDefault("reconnect-max-backoff", d.ReconnectMaxBackoff)
	v.SetDefault("reconnect-multiplier", d.ReconnectMultiplier)
	v.SetDefault("reconnect-max-failures", d.ReconnectMaxFailures)

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, taskscopeerr.Config("config-file", err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, taskscopeerr.Config("flags", err)
		}
	}

	cfg := d
	cfg.Target = v.GetString("target")
	cfg.RetainFor = v.GetDuration("retain-for")
	cfg.WarnSelfWakePct = v.GetUint64("warn-self-wake-pct")
	cfg.WarnNeverYieldMS = v.GetUint64("warn-never-yield-ms")
	cfg.AllowWarnings = v.GetStringSlice("allow-warnings")
	cfg.PausedBufferCap = v.GetInt("paused-buffer-cap")
	cfg.HistogramMaxValue = v.GetUint64("histogram-max-value")
	cfg.ReconnectInitialBackoff = v.GetDuration("reconnect-initial-backoff")
	cfg.ReconnectMaxBackoff = v.GetDuration("reconnect-max-backoff")
	cfg.ReconnectMultiplier = v.GetFloat64("reconnect-multiplier")
	cfg.ReconnectMaxFailures = v.GetInt("reconnect-max-failures")

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that can't be caught by viper/pflag type
// coercion alone: the target URI's scheme and the lint thresholds' ranges.
func Validate(cfg *Config) error {
	u, err := url.Parse(cfg.Target)
	if err != nil {
		return taskscopeerr.Config("target", fmt.Errorf("invalid target URI %q: %w", cfg.Target, err))
	}
	switch u.Scheme {
	case "http", "https", "file", "vsock":
	default:
		return taskscopeerr.Config("target", fmt.Errorf("unsupported target scheme %q", u.Scheme))
	}
	if cfg.WarnSelfWakePct > 100 {
		return taskscopeerr.Config("warn-self-wake-pct", fmt.Errorf("must be between 0 and 100, got %d", cfg.WarnSelfWakePct))
	}
	if cfg.PausedBufferCap <= 0 {
		return taskscopeerr.Config("paused-buffer-cap", fmt.Errorf("must be positive, got %d", cfg.PausedBufferCap))
	}
	return nil
}
