// Package config parses the standalone engine's runtime configuration:
// CLI flags with environment-variable overrides, CLI taking precedence,
// the same two-stage load the teacher uses for its server config.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the bluealsad-sim engine.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	BTSocketPath string // unix socket path; parsed and validated, but nothing dials or listens on it (the simulator's test-double transport is a bttest socketpair)
	Profile      string // a2dp-source, a2dp-sink, hfp-ag, hfp-hf, hsp-ag, hsp-hs
	Codec        string // sbc, aac, aptx, aptx-hd, ldac, mp3, faststream, msbc, cvsd, lc3-swb
	ReadMTU       int
	WriteMTU      int
	SampleRate    int
	Channels      int
	MultiClient   bool // enable the N-way PCM mixer instead of a single direct transport
	MixerPeriodMS int
	MetricsAddr   string // Prometheus exporter listen address, empty disables it
	LogLevel      string
	LogFormat     string // "text" or "json"
}

// defaults
const (
	defaultBTSocketPath  = "/tmp/bluealsad-sim.sock"
	defaultProfile       = "a2dp-source"
	defaultCodec         = "sbc"
	defaultReadMTU       = 679
	defaultWriteMTU      = 679
	defaultSampleRate    = 44100
	defaultChannels      = 2
	defaultMixerPeriodMS = 10
	defaultMetricsAddr   = ":9100"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
)

// envPrefix is the prefix for all bluealsad-sim environment variables.
const envPrefix = "BLUEALSA_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("bluealsad-sim", flag.ContinueOnError)

	fs.StringVar(&cfg.BTSocketPath, "bt-socket", defaultBTSocketPath, "unix socket path for the test double BT transport")
	fs.StringVar(&cfg.Profile, "profile", defaultProfile, "bluetooth profile (a2dp-source, a2dp-sink, hfp-ag, hfp-hf, hsp-ag, hsp-hs)")
	fs.StringVar(&cfg.Codec, "codec", defaultCodec, "codec to run (sbc, aac, aptx, aptx-hd, ldac, mp3, faststream, msbc, cvsd, lc3-swb)")
	fs.IntVar(&cfg.ReadMTU, "read-mtu", defaultReadMTU, "BT socket read MTU in bytes")
	fs.IntVar(&cfg.WriteMTU, "write-mtu", defaultWriteMTU, "BT socket write MTU in bytes")
	fs.IntVar(&cfg.SampleRate, "sample-rate", defaultSampleRate, "PCM sample rate in Hz")
	fs.IntVar(&cfg.Channels, "channels", defaultChannels, "PCM channel count")
	fs.BoolVar(&cfg.MultiClient, "multi-client", false, "enable the N-way PCM mixer instead of a single direct transport")
	fs.IntVar(&cfg.MixerPeriodMS, "mixer-period-ms", defaultMixerPeriodMS, "mixer tick period in milliseconds")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", defaultMetricsAddr, "Prometheus exporter listen address, empty disables it")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"bt-socket":       envPrefix + "BT_SOCKET",
		"profile":         envPrefix + "PROFILE",
		"codec":           envPrefix + "CODEC",
		"read-mtu":        envPrefix + "READ_MTU",
		"write-mtu":       envPrefix + "WRITE_MTU",
		"sample-rate":     envPrefix + "SAMPLE_RATE",
		"channels":        envPrefix + "CHANNELS",
		"multi-client":    envPrefix + "MULTI_CLIENT",
		"mixer-period-ms": envPrefix + "MIXER_PERIOD_MS",
		"metrics-addr":    envPrefix + "METRICS_ADDR",
		"log-level":       envPrefix + "LOG_LEVEL",
		"log-format":      envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "bt-socket":
			cfg.BTSocketPath = val
		case "profile":
			cfg.Profile = val
		case "codec":
			cfg.Codec = val
		case "read-mtu":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.ReadMTU = v
			}
		case "write-mtu":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.WriteMTU = v
			}
		case "sample-rate":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SampleRate = v
			}
		case "channels":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.Channels = v
			}
		case "multi-client":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.MultiClient = v
			}
		case "mixer-period-ms":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.MixerPeriodMS = v
			}
		case "metrics-addr":
			cfg.MetricsAddr = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

var validProfiles = map[string]bool{
	"a2dp-source": true, "a2dp-sink": true,
	"hfp-ag": true, "hfp-hf": true,
	"hsp-ag": true, "hsp-hs": true,
}

var validCodecs = map[string]bool{
	"sbc": true, "aac": true, "aptx": true, "aptx-hd": true,
	"ldac": true, "mp3": true, "faststream": true,
	"msbc": true, "cvsd": true, "lc3-swb": true,
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.BTSocketPath == "" {
		return fmt.Errorf("bt-socket must not be empty")
	}
	profile := strings.ToLower(c.Profile)
	if !validProfiles[profile] {
		return fmt.Errorf("profile must be one of a2dp-source, a2dp-sink, hfp-ag, hfp-hf, hsp-ag, hsp-hs; got %q", c.Profile)
	}
	c.Profile = profile

	codec := strings.ToLower(c.Codec)
	if !validCodecs[codec] {
		return fmt.Errorf("codec must be one of sbc, aac, aptx, aptx-hd, ldac, mp3, faststream, msbc, cvsd, lc3-swb; got %q", c.Codec)
	}
	c.Codec = codec

	if c.ReadMTU < 1 || c.ReadMTU > 65535 {
		return fmt.Errorf("read-mtu must be between 1 and 65535, got %d", c.ReadMTU)
	}
	if c.WriteMTU < 1 || c.WriteMTU > 65535 {
		return fmt.Errorf("write-mtu must be between 1 and 65535, got %d", c.WriteMTU)
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample-rate must be between 8000 and 192000, got %d", c.SampleRate)
	}
	if c.Channels < 1 || c.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.MixerPeriodMS < 1 || c.MixerPeriodMS > 1000 {
		return fmt.Errorf("mixer-period-ms must be between 1 and 1000, got %d", c.MixerPeriodMS)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
