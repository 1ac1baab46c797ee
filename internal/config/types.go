// Package config loads the test rig configuration from a YAML file and
// provides the defaults used when no file exists.
package config

import (
	"time"

	"testrig/internal/engine"
)

// Config is the top-level configuration structure for testrig.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Engine   EngineConfig   `yaml:"engine"`
	Transfer TransferConfig `yaml:"transfer"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn or error (default: info)
}

// EngineConfig tunes the engine's timing. All intervals are in milliseconds.
type EngineConfig struct {
	PollIntervalMs    int `yaml:"pollIntervalMs,omitempty"`    // controller poll interval (default: 100)
	JoinTimeoutMs     int `yaml:"joinTimeoutMs,omitempty"`     // exec loop join timeout after quit (default: 1000)
	MonitorIntervalMs int `yaml:"monitorIntervalMs,omitempty"` // health monitor poll interval (default: 1000)
}

// Options converts the engine section into engine options. Zero values fall
// back to the engine's own defaults.
func (e EngineConfig) Options() engine.Options {
	return engine.Options{
		PollInterval:    time.Duration(e.PollIntervalMs) * time.Millisecond,
		JoinTimeout:     time.Duration(e.JoinTimeoutMs) * time.Millisecond,
		MonitorInterval: time.Duration(e.MonitorIntervalMs) * time.Millisecond,
	}
}

// TransferConfig configures the TFTP transfer service used to feed firmware
// images and similar artifacts to UUTs.
type TransferConfig struct {
	Listen    string `yaml:"listen,omitempty"`    // UDP address to listen on (default: :69)
	Root      string `yaml:"root,omitempty"`      // directory served to clients (default: .)
	TimeoutMs int    `yaml:"timeoutMs,omitempty"` // per-block retransmit timeout (default: 2000)
	Retries   int    `yaml:"retries,omitempty"`   // retransmits before giving up (default: 5)
	BlockSize int    `yaml:"blockSize,omitempty"` // negotiated block size cap (default: 1468)
}

// GetDefaultConfig returns the configuration used when no config file
// exists.
func GetDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Engine: EngineConfig{
			PollIntervalMs:    100,
			JoinTimeoutMs:     1000,
			MonitorIntervalMs: 1000,
		},
		Transfer: TransferConfig{
			Listen:    ":69",
			Root:      ".",
			TimeoutMs: 2000,
			Retries:   5,
			BlockSize: 1468,
		},
	}
}
