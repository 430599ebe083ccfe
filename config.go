package rdt

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config carries the tunable protocol parameters. The attempt caps must be
// identical on both endpoints. Zero-valued fields fall back to the defaults,
// so a partially filled Config is valid.
type Config struct {
	// InitialRTT seeds the round-trip estimate before any sample arrives.
	InitialRTT time.Duration
	// InitialDeviation seeds the estimate's deviation term.
	InitialDeviation time.Duration
	// HandshakeAttempts bounds the timeouts tolerated while establishing.
	HandshakeAttempts int
	// SendAttempts bounds the timeouts tolerated per DATA segment.
	SendAttempts int
	// CloseAttempts bounds the timeouts tolerated during teardown.
	CloseAttempts int

	// Logger receives protocol-level events. Nil silences them.
	Logger *zerolog.Logger
}

var nopLogger = zerolog.Nop()

func DefaultConfig() *Config {
	return &Config{
		InitialRTT:        defaultInitialRTT,
		InitialDeviation:  defaultInitialDeviation,
		HandshakeAttempts: defaultHandshakeAttempts,
		SendAttempts:      defaultSendAttempts,
		CloseAttempts:     defaultCloseAttempts,
		Logger:            &nopLogger,
	}
}

func (config *Config) normalized() *Config {
	if config == nil {
		return DefaultConfig()
	}
	result := *config
	if result.InitialRTT <= 0 {
		result.InitialRTT = defaultInitialRTT
	}
	if result.InitialDeviation <= 0 {
		result.InitialDeviation = defaultInitialDeviation
	}
	if result.HandshakeAttempts <= 0 {
		result.HandshakeAttempts = defaultHandshakeAttempts
	}
	if result.SendAttempts <= 0 {
		result.SendAttempts = defaultSendAttempts
	}
	if result.CloseAttempts <= 0 {
		result.CloseAttempts = defaultCloseAttempts
	}
	if result.Logger == nil {
		result.Logger = &nopLogger
	}
	return &result
}

// fileConfig is the on-disk YAML shape. Times are plain milliseconds so the
// file reads the same on both endpoints regardless of language.
type fileConfig struct {
	InitialRTTMs       int `yaml:"initial_rtt_ms"`
	InitialDeviationMs int `yaml:"initial_deviation_ms"`
	HandshakeAttempts  int `yaml:"handshake_attempts"`
	SendAttempts       int `yaml:"send_attempts"`
	CloseAttempts      int `yaml:"close_attempts"`
}

// LoadConfig reads a YAML file over the defaults; keys absent from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	config := DefaultConfig()
	if file.InitialRTTMs > 0 {
		config.InitialRTT = time.Duration(file.InitialRTTMs) * time.Millisecond
	}
	if file.InitialDeviationMs > 0 {
		config.InitialDeviation = time.Duration(file.InitialDeviationMs) * time.Millisecond
	}
	if file.HandshakeAttempts > 0 {
		config.HandshakeAttempts = file.HandshakeAttempts
	}
	if file.SendAttempts > 0 {
		config.SendAttempts = file.SendAttempts
	}
	if file.CloseAttempts > 0 {
		config.CloseAttempts = file.CloseAttempts
	}
	return config, nil
}
