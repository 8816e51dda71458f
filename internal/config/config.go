// Package config provides configuration management for parla.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultListenAddr    = "127.0.0.1:8787"
	DefaultLanguage      = "en-US"
	DefaultSampleRate    = 48000
	DefaultAudioEncoding = "MP3"
)

// Config holds the runtime configuration, loaded from
// ~/.parla/config.yaml with zero-value fields backfilled from defaults.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// DatabasePath is the local SQLite file; PostgresDSN, when set,
	// selects Postgres instead.
	DatabasePath string `yaml:"database_path"`
	PostgresDSN  string `yaml:"postgres_dsn"`
	MaxConns     int    `yaml:"max_conns"`

	Language      string `yaml:"language"`
	SampleRate    int    `yaml:"sample_rate"`
	AudioEncoding string `yaml:"audio_encoding"`

	// GatewayURL is the base URL of the speech/LLM gateway; GatewayKey
	// is sent as a bearer token when set. PARLA_GATEWAY_KEY overrides
	// the file value.
	GatewayURL string `yaml:"gateway_url"`
	GatewayKey string `yaml:"gateway_key"`

	// PromptDir overrides the built-in prompt templates; templates in
	// the directory are hot-reloaded.
	PromptDir string `yaml:"prompt_dir"`

	// ShutdownGraceSeconds bounds the background-analysis drain.
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ListenAddr:           DefaultListenAddr,
		DatabasePath:         DBPath(),
		MaxConns:             4,
		Language:             DefaultLanguage,
		SampleRate:           DefaultSampleRate,
		AudioEncoding:        DefaultAudioEncoding,
		ShutdownGraceSeconds: 15,
	}
}

// DataDir returns the data directory (~/.parla).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".parla")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "parla.db")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o755)
}

// Load reads the config file, filling unset fields with defaults.
// A missing file yields the defaults without error.
func Load() (*Config, error) {
	return loadFrom(ConfigPath())
}

func loadFrom(path string) (*Config, error) {
	cfg := Default()
	defer func() {
		if key := os.Getenv("PARLA_GATEWAY_KEY"); key != "" {
			cfg.GatewayKey = key
		}
	}()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.DatabasePath == "" {
		c.DatabasePath = d.DatabasePath
	}
	if c.MaxConns <= 0 {
		c.MaxConns = d.MaxConns
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.AudioEncoding == "" {
		c.AudioEncoding = d.AudioEncoding
	}
	if c.ShutdownGraceSeconds <= 0 {
		c.ShutdownGraceSeconds = d.ShutdownGraceSeconds
	}
}
