// Package config loads a node's on-disk YAML configuration: its peer
// identity, data directory, raft bind address, and logging options.
// One YAML document per node, decoded with gopkg.in/yaml.v3 struct tags.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/vecton/pkg/log"
	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/vecerr"
)

// Config is one node's complete startup configuration.
type Config struct {
	PeerID   types.PeerID `yaml:"peer_id"`
	BindAddr string       `yaml:"bind_addr"`
	DataDir  string       `yaml:"data_dir"`

	Join *JoinConfig `yaml:"join,omitempty"`

	Log    LogConfig    `yaml:"log"`
	Metric MetricConfig `yaml:"metrics"`
}

// JoinConfig points a new node at an existing cluster member to join
// through; nil means this node bootstraps a brand new single-node cluster.
type JoinConfig struct {
	PeerID   types.PeerID `yaml:"peer_id"`
	BindAddr string       `yaml:"bind_addr"`
}

// LogConfig mirrors pkg/log.Config's fields for YAML loading.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricConfig controls the /metrics HTTP listener.
type MetricConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a single-node config with no bootstrap peer.
func Default() Config {
	return Config{
		PeerID:   1,
		BindAddr: "127.0.0.1:7000",
		DataDir:  "./data",
		Log:      LogConfig{Level: "info"},
		Metric:   MetricConfig{ListenAddr: "127.0.0.1:9090"},
	}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, vecerr.NewServiceErrorf("config: read %s: %v", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, vecerr.NewServiceErrorf("config: parse %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields every node needs regardless of join status.
func (c Config) Validate() error {
	if c.PeerID == 0 {
		return vecerr.NewBadInput("config: peer_id must be set")
	}
	if c.BindAddr == "" {
		return vecerr.NewBadInput("config: bind_addr must be set")
	}
	if c.DataDir == "" {
		return vecerr.NewBadInput("config: data_dir must be set")
	}
	return nil
}

// LogLevel converts the YAML log level string into a pkg/log.Level,
// falling back to info on an unrecognized value.
func (c Config) LogLevel() log.Level {
	switch c.Log.Level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
