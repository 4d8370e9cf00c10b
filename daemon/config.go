// Package daemon wires the bridge, tree, profiler, and IPC server into the
// long-lived reactwatch process and serialises every state mutation.
package daemon

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Port     int    `yaml:"port"`
	StateDir string `yaml:"state_dir"`

	InspectTimeout  time.Duration `yaml:"inspect_timeout"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	StopGrace       time.Duration `yaml:"stop_grace"`
	ReconnectWindow time.Duration `yaml:"reconnect_window"`

	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig controls the SQLite event/audit store.
type ObservabilityConfig struct {
	Enabled           bool          `yaml:"enabled"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8097
	}
	if c.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.StateDir = filepath.Join(home, ".agent-react-devtools")
	}
	if c.InspectTimeout <= 0 {
		c.InspectTimeout = 5 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 30 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 200 * time.Millisecond
	}
	if c.ReconnectWindow <= 0 {
		c.ReconnectWindow = 5 * time.Second
	}
	if c.Observability.HeartbeatInterval <= 0 {
		c.Observability.HeartbeatInterval = 15 * time.Second
	}
}

// SocketPath is the IPC socket location inside the state directory.
func (c *Config) SocketPath() string {
	return filepath.Join(c.StateDir, "daemon.sock")
}

// DaemonFilePath is the daemon.json location inside the state directory.
func (c *Config) DaemonFilePath() string {
	return filepath.Join(c.StateDir, "daemon.json")
}

// ObservabilityDBPath is the observability database location.
func (c *Config) ObservabilityDBPath() string {
	return filepath.Join(c.StateDir, "observability.db")
}
