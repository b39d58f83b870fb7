// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultBusName   = "org.gpiod"
	DefaultSubsystem = "gpio"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/gpiodbusd/config.toml"

// Config represents the gpiodbusd configuration.
type Config struct {
	Bus     BusConfig     `toml:"bus"`
	Monitor MonitorConfig `toml:"monitor"`
}

// BusConfig holds the bus identity settings.
type BusConfig struct {
	Name string `toml:"name"` // Well-known name to claim on the system bus
}

// MonitorConfig holds the hotplug monitor settings.
type MonitorConfig struct {
	Subsystem string `toml:"subsystem"` // Kernel device subsystem to watch
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			Name: DefaultBusName,
		},
		Monitor: MonitorConfig{
			Subsystem: DefaultSubsystem,
		},
	}
}

// Load loads configuration from the specified path.
// If path is empty, uses the default path.
// Returns default config if the file doesn't exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Bus.Name == "" {
		return errors.New("bus name must not be empty")
	}
	// A well-known name needs at least two dot-separated elements.
	if !strings.Contains(c.Bus.Name, ".") || strings.HasPrefix(c.Bus.Name, ".") ||
		strings.HasSuffix(c.Bus.Name, ".") {
		return fmt.Errorf("%q is not a valid well-known bus name", c.Bus.Name)
	}
	if c.Monitor.Subsystem == "" {
		return errors.New("monitor subsystem must not be empty")
	}
	return nil
}
