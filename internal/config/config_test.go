package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "org.gpiod", cfg.Bus.Name)
	assert.Equal(t, "gpio", cfg.Monitor.Subsystem)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultBusName, cfg.Bus.Name)
	assert.Equal(t, DefaultSubsystem, cfg.Monitor.Subsystem)
}

func TestLoad_ParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[bus]
name = "org.example.gpio"

[monitor]
subsystem = "tty"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "org.example.gpio", cfg.Bus.Name)
	assert.Equal(t, "tty", cfg.Monitor.Subsystem)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(path, []byte("[bus]\nname = \"com.example.pins\"\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "com.example.pins", cfg.Bus.Name)
	assert.Equal(t, DefaultSubsystem, cfg.Monitor.Subsystem)
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(path, []byte("[bus\nname="), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty bus name", func(c *Config) { c.Bus.Name = "" }, true},
		{"single element name", func(c *Config) { c.Bus.Name = "gpiod" }, true},
		{"leading dot", func(c *Config) { c.Bus.Name = ".org.gpiod" }, true},
		{"trailing dot", func(c *Config) { c.Bus.Name = "org.gpiod." }, true},
		{"empty subsystem", func(c *Config) { c.Monitor.Subsystem = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
