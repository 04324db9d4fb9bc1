package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config holds tool-wide defaults, loadable from a YAML file and overridable
// by command-line flags. An empty LogLevel means "not configured": the logger
// setup falls back to the LOG_LEVEL environment variable, then to info.
type Config struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// DefaultConfig returns the built-in defaults. LogLevel stays empty so that a
// value from the config file or a flag is distinguishable from "unset".
func DefaultConfig() *Config {
	return &Config{
		LogFormat: "text",
	}
}

// LoadConfig reads a YAML config file. A missing path returns defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %v", path, err)
	}
	return config, nil
}

// ExtractOptions describes one rootfs extraction from an OCI image layout.
type ExtractOptions struct {
	LayoutDir string
	Dest      string
	// OutputTar, when set, additionally packages the merged tree as a plain
	// uncompressed tarball at this path.
	OutputTar string
}

// OverlayOptions describes one Debian package overlay onto an existing rootfs.
type OverlayOptions struct {
	RootfsDir string
	Packages  []string
}
