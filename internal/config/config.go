// Package config loads the CLI's optional YAML configuration file, the
// way the teacher's tools read a small settings file before flag parsing
// takes over for anything the user overrides explicitly on the command
// line.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the CLI's optional defaults. Only read-redo loads it.
type Config struct {
	// ExportFormat is the default -export value when the flag is omitted.
	ExportFormat string `yaml:"export_format"`
	// Verbose enables diag.Observer warnings to stderr by default; -v
	// enables them too, and either one is enough.
	Verbose bool `yaml:"verbose"`
	// PageFlags is parsed from the file, but read-tablespace and read-page
	// do not consult it: their -flags flag defaults to 0x15 on its own.
	PageFlags uint32 `yaml:"page_flags"`
}

// Default returns the zero-value configuration used when no config file
// is present.
func Default() Config {
	return Config{ExportFormat: "", Verbose: false, PageFlags: 0x15}
}

// Load reads and parses path. A missing file is not an error: Default() is
// returned unchanged, matching the teacher's "config is optional" posture.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
