// Package config loads cladeguess settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/cladeguess/internal/decision"
	"github.com/phobologic/cladeguess/internal/discover"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "cladeguess.yaml"

// EnvDataset selects the datasets to process, comma-separated.
const EnvDataset = "CLADEGUESS_DATASET"

// Output formats for the decision report.
const (
	FormatText = "text"
	FormatTOON = "toon"
)

// Config holds all cladeguess configuration.
type Config struct {
	InputDir  string   `yaml:"input_dir"`
	OutputDir string   `yaml:"output_dir"`
	Datasets  []string `yaml:"datasets"`

	// Strategy picks the guess at each step: ordered or greedy.
	Strategy string `yaml:"strategy"`
	// Format of the decision report: text or toon.
	Format string `yaml:"format"`

	// IgnoreFile holds lineage exclusion patterns. Relative paths are
	// resolved against InputDir.
	IgnoreFile  string `yaml:"ignore_file"`
	EmitOutline bool   `yaml:"emit_outline"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		InputDir:   "input",
		OutputDir:  "output",
		Datasets:   []string{discover.All},
		Strategy:   string(decision.Ordered),
		Format:     FormatText,
		IgnoreFile: ".cladeignore",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults;
// environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

const header = `# cladeguess configuration.
# ` + EnvDataset + ` (comma-separated) overrides datasets; flags override both.
`

// Marshal renders the configuration as commented YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return append([]byte(header), data...), nil
}

func (c *Config) applyEnvOverrides() {
	v := os.Getenv(EnvDataset)
	if v == "" {
		return
	}
	var names []string
	for _, n := range strings.Split(v, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) > 0 {
		c.Datasets = names
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("input_dir must not be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if len(c.Datasets) == 0 {
		return fmt.Errorf("no datasets selected")
	}
	if _, err := discover.Expand(c.Datasets); err != nil {
		return err
	}
	if _, err := decision.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	switch c.Format {
	case FormatText, FormatTOON:
	default:
		return fmt.Errorf("invalid format: %s (valid: %s, %s)", c.Format, FormatText, FormatTOON)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging level: %w", err)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %s (valid: console, json)", c.Logging.Format)
	}
	return nil
}
