package payflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/deepnoodle-ai/payflow/selector"
)

// Config carries the tunable policy knobs of the invoice pipeline.
type Config struct {
	// MatchThreshold is the minimum two-way match score that avoids human
	// review.
	MatchThreshold float64 `yaml:"match_threshold"`

	// AutoApproveLimit is the invoice amount below which approval is
	// automatic.
	AutoApproveLimit float64 `yaml:"auto_approve_limit"`

	// ReviewURLBase prefixes checkpoint ids to form reviewer links.
	ReviewURLBase string `yaml:"review_url_base"`

	// ToolPools overrides the selector's built-in candidate pools.
	ToolPools map[string][]selector.Tool `yaml:"tool_pools,omitempty"`
}

// DefaultConfig returns the standard policy values.
func DefaultConfig() Config {
	return Config{
		MatchThreshold:   0.90,
		AutoApproveLimit: 5000,
		ReviewURLBase:    "http://localhost:8000/review",
	}
}

// Validate checks config values are usable.
func (c Config) Validate() error {
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be in (0, 1], got %v", c.MatchThreshold)
	}
	if c.AutoApproveLimit < 0 {
		return fmt.Errorf("auto_approve_limit must not be negative, got %v", c.AutoApproveLimit)
	}
	return nil
}

// LoadConfigFile reads a YAML config, overlaying defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
