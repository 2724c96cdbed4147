package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// LoadFile loads the configuration from a YAML file and applies environment
// variable overrides on top. An empty path behaves like Load.
func LoadFile(configPath string) (Config, error) {
	if configPath == "" {
		return Load(), nil
	}

	fileData, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	loadDotEnv()
	cfg = applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logrus.Infof("Loaded configuration from %s", configPath)
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must be set")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.MaxCountChange < 0 || c.MaxCountChange > 1 {
		return fmt.Errorf("max count change must be within [0, 1], got %v", c.MaxCountChange)
	}
	if c.MaxRejectedRatio < 0 || c.MaxRejectedRatio > 1 {
		return fmt.Errorf("max rejected ratio must be within [0, 1], got %v", c.MaxRejectedRatio)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	return nil
}
