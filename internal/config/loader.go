package config

import (
	"fmt"
	"os"
	"websentry/internal/types"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// LoadConfig reads the configuration from the given path
func LoadConfig(path string) (*types.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var cfg types.Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a config with all defaults applied, for callers that run
// without a config file (one-shot analyze).
func Default() *types.Config {
	var cfg types.Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults fills zero values with working defaults
func applyDefaults(cfg *types.Config) {
	if cfg.Input.CapturePollSeconds == 0 {
		cfg.Input.CapturePollSeconds = 10
	}
	if cfg.Input.BatchSeconds == 0 {
		cfg.Input.BatchSeconds = 5
	}

	if cfg.Detection.WindowSeconds == 0 {
		cfg.Detection.WindowSeconds = 300
	}
	if cfg.Detection.PriorityThresholds == (types.PriorityThresholds{}) {
		cfg.Detection.PriorityThresholds = types.PriorityThresholds{
			Critical: 90,
			High:     70,
			Medium:   40,
		}
	}
	if cfg.Detection.Workers == 0 {
		cfg.Detection.Workers = 4
	}
	if cfg.Detection.LocalLLMUrl == "" {
		cfg.Detection.LocalLLMUrl = "http://localhost:11434/api/generate"
	}
	if cfg.Detection.LocalLLMModel == "" {
		cfg.Detection.LocalLLMModel = "tinyllama"
	}

	if cfg.AutoBlock.Threshold == 0 {
		cfg.AutoBlock.Threshold = 5
	}
	if cfg.AutoBlock.WindowHours == 0 {
		cfg.AutoBlock.WindowHours = 1
	}
	if cfg.AutoBlock.PriorityFloor == "" {
		cfg.AutoBlock.PriorityFloor = types.PriorityHigh
	}

	if cfg.Dashboard.Port == "" {
		cfg.Dashboard.Port = ":8080"
	}
	if cfg.Metrics.Port == "" {
		cfg.Metrics.Port = ":9090"
	}

	if cfg.Output.DBPath == "" {
		cfg.Output.DBPath = "websentry.db"
	}
	if cfg.Output.AuditLogPath == "" {
		cfg.Output.AuditLogPath = "audit.log"
	}
}
