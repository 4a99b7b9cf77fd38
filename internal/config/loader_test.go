package config

import (
	"os"
	"path/filepath"
	"testing"

	"websentry/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
input:
  web_log_path: /var/log/nginx/access.log
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Detection.WindowSeconds != 300 {
		t.Errorf("Expected default window 300, got %d", cfg.Detection.WindowSeconds)
	}
	if cfg.Detection.PriorityThresholds.Critical != 90 {
		t.Errorf("Expected default critical threshold 90, got %d", cfg.Detection.PriorityThresholds.Critical)
	}
	if cfg.AutoBlock.Threshold != 5 || cfg.AutoBlock.WindowHours != 1 {
		t.Errorf("Expected default auto-block 5/1h, got %d/%dh", cfg.AutoBlock.Threshold, cfg.AutoBlock.WindowHours)
	}
	if cfg.AutoBlock.PriorityFloor != types.PriorityHigh {
		t.Errorf("Expected default floor high, got %s", cfg.AutoBlock.PriorityFloor)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
detection:
  window_seconds: 60
  priority_thresholds:
    critical: 95
    high: 75
    medium: 50
auto_block:
  auto_block_threshold: 3
  priority_floor: medium
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Detection.WindowSeconds != 60 {
		t.Errorf("Expected window 60, got %d", cfg.Detection.WindowSeconds)
	}
	if cfg.Detection.PriorityThresholds.High != 75 {
		t.Errorf("Expected high threshold 75, got %d", cfg.Detection.PriorityThresholds.High)
	}
	if cfg.AutoBlock.Threshold != 3 || cfg.AutoBlock.PriorityFloor != types.PriorityMedium {
		t.Errorf("Expected threshold 3 floor medium, got %d/%s", cfg.AutoBlock.Threshold, cfg.AutoBlock.PriorityFloor)
	}
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
auto_block:
  priority_floor: urgent
`)
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for unknown priority floor")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yml"); err == nil {
		t.Error("Expected error for missing file")
	}
}
