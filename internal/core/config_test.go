package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Windows(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Windows.EvaluationWindow() != 24*time.Hour {
		t.Errorf("evaluation window = %s, want 24h", cfg.Windows.EvaluationWindow())
	}
	if cfg.Windows.RetentionWindow() != 48*time.Hour {
		t.Errorf("retention window = %s, want 48h", cfg.Windows.RetentionWindow())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_Validate_WindowOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Windows.Evaluation = "48h"
	cfg.Windows.Retention = "24h"
	if err := cfg.Validate(); err == nil {
		t.Error("evaluation >= retention must be rejected")
	}
	cfg.Windows.Evaluation = "soon"
	if err := cfg.Validate(); err == nil {
		t.Error("malformed duration must be rejected")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Detectors.IAM.MaxKeyAgeDays != 90 {
		t.Errorf("defaults not applied: %+v", cfg.Detectors.IAM)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /var/lib/sentinel
windows:
  evaluation: 12h
  retention: 24h
detectors:
  cloudtrail:
    enabled: true
    frequency_threshold: 25
escalation:
  S3_PUBLIC:
    - flag: auto_remediate_public
      clears: auto_tag_only
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Windows.EvaluationWindow() != 12*time.Hour {
		t.Errorf("evaluation = %s, want 12h", cfg.Windows.EvaluationWindow())
	}
	if cfg.Detectors.CloudTrail.FrequencyThreshold != 25 {
		t.Errorf("frequency_threshold = %d, want 25", cfg.Detectors.CloudTrail.FrequencyThreshold)
	}
	rules := cfg.Escalation[CategoryS3Public]
	if len(rules) != 1 || rules[0].Clears != "auto_tag_only" {
		t.Errorf("escalation rules not parsed: %+v", rules)
	}
	if cfg.StatePath() != "/var/lib/sentinel/sentinel_state.json" {
		t.Errorf("state path = %s", cfg.StatePath())
	}
}

func TestLoadConfig_BadWindowsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("windows:\n  evaluation: 48h\n  retention: 24h\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected validation error")
	}
}
