package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for the sentinel loop: where the
// persisted documents live, window sizes, detector settings, escalation
// rules, and ambient concerns. It is constructed once at process start and
// passed explicitly — there is no global state.
type Config struct {
	DataDir    string                      `yaml:"data_dir"`
	Windows    WindowConfig                `yaml:"windows"`
	AWS        AWSConfig                   `yaml:"aws"`
	Detectors  DetectorConfig              `yaml:"detectors"`
	Escalation map[string][]EscalationRule `yaml:"escalation"`
	Notify     NotifyConfig                `yaml:"notify"`
	Logging    LoggingConfig               `yaml:"logging"`
}

// WindowConfig holds the rolling-window sizes as duration strings ("24h").
// The evaluation window must be strictly smaller than the retention window.
type WindowConfig struct {
	Evaluation string `yaml:"evaluation"`
	Retention  string `yaml:"retention"`
}

// EvaluationWindow parses the evaluation window, falling back to the default
// on an empty or malformed value.
func (w WindowConfig) EvaluationWindow() time.Duration {
	if d, err := time.ParseDuration(w.Evaluation); err == nil && d > 0 {
		return d
	}
	return DefaultEvaluationWindow
}

// RetentionWindow parses the retention window, falling back to the default.
func (w WindowConfig) RetentionWindow() time.Duration {
	if d, err := time.ParseDuration(w.Retention); err == nil && d > 0 {
		return d
	}
	return DefaultRetentionWindow
}

// AWSConfig holds shared AWS client settings.
type AWSConfig struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
}

// DetectorConfig holds per-detector settings.
type DetectorConfig struct {
	S3         S3DetectorConfig         `yaml:"s3"`
	IAM        IAMDetectorConfig        `yaml:"iam"`
	CloudTrail CloudTrailDetectorConfig `yaml:"cloudtrail"`
	GuardDuty  GuardDutyDetectorConfig  `yaml:"guardduty"`
}

// S3DetectorConfig holds S3 public-access detector settings.
type S3DetectorConfig struct {
	Enabled bool `yaml:"enabled"`
}

// IAMDetectorConfig holds IAM exposure detector settings.
type IAMDetectorConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxKeyAgeDays int  `yaml:"max_key_age_days"`
}

// CloudTrailDetectorConfig holds the anomaly rules applied to recent
// CloudTrail events.
type CloudTrailDetectorConfig struct {
	Enabled            bool     `yaml:"enabled"`
	LookbackHours      int      `yaml:"lookback_hours"`
	FrequencyThreshold int      `yaml:"frequency_threshold"`
	HighRiskPrefixes   []string `yaml:"high_risk_prefixes"`
	MaxEvents          int      `yaml:"max_events"`
}

// GuardDutyDetectorConfig holds GuardDuty connector settings.
type GuardDutyDetectorConfig struct {
	Enabled      bool    `yaml:"enabled"`
	MaxFindings  int     `yaml:"max_findings"`
	HighSeverity float64 `yaml:"high_severity"`
}

// NotifyConfig holds NATS publishing settings for applied policy changes.
// Publishing is disabled unless a URL is configured.
type NotifyConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sane defaults — zero-config works out
// of the box against the default AWS credential chain.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Windows: WindowConfig{
			Evaluation: "24h",
			Retention:  "48h",
		},
		Detectors: DetectorConfig{
			S3:  S3DetectorConfig{Enabled: true},
			IAM: IAMDetectorConfig{Enabled: true, MaxKeyAgeDays: 90},
			CloudTrail: CloudTrailDetectorConfig{
				Enabled:            true,
				LookbackHours:      24,
				FrequencyThreshold: 50,
				HighRiskPrefixes:   []string{"Delete", "Put", "Attach", "Create", "Disable", "Stop"},
				MaxEvents:          1000,
			},
			GuardDuty: GuardDutyDetectorConfig{
				Enabled:      true,
				MaxFindings:  50,
				HighSeverity: 7.0,
			},
		},
		Escalation: DefaultEscalationRules(),
		Notify: NotifyConfig{
			Subject: "sentinel.policy.changes",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to defaults
// when the path is empty or the file does not exist.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Windows.Evaluation != "" {
		if d, err := time.ParseDuration(c.Windows.Evaluation); err != nil || d <= 0 {
			return fmt.Errorf("invalid evaluation window %q", c.Windows.Evaluation)
		}
	}
	if c.Windows.Retention != "" {
		if d, err := time.ParseDuration(c.Windows.Retention); err != nil || d <= 0 {
			return fmt.Errorf("invalid retention window %q", c.Windows.Retention)
		}
	}
	if c.Windows.EvaluationWindow() >= c.Windows.RetentionWindow() {
		return fmt.Errorf("evaluation window (%s) must be smaller than retention window (%s)",
			c.Windows.EvaluationWindow(), c.Windows.RetentionWindow())
	}
	return nil
}

// StatePath returns the location of the persisted state document.
func (c *Config) StatePath() string { return filepath.Join(c.DataDir, "sentinel_state.json") }

// PolicyPath returns the location of the persisted policy document.
func (c *Config) PolicyPath() string { return filepath.Join(c.DataDir, "sentinel_config.json") }

// ReportDir returns the directory evaluation reports are written to.
func (c *Config) ReportDir() string { return filepath.Join(c.DataDir, "reports") }

// LogLevel returns the configured log level, lowercased.
func (c *Config) LogLevel() string { return strings.ToLower(c.Logging.Level) }
