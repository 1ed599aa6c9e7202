package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the daemon configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Lock      LockConfig      `yaml:"lock"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Alert     AlertConfig     `yaml:"alert"`
}

type LoggingConfig struct {
	Level   string            `yaml:"level"`
	Console bool              `yaml:"console"`
	File    LoggingFileConfig `yaml:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type StorageConfig struct {
	Path string `yaml:"path"`

	// BusyTimeout is passed to SQLite as PRAGMA busy_timeout.
	BusyTimeout string `yaml:"busy_timeout,omitempty"`
}

// LockConfig controls the single-instance lock.
//
// Defaults (when fields are omitted/zero):
//   - stale_after: "60s"
//   - renew_every: "10s"
type LockConfig struct {
	StaleAfter string `yaml:"stale_after,omitempty"`
	RenewEvery string `yaml:"renew_every,omitempty"`
}

// SchedulerConfig controls the main loop.
//
// Defaults (when fields are omitted/zero):
//   - tick: "1s"
//   - refresh_every: "5m"
//   - job_timeout: "15m" (use "0s" to disable)
type SchedulerConfig struct {
	Tick         string `yaml:"tick,omitempty"`
	RefreshEvery string `yaml:"refresh_every,omitempty"`
	JobTimeout   string `yaml:"job_timeout,omitempty"`
}

// WhatsAppConfig points at an Evolution-style WhatsApp HTTP gateway.
type WhatsAppConfig struct {
	ServerURL string `yaml:"server_url"`
	APIKey    string `yaml:"api_key"`
	Instance  string `yaml:"instance"`

	// MinDelay/MaxDelay bound the randomized pause after each send so the
	// outbound channel never sees machine-gun pacing.
	MinDelay string `yaml:"min_delay,omitempty"`
	MaxDelay string `yaml:"max_delay,omitempty"`
}

// AlertConfig configures best-effort operator alerts via Telegram.
type AlertConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token,omitempty"`
	ChatID  int64  `yaml:"chat_id,omitempty"`
}

// Load reads and strictly decodes the YAML config at path.
// Unknown fields are rejected so typos fail loudly at startup.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("config: storage.path is required")
	}
	if c.Alert.Enabled {
		if strings.TrimSpace(c.Alert.Token) == "" {
			return fmt.Errorf("config: alert.enabled requires alert.token")
		}
		if c.Alert.ChatID == 0 {
			return fmt.Errorf("config: alert.enabled requires alert.chat_id")
		}
	}
	// Durations are validated here so component constructors can assume
	// well-formed values.
	for _, f := range []struct{ path, raw string }{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"lock.stale_after", c.Lock.StaleAfter},
		{"lock.renew_every", c.Lock.RenewEvery},
		{"scheduler.tick", c.Scheduler.Tick},
		{"scheduler.refresh_every", c.Scheduler.RefreshEvery},
		{"scheduler.job_timeout", c.Scheduler.JobTimeout},
		{"whatsapp.min_delay", c.WhatsApp.MinDelay},
		{"whatsapp.max_delay", c.WhatsApp.MaxDelay},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}
