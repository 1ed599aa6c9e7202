package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
logging:
  level: debug
  console: true
storage:
  path: /var/lib/metasbot/metasbot.db
  busy_timeout: 5s
lock:
  stale_after: 90s
  renew_every: 15s
scheduler:
  tick: 2s
  refresh_every: 10m
  job_timeout: 20m
whatsapp:
  server_url: https://gateway.example.com
  api_key: secret
  instance: relatorios
  min_delay: 45s
alert:
  enabled: true
  token: "123:abc"
  chat_id: -100200300
`

func TestParseValidConfig(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Path != "/var/lib/metasbot/metasbot.db" {
		t.Fatalf("storage.path = %q", cfg.Storage.Path)
	}
	if cfg.Lock.StaleAfter != "90s" || cfg.Scheduler.Tick != "2s" {
		t.Fatalf("durations = %+v / %+v", cfg.Lock, cfg.Scheduler)
	}
	if cfg.WhatsApp.Instance != "relatorios" {
		t.Fatalf("whatsapp = %+v", cfg.WhatsApp)
	}
	if cfg.Alert.ChatID != -100200300 {
		t.Fatalf("alert = %+v", cfg.Alert)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte(`
storage:
  path: /tmp/x.db
  pathh: typo
`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing storage path",
			yaml: `logging: {level: info}`,
			want: "storage.path",
		},
		{
			name: "alert enabled without token",
			yaml: "storage: {path: /tmp/x.db}\nalert: {enabled: true, chat_id: 1}",
			want: "alert.token",
		},
		{
			name: "alert enabled without chat id",
			yaml: "storage: {path: /tmp/x.db}\nalert: {enabled: true, token: t}",
			want: "alert.chat_id",
		},
		{
			name: "bad duration",
			yaml: "storage: {path: /tmp/x.db}\nscheduler: {tick: fast}",
			want: "scheduler.tick",
		},
		{
			name: "negative duration",
			yaml: "storage: {path: /tmp/x.db}\nlock: {renew_every: -5s}",
			want: "lock.renew_every",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 10s "); err != nil || d != 10*time.Second {
		t.Fatalf("= (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = (%v, %v), want (0, nil)", d, err)
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("expected error for garbage duration")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default = (%v, %v)", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "30s", time.Minute); err != nil || d != 30*time.Second {
		t.Fatalf("explicit = (%v, %v)", d, err)
	}
}
