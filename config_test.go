package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8000" || cfg.Chat.FreeTrialLimit != 3 || cfg.Quotes.BatchSize != 10 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Snapshots.Timezone != "America/New_York" {
		t.Errorf("timezone = %q", cfg.Snapshots.Timezone)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finsight.yaml")
	yaml := `
port: "9000"
database: /tmp/finsight.db
quotes:
  batchSize: 5
  refreshEvery: 1m
chat:
  freeTrialLimit: 10
  upstreamUrl: http://localhost:8000
snapshots:
  timezone: UTC
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FINSIGHT_PORT", "9100")
	t.Setenv("FINNHUB_API_KEY", "secret")
	t.Setenv("FINSIGHT_DEBUG", "true")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9100" {
		t.Errorf("env should override the file, port = %q", cfg.Port)
	}
	if cfg.DatabasePath != "/tmp/finsight.db" || cfg.Quotes.BatchSize != 5 || cfg.Quotes.RefreshEvery != time.Minute {
		t.Errorf("file values not applied: %+v", cfg.Quotes)
	}
	if cfg.Chat.FreeTrialLimit != 10 || cfg.Chat.UpstreamURL != "http://localhost:8000" {
		t.Errorf("chat settings = %+v", cfg.Chat)
	}
	if cfg.Quotes.FinnhubAPIKey != "secret" || !cfg.Debug {
		t.Errorf("env values not applied")
	}
	// unset keys keep their defaults
	if cfg.Quotes.FinnhubBaseURL != "https://finnhub.io/api/v1" {
		t.Errorf("finnhub base url = %q", cfg.Quotes.FinnhubBaseURL)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"empty database", func(c *Config) { c.DatabasePath = "" }},
		{"zero batch", func(c *Config) { c.Quotes.BatchSize = 0 }},
		{"fast refresh", func(c *Config) { c.Quotes.RefreshEvery = time.Millisecond }},
		{"negative trial", func(c *Config) { c.Chat.FreeTrialLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected a validation error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
