package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds every runtime setting of the service.
type Config struct {
	Port         string `yaml:"port"`
	DatabasePath string `yaml:"database"`
	StoragePath  string `yaml:"localStorage"`
	Debug        bool   `yaml:"debug"`

	Quotes struct {
		FinnhubAPIKey  string        `yaml:"finnhubApiKey"`
		FinnhubBaseURL string        `yaml:"finnhubBaseUrl"`
		// YahooBaseURL serves candles Finnhub refuses; empty disables it.
		YahooBaseURL   string        `yaml:"yahooBaseUrl"`
		BatchSize      int           `yaml:"batchSize"`
		BatchDelay     time.Duration `yaml:"batchDelay"`
		RefreshEvery   time.Duration `yaml:"refreshEvery"`
	} `yaml:"quotes"`

	Chat struct {
		// UpstreamURL points the relay at a remote chat backend. Empty means
		// the relay calls the in-process model backends directly.
		UpstreamURL    string `yaml:"upstreamUrl"`
		FreeTrialLimit int    `yaml:"freeTrialLimit"`
		OpenAIAPIKey   string `yaml:"openaiApiKey"`
		OpenAIBaseURL  string `yaml:"openaiBaseUrl"`
		OpenAIModel    string `yaml:"openaiModel"`
		GeminiAPIKey   string `yaml:"geminiApiKey"`
		GeminiModel    string `yaml:"geminiModel"`
	} `yaml:"chat"`

	Alerts struct {
		PushURL string `yaml:"pushUrl"`
	} `yaml:"alerts"`

	Snapshots struct {
		Schedule string `yaml:"schedule"`
		Timezone string `yaml:"timezone"`
	} `yaml:"snapshots"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	cfg := &Config{
		Port:         "8000",
		DatabasePath: "finsight.db",
		StoragePath:  "local_storage.json",
	}
	cfg.Quotes.FinnhubBaseURL = "https://finnhub.io/api/v1"
	cfg.Quotes.YahooBaseURL = "https://query1.finance.yahoo.com"
	cfg.Quotes.BatchSize = 10
	cfg.Quotes.BatchDelay = time.Second
	cfg.Quotes.RefreshEvery = 30 * time.Second

	cfg.Chat.FreeTrialLimit = 3
	cfg.Chat.OpenAIBaseURL = "https://api.openai.com/v1"
	cfg.Chat.OpenAIModel = "gpt-4o-mini"
	cfg.Chat.GeminiModel = "gemini-2.5-flash"

	cfg.Snapshots.Schedule = "0 18 * * *"
	cfg.Snapshots.Timezone = "America/New_York"
	return cfg
}

// LoadConfig builds the configuration from defaults, an optional YAML file,
// an optional .env file and finally the process environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	_ = godotenv.Load()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("FINSIGHT_PORT"); val != "" {
		c.Port = val
	}
	if val := os.Getenv("FINSIGHT_DB"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("FINSIGHT_LOCAL_STORAGE"); val != "" {
		c.StoragePath = val
	}
	if val := os.Getenv("FINSIGHT_DEBUG"); val != "" {
		if debug, err := strconv.ParseBool(val); err == nil {
			c.Debug = debug
		}
	}

	if val := os.Getenv("FINNHUB_API_KEY"); val != "" {
		c.Quotes.FinnhubAPIKey = val
	}
	if val := os.Getenv("FINSIGHT_REFRESH_EVERY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Quotes.RefreshEvery = d
		}
	}

	if val := os.Getenv("FINSIGHT_CHAT_UPSTREAM"); val != "" {
		c.Chat.UpstreamURL = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.Chat.OpenAIAPIKey = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		c.Chat.OpenAIBaseURL = val
	}
	if val := os.Getenv("OPENAI_MODEL"); val != "" {
		c.Chat.OpenAIModel = val
	}
	if val := os.Getenv("GEMINI_API_KEY"); val != "" {
		c.Chat.GeminiAPIKey = val
	}
	if val := os.Getenv("GEMINI_MODEL"); val != "" {
		c.Chat.GeminiModel = val
	}

	if val := os.Getenv("FINSIGHT_PUSH_URL"); val != "" {
		c.Alerts.PushURL = val
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Quotes.BatchSize <= 0 {
		return fmt.Errorf("quotes.batchSize must be positive, got %d", c.Quotes.BatchSize)
	}
	if c.Quotes.RefreshEvery < time.Second {
		return fmt.Errorf("quotes.refreshEvery must be at least 1s, got %s", c.Quotes.RefreshEvery)
	}
	if c.Chat.FreeTrialLimit < 0 {
		return fmt.Errorf("chat.freeTrialLimit cannot be negative")
	}
	return nil
}
