package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guarzo/olxbuddy/internal/marketplace"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "SCRAPE_RATE_LIMIT", "SCRAPE_TIMEOUT", "OLX_BASE_URL",
		"VINTED_BASE_URL", "SUGGESTION_CACHE_TTL", "OLLAMA_BASE_URL", "COMPETITOR_RETENTION_DAYS", "LOG_DEBUG"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	if cfg.ScrapeRateLimit != 5*time.Second {
		t.Errorf("Expected 5s rate limit, got %s", cfg.ScrapeRateLimit)
	}
	if cfg.ScrapeTimeout != 15*time.Second {
		t.Errorf("Expected 15s timeout, got %s", cfg.ScrapeTimeout)
	}
	if cfg.OLXBaseURL != marketplace.DefaultOLXBaseURL || cfg.VintedBaseURL != marketplace.DefaultVintedBaseURL {
		t.Errorf("Unexpected base URLs %s %s", cfg.OLXBaseURL, cfg.VintedBaseURL)
	}
	if cfg.SuggestionCacheTTL != 10*time.Minute {
		t.Errorf("Expected 10m cache TTL, got %s", cfg.SuggestionCacheTTL)
	}
	if cfg.OllamaBaseURL != "http://localhost:11434" {
		t.Errorf("Unexpected Ollama URL %s", cfg.OllamaBaseURL)
	}
	if cfg.CompetitorRetentionDays != 30 || cfg.PriceHistoryRetentionDays != 90 || cfg.SoldListingRetentionDays != 365 {
		t.Errorf("Unexpected retentions %d/%d/%d", cfg.CompetitorRetentionDays, cfg.PriceHistoryRetentionDays, cfg.SoldListingRetentionDays)
	}
	if cfg.Debug {
		t.Error("Debug should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate, got %v", err)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/olx")
	t.Setenv("SCRAPE_RATE_LIMIT", "0.5")
	t.Setenv("SCRAPE_TIMEOUT", "30s")
	t.Setenv("SUGGESTION_CACHE_TTL", "0")
	t.Setenv("COMPETITOR_RETENTION_DAYS", "7")
	t.Setenv("LOG_DEBUG", "true")

	cfg := FromEnv()

	if cfg.DatabaseURL != "postgres://u:p@localhost:5432/olx" {
		t.Errorf("Unexpected DSN %s", cfg.DatabaseURL)
	}
	if cfg.ScrapeRateLimit != 500*time.Millisecond {
		t.Errorf("Expected 500ms, got %s", cfg.ScrapeRateLimit)
	}
	if cfg.ScrapeTimeout != 30*time.Second {
		t.Errorf("Expected 30s, got %s", cfg.ScrapeTimeout)
	}
	if cfg.SuggestionCacheTTL != 0 {
		t.Errorf("Expected cache disabled, got %s", cfg.SuggestionCacheTTL)
	}
	if cfg.CompetitorRetentionDays != 7 {
		t.Errorf("Expected 7, got %d", cfg.CompetitorRetentionDays)
	}
	if !cfg.Debug {
		t.Error("Expected debug on")
	}
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SCRAPE_RATE_LIMIT", "soon")
	t.Setenv("COMPETITOR_RETENTION_DAYS", "a month")

	cfg := FromEnv()
	if cfg.ScrapeRateLimit != 5*time.Second {
		t.Errorf("Expected fallback 5s, got %s", cfg.ScrapeRateLimit)
	}
	if cfg.CompetitorRetentionDays != 30 {
		t.Errorf("Expected fallback 30, got %d", cfg.CompetitorRetentionDays)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"zero timeout", func(c *Config) { c.ScrapeTimeout = 0 }, "SCRAPE_TIMEOUT"},
		{"negative rate limit", func(c *Config) { c.ScrapeRateLimit = -time.Second }, "SCRAPE_RATE_LIMIT"},
		{"negative cache ttl", func(c *Config) { c.SuggestionCacheTTL = -time.Minute }, "SUGGESTION_CACHE_TTL"},
		{"zero retention", func(c *Config) { c.PriceHistoryRetentionDays = 0 }, "PRICE_HISTORY_RETENTION_DAYS"},
		{"empty base URL", func(c *Config) { c.OLXBaseURL = "" }, "base URLs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("Expected error mentioning %s, got %v", tt.errSub, err)
			}
		})
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OLX_BASE_URL=https://www.olx.test\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	t.Setenv("OLX_BASE_URL", "")
	os.Unsetenv("OLX_BASE_URL")

	cfg := Load()
	if cfg.OLXBaseURL != "https://www.olx.test" {
		t.Errorf("Expected value from .env, got %s", cfg.OLXBaseURL)
	}
}
