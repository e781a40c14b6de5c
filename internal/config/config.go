// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/guarzo/olxbuddy/internal/marketplace"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL string

	ScrapeRateLimit    time.Duration
	ScrapeTimeout      time.Duration
	OLXBaseURL         string
	VintedBaseURL      string
	SuggestionCacheTTL time.Duration

	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaBaseURL   string

	CompetitorRetentionDays   int
	PriceHistoryRetentionDays int
	SoldListingRetentionDays  int

	Debug bool
}

// Load reads the .env file (if any) and returns a populated Config.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Config: no .env file found, falling back to system env vars")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),

		ScrapeRateLimit:    getEnvSeconds("SCRAPE_RATE_LIMIT", 5*time.Second),
		ScrapeTimeout:      getEnvDuration("SCRAPE_TIMEOUT", 15*time.Second),
		OLXBaseURL:         getEnv("OLX_BASE_URL", marketplace.DefaultOLXBaseURL),
		VintedBaseURL:      getEnv("VINTED_BASE_URL", marketplace.DefaultVintedBaseURL),
		SuggestionCacheTTL: getEnvDuration("SUGGESTION_CACHE_TTL", 10*time.Minute),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),

		CompetitorRetentionDays:   getEnvInt("COMPETITOR_RETENTION_DAYS", 30),
		PriceHistoryRetentionDays: getEnvInt("PRICE_HISTORY_RETENTION_DAYS", 90),
		SoldListingRetentionDays:  getEnvInt("SOLD_LISTING_RETENTION_DAYS", 365),

		Debug: getEnvBool("LOG_DEBUG", false),
	}
}

// Validate rejects settings the scrapers and jobs cannot run with.
func (c *Config) Validate() error {
	if c.ScrapeRateLimit < 0 {
		return fmt.Errorf("SCRAPE_RATE_LIMIT must not be negative, got %s", c.ScrapeRateLimit)
	}
	if c.ScrapeTimeout <= 0 {
		return fmt.Errorf("SCRAPE_TIMEOUT must be positive, got %s", c.ScrapeTimeout)
	}
	if c.SuggestionCacheTTL < 0 {
		return fmt.Errorf("SUGGESTION_CACHE_TTL must not be negative, got %s", c.SuggestionCacheTTL)
	}
	if c.OLXBaseURL == "" || c.VintedBaseURL == "" {
		return fmt.Errorf("marketplace base URLs must be set")
	}

	retentions := map[string]int{
		"COMPETITOR_RETENTION_DAYS":    c.CompetitorRetentionDays,
		"PRICE_HISTORY_RETENTION_DAYS": c.PriceHistoryRetentionDays,
		"SOLD_LISTING_RETENTION_DAYS":  c.SoldListingRetentionDays,
	}
	for name, days := range retentions {
		if days <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, days)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
		log.Printf("Config: invalid %s=%q, using %d", key, val, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvSeconds accepts a plain number of seconds ("5", "0.5") or a Go duration ("500ms")
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	log.Printf("Config: invalid %s=%q, using %s", key, val, fallback)
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Config: invalid %s=%q, using %s", key, val, fallback)
	return fallback
}
