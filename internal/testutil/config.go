package testutil

import (
	"os"
	"strconv"
)

const (
	// Test key environment variables
	TestOpenAIKey    = "TEST_OPENAI_API_KEY"
	TestAnthropicKey = "TEST_ANTHROPIC_API_KEY"
	TestDatabaseURL  = "TEST_DATABASE_URL"

	// Default test values when environment variables are not set
	DefaultTestKey = "test-key"
)

// GetTestToken returns a test token from environment variable or default
func GetTestToken(envVar, defaultValue string) string {
	if token := os.Getenv(envVar); token != "" {
		return token
	}
	return defaultValue
}

// GetTestOpenAIKey returns test API key for the OpenAI provider
func GetTestOpenAIKey() string {
	return GetTestToken(TestOpenAIKey, DefaultTestKey)
}

// GetTestAnthropicKey returns test API key for the Anthropic provider
func GetTestAnthropicKey() string {
	return GetTestToken(TestAnthropicKey, DefaultTestKey)
}

// GetTestDatabaseURL returns a Postgres DSN for integration tests, or ""
// when none is configured
func GetTestDatabaseURL() string {
	return os.Getenv(TestDatabaseURL)
}

// IsTestMode returns true if we're running in test mode
func IsTestMode() bool {
	testMode := os.Getenv("TEST_MODE")
	if testMode == "" {
		return true // Default to test mode if not specified
	}

	enabled, _ := strconv.ParseBool(testMode)
	return enabled
}

// GetTestBaseURL returns a test base URL for the given service
func GetTestBaseURL(service string) string {
	switch service {
	case "olx":
		return "https://www.olx.test"
	case "vinted":
		return "https://www.vinted.test"
	case "openai":
		return "https://api.openai.test"
	case "anthropic":
		return "https://api.anthropic.test"
	default:
		return "https://api.test.local"
	}
}
