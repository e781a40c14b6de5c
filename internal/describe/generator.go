// Package describe generates listing descriptions with a chain of LLM
// providers: OpenAI, Anthropic and a local Ollama server.
package describe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// MaxImages is how many images are attached to a single request
const MaxImages = 4

// ErrNoProvider is returned when a chain has no providers configured
var ErrNoProvider = errors.New("no AI provider available")

// Generator produces text for a prompt and optional JPEG images
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, images [][]byte) (string, error)
}

// Chain tries each generator in order and returns the first success
type Chain struct {
	generators []Generator
}

// NewChain creates a chain; nil generators are skipped
func NewChain(generators ...Generator) *Chain {
	c := &Chain{}
	for _, g := range generators {
		if g != nil {
			c.generators = append(c.generators, g)
		}
	}
	return c
}

// Providers returns the names of the configured generators in order
func (c *Chain) Providers() []string {
	names := make([]string, len(c.generators))
	for i, g := range c.generators {
		names[i] = g.Name()
	}
	return names
}

func (c *Chain) Name() string { return "chain" }

// Generate returns the first successful provider response. When every
// provider fails the joined errors are returned.
func (c *Chain) Generate(ctx context.Context, prompt string, images [][]byte) (string, error) {
	if len(c.generators) == 0 {
		return "", ErrNoProvider
	}

	var errs []error
	for _, g := range c.generators {
		text, err := g.Generate(ctx, prompt, images)
		if err == nil {
			return text, nil
		}
		log.Printf("Describe: %s generation failed: %v", g.Name(), err)
		errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))

		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// ProviderConfig holds provider credentials; empty values leave a provider out
type ProviderConfig struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaBaseURL   string
	Timeout         time.Duration
}

// NewChainFromConfig registers providers in order OpenAI, Anthropic, Ollama
func NewChainFromConfig(cfg ProviderConfig) *Chain {
	var gens []Generator
	if cfg.OpenAIAPIKey != "" {
		gens = append(gens, NewOpenAI(cfg.OpenAIAPIKey, cfg.Timeout))
	}
	if cfg.AnthropicAPIKey != "" {
		gens = append(gens, NewAnthropic(cfg.AnthropicAPIKey, cfg.Timeout))
	}
	if cfg.OllamaBaseURL != "" {
		gens = append(gens, NewOllama(cfg.OllamaBaseURL, cfg.Timeout))
	}
	return NewChain(gens...)
}

// APIError is a non-2xx response from a provider
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// postJSON sends payload and decodes a 2xx response into out
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(data)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: snippet}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", provider, err)
	}
	return nil
}

func limitImages(images [][]byte) [][]byte {
	if len(images) > MaxImages {
		return images[:MaxImages]
	}
	return images
}

func defaultTimeout(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
