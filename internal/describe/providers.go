package describe

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOpenAIURL    = "https://api.openai.com/v1/chat/completions"
	DefaultAnthropicURL = "https://api.anthropic.com/v1/messages"

	openAIModel    = "gpt-4o"
	anthropicModel = "claude-3-5-sonnet-20241022"
	ollamaModel    = "llama3.2"
	ollamaVision   = "llama3.2-vision"

	maxTokens = 500
)

var errEmptyResponse = errors.New("empty response")

// OpenAI generates with the chat completions API
type OpenAI struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewOpenAI creates an OpenAI generator
func NewOpenAI(apiKey string, timeout time.Duration) *OpenAI {
	return &OpenAI{
		apiKey:   apiKey,
		endpoint: DefaultOpenAIURL,
		client:   &http.Client{Timeout: defaultTimeout(timeout, 30*time.Second)},
	}
}

// WithEndpoint points the generator at another URL
func (o *OpenAI) WithEndpoint(url string) *OpenAI {
	o.endpoint = url
	return o
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Generate(ctx context.Context, prompt string, images [][]byte) (string, error) {
	content := []map[string]interface{}{{"type": "text", "text": prompt}}
	for _, img := range limitImages(images) {
		content = append(content, map[string]interface{}{
			"type": "image_url",
			"image_url": map[string]string{
				"url": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
			},
		})
	}

	payload := map[string]interface{}{
		"model":      openAIModel,
		"max_tokens": maxTokens,
		"messages":   []map[string]interface{}{{"role": "user", "content": content}},
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	if err := postJSON(ctx, o.client, o.Name(), o.endpoint, headers, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Anthropic generates with the messages API
type Anthropic struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewAnthropic creates an Anthropic generator
func NewAnthropic(apiKey string, timeout time.Duration) *Anthropic {
	return &Anthropic{
		apiKey:   apiKey,
		endpoint: DefaultAnthropicURL,
		client:   &http.Client{Timeout: defaultTimeout(timeout, 30*time.Second)},
	}
}

// WithEndpoint points the generator at another URL
func (a *Anthropic) WithEndpoint(url string) *Anthropic {
	a.endpoint = url
	return a
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Generate(ctx context.Context, prompt string, images [][]byte) (string, error) {
	content := []map[string]interface{}{{"type": "text", "text": prompt}}
	for _, img := range limitImages(images) {
		content = append(content, map[string]interface{}{
			"type": "image",
			"source": map[string]string{
				"type":       "base64",
				"media_type": "image/jpeg",
				"data":       base64.StdEncoding.EncodeToString(img),
			},
		})
	}

	payload := map[string]interface{}{
		"model":      anthropicModel,
		"max_tokens": maxTokens,
		"messages":   []map[string]interface{}{{"role": "user", "content": content}},
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": "2023-06-01",
	}
	if err := postJSON(ctx, a.client, a.Name(), a.endpoint, headers, payload, &resp); err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errEmptyResponse
}

// Ollama generates with a local Ollama server
type Ollama struct {
	baseURL string
	client  *http.Client
}

// NewOllama creates an Ollama generator for baseURL, e.g. http://localhost:11434
func NewOllama(baseURL string, timeout time.Duration) *Ollama {
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout(timeout, 60*time.Second)},
	}
}

func (o *Ollama) Name() string { return "ollama" }

// Generate uses the vision model when images are attached
func (o *Ollama) Generate(ctx context.Context, prompt string, images [][]byte) (string, error) {
	payload := map[string]interface{}{
		"model":  ollamaModel,
		"prompt": prompt,
		"stream": false,
	}
	if imgs := limitImages(images); len(imgs) > 0 {
		encoded := make([]string, len(imgs))
		for i, img := range imgs {
			encoded[i] = base64.StdEncoding.EncodeToString(img)
		}
		payload["model"] = ollamaVision
		payload["images"] = encoded
	}

	var resp struct {
		Response string `json:"response"`
	}
	if err := postJSON(ctx, o.client, o.Name(), o.baseURL+"/api/generate", nil, payload, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}
