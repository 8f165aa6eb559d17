package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const systemPrompt = "You are a helpful assistant that enhances todo items. " +
	"Provide a clear, actionable description (50-100 words) and 3-5 specific steps. " +
	"Respond in JSON format with keys: enhancedDescription (string) and steps " +
	"(array of {step: number, description: string})."

// Config holds the enhancement service configuration.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint root.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the endpoint. Resolved from the keyring or
	// environment when empty in the config file.
	APIKey string `yaml:"api_key"`

	// Model is the chat model used for enhancement.
	Model string `yaml:"model"`

	// Timeout bounds a single enhancement call.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

// OpenAIClient implements Enhancer against an OpenAI-compatible chat
// completions endpoint.
type OpenAIClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates an enhancement client from config.
func NewOpenAIClient(cfg Config, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIClient{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     120 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: logger.With("component", "enhance"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Enhance calls the chat completions endpoint and parses the JSON payload the
// model was instructed to return. Upstream failures are returned to the
// caller; use Fallback for the degraded path.
func (c *OpenAIClient) Enhance(ctx context.Context, title, description string) (Enhancement, error) {
	if c.cfg.APIKey == "" {
		return Enhancement{}, fmt.Errorf("enhance: no API key configured")
	}

	prompt := fmt.Sprintf("Enhance this task: %q", title)
	if description != "" {
		prompt += fmt.Sprintf(". Additional context: %s", description)
	}
	prompt += ". Make it actionable and specific."

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		return Enhancement{}, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Enhancement{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Enhancement{}, fmt.Errorf("enhancement request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Enhancement{}, fmt.Errorf("enhancement API status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Enhancement{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Enhancement{}, fmt.Errorf("enhancement API returned no choices")
	}

	content := extractJSON(parsed.Choices[0].Message.Content)
	var result Enhancement
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return Enhancement{}, fmt.Errorf("parse enhancement payload: %w", err)
	}
	if result.Description == "" {
		return Enhancement{}, fmt.Errorf("enhancement payload missing description")
	}

	c.logger.Debug("enhancement successful", "title", title, "steps", len(result.Steps))
	return result, nil
}

// extractJSON strips markdown code fences some models wrap around JSON output.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}
	return content
}
