package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "openai/gpt-4o-mini"
	DefaultOpenAIURL       = "https://api.openai.com/v1"
	DefaultOpenAIModel     = "gpt-4o-mini"
)

// ChatClient speaks the OpenAI-compatible chat completions protocol used by
// both OpenAI and OpenRouter.
type ChatClient struct {
	provider    Provider
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewChatClient(cfg Config) *ChatClient {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenRouter
	}
	baseURL, model := cfg.BaseURL, cfg.Model
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
		if provider == ProviderOpenAI {
			baseURL = DefaultOpenAIURL
		}
	}
	if model == "" {
		model = DefaultOpenRouterModel
		if provider == ProviderOpenAI {
			model = DefaultOpenAIModel
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ChatClient{
		provider:    provider,
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: timeout},
	}
}

func (c *ChatClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/chat/completions", c.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	if c.provider == ProviderOpenRouter {
		req.Header.Set("HTTP-Referer", "https://listforge.local")
		req.Header.Set("X-Title", "listforge")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", transportErr(c.provider, 0, err)
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&chatResp)

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && chatResp.Error != nil && chatResp.Error.Message != "" {
			msg = chatResp.Error.Message
		}
		return "", transportErr(c.provider, resp.StatusCode, errors.New(msg))
	}
	if decodeErr != nil {
		return "", transportErr(c.provider, resp.StatusCode, fmt.Errorf("failed to decode response: %w", decodeErr))
	}
	if len(chatResp.Choices) == 0 {
		return "", transportErr(c.provider, resp.StatusCode, errors.New("empty response from API"))
	}

	return chatResp.Choices[0].Message.Content, nil
}
