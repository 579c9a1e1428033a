package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/askdb/askdb/config"
	"github.com/askdb/askdb/internal/telemetry"
)

// OpenAIProvider implements Provider against the OpenAI chat-completions API
// (or any compatible endpoint via base_url).
type OpenAIProvider struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	costIn      float64
	costOut     float64
	telemetry   *telemetry.Telemetry
	httpClient  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIProvider creates a provider from config. Telemetry may be nil.
func NewOpenAIProvider(cfg config.LLMConfig, tel *telemetry.Telemetry) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		costIn:      cfg.CostPer1K,
		costOut:     cfg.CostPer1KOut,
		telemetry:   tel,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, system, user string) (string, error) {
	return p.send(ctx, system, user, nil)
}

// CompleteJSON implements Provider. The request asks for a JSON object and
// the response is decoded tolerantly.
func (p *OpenAIProvider) CompleteJSON(ctx context.Context, system, user string, out any) error {
	text, err := p.send(ctx, system, user, map[string]any{"type": "json_object"})
	if err != nil {
		return err
	}
	return decodeModelJSON(text, out)
}

func (p *OpenAIProvider) send(ctx context.Context, system, user string, responseFormat map[string]any) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	body, err := json.Marshal(chatRequest{
		Model:          p.model,
		Messages:       messages,
		Temperature:    p.temperature,
		MaxTokens:      p.maxTokens,
		ResponseFormat: responseFormat,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if chat.Error != nil {
			return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, chat.Error.Message)
		}
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	if p.telemetry != nil {
		cost := float64(chat.Usage.PromptTokens)/1000*p.costIn +
			float64(chat.Usage.CompletionTokens)/1000*p.costOut
		p.telemetry.RecordLLMUsage(chat.Usage.PromptTokens, chat.Usage.CompletionTokens, cost)
	}
	return chat.Choices[0].Message.Content, nil
}
