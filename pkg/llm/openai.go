package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kadirpekel/maestro/pkg/retry"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures an OpenAI-compatible chat-completions provider.
// Any endpoint speaking the same wire format works by overriding BaseURL.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	// ProviderName overrides the reported name, for compatible endpoints
	// registered under their own key.
	ProviderName string

	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIProvider talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIProvider creates a provider from config.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, retry.New(retry.KindConfig, "api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIProvider{cfg: cfg, client: client}, nil
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
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

// Complete performs one non-streaming chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message, cfg RequestConfig) (*Response, error) {
	req := openAIRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, retry.Wrap(retry.KindProvider, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Wrap(retry.KindProvider, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, retry.Wrap(retry.KindConnection, "llm request failed", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, retry.Wrap(retry.KindConnection, "failed to read response", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, p.statusError(httpResp.StatusCode, respBody)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, retry.Wrap(retry.KindProvider, "unparseable response", err)
	}
	if parsed.Error != nil {
		return nil, retry.Newf(retry.KindProvider, "%s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, retry.New(retry.KindProvider, "response has no choices")
	}

	return &Response{
		Content:      parsed.Choices[0].Message.Content,
		FinishReason: parsed.Choices[0].FinishReason,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

// statusError classifies a non-200 reply. Rate limits and server errors are
// retriable; auth failures are not.
func (p *OpenAIProvider) statusError(status int, body []byte) error {
	msg := fmt.Sprintf("status %d", status)
	var parsed openAIResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
		msg = fmt.Sprintf("status %d: %s", status, parsed.Error.Message)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return retry.New(retry.KindAuth, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return retry.New(retry.KindProvider, msg).MarkRetriable(true)
	default:
		return retry.New(retry.KindProvider, msg)
	}
}

// Name identifies the provider.
func (p *OpenAIProvider) Name() string {
	if p.cfg.ProviderName != "" {
		return p.cfg.ProviderName
	}
	return "openai"
}

// Close releases idle connections.
func (p *OpenAIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
