package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aatumaykin/leadbot/internal/logger"
)

const (
	// DefaultBaseURL points at a local Ollama server's OpenAI-compatible API.
	DefaultBaseURL = "http://localhost:11434/v1"
	// DefaultModel is used when neither config nor request names one.
	DefaultModel = "llama3.1"
	// DefaultRequestTimeout bounds one HTTP round trip.
	DefaultRequestTimeout = 60 * time.Second
)

// OpenAIConfig contains configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL           string        `json:"base_url"`
	APIKey            string        `json:"api_key"`
	Model             string        `json:"model"`
	Timeout           time.Duration `json:"timeout"`
	RequestsPerMinute int           `json:"requests_per_minute"` // 0 disables local throttling
}

// OpenAIProvider talks to /chat/completions of any OpenAI-compatible server
// (OpenAI, Ollama, vLLM, LiteLLM).
type OpenAIProvider struct {
	client  *http.Client
	config  OpenAIConfig
	apiURL  string
	limiter *TokenBucket
	logger  *logger.Logger
}

type openAIRequest struct {
	Messages       []openAIMessage       `json:"messages"`
	Model          string                `json:"model"`
	Temperature    float64               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Choices []openAIChoice  `json:"choices"`
	Usage   Usage           `json:"usage"`
	Error   *openAIAPIError `json:"error,omitempty"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

type openAIAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// HTTPError is a non-2xx answer. It implements retry.StatusCoder.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: status=%d, body=%s", e.Status, e.Body)
}

// StatusCode returns the HTTP status.
func (e *HTTPError) StatusCode() int { return e.Status }

// NewOpenAIProvider creates a provider with defaults applied.
func NewOpenAIProvider(cfg OpenAIConfig, log *logger.Logger) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	p := &OpenAIProvider{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		apiURL: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		logger: log,
	}
	if cfg.RequestsPerMinute > 0 {
		p.limiter = NewTokenBucket(cfg.RequestsPerMinute, time.Minute/time.Duration(cfg.RequestsPerMinute), 1)
	}
	return p
}

// GetDefaultModel returns the configured model.
func (p *OpenAIProvider) GetDefaultModel() string {
	return p.config.Model
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if req.Model == "" {
		req.Model = p.config.Model
	}

	p.logger.DebugCtx(ctx, "Sending chat request",
		logger.Field{Key: "model", Value: req.Model},
		logger.Field{Key: "messages_count", Value: len(req.Messages)})

	body, err := json.Marshal(p.mapChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	return mapChatResponse(resp), nil
}

func (p *OpenAIProvider) doRequest(ctx context.Context, reqBody []byte) (*openAIResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		p.logger.WarnCtx(ctx, "LLM endpoint returned error status",
			logger.Field{Key: "status_code", Value: httpResp.StatusCode})
		return nil, &HTTPError{Status: httpResp.StatusCode, Body: string(respBody)}
	}

	var out openAIResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("API error: %s: %s", out.Error.Type, out.Error.Message)
	}
	return &out, nil
}

func (p *OpenAIProvider) mapChatRequest(req ChatRequest) openAIRequest {
	messages := make([]openAIMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openAIMessage{Role: string(msg.Role), Content: msg.Content}
	}
	out := openAIRequest{
		Messages:    messages,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		out.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	return out
}

func mapChatResponse(resp *openAIResponse) *ChatResponse {
	if len(resp.Choices) == 0 {
		return &ChatResponse{FinishReason: FinishReasonError, Usage: resp.Usage, Model: resp.Model}
	}
	choice := resp.Choices[0]
	return &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: FinishReason(choice.FinishReason),
		Usage:        resp.Usage,
		Model:        resp.Model,
	}
}
