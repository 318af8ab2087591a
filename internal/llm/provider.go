// Package llm is the chat-completion client used by the oracle to draft
// outreach messages.
package llm

import (
	"context"
)

// Provider defines the interface for chat-completion backends.
type Provider interface {
	// Chat sends one completion request and returns the model's reply.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// GetDefaultModel returns the model used when the request leaves it empty.
	GetDefaultModel() string
}

// Role represents the role of a message sender in the conversation.
type Role string

const (
	RoleSystem    Role = "system"    // Instructions
	RoleUser      Role = "user"      // Lead context
	RoleAssistant Role = "assistant" // Model output
)

// Message represents a single message in the chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// FinishReason indicates why the model stopped generating tokens.
type FinishReason string

const (
	FinishReasonStop   FinishReason = "stop"
	FinishReasonLength FinishReason = "length"
	FinishReasonError  FinishReason = "error"
)

// Usage tracks token usage information for the request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest represents a request to send to the provider.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`

	// JSONMode asks the backend to constrain output to a JSON object.
	JSONMode bool `json:"json_mode,omitempty"`
}

// ChatResponse represents a response from the provider.
type ChatResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        Usage        `json:"usage"`

	// Model is the model that actually served the request.
	Model string `json:"model"`
}
