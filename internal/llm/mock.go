package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMockProvider is returned by MockProvider in error mode.
var ErrMockProvider = errors.New("mock provider error")

// MockMode defines the operation mode of the mock provider.
type MockMode int

const (
	// MockModeFixed returns the first response every time
	MockModeFixed MockMode = iota

	// MockModeFixtures returns pre-defined responses in rotation
	MockModeFixtures

	// MockModeError always returns an error
	MockModeError
)

// MockConfig holds configuration for the mock provider.
type MockConfig struct {
	Mode       MockMode
	Responses  []string
	Delay      time.Duration // Simulated latency, honours ctx
	ErrorAfter int           // Successful calls before returning errors
}

// MockProvider is a Provider for tests and offline runs.
type MockProvider struct {
	mu            sync.Mutex
	cfg           MockConfig
	responseIndex int
	callCount     int
	lastRequest   ChatRequest
}

// NewMockProvider creates a new mock provider.
func NewMockProvider(cfg MockConfig) *MockProvider {
	return &MockProvider{cfg: cfg}
}

// NewFixedProvider always answers with response.
func NewFixedProvider(response string) *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeFixed, Responses: []string{response}})
}

// NewFixturesProvider cycles through responses.
func NewFixturesProvider(responses []string) *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeFixtures, Responses: responses})
}

// NewErrorProvider always fails.
func NewErrorProvider() *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeError})
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	m.lastRequest = req
	cfg := m.cfg
	calls := m.callCount
	m.mu.Unlock()

	if cfg.Delay > 0 {
		timer := time.NewTimer(cfg.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	if cfg.Mode == MockModeError || (cfg.ErrorAfter > 0 && calls > cfg.ErrorAfter) {
		return nil, ErrMockProvider
	}

	var response string
	m.mu.Lock()
	if len(m.cfg.Responses) > 0 {
		switch m.cfg.Mode {
		case MockModeFixtures:
			response = m.cfg.Responses[m.responseIndex]
			m.responseIndex = (m.responseIndex + 1) % len(m.cfg.Responses)
		default:
			response = m.cfg.Responses[0]
		}
	}
	m.mu.Unlock()

	return &ChatResponse{
		Content:      response,
		Model:        req.Model,
		FinishReason: FinishReasonStop,
		Usage:        Usage{CompletionTokens: len(response), TotalTokens: len(response)},
	}, nil
}

// GetDefaultModel implements Provider.
func (m *MockProvider) GetDefaultModel() string {
	return "mock-model"
}

// GetCallCount returns the number of Chat calls made.
func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastRequest returns the most recent request.
func (m *MockProvider) LastRequest() ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// SetResponses replaces the responses and rewinds the rotation.
func (m *MockProvider) SetResponses(responses []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Responses = responses
	m.responseIndex = 0
}
