package builders

import (
	"fmt"

	"github.com/aatumaykin/leadbot/internal/config"
	"github.com/aatumaykin/leadbot/internal/llm"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/oracle"
	"github.com/aatumaykin/leadbot/internal/retry"
)

type OracleBuilder struct {
	config *config.Config
	logger *logger.Logger
	// provider overrides the OpenAI-compatible client (tests).
	provider llm.Provider
}

func NewOracleBuilder(cfg *config.Config, log *logger.Logger) *OracleBuilder {
	return &OracleBuilder{
		config: cfg,
		logger: log,
	}
}

// WithProvider replaces the LLM provider used by the "llm" backend.
func (b *OracleBuilder) WithProvider(p llm.Provider) *OracleBuilder {
	b.provider = p
	return b
}

func (b *OracleBuilder) Build() (oracle.Oracle, error) {
	switch b.config.Oracle.Backend {
	case "static":
		o, err := oracle.NewStaticOracle(oracle.StaticConfig{
			Subject:         b.config.Oracle.Subject,
			FollowUpSubject: b.config.Oracle.FollowUpSubject,
			Body:            b.config.Oracle.Body,
			FollowUpBody:    b.config.Oracle.FollowUpBody,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to parse oracle templates: %w", err)
		}
		b.logger.Info("Oracle initialized", logger.Field{Key: "backend", Value: "static"})
		return o, nil

	case "llm":
		provider := b.provider
		if provider == nil {
			provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
				BaseURL:           b.config.LLM.BaseURL,
				APIKey:            b.config.LLM.APIKey,
				Model:             b.config.LLM.Model,
				Timeout:           b.config.LLM.Timeout,
				RequestsPerMinute: b.config.LLM.RequestsPerMinute,
			}, b.logger)
		}
		o := oracle.NewLLMOracle(provider, oracle.LLMConfig{
			SystemPrompt:  b.config.Oracle.SystemPrompt,
			Model:         b.config.LLM.Model,
			Temperature:   b.config.LLM.Temperature,
			MaxTokens:     b.config.LLM.MaxTokens,
			SenderName:    b.config.Oracle.SenderName,
			SenderCompany: b.config.Oracle.SenderCompany,
			Retry:         retry.Config{MaxAttempts: b.config.LLM.RetryAttempts, Jitter: true},
		}, b.logger)
		b.logger.Info("Oracle initialized",
			logger.Field{Key: "backend", Value: "llm"},
			logger.Field{Key: "model", Value: b.config.LLM.Model})
		return o, nil

	default:
		return nil, fmt.Errorf("unsupported oracle backend: %s", b.config.Oracle.Backend)
	}
}
