package builders

import (
	"fmt"

	"github.com/aatumaykin/leadbot/internal/config"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/transport"
)

type TransportBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewTransportBuilder(cfg *config.Config, log *logger.Logger) *TransportBuilder {
	return &TransportBuilder{
		config: cfg,
		logger: log,
	}
}

func (b *TransportBuilder) Build() (transport.Sender, error) {
	blocked := b.config.Transport.BlockedDomains

	switch b.config.Transport.Backend {
	case "log":
		b.logger.Warn("Transport is in dry-run mode, messages are logged and not delivered")
		return transport.NewLogSender(blocked, b.logger), nil

	case "smtp":
		s, err := transport.NewSMTPSender(transport.SMTPConfig{
			Host:      b.config.SMTP.Host,
			Port:      b.config.SMTP.Port,
			Username:  b.config.SMTP.Username,
			Password:  b.config.SMTP.Password,
			TLSPolicy: b.config.SMTP.TLSPolicy,
			SSL:       b.config.SMTP.SSL,
			From:      b.config.SMTP.From,
			FromName:  b.config.SMTP.FromName,
			ReplyTo:   b.config.SMTP.ReplyTo,
			Timeout:   b.config.SMTP.Timeout,
			Blocked:   blocked,
		}, b.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create smtp sender: %w", err)
		}
		b.logger.Info("SMTP transport initialized",
			logger.Field{Key: "host", Value: b.config.SMTP.Host},
			logger.Field{Key: "port", Value: b.config.SMTP.Port})
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported transport backend: %s", b.config.Transport.Backend)
	}
}
