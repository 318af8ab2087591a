package builders

import (
	"fmt"

	"github.com/aatumaykin/leadbot/internal/config"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/notify"
)

type NotifyBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewNotifyBuilder(cfg *config.Config, log *logger.Logger) *NotifyBuilder {
	return &NotifyBuilder{
		config: cfg,
		logger: log,
	}
}

// Build always logs alerts and adds Telegram when enabled.
func (b *NotifyBuilder) Build() (notify.Notifier, error) {
	out := notify.Multi{notify.NewLogNotifier(b.logger)}
	if !b.config.Notify.TelegramEnabled {
		return out, nil
	}

	tg, err := notify.NewTelegram(b.config.Notify.TelegramToken, b.config.Notify.TelegramChatIDs, b.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram notifier: %w", err)
	}
	b.logger.Info("Telegram alerts enabled",
		logger.Field{Key: "chats", Value: len(b.config.Notify.TelegramChatIDs)})
	return append(out, tg), nil
}
