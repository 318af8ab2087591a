package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/aatumaykin/leadbot/internal/logger"
)

// BotAPI is the part of telego.Bot used for alerts.
type BotAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Telegram sends alerts to a fixed set of chats.
type Telegram struct {
	bot     BotAPI
	chatIDs []int64
	timeout time.Duration
	log     *logger.Logger
}

// NewTelegram creates a bot client from a token.
func NewTelegram(token string, chatIDs []int64, log *logger.Logger) (*Telegram, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramWithBot(bot, chatIDs, log), nil
}

// NewTelegramWithBot wraps an existing bot client.
func NewTelegramWithBot(bot BotAPI, chatIDs []int64, log *logger.Logger) *Telegram {
	return &Telegram{
		bot:     bot,
		chatIDs: append([]int64(nil), chatIDs...),
		timeout: 10 * time.Second,
		log:     log,
	}
}

func (t *Telegram) Notify(ctx context.Context, a Alert) error {
	text := FormatHTML(a)
	var errs []error
	for _, chatID := range t.chatIDs {
		sendCtx, cancel := context.WithTimeout(ctx, t.timeout)
		_, err := t.bot.SendMessage(sendCtx, &telego.SendMessageParams{
			ChatID:    telego.ChatID{ID: chatID},
			Text:      text,
			ParseMode: telego.ModeHTML,
		})
		cancel()
		if err != nil {
			t.log.ErrorCtx(ctx, "failed to send telegram alert", err,
				logger.Field{Key: "chat_id", Value: chatID},
				logger.Field{Key: "alert", Value: a.Kind})
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// FormatHTML renders an alert for Telegram's HTML parse mode.
func FormatHTML(a Alert) string {
	icon := "⚠️"
	if a.Severity == SeverityCritical {
		icon = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>leadbot: %s</b>\n%s", icon, html.EscapeString(a.Kind), html.EscapeString(a.Message))
	for _, k := range sortedKeys(a.Fields) {
		fmt.Fprintf(&b, "\n<code>%s</code>: %s", html.EscapeString(k), html.EscapeString(a.Fields[k]))
	}
	if !a.At.IsZero() {
		fmt.Fprintf(&b, "\n<i>%s</i>", a.At.UTC().Format(time.RFC3339))
	}
	return b.String()
}
