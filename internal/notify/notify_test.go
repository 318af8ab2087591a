package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/leadbot/internal/logger"
)

type fakeBot struct {
	mu     sync.Mutex
	sent   []*telego.SendMessageParams
	failOn int64
}

func (b *fakeBot) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.ChatID.ID == b.failOn {
		return nil, errors.New("chat not found")
	}
	b.sent = append(b.sent, p)
	return &telego.Message{MessageID: len(b.sent)}, nil
}

type countingNotifier struct {
	n   int
	err error
}

func (c *countingNotifier) Notify(context.Context, Alert) error {
	c.n++
	return c.err
}

func testAlert() Alert {
	return Alert{
		Kind:     "high_error_rate",
		Severity: SeverityCritical,
		Message:  "error rate 42% > 10%",
		At:       time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC),
		Fields:   map[string]string{"window": "50", "rate": "42.0"},
	}
}

func TestTelegram_SendsToEveryChat(t *testing.T) {
	bot := &fakeBot{}
	n := NewTelegramWithBot(bot, []int64{100, 200}, logger.Discard())

	require.NoError(t, n.Notify(context.Background(), testAlert()))
	require.Len(t, bot.sent, 2)
	assert.Equal(t, int64(100), bot.sent[0].ChatID.ID)
	assert.Equal(t, telego.ModeHTML, bot.sent[0].ParseMode)
	assert.Contains(t, bot.sent[0].Text, "high_error_rate")
}

func TestTelegram_PartialFailure(t *testing.T) {
	bot := &fakeBot{failOn: 200}
	n := NewTelegramWithBot(bot, []int64{100, 200, 300}, logger.Discard())

	err := n.Notify(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 200")
	assert.Len(t, bot.sent, 2)
}

func TestNewTelegram_RejectsBadToken(t *testing.T) {
	_, err := NewTelegram("not-a-token", []int64{1}, logger.Discard())
	assert.Error(t, err)
}

func TestFormatHTML(t *testing.T) {
	a := testAlert()
	a.Message = "rate <b>high</b> & rising"
	text := FormatHTML(a)

	assert.Contains(t, text, "🚨 <b>leadbot: high_error_rate</b>")
	assert.Contains(t, text, "rate &lt;b&gt;high&lt;/b&gt; &amp; rising")
	// Поля выводятся в отсортированном порядке
	assert.Less(t, strings.Index(text, "rate</code>"), strings.Index(text, "window</code>"))
	assert.Contains(t, text, "2026-10-14T15:00:00Z")
}

func TestMulti(t *testing.T) {
	a, b := &countingNotifier{}, &countingNotifier{err: errors.New("down")}
	m := Multi{a, NewLogNotifier(logger.Discard()), b}

	err := m.Notify(context.Background(), testAlert())
	assert.EqualError(t, err, "down")
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}
