package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/leadbot/internal/logger"
)

// LogSender is the dry-run transport: it validates and renders like the
// SMTP sender, then logs instead of delivering.
type LogSender struct {
	validator *AddressValidator
	log       *logger.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogSender creates a dry-run sender.
func NewLogSender(blocked []string, log *logger.Logger) *LogSender {
	return &LogSender{validator: NewAddressValidator(blocked), log: log}
}

// Send records msg.
func (s *LogSender) Send(ctx context.Context, msg Message) Result {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result{Outcome: Classify(err), Err: err}
	}
	if err := s.validator.Validate(msg.To); err != nil {
		return Result{Outcome: Classify(err), Err: err, Duration: time.Since(start)}
	}
	body, err := Render(msg)
	if err != nil {
		return Result{Outcome: Classify(err), Err: err, Duration: time.Since(start)}
	}

	id := uuid.NewString() + "@dry-run"
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	s.log.InfoCtx(ctx, "Dry run: message not sent",
		logger.Field{Key: "lead_id", Value: msg.LeadID},
		logger.Field{Key: "to", Value: msg.To},
		logger.Field{Key: "subject", Value: msg.Subject},
		logger.Field{Key: "text_length", Value: len(body.Text)},
		logger.Field{Key: "html", Value: body.HTML != ""})
	return Result{Outcome: Classify(nil), MessageID: id, Duration: time.Since(start)}
}

// Sent returns a copy of the recorded messages.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
