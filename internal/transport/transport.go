// Package transport delivers drafted messages and classifies the result as
// sent, transient_failure or permanent_failure.
package transport

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/aatumaykin/leadbot/internal/model"
)

// ErrInvalidAddress marks recipients rejected before dialing.
var ErrInvalidAddress = errors.New("invalid recipient address")

// Message is one outbound email.
type Message struct {
	LeadID   int64
	To       string
	ToName   string
	Subject  string
	TextBody string
	HTMLBody string
}

// Result is the classified delivery attempt.
type Result struct {
	Outcome   model.Outcome
	MessageID string
	Err       error
	Duration  time.Duration
}

// Sender delivers a message. Implementations never panic on delivery
// failure; they report it in Result.
type Sender interface {
	Send(ctx context.Context, msg Message) Result
}

// Classify maps a delivery error to an outcome.
func Classify(err error) model.Outcome {
	if err == nil {
		return model.OutcomeSent
	}
	if errors.Is(err, ErrInvalidAddress) {
		return model.OutcomePermanentFailure
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.OutcomeTransientFailure
	}

	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		if sendErr.IsTemp() {
			return model.OutcomeTransientFailure
		}
		if sendErr.Reason == mail.ErrSMTPRcptTo {
			return model.OutcomePermanentFailure
		}
		return model.OutcomeTransientFailure
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code >= 550 && protoErr.Code <= 553 {
			return model.OutcomePermanentFailure
		}
		return model.OutcomeTransientFailure
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return model.OutcomeTransientFailure
	}
	return model.OutcomeTransientFailure
}
