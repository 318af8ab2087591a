// Package oracle drafts the message for a lead the decision engine has
// already found eligible. LLMOracle asks a chat model; StaticOracle renders
// fixed templates.
package oracle

import (
	"context"
	"errors"

	"github.com/aatumaykin/leadbot/internal/model"
)

// ErrMalformedRecommendation is returned when the oracle output lacks a
// subject or body.
var ErrMalformedRecommendation = errors.New("malformed recommendation")

// Request describes what needs drafting.
type Request struct {
	Lead   model.Lead
	Action model.ActionType
	// FollowUpNumber is 1-based for follow-ups and 0 for the initial email.
	FollowUpNumber int
}

// NewRequest fills FollowUpNumber from the lead.
func NewRequest(lead model.Lead, action model.ActionType) Request {
	r := Request{Lead: lead, Action: action}
	if action == model.ActionSendFollowUp {
		r.FollowUpNumber = lead.FollowUpCount + 1
	}
	return r
}

// Format of the drafted body.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
)

// Recommendation is the drafted message.
type Recommendation struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Format   Format `json:"format,omitempty"`
	Strategy string `json:"strategy,omitempty"`
}

// Validate checks the required fields.
func (r Recommendation) Validate() error {
	if r.Subject == "" || r.Body == "" {
		return ErrMalformedRecommendation
	}
	switch r.Format {
	case "", FormatText, FormatHTML:
		return nil
	default:
		return ErrMalformedRecommendation
	}
}

// Oracle drafts a message for one lead.
type Oracle interface {
	Recommend(ctx context.Context, req Request) (Recommendation, error)
}
