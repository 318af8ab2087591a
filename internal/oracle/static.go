package oracle

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aatumaykin/leadbot/internal/model"
)

// Templates used when no model is configured.
const (
	DefaultSubject         = "A quick question for {{.Company}}"
	DefaultFollowUpSubject = "Follow-up: A quick question for {{.Company}}"
	DefaultBody            = `Hi {{.FirstName}},

I'm reaching out because teams in {{.Industry}} often ask us about this.
Would a short call next week be useful?

Best regards`
	DefaultFollowUpBody = `Hi {{.FirstName}},

Just following up on my previous note (#{{.FollowUpNumber}}). Happy to share details if it is relevant for {{.Company}}.

Best regards`
)

// StaticConfig holds text/template sources; empty fields use the defaults.
type StaticConfig struct {
	Subject         string
	FollowUpSubject string
	Body            string
	FollowUpBody    string
}

// StaticOracle renders fixed templates.
type StaticOracle struct {
	subject, followUpSubject *template.Template
	body, followUpBody       *template.Template
}

type templateData struct {
	FirstName      string
	LastName       string
	FullName       string
	Company        string
	Industry       string
	FollowUpNumber int
}

// NewStaticOracle parses the templates.
func NewStaticOracle(cfg StaticConfig) (*StaticOracle, error) {
	parse := func(name, src, def string) (*template.Template, error) {
		if strings.TrimSpace(src) == "" {
			src = def
		}
		t, err := template.New(name).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		return t, nil
	}

	var (
		o   = &StaticOracle{}
		err error
	)
	if o.subject, err = parse("subject", cfg.Subject, DefaultSubject); err != nil {
		return nil, err
	}
	if o.followUpSubject, err = parse("followup_subject", cfg.FollowUpSubject, DefaultFollowUpSubject); err != nil {
		return nil, err
	}
	if o.body, err = parse("body", cfg.Body, DefaultBody); err != nil {
		return nil, err
	}
	if o.followUpBody, err = parse("followup_body", cfg.FollowUpBody, DefaultFollowUpBody); err != nil {
		return nil, err
	}
	return o, nil
}

// Recommend renders the subject and body for the request.
func (o *StaticOracle) Recommend(ctx context.Context, req Request) (Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return Recommendation{}, err
	}

	// Caser is stateful, one per call.
	caser := cases.Title(language.Und)
	first := caser.String(strings.ToLower(strings.TrimSpace(req.Lead.FirstName)))
	if first == "" {
		first = "there"
	}
	company := strings.TrimSpace(req.Lead.Company)
	if company == "" {
		company = "your team"
	}
	industry := strings.TrimSpace(req.Lead.Industry)
	if industry == "" {
		industry = "your industry"
	}
	data := templateData{
		FirstName:      first,
		LastName:       caser.String(strings.ToLower(req.Lead.LastName)),
		FullName:       req.Lead.FullName(),
		Company:        company,
		Industry:       industry,
		FollowUpNumber: req.FollowUpNumber,
	}

	subjectT, bodyT, strategy := o.subject, o.body, "static_initial"
	if req.Action == model.ActionSendFollowUp {
		subjectT, bodyT, strategy = o.followUpSubject, o.followUpBody, "static_followup"
	}

	subject, err := render(subjectT, data)
	if err != nil {
		return Recommendation{}, err
	}
	body, err := render(bodyT, data)
	if err != nil {
		return Recommendation{}, err
	}

	rec := Recommendation{Subject: subject, Body: body, Format: FormatText, Strategy: strategy}
	if err := rec.Validate(); err != nil {
		return Recommendation{}, err
	}
	return rec, nil
}

func render(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
