package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/aatumaykin/leadbot/internal/logger"
)

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	TLSPolicy string // mandatory | opportunistic | none
	SSL       bool
	From      string
	FromName  string
	ReplyTo   string
	Timeout   time.Duration
	Blocked   []string
}

// SMTPSender delivers through an SMTP relay with go-mail.
type SMTPSender struct {
	cfg       SMTPConfig
	opts      []mail.Option
	validator *AddressValidator
	log       *logger.Logger
}

// ParseTLSPolicy maps the config string to a go-mail policy.
func ParseTLSPolicy(s string) (mail.TLSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none", "notls":
		return mail.NoTLS, nil
	default:
		return mail.TLSMandatory, fmt.Errorf("unknown tls policy %q", s)
	}
}

// NewSMTPSender validates the config and prepares client options.
func NewSMTPSender(cfg SMTPConfig, log *logger.Logger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	policy, err := ParseTLSPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.SSL {
		opts = append(opts, mail.WithSSL())
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}

	return &SMTPSender{
		cfg:       cfg,
		opts:      opts,
		validator: NewAddressValidator(cfg.Blocked),
		log:       log,
	}, nil
}

// Send builds the MIME message and delivers it on a fresh connection.
func (s *SMTPSender) Send(ctx context.Context, msg Message) Result {
	start := time.Now()
	res := s.send(ctx, msg)
	res.Duration = time.Since(start)
	res.Outcome = Classify(res.Err)

	fields := []logger.Field{
		{Key: "lead_id", Value: msg.LeadID},
		{Key: "outcome", Value: res.Outcome},
		{Key: "duration", Value: res.Duration},
	}
	if res.Err != nil {
		s.log.WarnCtx(ctx, "SMTP delivery failed", append(fields, logger.Field{Key: "error", Value: res.Err})...)
	} else {
		s.log.InfoCtx(ctx, "SMTP delivery accepted", append(fields, logger.Field{Key: "message_id", Value: res.MessageID})...)
	}
	return res
}

func (s *SMTPSender) send(ctx context.Context, msg Message) Result {
	if err := s.validator.Validate(msg.To); err != nil {
		return Result{Err: err}
	}

	m, id, err := s.build(msg)
	if err != nil {
		return Result{Err: err}
	}

	client, err := mail.NewClient(s.cfg.Host, s.opts...)
	if err != nil {
		return Result{Err: fmt.Errorf("smtp client: %w", err)}
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return Result{MessageID: id, Err: err}
	}
	return Result{MessageID: id}
}

func (s *SMTPSender) build(msg Message) (*mail.Msg, string, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return nil, "", fmt.Errorf("from %q: %w", s.cfg.From, err)
	}
	if err := m.AddToFormat(msg.ToName, msg.To); err != nil {
		return nil, "", fmt.Errorf("to %q: %v: %w", msg.To, err, ErrInvalidAddress)
	}
	if s.cfg.ReplyTo != "" {
		if err := m.ReplyTo(s.cfg.ReplyTo); err != nil {
			return nil, "", fmt.Errorf("reply-to %q: %w", s.cfg.ReplyTo, err)
		}
	}
	m.Subject(msg.Subject)

	id := uuid.NewString() + "@" + domainOf(s.cfg.From)
	m.SetMessageIDWithValue(id)
	m.SetDate()

	body, err := Render(msg)
	if err != nil {
		return nil, "", err
	}
	m.SetBodyString(mail.TypeTextPlain, body.Text)
	if body.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, body.HTML)
	}
	return m, id, nil
}

// Body is the rendered message content.
type Body struct {
	Text string
	HTML string
}

// Render cleans an HTML body and derives its text alternative.
func Render(msg Message) (Body, error) {
	if strings.TrimSpace(msg.HTMLBody) == "" {
		return Body{Text: msg.TextBody}, nil
	}
	html, err := CleanHTML(msg.HTMLBody)
	if err != nil {
		return Body{}, err
	}
	text := msg.TextBody
	if strings.TrimSpace(text) == "" {
		if text, err = PlainText(html); err != nil {
			return Body{}, err
		}
	}
	return Body{Text: text, HTML: html}, nil
}

func domainOf(addr string) string {
	if at := strings.LastIndexByte(addr, '@'); at >= 0 && at < len(addr)-1 {
		return addr[at+1:]
	}
	return "leadbot.local"
}
