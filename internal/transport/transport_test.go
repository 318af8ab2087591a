package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.Outcome
	}{
		{"nil", nil, model.OutcomeSent},
		{"invalid address", fmt.Errorf("x: %w", ErrInvalidAddress), model.OutcomePermanentFailure},
		{"deadline", context.DeadlineExceeded, model.OutcomeTransientFailure},
		{"rcpt rejected", &mail.SendError{Reason: mail.ErrSMTPRcptTo}, model.OutcomePermanentFailure},
		{"data failed", &mail.SendError{Reason: mail.ErrSMTPData}, model.OutcomeTransientFailure},
		{"mailbox unavailable", &textproto.Error{Code: 550, Msg: "no such user"}, model.OutcomePermanentFailure},
		{"greylisted", &textproto.Error{Code: 451, Msg: "try later"}, model.OutcomeTransientFailure},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, model.OutcomeTransientFailure},
		{"unknown", errors.New("boom"), model.OutcomeTransientFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestAddressValidator(t *testing.T) {
	v := NewAddressValidator(nil)

	valid := []string{"ana@acme.io", "first.last+tag@sub.acme.co.uk"}
	for _, a := range valid {
		assert.NoError(t, v.Validate(a), a)
	}

	invalid := []string{
		"", "localhost", "no-at-sign", "ana@example.com", "bo@mail.test.com",
		"x@localhost", "a@b", "a@acme..io", "a b@acme.io",
	}
	for _, a := range invalid {
		err := v.Validate(a)
		require.Error(t, err, a)
		assert.ErrorIs(t, err, ErrInvalidAddress, a)
	}

	custom := NewAddressValidator([]string{"competitor.io"})
	assert.Error(t, custom.Validate("a@competitor.io"))
	assert.NoError(t, custom.Validate("a@example.com"))
}

func TestCleanHTML(t *testing.T) {
	in := `<html><head><style>p{}</style></head><body>
<p onclick="steal()">Hello <b>Ana</b></p>
<script>alert(1)</script>
<a href="javascript:alert(1)" onmouseover="x()">bad</a>
<a href="https://acme.io">good</a>
<iframe src="https://evil"></iframe>
</body></html>`

	out, err := CleanHTML(in)
	require.NoError(t, err)
	assert.Contains(t, out, "<b>Ana</b>")
	assert.Contains(t, out, `href="https://acme.io"`)
	for _, bad := range []string{"<script", "alert(1)", "onclick", "onmouseover", "<iframe", "<style"} {
		assert.NotContains(t, out, bad)
	}
}

func TestPlainText(t *testing.T) {
	text, err := PlainText(`<h1>Hi Ana</h1><p>Read <a href="https://acme.io">this</a>.</p><img src="x.png">`)
	require.NoError(t, err)
	assert.Contains(t, text, "# Hi Ana")
	assert.Contains(t, text, "[this](https://acme.io)")
	assert.NotContains(t, text, "x.png")
}

func TestRender(t *testing.T) {
	b, err := Render(Message{TextBody: "plain"})
	require.NoError(t, err)
	assert.Equal(t, Body{Text: "plain"}, b)

	b, err = Render(Message{HTMLBody: "<p>Hi <script>x</script></p>"})
	require.NoError(t, err)
	assert.Equal(t, "<p>Hi </p>", b.HTML)
	assert.Equal(t, "Hi", b.Text)
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(nil, logger.Discard())

	res := s.Send(context.Background(), Message{LeadID: 1, To: "ana@acme.io", Subject: "s", TextBody: "b"})
	require.NoError(t, res.Err)
	assert.Equal(t, model.OutcomeSent, res.Outcome)
	assert.NotEmpty(t, res.MessageID)

	res = s.Send(context.Background(), Message{LeadID: 2, To: "x@example.com"})
	assert.Equal(t, model.OutcomePermanentFailure, res.Outcome)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = s.Send(ctx, Message{LeadID: 3, To: "ana@acme.io"})
	assert.Equal(t, model.OutcomeTransientFailure, res.Outcome)

	require.Len(t, s.Sent(), 1)
	assert.Equal(t, int64(1), s.Sent()[0].LeadID)
}

func TestParseTLSPolicy(t *testing.T) {
	p, err := ParseTLSPolicy("")
	require.NoError(t, err)
	assert.Equal(t, mail.TLSMandatory, p)

	p, err = ParseTLSPolicy("None")
	require.NoError(t, err)
	assert.Equal(t, mail.NoTLS, p)

	_, err = ParseTLSPolicy("sometimes")
	require.Error(t, err)
}

func TestNewSMTPSender_Validation(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{From: "a@acme.io"}, logger.Discard())
	require.Error(t, err)
	_, err = NewSMTPSender(SMTPConfig{Host: "smtp.acme.io"}, logger.Discard())
	require.Error(t, err)
	_, err = NewSMTPSender(SMTPConfig{Host: "smtp.acme.io", From: "a@acme.io", TLSPolicy: "bogus"}, logger.Discard())
	require.Error(t, err)
}

// fakeSMTP is a minimal plaintext SMTP server. RCPT TO for addresses in
// reject gets rejectCode.
type fakeSMTP struct {
	ln         net.Listener
	reject     map[string]bool
	rejectCode int

	mu   sync.Mutex
	data []string
}

func newFakeSMTP(t *testing.T, rejectCode int, reject ...string) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeSMTP{ln: ln, reject: map[string]bool{}, rejectCode: rejectCode}
	for _, r := range reject {
		f.reject[r] = true
	}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeSMTP) port() int { return f.ln.Addr().(*net.TCPAddr).Port }

func (f *fakeSMTP) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(s string) { _, _ = fmt.Fprintf(conn, "%s\r\n", s) }

	reply("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 fake")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			addr := strings.Trim(strings.TrimPrefix(cmd, "RCPT TO:"), "<> ")
			if f.reject[strings.ToLower(addr)] {
				reply(fmt.Sprintf("%d 5.1.1 mailbox unavailable", f.rejectCode))
				continue
			}
			reply("250 ok")
		case cmd == "DATA":
			reply("354 go ahead")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			f.mu.Lock()
			f.data = append(f.data, body.String())
			f.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 ok")
		}
	}
}

func (f *fakeSMTP) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.data...)
}

func newTestSender(t *testing.T, port int) *SMTPSender {
	t.Helper()
	s, err := NewSMTPSender(SMTPConfig{
		Host:      "127.0.0.1",
		Port:      port,
		TLSPolicy: "none",
		From:      "bot@leadbot.io",
		FromName:  "Lead Bot",
		Timeout:   5 * time.Second,
	}, logger.Discard())
	require.NoError(t, err)
	return s
}

func TestSMTPSender_Delivers(t *testing.T) {
	srv := newFakeSMTP(t, 550)
	s := newTestSender(t, srv.port())

	res := s.Send(context.Background(), Message{
		LeadID:   1,
		To:       "ana@acme.io",
		ToName:   "Ana",
		Subject:  "Hello",
		HTMLBody: "<p>Hi <b>Ana</b><script>x()</script></p>",
	})
	require.NoError(t, res.Err)
	assert.Equal(t, model.OutcomeSent, res.Outcome)
	assert.Contains(t, res.MessageID, "@leadbot.io")

	msgs := srv.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Subject: Hello")
	assert.Contains(t, msgs[0], "text/html")
	assert.Contains(t, msgs[0], "text/plain")
	assert.NotContains(t, msgs[0], "x()")
}

func TestSMTPSender_RecipientRejectedIsPermanent(t *testing.T) {
	srv := newFakeSMTP(t, 550, "gone@acme.io")
	s := newTestSender(t, srv.port())

	res := s.Send(context.Background(), Message{LeadID: 2, To: "gone@acme.io", Subject: "s", TextBody: "b"})
	require.Error(t, res.Err)
	assert.Equal(t, model.OutcomePermanentFailure, res.Outcome)
	assert.Empty(t, srv.messages())
}

func TestSMTPSender_TempRejectIsTransient(t *testing.T) {
	srv := newFakeSMTP(t, 450, "busy@acme.io")
	s := newTestSender(t, srv.port())

	res := s.Send(context.Background(), Message{LeadID: 3, To: "busy@acme.io", Subject: "s", TextBody: "b"})
	require.Error(t, res.Err)
	assert.Equal(t, model.OutcomeTransientFailure, res.Outcome)
}

func TestSMTPSender_BlockedAddressNeverDials(t *testing.T) {
	s := newTestSender(t, 1)

	res := s.Send(context.Background(), Message{LeadID: 4, To: "nobody@example.com", Subject: "s", TextBody: "b"})
	require.ErrorIs(t, res.Err, ErrInvalidAddress)
	assert.Equal(t, model.OutcomePermanentFailure, res.Outcome)
}

func TestSMTPSender_UnreachableIsTransient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	s := newTestSender(t, port)
	res := s.Send(context.Background(), Message{LeadID: 5, To: "ana@acme.io", Subject: "s", TextBody: "b"})
	require.Error(t, res.Err)
	assert.Equal(t, model.OutcomeTransientFailure, res.Outcome)
}
