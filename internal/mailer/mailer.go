package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrNotConfigured = errors.New("email provider is not configured")

type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Body is the content recorded in the email log.
func (m Message) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.HTML
}

type Receipt struct {
	MessageID string    `json:"id"`
	Accepted  []string  `json:"accepted"`
	SentAt    time.Time `json:"sent_at"`
}

type Provider interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

type SMTPProvider struct {
	cfg SMTPConfig
	log *zerolog.Logger
}

func NewSMTPProvider(cfg SMTPConfig, log *zerolog.Logger) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, log: log}
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) (Receipt, error) {
	if !p.cfg.Configured() {
		return Receipt{}, ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return Receipt{}, fmt.Errorf("send email: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), p.cfg.Host)
	raw, err := buildMIME(p.cfg.From, id, msg)
	if err != nil {
		return Receipt{}, fmt.Errorf("build email: %w", err)
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	if err := smtp.SendMail(addr, auth, p.cfg.From, msg.To, raw); err != nil {
		p.log.Warn().Err(err).Strs("to", msg.To).Msg("smtp send failed")
		return Receipt{}, fmt.Errorf("send email: %w", err)
	}

	p.log.Info().Strs("to", msg.To).Str("subject", msg.Subject).Msg("📧 email sent")
	return Receipt{MessageID: id, Accepted: msg.To, SentAt: time.Now()}, nil
}

func buildMIME(from, messageID string, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	buf.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTML == "" {
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(msg.Text)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())

	parts := []struct{ ctype, body string }{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
