package mailer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trekreg/internal/model"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type EmailLogger interface {
	LogEmail(ctx context.Context, entry model.EmailLog) error
}

// Sender dispatches through a provider and records every attempt in the
// email log. Log writes are best effort: a failed write never fails the send.
type Sender struct {
	provider Provider
	logs     EmailLogger
	log      *zerolog.Logger
}

func NewSender(provider Provider, logs EmailLogger, log *zerolog.Logger) *Sender {
	return &Sender{provider: provider, logs: logs, log: log}
}

func (s *Sender) Send(ctx context.Context, msg Message) (Receipt, error) {
	s.log.Info().Strs("to", msg.To).Str("subject", msg.Subject).Msg("sending email")

	receipt, err := s.provider.Send(ctx, msg)
	status := StatusSent
	if err != nil {
		status = StatusFailed
	}
	s.record(ctx, msg, status)

	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

func (s *Sender) record(ctx context.Context, msg Message, status string) {
	if s.logs == nil {
		return
	}
	now := time.Now()
	for _, to := range msg.To {
		entry := model.EmailLog{
			Recipient: to,
			Subject:   msg.Subject,
			Content:   msg.Body(),
			SentAt:    now,
			Status:    status,
		}
		if err := s.logs.LogEmail(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("email", to).Msg("failed to record email log entry")
		}
	}
}
