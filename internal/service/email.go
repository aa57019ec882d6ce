package service

import (
	"errors"
	"strings"

	"github.com/wb-go/wbf/ginext"

	"trekreg/internal/dto"
	"trekreg/internal/mailer"
)

func (s *service) SendEmail(ctx *ginext.Context) {
	var req dto.SendEmailRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	to := make([]string, 0, len(req.To))
	for _, addr := range req.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		dto.FieldIncorrectError(ctx, "to")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		dto.FieldIncorrectError(ctx, "subject")
		return
	}
	if req.Text == "" && req.HTML == "" {
		dto.FieldIncorrectError(ctx, "text")
		return
	}

	receipt, err := s.mail.Send(ctx.Request.Context(), mailer.Message{
		To:      to,
		Subject: req.Subject,
		Text:    req.Text,
		HTML:    req.HTML,
	})
	if err != nil {
		if errors.Is(err, mailer.ErrNotConfigured) {
			s.log.Error().Msg("send-email called without a configured provider")
			dto.ServerError(ctx, dto.EmailNotConfigured, "Email provider is not configured")
			return
		}
		s.log.Error().Err(err).Strs("to", to).Msg("failed to send email")
		dto.ServerError(ctx, dto.EmailFailed, err.Error())
		return
	}

	dto.SuccessResponse(ctx, dto.SendEmailResponse{
		MessageID: receipt.MessageID,
		Accepted:  receipt.Accepted,
		SentAt:    receipt.SentAt,
	})
}
