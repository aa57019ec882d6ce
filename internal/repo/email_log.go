package repo

import (
	"context"
	"fmt"

	"trekreg/internal/model"
)

type EmailLogRepository interface {
	LogEmail(ctx context.Context, entry model.EmailLog) error
}

func (r *repository) LogEmail(ctx context.Context, entry model.EmailLog) error {
	query := `
		INSERT INTO email_logs (recipient, subject, content, sent_at, status)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.ExecContext(ctx, query,
		entry.Recipient, entry.Subject, entry.Content, entry.SentAt, entry.Status,
	); err != nil {
		return fmt.Errorf("failed to insert email log: %w", err)
	}
	return nil
}
