package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trekreg/internal/model"
)

type SessionRepository interface {
	CreateSession(ctx context.Context, s model.AdminSession) error
	GetSession(ctx context.Context, id string) (*model.AdminSession, error)
	RevokeSession(ctx context.Context, id string) error
	PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

func (r *repository) CreateSession(ctx context.Context, s model.AdminSession) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_sessions (id, issued_at, expires_at) VALUES ($1, $2, $3)`,
		s.ID, s.IssuedAt, s.ExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to create admin session: %w", err)
	}
	return nil
}

func (r *repository) GetSession(ctx context.Context, id string) (*model.AdminSession, error) {
	var s model.AdminSession
	err := r.x.GetContext(ctx, &s,
		`SELECT id, issued_at, expires_at, revoked_at FROM admin_sessions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get admin session: %w", err)
	}
	return &s, nil
}

func (r *repository) RevokeSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE admin_sessions SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke admin session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *repository) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge admin sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged sessions: %w", err)
	}
	return n, nil
}
