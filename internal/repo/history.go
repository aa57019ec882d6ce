package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"trekreg/internal/model"
)

type HistoryRepository interface {
	AppendHistory(ctx context.Context, entry *model.HistoryEntry) error
	ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	GetHistory(ctx context.Context, id string) (*model.HistoryEntry, error)
	MarkHistoryUndone(ctx context.Context, id string) error
}

const historyColumns = `id, type, snapshot, detail, created_at, undoable, undone_at`

// AppendHistory stores entry and fills in its id and creation time.
func (r *repository) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	query := `
		INSERT INTO action_history (id, type, snapshot, detail, created_at, undoable)
		VALUES ($1, $2, $3, $4, NOW(), $5)
		RETURNING id, created_at`

	err := r.x.QueryRowxContext(ctx, query,
		uuid.NewString(), entry.Type, entry.Snapshot, entry.Detail, entry.Undoable,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (r *repository) ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + `
		FROM action_history
		ORDER BY created_at DESC
		LIMIT $1`

	entries := []model.HistoryEntry{}
	if err := r.x.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}

func (r *repository) GetHistory(ctx context.Context, id string) (*model.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM action_history WHERE id = $1`

	var entry model.HistoryEntry
	if err := r.x.GetContext(ctx, &entry, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHistoryNotFound
		}
		return nil, fmt.Errorf("failed to get history entry %s: %w", id, err)
	}
	return &entry, nil
}

func (r *repository) MarkHistoryUndone(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE action_history SET undone_at = NOW() WHERE id = $1 AND undone_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to mark history entry %s undone: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrHistoryNotFound
	}
	return nil
}
