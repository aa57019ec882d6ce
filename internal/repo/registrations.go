package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"trekreg/internal/model"
)

type RegistrationRepository interface {
	GetAll(ctx context.Context) ([]model.Registration, error)
	GetByID(ctx context.Context, id string) (*model.Registration, error)
	GetByEmail(ctx context.Context, email string) (*model.Registration, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Registration, error)
	Create(ctx context.Context, form model.RegistrationForm) (*model.Registration, error)
	Update(ctx context.Context, id string, patch model.RegistrationPatch) (*model.Registration, error)
	SetStatus(ctx context.Context, ids []string, status model.PaymentStatus, ticketFor func(id string) string) ([]model.Registration, error)
	Delete(ctx context.Context, ids []string) (int64, error)
	Restore(ctx context.Context, rows []model.Registration) error
}

const registrationColumns = `id, email, full_name, phone, payment_status, ticket_id, data, registered_at, updated_at`

// NormalizeEmail is the form an address is stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *repository) GetAll(ctx context.Context) ([]model.Registration, error) {
	query := `SELECT ` + registrationColumns + `
		FROM registrations
		ORDER BY registered_at DESC`

	regs := []model.Registration{}
	if err := r.x.SelectContext(ctx, &regs, query); err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	return regs, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`

	var reg model.Registration
	if err := r.x.GetContext(ctx, &reg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration %s: %w", id, err)
	}
	return &reg, nil
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*model.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE email = $1`

	var reg model.Registration
	if err := r.x.GetContext(ctx, &reg, query, NormalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration by email: %w", err)
	}
	return &reg, nil
}

func (r *repository) GetByIDs(ctx context.Context, ids []string) ([]model.Registration, error) {
	query := `SELECT ` + registrationColumns + `
		FROM registrations
		WHERE id = ANY($1)
		ORDER BY registered_at DESC`

	regs := []model.Registration{}
	if err := r.x.SelectContext(ctx, &regs, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to get registrations by ids: %w", err)
	}
	return regs, nil
}

// Create inserts a pending registration. The existence check fails fast for
// the sequential case; the unique index on email catches concurrent ones.
func (r *repository) Create(ctx context.Context, form model.RegistrationForm) (*model.Registration, error) {
	form.Email = NormalizeEmail(form.Email)

	_, err := r.GetByEmail(ctx, form.Email)
	switch {
	case err == nil:
		return nil, ErrDuplicateEmail
	case !errors.Is(err, ErrRegistrationNotFound):
		return nil, err
	}

	query := `
		INSERT INTO registrations (id, email, full_name, phone, payment_status, data, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING ` + registrationColumns

	var reg model.Registration
	err = r.x.QueryRowxContext(ctx, query,
		uuid.NewString(), form.Email, form.FullName, form.Phone, model.PaymentPending, form,
	).StructScan(&reg)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}
	return &reg, nil
}

// Update merges patch into the row. Leaving completed clears the ticket id.
// The email column is never rewritten; the data blob keeps its value.
func (r *repository) Update(ctx context.Context, id string, patch model.RegistrationPatch) (*model.Registration, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.PaymentStatus != nil {
		sets = append(sets, "payment_status = "+arg(*patch.PaymentStatus))
		if *patch.PaymentStatus != model.PaymentCompleted {
			sets = append(sets, "ticket_id = NULL")
		}
	}
	if patch.TicketID != nil {
		switch {
		case patch.PaymentStatus == nil:
			sets = append(sets, "ticket_id = CASE WHEN payment_status = 'completed' THEN "+arg(*patch.TicketID)+" ELSE ticket_id END")
		case *patch.PaymentStatus == model.PaymentCompleted:
			sets = append(sets, "ticket_id = "+arg(*patch.TicketID))
		}
	}
	if patch.Data != nil {
		sets = append(sets,
			"data = jsonb_set("+arg(*patch.Data)+"::jsonb, '{email}', to_jsonb(email))",
			"full_name = "+arg(patch.Data.FullName),
			"phone = "+arg(patch.Data.Phone),
		)
	}

	query := `UPDATE registrations SET ` + strings.Join(sets, ", ") +
		` WHERE id = ` + arg(id) + ` RETURNING ` + registrationColumns

	var reg model.Registration
	if err := r.x.QueryRowxContext(ctx, query, args...).StructScan(&reg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to update registration %s: %w", id, err)
	}
	return &reg, nil
}

// SetStatus moves every row in ids to status with one statement. Rows moved
// to completed keep an existing ticket id or get ticketFor(id).
func (r *repository) SetStatus(ctx context.Context, ids []string, status model.PaymentStatus, ticketFor func(id string) string) ([]model.Registration, error) {
	tickets := make([]string, len(ids))
	if status == model.PaymentCompleted && ticketFor != nil {
		for i, id := range ids {
			tickets[i] = ticketFor(id)
		}
	}

	query := `
		UPDATE registrations AS r
		SET payment_status = $1,
		    ticket_id = CASE WHEN $1::text = 'completed' THEN COALESCE(r.ticket_id, NULLIF(v.ticket, '')) ELSE NULL END,
		    updated_at = NOW()
		FROM unnest($2::text[], $3::text[]) AS v(id, ticket)
		WHERE r.id = v.id
		RETURNING r.id, r.email, r.full_name, r.phone, r.payment_status, r.ticket_id, r.data, r.registered_at, r.updated_at`

	regs := []model.Registration{}
	if err := r.x.SelectContext(ctx, &regs, query, string(status), pq.Array(ids), pq.Array(tickets)); err != nil {
		return nil, fmt.Errorf("failed to set status %s: %w", status, err)
	}
	return regs, nil
}

func (r *repository) Delete(ctx context.Context, ids []string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete registrations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted registrations: %w", err)
	}
	return n, nil
}

// Restore writes rows back exactly as captured, re-inserting deleted ones
// under their original ids.
func (r *repository) Restore(ctx context.Context, rows []model.Registration) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	query := `
		INSERT INTO registrations (id, email, full_name, phone, payment_status, ticket_id, data, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			payment_status = EXCLUDED.payment_status,
			ticket_id = EXCLUDED.ticket_id,
			data = EXCLUDED.data,
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			updated_at = NOW()`

	for _, reg := range rows {
		if _, err := tx.ExecContext(ctx, query,
			reg.ID, reg.Email, reg.FullName, reg.Phone, reg.PaymentStatus, reg.TicketID, reg.Data, reg.RegisteredAt,
		); err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				return fmt.Errorf("failed to restore registration %s: %w", reg.ID, ErrDuplicateEmail)
			}
			return fmt.Errorf("failed to restore registration %s: %w", reg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
