package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trekreg/internal/mailer"
	"trekreg/internal/model"
	"trekreg/internal/repo"
	"trekreg/internal/ticket"
)

var (
	ErrUnknownAction        = errors.New("unknown admin action")
	ErrEmptySelection       = errors.New("no registrations selected")
	ErrConfirmationRequired = errors.New("delete requires confirmation")
	ErrNotUndoable          = errors.New("action cannot be undone")
	ErrAlreadyUndone        = errors.New("action was already undone")
	ErrEmptyMessage         = errors.New("subject and body are required")
)

const DefaultHistoryLimit = 50

type Store interface {
	GetAll(ctx context.Context) ([]model.Registration, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Registration, error)
	SetStatus(ctx context.Context, ids []string, status model.PaymentStatus, ticketFor func(id string) string) ([]model.Registration, error)
	Delete(ctx context.Context, ids []string) (int64, error)
	Restore(ctx context.Context, rows []model.Registration) error
	AppendHistory(ctx context.Context, entry *model.HistoryEntry) error
	ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	GetHistory(ctx context.Context, id string) (*model.HistoryEntry, error)
	MarkHistoryUndone(ctx context.Context, id string) error
}

type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) (mailer.Receipt, error)
}

type View struct {
	Rows  []model.Registration `json:"rows"`
	Stats Stats                `json:"stats"`
}

type Result struct {
	Action    model.ActionType    `json:"action"`
	Requested int                 `json:"requested"`
	Affected  int                 `json:"affected"`
	History   *model.HistoryEntry `json:"history,omitempty"`
}

type Console struct {
	store Store
	mail  Mailer
	log   *zerolog.Logger
	now   func() time.Time
}

func NewConsole(store Store, mail Mailer, log *zerolog.Logger) *Console {
	return &Console{store: store, mail: mail, log: log, now: time.Now}
}

// ParseAction accepts the row mutations; email has its own operation.
func ParseAction(s string) (model.ActionType, error) {
	switch a := model.ActionType(s); a {
	case model.ActionMarkPaid, model.ActionMarkPending, model.ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// List fetches every row; stats cover all of them, Rows only the view.
func (c *Console) List(ctx context.Context, q Query) (*View, error) {
	rows, err := c.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return &View{
		Rows:  Apply(rows, q),
		Stats: ComputeStats(rows, c.now()),
	}, nil
}

// BulkMutate applies action to the existing rows among ids with one store
// call and records the pre-mutation rows in the action history. Delete only
// proceeds when confirmed is set. A selection matching no row fails with
// ErrEmptySelection and records nothing.
func (c *Console) BulkMutate(ctx context.Context, ids []string, action model.ActionType, confirmed bool) (*Result, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return nil, err
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, ErrEmptySelection
	}
	if action == model.ActionDelete && !confirmed {
		return nil, ErrConfirmationRequired
	}

	snapshot, err := c.store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, ErrEmptySelection
	}
	requested := len(ids)
	ids = make([]string, 0, len(snapshot))
	for _, r := range snapshot {
		ids = append(ids, r.ID)
	}

	var affected int
	switch action {
	case model.ActionMarkPaid:
		rows, err := c.store.SetStatus(ctx, ids, model.PaymentCompleted, func(string) string {
			return ticket.NewID(c.now())
		})
		if err != nil {
			return nil, err
		}
		affected = len(rows)
	case model.ActionMarkPending:
		rows, err := c.store.SetStatus(ctx, ids, model.PaymentPending, nil)
		if err != nil {
			return nil, err
		}
		affected = len(rows)
	case model.ActionDelete:
		n, err := c.store.Delete(ctx, ids)
		if err != nil {
			return nil, err
		}
		affected = int(n)
	}

	c.log.Info().
		Str("action", string(action)).
		Int("requested", requested).
		Int("count", affected).
		Msg("admin mutation applied")
	if affected == 0 {
		return nil, ErrEmptySelection
	}

	entry := &model.HistoryEntry{
		Type:     action,
		Snapshot: snapshot,
		Detail:   fmt.Sprintf("%d registration(s)", affected),
		Undoable: true,
	}
	return &Result{
		Action:    action,
		Requested: requested,
		Affected:  affected,
		History:   c.record(ctx, entry),
	}, nil
}

func (c *Console) SingleMutate(ctx context.Context, id string, action model.ActionType, confirmed bool) (*Result, error) {
	res, err := c.BulkMutate(ctx, []string{id}, action, confirmed)
	if errors.Is(err, ErrEmptySelection) {
		return nil, repo.ErrRegistrationNotFound
	}
	return res, err
}

// BulkEmail sends one message listing every selected registrant as a
// recipient.
func (c *Console) BulkEmail(ctx context.Context, ids []string, subject, body string) (*Result, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(body) == "" {
		return nil, ErrEmptyMessage
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, ErrEmptySelection
	}

	rows, err := c.store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptySelection
	}

	to := make([]string, 0, len(rows))
	for _, r := range rows {
		to = append(to, r.Email)
	}
	if _, err := c.mail.Send(ctx, mailer.Message{To: to, Subject: subject, Text: body}); err != nil {
		return nil, err
	}

	entry := &model.HistoryEntry{
		Type:     model.ActionEmail,
		Snapshot: rows,
		Detail:   subject,
	}
	return &Result{
		Action:    model.ActionEmail,
		Requested: len(ids),
		Affected:  len(rows),
		History:   c.record(ctx, entry),
	}, nil
}

func (c *Console) History(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return c.store.ListHistory(ctx, limit)
}

// Undo applies the compensating action of a history entry: deleted rows are
// re-inserted under their ids, status changes revert to the captured status
// and ticket id.
func (c *Console) Undo(ctx context.Context, historyID string) (*model.HistoryEntry, error) {
	entry, err := c.store.GetHistory(ctx, historyID)
	if err != nil {
		return nil, err
	}
	if !entry.Undoable {
		return nil, ErrNotUndoable
	}
	if entry.UndoneAt != nil {
		return nil, ErrAlreadyUndone
	}

	switch entry.Type {
	case model.ActionDelete, model.ActionMarkPaid, model.ActionMarkPending:
		if err := c.store.Restore(ctx, entry.Snapshot); err != nil {
			return nil, err
		}
	default:
		return nil, ErrNotUndoable
	}

	if err := c.store.MarkHistoryUndone(ctx, entry.ID); err != nil {
		if errors.Is(err, repo.ErrHistoryNotFound) {
			return nil, ErrAlreadyUndone
		}
		return nil, err
	}
	undone := c.now()
	entry.UndoneAt = &undone

	c.log.Info().
		Str("history_id", entry.ID).
		Str("action", string(entry.Type)).
		Int("count", len(entry.Snapshot)).
		Msg("admin action undone")
	return entry, nil
}

// record appends entry; a failure is logged and leaves the result without a
// history reference, since the mutation itself already happened.
func (c *Console) record(ctx context.Context, entry *model.HistoryEntry) *model.HistoryEntry {
	if err := c.store.AppendHistory(ctx, entry); err != nil {
		c.log.Error().Err(err).Str("action", string(entry.Type)).Msg("failed to record admin action")
		return nil
	}
	return entry
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
