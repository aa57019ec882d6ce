// Package repotest provides an in-memory repo.Repository for tests.
package repotest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trekreg/internal/model"
	"trekreg/internal/repo"
)

// Memory mirrors the Postgres repository's observable behaviour, including
// the unique email index and the ticket/status coupling.
type Memory struct {
	mu       sync.Mutex
	regs     map[string]model.Registration
	emails   []model.EmailLog
	history  []model.HistoryEntry
	sessions map[string]model.AdminSession

	// Err, when set, is returned by every call.
	Err error
	// Calls counts calls per method name.
	Calls map[string]int
	Now   func() time.Time
}

var _ repo.Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		regs:     map[string]model.Registration{},
		sessions: map[string]model.AdminSession{},
		Calls:    map[string]int{},
		Now:      time.Now,
	}
}

func (m *Memory) call(name string) error {
	m.Calls[name]++
	return m.Err
}

// Seed stores rows as given.
func (m *Memory) Seed(rows ...model.Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.regs[r.ID] = r
	}
}

func (m *Memory) EmailLogs() []model.EmailLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.EmailLog(nil), m.emails...)
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.regs)
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call("Ping")
}

func (m *Memory) MigrateUp(string) error   { return nil }
func (m *Memory) MigrateDown(string) error { return nil }

func (m *Memory) sorted() []model.Registration {
	out := make([]model.Registration, 0, len(m.regs))
	for _, r := range m.regs {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RegisteredAt.After(out[j].RegisteredAt) })
	return out
}

func (m *Memory) GetAll(ctx context.Context) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetAll"); err != nil {
		return nil, err
	}
	return m.sorted(), nil
}

func (m *Memory) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetByID"); err != nil {
		return nil, err
	}
	r, ok := m.regs[id]
	if !ok {
		return nil, repo.ErrRegistrationNotFound
	}
	return &r, nil
}

func (m *Memory) GetByEmail(ctx context.Context, email string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetByEmail"); err != nil {
		return nil, err
	}
	email = repo.NormalizeEmail(email)
	for _, r := range m.regs {
		if r.Email == email {
			return &r, nil
		}
	}
	return nil, repo.ErrRegistrationNotFound
}

func (m *Memory) GetByIDs(ctx context.Context, ids []string) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetByIDs"); err != nil {
		return nil, err
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []model.Registration{}
	for _, r := range m.sorted() {
		if want[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Create(ctx context.Context, form model.RegistrationForm) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Create"); err != nil {
		return nil, err
	}
	form.Email = repo.NormalizeEmail(form.Email)
	for _, r := range m.regs {
		if r.Email == form.Email {
			return nil, repo.ErrDuplicateEmail
		}
	}
	now := m.Now()
	r := model.Registration{
		ID:            uuid.NewString(),
		Email:         form.Email,
		FullName:      form.FullName,
		Phone:         form.Phone,
		PaymentStatus: model.PaymentPending,
		Data:          form,
		RegisteredAt:  now,
		UpdatedAt:     now,
	}
	m.regs[r.ID] = r
	return &r, nil
}

func (m *Memory) Update(ctx context.Context, id string, patch model.RegistrationPatch) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Update"); err != nil {
		return nil, err
	}
	r, ok := m.regs[id]
	if !ok {
		return nil, repo.ErrRegistrationNotFound
	}
	if patch.PaymentStatus != nil {
		r.PaymentStatus = *patch.PaymentStatus
		if r.PaymentStatus != model.PaymentCompleted {
			r.TicketID = nil
		}
	}
	if patch.TicketID != nil && r.PaymentStatus == model.PaymentCompleted {
		t := *patch.TicketID
		r.TicketID = &t
	}
	if r.PaymentStatus == model.PaymentCompleted && r.TicketID == nil {
		return nil, errors.New("registrations_ticket_when_completed violated")
	}
	if patch.Data != nil {
		r.Data = *patch.Data
		r.Data.Email = r.Email
		r.FullName = patch.Data.FullName
		r.Phone = patch.Data.Phone
	}
	r.UpdatedAt = m.Now()
	m.regs[id] = r
	return &r, nil
}

func (m *Memory) SetStatus(ctx context.Context, ids []string, status model.PaymentStatus, ticketFor func(id string) string) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("SetStatus"); err != nil {
		return nil, err
	}
	out := []model.Registration{}
	for _, id := range ids {
		r, ok := m.regs[id]
		if !ok {
			continue
		}
		r.PaymentStatus = status
		if status == model.PaymentCompleted {
			if r.TicketID == nil && ticketFor != nil {
				t := ticketFor(id)
				r.TicketID = &t
			}
		} else {
			r.TicketID = nil
		}
		r.UpdatedAt = m.Now()
		m.regs[id] = r
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Delete"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if _, ok := m.regs[id]; ok {
			delete(m.regs, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Restore(ctx context.Context, rows []model.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Restore"); err != nil {
		return err
	}
	for _, r := range rows {
		for _, other := range m.regs {
			if other.ID != r.ID && other.Email == r.Email {
				return repo.ErrDuplicateEmail
			}
		}
	}
	for _, r := range rows {
		r.UpdatedAt = m.Now()
		m.regs[r.ID] = r
	}
	return nil
}

func (m *Memory) LogEmail(ctx context.Context, entry model.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("LogEmail"); err != nil {
		return err
	}
	entry.ID = int64(len(m.emails) + 1)
	m.emails = append(m.emails, entry)
	return nil
}

func (m *Memory) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("AppendHistory"); err != nil {
		return err
	}
	entry.ID = uuid.NewString()
	entry.CreatedAt = m.Now()
	m.history = append(m.history, *entry)
	return nil
}

func (m *Memory) ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ListHistory"); err != nil {
		return nil, err
	}
	out := []model.HistoryEntry{}
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.history[i])
	}
	return out, nil
}

func (m *Memory) GetHistory(ctx context.Context, id string) (*model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetHistory"); err != nil {
		return nil, err
	}
	for _, e := range m.history {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, repo.ErrHistoryNotFound
}

func (m *Memory) MarkHistoryUndone(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("MarkHistoryUndone"); err != nil {
		return err
	}
	for i, e := range m.history {
		if e.ID == id && e.UndoneAt == nil {
			now := m.Now()
			m.history[i].UndoneAt = &now
			return nil
		}
	}
	return repo.ErrHistoryNotFound
}

func (m *Memory) CreateSession(ctx context.Context, s model.AdminSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("CreateSession"); err != nil {
		return err
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (*model.AdminSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetSession"); err != nil {
		return nil, err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, repo.ErrSessionNotFound
	}
	return &s, nil
}

func (m *Memory) RevokeSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("RevokeSession"); err != nil {
		return err
	}
	s, ok := m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return repo.ErrSessionNotFound
	}
	now := m.Now()
	s.RevokedAt = &now
	m.sessions[id] = s
	return nil
}

func (m *Memory) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("PurgeExpiredSessions"); err != nil {
		return 0, err
	}
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
