// Package workflow drives one participant through form → payment → ticket.
// Progress is cached in a Store so the flow resumes where it stopped; the
// remote registration row stays the source of truth.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trekreg/internal/mailer"
	"trekreg/internal/model"
	"trekreg/internal/repo"
	"trekreg/internal/ticket"
	"trekreg/pkg/validator"
)

type State string

const (
	StateForm    State = "form"
	StatePayment State = "payment"
	StateTicket  State = "ticket"
)

const (
	KeyRegistrationData = "trek_registration_data"
	KeyPaymentCompleted = "trek_payment_completed"
	KeyTicketData       = "trek_ticket_data"

	DefaultPaymentDelay = 2 * time.Second
)

var (
	ErrInvalidTransition = errors.New("invalid workflow transition")
	ErrValidation        = errors.New("registration form is invalid")
)

// ValidationError carries one message per invalid form field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type Backend interface {
	CreateRegistration(ctx context.Context, form model.RegistrationForm) (*model.Registration, error)
	UpdateRegistration(ctx context.Context, id string, patch model.RegistrationPatch) (*model.Registration, error)
	GetRegistration(ctx context.Context, id string) (*model.Registration, error)
	SendEmail(ctx context.Context, msg mailer.Message) error
}

type Submission struct {
	RegistrationID string                 `json:"registration_id,omitempty"`
	Form           model.RegistrationForm `json:"form"`
	SubmittedAt    time.Time              `json:"submitted_at"`
}

type PaymentMarker struct {
	RegistrationID string    `json:"registration_id,omitempty"`
	Completed      bool      `json:"completed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Ticket struct {
	TicketID       string    `json:"ticket_id"`
	RegistrationID string    `json:"registration_id,omitempty"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	IssuedAt       time.Time `json:"issued_at"`
	// Synced reports whether the remote row is known to carry this ticket.
	Synced bool `json:"synced"`
}

type Option func(*Workflow)

func WithPaymentDelay(d time.Duration) Option {
	return func(w *Workflow) { w.paymentDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func WithEventName(name string) Option {
	return func(w *Workflow) { w.eventName = name }
}

// WithTicketHook registers fn to run once a ticket is issued.
func WithTicketHook(fn func(Ticket)) Option {
	return func(w *Workflow) { w.onTicket = fn }
}

type Workflow struct {
	store        Store
	backend      Backend
	log          *zerolog.Logger
	eventName    string
	paymentDelay time.Duration
	now          func() time.Time
	onTicket     func(Ticket)

	state      State
	form       model.RegistrationForm
	submission *Submission
	ticket     *Ticket
}

func New(store Store, backend Backend, log *zerolog.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		store:        store,
		backend:      backend,
		log:          log,
		eventName:    "Annual Trek",
		paymentDelay: DefaultPaymentDelay,
		now:          time.Now,
		state:        StateForm,
		form:         model.DefaultForm(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workflow) State() State                 { return w.state }
func (w *Workflow) Form() model.RegistrationForm { return w.form }

func (w *Workflow) Submission() *Submission {
	if w.submission == nil {
		return nil
	}
	s := *w.submission
	return &s
}

func (w *Workflow) Ticket() *Ticket {
	if w.ticket == nil {
		return nil
	}
	t := *w.ticket
	return &t
}

// Resume restores the state from the store alone: a cached ticket wins,
// then a payment marker with form data, otherwise the form.
func (w *Workflow) Resume() (State, error) {
	var t Ticket
	hasTicket, err := w.load(KeyTicketData, &t)
	if err != nil {
		return w.state, err
	}
	var sub Submission
	hasSub, err := w.load(KeyRegistrationData, &sub)
	if err != nil {
		return w.state, err
	}
	var marker PaymentMarker
	hasMarker, err := w.load(KeyPaymentCompleted, &marker)
	if err != nil {
		return w.state, err
	}

	switch {
	case hasTicket && t.TicketID != "":
		w.ticket = &t
		if hasSub {
			w.submission = &sub
			w.form = sub.Form
		}
		w.state = StateTicket
	case hasMarker && hasSub:
		w.submission = &sub
		w.form = sub.Form
		w.state = StatePayment
	default:
		if hasSub {
			w.submission = &sub
			w.form = sub.Form
		}
		w.state = StateForm
	}

	w.log.Debug().Str("state", string(w.state)).Msg("workflow resumed")
	return w.state, nil
}

// Submit validates form, creates the remote row and sends the confirmation
// email. Nothing is cached unless both succeed. A form re-submitted after
// Back updates the existing row instead of creating a second one.
func (w *Workflow) Submit(ctx context.Context, form model.RegistrationForm) error {
	if w.state != StateForm {
		return fmt.Errorf("%w: submit from %s", ErrInvalidTransition, w.state)
	}
	w.form = form
	if fields := validator.Fields(ctx, form); fields != nil {
		return &ValidationError{Fields: fields}
	}

	var (
		reg *model.Registration
		err error
	)
	if w.submission != nil && w.submission.RegistrationID != "" &&
		repo.NormalizeEmail(w.submission.Form.Email) == repo.NormalizeEmail(form.Email) {
		reg, err = w.backend.UpdateRegistration(ctx, w.submission.RegistrationID, model.RegistrationPatch{Data: &form})
	} else {
		reg, err = w.backend.CreateRegistration(ctx, form)
	}
	if err != nil {
		w.log.Error().Err(err).Str("email", form.Email).Msg("failed to save registration")
		return err
	}

	if err := w.backend.SendEmail(ctx, mailer.ConfirmationMessage(w.eventName, form)); err != nil {
		w.log.Error().Err(err).Str("email", form.Email).Msg("failed to send confirmation email")
		return err
	}

	sub := Submission{RegistrationID: reg.ID, Form: form, SubmittedAt: w.now()}
	marker := PaymentMarker{RegistrationID: reg.ID, UpdatedAt: sub.SubmittedAt}
	if err := w.save(KeyRegistrationData, sub); err != nil {
		return err
	}
	if err := w.save(KeyPaymentCompleted, marker); err != nil {
		_ = w.store.Delete(KeyRegistrationData)
		return err
	}

	w.submission = &sub
	w.state = StatePayment
	w.log.Info().Str("registration_id", reg.ID).Msg("registration submitted, awaiting payment")
	return nil
}

// Back returns from payment to the form. The remote row is left as is.
func (w *Workflow) Back() error {
	if w.state != StatePayment {
		return fmt.Errorf("%w: back from %s", ErrInvalidTransition, w.state)
	}
	if err := w.store.Delete(KeyPaymentCompleted); err != nil {
		return err
	}
	if w.submission != nil {
		w.form = w.submission.Form
	}
	w.state = StateForm
	return nil
}

// Pay simulates the gateway round trip, issues a ticket and marks the row
// completed. A failed remote update is logged and the ticket is kept;
// Verify reconciles it later.
func (w *Workflow) Pay(ctx context.Context) (*Ticket, error) {
	if w.state != StatePayment || w.submission == nil {
		return nil, fmt.Errorf("%w: pay from %s", ErrInvalidTransition, w.state)
	}

	if w.paymentDelay > 0 {
		timer := time.NewTimer(w.paymentDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	issued := w.now()
	t := Ticket{
		TicketID:       ticket.NewID(issued),
		RegistrationID: w.submission.RegistrationID,
		FullName:       w.submission.Form.FullName,
		Email:          w.submission.Form.Email,
		IssuedAt:       issued,
	}
	if err := w.save(KeyTicketData, t); err != nil {
		return nil, err
	}
	marker := PaymentMarker{RegistrationID: t.RegistrationID, Completed: true, UpdatedAt: issued}
	if err := w.save(KeyPaymentCompleted, marker); err != nil {
		w.log.Warn().Err(err).Msg("failed to cache payment marker")
	}

	if t.RegistrationID != "" {
		t.Synced = w.syncTicket(ctx, t)
		if t.Synced {
			if err := w.save(KeyTicketData, t); err != nil {
				w.log.Warn().Err(err).Msg("failed to cache synced ticket")
			}
		}
	}

	w.ticket = &t
	w.state = StateTicket
	w.log.Info().Str("ticket_id", t.TicketID).Bool("synced", t.Synced).Msg("ticket issued")
	if w.onTicket != nil {
		w.onTicket(t)
	}
	return w.Ticket(), nil
}

func (w *Workflow) syncTicket(ctx context.Context, t Ticket) bool {
	status := model.PaymentCompleted
	id := t.TicketID
	_, err := w.backend.UpdateRegistration(ctx, t.RegistrationID, model.RegistrationPatch{
		PaymentStatus: &status,
		TicketID:      &id,
	})
	if err != nil {
		w.log.Warn().Err(err).
			Str("registration_id", t.RegistrationID).
			Str("ticket_id", t.TicketID).
			Msg("payment recorded locally but the remote update failed")
		return false
	}
	return true
}

// Verify checks the cached state against the remote row and reconciles:
// an unsynced ticket is pushed again, a row completed elsewhere is adopted,
// a synced ticket whose row is no longer completed is dropped, and a
// vanished row resets the workflow.
func (w *Workflow) Verify(ctx context.Context) (State, error) {
	id := ""
	switch {
	case w.ticket != nil && w.ticket.RegistrationID != "":
		id = w.ticket.RegistrationID
	case w.submission != nil && w.submission.RegistrationID != "":
		id = w.submission.RegistrationID
	}
	if id == "" || w.state == StateForm {
		return w.state, nil
	}

	reg, err := w.backend.GetRegistration(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			w.log.Warn().Str("registration_id", id).Msg("cached registration no longer exists, resetting")
			return StateForm, w.Reset()
		}
		return w.state, err
	}

	switch w.state {
	case StateTicket:
		switch {
		case reg.PaymentStatus == model.PaymentCompleted && reg.Ticket() != "":
			return w.adoptTicket(reg)
		case w.ticket.Synced:
			return w.revokeTicket(reg)
		default:
			t := *w.ticket
			if t.Synced = w.syncTicket(ctx, t); t.Synced {
				w.ticket = &t
				return w.state, w.save(KeyTicketData, t)
			}
		}
	case StatePayment:
		if reg.PaymentStatus == model.PaymentCompleted && reg.Ticket() != "" {
			return w.adoptTicket(reg)
		}
	}
	return w.state, nil
}

func (w *Workflow) adoptTicket(reg *model.Registration) (State, error) {
	t := Ticket{
		TicketID:       reg.Ticket(),
		RegistrationID: reg.ID,
		FullName:       reg.FullName,
		Email:          reg.Email,
		IssuedAt:       reg.UpdatedAt,
		Synced:         true,
	}
	if w.ticket != nil && w.ticket.TicketID == t.TicketID {
		t.IssuedAt = w.ticket.IssuedAt
	}
	if err := w.save(KeyTicketData, t); err != nil {
		return w.state, err
	}
	w.ticket = &t
	w.state = StateTicket
	return w.state, nil
}

// revokeTicket follows a row that was moved off completed after the ticket
// reached it: the cached ticket goes and the workflow waits for payment.
func (w *Workflow) revokeTicket(reg *model.Registration) (State, error) {
	w.log.Warn().
		Str("registration_id", reg.ID).
		Str("ticket_id", w.ticket.TicketID).
		Str("status", string(reg.PaymentStatus)).
		Msg("remote row is no longer completed, dropping cached ticket")

	if w.submission == nil || w.submission.RegistrationID != reg.ID {
		sub := Submission{RegistrationID: reg.ID, Form: reg.Data, SubmittedAt: reg.RegisteredAt}
		if err := w.save(KeyRegistrationData, sub); err != nil {
			return w.state, err
		}
		w.submission = &sub
		w.form = sub.Form
	}
	marker := PaymentMarker{RegistrationID: reg.ID, UpdatedAt: w.now()}
	if err := w.save(KeyPaymentCompleted, marker); err != nil {
		return w.state, err
	}
	if err := w.store.Delete(KeyTicketData); err != nil {
		return w.state, err
	}
	w.ticket = nil
	w.state = StatePayment
	return w.state, nil
}

// Reset forgets the cached session so another person can register.
func (w *Workflow) Reset() error {
	for _, key := range []string{KeyRegistrationData, KeyPaymentCompleted, KeyTicketData} {
		if err := w.store.Delete(key); err != nil {
			return err
		}
	}
	w.state = StateForm
	w.form = model.DefaultForm()
	w.submission = nil
	w.ticket = nil
	return nil
}

func (w *Workflow) load(key string, v any) (bool, error) {
	b, ok, err := w.store.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		w.log.Warn().Err(err).Str("key", key).Msg("discarding unreadable cache entry")
		return false, w.store.Delete(key)
	}
	return true, nil
}

func (w *Workflow) save(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return w.store.Set(key, b)
}
