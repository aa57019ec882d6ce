package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"trekreg/internal/admin"
	"trekreg/internal/auth"
	"trekreg/internal/client"
	"trekreg/internal/mailer"
	"trekreg/internal/model"
	"trekreg/internal/repo"
	"trekreg/internal/repo/repotest"
	"trekreg/internal/service"
	"trekreg/internal/workflow"
)

// recordingMailer is shared with server goroutines.
type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) (mailer.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return mailer.Receipt{MessageID: "<1@test>", Accepted: msg.To, SentAt: time.Now()}, nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func newServer(t *testing.T) (*httptest.Server, *repotest.Memory, *recordingMailer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zerolog.Nop()
	store := repotest.NewMemory()
	mail := &recordingMailer{}
	manager := auth.NewManager(auth.Config{APIKey: "k"}, store, &log)

	svc := service.NewService(service.Deps{
		Repo:    store,
		Mailer:  mail,
		Console: admin.NewConsole(store, mail, &log),
		Auth:    manager,
		App:     service.AppConfig{EventName: "Everest View Trek"},
		Log:     &log,
	})
	ts := httptest.NewServer(NewRouters(&Routers{Service: svc, Auth: manager, Mode: gin.TestMode}))
	t.Cleanup(ts.Close)
	return ts, store, mail
}

func trekForm(email string) model.RegistrationForm {
	return model.RegistrationForm{
		FullName:                 "Pema Sherpa",
		Email:                    email,
		Phone:                    "+977 9812345678",
		Age:                      29,
		Gender:                   "female",
		FitnessLevel:             "intermediate",
		TrekExperience:           "beginner",
		EmergencyContactName:     "Dorje Sherpa",
		EmergencyContactPhone:    "+977 9800000000",
		EmergencyContactRelation: "brother",
		TShirtSize:               "S",
		TermsAccepted:            true,
	}
}

func TestWorkflowOverHTTP(t *testing.T) {
	ts, store, mail := newServer(t)
	ctx := context.Background()
	log := zerolog.Nop()
	backend := client.New(ts.URL, &log).WithHTTPClient(ts.Client())
	local := workflow.NewMemoryStore()

	w := workflow.New(local, backend, &log, workflow.WithPaymentDelay(0))
	if err := w.Submit(ctx, trekForm("pema@example.com")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if w.State() != workflow.StatePayment || store.Len() != 1 {
		t.Fatalf("after submit: state=%s rows=%d", w.State(), store.Len())
	}
	if n := mail.count(); n != 1 {
		t.Errorf("confirmation emails = %d, want 1", n)
	}

	tk, err := w.Pay(ctx)
	if err != nil {
		t.Fatalf("Pay() error = %v", err)
	}
	row, err := store.GetByID(ctx, tk.RegistrationID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if row.PaymentStatus != model.PaymentCompleted || row.Ticket() != tk.TicketID || !tk.Synced {
		t.Errorf("row = %s %q, ticket = %+v", row.PaymentStatus, row.Ticket(), tk)
	}

	state, err := w.Verify(ctx)
	if err != nil || state != workflow.StateTicket {
		t.Errorf("Verify() = %s, %v", state, err)
	}

	other := workflow.New(workflow.NewMemoryStore(), backend, &log, workflow.WithPaymentDelay(0))
	if err := other.Submit(ctx, trekForm("PEMA@example.com")); !errors.Is(err, repo.ErrDuplicateEmail) {
		t.Errorf("duplicate Submit() error = %v, want %v", err, repo.ErrDuplicateEmail)
	}
	if store.Len() != 1 {
		t.Errorf("rows = %d after duplicate, want 1", store.Len())
	}
}

func TestWorkflowOverHTTP_VerifyDeletedRow(t *testing.T) {
	ts, store, _ := newServer(t)
	ctx := context.Background()
	log := zerolog.Nop()
	backend := client.New(ts.URL, &log).WithHTTPClient(ts.Client())

	w := workflow.New(workflow.NewMemoryStore(), backend, &log, workflow.WithPaymentDelay(0))
	if err := w.Submit(ctx, trekForm("pema@example.com")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := store.Delete(ctx, []string{w.Submission().RegistrationID}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	state, err := w.Verify(ctx)
	if err != nil || state != workflow.StateForm {
		t.Errorf("Verify() = %s, %v, want form", state, err)
	}
}
