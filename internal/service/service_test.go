package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"trekreg/internal/admin"
	"trekreg/internal/api/api"
	"trekreg/internal/auth"
	"trekreg/internal/dto"
	"trekreg/internal/mailer"
	"trekreg/internal/model"
	"trekreg/internal/repo/repotest"
	"trekreg/internal/service"
)

const (
	testAPIKey   = "public-admin-key"
	testPassword = "base-camp"
)

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg mailer.Message) (mailer.Receipt, error) {
	if f.err != nil {
		return mailer.Receipt{}, f.err
	}
	f.sent = append(f.sent, msg)
	return mailer.Receipt{MessageID: "<1@test>", Accepted: msg.To, SentAt: time.Now()}, nil
}

type fakeReminders struct{ ids []string }

func (f *fakeReminders) PublishReminder(ctx context.Context, id string) error {
	f.ids = append(f.ids, id)
	return nil
}

type fakeArchive struct{ names []string }

func (f *fakeArchive) Upload(ctx context.Context, name, contentType string, body []byte) (string, error) {
	f.names = append(f.names, name)
	return "s3://bucket/" + name, nil
}

type harness struct {
	handler   http.Handler
	repo      *repotest.Memory
	mail      *fakeMailer
	reminders *fakeReminders
	archive   *fakeArchive
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zerolog.Nop()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	h := &harness{
		repo:      repotest.NewMemory(),
		mail:      &fakeMailer{},
		reminders: &fakeReminders{},
		archive:   &fakeArchive{},
	}
	manager := auth.NewManager(auth.Config{
		APIKey:       testAPIKey,
		PasswordHash: string(hash),
		Secret:       "test-secret",
		TTL:          time.Hour,
	}, h.repo, &log)

	svc := service.NewService(service.Deps{
		Repo:      h.repo,
		Mailer:    h.mail,
		Console:   admin.NewConsole(h.repo, h.mail, &log),
		Auth:      manager,
		Reminders: h.reminders,
		Archive:   h.archive,
		App:       service.AppConfig{EventName: "Everest View Trek", PublicURL: "https://trek.example.com"},
		Log:       &log,
	})
	h.handler = api.NewRouters(&api.Routers{Service: svc, Auth: manager, Mode: gin.TestMode})
	return h
}

type envelope struct {
	Status string          `json:"status"`
	Error  *dto.Error      `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func (h *harness) do(t *testing.T, method, path string, body any, header http.Header) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func errCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	rec, env := h.do(t, http.MethodPost, "/api/admin/login", dto.LoginRequest{Password: testPassword}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body = %s", rec.Code, rec.Body.String())
	}
	var tok auth.Token
	if err := json.Unmarshal(env.Data, &tok); err != nil || tok.Value == "" {
		t.Fatalf("login token = %+v, %v", tok, err)
	}
	return tok.Value
}

func form(email string) model.RegistrationForm {
	f := model.DefaultForm()
	f.FullName = "Pema Sherpa"
	f.Email = email
	f.Phone = "+977 9812345678"
	f.TermsAccepted = true
	return f
}

func ptr(s string) *string { return &s }

func TestOptions(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/registrations", "/api/send-email"} {
		rec, _ := h.do(t, http.MethodOptions, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("OPTIONS %s = %d, want 200", path, rec.Code)
		}
	}

	rec, _ := h.do(t, http.MethodOptions, "/api/registrations", nil, http.Header{
		"Origin":                        []string{"https://trek.example.com"},
		"Access-Control-Request-Method": []string{"POST"},
	})
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d, allow-origin %q", rec.Code, rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCreateRegistration(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodPost, "/api/registrations", form("pema@example.com"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var reg model.Registration
	if err := json.Unmarshal(env.Data, &reg); err != nil {
		t.Fatalf("decode row: %v", err)
	}
	if reg.ID == "" || reg.PaymentStatus != model.PaymentPending || reg.TicketID != nil {
		t.Errorf("created row = %+v", reg)
	}
	if len(h.reminders.ids) != 1 || h.reminders.ids[0] != reg.ID {
		t.Errorf("reminders = %v", h.reminders.ids)
	}

	rec, env = h.do(t, http.MethodPost, "/api/registrations", form("Pema@Example.com"), nil)
	if rec.Code != http.StatusBadRequest || errCode(env) != dto.RegistrationDuplicate {
		t.Errorf("duplicate = %d %s", rec.Code, errCode(env))
	}
	if h.repo.Len() != 1 {
		t.Errorf("rows = %d, want 1", h.repo.Len())
	}
}

func TestCreateRegistration_MissingFields(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		body any
	}{
		{"no email", model.RegistrationForm{FullName: "Pema"}},
		{"no name", model.RegistrationForm{Email: "pema@example.com"}},
		{"not json", "just text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := h.do(t, http.MethodPost, "/api/registrations", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
	if h.repo.Len() != 0 {
		t.Errorf("rows = %d, want 0", h.repo.Len())
	}
}

func TestCreateRegistration_MalformedFields(t *testing.T) {
	h := newHarness(t)
	bad := form("pema@example.com")
	bad.Phone = "call me"
	bad.TShirtSize = "XXXL"

	rec, env := h.do(t, http.MethodPost, "/api/registrations", bad, nil)
	if rec.Code != http.StatusBadRequest || errCode(env) != dto.ValidationFailed {
		t.Fatalf("status = %d code = %s", rec.Code, errCode(env))
	}
	if env.Error.Fields["phone"] == "" || env.Error.Fields["tshirt_size"] == "" {
		t.Errorf("fields = %v", env.Error.Fields)
	}
	if _, ok := env.Error.Fields["age"]; ok {
		t.Error("omitted optional field reported as invalid")
	}
	if h.repo.Len() != 0 {
		t.Errorf("rows = %d, want 0", h.repo.Len())
	}

	minimal := model.RegistrationForm{FullName: "Pema Sherpa", Email: "pema@example.com"}
	if rec, _ := h.do(t, http.MethodPost, "/api/registrations", minimal, nil); rec.Code != http.StatusOK {
		t.Errorf("minimal form = %d, want 200", rec.Code)
	}
}

func TestListRegistrations_APIKey(t *testing.T) {
	h := newHarness(t)
	h.repo.Seed(model.Registration{ID: "a", Email: "a@example.com", PaymentStatus: model.PaymentPending})

	rec, env := h.do(t, http.MethodGet, "/api/registrations", nil, nil)
	if rec.Code != http.StatusUnauthorized || errCode(env) != dto.Unauthorized {
		t.Errorf("no key = %d %s", rec.Code, errCode(env))
	}
	rec, _ = h.do(t, http.MethodGet, "/api/registrations?apiKey=wrong", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key = %d", rec.Code)
	}
	rec, _ = h.do(t, http.MethodGet, "/api/registrations", nil, http.Header{"X-Api-Key": []string{testAPIKey}})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("header key on current route = %d, want 401", rec.Code)
	}

	rec, env = h.do(t, http.MethodGet, "/api/registrations?apiKey="+testAPIKey, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("with key = %d", rec.Code)
	}
	var rows []model.Registration
	if err := json.Unmarshal(env.Data, &rows); err != nil || len(rows) != 1 {
		t.Errorf("rows = %+v, %v", rows, err)
	}
}

func TestUpdateRegistration(t *testing.T) {
	h := newHarness(t)
	h.repo.Seed(model.Registration{ID: "a", Email: "a@example.com", FullName: "Asha", PaymentStatus: model.PaymentPending})

	rec, env := h.do(t, http.MethodPut, "/api/registrations", map[string]any{"payment_status": "completed"}, nil)
	if rec.Code != http.StatusBadRequest || errCode(env) != dto.FieldIncorrect {
		t.Errorf("missing id = %d %s", rec.Code, errCode(env))
	}

	rec, env = h.do(t, http.MethodPut, "/api/registrations", map[string]any{"id": "nope", "payment_status": "completed"}, nil)
	if rec.Code != http.StatusBadRequest || errCode(env) != dto.RegistrationNotFound {
		t.Errorf("unknown id = %d %s", rec.Code, errCode(env))
	}

	rec, env = h.do(t, http.MethodPut, "/api/registrations", map[string]any{"id": "a", "payment_status": "completed"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete = %d body = %s", rec.Code, rec.Body.String())
	}
	var reg model.Registration
	_ = json.Unmarshal(env.Data, &reg)
	if reg.PaymentStatus != model.PaymentCompleted || !strings.HasPrefix(reg.Ticket(), "TKT-") {
		t.Errorf("updated row = %s %q", reg.PaymentStatus, reg.Ticket())
	}
	if len(h.mail.sent) != 1 || !strings.Contains(h.mail.sent[0].Text, reg.Ticket()) {
		t.Errorf("ticket emails = %+v", h.mail.sent)
	}

	rec, env = h.do(t, http.MethodPut, "/api/registrations", map[string]any{"id": "a", "payment_status": "pending"}, nil)
	_ = json.Unmarshal(env.Data, &reg)
	if rec.Code != http.StatusOK || reg.TicketID != nil {
		t.Errorf("back to pending = %d ticket %v", rec.Code, reg.TicketID)
	}

	rec, _ = h.do(t, http.MethodPut, "/api/registrations", map[string]any{"id": "a", "payment_status": "refunded"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status = %d", rec.Code)
	}
}

func TestUpdateRegistration_DataEmail(t *testing.T) {
	h := newHarness(t)
	h.repo.Seed(model.Registration{ID: "a", Email: "a@example.com", FullName: "Asha", PaymentStatus: model.PaymentPending})

	other := form("someone-else@example.com")
	rec, env := h.do(t, http.MethodPut, "/api/registrations", dto.UpdateRegistrationRequest{ID: "a", Data: &other}, nil)
	if rec.Code != http.StatusBadRequest || errCode(env) != dto.FieldIncorrect {
		t.Errorf("changed email = %d %s", rec.Code, errCode(env))
	}

	same := form("A@Example.com")
	same.FullName = "Asha Gurung"
	rec, env = h.do(t, http.MethodPut, "/api/registrations", dto.UpdateRegistrationRequest{ID: "a", Data: &same}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("same email = %d body = %s", rec.Code, rec.Body.String())
	}
	var reg model.Registration
	_ = json.Unmarshal(env.Data, &reg)
	if reg.FullName != "Asha Gurung" || reg.Email != "a@example.com" || reg.Data.Email != "a@example.com" {
		t.Errorf("updated row = %q %q data.email %q", reg.FullName, reg.Email, reg.Data.Email)
	}
}

func TestLegacyRegistrations(t *testing.T) {
	h := newHarness(t)
	h.repo.Seed(model.Registration{ID: "a", Email: "a@example.com", PaymentStatus: model.PaymentPending})
	body := dto.UpdateRegistrationRequest{ID: "a", PaymentStatus: (*model.PaymentStatus)(ptr("failed"))}

	rec, _ := h.do(t, http.MethodPut, "/api/legacy/registrations", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("legacy PUT without key = %d", rec.Code)
	}
	rec, _ = h.do(t, http.MethodPut, "/api/legacy/registrations", body, http.Header{"X-Api-Key": []string{testAPIKey}})
	if rec.Code != http.StatusOK {
		t.Errorf("legacy PUT with header key = %d", rec.Code)
	}
	rec, _ = h.do(t, http.MethodGet, "/api/legacy/registrations?apiKey="+testAPIKey, nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("legacy GET with query key = %d", rec.Code)
	}
}

func TestSendEmail(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodPost, "/api/send-email", map[string]any{"to": "a@example.com", "subject": "Hi", "text": "Hello"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("send = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp dto.SendEmailResponse
	_ = json.Unmarshal(env.Data, &resp)
	if resp.MessageID == "" || len(h.mail.sent) != 1 {
		t.Errorf("response = %+v sent = %d", resp, len(h.mail.sent))
	}

	rec, _ = h.do(t, http.MethodPost, "/api/send-email", map[string]any{"to": []string{"a@example.com", "b@example.com"}, "subject": "Hi", "html": "<p>Hello</p>"}, nil)
	if rec.Code != http.StatusOK || len(h.mail.sent[1].To) != 2 {
		t.Errorf("list recipients = %d", rec.Code)
	}

	rec, _ = h.do(t, http.MethodPost, "/api/send-email", map[string]any{"subject": "Hi", "text": "x"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing to = %d", rec.Code)
	}

	h.mail.err = mailer.ErrNotConfigured
	rec, env = h.do(t, http.MethodPost, "/api/send-email", map[string]any{"to": "a@example.com", "subject": "Hi", "text": "x"}, nil)
	if rec.Code != http.StatusInternalServerError || errCode(env) != dto.EmailNotConfigured {
		t.Errorf("unconfigured = %d %s", rec.Code, errCode(env))
	}
}

func TestProbeAndTicketQR(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodGet, "/api/supabase-test", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("probe = %d", rec.Code)
	}

	rec, _ = h.do(t, http.MethodGet, "/api/tickets/TKT-1700000000000-ABCDEF/qr.png", nil, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("qr = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("qr body is not a PNG")
	}

	rec, _ = h.do(t, http.MethodGet, "/api/tickets/nope/qr.png", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad ticket = %d", rec.Code)
	}
}

func TestAdmin_RequiresSession(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodGet, "/api/admin/registrations", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d", rec.Code)
	}
	rec, _ = h.do(t, http.MethodGet, "/api/admin/registrations", nil, bearer("garbage"))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d", rec.Code)
	}
	rec, _ = h.do(t, http.MethodPost, "/api/admin/login", dto.LoginRequest{Password: "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password = %d", rec.Code)
	}

	token := h.login(t)
	rec, _ = h.do(t, http.MethodPost, "/api/admin/logout", nil, bearer(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("logout = %d", rec.Code)
	}
	rec, _ = h.do(t, http.MethodGet, "/api/admin/registrations", nil, bearer(token))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked token = %d", rec.Code)
	}
}

func seedAdminRows(h *harness) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.repo.Seed(
		model.Registration{ID: "a", FullName: "Asha", Email: "asha@example.com", PaymentStatus: model.PaymentPending, RegisteredAt: base},
		model.Registration{ID: "b", FullName: "Ben", Email: "ben@example.com", PaymentStatus: model.PaymentCompleted, TicketID: ptr("TKT-1-ABCDEF"), RegisteredAt: base.Add(time.Hour)},
		model.Registration{ID: "c", FullName: "Chen", Email: "chen@trek.org", PaymentStatus: model.PaymentPending, RegisteredAt: base.Add(2 * time.Hour)},
	)
}

func TestAdmin_ListFilterSort(t *testing.T) {
	h := newHarness(t)
	seedAdminRows(h)
	token := h.login(t)

	rec, env := h.do(t, http.MethodGet, "/api/admin/registrations?status=pending&sort=registered_at&order=desc", nil, bearer(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	var view admin.View
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if len(view.Rows) != 2 || view.Rows[0].ID != "c" || view.Rows[1].ID != "a" {
		t.Errorf("rows = %+v", view.Rows)
	}
	if view.Stats.Total != 3 || view.Stats.Pending != 2 {
		t.Errorf("stats = %+v", view.Stats)
	}

	rec, _ = h.do(t, http.MethodGet, "/api/admin/registrations?sort=age", nil, bearer(token))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad sort = %d", rec.Code)
	}
}

func TestAdmin_BulkDeleteAndUndo(t *testing.T) {
	h := newHarness(t)
	seedAdminRows(h)
	token := h.login(t)

	req := dto.BulkActionRequest{IDs: []string{"a", "b"}, Action: "delete"}
	rec, env := h.do(t, http.MethodPost, "/api/admin/registrations/bulk", req, bearer(token))
	if rec.Code != http.StatusBadRequest || errCode(env) != dto.ConfirmationRequired {
		t.Fatalf("unconfirmed delete = %d %s", rec.Code, errCode(env))
	}
	if h.repo.Len() != 3 {
		t.Fatalf("unconfirmed delete removed rows")
	}

	req.Confirm = true
	rec, env = h.do(t, http.MethodPost, "/api/admin/registrations/bulk", req, bearer(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("confirmed delete = %d body = %s", rec.Code, rec.Body.String())
	}
	var res admin.Result
	_ = json.Unmarshal(env.Data, &res)
	if res.Affected != 2 || res.History == nil || h.repo.Len() != 1 {
		t.Fatalf("result = %+v rows = %d", res, h.repo.Len())
	}

	rec, env = h.do(t, http.MethodGet, "/api/admin/history", nil, bearer(token))
	var entries []model.HistoryEntry
	_ = json.Unmarshal(env.Data, &entries)
	if rec.Code != http.StatusOK || len(entries) != 1 {
		t.Errorf("history = %d %d entries", rec.Code, len(entries))
	}

	rec, _ = h.do(t, http.MethodPost, "/api/admin/history/"+res.History.ID+"/undo", nil, bearer(token))
	if rec.Code != http.StatusOK || h.repo.Len() != 3 {
		t.Errorf("undo = %d rows = %d", rec.Code, h.repo.Len())
	}
	rec, env = h.do(t, http.MethodPost, "/api/admin/history/"+res.History.ID+"/undo", nil, bearer(token))
	if rec.Code != http.StatusBadRequest || errCode(env) != dto.NotUndoable {
		t.Errorf("second undo = %d %s", rec.Code, errCode(env))
	}
}

func TestAdmin_SingleMutateAndEmail(t *testing.T) {
	h := newHarness(t)
	seedAdminRows(h)
	token := h.login(t)

	rec, _ := h.do(t, http.MethodPost, "/api/admin/registrations/a/markPaid", nil, bearer(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("markPaid = %d body = %s", rec.Code, rec.Body.String())
	}
	a, _ := h.repo.GetByID(context.Background(), "a")
	if a.PaymentStatus != model.PaymentCompleted || a.Ticket() == "" {
		t.Errorf("row a = %+v", a)
	}

	rec, env := h.do(t, http.MethodPost, "/api/admin/registrations/a/archive", nil, bearer(token))
	if rec.Code != http.StatusBadRequest || errCode(env) != dto.UnknownAction {
		t.Errorf("unknown action = %d %s", rec.Code, errCode(env))
	}

	rec, _ = h.do(t, http.MethodPost, "/api/admin/email", dto.BulkEmailRequest{IDs: []string{"a", "c"}, Subject: "Packing list", Body: "Bring layers."}, bearer(token))
	if rec.Code != http.StatusOK || len(h.mail.sent) != 1 || len(h.mail.sent[0].To) != 2 {
		t.Errorf("bulk email = %d sent = %+v", rec.Code, h.mail.sent)
	}
}

func TestAdmin_ExportCSV(t *testing.T) {
	h := newHarness(t)
	seedAdminRows(h)
	token := h.login(t)

	rec, _ := h.do(t, http.MethodGet, "/api/admin/export.csv?status=pending&sort=name&order=asc", nil, bearer(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "everest-view-trek-registrations-") {
		t.Errorf("content-disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Header().Get("X-Export-Archive") == "" || len(h.archive.names) != 1 {
		t.Errorf("archive header = %q uploads = %v", rec.Header().Get("X-Export-Archive"), h.archive.names)
	}

	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 || records[1][0] != "Asha" || records[2][0] != "Chen" {
		t.Errorf("csv = %v", records)
	}
}
