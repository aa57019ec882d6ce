package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"trekreg/internal/dto"
	"trekreg/internal/mailer"
	"trekreg/internal/model"
	"trekreg/internal/repo"
)

func writeEnvelope(w http.ResponseWriter, status int, resp dto.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	log := zerolog.Nop()
	return New(ts.URL+"/", &log).WithHTTPClient(ts.Client())
}

func TestClient_CreateRegistration(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/registrations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var form model.RegistrationForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		writeEnvelope(w, http.StatusOK, dto.Response{Status: dto.StatusOK, Data: model.Registration{
			ID:            "r1",
			Email:         form.Email,
			FullName:      form.FullName,
			PaymentStatus: model.PaymentPending,
		}})
	})

	reg, err := c.CreateRegistration(context.Background(), model.RegistrationForm{FullName: "Asha", Email: "asha@example.com"})
	if err != nil {
		t.Fatalf("CreateRegistration() error = %v", err)
	}
	if reg.ID != "r1" || reg.PaymentStatus != model.PaymentPending || reg.Email != "asha@example.com" {
		t.Errorf("CreateRegistration() = %+v", reg)
	}
}

func TestClient_UpdateRegistration(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req dto.UpdateRegistrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if r.Method != http.MethodPut || req.ID != "r1" || req.PaymentStatus == nil || *req.PaymentStatus != model.PaymentCompleted {
			t.Errorf("unexpected request %s %+v", r.Method, req)
		}
		writeEnvelope(w, http.StatusOK, dto.Response{Status: dto.StatusOK, Data: model.Registration{
			ID:            req.ID,
			PaymentStatus: *req.PaymentStatus,
			TicketID:      req.TicketID,
		}})
	})

	status := model.PaymentCompleted
	tk := "TKT-1-ABCDEF"
	reg, err := c.UpdateRegistration(context.Background(), "r1", model.RegistrationPatch{PaymentStatus: &status, TicketID: &tk})
	if err != nil {
		t.Fatalf("UpdateRegistration() error = %v", err)
	}
	if reg.Ticket() != tk {
		t.Errorf("ticket = %q, want %q", reg.Ticket(), tk)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"not found", http.StatusBadRequest, dto.RegistrationNotFound, repo.ErrRegistrationNotFound},
		{"duplicate", http.StatusBadRequest, dto.RegistrationDuplicate, repo.ErrDuplicateEmail},
		{"mail not configured", http.StatusInternalServerError, dto.EmailNotConfigured, mailer.ErrNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, tt.status, dto.Response{Status: dto.StatusError, Error: &dto.Error{Code: tt.code}})
			})
			_, err := c.GetRegistration(context.Background(), "r1")
			if !errors.Is(err, tt.want) {
				t.Errorf("GetRegistration() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, dto.Response{Status: dto.StatusError, Error: &dto.Error{
			Code:   dto.ValidationFailed,
			Desc:   "Some fields are invalid",
			Fields: map[string]string{"email": "Invalid format"},
		}})
	})

	_, err := c.CreateRegistration(context.Background(), model.RegistrationForm{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("CreateRegistration() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Fields["email"] == "" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestClient_SendEmail(t *testing.T) {
	var got dto.SendEmailRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/send-email" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		writeEnvelope(w, http.StatusOK, dto.Response{Status: dto.StatusOK, Data: dto.SendEmailResponse{MessageID: "<1@test>"}})
	})

	err := c.SendEmail(context.Background(), mailer.Message{To: []string{"a@example.com", "b@example.com"}, Subject: "Hi", Text: "Body"})
	if err != nil {
		t.Fatalf("SendEmail() error = %v", err)
	}
	if len(got.To) != 2 || got.Subject != "Hi" {
		t.Errorf("request = %+v", got)
	}
}

func TestClient_NonJSONResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.GetRegistration(context.Background(), "r1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("GetRegistration() error = %v", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	log := zerolog.Nop()
	c := New("http://localhost:8080/", &log)
	if c.http.Timeout != defaultTimeout || c.baseURL != "http://localhost:8080" {
		t.Errorf("client = %v %q", c.http.Timeout, c.baseURL)
	}

	hc := &http.Client{}
	if c.WithHTTPClient(hc).http != hc {
		t.Error("WithHTTPClient() did not swap the transport")
	}
}
