package dto

import (
	"encoding/json"
	"errors"
	"time"

	"trekreg/internal/model"
)

type UpdateRegistrationRequest struct {
	ID            string                  `json:"id"`
	PaymentStatus *model.PaymentStatus    `json:"payment_status,omitempty"`
	TicketID      *string                 `json:"ticket_id,omitempty"`
	Data          *model.RegistrationForm `json:"data,omitempty"`
}

func (r UpdateRegistrationRequest) Patch() model.RegistrationPatch {
	return model.RegistrationPatch{
		PaymentStatus: r.PaymentStatus,
		TicketID:      r.TicketID,
		Data:          r.Data,
	}
}

// Recipients accepts either a single address or a list of addresses.
type Recipients []string

func (r *Recipients) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*r = nil
		} else {
			*r = Recipients{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("to must be a string or a list of strings")
	}
	*r = many
	return nil
}

type SendEmailRequest struct {
	To      Recipients `json:"to"`
	Subject string     `json:"subject"`
	Text    string     `json:"text"`
	HTML    string     `json:"html"`
}

type SendEmailResponse struct {
	MessageID string    `json:"message_id"`
	Accepted  []string  `json:"accepted"`
	SentAt    time.Time `json:"sent_at"`
}

type ProbeResponse struct {
	Database      string `json:"database"`
	Registrations int    `json:"registrations"`
	Latency       string `json:"latency"`
}

type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

type BulkActionRequest struct {
	IDs     []string `json:"ids" validate:"required,min=1"`
	Action  string   `json:"action" validate:"required"`
	Confirm bool     `json:"confirm"`
}

type BulkEmailRequest struct {
	IDs     []string `json:"ids" validate:"required,min=1"`
	Subject string   `json:"subject" validate:"required"`
	Body    string   `json:"body" validate:"required"`
}
