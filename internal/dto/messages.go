package dto

import "time"

// PaymentReminderMessage is published on registration and delivered once
// the reminder delay has passed.
type PaymentReminderMessage struct {
	RegistrationID string    `json:"registration_id"`
	DueAt          time.Time `json:"due_at"`
}
