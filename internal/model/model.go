package model

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

// Registration is one participant's submission. The remote row is the
// durable owner; TicketID is set only while PaymentStatus is completed.
type Registration struct {
	ID            string           `db:"id" json:"id"`
	Email         string           `db:"email" json:"email"`
	FullName      string           `db:"full_name" json:"full_name"`
	Phone         string           `db:"phone" json:"phone"`
	PaymentStatus PaymentStatus    `db:"payment_status" json:"payment_status"`
	TicketID      *string          `db:"ticket_id" json:"ticket_id"`
	Data          RegistrationForm `db:"data" json:"data"`
	RegisteredAt  time.Time        `db:"registered_at" json:"registered_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

func (r Registration) Ticket() string {
	if r.TicketID == nil {
		return ""
	}
	return *r.TicketID
}

// RegistrationPatch is a partial update. Nil fields are left untouched;
// updated_at is always bumped.
type RegistrationPatch struct {
	PaymentStatus *PaymentStatus    `json:"payment_status,omitempty"`
	TicketID      *string           `json:"ticket_id,omitempty"`
	Data          *RegistrationForm `json:"data,omitempty"`
}

func (p RegistrationPatch) Empty() bool {
	return p.PaymentStatus == nil && p.TicketID == nil && p.Data == nil
}

type EmailLog struct {
	ID        int64     `db:"id" json:"id"`
	Recipient string    `db:"recipient" json:"recipient"`
	Subject   string    `db:"subject" json:"subject"`
	Content   string    `db:"content" json:"content"`
	SentAt    time.Time `db:"sent_at" json:"sent_at"`
	Status    string    `db:"status" json:"status"`
}

type AdminSession struct {
	ID        string     `db:"id" json:"id"`
	IssuedAt  time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}
