package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trekreg/internal/dto"
)

type Publisher interface {
	Publish(ctx context.Context, message []byte, delay time.Duration) error
}

// Reminders schedules one payment reminder per new registration.
type Reminders struct {
	pub   Publisher
	after time.Duration
	now   func() time.Time
}

func NewReminders(pub Publisher, after time.Duration) *Reminders {
	return &Reminders{pub: pub, after: after, now: time.Now}
}

func (r *Reminders) PublishReminder(ctx context.Context, registrationID string) error {
	msg := dto.PaymentReminderMessage{
		RegistrationID: registrationID,
		DueAt:          r.now().Add(r.after),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder: %w", err)
	}
	return r.pub.Publish(ctx, payload, r.after)
}
