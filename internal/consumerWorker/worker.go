package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"trekreg/internal/dto"
	"trekreg/internal/mailer"
	"trekreg/internal/model"
	"trekreg/internal/repo"
)

type Consumer interface {
	Consume(handler func([]byte) error) error
}

type Store interface {
	GetByID(ctx context.Context, id string) (*model.Registration, error)
}

type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) (mailer.Receipt, error)
}

// Reader consumes payment reminders and emails participants whose
// registration is still pending when the reminder comes due.
type Reader struct {
	consumer  Consumer
	repo      Store
	mail      Mailer
	eventName string
	log       *zerolog.Logger
	done      chan struct{}
	cancel    context.CancelFunc
}

func NewReader(consumer Consumer, store Store, mail Mailer, eventName string, log *zerolog.Logger) *Reader {
	return &Reader{
		consumer:  consumer,
		repo:      store,
		mail:      mail,
		eventName: eventName,
		log:       log,
		done:      make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.log.Info().Msg("payment reminder reader started")

	go func() {
		defer close(r.done)

		if err := r.consumer.Consume(func(body []byte) error {
			return r.handle(cctx, body)
		}); err != nil {
			r.log.Error().Err(err).Msg("failed to start consuming reminders")
			return
		}

		<-cctx.Done()
		r.log.Info().Msg("payment reminder reader stopped")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// handle returns an error only for failures worth a redelivery.
func (r *Reader) handle(ctx context.Context, body []byte) error {
	var msg dto.PaymentReminderMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.RegistrationID == "" {
		r.log.Error().Err(err).Str("body", string(body)).Msg("dropping malformed reminder")
		return nil
	}

	reg, err := r.repo.GetByID(ctx, msg.RegistrationID)
	if err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			r.log.Info().Str("registration_id", msg.RegistrationID).Msg("registration was deleted, skipping reminder")
			return nil
		}
		r.log.Error().Err(err).Str("registration_id", msg.RegistrationID).Msg("failed to load registration for reminder")
		return err
	}

	if reg.PaymentStatus != model.PaymentPending {
		r.log.Info().
			Str("registration_id", reg.ID).
			Str("payment_status", string(reg.PaymentStatus)).
			Msg("payment no longer pending, skipping reminder")
		return nil
	}

	if _, err := r.mail.Send(ctx, mailer.ReminderMessage(r.eventName, *reg)); err != nil {
		r.log.Warn().Err(err).Str("registration_id", reg.ID).Msg("failed to send payment reminder")
		return nil
	}
	r.log.Info().Str("registration_id", reg.ID).Str("email", reg.Email).Msg("payment reminder sent")
	return nil
}
