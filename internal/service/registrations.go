package service

import (
	"errors"
	"strings"

	"github.com/wb-go/wbf/ginext"

	"trekreg/internal/dto"
	"trekreg/internal/mailer"
	"trekreg/internal/model"
	"trekreg/internal/repo"
	"trekreg/internal/ticket"
	"trekreg/pkg/validator"
)

func (s *service) ListRegistrations(ctx *ginext.Context) {
	rows, err := s.repo.GetAll(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list registrations")
		dto.InternalServerError(ctx)
		return
	}
	if rows == nil {
		rows = []model.Registration{}
	}
	dto.SuccessResponse(ctx, rows)
}

func (s *service) GetRegistration(ctx *ginext.Context) {
	reg, err := s.repo.GetByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			dto.RegistrationNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("registration_id", ctx.Param("id")).Msg("failed to get registration")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, reg)
}

func (s *service) CreateRegistration(ctx *ginext.Context) {
	var form model.RegistrationForm
	if err := ctx.ShouldBindJSON(&form); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create registration request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if strings.TrimSpace(form.Email) == "" {
		dto.FieldIncorrectError(ctx, "email")
		return
	}
	if strings.TrimSpace(form.FullName) == "" {
		dto.FieldIncorrectError(ctx, "full_name")
		return
	}
	if fields := validator.SuppliedFields(ctx.Request.Context(), form); fields != nil {
		dto.ValidationError(ctx, fields)
		return
	}

	reg, err := s.repo.Create(ctx.Request.Context(), form)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			dto.RegistrationDuplicateError(ctx)
			return
		}
		s.log.Error().Err(err).Str("email", form.Email).Msg("failed to create registration")
		dto.InternalServerError(ctx)
		return
	}
	s.log.Info().Str("registration_id", reg.ID).Msg("registration created")

	if s.reminders != nil {
		if err := s.reminders.PublishReminder(ctx.Request.Context(), reg.ID); err != nil {
			s.log.Warn().Err(err).Str("registration_id", reg.ID).Msg("failed to schedule payment reminder")
		}
	}

	dto.SuccessResponse(ctx, reg)
}

// UpdateRegistration merges the given fields into one row. Marking a row
// completed without a ticket id issues one, and the participant gets the
// ticket by email the first time the row becomes completed.
func (s *service) UpdateRegistration(ctx *ginext.Context) {
	var req dto.UpdateRegistrationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if req.ID == "" {
		dto.FieldIncorrectError(ctx, "id")
		return
	}
	if req.PaymentStatus != nil && !req.PaymentStatus.Valid() {
		dto.FieldIncorrectError(ctx, "payment_status")
		return
	}
	if req.TicketID != nil && !ticket.Valid(*req.TicketID) {
		dto.FieldBadFormatError(ctx, "ticket_id")
		return
	}

	rctx := ctx.Request.Context()
	before, err := s.repo.GetByID(rctx, req.ID)
	if err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			dto.RegistrationNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("registration_id", req.ID).Msg("failed to load registration for update")
		dto.InternalServerError(ctx)
		return
	}

	if req.Data != nil && strings.TrimSpace(req.Data.Email) != "" &&
		repo.NormalizeEmail(req.Data.Email) != repo.NormalizeEmail(before.Email) {
		dto.FieldIncorrectError(ctx, "data.email")
		return
	}

	patch := req.Patch()
	if patch.PaymentStatus != nil && *patch.PaymentStatus == model.PaymentCompleted && patch.TicketID == nil {
		id := before.Ticket()
		if id == "" {
			id = ticket.NewID(s.now())
		}
		patch.TicketID = &id
	}

	reg, err := s.repo.Update(rctx, req.ID, patch)
	if err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			dto.RegistrationNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("registration_id", req.ID).Msg("failed to update registration")
		dto.InternalServerError(ctx)
		return
	}
	s.log.Info().
		Str("registration_id", reg.ID).
		Str("payment_status", string(reg.PaymentStatus)).
		Msg("registration updated")

	if before.PaymentStatus != model.PaymentCompleted && reg.PaymentStatus == model.PaymentCompleted {
		s.sendTicket(ctx, reg)
	}

	dto.SuccessResponse(ctx, reg)
}

func (s *service) sendTicket(ctx *ginext.Context, reg *model.Registration) {
	qr := strings.TrimRight(s.app.PublicURL, "/") + "/api/tickets/" + reg.Ticket() + "/qr.png"
	if _, err := s.mail.Send(ctx.Request.Context(), mailer.TicketMessage(s.app.EventName, *reg, qr)); err != nil {
		s.log.Warn().Err(err).Str("registration_id", reg.ID).Msg("failed to send ticket email")
	}
}
