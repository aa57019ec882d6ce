package service

import (
	"strconv"

	"github.com/wb-go/wbf/ginext"

	"trekreg/internal/dto"
	"trekreg/internal/ticket"
)

// Probe checks that the database answers and reports how many rows it holds.
func (s *service) Probe(ctx *ginext.Context) {
	start := s.now()
	rctx := ctx.Request.Context()

	if err := s.repo.Ping(rctx); err != nil {
		s.log.Error().Err(err).Msg("database probe failed")
		dto.ServerError(ctx, dto.ProbeFailed, err.Error())
		return
	}
	rows, err := s.repo.GetAll(rctx)
	if err != nil {
		s.log.Error().Err(err).Msg("database probe query failed")
		dto.ServerError(ctx, dto.ProbeFailed, err.Error())
		return
	}

	dto.SuccessResponse(ctx, dto.ProbeResponse{
		Database:      "connected",
		Registrations: len(rows),
		Latency:       s.now().Sub(start).String(),
	})
}

func (s *service) TicketQR(ctx *ginext.Context) {
	id := ctx.Param("ticketId")
	if !ticket.Valid(id) {
		dto.BadResponseError(ctx, dto.TicketNotFound, "Ticket not found")
		return
	}
	size := ticket.DefaultSize
	if raw := ctx.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			dto.FieldIncorrectError(ctx, "size")
			return
		}
		size = n
	}

	png, err := ticket.PNG(ticket.Payload(s.app.PublicURL, id), size)
	if err != nil {
		s.log.Error().Err(err).Str("ticket_id", id).Msg("failed to render ticket code")
		dto.InternalServerError(ctx)
		return
	}
	ctx.Header("Cache-Control", "public, max-age=86400")
	ctx.Data(200, "image/png", png)
}
