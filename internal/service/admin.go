package service

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/wb-go/wbf/ginext"

	"trekreg/internal/admin"
	"trekreg/internal/auth"
	"trekreg/internal/dto"
	"trekreg/internal/model"
	"trekreg/internal/repo"
	"trekreg/pkg/validator"
)

func (s *service) Login(ctx *ginext.Context) {
	var req dto.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	token, err := s.auth.Login(ctx.Request.Context(), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			dto.UnauthorizedError(ctx, "Wrong password")
		case errors.Is(err, auth.ErrNotConfigured):
			dto.UnauthorizedError(ctx, "Admin access is not configured")
		default:
			s.log.Error().Err(err).Msg("failed to issue admin session")
			dto.InternalServerError(ctx)
		}
		return
	}
	dto.SuccessResponse(ctx, token)
}

func (s *service) Logout(ctx *ginext.Context) {
	token := auth.BearerToken(ctx.GetHeader("Authorization"))
	if err := s.auth.Logout(ctx.Request.Context(), token); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrSessionRevoked) {
			dto.UnauthorizedError(ctx, "Session is not valid")
			return
		}
		s.log.Error().Err(err).Msg("failed to revoke admin session")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, map[string]bool{"logged_out": true})
}

// bindQuery reads q, status, sort and order into an admin.Query.
func bindQuery(ctx *ginext.Context) (admin.Query, bool) {
	var q admin.Query
	if err := ctx.ShouldBindQuery(&q); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid query")
		return q, false
	}
	if q.Status != "" && !q.Status.Valid() {
		dto.FieldIncorrectError(ctx, "status")
		return q, false
	}
	if q.SortBy != "" && !q.SortBy.Valid() {
		dto.FieldIncorrectError(ctx, "sort")
		return q, false
	}
	q.ParseOrder(ctx.Query("order"))
	return q, true
}

func (s *service) AdminList(ctx *ginext.Context) {
	q, ok := bindQuery(ctx)
	if !ok {
		return
	}
	view, err := s.console.List(ctx.Request.Context(), q)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load admin view")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, view)
}

func (s *service) AdminBulk(ctx *ginext.Context) {
	var req dto.BulkActionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}
	action, err := admin.ParseAction(req.Action)
	if err != nil {
		s.consoleError(ctx, err)
		return
	}

	res, err := s.console.BulkMutate(ctx.Request.Context(), req.IDs, action, req.Confirm)
	if err != nil {
		s.consoleError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, res)
}

func (s *service) AdminSingle(ctx *ginext.Context) {
	action, err := admin.ParseAction(ctx.Param("action"))
	if err != nil {
		s.consoleError(ctx, err)
		return
	}
	confirmed, _ := strconv.ParseBool(ctx.Query("confirm"))

	res, err := s.console.SingleMutate(ctx.Request.Context(), ctx.Param("id"), action, confirmed)
	if err != nil {
		s.consoleError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, res)
}

func (s *service) AdminEmail(ctx *ginext.Context) {
	var req dto.BulkEmailRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	res, err := s.console.BulkEmail(ctx.Request.Context(), req.IDs, req.Subject, req.Body)
	if err != nil {
		s.consoleError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, res)
}

// AdminExport streams the current view as CSV. When an archive is
// configured the same bytes are uploaded first; an upload failure is only
// logged.
func (s *service) AdminExport(ctx *ginext.Context) {
	q, ok := bindQuery(ctx)
	if !ok {
		return
	}
	rctx := ctx.Request.Context()
	view, err := s.console.List(rctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load rows for export")
		dto.InternalServerError(ctx)
		return
	}

	var buf bytes.Buffer
	if err := admin.WriteCSV(&buf, view.Rows, s.app.Location); err != nil {
		s.log.Error().Err(err).Msg("failed to write csv export")
		dto.InternalServerError(ctx)
		return
	}
	name := admin.ExportFileName(s.app.EventName, s.now().In(s.app.Location))

	if s.archive != nil {
		location, err := s.archive.Upload(rctx, name, "text/csv", buf.Bytes())
		if err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("failed to archive csv export")
		} else {
			ctx.Header("X-Export-Archive", location)
		}
	}

	s.log.Info().Int("count", len(view.Rows)).Str("file", name).Msg("registrations exported")
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	ctx.Data(200, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *service) AdminHistory(ctx *ginext.Context) {
	limit := admin.DefaultHistoryLimit
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			dto.FieldIncorrectError(ctx, "limit")
			return
		}
		limit = n
	}

	entries, err := s.console.History(ctx.Request.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list action history")
		dto.InternalServerError(ctx)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	dto.SuccessResponse(ctx, entries)
}

func (s *service) AdminUndo(ctx *ginext.Context) {
	entry, err := s.console.Undo(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		s.consoleError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, entry)
}

func (s *service) consoleError(ctx *ginext.Context, err error) {
	switch {
	case errors.Is(err, admin.ErrUnknownAction):
		dto.BadResponseError(ctx, dto.UnknownAction, err.Error())
	case errors.Is(err, admin.ErrEmptySelection):
		dto.BadResponseError(ctx, dto.EmptySelection, "Select at least one registration")
	case errors.Is(err, admin.ErrConfirmationRequired):
		dto.BadResponseError(ctx, dto.ConfirmationRequired, "Deleting registrations must be confirmed")
	case errors.Is(err, admin.ErrEmptyMessage):
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Subject and body are required")
	case errors.Is(err, admin.ErrNotUndoable), errors.Is(err, admin.ErrAlreadyUndone):
		dto.BadResponseError(ctx, dto.NotUndoable, err.Error())
	case errors.Is(err, repo.ErrRegistrationNotFound):
		dto.RegistrationNotFoundError(ctx)
	case errors.Is(err, repo.ErrHistoryNotFound):
		dto.BadResponseError(ctx, dto.HistoryNotFound, "History entry not found")
	default:
		s.log.Error().Err(err).Msg("admin action failed")
		dto.InternalServerError(ctx)
	}
}
