package dto

import (
	"github.com/wb-go/wbf/ginext"
)

const (
	StatusOK    = "ok"
	StatusError = "error"

	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ValidationFailed   = "VALIDATION_FAILED"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	RegistrationNotFound  = "REGISTRATION_NOT_FOUND"
	RegistrationDuplicate = "REGISTRATION_DUPLICATE"
	TicketNotFound        = "TICKET_NOT_FOUND"
	HistoryNotFound       = "HISTORY_NOT_FOUND"
	ConfirmationRequired  = "CONFIRMATION_REQUIRED"
	UnknownAction         = "UNKNOWN_ACTION"
	EmptySelection        = "EMPTY_SELECTION"
	NotUndoable           = "NOT_UNDOABLE"
	Unauthorized          = "UNAUTHORIZED"
	EmailNotConfigured    = "EMAIL_NOT_CONFIGURED"
	EmailFailed           = "EMAIL_FAILED"
	ProbeFailed           = "PROBE_FAILED"
)

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	// Fields holds per-field messages for VALIDATION_FAILED.
	Fields map[string]string `json:"fields,omitempty"`
}

func errorResponse(c *ginext.Context, status int, e *Error) {
	c.AbortWithStatusJSON(status, Response{Status: StatusError, Error: e})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	errorResponse(c, 400, &Error{Code: code, Desc: desc})
}

func UnauthorizedError(c *ginext.Context, desc string) {
	errorResponse(c, 401, &Error{Code: Unauthorized, Desc: desc})
}

func InternalServerError(c *ginext.Context) {
	errorResponse(c, 500, &Error{Code: ServiceUnavailable, Desc: InternalError})
}

// ServerError answers 500 with a specific code and detail, for endpoints
// whose callers need to know what failed.
func ServerError(c *ginext.Context, code, desc string) {
	errorResponse(c, 500, &Error{Code: code, Desc: desc})
}

func ValidationError(c *ginext.Context, fields map[string]string) {
	errorResponse(c, 400, &Error{Code: ValidationFailed, Desc: "Some fields are invalid", Fields: fields})
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func FieldIncorrectError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldIncorrect, "Field '"+fieldName+"' is incorrect")
}

func RegistrationNotFoundError(c *ginext.Context) {
	BadResponseError(c, RegistrationNotFound, "Registration not found")
}

func RegistrationDuplicateError(c *ginext.Context) {
	BadResponseError(c, RegistrationDuplicate, "This email is already registered for the trek")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: StatusOK,
		Data:   data,
	})
}
