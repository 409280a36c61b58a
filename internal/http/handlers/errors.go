// Package handlers defines the error codes returned by the local API.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Generic codes mirror HTTP status semantics, the rest name
// a state-engine condition a UI is expected to render differently.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "insufficient_credits",
//	  "message": "no credits left"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/chatverse/internal/domain"
	"github.com/tbourn/chatverse/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation          = "validation_failed"
	ErrCodeAuthFailed          = "auth_failed"
	ErrCodeNotAuthenticated    = "not_authenticated"
	ErrCodeGateway             = "gateway_unavailable"
	ErrCodeInsufficientCredits = "insufficient_credits"
	ErrCodeNoActiveRoom        = "no_active_room"
	ErrCodeEmptyMessage        = "empty_message"
	ErrCodeSendInProgress      = "send_in_progress"
)

// failErr translates a service or gateway error into the envelope. Unknown
// errors become 500s.
func failErr(c *gin.Context, err error) {
	var (
		verr *domain.ValidationError
		aerr *domain.AuthError
		terr *domain.TransportError
	)
	switch {
	case errors.As(err, &verr):
		failWith(c, http.StatusUnprocessableEntity, ErrCodeValidation, "validation failed", verr.Problems)
	case errors.As(err, &aerr):
		fail(c, http.StatusUnauthorized, ErrCodeAuthFailed, aerr.Error())
	case errors.As(err, &terr):
		fail(c, http.StatusBadGateway, ErrCodeGateway, terr.Error())
	case errors.Is(err, services.ErrInsufficientCredits):
		fail(c, http.StatusPaymentRequired, ErrCodeInsufficientCredits, err.Error())
	case errors.Is(err, services.ErrNotAuthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeNotAuthenticated, err.Error())
	case errors.Is(err, services.ErrNoActiveRoom):
		fail(c, http.StatusConflict, ErrCodeNoActiveRoom, err.Error())
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeEmptyMessage, err.Error())
	case errors.Is(err, services.ErrRoomNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
