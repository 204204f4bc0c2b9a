package dto

import (
	"errors"
	"net/http"

	"github.com/retail/ledger/internal/domain/shared"
)

// Transport-level error codes. Domain errors keep their own codes.
const (
	ErrCodeInternal     = "ERR_INTERNAL"
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeNotFound     = "ERR_NOT_FOUND"
	ErrCodeRateLimited  = "ERR_RATE_LIMITED"
	ErrCodeTooLarge     = "ERR_REQUEST_TOO_LARGE"
)

// kindStatus maps a domain error kind to its HTTP status
var kindStatus = map[shared.ErrorKind]int{
	shared.KindValidation:   http.StatusBadRequest,
	shared.KindNotFound:     http.StatusNotFound,
	shared.KindConflict:     http.StatusConflict,
	shared.KindBusinessRule: http.StatusUnprocessableEntity,
}

// StatusForKind returns the HTTP status of a domain error kind, 500 for unknown kinds
func StatusForKind(kind shared.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError converts any error into a status and error body. Errors that are not
// domain errors never leak their message.
func FromError(err error, requestID string) (int, Response) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return StatusForKind(domainErr.Kind), NewErrorResponseWithRequestID(domainErr.Code, domainErr.Message, requestID)
	}
	return http.StatusInternalServerError, NewErrorResponseWithRequestID(ErrCodeInternal, "An unexpected error occurred", requestID)
}
