package apierr

import (
	"errors"
	"fmt"
	"net/http"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

var statusByCode = map[domainagg.ErrorCode]int{
	domainagg.CodeValidation:         http.StatusBadRequest,
	domainagg.CodeNotFound:           http.StatusNotFound,
	domainagg.CodeConflict:           http.StatusConflict,
	domainagg.CodePreconditionFailed: http.StatusPreconditionFailed,
	domainagg.CodeInvariantViolation: http.StatusConflict,
	domainagg.CodeRetryable:          http.StatusServiceUnavailable,
	domainagg.CodeInternal:           http.StatusInternalServerError,
}

// FromError maps engine errors onto HTTP semantics. Internal causes are
// replaced with a generic message so they never reach the client.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	code := domainagg.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		return New(http.StatusInternalServerError, string(domainagg.CodeInternal), errors.New("internal error"))
	}
	if code == domainagg.CodeInternal {
		return New(status, string(code), errors.New("internal error"))
	}
	return New(status, string(code), errors.New(domainagg.MessageOf(err)))
}
