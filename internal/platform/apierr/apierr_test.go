package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
)

func TestFromErrorMapsCodes(t *testing.T) {
	cases := []struct {
		code   domainagg.ErrorCode
		status int
	}{
		{domainagg.CodeValidation, http.StatusBadRequest},
		{domainagg.CodeNotFound, http.StatusNotFound},
		{domainagg.CodeConflict, http.StatusConflict},
		{domainagg.CodePreconditionFailed, http.StatusPreconditionFailed},
		{domainagg.CodeRetryable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		err := fmt.Errorf("wrapped: %w", domainagg.NewError(tc.code, "Op", "complete previous day first", nil))
		got := FromError(err)
		if got.Status != tc.status || got.Code != string(tc.code) {
			t.Fatalf("%s: got status=%d code=%s", tc.code, got.Status, got.Code)
		}
		if got.Error() != "complete previous day first" {
			t.Fatalf("%s: message = %q", tc.code, got.Error())
		}
	}
}

func TestFromErrorHidesInternalCauses(t *testing.T) {
	for _, err := range []error{
		errors.New("pq: connection refused"),
		domainagg.NewError(domainagg.CodeInternal, "Op", "boom", errors.New("secret dsn")),
	} {
		got := FromError(err)
		if got.Status != http.StatusInternalServerError {
			t.Fatalf("status = %d", got.Status)
		}
		if got.Error() != "internal error" {
			t.Fatalf("leaked message %q", got.Error())
		}
	}
	if FromError(nil) != nil {
		t.Fatalf("nil error mapped to non-nil")
	}
}
