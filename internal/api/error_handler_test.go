package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cliptube/account-service/internal/core/domain"
)

func render(t *testing.T, err error) (int, errorResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	NewHTTPErrorHandler(zerolog.Nop())(err, c)

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return rec.Code, resp
}

func TestHTTPErrorHandler_DomainErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"missing fields", domain.ErrMissingFields, http.StatusBadRequest, "all fields are required"},
		{"incorrect password", domain.ErrIncorrectPassword, http.StatusBadRequest, "incorrect password"},
		{"upload failed", domain.ErrUploadFailed, http.StatusBadRequest, "error while uploading profile picture"},
		{"invalid credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid password"},
		{"invalid token", domain.ErrInvalidToken, http.StatusUnauthorized, "invalid token"},
		{"replayed token", domain.ErrTokenReplayed, http.StatusUnauthorized, "refresh token is expired or used"},
		{"user not found", domain.ErrUserNotFound, http.StatusNotFound, "user does not exist"},
		{"user exists", domain.ErrUserExists, http.StatusConflict, "user already exists"},
		{"throttled", domain.ErrTooManyAttempts, http.StatusTooManyRequests, "too many failed login attempts"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := render(t, tc.err)
			if code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, code)
			}
			if resp.Success {
				t.Fatalf("error envelope must have success=false")
			}
			if resp.Message != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, resp.Message)
			}
		})
	}
}

func TestHTTPErrorHandler_WrappedDomainError(t *testing.T) {
	wrapped := errors.Join(errors.New("post-create fetch"), domain.ErrUserNotFound)
	code, _ := render(t, wrapped)
	if code != http.StatusNotFound {
		t.Fatalf("wrapped domain errors must still map, got %d", code)
	}
}

func TestHTTPErrorHandler_EchoHTTPError(t *testing.T) {
	code, resp := render(t, echo.NewHTTPError(http.StatusUnauthorized, "token missing"))
	if code != http.StatusUnauthorized || resp.Message != "token missing" {
		t.Fatalf("echo errors must pass through, got %d %q", code, resp.Message)
	}
}

func TestHTTPErrorHandler_UnknownError(t *testing.T) {
	code, resp := render(t, errors.New("mongo: connection reset"))
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if resp.Message != "internal server error" {
		t.Fatalf("internal causes must not leak, got %q", resp.Message)
	}
}
