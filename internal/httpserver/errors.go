package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/imageiq/internal/service"
	"github.com/Skotchmaster/imageiq/internal/tokens"
)

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, service.ErrAlreadyExists):
		return http.StatusConflict, "account already exists"
	case errors.Is(err, service.ErrAlreadyConfirmed):
		return http.StatusConflict, "email already confirmed"
	case errors.Is(err, service.ErrUnknownIdentity),
		errors.Is(err, service.ErrBadCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, service.ErrUnconfirmed):
		return http.StatusUnauthorized, "email not confirmed"
	case errors.Is(err, service.ErrInactive):
		return http.StatusForbidden, "account is banned"
	case errors.Is(err, service.ErrForbiddenTarget):
		return http.StatusForbidden, "operation not allowed on this user"
	case errors.Is(err, service.ErrRevokedToken),
		errors.Is(err, tokens.ErrInvalidToken),
		errors.Is(err, tokens.ErrPurposeMismatch):
		return http.StatusUnauthorized, "invalid refresh token"
	case errors.Is(err, tokens.ErrExpiredToken):
		return http.StatusUnauthorized, "token expired"
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func httpError(err error) *echo.HTTPError {
	code, msg := statusFor(err)
	return echo.NewHTTPError(code, msg).SetInternal(err)
}
