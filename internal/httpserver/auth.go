package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/imageiq/internal/cookies"
	"github.com/Skotchmaster/imageiq/internal/logging"
	"github.com/Skotchmaster/imageiq/internal/service"
	"github.com/Skotchmaster/imageiq/internal/tokens"
)

type AuthHTTP struct {
	Sessions     *service.SessionManager
	Accounts     *service.AccountService
	CookieSecure bool
}

type signupRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email"    form:"email"`
	Password string `json:"password" form:"password"`
}

type loginRequest struct {
	Email    string `json:"email"    form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type emailRequest struct {
	Email string `json:"email" form:"email"`
}

type passwordRequest struct {
	Password string `json:"password" form:"password"`
}

func (h *AuthHTTP) Signup(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_signup")

	var req signupRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("signup_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	id, err := h.Accounts.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"user":   id,
		"detail": "user created, check your email for confirmation",
	})
}

// Login also accepts the email in a "username" field for OAuth2 password-form clients.
func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	email := req.Email
	if email == "" {
		email = req.Username
	}

	pair, err := h.Sessions.Login(ctx, email, req.Password)
	if err != nil {
		return httpError(err)
	}
	h.setTokenCookies(c, pair)
	return c.JSON(http.StatusOK, pair)
}

func (h *AuthHTTP) RefreshToken(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		token = cookieValue(c, cookies.RefreshToken)
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
	}

	pair, err := h.Sessions.Refresh(c.Request().Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrRevokedToken) || errors.Is(err, service.ErrInactive) {
			h.clearTokenCookies(c)
		}
		return httpError(err)
	}
	h.setTokenCookies(c, pair)
	return c.JSON(http.StatusOK, pair)
}

// Logout accepts any token of the session: bearer header first, then cookies.
func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	token := bearerToken(c)
	if token == "" {
		token = cookieValue(c, cookies.RefreshToken)
	}
	if token == "" {
		token = cookieValue(c, cookies.AccessToken)
	}

	h.clearTokenCookies(c)
	if token != "" {
		if err := h.Sessions.Logout(ctx, token); err != nil {
			l.Error("logout_failed", "status", 500, "reason", "cannot revoke session", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "logout failed").SetInternal(err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "logged out"})
}

func (h *AuthHTTP) ConfirmEmail(c echo.Context) error {
	err := h.Accounts.ConfirmEmail(c.Request().Context(), c.Param("token"))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"detail": "email confirmed"})
	case errors.Is(err, service.ErrAlreadyConfirmed):
		return c.JSON(http.StatusOK, echo.Map{"detail": "your email is already confirmed"})
	case errors.Is(err, service.ErrUnknownIdentity),
		errors.Is(err, tokens.ErrInvalidToken),
		errors.Is(err, tokens.ErrExpiredToken),
		errors.Is(err, tokens.ErrPurposeMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, "verification error").SetInternal(err)
	default:
		return httpError(err)
	}
}

// RequestEmail answers the same way for unknown addresses.
func (h *AuthHTTP) RequestEmail(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	err := h.Accounts.RequestConfirmation(c.Request().Context(), req.Email)
	switch {
	case err == nil, errors.Is(err, service.ErrUnknownIdentity):
		return c.JSON(http.StatusOK, echo.Map{"detail": "check your email for confirmation"})
	case errors.Is(err, service.ErrAlreadyConfirmed):
		return c.JSON(http.StatusOK, echo.Map{"detail": "your email is already confirmed"})
	default:
		return httpError(err)
	}
}

// RequestPasswordReset answers the same way whether or not a mail goes out.
func (h *AuthHTTP) RequestPasswordReset(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	err := h.Accounts.RequestPasswordReset(c.Request().Context(), req.Email)
	switch {
	case err == nil,
		errors.Is(err, service.ErrUnknownIdentity),
		errors.Is(err, service.ErrUnconfirmed),
		errors.Is(err, service.ErrInactive):
		return c.JSON(http.StatusOK, echo.Map{"detail": "if the account exists, a reset link was sent"})
	default:
		return httpError(err)
	}
}

func (h *AuthHTTP) ResetPassword(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	err := h.Accounts.ResetPassword(c.Request().Context(), c.Param("token"), req.Password)
	switch {
	case err == nil:
		h.clearTokenCookies(c)
		return c.JSON(http.StatusOK, echo.Map{"detail": "password updated, please log in"})
	case errors.Is(err, service.ErrRevokedToken),
		errors.Is(err, service.ErrUnknownIdentity),
		errors.Is(err, tokens.ErrInvalidToken),
		errors.Is(err, tokens.ErrExpiredToken),
		errors.Is(err, tokens.ErrPurposeMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid or expired reset link").SetInternal(err)
	default:
		return httpError(err)
	}
}

func (h *AuthHTTP) setTokenCookies(c echo.Context, pair *service.TokenPair) {
	c.SetCookie(cookies.Create(cookies.AccessToken, pair.AccessToken, cookies.AccessPath, pair.AccessExpiresAt, h.CookieSecure))
	c.SetCookie(cookies.Create(cookies.RefreshToken, pair.RefreshToken, cookies.RefreshPath, pair.RefreshExpiresAt, h.CookieSecure))
}

func (h *AuthHTTP) clearTokenCookies(c echo.Context) {
	c.SetCookie(cookies.Delete(cookies.AccessToken, cookies.AccessPath, h.CookieSecure))
	c.SetCookie(cookies.Delete(cookies.RefreshToken, cookies.RefreshPath, h.CookieSecure))
}

func bearerToken(c echo.Context) string {
	const prefix = "Bearer "
	v := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(v) > len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
		return strings.TrimSpace(v[len(prefix):])
	}
	return ""
}

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
