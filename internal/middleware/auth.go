package middleware

import (
	"context"
	"errors"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/imageiq/internal/cookies"
	"github.com/Skotchmaster/imageiq/internal/domain"
	"github.com/Skotchmaster/imageiq/internal/logging"
	"github.com/Skotchmaster/imageiq/internal/policy"
	"github.com/Skotchmaster/imageiq/internal/service"
	"github.com/Skotchmaster/imageiq/internal/tokens"
)

const (
	identityKey = "identity"
	tokenLookup = "header:Authorization:Bearer ,cookie:" + cookies.AccessToken
)

// IdentityResolver turns an access token into the caller's identity.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, accessToken string) (*domain.Identity, error)
}

// RequireAuth authenticates the request from a bearer header or the access
// token cookie and stores the resolved identity in the echo context.
func RequireAuth(resolver IdentityResolver, secureCookies bool) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  identityKey,
		TokenLookup: tokenLookup,
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			id, err := resolver.ResolveIdentity(c.Request().Context(), auth)
			if err != nil {
				if isAuthError(err) {
					return nil, err
				}
				return nil, echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
			}
			return id, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			l := logging.FromContext(c.Request().Context()).With("mw", "require_auth")

			var he *echo.HTTPError
			switch {
			case errors.As(err, &he):
				l.Error("auth_failed", "status", he.Code, "error", err)
				return he
			case errors.Is(err, service.ErrInactive):
				c.SetCookie(cookies.Delete(cookies.AccessToken, cookies.AccessPath, secureCookies))
				c.SetCookie(cookies.Delete(cookies.RefreshToken, cookies.RefreshPath, secureCookies))
				l.Warn("auth_failed", "status", 403, "reason", "banned")
				return echo.NewHTTPError(http.StatusForbidden, "account is banned")
			case errors.Is(err, tokens.ErrExpiredToken):
				l.Info("auth_failed", "status", 401, "reason", "expired token")
				return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
			case isAuthError(err):
				l.Warn("auth_failed", "status", 401, "reason", err.Error())
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			default:
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}
		},
	})
}

// RequireRoles must run after RequireAuth.
func RequireRoles(allowed policy.Roles) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}
			if !policy.Check(id, allowed) {
				logging.FromContext(c.Request().Context()).Warn("access_denied",
					"status", 403, "user_id", id.ID, "role", id.Role, "path", c.Path())
				return echo.NewHTTPError(http.StatusForbidden, "operation not allowed")
			}
			return next(c)
		}
	}
}

func IdentityFrom(c echo.Context) (*domain.Identity, bool) {
	id, ok := c.Get(identityKey).(*domain.Identity)
	return id, ok && id != nil
}

// SetIdentity is used by handlers tests that skip token resolution.
func SetIdentity(c echo.Context, id *domain.Identity) {
	c.Set(identityKey, id)
}

func isAuthError(err error) bool {
	return errors.Is(err, tokens.ErrInvalidToken) ||
		errors.Is(err, tokens.ErrExpiredToken) ||
		errors.Is(err, tokens.ErrPurposeMismatch) ||
		errors.Is(err, service.ErrUnknownIdentity) ||
		errors.Is(err, service.ErrInactive)
}
