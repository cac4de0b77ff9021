package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/imageiq/internal/middleware"
	loggingmw "github.com/Skotchmaster/imageiq/internal/middleware/logging"
	"github.com/Skotchmaster/imageiq/internal/policy"
	"github.com/Skotchmaster/imageiq/internal/service"
)

type Deps struct {
	Sessions *service.SessionManager
	Accounts *service.AccountService
	Logger   *slog.Logger

	CookieSecure   bool
	AuthRatePerMin int
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

func New(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover(), echomw.RequestID(), loggingmw.RequestLogger(d.Logger))

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "not ready").SetInternal(err)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	ah := &AuthHTTP{Sessions: d.Sessions, Accounts: d.Accounts, CookieSecure: d.CookieSecure}
	uh := &UsersHTTP{Accounts: d.Accounts}

	auth := e.Group("/api/auth")
	if d.AuthRatePerMin > 0 {
		auth.Use(rateLimiter(d.AuthRatePerMin))
	}
	auth.POST("/signup", ah.Signup)
	auth.POST("/login", ah.Login)
	auth.GET("/refresh_token", ah.RefreshToken)
	auth.POST("/logout", ah.Logout)
	auth.GET("/confirmed_email/:token", ah.ConfirmEmail)
	auth.POST("/request_email", ah.RequestEmail)
	auth.POST("/reset_password", ah.RequestPasswordReset)
	auth.POST("/reset_password/:token", ah.ResetPassword)

	users := e.Group("/api/users", middleware.RequireAuth(d.Sessions, d.CookieSecure))
	users.GET("/me", uh.Me, middleware.RequireRoles(policy.AllRoles))
	users.GET("", uh.List, middleware.RequireRoles(policy.AdminOnly))
	users.PATCH("/:id/role", uh.ChangeRole, middleware.RequireRoles(policy.AdminOnly))
	users.PATCH("/:id/ban", uh.SetActive, middleware.RequireRoles(policy.AdminOnly))
}

func rateLimiter(perMin int) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMin) / 60),
		Burst:     perMin,
		ExpiresIn: 3 * time.Minute,
	})
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
		},
	})
}
