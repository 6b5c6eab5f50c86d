package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"depot/internal/server/auth"
	"depot/internal/server/config"
	"depot/internal/server/metrics"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, tokens *auth.TokenService, m *metrics.Metrics, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = httpErrorHandler

	// Global middleware
	e.Use(RequestLogger(m))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	authenticated := Authenticate(tokens, true)

	// Health & metrics
	e.GET("/health", handler.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.GET("/stats", handler.HandleStats, authenticated, RequireAdmin())

	// Accounts
	e.POST("/login", handler.HandleLogin, limiter.Middleware())
	e.POST("/register", handler.HandleRegister, authenticated, RequireAdmin())
	e.POST("/change-password", handler.HandleChangePassword, authenticated)

	// Files
	e.POST("/upload", handler.HandleUpload, limiter.Middleware(), Authenticate(tokens, cfg.UploadRequireAuth))
	e.GET("/download/:filename", handler.HandleDownload, authenticated)

	return e
}

// httpErrorHandler renders echo's own errors (unknown route, wrong method,
// panics caught by Recover) with the uniform error body.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := http.StatusText(status)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		msg = http.StatusText(status)
		if s, ok := he.Message.(string); ok && status < http.StatusInternalServerError {
			msg = s
		}
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(status)
		return
	}
	errorJSON(c, status, msg)
}
