package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"depot/internal/server/auth"
	"depot/internal/server/database"
	"depot/internal/server/metrics"
	"depot/internal/server/service"
)

// HealthChecker reports database connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsSource provides aggregate server statistics.
type StatsSource interface {
	GetStats(ctx context.Context) (*database.Stats, error)
}

// Handler contains the HTTP handlers for the depot API.
type Handler struct {
	gateway        *service.AuthGateway
	transfer       *service.FileTransferService
	db             HealthChecker
	stats          StatsSource
	metrics        *metrics.Metrics
	maxUploadBytes int64
}

// NewHandler creates a new handler. maxUploadBytes of 0 disables the body limit.
func NewHandler(
	gateway *service.AuthGateway,
	transfer *service.FileTransferService,
	db HealthChecker,
	stats StatsSource,
	m *metrics.Metrics,
	maxUploadBytes int64,
) *Handler {
	return &Handler{
		gateway:        gateway,
		transfer:       transfer,
		db:             db,
		stats:          stats,
		metrics:        m,
		maxUploadBytes: maxUploadBytes,
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

type changePasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// HandleLogin handles POST /login.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := h.gateway.Login(c.Request().Context(), req.Username, req.Password)
	switch {
	case err == nil:
		h.metrics.AuthAttempt(metrics.OutcomeSuccess)
	case errors.Is(err, service.ErrUnauthenticated):
		h.metrics.AuthAttempt(metrics.OutcomeFailure)
		return errorJSON(c, http.StatusUnauthorized, "invalid username or password")
	default:
		h.metrics.AuthAttempt(metrics.OutcomeError)
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"token": token})
}

// HandleRegister handles POST /register. The route admits admins only; the
// gateway repeats the check.
func (h *Handler) HandleRegister(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	account, err := h.gateway.Register(c.Request().Context(), claimsFrom(c), req.Username, req.Password, req.Role)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"username": account.Username,
		"role":     account.Role,
	})
}

// HandleChangePassword handles POST /change-password.
func (h *Handler) HandleChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.gateway.ChangePassword(c.Request().Context(), claimsFrom(c), req.Password); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "password changed successfully"})
}

// HandleUpload handles POST /upload.
// The multipart body is read part by part; nothing is buffered in full.
func (h *Handler) HandleUpload(c echo.Context) error {
	req := c.Request()
	if h.maxUploadBytes > 0 {
		req.Body = http.MaxBytesReader(c.Response(), req.Body, h.maxUploadBytes)
	}

	mr, err := req.MultipartReader()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "request must be multipart/form-data")
	}

	files, err := h.transfer.Upload(req.Context(), mr, claimsFrom(c))
	for _, f := range files {
		h.metrics.Transfer(metrics.DirectionUpload, f.Size)
	}
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": fmt.Sprintf("%d file(s) uploaded successfully", len(files)),
		"files":   files,
	})
}

// HandleDownload handles GET /download/:filename.
// Seekable backends get range support through http.ServeContent.
func (h *Handler) HandleDownload(c echo.Context) error {
	// The router matches on RawPath when the request carried escapes that
	// Path cannot represent; only then is the parameter still encoded.
	name := c.Param("filename")
	if c.Request().URL.RawPath != "" {
		var err error
		if name, err = url.PathUnescape(name); err != nil {
			return mapServiceError(c, service.ErrInvalidFilename)
		}
	}

	obj, err := h.transfer.Open(c.Request().Context(), name)
	if err != nil {
		return mapServiceError(c, err)
	}
	defer obj.Body.Close()

	display := obj.Filename
	res := c.Response()
	res.Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": display}))

	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(res, c.Request(), display, obj.ModTime, rs)
		h.metrics.Transfer(metrics.DirectionDownload, res.Size)
		return nil
	}

	res.Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	if obj.Size > 0 {
		res.Header().Set(echo.HeaderContentLength, fmt.Sprint(obj.Size))
	}
	res.WriteHeader(http.StatusOK)
	n, err := io.Copy(res, obj.Body)
	h.metrics.Transfer(metrics.DirectionDownload, n)
	if err != nil {
		// Headers are gone; all that is left is to log and drop the connection.
		slog.Warn("download interrupted", "name", name, "sent", n, "error", err)
	}
	return nil
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		slog.Warn("database health check failed", "error", err)
		status = "degraded"
		dbStatus = "unreachable"
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.stats.GetStats(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"accounts":           stats.Accounts,
		"files":              stats.Files,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanizeBytes(stats.StorageUsed),
	})
}

// bindAndValidate decodes and validates the JSON body. A non-nil error is an
// *echo.HTTPError; handlers must return it unchanged.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}
	return nil
}

// errorJSON writes the uniform error body.
func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"status": status, "error": msg})
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return errorJSON(c, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, service.ErrForbidden):
		return errorJSON(c, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, service.ErrInvalidRole):
		return errorJSON(c, http.StatusBadRequest, "role must be one of: admin, user")
	case errors.Is(err, service.ErrInvalidInput):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidFilename):
		return errorJSON(c, http.StatusBadRequest, "invalid filename")
	case errors.Is(err, service.ErrConflict):
		return errorJSON(c, http.StatusConflict, "username already exists")
	case errors.Is(err, service.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "file not found")
	case errors.Is(err, service.ErrFileTooLarge):
		return errorJSON(c, http.StatusRequestEntityTooLarge, "upload exceeds maximum allowed size")
	default:
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		return errorJSON(c, http.StatusInternalServerError, "internal server error")
	}
}

// claimsFrom returns the verified claims set by the auth middleware, or nil.
func claimsFrom(c echo.Context) *auth.Claims {
	claims, _ := c.Get(claimsKey).(*auth.Claims)
	return claims
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
