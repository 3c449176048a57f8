package router // package router defines how HTTP routes are registered for the API

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/filevault/internal/handler"
	"github.com/iliyamo/filevault/internal/metrics"
	"github.com/iliyamo/filevault/internal/middleware"
	"github.com/iliyamo/filevault/internal/utils"
)

// Deps are the handlers and middleware the routes are built from.
type Deps struct {
	Auth      *handler.AuthHandler
	Files     *handler.FileHandler
	Verifier  middleware.TokenVerifier
	RateLimit echo.MiddlewareFunc
	DB        handler.Pinger
	Log       *zap.SugaredLogger
}

// RegisterRoutes registers routes that do not require authentication:
// the health check and the metrics endpoint.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))
	e.GET("/metrics", metrics.Handler())
}

// RegisterAuth registers the session endpoints. Register, login and refresh
// live under /v1/auth behind the rate limiter; /v1/me and logout need a
// valid access token.
func RegisterAuth(e *echo.Echo, d Deps) {
	bearer := middleware.BearerAuth(d.Verifier, d.Log)

	g := e.Group("/v1/auth")
	if d.RateLimit != nil {
		g.Use(d.RateLimit)
	}
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout, bearer)

	e.GET("/v1/me", d.Auth.Me, bearer)
}

// RegisterFiles registers the per-user file endpoints. All of them require
// a valid access token and are scoped to its user.
func RegisterFiles(e *echo.Echo, d Deps) {
	g := e.Group("/v1/files", middleware.BearerAuth(d.Verifier, d.Log))
	g.POST("", d.Files.Upload)
	g.GET("", d.Files.List)
	g.GET("/:id", d.Files.Get)
	g.GET("/:id/download", d.Files.Download)
	g.PUT("/:id", d.Files.Update)
	g.DELETE("/:id", d.Files.Delete)
}

// New builds the echo instance with every route and the shared middleware.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(d.Log)

	e.Use(echomw.Recover(), echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(metrics.Middleware())

	RegisterRoutes(e, d)
	RegisterAuth(e, d)
	RegisterFiles(e, d)
	return e
}

// errorHandler keeps echo's own errors (unknown route, wrong method,
// recovered panics) inside the response envelope.
func errorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := "internal error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if status < http.StatusInternalServerError {
				msg = http.StatusText(status)
			}
		}
		if status >= http.StatusInternalServerError {
			log.Errorw("unhandled error", "path", c.Request().URL.Path, "error", err)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = utils.Fail(c, status, msg)
	}
}
