// Package server assembles the echo HTTP server and its middleware.
package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/botlinkhq/botlink/internal/auth"
	"github.com/botlinkhq/botlink/internal/handlers"
)

// Server wraps the echo instance and listen address.
type Server struct {
	echo *echo.Echo
	addr string
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

// NewServer builds the HTTP server. Webhook routes and the login endpoint
// are public; everything else requires a JWT.
func NewServer(log *slog.Logger, addr, jwtSecret string,
	pingHandler *handlers.PingHandler,
	authHandler *handlers.AuthHandler,
	webhookHandler *handlers.WebhookHandler,
	tenantsHandler *handlers.TenantsHandler,
	bindingsHandler *handlers.BindingsHandler,
	aiConfigHandler *handlers.AIConfigHandler,
	knowledgeHandler *handlers.KnowledgeHandler,
) *Server {
	if addr == "" {
		addr = ":8080"
	}
	if log == nil {
		log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status))
			return nil
		},
	}))
	e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
		path := c.Request().URL.Path
		if path == "/ping" || path == "/health" || path == "/version" || path == "/auth/login" {
			return true
		}
		// Webhooks authenticate with platform signatures, not JWTs.
		return strings.HasPrefix(path, "/webhooks/")
	}))

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if authHandler != nil {
		authHandler.Register(e)
	}
	if webhookHandler != nil {
		webhookHandler.Register(e)
	}
	if tenantsHandler != nil {
		tenantsHandler.Register(e)
	}
	if bindingsHandler != nil {
		bindingsHandler.Register(e)
	}
	if aiConfigHandler != nil {
		aiConfigHandler.Register(e)
	}
	if knowledgeHandler != nil {
		knowledgeHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

// Start begins serving and blocks until shutdown.
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
