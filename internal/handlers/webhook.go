package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/gateway"
	"github.com/botlinkhq/botlink/internal/tenant"
	"github.com/botlinkhq/botlink/internal/vault"
)

// Platform webhook bodies are small; anything larger is hostile.
const maxWebhookBody = 1 << 20

// WebhookHandler receives platform webhook traffic and hands it to the
// gateway pipeline.
type WebhookHandler struct {
	gateway  *gateway.Gateway
	registry *channel.Registry
	logger   *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(log *slog.Logger, gw *gateway.Gateway, registry *channel.Registry) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		gateway:  gw,
		registry: registry,
		logger:   log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/status", h.Status)
	e.POST("/webhooks/:platform/:binding_id", h.Receive)
	e.GET("/webhooks/:platform/:binding_id", h.Subscribe)
}

func (h *WebhookHandler) params(c echo.Context) (channel.Platform, uuid.UUID, error) {
	platform, err := channel.ParsePlatform(strings.TrimSpace(c.Param("platform")))
	if err != nil {
		return "", uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "unknown platform")
	}
	bindingID, err := uuid.Parse(strings.TrimSpace(c.Param("binding_id")))
	if err != nil {
		return "", uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "invalid binding id")
	}
	return platform, bindingID, nil
}

// Receive runs one webhook delivery through the pipeline. The response is
// 200 whenever the payload was authenticated, even if processing failed,
// so platforms do not redeliver payloads we have already accepted.
func (h *WebhookHandler) Receive(c echo.Context) error {
	platform, bindingID, err := h.params(c)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	outcome, err := h.gateway.HandleWebhook(c.Request().Context(), platform, bindingID, c.Request(), body)
	switch {
	case err == nil:
		// Platforms only need the ack; the outcome stays in logs.
		h.logger.Info("webhook processed",
			slog.String("platform", string(platform)),
			slog.String("binding_id", bindingID.String()),
			slog.String("state", string(outcome.State)))
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, channel.ErrVerificationFailed):
		return echo.NewHTTPError(http.StatusForbidden, "signature verification failed")
	case errors.Is(err, tenant.ErrBindingNotFound),
		errors.Is(err, tenant.ErrBindingInactive),
		errors.Is(err, tenant.ErrTenantNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "binding not found")
	case errors.Is(err, vault.ErrCrypto):
		// Unreadable credentials need operator attention; redelivery
		// of this payload would keep failing the same way.
		h.logger.Error("binding credentials unreadable",
			slog.String("platform", string(platform)),
			slog.String("binding_id", bindingID.String()),
			slog.Any("error", err))
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	default:
		h.logger.Error("webhook processing failed",
			slog.String("platform", string(platform)),
			slog.String("binding_id", bindingID.String()),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}
}

// Subscribe answers the GET verification handshake Meta platforms perform
// when a webhook URL is registered.
func (h *WebhookHandler) Subscribe(c echo.Context) error {
	platform, bindingID, err := h.params(c)
	if err != nil {
		return err
	}
	if _, err := h.registry.GetSubscriptionVerifier(platform); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no subscription handshake")
	}

	mode := c.QueryParam("hub.mode")
	verifyToken := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")
	if mode != "subscribe" {
		return echo.NewHTTPError(http.StatusForbidden, "unsupported mode")
	}

	echoed, err := h.gateway.HandleSubscription(c.Request().Context(), platform, bindingID, verifyToken, challenge)
	switch {
	case err == nil:
		return c.String(http.StatusOK, echoed)
	case errors.Is(err, channel.ErrSubscriptionMismatch):
		return echo.NewHTTPError(http.StatusForbidden, "verify token mismatch")
	case errors.Is(err, tenant.ErrBindingNotFound),
		errors.Is(err, tenant.ErrBindingInactive),
		errors.Is(err, tenant.ErrTenantNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "binding not found")
	default:
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
}

// Status lists the registered platforms and their capabilities.
func (h *WebhookHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"platforms": h.registry.ListDescriptors(),
	})
}
