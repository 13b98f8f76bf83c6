package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/tenant"
)

// webhookRegistrar is implemented by adapters that can point the platform
// at our webhook URL themselves (Telegram's setWebhook).
type webhookRegistrar interface {
	RegisterWebhook(ctx context.Context, creds channel.Credentials, webhookURL string) error
}

// BindingsHandler manages platform bindings.
type BindingsHandler struct {
	tenants       *tenant.Service
	registry      *channel.Registry
	publicBaseURL string
	logger        *slog.Logger
}

// NewBindingsHandler creates a BindingsHandler. publicBaseURL is the
// externally reachable address webhook URLs are derived from.
func NewBindingsHandler(log *slog.Logger, tenants *tenant.Service, registry *channel.Registry, publicBaseURL string) *BindingsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BindingsHandler{
		tenants:       tenants,
		registry:      registry,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:        log.With(slog.String("handler", "bindings")),
	}
}

func (h *BindingsHandler) Register(e *echo.Echo) {
	e.GET("/api/channels", h.ListChannels)
	e.POST("/api/tenants/:id/bindings", h.Create)
	e.GET("/api/tenants/:id/bindings", h.List)
	e.PUT("/api/bindings/:id/active", h.SetActive)
	e.PUT("/api/bindings/:id/credentials", h.UpdateCredentials)
}

// ListChannels describes the supported platforms and the credential
// fields each expects.
func (h *BindingsHandler) ListChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.ListDescriptors())
}

type createBindingRequest struct {
	Platform    string            `json:"platform" validate:"required,oneof=telegram whatsapp instagram"`
	DisplayName string            `json:"display_name" validate:"required"`
	Credentials map[string]string `json:"credentials" validate:"required"`
}

type bindingResponse struct {
	*tenant.Binding
	WebhookURL string `json:"webhook_url"`
}

func (h *BindingsHandler) webhookURL(b *tenant.Binding) string {
	if h.publicBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/webhooks/%s/%s", h.publicBaseURL, b.Platform, b.ID)
}

func (h *BindingsHandler) Create(c echo.Context) error {
	tenantID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req createBindingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	platform, err := channel.ParsePlatform(req.Platform)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown platform")
	}

	b, err := h.tenants.CreateBinding(c.Request().Context(), tenantID, platform,
		strings.TrimSpace(req.DisplayName), req.Credentials)
	if err != nil {
		h.logger.Error("create binding failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "create failed")
	}
	b.Credentials = nil
	return c.JSON(http.StatusCreated, bindingResponse{Binding: b, WebhookURL: h.webhookURL(b)})
}

func (h *BindingsHandler) List(c echo.Context) error {
	tenantID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	bindings, err := h.tenants.ListBindings(c.Request().Context(), tenantID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	out := make([]bindingResponse, 0, len(bindings))
	for i := range bindings {
		out = append(out, bindingResponse{Binding: &bindings[i], WebhookURL: h.webhookURL(&bindings[i])})
	}
	return c.JSON(http.StatusOK, out)
}

// SetActive toggles a binding. Activating a Telegram binding also
// registers the webhook with the Bot API, since Telegram pushes to
// whatever URL setWebhook last named.
func (h *BindingsHandler) SetActive(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	binding, err := h.tenants.GetBinding(ctx, id)
	if errors.Is(err, tenant.ErrBindingNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "binding not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "get failed")
	}

	if req.Active {
		if err := h.registerWebhook(ctx, binding); err != nil {
			h.logger.Error("webhook registration failed",
				slog.String("binding_id", id.String()), slog.Any("error", err))
			return echo.NewHTTPError(http.StatusBadGateway, "webhook registration failed")
		}
	}
	if err := h.tenants.SetBindingActive(ctx, id, req.Active); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "update failed")
	}
	return c.JSON(http.StatusOK, map[string]bool{"active": req.Active})
}

func (h *BindingsHandler) registerWebhook(ctx context.Context, b *tenant.Binding) error {
	adapter, err := h.registry.Get(b.Platform)
	if err != nil {
		return err
	}
	registrar, ok := adapter.(webhookRegistrar)
	if !ok {
		// Meta platforms have their webhook configured in the app
		// dashboard; nothing to do here.
		return nil
	}
	url := h.webhookURL(b)
	if url == "" {
		return errors.New("public base url not configured")
	}
	return registrar.RegisterWebhook(ctx, b.Credentials, url)
}

type updateCredentialsRequest struct {
	Credentials map[string]string `json:"credentials" validate:"required"`
}

func (h *BindingsHandler) UpdateCredentials(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req updateCredentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.tenants.UpdateBindingCredentials(c.Request().Context(), id, req.Credentials); err != nil {
		if errors.Is(err, tenant.ErrBindingNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "binding not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "update failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}
