package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/botlinkhq/botlink/internal/conversation"
	"github.com/botlinkhq/botlink/internal/message"
	"github.com/botlinkhq/botlink/internal/tenant"
)

// TenantsHandler manages tenants and exposes their conversation history.
type TenantsHandler struct {
	tenants       *tenant.Service
	conversations *conversation.Resolver
	messages      message.Store
	logger        *slog.Logger
}

// NewTenantsHandler creates a TenantsHandler.
func NewTenantsHandler(log *slog.Logger, tenants *tenant.Service, conversations *conversation.Resolver, messages message.Store) *TenantsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TenantsHandler{
		tenants:       tenants,
		conversations: conversations,
		messages:      messages,
		logger:        log.With(slog.String("handler", "tenants")),
	}
}

func (h *TenantsHandler) Register(e *echo.Echo) {
	g := e.Group("/api/tenants")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id/active", h.SetActive)
	g.GET("/:id/conversations", h.ListConversations)

	e.GET("/api/conversations/:id/messages", h.ListMessages)
}

type createTenantRequest struct {
	Name     string `json:"name" validate:"required"`
	Language string `json:"language" validate:"omitempty,oneof=uz ru en"`
}

func (h *TenantsHandler) Create(c echo.Context) error {
	var req createTenantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	t, err := h.tenants.CreateTenant(c.Request().Context(), strings.TrimSpace(req.Name), req.Language)
	if err != nil {
		h.logger.Error("create tenant failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "create failed")
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *TenantsHandler) List(c echo.Context) error {
	tenants, err := h.tenants.ListTenants(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	return c.JSON(http.StatusOK, tenants)
}

func (h *TenantsHandler) Get(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.tenants.GetTenant(c.Request().Context(), id)
	if errors.Is(err, tenant.ErrTenantNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "get failed")
	}
	return c.JSON(http.StatusOK, t)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *TenantsHandler) SetActive(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.tenants.SetTenantActive(c.Request().Context(), id, req.Active); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "update failed")
	}
	return c.JSON(http.StatusOK, map[string]bool{"active": req.Active})
}

func (h *TenantsHandler) ListConversations(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	conversations, err := h.conversations.ListByTenant(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	return c.JSON(http.StatusOK, conversations)
}

func (h *TenantsHandler) ListMessages(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.conversations.Get(c.Request().Context(), id); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "get failed")
	}
	messages, err := h.messages.ListByConversation(c.Request().Context(), id, 100)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	return c.JSON(http.StatusOK, messages)
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
