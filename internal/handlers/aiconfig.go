package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/botlinkhq/botlink/internal/ai"
)

// AIConfigHandler manages tenant AI provider selections.
type AIConfigHandler struct {
	configs *ai.ConfigStore
	logger  *slog.Logger
}

// NewAIConfigHandler creates an AIConfigHandler.
func NewAIConfigHandler(log *slog.Logger, configs *ai.ConfigStore) *AIConfigHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AIConfigHandler{
		configs: configs,
		logger:  log.With(slog.String("handler", "ai_config")),
	}
}

func (h *AIConfigHandler) Register(e *echo.Echo) {
	e.GET("/api/tenants/:id/ai-config", h.Get)
	e.PUT("/api/tenants/:id/ai-config", h.Upsert)
	e.GET("/api/ai/models", h.Models)
}

func (h *AIConfigHandler) Get(c echo.Context) error {
	tenantID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	cfg, err := h.configs.Get(c.Request().Context(), tenantID)
	if errors.Is(err, ai.ErrConfigNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "ai config not found")
	}
	if err != nil {
		h.logger.Error("get ai config failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "get failed")
	}
	return c.JSON(http.StatusOK, cfg)
}

type upsertAIConfigRequest struct {
	Provider string `json:"provider" validate:"required,oneof=gemini openai"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
}

func (h *AIConfigHandler) Upsert(c echo.Context) error {
	tenantID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req upsertAIConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cfg, err := h.configs.Upsert(c.Request().Context(), tenantID, req.Provider, req.Model, req.APIKey)
	if errors.Is(err, ai.ErrUnknownProvider) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown provider")
	}
	if err != nil {
		h.logger.Error("upsert ai config failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "update failed")
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *AIConfigHandler) Models(c echo.Context) error {
	provider := c.QueryParam("provider")
	models := ai.AvailableModels(provider)
	if models == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown provider")
	}
	return c.JSON(http.StatusOK, map[string]any{"provider": provider, "models": models})
}
