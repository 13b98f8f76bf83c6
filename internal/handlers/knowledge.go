package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/botlinkhq/botlink/internal/knowledge"
)

// KnowledgeHandler manages tenant knowledge files.
type KnowledgeHandler struct {
	store  knowledge.Store
	logger *slog.Logger
}

// NewKnowledgeHandler creates a KnowledgeHandler.
func NewKnowledgeHandler(log *slog.Logger, store knowledge.Store) *KnowledgeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &KnowledgeHandler{
		store:  store,
		logger: log.With(slog.String("handler", "knowledge")),
	}
}

func (h *KnowledgeHandler) Register(e *echo.Echo) {
	e.POST("/api/tenants/:id/knowledge", h.Create)
	e.GET("/api/tenants/:id/knowledge", h.List)
	e.PUT("/api/knowledge/:id/active", h.SetActive)
	e.DELETE("/api/knowledge/:id", h.Delete)
}

type createKnowledgeRequest struct {
	Filename string `json:"filename" validate:"required"`
	Content  string `json:"content" validate:"required"`
}

func (h *KnowledgeHandler) Create(c echo.Context) error {
	tenantID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req createKnowledgeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	f, err := h.store.Create(c.Request().Context(), tenantID, strings.TrimSpace(req.Filename), req.Content)
	if err != nil {
		h.logger.Error("create knowledge file failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "create failed")
	}
	f.Content = ""
	return c.JSON(http.StatusCreated, f)
}

func (h *KnowledgeHandler) List(c echo.Context) error {
	tenantID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	files, err := h.store.List(c.Request().Context(), tenantID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	return c.JSON(http.StatusOK, files)
}

func (h *KnowledgeHandler) SetActive(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.store.SetActive(c.Request().Context(), id, req.Active); err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "knowledge file not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "update failed")
	}
	return c.JSON(http.StatusOK, map[string]bool{"active": req.Active})
}

func (h *KnowledgeHandler) Delete(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "knowledge file not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed")
	}
	return c.NoContent(http.StatusNoContent)
}
