package workflow

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	workflowpkg "github.com/Ramsey-B/fern/pkg/workflow"
)

// Handler lists and runs the registered workflows
type Handler struct {
	registry *workflowpkg.Registry
	logger   ectologger.Logger
}

// NewHandler creates a new workflow handler
func NewHandler(registry *workflowpkg.Registry, logger ectologger.Logger) *Handler {
	return &Handler{
		registry: registry,
		logger:   logger,
	}
}

// Register registers the workflow routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("/:name", h.Run)
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.List())
}

// Run passes the raw request body to the workflow as its input
func (h *Handler) Run(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperrors.Validationf("invalid request body")
	}
	if len(body) > 0 && !json.Valid(body) {
		return apperrors.Validationf("request body is not valid JSON")
	}

	result, err := h.registry.Run(c.Request().Context(), c.Param("name"), json.RawMessage(body))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
