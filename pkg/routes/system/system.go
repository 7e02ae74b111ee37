package system

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/audit"
)

// Handler exposes operational endpoints
type Handler struct {
	scanner *audit.Scanner
	logger  ectologger.Logger
}

// NewHandler creates a new system handler
func NewHandler(scanner *audit.Scanner, logger ectologger.Logger) *Handler {
	return &Handler{
		scanner: scanner,
		logger:  logger,
	}
}

// Register registers the system routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/diagnostics", h.Diagnostics)
}

// Diagnostics runs the read-only graph scan and returns its report
func (h *Handler) Diagnostics(c echo.Context) error {
	report, err := h.scanner.Scan(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
