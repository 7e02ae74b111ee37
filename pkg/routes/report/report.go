// Package report serves the read-only queries over approved data: variant occurrence counts and
// the datasets by QC state.
package report

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/history"
	"github.com/Ramsey-B/fern/pkg/models"
)

type Handler struct {
	history *history.Service
	logger  ectologger.Logger
}

func NewHandler(history *history.Service, logger ectologger.Logger) *Handler {
	return &Handler{
		history: history,
		logger:  logger,
	}
}

type OccurrenceResponse struct {
	VariantID string `json:"variantId"`
	Count     int    `json:"count"`
}

// Register registers the report routes on the API root group
func (h *Handler) Register(g *echo.Group) {
	g.GET("/variants/:variantId/occurrences", h.Occurrences)
	g.GET("/variants/:variantId/observations", h.Observations)
	g.GET("/datasets/qc/passed", h.QCPassed)
	g.GET("/datasets/qc/pending", h.QCPending)
}

func (h *Handler) Occurrences(c echo.Context) error {
	variantID := strings.TrimSpace(c.Param("variantId"))

	count, err := h.history.OccurrenceCount(c.Request().Context(), variantID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, OccurrenceResponse{VariantID: variantID, Count: count})
}

func (h *Handler) Observations(c echo.Context) error {
	observations, err := h.history.Observations(c.Request().Context(), strings.TrimSpace(c.Param("variantId")))
	if err != nil {
		return err
	}
	if observations == nil {
		observations = []models.Observation{}
	}
	return c.JSON(http.StatusOK, observations)
}

func (h *Handler) QCPassed(c echo.Context) error {
	datasets, err := h.history.QCPassed(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(datasets))
}

func (h *Handler) QCPending(c echo.Context) error {
	datasets, err := h.history.QCPending(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(datasets))
}

func nonNil(datasets []models.DatasetSummary) []models.DatasetSummary {
	if datasets == nil {
		return []models.DatasetSummary{}
	}
	return datasets
}
