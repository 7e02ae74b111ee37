package event

import (
	"net/http"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/approval"
	"github.com/Ramsey-B/fern/pkg/chain"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/history"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/request"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Handler handles event lookups, the review queue and decisions
type Handler struct {
	chain     *chain.Service
	history   *history.Service
	approval  *approval.Service
	evaluator *expressions.Evaluator
	logger    ectologger.Logger
}

// NewHandler creates a new event handler
func NewHandler(
	chain *chain.Service,
	history *history.Service,
	approval *approval.Service,
	evaluator *expressions.Evaluator,
	logger ectologger.Logger,
) *Handler {
	return &Handler{
		chain:     chain,
		history:   history,
		approval:  approval,
		evaluator: evaluator,
		logger:    logger,
	}
}

type DecisionResponse struct {
	EventID string        `json:"eventId"`
	Status  models.Status `json:"status"`
}

// Register registers the event routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/pending", h.Pending)
	g.GET("/:id", h.Status)
	g.GET("/:id/root", h.Root)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
}

// Pending returns the review queue. The optional kind narrows it to one event kind and the
// optional filter is a JMESPath expression evaluated against each entry.
func (h *Handler) Pending(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "EventHandler.Pending")
	defer span.End()

	kinds := models.EventKinds()
	if raw := c.QueryParam("kind"); raw != "" {
		kind, err := models.ParseEventKind(raw)
		if err != nil {
			return apperrors.Wrap(apperrors.KindValidation, err, err.Error())
		}
		kinds = []models.EventKind{kind}
	}

	filter := c.QueryParam("filter")
	if filter != "" {
		if err := h.evaluator.Validate(filter); err != nil {
			return apperrors.Wrap(apperrors.KindValidation, err, "invalid filter expression")
		}
	}

	queue := []models.PendingAuthorization{}
	for _, kind := range kinds {
		pending, err := h.history.PendingAuthorizations(ctx, kind)
		if err != nil {
			return err
		}
		queue = append(queue, pending...)
	}
	if len(kinds) > 1 {
		sort.SliceStable(queue, func(i, j int) bool {
			a, b := queue[i].Event, queue[j].Event
			if !a.AddedBy.Date.Equal(b.AddedBy.Date) {
				return a.AddedBy.Date.Before(b.AddedBy.Date)
			}
			return a.ID < b.ID
		})
	}

	filtered, err := expressions.Filter(h.evaluator, filter, queue)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).WithField("filter", filter).Warn("Failed to filter review queue")
		return apperrors.Wrap(apperrors.KindValidation, err, "filter could not be evaluated")
	}
	return c.JSON(http.StatusOK, filtered)
}

func (h *Handler) Status(c echo.Context) error {
	event, err := h.chain.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, event)
}

func (h *Handler) Root(c echo.Context) error {
	subject, err := h.chain.Root(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, subject)
}

func (h *Handler) Approve(c echo.Context) error {
	return h.decide(c, true)
}

func (h *Handler) Reject(c echo.Context) error {
	return h.decide(c, false)
}

func (h *Handler) decide(c echo.Context, accept bool) error {
	actor, err := request.Actor(c)
	if err != nil {
		return err
	}

	eventID := c.Param("id")
	status, err := h.approval.Authorize(c.Request().Context(), eventID, actor, accept)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DecisionResponse{EventID: eventID, Status: status})
}
