package subject

import (
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/approval"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/chain"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/history"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/request"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Handler serves a subject's chain: its state, its history and new proposals
type Handler struct {
	catalog  *catalog.Service
	chain    *chain.Service
	history  *history.Service
	approval *approval.Service
	logger   ectologger.Logger
}

// NewHandler creates a new subject handler
func NewHandler(
	catalog *catalog.Service,
	chain *chain.Service,
	history *history.Service,
	approval *approval.Service,
	logger ectologger.Logger,
) *Handler {
	return &Handler{
		catalog:  catalog,
		chain:    chain,
		history:  history,
		approval: approval,
		logger:   logger,
	}
}

// ProposeRequest is the body of a proposal. Kind may be left out when the subject accepts a
// single event kind.
type ProposeRequest struct {
	Kind    models.EventKind `json:"kind,omitempty"`
	Payload json.RawMessage  `json:"payload"`
}

type ProposeResponse struct {
	EventID string        `json:"eventId"`
	Status  models.Status `json:"status"`
}

// Register registers the subject routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:kind/:key", h.Info)
	g.GET("/:kind/:key/tip", h.Tip)
	g.GET("/:kind/:key/last-active", h.LastActive)
	g.GET("/:kind/:key/history", h.History)
	g.POST("/:kind/:key/events", h.Propose)
}

func (h *Handler) Info(c echo.Context) error {
	ref, err := request.SubjectRef(c)
	if err != nil {
		return err
	}

	info, err := h.catalog.SubjectInfo(c.Request().Context(), ref)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handler) Tip(c echo.Context) error {
	ref, err := request.SubjectRef(c)
	if err != nil {
		return err
	}

	tip, err := h.chain.Tip(c.Request().Context(), ref)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tip)
}

// LastActive answers 204 when no event of the chain has been authorised.
func (h *Handler) LastActive(c echo.Context) error {
	ref, err := request.SubjectRef(c)
	if err != nil {
		return err
	}

	event, err := h.chain.LastActive(c.Request().Context(), ref)
	if err != nil {
		return err
	}
	if event == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, event)
}

func (h *Handler) History(c echo.Context) error {
	ref, err := request.SubjectRef(c)
	if err != nil {
		return err
	}

	events, err := h.history.History(c.Request().Context(), ref)
	if err != nil {
		return err
	}
	if events == nil {
		events = []models.EventView{}
	}
	return c.JSON(http.StatusOK, events)
}

// Propose appends a pending event for the acting user
func (h *Handler) Propose(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SubjectHandler.Propose")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	ref, err := request.SubjectRef(c)
	if err != nil {
		return err
	}
	actor, err := request.Actor(c)
	if err != nil {
		return err
	}

	var req ProposeRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	if len(req.Payload) == 0 {
		return apperrors.Validationf("missing event payload")
	}

	kind, err := eventKind(ref.Kind, req.Kind)
	if err != nil {
		return err
	}
	payload, err := models.DecodePayload(kind, req.Payload)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, err, err.Error())
	}

	eventID, err := h.approval.Propose(ctx, ref, payload, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ProposeResponse{EventID: eventID, Status: models.StatusPendingAuth})
}

func eventKind(subject models.SubjectKind, requested models.EventKind) (models.EventKind, error) {
	if requested != "" {
		kind, err := models.ParseEventKind(string(requested))
		if err != nil {
			return "", apperrors.Wrap(apperrors.KindValidation, err, err.Error())
		}
		return kind, nil
	}

	accepted := subject.EventKinds()
	if len(accepted) != 1 {
		return "", apperrors.Validationf("%s subjects do not accept events", subject)
	}
	return accepted[0], nil
}
