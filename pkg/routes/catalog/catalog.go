package catalog

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	catalogpkg "github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/routes/request"
)

// Handler handles the creation of users and subjects
type Handler struct {
	service *catalogpkg.Service
	logger  ectologger.Logger
}

// NewHandler creates a new catalog handler
func NewHandler(service *catalogpkg.Service, logger ectologger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register registers the catalog routes on the API root group
func (h *Handler) Register(g *echo.Group) {
	g.POST("/users", h.AddUser)
	g.GET("/users/:email", h.GetUser)
	g.POST("/samples", h.AddSample)
	g.POST("/datasets", h.AddDataset)
	g.POST("/variants", h.AddVariant)
	g.POST("/variants/calls", h.AddVariantCall)
	g.POST("/features", h.AddFeature)
	g.POST("/panels", h.AddPanel)
	g.GET("/panels", h.ListPanels)
	g.GET("/panels/:panelId", h.GetPanel)
	g.GET("/symbols/:symbolId", h.GetSymbol)
}

func (h *Handler) AddUser(c echo.Context) error {
	var req catalogpkg.NewUser
	if err := request.Bind(c, &req); err != nil {
		return err
	}

	user, err := h.service.AddUser(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *Handler) GetUser(c echo.Context) error {
	user, err := h.service.GetUser(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) AddSample(c echo.Context) error {
	var req catalogpkg.NewSample
	if err := request.Bind(c, &req); err != nil {
		return err
	}

	sample, err := h.service.AddSample(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sample)
}

// AddDataset creates a dataset under an existing sample
func (h *Handler) AddDataset(c echo.Context) error {
	var req catalogpkg.NewDataset
	if err := request.Bind(c, &req); err != nil {
		return err
	}

	dataset, err := h.service.AddDataset(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, dataset)
}

func (h *Handler) AddVariant(c echo.Context) error {
	var req catalogpkg.NewVariant
	if err := request.Bind(c, &req); err != nil {
		return err
	}

	variant, err := h.service.AddVariant(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, variant)
}

// AddVariantCall links a dataset to a variant, creating the variant when it is new
func (h *Handler) AddVariantCall(c echo.Context) error {
	var req catalogpkg.NewVariantCall
	if err := request.Bind(c, &req); err != nil {
		return err
	}

	if err := h.service.AddVariantCall(c.Request().Context(), req); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddFeature(c echo.Context) error {
	var req catalogpkg.NewFeature
	if err := request.Bind(c, &req); err != nil {
		return err
	}

	feature, err := h.service.AddFeature(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, feature)
}

func (h *Handler) AddPanel(c echo.Context) error {
	var req catalogpkg.NewPanel
	if err := request.Bind(c, &req); err != nil {
		return err
	}

	panel, err := h.service.AddPanel(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, panel)
}

// ListPanels lists every panel with its designer and symbols
func (h *Handler) ListPanels(c echo.Context) error {
	panels, err := h.service.Panels(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, panels)
}

func (h *Handler) GetPanel(c echo.Context) error {
	panel, err := h.service.Panel(c.Request().Context(), c.Param("panelId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, panel)
}

func (h *Handler) GetSymbol(c echo.Context) error {
	symbol, err := h.service.Symbol(c.Request().Context(), c.Param("symbolId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, symbol)
}
