package analysis

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinlab/clinlab/internal/errs"
	"github.com/clinlab/clinlab/internal/platform/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/analysis-types", h.List)
	api.GET("/analysis-types/:id", h.Get)
	api.POST("/analysis-types", h.Create)
	api.PUT("/analysis-types/:id/interval", h.UpdateInterval)
	api.GET("/classify", h.Classify)
}

type createTypeRequest struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	RefMin *float64 `json:"ref_min"`
	RefMax *float64 `json:"ref_max"`
	Unit   string   `json:"unit"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createTypeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t := &Type{Code: req.Code, Name: req.Name, RefMin: req.RefMin, RefMax: req.RefMax, Unit: req.Unit}
	if err := h.svc.CreateType(c.Request().Context(), t, middleware.ActorFromEcho(c)); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.GetType(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) List(c echo.Context) error {
	types, err := h.svc.ListTypes(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if types == nil {
		types = []*Type{}
	}
	return c.JSON(http.StatusOK, types)
}

type intervalRequest struct {
	RefMin *float64 `json:"ref_min"`
	RefMax *float64 `json:"ref_max"`
}

func (h *Handler) UpdateInterval(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req intervalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateInterval(c.Request().Context(), id, req.RefMin, req.RefMax, middleware.ActorFromEcho(c)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type classifyRequest struct {
	Value  float64  `query:"value"`
	RefMin *float64 `query:"ref_min"`
	RefMax *float64 `query:"ref_max"`
}

// Classify exposes the pure range classifier for display purposes.
func (h *Handler) Classify(c echo.Context) error {
	var req classifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, Classify(req.Value, req.RefMin, req.RefMax))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
