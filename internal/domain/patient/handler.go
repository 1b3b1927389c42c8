package patient

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinlab/clinlab/internal/errs"
	"github.com/clinlab/clinlab/internal/platform/crypto"
	"github.com/clinlab/clinlab/internal/platform/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.Register)
	api.GET("/patients/search", h.Search)
	api.GET("/patients/:id", h.Get)
	api.PATCH("/patients/:id", h.Update)
}

type registerRequest struct {
	Name        string  `json:"name"`
	NationalID  string  `json:"national_id"`
	DateOfBirth string  `json:"date_of_birth"` // YYYY-MM-DD
	Phone       *string `json:"phone"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
	}

	in := RegisterInput{
		Name:        req.Name,
		NationalID:  req.NationalID,
		DateOfBirth: dob,
		Phone:       req.Phone,
	}
	origin := c.RealIP()

	p, err := h.svc.Register(c.Request().Context(), in, middleware.ActorFromEcho(c), &origin)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type updateRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Update(c.Request().Context(), id, req.Name, req.Phone, middleware.ActorFromEcho(c)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Search looks up patients by exact national id or name substring. Both run
// as full decrypt-and-compare scans over the patient table.
func (h *Handler) Search(c echo.Context) error {
	ctx := c.Request().Context()

	if nationalID := c.QueryParam("national_id"); nationalID != "" {
		p, err := h.svc.FindByNationalID(ctx, nationalID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, p)
	}

	if name := c.QueryParam("name"); name != "" {
		matches, err := h.svc.SearchByName(ctx, name)
		if err != nil {
			return httpError(err)
		}
		if matches == nil {
			matches = []*Patient{}
		}
		return c.JSON(http.StatusOK, matches)
	}

	return echo.NewHTTPError(http.StatusBadRequest, "national_id or name query parameter is required")
}

func httpError(err error) error {
	var decErr *crypto.DecryptionError
	switch {
	case errors.Is(err, errs.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &decErr):
		return echo.NewHTTPError(http.StatusInternalServerError, "stored data cannot be decrypted under the current key")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
