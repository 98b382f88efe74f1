package valuation

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/pagination"
)

// Handler handles HTTP requests for valuations and amortization
type Handler struct {
	svc *Service
}

// NewHandler creates a new valuation handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /api/v1/amortization/records
// @Summary      List valuation records
// @Tags         amortization
// @Produce      json
// @Param        limit query int false "Page size (1-100)" default(50)
// @Param        offset query int false "Offset" default(0)
// @Success      200 {object} pagination.Result[Record]
// @Failure      422 {object} apperror.Error "Invalid pagination"
// @Router       /api/v1/amortization/records [get]
// @Security     bearerAuth
func (h *Handler) List(c echo.Context) error {
	page, err := pagination.Parse(c.QueryParam("limit"), c.QueryParam("offset"), defaultListLimit)
	if err != nil {
		return err
	}
	res, err := h.svc.List(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Create handles POST /api/v1/amortization/records
// @Summary      Record a valuation
// @Description  Records the value of a CI asset and books the years already elapsed since purchase.
// @Tags         amortization
// @Accept       json
// @Produce      json
// @Param        request body CreateRequest true "Valuation"
// @Success      201 {object} Record
// @Failure      404 {object} apperror.Error "Asset not found"
// @Failure      422 {object} apperror.Error "Validation failed"
// @Router       /api/v1/amortization/records [post]
// @Security     bearerAuth
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	rec, err := h.svc.Create(c.Request().Context(), req, audit.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

// Schedule handles GET /api/v1/amortization/assets/:id/schedule
// @Summary      Depreciation schedule of an asset
// @Tags         amortization
// @Produce      json
// @Param        id path string true "CI asset ID (UUID)"
// @Success      200 {object} Schedule
// @Failure      404 {object} apperror.Error "Asset or valuation not found"
// @Router       /api/v1/amortization/assets/{id}/schedule [get]
// @Security     bearerAuth
func (h *Handler) Schedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid id")
	}
	sched, err := h.svc.GetSchedule(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sched)
}
