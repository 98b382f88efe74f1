package dashboard

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler serves dashboard statistics
type Handler struct {
	svc *Service
}

// NewHandler creates a new dashboard handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Stats handles GET /api/v1/dashboard/stats
// @Summary      Inventory statistics
// @Description  Counts of CI types, assets, relationship types, relationships, lifecycle types and valuations, plus the ten CI types with the most assets.
// @Tags         dashboard
// @Produce      json
// @Success      200 {object} Stats
// @Router       /api/v1/dashboard/stats [get]
// @Security     bearerAuth
func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
