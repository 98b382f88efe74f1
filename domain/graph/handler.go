package graph

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/apperror"
)

// Handler handles HTTP requests for graph queries
type Handler struct {
	svc        *Service
	reconciler *Reconciler
}

// NewHandler creates a new graph handler
func NewHandler(svc *Service, reconciler *Reconciler) *Handler {
	return &Handler{svc: svc, reconciler: reconciler}
}

// GetData handles GET /api/v1/graph/data
// @Summary      Get graph data
// @Description  Returns CI asset nodes and the relationship edges between them
// @Tags         graph
// @Produce      json
// @Param        limit query int false "Maximum nodes (1-1000)" default(200)
// @Param        ci_type query string false "Only nodes of this CI type name"
// @Success      200 {object} Data
// @Failure      422 {object} apperror.Error "Invalid limit"
// @Router       /api/v1/graph/data [get]
// @Security     bearerAuth
func (h *Handler) GetData(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	data, err := h.svc.Data(c.Request().Context(), limit, c.QueryParam("ci_type"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, data)
}

// GetNeighbors handles GET /api/v1/graph/nodes/:id/neighbors
// @Summary      Get node neighbors
// @Description  Returns an asset node and every asset directly related to it
// @Tags         graph
// @Produce      json
// @Param        id path string true "CI asset ID (UUID)"
// @Success      200 {object} Neighborhood
// @Failure      404 {object} apperror.Error "Node not found"
// @Router       /api/v1/graph/nodes/{id}/neighbors [get]
// @Security     bearerAuth
func (h *Handler) GetNeighbors(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid node id")
	}
	n, err := h.svc.Neighbors(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, n)
}

// Search handles GET /api/v1/graph/search
// @Summary      Search graph nodes
// @Tags         graph
// @Produce      json
// @Param        q query string true "Name or CI type fragment"
// @Param        limit query int false "Maximum results (1-100)" default(20)
// @Success      200 {object} map[string]any
// @Failure      422 {object} apperror.Error "Missing query"
// @Router       /api/v1/graph/search [get]
// @Security     bearerAuth
func (h *Handler) Search(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	nodes, err := h.svc.Search(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"nodes": nodes})
}

// Rebuild handles POST /api/v1/graph/rebuild
// @Summary      Rebuild graph projection
// @Description  Re-projects every live asset and relationship and prunes stale graph entries
// @Tags         graph
// @Produce      json
// @Success      200 {object} RebuildResult
// @Failure      403 {object} apperror.Error "Administrator role required"
// @Router       /api/v1/graph/rebuild [post]
// @Security     bearerAuth
func (h *Handler) Rebuild(c echo.Context) error {
	res, err := h.reconciler.Rebuild(c.Request().Context())
	if err != nil {
		return apperror.NewInternal("graph rebuild failed", err)
	}
	return c.JSON(http.StatusOK, res)
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.NewValidation(name + " must be an integer")
	}
	return n, nil
}
