package ci

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/pagination"
)

// Handler handles HTTP requests for CI types and assets
type Handler struct {
	svc *Service
}

// NewHandler creates a new CI handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.NewBadRequest("invalid id")
	}
	return id, nil
}

// ListTypes handles GET /api/v1/ci-types
// @Summary      List CI types
// @Tags         ci-types
// @Produce      json
// @Param        limit query int false "Page size (1-100)" default(50)
// @Param        offset query int false "Offset" default(0)
// @Success      200 {object} pagination.Result[CIType]
// @Failure      422 {object} apperror.Error "Invalid pagination"
// @Router       /api/v1/ci-types [get]
// @Security     bearerAuth
func (h *Handler) ListTypes(c echo.Context) error {
	page, err := pagination.Parse(c.QueryParam("limit"), c.QueryParam("offset"), defaultListLimit)
	if err != nil {
		return err
	}
	res, err := h.svc.ListTypes(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// GetType handles GET /api/v1/ci-types/:id
// @Summary      Get CI type
// @Tags         ci-types
// @Produce      json
// @Param        id path string true "CI type ID (UUID)"
// @Success      200 {object} CIType
// @Failure      404 {object} apperror.Error "Not found"
// @Router       /api/v1/ci-types/{id} [get]
// @Security     bearerAuth
func (h *Handler) GetType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetType(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// CreateType handles POST /api/v1/ci-types
// @Summary      Create CI type
// @Description  Creates a CI type. attributes.schema, when present, must be a JSON Schema.
// @Tags         ci-types
// @Accept       json
// @Produce      json
// @Param        request body CreateTypeRequest true "CI type"
// @Success      201 {object} CIType
// @Failure      409 {object} apperror.Error "Name already in use"
// @Failure      422 {object} apperror.Error "Validation failed"
// @Router       /api/v1/ci-types [post]
// @Security     bearerAuth
func (h *Handler) CreateType(c echo.Context) error {
	var req CreateTypeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	t, err := h.svc.CreateType(c.Request().Context(), req, audit.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

// UpdateType handles PUT /api/v1/ci-types/:id
// @Summary      Update CI type
// @Tags         ci-types
// @Accept       json
// @Produce      json
// @Param        id path string true "CI type ID (UUID)"
// @Param        request body UpdateTypeRequest true "Fields to overwrite"
// @Success      200 {object} CIType
// @Failure      404 {object} apperror.Error "Not found"
// @Failure      409 {object} apperror.Error "Name already in use"
// @Router       /api/v1/ci-types/{id} [put]
// @Security     bearerAuth
func (h *Handler) UpdateType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req UpdateTypeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	t, err := h.svc.UpdateType(c.Request().Context(), id, req, audit.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// DeleteType handles DELETE /api/v1/ci-types/:id
// @Summary      Delete CI type
// @Tags         ci-types
// @Param        id path string true "CI type ID (UUID)"
// @Success      204 "Deleted"
// @Failure      404 {object} apperror.Error "Not found"
// @Failure      409 {object} apperror.Error "Type still has assets"
// @Router       /api/v1/ci-types/{id} [delete]
// @Security     bearerAuth
func (h *Handler) DeleteType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteType(c.Request().Context(), id, audit.ActorFrom(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListAssets handles GET /api/v1/ci-assets
// @Summary      List CI assets
// @Tags         ci-assets
// @Produce      json
// @Param        ci_type_id query string false "CI type ID (UUID)"
// @Param        search query string false "Name fragment"
// @Param        created_by query string false "Creator user ID (UUID)"
// @Param        created_after query string false "RFC3339 lower bound"
// @Param        created_before query string false "RFC3339 upper bound"
// @Param        limit query int false "Page size (1-100)" default(50)
// @Param        offset query int false "Offset" default(0)
// @Success      200 {object} pagination.Result[CIAsset]
// @Router       /api/v1/ci-assets [get]
// @Security     bearerAuth
func (h *Handler) ListAssets(c echo.Context) error {
	page, err := pagination.Parse(c.QueryParam("limit"), c.QueryParam("offset"), defaultListLimit)
	if err != nil {
		return err
	}
	f := AssetFilter{Search: c.QueryParam("search")}
	if f.CITypeID, err = queryUUID(c, "ci_type_id"); err != nil {
		return err
	}
	if f.CreatedBy, err = queryUUID(c, "created_by"); err != nil {
		return err
	}
	if f.CreatedAfter, err = queryTime(c, "created_after"); err != nil {
		return err
	}
	if f.CreatedBefore, err = queryTime(c, "created_before"); err != nil {
		return err
	}

	res, err := h.svc.ListAssets(c.Request().Context(), f, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// SearchAssets handles GET /api/v1/ci-assets/search
// @Summary      Search CI assets
// @Tags         ci-assets
// @Produce      json
// @Param        q query string true "Asset or type name fragment"
// @Param        limit query int false "Maximum results (1-100)" default(20)
// @Success      200 {object} map[string]any
// @Failure      422 {object} apperror.Error "Missing query"
// @Router       /api/v1/ci-assets/search [get]
// @Security     bearerAuth
func (h *Handler) SearchAssets(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return apperror.NewValidation("limit must be an integer")
		}
		limit = n
	}
	assets, err := h.svc.SearchAssets(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": assets})
}

// GetAsset handles GET /api/v1/ci-assets/:id
// @Summary      Get CI asset
// @Tags         ci-assets
// @Produce      json
// @Param        id path string true "CI asset ID (UUID)"
// @Success      200 {object} CIAsset
// @Failure      404 {object} apperror.Error "Not found"
// @Router       /api/v1/ci-assets/{id} [get]
// @Security     bearerAuth
func (h *Handler) GetAsset(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAsset(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// CreateAsset handles POST /api/v1/ci-assets
// @Summary      Create CI asset
// @Description  Creates an asset; attributes are validated against the type's schema
// @Tags         ci-assets
// @Accept       json
// @Produce      json
// @Param        request body CreateAssetRequest true "CI asset"
// @Success      201 {object} CIAsset
// @Failure      404 {object} apperror.Error "CI type not found"
// @Failure      422 {object} apperror.Error "Attributes do not match the schema"
// @Router       /api/v1/ci-assets [post]
// @Security     bearerAuth
func (h *Handler) CreateAsset(c echo.Context) error {
	var req CreateAssetRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	a, err := h.svc.CreateAsset(c.Request().Context(), req, audit.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

// UpdateAsset handles PUT /api/v1/ci-assets/:id
// @Summary      Update CI asset
// @Tags         ci-assets
// @Accept       json
// @Produce      json
// @Param        id path string true "CI asset ID (UUID)"
// @Param        request body UpdateAssetRequest true "Name and/or attributes"
// @Success      200 {object} CIAsset
// @Failure      404 {object} apperror.Error "Not found"
// @Failure      422 {object} apperror.Error "Validation failed"
// @Router       /api/v1/ci-assets/{id} [put]
// @Security     bearerAuth
func (h *Handler) UpdateAsset(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req UpdateAssetRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	a, err := h.svc.UpdateAsset(c.Request().Context(), id, req, audit.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// DeleteAsset handles DELETE /api/v1/ci-assets/:id
// @Summary      Delete CI asset
// @Tags         ci-assets
// @Param        id path string true "CI asset ID (UUID)"
// @Success      204 "Deleted"
// @Failure      404 {object} apperror.Error "Not found"
// @Router       /api/v1/ci-assets/{id} [delete]
// @Security     bearerAuth
func (h *Handler) DeleteAsset(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAsset(c.Request().Context(), id, audit.ActorFrom(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperror.NewValidation(name + " must be a UUID")
	}
	return &id, nil
}

func queryTime(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperror.NewValidation(name + " must be an RFC3339 timestamp")
	}
	return &t, nil
}
