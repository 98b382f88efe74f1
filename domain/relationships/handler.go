package relationships

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/pagination"
)

// Handler handles HTTP requests for relationship types and relationships
type Handler struct {
	svc *Service
}

// NewHandler creates a new relationship handler
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

func queryBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperror.NewValidation(name + " must be a boolean")
	}
	return &v, nil
}

// ListTypes handles GET /api/v1/relationship-types
// @Summary      List relationship types
// @Tags         relationship-types
// @Produce      json
// @Param        search query string false "Matches name or description"
// @Param        from_ci_type_id query string false "Source CI type ID (UUID)"
// @Param        to_ci_type_id query string false "Target CI type ID (UUID)"
// @Param        is_bidirectional query bool false "Bidirectional only"
// @Param        limit query int false "Page size (1-100)" default(50)
// @Param        offset query int false "Offset" default(0)
// @Success      200 {object} pagination.Result[RelationshipType]
// @Failure      422 {object} apperror.Error "Invalid filter"
// @Router       /api/v1/relationship-types [get]
// @Security     bearerAuth
func (h *Handler) ListTypes(c echo.Context) error {
	page, err := pagination.Parse(c.QueryParam("limit"), c.QueryParam("offset"), defaultTypeLimit)
	if err != nil {
		return err
	}
	f := TypeFilter{Search: c.QueryParam("search")}
	if f.FromCITypeID, err = queryUUID(c, "from_ci_type_id"); err != nil {
		return err
	}
	if f.ToCITypeID, err = queryUUID(c, "to_ci_type_id"); err != nil {
		return err
	}
	if f.IsBidirectional, err = queryBool(c, "is_bidirectional"); err != nil {
		return err
	}

	res, err := h.svc.ListTypes(c.Request().Context(), f, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// GetType handles GET /api/v1/relationship-types/:id
// @Summary      Get relationship type
// @Tags         relationship-types
// @Produce      json
// @Param        id path string true "Relationship type ID (UUID)"
// @Success      200 {object} RelationshipType
// @Failure      404 {object} apperror.Error "Not found"
// @Router       /api/v1/relationship-types/{id} [get]
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

// CreateType handles POST /api/v1/relationship-types
// @Summary      Create relationship type
// @Description  Bidirectional types need a reverse_name. Endpoint CI types, when both set, must differ.
// @Tags         relationship-types
// @Accept       json
// @Produce      json
// @Param        request body CreateTypeRequest true "Relationship type"
// @Success      201 {object} RelationshipType
// @Failure      404 {object} apperror.Error "Endpoint CI type not found"
// @Failure      409 {object} apperror.Error "Name already in use"
// @Failure      422 {object} apperror.Error "Validation failed"
// @Router       /api/v1/relationship-types [post]
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

// UpdateType handles PUT /api/v1/relationship-types/:id
// @Summary      Update relationship type
// @Tags         relationship-types
// @Accept       json
// @Produce      json
// @Param        id path string true "Relationship type ID (UUID)"
// @Param        request body UpdateTypeRequest true "Fields to overwrite"
// @Success      200 {object} RelationshipType
// @Failure      404 {object} apperror.Error "Not found"
// @Failure      409 {object} apperror.Error "Name already in use"
// @Failure      422 {object} apperror.Error "Validation failed"
// @Router       /api/v1/relationship-types/{id} [put]
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

// DeleteType handles DELETE /api/v1/relationship-types/:id
// @Summary      Delete relationship type
// @Tags         relationship-types
// @Param        id path string true "Relationship type ID (UUID)"
// @Success      204 "Deleted"
// @Failure      404 {object} apperror.Error "Not found"
// @Failure      409 {object} apperror.Error "Type still has relationships"
// @Router       /api/v1/relationship-types/{id} [delete]
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

// List handles GET /api/v1/relationships
// @Summary      List relationships
// @Tags         relationships
// @Produce      json
// @Param        relationship_type_id query string false "Relationship type ID (UUID)"
// @Param        ci_asset_id query string false "Either endpoint (UUID)"
// @Param        from_ci_asset_id query string false "Source asset ID (UUID)"
// @Param        to_ci_asset_id query string false "Target asset ID (UUID)"
// @Param        limit query int false "Page size (1-100)" default(100)
// @Param        offset query int false "Offset" default(0)
// @Success      200 {object} pagination.Result[Relationship]
// @Failure      422 {object} apperror.Error "Invalid filter"
// @Router       /api/v1/relationships [get]
// @Security     bearerAuth
func (h *Handler) List(c echo.Context) error {
	page, err := pagination.Parse(c.QueryParam("limit"), c.QueryParam("offset"), defaultListLimit)
	if err != nil {
		return err
	}
	var f Filter
	if f.RelationshipTypeID, err = queryUUID(c, "relationship_type_id"); err != nil {
		return err
	}
	if f.CIAssetID, err = queryUUID(c, "ci_asset_id"); err != nil {
		return err
	}
	if f.FromCIAssetID, err = queryUUID(c, "from_ci_asset_id"); err != nil {
		return err
	}
	if f.ToCIAssetID, err = queryUUID(c, "to_ci_asset_id"); err != nil {
		return err
	}

	res, err := h.svc.List(c.Request().Context(), f, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Get handles GET /api/v1/relationships/:id
// @Summary      Get relationship
// @Tags         relationships
// @Produce      json
// @Param        id path string true "Relationship ID (UUID)"
// @Success      200 {object} Relationship
// @Failure      404 {object} apperror.Error "Not found"
// @Router       /api/v1/relationships/{id} [get]
// @Security     bearerAuth
func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rel, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rel)
}

// Create handles POST /api/v1/relationships
// @Summary      Create relationship
// @Description  Links two CI assets. The graph projection is updated best-effort.
// @Tags         relationships
// @Accept       json
// @Produce      json
// @Param        request body CreateRequest true "Relationship"
// @Success      201 {object} Relationship
// @Failure      404 {object} apperror.Error "Type or asset not found"
// @Failure      409 {object} apperror.Error "Relationship already exists"
// @Failure      422 {object} apperror.Error "Validation failed"
// @Router       /api/v1/relationships [post]
// @Security     bearerAuth
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	rel, err := h.svc.Create(c.Request().Context(), req, audit.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rel)
}

// Delete handles DELETE /api/v1/relationships/:id
// @Summary      Delete relationship
// @Tags         relationships
// @Param        id path string true "Relationship ID (UUID)"
// @Success      204 "Deleted"
// @Failure      404 {object} apperror.Error "Not found"
// @Router       /api/v1/relationships/{id} [delete]
// @Security     bearerAuth
func (h *Handler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id, audit.ActorFrom(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
