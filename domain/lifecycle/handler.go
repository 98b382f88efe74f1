package lifecycle

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/pkg/apperror"
)

// Handler handles HTTP requests for lifecycle definitions
type Handler struct {
	svc *Service
}

// NewHandler creates a new lifecycle handler
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

// Colors handles GET /api/v1/lifecycle-colors
// @Summary      Lifecycle color palette
// @Tags         lifecycles
// @Produce      json
// @Success      200 {array} string
// @Router       /api/v1/lifecycle-colors [get]
// @Security     bearerAuth
func (h *Handler) Colors(c echo.Context) error {
	return c.JSON(http.StatusOK, Palette)
}

// ListTypes handles GET /api/v1/lifecycle-types
// @Summary      List lifecycle types
// @Tags         lifecycles
// @Produce      json
// @Param        include_inactive query bool false "Include inactive types"
// @Success      200 {array} Summary
// @Router       /api/v1/lifecycle-types [get]
// @Security     bearerAuth
func (h *Handler) ListTypes(c echo.Context) error {
	includeInactive := false
	if raw := c.QueryParam("include_inactive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return apperror.NewValidation("include_inactive must be a boolean")
		}
		includeInactive = v
	}
	out, err := h.svc.ListTypes(c.Request().Context(), includeInactive)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// GetType handles GET /api/v1/lifecycle-types/:id
// @Summary      Get lifecycle type with states and transitions
// @Tags         lifecycles
// @Produce      json
// @Param        id path string true "Lifecycle type ID (UUID)"
// @Success      200 {object} Type
// @Failure      404 {object} apperror.Error "Not found"
// @Router       /api/v1/lifecycle-types/{id} [get]
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

// CreateType handles POST /api/v1/lifecycle-types
// @Summary      Create lifecycle type
// @Tags         lifecycles
// @Accept       json
// @Produce      json
// @Param        request body CreateTypeRequest true "Lifecycle type"
// @Success      201 {object} Type
// @Failure      422 {object} apperror.Error "Validation failed or duplicate name"
// @Router       /api/v1/lifecycle-types [post]
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

// UpdateType handles PUT /api/v1/lifecycle-types/:id
// @Summary      Update lifecycle type
// @Tags         lifecycles
// @Accept       json
// @Produce      json
// @Param        id path string true "Lifecycle type ID (UUID)"
// @Param        request body UpdateTypeRequest true "Fields to overwrite"
// @Success      200 {object} Type
// @Failure      404 {object} apperror.Error "Not found"
// @Failure      422 {object} apperror.Error "Validation failed"
// @Router       /api/v1/lifecycle-types/{id} [put]
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

// DeleteType handles DELETE /api/v1/lifecycle-types/:id
// @Summary      Delete lifecycle type
// @Tags         lifecycles
// @Param        id path string true "Lifecycle type ID (UUID)"
// @Success      204 "Deleted"
// @Failure      404 {object} apperror.Error "Not found"
// @Failure      409 {object} apperror.Error "Still mapped to CI types"
// @Router       /api/v1/lifecycle-types/{id} [delete]
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

// CreateState handles POST /api/v1/lifecycle-types/:id/states
// @Summary      Add state
// @Tags         lifecycles
// @Accept       json
// @Produce      json
// @Param        id path string true "Lifecycle type ID (UUID)"
// @Param        request body CreateStateRequest true "State"
// @Success      201 {object} State
// @Failure      404 {object} apperror.Error "Lifecycle type not found"
// @Failure      422 {object} apperror.Error "Duplicate name, order or initial state"
// @Router       /api/v1/lifecycle-types/{id}/states [post]
// @Security     bearerAuth
func (h *Handler) CreateState(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req CreateStateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	st, err := h.svc.CreateState(c.Request().Context(), id, req, audit.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, st)
}

// GetState handles GET /api/v1/lifecycle-states/:id
// @Summary      Get state
// @Tags         lifecycles
// @Produce      json
// @Param        id path string true "State ID (UUID)"
// @Success      200 {object} State
// @Failure      404 {object} apperror.Error "Not found"
// @Router       /api/v1/lifecycle-states/{id} [get]
// @Security     bearerAuth
func (h *Handler) GetState(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.GetState(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// UpdateState handles PUT /api/v1/lifecycle-states/:id
// @Summary      Update state
// @Tags         lifecycles
// @Accept       json
// @Produce      json
// @Param        id path string true "State ID (UUID)"
// @Param        request body UpdateStateRequest true "Fields to overwrite"
// @Success      200 {object} State
// @Failure      404 {object} apperror.Error "Not found"
// @Failure      422 {object} apperror.Error "Validation failed"
// @Router       /api/v1/lifecycle-states/{id} [put]
// @Security     bearerAuth
func (h *Handler) UpdateState(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req UpdateStateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	st, err := h.svc.UpdateState(c.Request().Context(), id, req, audit.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// DeleteState handles DELETE /api/v1/lifecycle-states/:id
// @Summary      Delete state
// @Tags         lifecycles
// @Param        id path string true "State ID (UUID)"
// @Success      204 "Deleted"
// @Failure      404 {object} apperror.Error "Not found"
// @Failure      422 {object} apperror.Error "Referenced by a transition"
// @Router       /api/v1/lifecycle-states/{id} [delete]
// @Security     bearerAuth
func (h *Handler) DeleteState(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteState(c.Request().Context(), id, audit.ActorFrom(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateTransition handles POST /api/v1/lifecycle-types/:id/transitions
// @Summary      Add transition
// @Tags         lifecycles
// @Accept       json
// @Produce      json
// @Param        id path string true "Lifecycle type ID (UUID)"
// @Param        request body CreateTransitionRequest true "Transition"
// @Success      201 {object} Transition
// @Failure      404 {object} apperror.Error "Lifecycle type not found"
// @Failure      422 {object} apperror.Error "Foreign state or duplicate transition"
// @Router       /api/v1/lifecycle-types/{id}/transitions [post]
// @Security     bearerAuth
func (h *Handler) CreateTransition(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req CreateTransitionRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	tr, err := h.svc.CreateTransition(c.Request().Context(), id, req, audit.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tr)
}

// DeleteTransition handles DELETE /api/v1/lifecycle-transitions/:id
// @Summary      Delete transition
// @Tags         lifecycles
// @Param        id path string true "Transition ID (UUID)"
// @Success      204 "Deleted"
// @Failure      404 {object} apperror.Error "Not found"
// @Router       /api/v1/lifecycle-transitions/{id} [delete]
// @Security     bearerAuth
func (h *Handler) DeleteTransition(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTransition(c.Request().Context(), id, audit.ActorFrom(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateMapping handles POST /api/v1/ci-type-lifecycles
// @Summary      Map lifecycle to CI type
// @Description  Marking a mapping as default clears the CI type's previous default.
// @Tags         lifecycles
// @Accept       json
// @Produce      json
// @Param        request body CreateMappingRequest true "Mapping"
// @Success      201 {object} Mapping
// @Failure      404 {object} apperror.Error "CI type or lifecycle type not found"
// @Router       /api/v1/ci-type-lifecycles [post]
// @Security     bearerAuth
func (h *Handler) CreateMapping(c echo.Context) error {
	var req CreateMappingRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	m, err := h.svc.CreateMapping(c.Request().Context(), req, audit.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

// DeleteMapping handles DELETE /api/v1/ci-type-lifecycles/:id
// @Summary      Unmap lifecycle from CI type
// @Tags         lifecycles
// @Param        id path string true "Mapping ID (UUID)"
// @Success      204 "Deleted"
// @Failure      404 {object} apperror.Error "Not found"
// @Router       /api/v1/ci-type-lifecycles/{id} [delete]
// @Security     bearerAuth
func (h *Handler) DeleteMapping(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMapping(c.Request().Context(), id, audit.ActorFrom(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListForCIType handles GET /api/v1/ci-types/:id/lifecycles
// @Summary      Lifecycles of a CI type
// @Tags         lifecycles
// @Produce      json
// @Param        id path string true "CI type ID (UUID)"
// @Success      200 {array} Summary
// @Failure      404 {object} apperror.Error "CI type not found"
// @Router       /api/v1/ci-types/{id}/lifecycles [get]
// @Security     bearerAuth
func (h *Handler) ListForCIType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.ListForCIType(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}
