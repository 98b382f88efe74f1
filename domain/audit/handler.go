package audit

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/pagination"
)

// Handler handles HTTP requests for audit queries
type Handler struct {
	svc *Service
}

// NewHandler creates a new audit handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ListLogs handles GET /api/v1/audit/logs
// @Summary      List audit log entries
// @Description  Returns audit entries newest first, filtered by entity, actor and time range
// @Tags         audit
// @Produce      json
// @Param        entity_type query string false "Entity type, e.g. ci_asset"
// @Param        entity_id query string false "Entity ID (UUID)"
// @Param        performed_by query string false "Actor user ID (UUID)"
// @Param        from query string false "RFC3339 lower bound"
// @Param        to query string false "RFC3339 upper bound"
// @Param        limit query int false "Page size (1-100)" default(50)
// @Param        offset query int false "Offset" default(0)
// @Success      200 {object} pagination.Result[LogEntry]
// @Failure      403 {object} apperror.Error "Administrator role required"
// @Failure      422 {object} apperror.Error "Invalid filter"
// @Router       /api/v1/audit/logs [get]
// @Security     bearerAuth
func (h *Handler) ListLogs(c echo.Context) error {
	page, err := pagination.Parse(c.QueryParam("limit"), c.QueryParam("offset"), 50)
	if err != nil {
		return err
	}

	q := Query{EntityType: c.QueryParam("entity_type")}
	if q.EntityID, err = optionalUUID(c.QueryParam("entity_id"), "entity_id"); err != nil {
		return err
	}
	if q.PerformedBy, err = optionalUUID(c.QueryParam("performed_by"), "performed_by"); err != nil {
		return err
	}
	if q.From, err = optionalTime(c.QueryParam("from"), "from"); err != nil {
		return err
	}
	if q.To, err = optionalTime(c.QueryParam("to"), "to"); err != nil {
		return err
	}

	result, err := h.svc.Query(c.Request().Context(), q, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func optionalUUID(raw, name string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperror.NewValidation(name + " must be a UUID")
	}
	return &id, nil
}

func optionalTime(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperror.NewValidation(name + " must be an RFC3339 timestamp")
	}
	return &t, nil
}
