package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/auth"
	"github.com/tahopetis/crate/pkg/logger"
)

// Actor identifies who performed a mutation and from where.
type Actor struct {
	UserID    uuid.UUID
	IPAddress string
	UserAgent string
}

// ActorFrom builds an Actor from the authenticated request.
func ActorFrom(c echo.Context) Actor {
	a := Actor{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
	if u := auth.GetUser(c); u != nil {
		a.UserID = u.ID
	}
	return a
}

// Entry describes one mutation. Old and New are snapshots that marshal to
// JSON objects; either may be nil.
type Entry struct {
	EntityType string
	EntityID   uuid.UUID
	Action     string
	Old        any
	New        any
	Actor      Actor
}

// Recorder appends audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) (uuid.UUID, error)
}

// Log records e and only logs a failure. Managers call it after the
// authoritative write has succeeded. A nil rec is a no-op.
func Log(ctx context.Context, rec Recorder, log *slog.Logger, e Entry) {
	if rec == nil {
		return
	}
	if _, err := rec.Record(ctx, e); err != nil {
		log.Warn("audit record failed",
			slog.String("entity_type", e.EntityType),
			slog.String("entity_id", e.EntityID.String()),
			slog.String("action", e.Action),
			logger.Error(err),
		)
	}
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
