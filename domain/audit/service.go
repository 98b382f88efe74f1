package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/jsondiff"
	"github.com/tahopetis/crate/pkg/logger"
	"github.com/tahopetis/crate/pkg/pagination"
)

// Service records and queries audit entries.
type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewService creates a new audit service
func NewService(store Store, log *slog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With(logger.Scope("audit.svc")),
		now:   time.Now,
	}
}

// Record appends e and returns the new entry id. The key-level diff of Old
// and New is stored alongside the snapshots.
func (s *Service) Record(ctx context.Context, e Entry) (uuid.UUID, error) {
	if e.EntityType == "" || e.Action == "" || e.EntityID == uuid.Nil {
		return uuid.Nil, apperror.NewValidation("audit entry requires entity_type, entity_id and action")
	}

	oldRaw, err := snapshot(e.Old)
	if err != nil {
		return uuid.Nil, apperror.NewInternal("marshal old values", err)
	}
	newRaw, err := snapshot(e.New)
	if err != nil {
		return uuid.Nil, apperror.NewInternal("marshal new values", err)
	}

	entry := &LogEntry{
		ID:          uuid.New(),
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		OldValues:   oldRaw,
		NewValues:   newRaw,
		PerformedBy: e.Actor.UserID,
		CreatedAt:   s.now().UTC(),
	}
	if e.Actor.IPAddress != "" {
		entry.IPAddress = &e.Actor.IPAddress
	}
	if e.Actor.UserAgent != "" {
		entry.UserAgent = &e.Actor.UserAgent
	}

	if oldRaw != nil || newRaw != nil {
		changes, err := jsondiff.Diff(oldRaw, newRaw)
		if err != nil {
			s.log.Debug("audit diff skipped", logger.Error(err))
		} else if !changes.Empty() {
			entry.Changes, _ = json.Marshal(changes)
		}
	}

	if err := s.store.Insert(ctx, entry); err != nil {
		return uuid.Nil, err
	}
	return entry.ID, nil
}

// Query lists entries newest first.
func (s *Service) Query(ctx context.Context, q Query, page pagination.Page) (pagination.Result[LogEntry], error) {
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return pagination.Result[LogEntry]{}, apperror.NewValidation("from must not be after to")
	}
	q.Limit, q.Offset = page.Limit, page.Offset
	entries, total, err := s.store.List(ctx, q)
	if err != nil {
		return pagination.Result[LogEntry]{}, err
	}
	return pagination.NewResult(entries, total, page), nil
}

// Purge removes entries older than retention. A zero retention keeps
// everything.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	return s.store.PurgeBefore(ctx, s.now().Add(-retention))
}
