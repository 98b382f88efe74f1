package ci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/domain/graph"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
	"github.com/tahopetis/crate/pkg/pagination"
	"github.com/tahopetis/crate/pkg/schema"
	"github.com/tahopetis/crate/pkg/validate"
)

const (
	defaultListLimit   = 50
	defaultSearchLimit = 20
)

// Service manages CI types and assets.
type Service struct {
	store     Store
	validator schema.Validator
	mirror    *graph.Mirror
	recorder  audit.Recorder
	log       *slog.Logger
	now       func() time.Time
}

// NewService creates a new CI service
func NewService(store Store, validator schema.Validator, mirror *graph.Mirror, recorder audit.Recorder, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		validator: validator,
		mirror:    mirror,
		recorder:  recorder,
		log:       log.With(logger.Scope("ci.svc")),
		now:       time.Now,
	}
}

// normalizeAttributes defaults missing attributes to {} and requires a JSON object.
func normalizeAttributes(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, apperror.NewValidation("attributes must be a JSON object")
	}
	return json.RawMessage(trimmed), nil
}

func (s *Service) checkTypeSchema(attributes json.RawMessage) error {
	doc := schema.Extract(attributes)
	if doc == nil {
		return nil
	}
	if err := s.validator.Check(doc); err != nil {
		return apperror.NewValidation("attributes.schema is not a valid JSON Schema: " + err.Error())
	}
	return nil
}

func (s *Service) validateAgainstType(t *CIType, attributes json.RawMessage) error {
	doc := schema.Extract(t.Attributes)
	if doc == nil {
		return nil
	}
	problems, err := s.validator.Validate(doc, attributes)
	if errors.Is(err, schema.ErrInvalidSchema) {
		return apperror.NewValidation("CI type '" + t.Name + "' has an invalid attribute schema")
	}
	if err != nil {
		return apperror.NewInternal("schema validation failed", err)
	}
	if len(problems) > 0 {
		return apperror.NewValidationErrors("Attributes do not match the CI type schema", schema.Strings(problems))
	}
	return nil
}

// CreateType creates a CI type with a name unique among live types.
func (s *Service) CreateType(ctx context.Context, req CreateTypeRequest, actor audit.Actor) (*CIType, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	attrs, err := normalizeAttributes(req.Attributes)
	if err != nil {
		return nil, err
	}
	if err := s.checkTypeSchema(attrs); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	exists, err := s.store.TypeNameExists(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.NewConflict("CI type with this name already exists")
	}

	now := s.now().UTC()
	t := &CIType{
		ID:          uuid.New(),
		Name:        name,
		Description: req.Description,
		Attributes:  attrs,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateType(ctx, t); err != nil {
		return nil, err
	}

	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityType, EntityID: t.ID, Action: audit.ActionCreate, New: t, Actor: actor,
	})
	return t, nil
}

// GetType returns a live CI type.
func (s *Service) GetType(ctx context.Context, id uuid.UUID) (*CIType, error) {
	return s.store.GetType(ctx, id)
}

// UpdateType overwrites every supplied field. A changed name must stay unique.
func (s *Service) UpdateType(ctx context.Context, id uuid.UUID, req UpdateTypeRequest, actor audit.Actor) (*CIType, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.empty() {
		return nil, apperror.NewValidation("no fields to update")
	}

	t, err := s.store.GetType(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *t

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name != t.Name {
			exists, err := s.store.TypeNameExists(ctx, name, &id)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, apperror.NewConflict("CI type with this name already exists")
			}
		}
		t.Name = name
	}
	if req.Description != nil {
		t.Description = req.Description
	}
	if len(req.Attributes) > 0 {
		attrs, err := normalizeAttributes(req.Attributes)
		if err != nil {
			return nil, err
		}
		if err := s.checkTypeSchema(attrs); err != nil {
			return nil, err
		}
		t.Attributes = attrs
	}
	t.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateType(ctx, t); err != nil {
		return nil, err
	}

	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityType, EntityID: t.ID, Action: audit.ActionUpdate, Old: before, New: t, Actor: actor,
	})
	return t, nil
}

// DeleteType soft-deletes a CI type. Types still referenced by live assets
// cannot be deleted.
func (s *Service) DeleteType(ctx context.Context, id uuid.UUID, actor audit.Actor) error {
	t, err := s.store.GetType(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.store.CountLiveAssets(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperror.NewConflict("CI type is still used by assets").
			WithDetails(map[string]any{"asset_count": n})
	}
	if err := s.store.SoftDeleteType(ctx, id); err != nil {
		return err
	}

	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityType, EntityID: id, Action: audit.ActionDelete, Old: t, Actor: actor,
	})
	return nil
}

// ListTypes lists live CI types, newest first.
func (s *Service) ListTypes(ctx context.Context, page pagination.Page) (pagination.Result[CIType], error) {
	types, total, err := s.store.ListTypes(ctx, page)
	if err != nil {
		return pagination.Result[CIType]{}, err
	}
	return pagination.NewResult(types, total, page), nil
}

// CreateAsset creates an asset whose attributes satisfy its type's schema,
// then projects it into the graph.
func (s *Service) CreateAsset(ctx context.Context, req CreateAssetRequest, actor audit.Actor) (*CIAsset, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	t, err := s.store.GetType(ctx, req.CITypeID)
	if err != nil {
		return nil, err
	}
	attrs, err := normalizeAttributes(req.Attributes)
	if err != nil {
		return nil, err
	}
	if err := s.validateAgainstType(t, attrs); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &CIAsset{
		ID:         uuid.New(),
		CITypeID:   t.ID,
		Name:       strings.TrimSpace(req.Name),
		Attributes: attrs,
		CreatedBy:  actor.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
		CITypeName: t.Name,
	}
	if err := s.store.CreateAsset(ctx, a); err != nil {
		return nil, err
	}

	s.mirrorUpsert(ctx, a)
	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityAsset, EntityID: a.ID, Action: audit.ActionCreate, New: a, Actor: actor,
	})
	return a, nil
}

// GetAsset returns a live asset joined with its type name.
func (s *Service) GetAsset(ctx context.Context, id uuid.UUID) (*CIAsset, error) {
	return s.store.GetAsset(ctx, id)
}

// UpdateAsset changes the name and/or attributes. Supplied attributes are
// re-validated against the type's schema.
func (s *Service) UpdateAsset(ctx context.Context, id uuid.UUID, req UpdateAssetRequest, actor audit.Actor) (*CIAsset, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.empty() {
		return nil, apperror.NewValidation("name or attributes must be provided")
	}

	a, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *a

	if req.Name != nil {
		a.Name = strings.TrimSpace(*req.Name)
	}
	if len(req.Attributes) > 0 {
		attrs, err := normalizeAttributes(req.Attributes)
		if err != nil {
			return nil, err
		}
		t, err := s.store.GetType(ctx, a.CITypeID)
		if err != nil {
			return nil, err
		}
		if err := s.validateAgainstType(t, attrs); err != nil {
			return nil, err
		}
		a.Attributes = attrs
	}
	a.UpdatedBy = &actor.UserID
	a.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateAsset(ctx, a); err != nil {
		return nil, err
	}

	s.mirrorUpsert(ctx, a)
	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityAsset, EntityID: a.ID, Action: audit.ActionUpdate, Old: before, New: a, Actor: actor,
	})
	return a, nil
}

// DeleteAsset soft-deletes an asset together with its live relationships
// and removes its node from the graph.
func (s *Service) DeleteAsset(ctx context.Context, id uuid.UUID, actor audit.Actor) error {
	a, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SoftDeleteAsset(ctx, id, actor.UserID); err != nil {
		return err
	}

	s.mirror.Try(ctx, graph.Op{Kind: graph.KindAsset, Action: "delete"}, id,
		func(ctx context.Context, p graph.Projection) error {
			return p.DeleteAssetNode(ctx, id)
		})
	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityAsset, EntityID: id, Action: audit.ActionDelete, Old: a, Actor: actor,
	})
	return nil
}

func (s *Service) mirrorUpsert(ctx context.Context, a *CIAsset) {
	node := graph.AssetNode{
		ID:         a.ID,
		Name:       a.Name,
		CIType:     a.CITypeName,
		CITypeID:   a.CITypeID,
		Attributes: a.Attributes,
	}
	s.mirror.Try(ctx, graph.Op{Kind: graph.KindAsset, Action: "upsert"}, a.ID,
		func(ctx context.Context, p graph.Projection) error {
			return p.UpsertAssetNode(ctx, node)
		})
}

// ListAssets lists live assets, newest first.
func (s *Service) ListAssets(ctx context.Context, f AssetFilter, page pagination.Page) (pagination.Result[CIAsset], error) {
	if f.CreatedAfter != nil && f.CreatedBefore != nil && f.CreatedAfter.After(*f.CreatedBefore) {
		return pagination.Result[CIAsset]{}, apperror.NewValidation("created_after must not be after created_before")
	}
	f.Search = strings.TrimSpace(f.Search)
	assets, total, err := s.store.ListAssets(ctx, f, page)
	if err != nil {
		return pagination.Result[CIAsset]{}, err
	}
	return pagination.NewResult(assets, total, page), nil
}

// SearchAssets matches q against asset and type names.
func (s *Service) SearchAssets(ctx context.Context, q string, limit int) ([]CIAsset, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperror.NewValidation("search query is required")
	}
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if limit < pagination.MinLimit || limit > pagination.MaxLimit {
		return nil, apperror.NewValidation("limit must be between 1 and 100")
	}
	return s.store.SearchAssets(ctx, q, limit)
}

// CountTypes returns the number of live CI types.
func (s *Service) CountTypes(ctx context.Context) (int, error) {
	return s.store.CountTypes(ctx)
}

// CountAssets returns the number of live assets.
func (s *Service) CountAssets(ctx context.Context) (int, error) {
	return s.store.CountAssets(ctx)
}

// AssetsPerType returns the CI types with the most live assets.
func (s *Service) AssetsPerType(ctx context.Context, limit int) ([]TypeAssetCount, error) {
	return s.store.AssetsPerType(ctx, limit)
}
