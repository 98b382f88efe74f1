package relationships

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/domain/graph"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
	"github.com/tahopetis/crate/pkg/pagination"
	"github.com/tahopetis/crate/pkg/validate"
)

const (
	defaultTypeLimit = 50
	defaultListLimit = 100
)

// Service manages relationship types and instances. PostgreSQL is the
// source of truth; Neo4j is a best-effort projection.
type Service struct {
	store    Store
	mirror   *graph.Mirror
	recorder audit.Recorder
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates a new relationship service
func NewService(store Store, mirror *graph.Mirror, recorder audit.Recorder, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		mirror:   mirror,
		recorder: recorder,
		log:      log.With(logger.Scope("relationships")),
		now:      time.Now,
	}
}

func normalizeObject(raw json.RawMessage, field string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, apperror.NewValidation(field + " must be a JSON object")
	}
	return json.RawMessage(trimmed), nil
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// checkTypeInvariants validates the rules that hold for every stored type.
func checkTypeInvariants(t *RelationshipType) error {
	if t.IsBidirectional && t.ReverseName == nil {
		return apperror.NewValidation("reverse_name is required for bidirectional relationship types")
	}
	if t.FromCITypeID != nil && t.ToCITypeID != nil && *t.FromCITypeID == *t.ToCITypeID {
		return apperror.NewValidation("from_ci_type_id and to_ci_type_id must differ")
	}
	return nil
}

// resolveEndpoints fills in the endpoint CI type names, failing with
// NotFound for an unknown or deleted CI type.
func (s *Service) resolveEndpoints(ctx context.Context, t *RelationshipType) error {
	t.FromCITypeName, t.ToCITypeName = nil, nil
	if t.FromCITypeID != nil {
		name, err := s.store.CITypeName(ctx, *t.FromCITypeID)
		if err != nil {
			return err
		}
		t.FromCITypeName = &name
	}
	if t.ToCITypeID != nil {
		name, err := s.store.CITypeName(ctx, *t.ToCITypeID)
		if err != nil {
			return err
		}
		t.ToCITypeName = &name
	}
	return nil
}

func (s *Service) registerLabel(ctx context.Context, t *RelationshipType) {
	name := t.Name
	s.mirror.Try(ctx, graph.Op{Kind: graph.KindRelationshipType, Action: "register"}, t.ID,
		func(ctx context.Context, p graph.Projection) error {
			return p.RegisterRelationshipLabel(ctx, name)
		})
}

// CreateType creates a relationship type and registers its edge label with
// the graph.
func (s *Service) CreateType(ctx context.Context, req CreateTypeRequest, actor audit.Actor) (*RelationshipType, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	schemaDoc, err := normalizeObject(req.AttributesSchema, "attributes_schema")
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	exists, err := s.store.TypeNameExists(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.NewConflict("Relationship type with this name already exists")
	}

	now := s.now().UTC()
	t := &RelationshipType{
		ID:               uuid.New(),
		Name:             name,
		Description:      req.Description,
		FromCITypeID:     req.FromCITypeID,
		ToCITypeID:       req.ToCITypeID,
		IsBidirectional:  req.IsBidirectional,
		ReverseName:      trimmedPtr(req.ReverseName),
		AttributesSchema: schemaDoc,
		CreatedBy:        actor.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.resolveEndpoints(ctx, t); err != nil {
		return nil, err
	}
	if err := checkTypeInvariants(t); err != nil {
		return nil, err
	}
	if err := s.store.CreateType(ctx, t); err != nil {
		return nil, err
	}

	s.registerLabel(ctx, t)
	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityType, EntityID: t.ID, Action: audit.ActionCreate, New: t, Actor: actor,
	})
	return t, nil
}

// GetType returns a live relationship type with its endpoint type names.
func (s *Service) GetType(ctx context.Context, id uuid.UUID) (*RelationshipType, error) {
	return s.store.GetType(ctx, id)
}

// ListTypes lists live relationship types by name.
func (s *Service) ListTypes(ctx context.Context, f TypeFilter, page pagination.Page) (pagination.Result[RelationshipType], error) {
	f.Search = strings.TrimSpace(f.Search)
	types, total, err := s.store.ListTypes(ctx, f, page)
	if err != nil {
		return pagination.Result[RelationshipType]{}, err
	}
	return pagination.NewResult(types, total, page), nil
}

// UpdateType applies the supplied fields and re-checks the type invariants
// against the merged result.
func (s *Service) UpdateType(ctx context.Context, id uuid.UUID, req UpdateTypeRequest, actor audit.Actor) (*RelationshipType, error) {
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
	renamed := false

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name != t.Name {
			exists, err := s.store.TypeNameExists(ctx, name, &id)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, apperror.NewConflict("Relationship type with this name already exists")
			}
			renamed = true
		}
		t.Name = name
	}
	if req.Description != nil {
		t.Description = req.Description
	}
	switch {
	case req.ClearFromCIType:
		t.FromCITypeID = nil
	case req.FromCITypeID != nil:
		t.FromCITypeID = req.FromCITypeID
	}
	switch {
	case req.ClearToCIType:
		t.ToCITypeID = nil
	case req.ToCITypeID != nil:
		t.ToCITypeID = req.ToCITypeID
	}
	if req.IsBidirectional != nil {
		t.IsBidirectional = *req.IsBidirectional
	}
	if req.ReverseName != nil {
		t.ReverseName = trimmedPtr(req.ReverseName)
	}
	if len(req.AttributesSchema) > 0 {
		doc, err := normalizeObject(req.AttributesSchema, "attributes_schema")
		if err != nil {
			return nil, err
		}
		t.AttributesSchema = doc
	}

	if err := s.resolveEndpoints(ctx, t); err != nil {
		return nil, err
	}
	if err := checkTypeInvariants(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateType(ctx, t); err != nil {
		return nil, err
	}

	if renamed {
		s.registerLabel(ctx, t)
	}
	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityType, EntityID: t.ID, Action: audit.ActionUpdate, Old: before, New: t, Actor: actor,
	})
	return t, nil
}

// DeleteType soft-deletes a relationship type that no live relationship uses.
func (s *Service) DeleteType(ctx context.Context, id uuid.UUID, actor audit.Actor) error {
	t, err := s.store.GetType(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.store.CountLiveRelationships(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperror.NewConflict("Relationship type is still used by relationships").
			WithDetails(map[string]any{"relationship_count": n})
	}
	if err := s.store.SoftDeleteType(ctx, id); err != nil {
		return err
	}

	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityType, EntityID: id, Action: audit.ActionDelete, Old: t, Actor: actor,
	})
	return nil
}

// Create links two assets. The relational insert is the commit point; the
// graph edge is mirrored afterwards and its failure does not affect the
// result.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor audit.Actor) (*Relationship, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.FromCIAssetID == req.ToCIAssetID {
		return nil, apperror.NewValidation("a CI asset cannot be related to itself")
	}
	attrs, err := normalizeObject(req.Attributes, "attributes")
	if err != nil {
		return nil, err
	}

	t, err := s.store.GetType(ctx, req.RelationshipTypeID)
	if err != nil {
		return nil, err
	}
	from, err := s.store.GetAssetRef(ctx, req.FromCIAssetID)
	if err != nil {
		return nil, err
	}
	to, err := s.store.GetAssetRef(ctx, req.ToCIAssetID)
	if err != nil {
		return nil, err
	}

	if t.FromCITypeID != nil && from.CITypeID != *t.FromCITypeID {
		return nil, apperror.NewValidation("source CI asset type does not match relationship type constraint")
	}
	if t.ToCITypeID != nil && to.CITypeID != *t.ToCITypeID {
		return nil, apperror.NewValidation("target CI asset type does not match relationship type constraint")
	}

	exists, err := s.store.TripleExists(ctx, t.ID, from.ID, to.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.NewConflict("Relationship already exists")
	}

	rel, err := commitAuthoritative(ctx, "create", func(ctx context.Context) (*Relationship, error) {
		now := s.now().UTC()
		rel := &Relationship{
			ID:                 uuid.New(),
			RelationshipTypeID: t.ID,
			FromCIAssetID:      from.ID,
			ToCIAssetID:        to.ID,
			Attributes:         attrs,
			CreatedBy:          actor.UserID,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return rel, s.store.Create(ctx, rel)
	})
	if err != nil {
		return nil, err
	}

	edge := edgeOf(rel, t, from, to)
	fromNode, toNode := nodeOf(from), nodeOf(to)
	s.tryMirror(ctx, "merge", rel.ID, func(ctx context.Context, p graph.Projection) error {
		return p.MergeEdge(ctx, edge, fromNode, toNode)
	})

	view, err := s.store.Get(ctx, rel.ID)
	if err != nil {
		s.log.Warn("reload created relationship", slog.String("id", rel.ID.String()), logger.Error(err))
		view = rel
		view.RelationshipTypeName = t.Name
		view.IsBidirectional = t.IsBidirectional
		view.FromAssetName, view.FromCITypeName = from.Name, from.CITypeName
		view.ToAssetName, view.ToCITypeName = to.Name, to.CITypeName
	}

	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityRelationship, EntityID: rel.ID, Action: audit.ActionCreate, New: view, Actor: actor,
	})
	return view, nil
}

// Get returns a live relationship in its joined view.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Relationship, error) {
	return s.store.Get(ctx, id)
}

// List lists live relationships, newest first.
func (s *Service) List(ctx context.Context, f Filter, page pagination.Page) (pagination.Result[Relationship], error) {
	rels, total, err := s.store.List(ctx, f, page)
	if err != nil {
		return pagination.Result[Relationship]{}, err
	}
	return pagination.NewResult(rels, total, page), nil
}

// Delete soft-deletes a relationship, then removes its graph edge.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor audit.Actor) error {
	rel, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := commitAuthoritative(ctx, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.SoftDelete(ctx, id)
	}); err != nil {
		return err
	}

	from, to, typeID := rel.FromCIAssetID, rel.ToCIAssetID, rel.RelationshipTypeID
	s.tryMirror(ctx, "delete", id, func(ctx context.Context, p graph.Projection) error {
		return p.DeleteEdge(ctx, from, to, typeID)
	})

	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: EntityRelationship, EntityID: id, Action: audit.ActionDelete, Old: rel, Actor: actor,
	})
	return nil
}

// CountTypes returns the number of live relationship types.
func (s *Service) CountTypes(ctx context.Context) (int, error) {
	return s.store.CountTypes(ctx)
}

// Count returns the number of live relationships.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
