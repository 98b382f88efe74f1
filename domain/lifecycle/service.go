package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
	"github.com/tahopetis/crate/pkg/validate"
)

// Service manages lifecycle types, their states and transitions, and the
// mapping of lifecycles onto CI types.
type Service struct {
	store    Store
	recorder audit.Recorder
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates a new lifecycle service
func NewService(store Store, recorder audit.Recorder, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		recorder: recorder,
		log:      log.With(logger.Scope("lifecycle")),
		now:      time.Now,
	}
}

func colorOr(c *string, fallback string) string {
	if c == nil || strings.TrimSpace(*c) == "" {
		return fallback
	}
	return strings.TrimSpace(*c)
}

func (s *Service) record(ctx context.Context, entityType string, id uuid.UUID, action string, before, after any, actor audit.Actor) {
	audit.Log(ctx, s.recorder, s.log, audit.Entry{
		EntityType: entityType, EntityID: id, Action: action, Old: before, New: after, Actor: actor,
	})
}

// CreateType creates a lifecycle type. Names are unique among live types.
func (s *Service) CreateType(ctx context.Context, req CreateTypeRequest, actor audit.Actor) (*Type, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	exists, err := s.store.TypeNameExists(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.NewValidation("a lifecycle type with this name already exists")
	}

	now := s.now().UTC()
	t := &Type{
		ID:           uuid.New(),
		Name:         name,
		Description:  req.Description,
		DefaultColor: colorOr(req.DefaultColor, DefaultColor),
		IsActive:     req.IsActive == nil || *req.IsActive,
		CreatedBy:    actor.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateType(ctx, t); err != nil {
		return nil, err
	}
	s.record(ctx, EntityType, t.ID, audit.ActionCreate, nil, t, actor)
	return t, nil
}

// GetType returns a live lifecycle type with its states in order and its
// transitions.
func (s *Service) GetType(ctx context.Context, id uuid.UUID) (*Type, error) {
	t, err := s.store.GetType(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.States, err = s.store.States(ctx, id); err != nil {
		return nil, err
	}
	if t.Transitions, err = s.store.Transitions(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTypes returns lifecycle summaries ordered by name. Inactive types are
// left out unless includeInactive is set.
func (s *Service) ListTypes(ctx context.Context, includeInactive bool) ([]Summary, error) {
	return s.store.ListTypes(ctx, includeInactive)
}

// UpdateType overwrites the supplied fields.
func (s *Service) UpdateType(ctx context.Context, id uuid.UUID, req UpdateTypeRequest, actor audit.Actor) (*Type, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	t, err := s.store.GetType(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.empty() {
		return nil, apperror.NewValidation("no fields to update")
	}
	before := *t

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		exists, err := s.store.TypeNameExists(ctx, name, &id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperror.NewValidation("a lifecycle type with this name already exists")
		}
		t.Name = name
	}
	if req.Description != nil {
		t.Description = req.Description
	}
	if req.DefaultColor != nil {
		t.DefaultColor = colorOr(req.DefaultColor, t.DefaultColor)
	}
	if req.IsActive != nil {
		t.IsActive = *req.IsActive
	}
	t.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateType(ctx, t); err != nil {
		return nil, err
	}
	s.record(ctx, EntityType, t.ID, audit.ActionUpdate, before, t, actor)
	return t, nil
}

// DeleteType soft-deletes a lifecycle type that no CI type is mapped to.
func (s *Service) DeleteType(ctx context.Context, id uuid.UUID, actor audit.Actor) error {
	t, err := s.store.GetType(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.store.CountMappings(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperror.NewConflict("Lifecycle type is still mapped to CI types").
			WithDetails(map[string]any{"ci_type_count": n})
	}
	if err := s.store.SoftDeleteType(ctx, id); err != nil {
		return err
	}
	s.record(ctx, EntityType, id, audit.ActionDelete, t, nil, actor)
	return nil
}

// checkState enforces per-type uniqueness of name and order_index and the
// single initial state. excludeID is the state being updated, if any.
func (s *Service) checkState(ctx context.Context, st *State, excludeID *uuid.UUID) error {
	exists, err := s.store.StateNameExists(ctx, st.LifecycleTypeID, st.Name, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return apperror.NewValidation("a state with this name already exists in the lifecycle")
	}
	exists, err = s.store.StateOrderExists(ctx, st.LifecycleTypeID, st.OrderIndex, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return apperror.NewValidation("a state with this order_index already exists in the lifecycle")
	}
	if st.IsInitialState {
		exists, err = s.store.InitialStateExists(ctx, st.LifecycleTypeID, excludeID)
		if err != nil {
			return err
		}
		if exists {
			return apperror.NewValidation("the lifecycle already has an initial state")
		}
	}
	return nil
}

// CreateState adds a state to a live lifecycle type.
func (s *Service) CreateState(ctx context.Context, typeID uuid.UUID, req CreateStateRequest, actor audit.Actor) (*State, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	t, err := s.store.GetType(ctx, typeID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	st := &State{
		ID:              uuid.New(),
		LifecycleTypeID: typeID,
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		Color:           colorOr(req.Color, t.DefaultColor),
		OrderIndex:      *req.OrderIndex,
		IsInitialState:  req.IsInitialState,
		IsTerminalState: req.IsTerminalState,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.checkState(ctx, st, nil); err != nil {
		return nil, err
	}
	if err := s.store.CreateState(ctx, st); err != nil {
		return nil, err
	}
	s.record(ctx, EntityState, st.ID, audit.ActionCreate, nil, st, actor)
	return st, nil
}

// GetState returns a state of a live lifecycle type.
func (s *Service) GetState(ctx context.Context, id uuid.UUID) (*State, error) {
	return s.store.GetState(ctx, id)
}

// UpdateState applies the supplied fields with the same checks as creation,
// ignoring the state itself.
func (s *Service) UpdateState(ctx context.Context, id uuid.UUID, req UpdateStateRequest, actor audit.Actor) (*State, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	st, err := s.store.GetState(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.empty() {
		return nil, apperror.NewValidation("no fields to update")
	}
	before := *st

	if req.Name != nil {
		st.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		st.Description = req.Description
	}
	if req.Color != nil {
		st.Color = colorOr(req.Color, st.Color)
	}
	if req.OrderIndex != nil {
		st.OrderIndex = *req.OrderIndex
	}
	if req.IsInitialState != nil {
		st.IsInitialState = *req.IsInitialState
	}
	if req.IsTerminalState != nil {
		st.IsTerminalState = *req.IsTerminalState
	}
	if err := s.checkState(ctx, st, &id); err != nil {
		return nil, err
	}
	st.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateState(ctx, st); err != nil {
		return nil, err
	}
	s.record(ctx, EntityState, st.ID, audit.ActionUpdate, before, st, actor)
	return st, nil
}

// DeleteState removes a state no transition refers to.
func (s *Service) DeleteState(ctx context.Context, id uuid.UUID, actor audit.Actor) error {
	st, err := s.store.GetState(ctx, id)
	if err != nil {
		return err
	}
	inUse, err := s.store.StateInUse(ctx, id)
	if err != nil {
		return err
	}
	if inUse {
		return apperror.NewValidation("state is referenced by a transition")
	}
	if err := s.store.DeleteState(ctx, id); err != nil {
		return err
	}
	s.record(ctx, EntityState, id, audit.ActionDelete, st, nil, actor)
	return nil
}

// stateOf loads a state and requires it to belong to typeID.
func (s *Service) stateOf(ctx context.Context, typeID, stateID uuid.UUID, field string) (*State, error) {
	st, err := s.store.GetState(ctx, stateID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NewValidation(field + " does not exist")
	}
	if err != nil {
		return nil, err
	}
	if st.LifecycleTypeID != typeID {
		return nil, apperror.NewValidation(field + " belongs to another lifecycle type")
	}
	return st, nil
}

// CreateTransition allows moving from one state of a lifecycle to another.
// A missing from_state_id is the transition applied on creation.
func (s *Service) CreateTransition(ctx context.Context, typeID uuid.UUID, req CreateTransitionRequest, actor audit.Actor) (*Transition, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if _, err := s.store.GetType(ctx, typeID); err != nil {
		return nil, err
	}
	to, err := s.stateOf(ctx, typeID, req.ToStateID, "to_state_id")
	if err != nil {
		return nil, err
	}
	var fromName *string
	if req.FromStateID != nil {
		from, err := s.stateOf(ctx, typeID, *req.FromStateID, "from_state_id")
		if err != nil {
			return nil, err
		}
		fromName = &from.Name
	}

	exists, err := s.store.TransitionExists(ctx, typeID, req.FromStateID, req.ToStateID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.NewValidation("this transition already exists")
	}

	tr := &Transition{
		ID:               uuid.New(),
		LifecycleTypeID:  typeID,
		FromStateID:      req.FromStateID,
		ToStateID:        req.ToStateID,
		TransitionName:   strings.TrimSpace(req.TransitionName),
		Description:      req.Description,
		RequiresApproval: req.RequiresApproval,
		CreatedAt:        s.now().UTC(),
		FromStateName:    fromName,
		ToStateName:      to.Name,
	}
	if err := s.store.CreateTransition(ctx, tr); err != nil {
		return nil, err
	}
	s.record(ctx, EntityTransition, tr.ID, audit.ActionCreate, nil, tr, actor)
	return tr, nil
}

// DeleteTransition removes a transition.
func (s *Service) DeleteTransition(ctx context.Context, id uuid.UUID, actor audit.Actor) error {
	if err := s.store.DeleteTransition(ctx, id); err != nil {
		return err
	}
	s.record(ctx, EntityTransition, id, audit.ActionDelete, nil, nil, actor)
	return nil
}

// CreateMapping assigns a lifecycle type to a CI type, updating the default
// flag when the pair is already mapped.
func (s *Service) CreateMapping(ctx context.Context, req CreateMappingRequest, actor audit.Actor) (*Mapping, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	ok, err := s.store.CITypeExists(ctx, req.CITypeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NewNotFound("CI type", req.CITypeID.String())
	}
	if _, err := s.store.GetType(ctx, req.LifecycleTypeID); err != nil {
		return nil, err
	}

	m := &Mapping{
		ID:              uuid.New(),
		CITypeID:        req.CITypeID,
		LifecycleTypeID: req.LifecycleTypeID,
		IsDefault:       req.IsDefault,
		CreatedBy:       actor.UserID,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.UpsertMapping(ctx, m); err != nil {
		return nil, err
	}
	s.record(ctx, EntityMapping, m.ID, audit.ActionCreate, nil, m, actor)
	return m, nil
}

// DeleteMapping unassigns a lifecycle type from a CI type. Removing the
// default leaves the CI type without one until another mapping is marked.
func (s *Service) DeleteMapping(ctx context.Context, id uuid.UUID, actor audit.Actor) error {
	m, err := s.store.DeleteMapping(ctx, id)
	if err != nil {
		return err
	}
	s.record(ctx, EntityMapping, m.ID, audit.ActionDelete, m, nil, actor)
	return nil
}

// ListForCIType returns the active lifecycles mapped to a CI type, the
// default first and the rest by name.
func (s *Service) ListForCIType(ctx context.Context, ciTypeID uuid.UUID) ([]Summary, error) {
	ok, err := s.store.CITypeExists(ctx, ciTypeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NewNotFound("CI type", ciTypeID.String())
	}
	return s.store.ListForCIType(ctx, ciTypeID)
}

// CountTypes returns the number of live lifecycle types.
func (s *Service) CountTypes(ctx context.Context) (int, error) {
	return s.store.CountTypes(ctx)
}
