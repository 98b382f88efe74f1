// Package seed loads reference data (CI types, lifecycles and relationship
// types) from a YAML document into an empty or partially seeded database.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/domain/ci"
	"github.com/tahopetis/crate/domain/lifecycle"
	"github.com/tahopetis/crate/domain/relationships"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
)

// File is the top-level seed document.
type File struct {
	CITypes           []CIType           `yaml:"ci_types"`
	LifecycleTypes    []LifecycleType    `yaml:"lifecycle_types"`
	RelationshipTypes []RelationshipType `yaml:"relationship_types"`
}

type CIType struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Attributes  map[string]any `yaml:"attributes"`
	// Lifecycles lists lifecycle type names mapped to this CI type. The
	// first one becomes the default.
	Lifecycles []string `yaml:"lifecycles"`
}

type LifecycleType struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Color       string       `yaml:"color"`
	States      []State      `yaml:"states"`
	Transitions []Transition `yaml:"transitions"`
}

type State struct {
	Name     string `yaml:"name"`
	Color    string `yaml:"color"`
	Initial  bool   `yaml:"initial"`
	Terminal bool   `yaml:"terminal"`
}

// Transition connects two states by name. An empty From is an entry
// transition.
type Transition struct {
	Name             string `yaml:"name"`
	From             string `yaml:"from"`
	To               string `yaml:"to"`
	RequiresApproval bool   `yaml:"requires_approval"`
}

type RelationshipType struct {
	Name             string         `yaml:"name"`
	Description      string         `yaml:"description"`
	From             string         `yaml:"from"`
	To               string         `yaml:"to"`
	Bidirectional    bool           `yaml:"bidirectional"`
	ReverseName      string         `yaml:"reverse_name"`
	AttributesSchema map[string]any `yaml:"attributes_schema"`
}

// Parse decodes a seed document and checks that every name it references is
// declared in the same document.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) check() error {
	ciTypes := map[string]bool{}
	for _, t := range f.CITypes {
		if t.Name == "" {
			return errors.New("seed: ci type without a name")
		}
		if ciTypes[t.Name] {
			return fmt.Errorf("seed: duplicate ci type %q", t.Name)
		}
		ciTypes[t.Name] = true
	}

	lifecycles := map[string]bool{}
	for _, lt := range f.LifecycleTypes {
		if lt.Name == "" {
			return errors.New("seed: lifecycle type without a name")
		}
		if lifecycles[lt.Name] {
			return fmt.Errorf("seed: duplicate lifecycle type %q", lt.Name)
		}
		lifecycles[lt.Name] = true

		states := map[string]bool{}
		for _, st := range lt.States {
			if states[st.Name] {
				return fmt.Errorf("seed: lifecycle %q: duplicate state %q", lt.Name, st.Name)
			}
			states[st.Name] = true
		}
		for _, tr := range lt.Transitions {
			if tr.From != "" && !states[tr.From] {
				return fmt.Errorf("seed: lifecycle %q: transition %q: unknown state %q", lt.Name, tr.Name, tr.From)
			}
			if !states[tr.To] {
				return fmt.Errorf("seed: lifecycle %q: transition %q: unknown state %q", lt.Name, tr.Name, tr.To)
			}
		}
	}

	for _, t := range f.CITypes {
		for _, name := range t.Lifecycles {
			if !lifecycles[name] {
				return fmt.Errorf("seed: ci type %q: unknown lifecycle %q", t.Name, name)
			}
		}
	}

	for _, rt := range f.RelationshipTypes {
		if rt.Name == "" {
			return errors.New("seed: relationship type without a name")
		}
		for _, end := range []string{rt.From, rt.To} {
			if end != "" && !ciTypes[end] {
				return fmt.Errorf("seed: relationship type %q: unknown ci type %q", rt.Name, end)
			}
		}
	}
	return nil
}

// CITypeCreator is satisfied by *ci.Service.
type CITypeCreator interface {
	CreateType(ctx context.Context, req ci.CreateTypeRequest, actor audit.Actor) (*ci.CIType, error)
}

// LifecycleCreator is satisfied by *lifecycle.Service.
type LifecycleCreator interface {
	CreateType(ctx context.Context, req lifecycle.CreateTypeRequest, actor audit.Actor) (*lifecycle.Type, error)
	CreateState(ctx context.Context, typeID uuid.UUID, req lifecycle.CreateStateRequest, actor audit.Actor) (*lifecycle.State, error)
	CreateTransition(ctx context.Context, typeID uuid.UUID, req lifecycle.CreateTransitionRequest, actor audit.Actor) (*lifecycle.Transition, error)
	CreateMapping(ctx context.Context, req lifecycle.CreateMappingRequest, actor audit.Actor) (*lifecycle.Mapping, error)
	ListTypes(ctx context.Context, includeInactive bool) ([]lifecycle.Summary, error)
}

// RelationshipTypeCreator is satisfied by *relationships.Service.
type RelationshipTypeCreator interface {
	CreateType(ctx context.Context, req relationships.CreateTypeRequest, actor audit.Actor) (*relationships.RelationshipType, error)
}

// Result counts what a seed run created and what it left alone because the
// row already existed.
type Result struct {
	CITypes           int `json:"ci_types"`
	LifecycleTypes    int `json:"lifecycle_types"`
	States            int `json:"states"`
	Transitions       int `json:"transitions"`
	Mappings          int `json:"mappings"`
	RelationshipTypes int `json:"relationship_types"`
	Skipped           int `json:"skipped"`
}

// Seeder writes a File through the domain services so that every row is
// validated and audited like an API write.
type Seeder struct {
	ciTypes    CITypeCreator
	lifecycles LifecycleCreator
	relTypes   RelationshipTypeCreator
	log        *slog.Logger
}

func NewSeeder(ciTypes CITypeCreator, lifecycles LifecycleCreator, relTypes RelationshipTypeCreator, log *slog.Logger) *Seeder {
	return &Seeder{
		ciTypes:    ciTypes,
		lifecycles: lifecycles,
		relTypes:   relTypes,
		log:        log.With(logger.Scope("seed")),
	}
}

// Apply creates CI types, lifecycles with their states and transitions, the
// CI type to lifecycle mappings and finally relationship types. A CI or
// relationship type that already exists is skipped together with everything
// that refers to it; an existing lifecycle is left untouched but can still be
// mapped to new CI types.
func (s *Seeder) Apply(ctx context.Context, f *File, actor audit.Actor) (Result, error) {
	var res Result

	ciIDs := map[string]uuid.UUID{}
	for _, t := range f.CITypes {
		req := ci.CreateTypeRequest{Name: t.Name, Description: optional(t.Description)}
		if t.Attributes != nil {
			raw, err := json.Marshal(t.Attributes)
			if err != nil {
				return res, fmt.Errorf("seed: ci type %q: %w", t.Name, err)
			}
			req.Attributes = raw
		}
		created, err := s.ciTypes.CreateType(ctx, req, actor)
		if s.skip(err, "ci_type", t.Name, &res) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed: ci type %q: %w", t.Name, err)
		}
		ciIDs[t.Name] = created.ID
		res.CITypes++
	}

	existing, err := s.lifecycles.ListTypes(ctx, true)
	if err != nil {
		return res, fmt.Errorf("seed: list lifecycle types: %w", err)
	}
	lifecycleIDs := make(map[string]uuid.UUID, len(existing))
	for _, lt := range existing {
		lifecycleIDs[lt.Name] = lt.ID
	}
	for _, lt := range f.LifecycleTypes {
		if _, ok := lifecycleIDs[lt.Name]; ok {
			s.log.Info("already present, skipping", slog.String("kind", "lifecycle_type"), slog.String("name", lt.Name))
			res.Skipped++
			continue
		}
		id, err := s.lifecycle(ctx, lt, actor, &res)
		if err != nil {
			return res, err
		}
		lifecycleIDs[lt.Name] = id
	}

	for _, t := range f.CITypes {
		ciID, ok := ciIDs[t.Name]
		if !ok {
			continue
		}
		for i, name := range t.Lifecycles {
			ltID, ok := lifecycleIDs[name]
			if !ok {
				res.Skipped++
				continue
			}
			_, err := s.lifecycles.CreateMapping(ctx, lifecycle.CreateMappingRequest{
				CITypeID:        ciID,
				LifecycleTypeID: ltID,
				IsDefault:       i == 0,
			}, actor)
			if s.skip(err, "ci_type_lifecycle", t.Name+"/"+name, &res) {
				continue
			}
			if err != nil {
				return res, fmt.Errorf("seed: map %q to %q: %w", t.Name, name, err)
			}
			res.Mappings++
		}
	}

	for _, rt := range f.RelationshipTypes {
		req := relationships.CreateTypeRequest{
			Name:            rt.Name,
			Description:     optional(rt.Description),
			IsBidirectional: rt.Bidirectional,
			ReverseName:     optional(rt.ReverseName),
		}
		from, okFrom := endpoint(rt.From, ciIDs)
		to, okTo := endpoint(rt.To, ciIDs)
		if !okFrom || !okTo {
			res.Skipped++
			continue
		}
		req.FromCITypeID = from
		req.ToCITypeID = to
		if rt.AttributesSchema != nil {
			raw, err := json.Marshal(rt.AttributesSchema)
			if err != nil {
				return res, fmt.Errorf("seed: relationship type %q: %w", rt.Name, err)
			}
			req.AttributesSchema = raw
		}

		_, err := s.relTypes.CreateType(ctx, req, actor)
		if s.skip(err, "relationship_type", rt.Name, &res) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed: relationship type %q: %w", rt.Name, err)
		}
		res.RelationshipTypes++
	}

	s.log.Info("seed applied",
		slog.Int("ci_types", res.CITypes),
		slog.Int("lifecycle_types", res.LifecycleTypes),
		slog.Int("relationship_types", res.RelationshipTypes),
		slog.Int("skipped", res.Skipped))
	return res, nil
}

func (s *Seeder) lifecycle(ctx context.Context, lt LifecycleType, actor audit.Actor, res *Result) (uuid.UUID, error) {
	created, err := s.lifecycles.CreateType(ctx, lifecycle.CreateTypeRequest{
		Name:         lt.Name,
		Description:  optional(lt.Description),
		DefaultColor: optional(lt.Color),
	}, actor)
	if err != nil {
		return uuid.Nil, fmt.Errorf("seed: lifecycle type %q: %w", lt.Name, err)
	}
	res.LifecycleTypes++

	stateIDs := make(map[string]uuid.UUID, len(lt.States))
	for i, st := range lt.States {
		order := i
		state, err := s.lifecycles.CreateState(ctx, created.ID, lifecycle.CreateStateRequest{
			Name:            st.Name,
			Color:           optional(st.Color),
			OrderIndex:      &order,
			IsInitialState:  st.Initial,
			IsTerminalState: st.Terminal,
		}, actor)
		if err != nil {
			return uuid.Nil, fmt.Errorf("seed: lifecycle %q: state %q: %w", lt.Name, st.Name, err)
		}
		stateIDs[st.Name] = state.ID
		res.States++
	}

	for _, tr := range lt.Transitions {
		req := lifecycle.CreateTransitionRequest{
			ToStateID:        stateIDs[tr.To],
			TransitionName:   tr.Name,
			RequiresApproval: tr.RequiresApproval,
		}
		if tr.From != "" {
			from := stateIDs[tr.From]
			req.FromStateID = &from
		}
		if _, err := s.lifecycles.CreateTransition(ctx, created.ID, req, actor); err != nil {
			return uuid.Nil, fmt.Errorf("seed: lifecycle %q: transition %q: %w", lt.Name, tr.Name, err)
		}
		res.Transitions++
	}
	return created.ID, nil
}

func (s *Seeder) skip(err error, kind, name string, res *Result) bool {
	if !errors.Is(err, apperror.ErrConflict) {
		return false
	}
	s.log.Info("already present, skipping", slog.String("kind", kind), slog.String("name", name))
	res.Skipped++
	return true
}

// endpoint resolves an optional CI type reference. ok is false when the
// reference names a type this run did not create.
func endpoint(name string, ids map[string]uuid.UUID) (*uuid.UUID, bool) {
	if name == "" {
		return nil, true
	}
	id, ok := ids[name]
	if !ok {
		return nil, false
	}
	return &id, true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
