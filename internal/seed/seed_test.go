package seed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/domain/ci"
	"github.com/tahopetis/crate/domain/lifecycle"
	"github.com/tahopetis/crate/domain/relationships"
	"github.com/tahopetis/crate/pkg/apperror"
)

const sample = `
ci_types:
  - name: Server
    description: Physical or virtual host
    attributes:
      type: object
      properties:
        hostname: {type: string}
    lifecycles: [Hardware]
  - name: Application
lifecycle_types:
  - name: Hardware
    color: "#336699"
    states:
      - {name: Ordered, initial: true}
      - {name: Active}
      - {name: Retired, terminal: true}
    transitions:
      - {name: install, from: Ordered, to: Active}
      - {name: retire, from: Active, to: Retired, requires_approval: true}
relationship_types:
  - name: runs_on
    from: Application
    to: Server
    reverse_name: hosts
  - name: depends_on
`

type fakeCI struct {
	existing map[string]bool
	created  []ci.CreateTypeRequest
}

func (f *fakeCI) CreateType(_ context.Context, req ci.CreateTypeRequest, _ audit.Actor) (*ci.CIType, error) {
	if f.existing[req.Name] {
		return nil, apperror.NewConflict("CI type with this name already exists")
	}
	f.created = append(f.created, req)
	return &ci.CIType{ID: uuid.New(), Name: req.Name}, nil
}

type fakeLifecycles struct {
	existing    []lifecycle.Summary
	types       []lifecycle.CreateTypeRequest
	states      []lifecycle.CreateStateRequest
	transitions []lifecycle.CreateTransitionRequest
	mappings    []lifecycle.CreateMappingRequest
}

func (f *fakeLifecycles) CreateType(_ context.Context, req lifecycle.CreateTypeRequest, _ audit.Actor) (*lifecycle.Type, error) {
	f.types = append(f.types, req)
	return &lifecycle.Type{ID: uuid.New(), Name: req.Name}, nil
}

func (f *fakeLifecycles) CreateState(_ context.Context, typeID uuid.UUID, req lifecycle.CreateStateRequest, _ audit.Actor) (*lifecycle.State, error) {
	f.states = append(f.states, req)
	return &lifecycle.State{ID: uuid.New()}, nil
}

func (f *fakeLifecycles) CreateTransition(_ context.Context, typeID uuid.UUID, req lifecycle.CreateTransitionRequest, _ audit.Actor) (*lifecycle.Transition, error) {
	f.transitions = append(f.transitions, req)
	return &lifecycle.Transition{ID: uuid.New()}, nil
}

func (f *fakeLifecycles) CreateMapping(_ context.Context, req lifecycle.CreateMappingRequest, _ audit.Actor) (*lifecycle.Mapping, error) {
	f.mappings = append(f.mappings, req)
	return &lifecycle.Mapping{ID: uuid.New()}, nil
}

func (f *fakeLifecycles) ListTypes(context.Context, bool) ([]lifecycle.Summary, error) {
	return f.existing, nil
}

type fakeRelTypes struct {
	created []relationships.CreateTypeRequest
}

func (f *fakeRelTypes) CreateType(_ context.Context, req relationships.CreateTypeRequest, _ audit.Actor) (*relationships.RelationshipType, error) {
	f.created = append(f.created, req)
	return &relationships.RelationshipType{ID: uuid.New(), Name: req.Name}, nil
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Len(t, f.CITypes, 2)
	assert.Len(t, f.LifecycleTypes, 1)
	assert.Len(t, f.LifecycleTypes[0].States, 3)
	assert.True(t, f.LifecycleTypes[0].States[0].Initial)
	assert.Equal(t, "hosts", f.RelationshipTypes[0].ReverseName)
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.CITypes)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "ci_typez: []", "decode"},
		{"duplicate ci type", "ci_types: [{name: A}, {name: A}]", `duplicate ci type "A"`},
		{"unnamed ci type", "ci_types: [{description: x}]", "without a name"},
		{"unknown lifecycle", "ci_types: [{name: A, lifecycles: [Nope]}]", `unknown lifecycle "Nope"`},
		{"unknown relationship end", "relationship_types: [{name: r, from: Ghost}]", `unknown ci type "Ghost"`},
		{"unknown transition state", "lifecycle_types: [{name: L, states: [{name: S}], transitions: [{name: t, to: X}]}]", `unknown state "X"`},
		{"duplicate state", "lifecycle_types: [{name: L, states: [{name: S}, {name: S}]}]", `duplicate state "S"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApply(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	cis, lcs, rels := &fakeCI{}, &fakeLifecycles{}, &fakeRelTypes{}
	res, err := NewSeeder(cis, lcs, rels, quietLog()).Apply(context.Background(), f, audit.Actor{UserID: uuid.New()})
	require.NoError(t, err)

	assert.Equal(t, Result{
		CITypes:           2,
		LifecycleTypes:    1,
		States:            3,
		Transitions:       2,
		Mappings:          1,
		RelationshipTypes: 2,
	}, res)

	var attrs map[string]any
	require.NoError(t, json.Unmarshal(cis.created[0].Attributes, &attrs))
	assert.Equal(t, "object", attrs["type"])
	assert.Nil(t, cis.created[1].Attributes)

	require.Len(t, lcs.states, 3)
	assert.Equal(t, 2, *lcs.states[2].OrderIndex)
	assert.True(t, lcs.states[2].IsTerminalState)
	assert.True(t, lcs.transitions[1].RequiresApproval)
	require.NotNil(t, lcs.transitions[0].FromStateID)
	assert.True(t, lcs.mappings[0].IsDefault)

	assert.NotNil(t, rels.created[0].FromCITypeID)
	assert.NotNil(t, rels.created[0].ToCITypeID)
	assert.Equal(t, "hosts", *rels.created[0].ReverseName)
	assert.Nil(t, rels.created[1].FromCITypeID)
}

func TestApply_SkipsExisting(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	hardware := uuid.New()
	cis := &fakeCI{existing: map[string]bool{"Application": true}}
	lcs := &fakeLifecycles{existing: []lifecycle.Summary{{ID: hardware, Name: "Hardware"}}}
	rels := &fakeRelTypes{}

	res, err := NewSeeder(cis, lcs, rels, quietLog()).Apply(context.Background(), f, audit.Actor{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.CITypes)
	assert.Equal(t, 0, res.LifecycleTypes)
	assert.Empty(t, lcs.states)

	// Server is new, so it still maps to the existing lifecycle.
	require.Len(t, lcs.mappings, 1)
	assert.Equal(t, hardware, lcs.mappings[0].LifecycleTypeID)

	// runs_on names the existing Application type and is skipped.
	require.Len(t, rels.created, 1)
	assert.Equal(t, "depends_on", rels.created[0].Name)
	assert.Equal(t, 3, res.Skipped)
}
