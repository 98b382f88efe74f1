package relationships

import (
	"context"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/domain/graph"
	"github.com/tahopetis/crate/pkg/tracing"
)

// commitAuthoritative runs the relational write. Its error is the only one
// callers of the two-phase protocol ever see.
func commitAuthoritative[T any](ctx context.Context, name string, write func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracing.Start(ctx, "relationships."+name)
	defer span.End()

	v, err := write(ctx)
	tracing.Fail(span, err)
	return v, err
}

// tryMirror projects a committed relationship change into the graph. Failures
// end up in logs, metrics and the sync queue, never in the caller's result.
func (s *Service) tryMirror(ctx context.Context, action string, id uuid.UUID, fn func(ctx context.Context, p graph.Projection) error) {
	s.mirror.Try(ctx, graph.Op{Kind: graph.KindRelationship, Action: action}, id, fn)
}

func edgeOf(rel *Relationship, t *RelationshipType, from, to *AssetRef) graph.Edge {
	return graph.Edge{
		ID:              rel.ID,
		TypeID:          t.ID,
		TypeName:        t.Name,
		FromID:          from.ID,
		ToID:            to.ID,
		FromCIType:      from.CITypeName,
		ToCIType:        to.CITypeName,
		IsBidirectional: t.IsBidirectional,
		CreatedAt:       rel.CreatedAt,
		UpdatedAt:       rel.UpdatedAt,
	}
}

func nodeOf(a *AssetRef) graph.AssetNode {
	return graph.AssetNode{
		ID:         a.ID,
		Name:       a.Name,
		CIType:     a.CITypeName,
		CITypeID:   a.CITypeID,
		Attributes: a.Attributes,
	}
}
