package graph

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
)

const (
	defaultGraphLimit  = 200
	maxGraphLimit      = 1000
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Reader is the read side of the graph projection.
type Reader interface {
	Enabled() bool
	FullGraph(ctx context.Context, limit int, ciType string) (*Data, error)
	Neighbors(ctx context.Context, id uuid.UUID) (*Neighborhood, error)
	Search(ctx context.Context, q string, limit int) ([]Node, error)
}

// Service serves graph queries. When the graph is disabled every query
// returns an empty result.
type Service struct {
	reader Reader
	log    *slog.Logger
}

// NewService creates a new graph service
func NewService(reader Reader, log *slog.Logger) *Service {
	return &Service{
		reader: reader,
		log:    log.With(logger.Scope("graph.svc")),
	}
}

// Data returns up to limit nodes (0 means the default) and their edges.
func (s *Service) Data(ctx context.Context, limit int, ciType string) (*Data, error) {
	if limit == 0 {
		limit = defaultGraphLimit
	}
	if limit < 1 || limit > maxGraphLimit {
		return nil, apperror.NewValidation("limit must be between 1 and 1000")
	}
	data, err := s.reader.FullGraph(ctx, limit, strings.TrimSpace(ciType))
	if err != nil {
		return nil, apperror.NewInternal("graph query failed", err)
	}
	return data, nil
}

// Neighbors returns the one-hop neighborhood of an asset.
func (s *Service) Neighbors(ctx context.Context, id uuid.UUID) (*Neighborhood, error) {
	n, err := s.reader.Neighbors(ctx, id)
	if err != nil {
		return nil, apperror.NewInternal("graph query failed", err)
	}
	if s.reader.Enabled() && n.Center == nil {
		return nil, apperror.NewNotFound("Graph node", id.String())
	}
	return n, nil
}

// Search finds nodes by name or CI type.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]Node, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperror.NewValidation("search query is required")
	}
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if limit < 1 || limit > maxSearchLimit {
		return nil, apperror.NewValidation("limit must be between 1 and 100")
	}
	nodes, err := s.reader.Search(ctx, q, limit)
	if err != nil {
		return nil, apperror.NewInternal("graph query failed", err)
	}
	return nodes, nil
}
