package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahopetis/crate/pkg/apperror"
)

type fakeReader struct {
	enabled   bool
	center    *Node
	err       error
	lastLimit int
	lastType  string
}

func (r *fakeReader) Enabled() bool { return r.enabled }

func (r *fakeReader) FullGraph(_ context.Context, limit int, ciType string) (*Data, error) {
	r.lastLimit, r.lastType = limit, ciType
	return &Data{Nodes: []Node{}, Links: []Link{}}, r.err
}

func (r *fakeReader) Neighbors(_ context.Context, _ uuid.UUID) (*Neighborhood, error) {
	return &Neighborhood{Center: r.center, Nodes: []Node{}, Links: []Link{}}, r.err
}

func (r *fakeReader) Search(_ context.Context, _ string, limit int) ([]Node, error) {
	r.lastLimit = limit
	return []Node{}, r.err
}

func TestServiceData(t *testing.T) {
	reader := &fakeReader{enabled: true}
	svc := NewService(reader, discardLogger())

	_, err := svc.Data(context.Background(), 0, " Server ")
	require.NoError(t, err)
	assert.Equal(t, defaultGraphLimit, reader.lastLimit)
	assert.Equal(t, "Server", reader.lastType)

	_, err = svc.Data(context.Background(), 1001, "")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	reader.err = errors.New("down")
	_, err = svc.Data(context.Background(), 10, "")
	assert.True(t, errors.Is(err, apperror.ErrInternal))
}

func TestServiceNeighbors(t *testing.T) {
	reader := &fakeReader{enabled: true}
	svc := NewService(reader, discardLogger())

	_, err := svc.Neighbors(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	reader.center = &Node{ID: "x"}
	n, err := svc.Neighbors(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "x", n.Center.ID)

	disabled := NewService(&fakeReader{}, discardLogger())
	n, err = disabled.Neighbors(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, n.Center)
}

func TestServiceSearch(t *testing.T) {
	reader := &fakeReader{enabled: true}
	svc := NewService(reader, discardLogger())

	_, err := svc.Search(context.Background(), "   ", 0)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = svc.Search(context.Background(), "web", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultSearchLimit, reader.lastLimit)

	_, err = svc.Search(context.Background(), "web", 101)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}
