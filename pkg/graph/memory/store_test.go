package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/graph/graphtest"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestStore(t *testing.T) {
	graphtest.Run(t, func(*testing.T) graph.Store { return NewStore() })
}

func TestStore_ReadSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		require.NoError(t, store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
			_, err := w.CreateVertex(ctx, models.LabelVariant, map[string]any{"variantId": "1-100-A-G"})
			return err
		}))

		vertices, err := r.ListVertices(ctx, models.LabelVariant)
		require.NoError(t, err)
		assert.Empty(t, vertices)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_WriteInReadTransaction(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		w, ok := r.(graph.Writer)
		require.True(t, ok)
		_, err := w.CreateVertex(ctx, models.LabelSample, map[string]any{"sampleId": "S1"})
		return err
	})
	assert.Error(t, err)
}

func TestStore_CanceledWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewStore().Write(ctx, func(context.Context, graph.Writer) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
