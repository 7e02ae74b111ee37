// Package graphtest is a behavioural test suite every graph.Store backend must pass.
package graphtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) graph.Store

var errChainNotEmpty = errors.New("chain not empty")

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndTraverse", func(t *testing.T) { testCreateAndTraverse(t, newStore(t)) })
	t.Run("EdgeOrder", func(t *testing.T) { testEdgeOrder(t, newStore(t)) })
	t.Run("DuplicateKey", func(t *testing.T) { testDuplicateKey(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("FindByProperty", func(t *testing.T) { testFindByProperty(t, newStore(t)) })
	t.Run("LockSerializesAppends", func(t *testing.T) { testLockSerializesAppends(t, newStore(t)) })
}

func testCreateAndTraverse(t *testing.T, store graph.Store) {
	ctx := context.Background()

	var sampleID, datasetID string
	require.NoError(t, store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		sample, err := w.CreateVertex(ctx, models.LabelSample, map[string]any{"sampleId": "S1"})
		if err != nil {
			return err
		}
		dataset, err := w.CreateVertex(ctx, models.LabelDataset, map[string]any{"datasetId": "S1:W1:1", models.PropWorklistID: "W1"})
		if err != nil {
			return err
		}
		if _, err := w.CreateEdge(ctx, models.EdgeHasData, sample.ID, dataset.ID, map[string]any{models.PropDate: int64(42)}); err != nil {
			return err
		}
		sampleID, datasetID = sample.ID, dataset.ID
		return nil
	}))

	require.NoError(t, store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		found, err := r.FindVertex(ctx, models.LabelDataset, "datasetId", "S1:W1:1")
		require.NoError(t, err)
		assert.Equal(t, datasetID, found.ID)
		assert.Equal(t, models.LabelDataset, found.Label)
		assert.Equal(t, "W1", models.StringProp(found.Props, models.PropWorklistID))

		out, err := r.Edges(ctx, sampleID, graph.Outgoing, models.EdgeHasData)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, datasetID, out[0].To)
		assert.Equal(t, int64(42), models.IntProp(out[0].Props, models.PropDate))

		in, err := r.Edges(ctx, datasetID, graph.Incoming)
		require.NoError(t, err)
		require.Len(t, in, 1)
		assert.Equal(t, sampleID, in[0].From)

		none, err := r.Edges(ctx, sampleID, graph.Outgoing, models.EdgeHasEvent)
		require.NoError(t, err)
		assert.Empty(t, none)

		all, err := r.ListVertices(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		samples, err := r.ListVertices(ctx, models.LabelSample)
		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.Equal(t, sampleID, samples[0].ID)
		return nil
	}))
}

func testEdgeOrder(t *testing.T, store graph.Store) {
	ctx := context.Background()

	var from string
	var want []string
	require.NoError(t, store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		panel, err := w.CreateVertex(ctx, models.LabelPanel, map[string]any{"panelId": "P1"})
		if err != nil {
			return err
		}
		from = panel.ID
		for i := 0; i < 5; i++ {
			symbol, err := w.CreateVertex(ctx, models.LabelSymbol, map[string]any{models.PropSymbolID: fmt.Sprintf("SYM%d", i)})
			if err != nil {
				return err
			}
			if _, err := w.CreateEdge(ctx, models.EdgeContainsSymbol, panel.ID, symbol.ID, nil); err != nil {
				return err
			}
			want = append(want, symbol.ID)
		}
		return nil
	}))

	require.NoError(t, store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		edges, err := r.Edges(ctx, from, graph.Outgoing)
		require.NoError(t, err)
		got := make([]string, 0, len(edges))
		for _, e := range edges {
			got = append(got, e.To)
		}
		assert.Equal(t, want, got)
		return nil
	}))
}

func testDuplicateKey(t *testing.T, store graph.Store) {
	ctx := context.Background()

	create := func() error {
		return store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
			_, err := w.CreateVertex(ctx, models.LabelUser, map[string]any{models.PropEmail: "a@example.com"})
			return err
		})
	}

	require.NoError(t, create())
	assert.ErrorIs(t, create(), graph.ErrDuplicateKey)

	// The same key under another label is a different vertex.
	require.NoError(t, store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		_, err := w.CreateVertex(ctx, models.LabelSample, map[string]any{"sampleId": "a@example.com"})
		return err
	}))
}

func testRollback(t *testing.T, store graph.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		if _, err := w.CreateVertex(ctx, models.LabelSample, map[string]any{"sampleId": "S1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		_, err := r.FindVertex(ctx, models.LabelSample, "sampleId", "S1")
		assert.ErrorIs(t, err, graph.ErrNotFound)
		return nil
	}))
}

func testNotFound(t *testing.T, store graph.Store) {
	ctx := context.Background()

	require.NoError(t, store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		_, err := r.GetVertex(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, graph.ErrNotFound)

		_, err = r.GetVertex(ctx, "not-an-id")
		assert.ErrorIs(t, err, graph.ErrNotFound)
		return nil
	}))

	err := store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		sample, err := w.CreateVertex(ctx, models.LabelSample, map[string]any{"sampleId": "S1"})
		if err != nil {
			return err
		}
		_, err = w.CreateEdge(ctx, models.EdgeHasData, sample.ID, "00000000-0000-0000-0000-000000000000", nil)
		return err
	})
	assert.ErrorIs(t, err, graph.ErrNotFound)

	err = store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		return w.Lock(ctx, "00000000-0000-0000-0000-000000000000")
	})
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func testFindByProperty(t *testing.T, store graph.Store) {
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		for _, assay := range []string{"WGS", "WES"} {
			_, err := w.CreateVertex(ctx, models.LabelDataset, map[string]any{"datasetId": "S1:W1:" + assay, models.PropAssay: assay})
			if err != nil {
				return err
			}
		}
		_, err := w.CreateVertex(ctx, models.LabelUser, map[string]any{models.PropEmail: "admin@example.com", models.PropAdmin: true})
		return err
	}))

	require.NoError(t, store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		found, err := r.FindVertex(ctx, models.LabelDataset, models.PropAssay, "WES")
		require.NoError(t, err)
		assert.Equal(t, "S1:W1:WES", models.StringProp(found.Props, "datasetId"))

		admin, err := r.FindVertex(ctx, models.LabelUser, models.PropAdmin, true)
		require.NoError(t, err)
		assert.True(t, models.BoolProp(admin.Props, models.PropAdmin))

		_, err = r.FindVertex(ctx, models.LabelDataset, models.PropAssay, "RNA")
		assert.ErrorIs(t, err, graph.ErrNotFound)
		return nil
	}))
}

// testLockSerializesAppends races compare-and-append writers on one vertex. Exactly one may
// observe the empty chain.
func testLockSerializesAppends(t *testing.T, store graph.Store) {
	ctx := context.Background()
	const racers = 8

	var subjectID string
	require.NoError(t, store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		subject, err := w.CreateVertex(ctx, models.LabelFeature, map[string]any{"featureId": "F1"})
		if err != nil {
			return err
		}
		subjectID = subject.ID
		return nil
	}))

	var (
		mu        sync.Mutex
		appended  int
		conflicts int
	)
	start := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < racers; i++ {
		g.Go(func() error {
			<-start
			err := store.Write(gctx, func(ctx context.Context, w graph.Writer) error {
				if err := w.Lock(ctx, subjectID); err != nil {
					return err
				}
				existing, err := w.Edges(ctx, subjectID, graph.Outgoing, models.EdgeHasEvent)
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					return errChainNotEmpty
				}
				event, err := w.CreateVertex(ctx, models.LabelFeaturePreference, models.FeaturePreference{Preference: true}.Properties())
				if err != nil {
					return err
				}
				_, err = w.CreateEdge(ctx, models.EdgeHasEvent, subjectID, event.ID, nil)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				appended++
			case errors.Is(err, errChainNotEmpty):
				conflicts++
			default:
				return err
			}
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, appended)
	assert.Equal(t, racers-1, conflicts)

	require.NoError(t, store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		edges, err := r.Edges(ctx, subjectID, graph.Outgoing, models.EdgeHasEvent)
		require.NoError(t, err)
		assert.Len(t, edges, 1)
		return nil
	}))
}
