package history

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/approval"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/chain"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/graph/memory"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	scientist = "scientist@example.com"
	admin     = "admin@example.com"
	variantID = "1:100A>G"
)

type fixture struct {
	store    graph.Store
	catalog  *catalog.Service
	approval *approval.Service
	history  *Service
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	store := memory.NewStore()
	f := &fixture{
		store:   store,
		catalog: catalog.NewService(store, logger),
		history: NewService(store, logger),
		clock:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.approval = approval.NewService(store, logger, approval.WithClock(func() time.Time {
		f.clock = f.clock.Add(time.Minute)
		return f.clock
	}))

	ctx := context.Background()
	_, err := f.catalog.AddUser(ctx, catalog.NewUser{Email: scientist, FullName: "Scientist"})
	require.NoError(t, err)
	_, err = f.catalog.AddUser(ctx, catalog.NewUser{Email: admin, FullName: "Admin", Admin: true})
	require.NoError(t, err)
	_, err = f.catalog.AddVariant(ctx, catalog.NewVariant{VariantID: variantID})
	require.NoError(t, err)
	return f
}

// dataset creates a sample with one dataset calling the test variant.
func (f *fixture) dataset(t *testing.T, sampleID, seqID string, inheritance models.Inheritance) models.DatasetKey {
	t.Helper()
	ctx := context.Background()

	key := models.DatasetKey{SampleID: sampleID, WorklistID: "W1", SeqID: seqID}
	if _, err := f.catalog.AddSample(ctx, catalog.NewSample{SampleID: sampleID}); err != nil {
		require.ErrorIs(t, err, apperrors.ErrConflict)
	}
	_, err := f.catalog.AddDataset(ctx, catalog.NewDataset{DatasetKey: key})
	require.NoError(t, err)
	require.NoError(t, f.catalog.AddVariantCall(ctx, catalog.NewVariantCall{
		Dataset:     key,
		VariantID:   variantID,
		Inheritance: inheritance,
	}))
	return key
}

func (f *fixture) qc(t *testing.T, key models.DatasetKey, pass bool, decision *bool) string {
	t.Helper()
	ctx := context.Background()

	id, err := f.approval.Propose(ctx, key.Ref(), models.QualityControl{PassOrFail: pass}, scientist)
	require.NoError(t, err)
	if decision != nil {
		_, err = f.approval.Authorize(ctx, id, admin, *decision)
		require.NoError(t, err)
	}
	return id
}

var (
	accept = func() *bool { b := true; return &b }()
	reject = func() *bool { b := false; return &b }()
)

func TestOccurrenceCount_ScenarioD(t *testing.T) {
	ctx := context.Background()

	t.Run("ActivePass", func(t *testing.T) {
		f := newFixture(t)
		key := f.dataset(t, "S1", "1", models.Heterozygous)
		f.qc(t, key, true, accept)

		count, err := f.history.OccurrenceCount(ctx, variantID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("PendingQC", func(t *testing.T) {
		f := newFixture(t)
		key := f.dataset(t, "S1", "1", models.Heterozygous)
		f.qc(t, key, true, nil)

		count, err := f.history.OccurrenceCount(ctx, variantID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("ActiveFail", func(t *testing.T) {
		f := newFixture(t)
		key := f.dataset(t, "S1", "1", models.Heterozygous)
		f.qc(t, key, false, accept)

		count, err := f.history.OccurrenceCount(ctx, variantID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("RejectedPass", func(t *testing.T) {
		f := newFixture(t)
		key := f.dataset(t, "S1", "1", models.Heterozygous)
		f.qc(t, key, true, reject)

		count, err := f.history.OccurrenceCount(ctx, variantID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("NoQC", func(t *testing.T) {
		f := newFixture(t)
		f.dataset(t, "S1", "1", models.Heterozygous)

		count, err := f.history.OccurrenceCount(ctx, variantID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestOccurrenceCount_WeightsAndSampleDedup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// S1 is sequenced twice, het then hom: it counts once with the heavier weight.
	f.qc(t, f.dataset(t, "S1", "1", models.Heterozygous), true, accept)
	f.qc(t, f.dataset(t, "S1", "2", models.Homozygous), true, accept)
	// S2 het.
	f.qc(t, f.dataset(t, "S2", "1", models.Heterozygous), true, accept)
	// S3 hom but QC failed.
	f.qc(t, f.dataset(t, "S3", "1", models.Homozygous), false, accept)

	count, err := f.history.OccurrenceCount(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	observations, err := f.history.Observations(ctx, variantID)
	require.NoError(t, err)
	assert.Len(t, observations, 3)

	_, err = f.history.OccurrenceCount(ctx, "2:1C>T")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOccurrenceCount_UsesLastActiveVerdict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := f.dataset(t, "S1", "1", models.Homozygous)

	f.qc(t, key, true, accept)
	// A newer pending fail does not count until it is authorised.
	failID := f.qc(t, key, false, nil)

	count, err := f.history.OccurrenceCount(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = f.approval.Authorize(ctx, failID, admin, true)
	require.NoError(t, err)

	count, err = f.history.OccurrenceCount(ctx, variantID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHistory_ReplayMatchesChainEdges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := f.dataset(t, "S1", "1", models.Heterozygous)

	ids := []string{
		f.qc(t, key, true, reject),
		f.qc(t, key, false, accept),
		f.qc(t, key, true, accept),
		f.qc(t, key, true, nil),
	}

	events, err := f.history.History(ctx, key.Ref())
	require.NoError(t, err)

	got := make([]string, 0, len(events))
	for _, e := range events {
		got = append(got, e.ID)
	}
	if diff := cmp.Diff(ids, got); diff != "" {
		t.Errorf("history order mismatch (-want +got):\n%s", diff)
	}

	// Rebuild the order from the raw HAS_EVENT edge list.
	var replayed []string
	require.NoError(t, f.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		subject, err := chain.ResolveSubject(ctx, r, key.Ref())
		require.NoError(t, err)
		next := map[string]string{}
		all, err := r.ListVertices(ctx, "")
		require.NoError(t, err)
		for _, v := range all {
			edges, err := r.Edges(ctx, v.ID, graph.Outgoing, models.EdgeHasEvent)
			require.NoError(t, err)
			for _, e := range edges {
				next[e.From] = e.To
			}
		}
		for cur, ok := next[subject.ID]; ok; cur, ok = next[cur] {
			replayed = append(replayed, cur)
		}
		return nil
	}))
	if diff := cmp.Diff(replayed, got); diff != "" {
		t.Errorf("replay mismatch (-edges +history):\n%s", diff)
	}

	assert.Equal(t, models.StatusRejected, events[0].Status)
	assert.Equal(t, models.StatusActive, events[1].Status)
	assert.Equal(t, models.StatusPendingAuth, events[3].Status)
	assert.Nil(t, events[3].DecidedBy)
	require.NotNil(t, events[0].DecidedBy)
	assert.Equal(t, admin, events[0].DecidedBy.User.Email)
	assert.Equal(t, scientist, events[0].AddedBy.User.Email)
	assert.True(t, events[0].AddedBy.Date.Before(events[0].DecidedBy.Date))
	assert.Equal(t, models.QualityControl{PassOrFail: false}, events[1].Payload)
}

func TestHistory_EmptyAndMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := f.dataset(t, "S1", "1", models.Heterozygous)

	events, err := f.history.History(ctx, key.Ref())
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = f.history.History(ctx, models.SubjectRef{Kind: models.SubjectDataset, Key: "nope"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPendingAuthorizations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.qc(t, f.dataset(t, "S1", "1", models.Heterozygous), true, nil)
	f.qc(t, f.dataset(t, "S2", "1", models.Heterozygous), true, accept)
	third := f.qc(t, f.dataset(t, "S3", "1", models.Heterozygous), false, nil)

	pathogenicity, err := f.approval.Propose(ctx, models.SubjectRef{Kind: models.SubjectVariant, Key: variantID},
		models.Pathogenicity{Classification: 4}, scientist)
	require.NoError(t, err)

	pending, err := f.history.PendingAuthorizations(ctx, models.EventQualityControl)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].Event.ID)
	assert.Equal(t, "S1:W1:1", pending[0].Subject.Key)
	assert.Equal(t, third, pending[1].Event.ID)
	assert.Equal(t, scientist, pending[1].Event.AddedBy.User.Email)

	pending, err = f.history.PendingAuthorizations(ctx, models.EventPathogenicity)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pathogenicity, pending[0].Event.ID)
	assert.Equal(t, models.SubjectVariant, pending[0].Subject.Kind)
}

func TestQCLists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.qc(t, f.dataset(t, "S1", "1", models.Heterozygous), true, accept)
	f.qc(t, f.dataset(t, "S2", "1", models.Heterozygous), false, accept)
	f.qc(t, f.dataset(t, "S3", "1", models.Heterozygous), true, nil)
	f.dataset(t, "S4", "1", models.Heterozygous)

	passed, err := f.history.QCPassed(ctx)
	require.NoError(t, err)
	require.Len(t, passed, 1)
	assert.Equal(t, "S1:W1:1", passed[0].Dataset.Key)
	assert.Equal(t, "S1", passed[0].Sample.Key)

	pending, err := f.history.QCPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "S4:W1:1", pending[0].Dataset.Key)
}
