package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/graph/memory"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestService() (*Service, graph.Store) {
	store := memory.NewStore()
	return NewService(store, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})), store
}

func TestService_AddUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	user, err := svc.AddUser(ctx, NewUser{Email: "Jane.Doe@Example.com", FullName: "Jane Doe", Admin: true})
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", user.Email)
	assert.True(t, user.Admin)

	_, err = svc.AddUser(ctx, NewUser{Email: "jane.doe@example.com", FullName: "Jane Again"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	found, err := svc.GetUser(ctx, "JANE.DOE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, "Jane Doe", found.FullName)

	_, err = svc.GetUser(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestService_AddUser_Validation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.AddUser(context.Background(), NewUser{Email: "not-an-email", FullName: "X"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestService_AddDataset(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	key := models.DatasetKey{SampleID: "S1", WorklistID: "W1", SeqID: "7"}

	_, err := svc.AddDataset(ctx, NewDataset{DatasetKey: key})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.AddSample(ctx, NewSample{SampleID: "S1"})
	require.NoError(t, err)

	dataset, err := svc.AddDataset(ctx, NewDataset{DatasetKey: key, Assay: "TruSight"})
	require.NoError(t, err)
	assert.Equal(t, models.SubjectDataset, dataset.Kind)
	assert.Equal(t, "S1:W1:7", dataset.Key)
	assert.Equal(t, "TruSight", dataset.Properties[models.PropAssay])

	_, err = svc.AddDataset(ctx, NewDataset{DatasetKey: key})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		edges, err := r.Edges(ctx, dataset.ID, graph.Incoming, models.EdgeHasData)
		require.NoError(t, err)
		assert.Len(t, edges, 1)
		return nil
	}))
}

func TestService_AddVariant_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	first, err := svc.AddVariant(ctx, NewVariant{VariantID: "1:100A>G"})
	require.NoError(t, err)
	second, err := svc.AddVariant(ctx, NewVariant{VariantID: " 1:100A>G "})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestService_AddVariantCall(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	key := models.DatasetKey{SampleID: "S1", WorklistID: "W1", SeqID: "1"}

	_, err := svc.AddSample(ctx, NewSample{SampleID: "S1"})
	require.NoError(t, err)
	dataset, err := svc.AddDataset(ctx, NewDataset{DatasetKey: key})
	require.NoError(t, err)

	call := NewVariantCall{Dataset: key, VariantID: "1:100A>G", Inheritance: models.Homozygous}
	require.NoError(t, svc.AddVariantCall(ctx, call))
	require.NoError(t, svc.AddVariantCall(ctx, call))

	require.NoError(t, store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		edges, err := r.Edges(ctx, dataset.ID, graph.Outgoing, models.EdgeHasHomVariant)
		require.NoError(t, err)
		assert.Len(t, edges, 1)
		return nil
	}))

	err = svc.AddVariantCall(ctx, NewVariantCall{Dataset: key, VariantID: "1:100A>G", Inheritance: "MOSAIC"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestService_AddPanel(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	_, err := svc.AddPanel(ctx, NewPanel{PanelID: "P1", Email: "designer@example.com", Symbols: []string{"BRCA1"}})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.AddUser(ctx, NewUser{Email: "designer@example.com", FullName: "Designer"})
	require.NoError(t, err)
	_, err = svc.AddFeature(ctx, NewFeature{FeatureID: "ENST0001", SymbolID: "BRCA1"})
	require.NoError(t, err)

	panel, err := svc.AddPanel(ctx, NewPanel{
		PanelID: "P1",
		Email:   "designer@example.com",
		Symbols: []string{"BRCA1", "BRCA2", "BRCA1"},
	})
	require.NoError(t, err)

	require.NoError(t, store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		symbols, err := r.Edges(ctx, panel.ID, graph.Outgoing, models.EdgeContainsSymbol)
		require.NoError(t, err)
		assert.Len(t, symbols, 2)

		addedBy, err := r.Edges(ctx, panel.ID, graph.Outgoing, models.EdgeAddedBy)
		require.NoError(t, err)
		require.Len(t, addedBy, 1)
		assert.NotZero(t, models.IntProp(addedBy[0].Props, models.PropDate))

		all, err := r.ListVertices(ctx, models.LabelSymbol)
		require.NoError(t, err)
		assert.Len(t, all, 2)
		return nil
	}))
}

func TestService_PanelsAndSymbols(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	designed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return designed }

	panels, err := svc.Panels(ctx)
	require.NoError(t, err)
	assert.Empty(t, panels)
	assert.NotNil(t, panels)

	_, err = svc.AddUser(ctx, NewUser{Email: "designer@example.com", FullName: "Designer"})
	require.NoError(t, err)
	_, err = svc.AddFeature(ctx, NewFeature{FeatureID: "ENST0001", SymbolID: "BRCA1"})
	require.NoError(t, err)
	_, err = svc.AddPanel(ctx, NewPanel{PanelID: "P1", Email: "designer@example.com", Symbols: []string{"BRCA1", "BRCA2"}})
	require.NoError(t, err)
	_, err = svc.AddPanel(ctx, NewPanel{PanelID: "P2", Email: "designer@example.com"})
	require.NoError(t, err)

	panels, err = svc.Panels(ctx)
	require.NoError(t, err)
	require.Len(t, panels, 2)
	keys := []string{panels[0].Panel.Key, panels[1].Panel.Key}
	assert.ElementsMatch(t, []string{"P1", "P2"}, keys)
	for _, p := range panels {
		assert.Equal(t, "designer@example.com", p.AddedBy.User.Email)
		assert.Equal(t, designed, p.AddedBy.Date)
	}

	panel, err := svc.Panel(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, models.SubjectPanel, panel.Panel.Kind)
	assert.Equal(t, "Designer", panel.AddedBy.User.FullName)
	symbols := make([]string, 0, len(panel.Symbols))
	for _, symbol := range panel.Symbols {
		symbols = append(symbols, symbol.SymbolID)
	}
	assert.ElementsMatch(t, []string{"BRCA1", "BRCA2"}, symbols)

	empty, err := svc.Panel(ctx, "P2")
	require.NoError(t, err)
	assert.Empty(t, empty.Symbols)

	_, err = svc.Panel(ctx, "P404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	symbol, err := svc.Symbol(ctx, "BRCA1")
	require.NoError(t, err)
	assert.Equal(t, "BRCA1", symbol.Symbol.SymbolID)
	require.Len(t, symbol.Features, 1)
	assert.Equal(t, "ENST0001", symbol.Features[0].Key)
	require.Len(t, symbol.Panels, 1)
	assert.Equal(t, "P1", symbol.Panels[0].Key)

	symbol, err = svc.Symbol(ctx, "BRCA2")
	require.NoError(t, err)
	assert.Empty(t, symbol.Features)
	assert.Len(t, symbol.Panels, 1)

	_, err = svc.Symbol(ctx, "TP53")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestService_SubjectInfo(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.AddSample(ctx, NewSample{SampleID: "S1"})
	require.NoError(t, err)

	info, err := svc.SubjectInfo(ctx, models.SubjectRef{Kind: models.SubjectSample, Key: "S1"})
	require.NoError(t, err)
	assert.Equal(t, "S1", info.Subject.Key)
	assert.Zero(t, info.ChainLength)
	assert.Nil(t, info.Tip)
	assert.Nil(t, info.LastActive)

	_, err = svc.SubjectInfo(ctx, models.SubjectRef{Kind: models.SubjectSample, Key: "S2"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
