// Package workflow holds the static table of variant filter workflows.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Ramsey-B/fern/pkg/chain"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/history"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Info describes a registered workflow.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

// Handler runs a workflow against a read transaction.
type Handler func(ctx context.Context, r graph.Reader, input json.RawMessage) (any, error)

type entry struct {
	Info
	handler Handler
}

// Registry maps workflow paths to their handlers.
type Registry struct {
	store   graph.Store
	entries map[string]entry
}

// NewRegistry returns the registry with every built-in workflow.
func NewRegistry(store graph.Store) *Registry {
	return &Registry{
		store: store,
		entries: map[string]entry{
			"rare": {
				Info: Info{
					Name:        "Rare Variant Workflow v1",
					Description: "A workflow to prioritise rare calls",
					Path:        "/rare",
				},
				handler: rareVariants,
			},
		},
	}
}

// List returns the registered workflows ordered by path.
func (r *Registry) List() []Info {
	infos := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, e.Info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

// Run executes the named workflow in a read transaction.
func (r *Registry) Run(ctx context.Context, name string, input json.RawMessage) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.Registry.Run")
	defer span.End()

	e, ok := r.entries[name]
	if !ok {
		return nil, apperrors.NotFoundf("workflow %q not found", name)
	}

	var result any
	err := r.store.Read(ctx, func(ctx context.Context, reader graph.Reader) error {
		var err error
		result, err = e.handler(ctx, reader, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RareCall is one variant call of a dataset with the number of QC-passed samples carrying it.
type RareCall struct {
	VariantID   string             `json:"variantId"`
	Inheritance models.Inheritance `json:"inheritance"`
	Occurrence  int                `json:"occurrence"`
}

// rareVariants lists the calls of a dataset, rarest first.
func rareVariants(ctx context.Context, r graph.Reader, input json.RawMessage) (any, error) {
	var key models.DatasetKey
	if err := json.Unmarshal(input, &key); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, err, "invalid workflow input")
	}
	if key.SampleID == "" || key.WorklistID == "" || key.SeqID == "" {
		return nil, apperrors.Validationf("sampleId, worklistId and seqId are required")
	}

	dataset, err := chain.ResolveSubject(ctx, r, key.Ref())
	if err != nil {
		return nil, err
	}

	edges, err := r.Edges(ctx, dataset.ID, graph.Outgoing, models.EdgeHasHetVariant, models.EdgeHasHomVariant)
	if err != nil {
		return nil, fmt.Errorf("load calls of %s: %w", key.ID(), err)
	}

	calls := make([]RareCall, 0, len(edges))
	for _, edge := range edges {
		variant, err := r.GetVertex(ctx, edge.To)
		if err != nil {
			return nil, fmt.Errorf("load variant %s: %w", edge.To, err)
		}
		count, err := history.CountOccurrences(ctx, r, variant.ID)
		if err != nil {
			return nil, err
		}
		inheritance, _ := models.InheritanceOf(edge.Type)
		calls = append(calls, RareCall{
			VariantID:   models.StringProp(variant.Props, models.SubjectVariant.KeyProperty()),
			Inheritance: inheritance,
			Occurrence:  count,
		})
	}

	sort.SliceStable(calls, func(i, j int) bool {
		if calls[i].Occurrence != calls[j].Occurrence {
			return calls[i].Occurrence < calls[j].Occurrence
		}
		return calls[i].VariantID < calls[j].VariantID
	})
	return calls, nil
}
