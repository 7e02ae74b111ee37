// Package history replays event chains and answers the read-only queries built on them.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/chain"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service answers history and review queue queries
type Service struct {
	store  graph.Store
	logger ectologger.Logger
}

// NewService creates a new history service
func NewService(store graph.Store, logger ectologger.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// History returns every event of the subject's chain in append order.
func (s *Service) History(ctx context.Context, ref models.SubjectRef) ([]models.EventView, error) {
	ctx, span := tracing.StartSpan(ctx, "history.Service.History")
	defer span.End()

	var events []models.EventView
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		subject, err := chain.ResolveSubject(ctx, r, ref)
		if err != nil {
			return err
		}
		links, err := chain.Walk(ctx, r, subject.ID)
		if err != nil {
			return err
		}
		events, err = chain.LinkViews(ctx, r, links)
		return err
	})
	if err != nil {
		s.logFailure(ctx, err, "Failed to replay chain")
		return nil, err
	}

	metrics.RecordChainLength(len(events))
	return events, nil
}

// PendingAuthorizations returns the events of a kind awaiting a decision, oldest proposal first.
func (s *Service) PendingAuthorizations(ctx context.Context, kind models.EventKind) ([]models.PendingAuthorization, error) {
	ctx, span := tracing.StartSpan(ctx, "history.Service.PendingAuthorizations")
	defer span.End()

	var pending []models.PendingAuthorization
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		events, err := r.ListVertices(ctx, kind.Label())
		if err != nil {
			return fmt.Errorf("list %s events: %w", kind, err)
		}

		for _, event := range events {
			status, err := chain.Status(ctx, r, event.ID)
			if err != nil {
				return err
			}
			if status != models.StatusPendingAuth {
				continue
			}

			subject, err := chain.Root(ctx, r, event.ID)
			if err != nil {
				return err
			}
			view, err := chain.EventView(ctx, r, event)
			if err != nil {
				return err
			}
			pending = append(pending, models.PendingAuthorization{
				Subject: chain.SubjectView(subject),
				Event:   *view,
			})
		}
		return nil
	})
	if err != nil {
		s.logFailure(ctx, err, "Failed to build review queue")
		return nil, err
	}

	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i].Event, pending[j].Event
		if !a.AddedBy.Date.Equal(b.AddedBy.Date) {
			return a.AddedBy.Date.Before(b.AddedBy.Date)
		}
		return a.ID < b.ID
	})
	return pending, nil
}

// OccurrenceCount counts the samples carrying the variant in a dataset that passed QC.
// Homozygous calls weigh 2, heterozygous 1, and each sample contributes its heaviest call once.
func (s *Service) OccurrenceCount(ctx context.Context, variantID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "history.Service.OccurrenceCount")
	defer span.End()

	var count int
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		variant, err := chain.ResolveSubject(ctx, r, models.SubjectRef{Kind: models.SubjectVariant, Key: variantID})
		if err != nil {
			return err
		}
		count, err = CountOccurrences(ctx, r, variant.ID)
		return err
	})
	if err != nil {
		s.logFailure(ctx, err, "Failed to count variant occurrences")
		return 0, err
	}
	return count, nil
}

// Observations lists every QC-passed dataset carrying the variant with its sample.
func (s *Service) Observations(ctx context.Context, variantID string) ([]models.Observation, error) {
	ctx, span := tracing.StartSpan(ctx, "history.Service.Observations")
	defer span.End()

	var observations []models.Observation
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		variant, err := chain.ResolveSubject(ctx, r, models.SubjectRef{Kind: models.SubjectVariant, Key: variantID})
		if err != nil {
			return err
		}
		observations, err = observe(ctx, r, variant.ID)
		return err
	})
	if err != nil {
		s.logFailure(ctx, err, "Failed to list variant observations")
		return nil, err
	}
	return observations, nil
}

// QCPassed lists datasets whose newest QC event is authorised and passing.
func (s *Service) QCPassed(ctx context.Context) ([]models.DatasetSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "history.Service.QCPassed")
	defer span.End()

	return s.datasets(ctx, func(ctx context.Context, r graph.Reader, dataset *graph.Vertex) (bool, error) {
		tip, err := chain.Tip(ctx, r, dataset.ID)
		if err != nil || tip.ID == dataset.ID {
			return false, err
		}
		status, err := chain.Status(ctx, r, tip.ID)
		if err != nil {
			return false, err
		}
		return status == models.StatusActive && models.BoolProp(tip.Props, models.PropPassOrFail), nil
	})
}

// QCPending lists datasets that have never had a QC proposal.
func (s *Service) QCPending(ctx context.Context) ([]models.DatasetSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "history.Service.QCPending")
	defer span.End()

	return s.datasets(ctx, func(ctx context.Context, r graph.Reader, dataset *graph.Vertex) (bool, error) {
		tip, err := chain.Tip(ctx, r, dataset.ID)
		if err != nil {
			return false, err
		}
		return tip.ID == dataset.ID, nil
	})
}

type datasetPredicate func(ctx context.Context, r graph.Reader, dataset *graph.Vertex) (bool, error)

func (s *Service) datasets(ctx context.Context, keep datasetPredicate) ([]models.DatasetSummary, error) {
	var summaries []models.DatasetSummary
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		datasets, err := r.ListVertices(ctx, models.LabelDataset)
		if err != nil {
			return fmt.Errorf("list datasets: %w", err)
		}

		for _, dataset := range datasets {
			ok, err := keep(ctx, r, dataset)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			sample, err := owningSample(ctx, r, dataset.ID)
			if err != nil {
				return err
			}
			summary := models.DatasetSummary{Dataset: chain.SubjectView(dataset)}
			if sample != nil {
				summary.Sample = chain.SubjectView(sample)
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		s.logFailure(ctx, err, "Failed to list datasets")
		return nil, err
	}
	return summaries, nil
}

// CountOccurrences is OccurrenceCount inside an existing transaction.
func CountOccurrences(ctx context.Context, r graph.Reader, variantID string) (int, error) {
	observations, err := observe(ctx, r, variantID)
	if err != nil {
		return 0, err
	}

	weights := make(map[string]int)
	for _, o := range observations {
		if w := o.Inheritance.Weight(); w > weights[o.Sample.ID] {
			weights[o.Sample.ID] = w
		}
	}

	count := 0
	for _, w := range ectolinq.Values(weights) {
		count += w
	}
	return count, nil
}

func observe(ctx context.Context, r graph.Reader, variantID string) ([]models.Observation, error) {
	calls, err := r.Edges(ctx, variantID, graph.Incoming, models.EdgeHasHetVariant, models.EdgeHasHomVariant)
	if err != nil {
		return nil, fmt.Errorf("load calls of %s: %w", variantID, err)
	}

	var observations []models.Observation
	for _, call := range calls {
		dataset, err := r.GetVertex(ctx, call.From)
		if err != nil {
			return nil, fmt.Errorf("load dataset %s: %w", call.From, err)
		}
		if dataset.Label != models.LabelDataset {
			continue
		}

		passed, err := passedQC(ctx, r, dataset.ID)
		if err != nil {
			return nil, err
		}
		if !passed {
			continue
		}

		sample, err := owningSample(ctx, r, dataset.ID)
		if err != nil {
			return nil, err
		}
		if sample == nil {
			continue
		}

		inheritance, _ := models.InheritanceOf(call.Type)
		observations = append(observations, models.Observation{
			Inheritance: inheritance,
			Sample:      chain.SubjectView(sample),
			Dataset:     chain.SubjectView(dataset),
		})
	}
	return observations, nil
}

// passedQC reports whether the newest authorised QC verdict of the dataset is a pass.
func passedQC(ctx context.Context, r graph.Reader, datasetID string) (bool, error) {
	active, err := chain.LastActive(ctx, r, datasetID)
	if err != nil || active == nil {
		return false, err
	}
	return models.BoolProp(active.Props, models.PropPassOrFail), nil
}

func owningSample(ctx context.Context, r graph.Reader, datasetID string) (*graph.Vertex, error) {
	edges, err := r.Edges(ctx, datasetID, graph.Incoming, models.EdgeHasData)
	if err != nil {
		return nil, fmt.Errorf("load sample of %s: %w", datasetID, err)
	}
	if len(edges) == 0 {
		return nil, nil
	}

	sample, err := r.GetVertex(ctx, edges[0].From)
	if errors.Is(err, graph.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sample %s: %w", edges[0].From, err)
	}
	if sample.Label != models.LabelSample {
		return nil, nil
	}
	return sample, nil
}

func (s *Service) logFailure(ctx context.Context, err error, msg string) {
	log := s.logger.WithContext(ctx).WithError(err)
	if apperrors.KindOf(err) == apperrors.KindIntegrity {
		log.Error(msg)
		return
	}
	log.Debug(msg)
}
