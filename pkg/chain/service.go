package chain

import (
	"context"

	"github.com/Gobusters/ectologger"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service answers chain queries, each in its own read transaction.
type Service struct {
	store  graph.Store
	logger ectologger.Logger
}

// NewService creates a new chain service
func NewService(store graph.Store, logger ectologger.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Tip returns the subject with the newest event of its chain, if any.
func (s *Service) Tip(ctx context.Context, ref models.SubjectRef) (*models.TipView, error) {
	ctx, span := tracing.StartSpan(ctx, "chain.Service.Tip")
	defer span.End()

	var view *models.TipView
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		subject, err := ResolveSubject(ctx, r, ref)
		if err != nil {
			return err
		}
		tip, err := Tip(ctx, r, subject.ID)
		if err != nil {
			return err
		}

		view = &models.TipView{Subject: SubjectView(subject)}
		if tip.ID == subject.ID {
			return nil
		}
		view.Event, err = EventView(ctx, r, tip)
		return err
	})
	if err != nil {
		s.logError(ctx, err, "Failed to resolve chain tip", ref)
		return nil, err
	}
	return view, nil
}

// LastActive returns the newest authorised event of the subject, nil when there is none.
func (s *Service) LastActive(ctx context.Context, ref models.SubjectRef) (*models.EventView, error) {
	ctx, span := tracing.StartSpan(ctx, "chain.Service.LastActive")
	defer span.End()

	var view *models.EventView
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		subject, err := ResolveSubject(ctx, r, ref)
		if err != nil {
			return err
		}
		active, err := LastActive(ctx, r, subject.ID)
		if err != nil || active == nil {
			return err
		}
		view, err = eventView(ctx, r, active, models.StatusActive)
		return err
	})
	if err != nil {
		s.logError(ctx, err, "Failed to resolve last active event", ref)
		return nil, err
	}
	return view, nil
}

// Root returns the subject owning the event.
func (s *Service) Root(ctx context.Context, eventID string) (*models.SubjectView, error) {
	ctx, span := tracing.StartSpan(ctx, "chain.Service.Root")
	defer span.End()

	var view models.SubjectView
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		event, err := ResolveEvent(ctx, r, eventID)
		if err != nil {
			return err
		}
		root, err := Root(ctx, r, event.ID)
		if err != nil {
			return err
		}
		view = SubjectView(root)
		return nil
	})
	if err != nil {
		s.logError(ctx, err, "Failed to resolve chain root", eventID)
		return nil, err
	}
	return &view, nil
}

// Status returns the event with its derived status.
func (s *Service) Status(ctx context.Context, eventID string) (*models.EventView, error) {
	ctx, span := tracing.StartSpan(ctx, "chain.Service.Status")
	defer span.End()

	var view *models.EventView
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		event, err := ResolveEvent(ctx, r, eventID)
		if err != nil {
			return err
		}
		view, err = EventView(ctx, r, event)
		return err
	})
	if err != nil {
		s.logError(ctx, err, "Failed to derive event status", eventID)
		return nil, err
	}
	return view, nil
}

func (s *Service) logError(ctx context.Context, err error, msg string, target any) {
	log := s.logger.WithContext(ctx).WithError(err).WithField("target", target)
	if apperrors.KindOf(err) == apperrors.KindIntegrity {
		log.Error(msg)
		return
	}
	log.Debug(msg)
}
