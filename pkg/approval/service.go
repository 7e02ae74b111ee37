// Package approval implements the propose / authorise workflow over event chains.
//
// Both gates run inside one write transaction: propose locks the subject and re-reads the tip
// before appending, authorise locks the event and re-derives its status before deciding.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/chain"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Publisher receives committed chain changes.
type Publisher interface {
	EmitProposed(ctx context.Context, subject models.SubjectView, event models.EventView) error
	EmitDecided(ctx context.Context, subject models.SubjectView, event models.EventView) error
}

// Locker serializes proposals on a subject across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithClock replaces time.Now for edge timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service runs the approval workflow
type Service struct {
	store     graph.Store
	publisher Publisher
	locker    Locker
	logger    ectologger.Logger
	now       func() time.Time
}

// NewService creates a new approval service
func NewService(store graph.Store, logger ectologger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Propose appends a pending event to the subject's chain and returns its id. It fails with a
// conflict while the chain tip is still awaiting a decision.
func (s *Service) Propose(ctx context.Context, ref models.SubjectRef, payload models.Payload, actorEmail string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Service.Propose")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"method":  "Propose",
		"subject": ref.String(),
		"actor":   actorEmail,
	})

	if payload == nil {
		return "", apperrors.Validationf("missing event payload")
	}
	if err := models.ValidatePayload(payload); err != nil {
		return "", apperrors.Wrap(apperrors.KindValidation, err, "invalid payload")
	}
	if !ref.Kind.Accepts(payload.Kind()) {
		return "", apperrors.Validationf("%s events cannot be proposed on %s subjects", payload.Kind(), ref.Kind)
	}

	var (
		subject models.SubjectView
		event   *models.EventView
	)
	propose := func(ctx context.Context) error {
		return s.store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
			subjectVertex, err := chain.ResolveSubject(ctx, w, ref)
			if err != nil {
				return err
			}
			actor, err := chain.ResolveUser(ctx, w, actorEmail)
			if err != nil {
				return err
			}

			if err := w.Lock(ctx, subjectVertex.ID); err != nil {
				return fmt.Errorf("lock %s: %w", ref, err)
			}

			tip, err := chain.Tip(ctx, w, subjectVertex.ID)
			if err != nil {
				return err
			}
			pending, err := chain.IsPending(ctx, w, tip)
			if err != nil {
				return err
			}
			if pending {
				return apperrors.Conflictf("%s already has a proposal awaiting authorisation (event %s)", ref, tip.ID)
			}

			created, err := w.CreateVertex(ctx, payload.Kind().Label(), payload.Properties())
			if err != nil {
				return fmt.Errorf("create %s event: %w", payload.Kind(), err)
			}
			now := s.now()
			if _, err := w.CreateEdge(ctx, models.EdgeAddedBy, created.ID, actor.ID, dated(now)); err != nil {
				return fmt.Errorf("link proposer: %w", err)
			}
			if _, err := w.CreateEdge(ctx, models.EdgeHasEvent, tip.ID, created.ID, nil); err != nil {
				return fmt.Errorf("append to chain: %w", err)
			}

			subject = chain.SubjectView(subjectVertex)
			event = &models.EventView{
				ID:      created.ID,
				Kind:    payload.Kind(),
				Payload: payload,
				AddedBy: models.Stamp{User: chain.UserView(actor), Date: time.UnixMilli(models.Millis(now)).UTC()},
				Status:  models.StatusPendingAuth,
			}
			return nil
		})
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, "subject:"+ref.String(), propose)
	} else {
		err = propose(ctx)
	}
	if err != nil {
		metrics.RecordProposal(string(payload.Kind()), outcome(err))
		logFailure(log, err, "Failed to propose event")
		return "", err
	}

	metrics.RecordProposal(string(payload.Kind()), "accepted")
	log.WithField("event_id", event.ID).Info("Proposed event")

	if s.publisher != nil {
		if err := s.publisher.EmitProposed(ctx, subject, *event); err != nil {
			log.WithError(err).Warn("Proposal committed but notification failed")
		}
	}

	return event.ID, nil
}

// Authorize records an admin decision on a pending event and returns the new status.
func (s *Service) Authorize(ctx context.Context, eventID string, actorEmail string, accept bool) (models.Status, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Service.Authorize")
	defer span.End()

	decision := "rejected"
	if accept {
		decision = "authorised"
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"method":   "Authorize",
		"event_id": eventID,
		"actor":    actorEmail,
		"decision": decision,
	})

	var (
		subject models.SubjectView
		event   *models.EventView
	)
	err := s.store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		eventVertex, err := chain.ResolveEvent(ctx, w, eventID)
		if err != nil {
			return err
		}
		actor, err := chain.ResolveUser(ctx, w, actorEmail)
		if err != nil {
			return err
		}
		if !models.BoolProp(actor.Props, models.PropAdmin) {
			return apperrors.Permissionf("user %s is not an administrator", chain.NormalizeEmail(actorEmail))
		}

		if err := w.Lock(ctx, eventVertex.ID); err != nil {
			return fmt.Errorf("lock event %s: %w", eventID, err)
		}

		status, err := chain.Status(ctx, w, eventVertex.ID)
		if err != nil {
			return err
		}
		if status != models.StatusPendingAuth {
			return apperrors.Statef("event %s is %s, only %s events can be decided", eventID, status, models.StatusPendingAuth)
		}

		edgeType := models.EdgeRejectedBy
		if accept {
			edgeType = models.EdgeAuthorisedBy
		}
		if _, err := w.CreateEdge(ctx, edgeType, eventVertex.ID, actor.ID, dated(s.now())); err != nil {
			return fmt.Errorf("record decision: %w", err)
		}

		root, err := chain.Root(ctx, w, eventVertex.ID)
		if err != nil {
			return err
		}
		subject = chain.SubjectView(root)
		event, err = chain.EventView(ctx, w, eventVertex)
		return err
	})
	if err != nil {
		logFailure(log, err, "Failed to decide event")
		return "", err
	}

	metrics.RecordDecision(string(event.Kind), decision)
	log.WithField("status", event.Status).Info("Decided event")

	if s.publisher != nil {
		if err := s.publisher.EmitDecided(ctx, subject, *event); err != nil {
			log.WithError(err).Warn("Decision committed but notification failed")
		}
	}

	return event.Status, nil
}

func dated(t time.Time) map[string]any {
	return map[string]any{models.PropDate: models.Millis(t)}
}

func outcome(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.Kind.String()
	}
	return "error"
}

func logFailure(log ectologger.Logger, err error, msg string) {
	switch apperrors.KindOf(err) {
	case apperrors.KindIntegrity, apperrors.KindUnknown:
		log.WithError(err).Error(msg)
	default:
		log.WithError(err).Warn(msg)
	}
}
