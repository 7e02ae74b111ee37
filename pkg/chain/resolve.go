package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
)

// ResolveSubject finds a subject vertex by its natural key.
func ResolveSubject(ctx context.Context, r graph.Reader, ref models.SubjectRef) (*graph.Vertex, error) {
	if ref.Kind.KeyProperty() == "" {
		return nil, apperrors.Validationf("unknown subject kind %q", ref.Kind)
	}

	v, err := r.FindVertex(ctx, ref.Kind.Label(), ref.Kind.KeyProperty(), ref.Key)
	if errors.Is(err, graph.ErrNotFound) {
		return nil, apperrors.NotFoundf("%s not found", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", ref, err)
	}
	return v, nil
}

// ResolveUser finds a user vertex by email, case-insensitively.
func ResolveUser(ctx context.Context, r graph.Reader, email string) (*graph.Vertex, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, apperrors.NotFoundf("no acting user given")
	}

	v, err := r.FindVertex(ctx, models.LabelUser, models.PropEmail, email)
	if errors.Is(err, graph.ErrNotFound) {
		return nil, apperrors.NotFoundf("user %s not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", email, err)
	}
	return v, nil
}

// ResolveEvent loads an event vertex by id.
func ResolveEvent(ctx context.Context, r graph.Reader, eventID string) (*graph.Vertex, error) {
	v, err := r.GetVertex(ctx, eventID)
	if errors.Is(err, graph.ErrNotFound) {
		return nil, apperrors.NotFoundf("event %s not found", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	if !v.Label.IsEvent() {
		return nil, apperrors.NotFoundf("event %s not found", eventID)
	}
	return v, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
