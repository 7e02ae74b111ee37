// Package chain walks the per-subject event chains of the graph.
//
// A chain is a simple path of HAS_EVENT edges starting at a subject vertex. Every function here
// refuses to continue past a vertex with more than one chain edge in the walking direction, or
// past a vertex it has already visited, and reports an integrity error instead. Nothing is
// repaired.
package chain

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Link is one event of a chain with its derived status.
type Link struct {
	Event  *graph.Vertex
	Status models.Status
}

// Walk returns the events of the chain starting at subjectID, oldest first.
func Walk(ctx context.Context, r graph.Reader, subjectID string) ([]Link, error) {
	var links []Link
	visited := map[string]bool{subjectID: true}

	current := subjectID
	for {
		edge, err := step(ctx, r, current, graph.Outgoing)
		if err != nil {
			return nil, err
		}
		if edge == nil {
			return links, nil
		}
		if visited[edge.To] {
			return nil, integrityf("chain of %s revisits %s", subjectID, edge.To)
		}
		visited[edge.To] = true

		event, err := r.GetVertex(ctx, edge.To)
		if err != nil {
			return nil, fmt.Errorf("load event %s: %w", edge.To, err)
		}
		if !event.Label.IsEvent() {
			return nil, integrityf("chain of %s reaches %s vertex %s", subjectID, event.Label, event.ID)
		}

		status, err := Status(ctx, r, event.ID)
		if err != nil {
			return nil, err
		}
		links = append(links, Link{Event: event, Status: status})
		current = event.ID
	}
}

// Tip returns the last vertex of the chain: the newest event, or the subject when the chain is
// empty.
func Tip(ctx context.Context, r graph.Reader, subjectID string) (*graph.Vertex, error) {
	visited := map[string]bool{subjectID: true}

	current := subjectID
	for {
		edge, err := step(ctx, r, current, graph.Outgoing)
		if err != nil {
			return nil, err
		}
		if edge == nil {
			return getVertex(ctx, r, current)
		}
		if visited[edge.To] {
			return nil, integrityf("chain of %s revisits %s", subjectID, edge.To)
		}
		visited[edge.To] = true
		current = edge.To
	}
}

// Root follows the chain backwards from eventID to the owning subject.
func Root(ctx context.Context, r graph.Reader, eventID string) (*graph.Vertex, error) {
	visited := map[string]bool{eventID: true}

	current := eventID
	for {
		edge, err := step(ctx, r, current, graph.Incoming)
		if err != nil {
			return nil, err
		}
		if edge == nil {
			root, err := getVertex(ctx, r, current)
			if err != nil {
				return nil, err
			}
			if !root.Label.IsSubject() {
				return nil, integrityf("chain of %s starts at %s vertex %s", eventID, root.Label, root.ID)
			}
			return root, nil
		}
		if visited[edge.From] {
			return nil, integrityf("chain of %s revisits %s", eventID, edge.From)
		}
		visited[edge.From] = true
		current = edge.From
	}
}

// LastActive returns the newest ACTIVE event of the chain, or nil when none was ever authorised.
func LastActive(ctx context.Context, r graph.Reader, subjectID string) (*graph.Vertex, error) {
	links, err := Walk(ctx, r, subjectID)
	if err != nil {
		return nil, err
	}

	var last *graph.Vertex
	for _, link := range links {
		if link.Status == models.StatusActive {
			last = link.Event
		}
	}
	return last, nil
}

// Status derives the status of an event from its decision edges.
func Status(ctx context.Context, r graph.Reader, eventID string) (models.Status, error) {
	status, _, err := Decision(ctx, r, eventID)
	return status, err
}

// Decision returns the status of an event together with the decision edge, nil while pending.
func Decision(ctx context.Context, r graph.Reader, eventID string) (models.Status, *graph.Edge, error) {
	edges, err := r.Edges(ctx, eventID, graph.Outgoing, models.EdgeAuthorisedBy, models.EdgeRejectedBy)
	if err != nil {
		return "", nil, fmt.Errorf("load decisions of %s: %w", eventID, err)
	}

	switch len(edges) {
	case 0:
		return models.StatusPendingAuth, nil, nil
	case 1:
		if edges[0].Type == models.EdgeAuthorisedBy {
			return models.StatusActive, edges[0], nil
		}
		return models.StatusRejected, edges[0], nil
	default:
		return "", nil, integrityf("event %s has %d decision edges", eventID, len(edges))
	}
}

// IsPending reports whether v is an event awaiting a decision. A subject (empty chain) is not.
func IsPending(ctx context.Context, r graph.Reader, v *graph.Vertex) (bool, error) {
	if !v.Label.IsEvent() {
		return false, nil
	}
	status, err := Status(ctx, r, v.ID)
	if err != nil {
		return false, err
	}
	return status == models.StatusPendingAuth, nil
}

// step returns the single chain edge leaving id in the direction, or nil at the end of the chain.
func step(ctx context.Context, r graph.Reader, id string, dir graph.Direction) (*graph.Edge, error) {
	edges, err := r.Edges(ctx, id, dir, models.EdgeHasEvent)
	if err != nil {
		return nil, fmt.Errorf("load %s chain edges of %s: %w", dir, id, err)
	}

	switch len(edges) {
	case 0:
		return nil, nil
	case 1:
		return edges[0], nil
	default:
		return nil, integrityf("vertex %s has %d %s chain edges", id, len(edges), dir)
	}
}

func getVertex(ctx context.Context, r graph.Reader, id string) (*graph.Vertex, error) {
	v, err := r.GetVertex(ctx, id)
	if errors.Is(err, graph.ErrNotFound) {
		return nil, apperrors.NotFoundf("vertex %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load vertex %s: %w", id, err)
	}
	return v, nil
}

func integrityf(format string, args ...any) error {
	metrics.RecordIntegrityViolation()
	return apperrors.Integrityf(format, args...)
}
