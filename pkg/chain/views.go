package chain

import (
	"context"
	"fmt"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SubjectView converts a subject vertex into plain data.
func SubjectView(v *graph.Vertex) models.SubjectView {
	kind, _ := models.SubjectKindOf(v.Label)
	return models.SubjectView{
		ID:         v.ID,
		Kind:       kind,
		Key:        models.StringProp(v.Props, kind.KeyProperty()),
		Properties: v.Props,
	}
}

func UserView(v *graph.Vertex) models.User {
	return models.User{
		ID:       v.ID,
		Email:    models.StringProp(v.Props, models.PropEmail),
		FullName: models.StringProp(v.Props, models.PropFullName),
		Admin:    models.BoolProp(v.Props, models.PropAdmin),
	}
}

// EventView loads the payload, proposer and decision of an event.
func EventView(ctx context.Context, r graph.Reader, event *graph.Vertex) (*models.EventView, error) {
	status, err := Status(ctx, r, event.ID)
	if err != nil {
		return nil, err
	}
	return eventView(ctx, r, event, status)
}

func eventView(ctx context.Context, r graph.Reader, event *graph.Vertex, status models.Status) (*models.EventView, error) {
	kind, ok := models.EventKindOf(event.Label)
	if !ok {
		return nil, apperrors.Integrityf("vertex %s is not an event", event.ID)
	}

	payload, err := models.PayloadFromProperties(kind, event.Props)
	if err != nil {
		return nil, err
	}

	addedBy, err := r.Edges(ctx, event.ID, graph.Outgoing, models.EdgeAddedBy)
	if err != nil {
		return nil, fmt.Errorf("load proposer of %s: %w", event.ID, err)
	}
	if len(addedBy) != 1 {
		return nil, integrityf("event %s has %d %s edges", event.ID, len(addedBy), models.EdgeAddedBy)
	}
	proposer, err := stamp(ctx, r, addedBy[0])
	if err != nil {
		return nil, err
	}

	view := &models.EventView{
		ID:      event.ID,
		Kind:    kind,
		Payload: payload,
		AddedBy: *proposer,
		Status:  status,
	}

	if status != models.StatusPendingAuth {
		_, decision, err := Decision(ctx, r, event.ID)
		if err != nil {
			return nil, err
		}
		if view.DecidedBy, err = stamp(ctx, r, decision); err != nil {
			return nil, err
		}
	}

	return view, nil
}

// LinkViews converts a walked chain into event views without re-deriving statuses.
func LinkViews(ctx context.Context, r graph.Reader, links []Link) ([]models.EventView, error) {
	views := make([]models.EventView, 0, len(links))
	for _, link := range links {
		view, err := eventView(ctx, r, link.Event, link.Status)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

func stamp(ctx context.Context, r graph.Reader, edge *graph.Edge) (*models.Stamp, error) {
	user, err := getVertex(ctx, r, edge.To)
	if err != nil {
		return nil, err
	}
	return &models.Stamp{
		User: UserView(user),
		Date: models.TimeProp(edge.Props, models.PropDate),
	}, nil
}
