package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

type recordingPublisher struct {
	events []*kafka.ChainEvent
	err    error
}

func (p *recordingPublisher) PublishChainEvent(_ context.Context, event *kafka.ChainEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func newTestEmitter(publisher Publisher) *Emitter {
	return NewEmitter(publisher, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
}

func fixture() (models.SubjectView, models.EventView) {
	subject := models.SubjectView{ID: "s1", Kind: models.SubjectDataset, Key: "S1:W1:1"}
	event := models.EventView{
		ID:      "e1",
		Kind:    models.EventQualityControl,
		Payload: models.QualityControl{PassOrFail: true},
		AddedBy: models.Stamp{
			User: models.User{Email: "scientist@example.com"},
			Date: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Status: models.StatusPendingAuth,
	}
	return subject, event
}

func TestEmitter_EmitProposed(t *testing.T) {
	publisher := &recordingPublisher{}
	subject, event := fixture()

	require.NoError(t, newTestEmitter(publisher).EmitProposed(context.Background(), subject, event))
	require.Len(t, publisher.events, 1)

	msg := publisher.events[0]
	assert.Equal(t, string(EventTypeProposed), msg.EventType)
	assert.Equal(t, "Dataset", msg.SubjectKind)
	assert.Equal(t, "S1:W1:1", msg.SubjectKey)
	assert.Equal(t, "scientist@example.com", msg.Actor)
	assert.Equal(t, event.AddedBy.Date, msg.Timestamp)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, true, payload["passOrFail"])
}

func TestEmitter_EmitDecided(t *testing.T) {
	subject, event := fixture()
	decidedAt := event.AddedBy.Date.Add(time.Hour)

	t.Run("Authorised", func(t *testing.T) {
		publisher := &recordingPublisher{}
		authorised := event
		authorised.Status = models.StatusActive
		authorised.DecidedBy = &models.Stamp{User: models.User{Email: "admin@example.com"}, Date: decidedAt}

		require.NoError(t, newTestEmitter(publisher).EmitDecided(context.Background(), subject, authorised))
		require.Len(t, publisher.events, 1)
		assert.Equal(t, string(EventTypeAuthorised), publisher.events[0].EventType)
		assert.Equal(t, "admin@example.com", publisher.events[0].Actor)
		assert.Equal(t, decidedAt, publisher.events[0].Timestamp)
	})

	t.Run("Rejected", func(t *testing.T) {
		publisher := &recordingPublisher{}
		rejected := event
		rejected.Status = models.StatusRejected
		rejected.DecidedBy = &models.Stamp{User: models.User{Email: "admin@example.com"}, Date: decidedAt}

		require.NoError(t, newTestEmitter(publisher).EmitDecided(context.Background(), subject, rejected))
		assert.Equal(t, string(EventTypeRejected), publisher.events[0].EventType)
	})

	t.Run("Pending", func(t *testing.T) {
		publisher := &recordingPublisher{}
		assert.Error(t, newTestEmitter(publisher).EmitDecided(context.Background(), subject, event))
		assert.Empty(t, publisher.events)
	})
}

func TestEmitter_PublishFailure(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	subject, event := fixture()

	err := newTestEmitter(publisher).EmitProposed(context.Background(), subject, event)
	assert.EqualError(t, err, "broker down")
}
