// Package events turns chain changes into Kafka notifications
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// EventType defines the type of notification
type EventType string

const (
	EventTypeProposed   EventType = "event.proposed"
	EventTypeAuthorised EventType = "event.authorised"
	EventTypeRejected   EventType = "event.rejected"
)

// Publisher is the transport the emitter writes to.
type Publisher interface {
	PublishChainEvent(ctx context.Context, event *kafka.ChainEvent) error
}

// Emitter handles notification emission for chain changes
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitProposed emits an event.proposed notification
func (e *Emitter) EmitProposed(ctx context.Context, subject models.SubjectView, event models.EventView) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitProposed")
	defer span.End()

	return e.emit(ctx, EventTypeProposed, subject, event, event.AddedBy)
}

// EmitDecided emits event.authorised or event.rejected depending on the event status
func (e *Emitter) EmitDecided(ctx context.Context, subject models.SubjectView, event models.EventView) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDecided")
	defer span.End()

	if event.DecidedBy == nil {
		return fmt.Errorf("event %s has no decision", event.ID)
	}

	eventType := EventTypeAuthorised
	if event.Status == models.StatusRejected {
		eventType = EventTypeRejected
	}
	return e.emit(ctx, eventType, subject, event, *event.DecidedBy)
}

func (e *Emitter) emit(ctx context.Context, eventType EventType, subject models.SubjectView, event models.EventView, by models.Stamp) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event.Kind, err)
	}

	msg := &kafka.ChainEvent{
		EventType:   string(eventType),
		EventID:     event.ID,
		EventKind:   string(event.Kind),
		SubjectKind: string(subject.Kind),
		SubjectKey:  subject.Key,
		Actor:       by.User.Email,
		Status:      string(event.Status),
		Payload:     payload,
		Timestamp:   by.Date,
	}

	if err := e.publisher.PublishChainEvent(ctx, msg); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}
