package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishCheckoutSessionCreated publishes CheckoutSessionCreated event,
// keyed by session so all events of a session land on one partition
func (ep *EventPublisher) PublishCheckoutSessionCreated(ctx context.Context, event *models.CheckoutSessionCreatedEvent) error {
	key := fmt.Sprintf("checkout-%s", event.SessionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// ErrMalformedEvent marks messages that can never be handled
var ErrMalformedEvent = errors.New("malformed event")

// EventHandler routes incoming events by type
type EventHandler struct {
	onSessionCreated func(context.Context, *models.CheckoutSessionCreatedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(logger *zap.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

// OnCheckoutSessionCreated registers a handler for CheckoutSessionCreated events
func (eh *EventHandler) OnCheckoutSessionCreated(handler func(context.Context, *models.CheckoutSessionCreatedEvent) error) {
	eh.onSessionCreated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: failed to unmarshal base event: %v", ErrMalformedEvent, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeCheckoutSessionCreated:
		if eh.onSessionCreated != nil {
			var event models.CheckoutSessionCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: failed to unmarshal CheckoutSessionCreated event: %v", ErrMalformedEvent, err)
			}
			return eh.onSessionCreated(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
