package worker

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ProcessedTTL is how long a handled event id is remembered
const ProcessedTTL = 24 * time.Hour

// EventClaimer records which events have been handled
type EventClaimer interface {
	ClaimEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

// NotificationWorker forwards checkout events to the messaging API
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	claims       EventClaimer
	notifier     Notifier
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(
	consumer *broker.Consumer,
	claims EventClaimer,
	notifier Notifier,
) *NotificationWorker {
	logger := util.GetLogger()
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(logger),
		claims:       claims,
		notifier:     notifier,
		logger:       logger,
	}

	w.eventHandler.OnCheckoutSessionCreated(w.HandleCheckoutSessionCreated)

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// HandleCheckoutSessionCreated notifies once per event id. A failed
// notification releases the claim so a redelivery can retry it.
func (w *NotificationWorker) HandleCheckoutSessionCreated(ctx context.Context, event *models.CheckoutSessionCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.HandleCheckoutSessionCreated")
	defer span.End()

	claimed, err := w.claims.ClaimEvent(ctx, event.EventID, ProcessedTTL)
	if err != nil {
		return fmt.Errorf("claim event %s: %w", event.EventID, err)
	}
	if !claimed {
		w.logger.Debug("Skipping duplicate event", zap.String("event_id", event.EventID))
		util.NotificationsSentTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	if err := w.notifier.Notify(ctx, event); err != nil {
		util.NotificationsSentTotal.WithLabelValues("failed").Inc()
		if rerr := w.claims.ReleaseEvent(ctx, event.EventID); rerr != nil {
			w.logger.Warn("Failed to release event claim", zap.String("event_id", event.EventID), zap.Error(rerr))
		}
		return fmt.Errorf("notify session %s: %w", event.SessionID, err)
	}

	util.NotificationsSentTotal.WithLabelValues("sent").Inc()
	w.logger.Info("Checkout notification sent",
		zap.String("event_id", event.EventID),
		zap.String("session_id", event.SessionID))
	return nil
}
