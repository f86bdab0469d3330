package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront/internal/models"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Notifier hands a checkout event to the messaging API
type Notifier interface {
	Notify(ctx context.Context, event *models.CheckoutSessionCreatedEvent) error
}

// notification is the payload sent to the messaging API
type notification struct {
	Type          string                    `json:"type"`
	EventID       string                    `json:"event_id"`
	SessionID     string                    `json:"session_id"`
	CartSessionID string                    `json:"cart_session_id,omitempty"`
	AmountTotal   int64                     `json:"amount_total"`
	Currency      string                    `json:"currency"`
	Items         []models.CheckoutItemData `json:"items"`
	OccurredAt    time.Time                 `json:"occurred_at"`
}

// WebhookNotifier posts notifications to an HTTP endpoint
type WebhookNotifier struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *zap.Logger
}

// NewWebhookNotifier creates a notifier posting to url
func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	n := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
	n.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "notify-webhook",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return n
}

// Notify posts the event. Non-2xx responses are errors.
func (n *WebhookNotifier) Notify(ctx context.Context, event *models.CheckoutSessionCreatedEvent) error {
	body, err := json.Marshal(notification{
		Type:          event.EventType,
		EventID:       event.EventID,
		SessionID:     event.SessionID,
		CartSessionID: event.CartSessionID,
		AmountTotal:   event.AmountTotal,
		Currency:      event.Currency,
		Items:         event.Items,
		OccurredAt:    event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = n.breaker.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", event.EventID)

		resp, err := n.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, fmt.Errorf("messaging API returned %d", resp.StatusCode)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	return nil
}

// LogNotifier only logs events. Used when no messaging API is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event *models.CheckoutSessionCreatedEvent) error {
	n.logger.Info("Checkout session created",
		zap.String("event_id", event.EventID),
		zap.String("session_id", event.SessionID),
		zap.Int64("amount_total", event.AmountTotal),
		zap.String("currency", event.Currency),
		zap.Int("lines", len(event.Items)))
	return nil
}
