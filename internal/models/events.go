package models

import "time"

// Event types
const (
	EventTypeCheckoutSessionCreated = "CHECKOUT_SESSION_CREATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckoutSessionCreatedEvent published when a hosted checkout session exists
type CheckoutSessionCreatedEvent struct {
	BaseEvent
	SessionID     string             `json:"session_id"`
	CartSessionID string             `json:"cart_session_id,omitempty"`
	Items         []CheckoutItemData `json:"items"`
	AmountTotal   int64              `json:"amount_total"`
	Currency      string             `json:"currency"`
}

// CheckoutItemData represents one line in checkout events
type CheckoutItemData struct {
	PriceRowID string `json:"price_row_id"`
	Quantity   int    `json:"qty"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
}
