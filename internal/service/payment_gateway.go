package service

import (
	"context"
	"time"

	"storefront/internal/util"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// LineItem is one priced line of a hosted checkout session
type LineItem struct {
	ProviderPriceID string
	Quantity        int64
}

// SessionParams describes the hosted checkout session to create
type SessionParams struct {
	LineItems           []LineItem
	SuccessURL          string
	CancelURL           string
	AllowPromotionCodes bool
	ClientReferenceID   string
}

// Session is a created hosted checkout session
type Session struct {
	ID  string
	URL string
}

// PaymentGateway creates hosted checkout sessions
type PaymentGateway interface {
	CreateSession(ctx context.Context, params SessionParams) (*Session, error)
}

// StripeGateway creates Stripe Checkout sessions in payment mode
type StripeGateway struct {
	api     *client.API
	breaker *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
	logger  *zap.Logger
}

// NewStripeGateway creates a gateway. backends may be nil for the default
// Stripe endpoints with network retries disabled.
func NewStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	logger := util.GetLogger()

	breaker := gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](gobreaker.Settings{
		Name:        "stripe-checkout",
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

	if backends == nil {
		// stripe-go retries by default; a checkout is attempted once.
		// GetBackendWithConfig fills in the URL, so each backend gets its own config.
		noRetry := func() *stripe.BackendConfig {
			return &stripe.BackendConfig{MaxNetworkRetries: stripe.Int64(0)}
		}
		backends = &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, noRetry()),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, noRetry()),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, noRetry()),
		}
	}

	return &StripeGateway{
		api:     client.New(secretKey, backends),
		breaker: breaker,
		logger:  logger,
	}
}

// CreateSession creates the session once; failures are not retried.
func (g *StripeGateway) CreateSession(ctx context.Context, p SessionParams) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "StripeGateway.CreateSession")
	defer span.End()

	params := &stripe.CheckoutSessionParams{
		Mode:                stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:          stripe.String(p.SuccessURL),
		CancelURL:           stripe.String(p.CancelURL),
		AllowPromotionCodes: stripe.Bool(p.AllowPromotionCodes),
	}
	for _, li := range p.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(li.ProviderPriceID),
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	if p.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(p.ClientReferenceID)
	}
	params.Context = ctx

	start := time.Now()
	cs, err := g.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return g.api.CheckoutSessions.New(params)
	})
	util.PaymentSessionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.PaymentSessionFailures.Inc()
		return nil, err
	}

	g.logger.Info("Checkout session created", zap.String("session_id", cs.ID))
	return &Session{ID: cs.ID, URL: cs.URL}, nil
}
