package service

import (
	"context"
	"strings"
	"time"

	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// PriceLookup resolves price row ids to authoritative rows
type PriceLookup interface {
	Lookup(ctx context.Context, ids []string) (map[string]models.PriceRow, error)
}

// AddonChecker validates add-on pairings
type AddonChecker interface {
	Check(ctx context.Context, baseProductIDs, addonProductIDs []string) (AddonResult, error)
}

// CheckoutEventPublisher receives checkout events
type CheckoutEventPublisher interface {
	PublishCheckoutSessionCreated(ctx context.Context, event *models.CheckoutSessionCreatedEvent) error
}

// CheckoutConfig holds the settings of CheckoutService
type CheckoutConfig struct {
	SiteURL        string
	LookupTimeout  time.Duration
	PaymentTimeout time.Duration
}

// CheckoutService turns an untrusted cart into a hosted checkout session
type CheckoutService struct {
	catalog  PriceLookup
	addons   AddonChecker
	payments PaymentGateway
	events   CheckoutEventPublisher
	cfg      CheckoutConfig
	logger   *zap.Logger
}

// NewCheckoutService creates a checkout service. events may be nil.
func NewCheckoutService(
	catalog PriceLookup,
	addons AddonChecker,
	payments PaymentGateway,
	events CheckoutEventPublisher,
	cfg CheckoutConfig,
) *CheckoutService {
	return &CheckoutService{
		catalog:  catalog,
		addons:   addons,
		payments: payments,
		events:   events,
		cfg:      cfg,
		logger:   util.GetLogger(),
	}
}

// CheckoutRequest is what the client submits. It carries no prices.
type CheckoutRequest struct {
	Items         []CheckoutItem `json:"items"`
	CartSessionID string         `json:"-"`
}

// CheckoutItem is one requested line
type CheckoutItem struct {
	PriceRowID string `json:"priceRowId"`
	Qty        int    `json:"qty"`
}

// CheckoutResponse carries the redirect URL of the hosted session
type CheckoutResponse struct {
	URL string `json:"url"`
}

// CreateCheckout validates req against fresh catalog data and the add-on
// policy, then creates a hosted checkout session. Every failure is a
// *CheckoutError; no session is created unless every line passes.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req *CheckoutRequest) (resp *CheckoutResponse, err error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateCheckout")
	defer span.End()

	defer func() {
		if err == nil {
			util.CheckoutRequestsTotal.WithLabelValues("success").Inc()
			return
		}
		ce := AsCheckoutError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, ce.Message)
		util.CheckoutRejectionsTotal.WithLabelValues(ce.Reason).Inc()
		if ce.ClientError() {
			util.CheckoutRequestsTotal.WithLabelValues("rejected").Inc()
			s.logger.Info("Checkout rejected", zap.String("reason", ce.Reason))
		} else {
			util.CheckoutRequestsTotal.WithLabelValues("error").Inc()
			s.logger.Error("Checkout failed", zap.String("reason", ce.Reason), zap.Error(err))
		}
	}()

	if len(req.Items) == 0 {
		return nil, rejectCheckout("empty_cart", MsgCartEmpty)
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.PriceRowID) == "" || item.Qty < 1 || item.Qty > cart.MaxQty {
			return nil, rejectCheckout("invalid_item", MsgInvalidItem)
		}
	}
	span.SetAttributes(attribute.Int("checkout.lines", len(req.Items)))

	if s.cfg.SiteURL == "" {
		return nil, failCheckout("missing_site_url", MsgMissingSiteURL, nil)
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.PriceRowID
	}

	lookupCtx, cancel := withTimeout(ctx, s.cfg.LookupTimeout)
	rows, err := s.catalog.Lookup(lookupCtx, ids)
	cancel()
	if err != nil {
		return nil, failCheckout("price_lookup", MsgPriceLookupFailed, err)
	}

	var baseIDs, addonIDs []string
	for _, item := range req.Items {
		row, ok := rows[item.PriceRowID]
		if !ok || !row.Purchasable() {
			return nil, rejectCheckout("unavailable", MsgUnavailable)
		}
		if row.Product.Kind.Standalone() {
			baseIDs = append(baseIDs, row.Product.ID)
		} else {
			addonIDs = append(addonIDs, row.Product.ID)
		}
	}

	if len(addonIDs) > 0 {
		addonCtx, cancel := withTimeout(ctx, s.cfg.LookupTimeout)
		result, err := s.addons.Check(addonCtx, baseIDs, addonIDs)
		cancel()
		if err != nil {
			return nil, failCheckout("addon_lookup", MsgAddonLookupFailed, err)
		}
		if !result.Valid {
			if result.Reason == AddonReasonNoBase {
				return nil, rejectCheckout("addon_without_base", MsgAddonNeedsBase)
			}
			s.logger.Debug("Unpaired add-on", zap.String("addon_product_id", result.FailedAddon))
			return nil, rejectCheckout("invalid_addon", MsgInvalidAddon)
		}
	}

	params := SessionParams{
		LineItems:           make([]LineItem, len(req.Items)),
		SuccessURL:          s.cfg.SiteURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:           s.cfg.SiteURL + "/cart",
		AllowPromotionCodes: true,
		ClientReferenceID:   req.CartSessionID,
	}
	for i, item := range req.Items {
		params.LineItems[i] = LineItem{
			ProviderPriceID: rows[item.PriceRowID].ProviderPriceID,
			Quantity:        int64(item.Qty),
		}
	}

	payCtx, cancel := withTimeout(ctx, s.cfg.PaymentTimeout)
	session, err := s.payments.CreateSession(payCtx, params)
	cancel()
	if err != nil {
		return nil, failCheckout("payment_session", err.Error(), err)
	}
	if session == nil || session.URL == "" {
		return nil, failCheckout("payment_session", MsgNoRedirectURL, nil)
	}

	s.logger.Info("Checkout session ready",
		zap.String("session_id", session.ID),
		zap.Int("lines", len(req.Items)))

	if s.events != nil {
		event := buildSessionCreatedEvent(session, req, rows)
		go s.publish(event)
	}

	return &CheckoutResponse{URL: session.URL}, nil
}

func (s *CheckoutService) publish(event *models.CheckoutSessionCreatedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.events.PublishCheckoutSessionCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish CheckoutSessionCreated event",
			zap.String("session_id", event.SessionID),
			zap.Error(err))
	}
}

func buildSessionCreatedEvent(session *Session, req *CheckoutRequest, rows map[string]models.PriceRow) *models.CheckoutSessionCreatedEvent {
	event := &models.CheckoutSessionCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCheckoutSessionCreated,
			Timestamp: time.Now(),
		},
		SessionID:     session.ID,
		CartSessionID: req.CartSessionID,
		Items:         make([]models.CheckoutItemData, 0, len(req.Items)),
	}

	for _, item := range req.Items {
		row := rows[item.PriceRowID]
		event.Items = append(event.Items, models.CheckoutItemData{
			PriceRowID: item.PriceRowID,
			Quantity:   item.Qty,
			UnitAmount: row.UnitAmount,
			Currency:   row.Currency,
		})
		event.AmountTotal += row.UnitAmount * int64(item.Qty)
		if event.Currency == "" {
			event.Currency = row.Currency
		}
	}
	return event
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
