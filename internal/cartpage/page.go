// Package cartpage is the cart view-model: the cart joined with catalog data
// for display, plus checkout submission with a single outstanding request.
package cartpage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"go.uber.org/zap"
)

var (
	// ErrCheckoutPending is returned while a checkout submission is in flight
	ErrCheckoutPending = errors.New("checkout already in progress")
	// ErrCartNotReady is returned when checkout is attempted before hydration
	ErrCartNotReady = errors.New("cart is not ready")
)

// DisplayLookup resolves price rows for display. It may serve cached rows.
type DisplayLookup interface {
	LookupCached(ctx context.Context, ids []string) (map[string]models.PriceRow, error)
}

// CheckoutSubmitter creates a hosted checkout session
type CheckoutSubmitter interface {
	CreateCheckout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error)
}

// LineView is one cart line as displayed
type LineView struct {
	PriceRowID string             `json:"priceRowId"`
	Qty        int                `json:"qty"`
	Meta       cart.Meta          `json:"meta,omitempty"`
	Name       string             `json:"name"`
	Slug       string             `json:"slug,omitempty"`
	Kind       models.ProductKind `json:"kind,omitempty"`
	UnitAmount int64              `json:"unitAmount"`
	LineTotal  int64              `json:"lineTotal"`
	Currency   string             `json:"currency,omitempty"`
	Available  bool               `json:"available"`
}

// View is a snapshot of the page state
type View struct {
	Lines           []LineView `json:"lines"`
	Count           int        `json:"count"`
	Subtotal        int64      `json:"subtotal"`
	Currency        string     `json:"currency,omitempty"`
	Hydrated        bool       `json:"hydrated"`
	Loading         bool       `json:"loading"`
	LoadError       string     `json:"loadError,omitempty"`
	CheckoutPending bool       `json:"checkoutPending"`
	CheckoutError   string     `json:"checkoutError,omitempty"`
	RedirectURL     string     `json:"redirectUrl,omitempty"`
}

// Page is safe for concurrent use.
type Page struct {
	cart      *cart.Store
	lookup    DisplayLookup
	submitter CheckoutSubmitter
	sessionID string
	logger    *zap.Logger

	mu          sync.Mutex
	generation  uint64
	rows        map[string]models.PriceRow
	loading     bool
	loadErr     error
	lastErr     string
	redirectURL string

	pending atomic.Bool
}

// NewPage creates a page for one cart session
func NewPage(store *cart.Store, lookup DisplayLookup, submitter CheckoutSubmitter, sessionID string) *Page {
	return &Page{
		cart:      store,
		lookup:    lookup,
		submitter: submitter,
		sessionID: sessionID,
		rows:      map[string]models.PriceRow{},
		logger:    util.GetLogger(),
	}
}

// Refresh enriches the current cart lines with catalog rows. Only the most
// recently started Refresh may apply its result; older ones are dropped.
func (p *Page) Refresh(ctx context.Context) error {
	if !p.cart.Hydrated() {
		return nil
	}

	lines := p.cart.Items()
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.PriceRowID)
	}

	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.loading = true
	p.mu.Unlock()

	var rows map[string]models.PriceRow
	var err error
	if len(ids) > 0 {
		rows, err = p.lookup.LookupCached(ctx, ids)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation {
		p.logger.Debug("Dropping stale cart enrichment", zap.Uint64("generation", gen))
		return nil
	}

	p.loading = false
	p.loadErr = err
	if err != nil {
		p.logger.Warn("Cart enrichment failed", zap.Error(err))
		return err
	}
	if rows == nil {
		rows = map[string]models.PriceRow{}
	}
	p.rows = rows
	return nil
}

// View returns the current page state. Lines without a purchasable catalog
// row are shown as unavailable and excluded from the subtotal.
func (p *Page) View() View {
	v := View{
		Lines:           []LineView{},
		Hydrated:        p.cart.Hydrated(),
		CheckoutPending: p.pending.Load(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	v.Loading = p.loading
	v.CheckoutError = p.lastErr
	v.RedirectURL = p.redirectURL
	if p.loadErr != nil {
		v.LoadError = service.MsgPriceLookupFailed
	}
	if !v.Hydrated {
		return v
	}

	for _, l := range p.cart.Items() {
		lv := LineView{PriceRowID: l.PriceRowID, Qty: l.Qty, Meta: l.Meta}
		if row, ok := p.rows[l.PriceRowID]; ok {
			lv.Name = row.Product.Name
			lv.Slug = row.Product.Slug
			lv.Kind = row.Product.Kind
			lv.UnitAmount = row.UnitAmount
			lv.Currency = row.Currency
			lv.Available = row.Purchasable()
		}
		if lv.Available {
			lv.LineTotal = lv.UnitAmount * int64(lv.Qty)
			v.Subtotal += lv.LineTotal
			if v.Currency == "" {
				v.Currency = lv.Currency
			}
		}
		v.Count += l.Qty
		v.Lines = append(v.Lines, lv)
	}
	return v
}

// Checkout submits the cart lines as {priceRowId, qty} pairs. While a
// submission is in flight further calls get ErrCheckoutPending. A failure
// clears the guard and is kept for LastError; a success keeps it set since
// the shopper is being redirected. The cart is left as is either way.
func (p *Page) Checkout(ctx context.Context) (*service.CheckoutResponse, error) {
	if !p.cart.Hydrated() {
		return nil, ErrCartNotReady
	}
	if !p.pending.CompareAndSwap(false, true) {
		return nil, ErrCheckoutPending
	}

	p.mu.Lock()
	p.lastErr = ""
	p.mu.Unlock()

	lines := p.cart.Items()
	req := &service.CheckoutRequest{
		Items:         make([]service.CheckoutItem, 0, len(lines)),
		CartSessionID: p.sessionID,
	}
	for _, l := range lines {
		req.Items = append(req.Items, service.CheckoutItem{PriceRowID: l.PriceRowID, Qty: l.Qty})
	}

	resp, err := p.submitter.CreateCheckout(ctx, req)
	if err != nil {
		p.mu.Lock()
		p.lastErr = service.AsCheckoutError(err).Message
		p.mu.Unlock()
		p.pending.Store(false)
		return nil, err
	}

	p.mu.Lock()
	p.redirectURL = resp.URL
	p.mu.Unlock()
	return resp, nil
}

// LastError is the message of the last failed checkout, or empty.
func (p *Page) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Pending reports whether a checkout is in flight or redirecting.
func (p *Page) Pending() bool {
	return p.pending.Load()
}
