package service

import (
	"context"
	"sync"
	"time"

	"storefront/internal/models"
)

// fakePriceSource implements PriceSource and PriceLookup for testing
type fakePriceSource struct {
	mu    sync.Mutex
	rows  map[string]models.PriceRow
	err   error
	calls int
	ids   [][]string
	delay time.Duration
}

func (f *fakePriceSource) GetPriceRowsByIDs(_ context.Context, ids []string) ([]models.PriceRow, error) {
	f.mu.Lock()
	f.calls++
	f.ids = append(f.ids, append([]string(nil), ids...))
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PriceRow
	for _, id := range ids {
		if row, ok := f.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakePriceSource) Lookup(ctx context.Context, ids []string) (map[string]models.PriceRow, error) {
	rows, err := f.GetPriceRowsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.PriceRow, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

func (f *fakePriceSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeMappingSource implements MappingSource for testing
type fakeMappingSource struct {
	mappings []models.AddonMapping
	err      error
	calls    int
}

func (f *fakeMappingSource) GetAddonMappings(_ context.Context, addonIDs, baseIDs []string) ([]models.AddonMapping, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	in := func(set []string, v string) bool {
		for _, s := range set {
			if s == v {
				return true
			}
		}
		return false
	}
	var out []models.AddonMapping
	for _, m := range f.mappings {
		if in(addonIDs, m.AddonProductID) && in(baseIDs, m.BaseProductID) {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeGateway implements PaymentGateway for testing
type fakeGateway struct {
	session *Session
	err     error
	calls   int
	params  SessionParams
}

func (f *fakeGateway) CreateSession(_ context.Context, p SessionParams) (*Session, error) {
	f.calls++
	f.params = p
	return f.session, f.err
}

// fakePublisher implements CheckoutEventPublisher for testing
type fakePublisher struct {
	mu     sync.Mutex
	events []*models.CheckoutSessionCreatedEvent
	err    error
}

func (f *fakePublisher) PublishCheckoutSessionCreated(_ context.Context, e *models.CheckoutSessionCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakePublisher) published() []*models.CheckoutSessionCreatedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.CheckoutSessionCreatedEvent(nil), f.events...)
}

func priceRow(id, productID string, kind models.ProductKind, amount int64) models.PriceRow {
	return models.PriceRow{
		ID:              id,
		UnitAmount:      amount,
		Currency:        "usd",
		Active:          true,
		ProviderPriceID: "price_" + id,
		Product: models.Product{
			ID:     productID,
			Slug:   productID,
			Name:   productID,
			Kind:   kind,
			Active: true,
		},
	}
}

// testCatalog: bat (base) pairs with grip (addon); ball is an unrelated base.
func testCatalog() map[string]models.PriceRow {
	tape := priceRow("pr_tape", "prod_tape", models.ProductKindBase, 500)
	tape.Active = false

	return map[string]models.PriceRow{
		"pr_bat":    priceRow("pr_bat", "prod_bat", models.ProductKindBase, 12999),
		"pr_grip":   priceRow("pr_grip", "prod_grip", models.ProductKindAddon, 1499),
		"pr_ball":   priceRow("pr_ball", "prod_ball", models.ProductKindBase, 2500),
		"pr_bundle": priceRow("pr_bundle", "prod_bundle", models.ProductKindBundle, 19999),
		"pr_tape":   tape,
	}
}

func testMappings() []models.AddonMapping {
	return []models.AddonMapping{
		{BaseProductID: "prod_bat", AddonProductID: "prod_grip"},
		{BaseProductID: "prod_bundle", AddonProductID: "prod_grip"},
	}
}
