package cartpage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	mu    sync.Mutex
	rows  map[string]models.PriceRow
	err   error
	calls int
	// gates, when set, are consumed one per call and block until closed
	gates []chan struct{}
}

func (f *fakeLookup) LookupCached(ctx context.Context, ids []string) (map[string]models.PriceRow, error) {
	f.mu.Lock()
	f.calls++
	var gate chan struct{}
	if len(f.gates) > 0 {
		gate, f.gates = f.gates[0], f.gates[1:]
	}
	rows, err := f.rows, f.err
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.PriceRow)
	for _, id := range ids {
		if r, ok := rows[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

type fakeSubmitter struct {
	mu      sync.Mutex
	resp    *service.CheckoutResponse
	err     error
	reqs    []*service.CheckoutRequest
	started chan struct{}
	release chan struct{}
}

func (f *fakeSubmitter) CreateCheckout(_ context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.resp, f.err
}

func row(id, name string, kind models.ProductKind, amount int64) models.PriceRow {
	return models.PriceRow{
		ID:              id,
		UnitAmount:      amount,
		Currency:        "usd",
		Active:          true,
		ProviderPriceID: "price_" + id,
		Product:         models.Product{ID: "prod_" + id, Slug: id, Name: name, Kind: kind, Active: true},
	}
}

func catalog() map[string]models.PriceRow {
	off := row("pr_tape", "Tape", models.ProductKindAddon, 300)
	off.Active = false
	return map[string]models.PriceRow{
		"pr_bat":  row("pr_bat", "Pro Bat", models.ProductKindBase, 12999),
		"pr_grip": row("pr_grip", "Grip", models.ProductKindAddon, 1499),
		"pr_tape": off,
	}
}

func hydratedStore(t *testing.T, persisted string) *cart.Store {
	st := cart.NewStore(cart.NewMemoryStorage([]byte(persisted)))
	st.Hydrate(context.Background())
	return st
}

func TestPage_EmptyBeforeHydration(t *testing.T) {
	st := cart.NewStore(cart.NewMemoryStorage([]byte(`[{"priceRowId":"pr_bat","qty":2}]`)))
	lookup := &fakeLookup{rows: catalog()}
	page := NewPage(st, lookup, &fakeSubmitter{}, "sess-1")

	require.NoError(t, page.Refresh(context.Background()))
	v := page.View()

	assert.False(t, v.Hydrated)
	assert.Empty(t, v.Lines)
	assert.Equal(t, 0, v.Count)
	assert.Equal(t, 0, lookup.calls)
}

func TestPage_RefreshEnrichesLines(t *testing.T) {
	st := hydratedStore(t, `[{"priceRowId":"pr_bat","qty":2},{"priceRowId":"pr_grip","qty":1},{"priceRowId":"pr_tape","qty":1},{"priceRowId":"pr_gone","qty":1}]`)
	page := NewPage(st, &fakeLookup{rows: catalog()}, &fakeSubmitter{}, "sess-1")

	require.NoError(t, page.Refresh(context.Background()))
	v := page.View()

	require.Len(t, v.Lines, 4)
	assert.Equal(t, "Pro Bat", v.Lines[0].Name)
	assert.Equal(t, int64(25998), v.Lines[0].LineTotal)
	assert.True(t, v.Lines[1].Available)
	assert.False(t, v.Lines[2].Available, "inactive price row")
	assert.False(t, v.Lines[3].Available, "missing price row")
	assert.Equal(t, int64(25998+1499), v.Subtotal)
	assert.Equal(t, "usd", v.Currency)
	assert.Equal(t, 5, v.Count)
	assert.False(t, v.Loading)
}

func TestPage_RefreshErrorIsSurfaced(t *testing.T) {
	st := hydratedStore(t, `[{"priceRowId":"pr_bat","qty":1}]`)
	page := NewPage(st, &fakeLookup{err: errors.New("db down")}, &fakeSubmitter{}, "sess-1")

	err := page.Refresh(context.Background())
	require.Error(t, err)

	v := page.View()
	assert.Equal(t, service.MsgPriceLookupFailed, v.LoadError)
	assert.False(t, v.Lines[0].Available)
}

func TestPage_StaleRefreshIsDropped(t *testing.T) {
	st := hydratedStore(t, `[{"priceRowId":"pr_bat","qty":1}]`)
	slow := make(chan struct{})
	lookup := &fakeLookup{rows: catalog(), gates: []chan struct{}{slow}}
	page := NewPage(st, lookup, &fakeSubmitter{}, "sess-1")

	done := make(chan error)
	go func() { done <- page.Refresh(context.Background()) }()
	require.Eventually(t, func() bool {
		lookup.mu.Lock()
		defer lookup.mu.Unlock()
		return lookup.calls == 1
	}, time.Second, 5*time.Millisecond)

	// the newer refresh sees a catalog without the bat and finishes first
	lookup.mu.Lock()
	lookup.rows = map[string]models.PriceRow{}
	lookup.mu.Unlock()
	require.NoError(t, page.Refresh(context.Background()))
	assert.False(t, page.View().Lines[0].Available)

	close(slow)
	require.NoError(t, <-done)
	assert.False(t, page.View().Lines[0].Available, "stale result must not overwrite the newer one")
}

func TestPage_CheckoutSubmitsStoreLines(t *testing.T) {
	st := hydratedStore(t, `[{"priceRowId":"pr_bat","qty":2},{"priceRowId":"pr_grip","qty":1,"meta":{"gripColors":["red"]}}]`)
	sub := &fakeSubmitter{resp: &service.CheckoutResponse{URL: "https://checkout.example/cs_1"}}
	page := NewPage(st, &fakeLookup{}, sub, "sess-1")

	resp, err := page.Checkout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/cs_1", resp.URL)

	require.Len(t, sub.reqs, 1)
	assert.Equal(t, []service.CheckoutItem{{PriceRowID: "pr_bat", Qty: 2}, {PriceRowID: "pr_grip", Qty: 1}}, sub.reqs[0].Items)
	assert.Equal(t, "sess-1", sub.reqs[0].CartSessionID)
	assert.Equal(t, 3, st.Count(), "cart is not cleared by checkout")
	assert.True(t, page.Pending())
	assert.Equal(t, "https://checkout.example/cs_1", page.View().RedirectURL)
}

func TestPage_SingleOutstandingCheckout(t *testing.T) {
	st := hydratedStore(t, `[{"priceRowId":"pr_bat","qty":1}]`)
	sub := &fakeSubmitter{
		err:     &service.CheckoutError{Status: 500, Message: "Failed to load prices."},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	page := NewPage(st, &fakeLookup{}, sub, "sess-1")

	done := make(chan error)
	go func() {
		_, err := page.Checkout(context.Background())
		done <- err
	}()
	<-sub.started

	_, err := page.Checkout(context.Background())
	assert.ErrorIs(t, err, ErrCheckoutPending)
	assert.True(t, page.View().CheckoutPending)

	close(sub.release)
	require.Error(t, <-done)

	assert.False(t, page.Pending(), "guard resets after failure")
	assert.Equal(t, "Failed to load prices.", page.LastError())
	assert.Len(t, sub.reqs, 1)
}

func TestPage_CheckoutBeforeHydration(t *testing.T) {
	st := cart.NewStore(cart.NewMemoryStorage(nil))
	sub := &fakeSubmitter{}
	page := NewPage(st, &fakeLookup{}, sub, "sess-1")

	_, err := page.Checkout(context.Background())
	assert.ErrorIs(t, err, ErrCartNotReady)
	assert.Empty(t, sub.reqs)
}
