package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	svc       *CheckoutService
	catalog   *fakePriceSource
	mappings  *fakeMappingSource
	gateway   *fakeGateway
	publisher *fakePublisher
}

func newCheckoutFixture() *checkoutFixture {
	f := &checkoutFixture{
		catalog:   &fakePriceSource{rows: testCatalog()},
		mappings:  &fakeMappingSource{mappings: testMappings()},
		gateway:   &fakeGateway{session: &Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}},
		publisher: &fakePublisher{},
	}
	f.svc = NewCheckoutService(
		f.catalog,
		NewAddonPolicy(f.mappings),
		f.gateway,
		f.publisher,
		CheckoutConfig{
			SiteURL:        "https://shop.example.com",
			LookupTimeout:  time.Second,
			PaymentTimeout: time.Second,
		},
	)
	return f
}

func requireCheckoutError(t *testing.T, err error, status int, msg string) {
	t.Helper()
	require.Error(t, err)
	var ce *CheckoutError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, status, ce.Status)
	assert.Equal(t, msg, ce.Message)
}

func TestCreateCheckout_HappyPath(t *testing.T) {
	f := newCheckoutFixture()

	resp, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{
		Items: []CheckoutItem{
			{PriceRowID: "pr_bat", Qty: 1},
			{PriceRowID: "pr_grip", Qty: 1},
		},
		CartSessionID: "sess-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", resp.URL)

	p := f.gateway.params
	assert.Equal(t, []LineItem{
		{ProviderPriceID: "price_pr_bat", Quantity: 1},
		{ProviderPriceID: "price_pr_grip", Quantity: 1},
	}, p.LineItems)
	assert.True(t, p.AllowPromotionCodes)
	assert.Equal(t, "https://shop.example.com/checkout/success?session_id={CHECKOUT_SESSION_ID}", p.SuccessURL)
	assert.Equal(t, "https://shop.example.com/cart", p.CancelURL)
	assert.Equal(t, "sess-9", p.ClientReferenceID)

	assert.Eventually(t, func() bool { return len(f.publisher.published()) == 1 }, time.Second, 10*time.Millisecond)
	event := f.publisher.published()[0]
	assert.Equal(t, models.EventTypeCheckoutSessionCreated, event.EventType)
	assert.Equal(t, "cs_test_1", event.SessionID)
	assert.Equal(t, int64(12999+1499), event.AmountTotal)
	assert.Equal(t, "usd", event.Currency)
}

func TestCreateCheckout_BundleCountsAsBase(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{
		Items: []CheckoutItem{{PriceRowID: "pr_bundle", Qty: 2}, {PriceRowID: "pr_grip", Qty: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.calls)
}

func TestCreateCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{})
	requireCheckoutError(t, err, http.StatusBadRequest, MsgCartEmpty)
	assert.Equal(t, 0, f.catalog.callCount())
}

func TestCreateCheckout_InvalidLineRejectsWholeBatch(t *testing.T) {
	cases := map[string][]CheckoutItem{
		"qty too large": {{PriceRowID: "A", Qty: 2}, {PriceRowID: "B", Qty: 999}},
		"qty zero":      {{PriceRowID: "pr_bat", Qty: 0}},
		"negative qty":  {{PriceRowID: "pr_bat", Qty: -1}},
		"blank id":      {{PriceRowID: "pr_bat", Qty: 1}, {PriceRowID: "  ", Qty: 1}},
	}

	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			f := newCheckoutFixture()
			_, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{Items: items})
			requireCheckoutError(t, err, http.StatusBadRequest, MsgInvalidItem)
			assert.Equal(t, 0, f.catalog.callCount())
			assert.Equal(t, 0, f.gateway.calls)
		})
	}
}

func TestCreateCheckout_MissingSiteURL(t *testing.T) {
	f := newCheckoutFixture()
	f.svc.cfg.SiteURL = ""

	_, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{
		Items: []CheckoutItem{{PriceRowID: "pr_bat", Qty: 1}},
	})
	requireCheckoutError(t, err, http.StatusInternalServerError, MsgMissingSiteURL)
	assert.Equal(t, 0, f.gateway.calls)
}

func TestCreateCheckout_LookupFailure(t *testing.T) {
	f := newCheckoutFixture()
	f.catalog.err = errors.New("db down")

	_, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{
		Items: []CheckoutItem{{PriceRowID: "pr_bat", Qty: 1}},
	})
	requireCheckoutError(t, err, http.StatusInternalServerError, MsgPriceLookupFailed)
	assert.ErrorContains(t, err, "db down")
}

func TestCreateCheckout_UnavailableItems(t *testing.T) {
	cases := map[string]func(map[string]models.PriceRow){
		"inactive price": func(map[string]models.PriceRow) {},
		"inactive product": func(rows map[string]models.PriceRow) {
			r := rows["pr_tape"]
			r.Active = true
			r.Product.Active = false
			rows["pr_tape"] = r
		},
		"no provider price": func(rows map[string]models.PriceRow) {
			r := rows["pr_tape"]
			r.Active = true
			r.ProviderPriceID = ""
			rows["pr_tape"] = r
		},
		"unknown kind": func(rows map[string]models.PriceRow) {
			r := rows["pr_tape"]
			r.Active = true
			r.Product.Kind = "gift"
			rows["pr_tape"] = r
		},
		"missing row": func(rows map[string]models.PriceRow) {
			delete(rows, "pr_tape")
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newCheckoutFixture()
			mutate(f.catalog.rows)

			_, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{
				Items: []CheckoutItem{{PriceRowID: "pr_bat", Qty: 1}, {PriceRowID: "pr_tape", Qty: 1}},
			})
			requireCheckoutError(t, err, http.StatusBadRequest, MsgUnavailable)
			assert.Equal(t, 0, f.gateway.calls)
		})
	}
}

func TestCreateCheckout_AddonWithoutBase(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{
		Items: []CheckoutItem{{PriceRowID: "pr_grip", Qty: 1}},
	})
	requireCheckoutError(t, err, http.StatusBadRequest, MsgAddonNeedsBase)
	assert.Equal(t, 0, f.mappings.calls)
	assert.Equal(t, 0, f.gateway.calls)
}

func TestCreateCheckout_AddonWithUnrelatedBase(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{
		Items: []CheckoutItem{{PriceRowID: "pr_grip", Qty: 1}, {PriceRowID: "pr_ball", Qty: 1}},
	})
	requireCheckoutError(t, err, http.StatusBadRequest, MsgInvalidAddon)
	assert.Equal(t, 1, f.mappings.calls)
	assert.Equal(t, 0, f.gateway.calls)
}

func TestCreateCheckout_AddonMappingFailure(t *testing.T) {
	f := newCheckoutFixture()
	f.mappings.err = errors.New("timeout")

	_, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{
		Items: []CheckoutItem{{PriceRowID: "pr_bat", Qty: 1}, {PriceRowID: "pr_grip", Qty: 1}},
	})
	requireCheckoutError(t, err, http.StatusInternalServerError, MsgAddonLookupFailed)
}

func TestCreateCheckout_SessionFailurePassesMessageThrough(t *testing.T) {
	f := newCheckoutFixture()
	f.gateway.session = nil
	f.gateway.err = errors.New("No such price: 'price_pr_bat'")

	_, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{
		Items: []CheckoutItem{{PriceRowID: "pr_bat", Qty: 1}},
	})
	requireCheckoutError(t, err, http.StatusInternalServerError, "No such price: 'price_pr_bat'")
	assert.Equal(t, 1, f.gateway.calls)
	assert.Empty(t, f.publisher.published())
}

func TestCreateCheckout_SessionWithoutURL(t *testing.T) {
	f := newCheckoutFixture()
	f.gateway.session = &Session{ID: "cs_1"}

	_, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{
		Items: []CheckoutItem{{PriceRowID: "pr_bat", Qty: 1}},
	})
	requireCheckoutError(t, err, http.StatusInternalServerError, MsgNoRedirectURL)
}

func TestCreateCheckout_PublishFailureDoesNotFailCheckout(t *testing.T) {
	f := newCheckoutFixture()
	f.publisher.err = errors.New("broker unavailable")

	resp, err := f.svc.CreateCheckout(context.Background(), &CheckoutRequest{
		Items: []CheckoutItem{{PriceRowID: "pr_bat", Qty: 3}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.URL)
}

func TestAsCheckoutError_WrapsUnknownErrors(t *testing.T) {
	ce := AsCheckoutError(errors.New("kaboom"))
	assert.Equal(t, http.StatusInternalServerError, ce.Status)
	assert.Equal(t, "kaboom", ce.Message)
	assert.False(t, ce.ClientError())
}
