package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"storefront/internal/cartpage"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidBody     = "Invalid request body."
	msgCheckoutPending = "Checkout already in progress."
)

type checkoutBody struct {
	Items []json.RawMessage `json:"items"`
}

// looseItem accepts any JSON types so that malformed lines reach the
// checkout validation instead of failing the whole body
type looseItem struct {
	PriceRowID any `json:"priceRowId"`
	Qty        any `json:"qty"`
}

// decodeCheckoutItem maps a malformed line to a zero item, which checkout
// rejects as an invalid cart item
func decodeCheckoutItem(raw json.RawMessage) service.CheckoutItem {
	var li looseItem
	if err := json.Unmarshal(raw, &li); err != nil {
		return service.CheckoutItem{}
	}

	var item service.CheckoutItem
	if id, ok := li.PriceRowID.(string); ok {
		item.PriceRowID = id
	}
	if q, ok := li.Qty.(float64); ok && q == math.Trunc(q) && math.Abs(q) <= math.MaxInt32 {
		item.Qty = int(q)
	}
	return item
}

// createCheckout handles POST /api/checkout
func (h *Handler) createCheckout(c *gin.Context) {
	var body checkoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return
	}

	req := &service.CheckoutRequest{Items: make([]service.CheckoutItem, 0, len(body.Items))}
	for _, raw := range body.Items {
		req.Items = append(req.Items, decodeCheckoutItem(raw))
	}

	resp, err := h.checkout.CreateCheckout(c.Request.Context(), req)
	if err != nil {
		writeCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// checkoutCart handles POST /api/v1/cart/checkout from the stored cart.
// Concurrent submissions for one session share a page so the second one is
// refused while the first is in flight.
func (h *Handler) checkoutCart(c *gin.Context) {
	sessionID := c.GetString(sessionKey)

	h.mu.Lock()
	page, busy := h.inflight[sessionID]
	h.mu.Unlock()

	if !busy {
		fresh := cartpage.NewPage(h.loadCart(c), h.catalog, h.checkout, sessionID)

		h.mu.Lock()
		if page, busy = h.inflight[sessionID]; !busy {
			page = fresh
			h.inflight[sessionID] = page
		}
		h.mu.Unlock()

		if !busy {
			defer func() {
				h.mu.Lock()
				delete(h.inflight, sessionID)
				h.mu.Unlock()
			}()
		}
	}

	resp, err := page.Checkout(c.Request.Context())
	if err != nil {
		if errors.Is(err, cartpage.ErrCheckoutPending) {
			c.JSON(http.StatusConflict, gin.H{"error": msgCheckoutPending})
			return
		}
		writeCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func writeCheckoutError(c *gin.Context, err error) {
	ce := service.AsCheckoutError(err)
	c.JSON(ce.Status, gin.H{"error": ce.Message})
}
