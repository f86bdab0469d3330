package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"storefront/internal/cart"
	"storefront/internal/cartpage"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartSessionHeader identifies the cart of a shopper
const CartSessionHeader = "X-Cart-Session"

const (
	sessionKey = "cartSession"

	msgInvalidSession = "Invalid cart session."
	msgCartSaveFailed = "Failed to save cart."
)

type cartResponse struct {
	Items []cart.Line `json:"items"`
	Count int         `json:"count"`
}

type addItemRequest struct {
	PriceRowID string    `json:"priceRowId"`
	Qty        *int      `json:"qty"`
	Meta       cart.Meta `json:"meta"`
}

type setQuantityRequest struct {
	Qty  *int       `json:"qty"`
	Meta *cart.Meta `json:"meta"`
}

// cartSession resolves the cart session from the request header, issuing a
// new one when absent. The session id is echoed on every response.
func (h *Handler) cartSession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.GetHeader(CartSessionHeader))
	if sessionID == "" {
		sessionID = uuid.New().String()
	} else if _, err := uuid.Parse(sessionID); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msgInvalidSession})
		return
	}

	c.Set(sessionKey, sessionID)
	c.Header(CartSessionHeader, sessionID)
	c.Next()
}

// loadCart returns the hydrated cart of the request's session
func (h *Handler) loadCart(c *gin.Context) *cart.Store {
	store := cart.NewStore(h.storage(c.GetString(sessionKey)))
	store.Hydrate(c.Request.Context())
	return store
}

func (h *Handler) writeCart(c *gin.Context, store *cart.Store) {
	c.JSON(http.StatusOK, cartResponse{Items: store.Items(), Count: store.Count()})
}

func (h *Handler) writeSaveError(c *gin.Context, err error) {
	h.logger.Error("Cart save failed",
		zap.String("session", c.GetString(sessionKey)),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msgCartSaveFailed})
}

// getCart handles GET /api/v1/cart
func (h *Handler) getCart(c *gin.Context) {
	store := h.loadCart(c)
	h.writeCart(c, store)
}

// viewCart handles GET /api/v1/cart/view. A failed catalog fetch still
// renders the lines, marked unavailable, with loadError set.
func (h *Handler) viewCart(c *gin.Context) {
	store := h.loadCart(c)
	page := cartpage.NewPage(store, h.catalog, h.checkout, c.GetString(sessionKey))
	_ = page.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, page.View())
}

// addItem handles POST /api/v1/cart/items
func (h *Handler) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return
	}
	if strings.TrimSpace(req.PriceRowID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.MsgInvalidItem})
		return
	}
	qty := 1
	if req.Qty != nil {
		qty = *req.Qty
	}

	store := h.loadCart(c)
	if err := store.AddItemWithMeta(c.Request.Context(), req.PriceRowID, req.Meta, qty); err != nil {
		h.writeSaveError(c, err)
		return
	}
	h.writeCart(c, store)
}

// setItemQuantity handles PUT /api/v1/cart/items/:priceRowId. With meta in
// the body only the matching line changes; without it every line of the id.
func (h *Handler) setItemQuantity(c *gin.Context) {
	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Qty == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return
	}

	id := c.Param("priceRowId")
	store := h.loadCart(c)

	var err error
	if req.Meta != nil {
		err = store.SetLineQuantity(c.Request.Context(), id, *req.Meta, *req.Qty)
	} else {
		err = store.SetQuantity(c.Request.Context(), id, *req.Qty)
	}
	if err != nil {
		h.writeSaveError(c, err)
		return
	}
	h.writeCart(c, store)
}

// removeItem handles DELETE /api/v1/cart/items/:priceRowId. An optional
// meta query parameter (JSON object) removes only the matching line.
func (h *Handler) removeItem(c *gin.Context) {
	id := c.Param("priceRowId")
	store := h.loadCart(c)

	var err error
	if raw, ok := c.GetQuery("meta"); ok {
		var meta cart.Meta
		if jerr := json.Unmarshal([]byte(raw), &meta); jerr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
			return
		}
		err = store.RemoveLine(c.Request.Context(), id, meta)
	} else {
		err = store.RemoveItem(c.Request.Context(), id)
	}
	if err != nil {
		h.writeSaveError(c, err)
		return
	}
	h.writeCart(c, store)
}

// clearCart handles DELETE /api/v1/cart
func (h *Handler) clearCart(c *gin.Context) {
	store := h.loadCart(c)
	if err := store.Clear(c.Request.Context()); err != nil {
		h.writeSaveError(c, err)
		return
	}
	h.writeCart(c, store)
}
