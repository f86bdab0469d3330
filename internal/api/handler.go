package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"storefront/internal/cart"
	"storefront/internal/cartpage"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StorageFactory returns the cart storage of one cart session
type StorageFactory func(sessionID string) cart.Storage

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	checkout cartpage.CheckoutSubmitter
	catalog  cartpage.DisplayLookup
	storage  StorageFactory
	probes   map[string]Pinger
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]*cartpage.Page
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout cartpage.CheckoutSubmitter,
	catalog cartpage.DisplayLookup,
	storage StorageFactory,
	probes map[string]Pinger,
) *Handler {
	return &Handler{
		checkout: checkout,
		catalog:  catalog,
		storage:  storage,
		probes:   probes,
		logger:   util.GetLogger(),
		inflight: make(map[string]*cartpage.Page),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/api/checkout", h.createCheckout)

	v1 := router.Group("/api/v1")
	{
		carts := v1.Group("/cart", h.cartSession)
		carts.GET("", h.getCart)
		carts.DELETE("", h.clearCart)
		carts.GET("/view", h.viewCart)
		carts.POST("/items", h.addItem)
		carts.PUT("/items/:priceRowId", h.setItemQuantity)
		carts.DELETE("/items/:priceRowId", h.removeItem)
		carts.POST("/checkout", h.checkoutCart)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.probes))
	ready := true
	for name, p := range h.probes {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"checks": checks,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
