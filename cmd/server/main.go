package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/cart"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	var events service.CheckoutEventPublisher
	if cfg.Kafka.PublishEnabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCheckout)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicCheckout))
	}

	catalog := service.NewCatalogLookup(db, redisClient, cfg.Checkout.CatalogCacheTTL)
	addons := service.NewAddonPolicy(db)
	payments := service.NewStripeGateway(cfg.Payment.StripeSecretKey, nil)
	checkoutService := service.NewCheckoutService(catalog, addons, payments, events, service.CheckoutConfig{
		SiteURL:        cfg.Server.SiteURL,
		LookupTimeout:  cfg.Checkout.LookupTimeout,
		PaymentTimeout: cfg.Payment.Timeout,
	})
	if cfg.Server.SiteURL == "" {
		logger.Warn("SITE_URL is not set, checkout will fail")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var notifyWorker *worker.NotificationWorker
	if cfg.Kafka.ConsumerEnabled {
		var notifier worker.Notifier = worker.NewLogNotifier(logger)
		if cfg.Notify.WebhookURL != "" {
			notifier = worker.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout, logger)
		}

		notifyConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCheckout, cfg.Kafka.ConsumerGroup).
			WithRetry(broker.RetryPolicy{MaxAttempts: cfg.Kafka.MaxAttempts, Backoff: cfg.Kafka.RetryBackoff})
		if cfg.Kafka.TopicDeadLetter != "" {
			deadLetter := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDeadLetter)
			defer deadLetter.Close()
			notifyConsumer.WithDeadLetter(deadLetter)
		}

		notifyWorker = worker.NewNotificationWorker(notifyConsumer, redisClient, notifier)
		go func() {
			if err := notifyWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Notification worker stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Info("Notification consumer disabled")
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	storage := func(sessionID string) cart.Storage {
		return cart.NewRedisStorage(redisClient, sessionID, cfg.Checkout.CartTTL)
	}
	handler := api.NewHandler(checkoutService, catalog, storage, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	var metricsSrv *http.Server
	if cfg.Observ.PrometheusPort != "" && cfg.Observ.PrometheusPort != cfg.Server.Port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Observ.PrometheusPort),
			Handler: mux,
		}
		go func() {
			logger.Info("Starting metrics server", zap.String("port", cfg.Observ.PrometheusPort))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	workerCancel()
	if notifyWorker != nil {
		if err := notifyWorker.Stop(); err != nil {
			logger.Warn("Error stopping notification worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
