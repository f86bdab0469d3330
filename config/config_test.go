package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SITE_URL", "https://shop.example.com/")
	t.Setenv("PAYMENT_TIMEOUT_SECONDS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "https://shop.example.com", cfg.Server.SiteURL)
	assert.Equal(t, 15*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Checkout.LookupTimeout)
	assert.Equal(t, "checkout-events", cfg.Kafka.TopicCheckout)
	assert.True(t, cfg.Kafka.ConsumerEnabled)
	assert.Equal(t, "checkout-events-dlq", cfg.Kafka.TopicDeadLetter)
	assert.Equal(t, 5, cfg.Kafka.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Kafka.RetryBackoff)
}

func TestLoadConsumerFollowsPublishFlag(t *testing.T) {
	t.Setenv("KAFKA_PUBLISH_ENABLED", "false")

	cfg := Load()

	assert.False(t, cfg.Kafka.PublishEnabled)
	assert.False(t, cfg.Kafka.ConsumerEnabled)

	t.Setenv("KAFKA_CONSUMER_ENABLED", "true")
	assert.True(t, Load().Kafka.ConsumerEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CATALOG_CACHE_TTL_SECONDS", "notanumber")
	t.Setenv("PAYMENT_TIMEOUT_SECONDS", "30")
	t.Setenv("KAFKA_MAX_ATTEMPTS", "0")
	t.Setenv("KAFKA_RETRY_BACKOFF_MS", "250")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 60*time.Second, cfg.Checkout.CatalogCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 5, cfg.Kafka.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Kafka.RetryBackoff)
}
