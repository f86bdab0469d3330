package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer used by Producer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer)
}

// NewProducerWithWriter creates a producer over any MessageWriter
func NewProducerWithWriter(writer MessageWriter) *Producer {
	return &Producer{writer: writer, logger: util.GetLogger()}
}

// PublishEvent publishes an event to Kafka
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.logger.Debug("Published event", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", event)))
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishMessage writes msg as-is, keeping its key, value and headers
func (p *Producer) PublishMessage(ctx context.Context, msg kafka.Message) error {
	msg.Topic = ""
	msg.Partition = 0
	msg.Offset = 0
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// MessageReader is the subset of *kafka.Reader used by Consumer
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RetryPolicy bounds how often a failing message is handled again before
// the consumer gives up on it. Backoff doubles after every attempt.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is used by consumers that were not given one
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Backoff: 500 * time.Millisecond}

// Consumer represents a Kafka consumer
type Consumer struct {
	reader     MessageReader
	topic      string
	retry      RetryPolicy
	deadLetter *Producer
	logger     *zap.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return NewConsumerWithReader(reader, topic)
}

// NewConsumerWithReader creates a consumer over any MessageReader
func NewConsumerWithReader(reader MessageReader, topic string) *Consumer {
	return &Consumer{
		reader: reader,
		topic:  topic,
		retry:  DefaultRetryPolicy,
		logger: util.GetLogger(),
	}
}

// WithRetry replaces the retry policy
func (c *Consumer) WithRetry(policy RetryPolicy) *Consumer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	c.retry = policy
	return c
}

// WithDeadLetter makes the consumer park messages that exhaust their
// retries on the producer's topic and move on.
func (c *Consumer) WithDeadLetter(producer *Producer) *Consumer {
	c.deadLetter = producer
	return c
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches messages until ctx is cancelled. A message is
// committed only once handler succeeds or the message has been parked on
// the dead-letter topic. Without a dead-letter topic malformed messages are
// dropped, and any other message that keeps failing stops the consumer
// uncommitted so the group resumes from it.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting Kafka consumer", zap.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			c.logger.Warn("Error fetching message", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		if err := c.handle(ctx, handler, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			switch {
			case c.deadLetter == nil && errors.Is(err, ErrMalformedEvent):
				c.logger.Error("Dropping malformed message",
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
			case c.deadLetter == nil:
				c.logger.Error("Giving up on message, stopping consumer",
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
				return fmt.Errorf("handle message at offset %d: %w", msg.Offset, err)
			default:
				if dlErr := c.park(ctx, msg, err); dlErr != nil {
					c.logger.Error("Failed to dead-letter message, stopping consumer",
						zap.Int64("offset", msg.Offset),
						zap.Error(dlErr))
					return fmt.Errorf("dead-letter message at offset %d: %w", msg.Offset, dlErr)
				}
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("Error committing message", zap.Error(err))
		}
	}
}

// handle runs handler until it succeeds, the retry budget is spent or ctx
// ends. Malformed events are not retried.
func (c *Consumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	backoff := c.retry.Backoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrMalformedEvent) || attempt >= c.retry.MaxAttempts {
			return err
		}

		c.logger.Warn("Error handling message, retrying",
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (c *Consumer) park(ctx context.Context, msg kafka.Message, cause error) error {
	parked := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "x-source-topic", Value: []byte(c.topic)},
			kafka.Header{Key: "x-source-offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: "x-error", Value: []byte(cause.Error())},
		),
		Time: time.Now(),
	}
	if err := c.deadLetter.PublishMessage(ctx, parked); err != nil {
		return err
	}
	c.logger.Error("Message dead-lettered",
		zap.Int64("offset", msg.Offset),
		zap.Error(cause))
	return nil
}
