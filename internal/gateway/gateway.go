package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/modwatch/modwatch/internal/types"
)

// Processor receives decoded events. Process must not block: the consumer
// calls it inline from the poll loop.
type Processor interface {
	Process(ev types.Event)
}

// ConsumerOptions configures the gateway consumer.
type ConsumerOptions struct {
	// Brokers is the Kafka bootstrap server list (e.g. "kafka:9092").
	Brokers string

	// GroupID is the consumer group. All replicas share one group so each
	// guild partition is consumed exactly once.
	GroupID string

	// Topic carries the gateway event envelopes.
	Topic string

	// PollTimeout bounds each blocking read so stop signals are noticed.
	PollTimeout time.Duration

	// ReconnectInterval is the base interval between reconnection attempts.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the exponential backoff.
	MaxReconnectInterval time.Duration

	// Logger for the consumer.
	Logger *zap.Logger
}

// DefaultConsumerOptions returns default options for the gateway consumer.
func DefaultConsumerOptions() ConsumerOptions {
	return ConsumerOptions{
		Brokers:              "localhost:9092",
		GroupID:              "modwatch",
		Topic:                "modwatch.events",
		PollTimeout:          time.Second,
		ReconnectInterval:    time.Second,
		MaxReconnectInterval: time.Minute,
		Logger:               zap.NewNop(),
	}
}

// Consumer subscribes to the gateway event topic and feeds decoded events to
// a Processor.
type Consumer struct {
	opts      ConsumerOptions
	logger    *zap.Logger
	processor Processor

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer creates a gateway consumer. Call Run to start consuming.
func NewConsumer(opts ConsumerOptions, processor Processor) (*Consumer, error) {
	def := DefaultConsumerOptions()
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	if opts.Brokers == "" {
		opts.Brokers = def.Brokers
	}
	if opts.GroupID == "" {
		opts.GroupID = def.GroupID
	}
	if opts.Topic == "" {
		opts.Topic = def.Topic
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = def.PollTimeout
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = def.ReconnectInterval
	}
	if opts.MaxReconnectInterval <= 0 {
		opts.MaxReconnectInterval = def.MaxReconnectInterval
	}
	if processor == nil {
		return nil, fmt.Errorf("gateway: processor is required")
	}

	return &Consumer{
		opts:      opts,
		logger:    opts.Logger.Named("gateway"),
		processor: processor,
		stopCh:    make(chan struct{}),
	}, nil
}

// Run consumes until ctx is cancelled or Close is called. Blocking; run it
// in its own goroutine when the caller has other work.
func (c *Consumer) Run(ctx context.Context) {
	c.wg.Add(1)
	defer c.wg.Done()

	reconnectInterval := c.opts.ReconnectInterval

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context cancelled, stopping consumer")
			return
		case <-c.stopCh:
			c.logger.Info("stop signal received, stopping consumer")
			return
		default:
		}

		err := c.consume(ctx)
		if err != nil {
			connected.Set(0)
			reconnectsTotal.Inc()
			c.logger.Warn("consumer disconnected",
				zap.Error(err),
				zap.Duration("retry_in", reconnectInterval))

			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-time.After(reconnectInterval):
				reconnectInterval = c.nextReconnectInterval(reconnectInterval)
			}
			continue
		}

		// Clean exit: stop was requested mid-poll.
		return
	}
}

// Close stops the consumer and waits for the poll loop to exit.
func (c *Consumer) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	return nil
}

// consume subscribes and polls until an error, cancellation, or stop.
func (c *Consumer) consume(ctx context.Context) error {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  c.opts.Brokers,
		"group.id":           c.opts.GroupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	defer func() {
		if cerr := consumer.Close(); cerr != nil {
			c.logger.Warn("consumer close failed", zap.Error(cerr))
		}
	}()

	if err := consumer.SubscribeTopics([]string{c.opts.Topic}, nil); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.opts.Topic, err)
	}

	connected.Set(1)
	defer connected.Set(0)
	c.logger.Info("consuming gateway events",
		zap.String("brokers", c.opts.Brokers),
		zap.String("topic", c.opts.Topic),
		zap.String("group", c.opts.GroupID))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		default:
		}

		msg, err := consumer.ReadMessage(c.opts.PollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.IsTimeout() {
				continue
			}
			return fmt.Errorf("read message: %w", err)
		}

		messagesTotal.Inc()
		c.handle(msg)
	}
}

// handle decodes one message and forwards it. Undecodable messages are
// skipped, never retried: the partition must keep moving.
func (c *Consumer) handle(msg *kafka.Message) {
	ev, err := Decode(msg.Value)
	if err != nil {
		decodeErrorsTotal.Inc()
		c.logger.Warn("skipping undecodable envelope",
			zap.Error(err),
			zap.String("key", string(msg.Key)),
			zap.Int64("offset", int64(msg.TopicPartition.Offset)))
		return
	}
	c.processor.Process(ev)
}

// nextReconnectInterval calculates the next reconnect interval with
// exponential backoff.
func (c *Consumer) nextReconnectInterval(current time.Duration) time.Duration {
	next := current * 2
	if next > c.opts.MaxReconnectInterval {
		return c.opts.MaxReconnectInterval
	}
	return next
}
