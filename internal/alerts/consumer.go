package alerts

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Handler processes a single event.
type Handler func(ctx context.Context, event *DegradedEvent) error

// LogHandler reports every event at warn level.
func LogHandler(logger *zap.Logger) Handler {
	return func(_ context.Context, event *DegradedEvent) error {
		logger.Warn("rate limiter degraded",
			zap.String("id", event.ID),
			zap.String("instance", event.Instance),
			zap.String("key", event.Key),
			zap.Uint32("maxRequests", event.MaxRequests),
			zap.Uint32("windowSeconds", event.WindowSeconds),
			zap.String("reason", event.Reason),
			zap.String("failureMode", event.FailureMode),
			zap.String("error", event.Error),
			zap.Time("occurredAt", event.OccurredAt),
		)

		return nil
	}
}

// Consumer subscribes to degradation events and hands them to a Handler.
type Consumer struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler
	logger     *zap.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewConsumer creates a new consumer for topic.
func NewConsumer(subscriber message.Subscriber, topic string, handler Handler, logger *zap.Logger) *Consumer {
	return &Consumer{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start begins consuming messages from the topic.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		c.cancel()
		close(c.done)

		return err
	}

	go c.consumeLoop(ctx, msgs)

	c.logger.Info("alert consumer started", zap.String("topic", c.topic))

	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, msgs <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg *message.Message) {
	var event DegradedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.logger.Error("failed to unmarshal degradation event",
			zap.String("topic", c.topic),
			zap.String("uuid", msg.UUID),
			zap.Error(err),
		)
		// Redelivery cannot fix a malformed payload.
		msg.Ack()

		return
	}

	if err := c.handler(ctx, &event); err != nil {
		c.logger.Error("failed to handle degradation event",
			zap.String("topic", c.topic),
			zap.String("id", event.ID),
			zap.Error(err),
		)
		msg.Nack()

		return
	}

	msg.Ack()
}

// Shutdown stops the consumer, waits for the in-flight message and closes
// the subscriber.
func (c *Consumer) Shutdown() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	return c.subscriber.Close()
}
