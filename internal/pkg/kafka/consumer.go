package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/config"
	logger "github.com/Gopher0727/Tavern/middleware/log"
)

// EventHandler processes one decoded activity event.
type EventHandler func(ctx context.Context, event Event) error

// Consumer reads the activity topic as part of a consumer group. Events the
// handler keeps rejecting, and payloads that do not decode, are forwarded
// unchanged to the dead letter topic.
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	dlqProducer   *Producer
	handler       EventHandler
	logger        *logger.Logger

	topics     []string
	dlqTopic   string
	maxRetries int
	backoff    time.Duration

	ready     chan struct{}
	readyOnce sync.Once
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	consumer *Consumer
}

// NewConsumer joins cfg.Consumer.Group and prepares a DLQ producer.
func NewConsumer(cfg config.KafkaConfig, handler EventHandler, log *logger.Logger) (*Consumer, error) {
	sc := newClientConfig("consumer")
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Consumer.Group, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	dlqProducer, err := NewProducer(cfg)
	if err != nil {
		consumerGroup.Close()
		return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
	}
	return NewConsumerFromGroup(consumerGroup, dlqProducer, cfg, handler, log), nil
}

// NewConsumerFromGroup wires an existing consumer group and DLQ producer.
func NewConsumerFromGroup(group sarama.ConsumerGroup, dlq *Producer, cfg config.KafkaConfig, handler EventHandler, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Consumer{
		consumerGroup: group,
		dlqProducer:   dlq,
		handler:       handler,
		logger:        log,
		topics:        []string{cfg.Topic},
		dlqTopic:      cfg.Consumer.DLQTopic,
		maxRetries:    cfg.Consumer.MaxRetries,
		backoff:       time.Duration(cfg.Consumer.RetryBackoffMs) * time.Millisecond,
		ready:         make(chan struct{}),
	}
}

// Start consumes in the background until ctx is cancelled or Stop is
// called. It returns immediately; Ready is closed once the first session is
// set up.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for err := range c.consumerGroup.Errors() {
			c.logger.ErrorContext(ctx, "kafka consumer error", zap.Error(err))
		}
	}()
	go func() {
		defer c.wg.Done()

		handler := &consumerGroupHandler{consumer: c}
		for {
			if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
				c.logger.ErrorContext(ctx, "kafka consume failed", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

// Stop cancels consumption, closes the group and waits for the loops.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	closeErr := c.consumerGroup.Close()
	c.wg.Wait()

	if closeErr != nil {
		return fmt.Errorf("failed to close kafka consumer group: %w", closeErr)
	}
	if c.dlqProducer != nil {
		if err := c.dlqProducer.Close(); err != nil {
			return fmt.Errorf("failed to close DLQ producer: %w", err)
		}
	}
	return nil
}

func (c *Consumer) Ready() <-chan struct{} {
	return c.ready
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.consumer.readyOnce.Do(func() { close(h.consumer.ready) })
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim handles each message and marks it, including messages that
// ended up in the dead letter topic.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			h.consumer.handleMessage(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	event, err := DecodeEvent(message.Value)
	if err == nil {
		err = c.processWithRetry(ctx, event)
	}
	if err == nil || ctx.Err() != nil {
		return
	}
	if dlqErr := c.sendToDLQ(ctx, message, err); dlqErr != nil {
		c.logger.ErrorContext(ctx, "failed to send message to DLQ",
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
			zap.Error(dlqErr),
		)
	}
}

// processWithRetry calls the handler up to maxRetries+1 times with
// exponential backoff between attempts.
func (c *Consumer) processWithRetry(ctx context.Context, event Event) error {
	backoff := c.backoff

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.handler(ctx, event)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < c.maxRetries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Consumer) sendToDLQ(ctx context.Context, message *sarama.ConsumerMessage, processingErr error) error {
	if c.dlqProducer == nil || c.dlqTopic == "" {
		return fmt.Errorf("no dead letter topic configured: %w", processingErr)
	}
	if _, _, err := c.dlqProducer.Produce(ctx, c.dlqTopic, message.Key, message.Value); err != nil {
		return err
	}
	c.logger.WarnContext(ctx, "message sent to DLQ",
		zap.String("topic", message.Topic),
		zap.Int32("partition", message.Partition),
		zap.Int64("offset", message.Offset),
		zap.Error(processingErr),
	)
	return nil
}
