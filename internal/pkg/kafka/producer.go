package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/Gopher0727/Tavern/config"
)

// Producer wraps a sarama sync producer with context-aware retries.
type Producer struct {
	producer sarama.SyncProducer
	backoff  time.Duration
}

// NewProducer connects to the brokers in cfg.
//
// The producer is idempotent with acks from all in-sync replicas, so a
// retried send is not duplicated in the partition.
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	backoff := time.Duration(cfg.RetryBackoffMs) * time.Millisecond

	sc := newClientConfig("producer")
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.MaxRetries
	sc.Producer.Retry.Backoff = backoff
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1

	syncProducer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka: dial producer: %w", err)
	}
	return NewProducerFromSync(syncProducer, backoff), nil
}

// NewProducerFromSync wraps an existing sync producer.
func NewProducerFromSync(producer sarama.SyncProducer, backoff time.Duration) *Producer {
	return &Producer{producer: producer, backoff: backoff}
}

// Produce sends one message. key may be nil.
func (p *Producer) Produce(ctx context.Context, topic string, key []byte, value []byte) (partition int32, offset int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != nil {
		msg.Key = sarama.ByteEncoder(key)
	}

	partition, offset, err = p.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}
	return partition, offset, nil
}

// ProduceWithRetry retries Produce with exponential backoff on top of the
// producer's own retries.
func (p *Producer) ProduceWithRetry(ctx context.Context, topic string, key []byte, value []byte, maxRetries int) (partition int32, offset int64, err error) {
	var lastErr error
	backoff := p.backoff
	for attempt := 0; attempt <= maxRetries; attempt++ {
		partition, offset, err = p.Produce(ctx, topic, key, value)
		if err == nil {
			return partition, offset, nil
		}
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
		lastErr = err

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return 0, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return 0, 0, fmt.Errorf("failed to send message after %d attempts: %w", maxRetries+1, lastErr)
}

func (p *Producer) Close() error {
	if p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("kafka: close producer: %w", err)
	}
	return nil
}
