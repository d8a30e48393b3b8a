// Package queue carries per-source scrape jobs over Kafka.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"meridian/pkg/domain"
)

// DefaultTopic carries one message per source to scrape.
const DefaultTopic = "meridian.scrape-site"

// Enqueuer publishes jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job domain.Job) error
}

// Producer publishes jobs to a Kafka topic keyed by source id.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer connects a synchronous producer to brokers.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerWithClient(sp, topic), nil
}

// NewProducerWithClient wraps an existing sarama producer.
func NewProducerWithClient(sp sarama.SyncProducer, topic string) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{producer: sp, topic: topic}
}

// Enqueue publishes job as {"sourceId": ...}.
func (p *Producer) Enqueue(ctx context.Context, job domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !job.Valid() {
		return errors.New("enqueue: job has no source id")
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(job.SourceID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publish job for %s: %w", job.SourceID, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}
