package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"clip-compiler/internal"
	"clip-compiler/internal/logging"
)

// Consumer wraps a Kafka consumer subscribed to the compile-jobs topic.
type Consumer struct {
	consumer *kafka.Consumer
	topic    string
	log      *logging.Logger
}

func NewConsumer(cfg internal.Config, log *logging.Logger) (*Consumer, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       cfg.KafkaBrokers,
		"group.id":                cfg.KafkaGroupID,
		"auto.offset.reset":       "earliest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
		"session.timeout.ms":      30000,
		// Compilations run for many minutes; keep the group from
		// rebalancing away from a busy worker.
		"max.poll.interval.ms": 3600000,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	if err := consumer.SubscribeTopics([]string{cfg.KafkaTopic}, nil); err != nil {
		consumer.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.KafkaTopic, err)
	}

	return &Consumer{consumer: consumer, topic: cfg.KafkaTopic, log: log}, nil
}

// Consume reads messages until ctx is cancelled, passing each payload to
// handler. Handler errors are logged; the failure has already been reported
// upstream by the orchestrator.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	c.log.Infof("queue: consuming from %s", c.topic)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				if kErr, ok := err.(kafka.Error); ok && kErr.Code() == kafka.ErrTimedOut {
					continue
				}
				c.log.Errorf("queue: read message: %v", err)
				continue
			}
			if err := handler(msg.Key, msg.Value); err != nil {
				c.log.Errorf("queue: job failed: %v", err)
			}
		}
	}
}

func (c *Consumer) Close() {
	c.consumer.Close()
}
