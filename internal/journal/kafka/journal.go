// Package kafka publishes acknowledged origin batches to a Kafka topic, so
// downstream consumers see a journal of everything the listers discovered.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"github.com/originwatch/originwatch/pkg/lister"
)

type Journal struct {
	producer *kafka.Producer
	topic    string
	logger   *zap.Logger
}

func NewJournal(brokers, topic string, logger *zap.Logger) (*Journal, error) {
	if topic == "" {
		return nil, fmt.Errorf("journal topic must be specified")
	}

	config := kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         "originwatch-lister",

		"acks":             "1",
		"retries":          "3",
		"linger.ms":        "5",
		"compression.type": "snappy",
	}

	producer, err := kafka.NewProducer(&config)
	if err != nil {
		return nil, fmt.Errorf("creating journal producer: %w", err)
	}

	j := &Journal{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}

	go func() {
		defer j.logger.Info("Journal producer event loop closed")

		for e := range producer.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					j.logger.Error("Journal delivery failed", zap.Error(ev.TopicPartition.Error))
				}
			case kafka.Error:
				j.logger.Error("Journal producer error", zap.Error(ev))
			}
		}
	}()

	return j, nil
}

// Publish produces one message per origin, keyed by URL so all reports of
// the same origin land on the same partition.
func (j *Journal) Publish(ctx context.Context, origins []lister.Origin) error {
	for _, o := range origins {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("encoding origin %s: %w", o.URL, err)
		}

		message := &kafka.Message{
			TopicPartition: kafka.TopicPartition{
				Topic:     &j.topic,
				Partition: kafka.PartitionAny,
			},
			Key:   []byte(o.URL),
			Value: data,
		}

		if err := j.producer.Produce(message, nil); err != nil {
			return fmt.Errorf("producing origin %s: %w", o.URL, err)
		}
	}
	return nil
}

func (j *Journal) Close() {
	j.producer.Flush(5000)
	j.producer.Close()
}
