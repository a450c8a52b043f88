// Package kafka streams audit events to a Kafka topic for downstream SIEM
// and compliance consumers. Events are keyed by tenant so one school's
// trail stays ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"tenantguard/internal/platform/kafka/producer"
	audit "tenantguard/pkg/platform/audit"
)

// Producer is the subset of producer.Producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Sink implements audit.Sink.
type Sink struct {
	producer Producer
	topic    string
}

func NewSink(p Producer, topic string) *Sink {
	return &Sink{producer: p, topic: topic}
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	key := event.TenantID
	if key == "" {
		key = "unscoped"
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(key),
		Value: payload,
		Headers: map[string]string{
			"action":     event.Action,
			"request_id": event.RequestID,
		},
	})
}
