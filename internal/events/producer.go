package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"rulegov/internal/approval"
	"rulegov/internal/config"
	"rulegov/internal/constants"
	"rulegov/internal/logger"
	"rulegov/pkg/circuitbreaker"
	"rulegov/pkg/metrics"
	"rulegov/pkg/retry"
	"rulegov/pkg/tracing"
)

const sourceName = "governance-service"

type Producer interface {
	Publish(ctx context.Context, event LifecycleEvent) error
	Close() error
}

type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaProducer(cfg config.KafkaConfig) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaProducer{writer: w, topic: cfg.LifecycleTopic}
}

func (p *KafkaProducer) Publish(ctx context.Context, event LifecycleEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}

	headers := tracing.InjectTraceContext(ctx, []kafka.Header{})

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(event.EntityID),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// Notifier publishes lifecycle events after the governing transaction has
// committed. Publishing is best-effort: a broker outage trips the breaker
// and the event is logged and dropped, never failing the decision.
type Notifier struct {
	producer Producer
	breaker  *circuitbreaker.Wrapper
	policy   retry.Policy
	logger   logger.Logger
}

func NewNotifier(producer Producer, breaker *circuitbreaker.Wrapper, policy retry.Policy, log logger.Logger) *Notifier {
	return &Notifier{producer: producer, breaker: breaker, policy: policy, logger: log}
}

func (n *Notifier) EntityDecided(ctx context.Context, entityType approval.EntityType, entityID string, decision approval.TicketStatus, decidedBy string) {
	event := LifecycleEvent{
		ID:         uuid.New().String(),
		Type:       eventTypeFor(entityType, decision),
		EntityType: entityType,
		EntityID:   entityID,
		Decision:   string(decision),
		DecidedBy:  decidedBy,
		OccurredAt: time.Now().UTC(),
		Source:     sourceName,
	}

	start := time.Now()
	err := retry.Do(ctx, "lifecycle_event_publish", n.policy, func() error {
		return n.breaker.Execute(ctx, func() error {
			return n.producer.Publish(ctx, event)
		})
	})
	metrics.ObserveLifecycleEventPublishDuration(string(event.Type), time.Since(start))

	if err != nil {
		metrics.IncLifecycleEventPublished(string(event.Type), "failed")
		n.logger.ErrorwCtx(ctx, "Failed to publish lifecycle event",
			"event_type", event.Type, "entity_id", entityID, "error", err)
		return
	}
	metrics.IncLifecycleEventPublished(string(event.Type), "success")
	n.logger.InfowCtx(ctx, "Lifecycle event published", "event_type", event.Type, "entity_id", entityID)
}
