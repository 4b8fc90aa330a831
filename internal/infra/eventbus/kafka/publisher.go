package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

var _ farm.RunEventPublisher = (*Publisher)(nil)

// EventTypeRunCompleted is carried in the event-type header of every run
// completion message.
const EventTypeRunCompleted = "RunCompleted"

const eventTypeHeader = "event-type"

// RunCompleted is the message body published when a run finishes. Results are
// left out; consumers fetch the full report from the runs API.
type RunCompleted struct {
	RunID         string                `json:"run_id"`
	Policy        string                `json:"policy"`
	QueueOrder    string                `json:"queue_order"`
	Workers       int                   `json:"workers"`
	Items         int                   `json:"items"`
	Assignments   map[farm.WorkerID]int `json:"assignments"`
	TasksSent     int                   `json:"tasks_sent"`
	SentinelsSent int                   `json:"sentinels_sent"`
	Complete      bool                  `json:"complete"`
	StartedAt     time.Time             `json:"started_at"`
	ElapsedMillis int64                 `json:"elapsed_ms"`
}

// Publisher sends run events over a sarama SyncProducer. Messages are keyed by
// run id so every event of a run lands on the same partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string

	logger  *logger.Logger
	metrics Metrics
	tracer  trace.Tracer
}

// NewPublisher creates a Publisher writing to topic.
func NewPublisher(
	producer sarama.SyncProducer,
	topic string,
	logger *logger.Logger,
	metrics Metrics,
	tracer trace.Tracer,
) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "kafka_publisher", "topic", topic),
		metrics:  metrics,
		tracer:   tracer,
	}
}

// PublishRunCompleted publishes a RunCompleted event for report.
func (p *Publisher) PublishRunCompleted(ctx context.Context, report *farm.RunReport) error {
	ctx, span := p.tracer.Start(ctx, "kafka.produce",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", p.topic),
			attribute.String("messaging.operation", "publish"),
			attribute.String("run_id", report.RunID.String()),
		),
	)
	defer span.End()

	data, err := json.Marshal(newRunCompleted(report))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		p.metrics.IncPublishError(p.topic)
		return fmt.Errorf("failed to marshal RunCompleted: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(report.RunID.String()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(eventTypeHeader), Value: []byte(EventTypeRunCompleted)},
		},
	}
	injectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		p.metrics.IncPublishError(p.topic)
		return fmt.Errorf("publishing run %s: %w", report.RunID, err)
	}
	p.metrics.IncMessagePublished(p.topic)
	span.SetAttributes(
		attribute.Int("messaging.kafka.partition", int(partition)),
		attribute.Int64("messaging.kafka.offset", offset),
	)
	p.logger.Debug(ctx, "run completed event published",
		"run_id", report.RunID.String(),
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error { return p.producer.Close() }

func newRunCompleted(r *farm.RunReport) RunCompleted {
	return RunCompleted{
		RunID:         r.RunID.String(),
		Policy:        r.Policy.String(),
		QueueOrder:    string(r.QueueOrder),
		Workers:       r.Workers,
		Items:         r.Items,
		Assignments:   r.Assignments,
		TasksSent:     r.TasksSent,
		SentinelsSent: r.SentinelsSent,
		Complete:      r.Complete(),
		StartedAt:     r.StartedAt,
		ElapsedMillis: r.Elapsed.Milliseconds(),
	}
}
