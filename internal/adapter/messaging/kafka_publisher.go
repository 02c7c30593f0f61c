package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ingest/internal/core/domain"
	"github.com/rl1809/stock-ingest/internal/port"
)

var errPublisherFlushed = errors.New("publisher already flushed")

type Producer interface {
	WriteMessages(ctx context.Context, msgs []kafka.Message) error
	Close() error
}

// NewKafkaWriter builds the shared producer. Trace context travels in the
// message headers.
func NewKafkaWriter(broker, topic, clientID string, batchTimeout time.Duration, tp trace.TracerProvider) (*otelkafka.Writer, error) {
	base := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: batchTimeout,
	}

	return otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(topic),
				attribute.String("messaging.kafka.client_id", clientID),
			},
		),
	)
}

// KafkaPublisher collects the records of one cycle and hands them to the
// producer as a single ordered batch on Flush. Publish never waits on the
// broker. Failed sends are logged and dropped.
type KafkaPublisher struct {
	producer Producer
	topic    string
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending []domain.InventoryRecord
	batch   []kafka.Message
	flushed bool
	report  domain.PublishReport
}

func NewKafkaPublisher(producer Producer, topic string, timeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		timeout:  timeout,
		logger:   logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, record domain.InventoryRecord) {
	body, err := json.Marshal(record)
	if err != nil {
		p.mu.Lock()
		p.failLocked(record, err)
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.flushed {
		p.failLocked(record, errPublisherFlushed)
		return
	}

	p.pending = append(p.pending, record)
	p.batch = append(p.batch, kafka.Message{Value: body})
}

func (p *KafkaPublisher) failLocked(record domain.InventoryRecord, err error) {
	p.logger.Error("failed to publish inventory record",
		zap.String("topic", p.topic),
		zap.String("store_id", record.StoreID),
		zap.String("sku", record.SKU),
		zap.Error(err),
	)
	p.report.Failed++
}

// Flush writes every buffered record in publish order and reports the
// outcome. The publisher accepts no more records afterwards. The write
// outlives ctx cancellation but keeps its values; the configured timeout
// bounds it.
func (p *KafkaPublisher) Flush(ctx context.Context) domain.PublishReport {
	p.mu.Lock()
	if p.flushed {
		defer p.mu.Unlock()
		return p.report
	}
	p.flushed = true
	records, batch := p.pending, p.batch
	p.pending, p.batch = nil, nil
	p.mu.Unlock()

	var err error
	if len(batch) > 0 {
		err = p.write(ctx, batch)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		p.report.Sent += len(batch)
		return p.report
	}

	var perMessage kafka.WriteErrors
	if errors.As(err, &perMessage) && len(perMessage) == len(batch) {
		for i, msgErr := range perMessage {
			if msgErr != nil {
				p.failLocked(records[i], msgErr)
				continue
			}
			p.report.Sent++
		}
		return p.report
	}

	for _, record := range records {
		p.failLocked(record, err)
	}
	return p.report
}

func (p *KafkaPublisher) write(ctx context.Context, batch []kafka.Message) error {
	ctx = context.WithoutCancel(ctx)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.producer.WriteMessages(ctx, batch)
}

// PublisherFactory hands each cycle its own publisher over a shared producer.
type PublisherFactory struct {
	producer Producer
	topic    string
	timeout  time.Duration
	logger   *zap.Logger
}

func NewPublisherFactory(producer Producer, topic string, timeout time.Duration, logger *zap.Logger) *PublisherFactory {
	return &PublisherFactory{
		producer: producer,
		topic:    topic,
		timeout:  timeout,
		logger:   logger,
	}
}

func (f *PublisherFactory) NewPublisher() port.RecordPublisher {
	return NewKafkaPublisher(f.producer, f.topic, f.timeout, f.logger)
}
