// Package publish forwards completed sales to Kafka so that downstream
// services (scoreboards, accounting) can follow the auction.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/squad-auction/internal/config"
	"github.com/jensholdgaard/squad-auction/internal/squad"
)

const instrumentationName = "github.com/jensholdgaard/squad-auction/internal/publish"

// Publisher sends settlements downstream.
type Publisher interface {
	PublishSettlement(ctx context.Context, auctionID string, s squad.Settlement) error
	Close() error
}

// SettlementMessage is the value of every published record.
type SettlementMessage struct {
	Type      string           `json:"type"`
	AuctionID string           `json:"auction_id"`
	Sale      squad.Settlement `json:"settlement"`
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// New returns a Kafka publisher, or a no-op one when Kafka is disabled.
func New(cfg config.KafkaConfig, logger *slog.Logger, tp trace.TracerProvider) Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info("settlement publishing disabled")
		return Nop{}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info("settlement publishing enabled",
		slog.Any("brokers", cfg.Brokers),
		slog.String("topic", cfg.Topic),
	)
	return NewKafka(w, tp)
}

// Kafka publishes settlements keyed by auction ID, so every sale of one
// auction lands on the same partition in order.
type Kafka struct {
	writer MessageWriter
	tracer trace.Tracer
}

// NewKafka wraps w.
func NewKafka(w MessageWriter, tp trace.TracerProvider) *Kafka {
	return &Kafka{writer: w, tracer: tp.Tracer(instrumentationName)}
}

// PublishSettlement writes one settlement record.
func (k *Kafka) PublishSettlement(ctx context.Context, auctionID string, s squad.Settlement) error {
	ctx, span := k.tracer.Start(ctx, "Kafka.PublishSettlement",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("settlement.id", s.ID),
		),
	)
	defer span.End()

	value, err := json.Marshal(SettlementMessage{Type: "settlement", AuctionID: auctionID, Sale: s})
	if err != nil {
		return fmt.Errorf("marshaling settlement: %w", err)
	}

	var headers headerCarrier
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	msg := kafka.Message{
		Key:     []byte(auctionID),
		Value:   value,
		Headers: headers,
		Time:    s.Timestamp,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("writing settlement %s: %w", s.ID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Nop discards every settlement.
type Nop struct{}

// PublishSettlement does nothing.
func (Nop) PublishSettlement(context.Context, string, squad.Settlement) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// headerCarrier adapts Kafka headers to a propagation.TextMapCarrier.
type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = h.Key
	}
	return keys
}
