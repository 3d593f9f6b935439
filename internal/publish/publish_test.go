package publish

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/squad-auction/internal/config"
	"github.com/jensholdgaard/squad-auction/internal/squad"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafka_PublishSettlement(t *testing.T) {
	w := &recordingWriter{}
	k := NewKafka(w, noop.NewTracerProvider())

	sale := squad.Settlement{
		ID:        "s1",
		PlayerID:  "p1",
		TeamID:    "t1",
		SoldPrice: 2_500_000,
		Timestamp: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
	}
	require.NoError(t, k.PublishSettlement(context.Background(), "ipl-2026", sale))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ipl-2026", string(msg.Key))
	assert.True(t, msg.Time.Equal(sale.Timestamp))

	var got SettlementMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "settlement", got.Type)
	assert.Equal(t, "ipl-2026", got.AuctionID)
	assert.Equal(t, "p1", got.Sale.PlayerID)
	assert.Equal(t, int64(2_500_000), got.Sale.SoldPrice)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafka_PublishSettlement_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	k := NewKafka(w, noop.NewTracerProvider())

	err := k.PublishSettlement(context.Background(), "ipl-2026", squad.Settlement{ID: "s1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s1")
}

func TestNew_Disabled(t *testing.T) {
	p := New(config.KafkaConfig{}, slog.Default(), noop.NewTracerProvider())
	_, ok := p.(Nop)
	assert.True(t, ok, "expected a no-op publisher")
	assert.NoError(t, p.PublishSettlement(context.Background(), "a", squad.Settlement{}))
	assert.NoError(t, p.Close())
}

func TestNew_Enabled(t *testing.T) {
	p := New(config.KafkaConfig{
		Enabled: true,
		Brokers: []string{"localhost:9092"},
		Topic:   "auction.settlements",
	}, slog.Default(), noop.NewTracerProvider())

	k, ok := p.(*Kafka)
	require.True(t, ok, "expected a Kafka publisher")
	w, ok := k.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "auction.settlements", w.Topic)
	assert.NoError(t, p.Close())
}

func TestHeaderCarrier(t *testing.T) {
	var c headerCarrier
	c.Set("traceparent", "a")
	c.Set("baggage", "b")
	c.Set("traceparent", "c")

	assert.Equal(t, "c", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, c.Keys())
}
