package messaging

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/config"
)

func TestTraceHeadersRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTrace(ctx, map[string]string{"kind": "status_update"})
	assert.Equal(t, "status_update", headers["kind"])
	assert.Contains(t, headers, "traceparent")

	got := trace.SpanContextFromContext(ExtractTrace(context.Background(), headers))
	assert.Equal(t, traceID, got.TraceID())
}

func TestToMessageCopiesHeaders(t *testing.T) {
	msg := toMessage(kafka.Message{
		Topic:   "atelier.notifications",
		Key:     []byte("AT-1"),
		Value:   []byte("{}"),
		Offset:  7,
		Headers: []kafka.Header{{Key: "kind", Value: []byte("payment_failed")}},
	})

	assert.Equal(t, "AT-1", string(msg.Key))
	assert.Equal(t, int64(7), msg.Offset)
	assert.Equal(t, "payment_failed", msg.Headers["kind"])
	assert.Nil(t, toMessage(kafka.Message{}).Headers)
}

func TestNewClientDisabledIsNoop(t *testing.T) {
	var cfg config.Config
	cfg.Messaging.Enabled = false
	cfg.Messaging.Kafka.Topic = "atelier.notifications"

	client, err := NewClient(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "atelier.notifications", client.Topic())
	require.NoError(t, client.Publish(context.Background(), Envelope{Value: []byte("{}")}))
}

func TestNewClientRejectsUnknownDriver(t *testing.T) {
	var cfg config.Config
	cfg.Messaging.Enabled = true
	cfg.Messaging.Driver = "rabbit"

	_, err := NewClient(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.Error(t, err)
}
