package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type recordingPublisher struct {
	keys   []string
	events []any
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestActionEnvelope(t *testing.T) {
	pub := &recordingPublisher{}
	emitter := NewAuditEmitter(pub, "audit.chat", "collab-service", "test")
	emitter.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	ctx := WithRequestID(context.Background(), "req-1")
	emitter.Action(ctx, "connection.accepted", 7, map[string]any{"connection_id": 3})

	require.Len(t, pub.events, 1)
	assert.Equal(t, "audit.chat", pub.keys[0])
	env, ok := pub.events[0].(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, 1, env.SchemaVersion)
	assert.Equal(t, "audit_action", env.EventType)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, "2024-01-02T03:04:05Z", env.OccurredAt)
	require.NotNil(t, env.UserID)
	assert.Equal(t, "7", *env.UserID)
	assert.Equal(t, "connection.accepted", env.Payload.Action)
	assert.Equal(t, 3, env.Payload.Attributes["connection_id"])
}

func TestNilEmitterIsSafe(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Action(context.Background(), "room.created", 1, nil)
	emitter.Emit(context.Background(), "INFO", "x", "", nil)
}

func TestRequestIDContext(t *testing.T) {
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
	ctx := WithRequestID(context.Background(), "")
	assert.Equal(t, "", RequestIDFromContext(ctx))
}

func TestEnvelopeCarriesTraceID(t *testing.T) {
	pub := &recordingPublisher{}
	emitter := NewAuditEmitter(pub, "audit.chat", "collab-service", "test")

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	emitter.Action(ctx, "room.created", 1, nil)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", pub.events[0].(AuditEnvelope).TraceID)
}
