package telemetry

import (
	"context"
	"log"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes schema-versioned audit envelopes.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level      string         `json:"level"`
	Text       string         `json:"text"`
	Action     string         `json:"action,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes a free-form audit line.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	if e == nil || e.publisher == nil {
		return
	}

	log.Printf("audit emit: level=%s request_id=%s user_id=%v text=%q", level, requestID, userID, text)
	e.publish(ctx, AuditEnvelope{
		EventType: "audit_log",
		RequestID: requestID,
		UserID:    userID,
		Payload:   AuditPayload{Level: level, Text: text},
	})
}

// Action publishes a domain action performed by actorID, e.g. "connection.accepted".
// The request id is taken from ctx.
func (e *AuditEmitter) Action(ctx context.Context, action string, actorID int, attrs map[string]any) {
	if e == nil || e.publisher == nil {
		return
	}

	actor := strconv.Itoa(actorID)
	e.publish(ctx, AuditEnvelope{
		EventType: "audit_action",
		RequestID: RequestIDFromContext(ctx),
		UserID:    &actor,
		Payload: AuditPayload{
			Level:      "INFO",
			Text:       action,
			Action:     action,
			Attributes: attrs,
		},
	})
}

func (e *AuditEmitter) publish(ctx context.Context, envelope AuditEnvelope) {
	envelope.SchemaVersion = 1
	envelope.OccurredAt = e.now().UTC().Format(time.RFC3339Nano)
	envelope.Service = e.service
	envelope.Environment = e.environment
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		envelope.TraceID = sc.TraceID().String()
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx for audit envelopes.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
