package kafka

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	kgo "github.com/segmentio/kafka-go"

	"collab-service/internal/models"
	"collab-service/internal/observability"
)

// MessageCreated is the record written for every stored message.
type MessageCreated struct {
	EventType   string             `json:"event_type"`
	MessageID   int                `json:"message_id"`
	RoomID      int                `json:"room_id"`
	SenderID    int                `json:"sender_id"`
	MessageType models.MessageType `json:"message_type"`
	Preview     string             `json:"preview"`
	CreatedAt   time.Time          `json:"created_at"`
}

const previewLength = 140

// NewMessageCreated builds the record for msg.
func NewMessageCreated(msg models.ChatMessage) MessageCreated {
	preview := msg.Content
	if r := []rune(preview); len(r) > previewLength {
		preview = string(r[:previewLength])
	}
	return MessageCreated{
		EventType:   "message.created",
		MessageID:   msg.ID,
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		MessageType: msg.Type,
		Preview:     preview,
		CreatedAt:   msg.CreatedAt,
	}
}

// MessageStream receives message events for downstream consumers.
type MessageStream interface {
	MessageCreated(ctx context.Context, msg models.ChatMessage) error
	Close() error
}

type writer struct {
	w *kgo.Writer
}

// NewWriter returns a Kafka-backed stream, or a noop stream when brokers is empty.
// brokers is a comma separated host:port list.
func NewWriter(brokers, topic string) MessageStream {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		log.Printf("kafka disabled, using noop: empty brokers")
		return Noop{}
	}

	w := &kgo.Writer{
		Addr:         kgo.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireOne,
		BatchTimeout: 20 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kgo.Message, err error) {
			if err != nil {
				observability.IncKafkaPublishError()
				log.Printf("kafka write failed topic=%s count=%d: %v", topic, len(messages), err)
			}
		},
	}
	log.Printf("kafka writer ready brokers=%s topic=%s", strings.Join(addrs, ","), topic)
	return &writer{w: w}
}

func (wr *writer) MessageCreated(ctx context.Context, msg models.ChatMessage) error {
	body, err := json.Marshal(NewMessageCreated(msg))
	if err != nil {
		return err
	}
	return wr.w.WriteMessages(ctx, kgo.Message{
		Key:   []byte(strconv.Itoa(msg.RoomID)),
		Value: body,
		Time:  time.Now(),
	})
}

func (wr *writer) Close() error { return wr.w.Close() }

// Noop drops every event.
type Noop struct{}

func (Noop) MessageCreated(ctx context.Context, msg models.ChatMessage) error { return nil }

func (Noop) Close() error { return nil }
