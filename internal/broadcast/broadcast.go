// Package broadcast fans room events out to websocket subscribers, locally or across instances.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"collab-service/internal/models"
	"collab-service/internal/rabbitmq"
)

// Deliverer hands an event to the connections of one instance.
type Deliverer interface {
	Deliver(ev models.Event)
}

// Broadcaster publishes a room event to every subscriber of the room.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev models.Event) error
}

// Local delivers straight to the in-process hub.
type Local struct {
	hub Deliverer
}

func NewLocal(hub Deliverer) *Local {
	return &Local{hub: hub}
}

func (l *Local) Broadcast(ctx context.Context, ev models.Event) error {
	l.hub.Deliver(ev)
	return nil
}

// BindingKey matches the events of every room.
const BindingKey = "room.*"

// RoutingKey is the topic key for a room's events.
func RoutingKey(roomID int) string {
	return "room." + strconv.Itoa(roomID)
}

type frame struct {
	Origin string       `json:"origin"`
	Event  models.Event `json:"event"`
}

// AMQP delivers locally and publishes to a topic exchange so other instances
// can deliver to their own subscribers.
type AMQP struct {
	hub       Deliverer
	publisher rabbitmq.Publisher
	consumer  *rabbitmq.Consumer
	origin    string
}

func NewAMQP(hub Deliverer, publisher rabbitmq.Publisher, consumer *rabbitmq.Consumer) *AMQP {
	return &AMQP{
		hub:       hub,
		publisher: publisher,
		consumer:  consumer,
		origin:    ulid.Make().String(),
	}
}

// Broadcast delivers locally first; a publish failure is returned but local
// subscribers already have the event.
func (a *AMQP) Broadcast(ctx context.Context, ev models.Event) error {
	a.hub.Deliver(ev)

	f := frame{Origin: a.origin, Event: ev}
	if ev.Kind.Ephemeral() {
		return a.publisher.PublishTransient(ctx, RoutingKey(ev.RoomID), f)
	}
	return a.publisher.Publish(ctx, RoutingKey(ev.RoomID), f)
}

// Run consumes peer events until ctx ends, reconnecting with exponential backoff.
func (a *AMQP) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	op := func() error {
		err := a.consumer.Consume(ctx, a.handle)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		log.Printf("broadcast consumer stopped, retrying: %v", err)
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(policy, ctx))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *AMQP) handle(body []byte) {
	var f frame
	if err := json.Unmarshal(body, &f); err != nil {
		log.Printf("broadcast decode failed: %v", err)
		return
	}
	if f.Origin == a.origin {
		return
	}
	a.hub.Deliver(f.Event)
}
