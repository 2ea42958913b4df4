package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrConsumerClosed is returned by Consume when the broker closes the delivery channel.
var ErrConsumerClosed = errors.New("rabbitmq consumer closed")

// Consumer reads from a private, auto-deleted queue bound to a topic exchange.
type Consumer struct {
	url        string
	exchange   string
	bindingKey string
}

// NewConsumer describes a consumer; nothing is dialed until Consume.
func NewConsumer(amqpURL, exchange, bindingKey string) *Consumer {
	return &Consumer{url: amqpURL, exchange: exchange, bindingKey: bindingKey}
}

// Consume dials, binds an exclusive queue and calls handle for every delivery
// until ctx ends or the connection drops.
func (c *Consumer) Consume(ctx context.Context, handle func(body []byte)) error {
	conn, ch, err := openExchange(c.url, c.exchange)
	if err != nil {
		return fmt.Errorf("open exchange: %w", err)
	}
	defer conn.Close()
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, c.bindingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	log.Printf("rabbitmq consuming exchange=%s binding=%s queue=%s", c.exchange, c.bindingKey, q.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrConsumerClosed
			}
			handle(d.Body)
		}
	}
}
