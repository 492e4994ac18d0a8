package events

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitBroker maps queues onto durable RabbitMQ quorum queues. Each work
// queue dead-letters to its .dlq through the default exchange once the
// broker-side delivery limit is hit, so a crashing consumer cannot spin a
// message forever either.
type RabbitBroker struct {
	conn     *amqp.Connection
	pubMu    sync.Mutex
	pub      *amqp.Channel
	prefetch int
}

func NewRabbitBroker(url string, prefetch int) (*RabbitBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	return &RabbitBroker{conn: conn, pub: ch, prefetch: prefetch}, nil
}

func (r *RabbitBroker) Close() error {
	if err := r.pub.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

func (r *RabbitBroker) Declare(_ context.Context, spec QueueSpec) error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	if _, err := r.pub.QueueDeclare(spec.DeadLetter(), true, false, false, false, amqp.Table{
		"x-queue-type": "quorum",
	}); err != nil {
		return err
	}

	max := spec.MaxReceiveCount
	if max <= 0 {
		max = DefaultMaxReceiveCount
	}
	_, err := r.pub.QueueDeclare(spec.Name, true, false, false, false, amqp.Table{
		"x-queue-type":              "quorum",
		"x-delivery-limit":          int32(max),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": spec.DeadLetter(),
		// unacked longer than this → channel closed, message redelivered
		"x-consumer-timeout": int64((spec.VisibilityTimeout + 30*time.Second) / time.Millisecond),
	})
	return err
}

func (r *RabbitBroker) Send(ctx context.Context, queue string, ev Event) error {
	body, err := Marshal(ev)
	if err != nil {
		return err
	}
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	return r.pub.PublishWithContext(ctx,
		"",    // exchange
		queue, // routing key (queue name)
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Type:         ev.DetailType,
			Timestamp:    ev.Time,
			Body:         body,
		},
	)
}

func (r *RabbitBroker) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := Unmarshal(m.Body)
				if err != nil {
					log.Printf("[ALERT] %s: undecodable message %s, dead-lettering: %v", queue, m.MessageId, err)
					_ = m.Reject(false)
					continue
				}
				msg := m
				d := Delivery{
					Event:   ev,
					Attempt: deliveryCount(msg.Headers) + 1,
					Ack:     func() error { return msg.Ack(false) },
					Retry: func(delay time.Duration) error {
						time.Sleep(delay)
						return msg.Nack(false, true)
					},
				}
				select {
				case out <- d:
				case <-ctx.Done():
					_ = msg.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// quorum queues count previous failed deliveries in x-delivery-count
func deliveryCount(h amqp.Table) int {
	switch v := h["x-delivery-count"].(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
