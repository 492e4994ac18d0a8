package events

import (
	"context"
	"fmt"
	"log"
	"time"

	"schoolku_backend/internals/helpers/apperr"
)

type Handler func(ctx context.Context, ev Event) error

// Consumer drains one queue. Each attempt runs under the queue's visibility
// timeout. Permanent (business-rule) errors are dead-lettered at once;
// transient errors are retried with backoff until MaxReceiveCount, then
// dead-lettered and alerted.
type Consumer struct {
	Broker  Broker
	Spec    QueueSpec
	Handler Handler
	Alert   func(queue string, ev Event, err error)
}

func (c *Consumer) Run(ctx context.Context) error {
	if err := c.Broker.Declare(ctx, c.Spec); err != nil {
		return fmt.Errorf("declare %s: %w", c.Spec.Name, err)
	}
	deliveries, err := c.Broker.Consume(ctx, c.Spec.Name)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.Spec.Name, err)
	}
	log.Printf("[INFO] consumer %s started (visibility=%s, maxReceive=%d)", c.Spec.Name, c.Spec.VisibilityTimeout, c.maxReceive())

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle processes a single delivery.
func (c *Consumer) Handle(ctx context.Context, d Delivery) {
	hctx, cancel := context.WithTimeout(ctx, c.visibility())
	err := c.invoke(hctx, d.Event)
	cancel()

	switch {
	case err == nil:
		if aerr := d.Ack(); aerr != nil {
			log.Printf("[ERROR] %s ack %s: %v", c.Spec.Name, d.Event.ID, aerr)
		}
	case apperr.IsPermanent(err):
		log.Printf("[WARN] %s: %s %s rejected permanently: %v", c.Spec.Name, d.Event.DetailType, d.Event.ID, err)
		c.deadLetter(ctx, d, err)
	case d.Attempt >= c.maxReceive():
		c.deadLetter(ctx, d, err)
	default:
		delay := c.backoff(d.Attempt)
		log.Printf("[WARN] %s: %s attempt %d failed, retry in %s: %v", c.Spec.Name, d.Event.ID, d.Attempt, delay, err)
		if rerr := d.Retry(delay); rerr != nil {
			log.Printf("[ERROR] %s retry %s: %v", c.Spec.Name, d.Event.ID, rerr)
		}
	}
}

func (c *Consumer) invoke(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.Handler(ctx, ev)
}

func (c *Consumer) deadLetter(ctx context.Context, d Delivery, cause error) {
	if err := c.Broker.Send(ctx, c.Spec.DeadLetter(), d.Event); err != nil {
		// keep the message alive rather than lose it
		log.Printf("[ALERT] %s: dead-letter send failed for %s: %v", c.Spec.Name, d.Event.ID, err)
		_ = d.Retry(c.backoff(d.Attempt))
		return
	}
	log.Printf("[ALERT] %s: %s %s dead-lettered after %d attempt(s): %v", c.Spec.Name, d.Event.DetailType, d.Event.ID, d.Attempt, cause)
	if c.Alert != nil {
		c.Alert(c.Spec.Name, d.Event, cause)
	}
	if err := d.Ack(); err != nil {
		log.Printf("[ERROR] %s ack after dead-letter %s: %v", c.Spec.Name, d.Event.ID, err)
	}
}

func (c *Consumer) maxReceive() int {
	if c.Spec.MaxReceiveCount <= 0 {
		return DefaultMaxReceiveCount
	}
	return c.Spec.MaxReceiveCount
}

func (c *Consumer) visibility() time.Duration {
	if c.Spec.VisibilityTimeout <= 0 {
		return 30 * time.Second
	}
	return c.Spec.VisibilityTimeout
}

func (c *Consumer) backoff(attempt int) time.Duration {
	base := c.Spec.Backoff
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<(attempt-1))
}
