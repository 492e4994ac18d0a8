package events

import (
	"context"
	"time"

	"schoolku_backend/internals/constants"
)

// QueueSpec sizes a work queue. VisibilityTimeout bounds one processing
// attempt; after MaxReceiveCount failed attempts the message is dead-lettered.
type QueueSpec struct {
	Name              string
	VisibilityTimeout time.Duration
	MaxReceiveCount   int
	Backoff           time.Duration
}

func (s QueueSpec) DeadLetter() string { return s.Name + ".dlq" }

const DefaultMaxReceiveCount = 3

func DefaultQueues() []QueueSpec {
	return []QueueSpec{
		{Name: constants.QueueMessaging, VisibilityTimeout: 30 * time.Second, MaxReceiveCount: DefaultMaxReceiveCount, Backoff: 2 * time.Second},
		{Name: constants.QueueInvoicing, VisibilityTimeout: 60 * time.Second, MaxReceiveCount: DefaultMaxReceiveCount, Backoff: 2 * time.Second},
		{Name: constants.QueueReceipts, VisibilityTimeout: 120 * time.Second, MaxReceiveCount: DefaultMaxReceiveCount, Backoff: 5 * time.Second},
	}
}

// Delivery is one receipt of a queued event. Exactly one of Ack or Retry
// must be called.
type Delivery struct {
	Event   Event
	Attempt int // 1-based receive count
	Ack     func() error
	Retry   func(delay time.Duration) error
}

type Broker interface {
	Declare(ctx context.Context, spec QueueSpec) error
	Send(ctx context.Context, queue string, ev Event) error
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
}
