package events

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const memoryQueueBuffer = 1024

var ErrBrokerClosed = errors.New("events: memory broker closed")

// MemoryBroker is an in-process broker for local runs and tests. Messages are
// lost on restart.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan Delivery
	sent   map[string][]Event

	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues: map[string]chan Delivery{},
		sent:   map[string][]Event{},
		done:   make(chan struct{}),
	}
}

// Close stops accepting sends. Pending retries are dropped instead of
// waiting on a full queue. Delivery channels stay open.
func (m *MemoryBroker) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryBroker) closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *MemoryBroker) queue(name string) chan Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = make(chan Delivery, memoryQueueBuffer)
		m.queues[name] = q
	}
	return q
}

func (m *MemoryBroker) Declare(_ context.Context, spec QueueSpec) error {
	m.queue(spec.Name)
	m.queue(spec.DeadLetter())
	return nil
}

func (m *MemoryBroker) Send(ctx context.Context, queue string, ev Event) error {
	m.mu.Lock()
	m.sent[queue] = append(m.sent[queue], ev)
	m.mu.Unlock()
	return m.push(ctx, queue, ev, 1)
}

func (m *MemoryBroker) push(ctx context.Context, queue string, ev Event, attempt int) error {
	d := Delivery{Event: ev, Attempt: attempt}
	d.Ack = func() error { return nil }
	d.Retry = func(delay time.Duration) error {
		if m.closed() {
			return ErrBrokerClosed
		}
		time.AfterFunc(delay, func() {
			if err := m.push(context.Background(), queue, ev, attempt+1); err != nil {
				log.Printf("[WARN] memory broker: retry of %s on %s dropped: %v", ev.ID, queue, err)
			}
		})
		return nil
	}
	if m.closed() {
		return ErrBrokerClosed
	}
	select {
	case m.queue(queue) <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrBrokerClosed
	}
}

func (m *MemoryBroker) Consume(_ context.Context, queue string) (<-chan Delivery, error) {
	return m.queue(queue), nil
}

// Sent returns every event ever sent to queue, in send order.
func (m *MemoryBroker) Sent(queue string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.sent[queue]...)
}

// Depth is the number of deliveries waiting in queue.
func (m *MemoryBroker) Depth(queue string) int {
	return len(m.queue(queue))
}
