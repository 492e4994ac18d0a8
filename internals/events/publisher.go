package events

import (
	"context"
	"sync"
)

// MaxBatch bounds how many events go out in one publish call.
const MaxBatch = 10

type Publisher interface {
	Publish(ctx context.Context, evs ...Event) error
}

// Batcher accumulates events and flushes every MaxBatch. Consumers must not
// assume ordering across a batch.
type Batcher struct {
	pub       Publisher
	size      int
	buf       []Event
	published int
}

func NewBatcher(pub Publisher) *Batcher {
	return &Batcher{pub: pub, size: MaxBatch, buf: make([]Event, 0, MaxBatch)}
}

func (b *Batcher) Add(ctx context.Context, ev Event) error {
	b.buf = append(b.buf, ev)
	if len(b.buf) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	if err := b.pub.Publish(ctx, b.buf...); err != nil {
		return err
	}
	b.published += len(b.buf)
	b.buf = b.buf[:0]
	return nil
}

func (b *Batcher) Published() int { return b.published }

// Recorder keeps published events in memory; handy for tests and dry runs.
type Recorder struct {
	mu     sync.Mutex
	Calls  [][]Event
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, evs ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := append([]Event(nil), evs...)
	r.Calls = append(r.Calls, cp)
	r.Events = append(r.Events, cp...)
	return nil
}

func (r *Recorder) OfType(detailType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0)
	for _, e := range r.Events {
		if e.DetailType == detailType {
			out = append(out, e)
		}
	}
	return out
}

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, ...Event) error { return nil }
