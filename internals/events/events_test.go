package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/helpers/apperr"
)

func mustEvent(t *testing.T, detailType string) Event {
	t.Helper()
	ev, err := New(constants.SourceBilling, detailType, InvoiceGenerated{
		SchoolID:  uuid.New(),
		InvoiceID: uuid.New(),
		Reason:    constants.ReasonGenerated,
	})
	require.NoError(t, err)
	return ev
}

func TestEnvelopeRoundTrip(t *testing.T) {
	ev := mustEvent(t, constants.EventInvoiceGenerated)
	raw, err := Marshal(ev)
	require.NoError(t, err)

	got, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)

	var d InvoiceGenerated
	require.NoError(t, got.Decode(&d))
	assert.Equal(t, constants.ReasonGenerated, d.Reason)
	assert.Equal(t, d.SchoolID.String(), got.SchoolID())

	_, err = Unmarshal([]byte(`{"source":"billing"}`))
	assert.Error(t, err)
}

func TestBatcherFlushesEveryTen(t *testing.T) {
	rec := &Recorder{}
	b := NewBatcher(rec)
	ctx := context.Background()

	for i := 0; i < 23; i++ {
		require.NoError(t, b.Add(ctx, mustEvent(t, constants.EventInvoiceGenerated)))
	}
	require.Len(t, rec.Calls, 2)
	assert.Len(t, rec.Calls[0], MaxBatch)
	assert.Len(t, rec.Calls[1], MaxBatch)

	require.NoError(t, b.Flush(ctx))
	require.Len(t, rec.Calls, 3)
	assert.Len(t, rec.Calls[2], 3)
	assert.Equal(t, 23, b.Published())

	require.NoError(t, b.Flush(ctx))
	assert.Len(t, rec.Calls, 3, "empty flush publishes nothing")
}

func TestTargets(t *testing.T) {
	assert.Equal(t,
		[]string{constants.QueueMessaging, constants.QueueInvoicing, constants.QueueReceipts},
		Targets(DefaultRules, constants.EventPaymentConfirmed))
	assert.Equal(t,
		[]string{constants.QueueInvoicing, constants.QueueMessaging},
		Targets(DefaultRules, constants.EventInvoiceGenerated))
	assert.Equal(t, []string{constants.QueueMessaging}, Targets(DefaultRules, constants.EventResultReady))
	assert.Equal(t, []string{constants.QueueInvoicing}, Targets(DefaultRules, constants.EventImportRequested))
	assert.Empty(t, Targets(DefaultRules, "unknown.type"))
}

type failingBroker struct {
	*MemoryBroker
	fail string
}

func (f *failingBroker) Send(ctx context.Context, queue string, ev Event) error {
	if queue == f.fail {
		return errors.New("queue down")
	}
	return f.MemoryBroker.Send(ctx, queue, ev)
}

func TestRouterFanOutIsIndependent(t *testing.T) {
	b := &failingBroker{MemoryBroker: NewMemoryBroker(), fail: constants.QueueMessaging}
	r := NewRouter(b, DefaultRules)

	ev := mustEvent(t, constants.EventPaymentConfirmed)
	err := r.Publish(context.Background(), ev)
	require.Error(t, err)

	assert.Len(t, b.Sent(constants.QueueInvoicing), 1)
	assert.Len(t, b.Sent(constants.QueueReceipts), 1)
	assert.Empty(t, b.Sent(constants.QueueMessaging))
}

func fastSpec(name string) QueueSpec {
	return QueueSpec{Name: name, VisibilityTimeout: time.Second, MaxReceiveCount: 3, Backoff: time.Millisecond}
}

func runConsumer(t *testing.T, c *Consumer) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestConsumerRetriesThenDeadLetters(t *testing.T) {
	b := NewMemoryBroker()
	spec := fastSpec("work")

	var mu sync.Mutex
	attempts := 0
	alerted := make(chan struct{}, 1)
	c := &Consumer{
		Broker: b,
		Spec:   spec,
		Handler: func(ctx context.Context, ev Event) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return errors.New("store unavailable")
		},
		Alert: func(string, Event, error) { alerted <- struct{}{} },
	}
	stop := runConsumer(t, c)
	defer stop()

	require.NoError(t, b.Send(context.Background(), spec.Name, mustEvent(t, constants.EventPaymentConfirmed)))

	select {
	case <-alerted:
	case <-time.After(2 * time.Second):
		t.Fatal("message was never dead-lettered")
	}
	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()
	assert.Len(t, b.Sent(spec.DeadLetter()), 1)
}

func TestConsumerPermanentErrorSkipsRetry(t *testing.T) {
	b := NewMemoryBroker()
	spec := fastSpec("work")

	calls := 0
	c := &Consumer{
		Broker: b,
		Spec:   spec,
		Handler: func(ctx context.Context, ev Event) error {
			calls++
			return apperr.Validation("bad detail")
		},
	}
	d := Delivery{Event: mustEvent(t, constants.EventInvoiceGenerated), Attempt: 1,
		Ack:   func() error { return nil },
		Retry: func(time.Duration) error { t.Fatal("permanent error must not retry"); return nil },
	}
	c.Handle(context.Background(), d)

	assert.Equal(t, 1, calls)
	assert.Len(t, b.Sent(spec.DeadLetter()), 1)
}

func TestConsumerSuccessAndPanic(t *testing.T) {
	b := NewMemoryBroker()
	spec := fastSpec("work")

	acked := false
	ok := &Consumer{Broker: b, Spec: spec, Handler: func(context.Context, Event) error { return nil }}
	ok.Handle(context.Background(), Delivery{Event: mustEvent(t, constants.EventResultReady), Attempt: 1,
		Ack:   func() error { acked = true; return nil },
		Retry: func(time.Duration) error { return nil },
	})
	assert.True(t, acked)

	var retryDelay time.Duration
	boom := &Consumer{Broker: b, Spec: spec, Handler: func(context.Context, Event) error { panic("nil map") }}
	boom.Handle(context.Background(), Delivery{Event: mustEvent(t, constants.EventResultReady), Attempt: 2,
		Ack:   func() error { return nil },
		Retry: func(d time.Duration) error { retryDelay = d; return nil },
	})
	assert.Equal(t, 2*time.Millisecond, retryDelay)
	assert.Empty(t, b.Sent(spec.DeadLetter()))
}

func TestConsumerHandlerSeesVisibilityDeadline(t *testing.T) {
	spec := fastSpec("work")
	c := &Consumer{Broker: NewMemoryBroker(), Spec: spec, Handler: func(ctx context.Context, _ Event) error {
		dl, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(spec.VisibilityTimeout), dl, 200*time.Millisecond)
		return nil
	}}
	c.Handle(context.Background(), Delivery{Event: mustEvent(t, constants.EventResultReady), Attempt: 1,
		Ack: func() error { return nil }, Retry: func(time.Duration) error { return nil }})
}

type fakeWriter struct {
	batches [][]kafka.Message
	err     error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, msgs)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherChunksAndKeys(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)

	evs := make([]Event, 0, 12)
	for i := 0; i < 12; i++ {
		evs = append(evs, mustEvent(t, constants.EventInvoiceGenerated))
	}
	require.NoError(t, p.Publish(context.Background(), evs...))

	require.Len(t, w.batches, 2)
	assert.Len(t, w.batches[0], 10)
	assert.Len(t, w.batches[1], 2)
	assert.Equal(t, evs[0].SchoolID(), string(w.batches[0][0].Key))

	w.err = errors.New("leader not available")
	assert.Error(t, p.Publish(context.Background(), evs[0]))
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

type flakyPublisher struct{ failIDs map[string]bool }

func (p flakyPublisher) Publish(_ context.Context, evs ...Event) error {
	for _, ev := range evs {
		if p.failIDs[ev.ID] {
			return errors.New("rabbit unavailable")
		}
	}
	return nil
}

func TestRelayCommitsOnlyForwardedMessages(t *testing.T) {
	good := mustEvent(t, constants.EventPaymentConfirmed)
	bad := mustEvent(t, constants.EventPaymentConfirmed)
	goodRaw, _ := Marshal(good)
	badRaw, _ := Marshal(bad)

	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: goodRaw},
		{Offset: 2, Value: badRaw},
		{Offset: 3, Value: []byte("not json")},
	}}
	relay := NewRelayWithReader(r, flakyPublisher{failIDs: map[string]bool{bad.ID: true}})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, relay.Run(ctx))

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []int64{1, 3}, r.committed)
}

func TestRouterThroughMemoryQueuesEndToEnd(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	for _, q := range DefaultQueues() {
		require.NoError(t, b.Declare(ctx, q))
	}
	r := NewRouter(b, DefaultRules)
	require.NoError(t, r.Publish(ctx, mustEvent(t, constants.EventPaymentConfirmed)))

	for _, q := range DefaultQueues() {
		assert.Equal(t, 1, b.Depth(q.Name), q.Name)
		assert.Equal(t, 0, b.Depth(q.DeadLetter()), q.DeadLetter())
	}
}

func TestMemoryBrokerCloseReleasesBlockedSends(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	ev := mustEvent(t, constants.EventInvoiceGenerated)
	for i := 0; i < memoryQueueBuffer; i++ {
		require.NoError(t, b.Send(ctx, constants.QueueInvoicing, ev))
	}
	msgs, err := b.Consume(ctx, constants.QueueInvoicing)
	require.NoError(t, err)
	held := <-msgs
	require.NoError(t, b.Send(ctx, constants.QueueInvoicing, ev)) // antrean penuh lagi

	// retry yang jatuh tempo saat antrean penuh menunggu slot atau Close
	require.NoError(t, held.Retry(time.Millisecond))

	blocked := make(chan error, 1)
	go func() { blocked <- b.Send(ctx, constants.QueueInvoicing, ev) }()
	select {
	case <-blocked:
		t.Fatal("send on a full queue should wait")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, b.Close())
	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrBrokerClosed)
	case <-time.After(time.Second):
		t.Fatal("send still blocked after Close")
	}

	assert.ErrorIs(t, b.Send(ctx, constants.QueueInvoicing, ev), ErrBrokerClosed)
	assert.ErrorIs(t, held.Retry(0), ErrBrokerClosed)
	assert.Equal(t, memoryQueueBuffer, b.Depth(constants.QueueInvoicing))
	require.NoError(t, b.Close())
}
