package events

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the publisher needs; tests inject a fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher appends events to the shared domain-event topic, keyed by
// school so one tenant's events stay in one partition.
type KafkaPublisher struct {
	writer Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    MaxBatch,
		BatchTimeout: 50 * time.Millisecond,
	})
}

func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evs ...Event) error {
	for start := 0; start < len(evs); start += MaxBatch {
		end := start + MaxBatch
		if end > len(evs) {
			end = len(evs)
		}
		msgs := make([]kafka.Message, 0, end-start)
		for _, ev := range evs[start:end] {
			body, err := Marshal(ev)
			if err != nil {
				return err
			}
			msgs = append(msgs, kafka.Message{
				Key:   []byte(ev.SchoolID()),
				Value: body,
				Headers: []kafka.Header{
					{Key: "detailType", Value: []byte(ev.DetailType)},
					{Key: "source", Value: []byte(ev.Source)},
				},
			})
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("kafka publish: %w", err)
		}
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// Reader is the subset of *kafka.Reader the relay needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Relay reads the domain-event topic and routes each event to the work
// queues. An offset is committed only after every target accepted the event.
type Relay struct {
	reader  Reader
	router  Publisher
	timeout time.Duration
}

func NewRelay(brokers []string, topic, groupID string, router Publisher) *Relay {
	return NewRelayWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	}), router)
}

func NewRelayWithReader(r Reader, router Publisher) *Relay {
	return &Relay{reader: r, router: router, timeout: 10 * time.Second}
}

func (r *Relay) Run(ctx context.Context) error {
	log.Println("[INFO] event relay started")
	for {
		if ctx.Err() != nil {
			return nil
		}
		m, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[WARN] relay fetch: %v", err)
			time.Sleep(time.Second)
			continue
		}

		if err := r.forward(ctx, m); err != nil {
			// not committed: redelivered on next fetch after rebalance/restart
			log.Printf("[ERROR] relay offset %d: %v", m.Offset, err)
			continue
		}
		if err := r.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("[ERROR] relay commit offset %d: %v", m.Offset, err)
		}
	}
}

func (r *Relay) forward(ctx context.Context, m kafka.Message) error {
	ev, err := Unmarshal(m.Value)
	if err != nil {
		// poison message: nothing downstream can ever process it
		log.Printf("[ALERT] relay dropping undecodable message at offset %d: %v", m.Offset, err)
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.router.Publish(pctx, ev)
}

func (r *Relay) Close() error { return r.reader.Close() }
