package workers

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/events"
)

// Set holds one handler per work queue.
type Set struct {
	Messaging *Messaging
	Invoicing *Invoicing
	Receipts  *Receipts
}

// Handlers maps queue names to handlers; a nil worker leaves its queue out.
func (s Set) Handlers() map[string]events.Handler {
	out := map[string]events.Handler{}
	if s.Messaging != nil {
		out[constants.QueueMessaging] = s.Messaging.Handle
	}
	if s.Invoicing != nil {
		out[constants.QueueInvoicing] = s.Invoicing.Handle
	}
	if s.Receipts != nil {
		out[constants.QueueReceipts] = s.Receipts.Handle
	}
	return out
}

func alert(queue string, ev events.Event, err error) {
	log.Printf("[ALERT] queue=%s event=%s type=%s school=%s: %v", queue, ev.ID, ev.DetailType, ev.SchoolID(), err)
}

// Run consumes every configured queue until ctx is cancelled or a consumer
// fails to start. Handlers never depend on each other.
func Run(ctx context.Context, broker events.Broker, specs []events.QueueSpec, set Set) error {
	handlers := set.Handlers()
	g, gctx := errgroup.WithContext(ctx)
	started := 0
	for _, spec := range specs {
		h, ok := handlers[spec.Name]
		if !ok {
			log.Printf("[WARN] workers: no handler for queue %s, skipped", spec.Name)
			continue
		}
		c := &events.Consumer{Broker: broker, Spec: spec, Handler: h, Alert: alert}
		started++
		g.Go(func() error { return c.Run(gctx) })
	}
	if started == 0 {
		return fmt.Errorf("workers: no queue to consume")
	}
	return g.Wait()
}
