package events

import (
	"context"
	"errors"
	"fmt"
	"log"

	"schoolku_backend/internals/constants"
)

// Rule fans one detail type out to independent queues.
type Rule struct {
	Name       string
	DetailType string
	Targets    []string
}

var DefaultRules = []Rule{
	{
		Name:       "payment-confirmed-fanout",
		DetailType: constants.EventPaymentConfirmed,
		Targets:    []string{constants.QueueMessaging, constants.QueueInvoicing, constants.QueueReceipts},
	},
	{
		Name:       "invoice-generated",
		DetailType: constants.EventInvoiceGenerated,
		Targets:    []string{constants.QueueInvoicing, constants.QueueMessaging},
	},
	{
		Name:       "import-requested",
		DetailType: constants.EventImportRequested,
		Targets:    []string{constants.QueueInvoicing},
	},
	{
		Name:       "result-ready",
		DetailType: constants.EventResultReady,
		Targets:    []string{constants.QueueMessaging},
	},
	{
		Name:       "invoice-overdue",
		DetailType: constants.EventInvoiceOverdue,
		Targets:    []string{constants.QueueMessaging},
	},
}

// Targets returns the distinct queues matched by rules for detailType.
func Targets(rules []Rule, detailType string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, 3)
	for _, r := range rules {
		if r.DetailType != detailType {
			continue
		}
		for _, t := range r.Targets {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Router is a Publisher that applies routing rules and sends straight to
// broker queues. A failing target does not stop delivery to the others.
type Router struct {
	broker Broker
	rules  []Rule
}

func NewRouter(b Broker, rules []Rule) *Router {
	return &Router{broker: b, rules: rules}
}

func (r *Router) Publish(ctx context.Context, evs ...Event) error {
	var errs []error
	for _, ev := range evs {
		targets := Targets(r.rules, ev.DetailType)
		if len(targets) == 0 {
			log.Printf("[WARN] events: no rule for %s (id=%s)", ev.DetailType, ev.ID)
			continue
		}
		for _, q := range targets {
			if err := r.broker.Send(ctx, q, ev); err != nil {
				errs = append(errs, fmt.Errorf("route %s to %s: %w", ev.ID, q, err))
			}
		}
	}
	return errors.Join(errs...)
}
