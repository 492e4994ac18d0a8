// Package pipeline runs an ordered list of named steps over a typed request
// context. Each step reads and writes named fields of the context; the first
// error stops the run.
package pipeline

import (
	"context"
	"fmt"
)

type Step[T any] struct {
	Name string
	Run  func(ctx context.Context, rc *T) error
}

type Pipeline[T any] struct {
	steps []Step[T]
}

func New[T any](steps ...Step[T]) *Pipeline[T] {
	return &Pipeline[T]{steps: steps}
}

// Steps returns the step names in execution order.
func (p *Pipeline[T]) Steps() []string {
	out := make([]string, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Name
	}
	return out
}

// Run executes the steps in order. Errors are returned unwrapped so the
// taxonomy kind survives; StepError carries the failing step name for logs.
func (p *Pipeline[T]) Run(ctx context.Context, rc *T) error {
	for _, s := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Run(ctx, rc); err != nil {
			return &StepError{Step: s.Name, Err: err}
		}
	}
	return nil
}

type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }
