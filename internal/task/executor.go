// Package task runs the externally supplied giveaway task for a slot with a
// bounded retry policy.
package task

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gabe/botpool/internal/browser"
	"github.com/gabe/botpool/internal/models"
)

// SlotContext is what an executor gets to work with
type SlotContext struct {
	SlotID      int
	ProfilePath string
	Proxy       string
	Attempt     int
	Category    models.Category // category due for this run
	Browser     browser.Session // nil when the slot runs without a browser
}

// Executor performs one attempt of the task
type Executor interface {
	Run(ctx context.Context, sc SlotContext) models.Outcome
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, sc SlotContext) models.Outcome

// Run calls f
func (f ExecutorFunc) Run(ctx context.Context, sc SlotContext) models.Outcome {
	return f(ctx, sc)
}

// Registry maps executor names to implementations
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds or replaces an executor
func (r *Registry) Register(name string, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = e
}

// Get returns the executor registered under name
func (r *Registry) Get(name string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotFound, name)
	}
	return e, nil
}

// Names returns registered executor names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
