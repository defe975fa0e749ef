// Package engine is an in-process implementation of the container runtime.
//
// Each simulated process owns one Engine, which holds that process's
// handle table and variable-length allocations. Files opened with a
// communicator share one in-memory image across the processes of the
// group; metadata changes are applied once, by rank 0, and the outcome is
// broadcast so every process observes the same result. Images are decoded
// from disk on open and encoded back when the last reference closes.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/scigolib/h5par/internal/h5api"
)

// firstID leaves room below for the predefined IDs.
const firstID h5api.ID = 1 << 24

// Engine implements h5api.Runtime for one process.
type Engine struct {
	logger *slog.Logger

	mu      sync.Mutex
	next    h5api.ID
	objects map[h5api.ID]any

	vlMu   sync.Mutex
	vlNext h5api.VarPointer
	vl     map[h5api.VarPointer][]byte
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine with an empty handle table.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:  slog.Default(),
		next:    firstID,
		objects: make(map[h5api.ID]any),
		vlNext:  1,
		vl:      make(map[h5api.VarPointer][]byte),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ h5api.Runtime = (*Engine)(nil)

// register adds obj to the handle table and returns its new ID.
func (e *Engine) register(obj any) h5api.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.next
	e.next++
	e.objects[id] = obj
	return id
}

// OpenHandles returns the number of IDs that have not been closed.
func (e *Engine) OpenHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.objects)
}

// lookup returns the table entry for id if it has type T.
func lookup[T any](e *Engine, id h5api.ID, what string) (T, error) {
	e.mu.Lock()
	obj, ok := e.objects[id]
	e.mu.Unlock()

	v, isT := obj.(T)
	if !ok || !isT {
		var zero T
		return zero, fmt.Errorf("%w: %d is not an open %s", h5api.ErrInvalidHandle, id, what)
	}
	return v, nil
}

// remove deletes id from the table if it has type T.
func remove[T any](e *Engine, id h5api.ID, what string) (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, ok := e.objects[id]
	v, isT := obj.(T)
	if !ok || !isT {
		var zero T
		return zero, fmt.Errorf("%w: %d is not an open %s", h5api.ErrInvalidHandle, id, what)
	}
	delete(e.objects, id)
	return v, nil
}
