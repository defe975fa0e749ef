// Package handle wraps runtime IDs in reference-counted scoped handles.
//
// A handle runs its release function exactly once, when the last reference
// is dropped. A handle created with a parent holds a reference on it, so a
// parent is always released after all of its children.
package handle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/metrics"
)

// Kind names the runtime object class behind a handle.
type Kind string

// Handle kinds.
const (
	KindFile      Kind = "file"
	KindGroup     Kind = "group"
	KindDataset   Kind = "dataset"
	KindDataspace Kind = "dataspace"
	KindAttribute Kind = "attribute"
	KindDatatype  Kind = "datatype"
	KindProperty  Kind = "property"
)

// ReleaseFunc closes a runtime object.
type ReleaseFunc func(id h5api.ID) error

// ErrReleased is returned by Retain on a handle whose release already ran.
var ErrReleased = errors.New("handle already released")

// Handle is a scoped runtime ID.
type Handle struct {
	id      h5api.ID
	kind    Kind
	release ReleaseFunc
	parent  *Handle
	logger  *slog.Logger

	mu       sync.Mutex
	refs     int
	released bool
}

// Option configures a handle at construction.
type Option func(*Handle)

// WithParent makes the new handle hold a reference on parent.
func WithParent(parent *Handle) Option {
	return func(h *Handle) {
		h.parent = parent
	}
}

// WithLogger sets the logger used to report release failures.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New wraps an owned ID. The returned handle has one reference.
func New(id h5api.ID, kind Kind, release ReleaseFunc, opts ...Option) (*Handle, error) {
	h := &Handle{
		id:      id,
		kind:    kind,
		release: release,
		logger:  slog.Default(),
		refs:    1,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.parent != nil {
		if err := h.parent.Retain(); err != nil {
			return nil, fmt.Errorf("%s handle %d: parent: %w", kind, id, err)
		}
	}
	metrics.HandlesOpen.WithLabelValues(string(kind)).Inc()
	return h, nil
}

// Static wraps a runtime-owned ID. Releasing it never calls into the
// runtime.
func Static(id h5api.ID, kind Kind) *Handle {
	return &Handle{id: id, kind: kind, refs: 1}
}

// ID returns the wrapped runtime ID.
func (h *Handle) ID() h5api.ID {
	return h.id
}

// Kind returns the handle kind.
func (h *Handle) Kind() Kind {
	return h.kind
}

// Owned reports whether releasing h closes a runtime object.
func (h *Handle) Owned() bool {
	return h.release != nil
}

// Retain adds a reference.
func (h *Handle) Retain() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.refs++
	return nil
}

// Release drops a reference. The last release closes the runtime object
// and then releases the parent. Releasing an already released handle is a
// no-op.
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.refs--
	if h.refs > 0 {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	h.mu.Unlock()

	var err error
	if h.release != nil {
		err = h.release(h.id)
		metrics.ObserveRelease(string(h.kind), err)
		if err != nil {
			h.logger.Warn("failed to release handle",
				slog.String("kind", string(h.kind)),
				slog.Int64("id", int64(h.id)),
				slog.Any("error", err))
			err = fmt.Errorf("release %s handle %d: %w", h.kind, h.id, err)
		}
	}

	if h.parent != nil {
		err = errors.Join(err, h.parent.Release())
	}
	return err
}

// Released reports whether the release function has run.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
