package h5par

import (
	"log/slog"

	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/handle"
)

// Node is a File, Group or Dataset. Every node carries attributes.
type Node interface {
	Name() string
	Distributed() bool
	base() *node
}

// node is the state shared by every container element.
type node struct {
	name        string
	distributed bool
	rt          h5api.Runtime
	h           *handle.Handle
	logger      *slog.Logger
}

// Name returns the absolute path of the node.
func (n *node) Name() string { return n.name }

// Distributed reports whether the node belongs to a file bound to a
// communicator.
func (n *node) Distributed() bool { return n.distributed }

func (n *node) base() *node { return n }

// child wraps id as an owned handle below n. On failure id is closed.
func (n *node) child(id h5api.ID, kind handle.Kind, release handle.ReleaseFunc) (*handle.Handle, error) {
	h, err := handle.New(id, kind, release, handle.WithParent(n.h), handle.WithLogger(n.logger))
	if err != nil {
		_ = release(id)
		return nil, err
	}
	return h, nil
}

// derive returns the node state for a child called name.
func (n *node) derive(name string, h *handle.Handle) node {
	return node{name: name, distributed: n.distributed, rt: n.rt, h: h, logger: n.logger}
}

// transferList returns the transfer property list for one data transfer
// and a function releasing it. Distributed nodes get a fresh list set to
// collective; others use the runtime default and allocate nothing.
func (n *node) transferList() (h5api.ID, func() error, error) {
	if !n.distributed {
		return h5api.Default, func() error { return nil }, nil
	}
	id, err := n.rt.PropertyCreate(h5api.DatasetXfer)
	if err != nil {
		return h5api.Invalid, nil, err
	}
	h, err := handle.New(id, handle.KindProperty, n.rt.PropertyClose, handle.WithLogger(n.logger))
	if err != nil {
		_ = n.rt.PropertyClose(id)
		return h5api.Invalid, nil, err
	}
	if err := n.rt.PropertySetCollective(id); err != nil {
		_ = h.Release()
		return h5api.Invalid, nil, err
	}
	return id, h.Release, nil
}
