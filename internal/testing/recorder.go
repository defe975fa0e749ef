// Package testing provides test utilities for code built on the container
// runtime.
package testing

import (
	"sync"

	"github.com/scigolib/h5par/internal/h5api"
)

// Call is one recorded runtime call.
type Call struct {
	Op string
	ID h5api.ID
}

// Recorder wraps a runtime and records creating, closing and transfer
// calls. Failures can be injected per operation name.
type Recorder struct {
	h5api.Runtime

	mu    sync.Mutex
	calls []Call
	fail  map[string]error
}

// NewRecorder wraps rt.
func NewRecorder(rt h5api.Runtime) *Recorder {
	return &Recorder{Runtime: rt, fail: make(map[string]error)}
}

// FailNext makes the next call of op return err without reaching the
// wrapped runtime.
func (r *Recorder) FailNext(op string, err error) {
	r.mu.Lock()
	r.fail[op] = err
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns the recorded operation names in call order.
func (r *Recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]string, len(r.calls))
	for i, c := range r.calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was called.
func (r *Recorder) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Closed returns the IDs passed to close calls, in order.
func (r *Recorder) Closed() []Call {
	var out []Call
	for _, c := range r.Calls() {
		switch c.Op {
		case "FileClose", "GroupClose", "DatasetClose", "DataspaceClose",
			"AttributeClose", "TypeClose", "PropertyClose":
			out = append(out, c)
		}
	}
	return out
}

// record logs op and returns an injected failure, if any.
func (r *Recorder) record(op string, id h5api.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: op, ID: id})
	if err, ok := r.fail[op]; ok {
		delete(r.fail, op)
		return err
	}
	return nil
}

// created records a successful creating call.
func (r *Recorder) created(op string, id h5api.ID, err error) (h5api.ID, error) {
	if err != nil {
		return id, err
	}
	r.mu.Lock()
	r.calls = append(r.calls, Call{Op: op, ID: id})
	r.mu.Unlock()
	return id, nil
}

func (r *Recorder) FileClose(id h5api.ID) error {
	if err := r.record("FileClose", id); err != nil {
		return err
	}
	return r.Runtime.FileClose(id)
}

func (r *Recorder) GroupClose(id h5api.ID) error {
	if err := r.record("GroupClose", id); err != nil {
		return err
	}
	return r.Runtime.GroupClose(id)
}

func (r *Recorder) DatasetClose(id h5api.ID) error {
	if err := r.record("DatasetClose", id); err != nil {
		return err
	}
	return r.Runtime.DatasetClose(id)
}

func (r *Recorder) DataspaceClose(id h5api.ID) error {
	if err := r.record("DataspaceClose", id); err != nil {
		return err
	}
	return r.Runtime.DataspaceClose(id)
}

func (r *Recorder) AttributeClose(id h5api.ID) error {
	if err := r.record("AttributeClose", id); err != nil {
		return err
	}
	return r.Runtime.AttributeClose(id)
}

func (r *Recorder) TypeClose(id h5api.ID) error {
	if err := r.record("TypeClose", id); err != nil {
		return err
	}
	return r.Runtime.TypeClose(id)
}

func (r *Recorder) PropertyClose(id h5api.ID) error {
	if err := r.record("PropertyClose", id); err != nil {
		return err
	}
	return r.Runtime.PropertyClose(id)
}

func (r *Recorder) PropertyCreate(class h5api.PropertyClass) (h5api.ID, error) {
	if err := r.record("PropertyCreate", h5api.Invalid); err != nil {
		return h5api.Invalid, err
	}
	return r.Runtime.PropertyCreate(class)
}

func (r *Recorder) PropertySetCollective(dxpl h5api.ID) error {
	if err := r.record("PropertySetCollective", dxpl); err != nil {
		return err
	}
	return r.Runtime.PropertySetCollective(dxpl)
}

func (r *Recorder) DatasetCreate(loc h5api.ID, name string, dtype, space h5api.ID) (h5api.ID, error) {
	if err := r.record("DatasetCreate", loc); err != nil {
		return h5api.Invalid, err
	}
	id, err := r.Runtime.DatasetCreate(loc, name, dtype, space)
	return r.created("DatasetCreated", id, err)
}

func (r *Recorder) DatasetSpace(dataset h5api.ID) (h5api.ID, error) {
	if err := r.record("DatasetSpace", dataset); err != nil {
		return h5api.Invalid, err
	}
	id, err := r.Runtime.DatasetSpace(dataset)
	return r.created("DataspaceCreated", id, err)
}

func (r *Recorder) DataspaceCreateSimple(dims []uint64) (h5api.ID, error) {
	if err := r.record("DataspaceCreateSimple", h5api.Invalid); err != nil {
		return h5api.Invalid, err
	}
	id, err := r.Runtime.DataspaceCreateSimple(dims)
	return r.created("DataspaceCreated", id, err)
}

func (r *Recorder) DataspaceSelectNone(space h5api.ID) error {
	if err := r.record("DataspaceSelectNone", space); err != nil {
		return err
	}
	return r.Runtime.DataspaceSelectNone(space)
}

func (r *Recorder) DataspaceSelectHyperslab(space h5api.ID, start, stride, count, block []uint64) error {
	if err := r.record("DataspaceSelectHyperslab", space); err != nil {
		return err
	}
	return r.Runtime.DataspaceSelectHyperslab(space, start, stride, count, block)
}

func (r *Recorder) DataspaceSelectElements(space h5api.ID, numPoints int, coords []uint64) error {
	if err := r.record("DataspaceSelectElements", space); err != nil {
		return err
	}
	return r.Runtime.DataspaceSelectElements(space, numPoints, coords)
}

func (r *Recorder) DatasetWrite(dataset, memType, memSpace, fileSpace, dxpl h5api.ID, buf []byte) error {
	if err := r.record("DatasetWrite", dataset); err != nil {
		return err
	}
	return r.Runtime.DatasetWrite(dataset, memType, memSpace, fileSpace, dxpl, buf)
}

func (r *Recorder) DatasetRead(dataset, memType, memSpace, fileSpace, dxpl h5api.ID, buf []byte) error {
	if err := r.record("DatasetRead", dataset); err != nil {
		return err
	}
	return r.Runtime.DatasetRead(dataset, memType, memSpace, fileSpace, dxpl, buf)
}

func (r *Recorder) TypeCreateCompound(size uint64) (h5api.ID, error) {
	if err := r.record("TypeCreateCompound", h5api.Invalid); err != nil {
		return h5api.Invalid, err
	}
	id, err := r.Runtime.TypeCreateCompound(size)
	return r.created("TypeCreated", id, err)
}

func (r *Recorder) TypeInsert(dtype h5api.ID, name string, offset uint64, member h5api.ID) error {
	if err := r.record("TypeInsert", dtype); err != nil {
		return err
	}
	return r.Runtime.TypeInsert(dtype, name, offset, member)
}

func (r *Recorder) AttributeWrite(attr, memType h5api.ID, buf []byte) error {
	if err := r.record("AttributeWrite", attr); err != nil {
		return err
	}
	return r.Runtime.AttributeWrite(attr, memType, buf)
}
