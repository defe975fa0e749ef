package engine

import (
	"fmt"
	"strings"

	"github.com/scigolib/h5par/comm"
	"github.com/scigolib/h5par/internal/core"
	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/metrics"
)

// fileRef is an open file ID.
type fileRef struct {
	img  *image
	comm comm.Communicator // nil for single-process access
}

// objectRef is an open group or dataset ID.
type objectRef struct {
	img  *image
	comm comm.Communicator
	obj  *core.Object
	path string
}

// location resolves a file, group or dataset ID to its object.
func (e *Engine) location(id h5api.ID) (*objectRef, error) {
	e.mu.Lock()
	obj := e.objects[id]
	e.mu.Unlock()

	switch v := obj.(type) {
	case *fileRef:
		return &objectRef{img: v.img, comm: v.comm, obj: v.img.root, path: "/"}, nil
	case *objectRef:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %d is not a file, group or dataset", h5api.ErrInvalidHandle, id)
	}
}

// fileAccess extracts the communicator from a file access property list.
func (e *Engine) fileAccess(fapl h5api.ID) (comm.Communicator, error) {
	if fapl == h5api.Default {
		return nil, nil
	}
	p, err := lookup[*plist](e, fapl, "property list")
	if err != nil {
		return nil, err
	}
	if p.class != h5api.FileAccess {
		return nil, fmt.Errorf("%w: property list %d is not a file access list", h5api.ErrInvalidArgument, fapl)
	}
	return p.comm, nil
}

type imageResult struct {
	img *image
	err error
}

// FileCreate creates name and opens it read/write. With a communicator
// in fapl the call is collective.
func (e *Engine) FileCreate(name string, mode h5api.CreateMode, fapl h5api.ID) (h5api.ID, error) {
	c, err := e.fileAccess(fapl)
	if err != nil {
		return h5api.Invalid, err
	}
	return e.openImage(c, "file_create", func() (*image, error) {
		return createImage(name, mode, e.logger)
	})
}

// FileOpen opens an existing file read/write. With a communicator in fapl
// the call is collective and rank 0 decodes the file for the group.
func (e *Engine) FileOpen(name string, fapl h5api.ID) (h5api.ID, error) {
	c, err := e.fileAccess(fapl)
	if err != nil {
		return h5api.Invalid, err
	}
	return e.openImage(c, "file_open", func() (*image, error) {
		return loadImage(name, e.logger)
	})
}

func (e *Engine) openImage(c comm.Communicator, op string, open func() (*image, error)) (h5api.ID, error) {
	var res imageResult
	if c == nil {
		res.img, res.err = open()
	} else {
		metrics.CollectiveOps.WithLabelValues(op).Inc()
		if c.Rank() == 0 {
			res.img, res.err = open()
		}
		res = c.Bcast(0, res).(imageResult)
	}
	if res.err != nil {
		return h5api.Invalid, res.err
	}

	res.img.retain()
	return e.register(&fileRef{img: res.img, comm: c}), nil
}

// FileClose closes a file ID. The image is written to disk once no ID of
// any process refers to it; objects left open keep it alive. With a
// communicator the call is collective and every process receives the
// outcome of the write.
func (e *Engine) FileClose(file h5api.ID) error {
	f, err := remove[*fileRef](e, file, "file")
	if err != nil {
		return err
	}
	if f.comm == nil {
		return f.img.release()
	}

	metrics.CollectiveOps.WithLabelValues("file_close").Inc()
	f.comm.Barrier()
	_ = f.img.release()
	f.comm.Barrier()
	return f.img.closeResult()
}

// resolve walks a slash-separated path relative to loc.
func resolve(loc *core.Object, path string) (*core.Object, error) {
	obj := loc
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." {
			continue
		}
		if obj.Kind != core.KindGroup {
			return nil, fmt.Errorf("%w: %q: %q is not a group", h5api.ErrNotFound, path, part)
		}
		next := obj.Child(part)
		if next == nil {
			return nil, fmt.Errorf("%w: %q", h5api.ErrNotFound, path)
		}
		obj = next
	}
	return obj, nil
}

// splitPath separates the parent path from the final component.
func splitPath(path string) (string, string, error) {
	path = strings.TrimRight(path, "/")
	i := strings.LastIndex(path, "/")
	parent, base := path[:i+1], path[i+1:]
	if base == "" || base == "." {
		return "", "", fmt.Errorf("%w: invalid object name %q", h5api.ErrInvalidArgument, path)
	}
	return parent, base, nil
}

func joinPath(parent, name string) string {
	if strings.HasSuffix(parent, "/") {
		return parent + name
	}
	return parent + "/" + name
}

// link creates a new object below loc under name. Collective when the
// file has a communicator.
func (e *Engine) link(locID h5api.ID, name, op string, newObject func() (*core.Object, error)) (*objectRef, error) {
	loc, err := e.location(locID)
	if err != nil {
		return nil, err
	}
	parentPath, base, err := splitPath(name)
	if err != nil {
		return nil, err
	}

	err = collective(loc.comm, op, func() error {
		return loc.img.update(func(*core.Object) error {
			parent, err := resolve(loc.obj, parentPath)
			if err != nil {
				return err
			}
			if parent.Kind != core.KindGroup {
				return fmt.Errorf("%w: %q is not a group", h5api.ErrInvalidArgument, parentPath)
			}
			if parent.Child(base) != nil {
				return fmt.Errorf("%w: %q", h5api.ErrExists, name)
			}
			obj, err := newObject()
			if err != nil {
				return err
			}
			return parent.AddLink(base, obj)
		})
	})
	if err != nil {
		return nil, err
	}
	return e.open(loc, name, -1)
}

// open looks name up below loc. kind < 0 accepts any object kind.
func (e *Engine) open(loc *objectRef, name string, kind core.ObjectKind) (*objectRef, error) {
	var obj *core.Object
	err := loc.img.update(func(*core.Object) error {
		var err error
		obj, err = resolve(loc.obj, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	if kind >= 0 && obj.Kind != kind {
		return nil, fmt.Errorf("%w: %q is a %s, not a %s", h5api.ErrTypeMismatch, name, obj.Kind, kind)
	}

	loc.img.retain()
	return &objectRef{img: loc.img, comm: loc.comm, obj: obj, path: joinPath(loc.path, strings.Trim(name, "/"))}, nil
}

// openCollective opens name below locID; with a communicator every rank
// receives rank 0's lookup outcome.
func (e *Engine) openCollective(locID h5api.ID, name, op string, kind core.ObjectKind) (h5api.ID, error) {
	loc, err := e.location(locID)
	if err != nil {
		return h5api.Invalid, err
	}

	var ref *objectRef
	err = collective(loc.comm, op, func() error {
		var err error
		ref, err = e.open(loc, name, kind)
		return err
	})
	if err != nil {
		return h5api.Invalid, err
	}
	if ref == nil {
		// Every rank but 0 resolves after rank 0 reported success.
		if ref, err = e.open(loc, name, kind); err != nil {
			return h5api.Invalid, err
		}
	}
	return e.register(ref), nil
}

func (e *Engine) closeObject(id h5api.ID, kind core.ObjectKind) error {
	e.mu.Lock()
	ref, ok := e.objects[id].(*objectRef)
	if !ok || ref.obj.Kind != kind {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d is not an open %s", h5api.ErrInvalidHandle, id, kind)
	}
	delete(e.objects, id)
	e.mu.Unlock()
	return ref.img.release()
}

// GroupCreate creates a group.
func (e *Engine) GroupCreate(loc h5api.ID, name string) (h5api.ID, error) {
	ref, err := e.link(loc, name, "group_create", func() (*core.Object, error) {
		return core.NewGroup(), nil
	})
	if err != nil {
		return h5api.Invalid, err
	}
	return e.register(ref), nil
}

// GroupOpen opens an existing group.
func (e *Engine) GroupOpen(loc h5api.ID, name string) (h5api.ID, error) {
	return e.openCollective(loc, name, "group_open", core.KindGroup)
}

// GroupClose closes a group ID.
func (e *Engine) GroupClose(group h5api.ID) error {
	return e.closeObject(group, core.KindGroup)
}

// LinkNames lists the links of a file or group in creation order.
func (e *Engine) LinkNames(loc h5api.ID) ([]string, error) {
	ref, err := e.location(loc)
	if err != nil {
		return nil, err
	}
	if ref.obj.Kind != core.KindGroup {
		return nil, fmt.Errorf("%w: %s is not a group", h5api.ErrInvalidArgument, ref.path)
	}

	var names []string
	_ = ref.img.update(func(*core.Object) error {
		for _, l := range ref.obj.Links {
			names = append(names, l.Name)
		}
		return nil
	})
	return names, nil
}
