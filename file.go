// Package h5par is a typed, resource-safe layer over HDF5 container
// files, with optional collective I/O across a process group.
//
// A File holds Groups, which hold Groups and typed Datasets; every node
// carries attributes. Runtime handles are reference counted: children keep
// their parent open, and every handle is closed exactly once, after all of
// its children.
//
// Files bound to a communicator (WithCommunicator) are collective: every
// process of the group must issue the same sequence of metadata calls and
// data transfers. A process with nothing to contribute to a transfer calls
// Dataset.WriteNone instead of skipping it; an empty selection does so
// automatically.
package h5par

import (
	"errors"
	"log/slog"

	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/handle"
	"github.com/scigolib/h5par/internal/utils"
)

// CreateMode specifies how Create treats an existing file.
type CreateMode int

const (
	// CreateTruncate overwrites an existing file.
	CreateTruncate CreateMode = iota

	// CreateExclusive fails with ErrExists if the file exists.
	CreateExclusive
)

// File is the root group of an open container file.
type File struct {
	Group
	path string
}

// Create creates a container file holding an empty root group.
//
// Parameters:
//   - name: path of the file to create
//   - mode: CreateTruncate or CreateExclusive
//   - opts: WithCommunicator, WithInfo, WithLogger
//
// Example:
//
//	f, err := h5par.Create("run.h5", h5par.CreateTruncate)
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
func Create(name string, mode CreateMode, opts ...Option) (*File, error) {
	var rmode h5api.CreateMode
	switch mode {
	case CreateTruncate:
		rmode = h5api.CreateTruncate
	case CreateExclusive:
		rmode = h5api.CreateExclusive
	default:
		return nil, invariantf("create", name, "invalid create mode %d", mode)
	}

	cfg := newFileConfig(opts)
	return openFile(cfg, name, "create", func(fapl h5api.ID) (h5api.ID, error) {
		return cfg.runtime.FileCreate(name, rmode, fapl)
	})
}

// Open opens an existing container file for reading and writing.
func Open(name string, opts ...Option) (*File, error) {
	cfg := newFileConfig(opts)
	return openFile(cfg, name, "open", func(fapl h5api.ID) (h5api.ID, error) {
		return cfg.runtime.FileOpen(name, fapl)
	})
}

// openFile runs open with a file access list carrying the communicator,
// if any. The list is released as soon as open returns.
func openFile(cfg *fileConfig, name, op string, open func(fapl h5api.ID) (h5api.ID, error)) (*File, error) {
	rt := cfg.runtime
	fapl := h5api.Default
	releaseFapl := func() error { return nil }

	if cfg.comm != nil {
		id, err := rt.PropertyCreate(h5api.FileAccess)
		if err != nil {
			return nil, utils.WrapError(op+" "+name+": file access properties", err)
		}
		p, err := handle.New(id, handle.KindProperty, rt.PropertyClose, handle.WithLogger(cfg.logger))
		if err != nil {
			return nil, errors.Join(err, rt.PropertyClose(id))
		}
		if err := rt.PropertySetMPIO(id, cfg.comm, cfg.info); err != nil {
			return nil, errors.Join(utils.WrapError(op+" "+name+": file access properties", err), p.Release())
		}
		fapl, releaseFapl = id, p.Release
	}

	fid, err := open(fapl)
	// Release failures are logged and counted by the handle.
	_ = releaseFapl()
	if err != nil {
		return nil, utils.WrapError(op+" "+name, err)
	}

	h, err := handle.New(fid, handle.KindFile, rt.FileClose, handle.WithLogger(cfg.logger))
	if err != nil {
		return nil, errors.Join(err, rt.FileClose(fid))
	}

	cfg.logger.Debug("file "+op,
		slog.String("file", name),
		slog.Bool("distributed", cfg.comm != nil))

	return &File{
		Group: Group{node: node{
			name:        "/",
			distributed: cfg.comm != nil,
			rt:          rt,
			h:           h,
			logger:      cfg.logger,
		}},
		path: name,
	}, nil
}

// Path returns the file system path the file was opened with.
func (f *File) Path() string {
	return f.path
}

// Close releases the file. The file is written and closed once every
// group and dataset opened from it is closed too. On a distributed file
// Close is collective.
func (f *File) Close() error {
	return f.h.Release()
}
