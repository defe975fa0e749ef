package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/scigolib/h5par/comm"
	"github.com/scigolib/h5par/internal/core"
	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/metrics"
	"github.com/scigolib/h5par/internal/utils"
	"github.com/scigolib/h5par/internal/writer"
)

// image is the in-memory state of one open file. Processes of a
// communicator share a single image.
type image struct {
	name   string
	logger *slog.Logger

	mu   sync.Mutex
	root *core.Object
	refs int

	// Outcome of the final flush, read by every process after a
	// collective close.
	flushed  bool
	flushErr error
}

// createImage creates name on disk holding an empty root group.
func createImage(name string, mode h5api.CreateMode, logger *slog.Logger) (*image, error) {
	wmode := writer.ModeTruncate
	if mode == h5api.CreateExclusive {
		wmode = writer.ModeExclusive
	}

	fw, err := writer.NewFileWriter(name, wmode, core.SuperblockV2Size)
	if err != nil {
		return nil, mapFSError(err)
	}
	root := core.NewGroup()
	err = core.WriteImage(fw, root)
	if err == nil {
		err = fw.Validate()
	}
	if err = errors.Join(err, fw.Close()); err != nil {
		return nil, utils.WrapError("initialize "+name, err)
	}
	logger.Debug("file created", slog.String("file", name))
	return &image{name: name, logger: logger, root: root}, nil
}

// loadImage decodes name from disk.
func loadImage(name string, logger *slog.Logger) (*image, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, mapFSError(err)
	}
	defer func() { _ = f.Close() }()

	root, err := core.ReadImage(f)
	if err != nil {
		return nil, mapFormatError(name, err)
	}
	logger.Debug("file opened", slog.String("file", name))
	return &image{name: name, logger: logger, root: root}, nil
}

func (img *image) retain() {
	img.mu.Lock()
	img.refs++
	img.mu.Unlock()
}

// release drops one reference and writes the image to disk when it was
// the last one.
func (img *image) release() error {
	img.mu.Lock()
	defer img.mu.Unlock()

	img.refs--
	if img.refs > 0 {
		return nil
	}
	img.flushErr = img.flushLocked()
	img.flushed = true
	return img.flushErr
}

// closeResult returns the flush outcome if the image has been written.
func (img *image) closeResult() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if !img.flushed {
		return nil
	}
	return img.flushErr
}

func (img *image) flushLocked() error {
	buf := writer.NewBuffer(core.SuperblockV2Size)
	if err := core.WriteImage(buf, img.root); err != nil {
		return utils.WrapError("encode "+img.name, err)
	}
	if err := buf.Validate(); err != nil {
		return utils.WrapError("encode "+img.name, err)
	}

	fw, err := writer.NewFileWriter(img.name, writer.ModeTruncate, 0)
	if err != nil {
		return mapFSError(err)
	}
	_, err = fw.WriteAt(buf.Bytes(), 0)
	if err == nil {
		err = fw.Flush()
	}
	if err = errors.Join(err, fw.Close()); err != nil {
		return utils.WrapError("write "+img.name, err)
	}

	img.logger.Debug("file flushed",
		slog.String("file", img.name),
		slog.Int("bytes", len(buf.Bytes())))
	return nil
}

// update runs fn with the image locked.
func (img *image) update(fn func(root *core.Object) error) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	return fn(img.root)
}

// errBox carries an error through Bcast; a nil interface would be
// indistinguishable from a missing value.
type errBox struct{ err error }

// collective runs fn once for the whole group: on rank 0 only when c is
// set, directly otherwise. Every rank receives rank 0's error.
func collective(c comm.Communicator, op string, fn func() error) error {
	if c == nil {
		return fn()
	}
	metrics.CollectiveOps.WithLabelValues(op).Inc()

	var err error
	if c.Rank() == 0 {
		err = fn()
	}
	return c.Bcast(0, errBox{err}).(errBox).err
}

// mapFSError translates file system errors to runtime sentinels.
func mapFSError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", h5api.ErrNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %w", h5api.ErrExists, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", h5api.ErrPermission, err)
	default:
		return err
	}
}

// mapFormatError translates codec errors to runtime sentinels.
func mapFormatError(name string, err error) error {
	switch {
	case errors.Is(err, core.ErrFormat):
		return fmt.Errorf("%s: %w: %w", name, h5api.ErrNotHDF5, err)
	case errors.Is(err, core.ErrUnsupportedFeature):
		return fmt.Errorf("%s: %w: %w", name, h5api.ErrUnsupported, err)
	default:
		return utils.WrapError("open "+name, err)
	}
}
