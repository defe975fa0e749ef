package h5par

import (
	"log/slog"

	"github.com/scigolib/h5par/comm"
	"github.com/scigolib/h5par/internal/engine"
	"github.com/scigolib/h5par/internal/h5api"
)

// Option configures Create and Open.
type Option func(*fileConfig)

type fileConfig struct {
	comm    comm.Communicator
	info    comm.Info
	logger  *slog.Logger
	runtime h5api.Runtime
}

// WithCommunicator binds the file to a process group. Every process of
// the group must then issue the same sequence of collective calls: file
// create/open/close, group and dataset create/open, attribute writes and
// every dataset transfer.
func WithCommunicator(c comm.Communicator) Option {
	return func(cfg *fileConfig) {
		cfg.comm = c
	}
}

// WithInfo passes I/O hints along with the communicator.
func WithInfo(info comm.Info) Option {
	return func(cfg *fileConfig) {
		cfg.info = info
	}
}

// WithLogger sets the logger inherited by the file and everything opened
// below it. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *fileConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// withRuntime replaces the container runtime.
func withRuntime(rt h5api.Runtime) Option {
	return func(cfg *fileConfig) {
		cfg.runtime = rt
	}
}

func newFileConfig(opts []Option) *fileConfig {
	cfg := &fileConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.runtime == nil {
		cfg.runtime = engine.New(engine.WithLogger(cfg.logger))
	}
	return cfg
}
