package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/storyhaven/ripple/internal/broker"
	cfgpkg "github.com/storyhaven/ripple/internal/config"
	realtimesvc "github.com/storyhaven/ripple/internal/services/realtime"
	pebblestore "github.com/storyhaven/ripple/internal/storage/pebble"
	"github.com/storyhaven/ripple/internal/story"
	logpkg "github.com/storyhaven/ripple/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	// FsyncInterval bounds WAL group-commit when Fsync is FsyncModeInterval.
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
}

// Runtime wires storage, config, the broker, and the realtime facade for a
// single-node instance.
type Runtime struct {
	db       *pebblestore.DB
	config   cfgpkg.Config
	broker   *broker.Broker
	stories  *story.Store
	realtime *realtimesvc.Service
	logger   logpkg.Logger
}

// Open initializes storage and the realtime facade.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("runtime"))
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
	})
	if err != nil {
		return nil, err
	}
	br := broker.New(logger.With(logpkg.Component("broker")))
	stories := story.NewStore(db)
	rt := &Runtime{
		db:      db,
		config:  opts.Config,
		broker:  br,
		stories: stories,
		logger:  logger,
	}
	rt.realtime = realtimesvc.New(realtimesvc.Options{
		Config:  opts.Config,
		Broker:  br,
		Stories: stories,
		Logger:  logger,
	})
	return rt, nil
}

// Close flushes pending drafts and closes underlying resources.
func (r *Runtime) Close() error {
	if r.realtime != nil {
		r.realtime.Close()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple storage health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Broker returns the pub/sub fanout.
func (r *Runtime) Broker() *broker.Broker { return r.broker }

// Stories returns the story store.
func (r *Runtime) Stories() *story.Store { return r.stories }

// Realtime returns the realtime service facade.
func (r *Runtime) Realtime() *realtimesvc.Service { return r.realtime }
