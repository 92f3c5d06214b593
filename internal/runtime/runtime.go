package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	cfgpkg "github.com/rzbill/sift/internal/config"
	"github.com/rzbill/sift/internal/deletequeue"
	"github.com/rzbill/sift/internal/indexer"
	"github.com/rzbill/sift/internal/metrics"
	"github.com/rzbill/sift/internal/segment"
	pebblestore "github.com/rzbill/sift/internal/storage/pebble"
	logpkg "github.com/rzbill/sift/pkg/log"
)

var healthKey = []byte("sys/health")

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// Registry receives the Prometheus collectors. Nil creates a private one.
	Registry *prometheus.Registry
}

// Runtime wires storage, metrics, the delete queue and the index writer for
// a single-node instance.
type Runtime struct {
	db      *pebblestore.DB
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Metrics
	queue   *deletequeue.Queue
	store   *segment.Store
	writer  *indexer.Writer
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(&cfg.Log)
		if err != nil {
			return nil, err
		}
		logger = l
	}
	fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return nil, err
	}

	m := metrics.New(opts.Registry)
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       cfg.DataDir,
		Fsync:         fsync,
		FsyncInterval: time.Duration(cfg.FsyncIntervalMs) * time.Millisecond,
		Metrics:       m,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage at %s: %w", cfg.DataDir, err)
	}

	queue := deletequeue.New(
		deletequeue.WithLogger(logger.WithComponent("deletequeue")),
		deletequeue.WithMetrics(m),
	)
	store := segment.NewStore(db)
	writer := indexer.NewWriter(queue, store, indexer.Options{
		MaxDocsPerSegment: cfg.Indexer.MaxDocsPerSegment,
		Logger:            logger,
		Metrics:           m,
	})

	logger.Info("runtime opened",
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("fsync", cfg.Fsync),
		logpkg.Bool("metrics_endpoint", cfg.Metrics.Addr != ""),
	)
	return &Runtime{
		db:      db,
		config:  cfg,
		logger:  logger,
		metrics: m,
		queue:   queue,
		store:   store,
		writer:  writer,
	}, nil
}

// Close closes the writer and the underlying storage.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	werr := r.writer.Close()
	derr := r.db.Close()
	r.db = nil
	return errors.Join(werr, derr)
}

// CheckHealth performs a simple round trip against storage.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := r.db.Set(ctx, healthKey, []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
		return err
	}
	_, err := r.db.Get(healthKey)
	return err
}

// Writer returns the index writer.
func (r *Runtime) Writer() *indexer.Writer { return r.writer }

// Queue returns the delete queue shared by all segments.
func (r *Runtime) Queue() *deletequeue.Queue { return r.queue }

// Segments returns the persisted segment store.
func (r *Runtime) Segments() *segment.Store { return r.store }

// Metrics returns the Prometheus collectors.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Logger returns the runtime logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
