package deletequeue

import (
	"sync"
	"time"
	"weak"

	"github.com/rzbill/sift/internal/operation"
	logpkg "github.com/rzbill/sift/pkg/log"
)

// Queue is the producer-facing side of the delete log.
type Queue struct {
	// mu guards pending, latest and notifyCh.
	mu       sync.RWMutex
	pending  []operation.DeleteOperation
	latest   weak.Pointer[block]
	notifyCh chan struct{}

	metrics MetricsHook
	logger  logpkg.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for flush diagnostics.
func WithLogger(l logpkg.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithMetrics installs a metrics hook.
func WithMetrics(m MetricsHook) Option {
	return func(q *Queue) {
		if m != nil {
			q.metrics = m
		}
	}
}

// New returns an empty delete queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		notifyCh: make(chan struct{}),
		metrics:  NoopMetrics{},
		logger:   logpkg.NewNop(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Push appends a delete operation. The operation becomes visible to cursors
// the next time one of them reaches the end of the materialized log.
func (q *Queue) Push(op operation.DeleteOperation) {
	q.mu.Lock()
	q.pending = append(q.pending, op)
	n := len(q.pending)
	close(q.notifyCh)
	q.notifyCh = make(chan struct{})
	q.mu.Unlock()
	q.metrics.ObservePush(n)
}

// Pending returns the number of pushed operations not yet materialized into a block.
func (q *Queue) Pending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

// Cursor returns a new cursor positioned after every materialized operation.
// Operations still pending at this point, and all later ones, will be
// observed by the cursor. Consumers that need an exact boundary compare
// opstamps.
func (q *Queue) Cursor() *Cursor {
	b := q.lastBlock()
	q.metrics.ObserveCursor()
	return &Cursor{block: b, pos: len(b.ops)}
}

func (q *Queue) lastBlock() *block {
	q.mu.RLock()
	b := q.latest.Value()
	q.mu.RUnlock()
	if b != nil {
		return b
	}

	// Re-check under the write lock: another caller may have published a
	// block between the two critical sections.
	q.mu.Lock()
	defer q.mu.Unlock()
	if b := q.latest.Value(); b != nil {
		return b
	}
	b = newBlock(nil, q)
	q.latest = weak.Make(b)
	return b
}

// flush materializes the pending buffer into a new block and publishes it as
// the latest one. Returns nil when nothing is pending.
func (q *Queue) flush() *block {
	start := time.Now()
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return nil
	}
	ops := q.pending
	q.pending = nil
	b := newBlock(ops, q)
	q.latest = weak.Make(b)
	q.mu.Unlock()

	q.metrics.ObserveFlush(len(ops), time.Since(start))
	q.logger.Debug("delete block materialized",
		logpkg.Int("ops", len(ops)),
		logpkg.Uint64("first_opstamp", uint64(ops[0].Opstamp)),
		logpkg.Uint64("last_opstamp", uint64(ops[len(ops)-1].Opstamp)),
	)
	return b
}
