package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rzbill/sift/internal/deletequeue"
	"github.com/rzbill/sift/internal/operation"
	"github.com/rzbill/sift/internal/query"
	"github.com/rzbill/sift/internal/segment"
	logpkg "github.com/rzbill/sift/pkg/log"
	"github.com/rzbill/sift/pkg/opstamp"
)

// ErrClosed is returned by operations on a closed Writer.
var ErrClosed = errors.New("indexer: writer closed")

// MetricsHook receives commit statistics.
type MetricsHook interface {
	ObserveCommit(elapsed time.Duration, touched int)
	ObserveDeleted(docs int)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) ObserveCommit(time.Duration, int) {}
func (NoopMetrics) ObserveDeleted(int)               {}

// Options configures a Writer.
type Options struct {
	// MaxDocsPerSegment seals the active segment once it holds this many
	// documents. Zero means segments are only sealed by Commit.
	MaxDocsPerSegment int
	// FirstOpstamp is the first stamp handed out.
	FirstOpstamp opstamp.Opstamp
	Logger       logpkg.Logger
	Metrics      MetricsHook
}

// CommitResult reports what a commit did.
type CommitResult struct {
	Opstamp opstamp.Opstamp
	// Touched holds the segments whose alive bitset changed.
	Touched mapset.Set[segment.ID]
}

// SegmentInfo is a point-in-time view of one segment.
type SegmentInfo struct {
	Meta      segment.Meta
	Committed bool
}

// liveSegment is dirty while its entry differs from the persisted copy. Only
// a successful Save clears it.
type liveSegment struct {
	entry     *segment.Entry
	docs      []operation.AddOperation
	dirty     bool
	committed bool
}

// Writer owns the stamper and is the only producer for its queue.
type Writer struct {
	mu       sync.Mutex
	deleteMu sync.Mutex

	stamper *opstamp.Stamper
	queue   *deletequeue.Queue
	store   *segment.Store

	active   *liveSegment
	segments []*liveSegment
	closed   atomic.Bool

	maxDocs int
	logger  logpkg.Logger
	metrics MetricsHook
}

// NewWriter returns a Writer pushing deletes to queue and persisting segment
// state through store. store may be nil for a purely in-memory session.
func NewWriter(queue *deletequeue.Queue, store *segment.Store, opts Options) *Writer {
	w := &Writer{
		stamper: opstamp.NewStamper(opts.FirstOpstamp),
		queue:   queue,
		store:   store,
		maxDocs: opts.MaxDocsPerSegment,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if w.logger == nil {
		w.logger = logpkg.NewNop()
	}
	if w.metrics == nil {
		w.metrics = NoopMetrics{}
	}
	w.logger = w.logger.WithComponent("indexer")
	return w
}

// AddDocument stamps doc and appends it to the active segment.
func (w *Writer) AddDocument(doc operation.Document) (opstamp.Opstamp, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Load() {
		return 0, ErrClosed
	}
	return w.addLocked(doc), nil
}

func (w *Writer) addLocked(doc operation.Document) opstamp.Opstamp {
	if w.active == nil {
		w.openSegmentLocked()
	}
	stamp := w.stamper.Stamp()
	w.active.docs = append(w.active.docs, operation.AddOperation{Opstamp: stamp, Document: doc})
	if w.maxDocs > 0 && len(w.active.docs) >= w.maxDocs {
		w.sealLocked()
	}
	return stamp
}

// openSegmentLocked starts a new active segment. Its cursor is taken before
// any of its documents is stamped, so every delete that can concern them is
// reachable from it.
func (w *Writer) openSegmentLocked() {
	meta := segment.Meta{ID: segment.NewID(), CreatedAtMs: time.Now().UnixMilli()}
	w.active = &liveSegment{entry: segment.NewEntry(meta, w.queue.Cursor(), nil)}
}

func (w *Writer) sealLocked() {
	if w.active == nil {
		return
	}
	s := w.active
	w.active = nil
	if len(s.docs) == 0 {
		return
	}
	meta := s.entry.Meta()
	meta.MaxDoc = uint32(len(s.docs))
	s.entry.SetMeta(meta)
	s.dirty = true
	w.segments = append(w.segments, s)
	w.logger.Debug("segment sealed",
		logpkg.Operation("seal"),
		logpkg.Str("segment", meta.ID.String()),
		logpkg.Int("docs", len(s.docs)),
	)
}

// Delete stamps and pushes a delete for every document matching target that
// was added before it.
func (w *Writer) Delete(target operation.Predicate) (opstamp.Opstamp, error) {
	w.deleteMu.Lock()
	defer w.deleteMu.Unlock()
	if w.closed.Load() {
		return 0, ErrClosed
	}
	stamp := w.stamper.Stamp()
	w.queue.Push(operation.DeleteOperation{Opstamp: stamp, Target: target})
	return stamp, nil
}

// DeleteTerm deletes documents whose field equals value.
func (w *Writer) DeleteTerm(field string, value any) (opstamp.Opstamp, error) {
	return w.Delete(query.Term(field, value))
}

// DeleteQuery deletes documents matching a CEL expression over doc.
func (w *Writer) DeleteQuery(expr string) (opstamp.Opstamp, error) {
	p, err := query.Compile(expr)
	if err != nil {
		return 0, err
	}
	return w.Delete(p)
}

// Run applies a batch of user operations under contiguous opstamps and
// returns the reserved range.
func (w *Writer) Run(ops ...operation.UserOperation) (opstamp.Range, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deleteMu.Lock()
	defer w.deleteMu.Unlock()
	if w.closed.Load() {
		return opstamp.Range{}, ErrClosed
	}
	if len(ops) == 0 {
		p := w.stamper.Peek()
		return opstamp.Range{Start: p, End: p}, nil
	}
	r := w.stamper.StampRange(uint64(len(ops)))
	stamp := r.Start
	for _, op := range ops {
		switch op.Kind {
		case operation.KindAdd:
			if w.active == nil {
				w.openSegmentLocked()
			}
			w.active.docs = append(w.active.docs, operation.AddOperation{Opstamp: stamp, Document: op.Document})
			if w.maxDocs > 0 && len(w.active.docs) >= w.maxDocs {
				w.sealLocked()
			}
		case operation.KindDelete:
			w.queue.Push(operation.DeleteOperation{Opstamp: stamp, Target: op.Target})
		default:
			w.logger.Warn("skipping unknown operation", logpkg.Str("kind", op.Kind.String()))
		}
		stamp++
	}
	return r, nil
}

// Commit seals the active segment and applies every delete stamped before
// the commit to every segment, persisting what changed.
func (w *Writer) Commit(ctx context.Context) (CommitResult, error) {
	start := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Load() {
		return CommitResult{}, ErrClosed
	}
	w.sealLocked()

	// All deletes stamped before the commit are pushed by the time we hold
	// deleteMu.
	w.deleteMu.Lock()
	commit := w.stamper.Stamp()
	w.deleteMu.Unlock()

	res := CommitResult{Opstamp: commit, Touched: mapset.NewThreadUnsafeSet[segment.ID]()}
	for _, s := range w.segments {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		deleted := advanceDeletes(s, commit)
		if deleted > 0 {
			s.dirty = true
			res.Touched.Add(s.entry.SegmentID())
			w.metrics.ObserveDeleted(deleted)
		}
		if !s.dirty {
			continue
		}
		if w.store != nil {
			if err := w.store.Save(ctx, s.entry.Meta(), s.entry.AliveBitset()); err != nil {
				return res, fmt.Errorf("persist segment %s: %w", s.entry.SegmentID(), err)
			}
		}
		s.dirty = false
		s.committed = true
	}

	elapsed := time.Since(start)
	w.metrics.ObserveCommit(elapsed, res.Touched.Cardinality())
	w.logger.Info("commit",
		logpkg.Operation("commit"),
		logpkg.Uint64("opstamp", uint64(commit)),
		logpkg.Int("segments", len(w.segments)),
		logpkg.Int("touched", res.Touched.Cardinality()),
		logpkg.Dur("elapsed", elapsed),
	)
	return res, nil
}

// advanceDeletes walks the segment's cursor up to target and returns the
// number of documents newly deleted.
func advanceDeletes(s *liveSegment, target opstamp.Opstamp) int {
	e := s.entry
	cur := e.DeleteCursor()
	alive := e.AliveBitset()
	deleted := 0
	for {
		op, ok := cur.Get()
		if !ok || op.Opstamp >= target {
			break
		}
		for i, doc := range s.docs {
			if doc.Opstamp >= op.Opstamp {
				// Documents are in stamp order.
				break
			}
			if !e.IsAlive(uint32(i)) || !op.Target.Matches(doc.Document) {
				continue
			}
			if alive == nil {
				alive = segment.NewAliveBitset(uint32(len(s.docs)))
				e.SetAliveBitset(alive)
			}
			alive.Clear(uint(i))
			deleted++
		}
		cur.Advance()
	}
	meta := e.Meta()
	meta.NumDeleted += uint32(deleted)
	meta.DeleteOpstamp = target
	e.SetMeta(meta)
	return deleted
}

// Segments returns a snapshot of every sealed segment plus the active one.
func (w *Writer) Segments() []SegmentInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]SegmentInfo, 0, len(w.segments)+1)
	for _, s := range w.segments {
		out = append(out, SegmentInfo{Meta: s.entry.Meta(), Committed: s.committed})
	}
	if w.active != nil {
		meta := w.active.entry.Meta()
		meta.MaxDoc = uint32(len(w.active.docs))
		out = append(out, SegmentInfo{Meta: meta})
	}
	return out
}

// IsAlive reports whether the document at doc in segment id survived the last
// commit.
func (w *Writer) IsAlive(id segment.ID, doc uint32) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.segments {
		if s.entry.SegmentID() == id {
			return s.entry.IsAlive(doc), nil
		}
	}
	return false, fmt.Errorf("%w: %s", segment.ErrNotFound, id)
}

// Opstamp returns the next stamp the writer would hand out.
func (w *Writer) Opstamp() opstamp.Opstamp { return w.stamper.Peek() }

// Close discards uncommitted state. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	w.active = nil
	w.segments = nil
	return nil
}
