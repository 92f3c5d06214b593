package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rzbill/sift/internal/deletequeue"
	"github.com/rzbill/sift/internal/operation"
	"github.com/rzbill/sift/internal/query"
	"github.com/rzbill/sift/internal/segment"
	pebblestore "github.com/rzbill/sift/internal/storage/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWriter(t *testing.T, opts Options) (*Writer, *segment.Store) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := segment.NewStore(db)
	w := NewWriter(deletequeue.New(), store, opts)
	t.Cleanup(func() { _ = w.Close() })
	return w, store
}

func doc(kv ...any) operation.Document {
	d := operation.Document{}
	for i := 0; i+1 < len(kv); i += 2 {
		d[kv[i].(string)] = kv[i+1]
	}
	return d
}

func aliveCount(t *testing.T, w *Writer, id segment.ID, maxDoc int) int {
	t.Helper()
	n := 0
	for i := 0; i < maxDoc; i++ {
		ok, err := w.IsAlive(id, uint32(i))
		require.NoError(t, err)
		if ok {
			n++
		}
	}
	return n
}

func TestDeleteOnlyAffectsEarlierDocuments(t *testing.T) {
	w, _ := newWriter(t, Options{})
	ctx := context.Background()

	_, err := w.AddDocument(doc("lang", "go", "n", 1))
	require.NoError(t, err)
	_, err = w.AddDocument(doc("lang", "rust", "n", 2))
	require.NoError(t, err)
	_, err = w.DeleteTerm("lang", "go")
	require.NoError(t, err)
	_, err = w.AddDocument(doc("lang", "go", "n", 3))
	require.NoError(t, err)

	res, err := w.Commit(ctx)
	require.NoError(t, err)

	segs := w.Segments()
	require.Len(t, segs, 1)
	id := segs[0].Meta.ID
	assert.True(t, res.Touched.Contains(id))
	assert.EqualValues(t, 3, segs[0].Meta.MaxDoc)
	assert.EqualValues(t, 1, segs[0].Meta.NumDeleted)
	assert.Equal(t, res.Opstamp, segs[0].Meta.DeleteOpstamp)

	alive, err := w.IsAlive(id, 0)
	require.NoError(t, err)
	assert.False(t, alive)
	alive, err = w.IsAlive(id, 2)
	require.NoError(t, err)
	assert.True(t, alive, "document added after the delete must survive")
}

func TestDeleteBeforeSegmentOpened(t *testing.T) {
	w, _ := newWriter(t, Options{})
	ctx := context.Background()

	_, err := w.DeleteQuery(`doc.n > 0`)
	require.NoError(t, err)
	_, err = w.Commit(ctx)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := w.AddDocument(doc("n", i))
		require.NoError(t, err)
	}
	res, err := w.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Touched.Cardinality())

	segs := w.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, 3, aliveCount(t, w, segs[0].Meta.ID, 3))
}

func TestDeletesSpanSegmentsAndCommits(t *testing.T) {
	w, _ := newWriter(t, Options{MaxDocsPerSegment: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := w.AddDocument(doc("n", i))
		require.NoError(t, err)
	}
	_, err := w.DeleteQuery(`doc.n % 2 == 0`)
	require.NoError(t, err)

	res, err := w.Commit(ctx)
	require.NoError(t, err)
	segs := w.Segments()
	require.Len(t, segs, 3)
	assert.Equal(t, 3, res.Touched.Cardinality())

	var deleted uint32
	for _, s := range segs {
		deleted += s.Meta.NumDeleted
		assert.True(t, s.Committed)
	}
	assert.EqualValues(t, 3, deleted)

	// A second commit only replays deletes pushed since the first.
	_, err = w.DeleteTerm("n", 1)
	require.NoError(t, err)
	res, err = w.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Touched.Cardinality())
	assert.True(t, res.Touched.Contains(segs[0].Meta.ID))
}

func TestCommitPersistsSegments(t *testing.T) {
	w, store := newWriter(t, Options{})
	ctx := context.Background()

	for _, lang := range []string{"go", "go", "zig"} {
		_, err := w.AddDocument(doc("lang", lang))
		require.NoError(t, err)
	}
	_, err := w.DeleteTerm("lang", "zig")
	require.NoError(t, err)
	_, err = w.Commit(ctx)
	require.NoError(t, err)

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.EqualValues(t, 1, metas[0].NumDeleted)

	alive, err := store.LoadAlive(metas[0].ID)
	require.NoError(t, err)
	require.NotNil(t, alive)
	assert.True(t, alive.Test(0))
	assert.False(t, alive.Test(2))
}

func TestRunStampsContiguously(t *testing.T) {
	w, _ := newWriter(t, Options{FirstOpstamp: 10})
	r, err := w.Run(
		operation.Add(doc("k", "a")),
		operation.Add(doc("k", "b")),
		operation.Delete(query.Term("k", "a")),
	)
	require.NoError(t, err)
	assert.EqualValues(t, 10, r.Start)
	assert.EqualValues(t, 13, r.End)
	assert.Equal(t, 3, r.Len())

	res, err := w.Commit(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 13, res.Opstamp)
	segs := w.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, 1, aliveCount(t, w, segs[0].Meta.ID, 2))
}

func TestDeleteQueryRejectsBadExpression(t *testing.T) {
	w, _ := newWriter(t, Options{})
	_, err := w.DeleteQuery(`doc.n +`)
	assert.Error(t, err)
	_, err = w.DeleteQuery(`"str"`)
	assert.ErrorIs(t, err, query.ErrNotBoolean)
}

func TestClosedWriter(t *testing.T) {
	w, _ := newWriter(t, Options{})
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err := w.AddDocument(doc())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = w.DeleteTerm("a", 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = w.Commit(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentProducers(t *testing.T) {
	w, _ := newWriter(t, Options{MaxDocsPerSegment: 16})
	ctx := context.Background()

	const producers, perProducer = 4, 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, err := w.AddDocument(doc("producer", fmt.Sprint(p), "i", i))
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()

	_, err := w.DeleteTerm("producer", "0")
	require.NoError(t, err)

	var wg2 sync.WaitGroup
	wg2.Add(2)
	go func() {
		defer wg2.Done()
		_, err := w.DeleteTerm("producer", "1")
		assert.NoError(t, err)
	}()
	go func() {
		defer wg2.Done()
		_, err := w.Commit(ctx)
		assert.NoError(t, err)
	}()
	wg2.Wait()

	_, err = w.Commit(ctx)
	require.NoError(t, err)

	var maxDoc, deleted uint32
	for _, s := range w.Segments() {
		maxDoc += s.Meta.MaxDoc
		deleted += s.Meta.NumDeleted
	}
	assert.EqualValues(t, producers*perProducer, maxDoc)
	assert.EqualValues(t, 2*perProducer, deleted)
}

func TestRunDeletesOnlyOpensNoSegment(t *testing.T) {
	w, store := newWriter(t, Options{})
	_, err := w.Run(operation.Delete(query.Term("k", "a")))
	require.NoError(t, err)
	_, err = w.Commit(context.Background())
	require.NoError(t, err)

	assert.Empty(t, w.Segments())
	metas, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, metas)
}

// cancelAfterFirstCheck reports no error on its first Err call and
// context.Canceled afterwards, so a commit gets past its own check and then
// fails inside the store.
type cancelAfterFirstCheck struct {
	context.Context
	calls atomic.Int32
}

func (c *cancelAfterFirstCheck) Err() error {
	if c.calls.Add(1) == 1 {
		return nil
	}
	return context.Canceled
}

func TestFailedSaveIsRetriedByNextCommit(t *testing.T) {
	w, store := newWriter(t, Options{})
	ctx := context.Background()

	_, err := w.AddDocument(doc("id", 1))
	require.NoError(t, err)
	_, err = w.Commit(ctx)
	require.NoError(t, err)

	_, err = w.DeleteTerm("id", 1)
	require.NoError(t, err)
	_, err = w.Commit(&cancelAfterFirstCheck{Context: ctx})
	require.ErrorIs(t, err, context.Canceled)

	segs := w.Segments()
	require.Len(t, segs, 1)
	id := segs[0].Meta.ID
	persisted, err := store.LoadMeta(id)
	require.NoError(t, err)
	assert.EqualValues(t, 0, persisted.NumDeleted, "failed save must not reach the store")

	_, err = w.Commit(ctx)
	require.NoError(t, err)

	persisted, err = store.LoadMeta(id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, persisted.NumDeleted)
	alive, err := store.LoadAlive(id)
	require.NoError(t, err)
	require.NotNil(t, alive)
	assert.False(t, alive.Test(0))
}

func TestRunHonorsMaxDocsPerSegment(t *testing.T) {
	w, _ := newWriter(t, Options{MaxDocsPerSegment: 2})
	ops := make([]operation.UserOperation, 0, 6)
	for i := 0; i < 5; i++ {
		ops = append(ops, operation.Add(doc("n", i)))
	}
	ops = append(ops, operation.Delete(query.Term("n", 0)))
	_, err := w.Run(ops...)
	require.NoError(t, err)

	segs := w.Segments()
	require.Len(t, segs, 3)
	for _, s := range segs {
		assert.LessOrEqual(t, s.Meta.MaxDoc, uint32(2))
	}

	_, err = w.Commit(context.Background())
	require.NoError(t, err)
	var deleted uint32
	for _, s := range w.Segments() {
		deleted += s.Meta.NumDeleted
	}
	assert.EqualValues(t, 1, deleted)
}
