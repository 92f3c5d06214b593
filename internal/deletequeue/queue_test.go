package deletequeue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/sift/internal/operation"
	"github.com/rzbill/sift/pkg/opstamp"
)

// marker is a predicate identifying the push that produced an operation.
type marker int

func (marker) Matches(operation.Document) bool { return false }

func op(stamp uint64) operation.DeleteOperation {
	return operation.DeleteOperation{Opstamp: opstamp.Opstamp(stamp), Target: marker(stamp)}
}

func mustGet(t *testing.T, c *Cursor, want uint64) {
	t.Helper()
	got, ok := c.Get()
	if !ok {
		t.Fatalf("expected opstamp %d, got none", want)
	}
	if uint64(got.Opstamp) != want {
		t.Fatalf("expected opstamp %d, got %d", want, got.Opstamp)
	}
}

func mustBeEmpty(t *testing.T, c *Cursor) {
	t.Helper()
	if got, ok := c.Get(); ok {
		t.Fatalf("expected none, got opstamp %d", got.Opstamp)
	}
}

func drain(c *Cursor) []uint64 {
	var out []uint64
	for {
		o, ok := c.Get()
		if !ok {
			return out
		}
		out = append(out, uint64(o.Opstamp))
		c.Advance()
	}
}

func TestDeleteQueue(t *testing.T) {
	q := New()
	q.Push(op(1))
	q.Push(op(2))

	snapshot := q.Cursor()
	{
		it := snapshot.Clone()
		mustGet(t, it, 1)
		it.Advance()
		mustGet(t, it, 2)
		it.Advance()
		mustBeEmpty(t, it)
		it.Advance()

		snapshot2 := q.Cursor()
		mustBeEmpty(t, snapshot2)
		q.Push(op(3))
		mustGet(t, snapshot2, 3)
		mustGet(t, it, 3)
		mustGet(t, it, 3)
		it.Advance()
		mustBeEmpty(t, it)
		it.Advance()
	}
	{
		it := snapshot
		mustGet(t, it, 1)
		it.Advance()
		mustGet(t, it, 2)
		it.Advance()
		mustGet(t, it, 3)
		it.Advance()
		mustBeEmpty(t, it)
	}
}

func TestCloneScenario(t *testing.T) {
	q := New()
	q.Push(op(1))
	q.Push(op(2))
	snapshot := q.Cursor()
	a, b := snapshot.Clone(), snapshot.Clone()

	mustGet(t, a, 1)
	a.Advance()
	mustGet(t, a, 2)
	a.Advance()
	mustBeEmpty(t, a)

	q.Push(op(3))
	mustGet(t, a, 3)
	mustGet(t, b, 1)
}

func TestCursorAfterMaterializedOpsSeesOnlyLaterPushes(t *testing.T) {
	q := New()
	first := q.Cursor()
	q.Push(op(1))
	q.Push(op(2))
	if got := drain(first); len(got) != 2 {
		t.Fatalf("expected 2 ops, got %v", got)
	}

	c := q.Cursor()
	mustBeEmpty(t, c)
	q.Push(op(3))
	mustGet(t, c, 3)
}

func TestEmptyQueueCursorRetries(t *testing.T) {
	q := New()
	c := q.Cursor()
	for i := 0; i < 3; i++ {
		mustBeEmpty(t, c)
		if c.Advance() {
			t.Fatalf("advance on empty queue should report false")
		}
	}
	q.Push(op(5))
	mustGet(t, c, 5)
	if !c.Advance() {
		t.Fatalf("advance should succeed")
	}
	mustBeEmpty(t, c)
}

func TestCloneIsIndependent(t *testing.T) {
	q := New()
	c := q.Cursor()
	for i := uint64(1); i <= 4; i++ {
		q.Push(op(i))
	}
	c.Advance()
	clone := c.Clone()

	got := drain(c)
	if len(got) != 3 || got[0] != 2 {
		t.Fatalf("source cursor drained %v", got)
	}
	if got := drain(clone); len(got) != 3 || got[0] != 2 || got[2] != 4 {
		t.Fatalf("clone drained %v", got)
	}
}

func TestSkipTo(t *testing.T) {
	q := New()
	c := q.Cursor()
	for _, s := range []uint64{1, 2, 3, 7, 9} {
		q.Push(op(s))
	}
	c.SkipTo(5)
	mustGet(t, c, 7)

	// target already passed
	c.SkipTo(3)
	mustGet(t, c, 7)

	// inclusive boundary
	c.SkipTo(9)
	mustGet(t, c, 9)

	c.SkipTo(100)
	mustBeEmpty(t, c)
}

func TestSkipToFollowsPushOrder(t *testing.T) {
	q := New()
	c := q.Cursor()
	for _, s := range []uint64{4, 4, 2, 6} {
		q.Push(op(s))
	}
	c.SkipTo(4)
	mustGet(t, c, 4)
	c.Advance()
	mustGet(t, c, 4)
	c.Advance()
	// 2 < 4 is skipped even though it follows a qualifying op
	c.SkipTo(4)
	mustGet(t, c, 6)
}

func TestPendingCountsUnflushed(t *testing.T) {
	q := New()
	c := q.Cursor()
	q.Push(op(1))
	q.Push(op(2))
	if n := q.Pending(); n != 2 {
		t.Fatalf("pending = %d", n)
	}
	mustGet(t, c, 1)
	if n := q.Pending(); n != 0 {
		t.Fatalf("pending after flush = %d", n)
	}
}

type countingMetrics struct {
	mu      sync.Mutex
	pushes  int
	flushes int
	flushed int
	cursors int
}

func (m *countingMetrics) ObservePush(int) {
	m.mu.Lock()
	m.pushes++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveFlush(n int, _ time.Duration) {
	m.mu.Lock()
	m.flushes++
	m.flushed += n
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveCursor() {
	m.mu.Lock()
	m.cursors++
	m.mu.Unlock()
}

func TestMetricsHook(t *testing.T) {
	m := &countingMetrics{}
	q := New(WithMetrics(m))
	c := q.Cursor()
	q.Push(op(1))
	q.Push(op(2))
	drain(c)
	q.Push(op(3))
	drain(c)
	_ = q.Cursor()

	if m.pushes != 3 || m.flushes != 2 || m.flushed != 3 || m.cursors != 2 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestWaitForPushWake(t *testing.T) {
	q := New()
	done := make(chan struct{})
	go func() {
		if !q.WaitForPush(time.Second) {
			t.Errorf("expected wake by push")
		}
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	q.Push(op(1))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for waiter to wake")
	}
}

func TestWaitForPushTimeout(t *testing.T) {
	q := New()
	if q.WaitForPush(20 * time.Millisecond) {
		t.Fatalf("expected timeout")
	}
}

func TestWaitForPushContext(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.WaitForPushContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	notify := q.PushNotify()
	q.Push(op(1))
	select {
	case <-notify:
	default:
		t.Fatalf("notify channel not closed by push")
	}
}
