// Package deletequeue implements the delete log shared by a writer session
// and every segment it produces.
//
// # Overview
//
// The queue behaves like a single-producer, multi-consumer broadcast channel:
// every consumer observes every delete, in push order, at its own pace.
//
//   - Push appends to an unflushed buffer. It never materializes anything and
//     never waits on readers.
//   - Consumers hold a Cursor. When a Cursor runs off the end of its current
//     block it asks the block's link for a successor; the first such request
//     flushes the buffer into a new immutable block and binds the link to it.
//   - Blocks are shared by every Cursor that reaches them.
//
// # Ownership
//
// The queue keeps only a weak pointer to the most recent block. Strong
// references run forward through resolved links and from each Cursor to its
// current block, so history that no Cursor can reach anymore is reclaimed by
// the garbage collector.
//
//	q := deletequeue.New()
//	q.Push(operation.DeleteOperation{Opstamp: 1, Target: pred})
//	c := q.Cursor()             // sees 1 and everything pushed later
//	for op, ok := c.Get(); ok; op, ok = c.Get() {
//	    apply(op)
//	    c.Advance()
//	}
//	other := c.Clone()          // independent position on the same chain
//
// # Concurrency
//
// Queue methods are safe for concurrent use. A single Cursor is not: clone it
// to hand a position to another goroutine. Blocks are immutable once built and
// are read without locking.
package deletequeue
