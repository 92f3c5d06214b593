package deletequeue

import (
	"sync"

	"github.com/rzbill/sift/internal/operation"
)

// block is an immutable run of delete operations. ops is never written after
// newBlock returns.
type block struct {
	ops  []operation.DeleteOperation
	next nextBlock
}

func newBlock(ops []operation.DeleteOperation, q *Queue) *block {
	return &block{ops: ops, next: nextBlock{queue: q}}
}

// nextBlock links a block to its successor. It starts bound to the queue and
// is resolved at most once; after that it holds the successor for good.
type nextBlock struct {
	mu       sync.RWMutex
	queue    *Queue // nil once resolved
	resolved *block
}

// get returns the successor block, flushing the queue if needed. It returns
// nil when nothing has been pushed since this block was materialized.
func (n *nextBlock) get() *block {
	n.mu.RLock()
	if b := n.resolved; b != nil {
		n.mu.RUnlock()
		return b
	}
	n.mu.RUnlock()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.resolved != nil {
		return n.resolved
	}
	b := n.queue.flush()
	if b == nil {
		return nil
	}
	n.resolved = b
	n.queue = nil
	return b
}
