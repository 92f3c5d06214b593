package deletequeue

import (
	"github.com/rzbill/sift/internal/operation"
	"github.com/rzbill/sift/pkg/opstamp"
)

// Cursor is a consumer's position in the delete log. A Cursor must not be
// used from several goroutines at once; Clone it instead.
type Cursor struct {
	block *block
	pos   int
}

// Clone returns an independent cursor at the same position.
func (c *Cursor) Clone() *Cursor {
	return &Cursor{block: c.block, pos: c.pos}
}

// loadBlockIfRequired moves to the successor block once the current one is
// consumed. It reports whether an operation is available at the position.
func (c *Cursor) loadBlockIfRequired() bool {
	for c.pos >= len(c.block.ops) {
		next := c.block.next.get()
		if next == nil {
			return false
		}
		c.block = next
		c.pos = 0
	}
	return true
}

// Get returns the operation at the current position without advancing.
// ok is false when the cursor has caught up with every pushed operation;
// calling Get again after more pushes will return them.
func (c *Cursor) Get() (op operation.DeleteOperation, ok bool) {
	if !c.loadBlockIfRequired() {
		return operation.DeleteOperation{}, false
	}
	return c.block.ops[c.pos], true
}

// Advance moves past the current operation. It returns false, leaving the
// position unchanged, if there is no current operation.
func (c *Cursor) Advance() bool {
	if !c.loadBlockIfRequired() {
		return false
	}
	c.pos++
	return true
}

// SkipTo advances until the current operation has an opstamp >= target, or
// until the log is exhausted. Operations are stepped over one at a time:
// opstamps are not required to be sorted, so the first qualifying operation
// in push order is the boundary.
func (c *Cursor) SkipTo(target opstamp.Opstamp) {
	for c.isBehind(target) {
		c.Advance()
	}
}

func (c *Cursor) isBehind(target opstamp.Opstamp) bool {
	op, ok := c.Get()
	return ok && op.Opstamp < target
}
