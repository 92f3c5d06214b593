package segment

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"github.com/rzbill/sift/internal/deletequeue"
	"github.com/rzbill/sift/pkg/opstamp"
)

// ID identifies a segment.
type ID = uuid.UUID

// NewID returns a fresh random segment ID.
func NewID() ID { return uuid.New() }

// Meta describes a segment at a given instant.
type Meta struct {
	ID         ID     `json:"id"`
	MaxDoc     uint32 `json:"maxDoc"`
	NumDeleted uint32 `json:"numDeleted"`
	// DeleteOpstamp is the opstamp up to which deletes have been applied.
	DeleteOpstamp opstamp.Opstamp `json:"deleteOpstamp"`
	CreatedAtMs   int64           `json:"createdAtMs"`
}

// NumAlive returns the number of documents not marked deleted.
func (m Meta) NumAlive() uint32 { return m.MaxDoc - m.NumDeleted }

// Entry is the mutable bookkeeping for one segment. An Entry is owned by a
// single goroutine at a time; Clone it to share.
type Entry struct {
	meta         Meta
	alive        *bitset.BitSet
	deleteCursor *deletequeue.Cursor
}

// NewEntry builds an Entry. A nil alive bitset means every document is alive.
func NewEntry(meta Meta, cursor *deletequeue.Cursor, alive *bitset.BitSet) *Entry {
	return &Entry{meta: meta, alive: alive, deleteCursor: cursor}
}

// AliveBitset returns the alive bitset, or nil if no document was ever deleted.
func (e *Entry) AliveBitset() *bitset.BitSet { return e.alive }

// SetAliveBitset replaces the alive bitset.
func (e *Entry) SetAliveBitset(b *bitset.BitSet) { e.alive = b }

// IsAlive reports whether doc has not been deleted.
func (e *Entry) IsAlive(doc uint32) bool {
	if doc >= e.meta.MaxDoc {
		return false
	}
	if e.alive == nil {
		return true
	}
	return e.alive.Test(uint(doc))
}

// SetMeta replaces the segment metadata.
func (e *Entry) SetMeta(m Meta) { e.meta = m }

// Meta returns the segment metadata.
func (e *Entry) Meta() Meta { return e.meta }

// SegmentID returns the segment ID.
func (e *Entry) SegmentID() ID { return e.meta.ID }

// DeleteCursor returns the entry's position in the delete log. Advancing it
// advances the entry.
func (e *Entry) DeleteCursor() *deletequeue.Cursor { return e.deleteCursor }

// Clone returns an independent copy: the bitset is copied and the cursor is
// cloned, so advancing one entry never moves the other.
func (e *Entry) Clone() *Entry {
	c := &Entry{meta: e.meta}
	if e.alive != nil {
		c.alive = e.alive.Clone()
	}
	if e.deleteCursor != nil {
		c.deleteCursor = e.deleteCursor.Clone()
	}
	return c
}

func (e *Entry) String() string {
	return fmt.Sprintf("SegmentEntry(%s max_doc=%d deleted=%d delete_opstamp=%d)",
		e.meta.ID, e.meta.MaxDoc, e.meta.NumDeleted, e.meta.DeleteOpstamp)
}

// NewAliveBitset returns a bitset of maxDoc bits, all set.
func NewAliveBitset(maxDoc uint32) *bitset.BitSet {
	b := bitset.New(uint(maxDoc))
	for i := uint(0); i < uint(maxDoc); i++ {
		b.Set(i)
	}
	return b
}
