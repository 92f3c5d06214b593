// Package segment tracks per-segment state that lives outside the segment's
// immutable data: its metadata, the bitset of documents still alive, and the
// position of its delete cursor.
//
// Deletes that precede an Entry's cursor are reflected in its alive bitset
// (and in the persisted copy written by Store); deletes after the cursor are
// still to be replayed.
//
// # Keyspace
//
//	seg/{uuid}/m   - Meta as JSON
//	seg/{uuid}/a   - alive bitset (bitset.BitSet binary encoding)
package segment
