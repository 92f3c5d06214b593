package segment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	pebblestore "github.com/rzbill/sift/internal/storage/pebble"
)

// ErrNotFound is returned when a segment has no persisted state.
var ErrNotFound = errors.New("segment not found")

var (
	segPrefix   = []byte("seg/")
	metaSuffix  = []byte("/m")
	aliveSuffix = []byte("/a")
)

func keySegment(id ID) []byte {
	k := make([]byte, 0, len(segPrefix)+36+1)
	k = append(k, segPrefix...)
	k = append(k, id.String()...)
	k = append(k, '/')
	return k
}

// KeyMeta builds the metadata key for a segment.
func KeyMeta(id ID) []byte {
	k := keySegment(id)
	return append(k[:len(k)-1], metaSuffix...)
}

// KeyAlive builds the alive-bitset key for a segment.
func KeyAlive(id ID) []byte {
	k := keySegment(id)
	return append(k[:len(k)-1], aliveSuffix...)
}

// Store persists segment metadata and alive bitsets.
type Store struct {
	db *pebblestore.DB
}

// NewStore returns a Store over db.
func NewStore(db *pebblestore.DB) *Store { return &Store{db: db} }

// Save writes meta and, when non-nil, the alive bitset in one atomic batch.
func (s *Store) Save(ctx context.Context, meta Meta, alive *bitset.BitSet) error {
	mb, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode segment meta: %w", err)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(KeyMeta(meta.ID), mb, nil); err != nil {
		return err
	}
	if alive != nil {
		ab, err := alive.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encode alive bitset: %w", err)
		}
		if err := b.Set(KeyAlive(meta.ID), ab, nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

// LoadMeta reads a segment's metadata.
func (s *Store) LoadMeta(id ID) (Meta, error) {
	b, err := s.db.Get(KeyMeta(id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, fmt.Errorf("decode segment meta %s: %w", id, err)
	}
	return m, nil
}

// LoadAlive reads a segment's alive bitset. A segment saved without a bitset
// yields (nil, nil).
func (s *Store) LoadAlive(id ID) (*bitset.BitSet, error) {
	b, err := s.db.Get(KeyAlive(id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var bs bitset.BitSet
	if err := bs.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("decode alive bitset %s: %w", id, err)
	}
	return &bs, nil
}

// List returns the metadata of every persisted segment, ordered by ID.
func (s *Store) List() ([]Meta, error) {
	var (
		out       []Meta
		decodeErr error
	)
	err := s.db.ScanPrefix(segPrefix, func(k, v []byte) bool {
		if !bytes.HasSuffix(k, metaSuffix) {
			return true
		}
		var m Meta
		if err := json.Unmarshal(v, &m); err != nil {
			decodeErr = fmt.Errorf("decode segment meta at %q: %w", k, err)
			return false
		}
		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decodeErr
}

// Delete removes every key of a segment and compacts the freed range.
func (s *Store) Delete(ctx context.Context, id ID) error {
	prefix := keySegment(id)
	if err := s.db.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	return s.db.CompactPrefix(prefix)
}

// ParseID parses a textual segment ID.
func ParseID(s string) (ID, error) { return uuid.Parse(s) }
