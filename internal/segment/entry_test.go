package segment

import (
	"testing"

	"github.com/rzbill/sift/internal/deletequeue"
	"github.com/rzbill/sift/internal/operation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryCloneIsIndependent(t *testing.T) {
	q := deletequeue.New()
	meta := Meta{ID: NewID(), MaxDoc: 4}
	e := NewEntry(meta, q.Cursor(), NewAliveBitset(4))

	q.Push(operation.DeleteOperation{Opstamp: 1})
	c := e.Clone()

	require.True(t, c.DeleteCursor().Advance())
	_, ok := c.DeleteCursor().Get()
	assert.False(t, ok, "clone consumed the only op")

	op, ok := e.DeleteCursor().Get()
	require.True(t, ok)
	assert.EqualValues(t, 1, op.Opstamp)

	c.AliveBitset().Clear(2)
	assert.True(t, e.IsAlive(2))
	assert.False(t, c.IsAlive(2))
}

func TestEntryIsAlive(t *testing.T) {
	e := NewEntry(Meta{ID: NewID(), MaxDoc: 3}, nil, nil)
	assert.True(t, e.IsAlive(0))
	assert.True(t, e.IsAlive(2))
	assert.False(t, e.IsAlive(3))

	b := NewAliveBitset(3)
	b.Clear(1)
	e.SetAliveBitset(b)
	assert.False(t, e.IsAlive(1))
	assert.Equal(t, uint(2), e.AliveBitset().Count())
}

func TestMetaNumAlive(t *testing.T) {
	m := Meta{MaxDoc: 10, NumDeleted: 3}
	assert.EqualValues(t, 7, m.NumAlive())
}
