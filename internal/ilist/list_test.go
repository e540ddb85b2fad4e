package ilist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushBackOrder(t *testing.T) {
	l := New[int]()
	l.PushBack(1)
	l.PushBack(2)
	l.PushBack(3)
	require.Equal(t, 3, l.Len())

	var got []int
	l.Each(func(v int) { got = append(got, v) })
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestPushFront(t *testing.T) {
	l := New[string]()
	l.PushBack("b")
	l.PushFront("a")
	assert.Equal(t, "a", l.Front().Value)
	assert.Equal(t, "b", l.Back().Value)
}

func TestRemoveIsO1AndStable(t *testing.T) {
	l := New[int]()
	e1 := l.PushBack(1)
	e2 := l.PushBack(2)
	e3 := l.PushBack(3)

	l.Remove(e2)
	assert.Equal(t, 2, l.Len())

	var got []int
	l.Each(func(v int) { got = append(got, v) })
	assert.Equal(t, []int{1, 3}, got)

	// Removing again is a no-op.
	l.Remove(e2)
	assert.Equal(t, 2, l.Len())

	assert.Same(t, e3, e1.Next())
	assert.Nil(t, e3.Next())
}

func TestEmptyList(t *testing.T) {
	l := New[int]()
	assert.Nil(t, l.Front())
	assert.Nil(t, l.Back())
	assert.Equal(t, 0, l.Len())
}
