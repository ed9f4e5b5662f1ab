package looper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_ObtainVariants(t *testing.T) {
	m := ObtainWhat(5)
	assert.Equal(t, 5, m.What)
	release(m)

	m2 := ObtainArgs(1, 2, 3)
	assert.Equal(t, 1, m2.What)
	assert.Equal(t, 2, m2.Arg1)
	assert.Equal(t, 3, m2.Arg2)
	release(m2)

	called := false
	m3 := ObtainRunnable(func(*Message, any) { called = true })
	require.NotNil(t, m3.Callback)
	m3.Callback(m3, nil)
	assert.True(t, called)
	release(m3)
}

func TestMessage_SetParamOverwriteDropsPreviousFree(t *testing.T) {
	m := &Message{}
	firstFreed := false
	m.SetParam("a", 1, func(any, int) { firstFreed = true })
	m.SetParam("b", 2, func(any, int) {})
	assert.False(t, firstFreed, "overwriting SetParam before release must not invoke the old freeFn")

	ptr, n := m.Param()
	assert.Equal(t, "b", ptr)
	assert.Equal(t, 2, n)
}

func TestMessage_RecycleUnchecked_ClearsFieldsAndFreesOnce(t *testing.T) {
	freed := 0
	m := &Message{What: 1, Arg1: 2, Arg2: 3}
	m.Callback = func(*Message, any) {}
	m.SetParam("x", 4, func(any, int) { freed++ })
	m.markInUse()

	m.recycleUnchecked()

	assert.Equal(t, 1, freed)
	assert.Equal(t, 0, m.What)
	assert.Equal(t, 0, m.Arg1)
	assert.Equal(t, 0, m.Arg2)
	assert.Nil(t, m.Callback)
	assert.Nil(t, m.HandlerCallback)
	ptr, n := m.Param()
	assert.Nil(t, ptr)
	assert.Equal(t, 0, n)
	// recycleUnchecked zeroes flags along with every other field, so
	// IsInUse reports false immediately after, regardless of prior state.
	assert.False(t, m.IsInUse())
}

func TestMessage_IsInUse(t *testing.T) {
	m := &Message{}
	assert.False(t, m.IsInUse())
	m.markInUse()
	assert.True(t, m.IsInUse())
	m.clearInUse()
	assert.False(t, m.IsInUse())
}
