package looper

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooperThread_SpawnDispatchesAndJoins(t *testing.T) {
	lt := NewLooperThread("spawn-test", 4, SpawnThread)
	l := lt.GetLooper()
	require.NotNil(t, l)

	h := NewHandler(l, nil)
	var mu sync.Mutex
	got := 0
	for i := 0; i < 3; i++ {
		_, err := h.Post(func(*Message, any) {
			mu.Lock()
			got++
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	lt.QuitSafely()
	lt.Join()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, got)
}

func TestLooperThread_GetLooperIsStableAcrossCalls(t *testing.T) {
	lt := NewLooperThread("stable", 4, SpawnThread)
	l1 := lt.GetLooper()
	l2 := lt.GetLooper()
	assert.Same(t, l1, l2)
	lt.Close()
}

func TestLooperThread_InCurrentGoroutinePreparesImmediately(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		lt := NewLooperThread("inline", 4, InCurrentGoroutine)
		// Prepare already ran synchronously in NewLooperThread, on this
		// same goroutine — GetLooper must not spawn anything here.
		l := lt.GetLooper()
		require.NotNil(t, l)
		found, err := MyLooper()
		require.NoError(t, err)
		assert.Same(t, l, found)

		h := NewHandler(l, nil)
		fired := false
		_, err = h.Post(func(*Message, any) { fired = true })
		require.NoError(t, err)
		_, err = h.Post(func(*Message, any) { l.Quit(false) })
		require.NoError(t, err)

		l.Loop() // runs on the same goroutine that prepared it, per contract
		assert.True(t, fired)
	}()
	<-done
}

func TestLooperThread_CloseIsIdempotentWithoutGetLooper(t *testing.T) {
	lt := NewLooperThread("never-started", 4, SpawnThread)
	// Close (quit then join) before GetLooper is a safe no-op (nothing
	// spawned yet), and repeating it is too.
	lt.Close()
	lt.Close()
	assert.Nil(t, func() *Looper {
		lt.mu.Lock()
		defer lt.mu.Unlock()
		return lt.looper
	}())
}
