package looper

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MyLooper returns ErrNoLooperOnThread before Prepare has run on this
// goroutine.
func TestLooper_MyLooperBeforePrepare(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := MyLooper()
		assert.ErrorIs(t, err, ErrNoLooperOnThread)
	}()
	<-done
}

// Prepare is idempotent per goroutine; MyLooper then finds it.
func TestLooper_PrepareIdempotentPerGoroutine(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		l1 := Prepare()
		l2 := Prepare()
		assert.Same(t, l1, l2)

		found, err := MyLooper()
		require.NoError(t, err)
		assert.Same(t, l1, found)

		l1.Quit(false)
	}()
	<-done
}

// Loop dispatches posted work and returns once Quit(true) has drained it.
func TestLooper_LoopDispatchesAndQuits(t *testing.T) {
	ready := make(chan *Looper, 1)
	loopReturned := make(chan struct{})

	go func() {
		l := Prepare()
		ready <- l
		l.Loop()
		close(loopReturned)
	}()

	l := <-ready
	h := NewHandler(l, nil)

	var mu sync.Mutex
	dispatched := 0
	for i := 0; i < 5; i++ {
		_, err := h.Post(func(*Message, any) {
			mu.Lock()
			dispatched++
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	l.Quit(true)

	select {
	case <-loopReturned:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not return after safe Quit")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, dispatched)
	assert.True(t, l.HadExit())
}

// A panicking callback is recovered, logged, and the message is still
// recycled; Loop keeps running afterward.
func TestLooper_PanicRecoveredAndMessageRecycled(t *testing.T) {
	ready := make(chan *Looper, 1)
	loopReturned := make(chan struct{})

	go func() {
		l := Prepare()
		ready <- l
		l.Loop()
		close(loopReturned)
	}()

	l := <-ready
	h := NewHandler(l, nil)

	var mu sync.Mutex
	var freed bool
	boom := ObtainForHandler(h)
	boom.Callback = func(*Message, any) { panic("boom") }
	// freeFn runs only when the message is recycled.
	boom.SetParam(nil, 0, func(any, int) {
		mu.Lock()
		freed = true
		mu.Unlock()
	})
	require.NoError(t, h.SendMessage(boom))

	var after bool
	done := make(chan struct{})
	_, err := h.Post(func(*Message, any) {
		mu.Lock()
		after = true
		mu.Unlock()
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stalled after recovering a panic")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, freed, "panicking message was not recycled")
	assert.True(t, after)

	l.Quit(false)
	<-loopReturned
}

// Prepare derives distinct Loopers (each with its own instance id) for
// distinct goroutines. Queue names are not compared: they carry the OS
// thread id, which unpinned goroutines can share.
func TestLooper_DistinctPerGoroutine(t *testing.T) {
	const n = 4
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		idx := i
		go func() {
			defer wg.Done()
			l := Prepare()
			ids[idx] = l.ID().String()
			l.Quit(false)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, n := range ids {
		assert.False(t, seen[n], "looper id %q reused across goroutines", n)
		seen[n] = true
	}
}
