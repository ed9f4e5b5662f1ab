package looper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dispatchMessage resolution order: Callback beats everything else.
func TestHandler_DispatchPrefersCallback(t *testing.T) {
	q := NewMessageQueue("dispatch-order", 4)
	h := newTestHandlerOnQueue(t, q)

	var got string
	h.SetDefaultRunnable(func(*Message, any) { got = "default" })
	h.SetMessageHandlerFunc(func(*Message, any) { got = "fn" })
	h.SetHandlerCallbackObject(HandlerCallbackFunc(func(*Message) { got = "obj" }))

	msg := ObtainForHandler(h)
	msg.Callback = func(*Message, any) { got = "callback" }
	h.dispatchMessage(msg)
	assert.Equal(t, "callback", got)
}

func TestHandler_DispatchPrefersMessageHandlerCallbackOverHandlerDefaults(t *testing.T) {
	q := NewMessageQueue("dispatch-order-2", 4)
	h := newTestHandlerOnQueue(t, q)

	var got string
	h.SetDefaultRunnable(func(*Message, any) { got = "default" })

	msg := ObtainForHandler(h)
	msg.HandlerCallback = HandlerCallbackFunc(func(*Message) { got = "msg-callback" })
	h.dispatchMessage(msg)
	assert.Equal(t, "msg-callback", got)
}

func TestHandler_DispatchFallsThroughHandlerDefaults(t *testing.T) {
	q := NewMessageQueue("dispatch-order-3", 4)
	h := newTestHandlerOnQueue(t, q)

	var got string
	h.SetDefaultRunnable(func(*Message, any) { got = "default" })
	msg := ObtainForHandler(h)
	h.dispatchMessage(msg)
	assert.Equal(t, "default", got)

	got = ""
	h2 := newTestHandlerOnQueue(t, q)
	h2.SetMessageHandlerFunc(func(*Message, any) { got = "fn" })
	h2.dispatchMessage(ObtainForHandler(h2))
	assert.Equal(t, "fn", got)

	got = ""
	h3 := newTestHandlerOnQueue(t, q)
	h3.SetHandlerCallbackObject(HandlerCallbackFunc(func(*Message) { got = "obj" }))
	h3.dispatchMessage(ObtainForHandler(h3))
	assert.Equal(t, "obj", got)
}

func TestHandler_PostDelayedSetsAbsoluteWhen(t *testing.T) {
	q := NewMessageQueue("post-delayed", 4)
	h := newTestHandlerOnQueue(t, q)

	before := nowMs()
	msg, err := h.PostDelayed(func(*Message, any) {}, 25)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, msg.When(), before+25)
	assert.Same(t, h, msg.Target())
}

func TestHandler_ClampDelayNeverNegative(t *testing.T) {
	assert.Equal(t, int64(0), clampDelay(-100))
	assert.Equal(t, int64(5), clampDelay(5))
}

func TestHandler_ContextPassedThrough(t *testing.T) {
	q := NewMessageQueue("context", 4)
	l := &Looper{queue: q, logger: NewNopLogger()}
	h := &Handler{looper: l, queue: q, context: "ctx-value"}

	var seen any
	h.SetDefaultRunnable(func(_ *Message, context any) { seen = context })
	h.dispatchMessage(ObtainForHandler(h))
	assert.Equal(t, "ctx-value", seen)
}
