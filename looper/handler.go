package looper

import (
	"sync"
)

// MessageHandlerFunc is the handler-level fallback dispatch function
// (spec §4.4 step 4).
type MessageHandlerFunc func(msg *Message, context any)

// Handler is a façade bound to one Looper's queue: it posts and queries
// messages, and receives dispatches from that Looper's Loop. A Handler
// is safe for concurrent use by any number of goroutines; dispatch
// itself only ever runs on the bound Looper's own goroutine.
type Handler struct {
	looper *Looper
	queue  *MessageQueue

	mu                  sync.Mutex
	defaultRunnable     Runnable
	messageHandlerFn    MessageHandlerFunc
	handlerCallbackObj  HandlerCallback
	context             any
}

// NewHandler binds a Handler to l (preparing a Looper on the calling
// goroutine with Prepare() if l is nil).
func NewHandler(l *Looper, context any) *Handler {
	if l == nil {
		l = Prepare()
	}
	return &Handler{looper: l, queue: l.queue, context: context}
}

// SetDefaultRunnable installs the handler-level fallback runnable used
// when a dispatched message carries neither its own Callback nor
// HandlerCallback (spec §4.4 step 3).
func (h *Handler) SetDefaultRunnable(r Runnable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.defaultRunnable = r
}

// SetMessageHandlerFunc installs the handler-level fallback function
// (spec §4.4 step 4).
func (h *Handler) SetMessageHandlerFunc(fn MessageHandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messageHandlerFn = fn
}

// SetHandlerCallbackObject installs the handler-level fallback
// HandlerCallback (spec §4.4 step 5).
func (h *Handler) SetHandlerCallbackObject(cb HandlerCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlerCallbackObj = cb
}

// Looper returns the Looper this Handler is bound to.
func (h *Handler) Looper() *Looper { return h.looper }

// --- Posting (spec §4.4) ---

func nowMs() int64 { return monotonicMillis() }

func clampDelay(delayMs int64) int64 {
	if delayMs < 0 {
		return 0
	}
	return delayMs
}

// sendMessageAtTime is the single normalization point every post/send
// variant below funnels through (spec §4.4): stamp target, enqueue at
// absMs.
func (h *Handler) sendMessageAtTime(msg *Message, absMs int64) error {
	msg.target = h
	return h.queue.EnqueueMessage(msg, absMs)
}

// Post enqueues r to run as soon as the queue is idle enough to reach
// it.
func (h *Handler) Post(r Runnable) (*Message, error) {
	return h.PostDelayed(r, 0)
}

// PostDelayed enqueues r to run no sooner than delayMs from now.
func (h *Handler) PostDelayed(r Runnable, delayMs int64) (*Message, error) {
	msg := ObtainForHandler(h)
	msg.Callback = r
	absMs := nowMs() + clampDelay(delayMs)
	if err := h.sendMessageAtTime(msg, absMs); err != nil {
		return nil, err
	}
	return msg, nil
}

// PostAtTime enqueues r to run no sooner than the given absolute
// monotonic-ms time.
func (h *Handler) PostAtTime(r Runnable, absMs int64) (*Message, error) {
	msg := ObtainForHandler(h)
	msg.Callback = r
	if err := h.sendMessageAtTime(msg, absMs); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendMessage enqueues msg to run as soon as possible.
func (h *Handler) SendMessage(msg *Message) error {
	return h.sendMessageAtTime(msg, nowMs())
}

// SendMessageDelayed enqueues msg to run no sooner than delayMs from
// now.
func (h *Handler) SendMessageDelayed(msg *Message, delayMs int64) error {
	return h.sendMessageAtTime(msg, nowMs()+clampDelay(delayMs))
}

// SendMessageAtTime enqueues msg to run no sooner than the given
// absolute monotonic-ms time.
func (h *Handler) SendMessageAtTime(msg *Message, absMs int64) error {
	return h.sendMessageAtTime(msg, absMs)
}

// SendEmptyMessage enqueues a fresh message carrying only what.
func (h *Handler) SendEmptyMessage(what int) error {
	return h.SendEmptyMessageDelayed(what, 0)
}

// SendEmptyMessageDelayed enqueues a fresh message carrying only what,
// delayed by delayMs.
func (h *Handler) SendEmptyMessageDelayed(what int, delayMs int64) error {
	msg := ObtainForHandler(h)
	msg.What = what
	return h.sendMessageAtTime(msg, nowMs()+clampDelay(delayMs))
}

// SendMessageAtFrontOfQueue enqueues msg with when=0, which the queue's
// insertion rule (case i) treats as front-of-queue: dispatched before
// any currently pending message (spec §4.4, §8 scenario 4).
func (h *Handler) SendMessageAtFrontOfQueue(msg *Message) error {
	return h.sendMessageAtTime(msg, 0)
}

// --- Dispatch (spec §4.4) ---

// dispatchMessage implements the six-step resolution order. Called only
// by the bound Looper's own goroutine, from Loop via dispatchAndRecycle.
func (h *Handler) dispatchMessage(msg *Message) {
	if msg.Callback != nil {
		msg.Callback(msg, h.context)
		return
	}
	if msg.HandlerCallback != nil {
		msg.HandlerCallback.OnHandler(msg)
		return
	}

	h.mu.Lock()
	defaultRunnable := h.defaultRunnable
	messageHandlerFn := h.messageHandlerFn
	handlerCallbackObj := h.handlerCallbackObj
	context := h.context
	h.mu.Unlock()

	switch {
	case defaultRunnable != nil:
		defaultRunnable(msg, context)
	case messageHandlerFn != nil:
		messageHandlerFn(msg, context)
	case handlerCallbackObj != nil:
		handlerCallbackObj.OnHandler(msg)
	default:
		logWarn(h.queue, "dropped message: no dispatch resolution", ErrContractViolation)
	}
}

// --- Queries and removals (spec §4.4: "forward to the queue with this
// as the handler filter") ---

func (h *Handler) HasMessage(msg *Message) bool        { return h.queue.HasMessage(msg, h) }
func (h *Handler) HasMessageWhat(what int) bool        { return h.queue.HasMessageWhat(what, h) }
func (h *Handler) HasMessageCallback(cb HandlerCallback) bool {
	return h.queue.HasMessageCallback(cb, h)
}

func (h *Handler) RemoveMessage(msg *Message) int { return h.queue.RemoveMessage(msg, h) }
func (h *Handler) RemoveMessagesByWhat(what int) int {
	return h.queue.RemoveMessagesByWhat(what, h)
}
func (h *Handler) RemoveMessagesByWhatRange(min, max int) int {
	return h.queue.RemoveMessagesByWhatRange(min, max, h)
}
func (h *Handler) RemoveMessagesByWhatArgs(what, arg1, arg2 int) int {
	return h.queue.RemoveMessagesByWhatArgs(what, arg1, arg2, h)
}
func (h *Handler) RemoveMessagesByCallback(cb HandlerCallback) int {
	return h.queue.RemoveMessagesByCallback(cb, h)
}
func (h *Handler) RemoveMessagesByRunnable() int { return h.queue.RemoveMessagesByRunnable(h) }
func (h *Handler) RemoveAllMessages() int { return h.queue.RemoveAllMessages(h) }
